package timer

// EventType discriminates broadcast messages on the wire.
type EventType string

const (
	EventTimerStarted     EventType = "timer_started"
	EventTimerStopped     EventType = "timer_stopped"
	EventTimerReset       EventType = "timer_reset"
	EventTimerUpdate      EventType = "timer_update"
	EventTimerEnded       EventType = "timer_ended"
	EventTimeAdded        EventType = "time_added"
	EventSubscription     EventType = "subscription"
	EventSettingsUpdated  EventType = "settings_updated"
	EventTimerSizeUpdate  EventType = "timer_size_update"
	EventTimerStyleUpdate EventType = "timer_style_update"
)

// Broadcaster is the delivery capability injected into the engine. Delivery
// is best-effort and asynchronous with respect to the caller: Broadcast must
// never block and the returned error only signals that the message could not
// be accepted for delivery. The engine absorbs such errors into its backoff
// counter; they never abort the mutation that produced the message.
type Broadcaster interface {
	Broadcast(msg any) error
}

// BroadcastFunc adapts a function to the Broadcaster interface.
type BroadcastFunc func(msg any) error

func (f BroadcastFunc) Broadcast(msg any) error { return f(msg) }

// StateEvent carries the countdown fields common to every timer message.
type StateEvent struct {
	Type          EventType `json:"type"`
	TimeRemaining int       `json:"timeRemaining"`
	IsActive      bool      `json:"isActive"`
}

// TimeAddedEvent announces a time extension.
type TimeAddedEvent struct {
	Type          EventType          `json:"type"`
	TimeRemaining int                `json:"timeRemaining"`
	IsActive      bool               `json:"isActive"`
	AddedTime     int                `json:"addedTime"`
	PreviousTime  int                `json:"previousTime"`
	Subscriber    *SubscriberDetails `json:"subscriber,omitempty"`
}

// SettingsUpdatedEvent carries the full merged settings after an update.
type SettingsUpdatedEvent struct {
	Type     EventType `json:"type"`
	Settings Settings  `json:"settings"`
}

// StyleUpdateEvent carries only the cosmetic style fields.
type StyleUpdateEvent struct {
	Type  EventType `json:"type"`
	Style Style     `json:"style"`
}

// SizeUpdateEvent carries the display size.
type SizeUpdateEvent struct {
	Type EventType `json:"type"`
	Size float64   `json:"size"`
}

// SubscriberDetails identifies who triggered a time extension and why. It is
// attached to time_added broadcasts and kept simpler than the outward
// subscription payload; both agree on TimeAdded.
type SubscriberDetails struct {
	Username  string `json:"username"`
	Tier      string `json:"tier"`
	Kind      string `json:"kind"`
	Count     int    `json:"count,omitempty"`
	TimeAdded int    `json:"timeAdded"`
}
