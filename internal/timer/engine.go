package timer

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

var (
	// ErrInvalidSeconds is returned when an operation receives a seconds
	// value that is not a positive finite number.
	ErrInvalidSeconds = errors.New("invalid seconds value")

	// ErrRecoveryThrottled is returned when Recover is called again before
	// the cooldown since the previous attempt has elapsed.
	ErrRecoveryThrottled = errors.New("recovery attempted too recently")
)

const (
	// DefaultDuration seeds the countdown when no snapshot exists and is the
	// fallback for Reset with an invalid argument.
	DefaultDuration = 3600

	maxBroadcastErrors  = 10
	broadcastStaleAfter = 60 * time.Second
	recoveryCooldown    = 30 * time.Second
)

// State is a read-only snapshot of the engine.
type State struct {
	TimeRemaining int       `json:"timeRemaining"`
	IsActive      bool      `json:"isActive"`
	Settings      Settings  `json:"settings"`
	LastUpdate    time.Time `json:"lastUpdate"`
	ErrorCount    int       `json:"errorCount"`
}

// Engine owns the authoritative countdown state. All mutations serialize
// behind a single mutex; the countdown value is always recomputed from
// absolute wall-clock timestamps rather than accumulated tick counts, so a
// multi-day run cannot drift.
type Engine struct {
	mu    sync.Mutex
	clock clockwork.Clock

	broadcaster Broadcaster
	saveHook    func()

	remaining int // authoritative while stopped
	active    bool
	settings  Settings

	// Ephemeral while active; the running countdown derives from these.
	startedAt     time.Time
	baseRemaining int

	// Tick scheduling. tickGen invalidates in-flight ticks from a previous
	// run; stopCh releases their goroutines.
	tickGen   uint64
	tickTimer clockwork.Timer
	stopCh    chan struct{}

	errorCount    int
	everBroadcast bool
	lastDelivered time.Time
	lastRecovery  time.Time
	lastUpdate    time.Time
}

// NewEngine constructs a stopped engine with default settings and duration.
// The broadcaster and save hook are wired afterwards; both are optional and
// the engine stays correct if either is absent.
func NewEngine(clock clockwork.Clock) *Engine {
	return &Engine{
		clock:      clock,
		remaining:  DefaultDuration,
		settings:   DefaultSettings(),
		lastUpdate: clock.Now(),
	}
}

// SetBroadcaster installs the delivery capability.
func (e *Engine) SetBroadcaster(b Broadcaster) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.broadcaster = b
}

// SetSaveHook installs the persistence trigger. The hook must be
// non-blocking; the engine invokes it fire-and-forget after mutations worth
// persisting.
func (e *Engine) SetSaveHook(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.saveHook = fn
}

// Start begins the countdown. If the timer is already running it is stopped
// first, so Start never double-schedules ticks.
func (e *Engine) Start() State {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	if e.active {
		e.haltLocked(now)
	}
	e.startLocked(now)

	log.Info().Int("time_remaining", e.remaining).Msg("timer started")
	e.broadcastLocked(StateEvent{Type: EventTimerStarted, TimeRemaining: e.remaining, IsActive: true})
	return e.stateLocked(now)
}

// startLocked flips the engine into the running state and schedules the
// first tick. Caller holds the mutex and guarantees the engine is stopped.
func (e *Engine) startLocked(now time.Time) {
	e.active = true
	e.startedAt = now
	e.baseRemaining = e.remaining
	e.lastUpdate = now
	e.stopCh = make(chan struct{})
	e.scheduleTickLocked(e.tickGen, time.Second)
}

// Stop freezes the countdown at the remaining value derived from elapsed
// wall-clock time. Calling Stop on a stopped timer is a no-op beyond the
// broadcast.
func (e *Engine) Stop() State {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	if e.active {
		e.haltLocked(now)
		e.lastUpdate = now
		log.Info().Int("time_remaining", e.remaining).Msg("timer stopped")
	}
	e.broadcastLocked(StateEvent{Type: EventTimerStopped, TimeRemaining: e.remaining, IsActive: false})
	e.requestSaveLocked()
	return e.stateLocked(now)
}

// haltLocked cancels the tick schedule and freezes remaining from elapsed
// time. Caller holds the mutex.
func (e *Engine) haltLocked(now time.Time) {
	e.remaining = e.remainingLocked(now)
	e.active = false
	e.startedAt = time.Time{}
	e.baseRemaining = 0
	e.cancelTicksLocked()
}

// Reset stops the countdown and rewinds it to the given duration. Invalid
// values fall back to DefaultDuration.
func (e *Engine) Reset(seconds float64) State {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	if e.active {
		e.haltLocked(now)
	}

	secs := DefaultDuration
	if !math.IsNaN(seconds) && !math.IsInf(seconds, 0) && seconds >= 0 {
		secs = int(math.Floor(seconds))
	} else {
		log.Warn().Float64("seconds", seconds).Msg("reset with invalid duration, using default")
	}
	e.remaining = secs
	e.lastUpdate = now

	log.Info().Int("time_remaining", e.remaining).Msg("timer reset")
	e.broadcastLocked(StateEvent{Type: EventTimerReset, TimeRemaining: e.remaining, IsActive: false})
	e.requestSaveLocked()
	return e.stateLocked(now)
}

// AddTime extends the countdown. Non-positive or non-finite values are
// rejected with ErrInvalidSeconds and leave the state untouched. While the
// timer runs, the remaining value is first reconciled from elapsed time and
// the running base is re-based so the addition lands without a jump.
func (e *Engine) AddTime(seconds float64, sub *SubscriberDetails) (State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds <= 0 {
		log.Warn().Float64("seconds", seconds).Msg("ignoring invalid time addition")
		return e.stateLocked(now), ErrInvalidSeconds
	}
	secs := int(math.Floor(seconds))
	if secs <= 0 {
		log.Warn().Float64("seconds", seconds).Msg("ignoring sub-second time addition")
		return e.stateLocked(now), ErrInvalidSeconds
	}

	previous := e.remainingLocked(now)
	if e.active {
		e.baseRemaining += secs
	}
	e.remaining = previous + secs
	e.lastUpdate = now

	ev := log.Info().Int("added", secs).Int("previous", previous).Int("time_remaining", e.remaining)
	if sub != nil {
		ev = ev.Str("username", sub.Username).Str("tier", sub.Tier)
	}
	ev.Msg("time added")

	e.broadcastLocked(TimeAddedEvent{
		Type:          EventTimeAdded,
		TimeRemaining: e.remaining,
		IsActive:      e.active,
		AddedTime:     secs,
		PreviousTime:  previous,
		Subscriber:    sub,
	})
	return e.stateLocked(now), nil
}

// GetState returns a snapshot with remaining time freshly recomputed when
// the countdown is running.
func (e *Engine) GetState() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stateLocked(e.clock.Now())
}

// GetSettings returns a copy of the current settings.
func (e *Engine) GetSettings() Settings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings
}

// UpdateSettings merges a partial update field by field. Invalid fields are
// dropped without failing the rest of the update. The merged settings are
// broadcast, followed by style/size deltas when cosmetic fields moved.
func (e *Engine) UpdateSettings(partial map[string]any) Settings {
	e.mu.Lock()
	defer e.mu.Unlock()

	styleChanged, sizeChanged := applyPartial(&e.settings, partial)
	e.lastUpdate = e.clock.Now()

	log.Info().Int("fields", len(partial)).Bool("style_changed", styleChanged).Msg("settings updated")
	e.broadcastLocked(SettingsUpdatedEvent{Type: EventSettingsUpdated, Settings: e.settings})
	if styleChanged {
		e.broadcastLocked(StyleUpdateEvent{Type: EventTimerStyleUpdate, Style: e.settings.Style()})
	}
	if sizeChanged {
		e.broadcastLocked(SizeUpdateEvent{Type: EventTimerSizeUpdate, Size: e.settings.TimerSize})
	}
	e.requestSaveLocked()
	return e.settings
}

// Restore seeds the engine from a reconciled snapshot: remaining time and
// settings land as-is, and the countdown starts when autoStart is set. Used
// once at boot, before any observer is attached.
func (e *Engine) Restore(remaining int, settings Settings, autoStart bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	if e.active {
		e.haltLocked(now)
	}
	if remaining < 0 {
		remaining = 0
	}
	e.remaining = remaining
	e.settings = settings
	e.lastUpdate = now

	if autoStart && remaining > 0 {
		e.startLocked(now)
		e.broadcastLocked(StateEvent{Type: EventTimerStarted, TimeRemaining: e.remaining, IsActive: true})
	}
	log.Info().Int("time_remaining", remaining).Bool("auto_start", autoStart).Msg("state restored")
}

// remainingLocked derives the current remaining seconds. While the timer is
// active the value comes from absolute timestamps, never from tick counts.
func (e *Engine) remainingLocked(now time.Time) int {
	if !e.active {
		return e.remaining
	}
	elapsed := int(now.Sub(e.startedAt) / time.Second)
	remaining := e.baseRemaining - elapsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (e *Engine) stateLocked(now time.Time) State {
	return State{
		TimeRemaining: e.remainingLocked(now),
		IsActive:      e.active,
		Settings:      e.settings,
		LastUpdate:    e.lastUpdate,
		ErrorCount:    e.errorCount,
	}
}

// broadcastLocked hands a message to the delivery capability with error
// containment: failures bump a counter, ten consecutive failures disable
// further attempts, a success resets the counter. Never aborts the caller.
func (e *Engine) broadcastLocked(msg any) {
	if e.broadcaster == nil {
		return
	}
	if e.errorCount >= maxBroadcastErrors {
		return
	}
	e.everBroadcast = true
	if err := e.broadcaster.Broadcast(msg); err != nil {
		e.errorCount++
		if e.errorCount >= maxBroadcastErrors {
			log.Error().Err(err).Int("errors", e.errorCount).Msg("broadcasting disabled after repeated failures")
		} else {
			log.Warn().Err(err).Int("errors", e.errorCount).Msg("broadcast failed")
		}
		return
	}
	e.errorCount = 0
	e.lastDelivered = e.clock.Now()
}

func (e *Engine) requestSaveLocked() {
	if e.saveHook != nil {
		e.saveHook()
	}
}
