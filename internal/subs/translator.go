package subs

import (
	"github.com/rs/zerolog/log"

	"github.com/subathon-tools/subtimer/internal/timer"
)

// Grant is the result of translating one subscription event under the
// current tier policy: the seconds to add, the compact details attached to
// the timer's time_added broadcast, and the richer outward subscription
// payload. Both payloads agree on TimeAdded.
type Grant struct {
	Seconds int
	Details timer.SubscriberDetails
	Payload Message
}

// Message is the outward subscription broadcast.
type Message struct {
	Type      timer.EventType `json:"type"`
	Username  string          `json:"username"`
	Tier      string          `json:"tier"`
	Kind      string          `json:"kind"`
	Count     int             `json:"count"`
	Recipient string          `json:"recipient,omitempty"`
	Months    int             `json:"months,omitempty"`
	TimeAdded int             `json:"timeAdded"`
}

// secondsPerUnit resolves a tier to its configured extension amount. An
// unknown tier is a policy exception, not a rejection: gifts fall back to
// the gift amount, everything else to the regular amount, so a malformed
// subscription still grants time.
func secondsPerUnit(tier Tier, kind Kind, s timer.Settings) int {
	switch tier {
	case Tier1:
		return s.RegularSubTime
	case Tier2:
		return s.Tier2SubTime
	case Tier3:
		return s.Tier3SubTime
	case TierPrime:
		return s.PrimeSubTime
	default:
		if kind == KindGift {
			log.Warn().Str("kind", string(kind)).Msg("unknown tier on gift, falling back to gift amount")
			return s.GiftSubTime
		}
		log.Warn().Str("kind", string(kind)).Msg("unknown tier, falling back to regular amount")
		return s.RegularSubTime
	}
}

// Translate maps a subscription event and the current settings to a Grant.
// Pure: no state is read or written beyond the arguments.
func Translate(ev Event, s timer.Settings) Grant {
	count := ev.Count
	if count < 1 {
		count = 1
	}

	seconds := secondsPerUnit(ev.Tier, ev.Kind, s)
	if ev.Kind == KindGift {
		seconds *= count
	}

	details := timer.SubscriberDetails{
		Username:  ev.Username,
		Tier:      ev.Tier.Label(),
		Kind:      string(ev.Kind),
		Count:     count,
		TimeAdded: seconds,
	}
	payload := Message{
		Type:      timer.EventSubscription,
		Username:  ev.Username,
		Tier:      ev.Tier.Label(),
		Kind:      string(ev.Kind),
		Count:     count,
		Recipient: ev.Recipient,
		Months:    ev.Months,
		TimeAdded: seconds,
	}
	return Grant{Seconds: seconds, Details: details, Payload: payload}
}

// Translator feeds translated grants into the timer engine and announces
// them to observers.
type Translator struct {
	engine      *timer.Engine
	broadcaster timer.Broadcaster
}

// NewTranslator wires the translator to an engine and an optional outward
// broadcaster for subscription announcements.
func NewTranslator(engine *timer.Engine, b timer.Broadcaster) *Translator {
	return &Translator{engine: engine, broadcaster: b}
}

// Apply translates the event under the engine's current settings and adds
// the granted time. A zero-second grant (tier configured to 0) is applied as
// a no-op but still announced. Returns the seconds granted.
func (t *Translator) Apply(ev Event) int {
	grant := Translate(ev, t.engine.GetSettings())

	log.Info().
		Str("username", ev.Username).
		Str("tier", ev.Tier.Label()).
		Str("kind", string(ev.Kind)).
		Int("count", grant.Details.Count).
		Int("seconds", grant.Seconds).
		Msg("subscription event")

	if grant.Seconds > 0 {
		details := grant.Details
		if _, err := t.engine.AddTime(float64(grant.Seconds), &details); err != nil {
			log.Warn().Err(err).Msg("subscription grant rejected by engine")
			return 0
		}
	}
	if t.broadcaster != nil {
		if err := t.broadcaster.Broadcast(grant.Payload); err != nil {
			log.Warn().Err(err).Msg("subscription announcement dropped")
		}
	}
	return grant.Seconds
}
