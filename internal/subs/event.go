package subs

import "strings"

// Tier is a subscription level determining the time-extension amount.
type Tier int

const (
	TierUnknown Tier = iota
	Tier1
	Tier2
	Tier3
	TierPrime
)

// Label returns the human-readable tier name carried in broadcast payloads.
func (t Tier) Label() string {
	switch t {
	case Tier1:
		return "Tier 1"
	case Tier2:
		return "Tier 2"
	case Tier3:
		return "Tier 3"
	case TierPrime:
		return "Prime"
	default:
		return "Unknown"
	}
}

// TierFromCode normalizes the tier codes seen on the wire: the short API
// form ("1", "2", "3", "prime") and the Twitch IRC sub-plan form ("1000",
// "2000", "3000", "Prime"). Anything else maps to TierUnknown.
func TierFromCode(code string) Tier {
	switch strings.ToLower(strings.TrimSpace(code)) {
	case "1", "1000":
		return Tier1
	case "2", "2000":
		return Tier2
	case "3", "3000":
		return Tier3
	case "prime":
		return TierPrime
	default:
		return TierUnknown
	}
}

// Kind describes what sort of subscription event occurred.
type Kind string

const (
	KindSub   Kind = "sub"
	KindResub Kind = "resub"
	KindGift  Kind = "gift"
)

// KindFromString normalizes external event-kind strings. Unrecognized kinds
// fall back to a plain sub so a garbled event still grants time.
func KindFromString(s string) Kind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "resub":
		return KindResub
	case "gift", "subgift", "submysterygift", "giftsub":
		return KindGift
	default:
		return KindSub
	}
}

// Event is a normalized subscription notification from the chat platform.
// It is transient: consumed exactly once to produce a time extension, never
// stored, never retried.
type Event struct {
	Username  string
	Tier      Tier
	Kind      Kind
	Count     int
	Recipient string
	Months    int
}
