package subs

import (
	"testing"

	"github.com/jonboulle/clockwork"

	"github.com/subathon-tools/subtimer/internal/timer"
)

func policy() timer.Settings {
	s := timer.DefaultSettings()
	s.RegularSubTime = 60
	s.Tier2SubTime = 120
	s.Tier3SubTime = 180
	s.PrimeSubTime = 90
	s.GiftSubTime = 30
	return s
}

func TestTranslate_tierMapping(t *testing.T) {
	tests := []struct {
		name string
		ev   Event
		want int
	}{
		{"tier1 sub", Event{Tier: Tier1, Kind: KindSub, Count: 1}, 60},
		{"tier2 resub", Event{Tier: Tier2, Kind: KindResub, Count: 1}, 120},
		{"tier3 sub", Event{Tier: Tier3, Kind: KindSub, Count: 1}, 180},
		{"prime sub", Event{Tier: TierPrime, Kind: KindSub, Count: 1}, 90},
		{"tier2 gift of five", Event{Tier: Tier2, Kind: KindGift, Count: 5}, 600},
		{"gift count multiplies gift fallback", Event{Tier: TierUnknown, Kind: KindGift, Count: 4}, 120},
		{"unknown tier non-gift falls back to regular", Event{Tier: TierUnknown, Kind: KindSub, Count: 1}, 60},
		{"zero count treated as one", Event{Tier: Tier1, Kind: KindSub, Count: 0}, 60},
		{"non-gift count does not multiply", Event{Tier: Tier1, Kind: KindResub, Count: 7}, 60},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			grant := Translate(tt.ev, policy())
			if grant.Seconds != tt.want {
				t.Errorf("seconds = %d, want %d", grant.Seconds, tt.want)
			}
			if grant.Details.TimeAdded != grant.Payload.TimeAdded {
				t.Errorf("payloads disagree on timeAdded: %d vs %d", grant.Details.TimeAdded, grant.Payload.TimeAdded)
			}
			if grant.Payload.TimeAdded != tt.want {
				t.Errorf("payload timeAdded = %d, want %d", grant.Payload.TimeAdded, tt.want)
			}
		})
	}
}

func TestTierFromCode(t *testing.T) {
	tests := []struct {
		code string
		want Tier
	}{
		{"1", Tier1}, {"1000", Tier1},
		{"2", Tier2}, {"2000", Tier2},
		{"3", Tier3}, {"3000", Tier3},
		{"prime", TierPrime}, {"Prime", TierPrime},
		{"", TierUnknown}, {"9000", TierUnknown}, {"vip", TierUnknown},
	}
	for _, tt := range tests {
		if got := TierFromCode(tt.code); got != tt.want {
			t.Errorf("TierFromCode(%q) = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestApply_feedsEngine(t *testing.T) {
	clk := clockwork.NewFakeClock()
	eng := timer.NewEngine(clk)
	eng.UpdateSettings(map[string]any{"tier2SubTime": float64(120)})

	var announced []any
	tr := NewTranslator(eng, timer.BroadcastFunc(func(msg any) error {
		announced = append(announced, msg)
		return nil
	}))

	before := eng.GetState().TimeRemaining
	got := tr.Apply(Event{Username: "gifter", Tier: Tier2, Kind: KindGift, Count: 5})
	if got != 600 {
		t.Fatalf("Apply granted %d, want 600", got)
	}
	if after := eng.GetState().TimeRemaining; after != before+600 {
		t.Errorf("remaining = %d, want %d", after, before+600)
	}
	if len(announced) != 1 {
		t.Fatalf("announcements = %d, want 1", len(announced))
	}
	msg, ok := announced[0].(Message)
	if !ok || msg.Type != timer.EventSubscription || msg.TimeAdded != 600 {
		t.Errorf("unexpected announcement: %#v", announced[0])
	}
}

func TestApply_zeroPolicyStillAnnounces(t *testing.T) {
	clk := clockwork.NewFakeClock()
	eng := timer.NewEngine(clk)
	eng.UpdateSettings(map[string]any{"regularSubTime": float64(0)})

	var announced int
	tr := NewTranslator(eng, timer.BroadcastFunc(func(msg any) error {
		announced++
		return nil
	}))

	before := eng.GetState().TimeRemaining
	if got := tr.Apply(Event{Username: "viewer", Tier: Tier1, Kind: KindSub}); got != 0 {
		t.Errorf("granted %d, want 0", got)
	}
	if after := eng.GetState().TimeRemaining; after != before {
		t.Errorf("remaining changed on zero grant: %d -> %d", before, after)
	}
	if announced != 1 {
		t.Errorf("announcements = %d, want 1", announced)
	}
}
