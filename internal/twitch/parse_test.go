package twitch

import (
	"testing"

	"github.com/subathon-tools/subtimer/internal/subs"
)

func TestParseIRC_ping(t *testing.T) {
	msg := parseIRC("PING :tmi.twitch.tv")
	if msg.Command != "PING" {
		t.Errorf("command = %q, want PING", msg.Command)
	}
	if len(msg.Params) != 1 || msg.Params[0] != "tmi.twitch.tv" {
		t.Errorf("params = %v", msg.Params)
	}
}

func TestParseIRC_taggedNotice(t *testing.T) {
	line := `@badge-info=subscriber/3;display-name=Night\sOwl;id=abc-123;login=nightowl;msg-id=resub;msg-param-cumulative-months=3;msg-param-sub-plan=2000 :tmi.twitch.tv USERNOTICE #somechannel :back again!`
	msg := parseIRC(line)

	if msg.Command != "USERNOTICE" {
		t.Fatalf("command = %q", msg.Command)
	}
	if msg.Prefix != "tmi.twitch.tv" {
		t.Errorf("prefix = %q", msg.Prefix)
	}
	if msg.Tags["display-name"] != "Night Owl" {
		t.Errorf("escaped tag = %q, want %q", msg.Tags["display-name"], "Night Owl")
	}
	if len(msg.Params) != 2 || msg.Params[0] != "#somechannel" || msg.Params[1] != "back again!" {
		t.Errorf("params = %v", msg.Params)
	}
}

func TestNoticeToEvent(t *testing.T) {
	tests := []struct {
		name string
		line string
		want subs.Event
		ok   bool
	}{
		{
			name: "new sub",
			line: `@display-name=Viewer;msg-id=sub;msg-param-sub-plan=1000 :tmi.twitch.tv USERNOTICE #ch`,
			want: subs.Event{Username: "Viewer", Tier: subs.Tier1, Kind: subs.KindSub, Count: 1},
			ok:   true,
		},
		{
			name: "resub with months",
			line: `@display-name=Viewer;msg-id=resub;msg-param-cumulative-months=13;msg-param-sub-plan=Prime :tmi.twitch.tv USERNOTICE #ch`,
			want: subs.Event{Username: "Viewer", Tier: subs.TierPrime, Kind: subs.KindResub, Count: 1, Months: 13},
			ok:   true,
		},
		{
			name: "single gift with recipient",
			line: `@display-name=Gifter;msg-id=subgift;msg-param-recipient-display-name=Lucky;msg-param-sub-plan=2000 :tmi.twitch.tv USERNOTICE #ch`,
			want: subs.Event{Username: "Gifter", Tier: subs.Tier2, Kind: subs.KindGift, Count: 1, Recipient: "Lucky"},
			ok:   true,
		},
		{
			name: "mystery gift bundle",
			line: `@display-name=Gifter;msg-id=submysterygift;msg-param-mass-gift-count=5;msg-param-sub-plan=3000 :tmi.twitch.tv USERNOTICE #ch`,
			want: subs.Event{Username: "Gifter", Tier: subs.Tier3, Kind: subs.KindGift, Count: 5},
			ok:   true,
		},
		{
			name: "unknown sub plan still yields an event",
			line: `@display-name=Viewer;msg-id=sub;msg-param-sub-plan=9999 :tmi.twitch.tv USERNOTICE #ch`,
			want: subs.Event{Username: "Viewer", Tier: subs.TierUnknown, Kind: subs.KindSub, Count: 1},
			ok:   true,
		},
		{
			name: "raid is not a subscription",
			line: `@display-name=Raider;msg-id=raid;msg-param-viewerCount=20 :tmi.twitch.tv USERNOTICE #ch`,
			ok:   false,
		},
		{
			name: "no attributable user",
			line: `@msg-id=sub;msg-param-sub-plan=1000 :tmi.twitch.tv USERNOTICE #ch`,
			ok:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := noticeToEvent(parseIRC(tt.line))
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && got != tt.want {
				t.Errorf("event = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDedup(t *testing.T) {
	d := newDedup(2)

	if d.seen("a") {
		t.Error("first occurrence of a reported as seen")
	}
	if !d.seen("a") {
		t.Error("duplicate a not caught")
	}
	if d.seen("b") || d.seen("c") {
		t.Error("fresh ids reported as seen")
	}
	// a evicted by the ring; a replay this old is acceptable to re-admit.
	if d.seen("a") {
		t.Error("evicted id should no longer be tracked")
	}
	if d.seen("") || d.seen("") {
		t.Error("empty ids must never deduplicate")
	}
}
