package twitch

import (
	"strconv"
	"strings"

	"github.com/subathon-tools/subtimer/internal/subs"
)

// ircMessage is one parsed IRCv3 line from the Twitch chat socket.
type ircMessage struct {
	Tags    map[string]string
	Prefix  string
	Command string
	Params  []string
}

// parseIRC splits a raw IRC line into tags, prefix, command and params.
// Twitch lines look like:
//
//	@badge-info=;msg-id=sub;... :tmi.twitch.tv USERNOTICE #channel :message
func parseIRC(line string) ircMessage {
	msg := ircMessage{Tags: map[string]string{}}
	line = strings.TrimRight(line, "\r\n")

	if strings.HasPrefix(line, "@") {
		rawTags, rest, _ := strings.Cut(line[1:], " ")
		line = rest
		for _, tag := range strings.Split(rawTags, ";") {
			key, val, _ := strings.Cut(tag, "=")
			msg.Tags[key] = unescapeTag(val)
		}
	}

	if strings.HasPrefix(line, ":") {
		prefix, rest, _ := strings.Cut(line[1:], " ")
		msg.Prefix = prefix
		line = rest
	}

	if trailing := strings.Index(line, " :"); trailing >= 0 {
		msg.Params = strings.Fields(line[:trailing])
		msg.Params = append(msg.Params, line[trailing+2:])
	} else {
		msg.Params = strings.Fields(line)
	}
	if len(msg.Params) > 0 {
		msg.Command = msg.Params[0]
		msg.Params = msg.Params[1:]
	}
	return msg
}

// unescapeTag reverses IRCv3 tag value escaping.
func unescapeTag(v string) string {
	if !strings.Contains(v, "\\") {
		return v
	}
	var b strings.Builder
	b.Grow(len(v))
	for i := 0; i < len(v); i++ {
		if v[i] != '\\' || i == len(v)-1 {
			b.WriteByte(v[i])
			continue
		}
		i++
		switch v[i] {
		case ':':
			b.WriteByte(';')
		case 's':
			b.WriteByte(' ')
		case 'r':
			b.WriteByte('\r')
		case 'n':
			b.WriteByte('\n')
		case '\\':
			b.WriteByte('\\')
		default:
			b.WriteByte(v[i])
		}
	}
	return b.String()
}

// noticeToEvent converts a USERNOTICE into a normalized subscription event.
// Returns false for notices that are not subscriptions (raids, rituals,
// announcements) or that are too malformed to attribute.
func noticeToEvent(msg ircMessage) (subs.Event, bool) {
	kind, ok := subKind(msg.Tags["msg-id"])
	if !ok {
		return subs.Event{}, false
	}

	username := msg.Tags["display-name"]
	if username == "" {
		username = msg.Tags["login"]
	}
	if username == "" {
		return subs.Event{}, false
	}

	count := 1
	if kind == subs.KindGift {
		if n, err := strconv.Atoi(msg.Tags["msg-param-mass-gift-count"]); err == nil && n > 0 {
			count = n
		}
	}

	months := 0
	if n, err := strconv.Atoi(msg.Tags["msg-param-cumulative-months"]); err == nil && n > 0 {
		months = n
	}

	return subs.Event{
		Username:  username,
		Tier:      subs.TierFromCode(msg.Tags["msg-param-sub-plan"]),
		Kind:      kind,
		Count:     count,
		Recipient: msg.Tags["msg-param-recipient-display-name"],
		Months:    months,
	}, true
}

func subKind(msgID string) (subs.Kind, bool) {
	switch msgID {
	case "sub":
		return subs.KindSub, true
	case "resub":
		return subs.KindResub, true
	case "subgift", "submysterygift", "anonsubgift", "anonsubmysterygift":
		return subs.KindGift, true
	default:
		return "", false
	}
}

// dedup suppresses duplicate notice IDs with a fixed-size ring so replayed
// or re-delivered notices never grant time twice.
type dedup struct {
	order []string
	set   map[string]struct{}
	next  int
}

func newDedup(size int) *dedup {
	return &dedup{
		order: make([]string, size),
		set:   make(map[string]struct{}, size),
	}
}

// seen records id and reports whether it was already present. Empty IDs are
// never deduplicated.
func (d *dedup) seen(id string) bool {
	if id == "" {
		return false
	}
	if _, ok := d.set[id]; ok {
		return true
	}
	if old := d.order[d.next]; old != "" {
		delete(d.set, old)
	}
	d.order[d.next] = id
	d.set[id] = struct{}{}
	d.next = (d.next + 1) % len(d.order)
	return false
}
