package bridge

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/subathon-tools/subtimer/internal/timer"
)

// DefaultSubject is the NATS subject timer events publish on.
const DefaultSubject = "subathon.timer.events"

// Publisher mirrors every broadcast message onto a NATS subject so external
// overlay infrastructure can consume the same event stream the WebSocket
// observers see. Publishing is buffered client-side and never blocks the
// engine.
type Publisher struct {
	conn    *nats.Conn
	subject string
}

// Connect dials NATS and returns a publisher on the given subject. An empty
// subject selects DefaultSubject.
func Connect(url, subject string) (*Publisher, error) {
	if subject == "" {
		subject = DefaultSubject
	}
	conn, err := nats.Connect(url,
		nats.Name("subtimer"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	log.Info().Str("url", url).Str("subject", subject).Msg("nats event bridge connected")
	return &Publisher{conn: conn, subject: subject}, nil
}

// Broadcast implements timer.Broadcaster.
func (p *Publisher) Broadcast(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}

// multi fans one broadcast out to several sinks.
type multi []timer.Broadcaster

// Multi composes broadcasters into one capability. Every sink sees every
// message; the combined error joins the per-sink failures so the engine's
// containment still sees a failure when any sink rejects.
func Multi(sinks ...timer.Broadcaster) timer.Broadcaster {
	if len(sinks) == 1 {
		return sinks[0]
	}
	return multi(sinks)
}

func (m multi) Broadcast(msg any) error {
	var errs []error
	for _, sink := range m {
		if err := sink.Broadcast(msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
