package twitch

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/subathon-tools/subtimer/internal/subs"
)

const chatEndpoint = "wss://irc-ws.chat.twitch.tv:443"

// Config holds the chat connection parameters. With an empty Token the
// client connects anonymously, which is enough to observe USERNOTICEs.
type Config struct {
	Channel string
	Nick    string
	Token   string
}

// Handler consumes normalized subscription events.
type Handler func(subs.Event)

// Client maintains a Twitch chat connection and emits normalized
// subscription events. Connection loss is retried with exponential backoff
// indefinitely; the countdown never depends on chat liveness.
type Client struct {
	cfg     Config
	handler Handler
	seen    *dedup
}

// NewClient creates a chat client for one channel.
func NewClient(cfg Config, handler Handler) *Client {
	return &Client{
		cfg:     cfg,
		handler: handler,
		seen:    newDedup(512),
	}
}

// Run connects and reconnects until the context is cancelled.
func (c *Client) Run(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 0
	bo.MaxInterval = time.Minute

	op := func() error {
		err := c.session(ctx)
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		log.Warn().Err(err).Dur("retry_in", next).Str("channel", c.cfg.Channel).Msg("chat connection lost, reconnecting")
	}

	err := backoff.RetryNotify(op, backoff.WithContext(bo, ctx), notify)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// session runs one connection until it drops.
func (c *Client) session(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, chatEndpoint, nil)
	if err != nil {
		return fmt.Errorf("dial chat: %w", err)
	}
	defer conn.Close()

	// Unblock the read loop when the context ends.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	if err := c.login(conn); err != nil {
		return err
	}
	log.Info().Str("channel", c.cfg.Channel).Msg("chat connected")

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read chat: %w", err)
		}
		for _, line := range strings.Split(string(data), "\r\n") {
			if line == "" {
				continue
			}
			c.handleLine(conn, line)
		}
	}
}

func (c *Client) login(conn *websocket.Conn) error {
	nick := c.cfg.Nick
	lines := []string{"CAP REQ :twitch.tv/tags twitch.tv/commands"}
	if c.cfg.Token != "" {
		token := c.cfg.Token
		if !strings.HasPrefix(token, "oauth:") {
			token = "oauth:" + token
		}
		lines = append(lines, "PASS "+token)
	} else {
		nick = fmt.Sprintf("justinfan%d", 10000+rand.Intn(80000))
	}
	lines = append(lines,
		"NICK "+nick,
		"JOIN #"+strings.ToLower(strings.TrimPrefix(c.cfg.Channel, "#")),
	)
	for _, line := range lines {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
			return fmt.Errorf("chat login: %w", err)
		}
	}
	return nil
}

func (c *Client) handleLine(conn *websocket.Conn, line string) {
	msg := parseIRC(line)
	switch msg.Command {
	case "PING":
		payload := "PONG"
		if len(msg.Params) > 0 {
			payload += " :" + msg.Params[len(msg.Params)-1]
		}
		if err := conn.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
			log.Warn().Err(err).Msg("pong failed")
		}
	case "USERNOTICE":
		if c.seen.seen(msg.Tags["id"]) {
			log.Debug().Str("id", msg.Tags["id"]).Msg("duplicate notice dropped")
			return
		}
		ev, ok := noticeToEvent(msg)
		if !ok {
			log.Debug().Str("msg_id", msg.Tags["msg-id"]).Msg("ignoring non-subscription notice")
			return
		}
		c.handler(ev)
	case "NOTICE":
		if len(msg.Params) > 0 {
			log.Info().Str("notice", msg.Params[len(msg.Params)-1]).Msg("chat server notice")
		}
	case "RECONNECT":
		// The server is about to drop us; the backoff loop handles it.
		log.Info().Msg("chat server requested reconnect")
	}
}
