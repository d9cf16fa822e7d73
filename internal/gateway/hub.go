package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ErrQueueFull reports that the hub's broadcast queue could not accept a
// message. This is the only delivery failure the hub surfaces to callers;
// everything past the queue is best-effort.
var ErrQueueFull = errors.New("broadcast queue full")

// Hub fans broadcast messages out to every connected observer. Delivery is
// best-effort: slow or dead connections are dropped, never waited on, and a
// newly connecting observer receives a single state snapshot rather than
// backfilled history.
type Hub struct {
	connections map[*Connection]bool
	mu          sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig

	broadcastCh chan []byte

	// snapshot supplies the attach-time state message for new observers.
	snapshot func() any
}

// Connection represents one WebSocket observer.
type Connection struct {
	ID   string
	Conn *websocket.Conn
	Send chan []byte
	Hub  *Hub

	ConnectedAt time.Time
	LastPing    time.Time
}

// ConnectionConfig holds configuration for observer connections.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	QueueSize       int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns the default observer connection settings.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		QueueSize:       1000,
		CheckOrigin: func(r *http.Request) bool {
			// Overlays are served from arbitrary origins (OBS browser
			// sources); the control surface carries no credentials.
			return true
		},
	}
}

// NewHub creates the fan-out hub. snapshot supplies the message sent to each
// observer on attach and may be nil.
func NewHub(config ConnectionConfig, snapshot func() any) *Hub {
	if config.QueueSize <= 0 {
		config.QueueSize = 1000
	}
	return &Hub{
		connections: make(map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan []byte, config.QueueSize),
		snapshot:    snapshot,
	}
}

// Run processes queued broadcasts until the context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	log.Info().Msg("fan-out hub started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("fan-out hub shutting down")
			h.closeAll()
			return
		case data := <-h.broadcastCh:
			h.fanOut(data)
		}
	}
}

// Broadcast implements the engine's delivery capability: marshal once,
// enqueue without blocking. A full queue is the delivery failure the engine
// counts; it never propagates further than the returned error.
func (h *Hub) Broadcast(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal broadcast: %w", err)
	}
	select {
	case h.broadcastCh <- data:
		return nil
	default:
		log.Warn().Msg("broadcast queue full, dropping message")
		return ErrQueueFull
	}
}

// HandleObserver upgrades an HTTP request to an observer connection.
func (h *Hub) HandleObserver(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade observer connection")
		return
	}

	c := &Connection{
		ID:          uuid.New().String(),
		Conn:        conn,
		Send:        make(chan []byte, 256),
		Hub:         h,
		ConnectedAt: time.Now(),
		LastPing:    time.Now(),
	}
	// Attach-time snapshot so the overlay renders immediately. Enqueued
	// before registration so it precedes any live broadcast.
	if h.snapshot != nil {
		if data, err := json.Marshal(h.snapshot()); err == nil {
			c.Send <- data
		}
	}
	h.register(c)

	go c.writePump()
	go c.readPump()

	log.Info().Str("connection_id", c.ID).Str("remote", r.RemoteAddr).Msg("observer connected")
}

func (h *Hub) register(c *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connections[c] = true
	log.Debug().Str("connection_id", c.ID).Int("total", len(h.connections)).Msg("observer registered")
}

func (h *Hub) unregister(c *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.connections[c]; ok {
		delete(h.connections, c)
		close(c.Send)
		log.Info().Str("connection_id", c.ID).Int("total", len(h.connections)).Msg("observer disconnected")
	}
}

func (h *Hub) fanOut(data []byte) {
	// Sends happen under the read lock so unregister cannot close a Send
	// channel mid-delivery. Slow observers are pruned afterwards rather than
	// blocking the fan-out.
	h.mu.RLock()
	var slow []*Connection
	for c := range h.connections {
		select {
		case c.Send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		log.Warn().Str("connection_id", c.ID).Msg("observer send buffer full, closing")
		h.unregister(c)
		c.Conn.Close()
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.connections {
		delete(h.connections, c)
		close(c.Send)
		c.Conn.Close()
	}
}

// Stats reports the current observer population.
func (h *Hub) Stats() map[string]any {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return map[string]any{
		"connected_observers": len(h.connections),
		"queue_depth":         len(h.broadcastCh),
	}
}

// RegisterRoutes registers the observer WebSocket route.
func (h *Hub) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", h.HandleObserver)
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Hub.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Hub.unregister(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Hub.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Debug().Err(err).Str("connection_id", c.ID).Msg("observer write failed")
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Hub.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			c.LastPing = time.Now()
		}
	}
}

func (c *Connection) readPump() {
	defer func() {
		c.Hub.unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Hub.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Hub.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Hub.config.ReadTimeout))
		c.LastPing = time.Now()
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Debug().Err(err).Str("connection_id", c.ID).Msg("unexpected observer close")
			}
			return
		}
		// Observers are read-only; inbound frames only refresh deadlines.
		c.Conn.SetReadDeadline(time.Now().Add(c.Hub.config.ReadTimeout))
	}
}
