package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ntbridge/ntbridge-go/pkg/metrics"
)

// Hub timing.
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxRequestSize = 64 * 1024

	// SendQueueSize is the number of events buffered per UI client.
	SendQueueSize = 256
)

// ErrHubClosed is returned by Emit after Close.
var ErrHubClosed = errors.New("hub closed")

// Event is the JSON envelope of a session event.
type Event struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

type uiClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub fans session events out to WebSocket clients and feeds their
// commands to a Commands executor. It implements session.EventSink.
type Hub struct {
	commands *Commands
	logger   *slog.Logger
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*uiClient]struct{}
	closed  bool

	wg sync.WaitGroup
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithLogger sets the hub logger.
func WithLogger(l *slog.Logger) HubOption {
	return func(h *Hub) { h.logger = l }
}

// WithMetrics records UI client counts and command results.
func WithMetrics(mt *metrics.Metrics) HubOption {
	return func(h *Hub) { h.metrics = mt }
}

// NewHub creates a hub. commands may be nil until SetCommands is called.
func NewHub(commands *Commands, opts ...HubOption) *Hub {
	h := &Hub{
		commands: commands,
		logger:   slog.Default(),
		clients:  make(map[*uiClient]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The bridge serves local dashboards from any origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SetCommands attaches the command executor. The hub is usually created
// before the session it serves, so it can be passed as the event sink.
func (h *Hub) SetCommands(c *Commands) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.commands = c
}

// Clients returns the number of connected UI clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Emit broadcasts an event to every UI client without blocking. Emitting
// with no clients connected succeeds.
func (h *Hub) Emit(event string, payload any) error {
	data, err := json.Marshal(Event{Event: event, Payload: payload})
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHubClosed
	}
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Warn("ui client too slow, event dropped", "client", c.id, "event", event)
		}
	}
	return nil
}

// ServeHTTP upgrades the request and serves the UI client until it leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	c := &uiClient{id: uuid.NewString(), conn: conn, send: make(chan []byte, SendQueueSize)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.wg.Add(2)
	h.mu.Unlock()

	h.metrics.SetUIClients(n)
	h.logger.Info("ui client connected", "client", c.id, "remote", r.RemoteAddr, "clients", n)

	go h.writePump(c)
	go h.readPump(c)
}

// Close disconnects every UI client and waits for their goroutines.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	for c := range h.clients {
		_ = c.conn.Close()
	}
	h.mu.Unlock()

	h.wg.Wait()
}

func (h *Hub) remove(c *uiClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	n := len(h.clients)
	h.mu.Unlock()

	_ = c.conn.Close()
	h.metrics.SetUIClients(n)
	h.logger.Info("ui client disconnected", "client", c.id, "clients", n)
}

func (h *Hub) readPump(c *uiClient) {
	defer h.wg.Done()
	defer h.remove(c)

	c.conn.SetReadLimit(maxRequestSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			h.logger.Debug("ignoring malformed request", "client", c.id, "error", err)
			continue
		}

		h.mu.Lock()
		commands := h.commands
		h.mu.Unlock()

		var resp Response
		if commands == nil {
			msg := "session not ready"
			resp = Response{ID: req.ID, Command: req.Command, Error: &msg}
		} else {
			resp = commands.Execute(context.Background(), req)
		}
		h.logger.Debug("command", "client", c.id, "command", req.Command, "error", resp.Error)

		out, err := json.Marshal(resp)
		if err != nil {
			continue
		}
		if !h.enqueue(c, out) {
			h.logger.Warn("ui client too slow, response dropped", "client", c.id, "command", req.Command)
		}
	}
}

// enqueue queues data for c unless it has left or its queue is full.
func (h *Hub) enqueue(c *uiClient, data []byte) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (h *Hub) writePump(c *uiClient) {
	defer h.wg.Done()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				_ = c.conn.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = c.conn.Close()
				return
			}
		}
	}
}
