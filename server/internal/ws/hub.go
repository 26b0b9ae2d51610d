package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/thermowatch/thermowatch/server/internal/api"
	"github.com/thermowatch/thermowatch/server/internal/dashboard"
)

// EventDashboard is the event name of every message the hub sends.
const EventDashboard = "dashboard"

const (
	writeTimeout = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10 // must stay below pongWait

	// Dashboards are pushed on every change, so a client that falls this
	// many messages behind is dropped.
	sendBufSize = 16

	// Clients never send data frames; anything larger is a protocol abuse.
	readLimit = 512
)

// Message is the JSON envelope sent to clients.
type Message struct {
	Event string                `json:"event"`
	Data  api.DashboardResponse `json:"data"`
}

// Hub manages WebSocket client connections and pushes the dashboard to all of
// them every interval and whenever Broadcast is called.
type Hub struct {
	ctrl     *dashboard.Controller
	interval time.Duration
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// client represents one connected WebSocket client.
type client struct {
	conn *websocket.Conn
	send chan []byte
}

// New creates a Hub that reads from ctrl and broadcasts every interval.
// allowedOrigins limits browser origins; empty or "*" accepts any.
func New(ctrl *dashboard.Controller, interval time.Duration, allowedOrigins ...string) *Hub {
	return &Hub{
		ctrl:     ctrl,
		interval: interval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		clients: make(map[*client]struct{}),
	}
}

// Run starts the broadcast ticker loop. Run blocks until ctx is cancelled,
// then closes all active connections.
func (h *Hub) Run(ctx context.Context) {
	t := time.NewTicker(h.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-t.C:
			h.Broadcast()
		}
	}
}

// ServeHTTP upgrades the HTTP connection to WebSocket and serves the client.
// The current dashboard is sent on connect. Blocks until the connection closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		slog.Debug("ws: upgrade rejected", "remote", r.RemoteAddr, "err", err)
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, sendBufSize),
	}
	// Queue the first message before the client is visible to broadcasts.
	if data, err := h.buildMessage(); err == nil {
		c.send <- data
	}
	h.register(c)
	defer h.unregister(c)
	slog.Debug("ws: client connected", "remote", r.RemoteAddr, "clients", h.Count())

	go c.writePump()
	c.readPump() // blocks until connection closes
}

// Count returns the number of currently connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// --- internal ---------------------------------------------------------------

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Broadcast sends the current dashboard to every client without blocking.
// Clients whose buffer is full are dropped. Safe to use as a
// dashboard.Controller OnChange listener.
func (h *Hub) Broadcast() {
	data, err := h.buildMessage()
	if err != nil {
		slog.Warn("ws: dashboard not encoded", "err", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			delete(h.clients, c)
			close(c.send)
			slog.Debug("ws: slow client dropped")
		}
	}
}

func (h *Hub) buildMessage() ([]byte, error) {
	return json.Marshal(Message{
		Event: EventDashboard,
		Data:  api.BuildDashboard(h.ctrl),
	})
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return len(set) == 0 || origin == "" || set[origin]
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

// writePump forwards queued dashboards and pings until send is closed or a
// write fails.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				// hub shutdown or slow-client drop
				c.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump handles pong and close frames. It returns when the peer goes away.
func (c *client) readPump() {
	defer c.conn.Close()
	c.conn.SetReadLimit(readLimit)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}
