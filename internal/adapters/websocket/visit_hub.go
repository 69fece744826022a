// Package websocket pushes live visit updates to chat widgets
// Following Clean Architecture: This is an Adapter layer component
package websocket

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"intake-chat/internal/core/services"
)

// Frame is one JSON message sent to a widget
type Frame struct {
	Type    services.VisitEventType `json:"type"`
	VisitID string                  `json:"visit_id"`
	View    *services.View          `json:"view,omitempty"`
	Typing  *bool                   `json:"typing,omitempty"`
}

// VisitHub upgrades widget connections and fans visit events out to them
// Uses Fan-out pattern: 1 visit -> N browser tabs
type VisitHub struct {
	clients map[*Client]struct{}
	mu      sync.RWMutex

	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// Client represents a connected widget
type Client struct {
	hub     *VisitHub
	visitID string
	conn    *websocket.Conn
	send    chan []byte

	mu          sync.Mutex
	closed      bool
	lastVersion uint64
}

const (
	// Per-client buffer, frames beyond it are dropped for that client
	clientBufferSize = 64

	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// NewVisitHub creates a hub. allowedOrigins empty allows every origin
func NewVisitHub(allowedOrigins []string, logger *slog.Logger) *VisitHub {
	if logger == nil {
		logger = slog.Default()
	}
	hub := &VisitHub{
		clients: make(map[*Client]struct{}),
		logger:  logger.With("component", "visit_hub"),
	}
	hub.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return hub
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		_, ok := set[r.Header.Get("Origin")]
		return ok
	}
}

// ServeVisit upgrades the request and streams the visit until either side closes
func (h *VisitHub) ServeVisit(w http.ResponseWriter, r *http.Request, visit *services.Visit) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", "visit_id", visit.ID, "error", err)
		return
	}

	client := &Client{
		hub:     h,
		visitID: visit.ID,
		conn:    conn,
		send:    make(chan []byte, clientBufferSize),
	}
	h.register(client)

	unsubscribe := visit.Subscribe(func(ev services.VisitEvent) {
		client.push(h.frameFor(visit, ev))
		if ev.Type == services.VisitEventClosed {
			// writePump flushes the closed frame, then sends the close message
			client.close()
		}
	})

	// current view so the widget renders without a GET
	view := visit.Controller().View()
	client.push(Frame{Type: services.VisitEventState, VisitID: visit.ID, View: &view})

	go client.writePump()
	go client.readPump(unsubscribe)
}

func (h *VisitHub) frameFor(visit *services.Visit, ev services.VisitEvent) Frame {
	frame := Frame{Type: ev.Type, VisitID: visit.ID}
	switch ev.Type {
	case services.VisitEventTyping:
		typing := ev.Typing
		frame.Typing = &typing
	case services.VisitEventClosed:
	default:
		ctrl := visit.Controller()
		view := services.BuildView(ev.State, ctrl.Phase(), ctrl.Typing().Visible(), ctrl.Sending())
		frame.View = &view
	}
	return frame
}

func (h *VisitHub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("Widget connected", "visit_id", c.visitID, "total", total)
}

func (h *VisitHub) unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	total := len(h.clients)
	h.mu.Unlock()

	if ok {
		c.close()
		h.logger.Info("Widget disconnected", "visit_id", c.visitID, "total", total)
	}
}

// ClientCount returns the current number of connected widgets
func (h *VisitHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every widget
func (h *VisitHub) Close() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[*Client]struct{})
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}

// push queues a frame without blocking; a full buffer drops it
// View frames older than the last queued one are dropped too
func (c *Client) push(frame Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		c.hub.logger.Error("Failed to encode frame", "visit_id", c.visitID, "error", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if frame.View != nil {
		if frame.View.Version < c.lastVersion {
			c.hub.logger.Debug("Stale view dropped", "visit_id", c.visitID, "version", frame.View.Version)
			return
		}
		c.lastVersion = frame.View.Version
	}
	select {
	case c.send <- data:
	default:
		c.hub.logger.Debug("Widget buffer full, frame dropped", "visit_id", c.visitID)
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// readPump drains the connection (widgets only answer pings)
func (c *Client) readPump(unsubscribe func()) {
	defer func() {
		unsubscribe()
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("WebSocket read error", "visit_id", c.visitID, "error", err)
			}
			return
		}
	}
}

// writePump sends queued frames, one JSON document per text message
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
