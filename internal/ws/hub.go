// Package ws is the direct peer-to-peer channel: one websocket per user
// id, JSON frames, immediate relay with a delivery ack. It is independent
// of the live event channel and carries no persistence.
package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 32
)

type inboundFrame struct {
	Type string `json:"type"`
	To   string `json:"to,omitempty"`
	Text string `json:"text,omitempty"`
}

type outboundFrame struct {
	Type      string `json:"type"`
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
	Text      string `json:"text,omitempty"`
	Delivered *bool  `json:"delivered,omitempty"`
	T         int64  `json:"t"`
}

// Hub tracks at most one active connection per user id; a new connection
// for the same id replaces the previous one.
type Hub struct {
	mu       sync.Mutex
	conns    map[string]*conn
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		conns: make(map[string]*conn),
		upgrader: websocket.Upgrader{
			// Identity is a bearer role id; there is no origin trust
			// boundary to enforce.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Handle upgrades the request and serves it until the peer goes away.
// The userId query parameter is mandatory.
func (h *Hub) Handle(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, "userId required", http.StatusBadRequest)
		return
	}

	socket, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := newConn(userID, socket)
	h.attach(c)
	h.logger.Info("ws connected", zap.String("user_id", userID))

	c.start()
	h.readLoop(c)

	h.detach(c)
	c.stop()
	h.logger.Info("ws closed", zap.String("user_id", userID))
}

// Close tears down every connection, for server shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := make([]*conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.conns = make(map[string]*conn)
	h.mu.Unlock()

	for _, c := range conns {
		c.stop()
	}
}

func (h *Hub) attach(c *conn) {
	h.mu.Lock()
	previous := h.conns[c.userID]
	h.conns[c.userID] = c
	h.mu.Unlock()

	if previous != nil {
		previous.stop()
	}
}

func (h *Hub) detach(c *conn) {
	h.mu.Lock()
	if h.conns[c.userID] == c {
		delete(h.conns, c.userID)
	}
	h.mu.Unlock()
}

func (h *Hub) peer(userID string) *conn {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conns[userID]
}

func (h *Hub) readLoop(c *conn) {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		var f inboundFrame
		if err := json.Unmarshal(data, &f); err != nil {
			continue // malformed frames are ignored
		}
		h.dispatch(c, f)
	}
}

func (h *Hub) dispatch(c *conn, f inboundFrame) {
	now := time.Now().UnixMilli()
	switch f.Type {
	case "ping":
		c.send(outboundFrame{Type: "pong", T: now})
	case "direct":
		if f.To == "" || f.Text == "" {
			return
		}
		delivered := false
		if peer := h.peer(f.To); peer != nil {
			delivered = peer.send(outboundFrame{Type: "direct", From: c.userID, Text: f.Text, T: now})
		}
		c.send(outboundFrame{Type: "ack", To: f.To, Delivered: &delivered, T: now})
	}
	// Unknown frame types fall through silently.
}

// conn serializes all writes through a buffered channel so the write
// deadline and ping ticker live on a single goroutine.
type conn struct {
	userID string
	ws     *websocket.Conn
	out    chan []byte
	done   chan struct{}
	once   sync.Once
}

func newConn(userID string, ws *websocket.Conn) *conn {
	return &conn{
		userID: userID,
		ws:     ws,
		out:    make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
	}
}

func (c *conn) start() {
	go c.writeLoop()
}

func (c *conn) stop() {
	c.once.Do(func() {
		close(c.done)
		_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
		_ = c.ws.Close()
	})
}

func (c *conn) send(f outboundFrame) bool {
	payload, err := json.Marshal(f)
	if err != nil {
		return false
	}
	select {
	case <-c.done:
		return false
	case c.out <- payload:
		return true
	default:
		// Slow consumer: shed rather than block the sender.
		return false
	}
}

func (c *conn) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case payload := <-c.out:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
