// Package hub pushes views, notices and list refreshes to the operator's
// open dashboards over websockets.
package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"pdf-podcaster/internal/notice"
	"pdf-podcaster/internal/present"
	"pdf-podcaster/internal/session"
)

const (
	TypeConnected       = "connected"
	TypeView            = "view"
	TypeNotice          = "notice"
	TypeEpisodesChanged = "episodes_changed"
)

const (
	sendBuffer     = 256
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	maxMessageSize = 4 << 10
)

// Message is the envelope of every frame sent to a dashboard.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

type Client struct {
	ID       string
	Operator int64
	Conn     *websocket.Conn
	Send     chan []byte
}

// Hub tracks connected dashboards per operator.
type Hub struct {
	mu       sync.RWMutex
	clients  map[int64]map[string]*Client
	log      logrus.FieldLogger
	upgrader websocket.Upgrader
	onIdle   func(operator int64)

	// pings go out every pingPeriod; a client silent for pongWait is dropped
	pongWait   time.Duration
	pingPeriod time.Duration
}

func New(log logrus.FieldLogger) *Hub {
	return &Hub{
		clients:    make(map[int64]map[string]*Client),
		log:        log,
		pongWait:   pongWait,
		pingPeriod: (pongWait * 9) / 10,
		upgrader: websocket.Upgrader{
			// the Mini App is served from Telegram's webview origin
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.Operator]; !ok {
		h.clients[c.Operator] = make(map[string]*Client)
	}
	h.clients[c.Operator][c.ID] = c
}

// OnIdle registers fn to run when an operator's last dashboard
// disconnects. Set it before serving connections.
func (h *Hub) OnIdle(fn func(operator int64)) {
	h.onIdle = fn
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	clients, ok := h.clients[c.Operator]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, ok := clients[c.ID]; ok {
		close(c.Send)
		delete(clients, c.ID)
	}
	idle := len(clients) == 0
	if idle {
		delete(h.clients, c.Operator)
	}
	h.mu.Unlock()

	if idle && h.onIdle != nil {
		h.onIdle(c.Operator)
	}
}

// Clients counts the operator's open connections.
func (h *Hub) Clients(operator int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[operator])
}

// Broadcast sends msg to every connection of the operator. Slow clients
// drop frames rather than block the sender.
func (h *Hub) Broadcast(operator int64, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.WithError(err).WithField("type", msg.Type).Error("Failed to encode websocket message")
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients[operator] {
		select {
		case c.Send <- data:
		default:
			h.log.WithField("client", c.ID).Warn("Websocket send buffer full, dropping message")
		}
	}
}

// Notify implements notice.Sink.
func (h *Hub) Notify(_ context.Context, n notice.Notice) {
	h.Broadcast(n.Operator, Message{Type: TypeNotice, Data: n})
}

// Attach wires a session's listeners to the hub.
func (h *Hub) Attach(s *session.Coordinator) {
	op := s.Operator()
	s.OnView(func(ev session.Event) {
		page := present.Empty()
		if ev.Selected {
			page = present.RenderChange(ev.Change)
		}
		h.Broadcast(op, Message{Type: TypeView, Data: page})
	})
	s.OnListRefresh(func() {
		h.Broadcast(op, Message{Type: TypeEpisodesChanged})
	})
}

// Serve upgrades the request and keeps the connection until the client
// goes away. initial, if set, is sent right after the greeting.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, operator int64, initial *Message) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("WebSocket upgrade failed")
		return
	}
	c := &Client{
		ID:       uuid.NewString(),
		Operator: operator,
		Conn:     conn,
		Send:     make(chan []byte, sendBuffer),
	}
	log := h.log.WithFields(logrus.Fields{"operator": operator, "client": c.ID})

	h.register(c)
	go h.writePump(c)
	log.Info("Dashboard connected")

	h.sendTo(c, Message{Type: TypeConnected})
	if initial != nil {
		h.sendTo(c, *initial)
	}

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(h.pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(h.pongWait))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.WithError(err).Debug("Websocket read failed")
			}
			break
		}
	}
	h.unregister(c)
	log.Info("Dashboard disconnected")
}

func (h *Hub) sendTo(c *Client, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c.Operator][c.ID]; !ok {
		return
	}
	select {
	case c.Send <- data:
	default:
	}
}

func (h *Hub) writePump(c *Client) {
	ticker := time.NewTicker(h.pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
