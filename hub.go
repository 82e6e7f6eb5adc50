package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kwv/planalign/align"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 32
)

// eventSnapshot is sent once to every client right after it connects.
const eventSnapshot align.EventKind = "snapshot"

// eventError answers a client message that could not be executed.
const eventError align.EventKind = "error"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Viewers are served from their own origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// hubMessage is the server -> client frame
type hubMessage struct {
	Kind     align.EventKind `json:"kind"`
	Snapshot *align.Snapshot `json:"snapshot,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// clientMessage is the client -> server frame
type clientMessage struct {
	Type     string          `json:"type"`
	Position json.RawMessage `json:"position,omitempty"`
	Target   string          `json:"target,omitempty"`
}

type hubClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub pushes controller events to WebSocket clients and accepts hit, set and reset
// messages from them.
type Hub struct {
	controller *align.Controller
	logger     *zap.Logger
	clients    map[*hubClient]struct{}
	mu         sync.Mutex
}

// NewHub creates a hub for controller. Register Observe with the controller to stream
// its events.
func NewHub(controller *align.Controller, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		controller: controller,
		logger:     logger.With(zap.String("component", "ws")),
		clients:    make(map[*hubClient]struct{}),
	}
}

// Observe broadcasts a controller event to every connected client.
// Slow clients drop frames rather than block the controller.
func (h *Hub) Observe(ev align.Event) {
	snapshot := ev.Snapshot
	data, err := json.Marshal(hubMessage{Kind: ev.Kind, Snapshot: &snapshot})
	if err != nil {
		h.logger.Error("encoding event", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Warn("client send buffer full, dropping event", zap.String("remote", c.conn.RemoteAddr().String()))
		}
	}
}

// Clients returns the number of connected clients
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

// ServeHTTP upgrades the request and serves one client until it disconnects
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &hubClient{conn: conn, send: make(chan []byte, sendBuffer)}

	// No event can fall between the first snapshot and registration.
	h.mu.Lock()
	snapshot := h.controller.Snapshot()
	if data, err := json.Marshal(hubMessage{Kind: eventSnapshot, Snapshot: &snapshot}); err == nil {
		c.send <- data
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Info("client connected", zap.String("remote", conn.RemoteAddr().String()))

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) unregister(c *hubClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) reply(c *hubClient, err error) {
	data, mErr := json.Marshal(hubMessage{Kind: eventError, Error: err.Error()})
	if mErr != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (h *Hub) readPump(c *hubClient) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
		h.logger.Info("client disconnected", zap.String("remote", c.conn.RemoteAddr().String()))
	}()

	c.conn.SetReadLimit(maxBodyBytes)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read", zap.Error(err))
			}
			return
		}
		if err := h.handle(data); err != nil {
			h.reply(c, err)
		}
	}
}

// handle executes one client message against the controller
func (h *Hub) handle(data []byte) error {
	var msg clientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("parsing message: %w", err)
	}

	switch msg.Type {
	case "hit":
		hit, err := align.ParseHit(msg.Position)
		if err != nil {
			return err
		}
		h.controller.UpdateHit(hit)
		return nil
	case "set":
		target, err := align.ParseAnchorTarget(msg.Target)
		if err != nil {
			return err
		}
		_, err = h.controller.Set(target)
		return err
	case "reset":
		h.controller.Reset()
		return nil
	}
	return fmt.Errorf("unknown message type %q", msg.Type)
}

func (h *Hub) writePump(c *hubClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
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
