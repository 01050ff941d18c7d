package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Messages are JSON text frames with an envelope: {type, ts, data}.
// The first message on connect is "state_init"; every actuation is
// broadcast as "state".
const (
	MessageStateInit = "state_init"
	MessageState     = "state"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 20 * time.Second
)

type envelope struct {
	Type string     `json:"type"`
	Ts   *time.Time `json:"ts,omitempty"`
	Data any        `json:"data,omitempty"`
}

func encodeEnvelope(typ string, ts time.Time, data any) ([]byte, error) {
	env := envelope{Type: typ, Data: data}
	if !ts.IsZero() {
		env.Ts = &ts
	}
	return json.Marshal(env)
}

// Hub tracks connected WebSocket clients and fans snapshots out to them.
// Slow clients are disconnected when their send buffer fills.
type Hub struct {
	logger  *slog.Logger
	current func() Snapshot

	broadcast  chan []byte
	register   chan *client
	unregister chan *client

	mu      sync.Mutex
	clients map[*client]struct{}

	sendBuf int
}

// NewHub constructs a hub. current provides the state_init payload for new
// clients. Call Run(ctx) to start it.
func NewHub(logger *slog.Logger, current func() Snapshot, sendBuf, broadcastBuf int) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if sendBuf <= 0 {
		sendBuf = 32
	}
	if broadcastBuf <= 0 {
		broadcastBuf = 128
	}

	return &Hub{
		logger:     logger,
		current:    current,
		broadcast:  make(chan []byte, broadcastBuf),
		register:   make(chan *client, 64),
		unregister: make(chan *client, 64),
		clients:    make(map[*client]struct{}),
		sendBuf:    sendBuf,
	}
}

// Run processes hub events until ctx is cancelled.
// It disconnects all clients on shutdown.
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.closeAllClients()
			return nil

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ws client registered", "remote_addr", c.remoteAddr, "clients", n)

		case c := <-h.unregister:
			h.removeClient(c, "unregister")

		case msg := <-h.broadcast:
			// Collect slow clients first, then remove them after we unlock.
			var slow []*client

			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					slow = append(slow, c)
				}
			}
			h.mu.Unlock()

			for _, c := range slow {
				h.removeClient(c, "slow_client")
			}
		}
	}
}

// Clients returns the number of registered clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Publish broadcasts s as a "state" message.
func (h *Hub) Publish(s Snapshot) {
	msg, err := encodeEnvelope(MessageState, s.Time, s)
	if err != nil {
		h.logger.Error("failed to encode snapshot", "error", err)
		return
	}
	h.BroadcastBytes(msg)
}

// BroadcastBytes enqueues a pre-serialized JSON frame for broadcast.
// It never blocks; if the hub queue is full it drops the message.
func (h *Hub) BroadcastBytes(msg []byte) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("ws hub broadcast queue full, dropping message", "bytes", len(msg))
	}
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c.conn != nil {
			_ = c.conn.Close()
		}
		c.closeSend()
		delete(h.clients, c)
	}
}

func (h *Hub) removeClient(c *client, reason string) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		if c.conn != nil {
			_ = c.conn.Close()
		}
		c.closeSend()
		h.logger.Info("ws client disconnected", "remote_addr", c.remoteAddr, "reason", reason, "clients", n)
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeHTTP upgrades the request, queues state_init and registers the client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "error", err)
		return
	}

	c := newClient(h, conn, r.RemoteAddr)

	if h.current != nil {
		snap := h.current()
		if msg, err := encodeEnvelope(MessageStateInit, time.Now(), snap); err == nil {
			c.send <- msg
		}
	}

	h.register <- c

	// The pumps outlive the request; the hub and I/O errors end them.
	go c.writePump()
	go c.readPump()
}

type client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	closeOnce  sync.Once
	remoteAddr string
}

func newClient(hub *Hub, conn *websocket.Conn, remoteAddr string) *client {
	return &client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, hub.sendBuf),
		remoteAddr: remoteAddr,
	}
}

func (c *client) closeSend() {
	c.closeOnce.Do(func() { close(c.send) })
}

// writePump writes queued messages to the websocket.
// It exits on write error or when send is closed.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Channel closed: hub is disconnecting us.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				if !errors.Is(err, websocket.ErrCloseSent) {
					c.hub.logger.Debug("ws write failed", "remote_addr", c.remoteAddr, "error", err)
				}
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards incoming messages to detect disconnects and handle
// control frames, then unregisters the client.
func (c *client) readPump() {
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			c.hub.unregister <- c
			return
		}
	}
}
