package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"dnse-trading-bot/internal/events"
	"dnse-trading-bot/internal/logging"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSClient is one WebSocket subscriber.
type WSClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *WSHub
}

// WSHub fans bus events out to WebSocket clients. A client whose send
// queue fills up is dropped, mirroring the bus's slow-subscriber policy.
type WSHub struct {
	bus    *events.Bus
	logger *logging.Logger

	register   chan *WSClient
	unregister chan *WSClient
	done       chan struct{}

	mu      sync.RWMutex
	clients map[*WSClient]bool
}

// NewWSHub creates the hub. Start must be called before clients connect.
func NewWSHub(bus *events.Bus, logger *logging.Logger) *WSHub {
	if logger == nil {
		logger = logging.Default()
	}
	return &WSHub{
		bus:        bus,
		logger:     logger.WithComponent("websocket"),
		register:   make(chan *WSClient),
		unregister: make(chan *WSClient),
		done:       make(chan struct{}),
		clients:    make(map[*WSClient]bool),
	}
}

// Start subscribes the hub to the event bus and runs the fan-out loop.
func (h *WSHub) Start() {
	busCh := h.bus.Subscribe("websocket-hub")
	go h.run(busCh)
}

// Stop detaches from the bus and closes all client connections.
func (h *WSHub) Stop() {
	h.bus.Unsubscribe("websocket-hub")
	close(h.done)
}

func (h *WSHub) run(busCh <-chan events.Event) {
	for {
		select {
		case <-h.done:
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Debug("WebSocket client connected", "client", client.id)

		case client := <-h.unregister:
			h.drop(client)

		case evt, ok := <-busCh:
			if !ok {
				h.closeAll()
				return
			}
			h.broadcast(evt)
		}
	}
}

func (h *WSHub) broadcast(evt events.Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		h.logger.Error("Cannot marshal event", "event", string(evt.Type), "error", err.Error())
		return
	}

	var stale []*WSClient

	h.mu.RLock()
	for client := range h.clients {
		select {
		case client.send <- data:
		default:
			stale = append(stale, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range stale {
		h.logger.Warn("Dropping slow WebSocket client", "client", client.id)
		h.drop(client)
	}
}

func (h *WSHub) drop(client *WSClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[client] {
		delete(h.clients, client)
		close(client.send)
	}
}

func (h *WSHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
	}
}

// ClientCount returns the number of connected clients.
func (h *WSHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// queueEvent marshals and queues one event for a single client, used for
// the on-connect replay.
func (c *WSClient) queueEvent(evt events.Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (c *WSClient) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *WSClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	// Clients are listen-only; reads exist to notice disconnects.
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

// handleWebSocket upgrades the connection and replays the latest analysis
// snapshot per symbol plus the current system status, so a fresh client
// renders immediately without waiting for the next bar.
func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", "error", err.Error())
		return
	}

	client := &WSClient{
		id:   uuid.New().String()[:8],
		conn: conn,
		send: make(chan []byte, 256),
		hub:  s.hub,
	}
	s.hub.register <- client

	go client.writePump()
	go client.readPump()

	client.queueEvent(events.Event{
		Type: events.EventSystem,
		Data: map[string]interface{}{
			"status":         "connected",
			"dnse_connected": s.feedConnected(),
			"timestamp":      time.Now().UTC().Format(time.RFC3339),
		},
	})
	for _, payload := range s.pipe.Snapshots(c.Request.Context()) {
		client.queueEvent(events.Event{Type: events.EventSignalCheck, Data: payload})
	}
}
