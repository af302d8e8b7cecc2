package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/username/fundfolio/src/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The API already sits behind the CORS middleware; the stream is
		// origin-checked there.
		return true
	},
}

// streamEvent is the envelope every broadcast wears on the wire.
type streamEvent struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type streamClient struct {
	hub  *StreamHub
	conn *websocket.Conn
	send chan []byte
}

// StreamHub fans holding updates out to connected WebSocket clients. It is
// the API's replacement for an in-process UI signal: every quote the
// portfolio service processes ends up here as a JSON event.
type StreamHub struct {
	mu         sync.RWMutex
	clients    map[*streamClient]bool
	broadcast  chan []byte
	register   chan *streamClient
	unregister chan *streamClient
}

func NewStreamHub() *StreamHub {
	return &StreamHub{
		clients:    make(map[*streamClient]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *streamClient),
		unregister: make(chan *streamClient),
	}
}

// Broadcast queues an event for every connected client. Safe from any
// goroutine; drops the event when the hub's queue is full rather than
// blocking the caller.
func (h *StreamHub) Broadcast(event string, payload interface{}) {
	data, err := json.Marshal(streamEvent{Type: event, Payload: payload})
	if err != nil {
		logger.L.Error("ws: failed to encode event", "event", event, "error", err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		logger.L.Warn("ws: broadcast queue full, dropping event", "event", event)
	}
}

// Run is the hub's event loop; call it in a goroutine. It exits when the
// context is cancelled, closing every client connection.
func (h *StreamHub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.mu.Unlock()
			logger.L.Info("ws: client connected", "totalClients", n)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			logger.L.Info("ws: client disconnected", "totalClients", n)

		case data := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.send <- data:
				default:
					// Slow client; drop the message instead of stalling
					// the hub.
					logger.L.Warn("ws: dropping message for slow client")
				}
			}
			h.mu.RUnlock()
		}
	}
}

// HandleStream upgrades the request and registers the client.
// GET /api/stream
func (h *StreamHub) HandleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.L.Error("ws: upgrade failed", "error", err)
		return
	}

	c := &streamClient{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
	h.register <- c

	go c.writePump()
	go c.readPump()
}

// readPump drains the connection; clients send nothing meaningful, but the
// read loop is what notices disconnects and pong frames.
func (c *streamClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *streamClient) writePump() {
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
