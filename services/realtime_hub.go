package services

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// writeWait bounds every socket write so a client that stops reading cannot
// hold up the request that published the event.
const writeWait = 10 * time.Second

// MealEvent is pushed to every socket a session has open.
type MealEvent struct {
	Kind string `json:"kind"` // meal.created | meal.updated | meal.deleted
	Data any    `json:"data"`
}

type WSClient struct {
	Session string
	Conn    *websocket.Conn
	mu      sync.Mutex
}

func (c *WSClient) write(messageType int, data []byte, wait time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.Conn.SetWriteDeadline(time.Now().Add(wait)); err != nil {
		return err
	}
	return c.Conn.WriteMessage(messageType, data)
}

// Ping keeps the connection alive through proxies.
func (c *WSClient) Ping() error { return c.write(websocket.PingMessage, nil, writeWait) }

type RealtimeHub struct {
	mu        sync.RWMutex
	clients   map[string]map[*WSClient]struct{}
	writeWait time.Duration
}

func NewRealtimeHub() *RealtimeHub {
	return &RealtimeHub{
		clients:   make(map[string]map[*WSClient]struct{}),
		writeWait: writeWait,
	}
}

func (h *RealtimeHub) Register(c *WSClient) {
	h.mu.Lock()
	if h.clients[c.Session] == nil {
		h.clients[c.Session] = make(map[*WSClient]struct{})
	}
	h.clients[c.Session][c] = struct{}{}
	h.mu.Unlock()
}

// Unregister may be called more than once for the same client.
func (h *RealtimeHub) Unregister(c *WSClient) {
	h.mu.Lock()
	if set := h.clients[c.Session]; set != nil {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, c.Session)
		}
	}
	h.mu.Unlock()
	_ = c.Conn.Close()
}

// Subscribers reports how many sockets a session has open.
func (h *RealtimeHub) Subscribers(session string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[session])
}

// Broadcast writes outside the hub lock; a socket that fails or times out is
// dropped.
func (h *RealtimeHub) Broadcast(session string, event MealEvent) {
	msg, err := json.Marshal(event)
	if err != nil {
		return
	}

	h.mu.RLock()
	targets := make([]*WSClient, 0, len(h.clients[session]))
	for c := range h.clients[session] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if err := c.write(websocket.TextMessage, msg, h.writeWait); err != nil {
			h.Unregister(c)
		}
	}
}
