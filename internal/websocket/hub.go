// Package websocket pushes console events to every open browser tab, so a
// logout or a new post in one tab is reflected in the others.
package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/dukerupert/postdeck/internal/session"
)

const (
	TypeSessionStarted = "session_started"
	TypeSessionEnded   = "session_ended"
	TypePostCreated    = "post_created"
	TypePostDeleted    = "post_deleted"
	TypeAccountAdded   = "account_added"
	TypeAccountDeleted = "account_deleted"
)

// Message is a console notification. Redirect, when set, tells the tab
// where to navigate.
type Message struct {
	Type     string `json:"type"`
	ID       int64  `json:"id,omitempty"`
	Username string `json:"username,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Redirect string `json:"redirect,omitempty"`
}

// Hub maintains the set of connected tabs and broadcasts messages.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *slog.Logger
	dropped atomic.Int64
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger.With("component", "websocket"),
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Broadcast sends msg to all connected clients without blocking. A client
// whose buffer is full misses the message.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.dropped.Add(1)
			h.logger.Debug("client buffer full, message dropped", "type", msg.Type)
		}
	}
}

// SessionChanged translates a session transition into a broadcast. It is
// registered with session.Store.OnChange.
func (h *Hub) SessionChanged(ev session.Event) {
	switch ev.State {
	case session.Authenticated:
		msg := Message{Type: TypeSessionStarted, Redirect: "/dashboard"}
		if ev.User != nil {
			msg.Username = ev.User.Username
		}
		h.Broadcast(msg)
	case session.Anonymous:
		h.Broadcast(Message{Type: TypeSessionEnded, Reason: ev.Reason, Redirect: "/login"})
	}
}

// Close drops every client. Their connections are closed by their write
// pumps.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many messages were skipped because a client was slow.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}
