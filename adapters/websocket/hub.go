package websocket

import (
	"sync"

	"github.com/satriahrh/cocoa-fruit/companion/utils/log"
)

// Hub tracks the connected display of each identity. A new connection for an
// identity replaces the previous one.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewHub creates a new WebSocket hub
func NewHub() *Hub {
	return &Hub{clients: make(map[string]*Client)}
}

// Register adds a client to the hub, closing any older client of the same identity.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	old := h.clients[client.identity]
	h.clients[client.identity] = client
	h.mu.Unlock()

	if old != nil && old != client {
		log.WithCtx(old.ctx).Debug("Client replaced by a newer connection")
		old.Close()
	}
	log.WithCtx(client.ctx).Debug("New client registered")
}

// Unregister removes client and reports whether it was still the current one.
func (h *Hub) Unregister(client *Client) bool {
	h.mu.Lock()
	current := h.clients[client.identity] == client
	if current {
		delete(h.clients, client.identity)
	}
	h.mu.Unlock()

	client.Close()
	log.WithCtx(client.ctx).Debug("Client unregistered")
	return current
}

// Get returns the connected client of identity
func (h *Hub) Get(identity string) *Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if client, ok := h.clients[identity]; ok && !client.IsClosed() {
		return client
	}
	return nil
}

// IsConnected checks if an identity has a display attached
func (h *Hub) IsConnected(identity string) bool {
	return h.Get(identity) != nil
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CloseAll disconnects every client
func (h *Hub) CloseAll() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[string]*Client)
	h.mu.Unlock()

	for _, client := range clients {
		client.Close()
	}
}
