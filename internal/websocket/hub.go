package websocket

import (
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
)

// ErrClientClosed is returned by Send once a client is closed or too far behind
var ErrClientClosed = errors.New("client is closed")

// ClientInterface is what the hub needs from a connection
type ClientInterface interface {
	ID() string
	DeviceID() string
	Send(data []byte) error
	Close() error
}

// Hub fans ledger change events out to every connected device. A client
// whose Send fails is dropped from the hub.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]ClientInterface
}

var _ EventPublisher = (*Hub)(nil)

func NewHub() *Hub {
	return &Hub{clients: make(map[string]ClientInterface)}
}

func (h *Hub) Register(client ClientInterface) {
	h.mu.Lock()
	h.clients[client.ID()] = client
	h.mu.Unlock()

	log.Debug().Str("device_id", client.DeviceID()).Str("client_id", client.ID()).Msg("WebSocket client registered")
}

// Unregister is a no-op for unknown clients
func (h *Hub) Unregister(client ClientInterface) {
	h.mu.Lock()
	_, known := h.clients[client.ID()]
	delete(h.clients, client.ID())
	h.mu.Unlock()

	if known {
		log.Debug().Str("device_id", client.DeviceID()).Str("client_id", client.ID()).Msg("WebSocket client unregistered")
	}
}

// Publish broadcasts event
func (h *Hub) Publish(event Event) {
	h.Broadcast(event)
}

// Broadcast encodes event once and queues it on every client
func (h *Hub) Broadcast(event Event) {
	data, err := event.ToJSON()
	if err != nil {
		log.Error().Err(err).Str("event_type", event.Type).Msg("Failed to encode event")
		return
	}

	var stale []ClientInterface
	delivered := 0
	for _, client := range h.snapshot() {
		if err := client.Send(data); err != nil {
			stale = append(stale, client)
			continue
		}
		delivered++
	}

	for _, client := range stale {
		log.Warn().Str("device_id", client.DeviceID()).Str("client_id", client.ID()).Msg("Dropping unresponsive WebSocket client")
		h.Unregister(client)
		_ = client.Close()
	}

	log.Debug().Str("event_type", event.Type).Int("delivered", delivered).Int("dropped", len(stale)).Msg("Broadcast event")
}

func (h *Hub) snapshot() []ClientInterface {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients := make([]ClientInterface, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	return clients
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
