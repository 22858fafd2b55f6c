// Package realtime pushes per-operator events (lock cues) over WebSocket.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/fleetdesk/console/internal/services"
	"github.com/fleetdesk/console/pkg/logger"
)

// ErrNotConnected is returned when an operator has no open connection.
var ErrNotConnected = errors.New("operator not connected")

// Message is one event pushed to an operator's console.
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// Hub tracks the open connections of each operator.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[string]map[*Client]struct{})}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.userID]
	if !ok {
		set = make(map[*Client]struct{})
		h.clients[c.userID] = set
	}
	set[c] = struct{}{}
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.userID]
	if !ok {
		return
	}
	if _, ok := set[c]; ok {
		delete(set, c)
		close(c.send)
	}
	if len(set) == 0 {
		delete(h.clients, c.userID)
	}
}

// SendTo queues msg on every connection of userID.
func (h *Hub) SendTo(userID string, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	set := h.clients[userID]
	if len(set) == 0 {
		return ErrNotConnected
	}
	for c := range set {
		select {
		case c.send <- data:
		default:
			// Client buffer full, drop message to avoid blocking
			logger.Log.WithField("client_id", c.id).Debug("Dropped realtime message")
		}
	}
	return nil
}

// Play implements services.LockCue: the acting operator's consoles get a
// lock_cue event and play the sound locally.
func (h *Hub) Play(_ context.Context, event services.LockEvent) error {
	return h.SendTo(event.OperatorID, Message{Type: "lock_cue", Payload: event})
}

// ClientCount returns the number of open connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.clients {
		n += len(set)
	}
	return n
}
