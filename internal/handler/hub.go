package handler

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/ta-forever/server/internal/model"
)

// Hub tracks every authenticated lobby connection and fans broadcast
// messages out to them.
type Hub struct {
	mu    sync.RWMutex
	conns map[*Conn]struct{}
}

func NewHub() *Hub {
	return &Hub{conns: make(map[*Conn]struct{})}
}

// Register adds a connection to the hub.
func (h *Hub) Register(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c] = struct{}{}
}

// Unregister removes a connection and closes its send channel, which ends
// the connection's write pump.
func (h *Hub) Unregister(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[c]; !ok {
		return
	}
	delete(h.conns, c)
	close(c.send)
}

// Broadcast sends one message to every connection whose player passes the
// filter. A nil filter means everyone. Connections with a full send buffer
// are skipped rather than stalled.
func (h *Hub) Broadcast(msg map[string]any, allow func(*model.Player) bool) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Interface("command", msg["command"]).Msg("encoding broadcast")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.conns {
		if allow != nil && !allow(c.player) {
			continue
		}
		if !c.trySend(data) {
			log.Warn().Int("player_id", c.player.ID).Msg("dropping broadcast, send buffer full")
		}
	}
}

// SendToPlayer delivers one message to every connection of a player.
// Returns whether the player had any connection.
func (h *Hub) SendToPlayer(playerID int, msg map[string]any) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Int("player_id", playerID).Msg("encoding message")
		return false
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	found := false
	for c := range h.conns {
		if c.player.ID != playerID {
			continue
		}
		found = true
		if !c.trySend(data) {
			log.Warn().Int("player_id", playerID).Msg("dropping message, send buffer full")
		}
	}
	return found
}

// ConnectionCount returns the number of registered connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}
