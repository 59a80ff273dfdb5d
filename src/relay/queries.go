package relay

import (
	"github.com/orchestra-mcp/roomchat/src/types"
)

// OnConnection registers a callback for new connections.
func (h *Hub) OnConnection(cb func(types.ClientInfo)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onConnect = append(h.onConnect, cb)
}

// OnDisconnection registers a callback for disconnections.
func (h *Hub) OnDisconnection(cb func(types.ClientInfo)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onDisconn = append(h.onDisconn, cb)
}

// ConnectedClients returns a list of connected client IDs.
func (h *Hub) ConnectedClients() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	return ids
}

// ClientInfo returns info for a connected client, or nil.
func (h *Hub) ClientInfo(clientID string) *types.ClientInfo {
	h.mu.RLock()
	client, ok := h.clients[clientID]
	h.mu.RUnlock()
	if !ok {
		return nil
	}
	info := client.Info()
	return &info
}

// Rooms returns room ids with their member counts. Rooms without members
// are included while they still hold history.
func (h *Hub) Rooms() map[int64]int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	result := make(map[int64]int, len(h.rooms))
	for id, r := range h.rooms {
		result[id] = len(r.members)
	}
	return result
}

// ActiveUsers returns the sorted usernames present in a room.
func (h *Hub) ActiveUsers(roomID int64) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r, ok := h.rooms[roomID]
	if !ok {
		return []string{}
	}
	return sortedUsernames(r.members)
}

// History returns up to limit recent messages of a room, oldest first.
// A non-positive limit returns everything kept.
func (h *Hub) History(roomID int64, limit int) []types.ChatMessage {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r, ok := h.rooms[roomID]
	if !ok {
		return nil
	}
	return r.snapshot(limit)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
