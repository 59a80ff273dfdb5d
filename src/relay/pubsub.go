package relay

import (
	"github.com/orchestra-mcp/roomchat/src/protocol"
)

func (h *Hub) handleFrame(in inbound) {
	c := in.client
	f := in.frame

	switch f.Type {
	case protocol.TypeMessage:
		if f.Content == nil {
			h.logger.Warn().Str("client_id", c.ID).Msg("message without content")
			return
		}
		h.mu.Lock()
		msg := h.roomLocked(c.RoomID).appendMessage(c.Username, *f.Content, f.Media)
		h.mu.Unlock()
		h.relay(c.RoomID, protocol.NewChatMessageFrame(msg), "")

	case protocol.TypeTyping:
		h.relay(c.RoomID, protocol.NewTypingFrame(c.Username), c.ID)

	case protocol.TypeSeen:
		h.mu.Lock()
		matched := h.roomLocked(c.RoomID).markSeen(c.Username, f.MessageIDs)
		h.mu.Unlock()
		if len(matched) == 0 {
			return
		}
		frame := protocol.SeenFrame{Type: protocol.TypeSeen, Username: c.Username, MessageIDs: matched}
		h.relay(c.RoomID, frame, c.ID)

	default:
		h.logger.Debug().Str("client_id", c.ID).Str("type", f.Type).Msg("unknown frame type")
	}
}

// relay sends frame to the local room and to the bridge.
func (h *Hub) relay(roomID int64, frame any, exclude string) {
	h.publishToBridge(roomFrame{roomID: roomID, frame: frame})
	h.broadcastToRoom(roomID, frame, exclude)
}

func (h *Hub) broadcastToRoom(roomID int64, frame any, exclude string) {
	h.mu.RLock()
	r, ok := h.rooms[roomID]
	if !ok {
		h.mu.RUnlock()
		return
	}
	// Copy members to avoid holding the lock during sends.
	members := make([]*Client, 0, len(r.members))
	for id, c := range r.members {
		if id != exclude {
			members = append(members, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range members {
		select {
		case c.Send <- frame:
		default:
			h.logger.Warn().Str("client_id", c.ID).Msg("send buffer full, dropping")
		}
	}
}

// publishToBridge forwards a frame to the bridge if one is attached.
func (h *Hub) publishToBridge(rf roomFrame) {
	h.mu.RLock()
	b := h.bridge
	h.mu.RUnlock()

	if b == nil || !b.Available() {
		return
	}
	if err := b.Publish(rf.roomID, rf.frame); err != nil {
		h.logger.Error().Err(err).Int64("room_id", rf.roomID).Msg("bridge publish failed")
	}
}

// Publish sends a frame to every member of a room and to the bridge.
func (h *Hub) Publish(roomID int64, frame any) {
	select {
	case h.broadcast <- roomFrame{roomID: roomID, frame: frame}:
	case <-h.done:
	}
}

// Announce stores a message from sender in the room history and
// publishes it. It returns the stored message.
func (h *Hub) Announce(roomID int64, sender, content string) protocol.ChatMessageFrame {
	h.mu.Lock()
	msg := h.roomLocked(roomID).appendMessage(sender, content, nil)
	h.mu.Unlock()

	frame := protocol.NewChatMessageFrame(msg)
	h.Publish(roomID, frame)
	return frame
}

// SendToClient sends a frame directly to a specific client.
func (h *Hub) SendToClient(clientID string, frame any) bool {
	h.mu.RLock()
	client, ok := h.clients[clientID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	select {
	case client.Send <- frame:
		return true
	default:
		return false
	}
}
