package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/orchestra-mcp/roomchat/src/types"
)

// Frame discriminators.
const (
	TypeMessage    = "message"
	TypeTyping     = "typing"
	TypeSeen       = "seen"
	TypeUserStatus = "user_status"
)

// MessageFrame carries a new message from a client to the room.
type MessageFrame struct {
	Type string `json:"type"`
	types.OutgoingMessage
}

// NewMessageFrame tags m as a message frame.
func NewMessageFrame(m types.OutgoingMessage) MessageFrame {
	return MessageFrame{Type: TypeMessage, OutgoingMessage: m}
}

// TypingFrame announces that a user is typing. The relay forwards it as is.
type TypingFrame struct {
	Type     string `json:"type"`
	Username string `json:"username"`
}

// NewTypingFrame builds a typing frame for username.
func NewTypingFrame(username string) TypingFrame {
	return TypingFrame{Type: TypeTyping, Username: username}
}

// SeenFrame is a read receipt. Clients leave Username empty; the relay
// fills it in when forwarding.
type SeenFrame struct {
	Type       string  `json:"type"`
	Username   string  `json:"username,omitempty"`
	MessageIDs []int64 `json:"message_ids"`
}

// NewSeenFrame builds a read receipt for ids.
func NewSeenFrame(ids []int64) SeenFrame {
	if ids == nil {
		ids = []int64{}
	}
	return SeenFrame{Type: TypeSeen, MessageIDs: ids}
}

// ChatMessageFrame delivers a stored message to room members.
type ChatMessageFrame struct {
	Type string `json:"type"`
	types.ChatMessage
}

// NewChatMessageFrame tags m as an inbound message frame.
func NewChatMessageFrame(m types.ChatMessage) ChatMessageFrame {
	return ChatMessageFrame{Type: TypeMessage, ChatMessage: m}
}

// UserStatusFrame lists the users currently present in a room.
type UserStatusFrame struct {
	Type        string   `json:"type"`
	ActiveUsers []string `json:"active_users"`
}

// NewUserStatusFrame builds a presence frame for users.
func NewUserStatusFrame(users []string) UserStatusFrame {
	if users == nil {
		users = []string{}
	}
	return UserStatusFrame{Type: TypeUserStatus, ActiveUsers: users}
}

// ClientFrame is any frame a client may send to the relay.
type ClientFrame struct {
	Type       string          `json:"type"`
	SenderID   *int64          `json:"sender_id,omitempty"`
	Content    *string         `json:"content,omitempty"`
	Media      json.RawMessage `json:"media,omitempty"`
	Username   string          `json:"username,omitempty"`
	MessageIDs []int64         `json:"message_ids,omitempty"`
}

// Encode serializes a frame to JSON text.
func Encode(frame any) ([]byte, error) {
	data, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return data, nil
}
