package types

import (
	"encoding/json"
	"time"
)

// ChatMessage is a message received in a room.
// Optional fields are nil when the frame did not carry them.
type ChatMessage struct {
	ID        *int64          `json:"id,omitempty"`
	Sender    string          `json:"sender"`
	Content   string          `json:"content"`
	Media     json.RawMessage `json:"media,omitempty"`
	Timestamp *string         `json:"timestamp,omitempty"`
	SeenBy    []string        `json:"seen_by,omitempty"`
}

// OutgoingMessage is the body of a message sent to the room.
type OutgoingMessage struct {
	SenderID int64           `json:"sender_id"`
	Content  string          `json:"content"`
	Media    json.RawMessage `json:"media,omitempty"`
}

// ReadyState mirrors the lifecycle of a WebSocket connection.
type ReadyState int

const (
	StateConnecting ReadyState = iota
	StateOpen
	StateClosing
	StateClosed
)

// String returns the string representation of a ReadyState.
func (s ReadyState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Socket is the client side of a room connection as seen by a session.
// The session never closes it.
type Socket interface {
	ReadyState() ReadyState
	IsConnected() bool
	WriteText(data []byte) error
	// SetOnMessage replaces the inbound callback. A nil fn detaches it.
	SetOnMessage(fn func(data []byte))
}

// Conn abstracts a server-side WebSocket connection for testability.
type Conn interface {
	WriteJSON(v any) error
	ReadJSON(v any) error
	Close() error
}

// Pinger is implemented by connections that support keepalive pings.
type Pinger interface {
	Ping() error
}

// ClientInfo holds metadata about a client connected to the relay.
type ClientInfo struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	RoomID      int64     `json:"room_id"`
	ConnectedAt time.Time `json:"connected_at"`
}
