package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/orchestra-mcp/roomchat/src/types"
)

var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrMissingType    = errors.New("frame has no type")
	ErrUnknownType    = errors.New("unknown frame type")
	ErrMissingField   = errors.New("missing required field")
)

// Event is the typed result of decoding one inbound frame.
type Event interface {
	Type() string
	event()
}

// MessageEvent carries a message received in the room.
type MessageEvent struct {
	Message types.ChatMessage
}

// TypingEvent reports that Username is typing.
type TypingEvent struct {
	Username string
}

// SeenEvent is a read receipt forwarded by the relay.
type SeenEvent struct {
	Username   string
	MessageIDs []int64
}

// UserStatusEvent carries the full list of active users.
type UserStatusEvent struct {
	ActiveUsers []string
}

// Ignored is produced for frames that cannot be acted upon.
// Err wraps one of the package sentinel errors.
type Ignored struct {
	FrameType string
	Err       error
}

func (MessageEvent) Type() string    { return TypeMessage }
func (TypingEvent) Type() string     { return TypeTyping }
func (SeenEvent) Type() string       { return TypeSeen }
func (UserStatusEvent) Type() string { return TypeUserStatus }
func (i Ignored) Type() string       { return i.FrameType }

func (MessageEvent) event()    {}
func (TypingEvent) event()     {}
func (SeenEvent) event()       {}
func (UserStatusEvent) event() {}
func (Ignored) event()         {}

// inboundFrame is the union of all server-to-client frame fields.
// Pointers distinguish absent fields from zero values.
type inboundFrame struct {
	Type        *string         `json:"type"`
	ID          *int64          `json:"id"`
	Sender      *string         `json:"sender"`
	Content     *string         `json:"content"`
	Media       json.RawMessage `json:"media"`
	Timestamp   *string         `json:"timestamp"`
	SeenBy      []string        `json:"seen_by"`
	Username    *string         `json:"username"`
	MessageIDs  []int64         `json:"message_ids"`
	ActiveUsers []string        `json:"active_users"`
}

// Decode parses one inbound frame. It never fails: frames that are not
// valid JSON, lack a type, have an unknown type or miss a required field
// come back as Ignored.
func Decode(data []byte) Event {
	var f inboundFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return Ignored{Err: fmt.Errorf("%w: %v", ErrMalformedFrame, err)}
	}
	if f.Type == nil {
		return Ignored{Err: ErrMissingType}
	}

	switch *f.Type {
	case TypeMessage:
		if f.Sender == nil {
			return missing(TypeMessage, "sender")
		}
		if f.Content == nil {
			return missing(TypeMessage, "content")
		}
		return MessageEvent{Message: types.ChatMessage{
			ID:        f.ID,
			Sender:    *f.Sender,
			Content:   *f.Content,
			Media:     f.Media,
			Timestamp: f.Timestamp,
			SeenBy:    f.SeenBy,
		}}
	case TypeTyping:
		if f.Username == nil {
			return missing(TypeTyping, "username")
		}
		return TypingEvent{Username: *f.Username}
	case TypeSeen:
		ev := SeenEvent{MessageIDs: f.MessageIDs}
		if f.Username != nil {
			ev.Username = *f.Username
		}
		return ev
	case TypeUserStatus:
		users := f.ActiveUsers
		if users == nil {
			users = []string{}
		}
		return UserStatusEvent{ActiveUsers: users}
	default:
		return Ignored{FrameType: *f.Type, Err: fmt.Errorf("%w: %q", ErrUnknownType, *f.Type)}
	}
}

func missing(frameType, field string) Ignored {
	return Ignored{FrameType: frameType, Err: fmt.Errorf("%w: %s.%s", ErrMissingField, frameType, field)}
}
