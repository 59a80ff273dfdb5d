// Package session keeps the client-side state of one chat room: received
// messages, who is typing and who is present. It consumes a Socket owned
// by someone else and never closes it.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/orchestra-mcp/roomchat/src/logging"
	"github.com/orchestra-mcp/roomchat/src/protocol"
	"github.com/orchestra-mcp/roomchat/src/scheduler"
	"github.com/orchestra-mcp/roomchat/src/types"
	"github.com/orchestra-mcp/roomchat/src/typing"
	"github.com/rs/zerolog"
)

// Options configures a Manager.
type Options struct {
	RoomID int64
	// Logging disables all output when false.
	Logging bool
	// TypingTimeout defaults to typing.DefaultTimeout.
	TypingTimeout time.Duration
	// Scheduler defaults to scheduler.System.
	Scheduler scheduler.Scheduler
	// OnChange is called after every state change, outside the manager lock.
	OnChange func()
}

// Snapshot is a copy of the session state.
type Snapshot struct {
	Messages        []types.ChatMessage `json:"messages"`
	TypingUsernames []string            `json:"typing_usernames"`
	ActiveUsernames []string            `json:"active_usernames"`
	IsConnected     bool                `json:"is_connected"`
}

// Manager is the state of one room session.
type Manager struct {
	id       string
	roomID   int64
	socket   types.Socket
	logger   zerolog.Logger
	typing   *typing.Tracker
	onChange func()

	mu       sync.RWMutex
	messages []types.ChatMessage
	active   []string
	closed   bool
}

// New creates a manager for opts.RoomID and attaches it to socket's
// inbound callback.
func New(socket types.Socket, logger zerolog.Logger, opts Options) *Manager {
	id := uuid.New().String()
	m := &Manager{
		id:     id,
		roomID: opts.RoomID,
		socket: socket,
		logger: logging.Toggle(logger, opts.Logging).With().
			Str("component", "session").
			Str("session_id", id).
			Int64("room_id", opts.RoomID).
			Logger(),
		typing:   typing.New(opts.Scheduler, opts.TypingTimeout),
		onChange: opts.OnChange,
		active:   []string{},
	}
	m.typing.OnExpire(m.typingExpired)
	socket.SetOnMessage(m.HandleFrame)
	return m
}

// ID returns the session identifier used in logs.
func (m *Manager) ID() string { return m.id }

// RoomID returns the room this session follows.
func (m *Manager) RoomID() int64 { return m.roomID }

// Socket returns the underlying connection handle.
func (m *Manager) Socket() types.Socket { return m.socket }

// Snapshot returns a copy of the current state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	msgs := make([]types.ChatMessage, len(m.messages))
	copy(msgs, m.messages)
	active := make([]string, len(m.active))
	copy(active, m.active)
	typingNames := m.typing.Usernames()
	m.mu.RUnlock()

	return Snapshot{
		Messages:        msgs,
		TypingUsernames: typingNames,
		ActiveUsernames: active,
		IsConnected:     m.socket.IsConnected(),
	}
}

// HandleFrame processes one inbound frame. It is the callback attached to
// the socket; frames arriving after Close are dropped.
func (m *Manager) HandleFrame(data []byte) {
	ev := protocol.Decode(data)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	changed := m.apply(ev)
	m.mu.Unlock()

	if changed {
		m.notify()
	}
}

// apply mutates state for ev. Caller holds m.mu.
func (m *Manager) apply(ev protocol.Event) bool {
	switch e := ev.(type) {
	case protocol.MessageEvent:
		m.messages = append(m.messages, e.Message)
		m.logger.Debug().Str("sender", e.Message.Sender).Int("count", len(m.messages)).Msg("message received")
		return true
	case protocol.TypingEvent:
		if m.typing.Touch(e.Username) {
			m.logger.Debug().Str("username", e.Username).Msg("user typing")
		}
		return true
	case protocol.SeenEvent:
		m.logger.Debug().Str("username", e.Username).Ints64("message_ids", e.MessageIDs).Msg("seen receipt")
		return false
	case protocol.UserStatusEvent:
		m.active = e.ActiveUsers
		m.logger.Debug().Strs("active_users", e.ActiveUsers).Msg("user status")
		return true
	case protocol.Ignored:
		m.logger.Warn().Err(e.Err).Str("type", e.FrameType).Msg("frame ignored")
		return false
	}
	return false
}

// SendMessage writes payload to the room. On success senderUsername is
// removed from the typing set.
func (m *Manager) SendMessage(payload types.OutgoingMessage, senderUsername string) bool {
	if !m.send(protocol.NewMessageFrame(payload)) {
		return false
	}
	if m.typing.Clear(senderUsername) {
		m.notify()
	}
	return true
}

// SendTypingNotification tells the room that username is typing.
func (m *Manager) SendTypingNotification(username string) bool {
	return m.send(protocol.NewTypingFrame(username))
}

// SendSeenReceipt marks ids as read.
func (m *Manager) SendSeenReceipt(ids []int64) bool {
	return m.send(protocol.NewSeenFrame(ids))
}

// send writes frame when the socket is open. Frames are never queued.
func (m *Manager) send(frame any) bool {
	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		m.logger.Warn().Msg("send on closed session")
		return false
	}

	if state := m.socket.ReadyState(); state != types.StateOpen {
		m.logger.Warn().Str("state", state.String()).Msg("socket not open, frame dropped")
		return false
	}

	data, err := protocol.Encode(frame)
	if err != nil {
		m.logger.Error().Err(err).Msg("frame dropped")
		return false
	}
	if err := m.socket.WriteText(data); err != nil {
		m.logger.Warn().Err(err).Msg("write failed, frame dropped")
		return false
	}
	return true
}

// Close detaches from the socket and cancels every typing timer. Nothing
// touches session state afterwards. Close is idempotent.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	m.socket.SetOnMessage(nil)
	n := m.typing.StopAll()
	m.logger.Debug().Int("timers", n).Msg("session closed")
}

func (m *Manager) typingExpired(username string) {
	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return
	}
	m.logger.Debug().Str("username", username).Msg("typing expired")
	m.notify()
}

func (m *Manager) notify() {
	if m.onChange != nil {
		m.onChange()
	}
}
