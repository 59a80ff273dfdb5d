package session

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/orchestra-mcp/roomchat/src/scheduler"
	"github.com/orchestra-mcp/roomchat/src/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSocket implements types.Socket and records writes.
type fakeSocket struct {
	mu        sync.Mutex
	state     types.ReadyState
	onMessage func([]byte)
	written   [][]byte
	writeErr  error
}

func newFakeSocket(state types.ReadyState) *fakeSocket {
	return &fakeSocket{state: state}
}

func (s *fakeSocket) ReadyState() types.ReadyState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *fakeSocket) IsConnected() bool { return s.ReadyState() == types.StateOpen }

func (s *fakeSocket) WriteText(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	s.written = append(s.written, data)
	return nil
}

func (s *fakeSocket) SetOnMessage(fn func([]byte)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onMessage = fn
}

func (s *fakeSocket) setState(state types.ReadyState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// deliver pushes a frame through the attached callback, as the read pump would.
func (s *fakeSocket) deliver(frame string) {
	s.mu.Lock()
	fn := s.onMessage
	s.mu.Unlock()
	if fn != nil {
		fn([]byte(frame))
	}
}

func (s *fakeSocket) attached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.onMessage != nil
}

func (s *fakeSocket) getWritten() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.written))
	for i, w := range s.written {
		out[i] = string(w)
	}
	return out
}

func newTestManager(t *testing.T, state types.ReadyState) (*Manager, *fakeSocket, *scheduler.Manual) {
	t.Helper()
	sock := newFakeSocket(state)
	sched := scheduler.NewManual()
	m := New(sock, zerolog.Nop(), Options{RoomID: 9, Logging: true, Scheduler: sched})
	t.Cleanup(m.Close)
	return m, sock, sched
}

func TestNewAttachesHandler(t *testing.T) {
	m, sock, _ := newTestManager(t, types.StateOpen)
	assert.True(t, sock.attached())
	assert.Equal(t, int64(9), m.RoomID())
	assert.Same(t, sock, m.Socket())
	assert.NotEmpty(t, m.ID())
}

func TestMessagesPreserveArrivalOrder(t *testing.T) {
	m, sock, _ := newTestManager(t, types.StateOpen)

	sock.deliver(`{"type":"message","id":3,"sender":"a","content":"first"}`)
	sock.deliver(`not json`)
	sock.deliver(`{"type":"message","id":1,"sender":"b","content":"second"}`)
	sock.deliver(`{"type":"message","sender":"c"}`)
	sock.deliver(`{"type":"message","id":2,"sender":"c","content":"third"}`)

	snap := m.Snapshot()
	require.Len(t, snap.Messages, 3)
	assert.Equal(t, "first", snap.Messages[0].Content)
	assert.Equal(t, "second", snap.Messages[1].Content)
	assert.Equal(t, "third", snap.Messages[2].Content)
}

func TestManyMessagesCount(t *testing.T) {
	m, sock, _ := newTestManager(t, types.StateOpen)
	for i := 0; i < 50; i++ {
		sock.deliver(fmt.Sprintf(`{"type":"message","id":%d,"sender":"a","content":"m%d"}`, i, i))
	}
	snap := m.Snapshot()
	require.Len(t, snap.Messages, 50)
	for i, msg := range snap.Messages {
		assert.Equal(t, int64(i), *msg.ID)
	}
}

func TestTypingDeduplicatedAndExpiresFromLastFrame(t *testing.T) {
	m, sock, sched := newTestManager(t, types.StateOpen)

	sock.deliver(`{"type":"typing","username":"bob"}`)
	sched.Advance(2500 * time.Millisecond)
	sock.deliver(`{"type":"typing","username":"bob"}`)
	assert.Equal(t, []string{"bob"}, m.Snapshot().TypingUsernames)

	// 3000ms after the first frame: still typing.
	sched.Advance(500 * time.Millisecond)
	assert.Equal(t, []string{"bob"}, m.Snapshot().TypingUsernames)

	sched.Advance(2499 * time.Millisecond)
	assert.Equal(t, []string{"bob"}, m.Snapshot().TypingUsernames)

	sched.Advance(time.Millisecond)
	assert.Empty(t, m.Snapshot().TypingUsernames)
}

func TestSendMessageClearsTyping(t *testing.T) {
	m, sock, sched := newTestManager(t, types.StateOpen)

	sock.deliver(`{"type":"typing","username":"bob"}`)
	sock.deliver(`{"type":"typing","username":"carol"}`)

	ok := m.SendMessage(types.OutgoingMessage{SenderID: 2, Content: "hi"}, "bob")
	require.True(t, ok)
	assert.Equal(t, []string{"carol"}, m.Snapshot().TypingUsernames)

	// The cancelled timer window passes without effect.
	sched.Advance(3 * time.Second)
	assert.Empty(t, m.Snapshot().TypingUsernames)
}

func TestFailedSendKeepsTyping(t *testing.T) {
	m, sock, _ := newTestManager(t, types.StateOpen)
	sock.deliver(`{"type":"typing","username":"bob"}`)

	sock.setState(types.StateClosed)
	assert.False(t, m.SendMessage(types.OutgoingMessage{SenderID: 2, Content: "hi"}, "bob"))
	assert.Equal(t, []string{"bob"}, m.Snapshot().TypingUsernames)
}

func TestCloseThenTimerFireIsNoop(t *testing.T) {
	changes := 0
	sock := newFakeSocket(types.StateOpen)
	sched := scheduler.NewManual()
	m := New(sock, zerolog.Nop(), Options{RoomID: 1, Scheduler: sched, OnChange: func() { changes++ }})

	sock.deliver(`{"type":"typing","username":"bob"}`)
	sock.deliver(`{"type":"message","sender":"bob","content":"x"}`)
	before := m.Snapshot()
	beforeChanges := changes

	m.Close()
	assert.False(t, sock.attached())
	assert.Zero(t, sched.Pending())

	assert.NotPanics(t, func() {
		sched.Advance(10 * time.Second)
		m.HandleFrame([]byte(`{"type":"message","sender":"bob","content":"late"}`))
		m.Close()
	})

	after := m.Snapshot()
	assert.Equal(t, before.Messages, after.Messages)
	assert.Equal(t, beforeChanges, changes)
	assert.Empty(t, after.TypingUsernames)
}

func TestSendsWhenNotOpen(t *testing.T) {
	for _, state := range []types.ReadyState{types.StateConnecting, types.StateClosing, types.StateClosed} {
		t.Run(state.String(), func(t *testing.T) {
			m, sock, _ := newTestManager(t, state)

			assert.False(t, m.SendMessage(types.OutgoingMessage{SenderID: 1, Content: "x"}, "a"))
			assert.False(t, m.SendTypingNotification("a"))
			assert.False(t, m.SendSeenReceipt([]int64{1}))
			assert.Empty(t, sock.getWritten())
		})
	}
}

func TestSendsWhenOpen(t *testing.T) {
	m, sock, _ := newTestManager(t, types.StateOpen)

	require.True(t, m.SendMessage(types.OutgoingMessage{SenderID: 5, Content: "hello"}, "eve"))
	written := sock.getWritten()
	require.Len(t, written, 1)
	assert.JSONEq(t, `{"type":"message","sender_id":5,"content":"hello"}`, written[0])

	require.True(t, m.SendTypingNotification("eve"))
	written = sock.getWritten()
	require.Len(t, written, 2)
	assert.JSONEq(t, `{"type":"typing","username":"eve"}`, written[1])

	require.True(t, m.SendSeenReceipt([]int64{4, 5}))
	written = sock.getWritten()
	require.Len(t, written, 3)
	assert.JSONEq(t, `{"type":"seen","message_ids":[4,5]}`, written[2])
}

func TestSendWriteError(t *testing.T) {
	m, sock, _ := newTestManager(t, types.StateOpen)
	sock.writeErr = errors.New("broken pipe")
	assert.False(t, m.SendTypingNotification("a"))
}

func TestSendAfterClose(t *testing.T) {
	m, sock, _ := newTestManager(t, types.StateOpen)
	m.Close()
	assert.False(t, m.SendTypingNotification("a"))
	assert.Empty(t, sock.getWritten())
}

func TestUserStatusReplaces(t *testing.T) {
	m, sock, _ := newTestManager(t, types.StateOpen)

	sock.deliver(`{"type":"user_status","active_users":["a","b"]}`)
	assert.Equal(t, []string{"a", "b"}, m.Snapshot().ActiveUsernames)

	sock.deliver(`{"type":"user_status","active_users":["c"]}`)
	assert.Equal(t, []string{"c"}, m.Snapshot().ActiveUsernames)

	sock.deliver(`{"type":"user_status","active_users":[]}`)
	assert.Empty(t, m.Snapshot().ActiveUsernames)

	sock.deliver(`{"type":"user_status","active_users":["d"]}`)
	sock.deliver(`{"type":"user_status"}`)
	assert.Empty(t, m.Snapshot().ActiveUsernames)
}

func TestMalformedAndIgnoredFramesChangeNothing(t *testing.T) {
	changes := 0
	sock := newFakeSocket(types.StateOpen)
	m := New(sock, zerolog.Nop(), Options{Scheduler: scheduler.NewManual(), OnChange: func() { changes++ }})
	t.Cleanup(m.Close)

	sock.deliver(`{"type":"user_status","active_users":["a"]}`)
	before := m.Snapshot()
	changes = 0

	assert.NotPanics(t, func() {
		sock.deliver(`{{{`)
		sock.deliver(``)
		sock.deliver(`{"type":"reaction","emoji":"+1"}`)
		sock.deliver(`{"type":"seen","username":"a","message_ids":[1]}`)
		sock.deliver(`{"type":"typing"}`)
	})

	assert.Equal(t, before, m.Snapshot())
	assert.Zero(t, changes)
}

func TestSeenDoesNotTouchMessages(t *testing.T) {
	m, sock, _ := newTestManager(t, types.StateOpen)
	sock.deliver(`{"type":"message","id":1,"sender":"a","content":"x","seen_by":["a"]}`)
	sock.deliver(`{"type":"seen","username":"b","message_ids":[1]}`)

	msgs := m.Snapshot().Messages
	require.Len(t, msgs, 1)
	assert.Equal(t, []string{"a"}, msgs[0].SeenBy)
}

func TestSnapshotIsACopy(t *testing.T) {
	m, sock, _ := newTestManager(t, types.StateOpen)
	sock.deliver(`{"type":"message","sender":"a","content":"x"}`)
	sock.deliver(`{"type":"user_status","active_users":["a"]}`)

	snap := m.Snapshot()
	snap.Messages[0].Content = "mutated"
	snap.ActiveUsernames[0] = "mutated"

	again := m.Snapshot()
	assert.Equal(t, "x", again.Messages[0].Content)
	assert.Equal(t, "a", again.ActiveUsernames[0])
	assert.True(t, again.IsConnected)
}

func TestOnChangeOnTypingExpiry(t *testing.T) {
	changes := 0
	sock := newFakeSocket(types.StateOpen)
	sched := scheduler.NewManual()
	m := New(sock, zerolog.Nop(), Options{Scheduler: sched, TypingTimeout: time.Second, OnChange: func() { changes++ }})
	t.Cleanup(m.Close)

	sock.deliver(`{"type":"typing","username":"bob"}`)
	assert.Equal(t, 1, changes)

	sched.Advance(time.Second)
	assert.Equal(t, 2, changes)
	assert.Empty(t, m.Snapshot().TypingUsernames)
}

func TestConcurrentFramesAndTimers(t *testing.T) {
	sock := newFakeSocket(types.StateOpen)
	m := New(sock, zerolog.Nop(), Options{TypingTimeout: time.Millisecond})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				sock.deliver(fmt.Sprintf(`{"type":"typing","username":"u%d"}`, i))
				sock.deliver(`{"type":"message","sender":"a","content":"x"}`)
				m.SendMessage(types.OutgoingMessage{Content: "y"}, fmt.Sprintf("u%d", i))
			}
		}(i)
	}
	wg.Wait()
	m.Close()

	assert.Len(t, m.Snapshot().Messages, 400)
	assert.Empty(t, m.Snapshot().TypingUsernames)
}

func TestLoggingEnabledWritesWarnings(t *testing.T) {
	var buf bytes.Buffer
	sock := newFakeSocket(types.StateClosed)
	m := New(sock, zerolog.New(&buf), Options{Logging: true, Scheduler: scheduler.NewManual()})
	t.Cleanup(m.Close)

	assert.False(t, m.SendTypingNotification("a"))
	assert.Contains(t, buf.String(), `"level":"warn"`)
	assert.Contains(t, buf.String(), "socket not open")

	buf.Reset()
	sock.deliver(`{{{`)
	assert.Contains(t, buf.String(), `"level":"warn"`)
	assert.Contains(t, buf.String(), "frame ignored")
}

func TestLoggingDisabledIsSilent(t *testing.T) {
	var buf bytes.Buffer
	sock := newFakeSocket(types.StateClosed)
	m := New(sock, zerolog.New(&buf), Options{Logging: false, Scheduler: scheduler.NewManual()})

	assert.False(t, m.SendMessage(types.OutgoingMessage{Content: "x"}, "a"))
	sock.deliver(`{{{`)
	sock.deliver(`{"type":"message","sender":"a","content":"x"}`)
	m.Close()
	assert.False(t, m.SendSeenReceipt([]int64{1}))

	assert.Zero(t, buf.Len())
}

func TestSnapshotFromOnChangeSeesTypingAndMessages(t *testing.T) {
	sock := newFakeSocket(types.StateOpen)
	var snaps []Snapshot
	var m *Manager
	m = New(sock, zerolog.Nop(), Options{
		Scheduler: scheduler.NewManual(),
		OnChange:  func() { snaps = append(snaps, m.Snapshot()) },
	})
	t.Cleanup(m.Close)

	sock.deliver(`{"type":"typing","username":"bob"}`)
	sock.deliver(`{"type":"message","id":1,"sender":"bob","content":"hi"}`)

	require.Len(t, snaps, 2)
	assert.Equal(t, []string{"bob"}, snaps[0].TypingUsernames)
	assert.Empty(t, snaps[0].Messages)
	assert.Equal(t, []string{"bob"}, snaps[1].TypingUsernames)
	assert.Len(t, snaps[1].Messages, 1)
}
