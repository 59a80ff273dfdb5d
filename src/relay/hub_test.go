package relay

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/orchestra-mcp/roomchat/src/protocol"
	"github.com/orchestra-mcp/roomchat/src/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockConn implements types.Conn for testing without a real WebSocket.
type mockConn struct {
	mu       sync.Mutex
	written  []any
	readCh   chan protocol.ClientFrame
	closed   bool
	closedCh chan struct{}
}

func newMockConn() *mockConn {
	return &mockConn{
		readCh:   make(chan protocol.ClientFrame, 16),
		closedCh: make(chan struct{}),
	}
}

func (m *mockConn) WriteJSON(v any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.written = append(m.written, v)
	return nil
}

func (m *mockConn) ReadJSON(v any) error {
	select {
	case f := <-m.readCh:
		if ptr, ok := v.(*protocol.ClientFrame); ok {
			*ptr = f
		}
		return nil
	case <-m.closedCh:
		return &closeError{}
	}
}

func (m *mockConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.closedCh)
	}
	return nil
}

func (m *mockConn) getWritten() []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]any, len(m.written))
	copy(cp, m.written)
	return cp
}

// framesOfType re-encodes written frames and returns those with type t.
func (m *mockConn) framesOfType(t *testing.T, frameType string) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, w := range m.getWritten() {
		data, err := json.Marshal(w)
		require.NoError(t, err)
		var f map[string]any
		require.NoError(t, json.Unmarshal(data, &f))
		if f["type"] == frameType {
			out = append(out, f)
		}
	}
	return out
}

type closeError struct{}

func (e *closeError) Error() string { return "connection closed" }

// newTestHub creates a hub and starts its event loop in a goroutine.
func newTestHub(t *testing.T) *Hub {
	t.Helper()
	h := New(zerolog.Nop(), Options{HistorySize: 3})
	go h.Run()
	t.Cleanup(h.Stop)
	return h
}

// joinRoom creates, registers, and starts a mock client.
func joinRoom(t *testing.T, h *Hub, id, username string, roomID int64) (*Client, *mockConn) {
	t.Helper()
	conn := newMockConn()
	client := NewClient(id, username, roomID, conn, h)
	h.Register(client)
	go client.WritePump(0)
	go client.ReadPump()
	require.Eventually(t, func() bool { return h.ClientInfo(id) != nil }, time.Second, 5*time.Millisecond)
	return client, conn
}

func content(s string) *string { return &s }

func TestHubJoinAndLeave(t *testing.T) {
	h := newTestHub(t)

	_, _ = joinRoom(t, h, "c1", "alice", 1)
	_, conn2 := joinRoom(t, h, "c2", "bob", 1)

	assert.Len(t, h.ConnectedClients(), 2)
	assert.Equal(t, []string{"alice", "bob"}, h.ActiveUsers(1))
	assert.Equal(t, map[int64]int{1: 2}, h.Rooms())

	conn2.Close()
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.Nil(t, h.ClientInfo("c2"))
	assert.Equal(t, []string{"alice"}, h.ActiveUsers(1))
}

func TestPresenceBroadcast(t *testing.T) {
	h := newTestHub(t)
	_, conn1 := joinRoom(t, h, "c1", "alice", 1)
	_, _ = joinRoom(t, h, "c2", "bob", 1)
	_, _ = joinRoom(t, h, "c3", "carol", 2)

	require.Eventually(t, func() bool {
		return len(conn1.framesOfType(t, protocol.TypeUserStatus)) == 2
	}, time.Second, 5*time.Millisecond)

	statuses := conn1.framesOfType(t, protocol.TypeUserStatus)
	assert.Equal(t, []any{"alice"}, statuses[0]["active_users"])
	assert.Equal(t, []any{"alice", "bob"}, statuses[1]["active_users"])
}

func TestMessageRelayedToRoom(t *testing.T) {
	h := newTestHub(t)
	_, conn1 := joinRoom(t, h, "c1", "alice", 1)
	_, conn2 := joinRoom(t, h, "c2", "bob", 1)
	_, conn3 := joinRoom(t, h, "c3", "carol", 2)

	conn1.readCh <- protocol.ClientFrame{Type: protocol.TypeMessage, Content: content("hello")}

	require.Eventually(t, func() bool {
		return len(conn2.framesOfType(t, protocol.TypeMessage)) == 1
	}, time.Second, 5*time.Millisecond)

	msg := conn2.framesOfType(t, protocol.TypeMessage)[0]
	assert.Equal(t, "alice", msg["sender"])
	assert.Equal(t, "hello", msg["content"])
	assert.Equal(t, float64(1), msg["id"])
	assert.NotEmpty(t, msg["timestamp"])

	// The sender receives its own message with the assigned id.
	require.Eventually(t, func() bool {
		return len(conn1.framesOfType(t, protocol.TypeMessage)) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, conn3.framesOfType(t, protocol.TypeMessage))
}

func TestTypingExcludesSender(t *testing.T) {
	h := newTestHub(t)
	_, conn1 := joinRoom(t, h, "c1", "alice", 1)
	_, conn2 := joinRoom(t, h, "c2", "bob", 1)

	// The claimed username is replaced by the connection's.
	conn1.readCh <- protocol.ClientFrame{Type: protocol.TypeTyping, Username: "mallory"}

	require.Eventually(t, func() bool {
		return len(conn2.framesOfType(t, protocol.TypeTyping)) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "alice", conn2.framesOfType(t, protocol.TypeTyping)[0]["username"])
	assert.Empty(t, conn1.framesOfType(t, protocol.TypeTyping))
}

func TestSeenUpdatesHistory(t *testing.T) {
	h := newTestHub(t)
	_, conn1 := joinRoom(t, h, "c1", "alice", 1)
	_, conn2 := joinRoom(t, h, "c2", "bob", 1)

	conn1.readCh <- protocol.ClientFrame{Type: protocol.TypeMessage, Content: content("read me")}
	require.Eventually(t, func() bool { return len(h.History(1, 0)) == 1 }, time.Second, 5*time.Millisecond)

	conn2.readCh <- protocol.ClientFrame{Type: protocol.TypeSeen, MessageIDs: []int64{1, 99}}

	require.Eventually(t, func() bool {
		return len(conn1.framesOfType(t, protocol.TypeSeen)) == 1
	}, time.Second, 5*time.Millisecond)
	seen := conn1.framesOfType(t, protocol.TypeSeen)[0]
	assert.Equal(t, "bob", seen["username"])
	assert.Equal(t, []any{float64(1)}, seen["message_ids"])
	assert.Equal(t, []string{"bob"}, h.History(1, 0)[0].SeenBy)
}

func TestHistoryBounded(t *testing.T) {
	h := newTestHub(t)
	_, conn := joinRoom(t, h, "c1", "alice", 1)

	for _, s := range []string{"a", "b", "c", "d"} {
		conn.readCh <- protocol.ClientFrame{Type: protocol.TypeMessage, Content: content(s)}
	}
	require.Eventually(t, func() bool {
		hist := h.History(1, 0)
		return len(hist) == 3 && hist[2].Content == "d"
	}, time.Second, 5*time.Millisecond)

	hist := h.History(1, 2)
	require.Len(t, hist, 2)
	assert.Equal(t, "c", hist[0].Content)
	assert.Equal(t, int64(4), *hist[1].ID)
}

func TestAnnounce(t *testing.T) {
	h := newTestHub(t)
	_, conn := joinRoom(t, h, "c1", "alice", 5)

	frame := h.Announce(5, "system", "maintenance at noon")
	assert.Equal(t, "system", frame.Sender)

	require.Eventually(t, func() bool {
		return len(conn.framesOfType(t, protocol.TypeMessage)) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestSendToClient(t *testing.T) {
	h := newTestHub(t)
	_, conn := joinRoom(t, h, "target", "alice", 1)

	frame := protocol.NewTypingFrame("bob")
	require.True(t, h.SendToClient("target", frame))
	require.Eventually(t, func() bool {
		return len(conn.framesOfType(t, protocol.TypeTyping)) == 1
	}, time.Second, 5*time.Millisecond)

	assert.False(t, h.SendToClient("nonexistent", frame))
}

func TestConnectionCallbacks(t *testing.T) {
	h := newTestHub(t)

	var mu sync.Mutex
	var connected, disconnected types.ClientInfo
	h.OnConnection(func(info types.ClientInfo) {
		mu.Lock()
		connected = info
		mu.Unlock()
	})
	h.OnDisconnection(func(info types.ClientInfo) {
		mu.Lock()
		disconnected = info
		mu.Unlock()
	})

	client, _ := joinRoom(t, h, "cb-client", "alice", 3)
	h.Unregister(client)
	require.Eventually(t, func() bool { return h.ClientCount() == 0 }, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "cb-client", connected.ID)
	assert.Equal(t, int64(3), connected.RoomID)
	assert.Equal(t, "alice", disconnected.Username)
}

func TestRateLimitDropsFrames(t *testing.T) {
	h := New(zerolog.Nop(), Options{MessagesPerSecond: 1, Burst: 2})
	go h.Run()
	t.Cleanup(h.Stop)

	_, conn := joinRoom(t, h, "c1", "alice", 1)
	for i := 0; i < 5; i++ {
		conn.readCh <- protocol.ClientFrame{Type: protocol.TypeMessage, Content: content("spam")}
	}
	require.Eventually(t, func() bool { return len(h.History(1, 0)) == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, h.History(1, 0), 2)
}

func TestStopIsIdempotent(t *testing.T) {
	h := New(zerolog.Nop(), Options{})
	go h.Run()
	h.Stop()
	assert.NotPanics(t, h.Stop)
}
