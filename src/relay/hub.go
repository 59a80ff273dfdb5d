package relay

import (
	"sort"
	"sync"

	"github.com/orchestra-mcp/roomchat/src/protocol"
	"github.com/orchestra-mcp/roomchat/src/types"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// DefaultHistorySize bounds the messages kept per room.
const DefaultHistorySize = 200

// MessageBridge publishes room frames to other relay instances.
// Defined here to avoid circular imports with the bridge package.
type MessageBridge interface {
	Publish(roomID int64, frame any) error
	Available() bool
}

// Options tunes a Hub. Zero values select defaults; a zero
// MessagesPerSecond disables rate limiting.
type Options struct {
	HistorySize       int
	MessagesPerSecond int
	Burst             int
}

// Hub relays frames between the members of each room.
type Hub struct {
	clients map[string]*Client
	rooms   map[int64]*room

	register   chan *Client
	unregister chan *Client
	incoming   chan inbound
	broadcast  chan roomFrame
	localCast  chan roomFrame // frames from the bridge, never re-published

	onConnect []func(types.ClientInfo)
	onDisconn []func(types.ClientInfo)

	historySize int
	rateLimit   rate.Limit
	burst       int

	bridge MessageBridge
	mu     sync.RWMutex
	logger zerolog.Logger
	done   chan struct{}
	stop   sync.Once
}

type inbound struct {
	client *Client
	frame  protocol.ClientFrame
}

type roomFrame struct {
	roomID int64
	frame  any
}

// New creates a new Hub instance.
func New(logger zerolog.Logger, opts Options) *Hub {
	if opts.HistorySize <= 0 {
		opts.HistorySize = DefaultHistorySize
	}
	if opts.Burst <= 0 {
		opts.Burst = opts.MessagesPerSecond
	}
	return &Hub{
		clients:     make(map[string]*Client),
		rooms:       make(map[int64]*room),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		incoming:    make(chan inbound, 256),
		broadcast:   make(chan roomFrame, 256),
		localCast:   make(chan roomFrame, 256),
		historySize: opts.HistorySize,
		rateLimit:   rate.Limit(opts.MessagesPerSecond),
		burst:       opts.Burst,
		logger:      logger.With().Str("component", "relay").Logger(),
		done:        make(chan struct{}),
	}
}

// SetBridge attaches a cross-instance bridge. Relayed room frames are
// also forwarded to other instances.
func (h *Hub) SetBridge(b MessageBridge) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.bridge = b
}

// BroadcastToLocal delivers a frame from the bridge to local room members
// only. It does not re-publish, preventing loops.
func (h *Hub) BroadcastToLocal(roomID int64, frame any) {
	select {
	case h.localCast <- roomFrame{roomID: roomID, frame: frame}:
	case <-h.done:
	}
}

// Run starts the hub event loop. Call in a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case in := <-h.incoming:
			h.handleFrame(in)
		case rf := <-h.broadcast:
			h.publishToBridge(rf)
			h.broadcastToRoom(rf.roomID, rf.frame, "")
		case rf := <-h.localCast:
			h.broadcastToRoom(rf.roomID, rf.frame, "")
		case <-h.done:
			return
		}
	}
}

// Stop halts the hub event loop. It is safe to call more than once.
func (h *Hub) Stop() {
	h.stop.Do(func() { close(h.done) })
}

// DisconnectAll closes every client connection. Read pumps then
// unregister their clients through the event loop.
func (h *Hub) DisconnectAll() int {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.Close()
		_ = c.conn.Close()
	}
	return len(clients)
}

// Register queues a client for registration.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
	}
}

// Unregister queues a client for removal.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) newLimiter() *rate.Limiter {
	if h.rateLimit <= 0 {
		return nil
	}
	return rate.NewLimiter(h.rateLimit, h.burst)
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	r := h.roomLocked(c.RoomID)
	r.members[c.ID] = c
	h.mu.Unlock()

	h.logger.Info().
		Str("client_id", c.ID).
		Str("username", c.Username).
		Int64("room_id", c.RoomID).
		Msg("client joined")

	h.broadcastPresence(c.RoomID)
	for _, cb := range h.onConnect {
		cb(c.Info())
	}
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.ID)
	if r, ok := h.rooms[c.RoomID]; ok {
		delete(r.members, c.ID)
	}
	h.mu.Unlock()

	c.Close()
	h.logger.Info().
		Str("client_id", c.ID).
		Int64("room_id", c.RoomID).
		Msg("client left")

	h.broadcastPresence(c.RoomID)
	for _, cb := range h.onDisconn {
		cb(c.Info())
	}
}

// broadcastPresence sends the sorted member usernames to the room.
func (h *Hub) broadcastPresence(roomID int64) {
	h.broadcastToRoom(roomID, protocol.NewUserStatusFrame(h.ActiveUsers(roomID)), "")
}

func (h *Hub) roomLocked(roomID int64) *room {
	r, ok := h.rooms[roomID]
	if !ok {
		r = newRoom(roomID, h.historySize)
		h.rooms[roomID] = r
	}
	return r
}

func sortedUsernames(members map[string]*Client) []string {
	seen := make(map[string]bool, len(members))
	names := make([]string, 0, len(members))
	for _, c := range members {
		if seen[c.Username] {
			continue
		}
		seen[c.Username] = true
		names = append(names, c.Username)
	}
	sort.Strings(names)
	return names
}
