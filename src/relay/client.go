package relay

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/orchestra-mcp/roomchat/src/protocol"
	"github.com/orchestra-mcp/roomchat/src/types"
	"golang.org/x/time/rate"
)

// Client is one member connection of a room.
type Client struct {
	ID          string
	Username    string
	RoomID      int64
	conn        types.Conn
	hub         *Hub
	Send        chan any
	connectedAt time.Time
	limiter     *rate.Limiter
	mu          sync.Mutex
	done        chan struct{}
	closed      bool
}

// NewClient creates a room member bound to conn.
func NewClient(id, username string, roomID int64, conn types.Conn, h *Hub) *Client {
	return &Client{
		ID:          id,
		Username:    username,
		RoomID:      roomID,
		conn:        conn,
		hub:         h,
		Send:        make(chan any, 256),
		connectedAt: time.Now(),
		limiter:     h.newLimiter(),
		done:        make(chan struct{}),
	}
}

// Info returns metadata about this client.
func (c *Client) Info() types.ClientInfo {
	return types.ClientInfo{
		ID:          c.ID,
		Username:    c.Username,
		RoomID:      c.RoomID,
		ConnectedAt: c.connectedAt,
	}
}

// ReadPump reads frames from the connection and routes them to the hub.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	for {
		var frame protocol.ClientFrame
		if err := c.conn.ReadJSON(&frame); err != nil {
			if isDecodeError(err) {
				c.hub.logger.Warn().Err(err).Str("client_id", c.ID).Msg("malformed frame")
				continue
			}
			return
		}
		if c.limiter != nil && !c.limiter.Allow() {
			c.hub.logger.Warn().Str("client_id", c.ID).Str("type", frame.Type).Msg("rate limited, dropping")
			continue
		}
		select {
		case c.hub.incoming <- inbound{client: c, frame: frame}:
		case <-c.hub.done:
			return
		}
	}
}

// WritePump writes queued frames to the connection. When the connection
// supports it, a ping is sent every pingInterval.
func (c *Client) WritePump(pingInterval time.Duration) {
	defer c.conn.Close()

	var tick <-chan time.Time
	pinger, canPing := c.conn.(types.Pinger)
	if canPing && pingInterval > 0 {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case frame := <-c.Send:
			if err := c.conn.WriteJSON(frame); err != nil {
				return
			}
		case <-tick:
			if err := pinger.Ping(); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// Close signals the client to stop its pumps.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.done)
	}
}

func isDecodeError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}
