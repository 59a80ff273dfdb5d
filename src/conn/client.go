// Package conn dials a room relay and exposes the connection as a
// types.Socket. It does not reconnect; callers dial again.
package conn

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/orchestra-mcp/roomchat/src/types"
	"github.com/rs/zerolog"
)

// ErrNotOpen is returned by WriteText unless the connection is open.
var ErrNotOpen = errors.New("connection not open")

// Options tunes Dial.
type Options struct {
	Header       http.Header
	WriteTimeout time.Duration
	// NetDialContext overrides how the TCP connection is made.
	NetDialContext func(ctx context.Context, network, addr string) (net.Conn, error)
	Logger         zerolog.Logger
}

// Client is a client-side room connection.
type Client struct {
	ws           *websocket.Conn
	url          string
	writeTimeout time.Duration
	logger       zerolog.Logger

	mu        sync.RWMutex
	state     types.ReadyState
	onMessage func([]byte)
	onState   []func(types.ReadyState)

	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

// Dial connects to url and starts the read pump.
func Dial(ctx context.Context, url string, opts Options) (*Client, error) {
	dialer := &websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
		NetDialContext:   opts.NetDialContext,
	}
	ws, _, err := dialer.DialContext(ctx, url, opts.Header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	c := &Client{
		ws:           ws,
		url:          url,
		writeTimeout: opts.WriteTimeout,
		logger:       opts.Logger.With().Str("component", "conn").Str("url", url).Logger(),
		state:        types.StateOpen,
		done:         make(chan struct{}),
	}
	go c.readPump()

	c.logger.Info().Msg("connected")
	return c, nil
}

// ReadyState implements types.Socket.
func (c *Client) ReadyState() types.ReadyState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// IsConnected implements types.Socket.
func (c *Client) IsConnected() bool {
	return c.ReadyState() == types.StateOpen
}

// SetOnMessage implements types.Socket.
func (c *Client) SetOnMessage(fn func([]byte)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = fn
}

// OnStateChange registers a callback for ready state transitions.
func (c *Client) OnStateChange(fn func(types.ReadyState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = append(c.onState, fn)
}

// Done is closed once the read pump exits.
func (c *Client) Done() <-chan struct{} { return c.done }

// WriteText sends one text frame.
func (c *Client) WriteText(data []byte) error {
	if c.ReadyState() != types.StateOpen {
		return ErrNotOpen
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.writeTimeout > 0 {
		if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return fmt.Errorf("set write deadline: %w", err)
		}
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Close performs the closing handshake, waits for the read pump and
// releases the connection. Calling Close more than once is safe.
func (c *Client) Close() error {
	if c.transition(types.StateOpen, types.StateClosing) {
		c.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		err := c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.writeMu.Unlock()
		if err != nil {
			c.logger.Debug().Err(err).Msg("close handshake failed")
		}

		select {
		case <-c.done:
		case <-time.After(2 * time.Second):
			c.logger.Warn().Msg("close handshake timed out")
		}
	}

	var err error
	c.closeOnce.Do(func() { err = c.ws.Close() })
	return err
}

func (c *Client) readPump() {
	defer func() {
		c.setState(types.StateClosed)
		close(c.done)
	}()

	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn().Err(err).Msg("connection lost")
			} else {
				c.logger.Info().Msg("disconnected")
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}

		c.mu.RLock()
		fn := c.onMessage
		c.mu.RUnlock()
		if fn != nil {
			fn(data)
		}
	}
}

func (c *Client) transition(from, to types.ReadyState) bool {
	c.mu.Lock()
	if c.state != from {
		c.mu.Unlock()
		return false
	}
	c.state = to
	cbs := append([]func(types.ReadyState){}, c.onState...)
	c.mu.Unlock()

	for _, cb := range cbs {
		cb(to)
	}
	return true
}

func (c *Client) setState(to types.ReadyState) {
	c.mu.Lock()
	if c.state == to {
		c.mu.Unlock()
		return
	}
	c.state = to
	cbs := append([]func(types.ReadyState){}, c.onState...)
	c.mu.Unlock()

	for _, cb := range cbs {
		cb(to)
	}
}
