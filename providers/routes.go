package providers

import (
	"strconv"
	"strings"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/orchestra-mcp/roomchat/config"
	"github.com/orchestra-mcp/roomchat/src/relay"
	"github.com/valyala/fasthttp"
)

// RegisterRoutes registers the relay info and admin routes.
// Room connections are upgraded by handleUpgrade, outside fiber, since
// Fiber v3 does not expose *fasthttp.RequestCtx to handlers.
func (s *RelayServer) RegisterRoutes(group fiber.Router) {
	group.Get("/ws/info", s.handleInfo)
	group.Get("/clients", s.handleListClients)
	group.Get("/rooms", s.handleListRooms)
	group.Get("/rooms/:id/users", s.handleRoomUsers)
	group.Get("/rooms/:id/history", s.handleRoomHistory)
	group.Post("/rooms/:id/announce", s.handleAnnounce)
}

func (s *RelayServer) handleInfo(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"websocket": true,
		"endpoint":  config.RoomPathPrefix + "{room_id}?username={name}",
		"clients":   s.hub.ClientCount(),
		"rooms":     len(s.hub.Rooms()),
		"bridge":    s.bridge != nil && s.bridge.Available(),
	})
}

// handleUpgrade accepts a connection at /ws/rooms/{room_id}?username=NAME.
func (s *RelayServer) handleUpgrade(ctx *fasthttp.RequestCtx) {
	upgrade := string(ctx.Request.Header.Peek("Upgrade"))
	if !strings.EqualFold(upgrade, "websocket") {
		ctx.SetStatusCode(fasthttp.StatusUpgradeRequired)
		ctx.SetBodyString(`{"error":"upgrade_required","message":"WebSocket upgrade required"}`)
		return
	}

	roomID, err := strconv.ParseInt(strings.TrimPrefix(string(ctx.Path()), config.RoomPathPrefix), 10, 64)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusBadRequest)
		ctx.SetBodyString(`{"error":"bad_room","message":"room id must be an integer"}`)
		return
	}
	username := strings.TrimSpace(string(ctx.QueryArgs().Peek("username")))
	if username == "" {
		ctx.SetStatusCode(fasthttp.StatusBadRequest)
		ctx.SetBodyString(`{"error":"username_required","message":"username query parameter required"}`)
		return
	}
	if s.cfg.MaxConnections > 0 && s.hub.ClientCount() >= s.cfg.MaxConnections {
		ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
		ctx.SetBodyString(`{"error":"full","message":"connection limit reached"}`)
		return
	}

	clientID := uuid.New().String()
	h := s.hub
	logger := s.logger

	err = s.upgrader.Upgrade(ctx, func(conn *websocket.Conn) {
		client := relay.NewClient(clientID, username, roomID, &fasthttpConn{conn: conn, writeTimeout: s.cfg.WriteTimeout}, h)
		h.Register(client)
		go client.WritePump(s.cfg.PingInterval)
		client.ReadPump()
	})
	if err != nil {
		logger.Error().Err(err).Msg("websocket upgrade failed")
	}
}

// fasthttpConn wraps fasthttp/websocket.Conn to satisfy types.Conn and types.Pinger.
type fasthttpConn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
}

func (f *fasthttpConn) WriteJSON(v any) error {
	if f.writeTimeout > 0 {
		_ = f.conn.SetWriteDeadline(time.Now().Add(f.writeTimeout))
	}
	return f.conn.WriteJSON(v)
}

func (f *fasthttpConn) ReadJSON(v any) error { return f.conn.ReadJSON(v) }
func (f *fasthttpConn) Close() error         { return f.conn.Close() }

func (f *fasthttpConn) Ping() error {
	return f.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second))
}
