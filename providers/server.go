package providers

import (
	"fmt"
	"net"
	"strings"

	"github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v3"
	"github.com/orchestra-mcp/roomchat/config"
	"github.com/orchestra-mcp/roomchat/src/bridge"
	"github.com/orchestra-mcp/roomchat/src/relay"
	"github.com/orchestra-mcp/roomchat/src/service"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
)

// RelayServer wires the relay hub, its service, the optional Redis bridge
// and the HTTP surface together.
type RelayServer struct {
	active   bool
	cfg      *config.RelayConfig
	logger   zerolog.Logger
	hub      *relay.Hub
	service  *service.Service
	bridge   bridge.Bridge
	app      *fiber.App
	server   *fasthttp.Server
	upgrader websocket.FastHTTPUpgrader
}

// NewRelayServer creates a relay server. Call Activate before serving.
func NewRelayServer(cfg *config.RelayConfig, logger zerolog.Logger) *RelayServer {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &RelayServer{
		cfg:    cfg,
		logger: logger.With().Str("component", "relay-server").Logger(),
		upgrader: websocket.FastHTTPUpgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
		},
	}
}

// Activate initializes the hub and service, starts the event loop and
// builds the HTTP handlers.
func (s *RelayServer) Activate() error {
	if s.active {
		return fmt.Errorf("relay server already active")
	}
	s.hub = relay.New(s.logger, relay.Options{
		HistorySize:       s.cfg.HistorySize,
		MessagesPerSecond: s.cfg.MessagesPerSecond,
		Burst:             s.cfg.Burst,
	})
	s.service = service.New(s.hub, s.logger)

	go s.hub.Run()

	// Attempt Redis bridge connection (non-fatal if unavailable).
	if s.cfg.RedisBridge {
		s.initBridge()
	}

	s.app = fiber.New(fiber.Config{AppName: "roomrelay"})
	s.RegisterRoutes(s.app)
	s.server = &fasthttp.Server{
		Name:    "roomrelay",
		Handler: s.Handler(),
	}

	s.active = true
	s.logger.Info().Str("addr", s.cfg.Addr).Msg("relay server activated")
	return nil
}

// initBridge tries to start the Redis pub/sub bridge.
// If Redis is not reachable, the relay runs in standalone mode.
func (s *RelayServer) initBridge() {
	cfg := bridge.RedisConfigFromEnv()
	rb := bridge.NewRedisBridge(cfg, s.hub, s.logger)

	if err := rb.Start(); err != nil {
		s.logger.Warn().Err(err).Msg("redis bridge unavailable, running standalone")
		_ = rb.Stop()
		return
	}

	s.bridge = rb
	s.hub.SetBridge(rb)
	s.logger.Info().Str("redis_addr", cfg.Addr).Msg("redis bridge connected")
}

// Handler routes room WebSocket upgrades to the hub and everything else
// to the fiber app.
func (s *RelayServer) Handler() fasthttp.RequestHandler {
	api := s.app.Handler()
	return func(ctx *fasthttp.RequestCtx) {
		if strings.HasPrefix(string(ctx.Path()), config.RoomPathPrefix) {
			s.handleUpgrade(ctx)
			return
		}
		api(ctx)
	}
}

// App returns the fiber application serving the HTTP routes.
func (s *RelayServer) App() *fiber.App { return s.app }

// Service exposes the relay service.
func (s *RelayServer) Service() *service.Service { return s.service }

// ListenAndServe serves on the configured address until Deactivate.
func (s *RelayServer) ListenAndServe() error {
	return s.server.ListenAndServe(s.cfg.Addr)
}

// Serve serves on ln until Deactivate.
func (s *RelayServer) Serve(ln net.Listener) error {
	return s.server.Serve(ln)
}

// Deactivate disconnects every client and stops the bridge, the HTTP
// server and the hub event loop.
func (s *RelayServer) Deactivate() error {
	if !s.active {
		return nil
	}
	if s.bridge != nil {
		if err := s.bridge.Stop(); err != nil {
			s.logger.Error().Err(err).Msg("bridge stop error")
		}
		s.bridge = nil
	}
	s.hub.DisconnectAll()
	if err := s.server.Shutdown(); err != nil {
		s.logger.Error().Err(err).Msg("http shutdown error")
	}
	s.hub.Stop()
	s.active = false
	s.logger.Info().Msg("relay server deactivated")
	return nil
}
