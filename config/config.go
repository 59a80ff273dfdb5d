package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// RelayConfig holds room relay server configuration.
type RelayConfig struct {
	Addr              string        `env:"ROOMRELAY_ADDR"`
	MaxConnections    int           `env:"ROOMRELAY_MAX_CONNECTIONS"`
	PingInterval      time.Duration `env:"ROOMRELAY_PING_INTERVAL"`
	WriteTimeout      time.Duration `env:"ROOMRELAY_WRITE_TIMEOUT"`
	ReadBufferSize    int           `env:"ROOMRELAY_READ_BUFFER_SIZE"`
	WriteBufferSize   int           `env:"ROOMRELAY_WRITE_BUFFER_SIZE"`
	MessagesPerSecond int           `env:"ROOMRELAY_MESSAGES_PER_SECOND"`
	Burst             int           `env:"ROOMRELAY_BURST"`
	HistorySize       int           `env:"ROOMRELAY_HISTORY_SIZE"`
	LogLevel          string        `env:"ROOMRELAY_LOG_LEVEL"`
	LogFormat         string        `env:"ROOMRELAY_LOG_FORMAT"`
	// RedisBridge enables the cross-instance bridge; see bridge.RedisConfig.
	RedisBridge bool `env:"ROOMRELAY_REDIS_BRIDGE"`
}

// DefaultConfig returns the default relay configuration.
func DefaultConfig() *RelayConfig {
	return &RelayConfig{
		Addr:              ":8090",
		MaxConnections:    1000,
		PingInterval:      30 * time.Second,
		WriteTimeout:      10 * time.Second,
		ReadBufferSize:    1024,
		WriteBufferSize:   1024,
		MessagesPerSecond: 10,
		Burst:             20,
		HistorySize:       200,
		LogLevel:          "info",
		LogFormat:         "console",
		RedisBridge:       true,
	}
}

// LoadRelayConfig starts from DefaultConfig and applies ROOMRELAY_*
// environment overrides.
func LoadRelayConfig() (*RelayConfig, error) {
	cfg := DefaultConfig()
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse relay env: %w", err)
	}
	return cfg, nil
}

// ClientConfig holds terminal client configuration.
type ClientConfig struct {
	URL           string        `env:"ROOMCHAT_URL"            envDefault:"ws://localhost:8090"`
	RoomID        int64         `env:"ROOMCHAT_ROOM_ID"        envDefault:"1"`
	Username      string        `env:"ROOMCHAT_USERNAME,required,notEmpty"`
	UserID        int64         `env:"ROOMCHAT_USER_ID"`
	Logging       bool          `env:"ROOMCHAT_LOGGING"        envDefault:"true"`
	LogLevel      string        `env:"ROOMCHAT_LOG_LEVEL"      envDefault:"info"`
	LogFile       string        `env:"ROOMCHAT_LOG_FILE"       envDefault:"roomchat.log"`
	TypingTimeout time.Duration `env:"ROOMCHAT_TYPING_TIMEOUT" envDefault:"3s"`
	DialTimeout   time.Duration `env:"ROOMCHAT_DIAL_TIMEOUT"   envDefault:"10s"`
}

// LoadClientConfig reads ROOMCHAT_* variables. ROOMCHAT_USERNAME is required.
func LoadClientConfig() (*ClientConfig, error) {
	var cfg ClientConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse client env: %w", err)
	}
	return &cfg, nil
}

// RoomURL returns the WebSocket URL for the configured room.
func (c *ClientConfig) RoomURL() string {
	return RoomURL(c.URL, c.RoomID, c.Username)
}
