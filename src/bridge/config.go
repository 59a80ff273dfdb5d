package bridge

import (
	"github.com/caarlos0/env/v11"
)

// RedisConfig holds connection settings for the Redis pub/sub bridge.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"`      // default "localhost:6379"
	Password string `env:"REDIS_PASSWORD"`  // default ""
	DB       int    `env:"REDIS_DB"`        // default 0
	Prefix   string `env:"REDIS_WS_PREFIX"` // default "roomchat:relay:"
}

// DefaultRedisConfig returns a RedisConfig with sensible defaults.
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:   "localhost:6379",
		Prefix: "roomchat:relay:",
	}
}

// RedisConfigFromEnv loads Redis configuration from environment variables.
// Falls back to defaults when a variable is missing or cannot be parsed.
func RedisConfigFromEnv() *RedisConfig {
	cfg := DefaultRedisConfig()
	if err := env.Parse(cfg); err != nil {
		return DefaultRedisConfig()
	}
	return cfg
}
