package config

import (
	"fmt"
	"os"
	"time"
)

const (
	DefaultAddr        = ":8080"
	DefaultGracePeriod = 5 * time.Minute
)

// ServerConfig holds signaling server configuration
type ServerConfig struct {
	Addr        string
	GracePeriod time.Duration

	// RedisURL selects the Redis room store when set
	RedisURL string

	// GinMode is passed to gin.SetMode
	GinMode string
}

// ServerOptions for loading server config with CLI flag overrides
type ServerOptions struct {
	Addr        string
	GracePeriod time.Duration
	RedisURL    string
}

// LoadServer reads server configuration: flags > env > defaults.
func LoadServer(opts ServerOptions) (*ServerConfig, error) {
	addr := opts.Addr
	if addr == "" {
		if port := os.Getenv("PORT"); port != "" {
			addr = ":" + port
		}
	}
	if addr == "" {
		addr = DefaultAddr
	}

	grace := opts.GracePeriod
	if grace == 0 {
		if v := os.Getenv("ROOM_GRACE_PERIOD"); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return nil, fmt.Errorf("invalid ROOM_GRACE_PERIOD %q: %w", v, err)
			}
			grace = d
		}
	}
	if grace == 0 {
		grace = DefaultGracePeriod
	}
	if grace < 0 {
		return nil, fmt.Errorf("grace period must be positive, got %s", grace)
	}

	mode := os.Getenv("GIN_MODE")
	if mode == "" {
		mode = "release"
	}

	return &ServerConfig{
		Addr:        addr,
		GracePeriod: grace,
		RedisURL:    firstNonEmpty(opts.RedisURL, os.Getenv("REDIS_URL")),
		GinMode:     mode,
	}, nil
}
