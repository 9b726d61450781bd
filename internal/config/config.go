package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Port     int    `env:"PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Optional. When set, the pairing rate limit window is shared across
	// relay instances instead of tracked per process.
	RedisURL string `env:"REDIS_URL"`

	MaxFrameBytes         int64 `env:"MAX_FRAME_BYTES" envDefault:"1048576"`
	MaxBodyBytes          int64 `env:"MAX_BODY_BYTES" envDefault:"262144"`
	MaxPendingPerNode     int   `env:"MAX_PENDING_PER_NODE" envDefault:"64"`
	RequestTimeoutSeconds int   `env:"REQUEST_TIMEOUT_SECONDS" envDefault:"30"`
	SessionTTLSeconds     int   `env:"SESSION_TTL_SECONDS" envDefault:"2592000"`
	PairingCodeTTLSeconds int   `env:"PAIRING_CODE_TTL_SECONDS" envDefault:"600"`
	PairRateLimitPerMin   int   `env:"PAIR_RATE_LIMIT_PER_MIN" envDefault:"10"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLSeconds) * time.Second
}

func (c *Config) PairingCodeTTL() time.Duration {
	return time.Duration(c.PairingCodeTTLSeconds) * time.Second
}

func (c *Config) Validate() error {
	if c.MaxFrameBytes <= 0 {
		return fmt.Errorf("MAX_FRAME_BYTES must be positive")
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("MAX_BODY_BYTES must be positive")
	}
	if c.MaxBodyBytes > c.MaxFrameBytes {
		// A decoded body can never travel in a frame smaller than itself.
		return fmt.Errorf("MAX_BODY_BYTES (%d) must not exceed MAX_FRAME_BYTES (%d)", c.MaxBodyBytes, c.MaxFrameBytes)
	}
	if c.MaxPendingPerNode <= 0 {
		return fmt.Errorf("MAX_PENDING_PER_NODE must be positive")
	}
	if c.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT_SECONDS must be positive")
	}
	if c.SessionTTLSeconds <= 0 {
		return fmt.Errorf("SESSION_TTL_SECONDS must be positive")
	}
	if c.PairingCodeTTLSeconds <= 0 {
		return fmt.Errorf("PAIRING_CODE_TTL_SECONDS must be positive")
	}
	if c.PairRateLimitPerMin <= 0 {
		return fmt.Errorf("PAIR_RATE_LIMIT_PER_MIN must be positive")
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
