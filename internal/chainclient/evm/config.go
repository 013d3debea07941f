package evm

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	DefaultRequestTimeout = 10 * time.Second
)

// Config holds transport tuning for the EVM client. The endpoint itself comes
// from the --rpc-url flag.
type Config struct {
	RequestTimeout time.Duration `env:"RPC_REQUEST_TIMEOUT" envDefault:"10s"` // Per-request deadline, 0 disables it
	MaxInFlight    int64         `env:"RPC_MAX_IN_FLIGHT"   envDefault:"0"`   // Concurrent request cap, 0 means unlimited
}

// LoadConfig loads the client configuration from environment variables.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse rpc config: %w", err)
	}
	if cfg.MaxInFlight < 0 {
		return Config{}, fmt.Errorf("RPC_MAX_IN_FLIGHT must not be negative, got %d", cfg.MaxInFlight)
	}
	return cfg, nil
}

// Options converts the configuration into client options.
func (c Config) Options() []Option {
	var opts []Option
	if c.RequestTimeout > 0 {
		opts = append(opts, WithRequestTimeout(c.RequestTimeout))
	}
	if c.MaxInFlight > 0 {
		opts = append(opts, WithMaxInFlight(c.MaxInFlight))
	}
	return opts
}
