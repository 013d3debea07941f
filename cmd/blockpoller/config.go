package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ava-labs/avalanche-block-poller/pkg/delta"
	"github.com/ava-labs/avalanche-block-poller/pkg/metrics"
	"github.com/ava-labs/avalanche-block-poller/pkg/poller"
)

const (
	sinkLog   = "log"
	sinkKafka = "kafka"
)

// Config holds all configuration for the blockpoller application
type Config struct {
	// Application settings
	Verbose bool
	EnvFile string

	// Polling settings
	RPCURL      string
	Start       uint64
	StartSet    bool // false: start at the head observed at startup
	End         uint64
	Interval    time.Duration
	PollTimeout time.Duration
	MaxFailures int

	// Fetch settings
	MaxDeltaBlocks   uint64
	FetchConcurrency int

	Sink string

	// Watchdog settings
	StallWatchdogInterval time.Duration
	StallWatchdogMaxIdle  time.Duration

	// Metrics settings
	MetricsHost   string
	MetricsPort   int
	EVMChainID    uint64
	Environment   string
	Region        string
	CloudProvider string
}

// MetricsAddr returns the formatted metrics address
func (c *Config) MetricsAddr() string {
	return fmt.Sprintf("%s:%d", c.MetricsHost, c.MetricsPort)
}

// MetricsLabels returns the constant labels applied to every metric.
func (c *Config) MetricsLabels() metrics.Labels {
	return metrics.Labels{
		EVMChainID:    c.EVMChainID,
		Environment:   c.Environment,
		Region:        c.Region,
		CloudProvider: c.CloudProvider,
	}
}

// FetcherOptions returns the delta fetcher options derived from the config.
func (c *Config) FetcherOptions(m *metrics.Metrics) []delta.Option {
	return []delta.Option{
		delta.WithMaxBlocks(c.MaxDeltaBlocks),
		delta.WithConcurrency(c.FetchConcurrency),
		delta.WithMetrics(m),
	}
}

func (c *Config) RunnerConfig() poller.RunnerConfig {
	return poller.RunnerConfig{
		EndHeight:   c.End,
		MaxFailures: c.MaxFailures,
		PollTimeout: c.PollTimeout,
	}
}

// buildConfig builds a Config from CLI context flags
func buildConfig(c *cli.Context) (*Config, error) {
	cfg := &Config{
		Verbose:               c.Bool("verbose"),
		EnvFile:               c.String("env-file"),
		RPCURL:                c.String("rpc-url"),
		Start:                 c.Uint64("start-height"),
		StartSet:              c.IsSet("start-height"),
		End:                   c.Uint64("end-height"),
		Interval:              c.Duration("poll-interval"),
		PollTimeout:           c.Duration("poll-timeout"),
		MaxFailures:           c.Int("max-failures"),
		MaxDeltaBlocks:        c.Uint64("max-delta-blocks"),
		FetchConcurrency:      c.Int("fetch-concurrency"),
		Sink:                  c.String("sink"),
		StallWatchdogInterval: c.Duration("stall-watchdog-interval"),
		StallWatchdogMaxIdle:  c.Duration("stall-watchdog-max-idle"),
		MetricsHost:           c.String("metrics-host"),
		MetricsPort:           c.Int("metrics-port"),
		EVMChainID:            c.Uint64("evm-chain-id"),
		Environment:           c.String("environment"),
		Region:                c.String("region"),
		CloudProvider:         c.String("cloud-provider"),
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.RPCURL == "" {
		return errors.New("rpc-url must not be empty")
	}
	if c.Interval <= 0 {
		return fmt.Errorf("poll-interval must be greater than 0, got %s", c.Interval)
	}
	if c.PollTimeout < 0 {
		return fmt.Errorf("poll-timeout must not be negative, got %s", c.PollTimeout)
	}
	if c.MaxFailures <= 0 {
		return fmt.Errorf("max-failures must be greater than 0, got %d", c.MaxFailures)
	}
	if c.FetchConcurrency < 0 {
		return fmt.Errorf("fetch-concurrency must not be negative, got %d", c.FetchConcurrency)
	}
	if c.StartSet && c.End > 0 && c.End <= c.Start {
		return fmt.Errorf("end-height %d must be greater than start-height %d", c.End, c.Start)
	}
	switch c.Sink {
	case sinkLog, sinkKafka:
	default:
		return fmt.Errorf("invalid sink %q: must be %q or %q", c.Sink, sinkLog, sinkKafka)
	}
	return nil
}
