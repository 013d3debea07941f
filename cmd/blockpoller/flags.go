package main

import (
	"time"

	"github.com/urfave/cli/v2"
)

// runFlags returns all CLI flags for the blockpoller run command
func runFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "Enable verbose logging",
			EnvVars: []string{"VERBOSE"},
			Value:   false,
		},
		&cli.StringFlag{
			Name:    "env-file",
			Usage:   "Optional file of KEY=VALUE pairs loaded into the environment before reading RPC_* and KAFKA_* settings",
			EnvVars: []string{"ENV_FILE"},
		},
		&cli.StringFlag{
			Name:     "rpc-url",
			Aliases:  []string{"r"},
			Usage:    "The RPC URL (http, ws or ipc) to poll blocks from",
			EnvVars:  []string{"RPC_URL"},
			Required: true,
		},
		&cli.Uint64Flag{
			Name:    "start-height",
			Aliases: []string{"s"},
			Usage:   "Deliver blocks above this height. If not specified, starts at the current head and only delivers new blocks",
			EnvVars: []string{"START_HEIGHT"},
		},
		&cli.Uint64Flag{
			Name:    "end-height",
			Aliases: []string{"e"},
			Usage:   "Stop after delivering this height. If not specified, polls forever",
			EnvVars: []string{"END_HEIGHT"},
		},
		&cli.DurationFlag{
			Name:    "poll-interval",
			Aliases: []string{"i"},
			Usage:   "Minimum time between the start of two polls",
			EnvVars: []string{"POLL_INTERVAL"},
			Value:   1 * time.Second,
		},
		&cli.DurationFlag{
			Name:    "poll-timeout",
			Usage:   "Deadline for a single poll, including every block request (0 disables it)",
			EnvVars: []string{"POLL_TIMEOUT"},
			Value:   30 * time.Second,
		},
		&cli.IntFlag{
			Name:    "max-failures",
			Aliases: []string{"f"},
			Usage:   "The number of consecutive recoverable poll failures before stopping",
			EnvVars: []string{"MAX_FAILURES"},
			Value:   3,
		},
		&cli.Uint64Flag{
			Name:    "max-delta-blocks",
			Usage:   "Fail a poll that would fetch more blocks than this (0 for the built-in bound of 1 GiB of block records)",
			EnvVars: []string{"MAX_DELTA_BLOCKS"},
		},
		&cli.IntFlag{
			Name:    "fetch-concurrency",
			Aliases: []string{"c"},
			Usage:   "Maximum concurrent block requests per poll (0 for one request per block)",
			EnvVars: []string{"FETCH_CONCURRENCY"},
		},
		&cli.StringFlag{
			Name:    "sink",
			Usage:   "Where to deliver blocks: 'log' or 'kafka' (configured through KAFKA_* variables)",
			EnvVars: []string{"SINK"},
			Value:   sinkLog,
		},
		&cli.DurationFlag{
			Name:    "stall-watchdog-interval",
			Usage:   "How often to check that new blocks are still arriving (0 disables the watchdog)",
			EnvVars: []string{"STALL_WATCHDOG_INTERVAL"},
			Value:   15 * time.Second,
		},
		&cli.DurationFlag{
			Name:    "stall-watchdog-max-idle",
			Usage:   "Warn and report unhealthy when no block was delivered for this long (0 disables the check)",
			EnvVars: []string{"STALL_WATCHDOG_MAX_IDLE"},
			Value:   2 * time.Minute,
		},
		&cli.StringFlag{
			Name:    "metrics-host",
			Usage:   "Host for Prometheus metrics server (empty for all interfaces)",
			EnvVars: []string{"METRICS_HOST"},
			Value:   "",
		},
		&cli.IntFlag{
			Name:    "metrics-port",
			Aliases: []string{"m"},
			Usage:   "Port for Prometheus metrics server",
			EnvVars: []string{"METRICS_PORT"},
			Value:   9090,
		},
		&cli.Uint64Flag{
			Name:    "evm-chain-id",
			Aliases: []string{"C"},
			Usage:   "EVM chain ID for metrics labels (e.g., 43114)",
			EnvVars: []string{"EVM_CHAIN_ID"},
		},
		&cli.StringFlag{
			Name:    "environment",
			Aliases: []string{"E"},
			Usage:   "Deployment environment for metrics labels (e.g., 'production', 'staging')",
			EnvVars: []string{"ENVIRONMENT"},
			Value:   "",
		},
		&cli.StringFlag{
			Name:    "region",
			Aliases: []string{"R"},
			Usage:   "Cloud region for metrics labels (e.g., 'us-east-1')",
			EnvVars: []string{"REGION"},
			Value:   "",
		},
		&cli.StringFlag{
			Name:    "cloud-provider",
			Aliases: []string{"P"},
			Usage:   "Cloud provider for metrics labels (e.g., 'aws', 'oci', 'gcp')",
			EnvVars: []string{"CLOUD_PROVIDER"},
			Value:   "",
		},
	}
}
