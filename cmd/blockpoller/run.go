package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ava-labs/avalanche-block-poller/internal/chainclient/evm"
	"github.com/ava-labs/avalanche-block-poller/pkg/delta"
	"github.com/ava-labs/avalanche-block-poller/pkg/kafka"
	"github.com/ava-labs/avalanche-block-poller/pkg/metrics"
	"github.com/ava-labs/avalanche-block-poller/pkg/poller"
	"github.com/ava-labs/avalanche-block-poller/pkg/scheduler"
	"github.com/ava-labs/avalanche-block-poller/pkg/sink"
	"github.com/ava-labs/avalanche-block-poller/pkg/utils"

	confluentKafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

const metricsShutdownTimeout = 5 * time.Second

func run(c *cli.Context) error {
	// Build configuration from CLI flags
	cfg, err := buildConfig(c)
	if err != nil {
		return fmt.Errorf("failed to build config: %w", err)
	}

	sugar, err := utils.NewSugaredLogger(cfg.Verbose, "evmChainID", cfg.EVMChainID)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer sugar.Desugar().Sync() //nolint:errcheck // best-effort flush; ignore sync errors

	if cfg.EnvFile != "" {
		if err := godotenv.Load(cfg.EnvFile); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", cfg.EnvFile, err)
		}
	}

	sugar.Infow("config",
		"verbose", cfg.Verbose,
		"rpcURL", cfg.RPCURL,
		"start", cfg.Start,
		"startSet", cfg.StartSet,
		"end", cfg.End,
		"pollInterval", cfg.Interval,
		"pollTimeout", cfg.PollTimeout,
		"maxFailures", cfg.MaxFailures,
		"maxDeltaBlocks", cfg.MaxDeltaBlocks,
		"fetchConcurrency", cfg.FetchConcurrency,
		"sink", cfg.Sink,
		"stallWatchdogInterval", cfg.StallWatchdogInterval,
		"stallWatchdogMaxIdle", cfg.StallWatchdogMaxIdle,
		"metricsHost", cfg.MetricsHost,
		"metricsPort", cfg.MetricsPort,
		"evmChainID", cfg.EVMChainID,
		"environment", cfg.Environment,
		"region", cfg.Region,
		"cloudProvider", cfg.CloudProvider,
	)

	// Initialize Prometheus metrics with labels for multi-instance filtering
	registry := prometheus.NewRegistry()
	m, err := metrics.NewWithLabels(registry, cfg.MetricsLabels())
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rpcCfg, err := evm.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load rpc config: %w", err)
	}
	client, err := evm.New(ctx, cfg.RPCURL, append(rpcCfg.Options(), evm.WithMetrics(m))...)
	if err != nil {
		return fmt.Errorf("failed to dial rpc: %w", err)
	}
	defer client.Close()

	start := cfg.Start
	if !cfg.StartSet {
		start, err = client.CurrentHeight(ctx)
		if err != nil {
			return fmt.Errorf("failed to get latest block height: %w", err)
		}
		sugar.Infof("start block height: not specified, delivering blocks above the current head %d", start)
	} else {
		sugar.Infof("start block height: delivering blocks above %d", start)
	}
	if cfg.End > 0 {
		sugar.Infof("end block height: %d", cfg.End)
	} else {
		sugar.Infof("end block height: not specified, will poll until stopped")
	}

	p, err := poller.New(client, start,
		poller.WithFetcher(delta.New(cfg.FetcherOptions(m)...)),
		poller.WithLogger(sugar),
		poller.WithMetrics(m),
	)
	if err != nil {
		return fmt.Errorf("failed to create poller: %w", err)
	}

	snk, sinkErrs, closeSink, err := newSink(ctx, cfg, sugar, m)
	if err != nil {
		return err
	}
	defer closeSink()

	runner, err := poller.NewRunner(sugar, p, snk, cfg.RunnerConfig(), m)
	if err != nil {
		return fmt.Errorf("failed to create runner: %w", err)
	}

	sched, err := scheduler.New(cfg.Interval, scheduler.WithLogger(sugar), scheduler.WithMetrics(m))
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	// Start metrics server
	metricsServer := metrics.NewServer(cfg.MetricsAddr(), registry, metrics.WithHealthCheck(func() error {
		return p.Stalled(cfg.StallWatchdogMaxIdle)
	}))
	metricsErrCh := metricsServer.Start()
	if cfg.MetricsHost == "" {
		sugar.Infof("metrics server listening on http://0.0.0.0:%d/metrics", cfg.MetricsPort)
	} else {
		sugar.Infof("metrics server listening on http://%s/metrics", cfg.MetricsAddr())
	}

	g, gctx := errgroup.WithContext(ctx)
	// Cancelled when the scheduler stops so the helpers below exit too.
	runCtx, cancelRun := context.WithCancel(gctx)
	defer cancelRun()

	g.Go(func() error {
		defer cancelRun()
		reason, err := sched.Run(gctx, runner.Step)
		if err != nil {
			return err
		}
		sugar.Infow("poller finished", "reason", reason, "watermark", p.Watermark())
		return nil
	})
	g.Go(func() error {
		select {
		case <-runCtx.Done():
			return nil
		case err := <-metricsErrCh:
			if err != nil {
				return fmt.Errorf("metrics server failed: %w", err)
			}
			return nil
		}
	})
	g.Go(func() error {
		select {
		case <-runCtx.Done():
			return nil
		case err, ok := <-sinkErrs:
			if !ok {
				return nil
			}
			return err
		}
	})

	if cfg.StallWatchdogInterval > 0 {
		go poller.StartStallWatchdog(runCtx, sugar, p, cfg.StallWatchdogInterval, cfg.StallWatchdogMaxIdle)
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		sugar.Infow("exiting due to context cancellation", "watermark", p.Watermark())
		err = nil
	} else if err != nil {
		sugar.Errorw("run failed", "watermark", p.Watermark(), "error", err)
	}

	// Gracefully shutdown metrics server
	sugar.Info("shutting down metrics server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
	defer cancel()
	if serr := metricsServer.Shutdown(shutdownCtx); serr != nil {
		sugar.Warnw("metrics server shutdown error", "error", serr)
	}

	sugar.Info("shutdown complete")
	return err
}

// newSink builds the configured sink. The returned channel reports fatal
// asynchronous sink failures and is nil for sinks that have none; the close
// function must be called once the scheduler has stopped.
func newSink(ctx context.Context, cfg *Config, log *zap.SugaredLogger, m *metrics.Metrics) (sink.Sink, <-chan error, func(), error) {
	if cfg.Sink == sinkLog {
		return sink.NewLog(log, m), nil, func() {}, nil
	}

	kafkaCfg, err := kafka.LoadProducerConfig()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load kafka config: %w", err)
	}
	log.Infow("kafka config",
		"brokers", kafkaCfg.Brokers,
		"topic", kafkaCfg.Topic,
		"clientID", kafkaCfg.ClientID,
		"ensureTopic", kafkaCfg.EnsureTopic,
		"sasl", kafkaCfg.SASL.Enabled(),
	)

	if kafkaCfg.EnsureTopic {
		admin, err := confluentKafka.NewAdminClient(kafkaCfg.AdminConfigMap())
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to create kafka admin client: %w", err)
		}
		err = kafka.EnsureTopic(ctx, admin, kafkaCfg.TopicConfig(), log)
		admin.Close()
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to ensure kafka topic exists: %w", err)
		}
	}

	producer, err := kafka.NewProducer(ctx, kafkaCfg.ConfigMap(), log)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	closeProducer := func() { producer.Close(*kafkaCfg.FlushTimeout) }
	return sink.NewKafka(producer, kafkaCfg.Topic, log, m), producer.Errors(), closeProducer, nil
}
