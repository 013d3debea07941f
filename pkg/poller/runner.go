package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ava-labs/avalanche-block-poller/internal/types"
	"github.com/ava-labs/avalanche-block-poller/pkg/delta"
	"github.com/ava-labs/avalanche-block-poller/pkg/metrics"
	"github.com/ava-labs/avalanche-block-poller/pkg/scheduler"
	"github.com/ava-labs/avalanche-block-poller/pkg/sink"
)

var ErrMaxFailuresExceeded = errors.New("max consecutive poll failures exceeded")

// Cursor is the polling surface shared by Poller and Synchronized.
type Cursor interface {
	PollOnce(ctx context.Context) ([]types.BlockRecord, error)
	Watermark() uint64
}

var (
	_ Cursor = (*Poller)(nil)
	_ Cursor = (*Synchronized)(nil)
)

type RunnerConfig struct {
	EndHeight   uint64        // 0 polls forever
	MaxFailures int           // consecutive recoverable failures tolerated
	PollTimeout time.Duration // 0 disables the per-poll deadline
}

// Runner turns a Cursor and a Sink into a scheduler action.
type Runner struct {
	log     *zap.SugaredLogger
	cursor  Cursor
	sink    sink.Sink
	cfg     RunnerConfig
	metrics *metrics.Metrics

	// Only touched from Step, which the scheduler never runs concurrently.
	failures int
}

func NewRunner(log *zap.SugaredLogger, cursor Cursor, s sink.Sink, cfg RunnerConfig, m *metrics.Metrics) (*Runner, error) {
	if log == nil {
		return nil, errors.New("invalid logger: must not be nil")
	}
	if cursor == nil {
		return nil, errors.New("invalid cursor: must not be nil")
	}
	if s == nil {
		return nil, errors.New("invalid sink: must not be nil")
	}
	if cfg.MaxFailures <= 0 {
		return nil, errors.New("invalid max failures: must be greater than 0")
	}
	if cfg.PollTimeout < 0 {
		return nil, errors.New("invalid poll timeout: must not be negative")
	}
	return &Runner{
		log:     log,
		cursor:  cursor,
		sink:    s,
		cfg:     cfg,
		metrics: m,
	}, nil
}

// Step polls once and publishes the new blocks. It is meant to be passed to
// scheduler.FixedRate.Run.
//
// Recoverable delta errors are retried on the next step until MaxFailures
// consecutive failures have been seen. Consistency faults and sink failures
// end the run immediately.
func (r *Runner) Step(ctx context.Context) (scheduler.Signal, error) {
	if r.reachedEnd() {
		return r.stop(), nil
	}

	records, err := r.poll(ctx)
	if err != nil {
		return scheduler.Continue, r.handleFailure(err)
	}
	r.failures = 0

	records = r.clip(records)
	if len(records) > 0 {
		if err := r.sink.Publish(ctx, records); err != nil {
			r.metrics.IncError(metrics.ErrTypeSinkPublish)
			return scheduler.Continue, fmt.Errorf("publish blocks %d-%d: %w",
				records[0].Height, records[len(records)-1].Height, err)
		}
		r.log.Infow("delivered blocks",
			"from", records[0].Height,
			"to", records[len(records)-1].Height,
			"count", len(records),
		)
	}

	if r.reachedEnd() {
		return r.stop(), nil
	}
	return scheduler.Continue, nil
}

func (r *Runner) poll(ctx context.Context) ([]types.BlockRecord, error) {
	if r.cfg.PollTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.PollTimeout)
		defer cancel()
	}
	return r.cursor.PollOnce(ctx)
}

func (r *Runner) handleFailure(err error) error {
	if !delta.IsRecoverable(err) {
		r.log.Errorw("unrecoverable poll failure", "watermark", r.cursor.Watermark(), "error", err)
		return err
	}

	r.failures++
	if r.failures >= r.cfg.MaxFailures {
		r.metrics.IncError(metrics.ErrTypeMaxFailuresExceeded)
		return fmt.Errorf("%w: %d in a row: %w", ErrMaxFailuresExceeded, r.failures, err)
	}
	r.log.Warnw("poll failed, retrying",
		"watermark", r.cursor.Watermark(),
		"failures", r.failures,
		"maxFailures", r.cfg.MaxFailures,
		"error", err,
	)
	return nil
}

// clip drops records above the configured end height.
func (r *Runner) clip(records []types.BlockRecord) []types.BlockRecord {
	if r.cfg.EndHeight == 0 {
		return records
	}
	for i, rec := range records {
		if rec.Height > r.cfg.EndHeight {
			return records[:i]
		}
	}
	return records
}

func (r *Runner) reachedEnd() bool {
	return r.cfg.EndHeight > 0 && r.cursor.Watermark() >= r.cfg.EndHeight
}

func (r *Runner) stop() scheduler.Signal {
	return scheduler.Stop(fmt.Sprintf("reached end height %d", r.cfg.EndHeight))
}
