package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/ava-labs/avalanche-block-poller/pkg/metrics"
)

var ErrInvalidPeriod = errors.New("period must be positive")

// Signal tells the scheduler whether to run another iteration.
type Signal struct {
	stop   bool
	reason string
}

// Continue asks the scheduler to run the action again.
var Continue = Signal{}

// Stop asks the scheduler to return reason to its caller.
func Stop(reason string) Signal {
	return Signal{stop: true, reason: reason}
}

// Stopped reports whether the signal terminates the loop.
func (s Signal) Stopped() bool { return s.stop }

// Reason returns the stop reason, empty for Continue.
func (s Signal) Reason() string { return s.reason }

// Action is a single iteration of scheduled work. A non-nil error is fatal
// and ends the loop.
type Action func(ctx context.Context) (Signal, error)

// FixedRate runs an action at most once per period. Iterations that take
// longer than the period are followed immediately by the next one; missed
// ticks are never replayed.
type FixedRate struct {
	period  time.Duration
	clock   clock.Clock
	log     *zap.SugaredLogger
	metrics *metrics.Metrics
}

type Option func(*FixedRate)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c clock.Clock) Option {
	return func(s *FixedRate) {
		s.clock = c
	}
}

func WithLogger(log *zap.SugaredLogger) Option {
	return func(s *FixedRate) {
		s.log = log
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *FixedRate) {
		s.metrics = m
	}
}

func New(period time.Duration, opts ...Option) (*FixedRate, error) {
	if period <= 0 {
		return nil, ErrInvalidPeriod
	}
	s := &FixedRate{
		period: period,
		clock:  clock.New(),
		log:    zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Period returns the configured minimum time between iteration starts.
func (s *FixedRate) Period() time.Duration {
	return s.period
}

// Run invokes action until it returns Stop, fails, or ctx is done.
//
// ctx is checked before every invocation and interrupts the sleep between
// iterations. The action itself receives a context that is not canceled with
// ctx, so an iteration that already started runs to completion.
func (s *FixedRate) Run(ctx context.Context, action Action) (string, error) {
	actionCtx := context.WithoutCancel(ctx)
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		t0 := s.clock.Now()
		sig, err := action(actionCtx)
		if err != nil {
			return "", err
		}
		if sig.Stopped() {
			s.log.Infow("scheduler stopped", "reason", sig.Reason())
			return sig.Reason(), nil
		}

		elapsed := s.clock.Now().Sub(t0)
		wait := s.remaining(elapsed)
		overrun := elapsed >= s.period
		s.metrics.RecordIteration(max(elapsed, 0).Seconds(), wait.Seconds(), overrun)
		if overrun {
			s.log.Debugw("iteration exceeded period", "elapsed", elapsed, "period", s.period)
		}
		if wait == 0 {
			continue
		}

		timer := s.clock.Timer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
	}
}

// remaining returns how long to sleep after an iteration that took elapsed.
// A negative elapsed time means the clock moved backwards; the full period is
// used since the real duration is unknown.
func (s *FixedRate) remaining(elapsed time.Duration) time.Duration {
	switch {
	case elapsed < 0:
		return s.period
	case elapsed < s.period:
		return s.period - elapsed
	default:
		return 0
	}
}

// RunForever is a shorthand for New followed by Run with the real clock.
func RunForever(ctx context.Context, period time.Duration, action Action) (string, error) {
	s, err := New(period)
	if err != nil {
		return "", err
	}
	return s.Run(ctx, action)
}
