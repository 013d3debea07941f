package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ava-labs/avalanche-block-poller/internal/chainclient/testutils"
	"github.com/ava-labs/avalanche-block-poller/internal/types"
	"github.com/ava-labs/avalanche-block-poller/pkg/delta"
	"github.com/ava-labs/avalanche-block-poller/pkg/metrics"
	"github.com/ava-labs/avalanche-block-poller/pkg/scheduler"
)

type recordingSink struct {
	mu      sync.Mutex
	batches [][]types.BlockRecord
	err     error
}

func (s *recordingSink) Publish(_ context.Context, records []types.BlockRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.batches = append(s.batches, append([]types.BlockRecord(nil), records...))
	return nil
}

func (s *recordingSink) heights() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []uint64
	for _, b := range s.batches {
		out = append(out, heights(b)...)
	}
	return out
}

func newTestRunner(t *testing.T, ledger *testutils.Ledger, start uint64, cfg RunnerConfig) (*Runner, *Poller, *recordingSink) {
	t.Helper()
	p, err := New(ledger, start)
	require.NoError(t, err)
	s := &recordingSink{}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 3
	}
	r, err := NewRunner(zap.NewNop().Sugar(), p, s, cfg, nil)
	require.NoError(t, err)
	return r, p, s
}

func TestNewRunner_Validation(t *testing.T) {
	t.Parallel()
	p, err := New(testutils.NewLedger(0), 0)
	require.NoError(t, err)
	log := zap.NewNop().Sugar()
	s := &recordingSink{}
	valid := RunnerConfig{MaxFailures: 3}

	tests := []struct {
		name    string
		build   func() (*Runner, error)
		wantErr string
	}{
		{"nil logger", func() (*Runner, error) { return NewRunner(nil, p, s, valid, nil) }, "invalid logger"},
		{"nil cursor", func() (*Runner, error) { return NewRunner(log, nil, s, valid, nil) }, "invalid cursor"},
		{"nil sink", func() (*Runner, error) { return NewRunner(log, p, nil, valid, nil) }, "invalid sink"},
		{"zero max failures", func() (*Runner, error) { return NewRunner(log, p, s, RunnerConfig{}, nil) }, "invalid max failures"},
		{"negative timeout", func() (*Runner, error) {
			return NewRunner(log, p, s, RunnerConfig{MaxFailures: 1, PollTimeout: -time.Second}, nil)
		}, "invalid poll timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := tt.build()
			require.ErrorContains(t, err, tt.wantErr)
			require.Nil(t, r)
		})
	}

	r, err := NewRunner(log, NewSynchronized(p), s, valid, nil)
	require.NoError(t, err)
	require.NotNil(t, r)
}

func TestStep_PublishesDelta(t *testing.T) {
	t.Parallel()
	ledger := testutils.NewLedger(4)
	r, _, s := newTestRunner(t, ledger, 0, RunnerConfig{})

	sig, err := r.Step(t.Context())
	require.NoError(t, err)
	require.False(t, sig.Stopped())
	require.Equal(t, span(1, 4), s.heights())

	// Nothing new: the sink is not called.
	sig, err = r.Step(t.Context())
	require.NoError(t, err)
	require.False(t, sig.Stopped())
	require.Len(t, s.batches, 1)
}

func TestStep_StopsAtEndHeight(t *testing.T) {
	t.Parallel()
	ledger := testutils.NewLedger(10)
	r, _, s := newTestRunner(t, ledger, 0, RunnerConfig{EndHeight: 7})

	sig, err := r.Step(t.Context())
	require.NoError(t, err)
	require.True(t, sig.Stopped())
	require.Equal(t, "reached end height 7", sig.Reason())
	require.Equal(t, span(1, 7), s.heights(), "records above the end height are not published")
}

func TestStep_AlreadyPastEndHeight(t *testing.T) {
	t.Parallel()
	ledger := testutils.NewLedger(10)
	r, _, s := newTestRunner(t, ledger, 9, RunnerConfig{EndHeight: 9})

	sig, err := r.Step(t.Context())
	require.NoError(t, err)
	require.True(t, sig.Stopped())
	require.Zero(t, ledger.HeadCalls())
	require.Empty(t, s.heights())
}

func TestStep_RecoverableFailuresUpToLimit(t *testing.T) {
	t.Parallel()
	ledger := testutils.NewLedger(5)
	r, p, s := newTestRunner(t, ledger, 0, RunnerConfig{MaxFailures: 3})

	rpcErr := errors.New("503 service unavailable")
	ledger.FailHead(rpcErr)
	for range 2 {
		sig, err := r.Step(t.Context())
		require.NoError(t, err)
		require.False(t, sig.Stopped())
	}

	_, err := r.Step(t.Context())
	require.ErrorIs(t, err, ErrMaxFailuresExceeded)
	require.ErrorIs(t, err, delta.ErrTransport)
	require.ErrorIs(t, err, rpcErr)
	require.Zero(t, p.Watermark())
	require.Empty(t, s.heights())
}

func TestStep_SuccessResetsFailureCount(t *testing.T) {
	t.Parallel()
	ledger := testutils.NewLedger(5)
	r, _, s := newTestRunner(t, ledger, 0, RunnerConfig{MaxFailures: 3})

	fail := func() {
		ledger.FailHead(errors.New("timeout"))
		for range 2 {
			_, err := r.Step(t.Context())
			require.NoError(t, err)
		}
		ledger.FailHead(nil)
	}

	fail()
	_, err := r.Step(t.Context())
	require.NoError(t, err)
	fail()
	_, err = r.Step(t.Context())
	require.NoError(t, err)
	require.Equal(t, span(1, 5), s.heights())
}

func TestStep_IncompleteBlockIsRetried(t *testing.T) {
	t.Parallel()
	ledger := testutils.NewLedger(3)
	r, p, s := newTestRunner(t, ledger, 0, RunnerConfig{MaxFailures: 2})

	ledger.Override(2, func(context.Context, uint64) (*types.Block, error) {
		return &types.Block{}, nil
	})
	_, err := r.Step(t.Context())
	require.NoError(t, err)
	require.Zero(t, p.Watermark())

	ledger.ClearOverrides()
	_, err = r.Step(t.Context())
	require.NoError(t, err)
	require.Equal(t, span(1, 3), s.heights())
}

func TestStep_ConsistencyFaultIsFatal(t *testing.T) {
	t.Parallel()
	ledger := testutils.NewLedger(3)

	core, recorded := observer.New(zap.ErrorLevel)
	p, err := New(ledger, 0)
	require.NoError(t, err)
	s := &recordingSink{}
	r, err := NewRunner(zap.New(core).Sugar(), p, s, RunnerConfig{MaxFailures: 5}, nil)
	require.NoError(t, err)

	ledger.Override(2, func(context.Context, uint64) (*types.Block, error) {
		return nil, nil
	})

	_, err = r.Step(t.Context())
	require.ErrorIs(t, err, delta.ErrMissingBlock)
	require.NotErrorIs(t, err, ErrMaxFailuresExceeded)
	require.Empty(t, s.heights())
	require.Equal(t, 1, recorded.FilterMessage("unrecoverable poll failure").Len())
}

func TestStep_SinkFailureIsFatal(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)

	ledger := testutils.NewLedger(2)
	p, err := New(ledger, 0)
	require.NoError(t, err)
	sinkErr := errors.New("broker unreachable")
	r, err := NewRunner(zap.NewNop().Sugar(), p, &recordingSink{err: sinkErr}, RunnerConfig{MaxFailures: 3}, m)
	require.NoError(t, err)

	_, err = r.Step(t.Context())
	require.ErrorIs(t, err, sinkErr)
	require.ErrorContains(t, err, "publish blocks 1-2")
}

func TestStep_PollTimeout(t *testing.T) {
	t.Parallel()
	ledger := testutils.NewLedger(1)
	ledger.Override(1, func(ctx context.Context, _ uint64) (*types.Block, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	r, p, _ := newTestRunner(t, ledger, 0, RunnerConfig{MaxFailures: 2, PollTimeout: 20 * time.Millisecond})

	start := time.Now()
	_, err := r.Step(t.Context())
	require.NoError(t, err, "a timed out poll is a recoverable transport failure")
	require.Less(t, time.Since(start), time.Second)
	require.Zero(t, p.Watermark())

	_, err = r.Step(t.Context())
	require.ErrorIs(t, err, ErrMaxFailuresExceeded)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRunner_WithScheduler(t *testing.T) {
	t.Parallel()
	ledger := testutils.NewLedger(25)
	r, p, s := newTestRunner(t, ledger, 0, RunnerConfig{EndHeight: 40})

	sched, err := scheduler.New(time.Millisecond)
	require.NoError(t, err)

	go func() {
		for head := uint64(26); head <= 45; head++ {
			time.Sleep(time.Millisecond)
			ledger.SetHead(head)
		}
	}()

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	reason, err := sched.Run(ctx, r.Step)
	require.NoError(t, err)
	require.Equal(t, "reached end height 40", reason)
	require.Equal(t, span(1, 40), s.heights())
	require.GreaterOrEqual(t, p.Watermark(), uint64(40))
}
