// Package poller tracks the last delivered block height and drives delta
// fetches on a schedule.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/ava-labs/avalanche-block-poller/internal/chainclient"
	"github.com/ava-labs/avalanche-block-poller/internal/types"
	"github.com/ava-labs/avalanche-block-poller/pkg/delta"
	"github.com/ava-labs/avalanche-block-poller/pkg/metrics"
)

// Poller is a cursor over a ledger. Every successful PollOnce returns the
// blocks directly above the previous result, with no gaps and no duplicates.
//
// PollOnce must not be called concurrently; wrap the Poller in Synchronized
// when several goroutines share it. Watermark and LastAdvance may be read
// from any goroutine.
type Poller struct {
	client  chainclient.LedgerClient
	fetcher *delta.Fetcher
	log     *zap.SugaredLogger
	metrics *metrics.Metrics
	clock   clock.Clock

	watermark   atomic.Uint64
	lastAdvance atomic.Int64 // unix nanos
}

type Option func(*Poller)

// WithFetcher replaces the default unbounded delta fetcher.
func WithFetcher(f *delta.Fetcher) Option {
	return func(p *Poller) {
		p.fetcher = f
	}
}

func WithLogger(log *zap.SugaredLogger) Option {
	return func(p *Poller) {
		p.log = log
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Poller) {
		p.metrics = m
	}
}

func WithClock(c clock.Clock) Option {
	return func(p *Poller) {
		p.clock = c
	}
}

// New creates a Poller whose first poll returns the blocks above start.
func New(client chainclient.LedgerClient, start uint64, opts ...Option) (*Poller, error) {
	if client == nil {
		return nil, errors.New("invalid ledger client: must not be nil")
	}

	p := &Poller{
		client:  client,
		fetcher: delta.New(),
		log:     zap.NewNop().Sugar(),
		clock:   clock.New(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.fetcher == nil {
		return nil, errors.New("invalid fetcher: must not be nil")
	}

	p.watermark.Store(start)
	p.lastAdvance.Store(p.clock.Now().UnixNano())
	p.metrics.SetWatermark(start)
	return p, nil
}

// PollOnce returns the blocks produced since the previous successful call and
// advances the watermark to the last of them. On error the watermark is left
// unchanged, so the next call retries the same range.
func (p *Poller) PollOnce(ctx context.Context) ([]types.BlockRecord, error) {
	after := p.watermark.Load()
	started := p.clock.Now()

	records, err := p.fetcher.Fetch(ctx, p.client, after)
	p.metrics.RecordPoll(err, p.clock.Since(started).Seconds())
	if err != nil {
		p.metrics.IncError(errorType(err))
		return nil, fmt.Errorf("poll above %d: %w", after, err)
	}
	if len(records) == 0 {
		return records, nil
	}

	last := records[len(records)-1].Height
	p.watermark.Store(last)
	p.lastAdvance.Store(p.clock.Now().UnixNano())
	p.metrics.SetWatermark(last)
	p.metrics.AddDelivered(len(records), countTransactions(records))

	p.log.Debugw("advanced watermark", "from", after, "to", last, "blocks", len(records))
	return records, nil
}

// Watermark returns the height of the last block returned, or the start
// height before any block was returned.
func (p *Poller) Watermark() uint64 {
	return p.watermark.Load()
}

// LastAdvance returns when the watermark last moved, or when the Poller was
// created if it never did.
func (p *Poller) LastAdvance() time.Time {
	return time.Unix(0, p.lastAdvance.Load())
}

func countTransactions(records []types.BlockRecord) int {
	n := 0
	for _, r := range records {
		n += len(r.TransactionIDs)
	}
	return n
}

// errorType maps a delta failure to its metrics label.
func errorType(err error) string {
	switch {
	case errors.Is(err, delta.ErrMissingBlock):
		return metrics.ErrTypeMissingBlock
	case errors.Is(err, delta.ErrIncompleteBlock):
		return metrics.ErrTypeIncompleteBlock
	case errors.Is(err, delta.ErrStartingPointUnavailable):
		return metrics.ErrTypeStartingPoint
	case errors.Is(err, delta.ErrTooManyBlocks):
		return metrics.ErrTypeTooManyBlocks
	case errors.Is(err, delta.ErrTransport):
		return metrics.ErrTypeTransport
	default:
		return metrics.ErrTypeUnknown
	}
}
