package delta

import (
	"context"
	"fmt"
	"unsafe"

	"golang.org/x/sync/errgroup"

	"github.com/ava-labs/avalanche-block-poller/internal/chainclient"
	"github.com/ava-labs/avalanche-block-poller/internal/types"
	"github.com/ava-labs/avalanche-block-poller/pkg/metrics"
)

// maxDeltaBytes caps the result buffer of a single delta. The Go runtime
// panics on allocations well below math.MaxInt, so the bound is a memory
// budget rather than the slice length limit.
const maxDeltaBytes = 1 << 30

// maxDeltaBlocks is the largest delta whose result buffer fits maxDeltaBytes.
const maxDeltaBlocks = uint64(maxDeltaBytes / unsafe.Sizeof(types.BlockRecord{}))

// Fetcher computes the blocks a ledger has produced above a given height.
// It holds no cursor state and is safe for concurrent use.
type Fetcher struct {
	maxBlocks   uint64 // 0 means maxDeltaBlocks
	concurrency int    // 0 means one goroutine per height
	metrics     *metrics.Metrics
}

// Option configures the Fetcher.
type Option func(*Fetcher)

// WithMaxBlocks rejects deltas larger than n with ErrTooManyBlocks.
// The memory bound still applies when n exceeds it.
func WithMaxBlocks(n uint64) Option {
	return func(f *Fetcher) {
		f.maxBlocks = n
	}
}

// WithConcurrency caps the number of block requests in flight per delta.
func WithConcurrency(n int) Option {
	return func(f *Fetcher) {
		f.concurrency = n
	}
}

// WithMetrics records the observed head and delta size.
func WithMetrics(m *metrics.Metrics) Option {
	return func(f *Fetcher) {
		f.metrics = m
	}
}

// New creates a Fetcher.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

var defaultFetcher = New()

// Fetch returns the blocks above after using an unbounded fetcher.
func Fetch(ctx context.Context, client chainclient.LedgerClient, after uint64) ([]types.BlockRecord, error) {
	return defaultFetcher.Fetch(ctx, client, after)
}

func (f *Fetcher) limit() uint64 {
	if f.maxBlocks == 0 || f.maxBlocks > maxDeltaBlocks {
		return maxDeltaBlocks
	}
	return f.maxBlocks
}

// Fetch returns every block in (after, head] in ascending height order, where
// head is the ledger height observed at the start of the call.
//
// All heights are requested concurrently; the first failure cancels the
// outstanding requests and fails the whole delta. No partial result is ever
// returned. When after equals head the result is empty.
func (f *Fetcher) Fetch(ctx context.Context, client chainclient.LedgerClient, after uint64) ([]types.BlockRecord, error) {
	head, err := client.CurrentHeight(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: current height: %w", ErrTransport, err)
	}
	if head < after {
		return nil, fmt.Errorf("%w: after %d, head %d", ErrStartingPointUnavailable, after, head)
	}

	count := head - after
	f.metrics.ObserveHead(head, count)
	if limit := f.limit(); count > limit {
		return nil, fmt.Errorf("%w: %d blocks above %d, limit %d", ErrTooManyBlocks, count, after, limit)
	}

	records := make([]types.BlockRecord, count)
	if count == 0 {
		return records, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	if f.concurrency > 0 {
		g.SetLimit(f.concurrency)
	}
	for i := range records {
		height := after + 1 + uint64(i)
		g.Go(func() error {
			rec, err := fetchBlock(gctx, client, height)
			if err != nil {
				return err
			}
			records[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return records, nil
}

func fetchBlock(ctx context.Context, client chainclient.LedgerClient, height uint64) (types.BlockRecord, error) {
	block, err := client.BlockByHeight(ctx, height)
	if err != nil {
		return types.BlockRecord{}, &HeightError{Height: height, Err: ErrTransport, Cause: err}
	}
	if block == nil {
		return types.BlockRecord{}, &HeightError{Height: height, Err: ErrMissingBlock}
	}

	rec, ok := block.Record()
	if !ok {
		return types.BlockRecord{}, &HeightError{Height: height, Err: ErrIncompleteBlock}
	}
	if rec.Height != height {
		return types.BlockRecord{}, &HeightError{
			Height: height,
			Err:    ErrIncompleteBlock,
			Cause:  fmt.Errorf("ledger reported number %d", rec.Height),
		}
	}
	return rec, nil
}
