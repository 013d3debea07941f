package chainclient

import (
	"context"

	"github.com/ava-labs/avalanche-block-poller/internal/types"
)

// LedgerClient is the read-only view of a ledger the poller depends on.
//
// BlockByHeight returns (nil, nil) when the ledger has no block at the
// requested height. Implementations must be safe for concurrent use.
type LedgerClient interface {
	CurrentHeight(ctx context.Context) (uint64, error)
	BlockByHeight(ctx context.Context, height uint64) (*types.Block, error)
}
