// Package sink delivers block records produced by the poller to their
// destination.
package sink

import (
	"context"

	"github.com/ava-labs/avalanche-block-poller/internal/types"
)

// Sink receives each successful delta in ascending height order.
// Publish must not retain records after it returns.
type Sink interface {
	Publish(ctx context.Context, records []types.BlockRecord) error
}
