package poller

import (
	"context"
	"sync"

	"github.com/ava-labs/avalanche-block-poller/internal/types"
)

// Synchronized serializes PollOnce calls on a shared Poller.
type Synchronized struct {
	mu sync.Mutex
	p  *Poller
}

func NewSynchronized(p *Poller) *Synchronized {
	return &Synchronized{p: p}
}

// PollOnce waits for any in-progress poll to finish and then polls.
func (s *Synchronized) PollOnce(ctx context.Context) ([]types.BlockRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.p.PollOnce(ctx)
}

func (s *Synchronized) Watermark() uint64 {
	return s.p.Watermark()
}
