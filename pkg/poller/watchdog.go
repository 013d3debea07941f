package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

var ErrStalled = errors.New("no new blocks")

// Stalled returns ErrStalled if the watermark has not moved for longer than
// maxIdle. A zero maxIdle disables the check.
func (p *Poller) Stalled(maxIdle time.Duration) error {
	if maxIdle <= 0 {
		return nil
	}
	last := p.LastAdvance()
	if now := p.clock.Now(); now.Sub(last) > maxIdle {
		return fmt.Errorf("%w since %s (watermark %d)",
			ErrStalled, humanize.RelTime(last, now, "ago", "from now"), p.Watermark())
	}
	return nil
}

// StartStallWatchdog warns on every tick of interval while the poller has
// not advanced for longer than maxIdle. It blocks until ctx is done. Ticks
// come from the poller's clock.
func StartStallWatchdog(ctx context.Context, log *zap.SugaredLogger, p *Poller, interval, maxIdle time.Duration) {
	t := p.clock.Ticker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			checkStall(log, p, maxIdle)
		}
	}
}

func checkStall(log *zap.SugaredLogger, p *Poller, maxIdle time.Duration) {
	if err := p.Stalled(maxIdle); err != nil {
		log.Warnw("no new blocks",
			"watermark", p.Watermark(),
			"lastAdvance", p.LastAdvance(),
			"error", err,
		)
	}
}
