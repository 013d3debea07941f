package sink

import (
	"context"

	"go.uber.org/zap"

	"github.com/ava-labs/avalanche-block-poller/internal/types"
	"github.com/ava-labs/avalanche-block-poller/pkg/metrics"
)

const logSinkName = "log"

// Log writes one structured log line per block record.
type Log struct {
	log     *zap.SugaredLogger
	metrics *metrics.Metrics
}

var _ Sink = (*Log)(nil)

func NewLog(log *zap.SugaredLogger, m *metrics.Metrics) *Log {
	return &Log{log: log, metrics: m}
}

func (s *Log) Publish(_ context.Context, records []types.BlockRecord) error {
	for _, r := range records {
		txs := make([]string, len(r.TransactionIDs))
		for i, id := range r.TransactionIDs {
			txs[i] = id.Hex()
		}
		s.log.Infow("block",
			"height", r.Height,
			"hash", r.Hash.Hex(),
			"transactionIds", txs,
		)
	}
	s.metrics.RecordSinkPublish(logSinkName, nil, len(records))
	return nil
}
