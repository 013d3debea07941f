package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/ava-labs/avalanche-block-poller/internal/types"
	"github.com/ava-labs/avalanche-block-poller/pkg/kafka"
	"github.com/ava-labs/avalanche-block-poller/pkg/metrics"
)

const kafkaSinkName = "kafka"

// Producer is the subset of *kafka.Producer used by the Kafka sink.
type Producer interface {
	Produce(ctx context.Context, msg kafka.Msg) error
}

var _ Producer = (*kafka.Producer)(nil)

// Kafka publishes every block record as a JSON message keyed by its height.
type Kafka struct {
	producer Producer
	topic    string
	log      *zap.SugaredLogger
	metrics  *metrics.Metrics
}

var _ Sink = (*Kafka)(nil)

func NewKafka(producer Producer, topic string, log *zap.SugaredLogger, m *metrics.Metrics) *Kafka {
	return &Kafka{
		producer: producer,
		topic:    topic,
		log:      log,
		metrics:  m,
	}
}

// Publish produces records one at a time and waits for each delivery, so
// messages reach the partition in height order. It stops at the first
// failure; records before it have already been delivered.
func (s *Kafka) Publish(ctx context.Context, records []types.BlockRecord) error {
	for i, r := range records {
		if err := s.produce(ctx, r); err != nil {
			s.metrics.RecordSinkPublish(kafkaSinkName, nil, i)
			s.metrics.RecordSinkPublish(kafkaSinkName, err, len(records)-i)
			return err
		}
	}

	s.metrics.RecordSinkPublish(kafkaSinkName, nil, len(records))
	if len(records) > 0 {
		s.log.Debugw("published blocks",
			"topic", s.topic,
			"from", records[0].Height,
			"to", records[len(records)-1].Height,
		)
	}
	return nil
}

func (s *Kafka) produce(ctx context.Context, r types.BlockRecord) error {
	bytes, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal block %d: %w", r.Height, err)
	}
	err = s.producer.Produce(ctx, kafka.Msg{
		Topic:   s.topic,
		Key:     []byte(strconv.FormatUint(r.Height, 10)),
		Value:   bytes,
		Headers: map[string]string{"content-type": "application/json"},
	})
	if err != nil {
		return fmt.Errorf("failed to produce block %d: %w", r.Height, err)
	}
	return nil
}
