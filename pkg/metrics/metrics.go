package metrics

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	Namespace = "poller"

	// Status label values for success/error metrics
	StatusSuccess = "success"
	StatusError   = "error"

	RPC       = "rpc"
	Cursor    = "cursor"
	Delta     = "delta"
	Scheduler = "scheduler"
	Sink      = "sink"
)

// Labels holds constant labels applied to all metrics.
// These are useful for distinguishing metrics from multiple poller instances.
type Labels struct {
	EVMChainID    uint64 // EVM chain ID (e.g., 43114 for C-Chain mainnet)
	Environment   string // Deployment environment (e.g., "production", "staging", "development")
	Region        string // Cloud region (e.g., "us-east-1", "eu-west-1")
	CloudProvider string // Cloud provider (e.g., "aws", "oci", "gcp")
}

// toPrometheusLabels converts Labels to prometheus.Labels map.
// Only non-empty labels are included to avoid empty label values.
func (l Labels) toPrometheusLabels() prometheus.Labels {
	labels := prometheus.Labels{}
	if l.EVMChainID != 0 {
		labels["evm_chain_id"] = strconv.FormatUint(l.EVMChainID, 10)
	}
	if l.Environment != "" {
		labels["environment"] = l.Environment
	}
	if l.Region != "" {
		labels["region"] = l.Region
	}
	if l.CloudProvider != "" {
		labels["cloud_provider"] = l.CloudProvider
	}
	return labels
}

var latencyBuckets = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

type Metrics struct {
	// Cursor state
	watermark  prometheus.Gauge
	headHeight prometheus.Gauge

	// Poll outcomes
	polls                 *prometheus.CounterVec
	pollDuration          prometheus.Histogram
	deltaSize             prometheus.Histogram
	blocksDelivered       prometheus.Counter
	transactionsDelivered prometheus.Counter
	errors                *prometheus.CounterVec

	// RPC metrics
	rpcCalls    *prometheus.CounterVec
	rpcDuration *prometheus.HistogramVec
	rpcInFlight prometheus.Gauge

	// Scheduler
	iterations        prometheus.Counter
	overruns          prometheus.Counter
	iterationDuration prometheus.Histogram
	sleepDuration     prometheus.Histogram

	// Sinks
	sinkPublished *prometheus.CounterVec
}

// New creates a new Metrics instance and registers all metrics with the provided registerer.
// Returns an error if any metric registration fails.
// For metrics with constant labels (e.g., evm_chain_id), use NewWithLabels instead.
func New(reg prometheus.Registerer) (*Metrics, error) {
	return NewWithLabels(reg, Labels{})
}

// NewWithLabels creates a new Metrics instance with constant labels applied to all metrics.
func NewWithLabels(reg prometheus.Registerer, labels Labels) (*Metrics, error) {
	promLabels := labels.toPrometheusLabels()
	if len(promLabels) > 0 {
		reg = prometheus.WrapRegistererWith(promLabels, reg)
	}

	return newMetrics(reg)
}

func newMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		watermark: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: Cursor,
			Name:      "watermark",
			Help:      "Height of the last block delivered by the poller",
		}),
		headHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: Cursor,
			Name:      "head_height",
			Help:      "Latest block height reported by the ledger",
		}),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "polls_total",
			Help:      "Total poll cycles by status",
		}, []string{"status"}),
		pollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "poll_duration_seconds",
			Help:      "Time to fetch one delta, including every block request",
			Buckets:   latencyBuckets,
		}),
		deltaSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: Delta,
			Name:      "size_blocks",
			Help:      "Number of blocks between the watermark and the head per poll",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		}),
		blocksDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "blocks_delivered_total",
			Help:      "Total number of blocks returned by successful polls",
		}),
		transactionsDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "transactions_delivered_total",
			Help:      "Total number of transaction identifiers returned by successful polls",
		}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "errors_total",
			Help:      "Total errors by type",
		}, []string{"type"}),
		rpcCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: RPC,
			Name:      "calls_total",
			Help:      "Total RPC calls by method and status",
		}, []string{"method", "status"}),
		rpcDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: RPC,
			Name:      "duration_seconds",
			Help:      "RPC call duration in seconds",
			Buckets:   latencyBuckets,
		}, []string{"method"}),
		rpcInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: RPC,
			Name:      "in_flight",
			Help:      "Number of RPC calls currently in progress",
		}),
		iterations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Scheduler,
			Name:      "iterations_total",
			Help:      "Total number of completed scheduler iterations",
		}),
		overruns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Scheduler,
			Name:      "overruns_total",
			Help:      "Iterations whose action took at least the full period",
		}),
		iterationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: Scheduler,
			Name:      "iteration_duration_seconds",
			Help:      "Time spent inside the scheduled action per iteration",
			Buckets:   latencyBuckets,
		}),
		sleepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: Scheduler,
			Name:      "sleep_duration_seconds",
			Help:      "Time the scheduler waited between iterations",
			Buckets:   latencyBuckets,
		}),
		sinkPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Sink,
			Name:      "published_total",
			Help:      "Total number of block records handed to a sink by sink and status",
		}, []string{"sink", "status"}),
	}

	err := errors.Join(
		reg.Register(m.watermark),
		reg.Register(m.headHeight),
		reg.Register(m.polls),
		reg.Register(m.pollDuration),
		reg.Register(m.deltaSize),
		reg.Register(m.blocksDelivered),
		reg.Register(m.transactionsDelivered),
		reg.Register(m.errors),
		reg.Register(m.rpcCalls),
		reg.Register(m.rpcDuration),
		reg.Register(m.rpcInFlight),
		reg.Register(m.iterations),
		reg.Register(m.overruns),
		reg.Register(m.iterationDuration),
		reg.Register(m.sleepDuration),
		reg.Register(m.sinkPublished),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// Error type constants used as the "type" label of errors_total.
const (
	ErrTypeTransport           = "transport"
	ErrTypeStartingPoint       = "starting_point_unavailable"
	ErrTypeTooManyBlocks       = "too_many_blocks"
	ErrTypeMissingBlock        = "missing_block"
	ErrTypeIncompleteBlock     = "incomplete_block"
	ErrTypeUnknown             = "unknown"
	ErrTypeMaxFailuresExceeded = "max_failures_exceeded"
	ErrTypeSinkPublish         = "sink_publish"
)

// IncError increments the error counter for the given error type.
func (m *Metrics) IncError(errType string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(errType).Inc()
}

// SetWatermark records the cursor position.
func (m *Metrics) SetWatermark(height uint64) {
	if m == nil {
		return
	}
	m.watermark.Set(float64(height))
}

// ObserveHead records the ledger head seen by a delta fetch together with the
// size of the delta it implied.
func (m *Metrics) ObserveHead(head uint64, deltaSize uint64) {
	if m == nil {
		return
	}
	m.headHeight.Set(float64(head))
	m.deltaSize.Observe(float64(deltaSize))
}

// RecordPoll records a poll outcome.
func (m *Metrics) RecordPoll(err error, durationSeconds float64) {
	if m == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.polls.WithLabelValues(status).Inc()
	m.pollDuration.Observe(durationSeconds)
}

// AddDelivered records blocks and transaction identifiers returned by a poll.
func (m *Metrics) AddDelivered(blocks, transactions int) {
	if m == nil {
		return
	}
	if blocks > 0 {
		m.blocksDelivered.Add(float64(blocks))
	}
	if transactions > 0 {
		m.transactionsDelivered.Add(float64(transactions))
	}
}

// IncRPCInFlight increments the in-flight RPC gauge.
func (m *Metrics) IncRPCInFlight() {
	if m == nil {
		return
	}
	m.rpcInFlight.Inc()
}

// DecRPCInFlight decrements the in-flight RPC gauge.
func (m *Metrics) DecRPCInFlight() {
	if m == nil {
		return
	}
	m.rpcInFlight.Dec()
}

// RecordRPCCall records an RPC call outcome.
func (m *Metrics) RecordRPCCall(method string, err error, durationSeconds float64) {
	if m == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.rpcCalls.WithLabelValues(method, status).Inc()
	m.rpcDuration.WithLabelValues(method).Observe(durationSeconds)
}

// RecordIteration records one scheduler iteration: how long the action ran,
// how long the scheduler then slept, and whether the action overran the period.
func (m *Metrics) RecordIteration(elapsedSeconds, sleepSeconds float64, overrun bool) {
	if m == nil {
		return
	}
	m.iterations.Inc()
	m.iterationDuration.Observe(elapsedSeconds)
	m.sleepDuration.Observe(sleepSeconds)
	if overrun {
		m.overruns.Inc()
	}
}

// RecordSinkPublish records count records handed to the named sink.
func (m *Metrics) RecordSinkPublish(sink string, err error, count int) {
	if m == nil || count <= 0 {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.sinkPublished.WithLabelValues(sink, status).Add(float64(count))
}
