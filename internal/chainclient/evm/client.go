package evm

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"golang.org/x/sync/semaphore"

	"github.com/ava-labs/avalanche-block-poller/internal/chainclient"
	"github.com/ava-labs/avalanche-block-poller/internal/types"
	"github.com/ava-labs/avalanche-block-poller/pkg/metrics"
)

const (
	methodBlockNumber      = "eth_blockNumber"
	methodGetBlockByNumber = "eth_getBlockByNumber"
)

// Client reads block heights and transaction hashes from an EVM JSON-RPC
// endpoint. Any transport supported by go-ethereum's rpc package works
// (http, ws, ipc).
type Client struct {
	rpc     *rpc.Client
	sem     *semaphore.Weighted // nil if unlimited
	timeout time.Duration       // 0 if disabled
	metrics *metrics.Metrics    // nil if metrics disabled
}

var _ chainclient.LedgerClient = (*Client)(nil)

// Option configures the Client.
type Option func(*Client)

// WithMetrics enables metrics collection for the client.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithMaxInFlight caps the number of concurrent requests sent to the endpoint.
func WithMaxInFlight(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.sem = semaphore.NewWeighted(n)
		}
	}
}

// WithRequestTimeout bounds every individual request.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// New dials the endpoint at url.
func New(ctx context.Context, url string, opts ...Option) (*Client, error) {
	c, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial evm rpc: %w", err)
	}

	client := &Client{rpc: c}
	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

// rpcBlock is the subset of an eth_getBlockByNumber response the poller reads.
// Pending blocks are served with a null hash and number.
type rpcBlock struct {
	Hash         *common.Hash    `json:"hash"`
	Number       *hexutil.Uint64 `json:"number"`
	Transactions []common.Hash   `json:"transactions"`
}

// CurrentHeight returns the number of the most recent block.
func (c *Client) CurrentHeight(ctx context.Context) (uint64, error) {
	var height hexutil.Uint64
	if err := c.call(ctx, &height, methodBlockNumber); err != nil {
		return 0, fmt.Errorf("get block number: %w", err)
	}
	return uint64(height), nil
}

// BlockByHeight returns the block at height with transaction hashes only.
// It returns (nil, nil) if the node has no block at that height.
func (c *Client) BlockByHeight(ctx context.Context, height uint64) (*types.Block, error) {
	var raw *rpcBlock
	if err := c.call(ctx, &raw, methodGetBlockByNumber, hexutil.EncodeUint64(height), false); err != nil {
		return nil, fmt.Errorf("get block by number %d: %w", height, err)
	}
	if raw == nil {
		return nil, nil
	}

	block := &types.Block{
		Hash:           raw.Hash,
		TransactionIDs: raw.Transactions,
	}
	if raw.Number != nil {
		n := uint64(*raw.Number)
		block.Number = &n
	}
	return block, nil
}

func (c *Client) call(ctx context.Context, result any, method string, args ...any) error {
	if c.sem != nil {
		if err := c.sem.Acquire(ctx, 1); err != nil {
			return err
		}
		defer c.sem.Release(1)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	c.metrics.IncRPCInFlight()
	defer c.metrics.DecRPCInFlight()

	start := time.Now()
	err := c.rpc.CallContext(ctx, result, method, args...)
	c.metrics.RecordRPCCall(method, err, time.Since(start).Seconds())
	return err
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	c.rpc.Close()
}
