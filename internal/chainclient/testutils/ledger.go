package testutils

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/mock"

	"github.com/ava-labs/avalanche-block-poller/internal/chainclient"
	"github.com/ava-labs/avalanche-block-poller/internal/types"
)

// BlockFunc answers a BlockByHeight call for one height.
type BlockFunc func(ctx context.Context, height uint64) (*types.Block, error)

// Ledger is an in-memory LedgerClient. Every height up to the head has a
// synthesized block unless overridden; heights above the head have none.
type Ledger struct {
	mu         sync.Mutex
	head       uint64
	headErr    error
	overrides  map[uint64]BlockFunc
	headCalls  int
	blockCalls int
}

var _ chainclient.LedgerClient = (*Ledger)(nil)

// NewLedger creates a Ledger whose head is at height head.
func NewLedger(head uint64) *Ledger {
	return &Ledger{
		head:      head,
		overrides: make(map[uint64]BlockFunc),
	}
}

// SetHead moves the ledger head.
func (l *Ledger) SetHead(head uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.head = head
}

// FailHead makes CurrentHeight return err. A nil err restores normal behavior.
func (l *Ledger) FailHead(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.headErr = err
}

// Override replaces the answer for a single height.
func (l *Ledger) Override(height uint64, fn BlockFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.overrides[height] = fn
}

// ClearOverrides restores synthesized blocks for every height.
func (l *Ledger) ClearOverrides() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.overrides = make(map[uint64]BlockFunc)
}

// HeadCalls returns how many times CurrentHeight was called.
func (l *Ledger) HeadCalls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.headCalls
}

// BlockCalls returns how many times BlockByHeight was called.
func (l *Ledger) BlockCalls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.blockCalls
}

func (l *Ledger) CurrentHeight(context.Context) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.headCalls++
	if l.headErr != nil {
		return 0, l.headErr
	}
	return l.head, nil
}

func (l *Ledger) BlockByHeight(ctx context.Context, height uint64) (*types.Block, error) {
	l.mu.Lock()
	l.blockCalls++
	fn, ok := l.overrides[height]
	head := l.head
	l.mu.Unlock()

	if ok {
		return fn(ctx, height)
	}
	if height > head {
		return nil, nil
	}
	return CompleteBlock(height), nil
}

// HashAt is the hash the Ledger assigns to the block at height.
func HashAt(height uint64) common.Hash {
	return common.BigToHash(new(big.Int).SetUint64(height))
}

// TxAt is the identifier of the i-th transaction of the block at height.
func TxAt(height uint64, i int) common.Hash {
	v := new(big.Int).SetUint64(height)
	v.Lsh(v, 16)
	v.Add(v, big.NewInt(int64(i)+1))
	return common.BigToHash(v)
}

// CompleteBlock builds a block at height with height%3 transactions.
func CompleteBlock(height uint64) *types.Block {
	hash := HashAt(height)
	number := height
	txs := make([]common.Hash, height%3)
	for i := range txs {
		txs[i] = TxAt(height, i)
	}
	return &types.Block{Hash: &hash, Number: &number, TransactionIDs: txs}
}

// MockLedger is a testify mock of chainclient.LedgerClient.
type MockLedger struct {
	mock.Mock
}

// CurrentHeight mocks the CurrentHeight method.
func (m *MockLedger) CurrentHeight(ctx context.Context) (uint64, error) {
	args := m.Called(ctx)
	return args.Get(0).(uint64), args.Error(1)
}

// BlockByHeight mocks the BlockByHeight method.
func (m *MockLedger) BlockByHeight(ctx context.Context, height uint64) (*types.Block, error) {
	args := m.Called(ctx, height)
	if v := args.Get(0); v != nil {
		return v.(*types.Block), args.Error(1)
	}
	return nil, args.Error(1)
}
