package types

import (
	"github.com/ethereum/go-ethereum/common"
)

// Block is a block as reported by the ledger. Hash and Number are nil when
// the source omitted them, which happens for blocks that are not yet sealed.
type Block struct {
	Hash           *common.Hash  `json:"hash"`
	Number         *uint64       `json:"number"`
	TransactionIDs []common.Hash `json:"transactionIds"`
}

// BlockRecord is a complete block as handed to callers of the poller.
type BlockRecord struct {
	Hash           common.Hash   `json:"hash"`
	Height         uint64        `json:"height"`
	TransactionIDs []common.Hash `json:"transactionIds"`
}

// Record converts b into a BlockRecord. It reports false if either the hash
// or the number is missing; an incomplete block never maps to height 0 or
// the zero hash.
func (b *Block) Record() (BlockRecord, bool) {
	if b == nil || b.Hash == nil || b.Number == nil {
		return BlockRecord{}, false
	}
	txs := b.TransactionIDs
	if txs == nil {
		txs = []common.Hash{}
	}
	return BlockRecord{
		Hash:           *b.Hash,
		Height:         *b.Number,
		TransactionIDs: txs,
	}, true
}
