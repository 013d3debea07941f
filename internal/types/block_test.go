package types

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestBlock_Record(t *testing.T) {
	hash := common.HexToHash("0xabc")
	height := uint64(42)
	tx := common.HexToHash("0x01")

	tests := []struct {
		name   string
		block  *Block
		want   BlockRecord
		wantOK bool
	}{
		{
			name:   "complete block",
			block:  &Block{Hash: &hash, Number: &height, TransactionIDs: []common.Hash{tx}},
			want:   BlockRecord{Hash: hash, Height: 42, TransactionIDs: []common.Hash{tx}},
			wantOK: true,
		},
		{
			name:   "no transactions yields empty slice",
			block:  &Block{Hash: &hash, Number: &height},
			want:   BlockRecord{Hash: hash, Height: 42, TransactionIDs: []common.Hash{}},
			wantOK: true,
		},
		{
			name:  "missing hash",
			block: &Block{Number: &height},
		},
		{
			name:  "missing number",
			block: &Block{Hash: &hash},
		},
		{
			name: "nil block",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.block.Record()
			require.Equal(t, tt.wantOK, ok)
			require.Equal(t, tt.want, got)
		})
	}
}
