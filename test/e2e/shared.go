//go:build e2e

package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/require"

	"github.com/ava-labs/avalanche-block-poller/internal/types"
)

func getEnvStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvUint64(key string, def uint64) uint64 {
	if v := os.Getenv(key); v != "" {
		var out uint64
		_, _ = fmt.Sscanf(v, "%d", &out)
		if out != 0 {
			return out
		}
	}
	return def
}

// decodeRecords parses Kafka payloads keyed by height.
func decodeRecords(t *testing.T, byHeight map[uint64][]byte) []types.BlockRecord {
	t.Helper()
	out := make([]types.BlockRecord, 0, len(byHeight))
	for n, val := range byHeight {
		var r types.BlockRecord
		require.NoError(t, json.Unmarshal(val, &r), "decode kafka block %d", n)
		require.Equal(t, n, r.Height, "message key and payload height differ")
		out = append(out, r)
	}
	return out
}

// verifyBlocksFromRPC checks every record against a raw eth_getBlockByNumber
// answer fetched over a separate connection. Header fields are not rehashed
// locally since Avalanche headers carry extra fields.
func verifyBlocksFromRPC(t *testing.T, ctx context.Context, rpcURL string, records []types.BlockRecord) {
	t.Helper()
	if len(records) == 0 {
		return
	}
	client, err := rpc.DialContext(ctx, rpcURL)
	require.NoError(t, err, "dial rpc for verification")
	defer client.Close()

	for _, r := range records {
		var exp struct {
			Hash         common.Hash    `json:"hash"`
			Number       hexutil.Uint64 `json:"number"`
			Transactions []common.Hash  `json:"transactions"`
		}
		err := client.CallContext(ctx, &exp, "eth_getBlockByNumber", hexutil.EncodeUint64(r.Height), false)
		require.NoError(t, err, "fetch rpc block %d", r.Height)
		require.Equal(t, exp.Hash, r.Hash, "hash %d", r.Height)
		require.Equal(t, uint64(exp.Number), r.Height, "number %d", r.Height)
		require.Equal(t, len(exp.Transactions), len(r.TransactionIDs), "tx count %d", r.Height)
		for i := range exp.Transactions {
			require.Equal(t, exp.Transactions[i], r.TransactionIDs[i], "tx %d of block %d", i, r.Height)
		}
	}
}

// requireContiguous asserts heights are exactly (after, after+len].
func requireContiguous(t *testing.T, after uint64, records []types.BlockRecord) {
	t.Helper()
	for i, r := range records {
		require.Equal(t, after+1+uint64(i), r.Height, "gap or duplicate at index %d", i)
		require.NotEqual(t, common.Hash{}, r.Hash, "empty hash at height %d", r.Height)
	}
}
