package chainkv

import (
	"testing"

	"github.com/cockroachdb/pebble/vfs"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open("test", Options{FS: vfs.NewMem(), CacheBytes: 8 << 20})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func hashN(b byte) [32]byte {
	var h [32]byte
	h[0] = b
	return h
}

func scriptN(b byte) [20]byte {
	var s [20]byte
	s[0] = b
	return s
}

// TestGenesisLikeBatch exercises scenario E1: an empty store accepting a
// single coinbase-only block at height 0.
func TestGenesisLikeBatch(t *testing.T) {
	db := newTestDB(t)
	layer := NewLayer(db, nil)

	genesisTx := hashN(0xEE)
	err := layer.Apply(Batch{
		StartHeight: 0,
		EndHeight:   1,
		BlockHashes: [][32]byte{hashN(0x01)},
		Generated: []GeneratedTXO{
			{Txid: genesisTx, Vout: 0, LockerScriptHash: scriptN(0xAA), Value: 5_000_000_000, GeneratedHeight: 0},
		},
	})
	require.NoError(t, err)

	height, hash, ok, err := db.Tip()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint32(0), height)
	require.Equal(t, hashN(0x01), hash)

	state, ok, err := db.TXOState(genesisTx, 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(5_000_000_000), state.Value)
	require.Equal(t, uint32(0), state.GeneratedHeight)
	require.False(t, state.SpentHeightSet)
}

// TestPayChain exercises scenario E2: a second block spends the genesis
// coinbase entirely to a new script.
func TestPayChain(t *testing.T) {
	db := newTestDB(t)
	layer := NewLayer(db, nil)

	genesisTx := hashN(0xEE)
	require.NoError(t, layer.Apply(Batch{
		StartHeight: 0,
		EndHeight:   1,
		BlockHashes: [][32]byte{hashN(0x01)},
		Generated: []GeneratedTXO{
			{Txid: genesisTx, Vout: 0, LockerScriptHash: scriptN(0xAA), Value: 5_000_000_000, GeneratedHeight: 0},
		},
	}))

	payTx := hashN(0xFF)
	require.NoError(t, layer.Apply(Batch{
		StartHeight: 1,
		EndHeight:   2,
		BlockHashes: [][32]byte{hashN(0x02)},
		Spent: []SpentTXO{
			{Txid: genesisTx, Vout: 0, SpentHeight: 1},
		},
		Generated: []GeneratedTXO{
			{Txid: payTx, Vout: 0, LockerScriptHash: scriptN(0xBB), Value: 5_000_000_000, GeneratedHeight: 1},
		},
	}))

	spent, ok, err := db.TXOState(genesisTx, 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, spent.SpentHeightSet)
	require.Equal(t, uint32(1), spent.SpentHeight)

	created, ok, err := db.TXOState(payTx, 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(5_000_000_000), created.Value)
	require.Equal(t, scriptN(0xBB), created.LockerScriptHash)
}

// TestNonContiguousBatchRejected exercises scenario E5.
func TestNonContiguousBatchRejected(t *testing.T) {
	db := newTestDB(t)
	layer := NewLayer(db, nil)

	for h := uint32(0); h < 101; h++ {
		require.NoError(t, layer.Apply(Batch{
			StartHeight: h,
			EndHeight:   h + 1,
			BlockHashes: [][32]byte{hashN(byte(h + 1))},
		}))
	}

	err := layer.Apply(Batch{
		StartHeight: 102,
		EndHeight:   103,
		BlockHashes: [][32]byte{hashN(200)},
	})
	require.ErrorIs(t, err, ErrNonContiguousBatch)

	height, _, ok, tipErr := db.Tip()
	require.NoError(t, tipErr)
	require.True(t, ok)
	require.Equal(t, uint32(100), height)
}

// TestSpendOfUnknownOutpointIsFatal exercises the §7 "spend of unknown
// outpoint" fatal path.
func TestSpendOfUnknownOutpointIsFatal(t *testing.T) {
	db := newTestDB(t)
	layer := NewLayer(db, nil)

	err := layer.Apply(Batch{
		StartHeight: 0,
		EndHeight:   1,
		BlockHashes: [][32]byte{hashN(0x01)},
		Spent:       []SpentTXO{{Txid: hashN(0xAB), Vout: 0, SpentHeight: 0}},
	})
	require.ErrorIs(t, err, ErrUnknownOutpoint)

	_, ok, err := db.HashForHeight(0)
	require.NoError(t, err)
	require.False(t, ok, "rejected batch must not leave partial state")
}

// TestBIP30DuplicateCoinbase exercises scenario E4.
func TestBIP30DuplicateCoinbase(t *testing.T) {
	db := newTestDB(t)
	layer := NewLayer(db, nil)

	dupTxid := hashN(0x77)
	require.NoError(t, layer.Apply(Batch{
		StartHeight: 0,
		EndHeight:   1,
		BlockHashes: [][32]byte{hashN(0x01)},
		Generated: []GeneratedTXO{
			{Txid: dupTxid, Vout: 0, LockerScriptHash: scriptN(0x01), Value: 100, GeneratedHeight: 0},
		},
	}))
	require.NoError(t, layer.Apply(Batch{
		StartHeight: 1,
		EndHeight:   2,
		BlockHashes: [][32]byte{hashN(0x02)},
		Generated: []GeneratedTXO{
			{Txid: dupTxid, Vout: 0, LockerScriptHash: scriptN(0x02), Value: 200, GeneratedHeight: 1},
		},
	}))

	state, ok, err := db.TXOState(dupTxid, 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint32(1), state.GeneratedHeight)
	require.Equal(t, uint64(200), state.Value)
	require.Equal(t, scriptN(0x02), state.LockerScriptHash)
}

// TestNonMonotonicCoinbaseReplayRejected: a duplicate-txid coinbase at an
// equal-or-lower height than the prior is fatal.
func TestNonMonotonicCoinbaseReplayRejected(t *testing.T) {
	db := newTestDB(t)
	layer := NewLayer(db, nil)

	dupTxid := hashN(0x77)
	require.NoError(t, layer.Apply(Batch{
		StartHeight: 0,
		EndHeight:   1,
		BlockHashes: [][32]byte{hashN(0x01)},
		Generated: []GeneratedTXO{
			{Txid: dupTxid, Vout: 0, LockerScriptHash: scriptN(0x01), Value: 100, GeneratedHeight: 5},
		},
	}))

	err := layer.Apply(Batch{
		StartHeight: 1,
		EndHeight:   2,
		BlockHashes: [][32]byte{hashN(0x02)},
		Generated: []GeneratedTXO{
			{Txid: dupTxid, Vout: 0, LockerScriptHash: scriptN(0x02), Value: 200, GeneratedHeight: 5},
		},
	})
	require.ErrorIs(t, err, ErrNonMonotonicCoinbase)
}

// TestNonCoinbaseDuplicateRejected: a duplicate non-zero-vout outpoint is
// always fatal regardless of height.
func TestNonCoinbaseDuplicateRejected(t *testing.T) {
	db := newTestDB(t)
	layer := NewLayer(db, nil)

	dupTxid := hashN(0x77)
	require.NoError(t, layer.Apply(Batch{
		StartHeight: 0,
		EndHeight:   1,
		BlockHashes: [][32]byte{hashN(0x01)},
		Generated: []GeneratedTXO{
			{Txid: dupTxid, Vout: 1, LockerScriptHash: scriptN(0x01), Value: 100, GeneratedHeight: 0},
		},
	}))

	err := layer.Apply(Batch{
		StartHeight: 1,
		EndHeight:   2,
		BlockHashes: [][32]byte{hashN(0x02)},
		Generated: []GeneratedTXO{
			{Txid: dupTxid, Vout: 1, LockerScriptHash: scriptN(0x02), Value: 200, GeneratedHeight: 1},
		},
	})
	require.ErrorIs(t, err, ErrNonCoinbaseDuplicate)
}

// TestOutpointsForScript exercises the prefix-scan path read queries
// rely on.
func TestOutpointsForScript(t *testing.T) {
	db := newTestDB(t)
	layer := NewLayer(db, nil)

	script := scriptN(0x42)
	require.NoError(t, layer.Apply(Batch{
		StartHeight: 0,
		EndHeight:   1,
		BlockHashes: [][32]byte{hashN(0x01)},
		Generated: []GeneratedTXO{
			{Txid: hashN(0x10), Vout: 0, LockerScriptHash: script, Value: 1000, GeneratedHeight: 0},
			{Txid: hashN(0x20), Vout: 0, LockerScriptHash: script, Value: 2000, GeneratedHeight: 0},
			{Txid: hashN(0x30), Vout: 0, LockerScriptHash: scriptN(0x43), Value: 3000, GeneratedHeight: 0},
		},
	}))

	snap := db.NewSnapshot()
	defer snap.Close()

	refs, err := snap.OutpointsForScript(script)
	require.NoError(t, err)
	require.Len(t, refs, 2)

	states, err := snap.TXOStates(refs)
	require.NoError(t, err)
	var total uint64
	for _, s := range states {
		total += s.Value
	}
	require.Equal(t, uint64(3000), total)
}
