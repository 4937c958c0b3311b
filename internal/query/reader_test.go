package query

import (
	"context"
	"testing"

	"github.com/cockroachdb/pebble/vfs"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/btcindex/internal/chainkv"
)

func newTestDB(t *testing.T) *chainkv.DB {
	t.Helper()
	db, err := chainkv.Open("test", chainkv.Options{FS: vfs.NewMem(), CacheBytes: 8 << 20})
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

func heightPtr(h uint32) *uint32 { return &h }

// TestBalanceHistoryScenarioE3 exercises spec.md scenario E3: three
// blocks create, top up, then partially spend one script's balance.
func TestBalanceHistoryScenarioE3(t *testing.T) {
	db := newTestDB(t)
	layer := chainkv.NewLayer(db, nil)
	script := scriptN(0x01)

	require.NoError(t, layer.Apply(chainkv.Batch{
		StartHeight: 0, EndHeight: 1,
		BlockHashes: [][32]byte{hashN(0x01)},
	}))
	require.NoError(t, layer.Apply(chainkv.Batch{
		StartHeight: 1, EndHeight: 2,
		BlockHashes: [][32]byte{hashN(0x02)},
		Generated: []chainkv.GeneratedTXO{
			{Txid: hashN(0x10), Vout: 0, LockerScriptHash: script, Value: 10 * 1e8, GeneratedHeight: 1},
		},
	}))
	require.NoError(t, layer.Apply(chainkv.Batch{
		StartHeight: 2, EndHeight: 3,
		BlockHashes: [][32]byte{hashN(0x03)},
		Generated: []chainkv.GeneratedTXO{
			{Txid: hashN(0x20), Vout: 0, LockerScriptHash: script, Value: 3 * 1e8, GeneratedHeight: 2},
		},
	}))
	// h=3 spends S's 10 BTC output, paying 4 BTC elsewhere and sending
	// 6 BTC change back to S: net -4, leaving 9 BTC (3 + 6).
	require.NoError(t, layer.Apply(chainkv.Batch{
		StartHeight: 3, EndHeight: 4,
		BlockHashes: [][32]byte{hashN(0x04)},
		Spent: []chainkv.SpentTXO{
			{Txid: hashN(0x10), Vout: 0, SpentHeight: 3},
		},
		Generated: []chainkv.GeneratedTXO{
			{Txid: hashN(0x30), Vout: 0, LockerScriptHash: script, Value: 6 * 1e8, GeneratedHeight: 3},
		},
	}))

	r := NewReader(db)
	history, err := r.BalanceHistory(context.Background(), script)
	require.NoError(t, err)
	require.Equal(t, []Point{
		{Height: 1, Balance: 10 * 1e8},
		{Height: 2, Balance: 13 * 1e8},
		{Height: 3, Balance: 9 * 1e8},
	}, history)

	balance, err := r.Balance(context.Background(), script, heightPtr(2))
	require.NoError(t, err)
	require.Equal(t, uint64(13*1e8), balance)

	balance, err = r.Balance(context.Background(), script, heightPtr(5))
	require.NoError(t, err)
	require.Equal(t, uint64(9*1e8), balance)

	balance, err = r.Balance(context.Background(), script, nil)
	require.NoError(t, err)
	require.Equal(t, uint64(9*1e8), balance)
}

func TestBalanceAtHeightBeforeAnyEventIsZero(t *testing.T) {
	db := newTestDB(t)
	layer := chainkv.NewLayer(db, nil)
	script := scriptN(0x01)

	require.NoError(t, layer.Apply(chainkv.Batch{
		StartHeight: 0, EndHeight: 1,
		BlockHashes: [][32]byte{hashN(0x01)},
	}))
	require.NoError(t, layer.Apply(chainkv.Batch{
		StartHeight: 1, EndHeight: 2,
		BlockHashes: [][32]byte{hashN(0x02)},
		Generated: []chainkv.GeneratedTXO{
			{Txid: hashN(0x10), Vout: 0, LockerScriptHash: script, Value: 500, GeneratedHeight: 1},
		},
	}))

	r := NewReader(db)
	// The script's only output is generated at height 1, later than the
	// asked-for height 0, so no event lies at or below it.
	balance, err := r.Balance(context.Background(), script, heightPtr(0))
	require.NoError(t, err)
	require.Equal(t, uint64(0), balance)
}

func TestBalanceForUnknownScriptIsZero(t *testing.T) {
	db := newTestDB(t)
	r := NewReader(db)
	balance, err := r.Balance(context.Background(), scriptN(0xEE), nil)
	require.NoError(t, err)
	require.Equal(t, uint64(0), balance)

	history, err := r.BalanceHistory(context.Background(), scriptN(0xEE))
	require.NoError(t, err)
	require.Empty(t, history)
}

func TestTipReflectsAppliedBatches(t *testing.T) {
	db := newTestDB(t)
	layer := chainkv.NewLayer(db, nil)
	r := NewReader(db)

	_, _, ok, err := r.Tip(context.Background())
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, layer.Apply(chainkv.Batch{
		StartHeight: 0, EndHeight: 1,
		BlockHashes: [][32]byte{hashN(0x01)},
	}))

	height, hash, ok, err := r.Tip(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint32(0), height)
	require.Equal(t, hashN(0x01), hash)
}
