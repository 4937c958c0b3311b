package bitcoin

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOutPointIsNull(t *testing.T) {
	null := OutPoint{Vout: NullVout}
	require.True(t, null.IsNull())

	notNull := OutPoint{Txid: Hash{1}, Vout: NullVout}
	require.False(t, notNull.IsNull())
}

func TestDecodeHeaderRoundTrip(t *testing.T) {
	h := Header{
		Version:       1,
		PrevBlockHash: Hash{0xaa},
		MerkleRoot:    Hash{0xbb},
		Timestamp:     1231006505,
		Bits:          0x1d00ffff,
		Nonce:         2083236893,
	}
	var buf [HeaderSize]byte
	h.encode(buf[:])

	decoded, rest, err := DecodeHeader(buf[:])
	require.NoError(t, err)
	require.Empty(t, rest)
	require.Equal(t, h, decoded)
}

func TestDecodeHeaderShort(t *testing.T) {
	_, _, err := DecodeHeader(make([]byte, 10))
	require.Error(t, err)
}

func TestDecodeHeadersConcatenated(t *testing.T) {
	var a, b Header
	a.Nonce = 1
	b.Nonce = 2
	var buf [2 * HeaderSize]byte
	a.encode(buf[:HeaderSize])
	b.encode(buf[HeaderSize:])

	headers, err := DecodeHeaders(buf[:])
	require.NoError(t, err)
	require.Len(t, headers, 2)
	require.Equal(t, uint32(1), headers[0].Nonce)
	require.Equal(t, uint32(2), headers[1].Nonce)
}

// genesisCoinbaseHex is the raw, non-witness coinbase transaction of the
// Bitcoin genesis block.
const genesisCoinbaseHex = "01000000010000000000000000000000000000000000000000000000000000000000000000ffffffff4d04ffff001d0104455468652054696d65732030332f4a616e2f32303039204368616e63656c6c6f72206f6e206272696e6b206f66207365636f6e64206261696c6f757420666f722062616e6b73ffffffff0100f2052a01000000434104678afdb0fe5548271967f1a67130b7105cd6a828e03909a67962e0ea1f61deb649f6bc3f4cef38c4f35504e51ec112de5c384df7ba0b8d578a4c702b6bf11d5fac00000000"

func TestDecodeTxGenesisCoinbase(t *testing.T) {
	raw, err := hex.DecodeString(genesisCoinbaseHex)
	require.NoError(t, err)

	tx, rest, err := DecodeTx(raw)
	require.NoError(t, err)
	require.Empty(t, rest)
	require.True(t, tx.IsCoinbase())
	require.Len(t, tx.TxOut, 1)
	require.Equal(t, uint64(5000000000), tx.TxOut[0].Value)

	require.Equal(t,
		"4a5e1e4baab89f3a32518a88c31bc87f618f76673e2cc77ab2127b7afdeda33b",
		tx.Txid().String(),
	)
}

func TestScriptHashLength(t *testing.T) {
	h := ScriptHash([]byte("a fake locking script"))
	require.Len(t, h, 20)
}
