package bitcoin

import (
	"encoding/binary"
	"fmt"
)

// HeaderSize is the fixed size in bytes of a serialized block header.
const HeaderSize = 80

// Header is the fixed 80-byte block header.
type Header struct {
	Version       int32
	PrevBlockHash Hash
	MerkleRoot    Hash
	Timestamp     uint32
	Bits          uint32
	Nonce         uint32
}

// Hash computes the block identity hash (double-SHA256 of the serialized
// header).
func (h Header) Hash() Hash {
	var buf [HeaderSize]byte
	h.encode(buf[:])
	return doubleSHA256(buf[:])
}

func (h Header) encode(dst []byte) {
	binary.LittleEndian.PutUint32(dst[0:4], uint32(h.Version))
	copy(dst[4:36], h.PrevBlockHash[:])
	copy(dst[36:68], h.MerkleRoot[:])
	binary.LittleEndian.PutUint32(dst[68:72], h.Timestamp)
	binary.LittleEndian.PutUint32(dst[72:76], h.Bits)
	binary.LittleEndian.PutUint32(dst[76:80], h.Nonce)
}

// DecodeHeader parses a single 80-byte header from the front of src,
// returning the remaining bytes.
func DecodeHeader(src []byte) (Header, []byte, error) {
	if len(src) < HeaderSize {
		return Header{}, nil, fmt.Errorf("bitcoin: short header: need %d bytes, have %d", HeaderSize, len(src))
	}
	var h Header
	h.Version = int32(binary.LittleEndian.Uint32(src[0:4]))
	copy(h.PrevBlockHash[:], src[4:36])
	copy(h.MerkleRoot[:], src[36:68])
	h.Timestamp = binary.LittleEndian.Uint32(src[68:72])
	h.Bits = binary.LittleEndian.Uint32(src[72:76])
	h.Nonce = binary.LittleEndian.Uint32(src[76:80])
	return h, src[HeaderSize:], nil
}

// DecodeHeaders parses a concatenated run of fixed 80-byte headers.
func DecodeHeaders(src []byte) ([]Header, error) {
	if len(src)%HeaderSize != 0 {
		return nil, fmt.Errorf("bitcoin: header stream length %d is not a multiple of %d", len(src), HeaderSize)
	}
	out := make([]Header, 0, len(src)/HeaderSize)
	for len(src) > 0 {
		var h Header
		var err error
		h, src, err = DecodeHeader(src)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, nil
}

// NullVout marks a coinbase input's synthetic previous-output index.
const NullVout = 0xFFFFFFFF

// OutPoint uniquely identifies one transaction output.
type OutPoint struct {
	Txid Hash
	Vout uint32
}

// IsNull reports whether this is the synthetic null outpoint used by a
// coinbase input (txid = 0^32, vout = 0xFFFFFFFF).
func (o OutPoint) IsNull() bool {
	return o.Txid.IsZero() && o.Vout == NullVout
}

// TxIn is one transaction input.
type TxIn struct {
	PreviousOutput  OutPoint
	SignatureScript []byte
	Sequence        uint32
	Witness         [][]byte
}

// TxOut is one transaction output.
type TxOut struct {
	Value        uint64
	ScriptPubKey []byte
}

// Tx is a decoded transaction.
type Tx struct {
	Version  int32
	TxIn     []TxIn
	TxOut    []TxOut
	LockTime uint32

	// raw holds the non-witness serialization used to compute Txid; it is
	// populated by the decoder to avoid re-serializing on every call.
	raw []byte
}

// IsCoinbase reports whether this transaction is a coinbase transaction:
// exactly one input, and that input is the null outpoint.
func (t *Tx) IsCoinbase() bool {
	return len(t.TxIn) == 1 && t.TxIn[0].PreviousOutput.IsNull()
}

// Txid returns the transaction's identity hash: double-SHA256 of the
// non-witness serialization, per BIP-141.
func (t *Tx) Txid() Hash {
	return doubleSHA256(t.raw)
}

// Block is a fully decoded block: header plus transactions.
type Block struct {
	Header Header
	Txs    []*Tx
}

// Hash returns the block's identity hash.
func (b *Block) Hash() Hash {
	return b.Header.Hash()
}
