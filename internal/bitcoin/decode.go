package bitcoin

import (
	"encoding/binary"
	"fmt"
)

// decoder is a simple cursor over a byte slice; every Decode* method
// advances the cursor and returns an error on underflow rather than
// panicking, since input ultimately comes from the network.
type decoder struct {
	buf []byte
	pos int
}

func newDecoder(b []byte) *decoder {
	return &decoder{buf: b}
}

func (d *decoder) remaining() []byte {
	return d.buf[d.pos:]
}

func (d *decoder) need(n int) error {
	if len(d.buf)-d.pos < n {
		return fmt.Errorf("bitcoin: unexpected end of data, need %d bytes, have %d", n, len(d.buf)-d.pos)
	}
	return nil
}

func (d *decoder) bytes(n int) ([]byte, error) {
	if err := d.need(n); err != nil {
		return nil, err
	}
	b := d.buf[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

func (d *decoder) u8() (byte, error) {
	b, err := d.bytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *decoder) u16() (uint16, error) {
	b, err := d.bytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (d *decoder) u32() (uint32, error) {
	b, err := d.bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (d *decoder) u64() (uint64, error) {
	b, err := d.bytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// varInt decodes Bitcoin's CompactSize integer encoding.
func (d *decoder) varInt() (uint64, error) {
	prefix, err := d.u8()
	if err != nil {
		return 0, err
	}
	switch prefix {
	case 0xfd:
		v, err := d.u16()
		return uint64(v), err
	case 0xfe:
		v, err := d.u32()
		return uint64(v), err
	case 0xff:
		return d.u64()
	default:
		return uint64(prefix), nil
	}
}

func (d *decoder) varBytes() ([]byte, error) {
	n, err := d.varInt()
	if err != nil {
		return nil, err
	}
	if n > uint64(len(d.buf)-d.pos) {
		return nil, fmt.Errorf("bitcoin: varBytes length %d exceeds remaining input", n)
	}
	return d.bytes(int(n))
}

func (d *decoder) hash() (Hash, error) {
	b, err := d.bytes(32)
	if err != nil {
		return Hash{}, err
	}
	var h Hash
	copy(h[:], b)
	return h, nil
}

const segwitMarker = 0x00
const segwitFlag = 0x01

// DecodeTx parses one transaction from the front of src, returning the
// decoded transaction and the remaining bytes. It transparently handles
// the BIP-144 witness encoding (marker/flag bytes followed by a witness
// stack per input).
func DecodeTx(src []byte) (*Tx, []byte, error) {
	d := newDecoder(src)

	version, err := d.u32()
	if err != nil {
		return nil, nil, fmt.Errorf("bitcoin: decode tx version: %w", err)
	}
	tx := &Tx{Version: int32(version)}

	segwit := false
	inCount, err := d.varInt()
	if err != nil {
		return nil, nil, fmt.Errorf("bitcoin: decode input count: %w", err)
	}
	if inCount == segwitMarker {
		flag, err := d.u8()
		if err != nil {
			return nil, nil, fmt.Errorf("bitcoin: decode segwit flag: %w", err)
		}
		if flag != segwitFlag {
			return nil, nil, fmt.Errorf("bitcoin: unsupported segwit flag %#x", flag)
		}
		segwit = true
		inCount, err = d.varInt()
		if err != nil {
			return nil, nil, fmt.Errorf("bitcoin: decode input count after witness flag: %w", err)
		}
	}

	tx.TxIn = make([]TxIn, inCount)
	for i := range tx.TxIn {
		txid, err := d.hash()
		if err != nil {
			return nil, nil, fmt.Errorf("bitcoin: decode input %d txid: %w", i, err)
		}
		vout, err := d.u32()
		if err != nil {
			return nil, nil, fmt.Errorf("bitcoin: decode input %d vout: %w", i, err)
		}
		sigScript, err := d.varBytes()
		if err != nil {
			return nil, nil, fmt.Errorf("bitcoin: decode input %d script: %w", i, err)
		}
		sequence, err := d.u32()
		if err != nil {
			return nil, nil, fmt.Errorf("bitcoin: decode input %d sequence: %w", i, err)
		}
		tx.TxIn[i] = TxIn{
			PreviousOutput:  OutPoint{Txid: txid, Vout: vout},
			SignatureScript: append([]byte(nil), sigScript...),
			Sequence:        sequence,
		}
	}

	outCount, err := d.varInt()
	if err != nil {
		return nil, nil, fmt.Errorf("bitcoin: decode output count: %w", err)
	}
	tx.TxOut = make([]TxOut, outCount)
	for i := range tx.TxOut {
		value, err := d.u64()
		if err != nil {
			return nil, nil, fmt.Errorf("bitcoin: decode output %d value: %w", i, err)
		}
		script, err := d.varBytes()
		if err != nil {
			return nil, nil, fmt.Errorf("bitcoin: decode output %d script: %w", i, err)
		}
		tx.TxOut[i] = TxOut{Value: value, ScriptPubKey: append([]byte(nil), script...)}
	}

	if segwit {
		for i := range tx.TxIn {
			itemCount, err := d.varInt()
			if err != nil {
				return nil, nil, fmt.Errorf("bitcoin: decode witness count for input %d: %w", i, err)
			}
			witness := make([][]byte, itemCount)
			for j := range witness {
				item, err := d.varBytes()
				if err != nil {
					return nil, nil, fmt.Errorf("bitcoin: decode witness item %d/%d: %w", i, j, err)
				}
				witness[j] = append([]byte(nil), item...)
			}
			tx.TxIn[i].Witness = witness
		}
	}

	lockTime, err := d.u32()
	if err != nil {
		return nil, nil, fmt.Errorf("bitcoin: decode locktime: %w", err)
	}
	tx.LockTime = lockTime

	tx.raw = nonWitnessSerialize(tx)
	return tx, d.remaining(), nil
}

// nonWitnessSerialize reproduces the legacy (pre-BIP-141) serialization
// used to compute a transaction's txid, regardless of whether the input
// carried witness data.
func nonWitnessSerialize(tx *Tx) []byte {
	size := 4 + 9 + 9 + 4
	for _, in := range tx.TxIn {
		size += 32 + 4 + 9 + len(in.SignatureScript) + 4
	}
	for _, out := range tx.TxOut {
		size += 8 + 9 + len(out.ScriptPubKey)
	}
	buf := make([]byte, 0, size)

	var tmp [9]byte
	putU32 := func(v uint32) { binary.LittleEndian.PutUint32(tmp[:4], v); buf = append(buf, tmp[:4]...) }
	putU64 := func(v uint64) { binary.LittleEndian.PutUint64(tmp[:8], v); buf = append(buf, tmp[:8]...) }
	putVarInt := func(v uint64) {
		switch {
		case v < 0xfd:
			buf = append(buf, byte(v))
		case v <= 0xffff:
			buf = append(buf, 0xfd)
			binary.LittleEndian.PutUint16(tmp[:2], uint16(v))
			buf = append(buf, tmp[:2]...)
		case v <= 0xffffffff:
			buf = append(buf, 0xfe)
			binary.LittleEndian.PutUint32(tmp[:4], uint32(v))
			buf = append(buf, tmp[:4]...)
		default:
			buf = append(buf, 0xff)
			binary.LittleEndian.PutUint64(tmp[:8], v)
			buf = append(buf, tmp[:8]...)
		}
	}

	putU32(uint32(tx.Version))
	putVarInt(uint64(len(tx.TxIn)))
	for _, in := range tx.TxIn {
		buf = append(buf, in.PreviousOutput.Txid[:]...)
		putU32(in.PreviousOutput.Vout)
		putVarInt(uint64(len(in.SignatureScript)))
		buf = append(buf, in.SignatureScript...)
		putU32(in.Sequence)
	}
	putVarInt(uint64(len(tx.TxOut)))
	for _, out := range tx.TxOut {
		putU64(out.Value)
		putVarInt(uint64(len(out.ScriptPubKey)))
		buf = append(buf, out.ScriptPubKey...)
	}
	putU32(tx.LockTime)
	return buf
}

// DecodeBlock parses a full canonical-encoded block: header followed by
// a varint transaction count and the transactions themselves.
func DecodeBlock(src []byte) (*Block, error) {
	header, rest, err := DecodeHeader(src)
	if err != nil {
		return nil, fmt.Errorf("bitcoin: decode block header: %w", err)
	}

	d := newDecoder(rest)
	txCount, err := d.varInt()
	if err != nil {
		return nil, fmt.Errorf("bitcoin: decode tx count: %w", err)
	}

	block := &Block{Header: header, Txs: make([]*Tx, txCount)}
	remaining := d.remaining()
	for i := range block.Txs {
		tx, next, err := DecodeTx(remaining)
		if err != nil {
			return nil, fmt.Errorf("bitcoin: decode tx %d: %w", i, err)
		}
		block.Txs[i] = tx
		remaining = next
	}
	return block, nil
}

// ScriptHash computes the 20-byte hash160 (RIPEMD160(SHA256(x))) of a
// locking script, used as the account key throughout the index.
func ScriptHash(script []byte) [20]byte {
	return hash160(script)
}
