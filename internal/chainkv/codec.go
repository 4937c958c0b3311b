package chainkv

import (
	"encoding/binary"
	"fmt"
)

// TXOState is the durable state of one transaction output (spec.md §3).
type TXOState struct {
	LockerScriptHash [20]byte
	Value            uint64
	GeneratedHeight  uint32
	SpentHeight      uint32
	SpentHeightSet   bool
}

// encodeTXOState serializes a TXOState as:
//
//	script_hash (20B) ‖ value (uvarint) ‖ generated_height (BE u32) ‖
//	tag (1B: 0=unspent, 1=spent) ‖ spent_height (BE u32, present iff tag=1)
func encodeTXOState(s TXOState) []byte {
	buf := make([]byte, 0, 20+binary.MaxVarintLen64+4+1+4)
	buf = append(buf, s.LockerScriptHash[:]...)

	var varintBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(varintBuf[:], s.Value)
	buf = append(buf, varintBuf[:n]...)

	var heightBuf [4]byte
	putHeight(heightBuf[:], s.GeneratedHeight)
	buf = append(buf, heightBuf[:]...)

	if s.SpentHeightSet {
		buf = append(buf, 1)
		putHeight(heightBuf[:], s.SpentHeight)
		buf = append(buf, heightBuf[:]...)
	} else {
		buf = append(buf, 0)
	}
	return buf
}

func decodeTXOState(b []byte) (TXOState, error) {
	var s TXOState
	if len(b) < scriptHashLen {
		return s, fmt.Errorf("chainkv: txo state too short for script hash: %d bytes", len(b))
	}
	copy(s.LockerScriptHash[:], b[:scriptHashLen])
	b = b[scriptHashLen:]

	value, n := binary.Uvarint(b)
	if n <= 0 {
		return s, fmt.Errorf("chainkv: malformed txo state value varint")
	}
	s.Value = value
	b = b[n:]

	if len(b) < heightLen+1 {
		return s, fmt.Errorf("chainkv: txo state too short for generated height/tag")
	}
	s.GeneratedHeight = getHeight(b[:heightLen])
	b = b[heightLen:]

	tag := b[0]
	b = b[1:]
	switch tag {
	case 0:
		// unspent
	case 1:
		if len(b) < heightLen {
			return s, fmt.Errorf("chainkv: txo state too short for spent height")
		}
		s.SpentHeight = getHeight(b[:heightLen])
		s.SpentHeightSet = true
	default:
		return s, fmt.Errorf("chainkv: unknown txo state tag byte %d", tag)
	}
	return s, nil
}
