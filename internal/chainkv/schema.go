// Package chainkv implements the on-disk schema of the indexer: an
// ordered key/value store with prefix-delimited "column families", fixed
// big-endian keys, and a writer that folds a pipeline batch into the
// store under the invariants of spec.md §3-§4.
//
// The backing engine is a single github.com/cockroachdb/pebble instance.
// Pebble, like LevelDB, has no native column families; this package
// emulates them the way core/rawdb does in the Ethereum corpus — with a
// fixed one-byte prefix per logical table inside one flat keyspace.
package chainkv

import "encoding/binary"

// Table prefixes. Each is a single byte so that every key is exactly
// prefixLen + payloadLen bytes, never ambiguous to range-scan.
const (
	prefixHashToHeight           byte = 0x01
	prefixHeightToHash           byte = 0x02
	prefixOutpointToTXOState     byte = 0x03
	prefixScriptHashAndOutpoint  byte = 0x04
	prefixGeneratedHeightAndOut  byte = 0x05
	prefixSpentHeightAndOutpoint byte = 0x06
)

const (
	hashLen       = 32
	scriptHashLen = 20
	heightLen     = 4
	outpointLen   = hashLen + heightLen // txid ‖ BE u32 vout
)

// putHeight writes a BlockHeight in big-endian order so that lexical and
// numeric key order coincide.
func putHeight(dst []byte, height uint32) {
	binary.BigEndian.PutUint32(dst, height)
}

func getHeight(src []byte) uint32 {
	return binary.BigEndian.Uint32(src)
}

// encodeOutpoint writes txid ‖ BE u32 vout into dst, which must be at
// least outpointLen bytes.
func encodeOutpoint(dst []byte, txid [32]byte, vout uint32) {
	copy(dst[:hashLen], txid[:])
	putHeight(dst[hashLen:hashLen+heightLen], vout)
}

func decodeOutpoint(src []byte) (txid [32]byte, vout uint32) {
	copy(txid[:], src[:hashLen])
	vout = getHeight(src[hashLen : hashLen+heightLen])
	return
}

// keyHashToHeight builds the hash_to_height key for a block hash.
func keyHashToHeight(hash [32]byte) []byte {
	k := make([]byte, 1+hashLen)
	k[0] = prefixHashToHeight
	copy(k[1:], hash[:])
	return k
}

// keyHeightToHash builds the height_to_hash key for a height.
func keyHeightToHash(height uint32) []byte {
	k := make([]byte, 1+heightLen)
	k[0] = prefixHeightToHash
	putHeight(k[1:], height)
	return k
}

// keyOutpointToTXOState builds the outpoint_to_txo_state key.
func keyOutpointToTXOState(txid [32]byte, vout uint32) []byte {
	k := make([]byte, 1+outpointLen)
	k[0] = prefixOutpointToTXOState
	encodeOutpoint(k[1:], txid, vout)
	return k
}

// keyScriptHashAndOutpoint builds the presence key for the per-script
// enumeration index.
func keyScriptHashAndOutpoint(scriptHash [20]byte, txid [32]byte, vout uint32) []byte {
	k := make([]byte, 1+scriptHashLen+outpointLen)
	k[0] = prefixScriptHashAndOutpoint
	copy(k[1:1+scriptHashLen], scriptHash[:])
	encodeOutpoint(k[1+scriptHashLen:], txid, vout)
	return k
}

// scriptHashPrefix builds the scan prefix for all outpoints under a
// script hash.
func scriptHashPrefix(scriptHash [20]byte) []byte {
	k := make([]byte, 1+scriptHashLen)
	k[0] = prefixScriptHashAndOutpoint
	copy(k[1:], scriptHash[:])
	return k
}

// keyGeneratedHeightAndOutpoint builds the presence key for the
// "born at height" enumeration index.
func keyGeneratedHeightAndOutpoint(height uint32, txid [32]byte, vout uint32) []byte {
	k := make([]byte, 1+heightLen+outpointLen)
	k[0] = prefixGeneratedHeightAndOut
	putHeight(k[1:1+heightLen], height)
	encodeOutpoint(k[1+heightLen:], txid, vout)
	return k
}

// keySpentHeightAndOutpoint builds the presence key for the
// "died at height" enumeration index.
func keySpentHeightAndOutpoint(height uint32, txid [32]byte, vout uint32) []byte {
	k := make([]byte, 1+heightLen+outpointLen)
	k[0] = prefixSpentHeightAndOutpoint
	putHeight(k[1:1+heightLen], height)
	encodeOutpoint(k[1+heightLen:], txid, vout)
	return k
}

// decodeScriptHashAndOutpointKey splits a script_hash_and_outpoint key
// (without its prefix byte) back into its components.
func decodeScriptHashAndOutpointKey(key []byte) (scriptHash [20]byte, txid [32]byte, vout uint32) {
	copy(scriptHash[:], key[:scriptHashLen])
	txid, vout = decodeOutpoint(key[scriptHashLen:])
	return
}
