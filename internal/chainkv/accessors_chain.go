package chainkv

import (
	"fmt"

	"github.com/cockroachdb/pebble"
)

// Tip returns the highest committed block height and its hash. ok is
// false when the store is empty.
func (db *DB) Tip() (height uint32, hash [32]byte, ok bool, err error) {
	iter, err := db.pebble.NewIter(&pebble.IterOptions{
		LowerBound: []byte{prefixHeightToHash},
		UpperBound: []byte{prefixHeightToHash + 1},
	})
	if err != nil {
		return 0, hash, false, fmt.Errorf("chainkv: tip: new iterator: %w", err)
	}
	defer iter.Close()

	if !iter.Last() {
		return 0, hash, false, nil
	}
	key := iter.Key()
	value := iter.Value()
	height = getHeight(key[1:])
	copy(hash[:], value)
	return height, hash, true, nil
}

// HeightForHash looks up the height of a committed block by its hash.
func (db *DB) HeightForHash(hash [32]byte) (height uint32, ok bool, err error) {
	v, closer, err := db.pebble.Get(keyHashToHeight(hash))
	if err == pebble.ErrNotFound {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("chainkv: height for hash: %w", err)
	}
	defer closer.Close()
	return getHeight(v), true, nil
}

// HashForHeight looks up the hash of a committed block at height.
func (db *DB) HashForHeight(height uint32) (hash [32]byte, ok bool, err error) {
	v, closer, err := db.pebble.Get(keyHeightToHash(height))
	if err == pebble.ErrNotFound {
		return hash, false, nil
	}
	if err != nil {
		return hash, false, fmt.Errorf("chainkv: hash for height: %w", err)
	}
	defer closer.Close()
	copy(hash[:], v)
	return hash, true, nil
}

// TXOState looks up the authoritative state of one transaction output.
func (db *DB) TXOState(txid [32]byte, vout uint32) (TXOState, bool, error) {
	v, closer, err := db.pebble.Get(keyOutpointToTXOState(txid, vout))
	if err == pebble.ErrNotFound {
		return TXOState{}, false, nil
	}
	if err != nil {
		return TXOState{}, false, fmt.Errorf("chainkv: txo state: %w", err)
	}
	defer closer.Close()
	s, err := decodeTXOState(v)
	if err != nil {
		return TXOState{}, false, err
	}
	return s, true, nil
}
