package chainkv

import (
	"fmt"

	"github.com/cockroachdb/pebble"
)

// Snapshot is a point-in-time, isolated view of the store used to serve
// reads (spec.md §4.7, §5 "snapshot-consistent read transaction"). A
// concurrently committing writer can never produce a half-applied view
// to a Snapshot obtained before its commit completes.
type Snapshot struct {
	snap *pebble.Snapshot
}

// NewSnapshot opens a consistent read view of the store.
func (db *DB) NewSnapshot() *Snapshot {
	return &Snapshot{snap: db.pebble.NewSnapshot()}
}

// Close releases the snapshot.
func (s *Snapshot) Close() error {
	return s.snap.Close()
}

// Tip returns the highest block height and hash visible to this
// snapshot.
func (s *Snapshot) Tip() (height uint32, hash [32]byte, ok bool, err error) {
	iter, err := s.snap.NewIter(&pebble.IterOptions{
		LowerBound: []byte{prefixHeightToHash},
		UpperBound: []byte{prefixHeightToHash + 1},
	})
	if err != nil {
		return 0, hash, false, fmt.Errorf("chainkv: snapshot tip: new iterator: %w", err)
	}
	defer iter.Close()

	if !iter.Last() {
		return 0, hash, false, nil
	}
	height = getHeight(iter.Key()[1:])
	copy(hash[:], iter.Value())
	return height, hash, true, nil
}

// OutpointRef identifies one outpoint found under a script-hash prefix
// scan, already in the ascending key order pebble stores it in.
type OutpointRef struct {
	Txid [32]byte
	Vout uint32
}

// OutpointsForScript enumerates every outpoint ever paid to scriptHash,
// via a bloom-filtered prefix scan of script_hash_and_outpoint
// (spec.md §4.7 step 1).
func (s *Snapshot) OutpointsForScript(scriptHash [20]byte) ([]OutpointRef, error) {
	prefix := scriptHashPrefix(scriptHash)
	upper := append([]byte(nil), prefix...)
	upper = incrementBytes(upper)

	iter, err := s.snap.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: upper,
	})
	if err != nil {
		return nil, fmt.Errorf("chainkv: outpoints for script: new iterator: %w", err)
	}
	defer iter.Close()

	var refs []OutpointRef
	for iter.First(); iter.Valid(); iter.Next() {
		_, txid, vout := decodeScriptHashAndOutpointKeyWithPrefix(iter.Key())
		refs = append(refs, OutpointRef{Txid: txid, Vout: vout})
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("chainkv: outpoints for script: iterate: %w", err)
	}
	return refs, nil
}

func decodeScriptHashAndOutpointKeyWithPrefix(key []byte) (scriptHash [20]byte, txid [32]byte, vout uint32) {
	return decodeScriptHashAndOutpointKey(key[1:])
}

// incrementBytes returns the lexicographically next byte string after b,
// used to build a half-open upper bound for a fixed-width prefix scan.
func incrementBytes(b []byte) []byte {
	out := append([]byte(nil), b...)
	for i := len(out) - 1; i >= 0; i-- {
		out[i]++
		if out[i] != 0 {
			return out
		}
	}
	// All bytes wrapped (exceedingly unlikely prefix of all 0xff); no
	// finite upper bound exists, so scan to the end of the keyspace.
	return nil
}

// TXOStates performs a batched multi-get of the given outpoints' states,
// reusing this snapshot's handle so pebble can coalesce the reads
// against its shared block cache (spec.md §4.7 step 2).
func (s *Snapshot) TXOStates(refs []OutpointRef) ([]TXOState, error) {
	states := make([]TXOState, 0, len(refs))
	for _, ref := range refs {
		v, closer, err := s.snap.Get(keyOutpointToTXOState(ref.Txid, ref.Vout))
		if err != nil {
			return nil, fmt.Errorf("chainkv: txo states: get %x:%d: %w", ref.Txid, ref.Vout, err)
		}
		state, err := decodeTXOState(v)
		closer.Close()
		if err != nil {
			return nil, err
		}
		states = append(states, state)
	}
	return states, nil
}
