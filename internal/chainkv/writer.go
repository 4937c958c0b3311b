// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package chainkv

import (
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"
)

// Logger is the minimal logging capability the writer needs; it is
// satisfied by internal/xlog.Logger without chainkv depending on it.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// CommitObserver receives timing signals from Layer.Apply, letting
// internal/xmetrics instrument the writer without chainkv depending on
// prometheus types directly.
type CommitObserver interface {
	ObserveStripeWait(time.Duration)
	ObserveCommitLatency(time.Duration)
	SetTipHeight(height uint32)
	IncBatchesCommitted()
}

type noopObserver struct{}

func (noopObserver) ObserveStripeWait(time.Duration)    {}
func (noopObserver) ObserveCommitLatency(time.Duration) {}
func (noopObserver) SetTipHeight(uint32)                {}
func (noopObserver) IncBatchesCommitted()               {}

// Layer is the writer-side object that merges one batch into the store
// in a single atomic transaction (spec.md §4.5, the "Layer / writer"
// component of §2).
type Layer struct {
	db       *DB
	logger   Logger
	observer CommitObserver
}

// NewLayer constructs a writer bound to db. A nil logger discards
// warnings.
func NewLayer(db *DB, logger Logger) *Layer {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Layer{db: db, logger: logger, observer: noopObserver{}}
}

// SetObserver attaches a metrics sink; nil restores the no-op observer.
func (l *Layer) SetObserver(observer CommitObserver) {
	if observer == nil {
		observer = noopObserver{}
	}
	l.observer = observer
}

// Apply performs the precondition check, merge, and atomic commit of one
// batch, per spec.md §4.5 steps 1-5. Only one Apply call is ever
// in-flight per spec.md §5 (the pipeline commits strictly sequentially),
// but the per-outpoint merge stripe locks still guard against a second
// Layer bound to the same DB -- an offline repair tool, say -- applying
// concurrently.
func (l *Layer) Apply(batch Batch) error {
	tipHeight, _, tipOK, err := l.db.Tip()
	if err != nil {
		return fmt.Errorf("chainkv: apply: read tip: %w", err)
	}
	switch {
	case tipOK && batch.StartHeight != tipHeight+1:
		return fmt.Errorf("%w: batch start %d, tip %d", ErrNonContiguousBatch, batch.StartHeight, tipHeight)
	case !tipOK && batch.StartHeight != 0:
		return fmt.Errorf("%w: batch start %d, empty store", ErrNonContiguousBatch, batch.StartHeight)
	}

	pb := l.db.pebble.NewIndexedBatch()
	defer pb.Close()

	for i, blockHash := range batch.BlockHashes {
		height := batch.StartHeight + uint32(i)
		if err := pb.Set(keyHashToHeight(blockHash), heightValue(height), nil); err != nil {
			return fmt.Errorf("chainkv: apply: write hash_to_height: %w", err)
		}
		if err := pb.Set(keyHeightToHash(height), blockHash[:], nil); err != nil {
			return fmt.Errorf("chainkv: apply: write height_to_hash: %w", err)
		}
	}

	for _, g := range batch.Generated {
		if err := l.mergeGeneratedLocked(pb, g); err != nil {
			return err
		}
	}
	for _, s := range batch.Spent {
		if err := l.mergeSpentLocked(pb, s); err != nil {
			return err
		}
	}

	commitStart := time.Now()
	if err := pb.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("chainkv: apply: commit: %w", err)
	}
	l.observer.ObserveCommitLatency(time.Since(commitStart))
	l.observer.IncBatchesCommitted()
	if len(batch.BlockHashes) > 0 {
		l.observer.SetTipHeight(batch.StartHeight + uint32(len(batch.BlockHashes)) - 1)
	}
	return nil
}

// mergeGeneratedLocked and mergeSpentLocked take the striped lock for
// the outpoint's txid before the read-modify-write, reporting how long
// that acquisition took.
func (l *Layer) mergeGeneratedLocked(pb *pebble.Batch, g GeneratedTXO) error {
	waitStart := time.Now()
	lock := l.db.mergeLock(g.Txid)
	lock.Lock()
	defer lock.Unlock()
	l.observer.ObserveStripeWait(time.Since(waitStart))
	return l.mergeGenerated(pb, g)
}

func (l *Layer) mergeSpentLocked(pb *pebble.Batch, s SpentTXO) error {
	waitStart := time.Now()
	lock := l.db.mergeLock(s.Txid)
	lock.Lock()
	defer lock.Unlock()
	l.observer.ObserveStripeWait(time.Since(waitStart))
	return l.mergeSpent(pb, s)
}

func heightValue(h uint32) []byte {
	buf := make([]byte, heightLen)
	putHeight(buf, h)
	return buf
}

// readTXOState reads the current TXOState for an outpoint as seen
// through the in-flight indexed batch, so that a duplicate coinbase
// generated earlier in the same batch is visible to later entries.
func readTXOState(pb *pebble.Batch, txid [32]byte, vout uint32) (TXOState, bool, error) {
	v, closer, err := pb.Get(keyOutpointToTXOState(txid, vout))
	if err == pebble.ErrNotFound {
		return TXOState{}, false, nil
	}
	if err != nil {
		return TXOState{}, false, fmt.Errorf("chainkv: read txo state: %w", err)
	}
	defer closer.Close()
	s, err := decodeTXOState(v)
	if err != nil {
		return TXOState{}, false, err
	}
	return s, true, nil
}

// mergeGenerated implements the "generated" half of the merge operator
// described in spec.md §4.5.
func (l *Layer) mergeGenerated(pb *pebble.Batch, g GeneratedTXO) error {
	prior, ok, err := readTXOState(pb, g.Txid, g.Vout)
	if err != nil {
		return err
	}

	var next TXOState
	switch {
	case !ok:
		next = TXOState{
			LockerScriptHash: g.LockerScriptHash,
			Value:            g.Value,
			GeneratedHeight:  g.GeneratedHeight,
		}
	case g.Vout != 0:
		return fmt.Errorf("%w: txid %x vout %d", ErrNonCoinbaseDuplicate, g.Txid, g.Vout)
	case prior.GeneratedHeight >= g.GeneratedHeight:
		return fmt.Errorf("%w: txid %x replay at height %d does not exceed prior height %d",
			ErrNonMonotonicCoinbase, g.Txid, g.GeneratedHeight, prior.GeneratedHeight)
	default:
		l.logger.Warn("dropping pre-BIP-30 duplicate coinbase output",
			"txid", fmt.Sprintf("%x", g.Txid), "vout", g.Vout,
			"prior_height", prior.GeneratedHeight, "new_height", g.GeneratedHeight)
		return nil
	}

	if err := pb.Set(keyOutpointToTXOState(g.Txid, g.Vout), encodeTXOState(next), nil); err != nil {
		return fmt.Errorf("chainkv: merge generated: write state: %w", err)
	}
	if err := pb.Set(keyScriptHashAndOutpoint(next.LockerScriptHash, g.Txid, g.Vout), nil, nil); err != nil {
		return fmt.Errorf("chainkv: merge generated: write script index: %w", err)
	}
	if err := pb.Set(keyGeneratedHeightAndOutpoint(next.GeneratedHeight, g.Txid, g.Vout), nil, nil); err != nil {
		return fmt.Errorf("chainkv: merge generated: write generated-height index: %w", err)
	}
	return nil
}

// mergeSpent implements the "spent" half of the merge operator.
func (l *Layer) mergeSpent(pb *pebble.Batch, s SpentTXO) error {
	prior, ok, err := readTXOState(pb, s.Txid, s.Vout)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: txid %x vout %d", ErrUnknownOutpoint, s.Txid, s.Vout)
	}

	next := prior
	next.SpentHeight = s.SpentHeight
	next.SpentHeightSet = true

	if err := pb.Set(keyOutpointToTXOState(s.Txid, s.Vout), encodeTXOState(next), nil); err != nil {
		return fmt.Errorf("chainkv: merge spent: write state: %w", err)
	}
	if err := pb.Set(keySpentHeightAndOutpoint(s.SpentHeight, s.Txid, s.Vout), nil, nil); err != nil {
		return fmt.Errorf("chainkv: merge spent: write spent-height index: %w", err)
	}
	return nil
}
