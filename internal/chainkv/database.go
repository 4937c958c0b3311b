package chainkv

import (
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/bloom"
	"github.com/cockroachdb/pebble/vfs"
)

// DefaultCacheBytes is the default in-memory block/index cache size
// (storage_cache_bytes knob, spec.md §5), set to the 1 GiB floor.
const DefaultCacheBytes = 1 << 30 // 1 GiB

// Options configures the storage engine.
type Options struct {
	// CacheBytes sizes pebble's shared block cache. Zero selects
	// DefaultCacheBytes.
	CacheBytes int64
	// ReadOnly opens the store without permitting writes, used by
	// inspection tooling.
	ReadOnly bool
	// FS overrides the filesystem pebble uses; tests pass an in-memory
	// vfs.FS so storage tests never touch disk.
	FS vfs.FS
}

// DB is the storage engine: a single pebble instance holding all six
// prefix-delimited tables of spec.md §4.6.
type DB struct {
	pebble *pebble.DB

	// mergeStripes guards read-modify-write of individual
	// outpoint_to_txo_state entries, substituting for a native
	// merge-operator per spec.md §9.
	mergeStripes [256]sync.Mutex
}

// tablePrefixSplit returns the fixed prefix length (including the
// leading table-id byte) used for bloom-filtered prefix scans. It
// implements pebble.Comparer.Split.
func tablePrefixSplit(key []byte) int {
	if len(key) == 0 {
		return 0
	}
	switch key[0] {
	case prefixScriptHashAndOutpoint:
		if len(key) < 1+scriptHashLen {
			return len(key)
		}
		return 1 + scriptHashLen
	case prefixGeneratedHeightAndOut, prefixSpentHeightAndOutpoint:
		if len(key) < 1+heightLen {
			return len(key)
		}
		return 1 + heightLen
	default:
		return len(key)
	}
}

func newComparer() *pebble.Comparer {
	cmp := *pebble.DefaultComparer
	cmp.Split = tablePrefixSplit
	cmp.Name = "btcindex.schema.v1"
	return &cmp
}

// Open opens (creating if absent) the storage engine at dir.
func Open(dir string, opts Options) (*DB, error) {
	cacheBytes := opts.CacheBytes
	if cacheBytes <= 0 {
		cacheBytes = DefaultCacheBytes
	}

	cache := pebble.NewCache(cacheBytes)
	defer cache.Unref()

	filterPolicy := bloom.FilterPolicy(10)
	pebbleOpts := &pebble.Options{
		Cache:    cache,
		Comparer: newComparer(),
		ReadOnly: opts.ReadOnly,
		FS:       opts.FS,
		Levels: []pebble.LevelOptions{{
			FilterPolicy: filterPolicy,
			FilterType:   pebble.TableFilter,
		}},
	}
	pebbleOpts.EnsureDefaults()

	pdb, err := pebble.Open(dir, pebbleOpts)
	if err != nil {
		return nil, fmt.Errorf("chainkv: open %s: %w", dir, err)
	}
	return &DB{pebble: pdb}, nil
}

// Close releases the storage engine's resources.
func (db *DB) Close() error {
	if err := db.pebble.Close(); err != nil {
		return fmt.Errorf("chainkv: close: %w", err)
	}
	return nil
}

// HealthCheck reports whether the underlying engine is reachable; it
// backs cmd/indexer's /healthz route.
func (db *DB) HealthCheck() (status interface{}, err error) {
	// pebble panics rather than returning an error when used after
	// Close; report that as an unhealthy engine instead.
	defer func() {
		if r := recover(); r != nil {
			status, err = nil, fmt.Errorf("chainkv: health check: %v", r)
		}
	}()
	_, closer, err := db.pebble.Get([]byte{prefixHeightToHash})
	if err != nil && err != pebble.ErrNotFound {
		return nil, fmt.Errorf("chainkv: health check: %w", err)
	}
	if closer != nil {
		_ = closer.Close()
	}
	return map[string]string{"engine": "pebble"}, nil
}

// mergeLock returns the striped lock guarding the given outpoint's
// TXOState entry.
func (db *DB) mergeLock(txid [32]byte) *sync.Mutex {
	return &db.mergeStripes[txid[0]]
}
