// Package source defines the block-source capability the indexing
// pipeline consumes (spec.md §4.1) and provides concrete adapters: a
// Bitcoin Core REST client, an optional local blocks-directory reader,
// and a composite that prefers the local reader and falls back to REST.
package source

import (
	"context"
	"errors"

	"github.com/luxfi/btcindex/internal/bitcoin"
)

// ErrNotFound is returned by an adapter when the requested block or
// height is not known to it; CompositeSource uses it to decide whether
// to fall through to the next adapter.
var ErrNotFound = errors.New("source: not found")

// BlockSource is the capability set the pipeline consumes: fetch a block
// by hash, stream headers forward from a hash, and map a height to the
// hash on the node's current main chain.
type BlockSource interface {
	// FetchBlock returns the canonical-encoded, fully decoded block
	// identified by hash.
	FetchBlock(ctx context.Context, hash bitcoin.Hash) (*bitcoin.Block, error)

	// FetchHeaders returns up to count consecutive headers starting with
	// the header identified by fromHash. The first header in the
	// response is the one requested.
	FetchHeaders(ctx context.Context, fromHash bitcoin.Hash, count int) ([]bitcoin.Header, error)

	// FetchHash maps height to the block hash on the node's current
	// main chain.
	FetchHash(ctx context.Context, height uint32) (bitcoin.Hash, error)
}
