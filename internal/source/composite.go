package source

import (
	"context"
	"errors"

	"github.com/luxfi/btcindex/internal/bitcoin"
)

// CompositeSource tries a local adapter first, per call, falling
// through to a remote adapter when the local one reports ErrNotFound
// (spec.md §9: "a composite adapter chooses per call").
type CompositeSource struct {
	local  BlockSource
	remote BlockSource
}

// NewCompositeSource builds a composite adapter. local may be nil, in
// which case every call goes straight to remote.
func NewCompositeSource(local, remote BlockSource) *CompositeSource {
	return &CompositeSource{local: local, remote: remote}
}

// FetchBlock implements BlockSource.
func (c *CompositeSource) FetchBlock(ctx context.Context, hash bitcoin.Hash) (*bitcoin.Block, error) {
	if c.local != nil {
		block, err := c.local.FetchBlock(ctx, hash)
		if err == nil {
			return block, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return c.remote.FetchBlock(ctx, hash)
}

// FetchHeaders implements BlockSource.
func (c *CompositeSource) FetchHeaders(ctx context.Context, fromHash bitcoin.Hash, count int) ([]bitcoin.Header, error) {
	if c.local != nil {
		headers, err := c.local.FetchHeaders(ctx, fromHash, count)
		if err == nil {
			return headers, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return c.remote.FetchHeaders(ctx, fromHash, count)
}

// FetchHash implements BlockSource.
func (c *CompositeSource) FetchHash(ctx context.Context, height uint32) (bitcoin.Hash, error) {
	if c.local != nil {
		hash, err := c.local.FetchHash(ctx, height)
		if err == nil {
			return hash, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return bitcoin.Hash{}, err
		}
	}
	return c.remote.FetchHash(ctx, height)
}
