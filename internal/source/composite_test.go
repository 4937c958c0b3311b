package source

import (
	"context"
	"testing"

	"github.com/luxfi/btcindex/internal/bitcoin"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	blocks map[bitcoin.Hash]*bitcoin.Block
}

func (f *fakeSource) FetchBlock(ctx context.Context, hash bitcoin.Hash) (*bitcoin.Block, error) {
	b, ok := f.blocks[hash]
	if !ok {
		return nil, ErrNotFound
	}
	return b, nil
}

func (f *fakeSource) FetchHeaders(ctx context.Context, fromHash bitcoin.Hash, count int) ([]bitcoin.Header, error) {
	return nil, ErrNotFound
}

func (f *fakeSource) FetchHash(ctx context.Context, height uint32) (bitcoin.Hash, error) {
	return bitcoin.Hash{}, ErrNotFound
}

func TestCompositeFallsThroughToRemote(t *testing.T) {
	wantHash := bitcoin.Hash{1}
	remote := &fakeSource{blocks: map[bitcoin.Hash]*bitcoin.Block{
		wantHash: {Header: bitcoin.Header{Nonce: 7}},
	}}
	local := &fakeSource{blocks: map[bitcoin.Hash]*bitcoin.Block{}}

	composite := NewCompositeSource(local, remote)
	block, err := composite.FetchBlock(context.Background(), wantHash)
	require.NoError(t, err)
	require.Equal(t, uint32(7), block.Header.Nonce)
}

func TestCompositePrefersLocal(t *testing.T) {
	hash := bitcoin.Hash{2}
	local := &fakeSource{blocks: map[bitcoin.Hash]*bitcoin.Block{
		hash: {Header: bitcoin.Header{Nonce: 1}},
	}}
	remote := &fakeSource{blocks: map[bitcoin.Hash]*bitcoin.Block{
		hash: {Header: bitcoin.Header{Nonce: 2}},
	}}

	composite := NewCompositeSource(local, remote)
	block, err := composite.FetchBlock(context.Background(), hash)
	require.NoError(t, err)
	require.Equal(t, uint32(1), block.Header.Nonce)
}

func TestCompositeWithNoLocalGoesStraightToRemote(t *testing.T) {
	hash := bitcoin.Hash{3}
	remote := &fakeSource{blocks: map[bitcoin.Hash]*bitcoin.Block{
		hash: {Header: bitcoin.Header{Nonce: 9}},
	}}
	composite := NewCompositeSource(nil, remote)
	block, err := composite.FetchBlock(context.Background(), hash)
	require.NoError(t, err)
	require.Equal(t, uint32(9), block.Header.Nonce)
}
