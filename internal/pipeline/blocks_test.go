package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/btcindex/internal/bitcoin"
)

type delayedFetchSource struct {
	blocks map[bitcoin.Hash]*bitcoin.Block
	// delays maps a header nonce to an artificial fetch delay, so
	// fetches can be made to complete out of request order.
	delays      map[uint32]time.Duration
	inFlight    int32
	maxInFlight int32
}

func (s *delayedFetchSource) FetchBlock(ctx context.Context, hash bitcoin.Hash) (*bitcoin.Block, error) {
	n := atomic.AddInt32(&s.inFlight, 1)
	for {
		old := atomic.LoadInt32(&s.maxInFlight)
		if n <= old || atomic.CompareAndSwapInt32(&s.maxInFlight, old, n) {
			break
		}
	}
	defer atomic.AddInt32(&s.inFlight, -1)

	b, ok := s.blocks[hash]
	if !ok {
		return nil, errors.New("no such block")
	}
	if d, ok := s.delays[b.Header.Nonce]; ok {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return b, nil
}

func headersToResults(headers []bitcoin.Header) <-chan HeaderResult {
	out := make(chan HeaderResult, len(headers))
	for _, h := range headers {
		out <- HeaderResult{Header: h}
	}
	close(out)
	return out
}

func TestBlockFetcherPreservesOrderDespiteOutOfOrderCompletion(t *testing.T) {
	src := &delayedFetchSource{blocks: map[bitcoin.Hash]*bitcoin.Block{}, delays: map[uint32]time.Duration{
		0: 30 * time.Millisecond, // first header is slowest to fetch
	}}
	var headers []bitcoin.Header
	var prev bitcoin.Hash
	for i := uint32(0); i < 5; i++ {
		h := bitcoin.Header{PrevBlockHash: prev, Nonce: i}
		src.blocks[h.Hash()] = &bitcoin.Block{Header: h}
		headers = append(headers, h)
		prev = h.Hash()
	}

	fetcher := &BlockFetcher{Source: src, Concurrency: 4}
	results := fetcher.Start(context.Background(), headersToResults(headers), 100)

	var got []BlockResult
	for r := range results {
		got = append(got, r)
	}

	require.Len(t, got, 5)
	for i, r := range got {
		require.NoError(t, r.Err)
		require.Equal(t, uint32(100+i), r.Height)
		require.Equal(t, uint32(i), r.Block.Header.Nonce)
	}
	require.Greater(t, src.maxInFlight, int32(1), "fetches should have overlapped")
}

func TestBlockFetcherPropagatesHeaderError(t *testing.T) {
	src := &delayedFetchSource{blocks: map[bitcoin.Hash]*bitcoin.Block{}}
	in := make(chan HeaderResult, 1)
	in <- HeaderResult{Err: errors.New("boom")}
	close(in)

	fetcher := &BlockFetcher{Source: src, Concurrency: 2}
	results := fetcher.Start(context.Background(), in, 0)

	var got []BlockResult
	for r := range results {
		got = append(got, r)
	}
	require.Len(t, got, 1)
	require.Error(t, got[0].Err)
}

func TestDropFirstHeaderDiscardsOnlyTheFirstElement(t *testing.T) {
	headers := []bitcoin.Header{{Nonce: 1}, {Nonce: 2}, {Nonce: 3}}
	in := headersToResults(headers)
	out := dropFirstHeader(context.Background(), in)

	var got []bitcoin.Header
	for r := range out {
		require.NoError(t, r.Err)
		got = append(got, r.Header)
	}
	require.Equal(t, []bitcoin.Header{{Nonce: 2}, {Nonce: 3}}, got)
}
