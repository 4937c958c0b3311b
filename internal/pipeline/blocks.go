// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pipeline

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"

	"github.com/luxfi/btcindex/internal/bitcoin"
)

// BlockResult is one fetched block, or the error encountered fetching
// it, tagged with its input position so downstream stages can recover
// ordering after concurrent, out-of-order completion.
type BlockResult struct {
	Height uint32
	Block  *bitcoin.Block
	Err    error
}

// BlockHeaderHashSource is the subset of source.BlockSource the fetcher
// needs.
type BlockHeaderHashSource interface {
	FetchBlock(ctx context.Context, hash bitcoin.Hash) (*bitcoin.Block, error)
}

// BlockFetcher fetches full blocks for a stream of headers with bounded
// concurrency, draining completions back into strict input order before
// handing them downstream (spec.md §4.3). The fan-out/ordered-drain
// shape mirrors the teacher's warp/aggregator.go, with one goroutine per
// fetch bounded by a weighted semaphore.
type BlockFetcher struct {
	Source BlockHeaderHashSource

	// Concurrency is the block_fetch_concurrency knob: maximum in-flight
	// FetchBlock calls.
	Concurrency int64
}

// Start consumes headers and emits BlockResult values on a channel
// buffered to Concurrency, in the same order the headers arrived,
// regardless of the order individual fetches complete. startHeight is
// the absolute chain height of the first header on the channel; each
// subsequent header is one height higher. The returned channel is
// closed once headers is drained, ctx is canceled, or an error has been
// emitted: a header or fetch error is emitted as a BlockResult.Err at
// the failed height, after every earlier result, and no later result
// follows it.
func (f *BlockFetcher) Start(ctx context.Context, headers <-chan HeaderResult, startHeight uint32) <-chan BlockResult {
	concurrency := f.Concurrency
	if concurrency <= 0 {
		concurrency = 8
	}

	out := make(chan BlockResult, concurrency)
	go func() {
		defer close(out)

		sem := semaphore.NewWeighted(concurrency)
		// slots is the ordered drain queue: one channel per in-flight
		// (or queued) fetch, consumed strictly in arrival order so
		// results reach out in input order even though the fetches
		// themselves race.
		slots := make(chan chan BlockResult, concurrency)
		done := make(chan struct{})

		go func() {
			defer close(slots)
			height := startHeight
			for {
				select {
				case hr, ok := <-headers:
					if !ok {
						return
					}
					if hr.Err != nil {
						slot := make(chan BlockResult, 1)
						slot <- BlockResult{Height: height, Err: hr.Err}
						select {
						case slots <- slot:
						case <-done:
							return
						}
						return
					}

					if err := sem.Acquire(ctx, 1); err != nil {
						return
					}
					slot := make(chan BlockResult, 1)
					select {
					case slots <- slot:
					case <-done:
						sem.Release(1)
						return
					}

					h := hr.Header
					fetchHeight := height
					go func() {
						defer sem.Release(1)
						block, err := f.Source.FetchBlock(ctx, h.Hash())
						if err != nil {
							slot <- BlockResult{Height: fetchHeight, Err: fmt.Errorf("pipeline: fetch block %s: %w", h.Hash(), err)}
							return
						}
						slot <- BlockResult{Height: fetchHeight, Block: block}
					}()
					height++
				case <-ctx.Done():
					return
				}
			}
		}()

		defer close(done)
		for slot := range slots {
			select {
			case res := <-slot:
				select {
				case out <- res:
					if res.Err != nil {
						return
					}
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
