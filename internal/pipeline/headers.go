// Package pipeline implements the streaming stages between the block
// source and the storage writer: a header prefetcher, a bounded-
// concurrency block fetcher, and a CPU-parallel batch builder
// (spec.md §2 rows 2-4, §4.2-§4.4).
package pipeline

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/luxfi/btcindex/internal/bitcoin"
	"github.com/luxfi/btcindex/internal/xlog"
)

// HeaderWindow is one fetched window of headers, or the error
// encountered fetching it.
type HeaderWindow struct {
	Headers []bitcoin.Header
	Err     error
}

// HeaderPrefetcher issues forward header requests in fixed-size windows
// and buffers a bounded queue of them (spec.md §4.2).
type HeaderPrefetcher struct {
	Source BlockHeaderSource

	// BatchSize is the header_batch_size knob: headers per request.
	BatchSize int
	// BufferWindows is the header_batch_buffer knob: queued windows.
	BufferWindows int
	// RetryDelay is how long to wait before re-polling the node's tip
	// once a short window signals it has been reached.
	RetryDelay time.Duration

	Logger xlog.Logger
}

// BlockHeaderSource is the subset of source.BlockSource the prefetcher
// needs.
type BlockHeaderSource interface {
	FetchHeaders(ctx context.Context, fromHash bitcoin.Hash, count int) ([]bitcoin.Header, error)
}

// Start begins producing a lazy, strictly-forward sequence of header
// windows beginning with the header identified by startHash. It returns
// immediately; the returned channel is closed when ctx is canceled.
func (p *HeaderPrefetcher) Start(ctx context.Context, startHash bitcoin.Hash) <-chan HeaderWindow {
	batchSize := p.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	bufferWindows := p.BufferWindows
	if bufferWindows <= 0 {
		bufferWindows = runtime.NumCPU()
	}
	retryDelay := p.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 5 * time.Second
	}

	out := make(chan HeaderWindow, bufferWindows)
	go func() {
		defer close(out)
		current := startHash
		for {
			headers, err := p.Source.FetchHeaders(ctx, current, batchSize)
			if err != nil {
				select {
				case out <- HeaderWindow{Err: fmt.Errorf("pipeline: fetch headers from %s: %w", current, err)}:
				case <-ctx.Done():
				}
				return
			}

			select {
			case out <- HeaderWindow{Headers: headers}:
			case <-ctx.Done():
				return
			}

			if len(headers) == 0 {
				return
			}
			current = headers[len(headers)-1].Hash()

			if len(headers) < batchSize {
				// Reached the node's current tip; pause and retry from
				// the last observed hash.
				if p.Logger != nil {
					p.Logger.Debug("header prefetcher reached node tip, pausing",
						"last_hash", current.String(), "retry_delay", retryDelay)
				}
				select {
				case <-time.After(retryDelay):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// FlattenHeaders merges a channel of windows into a single forward
// header stream, dropping the duplicate leading header of every window
// after the first (spec.md §4.2).
func FlattenHeaders(ctx context.Context, windows <-chan HeaderWindow) <-chan HeaderResult {
	out := make(chan HeaderResult)
	go func() {
		defer close(out)
		first := true
		for {
			select {
			case w, ok := <-windows:
				if !ok {
					return
				}
				if w.Err != nil {
					select {
					case out <- HeaderResult{Err: w.Err}:
					case <-ctx.Done():
					}
					return
				}
				headers := w.Headers
				if !first && len(headers) > 0 {
					headers = headers[1:]
				}
				first = false
				for _, h := range headers {
					select {
					case out <- HeaderResult{Header: h}:
					case <-ctx.Done():
						return
					}
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// HeaderResult is one header, or the error that terminated the stream.
type HeaderResult struct {
	Header bitcoin.Header
	Err    error
}

// dropFirstHeader forwards in unchanged except for its first non-error
// element, which it discards. Used when resuming a non-empty store:
// fetch_headers(from_hash, ...) returns from_hash's own header first
// (spec.md §4.1), but that block is already indexed.
func dropFirstHeader(ctx context.Context, in <-chan HeaderResult) <-chan HeaderResult {
	out := make(chan HeaderResult)
	go func() {
		defer close(out)
		dropped := false
		for {
			select {
			case r, ok := <-in:
				if !ok {
					return
				}
				if !dropped && r.Err == nil {
					dropped = true
					continue
				}
				select {
				case out <- r:
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
