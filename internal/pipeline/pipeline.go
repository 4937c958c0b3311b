package pipeline

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/luxfi/btcindex/internal/bitcoin"
	"github.com/luxfi/btcindex/internal/chainkv"
	"github.com/luxfi/btcindex/internal/source"
	"github.com/luxfi/btcindex/internal/xlog"
)

// Writer is the subset of chainkv.Layer the pipeline needs to commit a
// finished batch.
type Writer interface {
	Apply(batch chainkv.Batch) error
}

// Metrics receives pipeline-stage counters; internal/xmetrics.Metrics
// satisfies this without the pipeline importing prometheus types.
type Metrics interface {
	ObserveBlockFetched()
	ObserveBatchBuilt()
}

type noopMetrics struct{}

func (noopMetrics) ObserveBlockFetched() {}
func (noopMetrics) ObserveBatchBuilt()   {}

// Config carries the §5 tuning knobs.
type Config struct {
	HeaderBatchSize       int
	HeaderBatchBuffer     int
	HeaderRetryDelay      time.Duration
	BlockFetchConcurrency int64
	BlockBatchSize        int
	BlockBatchConcurrency int
}

// DefaultConfig returns the knob defaults named in spec.md §5.
func DefaultConfig() Config {
	return Config{
		HeaderBatchSize:       100,
		HeaderBatchBuffer:     0, // resolved to CPU count by Pipeline.Run
		HeaderRetryDelay:      5 * time.Second,
		BlockFetchConcurrency: 2,
		BlockBatchSize:        100,
		BlockBatchConcurrency: 0, // resolved to CPU count by Pipeline.Run
	}
}

// Pipeline wires the header prefetcher, block fetcher, batch builder,
// and writer into the single linear flow of spec.md §2: stages 1-4 run
// concurrently, connected by bounded queues, and hand finished batches
// to the writer in strictly increasing start_height order (spec.md §5
// "Ordering guarantees").
type Pipeline struct {
	Source  source.BlockSource
	Writer  Writer
	Config  Config
	Logger  xlog.Logger
	Metrics Metrics
}

// Run starts the pipeline from fromHash and blocks until ctx is
// canceled or a fatal error occurs. nextHeight is the absolute chain
// height that will be assigned to the first newly-indexed block: 0 for
// an empty store, in which case fromHash is the genesis hash and its
// header is kept; otherwise tip+1, in which case fromHash is the
// current tip's hash and its header (returned again by fetch_headers
// per spec.md §4.1) is dropped since that block is already indexed.
// Blocks are grouped into batches of BlockBatchSize; a shorter batch is
// handed on once no further block has arrived for HeaderRetryDelay, so
// the blocks up to the node's tip are committed. Fetch errors are not
// retried: a header or block fetch error ends the stream and Run returns
// it. A batch build or commit error is likewise returned immediately.
func (p *Pipeline) Run(ctx context.Context, fromHash bitcoin.Hash, nextHeight uint32) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	metrics := p.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}

	prefetcher := &HeaderPrefetcher{
		Source:        p.Source,
		BatchSize:     p.Config.HeaderBatchSize,
		BufferWindows: p.Config.HeaderBatchBuffer,
		RetryDelay:    p.Config.HeaderRetryDelay,
		Logger:        p.Logger,
	}
	windows := prefetcher.Start(ctx, fromHash)
	headers := FlattenHeaders(ctx, windows)
	if nextHeight > 0 {
		headers = dropFirstHeader(ctx, headers)
	}

	fetcher := &BlockFetcher{
		Source:      p.Source,
		Concurrency: p.Config.BlockFetchConcurrency,
	}
	blocks := fetcher.Start(ctx, headers, nextHeight)

	batchBuilder := &BatchBuilder{
		Concurrency: p.Config.BlockBatchConcurrency,
		Logger:      p.Logger,
	}

	blockBatchSize := p.Config.BlockBatchSize
	if blockBatchSize <= 0 {
		blockBatchSize = 100
	}
	blockBatchConcurrency := int64(p.Config.BlockBatchConcurrency)
	if blockBatchConcurrency <= 0 {
		blockBatchConcurrency = int64(runtime.NumCPU())
	}
	idleFlush := p.Config.HeaderRetryDelay
	if idleFlush <= 0 {
		idleFlush = 5 * time.Second
	}

	type builtBatch struct {
		batch chainkv.Batch
		err   error
	}

	results := make(chan builtBatch, int(blockBatchConcurrency))
	sem := semaphore.NewWeighted(blockBatchConcurrency)
	var wg sync.WaitGroup

	buildErr := make(chan error, 1)
	go func() {
		defer close(results)
		defer wg.Wait()

		var pending []*bitcoin.Block
		var pendingHashes [][32]byte
		var pendingStart uint32
		havePending := false
		var idle <-chan time.Time

		flush := func() {
			if len(pending) == 0 {
				return
			}
			blocksCopy := pending
			hashesCopy := pendingHashes
			start := pendingStart
			if err := sem.Acquire(ctx, 1); err != nil {
				return
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer sem.Release(1)
				batch, err := batchBuilder.Build(ctx, start, blocksCopy, hashesCopy)
				if err == nil {
					metrics.ObserveBatchBuilt()
				}
				select {
				case results <- builtBatch{batch: batch, err: err}:
				case <-ctx.Done():
				}
			}()
			pending = nil
			pendingHashes = nil
			havePending = false
		}

		for {
			select {
			case br, ok := <-blocks:
				if !ok {
					flush()
					return
				}
				if br.Err != nil {
					flush()
					select {
					case buildErr <- br.Err:
					default:
					}
					return
				}
				metrics.ObserveBlockFetched()
				if !havePending {
					pendingStart = br.Height
					havePending = true
				}
				pending = append(pending, br.Block)
				pendingHashes = append(pendingHashes, [32]byte(br.Block.Hash()))
				if len(pending) >= blockBatchSize {
					flush()
					idle = nil
				} else {
					idle = time.After(idleFlush)
				}
			case <-idle:
				idle = nil
				flush()
			case <-ctx.Done():
				return
			}
		}
	}()

	// Reorder completed batches back into strictly increasing
	// start_height order before handing them to the writer (spec.md
	// §5: batches may finish building out of order on the worker
	// pool).
	pendingBatches := map[uint32]chainkv.Batch{}
	nextStart := nextHeight

	for {
		select {
		case err := <-buildErr:
			if err != nil {
				return fmt.Errorf("pipeline: batch build failed: %w", err)
			}
		case res, ok := <-results:
			if !ok {
				select {
				case err := <-buildErr:
					if err != nil {
						return fmt.Errorf("pipeline: batch build failed: %w", err)
					}
				default:
				}
				return nil
			}
			if res.err != nil {
				return fmt.Errorf("pipeline: batch build failed: %w", res.err)
			}

			pendingBatches[res.batch.StartHeight] = res.batch

			for {
				batch, ok := pendingBatches[nextStart]
				if !ok {
					break
				}
				delete(pendingBatches, nextStart)
				if err := p.Writer.Apply(batch); err != nil {
					return fmt.Errorf("pipeline: apply batch starting at %d: %w", batch.StartHeight, err)
				}
				if p.Logger != nil {
					p.Logger.Info("applied batch", "start_height", batch.StartHeight, "end_height", batch.EndHeight)
				}
				nextStart = batch.EndHeight
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
