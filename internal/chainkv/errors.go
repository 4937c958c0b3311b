package chainkv

import "errors"

// Fatal errors from spec.md §7: each indicates a programming error,
// corruption, or an unhandled reorg, and the caller (cmd/indexer) is
// expected to log at Crit and exit rather than retry.
var (
	// ErrNonContiguousBatch is returned when a batch's start height does
	// not equal the store's current tip height + 1 (or 0 for an empty
	// store).
	ErrNonContiguousBatch = errors.New("chainkv: non-contiguous batch")

	// ErrUnknownOutpoint is returned when a spend delta references an
	// outpoint with no prior TXOState.
	ErrUnknownOutpoint = errors.New("chainkv: spend of unknown outpoint")

	// ErrNonMonotonicCoinbase is returned when a duplicate-txid coinbase
	// output is replayed at a height that does not strictly exceed the
	// prior recorded generated_height.
	ErrNonMonotonicCoinbase = errors.New("chainkv: non-monotonic coinbase replay")

	// ErrNonCoinbaseDuplicate is returned when a non-zero-vout output is
	// generated twice for the same outpoint; only coinbase outputs
	// (vout 0) may legitimately collide, per BIP-30.
	ErrNonCoinbaseDuplicate = errors.New("chainkv: duplicate output for non-coinbase outpoint")
)
