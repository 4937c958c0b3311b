package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/luxfi/btcindex/internal/bitcoin"
)

// LocalFileSource resolves blocks from a local directory of
// pre-extracted, canonically-encoded block files named "<hash>.bin"
// (hash in the conventional display byte order). It is the "optional
// adapter with the same capability surface as the REST adapter"
// referenced, but left unimplemented in the upstream tool, by spec.md
// §9: a flat directory of raw blocks carries no height index, so only
// FetchBlock is served locally — FetchHeaders and FetchHash always
// report ErrNotFound and expect a CompositeSource to fall through to a
// node-backed adapter.
type LocalFileSource struct {
	dir string
}

// NewLocalFileSource builds a local-blocks-directory adapter rooted
// at dir.
func NewLocalFileSource(dir string) *LocalFileSource {
	return &LocalFileSource{dir: dir}
}

// FetchBlock implements BlockSource.
func (s *LocalFileSource) FetchBlock(ctx context.Context, hash bitcoin.Hash) (*bitcoin.Block, error) {
	path := filepath.Join(s.dir, hash.String()+".bin")
	body, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("source: read local block %s: %w", path, err)
	}
	block, err := bitcoin.DecodeBlock(body)
	if err != nil {
		return nil, fmt.Errorf("source: decode local block %s: %w", path, err)
	}
	return block, nil
}

// FetchHeaders implements BlockSource; a local blocks directory has no
// height/chain index to walk forward from, so it always defers.
func (s *LocalFileSource) FetchHeaders(ctx context.Context, fromHash bitcoin.Hash, count int) ([]bitcoin.Header, error) {
	return nil, fmt.Errorf("%w: local blocks directory does not index headers", ErrNotFound)
}

// FetchHash implements BlockSource; see FetchHeaders.
func (s *LocalFileSource) FetchHash(ctx context.Context, height uint32) (bitcoin.Hash, error) {
	return bitcoin.Hash{}, fmt.Errorf("%w: local blocks directory does not index heights", ErrNotFound)
}
