package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/luxfi/btcindex/internal/bitcoin"
)

// RESTSource talks to a Bitcoin Core node's REST interface:
// https://github.com/bitcoin/bitcoin/blob/master/doc/REST-interface.md
//
// Endpoint shapes are grounded on the teacher's original Rust REST
// client: GET /rest/block/{hash}.bin, GET /rest/headers/{hash}.bin
// ?count=N, GET /rest/blockhashbyheight/{height}.bin.
type RESTSource struct {
	baseURL    string
	httpClient *http.Client
}

// NewRESTSource builds a REST adapter against baseURL (e.g.
// "http://127.0.0.1:8332"). A nil client selects a sensible default
// with a bounded per-request timeout.
func NewRESTSource(baseURL string, client *http.Client) *RESTSource {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &RESTSource{baseURL: strings.TrimRight(baseURL, "/"), httpClient: client}
}

func (s *RESTSource) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("source: build request for %s: %w", path, err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("source: request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("source: %s returned status %d", path, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("source: read body for %s: %w", path, err)
	}
	return body, nil
}

// FetchBlock implements BlockSource.
func (s *RESTSource) FetchBlock(ctx context.Context, hash bitcoin.Hash) (*bitcoin.Block, error) {
	body, err := s.get(ctx, "/rest/block/"+hash.String()+".bin")
	if err != nil {
		return nil, err
	}
	block, err := bitcoin.DecodeBlock(body)
	if err != nil {
		return nil, fmt.Errorf("source: decode block %s: %w", hash, err)
	}
	return block, nil
}

// FetchHeaders implements BlockSource.
func (s *RESTSource) FetchHeaders(ctx context.Context, fromHash bitcoin.Hash, count int) ([]bitcoin.Header, error) {
	path := fmt.Sprintf("/rest/headers/%s.bin?count=%d", fromHash.String(), count)
	body, err := s.get(ctx, path)
	if err != nil {
		return nil, err
	}
	headers, err := bitcoin.DecodeHeaders(body)
	if err != nil {
		return nil, fmt.Errorf("source: decode headers from %s: %w", fromHash, err)
	}
	return headers, nil
}

// FetchHash implements BlockSource.
func (s *RESTSource) FetchHash(ctx context.Context, height uint32) (bitcoin.Hash, error) {
	body, err := s.get(ctx, "/rest/blockhashbyheight/"+strconv.FormatUint(uint64(height), 10)+".bin")
	if err != nil {
		return bitcoin.Hash{}, err
	}
	if len(body) != 32 {
		return bitcoin.Hash{}, fmt.Errorf("source: block hash for height %d has unexpected length %d", height, len(body))
	}
	var h bitcoin.Hash
	copy(h[:], body)
	return h, nil
}
