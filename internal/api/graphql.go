// Package api exposes internal/query's read surface as a GraphQL
// endpoint, the same dependency (graph-gophers/graphql-go) and handler
// shape as the ethereum-go-ethereum example's ethgraphql package uses
// for its own read-only chain-data endpoint.
package api

import (
	"context"
	_ "embed"
	"encoding/hex"
	"fmt"
	"net/http"

	graphql "github.com/graph-gophers/graphql-go"
	"github.com/graph-gophers/graphql-go/relay"

	"github.com/luxfi/btcindex/internal/query"
)

//go:embed schema.graphql
var schemaString string

// NewHandler parses the schema and binds it to a resolver backed by
// reader. It performs no independent storage access -- every field
// resolves through internal/query.
func NewHandler(reader *query.Reader) (http.Handler, error) {
	schema, err := graphql.ParseSchema(schemaString, &resolver{reader: reader})
	if err != nil {
		return nil, fmt.Errorf("api: parse schema: %w", err)
	}
	return &relay.Handler{Schema: schema}, nil
}

type resolver struct {
	reader *query.Reader
}

func (r *resolver) Height(ctx context.Context) (int32, error) {
	height, _, ok, err := r.reader.Tip(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return int32(height), nil
}

func (r *resolver) LockerScript(ctx context.Context, args struct{ Hex string }) (*scriptResolver, error) {
	raw, err := hex.DecodeString(args.Hex)
	if err != nil {
		return nil, fmt.Errorf("api: lockerScript: decode hex: %w", err)
	}
	if len(raw) != 20 {
		return nil, fmt.Errorf("api: lockerScript: expected 20-byte hash160, got %d bytes", len(raw))
	}
	var hash [20]byte
	copy(hash[:], raw)
	return &scriptResolver{reader: r.reader, hash: hash, hex: args.Hex}, nil
}

type scriptResolver struct {
	reader *query.Reader
	hash   [20]byte
	hex    string
}

func (s *scriptResolver) Hex() string { return s.hex }

func (s *scriptResolver) Balance(ctx context.Context, args struct{ Height *int32 }) (string, error) {
	var atHeight *uint32
	if args.Height != nil {
		h := uint32(*args.Height)
		atHeight = &h
	}
	balance, err := s.reader.Balance(ctx, s.hash, atHeight)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d", balance), nil
}

func (s *scriptResolver) BalanceHistory(ctx context.Context) ([]*balancePointResolver, error) {
	points, err := s.reader.BalanceHistory(ctx, s.hash)
	if err != nil {
		return nil, err
	}
	out := make([]*balancePointResolver, len(points))
	for i, p := range points {
		out[i] = &balancePointResolver{point: p}
	}
	return out, nil
}

type balancePointResolver struct {
	point query.Point
}

func (b *balancePointResolver) Height() int32   { return int32(b.point.Height) }
func (b *balancePointResolver) Balance() string { return fmt.Sprintf("%d", b.point.Balance) }
