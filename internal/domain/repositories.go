package domain

import (
	"context"
)

// GameClient provides access to the upstream game catalog
type GameClient interface {
	// Search returns one page of results for query, in upstream order.
	// page is 1-based; pageSize <= 0 means DefaultPageSize.
	Search(ctx context.Context, query string, page, pageSize int) ([]Game, error)

	// GetDetails returns a single game by ID
	GetDetails(ctx context.Context, id int64) (Game, error)
}

// CacheStore handles the local result cache.
// Rows are keyed by game ID; each row remembers the (query, page)
// fingerprint it was last written under.
type CacheStore interface {
	// Lookup returns the games cached for exactly (query, page), most recent
	// write first. A miss is an empty slice, not an error.
	Lookup(ctx context.Context, query string, page int) ([]Game, error)

	// LookupAll returns every game cached for query, by ascending page and
	// most recent write first within a page.
	LookupAll(ctx context.Context, query string) ([]Game, error)

	// Upsert writes games under (query, page) in one atomic batch, replacing
	// any existing rows with the same IDs and stamping the current time.
	Upsert(ctx context.Context, games []Game, query string, page int) error

	// EvictOlderThan deletes rows with a timestamp strictly before cutoff (ms)
	EvictOlderThan(ctx context.Context, cutoff int64) (int, error)

	// EvictByQuery deletes every row cached for query
	EvictByQuery(ctx context.Context, query string) (int, error)

	Close() error
}
