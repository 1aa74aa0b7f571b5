package store

import (
	"context"
	"sync"

	"github.com/mmcdole/gamedb/internal/domain"
)

// MemoryStore keeps cache rows in process memory. Nothing survives a restart.
type MemoryStore struct {
	mu     sync.RWMutex
	rows   map[int64]domain.CacheEntry
	closed bool
	opts   options
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore(opts ...Option) *MemoryStore {
	return &MemoryStore{
		rows: make(map[int64]domain.CacheEntry),
		opts: buildOptions(opts),
	}
}

func (s *MemoryStore) Lookup(ctx context.Context, query string, page int) ([]domain.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, &domain.CacheIOError{Op: "lookup", Err: domain.ErrStoreClosed}
	}

	var matched []domain.CacheEntry
	for _, e := range s.rows {
		if e.Query == query && e.Page == page {
			matched = append(matched, e)
		}
	}
	sortNewestFirst(matched)
	return gamesOf(matched), nil
}

func (s *MemoryStore) LookupAll(ctx context.Context, query string) ([]domain.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, &domain.CacheIOError{Op: "lookup all", Err: domain.ErrStoreClosed}
	}

	var matched []domain.CacheEntry
	for _, e := range s.rows {
		if e.Query == query {
			matched = append(matched, e)
		}
	}
	sortByPage(matched)
	return gamesOf(matched), nil
}

func (s *MemoryStore) Upsert(ctx context.Context, games []domain.Game, query string, page int) error {
	if len(games) == 0 {
		return nil
	}
	entries := newEntries(games, query, page, s.opts.now().UnixMilli())

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return &domain.CacheIOError{Op: "upsert", Err: domain.ErrStoreClosed}
	}
	for _, e := range entries {
		s.rows[e.Game.ID] = e
	}
	return nil
}

func (s *MemoryStore) EvictOlderThan(ctx context.Context, cutoff int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, &domain.CacheIOError{Op: "evict older than", Err: domain.ErrStoreClosed}
	}

	removed := 0
	for id, e := range s.rows {
		if e.CachedAt < cutoff {
			delete(s.rows, id)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) EvictByQuery(ctx context.Context, query string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, &domain.CacheIOError{Op: "evict by query", Err: domain.ErrStoreClosed}
	}

	removed := 0
	for id, e := range s.rows {
		if e.Query == query {
			delete(s.rows, id)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.rows = nil
	return nil
}
