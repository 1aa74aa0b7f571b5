// Package store provides the local result cache backends.
package store

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/mmcdole/gamedb/internal/domain"
)

// Backend names accepted by Open
const (
	BackendMemory = "memory"
	BackendBolt   = "bolt"
	BackendSQLite = "sqlite"
)

type options struct {
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a store
type Option func(*options)

// WithClock overrides the time source used to stamp rows
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Open creates the cache backend named by backend. dir is the cache
// directory for file-backed stores and is ignored for memory.
func Open(backend, dir string, opts ...Option) (domain.CacheStore, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", BackendMemory:
		return NewMemoryStore(opts...), nil
	case BackendBolt:
		if err := ensureDir(dir); err != nil {
			return nil, err
		}
		return OpenBolt(filepath.Join(dir, "gamedb.db"), opts...)
	case BackendSQLite:
		if err := ensureDir(dir); err != nil {
			return nil, err
		}
		return OpenSQLite(filepath.Join(dir, "gamedb.sqlite"), opts...)
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownBackend, backend)
	}
}

func ensureDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("cache directory is required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	return nil
}

// newEntries stamps a batch. Later duplicates of the same ID win.
func newEntries(games []domain.Game, query string, page int, now int64) []domain.CacheEntry {
	entries := make([]domain.CacheEntry, 0, len(games))
	index := make(map[int64]int, len(games))
	for i, g := range games {
		e := domain.CacheEntry{Game: g, Query: query, Page: page, CachedAt: now, Seq: i}
		if j, ok := index[g.ID]; ok {
			entries[j] = e
			continue
		}
		index[g.ID] = len(entries)
		entries = append(entries, e)
	}
	return entries
}

// sortNewestFirst orders rows by write time descending, batch order within a write
func sortNewestFirst(entries []domain.CacheEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].CachedAt != entries[j].CachedAt {
			return entries[i].CachedAt > entries[j].CachedAt
		}
		return entries[i].Seq < entries[j].Seq
	})
}

// sortByPage orders rows by ascending page, then newest first
func sortByPage(entries []domain.CacheEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Page != entries[j].Page {
			return entries[i].Page < entries[j].Page
		}
		if entries[i].CachedAt != entries[j].CachedAt {
			return entries[i].CachedAt > entries[j].CachedAt
		}
		return entries[i].Seq < entries[j].Seq
	})
}

func gamesOf(entries []domain.CacheEntry) []domain.Game {
	games := make([]domain.Game, len(entries))
	for i, e := range entries {
		games[i] = e.Game
	}
	return games
}
