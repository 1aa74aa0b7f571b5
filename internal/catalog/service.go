// Package catalog combines the remote game client with the local cache:
// searches show cached results first and then refresh them from the network.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/mmcdole/gamedb/internal/domain"
	"golang.org/x/sync/singleflight"
)

// Snapshot is one emission of a search stream. A snapshot carries either
// games or, as the last value before the channel closes, an error.
type Snapshot struct {
	Games     []domain.Game
	FromCache bool
	Err       error
}

// DetailSnapshot is the single emission of a details stream
type DetailSnapshot struct {
	Game domain.Game
	Err  error
}

// Option configures a Service
type Option func(*Service)

// WithPageSize sets the page size passed to the client
func WithPageSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// WithClock overrides the time source used for age eviction
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// Service orchestrates cache-then-network searches
type Service struct {
	client   domain.GameClient
	cache    domain.CacheStore
	logger   *slog.Logger
	pageSize int
	now      func() time.Time

	details singleflight.Group

	mu    sync.Mutex
	calls map[string]*detailCall
}

// detailCall is the context shared by every waiter on one in-flight details
// fetch. It is cancelled when the last waiter leaves.
type detailCall struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// NewService creates a catalog service
func NewService(client domain.GameClient, cache domain.CacheStore, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		client:   client,
		cache:    cache,
		logger:   logger,
		pageSize: domain.DefaultPageSize,
		now:      time.Now,
		calls:    make(map[string]*detailCall),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SearchGames streams results for one page of query.
//
// Unless forceRefresh is set, cached rows for (query, page) are sent first.
// The page is then fetched from the network, written to the cache and sent
// again. If the fetch fails and the cache holds rows for the page, the error
// is swallowed (and the cached rows are sent if they were not sent already);
// otherwise the error is sent as the final snapshot. The channel is closed
// when the stream ends or ctx is cancelled. Pages start at 1; a smaller page
// yields a single ErrInvalidPage snapshot.
func (s *Service) SearchGames(ctx context.Context, query string, page int, forceRefresh bool) <-chan Snapshot {
	ch := make(chan Snapshot, 2)
	go func() {
		defer close(ch)
		if page < 1 {
			send(ctx, ch, Snapshot{Err: fmt.Errorf("%w: %d", domain.ErrInvalidPage, page)})
			return
		}
		s.searchGames(ctx, query, page, forceRefresh, ch)
	}()
	return ch
}

func (s *Service) searchGames(ctx context.Context, query string, page int, forceRefresh bool, ch chan<- Snapshot) {
	emittedCache := false
	if !forceRefresh {
		cached := s.lookup(ctx, query, page)
		if len(cached) > 0 {
			s.logger.Debug("cache hit", "query", query, "page", page, "count", len(cached))
			if !send(ctx, ch, Snapshot{Games: cached, FromCache: true}) {
				return
			}
			emittedCache = true
		}
	}

	games, err := s.client.Search(ctx, query, page, s.pageSize)
	if err == nil {
		// Keep the write even if the caller has gone away
		err = s.cache.Upsert(context.WithoutCancel(ctx), games, query, page)
		if err != nil {
			s.logger.Error("failed to cache results", "error", err, "query", query, "page", page)
		}
	}
	if err == nil {
		s.logger.Info("loaded games", "query", query, "page", page, "count", len(games))
		send(ctx, ch, Snapshot{Games: games})
		return
	}

	s.logger.Warn("search failed", "error", err, "query", query, "page", page)
	if ctx.Err() != nil {
		return
	}

	cached := s.lookup(ctx, query, page)
	switch {
	case len(cached) > 0 && emittedCache:
		s.logger.Debug("serving cached results after failure", "query", query, "page", page)
	case len(cached) > 0:
		send(ctx, ch, Snapshot{Games: cached, FromCache: true})
	default:
		send(ctx, ch, Snapshot{Err: err})
	}
}

// lookup reads the cache; store failures degrade to a miss
func (s *Service) lookup(ctx context.Context, query string, page int) []domain.Game {
	games, err := s.cache.Lookup(ctx, query, page)
	if err != nil {
		s.logger.Error("cache lookup failed", "error", err, "query", query, "page", page)
		return nil
	}
	return games
}

// send delivers v unless ctx is already done
func send[T any](ctx context.Context, ch chan<- T, v T) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case ch <- v:
		return true
	case <-ctx.Done():
		return false
	}
}

// GetGameDetails streams a single fetch of game id. Details are never cached;
// forceRefresh is accepted for symmetry with SearchGames and has no effect.
// Concurrent requests for the same id share one network call, which is
// cancelled once every caller sharing it has gone away.
func (s *Service) GetGameDetails(ctx context.Context, id int64, forceRefresh bool) <-chan DetailSnapshot {
	ch := make(chan DetailSnapshot, 1)
	go func() {
		defer close(ch)

		key := strconv.FormatInt(id, 10)
		call := s.joinDetails(key)
		defer s.leaveDetails(key, call)

		resCh := s.details.DoChan(key, func() (interface{}, error) {
			return s.client.GetDetails(call.ctx, id)
		})

		select {
		case res := <-resCh:
			if res.Err != nil {
				s.logger.Error("failed to get game details", "error", res.Err, "id", id)
				send(ctx, ch, DetailSnapshot{Err: res.Err})
				return
			}
			send(ctx, ch, DetailSnapshot{Game: res.Val.(domain.Game)})
		case <-ctx.Done():
			s.logger.Debug("details request abandoned", "id", id)
		}
	}()
	return ch
}

func (s *Service) joinDetails(key string) *detailCall {
	s.mu.Lock()
	defer s.mu.Unlock()

	call, ok := s.calls[key]
	if !ok {
		ctx, cancel := context.WithCancel(context.Background())
		call = &detailCall{ctx: ctx, cancel: cancel}
		s.calls[key] = call
	}
	call.waiters++
	return call
}

func (s *Service) leaveDetails(key string, call *detailCall) {
	s.mu.Lock()
	defer s.mu.Unlock()

	call.waiters--
	if call.waiters > 0 {
		return
	}
	call.cancel()
	delete(s.calls, key)
	// A caller arriving now must not join the cancelled fetch
	s.details.Forget(key)
}

// ClearCache removes every cached row for query
func (s *Service) ClearCache(ctx context.Context, query string) (int, error) {
	n, err := s.cache.EvictByQuery(ctx, query)
	if err != nil {
		s.logger.Error("failed to clear cache", "error", err, "query", query)
		return 0, err
	}
	s.logger.Info("cleared cache", "query", query, "removed", n)
	return n, nil
}

// ClearOldCaches removes rows cached more than maxAge ago
func (s *Service) ClearOldCaches(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := s.now().Add(-maxAge).UnixMilli()
	n, err := s.cache.EvictOlderThan(ctx, cutoff)
	if err != nil {
		s.logger.Error("failed to evict old cache rows", "error", err, "maxAge", maxAge)
		return 0, err
	}
	s.logger.Info("evicted old cache rows", "maxAge", maxAge, "removed", n)
	return n, nil
}

// CachedGames returns everything cached for query across all pages
func (s *Service) CachedGames(ctx context.Context, query string) []domain.Game {
	games, err := s.cache.LookupAll(ctx, query)
	if err != nil {
		s.logger.Error("cache lookup failed", "error", err, "query", query)
		return nil
	}
	return games
}

// Collect drains a search stream, returning the game snapshots and the
// terminal error, if any.
func Collect(ch <-chan Snapshot) ([]Snapshot, error) {
	var snaps []Snapshot
	for snap := range ch {
		if snap.Err != nil {
			return snaps, snap.Err
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}
