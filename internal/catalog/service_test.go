package catalog

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mmcdole/gamedb/internal/domain"
	"github.com/mmcdole/gamedb/internal/logging"
	"github.com/mmcdole/gamedb/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	search  func(ctx context.Context, query string, page, pageSize int) ([]domain.Game, error)
	details func(ctx context.Context, id int64) (domain.Game, error)

	mu          sync.Mutex
	searchCalls []domain.Fingerprint
	detailCalls atomic.Int32
}

func (c *fakeClient) Search(ctx context.Context, query string, page, pageSize int) ([]domain.Game, error) {
	c.mu.Lock()
	c.searchCalls = append(c.searchCalls, domain.Fingerprint{Query: query, Page: page})
	c.mu.Unlock()
	return c.search(ctx, query, page, pageSize)
}

func (c *fakeClient) GetDetails(ctx context.Context, id int64) (domain.Game, error) {
	c.detailCalls.Add(1)
	return c.details(ctx, id)
}

func returning(games []domain.Game, err error) func(context.Context, string, int, int) ([]domain.Game, error) {
	return func(context.Context, string, int, int) ([]domain.Game, error) { return games, err }
}

// faultyStore injects failures in front of a working store
type faultyStore struct {
	domain.CacheStore
	lookupErr error
	upsertErr error
	evictErr  error
}

func (s *faultyStore) Lookup(ctx context.Context, query string, page int) ([]domain.Game, error) {
	if s.lookupErr != nil {
		return nil, s.lookupErr
	}
	return s.CacheStore.Lookup(ctx, query, page)
}

func (s *faultyStore) LookupAll(ctx context.Context, query string) ([]domain.Game, error) {
	if s.lookupErr != nil {
		return nil, s.lookupErr
	}
	return s.CacheStore.LookupAll(ctx, query)
}

func (s *faultyStore) Upsert(ctx context.Context, games []domain.Game, query string, page int) error {
	if s.upsertErr != nil {
		return s.upsertErr
	}
	return s.CacheStore.Upsert(ctx, games, query, page)
}

func (s *faultyStore) EvictOlderThan(ctx context.Context, cutoff int64) (int, error) {
	if s.evictErr != nil {
		return 0, s.evictErr
	}
	return s.CacheStore.EvictOlderThan(ctx, cutoff)
}

func (s *faultyStore) EvictByQuery(ctx context.Context, query string) (int, error) {
	if s.evictErr != nil {
		return 0, s.evictErr
	}
	return s.CacheStore.EvictByQuery(ctx, query)
}

var (
	cachedGames = []domain.Game{{ID: 1, Title: "Old One"}, {ID: 2, Title: "Old Two"}}
	freshGames  = []domain.Game{{ID: 3, Title: "New Three"}, {ID: 1, Title: "New One"}}
	errOffline  = &domain.TransportError{Op: "search games", Err: errors.New("connection refused")}
)

func newService(t *testing.T, client domain.GameClient, cache domain.CacheStore, opts ...Option) *Service {
	t.Helper()
	return NewService(client, cache, logging.Discard(), opts...)
}

func seeded(t *testing.T, query string, page int, games []domain.Game) *store.MemoryStore {
	t.Helper()
	st := store.NewMemoryStore()
	if len(games) > 0 {
		require.NoError(t, st.Upsert(context.Background(), games, query, page))
	}
	return st
}

func TestSearchMissThenNetwork(t *testing.T) {
	cache := seeded(t, "", 0, nil)
	client := &fakeClient{search: returning(freshGames, nil)}
	svc := newService(t, client, cache)

	snaps, err := Collect(svc.SearchGames(context.Background(), "zelda", 1, false))
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, freshGames, snaps[0].Games)
	assert.False(t, snaps[0].FromCache)

	stored, err := cache.Lookup(context.Background(), "zelda", 1)
	require.NoError(t, err)
	assert.Equal(t, freshGames, stored)
}

func TestSearchCacheThenNetwork(t *testing.T) {
	cache := seeded(t, "zelda", 1, cachedGames)
	client := &fakeClient{search: returning(freshGames, nil)}
	svc := newService(t, client, cache)

	snaps, err := Collect(svc.SearchGames(context.Background(), "zelda", 1, false))
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, Snapshot{Games: cachedGames, FromCache: true}, snaps[0])
	assert.Equal(t, Snapshot{Games: freshGames}, snaps[1])
}

func TestSearchEmitsNetworkEvenWhenUnchanged(t *testing.T) {
	cache := seeded(t, "zelda", 1, cachedGames)
	client := &fakeClient{search: returning(cachedGames, nil)}
	svc := newService(t, client, cache)

	snaps, err := Collect(svc.SearchGames(context.Background(), "zelda", 1, false))
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, snaps[0].Games, snaps[1].Games)
}

func TestSearchForceRefreshSkipsCache(t *testing.T) {
	cache := seeded(t, "zelda", 1, cachedGames)
	client := &fakeClient{search: returning(freshGames, nil)}
	svc := newService(t, client, cache)

	snaps, err := Collect(svc.SearchGames(context.Background(), "zelda", 1, true))
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, freshGames, snaps[0].Games)
}

func TestSearchFailureWithCacheIsSwallowed(t *testing.T) {
	cache := seeded(t, "zelda", 1, cachedGames)
	client := &fakeClient{search: returning(nil, errOffline)}
	svc := newService(t, client, cache)

	snaps, err := Collect(svc.SearchGames(context.Background(), "zelda", 1, false))
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.True(t, snaps[0].FromCache)
	assert.Equal(t, cachedGames, snaps[0].Games)
}

func TestSearchFailureWithoutCacheIsTerminal(t *testing.T) {
	cache := seeded(t, "", 0, nil)
	client := &fakeClient{search: returning(nil, errOffline)}
	svc := newService(t, client, cache)

	snaps, err := Collect(svc.SearchGames(context.Background(), "zelda", 1, false))
	assert.Empty(t, snaps)
	assert.Same(t, errOffline, err)
	assert.ErrorIs(t, err, domain.ErrNetwork)
}

func TestSearchFailureOnOtherPageIsTerminal(t *testing.T) {
	cache := seeded(t, "zelda", 1, cachedGames)
	client := &fakeClient{search: returning(nil, errOffline)}
	svc := newService(t, client, cache)

	_, err := Collect(svc.SearchGames(context.Background(), "zelda", 2, false))
	assert.Same(t, errOffline, err)
}

func TestForcedSearchFailureFallsBackToCache(t *testing.T) {
	cache := seeded(t, "zelda", 1, cachedGames)
	client := &fakeClient{search: returning(nil, errOffline)}
	svc := newService(t, client, cache)

	snaps, err := Collect(svc.SearchGames(context.Background(), "zelda", 1, true))
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, Snapshot{Games: cachedGames, FromCache: true}, snaps[0])
}

func TestUpsertFailureTakesFailurePath(t *testing.T) {
	writeErr := &domain.CacheIOError{Op: "upsert", Err: errors.New("disk full")}

	t.Run("empty cache", func(t *testing.T) {
		cache := &faultyStore{CacheStore: seeded(t, "", 0, nil), upsertErr: writeErr}
		svc := newService(t, &fakeClient{search: returning(freshGames, nil)}, cache)

		snaps, err := Collect(svc.SearchGames(context.Background(), "zelda", 1, false))
		assert.Empty(t, snaps)
		assert.Same(t, writeErr, err)
	})

	t.Run("cache already shown", func(t *testing.T) {
		cache := &faultyStore{CacheStore: seeded(t, "zelda", 1, cachedGames), upsertErr: writeErr}
		svc := newService(t, &fakeClient{search: returning(freshGames, nil)}, cache)

		snaps, err := Collect(svc.SearchGames(context.Background(), "zelda", 1, false))
		require.NoError(t, err)
		require.Len(t, snaps, 1)
		assert.True(t, snaps[0].FromCache)
	})
}

func TestLookupFailureIsTreatedAsMiss(t *testing.T) {
	cache := &faultyStore{
		CacheStore: seeded(t, "zelda", 1, cachedGames),
		lookupErr:  &domain.CacheIOError{Op: "lookup", Err: errors.New("corrupt")},
	}
	svc := newService(t, &fakeClient{search: returning(freshGames, nil)}, cache)

	snaps, err := Collect(svc.SearchGames(context.Background(), "zelda", 1, false))
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.False(t, snaps[0].FromCache)
}

func TestSearchUsesConfiguredPageSize(t *testing.T) {
	var gotSize int
	client := &fakeClient{search: func(_ context.Context, _ string, _, size int) ([]domain.Game, error) {
		gotSize = size
		return nil, nil
	}}
	svc := newService(t, client, seeded(t, "", 0, nil), WithPageSize(40))

	_, err := Collect(svc.SearchGames(context.Background(), "zelda", 1, false))
	require.NoError(t, err)
	assert.Equal(t, 40, gotSize)
}

func TestSearchCancelledConsumer(t *testing.T) {
	started := make(chan struct{})
	client := &fakeClient{search: func(ctx context.Context, _ string, _, _ int) ([]domain.Game, error) {
		close(started)
		<-ctx.Done()
		return nil, &domain.TransportError{Op: "search games", Err: ctx.Err()}
	}}
	svc := newService(t, client, seeded(t, "", 0, nil))

	ctx, cancel := context.WithCancel(context.Background())
	ch := svc.SearchGames(ctx, "zelda", 1, false)
	<-started
	cancel()

	select {
	case snap, ok := <-ch:
		assert.False(t, ok, "unexpected snapshot %+v", snap)
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not close after cancellation")
	}
}

func TestCacheWriteCompletesAfterConsumerCancels(t *testing.T) {
	backends := map[string]func(t *testing.T) domain.CacheStore{
		"memory": func(t *testing.T) domain.CacheStore { return store.NewMemoryStore() },
		"sqlite": func(t *testing.T) domain.CacheStore {
			st, err := store.OpenSQLite(filepath.Join(t.TempDir(), "cache.sqlite"))
			require.NoError(t, err)
			t.Cleanup(func() { st.Close() })
			return st
		},
	}

	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			cache := open(t)
			ctx, cancel := context.WithCancel(context.Background())
			client := &fakeClient{search: func(context.Context, string, int, int) ([]domain.Game, error) {
				// The consumer leaves while the response is on its way
				cancel()
				return freshGames, nil
			}}
			svc := newService(t, client, cache)

			snaps, err := Collect(svc.SearchGames(ctx, "zelda", 1, false))
			require.NoError(t, err)
			assert.Empty(t, snaps)

			got, err := cache.Lookup(context.Background(), "zelda", 1)
			require.NoError(t, err)
			assert.ElementsMatch(t, freshGames, got)
		})
	}
}

func TestSearchRejectsPageBelowOne(t *testing.T) {
	client := &fakeClient{search: returning(freshGames, nil)}
	cache := seeded(t, "", 0, nil)
	svc := newService(t, client, cache)

	for _, page := range []int{0, -3} {
		snaps, err := Collect(svc.SearchGames(context.Background(), "zelda", page, false))
		assert.ErrorIs(t, err, domain.ErrInvalidPage)
		assert.Empty(t, snaps)
	}

	assert.Empty(t, client.searchCalls)
	all, err := cache.LookupAll(context.Background(), "zelda")
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestGetGameDetails(t *testing.T) {
	game := domain.Game{ID: 42, Title: "Hitchhiker", Description: domain.StringPtr("<p>towel</p>")}
	client := &fakeClient{details: func(_ context.Context, id int64) (domain.Game, error) {
		if id == 42 {
			return game, nil
		}
		return domain.Game{}, &domain.HTTPStatusError{Op: "get game details", StatusCode: 404}
	}}
	svc := newService(t, client, seeded(t, "", 0, nil))

	for _, force := range []bool{false, true} {
		snap := <-svc.GetGameDetails(context.Background(), 42, force)
		require.NoError(t, snap.Err)
		assert.Equal(t, game, snap.Game)
	}
	assert.Equal(t, int32(2), client.detailCalls.Load())

	snap := <-svc.GetGameDetails(context.Background(), 7, false)
	assert.ErrorIs(t, snap.Err, domain.ErrGameNotFound)
}

func TestGetGameDetailsSharesInFlightCall(t *testing.T) {
	release := make(chan struct{})
	client := &fakeClient{details: func(_ context.Context, id int64) (domain.Game, error) {
		<-release
		return domain.Game{ID: id, Title: "shared"}, nil
	}}
	svc := newService(t, client, seeded(t, "", 0, nil))

	a := svc.GetGameDetails(context.Background(), 5, false)
	b := svc.GetGameDetails(context.Background(), 5, false)
	require.Eventually(t, func() bool { return client.detailCalls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)

	assert.Equal(t, "shared", (<-a).Game.Title)
	assert.Equal(t, "shared", (<-b).Game.Title)
	assert.Equal(t, int32(1), client.detailCalls.Load())
}

func TestClearCache(t *testing.T) {
	cache := seeded(t, "zelda", 1, cachedGames)
	require.NoError(t, cache.Upsert(context.Background(), []domain.Game{{ID: 9}}, "mario", 1))
	svc := newService(t, &fakeClient{}, cache)

	n, err := svc.ClearCache(context.Background(), "zelda")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Empty(t, svc.CachedGames(context.Background(), "zelda"))
	assert.Len(t, svc.CachedGames(context.Background(), "mario"), 1)
}

func TestClearOldCaches(t *testing.T) {
	now := time.UnixMilli(10_000_000)
	clock := func() time.Time { return now }
	cache := store.NewMemoryStore(store.WithClock(clock))
	ctx := context.Background()

	require.NoError(t, cache.Upsert(ctx, cachedGames, "zelda", 1))
	now = now.Add(time.Hour)
	require.NoError(t, cache.Upsert(ctx, []domain.Game{{ID: 9}}, "mario", 1))

	svc := newService(t, &fakeClient{}, cache, WithClock(clock))
	n, err := svc.ClearOldCaches(ctx, 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = svc.ClearOldCaches(ctx, 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestEvictionErrorsPropagate(t *testing.T) {
	evictErr := &domain.CacheIOError{Op: "evict", Err: errors.New("locked")}
	cache := &faultyStore{CacheStore: seeded(t, "", 0, nil), evictErr: evictErr}
	svc := newService(t, &fakeClient{}, cache)

	_, err := svc.ClearCache(context.Background(), "zelda")
	assert.Same(t, evictErr, err)

	_, err = svc.ClearOldCaches(context.Background(), time.Hour)
	assert.Same(t, evictErr, err)
}

func TestCachedGamesDegradesToEmpty(t *testing.T) {
	cache := &faultyStore{
		CacheStore: seeded(t, "zelda", 1, cachedGames),
		lookupErr:  errors.New("boom"),
	}
	svc := newService(t, &fakeClient{}, cache)
	assert.Empty(t, svc.CachedGames(context.Background(), "zelda"))
}

func TestGetGameDetailsCancelsFetchWhenCallerLeaves(t *testing.T) {
	started := make(chan struct{})
	fetchDone := make(chan error, 1)
	client := &fakeClient{details: func(ctx context.Context, _ int64) (domain.Game, error) {
		close(started)
		<-ctx.Done()
		fetchDone <- ctx.Err()
		return domain.Game{}, &domain.TransportError{Op: "get game details", Err: ctx.Err()}
	}}
	svc := newService(t, client, seeded(t, "", 0, nil))

	ctx, cancel := context.WithCancel(context.Background())
	ch := svc.GetGameDetails(ctx, 9, false)
	<-started
	cancel()

	select {
	case err := <-fetchDone:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("fetch kept running after its only caller went away")
	}
	_, ok := <-ch
	assert.False(t, ok)
}

func TestGetGameDetailsSharedFetchSurvivesOneCaller(t *testing.T) {
	release := make(chan struct{})
	var sawCancel atomic.Bool
	client := &fakeClient{details: func(ctx context.Context, id int64) (domain.Game, error) {
		select {
		case <-release:
			return domain.Game{ID: id, Title: "kept"}, nil
		case <-ctx.Done():
			sawCancel.Store(true)
			return domain.Game{}, ctx.Err()
		}
	}}
	svc := newService(t, client, seeded(t, "", 0, nil))

	ctxA, cancelA := context.WithCancel(context.Background())
	a := svc.GetGameDetails(ctxA, 5, false)
	b := svc.GetGameDetails(context.Background(), 5, false)
	require.Eventually(t, func() bool {
		svc.mu.Lock()
		defer svc.mu.Unlock()
		call := svc.calls["5"]
		return call != nil && call.waiters == 2
	}, time.Second, time.Millisecond)

	cancelA()
	_, ok := <-a
	assert.False(t, ok)
	close(release)

	snap := <-b
	require.NoError(t, snap.Err)
	assert.Equal(t, "kept", snap.Game.Title)
	assert.False(t, sawCancel.Load())
	assert.Equal(t, int32(1), client.detailCalls.Load())
}
