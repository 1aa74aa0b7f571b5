// Package session holds the per-screen search state: the current query,
// how many pages have been loaded, and what to do on "load more" and "retry".
package session

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/mmcdole/gamedb/internal/catalog"
	"github.com/mmcdole/gamedb/internal/domain"
)

// Searcher is the part of catalog.Service a Session drives
type Searcher interface {
	SearchGames(ctx context.Context, query string, page int, forceRefresh bool) <-chan catalog.Snapshot
}

// Status is the session's position in its state machine
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusLoaded
	StatusLoadingMore
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusLoaded:
		return "loaded"
	case StatusLoadingMore:
		return "loading more"
	case StatusError:
		return "error"
	}
	return "unknown"
}

// View is a point-in-time copy of a session's state
type View struct {
	Status     Status
	Query      string
	Page       int
	IsLastPage bool
	Games      []domain.Game

	// Loading is true while a request is in flight, including after its
	// cached snapshot has arrived and the network refresh is still pending.
	Loading bool

	// FromCache reports whether the latest snapshot came from the local cache
	FromCache bool

	Err     error
	Message string
}

// Option configures a Session
type Option func(*Session)

// WithObserver registers fn to receive every committed state change.
// fn is called one change at a time and must not call back into the session.
func WithObserver(fn func(View)) Option {
	return func(s *Session) {
		if fn != nil {
			s.observers = append(s.observers, fn)
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Session is a single-writer search state machine. At most one request is
// in flight; a new Search supersedes the previous one and late results from
// superseded requests are dropped.
type Session struct {
	searcher  Searcher
	logger    *slog.Logger
	observers []func(View)

	mu     sync.Mutex
	state  View
	gen    uint64
	cancel context.CancelFunc
	closed bool

	// notifyMu keeps observer calls ordered
	notifyMu sync.Mutex
	wg       sync.WaitGroup
}

// New creates an idle session
func New(searcher Searcher, opts ...Option) *Session {
	s := &Session{
		searcher: searcher,
		logger:   slog.Default(),
		state:    View{Status: StatusIdle, Page: 1},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns a copy of the current state
func (s *Session) State() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() View {
	v := s.state
	v.Games = append([]domain.Game(nil), s.state.Games...)
	return v
}

// Search starts a new query from page 1. Blank queries are ignored.
func (s *Session) Search(query string) {
	s.search(query, false)
}

// Refresh re-runs the current query from page 1, bypassing the cache
func (s *Session) Refresh() {
	s.mu.Lock()
	query := s.state.Query
	s.mu.Unlock()
	s.search(query, true)
}

func (s *Session) search(query string, force bool) {
	if strings.TrimSpace(query) == "" {
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.state = View{
		Status:  StatusLoading,
		Query:   query,
		Page:    1,
		Loading: true,
	}
	gen, ctx := s.beginLocked()
	view := s.snapshotLocked()
	s.mu.Unlock()

	s.logger.Debug("search started", "query", query, "generation", gen)
	s.notify(gen, view)
	s.run(ctx, gen, query, 1, force, nil)
}

// LoadMore requests the next page. It does nothing while a request is in
// flight, when there is no query, or once an empty page has been seen.
func (s *Session) LoadMore() {
	s.mu.Lock()
	if s.closed || s.state.Loading || strings.TrimSpace(s.state.Query) == "" || s.state.IsLastPage {
		s.mu.Unlock()
		return
	}
	s.state.Page++
	s.startMoreLocked()
}

// Retry re-issues the request that last failed. On page 1 this is a fresh
// Search; on later pages the same page is requested again, and only if that
// page failed.
func (s *Session) Retry() {
	s.mu.Lock()
	query := s.state.Query
	if s.closed || strings.TrimSpace(query) == "" {
		s.mu.Unlock()
		return
	}
	if s.state.Page <= 1 {
		s.mu.Unlock()
		s.Search(query)
		return
	}
	// Only a failed page is re-attempted, under the same guards as LoadMore
	if s.state.Loading || s.state.IsLastPage || s.state.Status != StatusError {
		s.mu.Unlock()
		return
	}
	s.startMoreLocked()
}

// startMoreLocked starts fetching s.state.Page as a "more" request.
// Called with s.mu held; releases it.
func (s *Session) startMoreLocked() {
	query, page := s.state.Query, s.state.Page
	base := make([]domain.Game, len(s.state.Games))
	copy(base, s.state.Games)

	s.state.Status = StatusLoadingMore
	s.state.Loading = true
	s.state.Err = nil
	s.state.Message = ""
	gen, ctx := s.beginLocked()
	view := s.snapshotLocked()
	s.mu.Unlock()

	s.logger.Debug("load more started", "query", query, "page", page, "generation", gen)
	s.notify(gen, view)
	s.run(ctx, gen, query, page, false, base)
}

// beginLocked cancels any in-flight request and opens a new generation
func (s *Session) beginLocked() (uint64, context.Context) {
	if s.cancel != nil {
		s.cancel()
	}
	s.gen++
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	return s.gen, ctx
}

// run consumes one search stream. base is nil for a first page; for a
// later page it is the list as it stood before the page was requested, so
// a cached snapshot and its network refresh replace each other.
func (s *Session) run(ctx context.Context, gen uint64, query string, page int, force bool, base []domain.Game) {
	ch := s.searcher.SearchGames(ctx, query, page, force)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for snap := range ch {
			if snap.Err != nil {
				s.fail(gen, snap.Err)
				continue
			}
			s.apply(gen, base, snap)
		}
		s.finish(gen)
	}()
}

func (s *Session) apply(gen uint64, base []domain.Game, snap catalog.Snapshot) {
	s.mu.Lock()
	if gen != s.gen || s.closed {
		s.mu.Unlock()
		return
	}
	if base == nil {
		s.state.Games = append([]domain.Game(nil), snap.Games...)
	} else {
		games := make([]domain.Game, 0, len(base)+len(snap.Games))
		games = append(games, base...)
		s.state.Games = append(games, snap.Games...)
	}
	s.state.IsLastPage = len(snap.Games) == 0
	s.state.FromCache = snap.FromCache
	s.state.Status = StatusLoaded
	view := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(gen, view)
}

func (s *Session) fail(gen uint64, err error) {
	s.mu.Lock()
	if gen != s.gen || s.closed {
		s.mu.Unlock()
		return
	}
	s.state.Status = StatusError
	s.state.Loading = false
	s.state.Err = err
	s.state.Message = Message(err)
	view := s.snapshotLocked()
	s.mu.Unlock()

	s.logger.Warn("search failed", "error", err, "query", view.Query, "page", view.Page)
	s.notify(gen, view)
}

// finish clears the in-flight flag once the stream closes
func (s *Session) finish(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.closed || !s.state.Loading {
		s.mu.Unlock()
		return
	}
	s.state.Loading = false
	switch s.state.Status {
	case StatusLoading, StatusLoadingMore:
		// Stream ended without a snapshot
		s.state.Status = StatusLoaded
	}
	view := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(gen, view)
}

func (s *Session) notify(gen uint64, view View) {
	if len(s.observers) == 0 {
		return
	}
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	// A newer generation may have committed while we waited
	s.mu.Lock()
	stale := gen != s.gen || s.closed
	s.mu.Unlock()
	if stale {
		return
	}
	for _, fn := range s.observers {
		fn(view)
	}
}

// Wait blocks until every request started so far has finished
func (s *Session) Wait() {
	s.wg.Wait()
}

// Close cancels in-flight work and stops further notifications
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
}
