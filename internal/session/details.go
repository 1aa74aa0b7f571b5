package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/mmcdole/gamedb/internal/catalog"
	"github.com/mmcdole/gamedb/internal/domain"
)

// DetailFetcher is the part of catalog.Service a DetailSession drives
type DetailFetcher interface {
	GetGameDetails(ctx context.Context, id int64, forceRefresh bool) <-chan catalog.DetailSnapshot
}

// DetailView is a point-in-time copy of a DetailSession
type DetailView struct {
	ID      int64
	Game    *domain.Game
	Loading bool
	Err     error
	Message string
}

// DetailSession loads one game at a time for a details screen
type DetailSession struct {
	fetcher  DetailFetcher
	logger   *slog.Logger
	observer func(DetailView)

	mu     sync.Mutex
	state  DetailView
	gen    uint64
	cancel context.CancelFunc
	closed bool

	notifyMu sync.Mutex
	wg       sync.WaitGroup
}

// NewDetailSession creates a details session. observer may be nil; if set it
// must not call back into the session.
func NewDetailSession(fetcher DetailFetcher, logger *slog.Logger, observer func(DetailView)) *DetailSession {
	if logger == nil {
		logger = slog.Default()
	}
	return &DetailSession{fetcher: fetcher, logger: logger, observer: observer}
}

// State returns a copy of the current state
func (d *DetailSession) State() DetailView {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Load fetches game id, replacing whatever the session showed before
func (d *DetailSession) Load(id int64, forceRefresh bool) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	if d.cancel != nil {
		d.cancel()
	}
	d.gen++
	gen := d.gen
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel

	var prev *domain.Game
	if d.state.Game != nil && d.state.Game.ID == id {
		prev = d.state.Game
	}
	d.state = DetailView{ID: id, Game: prev, Loading: true}
	view := d.state
	d.mu.Unlock()

	d.notify(gen, view)

	ch := d.fetcher.GetGameDetails(ctx, id, forceRefresh)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for snap := range ch {
			d.apply(gen, snap)
		}
	}()
}

// Retry reloads the current game, asking for a fresh copy
func (d *DetailSession) Retry() {
	d.mu.Lock()
	id := d.state.ID
	d.mu.Unlock()
	if id == 0 {
		return
	}
	d.Load(id, true)
}

func (d *DetailSession) apply(gen uint64, snap catalog.DetailSnapshot) {
	d.mu.Lock()
	if gen != d.gen || d.closed {
		d.mu.Unlock()
		return
	}
	d.state.Loading = false
	if snap.Err != nil {
		d.state.Err = snap.Err
		d.state.Message = Message(snap.Err)
		d.logger.Warn("failed to load game details", "error", snap.Err, "id", d.state.ID)
	} else {
		game := snap.Game
		d.state.Game = &game
	}
	view := d.state
	d.mu.Unlock()

	d.notify(gen, view)
}

func (d *DetailSession) notify(gen uint64, view DetailView) {
	if d.observer == nil {
		return
	}
	d.notifyMu.Lock()
	defer d.notifyMu.Unlock()

	d.mu.Lock()
	stale := gen != d.gen || d.closed
	d.mu.Unlock()
	if stale {
		return
	}
	d.observer(view)
}

// Wait blocks until every load started so far has finished
func (d *DetailSession) Wait() {
	d.wg.Wait()
}

// Close cancels any in-flight load
func (d *DetailSession) Close() {
	d.mu.Lock()
	d.closed = true
	if d.cancel != nil {
		d.cancel()
	}
	d.mu.Unlock()
}
