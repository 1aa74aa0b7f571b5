package tui

import (
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mmcdole/gamedb/internal/session"
	"github.com/mmcdole/gamedb/internal/tui/components"
	"github.com/mmcdole/gamedb/internal/tui/styles"
)

// ApplicationState represents the current state of the application
type ApplicationState int

const (
	StateSearching ApplicationState = iota // search input focused
	StateBrowsing                          // result list focused
	StateDetails
	StateHelp
)

const (
	tickInterval = 100 * time.Millisecond
	statusTTL    = 3 * time.Second

	// Vertical layout: search bar + footer
	ChromeHeight = 2
)

// Model is the main Bubble Tea model for the application
type Model struct {
	// Application state
	State     ApplicationState
	prevState ApplicationState
	Ready     bool

	// Sessions
	Search  *session.Session
	Details *session.DetailSession

	searchUpdates <-chan session.View
	detailUpdates <-chan session.DetailView

	// Latest session states
	SearchView session.View
	DetailView session.DetailView

	// UI Components
	Input   textinput.Model
	Results components.ResultList
	Detail  components.DetailPane

	// Dimensions
	Width  int
	Height int

	// UI state
	StatusMsg    string
	StatusIsErr  bool
	SpinnerFrame int

	pendingQuery string
	logger       *slog.Logger
}

// NewModel creates a new application model. A non-empty initialQuery is
// searched as soon as the program starts.
func NewModel(searcher session.Searcher, fetcher session.DetailFetcher, logger *slog.Logger, initialQuery string) Model {
	if logger == nil {
		logger = slog.Default()
	}

	searchObs := NewChannelObserver[session.View]()
	detailObs := NewChannelObserver[session.DetailView]()

	ti := textinput.New()
	ti.Placeholder = "Search RAWG..."
	ti.Prompt = "Search: "
	ti.PromptStyle = styles.PromptStyle
	ti.TextStyle = styles.InputTextStyle
	ti.CharLimit = 100

	m := Model{
		State:         StateSearching,
		Search:        session.New(searcher, session.WithObserver(searchObs.Notify), session.WithLogger(logger)),
		Details:       session.NewDetailSession(fetcher, logger, detailObs.Notify),
		searchUpdates: searchObs.C(),
		detailUpdates: detailObs.C(),
		Input:         ti,
		Results:       components.NewResultList(),
		Detail:        components.NewDetailPane(),
		logger:        logger,
	}

	if q := strings.TrimSpace(initialQuery); q != "" {
		m.Input.SetValue(q)
		m.pendingQuery = q
		m.State = StateBrowsing
	} else {
		m.Input.Focus()
	}
	return m
}

// Init initializes the application
func (m Model) Init() tea.Cmd {
	if m.pendingQuery != "" {
		m.Search.Search(m.pendingQuery)
	}
	return tea.Batch(
		listenSearchCmd(m.searchUpdates),
		listenDetailCmd(m.detailUpdates),
		TickCmd(tickInterval),
		textinput.Blink,
	)
}

// Close cancels in-flight requests and waits for session workers to exit
func (m Model) Close() {
	m.Search.Close()
	m.Details.Close()
}

// Update handles all messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Ready = true
		m.updateLayout()
		return m, nil

	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case TickMsg:
		m.SpinnerFrame++
		return m, TickCmd(tickInterval)

	case SearchUpdatedMsg:
		m.SearchView = msg.View
		m.Results.SetGames(msg.View.Games)
		if msg.View.Err != nil {
			m.logger.Debug("search view error", "query", msg.View.Query, "page", msg.View.Page, "error", msg.View.Err)
		}
		return m, listenSearchCmd(m.searchUpdates)

	case DetailUpdatedMsg:
		prev := m.DetailView.Game
		m.DetailView = msg.View
		if msg.View.Game != nil && msg.View.Game != prev {
			m.Detail.SetGame(msg.View.Game)
		}
		return m, listenDetailCmd(m.detailUpdates)

	case StatusMsg:
		m.StatusMsg = msg.Message
		m.StatusIsErr = msg.IsError
		return m, ClearStatusCmd(statusTTL)

	case ClearStatusMsg:
		m.StatusMsg = ""
		m.StatusIsErr = false
		return m, nil
	}

	// Cursor blink and other component messages
	var cmd tea.Cmd
	switch {
	case m.State == StateSearching:
		m.Input, cmd = m.Input.Update(msg)
	case m.State == StateBrowsing && m.Results.FilterActive():
		cmd = m.Results.UpdateFilter(msg)
	}
	return m, cmd
}

// updateLayout recalculates component sizes
func (m *Model) updateLayout() {
	bodyHeight := max(m.Height-ChromeHeight, 3)
	m.Input.Width = max(m.Width-len(m.Input.Prompt)-1, 10)
	// List sits inside a border
	m.Results.SetSize(max(m.Width-2, 10), bodyHeight-2)
	m.Detail.SetSize(m.Width, bodyHeight)
}

// handleKeyMsg handles keyboard input
func (m Model) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}

	switch m.State {
	case StateHelp:
		// Any key closes help
		m.State = m.prevState
		return m, nil
	case StateSearching:
		return m.handleSearchInput(msg)
	case StateDetails:
		return m.handleDetailKeys(msg)
	}

	if m.Results.FilterActive() {
		return m.handleFilterInput(msg)
	}
	return m.handleBrowseKeys(msg)
}

func (m Model) handleSearchInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		query := strings.TrimSpace(m.Input.Value())
		if query == "" {
			return m, ShowStatusCmd("Type something to search for", false)
		}
		m.Results.ClearFilter()
		m.Search.Search(query)
		m.Input.Blur()
		m.State = StateBrowsing
		return m, nil

	case tea.KeyEsc:
		// Back to the current results, if there are any
		if m.SearchView.Query != "" {
			m.Input.SetValue(m.SearchView.Query)
			m.Input.Blur()
			m.State = StateBrowsing
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.Input, cmd = m.Input.Update(msg)
	return m, cmd
}

func (m Model) handleFilterInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		m.Results.StopFilter()
		return m, nil
	case tea.KeyEsc:
		m.Results.ClearFilter()
		return m, nil
	}
	return m, m.Results.UpdateFilter(msg)
}

func (m Model) handleBrowseKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	page := max(m.Results.Len(), 1)
	if m.Height > ChromeHeight+3 {
		page = m.Height - ChromeHeight - 3
	}

	switch {
	case key.Matches(msg, Keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, Keys.Help):
		m.prevState = m.State
		m.State = StateHelp
		return m, nil

	case key.Matches(msg, Keys.Search):
		return m.focusSearch()

	case key.Matches(msg, Keys.Filter):
		if m.Results.Len() == 0 {
			return m, nil
		}
		return m, m.Results.StartFilter()

	case key.Matches(msg, Keys.Escape):
		if m.Results.FilterQuery() != "" {
			m.Results.ClearFilter()
			return m, nil
		}
		return m.focusSearch()

	case key.Matches(msg, Keys.Up):
		m.Results.MoveUp(1)

	case key.Matches(msg, Keys.Down):
		// Scrolling past the last row pages in more results
		if m.Results.AtBottom() && m.Results.FilterQuery() == "" {
			return m.loadMore(false)
		}
		m.Results.MoveDown(1)

	case key.Matches(msg, Keys.PageUp):
		m.Results.MoveUp(page)

	case key.Matches(msg, Keys.PageDown):
		m.Results.MoveDown(page)

	case key.Matches(msg, Keys.Home):
		m.Results.Top()

	case key.Matches(msg, Keys.End):
		m.Results.Bottom()

	case key.Matches(msg, Keys.Enter):
		return m.openDetails()

	case key.Matches(msg, Keys.LoadMore):
		return m.loadMore(true)

	case key.Matches(msg, Keys.Retry):
		if m.SearchView.Err == nil {
			return m, nil
		}
		m.Search.Retry()

	case key.Matches(msg, Keys.Refresh):
		if m.SearchView.Query == "" {
			return m, nil
		}
		m.Search.Refresh()
	}

	return m, nil
}

func (m Model) handleDetailKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, Keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, Keys.Help):
		m.prevState = m.State
		m.State = StateHelp
		return m, nil

	case key.Matches(msg, Keys.Escape), key.Matches(msg, Keys.Back):
		m.State = StateBrowsing
		return m, nil

	case key.Matches(msg, Keys.Retry):
		if m.DetailView.Err != nil {
			m.Details.Retry()
		}
		return m, nil

	case key.Matches(msg, Keys.Refresh):
		if m.DetailView.ID != 0 {
			m.Details.Load(m.DetailView.ID, true)
		}
		return m, nil
	}

	// Remaining keys scroll the description
	var cmd tea.Cmd
	m.Detail, cmd = m.Detail.Update(msg)
	return m, cmd
}

func (m Model) focusSearch() (tea.Model, tea.Cmd) {
	m.State = StateSearching
	m.Input.CursorEnd()
	return m, m.Input.Focus()
}

// openDetails shows the selected game right away and loads its full record
func (m Model) openDetails() (tea.Model, tea.Cmd) {
	g, ok := m.Results.Selected()
	if !ok {
		return m, nil
	}
	m.Detail.SetGame(&g)
	m.DetailView = session.DetailView{ID: g.ID, Loading: true}
	m.Details.Load(g.ID, false)
	m.State = StateDetails
	return m, nil
}

// loadMore requests the next page. explicit is true when the user asked for
// it by key rather than by scrolling off the end.
func (m Model) loadMore(explicit bool) (tea.Model, tea.Cmd) {
	v := m.SearchView
	switch {
	case v.Query == "" || v.Loading:
		return m, nil
	case v.IsLastPage:
		if explicit {
			return m, ShowStatusCmd("No more results", false)
		}
		return m, nil
	}
	m.Search.LoadMore()
	return m, nil
}
