package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mmcdole/gamedb/internal/domain"
	"github.com/mmcdole/gamedb/internal/tui/styles"
	"github.com/sahilm/fuzzy"
)

// Column widths for the result table
const (
	releaseWidth    = 10
	ratingWidth     = 4
	metacriticWidth = 3
	columnGap       = 2
)

// ResultList is a scrollable list of games with a local fuzzy filter.
// The filter only narrows what is shown; it never issues a search.
type ResultList struct {
	games []domain.Game

	cursor     int
	offset     int
	width      int
	height     int
	maxVisible int

	filterActive bool
	filterInput  textinput.Model
	filtered     []fuzzy.Match // nil when no filter query
}

// NewResultList creates an empty result list
func NewResultList() ResultList {
	ti := textinput.New()
	ti.Placeholder = "type to filter..."
	ti.Prompt = "/ "
	ti.PromptStyle = styles.FilterPromptStyle
	ti.TextStyle = styles.FilterStyle

	return ResultList{filterInput: ti}
}

// SetSize sets the list dimensions
func (l *ResultList) SetSize(width, height int) {
	l.width = width
	l.height = height
	l.recalcMaxVisible()
	l.ensureVisible()
}

// SetGames replaces the list contents. The cursor stays on the same game
// when it is still present, so pages appended below do not move it.
func (l *ResultList) SetGames(games []domain.Game) {
	var selectedID int64 = -1
	if g, ok := l.Selected(); ok {
		selectedID = g.ID
	}

	l.games = games
	l.applyFilter()

	l.cursor = 0
	for i := 0; i < l.count(); i++ {
		if l.at(i).ID == selectedID {
			l.cursor = i
			break
		}
	}
	l.ensureVisible()
}

// Games returns the full, unfiltered contents
func (l ResultList) Games() []domain.Game {
	return l.games
}

// Len returns the number of visible rows
func (l ResultList) Len() int {
	return l.count()
}

// Selected returns the game under the cursor
func (l ResultList) Selected() (domain.Game, bool) {
	if l.cursor < 0 || l.cursor >= l.count() {
		return domain.Game{}, false
	}
	return l.at(l.cursor), true
}

// AtBottom reports whether the cursor is on the last row
func (l ResultList) AtBottom() bool {
	return l.count() > 0 && l.cursor == l.count()-1
}

// FilterActive reports whether the filter input has focus
func (l ResultList) FilterActive() bool {
	return l.filterActive
}

// FilterQuery returns the current filter text
func (l ResultList) FilterQuery() string {
	return l.filterInput.Value()
}

// StartFilter focuses the filter input
func (l *ResultList) StartFilter() tea.Cmd {
	l.filterActive = true
	l.recalcMaxVisible()
	return l.filterInput.Focus()
}

// StopFilter leaves the filter input, keeping the current query applied
func (l *ResultList) StopFilter() {
	l.filterActive = false
	l.filterInput.Blur()
	l.recalcMaxVisible()
}

// ClearFilter removes the filter and shows every game again
func (l *ResultList) ClearFilter() {
	l.filterActive = false
	l.filterInput.SetValue("")
	l.filterInput.Blur()
	l.filtered = nil
	l.cursor = 0
	l.offset = 0
	l.recalcMaxVisible()
}

// UpdateFilter feeds a key to the filter input and re-applies it
func (l *ResultList) UpdateFilter(msg tea.Msg) tea.Cmd {
	prev := l.filterInput.Value()
	var cmd tea.Cmd
	l.filterInput, cmd = l.filterInput.Update(msg)
	if l.filterInput.Value() == prev {
		return cmd
	}
	l.applyFilter()
	l.cursor = 0
	l.offset = 0
	return cmd
}

// MoveUp moves the cursor up by n rows
func (l *ResultList) MoveUp(n int) {
	l.cursor -= n
	if l.cursor < 0 {
		l.cursor = 0
	}
	l.ensureVisible()
}

// MoveDown moves the cursor down by n rows
func (l *ResultList) MoveDown(n int) {
	l.cursor += n
	if last := l.count() - 1; l.cursor > last {
		l.cursor = max(last, 0)
	}
	l.ensureVisible()
}

// Top moves the cursor to the first row
func (l *ResultList) Top() {
	l.cursor = 0
	l.ensureVisible()
}

// Bottom moves the cursor to the last row
func (l *ResultList) Bottom() {
	l.cursor = max(l.count()-1, 0)
	l.ensureVisible()
}

// gameTitles lets fuzzy.FindFrom search titles without copying them
type gameTitles []domain.Game

func (g gameTitles) String(i int) string { return strings.ToLower(g[i].Title) }
func (g gameTitles) Len() int            { return len(g) }

func (l *ResultList) applyFilter() {
	query := strings.TrimSpace(l.filterInput.Value())
	if query == "" {
		l.filtered = nil
		return
	}
	matches := fuzzy.FindFrom(strings.ToLower(query), gameTitles(l.games))
	if matches == nil {
		matches = fuzzy.Matches{}
	}
	l.filtered = matches
}

func (l ResultList) count() int {
	if l.filtered != nil {
		return len(l.filtered)
	}
	return len(l.games)
}

func (l ResultList) at(i int) domain.Game {
	if l.filtered != nil {
		return l.games[l.filtered[i].Index]
	}
	return l.games[i]
}

func (l ResultList) matchedIndexes(i int) []int {
	if l.filtered != nil {
		return l.filtered[i].MatchedIndexes
	}
	return nil
}

func (l *ResultList) recalcMaxVisible() {
	l.maxVisible = l.height - 1 // header
	if l.filterActive || l.filterInput.Value() != "" {
		l.maxVisible--
	}
	if l.maxVisible < 1 {
		l.maxVisible = 1
	}
}

func (l *ResultList) ensureVisible() {
	if l.cursor < l.offset {
		l.offset = l.cursor
	}
	if l.cursor >= l.offset+l.maxVisible {
		l.offset = l.cursor - l.maxVisible + 1
	}
	if l.offset < 0 {
		l.offset = 0
	}
}

func (l ResultList) titleWidth() int {
	w := l.width - 2 - releaseWidth - ratingWidth - metacriticWidth - 3*columnGap
	if w < 8 {
		w = 8
	}
	return w
}

// View renders the list
func (l ResultList) View() string {
	var b strings.Builder
	gap := strings.Repeat(" ", columnGap)

	header := " " + styles.Pad("Title", l.titleWidth()) + gap +
		styles.Pad("Released", releaseWidth) + gap +
		styles.Pad("Rtg", ratingWidth) + gap +
		styles.Pad("MC", metacriticWidth)
	b.WriteString(styles.DimStyle.Render(header))

	if l.filterActive || l.filterInput.Value() != "" {
		b.WriteString("\n")
		b.WriteString(l.filterInput.View())
	}

	if l.count() == 0 {
		b.WriteString("\n")
		if l.filtered != nil {
			b.WriteString(styles.DimStyle.Render(" No matches"))
		}
		return b.String()
	}

	end := min(l.offset+l.maxVisible, l.count())
	for i := l.offset; i < end; i++ {
		b.WriteString("\n")
		b.WriteString(l.renderRow(i, gap))
	}
	return b.String()
}

func (l ResultList) renderRow(i int, gap string) string {
	g := l.at(i)
	selected := i == l.cursor

	title := styles.Pad(styles.Truncate(g.Title, l.titleWidth()), l.titleWidth())
	parts := highlightParts(title, l.matchedIndexes(i))
	parts = append(parts,
		styles.RowPart{Text: gap + styles.Pad(g.ReleaseText(), releaseWidth)},
		styles.RowPart{Text: gap + styles.Pad(formatRating(g), ratingWidth)},
		styles.RowPart{Text: gap},
	)
	mc := styles.RowPart{Text: styles.Pad(g.MetacriticText(), metacriticWidth)}
	if g.Metacritic != nil {
		color := styles.ScoreColor(*g.Metacritic)
		mc.Foreground = &color
	}
	parts = append(parts, mc)

	return styles.RenderListRow(parts, selected, l.width)
}

func formatRating(g domain.Game) string {
	if g.Rating == nil {
		return ""
	}
	return fmt.Sprintf("%.1f", *g.Rating)
}

// highlightParts splits text into runs, coloring the fuzzy-matched bytes
func highlightParts(text string, matched []int) []styles.RowPart {
	if len(matched) == 0 {
		return []styles.RowPart{{Text: text}}
	}
	hit := make(map[int]bool, len(matched))
	for _, idx := range matched {
		hit[idx] = true
	}

	var parts []styles.RowPart
	var run strings.Builder
	runHit := false
	flush := func() {
		if run.Len() == 0 {
			return
		}
		p := styles.RowPart{Text: run.String()}
		if runHit {
			c := styles.Accent
			p.Foreground = &c
		}
		parts = append(parts, p)
		run.Reset()
	}
	for i, r := range text {
		if hit[i] != runHit {
			flush()
			runHit = hit[i]
		}
		run.WriteRune(r)
	}
	flush()
	return parts
}
