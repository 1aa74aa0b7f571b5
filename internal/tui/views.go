package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mmcdole/gamedb/internal/session"
	"github.com/mmcdole/gamedb/internal/tui/styles"
)

// View renders the application
func (m Model) View() string {
	if !m.Ready {
		return "Loading..."
	}
	if m.State == StateHelp {
		return m.renderHelp()
	}

	var body string
	if m.State == StateDetails {
		body = m.renderDetails()
	} else {
		body = m.renderResults()
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderSearchBar(),
		body,
		m.renderFooter(),
	)
}

func (m Model) bodyHeight() int {
	return max(m.Height-ChromeHeight, 3)
}

func (m Model) renderSearchBar() string {
	if m.State == StateSearching {
		return m.Input.View()
	}
	query := m.SearchView.Query
	if query == "" {
		query = m.Input.Value()
	}
	return styles.DimStyle.Render(m.Input.Prompt) + styles.InputTextStyle.Render(query)
}

func (m Model) renderResults() string {
	v := m.SearchView
	height := m.bodyHeight()

	if m.Results.Len() == 0 {
		var msg string
		switch {
		case v.Loading:
			msg = RenderSpinner(m.SpinnerFrame) + " " + styles.DimStyle.Render(fmt.Sprintf("Searching for %q...", v.Query))
		case v.Err != nil:
			msg = styles.ErrorStyle.Render(v.Message) + "\n\n" +
				styles.AccentStyle.Render("r") + styles.DimStyle.Render(" retry")
		case v.Status == session.StatusLoaded:
			msg = styles.DimStyle.Render(fmt.Sprintf("No games found for %q", v.Query))
		default:
			msg = styles.DimStyle.Render("Type a game title and press enter")
		}
		return lipgloss.Place(m.Width, height, lipgloss.Center, lipgloss.Center, msg)
	}

	border := styles.InactiveBorder
	if m.State == StateBrowsing {
		border = styles.ActiveBorder
	}
	return border.
		Width(max(m.Width-2, 1)).
		Height(max(height-2, 1)).
		Render(m.Results.View())
}

func (m Model) renderDetails() string {
	d := m.DetailView
	if !m.Detail.HasGame() {
		var msg string
		switch {
		case d.Err != nil:
			msg = styles.ErrorStyle.Render(d.Message) + "\n\n" +
				styles.AccentStyle.Render("r") + styles.DimStyle.Render(" retry")
		default:
			msg = RenderSpinner(m.SpinnerFrame) + " " + styles.DimStyle.Render("Loading details...")
		}
		return lipgloss.Place(m.Width, m.bodyHeight(), lipgloss.Center, lipgloss.Center, msg)
	}
	return m.Detail.View()
}

// renderFooter renders a single-line minimal footer
func (m Model) renderFooter() string {
	// Left side: spinner or status
	var left string
	switch {
	case m.StatusMsg != "":
		if m.StatusIsErr {
			left = styles.ErrorStyle.Render(m.StatusMsg)
		} else {
			left = styles.DimStyle.Render(m.StatusMsg)
		}
	case m.State == StateDetails && m.DetailView.Loading:
		left = RenderSpinner(m.SpinnerFrame) + " " + styles.DimStyle.Render("Loading details...")
	case m.State == StateDetails && m.DetailView.Err != nil:
		left = styles.ErrorStyle.Render(m.DetailView.Message) + styles.DimStyle.Render(" · r retry")
	case m.SearchView.Loading:
		text := "Searching..."
		if m.SearchView.Status == session.StatusLoadingMore || m.SearchView.Page > 1 {
			text = fmt.Sprintf("Loading page %d...", m.SearchView.Page)
		}
		left = RenderSpinner(m.SpinnerFrame) + " " + styles.DimStyle.Render(text)
	case m.SearchView.Err != nil:
		left = styles.ErrorStyle.Render(m.SearchView.Message) + styles.DimStyle.Render(" · r retry")
	}

	// Center: where the results came from and how far we've paged
	var center string
	if m.State != StateDetails && len(m.SearchView.Games) > 0 {
		center = RenderOrigin(m.SearchView.FromCache) + " " + styles.DimStyle.Render(resultSummary(m.SearchView))
	}

	// Right side: "? help" hint
	right := styles.AccentStyle.Render("?") + styles.DimStyle.Render(" help")

	return layoutFooter(left, center, right, m.Width)
}

// layoutFooter places left, centered and right sections on one line
func layoutFooter(left, center, right string, width int) string {
	leftWidth := lipgloss.Width(left)
	centerWidth := lipgloss.Width(center)
	rightWidth := lipgloss.Width(right)

	if leftWidth+centerWidth+rightWidth >= width {
		// Not enough space - just left + right
		gap := max(width-leftWidth-rightWidth, 0)
		return left + strings.Repeat(" ", gap) + right
	}

	available := width - leftWidth - rightWidth
	leftPad := (available - centerWidth) / 2
	rightPad := available - centerWidth - leftPad

	return left + strings.Repeat(" ", leftPad) + center + strings.Repeat(" ", rightPad) + right
}

func resultSummary(v session.View) string {
	s := fmt.Sprintf("%d games · page %d", len(v.Games), v.Page)
	if v.IsLastPage {
		s += " · end"
	}
	return s
}

// RenderOrigin renders the cache/network badge
func RenderOrigin(fromCache bool) string {
	if fromCache {
		return styles.CacheBadge.Render("CACHED")
	}
	return styles.NetworkBadge.Render("LIVE")
}

// renderHelp renders the help screen
func (m Model) renderHelp() string {
	help := `
SEARCH                          RESULTS
  s          New search            j/k        Up/down
  Enter      Run search            g/G        First/last
  Esc        Back to results       PgUp/PgDn  Scroll page
                                   /          Filter loaded results
DETAILS                            Enter      Show details
  j/k        Scroll                n          Load next page
  r          Retry                 r          Retry
  Ctrl+r     Refresh               Ctrl+r     Refresh from network
  Esc/h      Back
                                   q          Quit
                                   ?          This help

Press any key to return...
`

	return lipgloss.Place(m.Width, m.Height,
		lipgloss.Center, lipgloss.Center,
		styles.ModalStyle.Render(help))
}

// RenderSpinner renders a loading spinner
func RenderSpinner(frame int) string {
	frames := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
	return styles.SpinnerStyle.Render(frames[frame%len(frames)])
}
