package components

import (
	"html"
	"regexp"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mmcdole/gamedb/internal/domain"
	"github.com/mmcdole/gamedb/internal/tui/styles"
)

var (
	breakTags = regexp.MustCompile(`(?i)<br\s*/?>|</p>`)
	htmlTags  = regexp.MustCompile(`<[^>]*>`)
	blankRuns = regexp.MustCompile(`\n{3,}`)
)

// DetailPane shows one game's metadata and description in a scrollable viewport
type DetailPane struct {
	game     *domain.Game
	viewport viewport.Model
	width    int
	height   int
}

// NewDetailPane creates an empty detail pane
func NewDetailPane() DetailPane {
	return DetailPane{viewport: viewport.New(0, 0)}
}

// SetSize updates the pane dimensions
func (d *DetailPane) SetSize(width, height int) {
	d.width = width
	d.height = height
	// Border takes 2 chars each way
	d.viewport.Width = max(width-4, 1)
	d.viewport.Height = max(height-2, 1)
	d.refresh()
}

// SetGame sets the game to display and scrolls back to the top
func (d *DetailPane) SetGame(g *domain.Game) {
	d.game = g
	d.refresh()
	d.viewport.GotoTop()
}

// HasGame reports whether a game is loaded
func (d DetailPane) HasGame() bool {
	return d.game != nil
}

// Update scrolls the viewport
func (d DetailPane) Update(msg tea.Msg) (DetailPane, tea.Cmd) {
	var cmd tea.Cmd
	d.viewport, cmd = d.viewport.Update(msg)
	return d, cmd
}

func (d *DetailPane) refresh() {
	d.viewport.SetContent(d.render())
}

func (d DetailPane) render() string {
	if d.game == nil {
		return ""
	}
	g := d.game
	width := d.viewport.Width

	var b strings.Builder
	b.WriteString(styles.TitleStyle.Render(g.Title))
	b.WriteString("\n\n")

	field := func(label, value string) {
		if value == "" {
			return
		}
		b.WriteString(styles.DimStyle.Render(styles.Pad(label, 12)))
		b.WriteString(value)
		b.WriteString("\n")
	}
	field("Released", g.ReleaseText())
	field("Rating", g.RatingText())
	if g.Metacritic != nil {
		score := lipgloss.NewStyle().Foreground(styles.ScoreColor(*g.Metacritic)).Render(g.MetacriticText())
		field("Metacritic", score)
	}
	if g.ImageURL != nil {
		field("Image", *g.ImageURL)
	}

	if desc := PlainText(g.DescriptionText()); desc != "" {
		b.WriteString("\n")
		b.WriteString(lipgloss.NewStyle().Width(width).Render(desc))
	}
	return b.String()
}

// PlainText strips the HTML RAWG uses in descriptions
func PlainText(s string) string {
	s = breakTags.ReplaceAllString(s, "\n")
	s = htmlTags.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	s = blankRuns.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// View renders the pane
func (d DetailPane) View() string {
	return styles.ActiveBorder.
		Width(max(d.width-2, 1)).
		Height(max(d.height-2, 1)).
		Render(d.viewport.View())
}
