package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/mmcdole/gamedb/internal/config"
	"github.com/mmcdole/gamedb/internal/domain"
	"github.com/mmcdole/gamedb/internal/tui/components"
	"github.com/mmcdole/gamedb/internal/tui/styles"
)

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
var cellStyle = lipgloss.NewStyle().Padding(0, 1)

// renderGameTable lays games out as a bordered table
func renderGameTable(games []domain.Game) string {
	rows := make([][]string, len(games))
	for i, g := range games {
		rows[i] = []string{
			strconv.FormatInt(g.ID, 10),
			styles.Truncate(g.Title, 48),
			g.ReleaseText(),
			g.RatingText(),
			g.MetacriticText(),
		}
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(styles.DimStyle).
		Headers("ID", "Title", "Released", "Rating", "MC").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	return t.Render()
}

func printGameDetails(w io.Writer, g domain.Game) {
	fmt.Fprintln(w, styles.TitleStyle.Render(g.Title))
	fmt.Fprintln(w)

	field := func(label, value string) {
		if value != "" {
			fmt.Fprintf(w, "%-12s%s\n", label, value)
		}
	}
	field("ID", strconv.FormatInt(g.ID, 10))
	field("Released", g.ReleaseText())
	field("Rating", g.RatingText())
	field("Metacritic", g.MetacriticText())
	if g.ImageURL != nil {
		field("Image", *g.ImageURL)
	}

	if desc := components.PlainText(g.DescriptionText()); desc != "" {
		fmt.Fprintln(w)
		fmt.Fprintln(w, desc)
	}
}

func printConfig(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "rawg:")
	fmt.Fprintf(w, "  api_key: %s\n", maskKey(cfg.RAWG.APIKey))
	fmt.Fprintf(w, "  base_url: %s\n", cfg.RAWG.BaseURL)
	fmt.Fprintf(w, "  page_size: %d\n", cfg.RAWG.PageSize)
	fmt.Fprintf(w, "  requests_per_second: %g\n", cfg.RAWG.RequestsPerSecond)
	fmt.Fprintf(w, "  burst: %d\n", cfg.RAWG.Burst)
	fmt.Fprintf(w, "  timeout: %s\n", cfg.RAWG.Timeout)
	fmt.Fprintln(w, "cache:")
	fmt.Fprintf(w, "  backend: %s\n", cfg.Cache.Backend)
	fmt.Fprintf(w, "  path: %s\n", cfg.Cache.Path)
	fmt.Fprintf(w, "  max_age: %s\n", cfg.Cache.MaxAge)
	fmt.Fprintln(w, "logging:")
	fmt.Fprintf(w, "  file: %s\n", cfg.Logging.File)
	fmt.Fprintf(w, "  level: %s\n", cfg.Logging.Level)
}

// maskKey hides all but the last four characters of a credential
func maskKey(key string) string {
	switch {
	case key == "":
		return "(not set)"
	case len(key) <= 4:
		return strings.Repeat("*", len(key))
	}
	return strings.Repeat("*", len(key)-4) + key[len(key)-4:]
}
