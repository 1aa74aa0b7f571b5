package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mmcdole/gamedb/internal/catalog"
	"github.com/mmcdole/gamedb/internal/domain"
)

func TestMaskKey(t *testing.T) {
	assert.Equal(t, "(not set)", maskKey(""))
	assert.Equal(t, "***", maskKey("abc"))
	assert.Equal(t, "******cdef", maskKey("0123abcdef"))
}

func TestRenderGameTable(t *testing.T) {
	out := renderGameTable([]domain.Game{
		{ID: 3498, Title: "Grand Theft Auto V", Released: domain.StringPtr("2013-09-17"), Metacritic: domain.IntPtr(92)},
		{ID: 4200, Title: "Portal 2"},
	})

	for _, want := range []string{"ID", "Title", "3498", "Grand Theft Auto V", "2013-09-17", "92", "Portal 2"} {
		assert.Contains(t, out, want)
	}
}

func TestPrintSnapshotLabelsOrigin(t *testing.T) {
	var buf bytes.Buffer
	printSnapshot(&buf, catalog.Snapshot{Games: []domain.Game{{ID: 1, Title: "Hades"}}, FromCache: true}, 2)
	assert.Contains(t, buf.String(), "Page 2 · 1 games (cache)")

	buf.Reset()
	printSnapshot(&buf, catalog.Snapshot{}, 1)
	assert.Equal(t, "Page 1 · 0 games (network)\n", buf.String())
}

func TestPrintGameDetails(t *testing.T) {
	var buf bytes.Buffer
	printGameDetails(&buf, domain.Game{
		ID:          28,
		Title:       "Red Dead Redemption 2",
		Rating:      domain.Float64Ptr(4.59),
		Description: domain.StringPtr("<p>America, 1899.</p>"),
	})

	out := buf.String()
	assert.Contains(t, out, "Red Dead Redemption 2")
	assert.Contains(t, out, "4.59")
	assert.Contains(t, out, "America, 1899.")
	assert.NotContains(t, out, "<p>")
	assert.NotContains(t, out, "Metacritic")
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := newRootCmd()

	for _, path := range [][]string{
		{"search"}, {"details"}, {"cached"}, {"cache", "clear"}, {"cache", "prune"},
		{"config", "set-key"}, {"config", "show"}, {"version"},
	} {
		cmd, _, err := root.Find(path)
		if assert.NoError(t, err, path) {
			assert.Equal(t, path[len(path)-1], cmd.Name())
		}
	}
}

func TestVersionCommand(t *testing.T) {
	root := newRootCmd()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetArgs([]string{"version"})

	assert.NoError(t, root.Execute())
	assert.Equal(t, "gamedb dev\n", buf.String())
}
