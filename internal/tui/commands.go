package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mmcdole/gamedb/internal/session"
)

// Command factories for async operations

// listenSearchCmd waits for the next search session update
func listenSearchCmd(ch <-chan session.View) tea.Cmd {
	return func() tea.Msg {
		v, ok := <-ch
		if !ok {
			return nil
		}
		return SearchUpdatedMsg{View: v}
	}
}

// listenDetailCmd waits for the next details session update
func listenDetailCmd(ch <-chan session.DetailView) tea.Cmd {
	return func() tea.Msg {
		v, ok := <-ch
		if !ok {
			return nil
		}
		return DetailUpdatedMsg{View: v}
	}
}

// TickCmd returns a command that ticks for spinner animation
func TickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// ClearStatusCmd returns a command that clears status after a delay
func ClearStatusCmd(delay time.Duration) tea.Cmd {
	return tea.Tick(delay, func(t time.Time) tea.Msg {
		return ClearStatusMsg{}
	})
}

// ShowStatusCmd returns a command that shows a status message
func ShowStatusCmd(msg string, isError bool) tea.Cmd {
	return func() tea.Msg {
		return StatusMsg{Message: msg, IsError: isError}
	}
}
