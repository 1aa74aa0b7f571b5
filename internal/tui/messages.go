package tui

import (
	"time"

	"github.com/mmcdole/gamedb/internal/session"
)

// Message types for the TUI

// SearchUpdatedMsg carries the latest search session state
type SearchUpdatedMsg struct {
	View session.View
}

// DetailUpdatedMsg carries the latest details session state
type DetailUpdatedMsg struct {
	View session.DetailView
}

// StatusMsg sets a temporary status message
type StatusMsg struct {
	Message string
	IsError bool
}

// ClearStatusMsg clears the status bar message
type ClearStatusMsg struct{}

// TickMsg advances the loading spinner
type TickMsg time.Time
