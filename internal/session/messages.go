package session

import (
	"errors"
	"fmt"

	"github.com/mmcdole/gamedb/internal/domain"
)

// Message converts an error into text suitable for the status line
func Message(err error) string {
	if err == nil {
		return ""
	}

	var statusErr *domain.HTTPStatusError
	var cacheErr *domain.CacheIOError
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return "RAWG rejected the API key. Set one with 'gamedb config set-key'."
	case errors.Is(err, domain.ErrGameNotFound):
		return "Game not found."
	case errors.As(err, &statusErr):
		return fmt.Sprintf("Server error (HTTP %d). Try again later.", statusErr.StatusCode)
	case errors.As(err, new(*domain.DecodeError)):
		return "Unexpected response from server."
	case errors.As(err, new(*domain.TransportError)):
		return "Network unavailable. Check your connection and retry."
	case errors.As(err, &cacheErr):
		return fmt.Sprintf("Local cache error: %v", cacheErr.Err)
	}

	if msg := err.Error(); msg != "" {
		return msg
	}
	return "Unknown error occurred"
}
