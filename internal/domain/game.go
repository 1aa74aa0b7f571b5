package domain

import (
	"fmt"
	"strconv"
)

// DefaultPageSize is the number of results requested per search page.
const DefaultPageSize = 20

// Game is a single catalog record. Optional fields are nil when the upstream
// API did not provide them.
type Game struct {
	ID          int64    `json:"id"`
	Title       string   `json:"title"`
	Description *string  `json:"description,omitempty"`
	ImageURL    *string  `json:"image_url,omitempty"`
	Released    *string  `json:"released,omitempty"`
	Rating      *float64 `json:"rating,omitempty"`
	Metacritic  *int     `json:"metacritic,omitempty"`
}

// GetID returns the identifier as a string (for list rendering and filtering)
func (g Game) GetID() string { return strconv.FormatInt(g.ID, 10) }

// GetTitle returns the display title
func (g Game) GetTitle() string { return g.Title }

// ReleaseText returns the release date or an empty string
func (g Game) ReleaseText() string {
	if g.Released == nil {
		return ""
	}
	return *g.Released
}

// RatingText formats the rating for display ("4.42"), or "" if absent
func (g Game) RatingText() string {
	if g.Rating == nil {
		return ""
	}
	return strconv.FormatFloat(*g.Rating, 'f', 2, 64)
}

// MetacriticText formats the critic score for display, or "" if absent
func (g Game) MetacriticText() string {
	if g.Metacritic == nil {
		return ""
	}
	return strconv.Itoa(*g.Metacritic)
}

// DescriptionText returns the description or an empty string
func (g Game) DescriptionText() string {
	if g.Description == nil {
		return ""
	}
	return *g.Description
}

// Fingerprint identifies one cacheable result page.
type Fingerprint struct {
	Query string
	Page  int
}

func (f Fingerprint) String() string {
	return fmt.Sprintf("%q#%d", f.Query, f.Page)
}

// CacheEntry is a Game as stored by a CacheStore: the game plus the search
// fingerprint it was found under and the write timestamp (ms since epoch).
// Seq is the game's position within the batch that wrote it.
type CacheEntry struct {
	Game     Game   `json:"game"`
	Query    string `json:"query"`
	Page     int    `json:"page"`
	CachedAt int64  `json:"cached_at"`
	Seq      int    `json:"seq"`
}

// Fingerprint returns the (query, page) pair the entry belongs to
func (e CacheEntry) Fingerprint() Fingerprint {
	return Fingerprint{Query: e.Query, Page: e.Page}
}

// StringPtr returns a pointer to s. Used by mappers and tests.
func StringPtr(s string) *string { return &s }

// Float64Ptr returns a pointer to f.
func Float64Ptr(f float64) *float64 { return &f }

// IntPtr returns a pointer to i.
func IntPtr(i int) *int { return &i }
