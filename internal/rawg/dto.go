package rawg

// GameDTO is a game object as returned by /games and /games/{id}.
// List results omit description; detail responses include it as HTML.
type GameDTO struct {
	ID              int64    `json:"id"`
	Name            string   `json:"name"`
	Description     *string  `json:"description,omitempty"`
	BackgroundImage *string  `json:"background_image,omitempty"`
	Released        *string  `json:"released,omitempty"`
	Rating          *float64 `json:"rating,omitempty"`
	Metacritic      *int     `json:"metacritic,omitempty"`
}

// SearchResponse is the paged envelope of /games
type SearchResponse struct {
	Count    int       `json:"count"`
	Next     *string   `json:"next,omitempty"`
	Previous *string   `json:"previous,omitempty"`
	Results  []GameDTO `json:"results"`
}
