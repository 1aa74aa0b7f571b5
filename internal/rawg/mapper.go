package rawg

import (
	"strings"

	"github.com/mmcdole/gamedb/internal/domain"
)

// MapGames converts search results to domain games, preserving order
func MapGames(dtos []GameDTO) []domain.Game {
	games := make([]domain.Game, 0, len(dtos))
	for _, d := range dtos {
		games = append(games, MapGame(d))
	}
	return games
}

// MapGame converts a single game object
func MapGame(d GameDTO) domain.Game {
	return domain.Game{
		ID:          d.ID,
		Title:       d.Name,
		Description: nonEmpty(d.Description),
		ImageURL:    nonEmpty(d.BackgroundImage),
		Released:    nonEmpty(d.Released),
		Rating:      d.Rating,
		Metacritic:  d.Metacritic,
	}
}

// nonEmpty treats "" the same as a missing field
func nonEmpty(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	return s
}
