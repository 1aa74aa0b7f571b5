package rawg

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mmcdole/gamedb/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const searchBody = `{
  "count": 2,
  "next": "https://api.rawg.io/api/games?page=2",
  "previous": null,
  "results": [
    {"id": 3328, "name": "The Witcher 3: Wild Hunt", "released": "2015-05-18",
     "background_image": "https://media.rawg.io/w3.jpg", "rating": 4.66, "metacritic": 92,
     "slug": "the-witcher-3-wild-hunt"},
    {"id": 10, "name": "The Witcher", "released": null, "rating": 0, "metacritic": null,
     "background_image": ""}
  ]
}`

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "secret-key", slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)), opts...)
}

func TestSearchSendsQueryAndPreservesOrder(t *testing.T) {
	var gotPath, gotUA string
	var gotQuery map[string]string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUA = r.Header.Get("User-Agent")
		gotQuery = map[string]string{
			"key":       r.URL.Query().Get("key"),
			"search":    r.URL.Query().Get("search"),
			"page":      r.URL.Query().Get("page"),
			"page_size": r.URL.Query().Get("page_size"),
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(searchBody))
	})

	games, err := client.Search(context.Background(), "witcher", 2, 0)
	require.NoError(t, err)

	assert.Equal(t, "/games", gotPath)
	assert.Equal(t, userAgent, gotUA)
	assert.Equal(t, map[string]string{
		"key":       "secret-key",
		"search":    "witcher",
		"page":      "2",
		"page_size": "20",
	}, gotQuery)

	require.Len(t, games, 2)
	assert.Equal(t, domain.Game{
		ID:         3328,
		Title:      "The Witcher 3: Wild Hunt",
		ImageURL:   domain.StringPtr("https://media.rawg.io/w3.jpg"),
		Released:   domain.StringPtr("2015-05-18"),
		Rating:     domain.Float64Ptr(4.66),
		Metacritic: domain.IntPtr(92),
	}, games[0])

	// Empty strings and nulls both map to absent
	assert.Equal(t, int64(10), games[1].ID)
	assert.Nil(t, games[1].Released)
	assert.Nil(t, games[1].ImageURL)
	assert.Nil(t, games[1].Metacritic)
	require.NotNil(t, games[1].Rating)
	assert.Equal(t, 0.0, *games[1].Rating)
}

func TestSearchEmptyResults(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"count":0,"next":null,"previous":null,"results":[]}`))
	})

	games, err := client.Search(context.Background(), "zzzz", 1, 10)
	require.NoError(t, err)
	assert.Empty(t, games)
}

func TestGetDetails(t *testing.T) {
	var gotPath string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{"id": 3328, "name": "The Witcher 3", "description": "<p>Geralt</p>",
			"rating": 4.66, "metacritic": 92, "released": "2015-05-18"}`))
	})

	game, err := client.GetDetails(context.Background(), 3328)
	require.NoError(t, err)
	assert.Equal(t, "/games/3328", gotPath)
	assert.Equal(t, "The Witcher 3", game.Title)
	assert.Equal(t, "<p>Geralt</p>", game.DescriptionText())
	assert.Equal(t, "4.66", game.RatingText())
}

func TestStatusErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		match  error
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, match: domain.ErrUnauthorized},
		{name: "forbidden", status: http.StatusForbidden, match: domain.ErrUnauthorized},
		{name: "not found", status: http.StatusNotFound, match: domain.ErrGameNotFound},
		{name: "server error", status: http.StatusBadGateway, match: domain.ErrNetwork},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"detail":"nope"}`))
			})

			_, err := client.GetDetails(context.Background(), 1)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.match)
			assert.ErrorIs(t, err, domain.ErrNetwork)

			var statusErr *domain.HTTPStatusError
			require.True(t, errors.As(err, &statusErr))
			assert.Equal(t, tt.status, statusErr.StatusCode)
			assert.Equal(t, `{"detail":"nope"}`, statusErr.Body)
		})
	}
}

func TestErrorBodyIsTruncated(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(strings.Repeat("x", 4096)))
	})

	_, err := client.Search(context.Background(), "q", 1, 20)
	var statusErr *domain.HTTPStatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Len(t, statusErr.Body, maxErrorBody+len("..."))
}

func TestDecodeError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>not json</html>`))
	})

	_, err := client.Search(context.Background(), "q", 1, 20)
	var decodeErr *domain.DecodeError
	require.True(t, errors.As(err, &decodeErr))
	assert.ErrorIs(t, err, domain.ErrNetwork)
	assert.NotErrorIs(t, err, domain.ErrUnauthorized)
}

func TestTransportErrorOnCancelledContext(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[]}`))
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Search(ctx, "q", 1, 20)
	var transportErr *domain.TransportError
	require.True(t, errors.As(err, &transportErr))
	assert.ErrorIs(t, err, domain.ErrNetwork)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTransportErrorOnUnreachableServer(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := NewClient(url, "k", nil, WithTimeout(2*time.Second))
	_, err := client.Search(context.Background(), "q", 1, 20)
	var transportErr *domain.TransportError
	require.True(t, errors.As(err, &transportErr))
}

func TestRateLimitWaitHonoursContext(t *testing.T) {
	var hits atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`{"results":[]}`))
	}, WithRateLimit(0.001, 1))

	_, err := client.Search(context.Background(), "q", 1, 20)
	require.NoError(t, err)

	// The single token is spent; the next wait would exceed the deadline
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = client.Search(ctx, "q", 2, 20)
	var transportErr *domain.TransportError
	require.True(t, errors.As(err, &transportErr))
	assert.Equal(t, int32(1), hits.Load())
}

func TestRequestLogRedactsKey(t *testing.T) {
	var logs bytes.Buffer
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[]}`))
	}))
	defer srv.Close()

	logger := slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	client := NewClient(srv.URL, "secret-key", logger)

	_, err := client.Search(context.Background(), "mario", 1, 20)
	require.NoError(t, err)
	assert.NotContains(t, logs.String(), "secret-key")
	assert.Contains(t, logs.String(), "REDACTED")
	assert.Contains(t, logs.String(), "search=mario")
}
