// Package rawg is the HTTP client for the RAWG video game database API.
package rawg

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gamedb/internal/domain"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the public RAWG API root
	DefaultBaseURL = "https://api.rawg.io/api"

	defaultTimeout = 30 * time.Second
	userAgent      = "gamedb/1.0"

	// maxErrorBody caps how much of a failed response is kept in the error
	maxErrorBody = 512
)

// Client implements domain.GameClient for RAWG
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the per-request transport timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithRateLimit throttles outgoing requests. rps <= 0 disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// NewClient creates a new RAWG API client
func NewClient(baseURL, apiKey string, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// doRequest performs an authenticated GET and returns the body of a 2xx response
func (c *Client) doRequest(ctx context.Context, op, path string, query url.Values) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &domain.TransportError{Op: op, Err: err}
		}
	}

	if query == nil {
		query = url.Values{}
	}
	query.Set("key", c.apiKey)
	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	c.logger.Debug("rawg request", "op", op, "url", redact(c.baseURL, path, query))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("rawg request failed", "op", op, "error", err)
		return nil, &domain.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.TransportError{Op: op, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Error("rawg request error", "op", op, "status", resp.StatusCode, "bodyLen", len(body))
		return nil, &domain.HTTPStatusError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Body:       truncate(string(body), maxErrorBody),
		}
	}

	return body, nil
}

// Search returns one page of games matching query, in the order RAWG ranks them
func (c *Client) Search(ctx context.Context, query string, page, pageSize int) ([]domain.Game, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = domain.DefaultPageSize
	}

	params := url.Values{}
	params.Set("search", query)
	params.Set("page", strconv.Itoa(page))
	params.Set("page_size", strconv.Itoa(pageSize))

	body, err := c.doRequest(ctx, "search games", "/games", params)
	if err != nil {
		return nil, err
	}

	var resp SearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		c.logger.Error("JSON parse error", "error", err, "bodyLen", len(body))
		return nil, &domain.DecodeError{Op: "search games", Err: err}
	}

	return MapGames(resp.Results), nil
}

// GetDetails fetches a single game with its full description
func (c *Client) GetDetails(ctx context.Context, id int64) (domain.Game, error) {
	path := fmt.Sprintf("/games/%d", id)
	body, err := c.doRequest(ctx, "get game details", path, nil)
	if err != nil {
		return domain.Game{}, err
	}

	var dto GameDTO
	if err := json.Unmarshal(body, &dto); err != nil {
		c.logger.Error("JSON parse error", "error", err, "bodyLen", len(body))
		return domain.Game{}, &domain.DecodeError{Op: "get game details", Err: err}
	}

	return MapGame(dto), nil
}

// redact renders the request URL with the API key masked
func redact(baseURL, path string, query url.Values) string {
	masked := url.Values{}
	for k, v := range query {
		masked[k] = v
	}
	if masked.Get("key") != "" {
		masked.Set("key", "REDACTED")
	}
	return fmt.Sprintf("%s%s?%s", baseURL, path, masked.Encode())
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
