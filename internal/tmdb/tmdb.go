// Package tmdb resolves movie metadata from The Movie Database API.
//
// Only one endpoint is used:
//
//	GET {base}/movie/{id}   → 200 {id, title, poster_path, vote_average} | 404
//
// TMDB accepts two kinds of credentials. A v3 API key is sent as the
// api_key query parameter. A v4 read access token is sent as a bearer token;
// golang.org/x/oauth2 wraps the transport so every request carries the
// "Authorization: Bearer <token>" header. When both are configured the
// bearer token wins.
package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/sakif/movielists/internal/apperror"
	"github.com/sakif/movielists/internal/model"
	"github.com/sakif/movielists/internal/repository"
)

const (
	DefaultBaseURL = "https://api.themoviedb.org/3"
	defaultTimeout = 10 * time.Second
)

// compile-time check that *Client implements repository.MovieCatalog
var _ repository.MovieCatalog = (*Client)(nil)

// Config holds catalog connection settings.
type Config struct {
	BaseURL   string        // defaults to DefaultBaseURL
	APIKey    string        // v3 key, sent as ?api_key=
	ReadToken string        // v4 read access token, sent as a bearer token
	Timeout   time.Duration // 0 = default
}

// Client fetches movies by id.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *slog.Logger
}

// movieResponse is the portion of the /movie/{id} response we keep.
type movieResponse struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	PosterPath  string  `json:"poster_path"`
	VoteAverage float64 `json:"vote_average"`
}

// errorResponse is TMDB's error body.
type errorResponse struct {
	StatusMessage string `json:"status_message"`
}

func New(cfg Config, logger *slog.Logger) (*Client, error) {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("tmdb: parsing base URL: %w", err)
	}
	if cfg.APIKey == "" && cfg.ReadToken == "" {
		return nil, errors.New("tmdb: an API key or read access token is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	httpClient := &http.Client{Timeout: timeout}
	apiKey := cfg.APIKey
	if cfg.ReadToken != "" {
		// oauth2.NewClient takes its base transport from the context.
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)
		httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: cfg.ReadToken,
			TokenType:   "Bearer",
		}))
		httpClient.Timeout = timeout
		apiKey = ""
	}

	return &Client{
		baseURL: base,
		apiKey:  apiKey,
		http:    httpClient,
		logger:  logger,
	}, nil
}

// GetMovie returns the movie with the given TMDB id.
// A 404 from the catalog is apperror.ErrNotFound; any other failure is
// apperror.ErrUpstream.
func (c *Client) GetMovie(ctx context.Context, movieID string) (*model.Movie, error) {
	movieID = strings.TrimSpace(movieID)
	if movieID == "" {
		return nil, apperror.ValidationFailed("movieID", "movie id is required")
	}

	target := c.baseURL + "/movie/" + url.PathEscape(movieID)
	if c.apiKey != "" {
		target += "?" + url.Values{"api_key": {c.apiKey}}.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("tmdb: building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperror.Upstream("tmdb", 0, err.Error())
	}
	defer resp.Body.Close()

	c.logger.Debug("tmdb request",
		slog.String("movieID", movieID),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode == http.StatusNotFound {
		return nil, apperror.NotFound("movie", movieID)
	}
	if resp.StatusCode >= 400 {
		var e errorResponse
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = json.Unmarshal(body, &e)
		return nil, apperror.Upstream("tmdb", resp.StatusCode, e.StatusMessage)
	}

	var m movieResponse
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return nil, apperror.Upstream("tmdb", resp.StatusCode, "decoding response: "+err.Error())
	}

	return &model.Movie{
		ID:          movieID,
		Title:       m.Title,
		PosterPath:  m.PosterPath,
		VoteAverage: m.VoteAverage,
	}, nil
}
