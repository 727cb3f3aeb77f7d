package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/movielists/internal/apperror"
	"github.com/sakif/movielists/internal/auth"
	"github.com/sakif/movielists/internal/config"
	"github.com/sakif/movielists/internal/model"
)

type stubCatalog struct{}

func (stubCatalog) GetMovie(ctx context.Context, movieID string) (*model.Movie, error) {
	if movieID == "550" {
		return &model.Movie{ID: "550", Title: "Fight Club", PosterPath: "/fight.jpg", VoteAverage: 8.4}, nil
	}
	return nil, apperror.NotFound("movie", movieID)
}

func testConfig() *config.Config {
	return &config.Config{
		Port:         8080,
		StoreBackend: config.BackendSQLite,
		DBPath:       ":memory:",
		JWTSecret:    "server-test-secret-0123456789",
		SessionTTL:   time.Hour,
		BcryptCost:   4,
		TMDBAPIKey:   "unused",
		TemplateDir:  filepath.Join("..", "..", "web", "templates"),
		StaticDir:    filepath.Join("..", "..", "web", "static"),
		LoginRate:    0.001,
		LoginBurst:   3,
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := NewWithCatalog(testConfig(), stubCatalog{}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// client replays cookies between requests like a browser.
type client struct {
	t      *testing.T
	srv    *Server
	cookie *http.Cookie
}

func (c *client) do(method, path string, form url.Values) *httptest.ResponseRecorder {
	c.t.Helper()
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, path, body)
	req.RemoteAddr = "192.0.2.10:1234"
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if c.cookie != nil {
		req.AddCookie(c.cookie)
	}

	rec := httptest.NewRecorder()
	c.srv.Handler().ServeHTTP(rec, req)

	for _, ck := range rec.Result().Cookies() {
		if ck.Name == auth.CookieName {
			if ck.MaxAge < 0 {
				c.cookie = nil
			} else {
				c.cookie = ck
			}
		}
	}
	return rec
}

func TestNew_UnknownBackend(t *testing.T) {
	cfg := testConfig()
	cfg.StoreBackend = "redis"

	_, err := NewWithCatalog(cfg, stubCatalog{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis")
}

func TestNew_MissingTemplates(t *testing.T) {
	cfg := testConfig()
	cfg.TemplateDir = t.TempDir()

	_, err := NewWithCatalog(cfg, stubCatalog{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "templates")
}

func TestStaticFiles(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/static/js/list.js", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "function removeList")
}

func TestRoot_AnonymousGoesToLogin(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
}

func TestEndToEnd_ListLifecycle(t *testing.T) {
	s := newTestServer(t)
	alice := &client{t: t, srv: s}
	bob := &client{t: t, srv: s}

	for _, c := range []struct {
		cl   *client
		name string
	}{{alice, "alice"}, {bob, "bob"}} {
		rec := c.cl.do(http.MethodPost, "/signup", url.Values{
			"username": {c.name},
			"password": {"secret-pw"},
			"fullName": {c.name + " Example"},
			"email":    {c.name + "@example.com"},
		})
		require.Equal(t, http.StatusSeeOther, rec.Code, c.name)
		require.NotNil(t, c.cl.cookie, c.name)
	}

	rec := alice.do(http.MethodPost, "/users/alice/lists/new", url.Values{
		"name":           {"Cult classics"},
		"listProtection": {"private"},
	})
	require.Equal(t, http.StatusSeeOther, rec.Code)

	rec = alice.do(http.MethodGet, "/users/alice/lists", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.Contains(t, body, "Cult classics")

	start := strings.Index(body, `id="list-`) + len(`id="list-`)
	listID := body[start : start+strings.Index(body[start:], `"`)]
	require.NotEmpty(t, listID)
	listPath := "/users/alice/lists/" + listID

	rec = alice.do(http.MethodPost, listPath, url.Values{"movieID": {"550"}})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = bob.do(http.MethodGet, "/users/bob/lists/"+listID, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code, "not invited yet")

	rec = alice.do(http.MethodPut, listPath+"/invite", url.Values{
		"guestUsername": {"bob"},
		"permission":    {"readwrite"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = bob.do(http.MethodGet, "/users/bob/lists", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Cult classics", "shared list shows up for the guest")

	rec = bob.do(http.MethodDelete, "/users/bob/lists/"+listID, url.Values{"movieID": {"550"}})
	require.Equal(t, http.StatusOK, rec.Code, "readwrite guest edits items")

	rec = bob.do(http.MethodDelete, "/users/bob/lists", url.Values{"listID": {listID}})
	assert.Equal(t, http.StatusForbidden, rec.Code, "only the owner deletes")

	rec = alice.do(http.MethodDelete, "/users/alice/lists", url.Values{"listID": {listID}})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = bob.do(http.MethodGet, "/users/bob/lists/"+listID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = alice.do(http.MethodPost, "/logout", nil)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Nil(t, alice.cookie)

	rec = alice.do(http.MethodGet, "/users/alice", nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
}

func TestLoginIsRateLimited(t *testing.T) {
	s := newTestServer(t)
	c := &client{t: t, srv: s}
	creds := url.Values{"username": {"nobody"}, "password": {"guess"}}

	for i := 0; i < 3; i++ {
		rec := c.do(http.MethodPost, "/login", creds)
		require.Equal(t, http.StatusUnauthorized, rec.Code, "attempt %d", i+1)
	}

	rec := c.do(http.MethodPost, "/login", creds)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	rec = c.do(http.MethodGet, "/login", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "the form itself is not limited")
}
