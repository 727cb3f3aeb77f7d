package couchdb

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/movielists/internal/apperror"
	"github.com/sakif/movielists/internal/docstore"
)

type listDoc struct {
	ID   string `json:"_id,omitempty"`
	Rev  string `json:"_rev,omitempty"`
	Name string `json:"listName"`
}

// newTestClient starts an httptest server running handler and returns a
// Client pointed at it.
func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	c, err := New(Config{URL: srv.URL, Username: "admin", Password: "secret"}, logger)
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNew_Validation(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	_, err := New(Config{}, logger)
	assert.Error(t, err, "empty URL should be rejected")

	_, err = New(Config{URL: "ftp://couch"}, logger)
	assert.Error(t, err, "non-http scheme should be rejected")
}

func TestGet(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/lists/L1", r.URL.Path)

		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "admin", user)
		assert.Equal(t, "secret", pass)

		writeJSON(w, http.StatusOK, listDoc{ID: "L1", Rev: "1-a", Name: "Favourites"})
	})

	var doc listDoc
	require.NoError(t, c.DB("lists").Get(context.Background(), "L1", &doc))
	assert.Equal(t, "Favourites", doc.Name)
	assert.Equal(t, "1-a", doc.Rev)
}

func TestGet_NotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not_found", "reason": "missing"})
	})

	var doc listDoc
	err := c.DB("lists").Get(context.Background(), "nope", &doc)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestPut_Conflict(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/users/eve", r.URL.Path)
		writeJSON(w, http.StatusConflict, map[string]string{"error": "conflict", "reason": "Document update conflict."})
	})

	_, err := c.DB("users").Put(context.Background(), "eve", map[string]string{"username": "eve"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrConflict))
}

func TestPut_SendsRevisionInBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "3-c", body["_rev"])
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		writeJSON(w, http.StatusCreated, map[string]any{"ok": true, "id": "L1", "rev": "4-d"})
	})

	rev, err := c.DB("lists").Put(context.Background(), "L1", listDoc{ID: "L1", Rev: "3-c", Name: "x"})
	require.NoError(t, err)
	assert.Equal(t, "4-d", rev)
}

func TestCreate(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/lists", r.URL.Path)
		writeJSON(w, http.StatusCreated, map[string]any{"ok": true, "id": "generated", "rev": "1-x"})
	})

	id, rev, err := c.DB("lists").Create(context.Background(), listDoc{Name: "new"})
	require.NoError(t, err)
	assert.Equal(t, "generated", id)
	assert.Equal(t, "1-x", rev)
}

func TestDelete_PassesRevision(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/lists/L1", r.URL.Path)
		assert.Equal(t, "2-b", r.URL.Query().Get("rev"))
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "id": "L1", "rev": "3-c"})
	})

	require.NoError(t, c.DB("lists").Delete(context.Background(), "L1", "2-b"))
}

func TestAllDocs_WithKeys(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/lists/_all_docs", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("include_docs"))
		assert.Equal(t, "4", r.URL.Query().Get("limit"))
		assert.Equal(t, "8", r.URL.Query().Get("skip"))

		var body struct {
			Keys []string `json:"keys"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []string{"L1", "L2"}, body.Keys)

		writeJSON(w, http.StatusOK, map[string]any{
			"total_rows": 2,
			"rows": []any{
				map[string]any{"id": "L1", "key": "L1", "doc": map[string]any{"_id": "L1", "listName": "one"}},
				map[string]any{"key": "L2", "error": "not_found"},
			},
		})
	})

	rows, err := c.DB("lists").AllDocs(context.Background(), docstore.AllDocsOptions{
		Keys: []string{"L1", "L2"}, Limit: 4, Skip: 8,
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.True(t, rows[0].Found())
	assert.False(t, rows[1].Found())
	assert.Equal(t, "not_found", rows[1].Error)
}

func TestAllDocs_WithoutKeysUsesGet(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Empty(t, r.URL.Query().Get("limit"))
		writeJSON(w, http.StatusOK, map[string]any{"rows": []any{}})
	})

	rows, err := c.DB("lists").AllDocs(context.Background(), docstore.AllDocsOptions{})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestAllDocs_ServerError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "unknown_error", "reason": "boom"})
	})

	_, err := c.DB("lists").AllDocs(context.Background(), docstore.AllDocsOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrUpstream))

	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, http.StatusInternalServerError, appErr.Status)
}

func TestBulkDocs_PerDocumentResults(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/_bulk_docs", r.URL.Path)
		var body struct {
			Docs []map[string]any `json:"docs"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Len(t, body.Docs, 2)

		writeJSON(w, http.StatusCreated, []any{
			map[string]any{"ok": true, "id": "bob", "rev": "2-b"},
			map[string]any{"id": "carol", "error": "conflict", "reason": "Document update conflict."},
		})
	})

	results, err := c.DB("users").BulkDocs(context.Background(), []any{
		map[string]string{"_id": "bob"},
		map[string]string{"_id": "carol"},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.False(t, results[0].Failed())
	assert.Equal(t, "2-b", results[0].Rev)
	assert.True(t, results[1].Failed())
}

func TestEnsureDatabases_ToleratesExisting(t *testing.T) {
	var created []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		if r.URL.Path == "/users" {
			writeJSON(w, http.StatusPreconditionFailed, map[string]string{"error": "file_exists"})
			return
		}
		created = append(created, r.URL.Path)
		writeJSON(w, http.StatusCreated, map[string]bool{"ok": true})
	})

	require.NoError(t, c.EnsureDatabases(context.Background(), "users", "lists"))
	assert.Equal(t, []string{"/lists"}, created)
}

func TestTransportFailureIsUpstream(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close() // nothing listens any more

	c, err := New(Config{URL: addr}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	var doc listDoc
	err = c.DB("lists").Get(context.Background(), "L1", &doc)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrUpstream))
}
