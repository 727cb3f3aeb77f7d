// Package couchdb implements docstore.Collection on top of CouchDB's HTTP API.
//
// HTTP CONTRACT USED:
//
//	GET    /{db}/{id}                                 → 200 doc | 404
//	PUT    /{db}/{id}           body: doc (+_rev)     → 201 {id, rev} | 409
//	POST   /{db}                body: doc             → 201 {id, rev}
//	DELETE /{db}/{id}?rev=R                           → 200 | 404 | 409
//	GET    /{db}/_all_docs?include_docs=true&limit&skip
//	POST   /{db}/_all_docs?include_docs=true&limit&skip  body: {keys}
//	POST   /{db}/_bulk_docs     body: {docs}          → 201 [{id, rev} | {id, error, reason}]
//	PUT    /{db}                                      → 201 | 412 (already exists)
//
// Every call is a single round trip. The client never retries: a 409 is
// surfaced as apperror.ErrConflict so the caller can re-read and try again.
package couchdb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sakif/movielists/internal/apperror"
	"github.com/sakif/movielists/internal/docstore"
)

const (
	defaultTimeout        = 30 * time.Second
	defaultConnectTimeout = 5 * time.Second
	defaultTLSTimeout     = 5 * time.Second
)

// Config holds connection settings for a CouchDB server.
type Config struct {
	URL      string // e.g. http://localhost:5984
	Username string // optional basic auth
	Password string
	Timeout  time.Duration // total per-request timeout; 0 = default
}

// Client talks to one CouchDB server.
type Client struct {
	baseURL  *url.URL
	username string
	password string
	http     *http.Client
	logger   *slog.Logger
}

// New creates a Client. It does not contact the server; call
// EnsureDatabases at startup to verify connectivity.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("couchdb: URL is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.URL, "/"))
	if err != nil {
		return nil, fmt.Errorf("couchdb: parsing URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("couchdb: unsupported URL scheme %q", base.Scheme)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	dialer := &net.Dialer{Timeout: defaultConnectTimeout}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: defaultTLSTimeout,
		MaxIdleConnsPerHost: 16,
	}

	return &Client{
		baseURL:  base,
		username: cfg.Username,
		password: cfg.Password,
		http: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		logger: logger,
	}, nil
}

// DB returns a handle for the named database. No request is made.
func (c *Client) DB(name string) *Database {
	return &Database{client: c, name: name}
}

// EnsureDatabases creates each database that does not exist yet.
func (c *Client) EnsureDatabases(ctx context.Context, names ...string) error {
	for _, name := range names {
		status, err := c.do(ctx, http.MethodPut, "/"+url.PathEscape(name), nil, nil, nil)
		if err != nil {
			var re *responseError
			if errors.As(err, &re) && re.Status == http.StatusPreconditionFailed {
				continue // already exists
			}
			return fmt.Errorf("couchdb: creating database %s: %w", name, c.classify(err, "database", name))
		}
		c.logger.Info("created database", slog.String("db", name), slog.Int("status", status))
	}
	return nil
}

// responseError is a non-2xx answer from CouchDB.
type responseError struct {
	Status int
	Kind   string // CouchDB "error" field, e.g. "not_found", "conflict"
	Reason string
}

func (e *responseError) Error() string {
	return fmt.Sprintf("couchdb: status %d: %s: %s", e.Status, e.Kind, e.Reason)
}

// classify converts a transport or response error into an apperror.
func (c *Client) classify(err error, resource, id string) error {
	var re *responseError
	if !errors.As(err, &re) {
		return apperror.Upstream("document store", 0, err.Error())
	}
	switch re.Status {
	case http.StatusNotFound:
		return apperror.NotFound(resource, id)
	case http.StatusConflict:
		return apperror.Conflict(resource, id)
	default:
		return apperror.Upstream("document store", re.Status, re.Reason)
	}
}

// do sends one request. body (if non-nil) is JSON-encoded; a 2xx response is
// decoded into out (if non-nil). Non-2xx responses become *responseError.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) (int, error) {
	// path is already escaped by the caller
	target := c.baseURL.String() + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("couchdb: encoding request body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return 0, fmt.Errorf("couchdb: building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("couchdb: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("document store call",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)),
	)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("couchdb: reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		re := &responseError{Status: resp.StatusCode}
		var payload struct {
			Error  string `json:"error"`
			Reason string `json:"reason"`
		}
		if json.Unmarshal(raw, &payload) == nil {
			re.Kind = payload.Error
			re.Reason = payload.Reason
		} else {
			re.Reason = strings.TrimSpace(string(raw))
		}
		return resp.StatusCode, re
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return resp.StatusCode, fmt.Errorf("couchdb: decoding response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// Database is one CouchDB database, used as a docstore.Collection.
type Database struct {
	client *Client
	name   string
}

var _ docstore.Collection = (*Database)(nil)

// writeResult is CouchDB's answer to PUT/POST/DELETE of a single document.
type writeResult struct {
	OK  bool   `json:"ok"`
	ID  string `json:"id"`
	Rev string `json:"rev"`
}

func (d *Database) Name() string {
	return d.name
}

func (d *Database) docPath(id string) string {
	return "/" + url.PathEscape(d.name) + "/" + url.PathEscape(id)
}

func (d *Database) Get(ctx context.Context, id string, dst any) error {
	if _, err := d.client.do(ctx, http.MethodGet, d.docPath(id), nil, nil, dst); err != nil {
		return d.client.classify(err, d.name, id)
	}
	return nil
}

func (d *Database) Create(ctx context.Context, doc any) (string, string, error) {
	var res writeResult
	if _, err := d.client.do(ctx, http.MethodPost, "/"+url.PathEscape(d.name), nil, doc, &res); err != nil {
		return "", "", d.client.classify(err, d.name, "(new)")
	}
	return res.ID, res.Rev, nil
}

func (d *Database) Put(ctx context.Context, id string, doc any) (string, error) {
	var res writeResult
	if _, err := d.client.do(ctx, http.MethodPut, d.docPath(id), nil, doc, &res); err != nil {
		return "", d.client.classify(err, d.name, id)
	}
	return res.Rev, nil
}

func (d *Database) Delete(ctx context.Context, id, rev string) error {
	q := url.Values{"rev": []string{rev}}
	if _, err := d.client.do(ctx, http.MethodDelete, d.docPath(id), q, nil, nil); err != nil {
		return d.client.classify(err, d.name, id)
	}
	return nil
}

func (d *Database) AllDocs(ctx context.Context, opts docstore.AllDocsOptions) ([]docstore.Row, error) {
	q := url.Values{"include_docs": []string{"true"}}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Skip > 0 {
		q.Set("skip", strconv.Itoa(opts.Skip))
	}

	var res struct {
		Rows []docstore.Row `json:"rows"`
	}
	path := "/" + url.PathEscape(d.name) + "/_all_docs"

	var err error
	if opts.Keys != nil {
		_, err = d.client.do(ctx, http.MethodPost, path, q, map[string][]string{"keys": opts.Keys}, &res)
	} else {
		_, err = d.client.do(ctx, http.MethodGet, path, q, nil, &res)
	}
	if err != nil {
		return nil, d.client.classify(err, d.name, "_all_docs")
	}
	return res.Rows, nil
}

func (d *Database) BulkDocs(ctx context.Context, docs []any) ([]docstore.BulkResult, error) {
	var res []docstore.BulkResult
	path := "/" + url.PathEscape(d.name) + "/_bulk_docs"
	if _, err := d.client.do(ctx, http.MethodPost, path, nil, map[string][]any{"docs": docs}, &res); err != nil {
		return nil, d.client.classify(err, d.name, "_bulk_docs")
	}
	return res, nil
}
