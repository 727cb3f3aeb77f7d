package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/movielists/internal/apperror"
	"github.com/sakif/movielists/internal/docstore"
)

// compile-time check that *Collection implements docstore.Collection
var _ docstore.Collection = (*Collection)(nil)

// Collection is one named set of documents inside DB.
type Collection struct {
	db   *DB
	name string
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (c *Collection) Name() string {
	return c.name
}

// newRev builds a revision token for the given generation.
// The xid suffix makes every revision unique, like CouchDB's content hash.
func newRev(generation int) string {
	return fmt.Sprintf("%d-%s", generation, xid.New().String())
}

// revGeneration extracts the numeric prefix of a revision token.
func revGeneration(rev string) int {
	prefix, _, _ := strings.Cut(rev, "-")
	n, err := strconv.Atoi(prefix)
	if err != nil {
		return 0
	}
	return n
}

// currentRev returns the stored revision of id, or "" if the document does not exist.
func (c *Collection) currentRev(ctx context.Context, q querier, id string) (string, error) {
	var rev string
	err := q.QueryRowContext(ctx,
		`SELECT rev FROM documents WHERE collection = ? AND id = ?`,
		c.name, id,
	).Scan(&rev)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("sqlite: reading revision of %s/%s: %w", c.name, id, err)
	}
	return rev, nil
}

// write inserts or updates one document inside q, enforcing revision rules.
func (c *Collection) write(ctx context.Context, q querier, id, rev string, body []byte) (string, error) {
	current, err := c.currentRev(ctx, q, id)
	if err != nil {
		return "", err
	}

	now := time.Now()
	if current == "" {
		// A revision for a document that does not exist is stale by definition.
		if rev != "" {
			return "", apperror.Conflict(c.name, id)
		}
		next := newRev(1)
		_, err = q.ExecContext(ctx,
			`INSERT INTO documents (collection, id, rev, body, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			c.name, id, next, string(body), now, now,
		)
		if err != nil {
			return "", fmt.Errorf("sqlite: inserting %s/%s: %w", c.name, id, err)
		}
		return next, nil
	}

	if rev != current {
		return "", apperror.Conflict(c.name, id)
	}

	next := newRev(revGeneration(current) + 1)
	_, err = q.ExecContext(ctx,
		`UPDATE documents SET rev = ?, body = ?, updated_at = ?
		 WHERE collection = ? AND id = ? AND rev = ?`,
		next, string(body), now, c.name, id, current,
	)
	if err != nil {
		return "", fmt.Errorf("sqlite: updating %s/%s: %w", c.name, id, err)
	}
	return next, nil
}

// inTx runs fn inside a transaction, committing on success.
func (c *Collection) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := c.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing transaction: %w", err)
	}
	return nil
}

func (c *Collection) Get(ctx context.Context, id string, dst any) error {
	raw, err := c.load(ctx, c.db.conn, id)
	if err != nil {
		return err
	}
	if raw == nil {
		return apperror.NotFound(c.name, id)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("sqlite: decoding %s/%s: %w", c.name, id, err)
	}
	return nil
}

// load returns the document with _id/_rev restored, or nil if absent.
func (c *Collection) load(ctx context.Context, q querier, id string) (json.RawMessage, error) {
	var rev, body string
	err := q.QueryRowContext(ctx,
		`SELECT rev, body FROM documents WHERE collection = ? AND id = ?`,
		c.name, id,
	).Scan(&rev, &body)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("sqlite: getting %s/%s: %w", c.name, id, err)
	}
	return docstore.JoinMeta([]byte(body), id, rev)
}

func (c *Collection) Create(ctx context.Context, doc any) (string, string, error) {
	id, rev, body, err := docstore.SplitMeta(doc)
	if err != nil {
		return "", "", err
	}
	if id == "" {
		id = xid.New().String()
	}

	var next string
	err = c.inTx(ctx, func(tx *sql.Tx) error {
		var werr error
		next, werr = c.write(ctx, tx, id, rev, body)
		return werr
	})
	if err != nil {
		return "", "", err
	}
	return id, next, nil
}

func (c *Collection) Put(ctx context.Context, id string, doc any) (string, error) {
	_, rev, body, err := docstore.SplitMeta(doc)
	if err != nil {
		return "", err
	}

	var next string
	err = c.inTx(ctx, func(tx *sql.Tx) error {
		var werr error
		next, werr = c.write(ctx, tx, id, rev, body)
		return werr
	})
	if err != nil {
		return "", err
	}
	return next, nil
}

func (c *Collection) Delete(ctx context.Context, id, rev string) error {
	return c.inTx(ctx, func(tx *sql.Tx) error {
		current, err := c.currentRev(ctx, tx, id)
		if err != nil {
			return err
		}
		if current == "" {
			return apperror.NotFound(c.name, id)
		}
		if current != rev {
			return apperror.Conflict(c.name, id)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM documents WHERE collection = ? AND id = ?`, c.name, id,
		); err != nil {
			return fmt.Errorf("sqlite: deleting %s/%s: %w", c.name, id, err)
		}
		return nil
	})
}

func (c *Collection) AllDocs(ctx context.Context, opts docstore.AllDocsOptions) ([]docstore.Row, error) {
	if opts.Keys != nil {
		return c.allDocsByKeys(ctx, opts)
	}

	// LIMIT -1 means "no limit" in SQLite.
	limit := -1
	if opts.Limit > 0 {
		limit = opts.Limit
	}
	skip := max(opts.Skip, 0)

	rows, err := c.db.conn.QueryContext(ctx,
		`SELECT id, rev, body FROM documents
		 WHERE collection = ?
		 ORDER BY id
		 LIMIT ? OFFSET ?`,
		c.name, limit, skip,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing %s: %w", c.name, err)
	}
	defer rows.Close()

	result := []docstore.Row{}
	for rows.Next() {
		var id, rev, body string
		if err := rows.Scan(&id, &rev, &body); err != nil {
			return nil, fmt.Errorf("sqlite: scanning %s row: %w", c.name, err)
		}
		doc, err := docstore.JoinMeta([]byte(body), id, rev)
		if err != nil {
			return nil, err
		}
		result = append(result, docstore.Row{ID: id, Key: id, Doc: doc})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating %s rows: %w", c.name, err)
	}
	return result, nil
}

// allDocsByKeys applies skip/limit to the key list, then looks each key up.
func (c *Collection) allDocsByKeys(ctx context.Context, opts docstore.AllDocsOptions) ([]docstore.Row, error) {
	keys := opts.Keys
	if opts.Skip > 0 {
		if opts.Skip >= len(keys) {
			keys = nil
		} else {
			keys = keys[opts.Skip:]
		}
	}
	if opts.Limit > 0 && opts.Limit < len(keys) {
		keys = keys[:opts.Limit]
	}

	result := make([]docstore.Row, 0, len(keys))
	for _, key := range keys {
		doc, err := c.load(ctx, c.db.conn, key)
		if err != nil {
			return nil, err
		}
		if doc == nil {
			result = append(result, docstore.Row{Key: key, Error: "not_found"})
			continue
		}
		result = append(result, docstore.Row{ID: key, Key: key, Doc: doc})
	}
	return result, nil
}

// BulkDocs writes each document independently; one rejected document does
// not roll back the others.
func (c *Collection) BulkDocs(ctx context.Context, docs []any) ([]docstore.BulkResult, error) {
	results := make([]docstore.BulkResult, 0, len(docs))
	for _, doc := range docs {
		id, rev, body, err := docstore.SplitMeta(doc)
		if err != nil {
			return nil, err
		}
		if id == "" {
			id = xid.New().String()
		}

		var next string
		err = c.inTx(ctx, func(tx *sql.Tx) error {
			var werr error
			next, werr = c.write(ctx, tx, id, rev, body)
			return werr
		})
		switch {
		case err == nil:
			results = append(results, docstore.BulkResult{OK: true, ID: id, Rev: next})
		case errors.Is(err, apperror.ErrConflict):
			results = append(results, docstore.BulkResult{ID: id, Error: "conflict", Reason: "Document update conflict."})
		default:
			return nil, err
		}
	}
	return results, nil
}
