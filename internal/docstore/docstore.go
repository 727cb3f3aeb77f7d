// Package docstore defines the contract the application expects from a
// CouchDB-style document store: JSON documents keyed by id inside named
// collections, each carrying an opaque revision token ("_rev") that must be
// echoed back on every update and delete.
//
// Two backends implement it:
//   - couchdb: the HTTP client for a real CouchDB server
//   - sqlite:  an embedded store with the same revision semantics, used for
//     local development and tests
//
// Error contract (all backends):
//   - missing document        → apperror.ErrNotFound
//   - duplicate id / stale rev → apperror.ErrConflict
//   - any other failure       → apperror.ErrUpstream (HTTP backends) or a wrapped error
package docstore

import (
	"context"
	"encoding/json"
	"fmt"
)

// Collection is one named set of documents ("users", "lists", ...).
type Collection interface {
	// Name returns the collection name.
	Name() string

	// Get decodes the document with the given id into dst.
	Get(ctx context.Context, id string, dst any) error

	// Create stores a new document. The store assigns the id unless doc
	// carries an "_id" field.
	Create(ctx context.Context, doc any) (id, rev string, err error)

	// Put creates or updates the document at id. Updates must carry the
	// current "_rev" inside doc.
	Put(ctx context.Context, id string, doc any) (rev string, err error)

	// Delete removes the document at id if rev is current.
	Delete(ctx context.Context, id, rev string) error

	// AllDocs returns documents with their bodies included.
	AllDocs(ctx context.Context, opts AllDocsOptions) ([]Row, error)

	// BulkDocs writes many documents in one call. Each document succeeds or
	// fails on its own; the result slice is aligned with docs.
	BulkDocs(ctx context.Context, docs []any) ([]BulkResult, error)
}

// AllDocsOptions selects rows for AllDocs.
//
// With Keys set, rows come back in key order and keys without a document
// produce a Row with Error set. Without Keys every document is returned,
// ordered by id. Skip and Limit apply after key selection; Limit <= 0 means
// no limit.
type AllDocsOptions struct {
	Keys  []string
	Limit int
	Skip  int
}

// Row is one entry of an AllDocs result.
type Row struct {
	ID    string          `json:"id,omitempty"`
	Key   string          `json:"key"`
	Doc   json.RawMessage `json:"doc,omitempty"`
	Error string          `json:"error,omitempty"`
}

// Found reports whether the row carries a document body.
func (r Row) Found() bool {
	return r.Error == "" && len(r.Doc) > 0 && string(r.Doc) != "null"
}

// BulkResult is the per-document outcome of BulkDocs.
type BulkResult struct {
	OK     bool   `json:"ok,omitempty"`
	ID     string `json:"id"`
	Rev    string `json:"rev,omitempty"`
	Error  string `json:"error,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Failed reports whether the document was rejected.
func (b BulkResult) Failed() bool {
	return b.Error != ""
}

// SplitMeta marshals doc and separates the "_id" and "_rev" fields from the
// remaining body.
func SplitMeta(doc any) (id, rev string, body []byte, err error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", "", nil, fmt.Errorf("docstore: encoding document: %w", err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return "", "", nil, fmt.Errorf("docstore: document must be a JSON object: %w", err)
	}

	if v, ok := fields["_id"]; ok {
		if err := json.Unmarshal(v, &id); err != nil {
			return "", "", nil, fmt.Errorf("docstore: _id must be a string: %w", err)
		}
		delete(fields, "_id")
	}
	if v, ok := fields["_rev"]; ok {
		if err := json.Unmarshal(v, &rev); err != nil {
			return "", "", nil, fmt.Errorf("docstore: _rev must be a string: %w", err)
		}
		delete(fields, "_rev")
	}

	body, err = json.Marshal(fields)
	if err != nil {
		return "", "", nil, fmt.Errorf("docstore: encoding document body: %w", err)
	}
	return id, rev, body, nil
}

// JoinMeta puts "_id" and "_rev" back onto a stored body.
func JoinMeta(body []byte, id, rev string) (json.RawMessage, error) {
	fields := map[string]json.RawMessage{}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &fields); err != nil {
			return nil, fmt.Errorf("docstore: decoding stored body of %s: %w", id, err)
		}
	}

	idJSON, _ := json.Marshal(id)
	revJSON, _ := json.Marshal(rev)
	fields["_id"] = idJSON
	fields["_rev"] = revJSON

	out, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("docstore: encoding document %s: %w", id, err)
	}
	return out, nil
}
