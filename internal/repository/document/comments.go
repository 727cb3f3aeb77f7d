package document

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/movielists/internal/docstore"
	"github.com/sakif/movielists/internal/model"
	"github.com/sakif/movielists/internal/repository"
)

// compile-time check that *CommentStore implements repository.CommentRepository
var _ repository.CommentRepository = (*CommentStore)(nil)

// CommentStore keeps comment documents in the "comments" collection. Each
// author's user document lists the comments they wrote in commentedOn.
type CommentStore struct {
	docs   docstore.Collection
	users  repository.UserRepository
	logger *slog.Logger
}

func NewCommentStore(docs docstore.Collection, users repository.UserRepository, logger *slog.Logger) *CommentStore {
	return &CommentStore{
		docs:   docs,
		users:  users,
		logger: logger,
	}
}

// Create writes the comment, then appends a reference to it on the author.
func (s *CommentStore) Create(ctx context.Context, author *model.User, movieID, text string) (*model.Comment, error) {
	s.logger.Debug("creating comment",
		slog.String("author", author.Username),
		slog.String("movieID", movieID),
	)

	d := commentDoc{
		ID:        xid.New().String(),
		MovieID:   movieID,
		Author:    author.Username,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}

	rev, err := s.docs.Put(ctx, d.ID, d)
	if err != nil {
		return nil, fmt.Errorf("repository: creating comment: %w", err)
	}
	d.Rev = rev

	author.CommentedOn = append(author.CommentedOn, model.CommentRef{CommentID: d.ID, MovieID: movieID})
	if err := s.users.Update(ctx, author); err != nil {
		return nil, fmt.Errorf("repository: linking comment %s to %s: %w", d.ID, author.Username, err)
	}

	comment := mapToComment(d)
	return &comment, nil
}

// GetByRefs batch-fetches the referenced comments in ref order. References
// whose comment no longer exists are skipped.
func (s *CommentStore) GetByRefs(ctx context.Context, refs []model.CommentRef) ([]model.Comment, error) {
	if len(refs) == 0 {
		return []model.Comment{}, nil
	}

	ids := make([]string, 0, len(refs))
	for _, ref := range refs {
		ids = append(ids, ref.CommentID)
	}

	rows, err := s.docs.AllDocs(ctx, docstore.AllDocsOptions{Keys: ids})
	if err != nil {
		return nil, fmt.Errorf("repository: fetching comments: %w", err)
	}

	comments := make([]model.Comment, 0, len(rows))
	for _, row := range rows {
		if !row.Found() {
			continue
		}
		var d commentDoc
		if err := json.Unmarshal(row.Doc, &d); err != nil {
			return nil, fmt.Errorf("repository: decoding comment %s: %w", row.Key, err)
		}
		comments = append(comments, mapToComment(d))
	}
	return comments, nil
}
