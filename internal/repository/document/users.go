package document

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rs/xid"

	"github.com/sakif/movielists/internal/apperror"
	"github.com/sakif/movielists/internal/docstore"
	"github.com/sakif/movielists/internal/model"
	"github.com/sakif/movielists/internal/repository"
)

// compile-time check that *UserStore implements repository.UserRepository
var _ repository.UserRepository = (*UserStore)(nil)

// PasswordVerifier checks a plaintext password against a stored hash.
// auth.PasswordService satisfies it.
type PasswordVerifier interface {
	Verify(hash, plaintext string) error
}

// UserStore keeps user documents in the "users" collection.
type UserStore struct {
	docs      docstore.Collection
	passwords PasswordVerifier
	logger    *slog.Logger
}

func NewUserStore(docs docstore.Collection, passwords PasswordVerifier, logger *slog.Logger) *UserStore {
	return &UserStore{
		docs:      docs,
		passwords: passwords,
		logger:    logger,
	}
}

// GetByCredentials loads the user and checks the password.
// Returns apperror.ErrNotFound for an unknown username and
// apperror.ErrUnauthorized for a wrong password.
func (s *UserStore) GetByCredentials(ctx context.Context, username, password string) (*model.User, error) {
	s.logger.Debug("fetching user for login", slog.String("username", username))

	user, found, err := s.FindByID(ctx, username)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, apperror.NotFound("user", username)
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		return nil, apperror.InvalidCredentials()
	}
	return user, nil
}

// GetMany batch-fetches users. Rows come back in the store's order and
// usernames without a document are skipped.
func (s *UserStore) GetMany(ctx context.Context, usernames []string) ([]model.User, error) {
	if len(usernames) == 0 {
		return []model.User{}, nil
	}

	rows, err := s.docs.AllDocs(ctx, docstore.AllDocsOptions{Keys: usernames})
	if err != nil {
		return nil, fmt.Errorf("repository: fetching users: %w", err)
	}

	users := make([]model.User, 0, len(rows))
	for _, row := range rows {
		if !row.Found() {
			s.logger.Debug("skipping missing user", slog.String("username", row.Key))
			continue
		}
		var d userDoc
		if err := json.Unmarshal(row.Doc, &d); err != nil {
			return nil, fmt.Errorf("repository: decoding user %s: %w", row.Key, err)
		}
		users = append(users, mapToUser(d))
	}
	return users, nil
}

// Create stores a new user with a fresh session key. The username is the
// document id, so a second signup with the same name is rejected by the
// store as a conflict.
func (s *UserStore) Create(ctx context.Context, username, passwordHash, fullName, email string) (*model.User, error) {
	s.logger.Debug("creating user", slog.String("username", username))

	user := &model.User{
		Username:     username,
		PasswordHash: passwordHash,
		FullName:     fullName,
		Email:        email,
		Lists:        []string{},
		CommentedOn:  []model.CommentRef{},
		SessionKey:   xid.New().String(),
	}

	rev, err := s.docs.Put(ctx, username, toUserDoc(user))
	if err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			conflict := apperror.Conflict("user", username)
			conflict.Message = fmt.Sprintf("Username %q was already taken!", username)
			return nil, conflict
		}
		return nil, fmt.Errorf("repository: creating user %s: %w", username, err)
	}

	user.Rev = rev
	return user, nil
}

// Update writes the user back. user.Rev must be current; on success it is
// replaced by the new revision.
func (s *UserStore) Update(ctx context.Context, user *model.User) error {
	rev, err := s.docs.Put(ctx, user.Username, toUserDoc(user))
	if err != nil {
		return fmt.Errorf("repository: updating user %s: %w", user.Username, err)
	}
	user.Rev = rev
	return nil
}

// UpdateMany bulk-writes users. Documents the store accepted get their new
// revision; if any were rejected the error names them.
func (s *UserStore) UpdateMany(ctx context.Context, users []model.User) error {
	if len(users) == 0 {
		return nil
	}

	docs := make([]any, 0, len(users))
	for i := range users {
		docs = append(docs, toUserDoc(&users[i]))
	}

	results, err := s.docs.BulkDocs(ctx, docs)
	if err != nil {
		return fmt.Errorf("repository: bulk updating users: %w", err)
	}

	byID := make(map[string]docstore.BulkResult, len(results))
	for _, r := range results {
		byID[r.ID] = r
	}

	var failed []string
	for i := range users {
		r, ok := byID[users[i].Username]
		if !ok || r.Failed() {
			failed = append(failed, users[i].Username)
			continue
		}
		users[i].Rev = r.Rev
	}

	if len(failed) > 0 {
		s.logger.Warn("bulk user update partially failed", slog.Any("failed", failed))
		return apperror.PartialFailure("user", failed)
	}
	return nil
}

// Delete removes the user document at its current revision.
func (s *UserStore) Delete(ctx context.Context, user *model.User) error {
	s.logger.Debug("deleting user", slog.String("username", user.Username))

	if err := s.docs.Delete(ctx, user.Username, user.Rev); err != nil {
		return fmt.Errorf("repository: deleting user %s: %w", user.Username, err)
	}
	return nil
}

// FindByID looks a user up without treating absence as an error:
// found is false when no such user exists.
func (s *UserStore) FindByID(ctx context.Context, username string) (*model.User, bool, error) {
	var d userDoc
	if err := s.docs.Get(ctx, username, &d); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("repository: fetching user %s: %w", username, err)
	}
	user := mapToUser(d)
	return &user, true, nil
}
