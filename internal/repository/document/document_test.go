package document

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/sakif/movielists/internal/apperror"
	"github.com/sakif/movielists/internal/docstore/sqlite"
	"github.com/sakif/movielists/internal/model"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

// plainVerifier treats the stored hash as "hash:" + plaintext so tests can
// build users without paying for bcrypt.
type plainVerifier struct{}

func (plainVerifier) Verify(hash, plaintext string) error {
	if hash != "hash:"+plaintext {
		return errors.New("mismatch")
	}
	return nil
}

// fakeCatalog serves movies from a map.
type fakeCatalog struct {
	movies map[string]model.Movie
	err    error
}

func (f *fakeCatalog) GetMovie(ctx context.Context, movieID string) (*model.Movie, error) {
	if f.err != nil {
		return nil, f.err
	}
	m, ok := f.movies[movieID]
	if !ok {
		return nil, apperror.NotFound("movie", movieID)
	}
	return &m, nil
}

type testStores struct {
	db       *sqlite.DB
	users    *UserStore
	lists    *ListStore
	comments *CommentStore
	catalog  *fakeCatalog
}

// newTestStores wires all three repositories on a fresh in-memory store.
func newTestStores(t *testing.T) *testStores {
	t.Helper()

	db, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	catalog := &fakeCatalog{movies: map[string]model.Movie{
		"603": {ID: "603", Title: "The Matrix", PosterPath: "/matrix.jpg", VoteAverage: 8.2},
		"550": {ID: "550", Title: "Fight Club", PosterPath: "/fight.jpg", VoteAverage: 8.4},
	}}

	users := NewUserStore(db.Collection("users"), plainVerifier{}, logger)
	return &testStores{
		db:       db,
		users:    users,
		lists:    NewListStore(db.Collection("lists"), users, catalog, logger),
		comments: NewCommentStore(db.Collection("comments"), users, logger),
		catalog:  catalog,
	}
}

// mustCreateUser stores a user whose password is "pw".
func mustCreateUser(t *testing.T, s *testStores, username string) *model.User {
	t.Helper()
	u, err := s.users.Create(context.Background(), username, "hash:pw", username+" Example", username+"@example.com")
	if err != nil {
		t.Fatalf("failed to create user %s: %v", username, err)
	}
	return u
}

// mustGetUser re-reads a user from the store.
func mustGetUser(t *testing.T, s *testStores, username string) *model.User {
	t.Helper()
	u, found, err := s.users.FindByID(context.Background(), username)
	if err != nil || !found {
		t.Fatalf("failed to load user %s: found=%v err=%v", username, found, err)
	}
	return u
}

func mustCreateList(t *testing.T, s *testStores, owner *model.User, name string, protection model.Protection) *model.UserList {
	t.Helper()
	l, err := s.lists.Create(context.Background(), name, protection, "", owner)
	if err != nil {
		t.Fatalf("failed to create list %s: %v", name, err)
	}
	return l
}

func countOf(ids []string, id string) int {
	n := 0
	for _, v := range ids {
		if v == id {
			n++
		}
	}
	return n
}
