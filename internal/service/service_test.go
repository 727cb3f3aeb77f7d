package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/movielists/internal/apperror"
	"github.com/sakif/movielists/internal/auth"
	"github.com/sakif/movielists/internal/docstore/sqlite"
	"github.com/sakif/movielists/internal/model"
	"github.com/sakif/movielists/internal/repository/document"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

// fakeCatalog knows a fixed set of movie ids.
type fakeCatalog struct{}

func (fakeCatalog) GetMovie(ctx context.Context, movieID string) (*model.Movie, error) {
	switch movieID {
	case "603":
		return &model.Movie{ID: "603", Title: "The Matrix", PosterPath: "/matrix.jpg", VoteAverage: 8.2}, nil
	case "550":
		return &model.Movie{ID: "550", Title: "Fight Club", PosterPath: "/fight.jpg", VoteAverage: 8.4}, nil
	}
	return nil, apperror.NotFound("movie", movieID)
}

type testEnv struct {
	auth     *AuthService
	lists    *ListService
	comments *CommentService
	users    *document.UserStore
	listRepo *document.ListStore
	tokens   *auth.TokenService
}

// newTestEnv wires the services over real repositories on an in-memory
// store. bcrypt runs at its minimum cost.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	passwords := auth.NewPasswordService(bcrypt.MinCost)
	tokens, err := auth.NewTokenService("test-secret-at-least-16-chars!!", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}

	users := document.NewUserStore(db.Collection("users"), passwords, logger)
	lists := document.NewListStore(db.Collection("lists"), users, fakeCatalog{}, logger)
	comments := document.NewCommentStore(db.Collection("comments"), users, logger)

	return &testEnv{
		auth:     NewAuthService(users, lists, tokens, passwords, logger),
		lists:    NewListService(lists, users, logger),
		comments: NewCommentService(comments, users, logger),
		users:    users,
		listRepo: lists,
		tokens:   tokens,
	}
}

// signup registers username with password "secret-pw".
func signup(t *testing.T, env *testEnv, username string) {
	t.Helper()
	_, err := env.auth.Signup(context.Background(), SignupInput{
		Username: username,
		Password: "secret-pw",
		FullName: username + " Example",
		Email:    username + "@example.com",
	})
	if err != nil {
		t.Fatalf("signup %s: %v", username, err)
	}
}

func createList(t *testing.T, env *testEnv, owner, name string, protection model.Protection) *model.UserList {
	t.Helper()
	l, err := env.lists.Create(context.Background(), owner, CreateListInput{Name: name, Protection: protection})
	if err != nil {
		t.Fatalf("create list %s: %v", name, err)
	}
	return l
}

func loadUser(t *testing.T, env *testEnv, username string) *model.User {
	t.Helper()
	u, err := env.auth.CurrentUser(context.Background(), username)
	if err != nil {
		t.Fatalf("load user %s: %v", username, err)
	}
	return u
}
