// Package service holds the business rules: account lifecycle, list access
// and validation.
//
//	AuthHandler (HTTP) → AuthService (rules) → UserRepository (document store)
//	                   ↘ TokenService (JWT)  ↘ PasswordService (bcrypt)
//
// AuthService never sees an *http.Request: it takes plain values and returns
// domain errors that the handler maps to status codes.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sakif/movielists/internal/apperror"
	"github.com/sakif/movielists/internal/auth"
	"github.com/sakif/movielists/internal/model"
	"github.com/sakif/movielists/internal/repository"
)

const (
	MinPasswordLength = 6
	MaxPasswordLength = 72 // bcrypt input limit
	MaxFullNameLength = 100
)

// usernamePattern keeps usernames safe to use as document ids and URL
// segments. CouchDB reserves ids starting with "_".
var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9.-][a-zA-Z0-9_.-]{2,29}$`)

// reservedUsernames collide with fixed route segments under /users/.
var reservedUsernames = map[string]bool{
	"public": true,
}

// AuthService handles signup, login and account lifecycle.
type AuthService struct {
	users     repository.UserRepository
	lists     repository.ListRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	logger    *slog.Logger
}

func NewAuthService(
	users repository.UserRepository,
	lists repository.ListRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		lists:     lists,
		tokens:    tokens,
		passwords: passwords,
		logger:    logger,
	}
}

// AuthResult bundles the user and the session token so the handler can set
// the cookie and redirect in one step.
type AuthResult struct {
	User  *model.User
	Token string
}

// SignupInput is the signup form.
type SignupInput struct {
	Username string
	Password string
	FullName string
	Email    string
}

// Signup validates the form, stores the user with a bcrypt hash and signs
// them in. A taken username is apperror.ErrConflict.
func (s *AuthService) Signup(ctx context.Context, in SignupInput) (*AuthResult, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.FullName = strings.TrimSpace(in.FullName)
	in.Email = strings.TrimSpace(in.Email)

	if err := validateSignup(in); err != nil {
		return nil, err
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: hashing password: %w", err)
	}

	user, err := s.users.Create(ctx, in.Username, hash, in.FullName, in.Email)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user signed up", slog.String("username", user.Username))
	return s.issue(user)
}

func validateSignup(in SignupInput) error {
	if !usernamePattern.MatchString(in.Username) {
		return apperror.ValidationFailed("username",
			"username must be 3-30 characters of letters, digits, '.', '_' or '-' and must not start with '_'")
	}
	if reservedUsernames[strings.ToLower(in.Username)] {
		return apperror.ValidationFailed("username", fmt.Sprintf("username %q is reserved", in.Username))
	}
	if len(in.Password) < MinPasswordLength || len(in.Password) > MaxPasswordLength {
		return apperror.ValidationFailed("password",
			fmt.Sprintf("password must be between %d and %d characters", MinPasswordLength, MaxPasswordLength))
	}
	if in.FullName == "" {
		return apperror.ValidationFailed("fullName", "full name is required")
	}
	if utf8.RuneCountInString(in.FullName) > MaxFullNameLength {
		return apperror.ValidationFailed("fullName",
			fmt.Sprintf("full name must be %d characters or less", MaxFullNameLength))
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return apperror.ValidationFailed("email", "a valid email address is required")
	}
	return nil
}

// Login checks the credentials and issues a session token. An unknown
// username and a wrong password produce the same error.
func (s *AuthService) Login(ctx context.Context, username, password string) (*AuthResult, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, apperror.InvalidCredentials()
	}

	user, err := s.users.GetByCredentials(ctx, username, password)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) || errors.Is(err, apperror.ErrUnauthorized) {
			s.logger.Info("login rejected", slog.String("username", username))
			return nil, apperror.InvalidCredentials()
		}
		return nil, err
	}

	s.logger.Info("user logged in", slog.String("username", user.Username))
	return s.issue(user)
}

func (s *AuthService) issue(user *model.User) (*AuthResult, error) {
	token, err := s.tokens.GenerateForSession(user.Username, user.SessionKey)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for %s: %w", user.Username, err)
	}
	return &AuthResult{User: user, Token: token}, nil
}

// SessionTTL is the lifetime of issued session tokens.
func (s *AuthService) SessionTTL() time.Duration {
	return s.tokens.TTL()
}

// CheckSession reports auth.ErrSessionRevoked when the account behind a
// token is gone, or was deleted and signed up again under the same name.
// It is the auth.SessionChecker the session middleware runs on every
// request.
func (s *AuthService) CheckSession(ctx context.Context, sess auth.Session) error {
	user, found, err := s.users.FindByID(ctx, sess.Username)
	if err != nil {
		return err
	}
	if !found || user.SessionKey != sess.Key {
		s.logger.Info("stale session rejected", slog.String("username", sess.Username))
		return auth.ErrSessionRevoked
	}
	return nil
}

// CurrentUser loads the signed-in user. A session for a user that no longer
// exists is apperror.ErrNotFound.
func (s *AuthService) CurrentUser(ctx context.Context, username string) (*model.User, error) {
	user, found, err := s.users.FindByID(ctx, username)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, apperror.NotFound("user", username)
	}
	return user, nil
}

// DeleteAccount removes the user. It refuses while the user still owns
// lists. Guest access to other users' lists is revoked first.
func (s *AuthService) DeleteAccount(ctx context.Context, username string) error {
	user, err := s.CurrentUser(ctx, username)
	if err != nil {
		return err
	}

	lists, err := s.lists.GetManyByIDs(ctx, user.Lists)
	if err != nil {
		return err
	}

	owned := 0
	for _, l := range lists {
		if l.Owner == username {
			owned++
		}
	}
	if owned > 0 {
		return apperror.ValidationFailed("username",
			fmt.Sprintf("delete your %d list(s) before deleting the account", owned))
	}

	for _, listID := range append([]string(nil), user.Lists...) {
		if err := s.lists.RemoveGuest(ctx, listID, user); err != nil {
			return err
		}
	}

	if err := s.users.Delete(ctx, user); err != nil {
		return err
	}

	s.logger.Info("account deleted", slog.String("username", username))
	return nil
}
