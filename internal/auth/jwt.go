// Package auth provides password hashing, session tokens and the session
// middleware.
//
// SESSION FLOW:
//  1. POST /login checks the password and issues a signed JWT whose subject
//     is the username.
//  2. The token is stored in the HttpOnly "token" cookie.
//  3. On later requests the middleware validates the cookie, asks a
//     SessionChecker whether the account behind it still exists, and puts
//     the username into the request context.
//
// Tokens are HS256-signed with JWT_SECRET. Besides the username they carry
// the account's session key ("sid"), which is generated at signup. A token
// issued to a deleted account therefore does not match a new account that
// later takes the same username. Logging out only clears the cookie.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "movielists"

// DefaultSessionTTL is used when NewTokenService is given a zero TTL.
const DefaultSessionTTL = 24 * time.Hour

// ErrTokenExpired is returned by Validate for a correctly signed token whose
// expiry has passed.
var ErrTokenExpired = errors.New("auth: token expired")

// TokenService signs and validates session tokens.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService creates a TokenService. The secret must be at least 16
// characters.
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}, nil
}

// TTL is the lifetime of tokens issued by Generate.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// claims is the JWT payload; "sub" holds the username.
type claims struct {
	SessionKey string `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

// Session is what a valid token says about its bearer.
type Session struct {
	Username string
	Key      string
}

// Generate issues a session token for username with the service's TTL.
// The token carries no session key.
func (s *TokenService) Generate(username string) (string, error) {
	return s.sign(username, "", s.ttl)
}

// GenerateForSession issues a token bound to the account's session key.
func (s *TokenService) GenerateForSession(username, sessionKey string) (string, error) {
	return s.sign(username, sessionKey, s.ttl)
}

// GenerateWithDuration issues a token that expires after d.
func (s *TokenService) GenerateWithDuration(username string, d time.Duration) (string, error) {
	return s.sign(username, "", d)
}

func (s *TokenService) sign(username, sessionKey string, d time.Duration) (string, error) {
	if username == "" {
		return "", errors.New("auth: cannot issue a token without a subject")
	}

	now := time.Now()
	c := claims{
		SessionKey: sessionKey,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    issuer,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Validate verifies the signature, algorithm, issuer and expiry of tokenStr
// and returns the username it was issued for.
func (s *TokenService) Validate(tokenStr string) (string, error) {
	sess, err := s.ParseSession(tokenStr)
	if err != nil {
		return "", err
	}
	return sess.Username, nil
}

// ParseSession is Validate that also returns the session key.
func (s *TokenService) ParseSession(tokenStr string) (Session, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Session{}, ErrTokenExpired
		}
		return Session{}, fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return Session{}, errors.New("auth: invalid token claims")
	}
	if c.Subject == "" {
		return Session{}, errors.New("auth: token has no subject")
	}
	return Session{Username: c.Subject, Key: c.SessionKey}, nil
}
