package auth

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// CookieName is the session cookie holding the JWT.
const CookieName = "token"

// contextKey is unexported so no other package can read or shadow the
// username stored in the request context.
type contextKey string

const usernameKey contextKey = "username"

// ErrSessionRevoked means the token is correctly signed but no longer
// belongs to a live account.
var ErrSessionRevoked = errors.New("auth: session revoked")

// SessionChecker confirms that the account a token was issued to still
// exists. service.AuthService implements it.
type SessionChecker interface {
	CheckSession(ctx context.Context, sess Session) error
}

// RequireSession rejects requests without a valid session cookie.
//
// Page requests (GET/HEAD) are redirected to /login. Everything else is an
// AJAX call from the list pages and gets a 401 JSON body instead. A nil
// checker accepts every correctly signed token.
func RequireSession(tokens *TokenService, checker SessionChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			username, err := usernameFromCookie(r, tokens, checker)
			if err != nil {
				if r.Method == http.MethodGet || r.Method == http.MethodHead {
					http.Redirect(w, r, "/login", http.StatusSeeOther)
					return
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"unauthorized","message":"valid session required"}`))
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithUsername(r.Context(), username)))
		})
	}
}

// OptionalSession stores the username in the context when a valid session
// cookie is present and never blocks the request. The login and signup pages
// use it to send signed-in users to their profile.
func OptionalSession(tokens *TokenService, checker SessionChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if username, err := usernameFromCookie(r, tokens, checker); err == nil {
				r = r.WithContext(ContextWithUsername(r.Context(), username))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UsernameFromContext returns the signed-in username, or ("", false) for an
// anonymous request.
func UsernameFromContext(ctx context.Context) (string, bool) {
	username, ok := ctx.Value(usernameKey).(string)
	return username, ok && username != ""
}

// ContextWithUsername returns a copy of ctx carrying username.
func ContextWithUsername(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, usernameKey, username)
}

// SetSessionCookie writes the session cookie for token.
func SetSessionCookie(w http.ResponseWriter, r *http.Request, token string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie expires the session cookie.
func ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// usernameFromCookie validates the session cookie. Any checker failure,
// including a store error, leaves the request without a session.
func usernameFromCookie(r *http.Request, tokens *TokenService, checker SessionChecker) (string, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return "", err
	}
	sess, err := tokens.ParseSession(cookie.Value)
	if err != nil {
		return "", err
	}
	if checker != nil {
		if err := checker.CheckSession(r.Context(), sess); err != nil {
			return "", err
		}
	}
	return sess.Username, nil
}
