package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/sakif/movielists/internal/apperror"
	"github.com/sakif/movielists/internal/auth"
	"github.com/sakif/movielists/internal/service"
)

// AuthHandler serves the login and signup forms and manages the session
// cookie.
//
// HANDLER RESPONSIBILITIES:
//   - HandleRoot       → send the browser to its profile or to /login
//   - HandleLoginPage  → show the login form
//   - HandleLogin      → check credentials, set the JWT cookie
//   - HandleSignupPage → show the signup form
//   - HandleSignup     → create the account, set the JWT cookie
//   - HandleLogout     → clear the JWT cookie
type AuthHandler struct {
	auth     *service.AuthService
	renderer *Renderer
	logger   *slog.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(authService *service.AuthService, renderer *Renderer, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		auth:     authService,
		renderer: renderer,
		logger:   logger,
	}
}

// signupForm is echoed back into the signup page after a failed submit so
// the user does not have to type everything again. The password never is.
type signupForm struct {
	Username string
	FullName string
	Email    string
}

// HandleRoot redirects to the signed-in user's profile, or to the login page.
//
// HTTP: GET /
func (h *AuthHandler) HandleRoot(w http.ResponseWriter, r *http.Request) {
	if username, ok := sessionUser(r); ok {
		http.Redirect(w, r, profilePath(username), http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// HandleLoginPage shows the login form.
//
// HTTP: GET /login
func (h *AuthHandler) HandleLoginPage(w http.ResponseWriter, r *http.Request) {
	if username, ok := sessionUser(r); ok {
		http.Redirect(w, r, profilePath(username), http.StatusSeeOther)
		return
	}
	h.renderer.Render(w, http.StatusOK, pageLogin, View{Title: "Login"})
}

// HandleLogin authenticates the form credentials.
//
// HTTP: POST /login (username, password)
//
// Unknown usernames and wrong passwords get the same "Invalid Credentials"
// answer, rendered on the login form with 401.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.RenderError(w, r, apperror.ValidationFailed("body", "malformed form body"))
		return
	}

	username := r.PostForm.Get("username")
	res, err := h.auth.Login(r.Context(), username, r.PostForm.Get("password"))
	if err != nil {
		if errors.Is(err, apperror.ErrUnauthorized) {
			h.logger.Info("login rejected", slog.String("username", username))
			status, _, message := classify(err)
			h.renderer.Render(w, status, pageLogin, View{Title: "Login", Flash: message})
			return
		}
		h.renderer.RenderError(w, r, err)
		return
	}

	auth.SetSessionCookie(w, r, res.Token, h.auth.SessionTTL())
	http.Redirect(w, r, profilePath(res.User.Username), http.StatusSeeOther)
}

// HandleSignupPage shows the signup form.
//
// HTTP: GET /signup
func (h *AuthHandler) HandleSignupPage(w http.ResponseWriter, r *http.Request) {
	if username, ok := sessionUser(r); ok {
		http.Redirect(w, r, profilePath(username), http.StatusSeeOther)
		return
	}
	h.renderer.Render(w, http.StatusOK, pageSignup, View{Title: "Sign up", Data: signupForm{}})
}

// HandleSignup creates an account and signs the new user in.
//
// HTTP: POST /signup (username, password, fullName, email)
//
// Validation errors and a taken username re-render the form with the
// message and the values the user typed.
func (h *AuthHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.RenderError(w, r, apperror.ValidationFailed("body", "malformed form body"))
		return
	}

	in := service.SignupInput{
		Username: r.PostForm.Get("username"),
		Password: r.PostForm.Get("password"),
		FullName: r.PostForm.Get("fullName"),
		Email:    r.PostForm.Get("email"),
	}

	res, err := h.auth.Signup(r.Context(), in)
	if err != nil {
		if errors.Is(err, apperror.ErrValidation) || errors.Is(err, apperror.ErrConflict) {
			status, _, message := classify(err)
			if errors.Is(err, apperror.ErrConflict) {
				message = "Username is already taken"
			}
			h.renderer.Render(w, status, pageSignup, View{
				Title: "Sign up",
				Flash: message,
				Data:  signupForm{Username: in.Username, FullName: in.FullName, Email: in.Email},
			})
			return
		}
		h.renderer.RenderError(w, r, err)
		return
	}

	auth.SetSessionCookie(w, r, res.Token, h.auth.SessionTTL())
	http.Redirect(w, r, profilePath(res.User.Username), http.StatusSeeOther)
}

// HandleLogout clears the session cookie.
//
// HTTP: POST /logout
//
// Sessions are stateless JWTs, so logging out only deletes the cookie. The
// token itself stays valid until it expires.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	auth.ClearSessionCookie(w)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// sessionUser returns the username the session middleware stored.
func sessionUser(r *http.Request) (string, bool) {
	return auth.UsernameFromContext(r.Context())
}

func profilePath(username string) string {
	return "/users/" + url.PathEscape(username)
}
