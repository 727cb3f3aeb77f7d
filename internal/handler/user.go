package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/movielists/internal/auth"
	"github.com/sakif/movielists/internal/model"
	"github.com/sakif/movielists/internal/service"
)

// UserHandler serves the profile and comment pages and account deletion.
//
// A session user asking for somebody else's profile or comments gets 404,
// as if that user did not exist.
type UserHandler struct {
	auth     *service.AuthService
	comments *service.CommentService
	renderer *Renderer
	logger   *slog.Logger
}

// NewUserHandler creates a UserHandler.
func NewUserHandler(
	authService *service.AuthService,
	comments *service.CommentService,
	renderer *Renderer,
	logger *slog.Logger,
) *UserHandler {
	return &UserHandler{
		auth:     authService,
		comments: comments,
		renderer: renderer,
		logger:   logger,
	}
}

// profileView is the data of the "profile" page.
type profileView struct {
	User      *model.User
	ListCount int
}

// HandleProfile shows the signed-in user's profile.
//
// HTTP: GET /users/{username}
func (h *UserHandler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireSelf(w, r)
	if !ok {
		return
	}

	user, err := h.auth.CurrentUser(r.Context(), actor)
	if err != nil {
		h.renderer.RenderError(w, r, err)
		return
	}

	h.renderer.Render(w, http.StatusOK, pageProfile, View{
		Title:   user.FullName,
		Session: actor,
		Data:    profileView{User: user, ListCount: len(user.Lists)},
	})
}

// HandleComments lists every comment the user wrote.
//
// HTTP: GET /users/{username}/comments
func (h *UserHandler) HandleComments(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireSelf(w, r)
	if !ok {
		return
	}

	comments, err := h.comments.ForUser(r.Context(), actor)
	if err != nil {
		h.renderer.RenderError(w, r, err)
		return
	}

	h.renderer.Render(w, http.StatusOK, pageUserComments, View{
		Title:   "My comments",
		Session: actor,
		Data:    comments,
	})
}

// HandleAddComment stores a comment on a movie and returns it.
//
// HTTP: POST /users/{username}/comments (movieID, text)
func (h *UserHandler) HandleAddComment(w http.ResponseWriter, r *http.Request) {
	actor, ok := sessionUser(r)
	if !ok || actor != chi.URLParam(r, "username") {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "User Not Found"})
		return
	}

	form, err := readForm(r)
	if err != nil {
		writeError(w, err)
		return
	}

	comment, err := h.comments.Add(r.Context(), actor, form.Get("movieID"), form.Get("text"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, comment)
}

// HandleDeleteAccount deletes the signed-in user and ends the session.
//
// HTTP: DELETE /users/{username}
//
// Users who still own lists must delete them first; the service answers 400.
func (h *UserHandler) HandleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	actor, ok := sessionUser(r)
	if !ok || actor != chi.URLParam(r, "username") {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "User Not Found"})
		return
	}

	if err := h.auth.DeleteAccount(r.Context(), actor); err != nil {
		writeError(w, err)
		return
	}

	auth.ClearSessionCookie(w)
	writeOK(w)
}

// requireSelf renders a 404 page unless the session user is {username}.
func (h *UserHandler) requireSelf(w http.ResponseWriter, r *http.Request) (string, bool) {
	actor, ok := sessionUser(r)
	if !ok || actor != chi.URLParam(r, "username") {
		h.renderer.RenderStatus(w, r, http.StatusNotFound, "User Not Found")
		return "", false
	}
	return actor, true
}
