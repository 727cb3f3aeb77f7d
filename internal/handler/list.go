package handler

import (
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/movielists/internal/model"
	"github.com/sakif/movielists/internal/repository"
	"github.com/sakif/movielists/internal/service"
)

// ListHandler serves the list pages and the AJAX endpoints that edit lists.
//
// Every route lives under /users/{username}. The session user must be that
// username; a mismatch is 403 on list routes. Whether the user may see or
// edit a particular list is then decided by the ListService.
type ListHandler struct {
	lists    *service.ListService
	renderer *Renderer
	logger   *slog.Logger
}

// NewListHandler creates a ListHandler.
func NewListHandler(lists *service.ListService, renderer *Renderer, logger *slog.Logger) *ListHandler {
	return &ListHandler{
		lists:    lists,
		renderer: renderer,
		logger:   logger,
	}
}

// listsView is the data of the "userLists" page.
type listsView struct {
	Public     bool
	Lists      []model.UserList
	Pagination Pagination
}

// listView is the data of the "userSpecificList" page.
type listView struct {
	List     *model.UserList
	IsOwner  bool
	CanEdit  bool
	ListPath string
}

// HandlePublicLists shows one page of public lists.
//
// HTTP: GET /users/public/lists?page=
func (h *ListHandler) HandlePublicLists(w http.ResponseWriter, r *http.Request) {
	actor, _ := sessionUser(r)

	page, err := parsePage(r)
	if err != nil {
		h.renderer.RenderError(w, r, err)
		return
	}

	result, err := h.lists.PublicLists(r.Context(), page)
	if err != nil {
		h.renderer.RenderError(w, r, err)
		return
	}

	h.renderer.Render(w, http.StatusOK, pageUserLists, View{
		Title:   "Public lists",
		Session: actor,
		Data: listsView{
			Public:     true,
			Lists:      result.Lists,
			Pagination: paginationFor(result, "/users/public/lists"),
		},
	})
}

// HandleUserLists shows one page of the lists the user owns or was invited to.
//
// HTTP: GET /users/{username}/lists?page=
func (h *ListHandler) HandleUserLists(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireSelf(w, r)
	if !ok {
		return
	}

	page, err := parsePage(r)
	if err != nil {
		h.renderer.RenderError(w, r, err)
		return
	}

	result, err := h.lists.UserLists(r.Context(), actor, actor, page)
	if err != nil {
		h.renderer.RenderError(w, r, err)
		return
	}

	h.renderer.Render(w, http.StatusOK, pageUserLists, View{
		Title:   "My lists",
		Session: actor,
		Data: listsView{
			Lists:      result.Lists,
			Pagination: paginationFor(result, listsPath(actor)),
		},
	})
}

// HandleNewListPage shows the create-list form.
//
// HTTP: GET /users/{username}/lists/new
func (h *ListHandler) HandleNewListPage(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireSelf(w, r)
	if !ok {
		return
	}
	h.renderer.Render(w, http.StatusOK, pageCreateNewList, View{Title: "New list", Session: actor})
}

// HandleCreateList creates a list and redirects to the user's lists.
//
// HTTP: POST /users/{username}/lists/new (name, description, listProtection)
//
// The form's radio button used to be called "option"; both names work.
func (h *ListHandler) HandleCreateList(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireSelf(w, r)
	if !ok {
		return
	}

	form, err := readForm(r)
	if err != nil {
		h.renderer.RenderError(w, r, err)
		return
	}

	protection := form.Get("listProtection")
	if protection == "" {
		protection = form.Get("option")
	}

	in := service.CreateListInput{
		Name:        form.Get("name"),
		Description: form.Get("description"),
		Protection:  model.Protection(protection),
	}
	if _, err := h.lists.Create(r.Context(), actor, in); err != nil {
		h.renderer.RenderError(w, r, err)
		return
	}

	http.Redirect(w, r, listsPath(actor), http.StatusSeeOther)
}

// HandleViewList shows one list.
//
// HTTP: GET /users/{username}/lists/{listID}
func (h *ListHandler) HandleViewList(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireSelf(w, r)
	if !ok {
		return
	}

	listID := chi.URLParam(r, "listID")
	list, err := h.lists.View(r.Context(), actor, listID)
	if err != nil {
		h.renderer.RenderError(w, r, err)
		return
	}

	h.renderer.Render(w, http.StatusOK, pageList, View{
		Title:   list.Name,
		Session: actor,
		Data: listView{
			List:     list,
			IsOwner:  list.Owner == actor,
			CanEdit:  list.CanEditItems(actor),
			ListPath: listsPath(actor) + "/" + url.PathEscape(list.ID),
		},
	})
}

// HandleAddMovie adds a movie to a list.
//
// HTTP: POST /users/{username}/lists/{listID} (movieID)
func (h *ListHandler) HandleAddMovie(w http.ResponseWriter, r *http.Request) {
	actor, form, ok := h.ajaxSelf(w, r)
	if !ok {
		return
	}

	if err := h.lists.AddMovie(r.Context(), actor, chi.URLParam(r, "listID"), form.Get("movieID")); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w)
}

// HandleRemoveMovie removes a movie from a list.
//
// HTTP: DELETE /users/{username}/lists/{listID} (movieID)
func (h *ListHandler) HandleRemoveMovie(w http.ResponseWriter, r *http.Request) {
	actor, form, ok := h.ajaxSelf(w, r)
	if !ok {
		return
	}

	if err := h.lists.RemoveMovie(r.Context(), actor, chi.URLParam(r, "listID"), form.Get("movieID")); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w)
}

// HandleDeleteList deletes a list owned by the user.
//
// HTTP: DELETE /users/{username}/lists (listID)
func (h *ListHandler) HandleDeleteList(w http.ResponseWriter, r *http.Request) {
	actor, form, ok := h.ajaxSelf(w, r)
	if !ok {
		return
	}

	if err := h.lists.Delete(r.Context(), actor, form.Get("listID")); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w)
}

// HandleUpdateList edits the name, description or protection of a list.
// Empty fields are left unchanged.
//
// HTTP: PUT /users/{username}/lists/{listID} (name, description, listProtection)
func (h *ListHandler) HandleUpdateList(w http.ResponseWriter, r *http.Request) {
	actor, form, ok := h.ajaxSelf(w, r)
	if !ok {
		return
	}

	opts := repository.UpdateOptions{
		ListID:      chi.URLParam(r, "listID"),
		Name:        form.Get("name"),
		Description: form.Get("description"),
		Protection:  model.Protection(form.Get("listProtection")),
	}
	if err := h.lists.Update(r.Context(), actor, opts); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w)
}

// HandleInvite invites a user to a private list.
//
// HTTP: PUT /users/{username}/lists/{listID}/invite (guestUsername, permission)
//
// The invite form only sends permission when its "read/write" box is
// ticked, so a missing permission means readonly. An unknown guest answers
// 404 with "User not Found!", which the page shows as a warning.
func (h *ListHandler) HandleInvite(w http.ResponseWriter, r *http.Request) {
	actor, form, ok := h.ajaxSelf(w, r)
	if !ok {
		return
	}

	permission := model.Permission(form.Get("permission"))
	if permission == "" {
		permission = model.PermissionReadOnly
	}

	err := h.lists.Invite(r.Context(), actor, chi.URLParam(r, "listID"), form.Get("guestUsername"), permission)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w)
}

// requireSelf renders a 403 page unless the session user is {username}.
func (h *ListHandler) requireSelf(w http.ResponseWriter, r *http.Request) (string, bool) {
	actor, ok := sessionUser(r)
	if !ok || actor != chi.URLParam(r, "username") {
		h.renderer.RenderStatus(w, r, http.StatusForbidden,
			"Forbidden - You do not have permission to access this lists")
		return "", false
	}
	return actor, true
}

// ajaxSelf is requireSelf for AJAX routes; it also reads the form body.
func (h *ListHandler) ajaxSelf(w http.ResponseWriter, r *http.Request) (string, url.Values, bool) {
	actor, ok := sessionUser(r)
	if !ok || actor != chi.URLParam(r, "username") {
		writeJSON(w, http.StatusForbidden, ErrorResponse{
			Error:   "forbidden",
			Message: "You do not have permission to access this lists",
		})
		return "", nil, false
	}

	form, err := readForm(r)
	if err != nil {
		writeError(w, err)
		return "", nil, false
	}
	return actor, form, true
}

func paginationFor(page *repository.Page, baseURL string) Pagination {
	return Pagination{
		Current: page.Number,
		Total:   page.TotalPages(),
		BaseURL: baseURL,
	}
}

func listsPath(username string) string {
	return profilePath(username) + "/lists"
}
