// Package handler contains the HTTP handlers of the movie-list application:
// server-rendered pages plus the small AJAX endpoints the list pages call.
//
// HANDLER RESPONSIBILITIES:
//  1. Parse the incoming HTTP request (URL params, query, form body)
//  2. Call the service layer
//  3. Render a page, redirect, or write a short JSON answer
//
// Handlers contain no business rules. Access checks that depend on a list's
// guests live in the service layer; handlers only compare the session user
// with the {username} in the URL.
package handler

import (
	"bytes"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
)

// posterBaseURL is where the movie catalog serves poster images.
const posterBaseURL = "https://image.tmdb.org/t/p/w300"

// Page names. Each has a template file "<name>.html" defining "content".
const (
	pageLogin         = "login"
	pageSignup        = "signup"
	pageProfile       = "profile"
	pageUserLists     = "userLists"
	pageCreateNewList = "createNewList"
	pageList          = "userSpecificList"
	pageUserComments  = "userComments"
	pageError         = "error"
)

var pageNames = []string{
	pageLogin,
	pageSignup,
	pageProfile,
	pageUserLists,
	pageCreateNewList,
	pageList,
	pageUserComments,
	pageError,
}

// Renderer holds one parsed template set per page.
//
// TEMPLATE COMPOSITION:
// Every page is parsed together with base.html. base.html defines the
// layout with a {{template "content" .}} placeholder and each page file
// fills it with {{define "content"}}...{{end}}. Parsing the pages separately
// keeps their "content" blocks from overwriting each other.
type Renderer struct {
	pages  map[string]*template.Template
	logger *slog.Logger
}

// View is the data every page receives.
type View struct {
	Title   string
	Session string // signed-in username, empty on the login and signup pages
	Flash   string // message shown above a form after a failed submit
	Data    interface{}
}

// ErrorView is the data of the "error" page.
type ErrorView struct {
	StatusCode int
	Message    string
}

// Pagination describes the page links under a paginated list.
type Pagination struct {
	Current int
	Total   int
	BaseURL string
}

// HasPrev reports whether a link to the previous page should be shown.
func (p Pagination) HasPrev() bool { return p.Current > 1 }

// HasNext reports whether a link to the next page should be shown.
func (p Pagination) HasNext() bool { return p.Current < p.Total }

// Pages lists every page number, 1..Total.
func (p Pagination) Pages() []int {
	pages := make([]int, 0, p.Total)
	for i := 1; i <= p.Total; i++ {
		pages = append(pages, i)
	}
	return pages
}

// Link builds the URL of page n.
func (p Pagination) Link(n int) string {
	return fmt.Sprintf("%s?page=%d", p.BaseURL, n)
}

// NewRenderer parses base.html with every page template in templateDir.
func NewRenderer(templateDir string, logger *slog.Logger) (*Renderer, error) {
	funcs := template.FuncMap{
		"posterURL": posterURL,
		"add":       func(a, b int) int { return a + b },
		"sub":       func(a, b int) int { return a - b },
		"title":     titleCase,
	}

	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		tmpl, err := template.New(name).Funcs(funcs).ParseFiles(
			filepath.Join(templateDir, "base.html"),
			filepath.Join(templateDir, name+".html"),
		)
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = tmpl
	}

	return &Renderer{
		pages:  pages,
		logger: logger,
	}, nil
}

// Render writes page with the given status.
//
// The page is rendered into a buffer first. A template error halfway through
// would otherwise leave a half-written page behind a 200 status.
func (rd *Renderer) Render(w http.ResponseWriter, status int, page string, view View) {
	tmpl, ok := rd.pages[page]
	if !ok {
		rd.logger.Error("unknown page template", slog.String("page", page))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base", view); err != nil {
		rd.logger.Error("failed to render template",
			slog.String("page", page),
			slog.String("error", err.Error()),
		)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}

// RenderError renders the "error" page for err.
func (rd *Renderer) RenderError(w http.ResponseWriter, r *http.Request, err error) {
	status, _, message := classify(err)
	if status >= http.StatusInternalServerError {
		rd.logger.Error("request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
	rd.RenderStatus(w, r, status, message)
}

// RenderStatus renders the "error" page with an explicit status and message.
func (rd *Renderer) RenderStatus(w http.ResponseWriter, r *http.Request, status int, message string) {
	session, _ := sessionUser(r)
	rd.Render(w, status, pageError, View{
		Title:   http.StatusText(status),
		Session: session,
		Data:    ErrorView{StatusCode: status, Message: message},
	})
}

func posterURL(path string) string {
	if path == "" {
		return ""
	}
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return posterBaseURL + path
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
