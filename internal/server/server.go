// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer. It decides:
//   - which document store backs the repositories (CouchDB or embedded sqlite)
//   - which URL patterns map to which handler functions
//   - what middleware runs on which routes
//   - how the server starts and stops gracefully
//
// DEPENDENCY INJECTION FLOW:
//
//	config.Config → Server.New() creates:
//	  docstore (couchdb.Client | sqlite.DB) → document.{User,List,Comment}Store
//	  tmdb.Client ──────────────────────────┘ (ListStore looks movies up)
//	  repositories → services → handlers → routes
//
// All dependencies are wired here, in one place (the "composition root").
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/movielists/internal/auth"
	"github.com/sakif/movielists/internal/config"
	"github.com/sakif/movielists/internal/docstore"
	"github.com/sakif/movielists/internal/docstore/couchdb"
	"github.com/sakif/movielists/internal/docstore/sqlite"
	"github.com/sakif/movielists/internal/handler"
	"github.com/sakif/movielists/internal/middleware"
	"github.com/sakif/movielists/internal/repository"
	"github.com/sakif/movielists/internal/repository/document"
	"github.com/sakif/movielists/internal/service"
	"github.com/sakif/movielists/internal/tmdb"
)

// Collection names, one per document type.
const (
	usersCollection    = "users"
	listsCollection    = "lists"
	commentsCollection = "comments"
)

const startupTimeout = 10 * time.Second

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The sqlite backend owns a database handle that must be closed on shutdown
// to flush pending writes. CouchDB needs no cleanup, so closeStore is a no-op
// there.
type Server struct {
	router     *chi.Mux
	config     *config.Config
	logger     *slog.Logger
	closeStore func() error
}

// New opens the configured document store and the movie catalog and wires
// every route.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	catalog, err := tmdb.New(tmdb.Config{
		BaseURL:   cfg.TMDBBaseURL,
		APIKey:    cfg.TMDBAPIKey,
		ReadToken: cfg.TMDBReadToken,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating movie catalog client: %w", err)
	}
	return NewWithCatalog(cfg, catalog, logger)
}

// NewWithCatalog is New with an explicit movie catalog.
func NewWithCatalog(cfg *config.Config, catalog repository.MovieCatalog, logger *slog.Logger) (*Server, error) {
	collection, closeStore, err := openStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	s := &Server{
		router:     chi.NewRouter(),
		config:     cfg,
		logger:     logger,
		closeStore: closeStore,
	}

	if err := s.setupRoutes(collection, catalog); err != nil {
		closeStore() // Clean up the store if route setup fails
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// openStore returns a function resolving collection names for the
// configured backend, plus the function that releases it.
func openStore(cfg *config.Config, logger *slog.Logger) (func(string) docstore.Collection, func() error, error) {
	switch cfg.StoreBackend {
	case config.BackendSQLite:
		if cfg.DBPath != ":memory:" {
			// os.MkdirAll is `mkdir -p`: it creates every missing parent.
			if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
				return nil, nil, fmt.Errorf("creating database directory: %w", err)
			}
		}
		db, err := sqlite.New(cfg.DBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("opening database: %w", err)
		}
		logger.Info("using embedded document store", slog.String("path", cfg.DBPath))
		return func(name string) docstore.Collection { return db.Collection(name) }, db.Close, nil

	case config.BackendCouchDB:
		client, err := couchdb.New(couchdb.Config{
			URL:      cfg.CouchDBURL,
			Username: cfg.CouchDBUser,
			Password: cfg.CouchDBPassword,
		}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("creating document store client: %w", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
		defer cancel()
		if err := client.EnsureDatabases(ctx, usersCollection, listsCollection, commentsCollection); err != nil {
			return nil, nil, fmt.Errorf("preparing document store: %w", err)
		}
		logger.Info("using CouchDB document store", slog.String("url", cfg.CouchDBURL))
		return func(name string) docstore.Collection { return client.DB(name) }, func() error { return nil }, nil
	}

	return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// GET    /                                       → redirect to profile or /login
// GET    /static/*                               → static files (CSS, JS)
// GET    /login, /signup                         → forms
// POST   /login, /signup                         → authenticate / create account (rate limited)
// POST   /logout                                 → clear session cookie
// GET    /users/public/lists?page=               → public lists page
// GET    /users/{username}                       → profile page
// DELETE /users/{username}                       → delete account
// GET    /users/{username}/comments              → comments page
// POST   /users/{username}/comments              → add comment
// GET    /users/{username}/lists?page=           → own lists page
// DELETE /users/{username}/lists                 → delete list (listID)
// GET    /users/{username}/lists/new             → create-list form
// POST   /users/{username}/lists/new             → create list, redirect
// GET    /users/{username}/lists/{listID}        → list page
// POST   /users/{username}/lists/{listID}        → add movie (movieID)
// PUT    /users/{username}/lists/{listID}        → edit list
// DELETE /users/{username}/lists/{listID}        → remove movie (movieID)
// PUT    /users/{username}/lists/{listID}/invite → invite guest
//
// MIDDLEWARE ORDER MATTERS:
// 1. RequestID: assigns unique ID to each request (for tracing)
// 2. RealIP: extracts real client IP from proxy headers (the rate limiter keys on it)
// 3. Logger: logs each request with timing info
// 4. Recoverer: catches panics and returns 500 instead of crashing
func (s *Server) setupRoutes(collection func(string) docstore.Collection, catalog repository.MovieCatalog) error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	// === Static Files ===
	// GET /static/css/style.css → serves {StaticDir}/css/style.css
	fileServer := http.FileServer(http.Dir(s.config.StaticDir))
	s.router.Handle("/static/*", http.StripPrefix("/static/", fileServer))

	// === Dependencies ===
	tokens, err := auth.NewTokenService(s.config.JWTSecret, s.config.SessionTTL)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	passwords := auth.NewPasswordService(s.config.BcryptCost)

	users := document.NewUserStore(collection(usersCollection), passwords, s.logger)
	lists := document.NewListStore(collection(listsCollection), users, catalog, s.logger)
	comments := document.NewCommentStore(collection(commentsCollection), users, s.logger)

	authService := service.NewAuthService(users, lists, tokens, passwords, s.logger)
	listService := service.NewListService(lists, users, s.logger)
	commentService := service.NewCommentService(comments, users, s.logger)

	renderer, err := handler.NewRenderer(s.config.TemplateDir, s.logger)
	if err != nil {
		return fmt.Errorf("loading templates: %w", err)
	}

	authHandler := handler.NewAuthHandler(authService, renderer, s.logger)
	listHandler := handler.NewListHandler(listService, renderer, s.logger)
	userHandler := handler.NewUserHandler(authService, commentService, renderer, s.logger)

	limiter := middleware.NewRateLimiter(s.config.LoginRate, s.config.LoginBurst, s.logger)

	// === Public Routes ===
	s.router.Group(func(r chi.Router) {
		r.Use(auth.OptionalSession(tokens, authService))
		r.Get("/", authHandler.HandleRoot)
		r.Get("/login", authHandler.HandleLoginPage)
		r.Get("/signup", authHandler.HandleSignupPage)
		r.With(limiter.Middleware).Post("/login", authHandler.HandleLogin)
		r.With(limiter.Middleware).Post("/signup", authHandler.HandleSignup)
		r.Post("/logout", authHandler.HandleLogout)
	})

	// === Session Routes ===
	s.router.Route("/users", func(r chi.Router) {
		r.Use(auth.RequireSession(tokens, authService))

		r.Get("/public/lists", listHandler.HandlePublicLists)

		r.Route("/{username}", func(r chi.Router) {
			r.Get("/", userHandler.HandleProfile)
			r.Delete("/", userHandler.HandleDeleteAccount)
			r.Get("/comments", userHandler.HandleComments)
			r.Post("/comments", userHandler.HandleAddComment)

			r.Route("/lists", func(r chi.Router) {
				r.Get("/", listHandler.HandleUserLists)
				r.Delete("/", listHandler.HandleDeleteList)
				r.Get("/new", listHandler.HandleNewListPage)
				r.Post("/new", listHandler.HandleCreateList)
				r.Get("/{listID}", listHandler.HandleViewList)
				r.Post("/{listID}", listHandler.HandleAddMovie)
				r.Put("/{listID}", listHandler.HandleUpdateList)
				r.Delete("/{listID}", listHandler.HandleRemoveMovie)
				r.Put("/{listID}/invite", listHandler.HandleInvite)
			})
		})
	})

	return nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the document store.
func (s *Server) Close() error {
	return s.closeStore()
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
// 1. Stop accepting new HTTP connections
// 2. Wait for in-flight requests to finish (30s timeout)
// 3. Close the document store (flushes the sqlite WAL)
func (s *Server) Start() error {
	defer s.Close()

	srv := &http.Server{
		Addr:         s.config.Addr(),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("store", s.config.StoreBackend),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
