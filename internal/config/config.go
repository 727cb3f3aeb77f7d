// Package config loads server settings from the environment.
//
// An optional .env file in the working directory is read first with
// godotenv. Variables already present in the environment win over the file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends.
const (
	BackendCouchDB = "couchdb"
	BackendSQLite  = "sqlite"
)

type Config struct {
	Port int

	StoreBackend    string
	CouchDBURL      string
	CouchDBUser     string
	CouchDBPassword string
	DBPath          string

	JWTSecret  string
	SessionTTL time.Duration
	BcryptCost int

	TMDBBaseURL   string
	TMDBAPIKey    string
	TMDBReadToken string

	TemplateDir string
	StaticDir   string

	LoginRate  float64 // requests per second per client on /login and /signup
	LoginBurst int

	LogLevel slog.Level
}

// Load reads .env (if present) and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: reading .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from the current environment only.
func FromEnv() (*Config, error) {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	cfg := &Config{
		StoreBackend:    strings.ToLower(getString("STORE_BACKEND", BackendCouchDB)),
		CouchDBURL:      getString("COUCHDB_URL", "http://localhost:5984"),
		CouchDBUser:     getString("COUCHDB_USER", ""),
		CouchDBPassword: getString("COUCHDB_PASSWORD", ""),
		DBPath:          getString("DB_PATH", "data/movielists.db"),
		JWTSecret:       getString("JWT_SECRET", ""),
		TMDBBaseURL:     getString("TMDB_API_URL", "https://api.themoviedb.org/3"),
		TMDBAPIKey:      getString("TMDB_API_KEY", ""),
		TMDBReadToken:   getString("TMDB_READ_TOKEN", ""),
		TemplateDir:     getString("TEMPLATE_DIR", "web/templates"),
		StaticDir:       getString("STATIC_DIR", "web/static"),
	}

	var err error
	cfg.Port, err = getInt("PORT", 8080)
	collect(err)
	cfg.SessionTTL, err = getDuration("SESSION_TTL", 24*time.Hour)
	collect(err)
	cfg.BcryptCost, err = getInt("BCRYPT_COST", 12)
	collect(err)
	cfg.LoginRate, err = getFloat("LOGIN_RATE", 1)
	collect(err)
	cfg.LoginBurst, err = getInt("LOGIN_BURST", 5)
	collect(err)
	cfg.LogLevel, err = getLevel("LOG_LEVEL", slog.LevelInfo)
	collect(err)

	collect(cfg.validate())

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("config: PORT %d out of range", c.Port))
	}
	switch c.StoreBackend {
	case BackendCouchDB:
		if c.CouchDBURL == "" {
			errs = append(errs, errors.New("config: COUCHDB_URL is required for the couchdb backend"))
		}
	case BackendSQLite:
		if c.DBPath == "" {
			errs = append(errs, errors.New("config: DB_PATH is required for the sqlite backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: unknown STORE_BACKEND %q", c.StoreBackend))
	}
	if len(c.JWTSecret) < 16 {
		errs = append(errs, errors.New("config: JWT_SECRET must be set to at least 16 characters"))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("config: SESSION_TTL must be positive"))
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		errs = append(errs, fmt.Errorf("config: BCRYPT_COST %d out of range 4..31", c.BcryptCost))
	}
	if c.TMDBAPIKey == "" && c.TMDBReadToken == "" {
		errs = append(errs, errors.New("config: TMDB_API_KEY or TMDB_READ_TOKEN is required"))
	}
	if c.LoginRate <= 0 || c.LoginBurst < 1 {
		errs = append(errs, errors.New("config: LOGIN_RATE and LOGIN_BURST must be positive"))
	}
	return errors.Join(errs...)
}

// Addr is the listen address for Port.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// =========================================================================
// ENV HELPERS
// =========================================================================

func getString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s=%q is not an integer", key, v)
	}
	return n, nil
}

func getFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("config: %s=%q is not a number", key, v)
	}
	return f, nil
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s=%q is not a duration", key, v)
	}
	return d, nil
}

func getLevel(key string, def slog.Level) (slog.Level, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(v)); err != nil {
		return 0, fmt.Errorf("config: %s=%q is not a log level", key, v)
	}
	return level, nil
}
