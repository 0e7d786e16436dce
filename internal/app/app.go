// Package app wires configuration, storage, browser, and backend access
// together and manages their lifecycle for the CLI commands.
package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/menucollect/clipper/internal/api"
	"github.com/menucollect/clipper/internal/auth"
	"github.com/menucollect/clipper/internal/browser"
	"github.com/menucollect/clipper/internal/cache"
	"github.com/menucollect/clipper/internal/config"
	"github.com/menucollect/clipper/internal/fetch"
	"github.com/menucollect/clipper/internal/ratelimit"
	"github.com/menucollect/clipper/internal/store"
)

// Application holds the long-lived dependencies shared by all commands.
// The browser pool is created lazily because most commands never need it.
type Application struct {
	Config      *config.Config
	Logger      *zerolog.Logger
	Store       *store.Store
	Cache       cache.Cache
	RateLimiter ratelimit.RateLimiter
	HTTPClient  *http.Client
	Fetcher     *fetch.Fetcher
	API         *api.Client

	poolMu sync.Mutex
	pool   *browser.Pool

	startTime time.Time
}

// New initializes the application. A missing API token is not fatal here;
// commands that talk to the backend check for one themselves.
func New(ctx context.Context, cfg *config.Config) (*Application, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	logger := newLogger(cfg)

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}

	memCache := cache.NewMemory(cfg.CacheMaxSizeBytes)
	limiter := ratelimit.NewHostLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	a := &Application{
		Config:      cfg,
		Logger:      &logger,
		Store:       st,
		Cache:       memCache,
		RateLimiter: limiter,
		HTTPClient:  httpClient,
		startTime:   time.Now(),
	}

	// The fetcher's renderer resolves through the lazily created pool.
	a.Fetcher = fetch.New(httpClient, memCache, limiter, poolRenderer{a}, cfg.UserAgent)

	if cfg.APIBaseURL != "" {
		token, err := auth.LoadToken()
		if err != nil {
			logger.Debug().Err(err).Msg("No API token loaded")
			token = ""
		}
		a.API = api.New(cfg.APIBaseURL, token,
			api.WithHTTPClient(httpClient),
			api.WithUserAgent(cfg.UserAgent))
	}

	logger.Debug().Str("db", cfg.DBPath).Msg("Application initialized")
	return a, nil
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level := zerolog.ErrorLevel
	switch cfg.LogLevel {
	case "debug":
		level = zerolog.DebugLevel
	case "warn":
		level = zerolog.WarnLevel
	case "info":
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var w io.Writer
	if cfg.JSONLog {
		w = os.Stderr
	} else {
		w = zerolog.NewConsoleWriter()
	}
	return log.Output(w).With().Timestamp().Logger()
}

// Scope builds the backend scope from configuration.
func (a *Application) Scope() api.Scope {
	return api.Scope{
		RestaurantID: a.Config.RestaurantID,
		CollectionID: a.Config.CollectionID,
		SourceID:     a.Config.SourceID,
	}
}

// RequireAPI returns the API client or an error explaining how to get one.
func (a *Application) RequireAPI() (*api.Client, error) {
	if a.API == nil {
		return nil, fmt.Errorf("no collection API configured, set api_base_url in ~/.clipper.yaml or CLIPPER_API_URL")
	}
	return a.API, nil
}

// EnsurePool lazily creates the headless browser pool.
func (a *Application) EnsurePool(ctx context.Context) (*browser.Pool, error) {
	a.poolMu.Lock()
	defer a.poolMu.Unlock()
	if a.pool != nil {
		return a.pool, nil
	}

	pool, err := browser.NewPool(ctx, a.Config.BrowserPoolSize, browser.Options{
		ChromePath: a.Config.ChromePath,
		UserAgent:  a.Config.UserAgent,
		Proxy:      a.Config.Proxy,
	})
	if err != nil {
		return nil, fmt.Errorf("start browser pool: %w", err)
	}
	a.pool = pool
	a.Logger.Debug().Int("size", a.Config.BrowserPoolSize).Msg("Browser pool started")
	return pool, nil
}

// BrowserOptions builds launch options for an interactive session.
func (a *Application) BrowserOptions() browser.Options {
	return browser.Options{
		ChromePath: a.Config.ChromePath,
		Headless:   false,
		UserAgent:  a.Config.UserAgent,
		Proxy:      a.Config.Proxy,
	}
}

// Close releases every held resource. Errors are logged, not returned
// upward, so one failed teardown cannot skip the others.
func (a *Application) Close(ctx context.Context) error {
	a.poolMu.Lock()
	if a.pool != nil {
		if err := a.pool.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Error closing browser pool")
		}
		a.pool = nil
	}
	a.poolMu.Unlock()

	if a.Cache != nil {
		a.Cache.Close()
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Error closing store")
		}
	}
	if a.HTTPClient != nil {
		a.HTTPClient.CloseIdleConnections()
	}

	a.Logger.Debug().Dur("uptime", time.Since(a.startTime)).Msg("Application shutdown complete")
	return nil
}

// poolRenderer adapts the lazy pool to the fetch.Renderer interface.
type poolRenderer struct {
	app *Application
}

func (r poolRenderer) Render(ctx context.Context, url string, settle, timeout time.Duration) (string, error) {
	pool, err := r.app.EnsurePool(ctx)
	if err != nil {
		return "", err
	}
	return pool.Render(ctx, url, settle, timeout)
}
