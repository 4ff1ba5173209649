package application

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/eugenenazirov/variant-matrix/internal/api"
	"github.com/eugenenazirov/variant-matrix/internal/config"
	"github.com/eugenenazirov/variant-matrix/internal/metrics"
	"github.com/eugenenazirov/variant-matrix/internal/storage"
)

// App encapsulates the serve-mode dependencies and HTTP server.
type App struct {
	cfg     config.Config
	storage storage.Storage
	runner  *Runner
	metrics *metrics.Metrics
	handler *api.Handler
	router  http.Handler
	logger  *zap.Logger
	server  *http.Server
}

// Option configures App construction.
type Option func(*appOptions)

type appOptions struct {
	showSecrets bool
	runnerOpts  []RunnerOption
}

// WithShowSecrets disables secret masking in API responses.
func WithShowSecrets(show bool) Option {
	return func(o *appOptions) {
		o.showSecrets = show
	}
}

// WithRunnerOptions passes extra options to the Runner.
func WithRunnerOptions(opts ...RunnerOption) Option {
	return func(o *appOptions) {
		o.runnerOpts = append(o.runnerOpts, opts...)
	}
}

// New initializes the application with all dependencies from the provided configuration.
// No report exists until Regenerate is called.
func New(cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	var o appOptions
	for _, opt := range opts {
		opt(&o)
	}

	store := storage.NewMemoryStorage()
	m := metrics.New()
	runnerOpts := append([]RunnerOption{WithStorage(store), WithMetrics(m)}, o.runnerOpts...)
	runner := NewRunner(cfg, logger, runnerOpts...)

	handler := api.NewHandler(store, runner,
		api.WithShowSecrets(o.showSecrets),
		api.WithMetricsHandler(m.Handler()),
	)
	apiRouter := api.NewRouter(handler, logger,
		api.WithLogging(cfg.EnableRequestLogging),
		api.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
		api.WithRequestObserver(m),
	)

	return &App{
		cfg:     cfg,
		storage: store,
		runner:  runner,
		metrics: m,
		handler: handler,
		router:  apiRouter,
		logger:  logger,
		server:  NewServer(cfg, apiRouter),
	}, nil
}

// NewServer creates and configures an HTTP server from the provided configuration.
func NewServer(cfg config.Config, handler http.Handler) *http.Server {
	addr := cfg.Port
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}

	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}

// Regenerate runs a generation and stores the report.
func (a *App) Regenerate(ctx context.Context) (storage.Snapshot, error) {
	return a.runner.Regenerate(ctx)
}

// Start starts the HTTP server in a goroutine and logs the listening address.
func (a *App) Start() error {
	go func() {
		a.logger.Info("server listening", zap.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Fatal("server error", zap.Error(err))
		}
	}()
	return nil
}

// Watch regenerates whenever a property file changes, until ctx is cancelled.
// Failed regenerations are logged and keep the previous report.
func (a *App) Watch(ctx context.Context) error {
	w := NewWatcher(a.runner.WatchedFiles(), a.cfg.WatchDebounce, func(ctx context.Context) {
		_, _ = a.runner.Regenerate(ctx)
	}, a.logger)
	return w.Run(ctx)
}

// Server returns the HTTP server instance for shutdown handling.
func (a *App) Server() *http.Server {
	return a.server
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler {
	return a.router
}
