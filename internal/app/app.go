package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/specialistvlad/bakegridgo/internal/config"
	"github.com/specialistvlad/bakegridgo/internal/ctxlog"
	"github.com/specialistvlad/bakegridgo/internal/executor"
	"github.com/specialistvlad/bakegridgo/internal/filejournal"
	"github.com/specialistvlad/bakegridgo/internal/journal"
	"github.com/specialistvlad/bakegridgo/internal/renderer"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	config   *Config
	settings *config.Config
	journal  journal.Journal
	renderer renderer.Renderer

	httpServer *http.Server
	mu         sync.Mutex
	current    *executor.Executor
}

// Option customizes an App.
type Option func(*App)

// WithRenderer replaces the synthetic renderer.
func WithRenderer(r renderer.Renderer) Option {
	return func(a *App) { a.renderer = r }
}

// WithJournal replaces the file journal configured in the settings.
func WithJournal(j journal.Journal) Option {
	return func(a *App) { a.journal = j }
}

// NewApp is the constructor for the main application. It loads the engine
// settings, applies the caller's log overrides and builds an isolated logger.
func NewApp(outW io.Writer, cfg *Config, opts ...Option) (*App, error) {
	settings, err := config.Load(cfg.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	if cfg.LogLevel != "" {
		settings.Log.Level = cfg.LogLevel
	}
	if cfg.LogFormat != "" {
		settings.Log.Format = cfg.LogFormat
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	logger := newLogger(settings.Log.Level, settings.Log.Format, outW)
	logger.Debug("Logger configured successfully.")

	a := &App{
		outW:     outW,
		logger:   logger,
		config:   cfg,
		settings: settings,
		journal:  filejournal.New(settings.Journal.Dir, settings.Journal.Retain),
		renderer: renderer.NewSynthetic(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Settings returns the effective engine settings.
func (a *App) Settings() *config.Config {
	return a.settings
}

// Logger returns the application's logger.
func (a *App) Logger() *slog.Logger {
	return a.logger
}

func (a *App) context(ctx context.Context) context.Context {
	return ctxlog.WithLogger(ctx, a.logger)
}

// Executor returns the executor of the job being run, or nil.
func (a *App) Executor() *executor.Executor {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

func (a *App) setExecutor(e *executor.Executor) {
	a.mu.Lock()
	a.current = e
	a.mu.Unlock()
}

// Status summarizes the most recent journal session, or returns nil when
// there is none.
func (a *App) Status(ctx context.Context) (*journal.SessionSummary, error) {
	return a.journal.LastSession(a.context(ctx))
}

// CheckLastSession is run on startup. It logs a crash banner when the last
// session did not end cleanly and returns its summary.
func (a *App) CheckLastSession(ctx context.Context) (*journal.SessionSummary, error) {
	ctx = a.context(ctx)
	last, err := a.journal.LastSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}
	if last != nil && last.Unclean() {
		a.logger.Warn("⚠️ Previous session did not finish cleanly.",
			"session", last.SessionID, "job", last.Job, "banner", last.Banner())
	}
	return last, nil
}
