// Package app wires marketd together and runs it in one of three modes:
// server (HTTP and websocket API), resolver (scheduled settlement, archive
// and alerts) or full (both in one process).
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/afrifutures/marketd/internal/config"
)

type modeFunc func(a *App, ctx context.Context, deps *Dependencies) error

var modes = map[string]modeFunc{
	"server":   (*App).ServerMode,
	"resolver": (*App).ResolverMode,
	"full":     (*App).FullMode,
}

// App owns the configuration and the resources opened by Wire.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	mu      sync.Mutex
	cleanup func()
}

func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run blocks until ctx is cancelled or a component fails. Resources stay
// open until Close.
func (a *App) Run(ctx context.Context) error {
	run, ok := modes[a.cfg.Mode]
	if !ok {
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire: %w", err)
	}
	a.mu.Lock()
	a.cleanup = cleanup
	a.mu.Unlock()

	a.logger.InfoContext(ctx, "dependencies ready",
		slog.String("mode", a.cfg.Mode),
		slog.String("storage", a.cfg.Storage.Backend),
		slog.Bool("archive", deps.Archiver != nil),
		slog.Bool("alerts", deps.Notifier.Enabled()),
	)
	return run(a, ctx, deps)
}

// Close releases everything Wire opened. Later calls do nothing.
func (a *App) Close() {
	a.mu.Lock()
	cleanup := a.cleanup
	a.cleanup = nil
	a.mu.Unlock()

	if cleanup != nil {
		a.logger.Info("releasing resources")
		cleanup()
	}
}
