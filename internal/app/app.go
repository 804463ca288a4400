package app

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/dori/tasca/internal/config"
	"github.com/dori/tasca/internal/filter"
	"github.com/dori/tasca/internal/logging"
	"github.com/dori/tasca/internal/remote"
	"github.com/dori/tasca/internal/store"
	"github.com/dori/tasca/internal/syncer"
)

// App holds the application state and dependencies
type App struct {
	Config    *config.Config
	Store     *store.Store
	Evaluator *filter.Evaluator
	Log       *zap.Logger
}

// New creates a new application instance
func New(cfg *config.Config) (*App, error) {
	if cfg == nil {
		loaded, err := config.Load()
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	// Ensure data directory exists
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	tiers, err := cfg.LoadTiers()
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &App{
		Config:    cfg,
		Store:     st,
		Evaluator: filter.New(tiers),
		Log:       logging.New(cfg.LogLevel, cfg.LogEncoding),
	}, nil
}

// Engine builds a sync engine over the given gateway. The gateway is injected
// here because most commands never touch the remote and should not require
// credentials.
func (a *App) Engine(gw remote.Gateway) *syncer.Engine {
	return syncer.New(a.Store, gw, a.Log, syncer.Options{
		LockDir:     a.Config.LockDir,
		LockTimeout: a.Config.LockTimeout,
	})
}

// Close cleans up application resources
func (a *App) Close() error {
	var errs []error

	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		}
	}

	if a.Log != nil {
		a.Log.Sync()
	}

	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}
