// Package app wires storage, the action registry, the executors and the
// scheduler into one lifecycle.
package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/cursus/internal/actions"
	"github.com/ternarybob/cursus/internal/common"
	"github.com/ternarybob/cursus/internal/executor"
	"github.com/ternarybob/cursus/internal/interfaces"
	"github.com/ternarybob/cursus/internal/models"
	"github.com/ternarybob/cursus/internal/scheduler"
	"github.com/ternarybob/cursus/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager
	Registry       *actions.Registry
	Executors      map[models.Level]*executor.Executor
	Scheduler      interfaces.SchedulerService
}

// CatalogFunc builds the course/phase/task action declarations. It receives
// the storage manager so action handlers can close over storage.
type CatalogFunc func(storage interfaces.StorageManager) []actions.CourseMeta

// New initializes the application with all dependencies. The catalog built by
// buildCatalog is validated here and frozen for the life of the process.
func New(cfg *common.Config, buildCatalog CatalogFunc, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	storageManager, err := badger.NewManager(logger, &cfg.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	app.StorageManager = storageManager
	logger.Debug().
		Str("storage", "badger").
		Str("path", cfg.Storage.Badger.Path).
		Msg("Storage layer initialized")

	registry, err := actions.NewRegistry(buildCatalog(storageManager), logger)
	if err != nil {
		storageManager.Close()
		return nil, fmt.Errorf("failed to build action registry: %w", err)
	}
	app.Registry = registry
	logger.Debug().Int("actions", len(registry.ListActions())).Msg("Action registry built")

	app.Executors = executor.NewForLevels(storageManager, logger)
	app.Scheduler = scheduler.NewService(storageManager, registry, app.Executors, &cfg.Scheduler, logger)

	return app, nil
}

// Start recovers stale entity locks left by an unclean shutdown, then starts
// the scheduler if enabled.
func (a *App) Start(ctx context.Context) error {
	cleared, err := a.StorageManager.EntityStorage().ResetAllLocks(ctx)
	if err != nil {
		return fmt.Errorf("failed to reset entity locks: %w", err)
	}
	if cleared > 0 {
		a.Logger.Warn().Int("cleared", cleared).Msg("Cleared stale entity locks from previous run")
	}

	if !a.Config.Scheduler.Enabled {
		a.Logger.Info().Msg("Scheduler disabled by configuration")
		return nil
	}
	if err := a.Scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	return nil
}

// Close closes all application resources
func (a *App) Close() error {
	if a.Scheduler != nil {
		if err := a.Scheduler.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop scheduler")
		}
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}

	return nil
}
