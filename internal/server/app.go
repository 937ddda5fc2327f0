// Package server assembles and runs the ShareFile server process: database,
// migrations, chunk store, finalize worker pool and the expired-session
// sweeper, with graceful shutdown on OS signals.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"sharefile/internal/logging"
	"sharefile/internal/server/chunkstore"
	"sharefile/internal/server/config"
	"sharefile/internal/server/objectstore"
	"sharefile/internal/server/queue"
	"sharefile/internal/server/repositories/repomanager"
	"sharefile/internal/server/services"
)

// App owns the process-wide resources and the service layer.
type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	pool   *queue.WorkerPool

	Uploads  *services.UploadService
	Finalize *services.FinalizeService
	Links    *services.LinkService
	Files    *services.FilesService
	Users    *services.UserService
	Cleanup  *services.CleanupService
}

// NewApp opens the database, runs migrations and wires the services
// together. The finalize pool starts its workers immediately.
func NewApp(cfg *config.Config) (*App, error) {
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(context.Background(), db); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	store, err := chunkstore.New(cfg.StorageRoot)
	if err != nil {
		return nil, fmt.Errorf("chunk store init error: %w", err)
	}

	objects := objectstore.New(cfg)
	finalize := services.NewFinalizeService(db, rm, store, objects, logger)
	pool := queue.NewWorkerPool(cfg.FinalizeWorkers, finalize, logger)

	return &App{
		config:   cfg,
		logger:   logger,
		db:       db,
		pool:     pool,
		Uploads:  services.NewUploadService(db, rm, store, pool, cfg),
		Finalize: finalize,
		Links:    services.NewLinkService(db, rm, store, cfg),
		Files:    services.NewFilesService(db, rm, store, objects, logger),
		Users:    services.NewUserService(db, rm, logger),
		Cleanup:  services.NewCleanupService(db, rm, store, cfg.CleanupInterval, logger),
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run blocks until the context is cancelled or a termination signal
// arrives, then drains the finalize pool and closes the database.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "starting app",
		"storage_root", app.config.StorageRoot,
		"finalize_workers", app.config.FinalizeWorkers)

	app.initSignalHandler(cancelFunc)

	go app.Cleanup.Run(ctx)

	<-ctx.Done()

	app.logger.Info(ctx, "shutting down")
	app.pool.Shutdown()
	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err)
	}
}
