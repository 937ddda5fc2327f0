// Package worker runs the standalone finalize worker: it polls the database
// for pending files still tied to a session and finalizes them. Besides
// scaling the merge/verify work out of the server process, the poll also
// recovers jobs that were lost from an in-process queue on restart.
package worker

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sharefile/internal/logging"
	"sharefile/internal/server/chunkstore"
	"sharefile/internal/server/config"
	"sharefile/internal/server/objectstore"
	"sharefile/internal/server/queue"
	"sharefile/internal/server/repositories/repomanager"
	"sharefile/internal/server/services"
)

const (
	pollInterval = 15 * time.Second
	pollBatch    = 50
)

// App owns the worker process resources.
type App struct {
	config      *config.Config
	logger      logging.Logger
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	finalizer   queue.Finalizer
}

// NewApp opens the database and wires the finalize service. Migrations run
// here too so the worker can start before the server on a fresh database.
func NewApp(cfg *config.Config, logger logging.Logger) (*App, error) {
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

	return &App{
		config:      cfg,
		logger:      logger,
		db:          db,
		repomanager: rm,
		finalizer:   services.NewFinalizeService(db, rm, store, objectstore.New(cfg), logger),
	}, nil
}

// Run polls for backlog until the context is cancelled or a termination
// signal arrives.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		<-sigs
		cancelFunc()
	}()

	app.logger.Info(ctx, "starting finalize worker", "poll_interval", pollInterval.String())

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := app.db.Close(); err != nil {
				app.logger.Error(ctx, "db close error", "error", err)
			}
			return
		case <-ticker.C:
			if err := app.DrainOnce(ctx); err != nil {
				app.logger.Error(ctx, "finalize poll failed", "error", err)
			}
		}
	}
}

// DrainOnce finalizes one batch of pending files.
func (app *App) DrainOnce(ctx context.Context) error {
	pending, err := app.repomanager.Files(app.db).ListPending(ctx, pollBatch)
	if err != nil {
		return fmt.Errorf("error listing pending files: %w", err)
	}

	for _, file := range pending {
		if file.SessionID == nil {
			continue
		}
		if err := app.finalizer.Finalize(ctx, *file.SessionID, file.ID); err != nil {
			app.logger.Error(ctx, "finalize failed",
				"session_id", *file.SessionID, "file_id", file.ID, "error", err)
		}
	}
	return nil
}
