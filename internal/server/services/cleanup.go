package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"sharefile/internal/logging"
	"sharefile/internal/server/chunkstore"
	"sharefile/internal/server/models"
	"sharefile/internal/server/repositories/repomanager"
)

const expiredSweepBatch = 100

// CleanupService expires stale upload sessions in the background and
// reclaims their temporary chunk storage.
type CleanupService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	store       *chunkstore.Store
	interval    time.Duration
	logger      logging.Logger
}

// NewCleanupService constructs a CleanupService sweeping every interval.
func NewCleanupService(db *sql.DB, m repomanager.RepositoryManager, store *chunkstore.Store, interval time.Duration, logger logging.Logger) *CleanupService {
	return &CleanupService{
		db:          db,
		repomanager: m,
		store:       store,
		interval:    interval,
		logger:      logger,
	}
}

// Run sweeps on a ticker until the context is cancelled.
func (s *CleanupService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.SweepOnce(ctx); err != nil {
				s.logger.Error(ctx, "expired-session sweep failed", "error", err)
			}
		}
	}
}

// SweepOnce expires one batch of overdue uploading sessions. Each session is
// moved to expired with the usual status guard, so a session that finished
// finalizing between the listing and the update is left alone.
func (s *CleanupService) SweepOnce(ctx context.Context) error {
	ids, err := s.repomanager.Sessions(s.db).ListExpired(ctx, models.UploadStatusUploading, expiredSweepBatch)
	if err != nil {
		return fmt.Errorf("error listing expired sessions: %w", err)
	}

	for _, id := range ids {
		err := s.repomanager.Sessions(s.db).UpdateStatus(ctx, id,
			[]models.UploadStatus{models.UploadStatusUploading},
			models.UploadStatusExpired)
		if err != nil {
			s.logger.Warn(ctx, "error expiring session", "session_id", id, "error", err)
			continue
		}
		if err := s.store.CleanupSession(id); err != nil {
			s.logger.Warn(ctx, "error cleaning up session chunks", "session_id", id, "error", err)
		}
		s.logger.Info(ctx, "session expired", "session_id", id)
	}
	return nil
}
