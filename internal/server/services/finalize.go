package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"sharefile/internal/common"
	"sharefile/internal/dbx"
	"sharefile/internal/logging"
	"sharefile/internal/server/chunkstore"
	"sharefile/internal/server/models"
	"sharefile/internal/server/repositories/repomanager"
)

// BlobMirror pushes ready blobs to an optional object-storage backend so
// presigned offload URLs resolve. A disabled mirror is a no-op.
type BlobMirror interface {
	Enabled() bool
	Mirror(ctx context.Context, fileID string, body io.Reader) error
}

// FinalizeService performs the out-of-band finalize work: merge chunks into
// the final blob, verify the digest, re-check the quota against the true
// merged size and promote the file to ready.
//
// Finalize jobs are delivered at least once, so every step is idempotent:
// the merge rewrites the target from scratch, the promotion is guarded on
// the file still being pending (which also keeps the quota increment
// single-shot), and terminal session transitions are guarded so a stale job
// can never overwrite an earlier outcome.
type FinalizeService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	store       *chunkstore.Store
	mirror      BlobMirror
	logger      logging.Logger
}

// NewFinalizeService constructs a FinalizeService.
func NewFinalizeService(db *sql.DB, m repomanager.RepositoryManager, store *chunkstore.Store, mirror BlobMirror, logger logging.Logger) *FinalizeService {
	return &FinalizeService{
		db:          db,
		repomanager: m,
		store:       store,
		mirror:      mirror,
		logger:      logger,
	}
}

// Finalize processes one finalize job.
//
// Integrity failures (missing chunks, digest mismatch, quota exceeded) are
// terminal: the file is marked error, the session failed, and nil is
// returned because redelivery cannot help. Transient failures (database or
// filesystem errors) return an error and leave the records untouched so a
// redelivered job can retry.
func (s *FinalizeService) Finalize(ctx context.Context, sessionID, fileID string) error {
	session, err := s.repomanager.Sessions(s.db).GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.logger.Warn(ctx, "finalize job for unknown session", "session_id", sessionID)
			return nil
		}
		return fmt.Errorf("error loading session: %w", err)
	}

	owner, err := s.repomanager.Users(s.db).GetByID(ctx, session.OwnerID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.logger.Error(ctx, "finalize job for unknown owner",
				"session_id", sessionID, "owner_id", session.OwnerID)
			return nil
		}
		return fmt.Errorf("error loading owner: %w", err)
	}

	file, err := s.repomanager.Files(s.db).GetByID(ctx, fileID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.logger.Warn(ctx, "finalize job for unknown file", "file_id", fileID)
			return nil
		}
		return fmt.Errorf("error loading file: %w", err)
	}

	switch session.Status {
	case models.UploadStatusCompleted, models.UploadStatusExpired, models.UploadStatusFailed:
		// Redelivered or stale duplicate job: the session outcome stands. A
		// file row still pending here was created by a duplicate finalize
		// request and will never be promoted.
		if file.Status == models.FileStatusPending {
			s.logger.Warn(ctx, "dropping stale finalize job",
				"session_id", sessionID, "file_id", fileID, "session_status", session.Status)
			if err := s.repomanager.Files(s.db).MarkError(ctx, fileID); err != nil {
				return fmt.Errorf("error marking stale file: %w", err)
			}
		}
		return nil
	}

	received, err := s.repomanager.Chunks(s.db).ListIndexes(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("error listing chunks: %w", err)
	}
	if len(missingIndexes(received, session.TotalChunks)) > 0 {
		s.logger.Error(ctx, "finalize found incomplete session", "session_id", sessionID)
		return s.markFailed(ctx, session, file)
	}

	mergedSize, err := s.store.MergeChunks(ctx, sessionID, session.TotalChunks, file.StoragePath)
	if err != nil {
		if errors.Is(err, common.ErrMissingChunk) {
			s.logger.Error(ctx, "finalize missing chunk file", "session_id", sessionID, "error", err)
			return s.markFailed(ctx, session, file)
		}
		return fmt.Errorf("error merging chunks: %w", err)
	}

	digest, err := s.store.ComputeDigest(file.StoragePath)
	if err != nil {
		return fmt.Errorf("error computing digest: %w", err)
	}
	if !strings.EqualFold(digest, session.FileSHA256) {
		s.logger.Error(ctx, "finalize digest mismatch",
			"session_id", sessionID, "expected", session.FileSHA256, "actual", digest)
		s.removeFinal(ctx, fileID)
		return s.markFailed(ctx, session, file)
	}

	if !owner.WithinQuota(mergedSize) {
		s.logger.Error(ctx, "finalize quota exceeded",
			"session_id", sessionID, "owner_id", owner.ID, "merged_size", mergedSize)
		s.removeFinal(ctx, fileID)
		if err := s.markFailed(ctx, session, file); err != nil {
			return err
		}
		s.cleanupSession(ctx, sessionID)
		return nil
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		promoted, err := s.repomanager.Files(tx).PromoteReady(ctx, fileID, mergedSize)
		if err != nil {
			return err
		}
		if promoted {
			if _, err := s.repomanager.Users(tx).IncrementUsedBytes(ctx, owner.ID, mergedSize); err != nil {
				return err
			}
		}
		return s.repomanager.Sessions(tx).MarkFinalized(ctx, sessionID, models.UploadStatusCompleted)
	})
	if err != nil {
		return fmt.Errorf("error completing finalize: %w", err)
	}

	if s.mirror.Enabled() {
		if err := s.mirrorFinal(ctx, fileID, file.StoragePath); err != nil {
			s.logger.Warn(ctx, "error mirroring blob", "file_id", fileID, "error", err)
		}
	}

	s.cleanupSession(ctx, sessionID)

	s.logger.Info(ctx, "session finalized",
		"session_id", sessionID, "file_id", fileID, "size", mergedSize)
	return nil
}

// markFailed records the terminal failure state for both the file and the
// session in one transaction.
func (s *FinalizeService) markFailed(ctx context.Context, session *models.UploadSession, file *models.StoredFile) error {
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Files(tx).MarkError(ctx, file.ID); err != nil {
			return err
		}
		if err := s.repomanager.Sessions(tx).MarkFinalized(ctx, session.ID, models.UploadStatusFailed); err != nil {
			// Lost the race against another job's terminal transition; that
			// outcome stands, only this job's file stays errored.
			if errors.Is(err, common.ErrSessionState) {
				return nil
			}
			return err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("error marking session failed: %w", err)
	}
	return nil
}

// removeFinal discards a partially written or rejected final blob.
func (s *FinalizeService) removeFinal(ctx context.Context, fileID string) {
	if err := s.store.RemoveFinal(fileID); err != nil {
		s.logger.Warn(ctx, "error removing final blob", "file_id", fileID, "error", err)
	}
}

// cleanupSession discards the session's temp chunk area, best effort.
func (s *FinalizeService) cleanupSession(ctx context.Context, sessionID string) {
	if err := s.store.CleanupSession(sessionID); err != nil {
		s.logger.Warn(ctx, "error cleaning up session chunks", "session_id", sessionID, "error", err)
	}
}

func (s *FinalizeService) mirrorFinal(ctx context.Context, fileID, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return s.mirror.Mirror(ctx, fileID, f)
}
