package services

import (
	"context"
	"database/sql"
	"fmt"

	"sharefile/internal/common"
	"sharefile/internal/dbx"
	"sharefile/internal/logging"
	"sharefile/internal/server/chunkstore"
	"sharefile/internal/server/models"
	"sharefile/internal/server/objectstore"
	"sharefile/internal/server/repositories/repomanager"
)

// FilesService exposes read and delete operations over stored files, plus
// the optional object-storage offload URL for ready files.
type FilesService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	store       *chunkstore.Store
	presigner   *objectstore.Client
	logger      logging.Logger
}

// NewFilesService constructs a FilesService.
func NewFilesService(db *sql.DB, m repomanager.RepositoryManager, store *chunkstore.Store, presigner *objectstore.Client, logger logging.Logger) *FilesService {
	return &FilesService{
		db:          db,
		repomanager: m,
		store:       store,
		presigner:   presigner,
		logger:      logger,
	}
}

// GetFile returns one stored file by id.
func (s *FilesService) GetFile(ctx context.Context, id string) (*models.StoredFile, error) {
	return s.repomanager.Files(s.db).GetByID(ctx, id)
}

// ListFiles returns files for one owner, or all files when ownerID is empty
// (admin listing).
func (s *FilesService) ListFiles(ctx context.Context, ownerID string) ([]*models.StoredFile, error) {
	if ownerID == "" {
		return s.repomanager.Files(s.db).List(ctx)
	}
	return s.repomanager.Files(s.db).ListByOwner(ctx, ownerID)
}

// DeleteFile removes the file record, its links and its blob, and releases
// the owner's quota. Only ready files ever contributed to used bytes, so
// only those are decremented.
func (s *FilesService) DeleteFile(ctx context.Context, id string) error {
	file, err := s.repomanager.Files(s.db).GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("error loading file: %w", err)
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Links(tx).DeleteByFile(ctx, id); err != nil {
			return err
		}
		if err := s.repomanager.Files(tx).Delete(ctx, id); err != nil {
			return err
		}
		if file.Status == models.FileStatusReady {
			if _, err := s.repomanager.Users(tx).IncrementUsedBytes(ctx, file.OwnerID, -file.Size); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("error deleting file: %w", err)
	}

	if err := s.store.RemoveFinal(id); err != nil {
		s.logger.Warn(ctx, "error removing blob", "file_id", id, "error", err)
	}
	if file.SessionID != nil {
		if err := s.store.CleanupSession(*file.SessionID); err != nil {
			s.logger.Warn(ctx, "error cleaning up session chunks", "session_id", *file.SessionID, "error", err)
		}
	}
	return nil
}

// OffloadURL returns a presigned object-storage GET URL for a ready file.
// Returns ErrUnprocessable when offload is not configured.
func (s *FilesService) OffloadURL(ctx context.Context, id string) (string, error) {
	if !s.presigner.Enabled() {
		return "", common.ErrUnprocessable
	}

	file, err := s.repomanager.Files(s.db).GetByID(ctx, id)
	if err != nil {
		return "", fmt.Errorf("error loading file: %w", err)
	}
	if file.Status != models.FileStatusReady {
		return "", common.ErrFileNotReady
	}

	return s.presigner.PresignGetURL(ctx, id)
}
