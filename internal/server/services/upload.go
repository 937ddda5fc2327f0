// Package services contains server-side business logic. This file implements
// UploadService, which manages resumable upload sessions: creating them,
// admitting chunks idempotently, reporting progress, and handing completed
// sessions off to the finalize queue.
package services

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"sharefile/internal/common"
	"sharefile/internal/server/chunkstore"
	sc "sharefile/internal/server/config"
	"sharefile/internal/server/models"
	"sharefile/internal/server/queue"
	"sharefile/internal/server/repositories/repomanager"
)

// UploadService manages the upload-session lifecycle up to the point where
// a finalize job is enqueued. The heavy merge/verify work belongs to
// FinalizeService.
type UploadService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	store       *chunkstore.Store
	queue       queue.Submitter
	config      *sc.Config
}

// NewUploadService constructs an UploadService using repositories, the chunk
// store and the finalize queue.
func NewUploadService(db *sql.DB, m repomanager.RepositoryManager, store *chunkstore.Store, q queue.Submitter, cfg *sc.Config) *UploadService {
	return &UploadService{
		db:          db,
		repomanager: m,
		store:       store,
		queue:       q,
		config:      cfg,
	}
}

// SessionProgress describes which chunk indexes have arrived so far.
type SessionProgress struct {
	Status   models.UploadStatus
	Received []int
	Missing  []int
}

// CreateSession opens a new upload session for the declared file.
//
// The chunk size is client-proposed: zero means "use the server default",
// anything above the configured maximum is rejected. The quota pre-check is
// fail-closed against the declared size; the authoritative check happens
// again at finalize time against the merged byte count.
func (s *UploadService) CreateSession(ctx context.Context, ownerID, filename, mimeType string, size int64, chunkSize int64, totalChunks int, fileSHA256 string) (*models.UploadSession, error) {
	if filename == "" || fileSHA256 == "" {
		return nil, common.ErrUnprocessable
	}
	if size < 0 || totalChunks <= 0 {
		return nil, common.ErrUnprocessable
	}
	if chunkSize == 0 {
		chunkSize = s.config.DefaultChunkSize
	}
	if chunkSize < 0 || chunkSize > s.config.MaxChunkSize {
		return nil, common.ErrUnprocessable
	}

	owner, err := s.repomanager.Users(s.db).GetByID(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("error loading owner: %w", err)
	}
	if !owner.WithinQuota(size) {
		return nil, common.ErrQuotaExceeded
	}

	id := uuid.New().String()
	now := time.Now()

	session := &models.UploadSession{
		ID:          id,
		OwnerID:     ownerID,
		Filename:    filename,
		Size:        size,
		MimeType:    mimeType,
		ChunkSize:   chunkSize,
		TotalChunks: totalChunks,
		FileSHA256:  strings.ToLower(fileSHA256),
		Status:      models.UploadStatusUploading,
		UploadPath:  s.store.SessionDir(id),
		ExpiresAt:   now.Add(s.config.SessionTTL),
	}

	created, err := s.repomanager.Sessions(s.db).Create(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("error creating session: %w", err)
	}
	return created, nil
}

// PutChunk admits one chunk into the session.
//
// Re-submitting an index with identical bytes is a no-op returning the
// stored record; re-submitting with different bytes is ErrChecksumConflict.
// When declaredChecksum or declaredSize are supplied they must match the
// received payload, so a corrupted transfer is rejected before anything is
// recorded.
func (s *UploadService) PutChunk(ctx context.Context, sessionID string, index int, data []byte, declaredChecksum string, declaredSize int64) (*models.UploadChunk, error) {
	session, err := s.repomanager.Sessions(s.db).GetByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("error loading session: %w", err)
	}
	if session.Status != models.UploadStatusInit && session.Status != models.UploadStatusUploading {
		return nil, common.ErrSessionState
	}
	if time.Now().After(session.ExpiresAt) {
		return nil, common.ErrSessionState
	}

	if index < 0 || index >= session.TotalChunks {
		return nil, common.ErrInvalidIndex
	}
	if len(data) == 0 {
		return nil, common.ErrEmptyChunk
	}
	if int64(len(data)) > s.config.MaxChunkSize {
		return nil, common.ErrChunkTooLarge
	}
	if declaredSize > 0 && declaredSize != int64(len(data)) {
		return nil, common.ErrChunkSizeMismatch
	}

	sum := sha256.Sum256(data)
	checksum := hex.EncodeToString(sum[:])
	if declaredChecksum != "" && !strings.EqualFold(declaredChecksum, checksum) {
		return nil, common.ErrDigestMismatch
	}

	path, err := s.store.WriteChunk(ctx, sessionID, index, data)
	if err != nil {
		return nil, fmt.Errorf("error writing chunk: %w", err)
	}

	return s.recordChunk(ctx, &models.UploadChunk{
		SessionID:  sessionID,
		Index:      index,
		Checksum:   checksum,
		Size:       int64(len(data)),
		StoredPath: path,
	})
}

// recordChunk inserts the chunk row, resolving the duplicate-index case.
// Insert never updates an existing row, so two concurrent writers of the
// same index race on a single insert and the loser re-reads the winner.
func (s *UploadService) recordChunk(ctx context.Context, chunk *models.UploadChunk) (*models.UploadChunk, error) {
	repo := s.repomanager.Chunks(s.db)

	inserted, err := repo.Insert(ctx, chunk)
	if err != nil {
		return nil, fmt.Errorf("error recording chunk: %w", err)
	}
	if inserted {
		return chunk, nil
	}

	existing, err := repo.Get(ctx, chunk.SessionID, chunk.Index)
	if err != nil {
		return nil, fmt.Errorf("error reading existing chunk: %w", err)
	}
	if !strings.EqualFold(existing.Checksum, chunk.Checksum) {
		return nil, common.ErrChecksumConflict
	}
	return existing, nil
}

// SessionStatus reports received and missing chunk indexes for a session.
func (s *UploadService) SessionStatus(ctx context.Context, sessionID string) (*SessionProgress, error) {
	session, err := s.repomanager.Sessions(s.db).GetByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("error loading session: %w", err)
	}

	received, err := s.repomanager.Chunks(s.db).ListIndexes(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("error listing chunks: %w", err)
	}

	return &SessionProgress{
		Status:   session.Status,
		Received: received,
		Missing:  missingIndexes(received, session.TotalChunks),
	}, nil
}

// missingIndexes returns the complement of received within [0, total).
// Received is assumed sorted ascending, which the repository guarantees.
func missingIndexes(received []int, total int) []int {
	missing := []int{}
	next := 0
	for i := 0; i < total; i++ {
		if next < len(received) && received[next] == i {
			next++
			continue
		}
		missing = append(missing, i)
	}
	return missing
}

// RequestFinalize checks completeness and the declared digest, moves the
// session to finalizing, creates the pending file record and enqueues the
// finalize job. The returned file stays pending until the worker promotes
// it.
//
// Calling finalize again while a previous job is still in flight is
// allowed (the session is already finalizing); the worker's pending-only
// promotion guard keeps the outcome single-shot.
func (s *UploadService) RequestFinalize(ctx context.Context, sessionID string, declaredDigest string) (*models.StoredFile, error) {
	session, err := s.repomanager.Sessions(s.db).GetByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("error loading session: %w", err)
	}
	if session.Status != models.UploadStatusUploading && session.Status != models.UploadStatusFinalizing {
		return nil, common.ErrSessionState
	}

	if declaredDigest != "" && !strings.EqualFold(declaredDigest, session.FileSHA256) {
		return nil, common.ErrDigestMismatch
	}

	received, err := s.repomanager.Chunks(s.db).ListIndexes(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("error listing chunks: %w", err)
	}
	if len(missingIndexes(received, session.TotalChunks)) > 0 {
		return nil, common.ErrIncompleteUpload
	}

	err = s.repomanager.Sessions(s.db).UpdateStatus(ctx, sessionID,
		[]models.UploadStatus{models.UploadStatusUploading, models.UploadStatusFinalizing},
		models.UploadStatusFinalizing)
	if err != nil {
		return nil, fmt.Errorf("error updating session status: %w", err)
	}

	fileID := uuid.New().String()
	file := &models.StoredFile{
		ID:          fileID,
		SessionID:   &session.ID,
		OwnerID:     session.OwnerID,
		Filename:    session.Filename,
		Size:        session.Size,
		MimeType:    session.MimeType,
		SHA256:      session.FileSHA256,
		StoragePath: s.store.FinalPath(fileID),
		Status:      models.FileStatusPending,
	}

	created, err := s.repomanager.Files(s.db).Create(ctx, file)
	if err != nil {
		return nil, fmt.Errorf("error creating file record: %w", err)
	}

	if err := s.queue.Submit(ctx, sessionID, fileID); err != nil {
		return nil, fmt.Errorf("error submitting finalize job: %w", err)
	}

	return created, nil
}
