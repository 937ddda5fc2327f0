package files

import (
	"context"

	"sharefile/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, file *models.StoredFile) (*models.StoredFile, error)
	GetByID(ctx context.Context, id string) (*models.StoredFile, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*models.StoredFile, error)
	List(ctx context.Context) ([]*models.StoredFile, error)
	// ListPending returns pending files still tied to a session, oldest
	// first, for workers polling finalize backlog.
	ListPending(ctx context.Context, limit int) ([]*models.StoredFile, error)
	UpdateStoragePath(ctx context.Context, id, storagePath string) error
	// PromoteReady moves a pending file to ready with its true merged size.
	// Returns false when the file was not pending, which callers use to
	// keep the quota increment idempotent under job redelivery.
	PromoteReady(ctx context.Context, id string, mergedSize int64) (bool, error)
	MarkError(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}
