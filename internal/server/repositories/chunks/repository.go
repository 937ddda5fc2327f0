package chunks

import (
	"context"

	"sharefile/internal/server/models"
)

type Repository interface {
	// Insert records a chunk, returning false without error when a row for
	// (session, index) already exists. Rows are never updated.
	Insert(ctx context.Context, chunk *models.UploadChunk) (bool, error)
	Get(ctx context.Context, sessionID string, index int) (*models.UploadChunk, error)
	// ListIndexes returns the distinct received indexes in ascending order.
	ListIndexes(ctx context.Context, sessionID string) ([]int, error)
}
