package links

import (
	"context"

	"sharefile/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, link *models.DownloadLink) (*models.DownloadLink, error)
	GetByID(ctx context.Context, id string) (*models.DownloadLink, error)
	GetByToken(ctx context.Context, token string) (*models.DownloadLink, error)
	GetByShortCode(ctx context.Context, shortCode string) (*models.DownloadLink, error)
	ShortCodeExists(ctx context.Context, shortCode string) (bool, error)
	ListByFile(ctx context.Context, fileID string) ([]*models.DownloadLink, error)
	// Consume atomically checks the exhaustion/disable condition and
	// increments the download counter (disabling one-time links). Returns
	// false when the link was already consumed or disabled, so two
	// simultaneous requests against a one-time link cannot both succeed.
	Consume(ctx context.Context, id string) (bool, error)
	Delete(ctx context.Context, id string) error
	DeleteByFile(ctx context.Context, fileID string) error
}
