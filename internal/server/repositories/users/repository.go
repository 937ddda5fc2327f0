package users

import (
	"context"

	"sharefile/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	SetAdmin(ctx context.Context, id string, passwordHash string) error
	// IncrementUsedBytes adjusts the running byte total by delta, clamped
	// at zero, and returns the new value.
	IncrementUsedBytes(ctx context.Context, id string, delta int64) (int64, error)
}
