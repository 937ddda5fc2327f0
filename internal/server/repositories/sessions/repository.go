package sessions

import (
	"context"

	"sharefile/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, session *models.UploadSession) (*models.UploadSession, error)
	GetByID(ctx context.Context, id string) (*models.UploadSession, error)
	// UpdateStatus moves a session from one of the given statuses to the
	// target status. Returns ErrSessionState when the current status does
	// not permit the transition.
	UpdateStatus(ctx context.Context, id string, from []models.UploadStatus, to models.UploadStatus) error
	// MarkFinalized stamps the terminal timestamp together with the status.
	// Only an in-flight session (uploading or finalizing) can be finalized;
	// otherwise ErrSessionState is returned.
	MarkFinalized(ctx context.Context, id string, to models.UploadStatus) error
	// ListExpired returns ids of sessions past their expiry still in the
	// given status.
	ListExpired(ctx context.Context, status models.UploadStatus, limit int) ([]string, error)
}
