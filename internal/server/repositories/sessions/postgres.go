package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"sharefile/internal/common"
	"sharefile/internal/dbx"
	"sharefile/internal/server/models"
)

// PostgresRepository implements upload-session storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, session *models.UploadSession) (*models.UploadSession, error) {
	query := `
		INSERT INTO upload_sessions
			(id, owner_id, filename, size, mime_type, chunk_size, total_chunks, file_sha256, status, upload_path, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		session.ID, session.OwnerID, session.Filename, session.Size, session.MimeType,
		session.ChunkSize, session.TotalChunks, session.FileSHA256, session.Status,
		session.UploadPath, session.ExpiresAt).
		Scan(&session.CreatedAt, &session.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return session, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.UploadSession, error) {
	query := `
		SELECT id, owner_id, filename, size, mime_type, chunk_size, total_chunks, file_sha256,
			status, upload_path, expires_at, created_at, updated_at, finalized_at
		FROM upload_sessions WHERE id = $1
	`
	session := &models.UploadSession{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&session.ID, &session.OwnerID, &session.Filename, &session.Size, &session.MimeType,
		&session.ChunkSize, &session.TotalChunks, &session.FileSHA256, &session.Status,
		&session.UploadPath, &session.ExpiresAt, &session.CreatedAt, &session.UpdatedAt,
		&session.FinalizedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return session, nil
}

// UpdateStatus performs a guarded transition: the row is updated only when
// its current status is one of from. Zero rows affected means the session is
// missing or in a state that does not permit the transition.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, id string, from []models.UploadStatus, to models.UploadStatus) error {
	placeholders := make([]string, len(from))
	args := []any{id, to}
	for i, s := range from {
		placeholders[i] = fmt.Sprintf("$%d", i+3)
		args = append(args, s)
	}
	query := fmt.Sprintf(`
		UPDATE upload_sessions SET status = $2, updated_at = now()
		WHERE id = $1 AND status IN (%s)
	`, strings.Join(placeholders, ", "))

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n != 1 {
		return common.ErrSessionState
	}
	return nil
}

// MarkFinalized records a terminal status together with the finalized
// timestamp. Guarded: only a session still in flight can reach a terminal
// state, so a stale or redelivered job can never overwrite an earlier
// outcome. Zero rows affected means the session is missing or already
// terminal.
func (r *PostgresRepository) MarkFinalized(ctx context.Context, id string, to models.UploadStatus) error {
	query := `
		UPDATE upload_sessions SET status = $2, updated_at = now(), finalized_at = now()
		WHERE id = $1 AND status IN ($3, $4)
	`
	res, err := r.db.ExecContext(ctx, query, id, to,
		models.UploadStatusUploading, models.UploadStatusFinalizing)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n != 1 {
		return common.ErrSessionState
	}
	return nil
}

func (r *PostgresRepository) ListExpired(ctx context.Context, status models.UploadStatus, limit int) ([]string, error) {
	query := `
		SELECT id FROM upload_sessions
		WHERE status = $1 AND expires_at < now()
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, status, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}
