package files

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"sharefile/internal/common"
	"sharefile/internal/dbx"
	"sharefile/internal/server/models"
)

const fileColumns = `id, session_id, owner_id, filename, size, mime_type, sha256, storage_path, status, created_at, completed_at`

// PostgresRepository implements stored-file metadata over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, file *models.StoredFile) (*models.StoredFile, error) {
	query := `
		INSERT INTO stored_files (id, session_id, owner_id, filename, size, mime_type, sha256, storage_path, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		file.ID, file.SessionID, file.OwnerID, file.Filename, file.Size, file.MimeType,
		file.SHA256, file.StoragePath, file.Status).
		Scan(&file.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return file, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.StoredFile, error) {
	query := `SELECT ` + fileColumns + ` FROM stored_files WHERE id = $1`

	file := &models.StoredFile{}
	err := r.scan(r.db.QueryRowContext(ctx, query, id), file)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return file, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *PostgresRepository) scan(row rowScanner, file *models.StoredFile) error {
	return row.Scan(&file.ID, &file.SessionID, &file.OwnerID, &file.Filename, &file.Size,
		&file.MimeType, &file.SHA256, &file.StoragePath, &file.Status, &file.CreatedAt,
		&file.CompletedAt)
}

func (r *PostgresRepository) ListByOwner(ctx context.Context, ownerID string) ([]*models.StoredFile, error) {
	query := `SELECT ` + fileColumns + ` FROM stored_files WHERE owner_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return r.collect(rows)
}

func (r *PostgresRepository) List(ctx context.Context) ([]*models.StoredFile, error) {
	query := `SELECT ` + fileColumns + ` FROM stored_files ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return r.collect(rows)
}

func (r *PostgresRepository) collect(rows *sql.Rows) ([]*models.StoredFile, error) {
	defer rows.Close()

	var result []*models.StoredFile
	for rows.Next() {
		file := &models.StoredFile{}
		if err := r.scan(rows, file); err != nil {
			return nil, err
		}
		result = append(result, file)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// ListPending returns pending files that still reference their session,
// oldest first. The standalone worker polls this to pick up finalize work
// that never reached (or was dropped from) an in-process queue.
func (r *PostgresRepository) ListPending(ctx context.Context, limit int) ([]*models.StoredFile, error) {
	query := `SELECT ` + fileColumns + ` FROM stored_files WHERE status = $1 AND session_id IS NOT NULL ORDER BY created_at LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, models.FileStatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return r.collect(rows)
}

func (r *PostgresRepository) UpdateStoragePath(ctx context.Context, id, storagePath string) error {
	query := `UPDATE stored_files SET storage_path = $2 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, storagePath)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n != 1 {
		return common.ErrorNotFound
	}
	return nil
}

// PromoteReady flips a pending file to ready, recording the true merged
// size and completion time. The status guard makes redelivered finalize
// jobs a no-op: false means the file had already left pending.
func (r *PostgresRepository) PromoteReady(ctx context.Context, id string, mergedSize int64) (bool, error) {
	query := `
		UPDATE stored_files SET status = $2, size = $3, completed_at = now()
		WHERE id = $1 AND status = $4
	`
	res, err := r.db.ExecContext(ctx, query, id, models.FileStatusReady, mergedSize, models.FileStatusPending)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	return n == 1, nil
}

func (r *PostgresRepository) MarkError(ctx context.Context, id string) error {
	query := `UPDATE stored_files SET status = $2 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, models.FileStatusError)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n != 1 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM stored_files WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n != 1 {
		return common.ErrorNotFound
	}
	return nil
}
