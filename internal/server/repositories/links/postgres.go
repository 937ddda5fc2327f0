package links

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"sharefile/internal/common"
	"sharefile/internal/dbx"
	"sharefile/internal/server/models"
)

const linkColumns = `id, file_id, token, expires_at, one_time, download_count, password_hash, is_enabled, require_page, short_code, created_at`

// PostgresRepository implements download-link storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, link *models.DownloadLink) (*models.DownloadLink, error) {
	query := `
		INSERT INTO download_links
			(id, file_id, token, expires_at, one_time, download_count, password_hash, is_enabled, require_page, short_code)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		link.ID, link.FileID, link.Token, link.ExpiresAt, link.OneTime, link.DownloadCount,
		link.PasswordHash, link.IsEnabled, link.RequirePage, link.ShortCode).
		Scan(&link.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return link, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *PostgresRepository) scan(row rowScanner, link *models.DownloadLink) error {
	return row.Scan(&link.ID, &link.FileID, &link.Token, &link.ExpiresAt, &link.OneTime,
		&link.DownloadCount, &link.PasswordHash, &link.IsEnabled, &link.RequirePage,
		&link.ShortCode, &link.CreatedAt)
}

func (r *PostgresRepository) getOne(ctx context.Context, where string, arg any) (*models.DownloadLink, error) {
	query := `SELECT ` + linkColumns + ` FROM download_links WHERE ` + where
	link := &models.DownloadLink{}
	if err := r.scan(r.db.QueryRowContext(ctx, query, arg), link); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return link, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.DownloadLink, error) {
	return r.getOne(ctx, `id = $1`, id)
}

func (r *PostgresRepository) GetByToken(ctx context.Context, token string) (*models.DownloadLink, error) {
	return r.getOne(ctx, `token = $1`, token)
}

func (r *PostgresRepository) GetByShortCode(ctx context.Context, shortCode string) (*models.DownloadLink, error) {
	return r.getOne(ctx, `short_code = $1`, shortCode)
}

func (r *PostgresRepository) ShortCodeExists(ctx context.Context, shortCode string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM download_links WHERE short_code = $1)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, shortCode).Scan(&exists); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}

func (r *PostgresRepository) ListByFile(ctx context.Context, fileID string) ([]*models.DownloadLink, error) {
	query := `SELECT ` + linkColumns + ` FROM download_links WHERE file_id = $1 ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query, fileID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.DownloadLink
	for rows.Next() {
		link := &models.DownloadLink{}
		if err := r.scan(rows, link); err != nil {
			return nil, err
		}
		result = append(result, link)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Consume is the single atomic statement behind one-time semantics: the
// exhaustion/disable check and the counter increment happen in one guarded
// UPDATE, so concurrent consumers race on the row lock and exactly one wins.
func (r *PostgresRepository) Consume(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE download_links
		SET download_count = download_count + 1,
			is_enabled = CASE WHEN one_time THEN FALSE ELSE is_enabled END
		WHERE id = $1 AND is_enabled AND (NOT one_time OR download_count = 0)
	`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	return n == 1, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM download_links WHERE id = $1`
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

func (r *PostgresRepository) DeleteByFile(ctx context.Context, fileID string) error {
	query := `DELETE FROM download_links WHERE file_id = $1`
	if _, err := r.db.ExecContext(ctx, query, fileID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
