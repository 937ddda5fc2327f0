package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"sharefile/internal/common"
	"sharefile/internal/dbx"
	"sharefile/internal/server/models"
)

// PostgresRepository implements principal storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	query := `
		INSERT INTO users (id, email, password_hash, is_admin, is_active, quota_bytes, used_bytes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		user.ID, user.Email, user.PasswordHash, user.IsAdmin, user.IsActive, user.QuotaBytes, user.UsedBytes).
		Scan(&user.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return user, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `
		SELECT id, email, password_hash, is_admin, is_active, quota_bytes, used_bytes, created_at
		FROM users WHERE id = $1
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `
		SELECT id, email, password_hash, is_admin, is_active, quota_bytes, used_bytes, created_at
		FROM users WHERE email = $1
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, email))
}

func (r *PostgresRepository) scanOne(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &user.IsAdmin, &user.IsActive,
		&user.QuotaBytes, &user.UsedBytes, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return user, nil
}

// SetAdmin promotes an existing user to an active admin, replacing the
// password hash when one is supplied.
func (r *PostgresRepository) SetAdmin(ctx context.Context, id string, passwordHash string) error {
	query := `
		UPDATE users SET is_admin = TRUE, is_active = TRUE,
			password_hash = CASE WHEN $2 <> '' THEN $2 ELSE password_hash END
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query, id, passwordHash)
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

// IncrementUsedBytes applies delta to the running byte total. The total is
// clamped at zero so decrements past the floor never produce a negative
// value.
func (r *PostgresRepository) IncrementUsedBytes(ctx context.Context, id string, delta int64) (int64, error) {
	query := `
		UPDATE users SET used_bytes = GREATEST(0, used_bytes + $2)
		WHERE id = $1
		RETURNING used_bytes
	`
	var used int64
	err := r.db.QueryRowContext(ctx, query, id, delta).Scan(&used)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, common.ErrorNotFound
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	return used, nil
}
