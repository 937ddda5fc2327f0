package chunks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"sharefile/internal/common"
	"sharefile/internal/dbx"
	"sharefile/internal/server/models"
)

// PostgresRepository implements chunk bookkeeping over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Insert records a chunk. Concurrent inserts of the same (session, index)
// are resolved by ON CONFLICT DO NOTHING: the loser gets inserted=false and
// re-checks the surviving row instead of erroring the client.
func (r *PostgresRepository) Insert(ctx context.Context, chunk *models.UploadChunk) (bool, error) {
	query := `
		INSERT INTO upload_chunks (session_id, index, checksum, size, stored_path)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id, index) DO NOTHING
	`
	res, err := r.db.ExecContext(ctx, query,
		chunk.SessionID, chunk.Index, chunk.Checksum, chunk.Size, chunk.StoredPath)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	return n == 1, nil
}

func (r *PostgresRepository) Get(ctx context.Context, sessionID string, index int) (*models.UploadChunk, error) {
	query := `
		SELECT session_id, index, checksum, size, stored_path, received_at
		FROM upload_chunks WHERE session_id = $1 AND index = $2
	`
	chunk := &models.UploadChunk{}
	err := r.db.QueryRowContext(ctx, query, sessionID, index).Scan(
		&chunk.SessionID, &chunk.Index, &chunk.Checksum, &chunk.Size, &chunk.StoredPath, &chunk.ReceivedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return chunk, nil
}

func (r *PostgresRepository) ListIndexes(ctx context.Context, sessionID string) ([]int, error) {
	query := `
		SELECT index FROM upload_chunks
		WHERE session_id = $1
		ORDER BY index
	`
	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var indexes []int
	for rows.Next() {
		var index int
		if err := rows.Scan(&index); err != nil {
			return nil, err
		}
		indexes = append(indexes, index)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return indexes, nil
}
