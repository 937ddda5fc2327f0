package repomanager

import (
	"context"
	"database/sql"

	"sharefile/internal/dbx"
	"sharefile/internal/server/repositories/chunks"
	"sharefile/internal/server/repositories/files"
	"sharefile/internal/server/repositories/links"
	"sharefile/internal/server/repositories/sessions"
	"sharefile/internal/server/repositories/users"
)

// RepositoryManager vends repository implementations bound to a DBTX, so
// services can run several repositories inside one transaction by handing
// them the same *sql.Tx.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Sessions(db dbx.DBTX) sessions.Repository
	Chunks(db dbx.DBTX) chunks.Repository
	Files(db dbx.DBTX) files.Repository
	Links(db dbx.DBTX) links.Repository
}
