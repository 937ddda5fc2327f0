package cli

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"

	"sharefile/internal/logging"
	"sharefile/internal/server/config"
	"sharefile/internal/server/repositories/repomanager"
	"sharefile/internal/server/services"
)

// App is the admin bootstrap tool.
type App struct {
	config *config.Config
	users  *services.UserService
	db     *sql.DB
	reader *bufio.Reader
	out    io.Writer
}

// NewApp opens the database, runs migrations and prepares the user service.
func NewApp(cfg *config.Config) (*App, error) {
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(context.Background(), db); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	return &App{
		config: cfg,
		users:  services.NewUserService(db, rm, logger),
		db:     db,
		reader: bufio.NewReader(os.Stdin),
		out:    os.Stdout,
	}, nil
}

// Run prompts for admin credentials and ensures the account exists.
func (a *App) Run(ctx context.Context) error {
	defer a.db.Close()

	email, err := GetSimpleText(a.reader, "Admin email", a.out)
	if err != nil {
		return err
	}
	password, err := GetPassword(a.out)
	if err != nil {
		return err
	}

	admin, err := a.users.EnsureAdmin(ctx, email, string(password))
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Admin %s is ready (id %s)\n", admin.Email, admin.ID)
	return nil
}
