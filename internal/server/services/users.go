package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"sharefile/internal/common"
	"sharefile/internal/logging"
	"sharefile/internal/server/models"
	"sharefile/internal/server/repositories/repomanager"
)

// UserService manages owning principals. ShareFile treats callers as opaque
// principals; this service only provides account bookkeeping for the CLI
// and the quota accounting.
type UserService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	logger      logging.Logger
}

// NewUserService constructs a UserService.
func NewUserService(db *sql.DB, m repomanager.RepositoryManager, logger logging.Logger) *UserService {
	return &UserService{
		db:          db,
		repomanager: m,
		logger:      logger,
	}
}

// GetUser returns one user by id.
func (s *UserService) GetUser(ctx context.Context, id string) (*models.User, error) {
	return s.repomanager.Users(s.db).GetByID(ctx, id)
}

// CreateUser registers a new user. quotaBytes nil means unlimited.
func (s *UserService) CreateUser(ctx context.Context, email, password string, isAdmin bool, quotaBytes *int64) (*models.User, error) {
	if email == "" || password == "" {
		return nil, common.ErrUnprocessable
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("error hashing password: %w", err)
	}

	user := &models.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: string(hash),
		IsAdmin:      isAdmin,
		IsActive:     true,
		QuotaBytes:   quotaBytes,
	}

	created, err := s.repomanager.Users(s.db).Create(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("error creating user: %w", err)
	}
	return created, nil
}

// EnsureAdmin guarantees an active admin account with the given credentials
// exists: missing accounts are created, existing ones are promoted with a
// fresh password hash. Used by the CLI bootstrap.
func (s *UserService) EnsureAdmin(ctx context.Context, email, password string) (*models.User, error) {
	existing, err := s.repomanager.Users(s.db).GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.logger.Info(ctx, "creating admin user", "email", email)
			return s.CreateUser(ctx, email, password, true, nil)
		}
		return nil, fmt.Errorf("error loading user: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("error hashing password: %w", err)
	}
	if err := s.repomanager.Users(s.db).SetAdmin(ctx, existing.ID, string(hash)); err != nil {
		return nil, fmt.Errorf("error promoting user: %w", err)
	}

	existing.IsAdmin = true
	existing.PasswordHash = string(hash)
	return existing, nil
}
