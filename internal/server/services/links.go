package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"sharefile/internal/common"
	"sharefile/internal/server/auth"
	"sharefile/internal/server/chunkstore"
	sc "sharefile/internal/server/config"
	"sharefile/internal/server/models"
	"sharefile/internal/server/repositories/repomanager"
)

const (
	// unlimitedExpiryDelta is the far-future offset used to model "never
	// expires" while keeping expiry comparisons total-order.
	unlimitedExpiryDelta = 100 * 365 * 24 * time.Hour
	// unlimitedFlagThreshold is the creation-to-expiry gap above which a
	// link reports itself as never expiring.
	unlimitedFlagThreshold = 50 * 365 * 24 * time.Hour
)

// IssueLinkOptions carries the per-link policy chosen by the issuer.
// Exactly one of ExpiresAt / LifetimeMinutes / NoExpiry decides the expiry;
// when all are zero the configured default lifetime applies.
type IssueLinkOptions struct {
	ExpiresAt       *time.Time
	LifetimeMinutes int
	NoExpiry        bool
	OneTime         bool
	Password        string
	RequirePage     bool
	WithShortCode   bool
}

// LinkService issues download links for ready files and validates incoming
// download requests, consuming one-time links atomically.
type LinkService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	store       *chunkstore.Store
	config      *sc.Config
}

// NewLinkService constructs a LinkService.
func NewLinkService(db *sql.DB, m repomanager.RepositoryManager, store *chunkstore.Store, cfg *sc.Config) *LinkService {
	return &LinkService{
		db:          db,
		repomanager: m,
		store:       store,
		config:      cfg,
	}
}

// resolveExpiry turns the issuing options into a concrete instant.
func (s *LinkService) resolveExpiry(now time.Time, opts IssueLinkOptions) (time.Time, error) {
	if opts.NoExpiry {
		return now.Add(unlimitedExpiryDelta), nil
	}
	if opts.ExpiresAt != nil {
		if !opts.ExpiresAt.After(now) {
			return time.Time{}, common.ErrInvalidExpiry
		}
		if opts.ExpiresAt.After(now.Add(s.config.MaxLinkLifetime)) {
			return time.Time{}, common.ErrInvalidExpiry
		}
		return *opts.ExpiresAt, nil
	}

	lifetime := s.config.DefaultLinkLifetime
	if opts.LifetimeMinutes > 0 {
		lifetime = time.Duration(opts.LifetimeMinutes) * time.Minute
	}
	if lifetime > s.config.MaxLinkLifetime {
		return time.Time{}, common.ErrInvalidExpiry
	}
	return now.Add(lifetime), nil
}

// IssueLink creates a download link for a ready file.
//
// The bearer token is signed over the link and file identity; the short
// code, when requested, is retried until a free one is found.
func (s *LinkService) IssueLink(ctx context.Context, fileID string, opts IssueLinkOptions) (*models.DownloadLink, error) {
	file, err := s.repomanager.Files(s.db).GetByID(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("error loading file: %w", err)
	}
	if file.Status != models.FileStatusReady {
		return nil, common.ErrFileNotReady
	}

	now := time.Now()
	expiresAt, err := s.resolveExpiry(now, opts)
	if err != nil {
		return nil, err
	}

	linkID := uuid.New().String()
	token, err := auth.GenerateDownloadToken(linkID, fileID, opts.OneTime, expiresAt, []byte(s.config.SecretKey))
	if err != nil {
		return nil, fmt.Errorf("error signing token: %w", err)
	}

	var passwordHash []byte
	if opts.Password != "" {
		passwordHash, err = bcrypt.GenerateFromPassword([]byte(opts.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("error hashing password: %w", err)
		}
	}

	var shortCode *string
	if opts.WithShortCode {
		code, err := s.newShortCode(ctx)
		if err != nil {
			return nil, err
		}
		shortCode = &code
	}

	link := &models.DownloadLink{
		ID:           linkID,
		FileID:       fileID,
		Token:        token,
		ExpiresAt:    expiresAt,
		OneTime:      opts.OneTime,
		PasswordHash: passwordHash,
		IsEnabled:    true,
		RequirePage:  opts.RequirePage,
		ShortCode:    shortCode,
	}

	created, err := s.repomanager.Links(s.db).Create(ctx, link)
	if err != nil {
		return nil, fmt.Errorf("error creating link: %w", err)
	}
	return created, nil
}

// newShortCode generates a short code not currently in use. The unique
// index on short_code still backstops the check-then-create window.
func (s *LinkService) newShortCode(ctx context.Context) (string, error) {
	repo := s.repomanager.Links(s.db)
	for {
		code, err := common.MakeRandAlphanumeric(s.config.ShortCodeLength)
		if err != nil {
			return "", fmt.Errorf("error generating short code: %w", err)
		}
		exists, err := repo.ShortCodeExists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("error checking short code: %w", err)
		}
		if !exists {
			return code, nil
		}
	}
}

// NeverExpires reports the derived no-expiry flag for a link.
func (s *LinkService) NeverExpires(link *models.DownloadLink) bool {
	return link.NeverExpires(unlimitedFlagThreshold)
}

// ValidateAndConsume checks a presented download token against the stored
// link row, records the download and opens the file for streaming. The
// caller owns the returned handle.
//
// Policy checks run in a fixed order (signature, existence, exhaustion,
// enablement, expiry, password) so a caller always gets the most specific
// error. Exhaustion is checked before enablement because consuming a
// one-time link also disables it; a spent link must keep reporting
// exhausted, not disabled. The consumption itself is a single conditional
// update, so two concurrent requests against a one-time link cannot both
// succeed.
func (s *LinkService) ValidateAndConsume(ctx context.Context, token string, password string) (*models.StoredFile, *os.File, error) {
	claims, err := auth.ParseDownloadToken(token, []byte(s.config.SecretKey))
	if err != nil {
		return nil, nil, common.ErrInvalidToken
	}

	link, err := s.repomanager.Links(s.db).GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, nil, common.ErrLinkNotFound
		}
		return nil, nil, fmt.Errorf("error loading link: %w", err)
	}
	if claims.FileID != link.FileID {
		return nil, nil, common.ErrInvalidToken
	}

	if link.OneTime && link.DownloadCount > 0 {
		return nil, nil, common.ErrLinkExhausted
	}
	if !link.IsEnabled {
		return nil, nil, common.ErrLinkDisabled
	}
	if time.Now().After(link.ExpiresAt) {
		return nil, nil, common.ErrLinkExpired
	}
	if link.PasswordHash != nil {
		if password == "" {
			return nil, nil, common.ErrPasswordRequired
		}
		if bcrypt.CompareHashAndPassword(link.PasswordHash, []byte(password)) != nil {
			return nil, nil, common.ErrInvalidPassword
		}
	}
	consumed, err := s.repomanager.Links(s.db).Consume(ctx, link.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("error consuming link: %w", err)
	}
	if !consumed {
		if link.OneTime {
			return nil, nil, common.ErrLinkExhausted
		}
		return nil, nil, common.ErrLinkDisabled
	}

	file, err := s.repomanager.Files(s.db).GetByID(ctx, link.FileID)
	if err != nil {
		return nil, nil, fmt.Errorf("error loading file: %w", err)
	}
	if file.Status != models.FileStatusReady {
		return nil, nil, common.ErrFileNotReady
	}

	f, err := os.Open(file.StoragePath)
	if err != nil {
		return nil, nil, fmt.Errorf("error opening blob: %w", err)
	}
	return file, f, nil
}

// ShortCodeResolution tells the caller whether the short code can be
// followed straight to the download or must land on an interstitial page
// first (password-protected or page-required links).
type ShortCodeResolution struct {
	Link        *models.DownloadLink
	NeedsPage   bool
	NeverExpiry bool
}

// ResolveShortCode looks up a link by its short code.
func (s *LinkService) ResolveShortCode(ctx context.Context, code string) (*ShortCodeResolution, error) {
	link, err := s.repomanager.Links(s.db).GetByShortCode(ctx, strings.TrimSpace(code))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrLinkNotFound
		}
		return nil, fmt.Errorf("error loading link: %w", err)
	}

	return &ShortCodeResolution{
		Link:        link,
		NeedsPage:   link.RequirePage || link.PasswordHash != nil,
		NeverExpiry: link.NeverExpires(unlimitedFlagThreshold),
	}, nil
}

// ListLinks returns all links issued for a file.
func (s *LinkService) ListLinks(ctx context.Context, fileID string) ([]*models.DownloadLink, error) {
	return s.repomanager.Links(s.db).ListByFile(ctx, fileID)
}

// DeleteLink removes one link belonging to the given file.
func (s *LinkService) DeleteLink(ctx context.Context, fileID, linkID string) error {
	link, err := s.repomanager.Links(s.db).GetByID(ctx, linkID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrLinkNotFound
		}
		return fmt.Errorf("error loading link: %w", err)
	}
	if link.FileID != fileID {
		return common.ErrLinkNotFound
	}
	if err := s.repomanager.Links(s.db).Delete(ctx, linkID); err != nil {
		return fmt.Errorf("error deleting link: %w", err)
	}
	return nil
}
