// Package common defines shared constants and sentinel errors used across
// the ShareFile server components. Callers should use errors.Is to match
// these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal = errors.New("internal error")

	// Upload-session errors.
	ErrUnprocessable     = errors.New("unprocessable request")
	ErrQuotaExceeded     = errors.New("quota exceeded")
	ErrSessionState      = errors.New("session state does not permit operation")
	ErrInvalidIndex      = errors.New("chunk index out of range")
	ErrEmptyChunk        = errors.New("empty chunk")
	ErrChunkTooLarge     = errors.New("chunk exceeds maximum size")
	ErrChunkSizeMismatch = errors.New("chunk size mismatch")
	ErrChecksumConflict  = errors.New("checksum conflict")
	ErrIncompleteUpload  = errors.New("incomplete upload")
	ErrDigestMismatch    = errors.New("digest mismatch")

	// Chunk-store errors.
	ErrMissingChunk = errors.New("missing chunk")

	// Download-link errors.
	ErrFileNotReady     = errors.New("file not ready")
	ErrInvalidExpiry    = errors.New("expiration must be in the future")
	ErrInvalidToken     = errors.New("invalid token")
	ErrLinkNotFound     = errors.New("link not found")
	ErrLinkDisabled     = errors.New("link disabled")
	ErrLinkExpired      = errors.New("link expired")
	ErrLinkExhausted    = errors.New("link exhausted")
	ErrPasswordRequired = errors.New("password required")
	ErrInvalidPassword  = errors.New("invalid password")
)
