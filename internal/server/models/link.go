package models

import "time"

// DownloadLink grants unauthenticated, policy-governed read access to one
// stored file. The bearer token is a signed self-contained credential; the
// row remains authoritative for enablement, expiry and consumption state.
type DownloadLink struct {
	ID     string
	FileID string

	Token     string
	ExpiresAt time.Time
	OneTime   bool
	// DownloadCount is mutated only by the validated-download path.
	DownloadCount int64
	PasswordHash  []byte
	IsEnabled     bool
	RequirePage   bool
	// ShortCode is an optional fixed-length alphanumeric code, globally
	// unique when present.
	ShortCode *string

	CreatedAt time.Time
}

// NeverExpires reports whether the link was issued without an expiry.
// "No expiry" is modeled as a far-future instant so that all expiry
// comparisons stay total-order; the flag is derived from the gap between
// creation and expiry.
func (l *DownloadLink) NeverExpires(threshold time.Duration) bool {
	return l.ExpiresAt.Sub(l.CreatedAt) >= threshold
}
