package models

import "time"

// User is the owning principal for sessions and files.
//
// QuotaBytes nil means unlimited. UsedBytes is a running total maintained
// by file creation/deletion and must never go negative (writers clamp at
// zero).
type User struct {
	ID           string
	Email        string
	PasswordHash string
	IsAdmin      bool
	IsActive     bool
	QuotaBytes   *int64
	UsedBytes    int64
	CreatedAt    time.Time
}

// WithinQuota reports whether adding delta bytes keeps the user inside
// their quota. Unlimited quota always passes. Admins are not exempt.
func (u *User) WithinQuota(delta int64) bool {
	if u.QuotaBytes == nil {
		return true
	}
	return u.UsedBytes+delta <= *u.QuotaBytes
}
