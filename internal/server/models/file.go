package models

import "time"

// FileStatus tracks promotion of a stored file. Only the finalize worker
// moves a file out of pending.
type FileStatus string

const (
	FileStatusPending FileStatus = "pending"
	FileStatusReady   FileStatus = "ready"
	FileStatusError   FileStatus = "error"
)

// StoredFile is the servable result of a completed upload.
//
// Size is authoritative only once Status is ready: the finalize worker
// overwrites the declared size with the actual merged byte count.
// SessionID is nullable because sessions may be purged after completion.
type StoredFile struct {
	ID        string
	SessionID *string
	OwnerID   string

	Filename string
	Size     int64
	MimeType string
	// SHA256 is the whole-file digest, lowercase hex.
	SHA256      string
	StoragePath string
	Status      FileStatus

	CreatedAt   time.Time
	CompletedAt *time.Time
}
