// Package models defines server-side data models persisted in the database.
package models

import "time"

// UploadStatus is the lifecycle state of an upload session.
//
// Transitions: INIT → UPLOADING → FINALIZING → COMPLETED, with FAILED and
// EXPIRED as alternate terminal states reachable from UPLOADING/FINALIZING.
type UploadStatus string

const (
	UploadStatusInit       UploadStatus = "init"
	UploadStatusUploading  UploadStatus = "uploading"
	UploadStatusFinalizing UploadStatus = "finalizing"
	UploadStatusCompleted  UploadStatus = "completed"
	UploadStatusExpired    UploadStatus = "expired"
	UploadStatusFailed     UploadStatus = "failed"
)

// UploadSession represents one resumable upload attempt for one file.
//
// TotalChunks is client-declared and authoritative for completeness checks;
// the server deliberately does not re-derive it from Size and ChunkSize.
type UploadSession struct {
	ID          string
	OwnerID     string
	Filename    string
	Size        int64
	MimeType    string
	ChunkSize   int64
	TotalChunks int
	// FileSHA256 is the declared whole-file digest, lowercase hex.
	// Comparisons are case-insensitive.
	FileSHA256 string

	Status     UploadStatus
	UploadPath string

	ExpiresAt   time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	FinalizedAt *time.Time
}

// UploadChunk is one received chunk of a session, unique per (session, index).
// Rows are never updated: a re-submission either matches the stored checksum
// (no-op) or conflicts.
type UploadChunk struct {
	SessionID  string
	Index      int
	Checksum   string
	Size       int64
	StoredPath string
	ReceivedAt time.Time
}
