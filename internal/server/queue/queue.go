// Package queue provides the asynchronous hand-off between the finalize
// request and the finalize worker. The Submitter seam is fire-and-forget
// with at-least-once delivery; consumers must tolerate redelivery of the
// same (sessionID, fileID) pair.
package queue

import "context"

// Job identifies one finalize unit of work.
type Job struct {
	SessionID string
	FileID    string
}

// Submitter enqueues finalize jobs. Submit returns as soon as the job is
// accepted; the merge/verify/quota work happens out-of-band.
type Submitter interface {
	Submit(ctx context.Context, sessionID, fileID string) error
}

// Finalizer is implemented by the service that performs the actual
// finalization.
type Finalizer interface {
	Finalize(ctx context.Context, sessionID, fileID string) error
}
