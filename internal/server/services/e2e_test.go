package services

import (
	"context"
	"io"
	"testing"

	"sharefile/internal/server/models"
)

// TestUploadDownloadRoundTrip drives the full pipeline with the real chunk
// store: out-of-order chunk upload, finalize through the worker service,
// link issuance and a streamed download.
func TestUploadDownloadRoundTrip(t *testing.T) {
	rm := newFakeRepoManager()
	quota := int64(1000)
	addUser(rm, "u1", &quota, 0)

	db, mock := newSQLMockDB(t)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectCommit()

	store := newTestStore(t)
	cfg := testServerConfig()
	q := &fakeQueue{}
	up := NewUploadService(db, rm, store, q, cfg)
	fin := NewFinalizeService(db, rm, store, &fakeMirror{}, discardLogger())
	lk := NewLinkService(db, rm, store, cfg)
	ctx := context.Background()

	chunksData := [][]byte{[]byte("one-"), []byte("two-"), []byte("three")}
	session := startSession(t, up, rm, chunksData)

	// Chunks arrive out of order.
	for _, idx := range []int{2, 0, 1} {
		if _, err := up.PutChunk(ctx, session.ID, idx, chunksData[idx], hexDigest(chunksData[idx]), int64(len(chunksData[idx]))); err != nil {
			t.Fatalf("PutChunk(%d) error: %v", idx, err)
		}
	}

	progress, err := up.SessionStatus(ctx, session.ID)
	if err != nil {
		t.Fatalf("SessionStatus error: %v", err)
	}
	if len(progress.Missing) != 0 {
		t.Fatalf("unexpected missing chunks: %v", progress.Missing)
	}

	file, err := up.RequestFinalize(ctx, session.ID, "")
	if err != nil {
		t.Fatalf("RequestFinalize error: %v", err)
	}

	// Drain the queued job the way the worker pool would.
	jobs := q.submitted()
	if len(jobs) != 1 {
		t.Fatalf("want one job, got %d", len(jobs))
	}
	if err := fin.Finalize(ctx, jobs[0].SessionID, jobs[0].FileID); err != nil {
		t.Fatalf("Finalize error: %v", err)
	}

	ready, _ := rm.f.GetByID(ctx, file.ID)
	if ready.Status != models.FileStatusReady || ready.Size != 13 {
		t.Fatalf("file not ready with merged size: %+v", ready)
	}
	owner, _ := rm.u.GetByID(ctx, "u1")
	if owner.UsedBytes != 13 {
		t.Fatalf("want used_bytes 13, got %d", owner.UsedBytes)
	}

	link, err := lk.IssueLink(ctx, file.ID, IssueLinkOptions{})
	if err != nil {
		t.Fatalf("IssueLink error: %v", err)
	}

	got, rc, err := lk.ValidateAndConsume(ctx, link.Token, "")
	if err != nil {
		t.Fatalf("ValidateAndConsume error: %v", err)
	}
	defer rc.Close()
	if got.ID != file.ID {
		t.Fatalf("downloaded wrong file: %+v", got)
	}
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("reading download: %v", err)
	}
	if string(data) != "one-two-three" {
		t.Fatalf("unexpected download content: %q", data)
	}
}
