package queue

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"sharefile/internal/logging"
)

type fakeFinalizer struct {
	mu   sync.Mutex
	jobs []Job
	err  error
}

func (f *fakeFinalizer) Finalize(ctx context.Context, sessionID, fileID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, Job{SessionID: sessionID, FileID: fileID})
	return f.err
}

func (f *fakeFinalizer) seen() []Job {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Job(nil), f.jobs...)
}

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.DiscardHandler))
}

func TestWorkerPool_ProcessesSubmittedJobs(t *testing.T) {
	fin := &fakeFinalizer{}
	pool := NewWorkerPool(2, fin, testLogger())

	for i := 0; i < 5; i++ {
		require.NoError(t, pool.Submit(context.Background(), "s", "f"))
	}
	pool.Shutdown()

	require.Len(t, fin.seen(), 5)
}

func TestWorkerPool_SubmitAfterCancelledContext(t *testing.T) {
	fin := &fakeFinalizer{}
	pool := NewWorkerPool(1, fin, testLogger())
	defer pool.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// A full buffer plus a cancelled context must not deadlock. With a free
	// buffer the send wins the select or the cancellation does; either way
	// Submit returns promptly.
	done := make(chan struct{})
	go func() {
		_ = pool.Submit(ctx, "s", "f")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Submit did not return")
	}
}

func TestWorkerPool_SubmitAfterShutdown(t *testing.T) {
	fin := &fakeFinalizer{}
	pool := NewWorkerPool(1, fin, testLogger())
	pool.Shutdown()

	err := pool.Submit(context.Background(), "s", "f")
	require.ErrorIs(t, err, ErrClosed)
}

func TestWorkerPool_SubmitRacesShutdown(t *testing.T) {
	fin := &fakeFinalizer{}
	pool := NewWorkerPool(2, fin, testLogger())

	// Submitters racing Shutdown must get ErrClosed, never a panic from a
	// send on the closed channel.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if err := pool.Submit(context.Background(), "s", "f"); err != nil {
					require.ErrorIs(t, err, ErrClosed)
					return
				}
			}
		}()
	}
	pool.Shutdown()
	wg.Wait()
}

func TestWorkerPool_FailuresAreSwallowed(t *testing.T) {
	fin := &fakeFinalizer{err: context.DeadlineExceeded}
	pool := NewWorkerPool(1, fin, testLogger())

	require.NoError(t, pool.Submit(context.Background(), "s", "f"))
	pool.Shutdown()

	require.Len(t, fin.seen(), 1)
}
