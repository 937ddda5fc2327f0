package queue

import (
	"context"
	"errors"
	"sync"

	"sharefile/internal/logging"
)

// ErrClosed is returned by Submit once Shutdown has begun.
var ErrClosed = errors.New("queue closed")

// WorkerPool is the in-process Submitter implementation: a buffered channel
// drained by a fixed number of goroutines. Job failures are logged, never
// returned to the submitter; the finalize service records its own terminal
// states.
type WorkerPool struct {
	jobs      chan Job
	finalizer Finalizer
	logger    logging.Logger

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	// mu orders submissions against the channel close: Submit sends under
	// the read lock, Shutdown closes under the write lock.
	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

// NewWorkerPool starts workerCount workers draining the job channel.
func NewWorkerPool(workerCount int, finalizer Finalizer, logger logging.Logger) *WorkerPool {
	ctx, cancel := context.WithCancel(context.Background())
	p := &WorkerPool{
		jobs:      make(chan Job, 100),
		finalizer: finalizer,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}

	for i := 0; i < workerCount; i++ {
		p.wg.Add(1)
		go p.run(i)
	}

	return p
}

func (p *WorkerPool) run(id int) {
	defer p.wg.Done()
	log := p.logger.With("worker", id)

	for {
		select {
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			if err := p.finalizer.Finalize(p.ctx, job.SessionID, job.FileID); err != nil {
				log.Error(p.ctx, "finalize job failed", "session_id", job.SessionID, "file_id", job.FileID, "error", err)
			}
		case <-p.ctx.Done():
			return
		}
	}
}

// Submit enqueues a finalize job. Blocks only if the buffer is full; honors
// context cancellation while waiting. Returns ErrClosed after Shutdown.
func (p *WorkerPool) Submit(ctx context.Context, sessionID, fileID string) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}

	select {
	case p.jobs <- Job{SessionID: sessionID, FileID: fileID}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return p.ctx.Err()
	}
}

// Shutdown stops accepting work, drains in-flight jobs and waits for the
// workers to exit.
func (p *WorkerPool) Shutdown() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.jobs)
		p.mu.Unlock()
		p.wg.Wait()
		p.cancel()
	})
}
