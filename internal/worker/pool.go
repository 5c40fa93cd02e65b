// Package worker runs queued audits on a bounded in-process pool. The queue
// is the only entry point into audit execution: the HTTP layer enqueues and
// returns immediately, and the pool drains at its own pace.
package worker

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Runner executes one audit end to end. Implementations own their lifecycle
// bookkeeping; the pool only schedules and retries. Fail is called when a
// transient error survives every retry, so the audit does not stay stranded
// mid-lifecycle.
type Runner interface {
	Run(ctx context.Context, auditID string) error
	Fail(ctx context.Context, auditID string, cause error)
}

// TransientError marks a failure worth retrying, such as a busy database or
// an unreachable dependency. Any other error fails the audit immediately.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as retryable. Returns nil for a nil err.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// ErrQueueFull is returned when the pool's backlog cannot accept more work.
var ErrQueueFull = errors.New("audit queue is full")

// ErrAlreadyQueued is returned when the audit is already queued or running.
var ErrAlreadyQueued = errors.New("audit is already queued or running")

const queueCapacity = 256

// Pool is a fixed-size worker pool with per-audit deduplication, bounded
// retries with exponential backoff, and cancellation of not-yet-started work.
type Pool struct {
	runner      Runner
	size        int
	maxRetries  int
	backoffBase time.Duration

	queue chan string

	mu        sync.Mutex
	inFlight  map[string]struct{}
	cancelled map[string]struct{}
}

// NewPool creates a pool of the given size. Work does not start until Start
// is called.
func NewPool(runner Runner, size, maxRetries int, backoffBase time.Duration) *Pool {
	return &Pool{
		runner:      runner,
		size:        size,
		maxRetries:  maxRetries,
		backoffBase: backoffBase,
		queue:       make(chan string, queueCapacity),
		inFlight:    make(map[string]struct{}),
		cancelled:   make(map[string]struct{}),
	}
}

// Start launches the workers and blocks until ctx is cancelled and all
// workers have drained their current audit.
func (p *Pool) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.size; i++ {
		g.Go(func() error {
			p.work(ctx)
			return nil
		})
	}
	return g.Wait()
}

// Enqueue schedules an audit. An audit already queued or running is rejected
// rather than queued twice.
func (p *Pool) Enqueue(auditID string) error {
	p.mu.Lock()
	if _, ok := p.inFlight[auditID]; ok {
		p.mu.Unlock()
		return ErrAlreadyQueued
	}
	p.inFlight[auditID] = struct{}{}
	delete(p.cancelled, auditID)
	p.mu.Unlock()

	select {
	case p.queue <- auditID:
		return nil
	default:
		p.mu.Lock()
		delete(p.inFlight, auditID)
		p.mu.Unlock()
		return ErrQueueFull
	}
}

// Cancel drops a queued audit before a worker picks it up. Returns false when
// the audit is not queued, including when it has already started.
func (p *Pool) Cancel(auditID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.inFlight[auditID]; !ok {
		return false
	}
	p.cancelled[auditID] = struct{}{}
	return true
}

func (p *Pool) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case auditID := <-p.queue:
			if p.takeCancelled(auditID) {
				continue
			}
			p.runWithRetry(ctx, auditID)
		}
	}
}

// takeCancelled consumes a pending cancellation, releasing the audit's
// in-flight slot.
func (p *Pool) takeCancelled(auditID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.cancelled[auditID]; !ok {
		return false
	}
	delete(p.cancelled, auditID)
	delete(p.inFlight, auditID)
	return true
}

func (p *Pool) runWithRetry(ctx context.Context, auditID string) {
	defer func() {
		p.mu.Lock()
		delete(p.inFlight, auditID)
		p.mu.Unlock()
	}()

	var transient *TransientError
	for attempt := 0; ; attempt++ {
		err := p.runner.Run(ctx, auditID)
		if err == nil {
			return
		}
		if !errors.As(err, &transient) {
			// the runner already finalized the audit; nothing left to do
			log.Printf("Audit %s failed: %v", auditID, err)
			return
		}
		if attempt >= p.maxRetries {
			log.Printf("Audit %s failed after %d retries: %v", auditID, p.maxRetries, err)
			p.runner.Fail(ctx, auditID, err)
			return
		}

		backoff := p.backoffBase << attempt
		log.Printf("Audit %s hit transient error (attempt %d/%d), retrying in %s: %v",
			auditID, attempt+1, p.maxRetries, backoff, err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
	}
}
