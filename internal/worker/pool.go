// Package worker runs admitted tasks on a bounded set of execution slots.
// The pool owns the goroutine and the cancellable context of every
// in-flight fetch; the scheduler owns everything else.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ykarpov/dlqueue/internal/domain"
	errpkg "github.com/ykarpov/dlqueue/internal/errors"
	"github.com/ykarpov/dlqueue/internal/fetcher"
)

// TaskRun is the immutable slice of task state a worker needs. The worker
// never touches the Task itself.
type TaskRun struct {
	ID      uuid.UUID
	Attempt int
	URL     string
	Options domain.Options
}

// Outcome is the terminal report of one admission, delivered exactly once.
type Outcome struct {
	TaskID      uuid.UUID
	Attempt     int
	OutputPaths []string
	Err         error
	Duration    time.Duration
}

// Hooks carry worker notifications back into the coordinating context.
// They are invoked from worker goroutines and must do their own locking.
type Hooks struct {
	OnProgress func(id uuid.UUID, attempt int, p domain.Progress)
	OnOutcome  func(o Outcome)

	// OnLeak fires when a worker ignores its stop signal past the grace
	// period. The slot is reported as a fault and stays occupied until the
	// worker actually exits; it is never silently reused.
	OnLeak func(id uuid.UUID)
}

type slot struct {
	cancel  context.CancelFunc
	done    chan struct{}
	attempt int
}

// Pool dispatches fetches for admitted tasks, one slot per task.
type Pool struct {
	fetcher   fetcher.Fetcher
	hooks     Hooks
	stopGrace time.Duration
	logger    *slog.Logger

	mu    sync.Mutex
	slots map[uuid.UUID]*slot
	wg    sync.WaitGroup
}

// NewPool creates a pool executing fetches through f.
func NewPool(f fetcher.Fetcher, hooks Hooks, stopGrace time.Duration, logger *slog.Logger) *Pool {
	return &Pool{
		fetcher:   f,
		hooks:     hooks,
		stopGrace: stopGrace,
		logger:    logger,
		slots:     make(map[uuid.UUID]*slot),
	}
}

// Busy reports whether the task still holds a slot, including a slot whose
// fetch was told to stop but has not exited yet.
func (p *Pool) Busy(id uuid.UUID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.slots[id]
	return ok
}

// Active returns the number of occupied slots.
func (p *Pool) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.slots)
}

// Start launches a worker for the run. One task holds at most one slot.
func (p *Pool) Start(run TaskRun) error {
	p.mu.Lock()
	if _, exists := p.slots[run.ID]; exists {
		p.mu.Unlock()
		return errpkg.ErrSlotOccupied
	}

	ctx, cancel := context.WithCancel(context.Background())
	sl := &slot{cancel: cancel, done: make(chan struct{}), attempt: run.Attempt}
	p.slots[run.ID] = sl
	p.wg.Add(1)
	p.mu.Unlock()

	go p.run(ctx, run, sl)
	return nil
}

func (p *Pool) run(ctx context.Context, run TaskRun, sl *slot) {
	defer p.wg.Done()
	defer close(sl.done)

	start := time.Now()

	sink := func(ev fetcher.ProgressEvent) {
		p.hooks.OnProgress(run.ID, run.Attempt, domain.Progress{
			Percent:         ev.Percent,
			DownloadedBytes: ev.DownloadedBytes,
			TotalBytes:      ev.TotalBytes,
			CurrentFile:     ev.CurrentFile,
		})
	}

	paths, err := p.fetcher.Fetch(ctx, run.URL, run.Options, sink)

	p.mu.Lock()
	delete(p.slots, run.ID)
	p.mu.Unlock()

	p.hooks.OnOutcome(Outcome{
		TaskID:      run.ID,
		Attempt:     run.Attempt,
		OutputPaths: paths,
		Err:         err,
		Duration:    time.Since(start),
	})
}

// Stop signals the task's fetch to stop. It returns immediately; the caller
// has already transitioned the task state. A worker that does not exit
// within the grace period is reported through OnLeak.
func (p *Pool) Stop(id uuid.UUID) {
	p.mu.Lock()
	sl, ok := p.slots[id]
	p.mu.Unlock()
	if !ok {
		return
	}

	sl.cancel()

	go func() {
		select {
		case <-sl.done:
		case <-time.After(p.stopGrace):
			p.logger.Error("worker slot ignored stop signal", "task_id", id, "grace", p.stopGrace)
			if p.hooks.OnLeak != nil {
				p.hooks.OnLeak(id)
			}
		}
	}()
}

// Shutdown cancels every in-flight fetch and waits for workers to exit,
// bounded by ctx.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	for _, sl := range p.slots {
		sl.cancel()
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		p.logger.Warn("worker pool shutdown timed out", "active", p.Active())
		return ctx.Err()
	}
}
