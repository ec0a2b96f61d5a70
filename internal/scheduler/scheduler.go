// Package scheduler is the queue core: the single authority over which
// tasks run, in what order, and how many run at once. All task mutation
// happens behind its lock; workers and shells only cross back in through
// its accessors.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ykarpov/dlqueue/internal/config"
	"github.com/ykarpov/dlqueue/internal/domain"
	errpkg "github.com/ykarpov/dlqueue/internal/errors"
	"github.com/ykarpov/dlqueue/internal/fetcher"
	"github.com/ykarpov/dlqueue/internal/metrics"
	"github.com/ykarpov/dlqueue/internal/repository"
	"github.com/ykarpov/dlqueue/internal/worker"
)

// Scheduler owns the task collection and drives the lifecycle of every
// task through the worker pool.
type Scheduler struct {
	mu sync.Mutex

	tasks       map[uuid.UUID]*domain.Task
	limit       int
	activeSlots int

	pool    *worker.Pool
	fetcher fetcher.Fetcher
	store   repository.SnapshotStore
	events  *hub
	logger  *slog.Logger

	saveDebounce    time.Duration
	shutdownTimeout time.Duration

	dirty  chan struct{}
	closed bool
}

// New builds a scheduler executing fetches through f and persisting
// snapshots to store.
func New(cfg *config.Config, store repository.SnapshotStore, f fetcher.Fetcher, logger *slog.Logger) *Scheduler {
	s := &Scheduler{
		tasks:           make(map[uuid.UUID]*domain.Task),
		limit:           cfg.MaxConcurrent,
		fetcher:         f,
		store:           store,
		events:          newHub(logger),
		logger:          logger,
		saveDebounce:    cfg.SaveDebounce,
		shutdownTimeout: cfg.ShutdownTimeout,
		dirty:           make(chan struct{}, 1),
	}

	s.pool = worker.NewPool(f, worker.Hooks{
		OnProgress: s.handleProgress,
		OnOutcome:  s.handleOutcome,
		OnLeak:     s.handleLeak,
	}, cfg.StopGrace, logger)

	return s
}

// Restore seeds the queue from a persisted snapshot and starts admitting.
func (s *Scheduler) Restore(tasks []*domain.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, task := range tasks {
		s.tasks[task.ID] = task
	}
	s.logger.Info("queue restored", "tasks_count", len(tasks))
	s.admitLocked()
}

// Submit validates the request, enqueues a new task and attempts immediate
// admission. Nothing is enqueued on a validation failure.
func (s *Scheduler) Submit(req domain.SubmitRequest) (*domain.Task, error) {
	task, err := domain.NewTask(req.URL, domain.Options{
		Quality:   req.Quality,
		AudioOnly: req.AudioOnly,
		Playlist:  req.Playlist,
		OutputDir: req.OutputDir,
	}, req.Priority)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, errpkg.ErrQueueClosed
	}

	s.tasks[task.ID] = task
	metrics.TasksSubmitted.Inc()
	s.logger.Info("task submitted", "task_id", task.ID, "url", task.URL, "priority", task.Priority)

	s.publishLocked(domain.Event{Type: domain.EventSubmitted, TaskID: task.ID, Task: task.Clone()})
	s.markDirtyLocked()
	s.admitLocked()

	return task.Clone(), nil
}

// Pause stops a running task's fetch and parks it. The state change is
// immediate even if the underlying fetch takes a moment to stop.
func (s *Scheduler) Pause(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, err := s.getLocked(id)
	if err != nil {
		return err
	}

	if err := task.TransitionTo(domain.StatusPaused); err != nil {
		return err
	}

	s.pool.Stop(id)
	s.logger.Info("task paused", "task_id", id)
	s.publishStateLocked(task)
	s.markDirtyLocked()
	return nil
}

// Resume re-enters a paused task into the priority ordering.
func (s *Scheduler) Resume(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, err := s.getLocked(id)
	if err != nil {
		return err
	}

	if task.Status != domain.StatusPaused {
		return &errpkg.TransitionError{From: task.Status.String(), To: domain.StatusQueued.String()}
	}
	if err := task.TransitionTo(domain.StatusQueued); err != nil {
		return err
	}

	s.logger.Info("task resumed", "task_id", id)
	s.publishStateLocked(task)
	s.markDirtyLocked()
	s.admitLocked()
	return nil
}

// Retry moves a failed task back into the queue. Retries are always an
// explicit user action, never automatic.
func (s *Scheduler) Retry(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, err := s.getLocked(id)
	if err != nil {
		return err
	}

	if task.Status != domain.StatusError {
		return &errpkg.TransitionError{From: task.Status.String(), To: domain.StatusQueued.String()}
	}
	if err := task.TransitionTo(domain.StatusQueued); err != nil {
		return err
	}

	s.logger.Info("task queued for retry", "task_id", id)
	s.publishStateLocked(task)
	s.markDirtyLocked()
	s.admitLocked()
	return nil
}

// Cancel excludes a task from all future scheduling. The record is kept as
// a terminal entry; ClearFinished removes it.
func (s *Scheduler) Cancel(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, err := s.getLocked(id)
	if err != nil {
		return err
	}

	wasRunning := task.Status == domain.StatusRunning
	if err := task.TransitionTo(domain.StatusCancelled); err != nil {
		return err
	}

	if wasRunning {
		s.pool.Stop(id)
	}
	metrics.TasksCancelled.Inc()
	s.logger.Info("task cancelled", "task_id", id)
	s.publishStateLocked(task)
	s.markDirtyLocked()
	return nil
}

// SetPriority reorders a queued or paused task. A running task is not
// preempted; the new priority matters on its next admission.
func (s *Scheduler) SetPriority(id uuid.UUID, priority int) error {
	if priority < domain.MinPriority || priority > domain.MaxPriority {
		return fmt.Errorf("%w: priority %d out of range [%d,%d]",
			errpkg.ErrInvalidRequest, priority, domain.MinPriority, domain.MaxPriority)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	task, err := s.getLocked(id)
	if err != nil {
		return err
	}

	task.Priority = priority
	task.UpdatedAt = time.Now()
	s.logger.Info("task priority changed", "task_id", id, "priority", priority)
	s.publishStateLocked(task)
	s.markDirtyLocked()
	s.admitLocked()
	return nil
}

// SetConcurrencyLimit resizes the worker pool. Shrinking never preempts
// already-running tasks; growing admits immediately.
func (s *Scheduler) SetConcurrencyLimit(n int) error {
	if n < 1 {
		return fmt.Errorf("%w: concurrency limit must be at least 1", errpkg.ErrInvalidRequest)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.limit = n
	s.logger.Info("concurrency limit changed", "limit", n)
	s.admitLocked()
	return nil
}

// ConcurrencyLimit returns the current admission limit.
func (s *Scheduler) ConcurrencyLimit() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.limit
}

// PauseAll pauses every running task.
func (s *Scheduler) PauseAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, task := range s.tasks {
		if task.Status != domain.StatusRunning {
			continue
		}
		if err := task.TransitionTo(domain.StatusPaused); err != nil {
			continue
		}
		s.pool.Stop(task.ID)
		s.publishStateLocked(task)
	}
	s.markDirtyLocked()
}

// ResumeAll re-queues every paused task.
func (s *Scheduler) ResumeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, task := range s.tasks {
		if task.Status != domain.StatusPaused {
			continue
		}
		if err := task.TransitionTo(domain.StatusQueued); err != nil {
			continue
		}
		s.publishStateLocked(task)
	}
	s.markDirtyLocked()
	s.admitLocked()
}

// ClearFinished drops completed, cancelled and failed tasks from the queue
// and returns how many were removed.
func (s *Scheduler) ClearFinished() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, task := range s.tasks {
		if !task.Status.IsFinished() {
			continue
		}
		delete(s.tasks, id)
		removed++
		s.publishLocked(domain.Event{Type: domain.EventRemoved, TaskID: id, Status: task.Status})
	}
	if removed > 0 {
		s.logger.Info("finished tasks cleared", "removed", removed)
		s.markDirtyLocked()
	}
	return removed
}

// Get returns a detached view of one task.
func (s *Scheduler) Get(id uuid.UUID) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, err := s.getLocked(id)
	if err != nil {
		return nil, err
	}
	return task.Clone(), nil
}

// Snapshot returns a consistent, deterministically ordered view of all
// tasks for presentation layers.
func (s *Scheduler) Snapshot() []*domain.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orderedClonesLocked()
}

// Stats aggregates per-state counts.
func (s *Scheduler) Stats() domain.QueueStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := domain.QueueStats{Total: len(s.tasks), MaxConcurrent: s.limit}
	for _, task := range s.tasks {
		switch task.Status {
		case domain.StatusRunning:
			stats.Running++
		case domain.StatusQueued:
			stats.Queued++
		case domain.StatusPaused:
			stats.Paused++
		case domain.StatusCompleted:
			stats.Completed++
		case domain.StatusError:
			stats.Error++
		case domain.StatusCancelled:
			stats.Cancelled++
		}
	}
	return stats
}

// Probe asks the external collaborator for metadata without enqueueing.
func (s *Scheduler) Probe(ctx context.Context, url string) (*fetcher.Metadata, error) {
	return s.fetcher.Probe(ctx, url)
}

// Subscribe returns a buffered channel of queue events and a cancel
// function for presentation shells.
func (s *Scheduler) Subscribe(buffer int) (<-chan domain.Event, func()) {
	return s.events.Subscribe(buffer)
}

// Run owns the persistence loop: saves are debounced and executed off the
// queue lock so a slow disk never stalls admission. It blocks until ctx is
// cancelled, then stops workers and flushes a final snapshot.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return s.shutdown()
		case <-s.dirty:
			timer := time.NewTimer(s.saveDebounce)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return s.shutdown()
			}
			// Coalesce mutations that arrived during the debounce window.
			select {
			case <-s.dirty:
			default:
			}
			s.saveNow()
		}
	}
}

func (s *Scheduler) shutdown() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	shutCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	if err := s.pool.Shutdown(shutCtx); err != nil {
		s.logger.Warn("worker pool did not stop cleanly", "error", err)
	}

	s.saveNow()
	s.events.Close()
	s.logger.Info("scheduler stopped")
	return nil
}

// --- worker pool callbacks ---

func (s *Scheduler) handleProgress(id uuid.UUID, attempt int, p domain.Progress) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return
	}

	delta := p.DownloadedBytes - task.Progress.DownloadedBytes
	if !task.ApplyProgress(attempt, p) {
		// Late event from a paused or cancelled run.
		s.logger.Debug("discarding stale progress event",
			"task_id", id, "attempt", attempt, "status", task.Status)
		return
	}

	if delta > 0 {
		metrics.DownloadBytes.Add(float64(delta))
	}
	s.publishLocked(domain.Event{Type: domain.EventProgress, TaskID: id, Task: task.Clone()})
	s.markDirtyLocked()
}

func (s *Scheduler) handleOutcome(o worker.Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.activeSlots--
	metrics.TasksRunning.Dec()
	metrics.FetchDuration.Observe(o.Duration.Seconds())

	task, ok := s.tasks[o.TaskID]
	switch {
	case !ok:
		s.logger.Debug("outcome for removed task", "task_id", o.TaskID)

	case task.Status != domain.StatusRunning || task.Attempt != o.Attempt:
		// The task was paused or cancelled while the fetch wound down;
		// the optimistic transition already happened.
		s.logger.Debug("discarding stale outcome",
			"task_id", o.TaskID, "attempt", o.Attempt, "status", task.Status)

	case o.Err != nil && errors.Is(o.Err, context.Canceled):
		// Only pool shutdown cancels a still-running task; it will be
		// persisted as running and restored as queued.
		s.logger.Debug("fetch cancelled by shutdown", "task_id", o.TaskID)

	case o.Err != nil:
		if err := task.Fail(o.Err.Error()); err == nil {
			metrics.TasksFailed.Inc()
			s.logger.Warn("task failed", "task_id", o.TaskID, "error", o.Err)
			s.publishStateLocked(task)
		}

	default:
		if err := task.TransitionTo(domain.StatusCompleted); err == nil {
			task.OutputPaths = o.OutputPaths
			metrics.TasksCompleted.Inc()
			s.logger.Info("task completed", "task_id", o.TaskID, "files", len(o.OutputPaths))
			s.publishStateLocked(task)
		}
	}

	s.markDirtyLocked()
	s.admitLocked()
}

func (s *Scheduler) handleLeak(id uuid.UUID) {
	metrics.LeakedSlots.Inc()
	s.events.Publish(domain.Event{
		Type:   domain.EventFault,
		TaskID: id,
		Detail: "worker slot ignored stop signal",
		Time:   time.Now(),
	})
}

// --- internals, caller holds s.mu ---

func (s *Scheduler) getLocked(id uuid.UUID) (*domain.Task, error) {
	task, ok := s.tasks[id]
	if !ok {
		return nil, errpkg.ErrTaskNotFound
	}
	return task, nil
}

// admitLocked fills free slots: highest priority queued task first, FIFO
// among equals. Runs after every state change that frees a slot or changes
// eligibility.
func (s *Scheduler) admitLocked() {
	if s.closed {
		return
	}

	for s.activeSlots < s.limit {
		next := s.nextQueuedLocked()
		if next == nil {
			return
		}

		if err := next.TransitionTo(domain.StatusRunning); err != nil {
			s.logger.Error("admission transition rejected", "task_id", next.ID, "error", err)
			return
		}

		if err := s.pool.Start(worker.TaskRun{
			ID:      next.ID,
			Attempt: next.Attempt,
			URL:     next.URL,
			Options: next.Options,
		}); err != nil {
			s.logger.Error("failed to start worker", "task_id", next.ID, "error", err)
			_ = next.Fail(err.Error())
			s.publishStateLocked(next)
			continue
		}

		s.activeSlots++
		metrics.TasksRunning.Inc()
		s.logger.Info("task admitted", "task_id", next.ID, "priority", next.Priority, "attempt", next.Attempt)
		s.publishStateLocked(next)
	}
}

// nextQueuedLocked picks the queued task with the highest priority, ties
// broken by earliest creation time, then by id for full determinism. Tasks
// whose previous fetch is still winding down are skipped this cycle.
func (s *Scheduler) nextQueuedLocked() *domain.Task {
	var best *domain.Task
	for _, task := range s.tasks {
		if task.Status != domain.StatusQueued {
			continue
		}
		if s.pool.Busy(task.ID) {
			continue
		}
		if best == nil || taskLess(task, best) {
			best = task
		}
	}
	return best
}

// taskLess orders a before b for admission and snapshots.
func taskLess(a, b *domain.Task) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID.String() < b.ID.String()
}

func (s *Scheduler) orderedClonesLocked() []*domain.Task {
	tasks := make([]*domain.Task, 0, len(s.tasks))
	for _, task := range s.tasks {
		tasks = append(tasks, task.Clone())
	}
	sort.Slice(tasks, func(i, j int) bool { return taskLess(tasks[i], tasks[j]) })
	return tasks
}

func (s *Scheduler) publishStateLocked(task *domain.Task) {
	s.publishLocked(domain.Event{
		Type:   domain.EventStateChanged,
		TaskID: task.ID,
		Task:   task.Clone(),
		Status: task.Status,
	})
}

func (s *Scheduler) publishLocked(ev domain.Event) {
	ev.Time = time.Now()
	s.events.Publish(ev)
}

func (s *Scheduler) markDirtyLocked() {
	select {
	case s.dirty <- struct{}{}:
	default:
	}
}

// saveNow snapshots under the lock and writes outside it.
func (s *Scheduler) saveNow() {
	s.mu.Lock()
	tasks := s.orderedClonesLocked()
	s.mu.Unlock()

	if err := s.store.Save(tasks); err != nil {
		// The in-memory queue stays authoritative until the next
		// successful save.
		metrics.PersistenceFailures.Inc()
		s.logger.Error("failed to save queue snapshot", "error", err)
		s.events.Publish(domain.Event{
			Type:   domain.EventFault,
			Detail: fmt.Sprintf("snapshot save failed: %v", err),
			Time:   time.Now(),
		})
	}
}
