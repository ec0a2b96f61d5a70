package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ykarpov/dlqueue/internal/domain"
	errpkg "github.com/ykarpov/dlqueue/internal/errors"
	"github.com/ykarpov/dlqueue/internal/fetcher"
)

// stubFetcher blocks each fetch until released or cancelled.
type stubFetcher struct {
	mu       sync.Mutex
	release  chan struct{}
	err      error
	paths    []string
	ignore   bool // ignore cancellation, simulating a stuck collaborator
	progress []fetcher.ProgressEvent
}

func newStubFetcher() *stubFetcher {
	return &stubFetcher{release: make(chan struct{}), paths: []string{"/downloads/a.mp4"}}
}

func (f *stubFetcher) Fetch(ctx context.Context, url string, opts domain.Options, sink fetcher.ProgressSink) ([]string, error) {
	f.mu.Lock()
	for _, ev := range f.progress {
		sink(ev)
	}
	f.mu.Unlock()

	if f.ignore {
		<-f.release
	} else {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-f.release:
		}
	}

	if f.err != nil {
		return nil, f.err
	}
	return f.paths, nil
}

func (f *stubFetcher) Probe(ctx context.Context, url string) (*fetcher.Metadata, error) {
	return &fetcher.Metadata{Title: "stub"}, nil
}

type recorder struct {
	mu       sync.Mutex
	outcomes []Outcome
	progress []domain.Progress
	leaks    []uuid.UUID
	done     chan Outcome
	leaked   chan uuid.UUID
}

func newRecorder() *recorder {
	return &recorder{done: make(chan Outcome, 8), leaked: make(chan uuid.UUID, 8)}
}

func (r *recorder) hooks() Hooks {
	return Hooks{
		OnProgress: func(id uuid.UUID, attempt int, p domain.Progress) {
			r.mu.Lock()
			r.progress = append(r.progress, p)
			r.mu.Unlock()
		},
		OnOutcome: func(o Outcome) {
			r.mu.Lock()
			r.outcomes = append(r.outcomes, o)
			r.mu.Unlock()
			r.done <- o
		},
		OnLeak: func(id uuid.UUID) {
			r.mu.Lock()
			r.leaks = append(r.leaks, id)
			r.mu.Unlock()
			r.leaked <- id
		},
	}
}

func waitOutcome(t *testing.T, r *recorder) Outcome {
	t.Helper()
	select {
	case o := <-r.done:
		return o
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for outcome")
		return Outcome{}
	}
}

func TestPool_SuccessOutcome(t *testing.T) {
	f := newStubFetcher()
	f.progress = []fetcher.ProgressEvent{{Percent: 50, DownloadedBytes: 500, TotalBytes: 1000}}
	rec := newRecorder()
	pool := NewPool(f, rec.hooks(), time.Second, slog.Default())

	id := uuid.New()
	require.NoError(t, pool.Start(TaskRun{ID: id, Attempt: 1, URL: "https://example.com/v"}))
	assert.True(t, pool.Busy(id))
	assert.Equal(t, 1, pool.Active())

	close(f.release)
	o := waitOutcome(t, rec)

	assert.Equal(t, id, o.TaskID)
	assert.Equal(t, 1, o.Attempt)
	assert.NoError(t, o.Err)
	assert.Equal(t, []string{"/downloads/a.mp4"}, o.OutputPaths)
	assert.False(t, pool.Busy(id))

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Len(t, rec.outcomes, 1)
	require.Len(t, rec.progress, 1)
	assert.Equal(t, float64(50), rec.progress[0].Percent)
}

func TestPool_FailureOutcome(t *testing.T) {
	f := newStubFetcher()
	f.err = errors.New("fetch exploded")
	rec := newRecorder()
	pool := NewPool(f, rec.hooks(), time.Second, slog.Default())

	require.NoError(t, pool.Start(TaskRun{ID: uuid.New(), Attempt: 1, URL: "https://example.com/v"}))
	close(f.release)

	o := waitOutcome(t, rec)
	assert.EqualError(t, o.Err, "fetch exploded")
}

func TestPool_OneTaskOneSlot(t *testing.T) {
	f := newStubFetcher()
	rec := newRecorder()
	pool := NewPool(f, rec.hooks(), time.Second, slog.Default())

	id := uuid.New()
	require.NoError(t, pool.Start(TaskRun{ID: id, Attempt: 1, URL: "https://example.com/v"}))

	err := pool.Start(TaskRun{ID: id, Attempt: 2, URL: "https://example.com/v"})
	assert.ErrorIs(t, err, errpkg.ErrSlotOccupied)

	close(f.release)
	waitOutcome(t, rec)
}

func TestPool_StopCancelsFetch(t *testing.T) {
	f := newStubFetcher()
	rec := newRecorder()
	pool := NewPool(f, rec.hooks(), time.Second, slog.Default())

	id := uuid.New()
	require.NoError(t, pool.Start(TaskRun{ID: id, Attempt: 1, URL: "https://example.com/v"}))

	pool.Stop(id)
	o := waitOutcome(t, rec)

	assert.ErrorIs(t, o.Err, context.Canceled)
	assert.False(t, pool.Busy(id))

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Empty(t, rec.leaks)
}

func TestPool_ReportsLeakedSlot(t *testing.T) {
	f := newStubFetcher()
	f.ignore = true
	rec := newRecorder()
	pool := NewPool(f, rec.hooks(), 20*time.Millisecond, slog.Default())

	id := uuid.New()
	require.NoError(t, pool.Start(TaskRun{ID: id, Attempt: 1, URL: "https://example.com/v"}))

	pool.Stop(id)

	select {
	case leaked := <-rec.leaked:
		assert.Equal(t, id, leaked)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for leak report")
	}

	// The slot stays occupied until the worker actually exits.
	assert.True(t, pool.Busy(id))

	close(f.release)
	waitOutcome(t, rec)
	assert.False(t, pool.Busy(id))
}

func TestPool_Shutdown(t *testing.T) {
	f := newStubFetcher()
	rec := newRecorder()
	pool := NewPool(f, rec.hooks(), time.Second, slog.Default())

	require.NoError(t, pool.Start(TaskRun{ID: uuid.New(), Attempt: 1, URL: "https://example.com/v"}))
	require.NoError(t, pool.Start(TaskRun{ID: uuid.New(), Attempt: 1, URL: "https://example.com/w"}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, pool.Shutdown(ctx))

	assert.Equal(t, 0, pool.Active())
	waitOutcome(t, rec)
	waitOutcome(t, rec)
}

func TestPool_StopUnknownTaskIsNoop(t *testing.T) {
	pool := NewPool(newStubFetcher(), newRecorder().hooks(), time.Second, slog.Default())
	pool.Stop(uuid.New())
	assert.Equal(t, 0, pool.Active())
}
