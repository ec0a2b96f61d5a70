package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	errpkg "github.com/ykarpov/dlqueue/internal/errors"
)

// Priority bounds for a task. Higher values are served first.
const (
	MinPriority = 0
	MaxPriority = 10
)

// Options is the output configuration of a single download request.
type Options struct {
	Quality   string `json:"quality"`
	AudioOnly bool   `json:"audio_only"`
	Playlist  bool   `json:"playlist"`
	OutputDir string `json:"output_dir"`
}

// Progress is the durable progress checkpoint of a task. Within one run
// attempt it only moves forward; a restored task resumes from it.
type Progress struct {
	Percent         float64 `json:"percent"`
	DownloadedBytes int64   `json:"downloaded_bytes"`
	TotalBytes      int64   `json:"total_bytes"`
	CurrentFile     string  `json:"current_file,omitempty"`
}

// Task is one download request plus its mutable runtime state. Tasks are
// owned exclusively by the scheduler; presentation shells only ever see
// copies.
type Task struct {
	ID       uuid.UUID  `json:"id"`
	URL      string     `json:"url"`
	Options  Options    `json:"options"`
	Priority int        `json:"priority"`
	Status   TaskStatus `json:"status"`
	Progress Progress   `json:"progress"`
	Error    string     `json:"error,omitempty"`

	// Attempt counts admissions within this process. It guards against
	// late events from a run that was paused or cancelled.
	Attempt int `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	OutputPaths []string `json:"output_paths,omitempty"`
}

// NewTask validates the request and builds a Queued task.
func NewTask(url string, opts Options, priority int) (*Task, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("%w: url must not be empty", errpkg.ErrInvalidRequest)
	}
	if priority < MinPriority || priority > MaxPriority {
		return nil, fmt.Errorf("%w: priority %d out of range [%d,%d]",
			errpkg.ErrInvalidRequest, priority, MinPriority, MaxPriority)
	}
	if opts.Quality == "" {
		opts.Quality = "best"
	}

	now := time.Now()
	return &Task{
		ID:        uuid.New(),
		URL:       url,
		Options:   opts,
		Priority:  priority,
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// TransitionTo applies a state machine move, rejecting illegal ones without
// side effects.
func (t *Task) TransitionTo(next TaskStatus) error {
	if !CanTransition(t.Status, next) {
		return &errpkg.TransitionError{From: t.Status.String(), To: next.String()}
	}

	switch next {
	case StatusRunning:
		t.Attempt++
	case StatusQueued:
		// Retry or resume: error detail is stale, the progress checkpoint
		// is kept so a resumable fetch can pick up where it stopped.
		t.Error = ""
	case StatusCompleted:
		t.Progress.Percent = 100
	}

	t.Status = next
	t.UpdatedAt = time.Now()
	return nil
}

// Fail moves the task to Error recording the failure detail.
func (t *Task) Fail(detail string) error {
	if err := t.TransitionTo(StatusError); err != nil {
		return err
	}
	t.Error = detail
	return nil
}

// ApplyProgress merges a progress event from attempt into the checkpoint.
// Events for a non-running task or a stale attempt are ignored; the caller
// logs them. Progress never regresses within an attempt.
func (t *Task) ApplyProgress(attempt int, p Progress) bool {
	if t.Status != StatusRunning || attempt != t.Attempt {
		return false
	}

	if p.Percent > t.Progress.Percent {
		t.Progress.Percent = p.Percent
	}
	if p.DownloadedBytes > t.Progress.DownloadedBytes {
		t.Progress.DownloadedBytes = p.DownloadedBytes
	}
	if p.TotalBytes > 0 {
		t.Progress.TotalBytes = p.TotalBytes
	}
	if p.CurrentFile != "" {
		t.Progress.CurrentFile = p.CurrentFile
	}
	t.UpdatedAt = time.Now()
	return true
}

// Clone returns a detached copy safe to hand to presentation shells.
func (t *Task) Clone() *Task {
	c := *t
	if t.OutputPaths != nil {
		c.OutputPaths = append([]string(nil), t.OutputPaths...)
	}
	return &c
}
