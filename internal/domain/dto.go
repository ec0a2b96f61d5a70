package domain

import (
	"time"

	"github.com/google/uuid"
)

// SubmitRequest is the request body for enqueueing a new download.
type SubmitRequest struct {
	URL       string `json:"url" validate:"required,safe_url"`
	Priority  int    `json:"priority" validate:"min=0,max=10"`
	Quality   string `json:"quality" validate:"omitempty,oneof=best 1080p 720p 480p worst"`
	AudioOnly bool   `json:"audio_only"`
	Playlist  bool   `json:"playlist"`
	OutputDir string `json:"output_dir"`
}

// SetPriorityRequest changes the priority of an existing task.
type SetPriorityRequest struct {
	Priority int `json:"priority" validate:"min=0,max=10"`
}

// SetConcurrencyRequest changes the number of worker slots.
type SetConcurrencyRequest struct {
	Limit int `json:"limit" validate:"min=1"`
}

// ProbeRequest asks the external collaborator for media metadata.
type ProbeRequest struct {
	URL string `json:"url" validate:"required,safe_url"`
}

// TaskResponse is the wire representation of a task view.
type TaskResponse struct {
	ID          uuid.UUID  `json:"task_id"`
	URL         string     `json:"url"`
	Options     Options    `json:"options"`
	Priority    int        `json:"priority"`
	Status      TaskStatus `json:"status"`
	Progress    Progress   `json:"progress"`
	Error       string     `json:"error,omitempty"`
	OutputPaths []string   `json:"output_paths,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// NewTaskResponse maps a task view onto the wire shape.
func NewTaskResponse(t *Task) TaskResponse {
	return TaskResponse{
		ID:          t.ID,
		URL:         t.URL,
		Options:     t.Options,
		Priority:    t.Priority,
		Status:      t.Status,
		Progress:    t.Progress,
		Error:       t.Error,
		OutputPaths: t.OutputPaths,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

// QueueStats is an aggregate view of the queue for dashboards.
type QueueStats struct {
	Total         int `json:"total"`
	Running       int `json:"running"`
	Queued        int `json:"queued"`
	Paused        int `json:"paused"`
	Completed     int `json:"completed"`
	Error         int `json:"error"`
	Cancelled     int `json:"cancelled"`
	MaxConcurrent int `json:"max_concurrent"`
}
