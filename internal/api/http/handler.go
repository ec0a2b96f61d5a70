package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/ykarpov/dlqueue/internal/domain"
	errpkg "github.com/ykarpov/dlqueue/internal/errors"
	"github.com/ykarpov/dlqueue/internal/fetcher"
	"github.com/ykarpov/dlqueue/internal/validation"
)

// Queue is the scheduler surface the HTTP shell consumes.
type Queue interface {
	Submit(req domain.SubmitRequest) (*domain.Task, error)
	Get(id uuid.UUID) (*domain.Task, error)
	Snapshot() []*domain.Task
	Stats() domain.QueueStats
	Pause(id uuid.UUID) error
	Resume(id uuid.UUID) error
	Cancel(id uuid.UUID) error
	Retry(id uuid.UUID) error
	SetPriority(id uuid.UUID, priority int) error
	SetConcurrencyLimit(n int) error
	PauseAll()
	ResumeAll()
	ClearFinished() int
	Probe(ctx context.Context, url string) (*fetcher.Metadata, error)
	Subscribe(buffer int) (<-chan domain.Event, func())
}

// TaskHandler handles HTTP requests for queue operations.
type TaskHandler struct {
	queue     Queue
	validator *validator.Validate
	logger    *slog.Logger
}

// NewTaskHandler creates a new TaskHandler with the provided queue and logger.
func NewTaskHandler(queue Queue, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{
		queue:     queue,
		validator: validation.New(),
		logger:    logger,
	}
}

// SubmitTask handles POST /tasks.
func (h *TaskHandler) SubmitTask(w http.ResponseWriter, r *http.Request) {
	var req domain.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("failed to decode request", "error", err)
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("validation failed", "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	task, err := h.queue.Submit(req)
	if err != nil {
		h.writeQueueError(w, err)
		return
	}

	h.logger.Info("task submitted", "task_id", task.ID, "url", task.URL)
	writeJSON(w, http.StatusCreated, domain.NewTaskResponse(task))
}

// ListTasks handles GET /tasks.
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	tasks := h.queue.Snapshot()

	responses := make([]domain.TaskResponse, 0, len(tasks))
	for _, task := range tasks {
		responses = append(responses, domain.NewTaskResponse(task))
	}
	writeJSON(w, http.StatusOK, responses)
}

// GetTask handles GET /tasks/{taskID}.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}

	task, err := h.queue.Get(id)
	if err != nil {
		h.writeQueueError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.NewTaskResponse(task))
}

// PauseTask handles POST /tasks/{taskID}/pause.
func (h *TaskHandler) PauseTask(w http.ResponseWriter, r *http.Request) {
	h.taskAction(w, r, h.queue.Pause)
}

// ResumeTask handles POST /tasks/{taskID}/resume.
func (h *TaskHandler) ResumeTask(w http.ResponseWriter, r *http.Request) {
	h.taskAction(w, r, h.queue.Resume)
}

// CancelTask handles POST /tasks/{taskID}/cancel.
func (h *TaskHandler) CancelTask(w http.ResponseWriter, r *http.Request) {
	h.taskAction(w, r, h.queue.Cancel)
}

// RetryTask handles POST /tasks/{taskID}/retry.
func (h *TaskHandler) RetryTask(w http.ResponseWriter, r *http.Request) {
	h.taskAction(w, r, h.queue.Retry)
}

// SetPriority handles PUT /tasks/{taskID}/priority.
func (h *TaskHandler) SetPriority(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}

	var req domain.SetPriorityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.queue.SetPriority(id, req.Priority); err != nil {
		h.writeQueueError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// SetConcurrency handles PUT /queue/concurrency.
func (h *TaskHandler) SetConcurrency(w http.ResponseWriter, r *http.Request) {
	var req domain.SetConcurrencyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.queue.SetConcurrencyLimit(req.Limit); err != nil {
		h.writeQueueError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Stats handles GET /queue/stats.
func (h *TaskHandler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.queue.Stats())
}

// PauseAll handles POST /queue/pause.
func (h *TaskHandler) PauseAll(w http.ResponseWriter, r *http.Request) {
	h.queue.PauseAll()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ResumeAll handles POST /queue/resume.
func (h *TaskHandler) ResumeAll(w http.ResponseWriter, r *http.Request) {
	h.queue.ResumeAll()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ClearFinished handles POST /queue/clear.
func (h *TaskHandler) ClearFinished(w http.ResponseWriter, r *http.Request) {
	removed := h.queue.ClearFinished()
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

// Probe handles POST /probe.
func (h *TaskHandler) Probe(w http.ResponseWriter, r *http.Request) {
	var req domain.ProbeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	meta, err := h.queue.Probe(r.Context(), req.URL)
	if err != nil {
		h.logger.Error("probe failed", "url", req.URL, "error", err)
		writeError(w, http.StatusBadGateway, "probe failed")
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

func (h *TaskHandler) taskAction(w http.ResponseWriter, r *http.Request, action func(uuid.UUID) error) {
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}

	if err := action(id); err != nil {
		h.writeQueueError(w, err)
		return
	}

	task, err := h.queue.Get(id)
	if err != nil {
		h.writeQueueError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.NewTaskResponse(task))
}

func (h *TaskHandler) taskID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "taskID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid task ID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *TaskHandler) writeQueueError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errpkg.ErrTaskNotFound):
		writeError(w, http.StatusNotFound, "task not found")
	case errors.Is(err, errpkg.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, errpkg.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, errpkg.ErrQueueClosed):
		writeError(w, http.StatusServiceUnavailable, "queue is shutting down")
	default:
		h.logger.Error("queue operation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}
