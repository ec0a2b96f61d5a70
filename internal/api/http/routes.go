package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates a new HTTP router with configured routes, middleware, and handlers.
// It sets up queue routes, health check, the event stream, and the Prometheus metrics endpoint.
func NewRouter(queue Queue, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)

	taskHandler := NewTaskHandler(queue, logger)

	r.Route("/tasks", func(r chi.Router) {
		r.Post("/", taskHandler.SubmitTask)
		r.Get("/", taskHandler.ListTasks)
		r.Get("/{taskID}", taskHandler.GetTask)
		r.Post("/{taskID}/pause", taskHandler.PauseTask)
		r.Post("/{taskID}/resume", taskHandler.ResumeTask)
		r.Post("/{taskID}/cancel", taskHandler.CancelTask)
		r.Post("/{taskID}/retry", taskHandler.RetryTask)
		r.Put("/{taskID}/priority", taskHandler.SetPriority)
	})

	r.Route("/queue", func(r chi.Router) {
		r.Get("/stats", taskHandler.Stats)
		r.Put("/concurrency", taskHandler.SetConcurrency)
		r.Post("/pause", taskHandler.PauseAll)
		r.Post("/resume", taskHandler.ResumeAll)
		r.Post("/clear", taskHandler.ClearFinished)
	})

	r.Post("/probe", taskHandler.Probe)
	r.Get("/events", taskHandler.StreamEvents)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
