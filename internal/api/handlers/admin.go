// Operational endpoints, mounted under /internal behind the admin API key:
//   - POST /internal/process-scheduled-posts
//   - POST /internal/run-maintenance
//
// External cron hits these where the Lambda worker is not deployed; the
// worker and these endpoints share the same services, so running both is
// safe (terminal posts are never re-processed, maintenance is idempotent).
package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"bannerly/internal/core"
	"bannerly/internal/scheduler"
)

// PostProcessor drains due scheduled posts. Implemented by
// scheduler.Processor.
type PostProcessor interface {
	ProcessDue(ctx context.Context) (*scheduler.Summary, error)
}

// MaintenanceRunner executes janitorial tasks. Implemented by
// scheduler.Maintenance.
type MaintenanceRunner interface {
	Run(ctx context.Context, task string) (*scheduler.MaintenanceReport, error)
}

type runMaintenanceRequest struct {
	Task string `json:"task"`
}

// AdminHandler exposes operational triggers.
type AdminHandler struct {
	processor   PostProcessor
	maintenance MaintenanceRunner
	logger      *slog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(processor PostProcessor, maintenance MaintenanceRunner, l *slog.Logger) *AdminHandler {
	if l == nil {
		l = slog.Default()
	}
	return &AdminHandler{processor: processor, maintenance: maintenance, logger: l}
}

// RegisterRoutes mounts the operational endpoints under /internal.
func (h *AdminHandler) RegisterRoutes(r chi.Router) {
	r.Post("/process-scheduled-posts", h.ProcessScheduledPosts)
	r.Post("/run-maintenance", h.RunMaintenance)
}

// ProcessScheduledPosts handles POST /internal/process-scheduled-posts.
// Runs one processor batch synchronously and reports the outcome.
func (h *AdminHandler) ProcessScheduledPosts(w http.ResponseWriter, r *http.Request) {
	summary, err := h.processor.ProcessDue(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "scheduled-post batch processed",
		"processed", summary.Processed,
		"posted", summary.Posted,
		"failed", summary.Failed,
	)
	core.Data(w, r, http.StatusOK, summary)
}

// RunMaintenance handles POST /internal/run-maintenance. The body is
// optional; an empty or absent body runs every task.
func (h *AdminHandler) RunMaintenance(w http.ResponseWriter, r *http.Request) {
	var req runMaintenanceRequest
	if err := core.DecodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		core.Error(w, r, err)
		return
	}

	report, err := h.maintenance.Run(r.Context(), req.Task)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "maintenance run complete",
		"tasks_run", report.TasksRun,
		"overdue_posts_failed", report.OverduePostsFailed,
	)
	core.Data(w, r, http.StatusOK, report)
}
