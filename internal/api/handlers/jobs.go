package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/lolerskatez/jellysso-sub000/internal/apierr"
	"github.com/lolerskatez/jellysso-sub000/internal/logger"
	"github.com/lolerskatez/jellysso-sub000/internal/scheduler"
)

// JobRunner is the part of the scheduler the job endpoints use.
type JobRunner interface {
	Status() []scheduler.JobStatus
	RunNow(ctx context.Context, name string) error
}

// JobsHandler exposes the maintenance jobs.
type JobsHandler struct {
	jobs JobRunner
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(jobs JobRunner) *JobsHandler {
	return &JobsHandler{jobs: jobs}
}

// ListJobs returns every registered job and its last outcome.
// GET /api/admin/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"jobs": h.jobs.Status()})
}

// RunJob runs a job immediately and reports its error, if any.
// POST /api/admin/jobs/{name}/run
func (h *JobsHandler) RunJob(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	err := h.jobs.RunNow(r.Context(), name)
	if errors.Is(err, scheduler.ErrUnknownJob) {
		apierr.WriteErrorWithContext(w, r, apierr.ResourceNotFound("job"))
		return
	}

	resp := map[string]any{"job": name, "ok": err == nil}
	if err != nil {
		logger.WarnContext(r.Context(), "Manual job run failed", "job", name, "error", err)
		resp["error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}
