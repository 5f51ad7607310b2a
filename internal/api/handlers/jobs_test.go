package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/gorilla/mux"

	"github.com/lolerskatez/jellysso-sub000/internal/apierr"
	"github.com/lolerskatez/jellysso-sub000/internal/scheduler"
)

func newJobsRouter(svc *scheduler.Service) *mux.Router {
	h := NewJobsHandler(svc)
	r := mux.NewRouter()
	r.HandleFunc("/api/admin/jobs", h.ListJobs).Methods(http.MethodGet)
	r.HandleFunc("/api/admin/jobs/{name}/run", h.RunJob).Methods(http.MethodPost)
	return r
}

func TestJobsHandler(t *testing.T) {
	svc := scheduler.NewService(0)
	runs := 0
	if err := svc.Register(scheduler.Job{Name: "cache-sweep", Schedule: "@every 1m", Run: func(ctx context.Context) error {
		runs++
		return nil
	}}); err != nil {
		t.Fatalf("Failed to register job: %v", err)
	}
	if err := svc.Register(scheduler.Job{Name: "broken", Schedule: "@every 1h", Run: func(ctx context.Context) error {
		return errors.New("database is locked")
	}}); err != nil {
		t.Fatalf("Failed to register job: %v", err)
	}
	r := newJobsRouter(svc)

	rr := serve(r, http.MethodPost, "/api/admin/jobs/cache-sweep/run", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if runs != 1 {
		t.Errorf("expected job to run once, ran %d times", runs)
	}

	rr = serve(r, http.MethodPost, "/api/admin/jobs/broken/run", "")
	var result struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &result); err != nil {
		t.Fatalf("Failed to decode run response: %v", err)
	}
	if result.OK || result.Error != "database is locked" {
		t.Errorf("unexpected run result: %+v", result)
	}

	rr = serve(r, http.MethodPost, "/api/admin/jobs/nope/run", "")
	if rr.Code != http.StatusNotFound || decodeError(t, rr).Code != apierr.ErrResourceNotFound {
		t.Errorf("expected RESOURCE_NOT_FOUND, got %d %s", rr.Code, rr.Body.String())
	}

	rr = serve(r, http.MethodGet, "/api/admin/jobs", "")
	var list struct {
		Jobs []scheduler.JobStatus `json:"jobs"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil {
		t.Fatalf("Failed to decode job list: %v", err)
	}
	if len(list.Jobs) != 2 || list.Jobs[0].Name != "broken" || list.Jobs[1].Runs != 1 {
		t.Errorf("unexpected job list: %+v", list.Jobs)
	}
	if list.Jobs[0].LastError == "" {
		t.Error("expected last error to be reported")
	}
}
