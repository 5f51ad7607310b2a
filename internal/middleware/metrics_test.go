package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/lolerskatez/jellysso-sub000/internal/metrics"
)

func TestInstrument(t *testing.T) {
	r := mux.NewRouter()
	r.Use(Instrument)
	r.HandleFunc("/api/caches/{name}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}).Methods(http.MethodGet)
	r.HandleFunc("/api/ok", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("fine"))
	}).Methods(http.MethodGet)

	counter := metrics.APIRequestsTotal.WithLabelValues("/api/caches/{name}", http.MethodGet, "418")
	before := testutil.ToFloat64(counter)
	okCounter := metrics.APIRequestsTotal.WithLabelValues("/api/ok", http.MethodGet, "200")
	okBefore := testutil.ToFloat64(okCounter)

	for _, path := range []string{"/api/caches/jellyfin", "/api/caches/sessions", "/api/ok"} {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	}

	if got := testutil.ToFloat64(counter) - before; got != 2 {
		t.Errorf("expected 2 requests under the route template, got %v", got)
	}
	if got := testutil.ToFloat64(okCounter) - okBefore; got != 1 {
		t.Errorf("expected implicit 200 to be recorded, got %v", got)
	}
}

func TestRouteTemplate_Unmatched(t *testing.T) {
	if got := routeTemplate(httptest.NewRequest(http.MethodGet, "/nowhere", nil)); got != "unmatched" {
		t.Errorf("expected unmatched, got %q", got)
	}
}
