package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestRequestMiddleware_records_per_route(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(RequestMiddleware(m))
	r.Get("/cameras/{camera_id}", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/broken", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	for _, path := range []string{"/cameras/cam1", "/cameras/cam2", "/broken"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	rec := httptest.NewRecorder()
	m.Handler(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()

	// Both camera requests land on one route series, not one per camera id.
	if !strings.Contains(body, `cctv_requests_total{route="/cameras/{camera_id}"} 2`) {
		t.Errorf("expected per-route request count, got:\n%s", body)
	}
	if strings.Contains(body, `route="/cameras/cam1"`) {
		t.Errorf("camera ids must not fan out into metric series:\n%s", body)
	}
	if !strings.Contains(body, `cctv_errors_total{route="/broken"} 1`) {
		t.Errorf("expected per-route error count, got:\n%s", body)
	}
}
