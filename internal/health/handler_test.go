package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"cctv-supervisor/internal/platform/logger"
	"cctv-supervisor/internal/supervisor"
)

func newTestRouter(m *Monitor) *chi.Mux {
	r := chi.NewRouter()
	NewHandler(m).Routes(r)
	return r
}

func TestGetHealth_ok(t *testing.T) {
	m := newTestMonitor(&fakeSampler{cpu: 20, memory: 30}, &fakeTable{})
	r := newTestRouter(m)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var snap Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if !snap.Healthy || snap.Status != "healthy" {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
}

func TestGetHealth_unhealthy_returns_503(t *testing.T) {
	s := &fakeSampler{cpu: 20, memory: 30, disk: map[string]DiskUsage{
		"/data/hls": {Mount: "/data/hls", UsedPercent: 96},
	}}
	r := newTestRouter(newTestMonitor(s, &fakeTable{}))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestGetMetrics_serves_cached_snapshot(t *testing.T) {
	s := &fakeSampler{cpu: 20, memory: 30}
	m := newTestMonitor(s, &fakeTable{})
	r := newTestRouter(m)

	first := m.Check()
	s.cpu = 99 // must not show up without a new check

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var snap Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if snap.CPUPercent == nil || *snap.CPUPercent != *first.CPUPercent {
		t.Errorf("metrics endpoint must serve the cached snapshot, got %+v", snap.CPUPercent)
	}
}

func TestGetHistory(t *testing.T) {
	m := newTestMonitor(&fakeSampler{cpu: 20, memory: 30}, &fakeTable{})
	m.Check()
	m.Check()
	r := newTestRouter(m)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/history", nil))

	var hist []Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &hist); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(hist) != 2 {
		t.Errorf("expected 2 snapshots, got %d", len(hist))
	}
}

func TestGetProcesses(t *testing.T) {
	table := &fakeTable{statuses: []supervisor.Status{
		{CameraID: "cam1", State: supervisor.StateRunning},
	}}
	r := newTestRouter(newTestMonitor(&fakeSampler{cpu: 20, memory: 30, procs: 1}, table))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/processes", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var statuses []supervisor.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &statuses); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(statuses) != 1 || statuses[0].CameraID != "cam1" {
		t.Errorf("unexpected process table: %+v", statuses)
	}
}

func TestStorageDetails(t *testing.T) {
	root := t.TempDir()
	mustWrite := func(rel string, n int) {
		t.Helper()
		path := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, make([]byte, n), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	mustWrite("cam1/live/live.m3u8", 100)
	mustWrite("cam1/live/seg0.ts", 400)
	mustWrite("cam1/recordings/2024-02-15/10/rec.ts", 1000)
	mustWrite("cam2/live/live.m3u8", 50)

	m := NewMonitor(&fakeSampler{}, &fakeTable{}, root, Thresholds{CPU: 80, Memory: 80, Disk: 90},
		10*time.Second, time.Minute, logger.Discard(), nil)

	report := m.StorageDetails()
	if len(report.Errors) != 0 {
		t.Fatalf("unexpected walk errors: %v", report.Errors)
	}
	if len(report.Cameras) != 2 {
		t.Fatalf("expected 2 cameras, got %+v", report.Cameras)
	}
	cam1 := report.Cameras[0]
	if cam1.CameraID != "cam1" || cam1.LiveBytes != 500 || cam1.RecordingBytes != 1000 || cam1.TotalBytes != 1500 {
		t.Errorf("cam1 sizes wrong: %+v", cam1)
	}
	// cam2 has no recordings dir; that is zero, not an error.
	if report.Cameras[1].RecordingBytes != 0 {
		t.Errorf("missing recordings dir should count as zero: %+v", report.Cameras[1])
	}
	if report.TotalBytes != 1550 {
		t.Errorf("expected total 1550, got %d", report.TotalBytes)
	}
}

func TestStorageDetails_missing_root(t *testing.T) {
	m := NewMonitor(&fakeSampler{}, &fakeTable{}, "/nonexistent/path", Thresholds{},
		10*time.Second, time.Minute, logger.Discard(), nil)

	report := m.StorageDetails()
	if len(report.Errors) != 1 {
		t.Fatalf("expected a single root error, got %+v", report)
	}
	if len(report.Cameras) != 0 || report.TotalBytes != 0 {
		t.Errorf("missing root should report empty: %+v", report)
	}
}
