package health

import (
	"errors"
	"testing"
	"time"

	"cctv-supervisor/internal/platform/logger"
	"cctv-supervisor/internal/supervisor"
)

// fakeSampler returns canned metrics; individual samples can be failed.
type fakeSampler struct {
	cpu     float64
	cpuErr  error
	memory  float64
	memErr  error
	disk    map[string]DiskUsage
	diskErr map[string]error
	procs   int
}

func (f *fakeSampler) CPUPercent() (float64, error)    { return f.cpu, f.cpuErr }
func (f *fakeSampler) MemoryPercent() (float64, error) { return f.memory, f.memErr }

func (f *fakeSampler) DiskUsage(path string) (DiskUsage, error) {
	if err, ok := f.diskErr[path]; ok {
		return DiskUsage{}, err
	}
	if u, ok := f.disk[path]; ok {
		return u, nil
	}
	return DiskUsage{Mount: path, UsedPercent: 50}, nil
}

func (f *fakeSampler) Mounts() ([]string, error)        { return nil, nil }
func (f *fakeSampler) Network() (NetworkStats, error)   { return NetworkStats{BytesSent: 1}, nil }
func (f *fakeSampler) EncoderProcessCount() (int, error) { return f.procs, nil }

// fakeTable is a canned supervisor view.
type fakeTable struct {
	statuses []supervisor.Status
}

func (f *fakeTable) StatusAll() []supervisor.Status { return f.statuses }

func newTestMonitor(s Sampler, table ProcessTable) *Monitor {
	thresholds := Thresholds{CPU: 80, Memory: 80, Disk: 90}
	return NewMonitor(s, table, "/data/hls", thresholds, 10*time.Second, time.Minute, logger.Discard(), nil)
}

func alertsOf(snap Snapshot, kind AlertKind) []Alert {
	var out []Alert
	for _, a := range snap.Alerts {
		if a.Kind == kind {
			out = append(out, a)
		}
	}
	return out
}

func TestCheck_all_healthy(t *testing.T) {
	s := &fakeSampler{cpu: 20, memory: 30}
	m := newTestMonitor(s, &fakeTable{})

	snap := m.Check()
	if !snap.Healthy {
		t.Fatalf("expected healthy, got %+v", snap)
	}
	if len(snap.Alerts) != 0 {
		t.Errorf("expected no alerts, got %+v", snap.Alerts)
	}
	if snap.Status != "healthy" {
		t.Errorf("expected healthy status, got %s", snap.Status)
	}
}

func TestCheck_storage_alert_above_threshold(t *testing.T) {
	s := &fakeSampler{cpu: 20, memory: 30, disk: map[string]DiskUsage{
		"/data/hls": {Mount: "/data/hls", UsedPercent: 95, TotalBytes: 100, UsedBytes: 95, FreeBytes: 5},
	}}
	m := newTestMonitor(s, &fakeTable{})

	snap := m.Check()
	if snap.Healthy {
		t.Fatal("95% disk with a 90% threshold must be unhealthy")
	}
	storage := alertsOf(snap, AlertStorage)
	if len(storage) != 1 {
		t.Fatalf("expected 1 storage alert, got %+v", snap.Alerts)
	}
	if storage[0].Value != 95 {
		t.Errorf("alert must carry the justifying metric, got %+v", storage[0])
	}
	if snap.Status != "critical" {
		t.Errorf("95%% is past the critical mark, got %s", snap.Status)
	}
}

func TestCheck_no_storage_alert_below_threshold(t *testing.T) {
	s := &fakeSampler{cpu: 20, memory: 30, disk: map[string]DiskUsage{
		"/data/hls": {Mount: "/data/hls", UsedPercent: 80},
	}}
	m := newTestMonitor(s, &fakeTable{})

	snap := m.Check()
	if !snap.Healthy {
		t.Fatalf("80%% disk should be healthy: %+v", snap.Alerts)
	}
	if len(alertsOf(snap, AlertStorage)) != 0 {
		t.Errorf("no storage alert expected at 80%%: %+v", snap.Alerts)
	}
}

func TestCheck_resource_alerts(t *testing.T) {
	s := &fakeSampler{cpu: 91, memory: 85}
	m := newTestMonitor(s, &fakeTable{})

	snap := m.Check()
	if snap.Healthy {
		t.Fatal("expected unhealthy")
	}
	res := alertsOf(snap, AlertResource)
	if len(res) != 2 {
		t.Fatalf("expected CPU and memory alerts, got %+v", snap.Alerts)
	}
}

func TestCheck_unreadable_mount_degrades_to_unknown(t *testing.T) {
	s := &fakeSampler{cpu: 20, memory: 30, diskErr: map[string]error{
		"/data/hls": errors.New("permission denied"),
	}}
	m := newTestMonitor(s, &fakeTable{})

	snap := m.Check()
	storage := alertsOf(snap, AlertStorage)
	if len(storage) != 1 || !storage[0].Unknown {
		t.Fatalf("expected one unknown storage alert, got %+v", snap.Alerts)
	}
	// An unknown metric alone must not fail the whole health check.
	if !snap.Healthy {
		t.Errorf("unknown metric should not mark the system unhealthy: %+v", snap)
	}
	if snap.Status != "warning" {
		t.Errorf("expected warning status, got %s", snap.Status)
	}
}

func TestCheck_cpu_sample_failure_degrades_to_unknown(t *testing.T) {
	s := &fakeSampler{cpuErr: errors.New("proc unreadable"), memory: 30}
	m := newTestMonitor(s, &fakeTable{})

	snap := m.Check()
	if snap.CPUPercent != nil {
		t.Error("failed CPU sample should leave the metric unset")
	}
	res := alertsOf(snap, AlertResource)
	if len(res) != 1 || !res[0].Unknown {
		t.Fatalf("expected one unknown resource alert, got %+v", snap.Alerts)
	}
}

func TestCheck_crash_loop_camera_alert(t *testing.T) {
	table := &fakeTable{statuses: []supervisor.Status{
		{CameraID: "cam1", State: supervisor.StateCrashLoop, Failures: 5},
		{CameraID: "cam2", State: supervisor.StateRunning},
	}}
	s := &fakeSampler{cpu: 20, memory: 30, procs: 1}
	m := newTestMonitor(s, table)

	snap := m.Check()
	if snap.Healthy {
		t.Fatal("a crash-looping camera must make the report unhealthy")
	}
	cams := alertsOf(snap, AlertCamera)
	if len(cams) != 1 {
		t.Fatalf("expected 1 camera alert, got %+v", snap.Alerts)
	}
	if snap.RunningStreams != 1 {
		t.Errorf("expected 1 running stream, got %d", snap.RunningStreams)
	}
}

func TestCheck_stuck_starting_camera_alert(t *testing.T) {
	table := &fakeTable{statuses: []supervisor.Status{
		{
			CameraID:    "cam1",
			State:       supervisor.StateStarting,
			PID:         4242,
			LastSpawnAt: time.Now().Add(-time.Minute),
		},
	}}
	s := &fakeSampler{cpu: 20, memory: 30}
	m := newTestMonitor(s, table)

	snap := m.Check()
	if len(alertsOf(snap, AlertCamera)) != 1 {
		t.Fatalf("camera stuck in starting past its grace window should alert: %+v", snap.Alerts)
	}
}

func TestCheck_pending_restart_is_not_stuck(t *testing.T) {
	// Starting with no live process means a backed-off restart is pending,
	// however long ago the stream was first started.
	table := &fakeTable{statuses: []supervisor.Status{
		{
			CameraID:    "cam1",
			State:       supervisor.StateStarting,
			StartedAt:   time.Now().Add(-time.Hour),
			LastSpawnAt: time.Now().Add(-time.Hour),
			Failures:    2,
		},
	}}
	s := &fakeSampler{cpu: 20, memory: 30}
	m := newTestMonitor(s, table)

	snap := m.Check()
	if got := alertsOf(snap, AlertCamera); len(got) != 0 {
		t.Fatalf("a restart cycle must not raise a stuck-starting alert: %+v", got)
	}
}

func TestCheck_encoder_process_mismatch(t *testing.T) {
	table := &fakeTable{statuses: []supervisor.Status{
		{CameraID: "cam1", State: supervisor.StateRunning},
		{CameraID: "cam2", State: supervisor.StateRunning},
	}}
	s := &fakeSampler{cpu: 20, memory: 30, procs: 1}
	m := newTestMonitor(s, table)

	snap := m.Check()
	cams := alertsOf(snap, AlertCamera)
	if len(cams) != 1 {
		t.Fatalf("expected a process-mismatch alert, got %+v", snap.Alerts)
	}
}

func TestLast_and_history(t *testing.T) {
	s := &fakeSampler{cpu: 20, memory: 30}
	m := newTestMonitor(s, &fakeTable{})

	if _, ok := m.Last(); ok {
		t.Fatal("no snapshot should exist before the first check")
	}

	for i := 0; i < historySize+5; i++ {
		m.Check()
	}

	if _, ok := m.Last(); !ok {
		t.Fatal("latest snapshot missing after checks")
	}
	if got := len(m.History()); got != historySize {
		t.Errorf("history should cap at %d, got %d", historySize, got)
	}
}
