package health

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"cctv-supervisor/internal/platform/metrics"
	"cctv-supervisor/internal/supervisor"
)

// historySize bounds the rolling snapshot history kept for trend inspection.
const historySize = 20

// Monitor periodically produces health Snapshots from host metrics and
// supervisor state.
type Monitor struct {
	sampler     Sampler
	procs       ProcessTable
	storageRoot string
	thresholds  Thresholds
	grace       time.Duration
	interval    time.Duration
	log         *slog.Logger
	met         *metrics.Metrics // may be nil
	now         func() time.Time

	mu      sync.RWMutex
	last    *Snapshot
	history []Snapshot
}

// NewMonitor constructs a Monitor. grace is the supervisor's grace period,
// used to flag cameras stuck in Starting. met may be nil.
func NewMonitor(sampler Sampler, procs ProcessTable, storageRoot string, thresholds Thresholds, grace, interval time.Duration, log *slog.Logger, met *metrics.Metrics) *Monitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Monitor{
		sampler:     sampler,
		procs:       procs,
		storageRoot: storageRoot,
		thresholds:  thresholds,
		grace:       grace,
		interval:    interval,
		log:         log,
		met:         met,
		now:         time.Now,
	}
}

// Check produces a fresh snapshot, records it as the latest, and returns it.
func (m *Monitor) Check() Snapshot {
	snap := m.collect(m.now())

	m.mu.Lock()
	m.last = &snap
	m.history = append(m.history, snap)
	if len(m.history) > historySize {
		m.history = m.history[len(m.history)-historySize:]
	}
	m.mu.Unlock()

	if m.met != nil {
		m.met.SetHealthAlerts(len(snap.Alerts))
	}
	return snap
}

// Last returns the most recent snapshot, if any check has run.
func (m *Monitor) Last() (Snapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.last == nil {
		return Snapshot{}, false
	}
	return *m.last, true
}

// History returns the retained recent snapshots, oldest first.
func (m *Monitor) History() []Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Snapshot, len(m.history))
	copy(out, m.history)
	return out
}

// Processes returns the supervisor's per-camera process table.
func (m *Monitor) Processes() []supervisor.Status {
	return m.procs.StatusAll()
}

// Run samples on the configured interval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	t := time.NewTicker(m.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			snap := m.Check()
			if !snap.Healthy {
				m.log.Warn("health check unhealthy",
					slog.String("status", snap.Status),
					slog.Int("alerts", len(snap.Alerts)))
			}
		}
	}
}

// collect gathers metrics and evaluates every rule independently. A failed
// sample degrades only its own alert to unknown.
func (m *Monitor) collect(now time.Time) Snapshot {
	snap := Snapshot{Timestamp: now.UTC()}

	// Host CPU.
	if v, err := m.sampler.CPUPercent(); err != nil {
		snap.Alerts = append(snap.Alerts, Alert{
			Kind: AlertResource, Unknown: true, Metric: "cpu_percent",
			Message: fmt.Sprintf("CPU usage unavailable: %v", err),
		})
	} else {
		snap.CPUPercent = &v
		if v >= m.thresholds.CPU {
			snap.Alerts = append(snap.Alerts, Alert{
				Kind: AlertResource, Metric: "cpu_percent", Value: v,
				Message: fmt.Sprintf("high CPU usage: %.1f%%", v),
			})
		}
	}

	// Host memory.
	if v, err := m.sampler.MemoryPercent(); err != nil {
		snap.Alerts = append(snap.Alerts, Alert{
			Kind: AlertResource, Unknown: true, Metric: "memory_percent",
			Message: fmt.Sprintf("memory usage unavailable: %v", err),
		})
	} else {
		snap.MemoryPercent = &v
		if v >= m.thresholds.Memory {
			snap.Alerts = append(snap.Alerts, Alert{
				Kind: AlertResource, Metric: "memory_percent", Value: v,
				Message: fmt.Sprintf("high memory usage: %.1f%%", v),
			})
		}
	}

	// Disk usage: the storage root always, plus every readable mount.
	m.collectDisks(&snap)

	// Network counters are informational only.
	if ns, err := m.sampler.Network(); err == nil {
		snap.Network = &ns
	}

	// Supervisor state.
	snap.Cameras = m.procs.StatusAll()
	for _, st := range snap.Cameras {
		switch {
		case st.State == supervisor.StateRunning:
			snap.RunningStreams++
		case st.State == supervisor.StateCrashLoop:
			snap.Alerts = append(snap.Alerts, Alert{
				Kind: AlertCamera, Metric: "camera_state",
				Message: fmt.Sprintf("camera %s is in a crash loop (%d consecutive failures)", st.CameraID, st.Failures),
			})
		// A camera between backed-off restart attempts is Starting with no
		// live process; only a process alive past its grace window without
		// promotion is stuck.
		case st.State == supervisor.StateStarting && m.grace > 0 && st.PID != 0 &&
			!st.LastSpawnAt.IsZero() && now.Sub(st.LastSpawnAt) > m.grace:
			snap.Alerts = append(snap.Alerts, Alert{
				Kind: AlertCamera, Metric: "camera_state",
				Message: fmt.Sprintf("camera %s has not left starting state within its grace window", st.CameraID),
			})
		}
	}

	// Encoder process count vs running streams.
	if n, err := m.sampler.EncoderProcessCount(); err == nil {
		snap.EncoderProcesses = &n
		if n != snap.RunningStreams {
			snap.Alerts = append(snap.Alerts, Alert{
				Kind: AlertCamera, Metric: "encoder_processes", Value: float64(n),
				Message: fmt.Sprintf("encoder process mismatch: %d processes for %d running streams", n, snap.RunningStreams),
			})
		}
	}

	snap.Healthy, snap.Status, snap.Message = summarize(snap.Alerts, snap.Disks)
	return snap
}

// collectDisks samples each mount; a mount that cannot be read yields an
// unknown storage alert for that mount only.
func (m *Monitor) collectDisks(snap *Snapshot) {
	paths := []string{m.storageRoot}
	if mounts, err := m.sampler.Mounts(); err == nil {
		paths = append(paths, mounts...)
	}

	seen := make(map[string]bool, len(paths))
	for _, path := range paths {
		if seen[path] {
			continue
		}
		seen[path] = true

		u, err := m.sampler.DiskUsage(path)
		if err != nil {
			snap.Alerts = append(snap.Alerts, Alert{
				Kind: AlertStorage, Unknown: true, Metric: "disk_percent",
				Message: fmt.Sprintf("disk usage for %s unavailable: %v", path, err),
			})
			continue
		}
		snap.Disks = append(snap.Disks, u)
		if u.UsedPercent >= m.thresholds.Disk {
			snap.Alerts = append(snap.Alerts, Alert{
				Kind: AlertStorage, Metric: "disk_percent", Value: u.UsedPercent,
				Message: fmt.Sprintf("high disk usage on %s: %.1f%%", path, u.UsedPercent),
			})
		}
	}
}

// summarize derives the overall verdict. Unknown alerts degrade the status to
// warning but do not mark the system unhealthy on their own.
func summarize(alerts []Alert, disks []DiskUsage) (healthy bool, status, message string) {
	firing := 0
	for _, a := range alerts {
		if !a.Unknown {
			firing++
		}
	}

	switch {
	case len(alerts) == 0:
		return true, "healthy", "all systems operating normally"
	case firing == 0:
		return true, "warning", fmt.Sprintf("system has %d metric(s) unavailable", len(alerts))
	}

	status = "warning"
	for _, d := range disks {
		if d.UsedPercent >= criticalDiskPercent {
			status = "critical"
			break
		}
	}
	if status == "critical" {
		return false, status, fmt.Sprintf("system has critical issues: %d alert(s)", len(alerts))
	}
	return false, status, fmt.Sprintf("system has %d warning(s)", len(alerts))
}
