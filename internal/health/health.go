// Package health samples host resources and supervisor state, evaluates
// threshold rules, and produces auditable health snapshots. It is strictly an
// observer: it never mutates supervisor or filesystem state.
package health

import (
	"time"

	"cctv-supervisor/internal/supervisor"
)

// AlertKind classifies a health alert.
type AlertKind string

const (
	AlertStorage  AlertKind = "storage"
	AlertCamera   AlertKind = "camera"
	AlertResource AlertKind = "resource"
)

// Alert is one triggered (or unknown) health condition, carrying the metric
// value that justified it so callers can audit why a check failed.
type Alert struct {
	Kind    AlertKind `json:"kind"`
	Message string    `json:"message"`
	Metric  string    `json:"metric,omitempty"`
	Value   float64   `json:"value,omitempty"`
	// Unknown marks an alert whose underlying metric could not be
	// collected. It is reported for visibility but does not by itself
	// mark the system unhealthy.
	Unknown bool `json:"unknown,omitempty"`
}

// DiskUsage is the usage of one monitored mount.
type DiskUsage struct {
	Mount       string  `json:"mount"`
	TotalBytes  uint64  `json:"total_bytes"`
	UsedBytes   uint64  `json:"used_bytes"`
	FreeBytes   uint64  `json:"free_bytes"`
	UsedPercent float64 `json:"used_percent"`
}

// NetworkStats holds cumulative host network counters.
type NetworkStats struct {
	BytesSent   uint64 `json:"bytes_sent"`
	BytesRecv   uint64 `json:"bytes_recv"`
	PacketsSent uint64 `json:"packets_sent"`
	PacketsRecv uint64 `json:"packets_recv"`
}

// Snapshot is one point-in-time health report. Immutable once produced.
// Pointer metric fields are nil when that sample failed; the corresponding
// alert is then reported as unknown.
type Snapshot struct {
	Timestamp time.Time `json:"timestamp"`
	Healthy   bool      `json:"healthy"`
	Status    string    `json:"status"` // "healthy", "warning", "critical"
	Message   string    `json:"message"`

	CPUPercent    *float64      `json:"cpu_percent,omitempty"`
	MemoryPercent *float64      `json:"memory_percent,omitempty"`
	Disks         []DiskUsage   `json:"disks,omitempty"`
	Network       *NetworkStats `json:"network,omitempty"`

	RunningStreams   int                 `json:"running_streams"`
	EncoderProcesses *int                `json:"encoder_processes,omitempty"`
	Cameras          []supervisor.Status `json:"cameras"`

	Alerts []Alert `json:"alerts"`
}

// ProcessTable is the read-only view of the supervisor the monitor consumes.
type ProcessTable interface {
	StatusAll() []supervisor.Status
}

// Thresholds are the alert trip points, in percent.
type Thresholds struct {
	CPU    float64
	Memory float64
	Disk   float64
}

// criticalDiskPercent escalates the overall status from warning to critical.
const criticalDiskPercent = 95
