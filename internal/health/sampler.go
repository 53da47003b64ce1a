package health

import (
	"strings"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	gopsnet "github.com/shirou/gopsutil/v4/net"
	"github.com/shirou/gopsutil/v4/process"
)

// Sampler provides the host metric primitives the monitor consumes.
// Each method may fail independently; the monitor degrades the affected
// alert to unknown instead of failing the whole check.
type Sampler interface {
	CPUPercent() (float64, error)
	MemoryPercent() (float64, error)
	DiskUsage(path string) (DiskUsage, error)
	Mounts() ([]string, error)
	Network() (NetworkStats, error)
	EncoderProcessCount() (int, error)
}

// HostSampler samples the local host via gopsutil.
type HostSampler struct {
	// EncoderName is the process name counted as an encoder ("ffmpeg").
	EncoderName string
}

// NewHostSampler returns a sampler counting ffmpeg encoder processes.
func NewHostSampler() *HostSampler {
	return &HostSampler{EncoderName: "ffmpeg"}
}

func (s *HostSampler) CPUPercent() (float64, error) {
	pcts, err := cpu.Percent(0, false)
	if err != nil {
		return 0, err
	}
	if len(pcts) == 0 {
		return 0, nil
	}
	return pcts[0], nil
}

func (s *HostSampler) MemoryPercent() (float64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return vm.UsedPercent, nil
}

func (s *HostSampler) DiskUsage(path string) (DiskUsage, error) {
	u, err := disk.Usage(path)
	if err != nil {
		return DiskUsage{}, err
	}
	return DiskUsage{
		Mount:       path,
		TotalBytes:  u.Total,
		UsedBytes:   u.Used,
		FreeBytes:   u.Free,
		UsedPercent: u.UsedPercent,
	}, nil
}

func (s *HostSampler) Mounts() ([]string, error) {
	parts, err := disk.Partitions(false)
	if err != nil {
		return nil, err
	}
	mounts := make([]string, 0, len(parts))
	for _, p := range parts {
		mounts = append(mounts, p.Mountpoint)
	}
	return mounts, nil
}

func (s *HostSampler) Network() (NetworkStats, error) {
	counters, err := gopsnet.IOCounters(false)
	if err != nil {
		return NetworkStats{}, err
	}
	if len(counters) == 0 {
		return NetworkStats{}, nil
	}
	c := counters[0]
	return NetworkStats{
		BytesSent:   c.BytesSent,
		BytesRecv:   c.BytesRecv,
		PacketsSent: c.PacketsSent,
		PacketsRecv: c.PacketsRecv,
	}, nil
}

// EncoderProcessCount counts live processes whose name contains the encoder
// name. Processes that disappear mid-iteration are skipped.
func (s *HostSampler) EncoderProcessCount() (int, error) {
	procs, err := process.Processes()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, p := range procs {
		name, err := p.Name()
		if err != nil {
			continue
		}
		if strings.Contains(strings.ToLower(name), s.EncoderName) {
			n++
		}
	}
	return n, nil
}
