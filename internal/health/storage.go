package health

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// CameraStorage is the on-disk footprint of one camera's output tree.
type CameraStorage struct {
	CameraID       string `json:"camera_id"`
	LiveBytes      int64  `json:"live_bytes"`
	RecordingBytes int64  `json:"recording_bytes"`
	TotalBytes     int64  `json:"total_bytes"`
}

// StorageReport summarizes the storage root, per camera directory.
type StorageReport struct {
	Root       string          `json:"root"`
	Cameras    []CameraStorage `json:"cameras"`
	TotalBytes int64           `json:"total_bytes"`
	// Errors lists per-directory walk failures; a failure never aborts
	// the rest of the report.
	Errors []string `json:"errors,omitempty"`
}

// StorageDetails walks the storage root and reports live/recording sizes per
// camera directory.
func (m *Monitor) StorageDetails() StorageReport {
	report := StorageReport{Root: m.storageRoot}

	entries, err := os.ReadDir(m.storageRoot)
	if err != nil {
		report.Errors = append(report.Errors, err.Error())
		return report
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		cam := CameraStorage{CameraID: entry.Name()}
		base := filepath.Join(m.storageRoot, entry.Name())

		live, errs := treeSize(filepath.Join(base, "live"))
		cam.LiveBytes = live
		report.Errors = append(report.Errors, errs...)

		rec, errs := treeSize(filepath.Join(base, "recordings"))
		cam.RecordingBytes = rec
		report.Errors = append(report.Errors, errs...)

		cam.TotalBytes = cam.LiveBytes + cam.RecordingBytes
		report.TotalBytes += cam.TotalBytes
		report.Cameras = append(report.Cameras, cam)
	}

	sort.Slice(report.Cameras, func(i, j int) bool {
		return report.Cameras[i].CameraID < report.Cameras[j].CameraID
	})
	return report
}

// treeSize sums regular file sizes under dir. A missing dir is zero, not an
// error; other walk failures are collected and the walk continues.
func treeSize(dir string) (int64, []string) {
	var total int64
	var errs []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return filepath.SkipAll
			}
			errs = append(errs, err.Error())
			return nil
		}
		if d.Type().IsRegular() {
			if info, err := d.Info(); err == nil {
				total += info.Size()
			}
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		errs = append(errs, err.Error())
	}
	return total, errs
}
