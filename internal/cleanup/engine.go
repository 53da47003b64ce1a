// Package cleanup enforces the recording retention policy: hour buckets older
// than the retention window are deleted, bucket by bucket, without touching
// the region the encoder is still writing.
package cleanup

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"cctv-supervisor/internal/camera"
	"cctv-supervisor/internal/platform/metrics"
)

// DefaultRetention tells Preview/Run to use the engine's configured window.
const DefaultRetention = -1

// Outcome classifies what happened (or would happen) to one bucket.
type Outcome string

const (
	// OutcomeEligible marks a bucket a Run pass would delete (preview only).
	OutcomeEligible Outcome = "eligible"
	// OutcomeDeleted marks a bucket removed by a Run pass.
	OutcomeDeleted Outcome = "deleted"
	// OutcomeSkippedActive marks the currently-written bucket, which is
	// never deleted regardless of the retention window.
	OutcomeSkippedActive Outcome = "skipped_active"
	// OutcomeFailed marks a bucket whose deletion failed; the pass continues.
	OutcomeFailed Outcome = "failed"
)

// Bucket identifies one hour of recordings for one camera: its segment files
// plus their playlist index, living in a single directory.
type Bucket struct {
	CameraID  string    `json:"camera_id"`
	Date      string    `json:"date"`
	Hour      int       `json:"hour"`
	Path      string    `json:"-"`
	SizeBytes int64     `json:"size_bytes"`
	FileCount int       `json:"file_count"`
	start     time.Time // the bucket's designated hour
}

// BucketResult pairs a bucket with its pass outcome.
type BucketResult struct {
	Bucket
	Outcome Outcome `json:"outcome"`
	Reason  string  `json:"reason,omitempty"`
}

// Report is the structured result of one preview or run pass.
type Report struct {
	Cutoff         time.Time      `json:"cutoff"`
	DryRun         bool           `json:"dry_run"`
	Buckets        []BucketResult `json:"buckets"`
	EligibleCount  int            `json:"eligible_count"`
	DeletedCount   int            `json:"deleted_count"`
	SkippedActive  int            `json:"skipped_active"`
	FailedCount    int            `json:"failed_count"`
	ReclaimedBytes int64          `json:"reclaimed_bytes"`
	// Errors lists scan-level problems (unreadable directories, malformed
	// names); they never abort the pass.
	Errors []string `json:"errors,omitempty"`
}

// Engine scans the recording tree and applies the retention policy.
type Engine struct {
	root      string
	retention int // days
	log       *slog.Logger
	met       *metrics.Metrics // may be nil
	now       func() time.Time
}

// NewEngine constructs an Engine over the storage root with the given
// retention window in days. met may be nil.
func NewEngine(root string, retentionDays int, log *slog.Logger, met *metrics.Metrics) *Engine {
	return &Engine{
		root:      root,
		retention: retentionDays,
		log:       log,
		met:       met,
		now:       time.Now,
	}
}

// Preview computes what a Run pass would delete, without side effects.
// target scopes the pass to one camera; empty means all. days overrides the
// retention window; DefaultRetention keeps the configured one.
func (e *Engine) Preview(target camera.ID, days int) Report {
	return e.pass(target, days, true)
}

// Run deletes every over-retention bucket, one directory per bucket, so a
// bucket's segments and playlist index are removed together. Failures are
// recorded per bucket and never abort the pass.
func (e *Engine) Run(target camera.ID, days int) Report {
	report := e.pass(target, days, false)
	if e.met != nil {
		e.met.IncCleanupRuns()
		e.met.AddBucketsDeleted(report.DeletedCount)
		e.met.AddBytesReclaimed(report.ReclaimedBytes)
	}
	e.log.Info("cleanup pass finished",
		slog.Int("deleted", report.DeletedCount),
		slog.Int("failed", report.FailedCount),
		slog.Int("skipped_active", report.SkippedActive),
		slog.Int64("reclaimed_bytes", report.ReclaimedBytes))
	return report
}

// pass scans fully, classifies on the completed scan, then acts. Scanning
// and acting are never interleaved, so a bucket is classified from one
// consistent view of the tree.
func (e *Engine) pass(target camera.ID, days int, dryRun bool) Report {
	if days == DefaultRetention {
		days = e.retention
	}
	now := e.now()
	cutoff := now.AddDate(0, 0, -days)
	activeDate, activeHour := now.Format(camera.DateLayout), now.Hour()

	report := Report{Cutoff: cutoff, DryRun: dryRun}

	buckets := e.scan(target, &report)
	for _, b := range buckets {
		if !b.start.Before(cutoff) {
			continue // inside the retention window
		}
		if b.Date == activeDate && b.Hour == activeHour {
			report.Buckets = append(report.Buckets, BucketResult{
				Bucket:  b,
				Outcome: OutcomeSkippedActive,
				Reason:  "bucket is the current recording hour",
			})
			report.SkippedActive++
			continue
		}

		if dryRun {
			report.Buckets = append(report.Buckets, BucketResult{Bucket: b, Outcome: OutcomeEligible})
			report.EligibleCount++
			report.ReclaimedBytes += b.SizeBytes
			continue
		}

		if err := os.RemoveAll(b.Path); err != nil {
			report.Buckets = append(report.Buckets, BucketResult{
				Bucket:  b,
				Outcome: OutcomeFailed,
				Reason:  err.Error(),
			})
			report.FailedCount++
			e.log.Error("bucket deletion failed",
				slog.String("camera_id", b.CameraID),
				slog.String("bucket", b.Date+"/"+fmt.Sprintf("%02d", b.Hour)),
				slog.String("error", err.Error()))
			continue
		}
		report.Buckets = append(report.Buckets, BucketResult{Bucket: b, Outcome: OutcomeDeleted})
		report.DeletedCount++
		report.ReclaimedBytes += b.SizeBytes

		// A date directory emptied by this pass is removed too; Remove
		// refuses non-empty directories so this is safe to attempt.
		_ = os.Remove(filepath.Dir(b.Path))
	}

	return report
}

// scan builds the bucket list for the targeted cameras from one walk of the
// recording tree. Malformed date or hour directory names are reported and
// skipped, never deleted.
func (e *Engine) scan(target camera.ID, report *Report) []Bucket {
	var camDirs []string
	if target != "" {
		camDirs = []string{string(target)}
	} else {
		entries, err := os.ReadDir(e.root)
		if err != nil {
			if !os.IsNotExist(err) {
				report.Errors = append(report.Errors, err.Error())
			}
			return nil
		}
		for _, entry := range entries {
			if entry.IsDir() {
				camDirs = append(camDirs, entry.Name())
			}
		}
	}

	var buckets []Bucket
	for _, cam := range camDirs {
		recDir := filepath.Join(e.root, cam, "recordings")
		dateEntries, err := os.ReadDir(recDir)
		if err != nil {
			if !os.IsNotExist(err) {
				report.Errors = append(report.Errors, err.Error())
			}
			continue
		}

		for _, dateEntry := range dateEntries {
			if !dateEntry.IsDir() {
				continue
			}
			day, err := time.ParseInLocation(camera.DateLayout, dateEntry.Name(), time.Local)
			if err != nil {
				report.Errors = append(report.Errors,
					fmt.Sprintf("skipping %s/%s: not a recording date", cam, dateEntry.Name()))
				continue
			}

			dateDir := filepath.Join(recDir, dateEntry.Name())
			hourEntries, err := os.ReadDir(dateDir)
			if err != nil {
				report.Errors = append(report.Errors, err.Error())
				continue
			}

			for _, hourEntry := range hourEntries {
				if !hourEntry.IsDir() {
					continue
				}
				hour, err := strconv.Atoi(hourEntry.Name())
				if err != nil || hour < 0 || hour > 23 {
					report.Errors = append(report.Errors,
						fmt.Sprintf("skipping %s/%s/%s: not a recording hour", cam, dateEntry.Name(), hourEntry.Name()))
					continue
				}

				path := filepath.Join(dateDir, hourEntry.Name())
				size, files := bucketSize(path)
				buckets = append(buckets, Bucket{
					CameraID:  cam,
					Date:      dateEntry.Name(),
					Hour:      hour,
					Path:      path,
					SizeBytes: size,
					FileCount: files,
					start:     day.Add(time.Duration(hour) * time.Hour),
				})
			}
		}
	}

	sort.Slice(buckets, func(i, j int) bool {
		if buckets[i].CameraID != buckets[j].CameraID {
			return buckets[i].CameraID < buckets[j].CameraID
		}
		return buckets[i].start.Before(buckets[j].start)
	})
	return buckets
}

// bucketSize sums file sizes and counts files directly or indirectly under
// the bucket directory.
func bucketSize(dir string) (int64, int) {
	var total int64
	var count int
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.Type().IsRegular() {
			count++
			if info, err := d.Info(); err == nil {
				total += info.Size()
			}
		}
		return nil
	})
	return total, count
}
