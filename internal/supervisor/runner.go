package supervisor

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"cctv-supervisor/internal/camera"
)

// Spec describes one encoder process to launch for a camera.
type Spec struct {
	Camera      camera.Config
	StorageRoot string
}

// Proc is a handle to a spawned encoder process.
//
// Done is closed when the process has exited; ExitCode is only meaningful
// after that. Terminate requests a graceful shutdown, Kill is the forceful
// escalation. Both are safe to call more than once. StderrTail returns the
// most recent diagnostic output, logged when the process dies unexpectedly.
type Proc interface {
	PID() int
	Done() <-chan struct{}
	ExitCode() int
	Terminate() error
	Kill() error
	StderrTail() []string
}

// Runner is the capability to launch encoder processes. The real
// implementation shells out to ffmpeg; tests substitute a deterministic fake
// so the supervisor's state machine can be exercised without subprocesses.
type Runner interface {
	Spawn(spec Spec) (Proc, error)
}

// FFmpegRunner launches one ffmpeg per camera, writing a rolling live HLS
// playlist plus hourly recording buckets under the storage root. The
// process's stderr is retained in a small ring buffer as diagnostic text.
type FFmpegRunner struct {
	Binary string // defaults to "ffmpeg"
}

// BuildFFmpegArgs constructs the dual-output ffmpeg argument list: a live HLS
// stream with a rotating segment window, and a stream-copied recording split
// into one-minute segments inside the current hour bucket with its own
// playlist index.
func BuildFFmpegArgs(spec Spec, now time.Time) []string {
	enc := spec.Camera.Enc
	livePath := camera.LivePath(spec.StorageRoot, spec.Camera.ID)
	bucketPath := camera.BucketPath(spec.StorageRoot, spec.Camera.ID, now)

	return []string{
		"-i", spec.Camera.RTSPURL,
		"-c:v", "libx264",
		"-c:a", "aac",
		"-preset", "ultrafast",
		"-tune", "zerolatency",
		"-threads", fmt.Sprintf("%d", enc.Threads),
		"-b:v", enc.VideoBitrate,
		"-b:a", enc.AudioBitrate,
		"-f", "hls",
		"-hls_time", fmt.Sprintf("%d", enc.SegmentSeconds),
		"-hls_list_size", fmt.Sprintf("%d", enc.ListSize),
		"-hls_flags", "delete_segments+append_list",
		"-hls_segment_filename", livePath + "/segment%03d.ts",
		livePath + "/" + camera.LivePlaylistName,
		"-c:v", "copy",
		"-c:a", "copy",
		"-f", "segment",
		"-segment_time", "60",
		"-segment_format", "mpegts",
		"-segment_list", bucketPath + "/" + camera.PlaylistName,
		"-segment_list_flags", "live",
		"-strftime", "1",
		bucketPath + "/%M.ts",
		"-y",
	}
}

// Spawn implements Runner. It creates the camera's live directory and the
// current hour bucket, then starts ffmpeg in its own process group so a
// graceful stop can signal the whole group.
func (r *FFmpegRunner) Spawn(spec Spec) (Proc, error) {
	now := time.Now()
	for _, dir := range []string{
		camera.LivePath(spec.StorageRoot, spec.Camera.ID),
		camera.BucketPath(spec.StorageRoot, spec.Camera.ID, now),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output directory %s: %w", dir, err)
		}
	}

	bin := r.Binary
	if bin == "" {
		bin = "ffmpeg"
	}

	cmd := exec.Command(bin, BuildFFmpegArgs(spec, now)...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("attach stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s for camera %s: %w", bin, spec.Camera.ID, err)
	}

	p := &osProc{
		cmd:    cmd,
		pid:    cmd.Process.Pid,
		done:   make(chan struct{}),
		stderr: newRingBuffer(64),
	}

	go func() {
		sc := bufio.NewScanner(stderr)
		for sc.Scan() {
			p.stderr.add(sc.Text())
		}
	}()

	go func() {
		err := cmd.Wait()
		p.mu.Lock()
		if cmd.ProcessState != nil {
			p.exitCode = cmd.ProcessState.ExitCode()
		} else if err != nil {
			p.exitCode = -1
		}
		p.mu.Unlock()
		close(p.done)
	}()

	return p, nil
}

// osProc wraps a live OS process group.
type osProc struct {
	cmd    *exec.Cmd
	pid    int
	done   chan struct{}
	stderr *ringBuffer

	mu       sync.Mutex
	exitCode int
}

func (p *osProc) PID() int { return p.pid }

func (p *osProc) Done() <-chan struct{} { return p.done }

func (p *osProc) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode
}

func (p *osProc) Terminate() error {
	return p.signal(syscall.SIGTERM)
}

func (p *osProc) Kill() error {
	return p.signal(syscall.SIGKILL)
}

func (p *osProc) signal(sig syscall.Signal) error {
	select {
	case <-p.done:
		return nil
	default:
	}
	// Negative pid addresses the process group created by Setpgid.
	if err := syscall.Kill(-p.pid, sig); err != nil && err != syscall.ESRCH {
		return err
	}
	return nil
}

// StderrTail returns the most recent diagnostic lines from the encoder.
func (p *osProc) StderrTail() []string {
	return p.stderr.recent()
}

// ringBuffer retains the last n lines of encoder output for crash diagnosis.
type ringBuffer struct {
	mu    sync.Mutex
	lines []string
	next  int
	full  bool
}

func newRingBuffer(n int) *ringBuffer {
	return &ringBuffer{lines: make([]string, n)}
}

func (b *ringBuffer) add(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines[b.next] = line
	b.next = (b.next + 1) % len(b.lines)
	if b.next == 0 {
		b.full = true
	}
}

func (b *ringBuffer) recent() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.full {
		out := make([]string, b.next)
		copy(out, b.lines[:b.next])
		return out
	}
	out := make([]string, 0, len(b.lines))
	out = append(out, b.lines[b.next:]...)
	out = append(out, b.lines[:b.next]...)
	return out
}
