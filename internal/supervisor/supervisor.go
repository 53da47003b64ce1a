package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"cctv-supervisor/internal/camera"
	"cctv-supervisor/internal/platform/metrics"
)

// State is the lifecycle state of one camera's encoder process.
type State string

const (
	StateStopped   State = "stopped"
	StateStarting  State = "starting"
	StateRunning   State = "running"
	StateStopping  State = "stopping"
	StateCrashLoop State = "crash_loop"
)

var (
	// ErrNotFound is returned for camera ids absent from the registry.
	ErrNotFound = camera.ErrNotFound

	// ErrAlreadyRunning is returned by Start when the stream is already
	// starting or running. Benign: the desired state already holds.
	ErrAlreadyRunning = errors.New("stream already running")

	// ErrAlreadyStopped is returned by Stop when there is nothing to stop.
	// Benign: the desired state already holds.
	ErrAlreadyStopped = errors.New("stream already stopped")

	// ErrStopping is returned by Start while a Stop is still tearing the
	// stream down. Retryable once the stop completes.
	ErrStopping = errors.New("stream stop in progress")

	// ErrSpawn wraps encoder launch failures. The camera is left Stopped.
	ErrSpawn = errors.New("encoder launch failed")
)

// Status is a read-only snapshot of one camera's process handle.
type Status struct {
	CameraID      camera.ID `json:"camera_id"`
	Name          string    `json:"name"`
	Enabled       bool      `json:"enabled"`
	State         State     `json:"state"`
	PID           int       `json:"pid,omitempty"`
	StartedAt     time.Time `json:"started_at,omitzero"`
	LastSpawnAt   time.Time `json:"last_spawn_at,omitzero"`
	LastExitCode  int       `json:"last_exit_code"`
	Failures      int       `json:"consecutive_failures"`
	Restarts      int       `json:"restarts"`
	LastRestartAt time.Time `json:"last_restart_at,omitzero"`
}

// Options bound the supervisor's timing and retry behavior.
type Options struct {
	StorageRoot     string
	MonitorInterval time.Duration
	GracePeriod     time.Duration
	StopTimeout     time.Duration
	BackoffInitial  time.Duration
	BackoffMax      time.Duration
	MaxFailures     int
}

// Supervisor owns every per-camera process handle. Command operations and the
// monitor loop serialize on a per-camera mutex, so operations on different
// cameras never block each other.
type Supervisor struct {
	registry *camera.Registry
	runner   Runner
	opts     Options
	log      *slog.Logger
	met      *metrics.Metrics // may be nil
	now      func() time.Time

	mu      sync.RWMutex
	handles map[camera.ID]*handle
}

// handle is the mutable per-camera record. Its mutex is the per-camera lock;
// the supervisor map lock is never held while a handle lock is held.
type handle struct {
	mu  sync.Mutex
	cfg camera.Config

	state         State
	proc          Proc
	startedAt     time.Time
	spawnedAt     time.Time
	lastExitCode  int
	failures      int
	restarts      int
	lastRestartAt time.Time
	nextRestartAt time.Time
	retry         *backoff.ExponentialBackOff
}

// New constructs a Supervisor over the given registry and runner.
// met may be nil to disable metric recording (e.g. in tests).
func New(registry *camera.Registry, runner Runner, opts Options, log *slog.Logger, met *metrics.Metrics) *Supervisor {
	if opts.MonitorInterval <= 0 {
		opts.MonitorInterval = 5 * time.Second
	}
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = 10 * time.Second
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = 10 * time.Second
	}
	if opts.BackoffInitial <= 0 {
		opts.BackoffInitial = 2 * time.Second
	}
	if opts.BackoffMax <= 0 {
		opts.BackoffMax = time.Minute
	}
	if opts.MaxFailures <= 0 {
		opts.MaxFailures = 5
	}
	return &Supervisor{
		registry: registry,
		runner:   runner,
		opts:     opts,
		log:      log,
		met:      met,
		now:      time.Now,
		handles:  make(map[camera.ID]*handle),
	}
}

// Start launches the encoder for the camera. It returns ErrNotFound for
// unknown ids, ErrAlreadyRunning when the stream is starting or running, and
// a spawn failure (wrapping ErrSpawn) with the camera left Stopped.
// A successful Start leaves the camera Starting; the monitor loop promotes it
// to Running once it has survived the grace period.
func (s *Supervisor) Start(id camera.ID) (Status, error) {
	cfg, err := s.registry.Get(id)
	if err != nil {
		return Status{}, err
	}

	h := s.handleFor(cfg)
	h.mu.Lock()
	defer h.mu.Unlock()

	switch h.state {
	case StateStarting, StateRunning:
		return h.statusLocked(), ErrAlreadyRunning
	case StateStopping:
		return h.statusLocked(), ErrStopping
	}

	// Explicit start resets the retry budget, including out of CrashLoop.
	h.failures = 0
	h.nextRestartAt = time.Time{}
	h.retry = s.newBackoff()

	if err := s.spawnLocked(h); err != nil {
		h.state = StateStopped
		return h.statusLocked(), err
	}

	h.state = StateStarting
	h.startedAt = s.now()
	s.log.Info("stream starting",
		slog.String("camera_id", string(id)),
		slog.Int("pid", h.proc.PID()),
		slog.String("source", cfg.RedactedURL()))
	return h.statusLocked(), nil
}

// Stop terminates the camera's encoder: graceful signal, bounded wait,
// forceful escalation. Stopping an already-stopped camera returns
// ErrAlreadyStopped with no side effects, as does a Stop racing one already
// in flight (the first caller owns the termination). The per-camera lock is
// released for the wait itself so Status and the monitor loop are never
// blocked behind subprocess I/O; the Stopping state keeps Start and other
// Stops out in the meantime.
func (s *Supervisor) Stop(id camera.ID) (Status, error) {
	cfg, err := s.registry.Get(id)
	if err != nil {
		return Status{}, err
	}

	h := s.handleFor(cfg)
	h.mu.Lock()

	switch h.state {
	case StateStopped, StateStopping:
		st := h.statusLocked()
		h.mu.Unlock()
		return st, ErrAlreadyStopped
	}

	// A pending restart or crash-loop has no live process to signal.
	if h.proc == nil {
		h.toStoppedLocked()
		st := h.statusLocked()
		h.mu.Unlock()
		s.log.Info("stream stopped", slog.String("camera_id", string(id)))
		return st, nil
	}

	h.state = StateStopping
	proc := h.proc
	h.mu.Unlock()

	if err := proc.Terminate(); err != nil {
		s.log.Warn("graceful terminate failed",
			slog.String("camera_id", string(id)), slog.String("error", err.Error()))
	}

	select {
	case <-proc.Done():
	case <-time.After(s.opts.StopTimeout):
		s.log.Warn("stream did not exit in time, killing",
			slog.String("camera_id", string(id)), slog.Int("pid", proc.PID()))
		if err := proc.Kill(); err != nil {
			s.log.Error("kill failed",
				slog.String("camera_id", string(id)), slog.String("error", err.Error()))
		}
		select {
		case <-proc.Done():
		case <-time.After(s.opts.StopTimeout):
			// Give up waiting; the group signal was delivered and the
			// process is unreapable at worst.
		}
	}

	h.mu.Lock()
	h.lastExitCode = proc.ExitCode()
	h.toStoppedLocked()
	st := h.statusLocked()
	h.mu.Unlock()
	s.log.Info("stream stopped", slog.String("camera_id", string(id)))
	return st, nil
}

// Restart stops then starts the camera. Already-stopped is not an error here.
func (s *Supervisor) Restart(id camera.ID) (Status, error) {
	if _, err := s.Stop(id); err != nil && !errors.Is(err, ErrAlreadyStopped) {
		return Status{}, err
	}
	return s.Start(id)
}

// Status returns a snapshot for one camera. Cameras that were never started
// report Stopped.
func (s *Supervisor) Status(id camera.ID) (Status, error) {
	cfg, err := s.registry.Get(id)
	if err != nil {
		return Status{}, err
	}

	s.mu.RLock()
	h, ok := s.handles[id]
	s.mu.RUnlock()
	if !ok {
		return Status{CameraID: cfg.ID, Name: cfg.Name, Enabled: cfg.Enabled, State: StateStopped}, nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	return h.statusLocked(), nil
}

// StatusAll returns snapshots for every registered camera, ordered by id.
func (s *Supervisor) StatusAll() []Status {
	out := make([]Status, 0, s.registry.Len())
	for _, cfg := range s.registry.All() {
		st, err := s.Status(cfg.ID)
		if err != nil {
			continue
		}
		out = append(out, st)
	}
	return out
}

// RunningCount reports how many cameras are currently Running.
func (s *Supervisor) RunningCount() int {
	n := 0
	for _, st := range s.StatusAll() {
		if st.State == StateRunning {
			n++
		}
	}
	return n
}

// StartEnabled starts every enabled camera, logging but not propagating
// individual spawn failures. Called once at boot.
func (s *Supervisor) StartEnabled() {
	for _, cfg := range s.registry.All() {
		if !cfg.Enabled {
			continue
		}
		if _, err := s.Start(cfg.ID); err != nil {
			s.log.Error("failed to start camera at boot",
				slog.String("camera_id", string(cfg.ID)), slog.String("error", err.Error()))
		}
	}
}

// StopAll stops every camera concurrently. Used at shutdown.
func (s *Supervisor) StopAll() {
	var wg sync.WaitGroup
	for _, cfg := range s.registry.All() {
		wg.Add(1)
		go func(id camera.ID) {
			defer wg.Done()
			if _, err := s.Stop(id); err != nil && !errors.Is(err, ErrAlreadyStopped) {
				s.log.Error("stop failed during shutdown",
					slog.String("camera_id", string(id)), slog.String("error", err.Error()))
			}
		}(cfg.ID)
	}
	wg.Wait()
}

// Run drives the monitor loop until ctx is cancelled. An in-flight tick is
// allowed to finish.
func (s *Supervisor) Run(ctx context.Context) {
	t := time.NewTicker(s.opts.MonitorInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.tick(s.now())
		}
	}
}

// tick advances every handle's state machine: promotes Starting streams that
// survived the grace period, detects exits, schedules backed-off restarts,
// and parks repeat offenders in CrashLoop. Handles busy in a command
// operation are skipped and revisited next tick.
func (s *Supervisor) tick(now time.Time) {
	s.mu.RLock()
	hs := make([]*handle, 0, len(s.handles))
	for _, h := range s.handles {
		hs = append(hs, h)
	}
	s.mu.RUnlock()

	for _, h := range hs {
		if !h.mu.TryLock() {
			continue
		}
		s.advanceLocked(h, now)
		h.mu.Unlock()
	}
}

// advanceLocked applies one monitoring step to a handle. Caller holds h.mu.
func (s *Supervisor) advanceLocked(h *handle, now time.Time) {
	id := string(h.cfg.ID)

	switch h.state {
	case StateStarting:
		if h.proc == nil {
			// Pending restart; respawn once the backoff delay has elapsed.
			if !h.nextRestartAt.IsZero() && !now.Before(h.nextRestartAt) {
				s.respawnLocked(h, now)
			}
			return
		}
		if procExited(h.proc) {
			s.recordExitLocked(h, now, "stream exited during grace period")
			return
		}
		if now.Sub(h.spawnedAt) >= s.opts.GracePeriod {
			h.state = StateRunning
			h.failures = 0
			h.retry.Reset()
			s.log.Info("stream running", slog.String("camera_id", id), slog.Int("pid", h.proc.PID()))
		}

	case StateRunning:
		if procExited(h.proc) {
			s.recordExitLocked(h, now, "stream exited unexpectedly")
		}
	}
}

// recordExitLocked accounts for an unexpected process exit and decides
// between a backed-off restart and CrashLoop. Caller holds h.mu.
func (s *Supervisor) recordExitLocked(h *handle, now time.Time, msg string) {
	h.lastExitCode = h.proc.ExitCode()
	tail := h.proc.StderrTail()
	h.proc = nil
	h.failures++

	log := s.log.With(
		slog.String("camera_id", string(h.cfg.ID)),
		slog.Int("exit_code", h.lastExitCode),
		slog.Int("consecutive_failures", h.failures))
	if len(tail) > 0 {
		log = log.With(slog.String("stderr_tail", strings.Join(tail, "\n")))
	}

	if h.failures >= s.opts.MaxFailures {
		h.state = StateCrashLoop
		h.nextRestartAt = time.Time{}
		log.Error(msg + "; restart budget exhausted, entering crash loop")
		return
	}

	delay := h.retry.NextBackOff()
	h.state = StateStarting
	h.nextRestartAt = now.Add(delay)
	log.Warn(msg+", restart scheduled", slog.Duration("delay", delay))
}

// respawnLocked re-launches the encoder after a backoff delay. Caller holds h.mu.
func (s *Supervisor) respawnLocked(h *handle, now time.Time) {
	h.nextRestartAt = time.Time{}
	if err := s.spawnLocked(h); err != nil {
		h.failures++
		if h.failures >= s.opts.MaxFailures {
			h.state = StateCrashLoop
			s.log.Error("respawn failed, entering crash loop",
				slog.String("camera_id", string(h.cfg.ID)), slog.String("error", err.Error()))
			return
		}
		h.nextRestartAt = now.Add(h.retry.NextBackOff())
		s.log.Warn("respawn failed, will retry",
			slog.String("camera_id", string(h.cfg.ID)), slog.String("error", err.Error()))
		return
	}
	h.restarts++
	h.lastRestartAt = now
	if s.met != nil {
		s.met.IncRestarts()
	}
	s.log.Info("stream respawned",
		slog.String("camera_id", string(h.cfg.ID)), slog.Int("pid", h.proc.PID()))
}

// spawnLocked launches the encoder and records the new process on the handle.
// Caller holds h.mu. On failure the handle's proc is left nil.
func (s *Supervisor) spawnLocked(h *handle) error {
	proc, err := s.runner.Spawn(Spec{Camera: h.cfg, StorageRoot: s.opts.StorageRoot})
	if err != nil {
		if s.met != nil {
			s.met.IncSpawnFailures()
		}
		return fmt.Errorf("%w: %v", ErrSpawn, err)
	}
	h.proc = proc
	h.spawnedAt = s.now()
	return nil
}

// handleFor returns the handle for a camera, creating it on first access.
func (s *Supervisor) handleFor(cfg camera.Config) *handle {
	s.mu.RLock()
	h, ok := s.handles[cfg.ID]
	s.mu.RUnlock()
	if ok {
		return h
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok = s.handles[cfg.ID]; ok {
		return h
	}
	h = &handle{cfg: cfg, state: StateStopped, retry: s.newBackoff()}
	s.handles[cfg.ID] = h
	return h
}

func (s *Supervisor) newBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.opts.BackoffInitial
	b.MaxInterval = s.opts.BackoffMax
	b.MaxElapsedTime = 0 // the failure counter, not elapsed time, bounds retries
	b.Reset()
	return b
}

// toStoppedLocked clears the process fields. Caller holds h.mu.
func (h *handle) toStoppedLocked() {
	h.state = StateStopped
	h.proc = nil
	h.nextRestartAt = time.Time{}
}

// statusLocked snapshots the handle. Caller holds h.mu.
func (h *handle) statusLocked() Status {
	st := Status{
		CameraID:      h.cfg.ID,
		Name:          h.cfg.Name,
		Enabled:       h.cfg.Enabled,
		State:         h.state,
		StartedAt:     h.startedAt,
		LastSpawnAt:   h.spawnedAt,
		LastExitCode:  h.lastExitCode,
		Failures:      h.failures,
		Restarts:      h.restarts,
		LastRestartAt: h.lastRestartAt,
	}
	if h.proc != nil {
		st.PID = h.proc.PID()
	}
	return st
}

func procExited(p Proc) bool {
	select {
	case <-p.Done():
		return true
	default:
		return false
	}
}
