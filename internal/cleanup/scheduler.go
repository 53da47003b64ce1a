package cleanup

import (
	"context"
	"log/slog"
	"time"
)

// Scheduler runs automatic cleanup passes on a fixed interval. Cancelling the
// context stops future passes; a pass already underway finishes on its own.
type Scheduler struct {
	engine   *Engine
	interval time.Duration
	log      *slog.Logger
}

// NewScheduler returns a Scheduler running engine passes every interval.
func NewScheduler(engine *Engine, interval time.Duration, log *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Scheduler{engine: engine, interval: interval, log: log}
}

// Run executes cleanup passes until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.log.Info("cleanup scheduler started", slog.Duration("interval", s.interval))
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("cleanup scheduler stopped")
			return
		case <-t.C:
			s.engine.Run("", DefaultRetention)
		}
	}
}
