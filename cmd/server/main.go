package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cctv-supervisor/internal/api"
	"cctv-supervisor/internal/camera"
	"cctv-supervisor/internal/cleanup"
	"cctv-supervisor/internal/health"
	"cctv-supervisor/internal/platform/config"
	"cctv-supervisor/internal/platform/logger"
	"cctv-supervisor/internal/platform/metrics"
	"cctv-supervisor/internal/supervisor"
	"cctv-supervisor/internal/vod"

	"github.com/go-chi/chi/v5"
)

const shutdownTimeout = 15 * time.Second

func main() {
	_ = config.Load()
	set := config.FromEnv()

	log := logger.New(set.LogLevel, set.LogFormat)

	if err := os.MkdirAll(set.StorageRoot, 0o755); err != nil {
		log.Error("cannot create storage root", "path", set.StorageRoot, "error", err)
		os.Exit(1)
	}

	registry := camera.LoadFromEnv(set, log)
	met := metrics.New()

	sup := supervisor.New(registry, &supervisor.FFmpegRunner{}, supervisor.Options{
		StorageRoot:     set.StorageRoot,
		MonitorInterval: set.MonitorInterval,
		GracePeriod:     set.GracePeriod,
		StopTimeout:     set.StopTimeout,
		BackoffInitial:  set.BackoffInitial,
		BackoffMax:      set.BackoffMax,
		MaxFailures:     set.MaxFailures,
	}, logger.Component(log, "supervisor"), met)

	mon := health.NewMonitor(
		health.NewHostSampler(),
		sup,
		set.StorageRoot,
		health.Thresholds{CPU: set.CPUThreshold, Memory: set.MemoryThreshold, Disk: set.DiskThreshold},
		set.GracePeriod,
		set.HealthCheckInterval,
		logger.Component(log, "health"),
		met,
	)

	engine := cleanup.NewEngine(set.StorageRoot, set.RetentionDays, logger.Component(log, "cleanup"), met)
	scheduler := cleanup.NewScheduler(engine, set.CleanupInterval, logger.Component(log, "cleanup"))

	ctx, cancel := context.WithCancel(context.Background())
	go sup.Run(ctx)
	go mon.Run(ctx)
	go scheduler.Run(ctx)

	sup.StartEnabled()

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
		met.Handler(func() { met.SetStreamsRunning(sup.RunningCount()) }).ServeHTTP(w, req)
	})
	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		api.OK(w, "cctv stream supervisor is running", map[string]any{
			"cameras":      registry.Len(),
			"storage_root": set.StorageRoot,
		})
	})
	supervisor.NewHandler(sup, log).Routes(r)
	health.NewHandler(mon).Routes(r)
	cleanup.NewHandler(engine, registry).Routes(r)
	vod.NewHandler(set.StorageRoot, registry, sup).Routes(r)

	addr := ":" + set.Port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", set.Port,
		"cameras", registry.Len(),
		"storage_root", set.StorageRoot,
		"retention_days", set.RetentionDays,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, stopping streams and draining connections")

	cancel()
	sup.StopAll()

	shCtx, shCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shCancel()

	if err := srv.Shutdown(shCtx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
