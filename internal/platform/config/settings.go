package config

import "time"

// Settings is the full configuration surface of the server, resolved once at
// startup from environment variables (optionally loaded from .env).
type Settings struct {
	// Server
	Port      string
	LogLevel  string
	LogFormat string

	// Storage
	StorageRoot   string
	RetentionDays int

	// Encoder
	VideoBitrate   string
	AudioBitrate   string
	FFmpegThreads  int
	SegmentSeconds int
	ListSize       int

	// Supervisor
	MonitorInterval time.Duration
	GracePeriod     time.Duration
	StopTimeout     time.Duration
	BackoffInitial  time.Duration
	BackoffMax      time.Duration
	MaxFailures     int

	// Health
	HealthCheckInterval time.Duration
	CPUThreshold        float64
	MemoryThreshold     float64
	DiskThreshold       float64

	// Cleanup
	CleanupInterval time.Duration
}

// FromEnv resolves Settings from the environment with production defaults
// matching the documented deployment.
func FromEnv() Settings {
	return Settings{
		Port:      GetEnv("SERVER_PORT", "8000"),
		LogLevel:  GetEnv("LOG_LEVEL", "info"),
		LogFormat: GetEnv("LOG_FORMAT", "json"),

		StorageRoot:   GetEnv("STORAGE_ROOT", "./hls"),
		RetentionDays: GetEnvInt("RETENTION_DAYS", 30),

		VideoBitrate:   GetEnv("VIDEO_BITRATE", "2000k"),
		AudioBitrate:   GetEnv("AUDIO_BITRATE", "128k"),
		FFmpegThreads:  GetEnvInt("FFMPEG_THREADS", 2),
		SegmentSeconds: GetEnvInt("HLS_SEGMENT_SECONDS", 10),
		ListSize:       GetEnvInt("HLS_LIST_SIZE", 6),

		MonitorInterval: GetEnvDuration("MONITOR_INTERVAL", 5*time.Second),
		GracePeriod:     GetEnvDuration("GRACE_PERIOD", 10*time.Second),
		StopTimeout:     GetEnvDuration("STOP_TIMEOUT", 10*time.Second),
		BackoffInitial:  GetEnvDuration("BACKOFF_INITIAL", 2*time.Second),
		BackoffMax:      GetEnvDuration("BACKOFF_MAX", time.Minute),
		MaxFailures:     GetEnvInt("MAX_FAILURES", 5),

		HealthCheckInterval: GetEnvDuration("HEALTH_CHECK_INTERVAL", 30*time.Second),
		CPUThreshold:        GetEnvFloat("CPU_THRESHOLD", 80),
		MemoryThreshold:     GetEnvFloat("MEMORY_THRESHOLD", 80),
		DiskThreshold:       GetEnvFloat("DISK_THRESHOLD", 90),

		CleanupInterval: GetEnvDuration("CLEANUP_INTERVAL", time.Hour),
	}
}
