package camera

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"sort"
	"strings"

	"cctv-supervisor/internal/platform/config"
)

// ErrNotFound is returned for camera ids absent from the registry.
var ErrNotFound = errors.New("camera not found")

// Registry is the read-only camera table, loaded once at startup. All
// components hold a reference to it instead of re-reading the environment.
type Registry struct {
	cameras map[ID]Config
}

// LoadFromEnv builds a Registry from CAMERA_N_ID / CAMERA_N_NAME /
// CAMERA_N_RTSP_URL / CAMERA_N_ENABLED environment variables, starting at
// N=1 and stopping at the first missing CAMERA_N_ID. Cameras with an invalid
// id or empty RTSP URL are skipped and logged; they never enter the registry.
// Encoding defaults come from the service-wide settings.
func LoadFromEnv(set config.Settings, log *slog.Logger) *Registry {
	enc := Encoding{
		VideoBitrate:   set.VideoBitrate,
		AudioBitrate:   set.AudioBitrate,
		Threads:        set.FFmpegThreads,
		SegmentSeconds: set.SegmentSeconds,
		ListSize:       set.ListSize,
	}

	cameras := make(map[ID]Config)
	for i := 1; ; i++ {
		rawID := os.Getenv(fmt.Sprintf("CAMERA_%d_ID", i))
		if rawID == "" {
			break
		}

		id, err := SanitizeID(rawID)
		if err != nil {
			log.Error("skipping camera with unusable id",
				slog.Int("index", i), slog.String("error", err.Error()))
			continue
		}

		rtspURL := os.Getenv(fmt.Sprintf("CAMERA_%d_RTSP_URL", i))
		if rtspURL == "" {
			log.Error("skipping camera without RTSP URL",
				slog.Int("index", i), slog.String("camera_id", string(id)))
			continue
		}

		cfg := Config{
			ID:      id,
			Name:    config.GetEnv(fmt.Sprintf("CAMERA_%d_NAME", i), fmt.Sprintf("Camera %d", i)),
			RTSPURL: rtspURL,
			Enabled: config.GetEnvBool(fmt.Sprintf("CAMERA_%d_ENABLED", i), true),
			Enc:     enc,
		}
		cameras[id] = cfg
		log.Info("camera registered",
			slog.String("camera_id", string(id)),
			slog.String("name", cfg.Name),
			slog.String("source", cfg.RedactedURL()),
			slog.Bool("enabled", cfg.Enabled))
	}

	return &Registry{cameras: cameras}
}

// NewRegistry builds a Registry from explicit configs. Ids are sanitized;
// invalid entries are dropped. Intended for tests and embedded use.
func NewRegistry(configs ...Config) *Registry {
	cameras := make(map[ID]Config, len(configs))
	for _, cfg := range configs {
		if id, err := SanitizeID(string(cfg.ID)); err == nil {
			cfg.ID = id
			cameras[id] = cfg
		}
	}
	return &Registry{cameras: cameras}
}

// Get returns the config for id, or ErrNotFound.
func (r *Registry) Get(id ID) (Config, error) {
	cfg, ok := r.cameras[id]
	if !ok {
		return Config{}, ErrNotFound
	}
	return cfg, nil
}

// All returns every camera config, ordered by id.
func (r *Registry) All() []Config {
	out := make([]Config, 0, len(r.cameras))
	for _, cfg := range r.cameras {
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// IDs returns every camera id, sorted.
func (r *Registry) IDs() []ID {
	ids := make([]ID, 0, len(r.cameras))
	for id := range r.cameras {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Len returns the number of registered cameras.
func (r *Registry) Len() int {
	return len(r.cameras)
}

// SanitizeID validates a raw camera id for use as a single path segment.
// Only ASCII letters, digits, '-' and '_' are allowed.
func SanitizeID(raw string) (ID, error) {
	if raw == "" {
		return "", errors.New("empty camera id")
	}
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_':
		default:
			return "", fmt.Errorf("camera id %q contains disallowed character %q", raw, r)
		}
	}
	return ID(raw), nil
}

// redactURL strips userinfo from a URL for logging. Unparseable inputs fall
// back to a blanket placeholder rather than risking credential leakage.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		if i := strings.Index(raw, "@"); i >= 0 {
			return "rtsp://[redacted]" + raw[i:]
		}
		return "[unparseable url]"
	}
	if u.User != nil {
		u.User = url.User("redacted")
	}
	return u.String()
}
