package health

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"cctv-supervisor/internal/api"
)

// Handler exposes health endpoints using go-chi.
type Handler struct {
	mon *Monitor
}

// NewHandler returns a Handler over the given Monitor.
func NewHandler(mon *Monitor) *Handler {
	return &Handler{mon: mon}
}

// Routes mounts the health endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/health", h.GetHealth)
	r.Get("/health/metrics", h.GetMetrics)
	r.Get("/health/history", h.GetHistory)
	r.Get("/health/processes", h.GetProcesses)
	r.Get("/health/storage", h.GetStorage)
}

// GetHealth handles GET /health: a fresh full health check.
// Responds 503 when unhealthy so load balancers can act on the status code,
// with the full snapshot in the body either way.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	snap := h.mon.Check()
	code := http.StatusOK
	if !snap.Healthy {
		code = http.StatusServiceUnavailable
	}
	api.JSON(w, code, snap)
}

// GetMetrics handles GET /health/metrics: the most recent snapshot without
// forcing a new sample, or a fresh one if none exists yet.
func (h *Handler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.mon.Last()
	if !ok {
		snap = h.mon.Check()
	}
	api.JSON(w, http.StatusOK, snap)
}

// GetHistory handles GET /health/history: the retained recent snapshots.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	api.JSON(w, http.StatusOK, h.mon.History())
}

// GetProcesses handles GET /health/processes: the encoder process table.
func (h *Handler) GetProcesses(w http.ResponseWriter, r *http.Request) {
	api.JSON(w, http.StatusOK, h.mon.Processes())
}

// GetStorage handles GET /health/storage: per-camera disk footprint.
func (h *Handler) GetStorage(w http.ResponseWriter, r *http.Request) {
	api.JSON(w, http.StatusOK, h.mon.StorageDetails())
}
