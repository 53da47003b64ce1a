package cleanup

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"cctv-supervisor/internal/api"
	"cctv-supervisor/internal/camera"
)

// Handler exposes cleanup endpoints using go-chi.
type Handler struct {
	engine   *Engine
	registry *camera.Registry
}

// NewHandler returns a Handler over the given Engine and Registry.
func NewHandler(engine *Engine, registry *camera.Registry) *Handler {
	return &Handler{engine: engine, registry: registry}
}

// Routes mounts the cleanup endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/cleanup/preview", h.Preview)
	r.Post("/cleanup/run", h.Run)
	r.Post("/cleanup/camera/{camera_id}", h.RunCamera)
}

// Preview handles GET /cleanup/preview[?camera_id=X&days=N]: a side-effect
// free dry run of the retention pass.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	target, days, ok := h.scope(w, r, r.URL.Query().Get("camera_id"))
	if !ok {
		return
	}
	api.JSON(w, http.StatusOK, h.engine.Preview(target, days))
}

// Run handles POST /cleanup/run[?days=N]: a full retention pass over every
// camera directory.
func (h *Handler) Run(w http.ResponseWriter, r *http.Request) {
	_, days, ok := h.scope(w, r, "")
	if !ok {
		return
	}
	report := h.engine.Run("", days)
	api.OK(w, "cleanup pass completed", report)
}

// RunCamera handles POST /cleanup/camera/{camera_id}[?days=N]: a retention
// pass scoped to one registered camera.
func (h *Handler) RunCamera(w http.ResponseWriter, r *http.Request) {
	target, days, ok := h.scope(w, r, chi.URLParam(r, "camera_id"))
	if !ok {
		return
	}
	report := h.engine.Run(target, days)
	api.OK(w, "cleanup pass completed for camera "+string(target), report)
}

// scope validates the optional camera id against the registry and parses the
// optional days override. A false return means a response was already written.
func (h *Handler) scope(w http.ResponseWriter, r *http.Request, rawID string) (camera.ID, int, bool) {
	days := DefaultRetention
	if s := r.URL.Query().Get("days"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			api.Error(w, http.StatusBadRequest, "days must be a non-negative integer")
			return "", 0, false
		}
		days = n
	}

	if rawID == "" {
		return "", days, true
	}
	id, err := camera.SanitizeID(rawID)
	if err != nil {
		api.Error(w, http.StatusBadRequest, "invalid camera id")
		return "", 0, false
	}
	if _, err := h.registry.Get(id); err != nil {
		api.Error(w, http.StatusNotFound, "camera not found")
		return "", 0, false
	}
	return id, days, true
}
