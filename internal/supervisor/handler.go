package supervisor

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"cctv-supervisor/internal/api"
	"cctv-supervisor/internal/camera"
)

// Handler exposes camera lifecycle endpoints using go-chi.
type Handler struct {
	sup *Supervisor
	log *slog.Logger
}

// NewHandler returns a Handler over the given Supervisor.
func NewHandler(sup *Supervisor, log *slog.Logger) *Handler {
	return &Handler{sup: sup, log: log}
}

// Routes mounts the camera endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/cameras", h.ListCameras)
	r.Route("/cameras/{camera_id}", func(r chi.Router) {
		r.Get("/", h.GetCamera)
		r.Post("/start", h.StartCamera)
		r.Post("/stop", h.StopCamera)
		r.Post("/restart", h.RestartCamera)
	})
}

// ListCameras handles GET /cameras.
func (h *Handler) ListCameras(w http.ResponseWriter, r *http.Request) {
	api.JSON(w, http.StatusOK, h.sup.StatusAll())
}

// GetCamera handles GET /cameras/{camera_id}.
func (h *Handler) GetCamera(w http.ResponseWriter, r *http.Request) {
	id := camera.ID(chi.URLParam(r, "camera_id"))
	st, err := h.sup.Status(id)
	if err != nil {
		api.Error(w, http.StatusNotFound, "camera not found")
		return
	}
	api.JSON(w, http.StatusOK, st)
}

// StartCamera handles POST /cameras/{camera_id}/start.
func (h *Handler) StartCamera(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, "start", h.sup.Start)
}

// StopCamera handles POST /cameras/{camera_id}/stop.
func (h *Handler) StopCamera(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, "stop", h.sup.Stop)
}

// RestartCamera handles POST /cameras/{camera_id}/restart.
func (h *Handler) RestartCamera(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, "restart", h.sup.Restart)
}

// command maps a lifecycle operation's structured result onto HTTP:
// not-found is 404, a benign no-op (already running / already stopped) is a
// 200 with the no-op called out, spawn failures are 502 since the fault lies
// with the external encoder, everything else is 500.
func (h *Handler) command(w http.ResponseWriter, r *http.Request, verb string, op func(camera.ID) (Status, error)) {
	id := camera.ID(chi.URLParam(r, "camera_id"))
	st, err := op(id)
	switch {
	case err == nil:
		api.OK(w, fmt.Sprintf("%s succeeded for camera %s", verb, id), st)
	case errors.Is(err, ErrNotFound):
		api.Error(w, http.StatusNotFound, "camera not found")
	case errors.Is(err, ErrAlreadyRunning), errors.Is(err, ErrAlreadyStopped):
		api.OK(w, fmt.Sprintf("%s: %s, nothing to do", verb, err.Error()), st)
	case errors.Is(err, ErrStopping):
		api.Error(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrSpawn):
		h.log.Error("encoder launch failed",
			slog.String("camera_id", string(id)), slog.String("error", err.Error()))
		api.Error(w, http.StatusBadGateway, err.Error())
	default:
		h.log.Error("camera command failed",
			slog.String("verb", verb),
			slog.String("camera_id", string(id)),
			slog.String("error", err.Error()))
		api.Error(w, http.StatusInternalServerError, err.Error())
	}
}
