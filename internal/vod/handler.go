// Package vod serves the playlists and segment files the encoder writes:
// live streams, recorded hour buckets, and the raw segment tree. It only ever
// reads the directory layout the supervisor's processes populate.
package vod

import (
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"

	"cctv-supervisor/internal/api"
	"cctv-supervisor/internal/camera"
	"cctv-supervisor/internal/supervisor"
)

const playlistContentType = "application/vnd.apple.mpegurl"

// Recording describes one playable hour bucket.
type Recording struct {
	CameraID    string   `json:"camera_id"`
	Date        string   `json:"date"`
	Hour        int      `json:"hour"`
	Segments    []string `json:"segments"`
	PlaylistURL string   `json:"playlist_url"`
	TotalSize   int64    `json:"total_size"`
}

// StreamInfo describes how to play a camera's live stream.
type StreamInfo struct {
	CameraID    string `json:"camera_id"`
	Name        string `json:"name"`
	StreamURL   string `json:"stream_url"`
	PlaylistURL string `json:"playlist_url"`
	Status      string `json:"status"` // "running" or "stopped"
	Bitrate     string `json:"bitrate"`
}

// StreamStatus is the read-only supervisor view used to report whether a
// camera's encoder is running.
type StreamStatus interface {
	Status(id camera.ID) (supervisor.Status, error)
}

// Handler exposes playback endpoints using go-chi.
type Handler struct {
	root     string
	registry *camera.Registry
	streams  StreamStatus
}

// NewHandler returns a Handler serving from the given storage root.
func NewHandler(root string, registry *camera.Registry, streams StreamStatus) *Handler {
	return &Handler{root: root, registry: registry, streams: streams}
}

// Routes mounts the playback endpoints on r, including the static segment
// tree under /hls/.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/stream/{camera_id}/live.m3u8", h.GetLivePlaylist)
	r.Get("/stream/{camera_id}/info", h.GetStreamInfo)
	r.Get("/recordings/{camera_id}", h.ListRecordings)
	r.Get("/recordings/{camera_id}/{date}/{hour}/playlist.m3u8", h.GetRecordingPlaylist)
	r.Handle("/hls/*", http.StripPrefix("/hls/", http.FileServer(http.Dir(h.root))))
}

// GetLivePlaylist handles GET /stream/{camera_id}/live.m3u8.
func (h *Handler) GetLivePlaylist(w http.ResponseWriter, r *http.Request) {
	id, ok := h.cameraID(w, r)
	if !ok {
		return
	}

	path := filepath.Join(camera.LivePath(h.root, id), camera.LivePlaylistName)
	if _, err := os.Stat(path); err != nil {
		api.Error(w, http.StatusNotFound, "live stream not available")
		return
	}

	w.Header().Set("Content-Type", playlistContentType)
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeFile(w, r, path)
}

// GetStreamInfo handles GET /stream/{camera_id}/info: playback URLs and the
// encoder's current run state for one camera.
func (h *Handler) GetStreamInfo(w http.ResponseWriter, r *http.Request) {
	id, ok := h.cameraID(w, r)
	if !ok {
		return
	}
	cfg, err := h.registry.Get(id)
	if err != nil {
		api.Error(w, http.StatusNotFound, "camera not found")
		return
	}

	status := "stopped"
	if st, err := h.streams.Status(id); err == nil && st.State == supervisor.StateRunning {
		status = "running"
	}

	api.JSON(w, http.StatusOK, StreamInfo{
		CameraID:    string(id),
		Name:        cfg.Name,
		StreamURL:   "/stream/" + string(id) + "/live.m3u8",
		PlaylistURL: "/hls/" + string(id) + "/live/" + camera.LivePlaylistName,
		Status:      status,
		Bitrate:     cfg.Enc.VideoBitrate,
	})
}

// ListRecordings handles GET /recordings/{camera_id}: every playable hour
// bucket for the camera, newest first. Buckets without a playlist index or
// segments are omitted.
func (h *Handler) ListRecordings(w http.ResponseWriter, r *http.Request) {
	id, ok := h.cameraID(w, r)
	if !ok {
		return
	}

	recordings := []Recording{}
	recDir := camera.RecordingsPath(h.root, id)
	dateEntries, err := os.ReadDir(recDir)
	if err != nil {
		// No recordings yet is an empty list, not an error.
		api.JSON(w, http.StatusOK, recordings)
		return
	}

	for _, dateEntry := range dateEntries {
		if !dateEntry.IsDir() {
			continue
		}
		dateDir := filepath.Join(recDir, dateEntry.Name())
		hourEntries, err := os.ReadDir(dateDir)
		if err != nil {
			continue
		}
		for _, hourEntry := range hourEntries {
			if !hourEntry.IsDir() {
				continue
			}
			hour, err := strconv.Atoi(hourEntry.Name())
			if err != nil {
				continue
			}
			rec, ok := readBucket(filepath.Join(dateDir, hourEntry.Name()), string(id), dateEntry.Name(), hour)
			if ok {
				recordings = append(recordings, rec)
			}
		}
	}

	sort.Slice(recordings, func(i, j int) bool {
		if recordings[i].Date != recordings[j].Date {
			return recordings[i].Date > recordings[j].Date
		}
		return recordings[i].Hour > recordings[j].Hour
	})
	api.JSON(w, http.StatusOK, recordings)
}

// GetRecordingPlaylist handles
// GET /recordings/{camera_id}/{date}/{hour}/playlist.m3u8.
func (h *Handler) GetRecordingPlaylist(w http.ResponseWriter, r *http.Request) {
	id, ok := h.cameraID(w, r)
	if !ok {
		return
	}

	date := chi.URLParam(r, "date")
	hour := chi.URLParam(r, "hour")
	if !validDate(date) || !validHour(hour) {
		api.Error(w, http.StatusBadRequest, "invalid recording path")
		return
	}

	path := filepath.Join(camera.RecordingsPath(h.root, id), date, hour, camera.PlaylistName)
	if _, err := os.Stat(path); err != nil {
		api.Error(w, http.StatusNotFound, "recording not found")
		return
	}

	w.Header().Set("Content-Type", playlistContentType)
	http.ServeFile(w, r, path)
}

// cameraID sanitizes and resolves the camera id path parameter. A false
// return means a response was already written.
func (h *Handler) cameraID(w http.ResponseWriter, r *http.Request) (camera.ID, bool) {
	id, err := camera.SanitizeID(chi.URLParam(r, "camera_id"))
	if err != nil {
		api.Error(w, http.StatusBadRequest, "invalid camera id")
		return "", false
	}
	if _, err := h.registry.Get(id); err != nil {
		api.Error(w, http.StatusNotFound, "camera not found")
		return "", false
	}
	return id, true
}

// readBucket inspects one hour directory and returns it as a Recording if it
// is playable (has segments and a playlist index).
func readBucket(dir, cameraID, date string, hour int) (Recording, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Recording{}, false
	}

	var segments []string
	var total int64
	hasPlaylist := false
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if name == camera.PlaylistName {
			hasPlaylist = true
			continue
		}
		if filepath.Ext(name) == ".ts" {
			segments = append(segments, name)
			if info, err := entry.Info(); err == nil {
				total += info.Size()
			}
		}
	}
	if len(segments) == 0 || !hasPlaylist {
		return Recording{}, false
	}
	sort.Strings(segments)

	return Recording{
		CameraID:    cameraID,
		Date:        date,
		Hour:        hour,
		Segments:    segments,
		PlaylistURL: "/hls/" + cameraID + "/recordings/" + date + "/" + twoDigits(hour) + "/" + camera.PlaylistName,
		TotalSize:   total,
	}, true
}

func twoDigits(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}

func validDate(s string) bool {
	if len(s) != len(camera.DateLayout) {
		return false
	}
	for i, r := range s {
		if i == 4 || i == 7 {
			if r != '-' {
				return false
			}
			continue
		}
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func validHour(s string) bool {
	n, err := strconv.Atoi(s)
	return err == nil && len(s) == 2 && n >= 0 && n <= 23
}
