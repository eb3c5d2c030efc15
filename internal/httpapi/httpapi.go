// Package httpapi exposes the local status/control surface: read the
// aggregate state, trigger intents, and fetch the latest rendered frame.
package httpapi

import (
	"encoding/json"
	"image/jpeg"
	"log/slog"
	"net/http"

	"github.com/walnutpair/previewd/internal/core/session"
	"github.com/walnutpair/previewd/internal/core/state"
	"github.com/walnutpair/previewd/internal/dispatch"
)

const frameJPEGQuality = 85

// Server is the local HTTP API server.
type Server struct {
	store      *state.Store
	dispatcher *dispatch.Dispatcher
	frames     *session.FrameCache
	corsAll    bool
	log        *slog.Logger
	mux        *http.ServeMux
}

// NewServer creates the HTTP API server.
func NewServer(
	store *state.Store,
	dispatcher *dispatch.Dispatcher,
	frames *session.FrameCache,
	corsAll bool,
	log *slog.Logger,
) *Server {
	s := &Server{
		store:      store,
		dispatcher: dispatcher,
		frames:     frames,
		corsAll:    corsAll,
		log:        log,
		mux:        http.NewServeMux(),
	}
	s.routes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	if !s.corsAll {
		return s.mux
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		s.mux.ServeHTTP(w, r)
	})
}

func (s *Server) routes() {
	s.handle(http.MethodGet, "/api/state", s.handleGetState)
	s.handle(http.MethodGet, "/api/devices", s.handleGetDevices)
	s.handle(http.MethodGet, "/api/frame", s.handleGetFrame)

	s.handle(http.MethodPost, "/api/devices/refresh", s.handleRefreshDevices)
	s.handle(http.MethodPost, "/api/previews/start", s.handleStartPreview)
	s.handle(http.MethodPost, "/api/previews/stop", s.handleStopPreview)
	s.handle(http.MethodPost, "/api/capture", s.handleCaptureAll)
}

// handle registers a method-restricted route. Go 1.22 ServeMux method
// patterns ("GET /path") are unavailable on the Go 1.21 toolchain this
// module is built with, so the method check is enforced explicitly with
// the same observable behavior (405 + Allow header on mismatch).
func (s *Server) handle(method, pattern string, h http.HandlerFunc) {
	s.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			w.Header().Set("Allow", method)
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("failed to encode JSON response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *Server) readJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// --- Handlers ---

type stateResponse struct {
	AvailableCameras interface{} `json:"available_cameras"`
	ActivePreviews   []string    `json:"active_previews"`
	Loading          bool        `json:"loading"`
	Capturing        bool        `json:"capturing"`
	LastMessage      string      `json:"last_message,omitempty"`
}

func (s *Server) handleGetState(w http.ResponseWriter, _ *http.Request) {
	snap := s.store.Snapshot()
	s.writeJSON(w, stateResponse{
		AvailableCameras: snap.AvailableCameras,
		ActivePreviews:   snap.ActivePreviewIDs(),
		Loading:          snap.Loading,
		Capturing:        snap.Capturing,
		LastMessage:      snap.LastMessage,
	})
}

func (s *Server) handleGetDevices(w http.ResponseWriter, _ *http.Request) {
	snap := s.store.Snapshot()
	s.writeJSON(w, snap.AvailableCameras)
}

func (s *Server) handleRefreshDevices(w http.ResponseWriter, _ *http.Request) {
	s.dispatcher.FetchDevices()
	s.writeJSON(w, map[string]string{"status": "ok"})
}

type previewBody struct {
	CameraUniqueID string `json:"camera_unique_id"`
}

func (s *Server) handleStartPreview(w http.ResponseWriter, r *http.Request) {
	var body previewBody
	if err := s.readJSON(r, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if body.CameraUniqueID == "" {
		s.writeError(w, http.StatusBadRequest, "camera_unique_id is required")
		return
	}
	s.dispatcher.StartPreview(body.CameraUniqueID)
	s.writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleStopPreview(w http.ResponseWriter, r *http.Request) {
	var body previewBody
	if err := s.readJSON(r, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if body.CameraUniqueID == "" {
		s.writeError(w, http.StatusBadRequest, "camera_unique_id is required")
		return
	}
	s.dispatcher.StopPreview(body.CameraUniqueID)
	s.writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleCaptureAll(w http.ResponseWriter, _ *http.Request) {
	s.dispatcher.CaptureAll()
	s.writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleGetFrame(w http.ResponseWriter, r *http.Request) {
	uniqueID := r.URL.Query().Get("camera_unique_id")
	if uniqueID == "" {
		s.writeError(w, http.StatusBadRequest, "camera_unique_id parameter required")
		return
	}

	cf, ok := s.frames.Latest(uniqueID)
	if !ok {
		s.writeError(w, http.StatusNotFound, "no frame available for "+uniqueID)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	if err := jpeg.Encode(w, cf.Image, &jpeg.Options{Quality: frameJPEGQuality}); err != nil {
		s.log.Error("failed to encode frame", "camera_unique_id", uniqueID, "error", err)
	}
}
