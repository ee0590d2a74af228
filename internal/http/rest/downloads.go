package rest

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/italolelis/xtream_offline/internal/download"
	"github.com/italolelis/xtream_offline/internal/logctx"
	"github.com/italolelis/xtream_offline/internal/storage"
	"github.com/italolelis/xtream_offline/internal/xtream"
)

// DownloadRequest is the body of a download creation request.
type DownloadRequest struct {
	StreamID           int    `json:"streamId"`
	Title              string `json:"title"`
	PosterURL          string `json:"posterUrl"`
	MediaType          string `json:"mediaType"`
	ContainerExtension string `json:"containerExtension"`
}

// StatsResponse summarizes completed downloads on disk.
type StatsResponse struct {
	TotalDownloadedSize  int64  `json:"totalDownloadedSize"`
	TotalDownloadedHuman string `json:"totalDownloadedHuman"`
	Count                int    `json:"count"`
}

type DownloadHandler struct {
	username string
	password string
	manager  *download.Manager
}

// NewDownloadHandler creates the handler serving the download control API.
func NewDownloadHandler(username, password string, manager *download.Manager) *DownloadHandler {
	return &DownloadHandler{
		username: username,
		password: password,
		manager:  manager,
	}
}

func (h *DownloadHandler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(h.basicAuthMiddleware)

	r.Post("/downloads", h.HandleCreate)
	r.Get("/downloads", h.HandleList)
	r.Delete("/downloads", h.HandleClearAll)
	r.Get("/downloads/stats", h.HandleStats)
	r.Get("/downloads/{id}", h.HandleGet)
	r.Delete("/downloads/{id}", h.HandleCancel)
	r.Post("/downloads/{id}/pause", h.HandlePause)
	r.Post("/downloads/{id}/resume", h.HandleResume)

	return r
}

// HandleCreate registers a new download and schedules its transfer.
func (h *DownloadHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())

	var req DownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Error("failed to decode request", "err", err)
		http.Error(w, "invalid request body", http.StatusBadRequest)

		return
	}

	if req.StreamID <= 0 || req.Title == "" {
		http.Error(w, "streamId and title are required", http.StatusBadRequest)

		return
	}

	if mt := xtream.MediaType(req.MediaType); req.MediaType != "" && (!mt.Valid() || mt == xtream.MediaTypeLive) {
		http.Error(w, "mediaType must be movie or series", http.StatusBadRequest)

		return
	}

	id, err := h.manager.Start(r.Context(), download.StartRequest{
		StreamID:           req.StreamID,
		Title:              req.Title,
		PosterURL:          req.PosterURL,
		MediaType:          xtream.MediaType(req.MediaType),
		ContainerExtension: req.ContainerExtension,
	})
	if err != nil {
		h.writeError(w, r, err)

		return
	}

	rec, err := h.manager.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)

		return
	}

	logger.Info("download scheduled", "download_id", id, "stream_id", req.StreamID)

	h.writeJSON(w, r, http.StatusAccepted, rec)
}

// HandleList returns all downloads, newest first.
func (h *DownloadHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	records, err := h.manager.List(r.Context())
	if err != nil {
		h.writeError(w, r, err)

		return
	}

	if records == nil {
		records = []storage.DownloadRecord{}
	}

	h.writeJSON(w, r, http.StatusOK, records)
}

// HandleStats returns the total size of completed downloads.
func (h *DownloadHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	total, err := h.manager.TotalDownloadedSize(r.Context())
	if err != nil {
		h.writeError(w, r, err)

		return
	}

	records, err := h.manager.List(r.Context())
	if err != nil {
		h.writeError(w, r, err)

		return
	}

	h.writeJSON(w, r, http.StatusOK, &StatsResponse{
		TotalDownloadedSize:  total,
		TotalDownloadedHuman: humanize.Bytes(uint64(total)),
		Count:                len(records),
	})
}

// HandleGet returns one download record.
func (h *DownloadHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	rec, err := h.manager.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)

		return
	}

	h.writeJSON(w, r, http.StatusOK, rec)
}

// HandleCancel stops a download and removes its record and partial file.
func (h *DownloadHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.Cancel(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandlePause suspends an active download, keeping its partial file.
func (h *DownloadHandler) HandlePause(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.Pause(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleResume restarts a paused or failed download from its saved offset.
func (h *DownloadHandler) HandleResume(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.Resume(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleClearAll cancels every active download and wipes all records.
func (h *DownloadHandler) HandleClearAll(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.ClearAll(r.Context()); err != nil {
		h.writeError(w, r, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *DownloadHandler) basicAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok {
			http.Error(w, "invalid authorization format", http.StatusUnauthorized)

			return
		}

		if username != h.username || password != h.password {
			http.Error(w, "invalid username or password", http.StatusUnauthorized)

			return
		}

		next.ServeHTTP(w, r)
	})
}

func (h *DownloadHandler) writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		logctx.LoggerFromContext(r.Context()).Error("failed to encode response", "err", err)
	}
}

func (h *DownloadHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	logger := logctx.LoggerFromContext(r.Context())

	var stateErr *download.InvalidStateError

	switch {
	case errors.Is(err, storage.ErrNotFound):
		http.Error(w, "download not found", http.StatusNotFound)
	case errors.Is(err, xtream.ErrNoCredentials):
		http.Error(w, "xtream credentials are not configured", http.StatusFailedDependency)
	case errors.As(err, &stateErr):
		http.Error(w, stateErr.Error(), http.StatusConflict)
	default:
		logger.Error("request failed", "err", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}
