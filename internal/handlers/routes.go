package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("OK"))
}

// EnqueueAlbum adds an album to the download queue by id.
func (h *Handler) EnqueueAlbum(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := strconv.ParseUint(id, 10, 64); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid album id"})
		return
	}

	result := h.Queue.Enqueue(id)
	h.writeJSON(w, http.StatusOK, map[string]any{
		"album_id": id,
		"result":   result,
	})
}

// QueueStatus returns all known album requests in enqueue order.
func (h *Handler) QueueStatus(w http.ResponseWriter, r *http.Request) {
	requests := h.Queue.Status()
	h.writeJSON(w, http.StatusOK, map[string]any{
		"requests": requests,
		"count":    len(requests),
	})
}

// DownloadHistory lists the most recent completed downloads.
func (h *Handler) DownloadHistory(w http.ResponseWriter, r *http.Request) {
	if h.History == nil {
		h.writeJSON(w, http.StatusOK, map[string]any{"downloads": []any{}, "count": 0})
		return
	}

	downloads, err := h.History.ListDownloads(50)
	if err != nil {
		h.Logger.Error("Failed to list downloads", "error", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list downloads"})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"downloads": downloads,
		"count":     len(downloads),
	})
}
