// Package handlers exposes the queue over HTTP: manual enqueue, status, and
// download history.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tidalarr/tidalarr/internal/domain"
	"github.com/tidalarr/tidalarr/internal/logger"
	"github.com/tidalarr/tidalarr/internal/queue"
	"github.com/tidalarr/tidalarr/internal/store"
)

// QueueService is the queue engine boundary the HTTP layer consumes.
type QueueService interface {
	Enqueue(albumID string) queue.EnqueueResult
	Status() []domain.AlbumRequest
}

type Handler struct {
	Queue   QueueService
	History *store.DB
	Logger  *logger.Logger
}

func NewHandler(q QueueService, history *store.DB, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Default()
	}
	return &Handler{
		Queue:   q,
		History: history,
		Logger:  log.WithComponent("http"),
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", h.Healthz)
	r.Get("/album/{id}", h.EnqueueAlbum)
	r.Get("/queue", h.QueueStatus)
	r.Get("/history", h.DownloadHistory)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.Logger.Error("Failed to encode response", "error", err)
	}
}
