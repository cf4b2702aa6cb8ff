package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/cropcarry/marketplace/internal/notification"
)

type NotificationHandler struct {
	repo     notification.Repository
	sessions *Sessions
}

func NewNotificationHandler(repo notification.Repository, sessions *Sessions) *NotificationHandler {
	return &NotificationHandler{
		repo:     repo,
		sessions: sessions,
	}
}

func (h *NotificationHandler) RegisterRoutes(router chi.Router) {
	router.Group(func(r chi.Router) {
		r.Use(h.sessions.RequireAuth)
		r.Get("/notifications", h.handleList)
		r.Post("/notifications/{id}/read", h.handleMarkRead)
	})
}

func (h *NotificationHandler) handleList(w http.ResponseWriter, r *http.Request) {
	u, _ := currentUser(r)

	notifications, err := h.repo.ListByUser(r.Context(), u.ID)
	if err != nil {
		log.Error().Err(err).Stringer("user_id", u.ID).Msg("Failed to list notifications")
		respondWithError(w, http.StatusInternalServerError, "Failed to list notifications")
		return
	}

	respondWithJSON(w, http.StatusOK, notifications)
}

func (h *NotificationHandler) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	u, _ := currentUser(r)

	idParam := chi.URLParam(r, "id")
	notificationID, err := uuid.FromString(idParam)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid id parameter")
		return
	}

	if err := h.repo.MarkRead(r.Context(), notificationID, u.ID); err != nil {
		log.Error().Err(err).Stringer("notification_id", notificationID).Msg("Failed to mark notification read")
		respondWithError(w, http.StatusInternalServerError, "Failed to mark notification read")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
