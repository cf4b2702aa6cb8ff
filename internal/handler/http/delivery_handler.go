package http

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/cropcarry/marketplace/internal/order"
	"github.com/cropcarry/marketplace/internal/user"
)

type DeliveryHandler struct {
	service  order.Service
	sessions *Sessions
}

func NewDeliveryHandler(service order.Service, sessions *Sessions) *DeliveryHandler {
	return &DeliveryHandler{
		service:  service,
		sessions: sessions,
	}
}

func (h *DeliveryHandler) RegisterRoutes(router chi.Router) {
	router.Group(func(r chi.Router) {
		r.Use(h.sessions.RequireAuth)
		r.Use(RequireRole(user.RoleDelivery))
		r.Get("/delivery/available", h.handleListAvailable)
		r.Get("/delivery/available/count", h.handleCountAvailable)
		r.Get("/delivery/mine", h.handleListMine)
		r.Post("/delivery/{id}/claim", h.handleClaim)
		r.Post("/delivery/{id}/complete", h.handleComplete)
	})
}

func (h *DeliveryHandler) handleListAvailable(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.ListClaimableOrders(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list claimable orders via service")
		respondWithError(w, mapErrorToStatusCode(err), "Failed to list available orders")
		return
	}

	respondWithJSON(w, http.StatusOK, toOrderResponses(orders))
}

func (h *DeliveryHandler) handleCountAvailable(w http.ResponseWriter, r *http.Request) {
	count, err := h.service.CountClaimableOrders(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to count claimable orders via service")
		respondWithError(w, mapErrorToStatusCode(err), "Failed to count available orders")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]int{"count": count})
}

func (h *DeliveryHandler) handleListMine(w http.ResponseWriter, r *http.Request) {
	u, _ := currentUser(r)

	orders, err := h.service.ListPartnerDeliveries(r.Context(), u.ID)
	if err != nil {
		log.Error().Err(err).Stringer("partner_id", u.ID).Msg("Failed to list partner deliveries via service")
		respondWithError(w, mapErrorToStatusCode(err), "Failed to list deliveries")
		return
	}

	respondWithJSON(w, http.StatusOK, toOrderResponses(orders))
}

func (h *DeliveryHandler) handleClaim(w http.ResponseWriter, r *http.Request) {
	u, _ := currentUser(r)

	idParam := chi.URLParam(r, "id")
	orderID, err := uuid.FromString(idParam)
	if err != nil {
		log.Warn().Err(err).Str("order_id", idParam).Msg("Failed to parse id parameter from URL")
		respondWithError(w, http.StatusBadRequest, "Invalid id parameter")
		return
	}

	if err := h.service.ClaimOrder(r.Context(), orderID, u.ID); err != nil {
		log.Warn().Err(err).Stringer("order_id", orderID).Stringer("partner_id", u.ID).Msg("Failed to claim order via service")

		statusCode := mapErrorToStatusCode(err)

		var clientMessage string
		var transitionErr *order.InvalidTransitionError

		switch {
		case errors.Is(err, order.ErrNotFound):
			clientMessage = "Order not found"
		case errors.Is(err, order.ErrAlreadyClaimed):
			clientMessage = "Order was already claimed by another partner"
		case errors.As(err, &transitionErr):
			clientMessage = "Order is not available for delivery"
		default:
			clientMessage = "Failed to claim order"
		}

		respondWithError(w, statusCode, clientMessage)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Order claimed"})
}

func (h *DeliveryHandler) handleComplete(w http.ResponseWriter, r *http.Request) {
	u, _ := currentUser(r)

	idParam := chi.URLParam(r, "id")
	orderID, err := uuid.FromString(idParam)
	if err != nil {
		log.Warn().Err(err).Str("order_id", idParam).Msg("Failed to parse id parameter from URL")
		respondWithError(w, http.StatusBadRequest, "Invalid id parameter")
		return
	}

	if err := h.service.CompleteOrder(r.Context(), orderID, u.ID); err != nil {
		log.Warn().Err(err).Stringer("order_id", orderID).Stringer("partner_id", u.ID).Msg("Failed to complete order via service")

		statusCode := mapErrorToStatusCode(err)

		var clientMessage string
		var transitionErr *order.InvalidTransitionError

		switch {
		case errors.Is(err, order.ErrNotFound):
			clientMessage = "Order not found"
		case errors.Is(err, order.ErrUnauthorized):
			clientMessage = "Order is assigned to another partner"
		case errors.As(err, &transitionErr):
			clientMessage = "Order is not out for delivery"
		default:
			clientMessage = "Failed to complete order"
		}

		respondWithError(w, statusCode, clientMessage)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Order delivered"})
}
