package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/cropcarry/marketplace/internal/cart"
	"github.com/cropcarry/marketplace/internal/order"
	"github.com/cropcarry/marketplace/internal/user"
)

type CheckoutRequest struct {
	PaymentMethod string `json:"payment_method" validate:"required,oneof=UPI COD"`
}

type OrderItemResponse struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
	Price     float64   `json:"price"`
}

type OrderResponse struct {
	ID                uuid.UUID           `json:"id"`
	Status            string              `json:"status"`
	PaymentMethod     string              `json:"payment_method"`
	TotalAmount       float64             `json:"total_amount"`
	PickupAddress     string              `json:"pickup_address"`
	DropAddress       string              `json:"drop_address"`
	DeliveryPartnerID *uuid.UUID          `json:"delivery_partner_id,omitempty"`
	Items             []OrderItemResponse `json:"items"`
	CreatedAt         time.Time           `json:"created_at"`
}

func toOrderResponse(o *order.Order) OrderResponse {
	items := make([]OrderItemResponse, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, OrderItemResponse{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     item.Price,
		})
	}
	return OrderResponse{
		ID:                o.ID,
		Status:            string(o.Status),
		PaymentMethod:     o.PaymentMethod,
		TotalAmount:       o.TotalAmount,
		PickupAddress:     o.PickupAddress,
		DropAddress:       o.DropAddress,
		DeliveryPartnerID: o.DeliveryPartnerID,
		Items:             items,
		CreatedAt:         o.CreatedAt,
	}
}

func toOrderResponses(orders []order.Order) []OrderResponse {
	responses := make([]OrderResponse, 0, len(orders))
	for i := range orders {
		responses = append(responses, toOrderResponse(&orders[i]))
	}
	return responses
}

type OrderHandler struct {
	service  order.Service
	sessions *Sessions
	validate *validator.Validate
}

func NewOrderHandler(service order.Service, sessions *Sessions) *OrderHandler {
	return &OrderHandler{
		service:  service,
		sessions: sessions,
		validate: validator.New(),
	}
}

func (h *OrderHandler) RegisterRoutes(router chi.Router) {
	router.Group(func(r chi.Router) {
		r.Use(h.sessions.RequireAuth)
		r.Use(RequireRole(user.RoleConsumer))
		r.Post("/checkout", h.handleCheckout)
		r.Get("/orders", h.handleListOrders)
		r.Get("/orders/{id}", h.handleGetOrder)
		r.Post("/orders/{id}/cancel", h.handleCancelOrder)
	})
}

func (h *OrderHandler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	u, _ := currentUser(r)

	var requestPayload CheckoutRequest

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(&requestPayload); err != nil {
		log.Error().Err(err).Msg("Failed to decode request body")
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	if err := h.validate.Struct(requestPayload); err != nil {
		respondWithValidationError(w, err)
		return
	}

	session := h.sessions.get(r)
	c := cart.FromSession(session)

	consumer := order.Consumer{
		ID:      u.ID,
		Email:   u.Email,
		Name:    u.Name,
		Address: u.Address,
	}

	placedOrder, err := h.service.PlaceOrder(r.Context(), consumer, c.Lines(), requestPayload.PaymentMethod)
	if err != nil {
		log.Error().Err(err).Stringer("consumer_id", u.ID).Msg("Failed to place order via service")

		statusCode := mapErrorToStatusCode(err)

		var clientMessage string
		var stockErr *order.InsufficientStockError

		switch {
		case errors.Is(err, order.ErrEmptyCart):
			clientMessage = "Your cart is empty"
		case errors.Is(err, order.ErrProductNotFound):
			clientMessage = "A product in your cart is no longer available"
		case errors.As(err, &stockErr):
			clientMessage = stockErr.Error()
		default:
			clientMessage = "Failed to place order"
		}

		respondWithError(w, statusCode, clientMessage)
		return
	}

	// The cart only empties once the order committed.
	cart.Clear(session)
	h.sessions.save(w, r, session)

	respondWithJSON(w, http.StatusCreated, toOrderResponse(placedOrder))
}

func (h *OrderHandler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	u, _ := currentUser(r)

	orders, err := h.service.ListConsumerOrders(r.Context(), u.ID)
	if err != nil {
		log.Error().Err(err).Stringer("consumer_id", u.ID).Msg("Failed to list orders via service")
		respondWithError(w, mapErrorToStatusCode(err), "Failed to list orders")
		return
	}

	respondWithJSON(w, http.StatusOK, toOrderResponses(orders))
}

func (h *OrderHandler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	u, _ := currentUser(r)

	idParam := chi.URLParam(r, "id")
	orderID, err := uuid.FromString(idParam)
	if err != nil {
		log.Warn().Err(err).Str("order_id", idParam).Msg("Failed to parse id parameter from URL")
		respondWithError(w, http.StatusBadRequest, "Invalid id parameter")
		return
	}

	foundOrder, err := h.service.GetOrder(r.Context(), orderID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to get order via service")

		statusCode := mapErrorToStatusCode(err)

		var clientMessage string

		if errors.Is(err, order.ErrNotFound) {
			clientMessage = "Order not found"
		} else {
			clientMessage = "Failed to get order"
		}

		respondWithError(w, statusCode, clientMessage)
		return
	}

	// Consumers only see their own orders.
	if foundOrder.ConsumerID != u.ID {
		respondWithError(w, http.StatusNotFound, "Order not found")
		return
	}

	respondWithJSON(w, http.StatusOK, toOrderResponse(foundOrder))
}

func (h *OrderHandler) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	u, _ := currentUser(r)

	idParam := chi.URLParam(r, "id")
	orderID, err := uuid.FromString(idParam)
	if err != nil {
		log.Warn().Err(err).Str("order_id", idParam).Msg("Failed to parse id parameter from URL")
		respondWithError(w, http.StatusBadRequest, "Invalid id parameter")
		return
	}

	consumer := order.Consumer{
		ID:      u.ID,
		Email:   u.Email,
		Name:    u.Name,
		Address: u.Address,
	}

	if err := h.service.CancelOrder(r.Context(), orderID, consumer); err != nil {
		log.Warn().Err(err).Stringer("order_id", orderID).Msg("Failed to cancel order via service")

		statusCode := mapErrorToStatusCode(err)

		var clientMessage string
		var transitionErr *order.InvalidTransitionError

		switch {
		case errors.Is(err, order.ErrNotFound):
			clientMessage = "Order not found"
		case errors.Is(err, order.ErrUnauthorized):
			clientMessage = "Order does not belong to you"
		case errors.As(err, &transitionErr):
			clientMessage = "Order can no longer be cancelled"
		default:
			clientMessage = "Failed to cancel order"
		}

		respondWithError(w, statusCode, clientMessage)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Order cancelled"})
}
