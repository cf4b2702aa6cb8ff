package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/cropcarry/marketplace/internal/cart"
	"github.com/cropcarry/marketplace/internal/product"
	"github.com/cropcarry/marketplace/internal/user"
)

type AddCartItemRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid4"`
}

// Zero is a valid quantity and removes the item from the cart.
type SetCartQuantityRequest struct {
	Quantity int `json:"quantity" validate:"gte=0"`
}

type CartItemResponse struct {
	ProductID uuid.UUID `json:"product_id"`
	Name      string    `json:"name"`
	Unit      string    `json:"unit"`
	Price     float64   `json:"price"`
	Quantity  int       `json:"quantity"`
	Subtotal  float64   `json:"subtotal"`
}

type CartResponse struct {
	Items []CartItemResponse `json:"items"`
	Total float64            `json:"total"`
}

type CartHandler struct {
	products product.Service
	sessions *Sessions
	validate *validator.Validate
}

func NewCartHandler(products product.Service, sessions *Sessions) *CartHandler {
	return &CartHandler{
		products: products,
		sessions: sessions,
		validate: validator.New(),
	}
}

func (h *CartHandler) RegisterRoutes(router chi.Router) {
	router.Group(func(r chi.Router) {
		r.Use(h.sessions.RequireAuth)
		r.Use(RequireRole(user.RoleConsumer))
		r.Get("/cart", h.handleViewCart)
		r.Post("/cart/items", h.handleAddItem)
		r.Put("/cart/items/{productID}", h.handleSetQuantity)
		r.Delete("/cart/items/{productID}", h.handleRemoveItem)
	})
}

func (h *CartHandler) handleAddItem(w http.ResponseWriter, r *http.Request) {
	var requestPayload AddCartItemRequest

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

	productID, err := uuid.FromString(requestPayload.ProductID)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid product_id")
		return
	}

	// The product must exist and be live before it enters the cart. Stock is
	// only reserved at checkout.
	if _, err := h.products.GetProduct(r.Context(), productID); err != nil {
		if errors.Is(err, product.ErrNotFound) {
			respondWithError(w, http.StatusNotFound, "Product not found")
			return
		}
		log.Error().Err(err).Stringer("product_id", productID).Msg("Failed to check product before adding to cart")
		respondWithError(w, http.StatusInternalServerError, "Failed to add to cart")
		return
	}

	session := h.sessions.get(r)
	c := cart.FromSession(session)
	c.Add(productID)
	c.Save(session)
	h.sessions.save(w, r, session)

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Added to cart"})
}

func (h *CartHandler) handleSetQuantity(w http.ResponseWriter, r *http.Request) {
	idParam := chi.URLParam(r, "productID")
	productID, err := uuid.FromString(idParam)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid product id parameter")
		return
	}

	var requestPayload SetCartQuantityRequest

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
	c.SetQuantity(productID, requestPayload.Quantity)
	c.Save(session)
	h.sessions.save(w, r, session)

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Cart updated"})
}

func (h *CartHandler) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	idParam := chi.URLParam(r, "productID")
	productID, err := uuid.FromString(idParam)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid product id parameter")
		return
	}

	session := h.sessions.get(r)
	c := cart.FromSession(session)
	c.Remove(productID)
	c.Save(session)
	h.sessions.save(w, r, session)

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Removed from cart"})
}

// handleViewCart resolves the cart against live catalog data. Lines whose
// product has disappeared since it was added are dropped from the view.
func (h *CartHandler) handleViewCart(w http.ResponseWriter, r *http.Request) {
	session := h.sessions.get(r)
	c := cart.FromSession(session)

	response := CartResponse{Items: make([]CartItemResponse, 0, len(c))}

	for _, line := range c.Lines() {
		p, err := h.products.GetProduct(r.Context(), line.ProductID)
		if err != nil {
			if errors.Is(err, product.ErrNotFound) {
				continue
			}
			log.Error().Err(err).Stringer("product_id", line.ProductID).Msg("Failed to resolve cart line")
			respondWithError(w, http.StatusInternalServerError, "Failed to load cart")
			return
		}

		subtotal := p.Price * float64(line.Quantity)
		response.Items = append(response.Items, CartItemResponse{
			ProductID: p.ID,
			Name:      p.Name,
			Unit:      p.Unit,
			Price:     p.Price,
			Quantity:  line.Quantity,
			Subtotal:  subtotal,
		})
		response.Total += subtotal
	}

	respondWithJSON(w, http.StatusOK, response)
}
