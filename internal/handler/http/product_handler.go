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

	"github.com/cropcarry/marketplace/internal/product"
	"github.com/cropcarry/marketplace/internal/user"
)

type AddProductRequest struct {
	Name        string  `json:"name" validate:"required,min=2,max=120"`
	Description string  `json:"description" validate:"omitempty,max=1000"`
	Price       float64 `json:"price" validate:"required,gt=0"`
	Stock       int     `json:"stock" validate:"gte=0"`
	Unit        string  `json:"unit" validate:"omitempty,oneof=Kg L Count"`
	ImageURL    string  `json:"image_url" validate:"omitempty,url"`
	CategoryID  *string `json:"category_id" validate:"omitempty,uuid4"`
}

type UpdateProductRequest struct {
	Price float64 `json:"price" validate:"required,gt=0"`
	Stock int     `json:"stock" validate:"gte=0"`
}

type ProductResponse struct {
	ID          uuid.UUID `json:"id"`
	FarmerID    uuid.UUID `json:"farmer_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       float64   `json:"price"`
	Stock       int       `json:"stock"`
	Unit        string    `json:"unit"`
	ImageURL    string    `json:"image_url"`
	TotalSales  int       `json:"total_sales"`
	CreatedAt   time.Time `json:"created_at"`
}

type FarmerStatsResponse struct {
	TotalSales  int     `json:"total_sales"`
	SalesAmount float64 `json:"sales_amount"`
}

func toProductResponse(p *product.Product) ProductResponse {
	return ProductResponse{
		ID:          p.ID,
		FarmerID:    p.FarmerID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		Stock:       p.Stock,
		Unit:        p.Unit,
		ImageURL:    p.ImageURL,
		TotalSales:  p.TotalSales,
		CreatedAt:   p.CreatedAt,
	}
}

func toProductResponses(products []product.Product) []ProductResponse {
	responses := make([]ProductResponse, 0, len(products))
	for i := range products {
		responses = append(responses, toProductResponse(&products[i]))
	}
	return responses
}

type ProductHandler struct {
	service  product.Service
	sessions *Sessions
	validate *validator.Validate
}

func NewProductHandler(service product.Service, sessions *Sessions) *ProductHandler {
	return &ProductHandler{
		service:  service,
		sessions: sessions,
		validate: validator.New(),
	}
}

func (h *ProductHandler) RegisterRoutes(router chi.Router) {
	router.Get("/products", h.handleListMarket)
	router.Get("/products/{id}", h.handleGetProduct)

	router.Group(func(r chi.Router) {
		r.Use(h.sessions.RequireAuth)
		r.Use(RequireRole(user.RoleFarmer))
		r.Post("/farmer/products", h.handleAddProduct)
		r.Get("/farmer/products", h.handleListFarmerProducts)
		r.Put("/farmer/products/{id}", h.handleUpdateProduct)
		r.Delete("/farmer/products/{id}", h.handleDeleteProduct)
		r.Get("/farmer/stats", h.handleFarmerStats)
	})
}

func (h *ProductHandler) handleListMarket(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.ListMarket(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list market products via service")
		respondWithError(w, mapErrorToStatusCode(err), "Failed to list products")
		return
	}

	respondWithJSON(w, http.StatusOK, toProductResponses(products))
}

func (h *ProductHandler) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	idParam := chi.URLParam(r, "id")
	productID, err := uuid.FromString(idParam)
	if err != nil {
		log.Warn().Err(err).Str("product_id", idParam).Msg("Failed to parse id parameter from URL")
		respondWithError(w, http.StatusBadRequest, "Invalid id parameter")
		return
	}

	foundProduct, err := h.service.GetProduct(r.Context(), productID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to get product via service")

		statusCode := mapErrorToStatusCode(err)

		var clientMessage string

		if errors.Is(err, product.ErrNotFound) {
			clientMessage = "Product not found"
		} else {
			clientMessage = "Failed to get product"
		}

		respondWithError(w, statusCode, clientMessage)
		return
	}

	respondWithJSON(w, http.StatusOK, toProductResponse(foundProduct))
}

func (h *ProductHandler) handleAddProduct(w http.ResponseWriter, r *http.Request) {
	u, _ := currentUser(r)

	var requestPayload AddProductRequest

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

	domainProduct := product.Product{
		FarmerID:    u.ID,
		Name:        requestPayload.Name,
		Description: requestPayload.Description,
		Price:       requestPayload.Price,
		Stock:       requestPayload.Stock,
		Unit:        requestPayload.Unit,
		ImageURL:    requestPayload.ImageURL,
	}

	if requestPayload.CategoryID != nil {
		categoryID, err := uuid.FromString(*requestPayload.CategoryID)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid category_id")
			return
		}
		domainProduct.CategoryID = &categoryID
	}

	createdProduct, err := h.service.AddProduct(r.Context(), &domainProduct)
	if err != nil {
		log.Error().Err(err).Msg("Failed to add product via service")
		respondWithError(w, mapErrorToStatusCode(err), "Failed to add product")
		return
	}

	respondWithJSON(w, http.StatusCreated, toProductResponse(createdProduct))
}

func (h *ProductHandler) handleListFarmerProducts(w http.ResponseWriter, r *http.Request) {
	u, _ := currentUser(r)

	products, err := h.service.ListFarmerProducts(r.Context(), u.ID)
	if err != nil {
		log.Error().Err(err).Stringer("farmer_id", u.ID).Msg("Failed to list farmer products via service")
		respondWithError(w, mapErrorToStatusCode(err), "Failed to list products")
		return
	}

	respondWithJSON(w, http.StatusOK, toProductResponses(products))
}

func (h *ProductHandler) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	u, _ := currentUser(r)

	idParam := chi.URLParam(r, "id")
	productID, err := uuid.FromString(idParam)
	if err != nil {
		log.Warn().Err(err).Str("product_id", idParam).Msg("Failed to parse id parameter from URL")
		respondWithError(w, http.StatusBadRequest, "Invalid id parameter")
		return
	}

	var requestPayload UpdateProductRequest

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

	if err := h.service.UpdateProduct(r.Context(), u.ID, productID, requestPayload.Price, requestPayload.Stock); err != nil {
		log.Error().Err(err).Stringer("product_id", productID).Msg("Failed to update product via service")

		statusCode := mapErrorToStatusCode(err)

		var clientMessage string

		switch {
		case errors.Is(err, product.ErrNotFound):
			clientMessage = "Product not found"
		case errors.Is(err, product.ErrUnauthorized):
			clientMessage = "Product does not belong to you"
		default:
			clientMessage = "Failed to update product"
		}

		respondWithError(w, statusCode, clientMessage)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *ProductHandler) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	u, _ := currentUser(r)

	idParam := chi.URLParam(r, "id")
	productID, err := uuid.FromString(idParam)
	if err != nil {
		log.Warn().Err(err).Str("product_id", idParam).Msg("Failed to parse id parameter from URL")
		respondWithError(w, http.StatusBadRequest, "Invalid id parameter")
		return
	}

	if err := h.service.DeleteProduct(r.Context(), u.ID, productID); err != nil {
		log.Error().Err(err).Stringer("product_id", productID).Msg("Failed to delete product via service")

		statusCode := mapErrorToStatusCode(err)

		var clientMessage string

		switch {
		case errors.Is(err, product.ErrNotFound):
			clientMessage = "Product not found"
		case errors.Is(err, product.ErrUnauthorized):
			clientMessage = "Product does not belong to you"
		default:
			clientMessage = "Failed to delete product"
		}

		respondWithError(w, statusCode, clientMessage)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *ProductHandler) handleFarmerStats(w http.ResponseWriter, r *http.Request) {
	u, _ := currentUser(r)

	stats, err := h.service.GetFarmerStats(r.Context(), u.ID)
	if err != nil {
		log.Error().Err(err).Stringer("farmer_id", u.ID).Msg("Failed to aggregate farmer stats via service")
		respondWithError(w, mapErrorToStatusCode(err), "Failed to load stats")
		return
	}

	respondWithJSON(w, http.StatusOK, FarmerStatsResponse{
		TotalSales:  stats.TotalSales,
		SalesAmount: stats.SalesAmount,
	})
}
