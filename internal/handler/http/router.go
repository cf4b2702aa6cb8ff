package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/handlers"
)

// Handlers bundles everything the router mounts.
type Handlers struct {
	Auth          *AuthHandler
	Product       *ProductHandler
	Cart          *CartHandler
	Order         *OrderHandler
	Delivery      *DeliveryHandler
	Notifications *NotificationHandler
}

func NewRouter(h Handlers) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	router.Route("/api/v1", func(r chi.Router) {
		h.Auth.RegisterRoutes(r)
		h.Product.RegisterRoutes(r)
		h.Cart.RegisterRoutes(r)
		h.Order.RegisterRoutes(r)
		h.Delivery.RegisterRoutes(r)
		h.Notifications.RegisterRoutes(r)
	})

	// Session auth rides on cookies, so browser clients need credentialed CORS.
	return handlers.CORS(
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
		handlers.AllowCredentials(),
	)(router)
}
