package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
)

// Handlers groups the storefront HTTP handlers
type Handlers struct {
	Session  *SessionHandler
	Catalog  *CatalogHandler
	Cart     *CartHandler
	Checkout *CheckoutHandler
	Health   *HealthHandler
}

// Register mounts the storefront routes on r. Everything under /v1 except
// session start goes through auth.
func (h *Handlers) Register(r *mux.Router, auth mux.MiddlewareFunc) {
	// Session start is the only unauthenticated v1 route
	r.HandleFunc("/v1/session", h.Session.StartSession).Methods(http.MethodPost)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.Use(auth)

	v1.HandleFunc("/session", h.Session.EndSession).Methods(http.MethodDelete)

	v1.HandleFunc("/categories", h.Catalog.ListCategories).Methods(http.MethodGet)
	v1.HandleFunc("/products/{productId}", h.Catalog.GetProduct).Methods(http.MethodGet)
	v1.HandleFunc("/catalog", h.Catalog.QueryCatalog).Methods(http.MethodGet)
	v1.HandleFunc("/catalog/reset", h.Catalog.ResetCatalog).Methods(http.MethodPost)

	v1.HandleFunc("/cart", h.Cart.GetCart).Methods(http.MethodGet)
	v1.HandleFunc("/cart", h.Cart.ClearCart).Methods(http.MethodDelete)
	v1.HandleFunc("/cart/items", h.Cart.AddItem).Methods(http.MethodPost)
	v1.HandleFunc("/cart/items/{productId}", h.Cart.UpdateItem).Methods(http.MethodPut)
	v1.HandleFunc("/cart/items/{productId}", h.Cart.RemoveItem).Methods(http.MethodDelete)

	v1.HandleFunc("/favorites", h.Cart.ListFavorites).Methods(http.MethodGet)
	v1.HandleFunc("/favorites", h.Cart.ClearFavorites).Methods(http.MethodDelete)
	v1.HandleFunc("/favorites/{productId}/toggle", h.Cart.ToggleFavorite).Methods(http.MethodPost)

	v1.HandleFunc("/checkout", h.Checkout.Checkout).Methods(http.MethodPost)

	// Health check endpoint (no auth required)
	r.HandleFunc("/health", h.Health.Health).Methods(http.MethodGet)
}
