package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"flower-storefront/internal/models"
	"flower-storefront/internal/reconcile"
)

// AddCartItemRequest adds one unit of a product
type AddCartItemRequest struct {
	ProductID string `json:"productId"`
}

// UpdateCartItemRequest sets the absolute quantity of a line
type UpdateCartItemRequest struct {
	Quantity int `json:"quantity"`
}

// CartResponse is the session's cart with derived totals
type CartResponse struct {
	Items []models.CartLine    `json:"items"`
	Count int                  `json:"count"`
	Total int64                `json:"total"`
	Sync  reconcile.SyncStatus `json:"sync"`
}

// FavoritesResponse lists the session's favorites
type FavoritesResponse struct {
	Items []models.FavoriteEntry `json:"items"`
	Count int                    `json:"count"`
}

// ToggleFavoriteResponse reports the favorite flag after a toggle
type ToggleFavoriteResponse struct {
	ProductID  string `json:"productId"`
	IsFavorite bool   `json:"isFavorite"`
}

// CartHandler handles cart and favorites requests. Mutations answer from
// local state; backend write failures do not fail the request.
type CartHandler struct{}

// NewCartHandler creates a new cart handler
func NewCartHandler() *CartHandler {
	return &CartHandler{}
}

// GetCart handles GET /v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	s, ok := currentSession(w, r)
	if !ok {
		return
	}
	writeJSONResponse(w, http.StatusOK, cartResponse(s.Cart))
}

// AddItem handles POST /v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	s, ok := currentSession(w, r)
	if !ok {
		return
	}

	var req AddCartItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "bad_request", "Invalid JSON", nil)
		return
	}
	if req.ProductID == "" {
		writeErrorResponse(w, http.StatusBadRequest, "bad_request", "Product ID is required", []models.ErrorDetail{
			{Field: "productId", Issue: "cannot be empty"},
		})
		return
	}

	if err := s.Cart.Add(r.Context(), req.ProductID); err != nil {
		writeDomainError(w, r, "add to cart", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cartResponse(s.Cart))
}

// UpdateItem handles PUT /v1/cart/items/{productId}
func (h *CartHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	s, ok := currentSession(w, r)
	if !ok {
		return
	}

	var req UpdateCartItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "bad_request", "Invalid JSON", nil)
		return
	}

	if err := s.Cart.SetQuantity(r.Context(), mux.Vars(r)["productId"], req.Quantity); err != nil {
		writeDomainError(w, r, "update cart", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cartResponse(s.Cart))
}

// RemoveItem handles DELETE /v1/cart/items/{productId}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	s, ok := currentSession(w, r)
	if !ok {
		return
	}
	if err := s.Cart.Remove(r.Context(), mux.Vars(r)["productId"]); err != nil {
		writeDomainError(w, r, "remove from cart", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cartResponse(s.Cart))
}

// ClearCart handles DELETE /v1/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	s, ok := currentSession(w, r)
	if !ok {
		return
	}
	if err := s.Cart.Clear(r.Context()); err != nil {
		writeDomainError(w, r, "clear cart", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cartResponse(s.Cart))
}

// ListFavorites handles GET /v1/favorites
func (h *CartHandler) ListFavorites(w http.ResponseWriter, r *http.Request) {
	s, ok := currentSession(w, r)
	if !ok {
		return
	}
	favorites := s.Cart.Favorites()
	writeJSONResponse(w, http.StatusOK, FavoritesResponse{Items: favorites, Count: len(favorites)})
}

// ToggleFavorite handles POST /v1/favorites/{productId}/toggle
func (h *CartHandler) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	s, ok := currentSession(w, r)
	if !ok {
		return
	}
	productID := mux.Vars(r)["productId"]

	favorite, err := s.Cart.Toggle(r.Context(), productID)
	if err != nil {
		writeDomainError(w, r, "toggle favorite", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, ToggleFavoriteResponse{ProductID: productID, IsFavorite: favorite})
}

// ClearFavorites handles DELETE /v1/favorites
func (h *CartHandler) ClearFavorites(w http.ResponseWriter, r *http.Request) {
	s, ok := currentSession(w, r)
	if !ok {
		return
	}
	if err := s.Cart.ClearFavorites(r.Context()); err != nil {
		writeDomainError(w, r, "clear favorites", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, FavoritesResponse{Items: []models.FavoriteEntry{}, Count: 0})
}

func cartResponse(cart *reconcile.Reconciler) CartResponse {
	return CartResponse{
		Items: cart.Cart(),
		Count: cart.CartCount(),
		Total: cart.CartTotal(),
		Sync:  cart.Status(),
	}
}
