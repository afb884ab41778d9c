package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"flower-storefront/internal/catalog"
	"flower-storefront/internal/models"
)

// CatalogSource is the cached view of the backend catalog
type CatalogSource interface {
	Products(ctx context.Context) ([]models.Product, error)
	Categories(ctx context.Context) ([]models.Category, error)
	Lookup(ctx context.Context, productID string) (models.Product, error)
}

// QueryRecorder counts rendered catalog pages
type QueryRecorder interface {
	RecordCatalogQuery(ctx context.Context, sort string, filtered bool)
}

// CatalogItem is a product annotated with the session's cart and favorite state
type CatalogItem struct {
	models.Product
	InCart     bool `json:"inCart"`
	IsFavorite bool `json:"isFavorite"`
}

// CatalogPageResponse is one rendered page of the catalog
type CatalogPageResponse struct {
	Items            []CatalogItem      `json:"items"`
	Page             int                `json:"page"`
	TotalPages       int                `json:"totalPages"`
	TotalItems       int                `json:"totalItems"`
	Filters          catalog.FilterSpec `json:"filters"`
	HasActiveFilters bool               `json:"hasActiveFilters"`
}

// ProductDetailResponse is a single product with the session's state
type ProductDetailResponse struct {
	CatalogItem
	CartQuantity int `json:"cartQuantity"`
}

// CatalogHandler handles catalog browsing requests
type CatalogHandler struct {
	source   CatalogSource
	recorder QueryRecorder
}

// NewCatalogHandler creates a new catalog handler; recorder may be nil
func NewCatalogHandler(source CatalogSource, recorder QueryRecorder) *CatalogHandler {
	return &CatalogHandler{source: source, recorder: recorder}
}

// ListCategories handles GET /v1/categories
func (h *CatalogHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.source.Categories(r.Context())
	if err != nil {
		writeDomainError(w, r, "load categories", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]interface{}{"items": categories})
}

// GetProduct handles GET /v1/products/{productId}
func (h *CatalogHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	s, ok := currentSession(w, r)
	if !ok {
		return
	}
	productID := mux.Vars(r)["productId"]

	product, err := h.source.Lookup(r.Context(), productID)
	if err != nil {
		writeDomainError(w, r, "load product", err)
		return
	}

	quantity := 0
	for _, line := range s.Cart.Cart() {
		if line.ProductID == productID {
			quantity = line.Quantity
			break
		}
	}

	writeJSONResponse(w, http.StatusOK, ProductDetailResponse{
		CatalogItem: CatalogItem{
			Product:    product,
			InCart:     quantity > 0,
			IsFavorite: s.Cart.IsFavorite(productID),
		},
		CartQuantity: quantity,
	})
}

// QueryCatalog handles GET /v1/catalog. Query parameters that are present
// update the session's filter state; absent ones keep their current value.
func (h *CatalogHandler) QueryCatalog(w http.ResponseWriter, r *http.Request) {
	s, ok := currentSession(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	view := s.View
	if query.Has("category") {
		view.SetCategory(query.Get("category"))
	}
	if query.Has("search") {
		view.SetSearch(query.Get("search"))
	}
	if query.Has("price_from") {
		view.SetPriceFrom(query.Get("price_from"))
	}
	if query.Has("price_to") {
		view.SetPriceTo(query.Get("price_to"))
	}
	if query.Has("sort") {
		view.SetSort(catalog.SortKey(query.Get("sort")))
	}
	// page is applied last since every filter change resets it to 1
	if query.Has("page") {
		page, err := strconv.Atoi(query.Get("page"))
		if err != nil {
			writeErrorResponse(w, http.StatusBadRequest, "bad_request", "Invalid page", []models.ErrorDetail{
				{Field: "page", Issue: "must be an integer"},
			})
			return
		}
		view.SetPage(page)
	}

	h.render(w, r, s.Cart, view)
}

// ResetCatalog handles POST /v1/catalog/reset
func (h *CatalogHandler) ResetCatalog(w http.ResponseWriter, r *http.Request) {
	s, ok := currentSession(w, r)
	if !ok {
		return
	}
	s.View.Reset()
	h.render(w, r, s.Cart, s.View)
}

type cartState interface {
	InCart(productID string) bool
	IsFavorite(productID string) bool
}

func (h *CatalogHandler) render(w http.ResponseWriter, r *http.Request, cart cartState, view *catalog.ViewState) {
	products, err := h.source.Products(r.Context())
	if err != nil {
		writeDomainError(w, r, "load catalog", err)
		return
	}

	page := view.Render(products)
	spec := view.Spec()

	items := make([]CatalogItem, len(page.Visible))
	for i, p := range page.Visible {
		items[i] = CatalogItem{Product: p, InCart: cart.InCart(p.ID), IsFavorite: cart.IsFavorite(p.ID)}
	}

	if h.recorder != nil {
		h.recorder.RecordCatalogQuery(r.Context(), string(spec.Sort), view.HasActiveFilters())
	}
	slog.Debug("Catalog page rendered",
		"category", spec.Category,
		"search", spec.Search,
		"sort", string(spec.Sort),
		"page", page.Page,
		"total_items", page.TotalItems,
		"remote_addr", r.RemoteAddr)

	writeJSONResponse(w, http.StatusOK, CatalogPageResponse{
		Items:            items,
		Page:             page.Page,
		TotalPages:       page.TotalPages,
		TotalItems:       page.TotalItems,
		Filters:          spec,
		HasActiveFilters: view.HasActiveFilters(),
	})
}
