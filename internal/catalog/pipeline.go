package catalog

import (
	"math"
	"slices"
	"strconv"
	"strings"

	"flower-storefront/internal/models"
)

// PageSize is the number of products shown per catalog page
const PageSize = 12

// AllCategories selects every category
const AllCategories = "all"

// SortKey orders the filtered products
type SortKey string

const (
	SortNewest    SortKey = "new"
	SortOldest    SortKey = "old"
	SortPriceAsc  SortKey = "price-asc"
	SortPriceDesc SortKey = "price-desc"
)

// Valid reports whether k is a known sort key
func (k SortKey) Valid() bool {
	switch k {
	case SortNewest, SortOldest, SortPriceAsc, SortPriceDesc:
		return true
	}
	return false
}

// FilterSpec is the user's current catalog query. Price bounds stay as typed
// by the user and are parsed when the pipeline runs.
type FilterSpec struct {
	Category  string  `json:"category"`
	Search    string  `json:"search"`
	PriceFrom string  `json:"priceFrom"`
	PriceTo   string  `json:"priceTo"`
	Sort      SortKey `json:"sort"`
	Page      int     `json:"page"`
}

// DefaultFilterSpec returns the spec a fresh catalog view starts with
func DefaultFilterSpec() FilterSpec {
	return FilterSpec{
		Category: AllCategories,
		Sort:     SortNewest,
		Page:     1,
	}
}

// Page is one rendered catalog page
type Page struct {
	Visible    []models.Product `json:"visible"`
	TotalPages int              `json:"totalPages"`
	TotalItems int              `json:"totalItems"`
	Page       int              `json:"page"`
}

// ParsePriceBound parses a user supplied price bound. Empty, unparsable,
// negative and non-finite input all count as unset.
func ParsePriceBound(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// Paginate runs search, category, price, sort and pagination over products, in that order.
// The input slice is never modified. The requested page is not clamped.
func Paginate(products []models.Product, spec FilterSpec) Page {
	filtered := filterBySearch(products, spec.Search)
	filtered = filterByCategory(filtered, spec.Category)
	filtered = filterByPrice(filtered, spec.PriceFrom, spec.PriceTo)
	filtered = sortProducts(filtered, spec.Sort)

	total := len(filtered)
	totalPages := (total + PageSize - 1) / PageSize

	page := spec.Page
	visible := []models.Product{}
	if page >= 1 {
		start := (page - 1) * PageSize
		if start < total {
			end := min(start+PageSize, total)
			visible = append(visible, filtered[start:end]...)
		}
	}

	return Page{
		Visible:    visible,
		TotalPages: totalPages,
		TotalItems: total,
		Page:       page,
	}
}

func filterBySearch(products []models.Product, search string) []models.Product {
	query := strings.ToLower(strings.TrimSpace(search))
	if query == "" {
		return slices.Clone(products)
	}
	out := make([]models.Product, 0, len(products))
	for _, p := range products {
		if strings.Contains(strings.ToLower(p.Name), query) {
			out = append(out, p)
		}
	}
	return out
}

func filterByCategory(products []models.Product, category string) []models.Product {
	if category == "" || category == AllCategories {
		return products
	}
	out := make([]models.Product, 0, len(products))
	for _, p := range products {
		if p.CategoryID != nil && *p.CategoryID == category {
			out = append(out, p)
		}
	}
	return out
}

func filterByPrice(products []models.Product, fromRaw, toRaw string) []models.Product {
	from, hasFrom := ParsePriceBound(fromRaw)
	to, hasTo := ParsePriceBound(toRaw)
	if !hasFrom && !hasTo {
		return products
	}
	if !hasTo {
		to = math.Inf(1)
	}

	out := make([]models.Product, 0, len(products))
	for _, p := range products {
		price := float64(p.Price)
		if price >= from && price <= to {
			out = append(out, p)
		}
	}
	return out
}

// sortProducts sorts in place; products is already a private copy here
func sortProducts(products []models.Product, key SortKey) []models.Product {
	switch key {
	case SortOldest:
		slices.Reverse(products)
	case SortPriceAsc:
		slices.SortStableFunc(products, func(a, b models.Product) int {
			return compareInt64(a.Price, b.Price)
		})
	case SortPriceDesc:
		slices.SortStableFunc(products, func(a, b models.Product) int {
			return compareInt64(b.Price, a.Price)
		})
	}
	return products
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
