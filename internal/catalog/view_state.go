package catalog

import (
	"sync"

	"flower-storefront/internal/models"
)

// ViewState is the per-session catalog controller. Any change to the filter
// or sort sends the user back to the first page.
type ViewState struct {
	mu   sync.Mutex
	spec FilterSpec
}

// NewViewState creates a view state with default filters
func NewViewState() *ViewState {
	return &ViewState{spec: DefaultFilterSpec()}
}

// Spec returns a copy of the current filter spec
func (v *ViewState) Spec() FilterSpec {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.spec
}

// SetCategory selects a category; empty selects all
func (v *ViewState) SetCategory(category string) {
	if category == "" {
		category = AllCategories
	}
	v.update(func(s *FilterSpec) bool {
		if s.Category == category {
			return false
		}
		s.Category = category
		return true
	})
}

// SetSearch sets the name search text
func (v *ViewState) SetSearch(search string) {
	v.update(func(s *FilterSpec) bool {
		if s.Search == search {
			return false
		}
		s.Search = search
		return true
	})
}

// SetPriceFrom sets the raw lower price bound
func (v *ViewState) SetPriceFrom(from string) {
	v.update(func(s *FilterSpec) bool {
		if s.PriceFrom == from {
			return false
		}
		s.PriceFrom = from
		return true
	})
}

// SetPriceTo sets the raw upper price bound
func (v *ViewState) SetPriceTo(to string) {
	v.update(func(s *FilterSpec) bool {
		if s.PriceTo == to {
			return false
		}
		s.PriceTo = to
		return true
	})
}

// SetSort changes the sort key. Unknown keys fall back to newest.
func (v *ViewState) SetSort(key SortKey) {
	if !key.Valid() {
		key = SortNewest
	}
	v.update(func(s *FilterSpec) bool {
		if s.Sort == key {
			return false
		}
		s.Sort = key
		return true
	})
}

// SetPage moves to page; values below 1 become 1
func (v *ViewState) SetPage(page int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.spec.Page = max(page, 1)
}

// Reset restores the default filters
func (v *ViewState) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.spec = DefaultFilterSpec()
}

// HasActiveFilters reports whether anything narrows or reorders the catalog
func (v *ViewState) HasActiveFilters() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	s := v.spec
	return s.Category != AllCategories || s.Search != "" || s.PriceFrom != "" || s.PriceTo != "" ||
		s.Sort != SortNewest
}

// Render paginates products, first clamping the current page to the
// number of pages the filtered collection still has
func (v *ViewState) Render(products []models.Product) Page {
	v.mu.Lock()
	defer v.mu.Unlock()

	page := Paginate(products, v.spec)
	clamped := min(v.spec.Page, max(page.TotalPages, 1))
	if clamped != v.spec.Page {
		v.spec.Page = clamped
		page = Paginate(products, v.spec)
	}
	return page
}

func (v *ViewState) update(change func(*FilterSpec) bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if change(&v.spec) {
		v.spec.Page = 1
	}
}
