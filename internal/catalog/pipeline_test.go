package catalog

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flower-storefront/internal/models"
)

func strPtr(s string) *string { return &s }

func ids(products []models.Product) []string {
	out := make([]string, 0, len(products))
	for _, p := range products {
		out = append(out, p.ID)
	}
	return out
}

func bouquets() []models.Product {
	return []models.Product{
		{ID: "1", Name: "Букет роз", Price: 150000, Images: []string{"1.jpg"}, CategoryID: strPtr("roses")},
		{ID: "2", Name: "Тюльпаны", Price: 90000, Images: []string{"2.jpg"}, CategoryID: strPtr("tulips")},
		{ID: "3", Name: "Розовые пионы", Price: 120000, Images: []string{"3.jpg"}, CategoryID: strPtr("peonies")},
		{ID: "4", Name: "Белые розы", Price: 90000, Images: []string{"4.jpg"}, CategoryID: strPtr("roses")},
		{ID: "5", Name: "Корзина", Price: 200000, Images: []string{"5.jpg"}},
	}
}

func manyProducts(n int) []models.Product {
	products := make([]models.Product, n)
	for i := range products {
		products[i] = models.Product{ID: fmt.Sprintf("p%d", i+1), Name: fmt.Sprintf("Flower %d", i+1), Price: int64(1000 * (i + 1)), Images: []string{"x.jpg"}}
	}
	return products
}

func TestPaginate_PriceAscScenario(t *testing.T) {
	// Arrange
	products := []models.Product{
		{ID: "1", Price: 150000, Name: "Букет роз"},
		{ID: "2", Price: 90000, Name: "Тюльпаны"},
	}
	spec := FilterSpec{Search: "", Category: AllCategories, Sort: SortPriceAsc, Page: 1}

	// Act
	page := Paginate(products, spec)

	// Assert
	assert.Equal(t, []string{"2", "1"}, ids(page.Visible))
	assert.Equal(t, 1, page.TotalPages)
}

func TestPaginate_DefaultSpecKeepsSourceOrder(t *testing.T) {
	for _, n := range []int{0, 1, 12, 13, 25} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			products := manyProducts(n)

			page := Paginate(products, DefaultFilterSpec())

			assert.Equal(t, (n+11)/12, page.TotalPages)
			assert.Equal(t, n, page.TotalItems)
			assert.Equal(t, ids(products[:min(n, PageSize)]), ids(page.Visible))
		})
	}
}

func TestPaginate_EmptyCollection(t *testing.T) {
	page := Paginate(nil, DefaultFilterSpec())

	assert.Empty(t, page.Visible)
	assert.NotNil(t, page.Visible)
	assert.Equal(t, 0, page.TotalPages)
}

func TestPaginate_Search(t *testing.T) {
	testCases := []struct {
		name     string
		search   string
		expected []string
	}{
		{name: "empty query keeps all", search: "", expected: []string{"1", "2", "3", "4", "5"}},
		{name: "whitespace query keeps all", search: "   ", expected: []string{"1", "2", "3", "4", "5"}},
		{name: "case insensitive", search: "РОЗ", expected: []string{"1", "3", "4"}},
		{name: "trimmed", search: "  тюльп ", expected: []string{"2"}},
		{name: "no match", search: "орхидея", expected: []string{}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			spec := DefaultFilterSpec()
			spec.Search = tc.search

			page := Paginate(bouquets(), spec)

			assert.Equal(t, tc.expected, ids(page.Visible))
		})
	}
}

func TestPaginate_Category(t *testing.T) {
	spec := DefaultFilterSpec()
	spec.Category = "roses"

	page := Paginate(bouquets(), spec)

	assert.Equal(t, []string{"1", "4"}, ids(page.Visible))
}

func TestPaginate_SearchAppliesBeforeCategory(t *testing.T) {
	spec := DefaultFilterSpec()
	spec.Search = "роз"
	spec.Category = "peonies"

	page := Paginate(bouquets(), spec)

	assert.Equal(t, []string{"3"}, ids(page.Visible))
}

func TestPaginate_PriceBounds(t *testing.T) {
	testCases := []struct {
		name     string
		from, to string
		expected []string
	}{
		{name: "both unset", expected: []string{"1", "2", "3", "4", "5"}},
		{name: "from only", from: "120000", expected: []string{"1", "3", "5"}},
		{name: "to only", to: "100000", expected: []string{"2", "4"}},
		{name: "inclusive range", from: "90000", to: "120000", expected: []string{"2", "3", "4"}},
		{name: "zero is a real bound", from: "0", to: "0", expected: []string{}},
		{name: "from greater than to", from: "150000", to: "90000", expected: []string{}},
		{name: "unparsable from is unset", from: "abc", to: "100000", expected: []string{"2", "4"}},
		{name: "negative bound is unset", from: "-5", expected: []string{"1", "2", "3", "4", "5"}},
		{name: "decimal bound", to: "90000.5", expected: []string{"2", "4"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			spec := DefaultFilterSpec()
			spec.PriceFrom = tc.from
			spec.PriceTo = tc.to

			page := Paginate(bouquets(), spec)

			assert.Equal(t, tc.expected, ids(page.Visible))
		})
	}
}

func TestPaginate_FromGreaterThanToIsAlwaysEmpty(t *testing.T) {
	products := manyProducts(40)
	for _, bounds := range [][2]int{{2, 1}, {10000, 5000}, {40000, 39999}} {
		spec := DefaultFilterSpec()
		spec.PriceFrom = fmt.Sprint(bounds[0])
		spec.PriceTo = fmt.Sprint(bounds[1])

		page := Paginate(products, spec)

		assert.Empty(t, page.Visible)
		assert.Equal(t, 0, page.TotalPages)
	}
}

func TestPaginate_Sort(t *testing.T) {
	testCases := []struct {
		sort     SortKey
		expected []string
	}{
		{sort: SortNewest, expected: []string{"1", "2", "3", "4", "5"}},
		{sort: SortOldest, expected: []string{"5", "4", "3", "2", "1"}},
		// 2 and 4 share a price and keep their relative order
		{sort: SortPriceAsc, expected: []string{"2", "4", "3", "1", "5"}},
		{sort: SortPriceDesc, expected: []string{"5", "1", "3", "2", "4"}},
	}

	for _, tc := range testCases {
		t.Run(string(tc.sort), func(t *testing.T) {
			spec := DefaultFilterSpec()
			spec.Sort = tc.sort

			page := Paginate(bouquets(), spec)

			assert.Equal(t, tc.expected, ids(page.Visible))
		})
	}
}

func TestPaginate_AscThenDescIsReversedForDistinctPrices(t *testing.T) {
	products := manyProducts(10)
	asc := DefaultFilterSpec()
	asc.Sort = SortPriceAsc
	desc := DefaultFilterSpec()
	desc.Sort = SortPriceDesc

	ascIDs := ids(Paginate(products, asc).Visible)
	descIDs := ids(Paginate(products, desc).Visible)

	require.Len(t, descIDs, len(ascIDs))
	for i := range ascIDs {
		assert.Equal(t, ascIDs[i], descIDs[len(descIDs)-1-i])
	}
}

func TestPaginate_Pages(t *testing.T) {
	products := manyProducts(30)
	spec := DefaultFilterSpec()

	spec.Page = 3
	page := Paginate(products, spec)
	assert.Equal(t, 3, page.TotalPages)
	assert.Equal(t, []string{"p25", "p26", "p27", "p28", "p29", "p30"}, ids(page.Visible))

	// Out of range pages are not clamped here
	spec.Page = 4
	page = Paginate(products, spec)
	assert.Empty(t, page.Visible)
	assert.Equal(t, 4, page.Page)
}

func TestPaginate_DoesNotMutateInput(t *testing.T) {
	products := bouquets()
	spec := DefaultFilterSpec()
	spec.Sort = SortOldest

	Paginate(products, spec)

	assert.Equal(t, []string{"1", "2", "3", "4", "5"}, ids(products))
}

func TestParsePriceBound(t *testing.T) {
	testCases := []struct {
		input    string
		expected float64
		ok       bool
	}{
		{input: "", ok: false},
		{input: "  ", ok: false},
		{input: "0", expected: 0, ok: true},
		{input: "1500", expected: 1500, ok: true},
		{input: " 99.5 ", expected: 99.5, ok: true},
		{input: "-1", ok: false},
		{input: "12abc", ok: false},
		{input: "NaN", ok: false},
		{input: "Inf", ok: false},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			value, ok := ParsePriceBound(tc.input)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.expected, value)
		})
	}
}
