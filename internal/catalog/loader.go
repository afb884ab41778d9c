package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"flower-storefront/internal/cache"
	"flower-storefront/internal/client"
	"flower-storefront/internal/models"
)

// ErrProductNotFound is returned when a product id is unknown to the catalog
var ErrProductNotFound = errors.New("product not found")

// Source is the read side of the backend used by the catalog
type Source interface {
	ListProducts(ctx context.Context) ([]models.Product, error)
	ListCategories(ctx context.Context) ([]models.Category, error)
	GetProduct(ctx context.Context, productID string) (*models.Product, error)
}

const (
	productsKey   = "products"
	categoriesKey = "categories"

	// bound on a shared load once it no longer follows any caller's context
	loadTimeout = 30 * time.Second
)

// Loader fetches the product collection and categories once per TTL.
// Concurrent misses share a single backend call.
type Loader struct {
	source     Source
	products   *cache.TTLCache[[]models.Product]
	categories *cache.TTLCache[[]models.Category]
	group      singleflight.Group
}

// NewLoader creates a catalog loader caching for ttl
func NewLoader(source Source, ttl time.Duration) *Loader {
	return &Loader{
		source:     source,
		products:   cache.NewTTLCache[[]models.Product]("catalog-products", ttl, 0),
		categories: cache.NewTTLCache[[]models.Category]("catalog-categories", ttl, 0),
	}
}

// Products returns the full product collection in backend order (newest first).
// A failed load is not cached and not retried.
func (l *Loader) Products(ctx context.Context) ([]models.Product, error) {
	if products, ok := l.products.Get(productsKey); ok {
		return products, nil
	}

	res := l.share(ctx, productsKey, func(loadCtx context.Context) (any, error) {
		products, err := l.source.ListProducts(loadCtx)
		if err != nil {
			return nil, err
		}
		if products == nil {
			products = []models.Product{}
		}
		l.products.Set(productsKey, products)
		slog.Info("Catalog loaded", "products", len(products))
		return products, nil
	})
	if res.Err != nil {
		slog.Warn("Failed to load catalog", "error", res.Err, "shared", res.Shared)
		return nil, fmt.Errorf("failed to load products: %w", res.Err)
	}
	return res.Val.([]models.Product), nil
}

// Categories returns the catalog categories
func (l *Loader) Categories(ctx context.Context) ([]models.Category, error) {
	if categories, ok := l.categories.Get(categoriesKey); ok {
		return categories, nil
	}

	res := l.share(ctx, categoriesKey, func(loadCtx context.Context) (any, error) {
		categories, err := l.source.ListCategories(loadCtx)
		if err != nil {
			return nil, err
		}
		if categories == nil {
			categories = []models.Category{}
		}
		l.categories.Set(categoriesKey, categories)
		return categories, nil
	})
	if res.Err != nil {
		slog.Warn("Failed to load categories", "error", res.Err)
		return nil, fmt.Errorf("failed to load categories: %w", res.Err)
	}
	return res.Val.([]models.Category), nil
}

// share runs load once for all concurrent callers of key. The load runs
// detached from any single caller, and each caller stops waiting when its
// own ctx is done.
func (l *Loader) share(ctx context.Context, key string, load func(context.Context) (any, error)) singleflight.Result {
	ch := l.group.DoChan(key, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()
		return load(loadCtx)
	})
	select {
	case <-ctx.Done():
		return singleflight.Result{Err: ctx.Err()}
	case res := <-ch:
		return res
	}
}

// Lookup finds a product by id, first in the cached collection and then
// by asking the backend directly
func (l *Loader) Lookup(ctx context.Context, productID string) (models.Product, error) {
	if products, ok := l.products.Get(productsKey); ok {
		for _, p := range products {
			if p.ID == productID {
				return p, nil
			}
		}
	}

	product, err := l.source.GetProduct(ctx, productID)
	if err != nil {
		if client.IsNotFound(err) {
			return models.Product{}, ErrProductNotFound
		}
		return models.Product{}, fmt.Errorf("failed to get product %s: %w", productID, err)
	}
	return *product, nil
}

// Invalidate drops the cached collections
func (l *Loader) Invalidate() {
	l.products.Delete(productsKey)
	l.categories.Delete(categoriesKey)
}

// Close stops the underlying caches
func (l *Loader) Close() {
	l.products.Stop()
	l.categories.Stop()
}
