package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"flower-storefront/internal/models"
)

// Options tune the transport of the backend client
type Options struct {
	// Timeout of a single request. Zero keeps the transport default (no client timeout).
	Timeout         time.Duration
	BreakerEnabled  bool
	BreakerFailures int
	BreakerCooldown time.Duration
	// Transport overrides the base round tripper, mostly for tests
	Transport http.RoundTripper
}

// rawResponse is a fully read backend response
type rawResponse struct {
	status int
	body   []byte
}

// errServerStatus marks 5xx answers as breaker failures while still returning the response
var errServerStatus = errors.New("backend server error")

// BackendClient talks to the storefront CRUD backend over its JSON API.
// Every call is a single request; nothing is retried.
type BackendClient struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*rawResponse]
}

// NewBackendClient creates a new backend client
func NewBackendClient(baseURL string, opts Options) *BackendClient {
	base := opts.Transport
	if base == nil {
		base = http.DefaultTransport
	}

	c := &BackendClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout:   opts.Timeout,
			Transport: otelhttp.NewTransport(base),
		},
	}

	if opts.BreakerEnabled {
		failures := opts.BreakerFailures
		if failures <= 0 {
			failures = 5
		}
		c.breaker = gobreaker.NewCircuitBreaker[*rawResponse](gobreaker.Settings{
			Name:    "storefront-backend",
			Timeout: opts.BreakerCooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= uint32(failures)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				slog.Warn("Backend circuit breaker state changed",
					"breaker", name,
					"from", from.String(),
					"to", to.String())
			},
		})
	}

	return c
}

// ExchangeTelegramIdentity upserts a user by Telegram id and returns the durable record
func (c *BackendClient) ExchangeTelegramIdentity(ctx context.Context, req models.TelegramAuthRequest) (*models.TelegramAuthResponse, error) {
	var resp models.TelegramAuthResponse
	if err := c.do(ctx, "exchange identity", http.MethodPost, "/auth/telegram", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListProducts returns the full product collection, newest first
func (c *BackendClient) ListProducts(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	if err := c.do(ctx, "list products", http.MethodGet, "/api/products", nil, &products); err != nil {
		return nil, err
	}
	return products, nil
}

// GetProduct returns a single product
func (c *BackendClient) GetProduct(ctx context.Context, productID string) (*models.Product, error) {
	var product models.Product
	path := "/api/products/" + url.PathEscape(productID)
	if err := c.do(ctx, "get product", http.MethodGet, path, nil, &product); err != nil {
		return nil, err
	}
	return &product, nil
}

// ListCategories returns the catalog categories
func (c *BackendClient) ListCategories(ctx context.Context) ([]models.Category, error) {
	var categories []models.Category
	if err := c.do(ctx, "list categories", http.MethodGet, "/api/categories", nil, &categories); err != nil {
		return nil, err
	}
	return categories, nil
}

// ListCart returns the user's cart rows
func (c *BackendClient) ListCart(ctx context.Context, userID string) ([]models.RemoteCartRow, error) {
	var rows []models.RemoteCartRow
	if err := c.do(ctx, "list cart", http.MethodGet, "/api/cart/"+url.PathEscape(userID), nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// AddCartLine creates a cart line. The backend adds quantity to an existing line.
func (c *BackendClient) AddCartLine(ctx context.Context, userID, productID string, quantity int) error {
	req := models.CartMutationRequest{UserID: userID, ProductID: productID, Quantity: quantity}
	return c.do(ctx, "add cart line", http.MethodPost, "/api/cart", req, nil)
}

// UpdateCartQuantity sets the absolute quantity of an existing cart line
func (c *BackendClient) UpdateCartQuantity(ctx context.Context, userID, productID string, quantity int) error {
	req := models.CartMutationRequest{UserID: userID, ProductID: productID, Quantity: quantity}
	return c.do(ctx, "update cart quantity", http.MethodPut, "/api/cart", req, nil)
}

// RemoveCartLine deletes one cart line
func (c *BackendClient) RemoveCartLine(ctx context.Context, userID, productID string) error {
	path := fmt.Sprintf("/api/cart/%s/%s", url.PathEscape(userID), url.PathEscape(productID))
	return c.do(ctx, "remove cart line", http.MethodDelete, path, nil, nil)
}

// ClearCart deletes every cart line of the user
func (c *BackendClient) ClearCart(ctx context.Context, userID string) error {
	return c.do(ctx, "clear cart", http.MethodDelete, "/api/cart/"+url.PathEscape(userID), nil, nil)
}

// ListFavorites returns the products the user has favorited
func (c *BackendClient) ListFavorites(ctx context.Context, userID string) ([]models.Product, error) {
	var products []models.Product
	if err := c.do(ctx, "list favorites", http.MethodGet, "/api/favorites/"+url.PathEscape(userID), nil, &products); err != nil {
		return nil, err
	}
	return products, nil
}

// AddFavorite marks a product as favorite. Adding twice is a no-op on the backend.
func (c *BackendClient) AddFavorite(ctx context.Context, userID, productID string) error {
	req := models.FavoriteRequest{UserID: userID, ProductID: productID}
	return c.do(ctx, "add favorite", http.MethodPost, "/api/favorites", req, nil)
}

// RemoveFavorite unmarks a favorite
func (c *BackendClient) RemoveFavorite(ctx context.Context, userID, productID string) error {
	path := fmt.Sprintf("/api/favorites/%s/%s", url.PathEscape(userID), url.PathEscape(productID))
	return c.do(ctx, "remove favorite", http.MethodDelete, path, nil, nil)
}

// CreateOrder submits an order for operator handling
func (c *BackendClient) CreateOrder(ctx context.Context, req models.OrderRequest) error {
	return c.do(ctx, "create order", http.MethodPost, "/api/orders", req, nil)
}

// Ping checks that the backend answers
func (c *BackendClient) Ping(ctx context.Context) error {
	return c.do(ctx, "ping", http.MethodGet, "/api/categories", nil, nil)
}

// do performs one request and decodes a 2xx JSON body into out when out is not nil
func (c *BackendClient) do(ctx context.Context, op, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: failed to marshal request: %w", op, err)
		}
		payload = data
	}

	start := time.Now()
	raw, err := c.send(ctx, method, c.baseURL+path, payload)
	if err != nil {
		slog.Debug("Backend request failed", "op", op, "method", method, "path", path, "error", err)
		return &ConnectivityError{Op: op, Err: err}
	}

	slog.Debug("Backend request completed",
		"op", op,
		"method", method,
		"path", path,
		"status", raw.status,
		"duration", time.Since(start).String())

	if raw.status < 200 || raw.status > 299 {
		return &RemoteError{Op: op, Status: raw.status, Message: parseErrorMessage(raw.status, raw.body)}
	}

	if out == nil || len(bytes.TrimSpace(raw.body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw.body, out); err != nil {
		return fmt.Errorf("%s: failed to decode response: %w", op, err)
	}
	return nil
}

// send routes the request through the breaker when one is configured
func (c *BackendClient) send(ctx context.Context, method, target string, payload []byte) (*rawResponse, error) {
	if c.breaker == nil {
		return c.roundTrip(ctx, method, target, payload)
	}

	raw, err := c.breaker.Execute(func() (*rawResponse, error) {
		raw, err := c.roundTrip(ctx, method, target, payload)
		if err != nil {
			return nil, err
		}
		if raw.status >= http.StatusInternalServerError {
			return raw, errServerStatus
		}
		return raw, nil
	})
	if errors.Is(err, errServerStatus) {
		return raw, nil
	}
	return raw, err
}

func (c *BackendClient) roundTrip(ctx context.Context, method, target string, payload []byte) (*rawResponse, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return &rawResponse{status: resp.StatusCode, body: data}, nil
}
