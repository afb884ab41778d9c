package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flower-storefront/internal/client"
	"flower-storefront/internal/events"
	"flower-storefront/internal/models"
	"flower-storefront/internal/reconcile"
)

type memoryCart struct {
	lines   []models.CartLine
	cleared int
}

func (m *memoryCart) Cart() []models.CartLine { return m.lines }

func (m *memoryCart) Clear(ctx context.Context) error {
	m.lines = nil
	m.cleared++
	return nil
}

type stubOrders struct {
	requests []models.OrderRequest
	err      error
}

func (s *stubOrders) CreateOrder(ctx context.Context, req models.OrderRequest) error {
	s.requests = append(s.requests, req)
	return s.err
}

type recordingPublisher struct {
	events []events.OrderEvent
}

func (r *recordingPublisher) PublishOrder(ctx context.Context, event events.OrderEvent) error {
	r.events = append(r.events, event)
	return nil
}

func (r *recordingPublisher) Close() error { return nil }

type outcomes struct {
	mu   sync.Mutex
	seen []string
}

func (o *outcomes) RecordOrder(ctx context.Context, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seen = append(o.seen, outcome)
}

func scenarioCart() []models.CartLine {
	return []models.CartLine{
		{ProductID: "1", Name: "Букет роз", Price: 150000, Quantity: 2, Images: []string{"1.jpg"}},
		{ProductID: "2", Name: "Тюльпаны", Price: 90000, Quantity: 1, Images: []string{"2.jpg"}},
	}
}

var buyer = &models.UserIdentity{ID: "user-1", TelegramID: 123456789}

func TestBuildSnapshot_Total(t *testing.T) {
	snapshot := BuildSnapshot("user-1", scenarioCart(), time.Now())

	assert.Equal(t, int64(390000), snapshot.Total)
	assert.Equal(t, []models.OrderItem{
		{Name: "Букет роз", Quantity: 2, Price: 150000},
		{Name: "Тюльпаны", Quantity: 1, Price: 90000},
	}, snapshot.Items)
}

func TestSubmitOrder_Success(t *testing.T) {
	// Arrange
	orders := &stubOrders{}
	publisher := &recordingPublisher{}
	recorder := &outcomes{}
	o := NewOrchestrator(orders, publisher, recorder, "@flowery_b1oom")
	cart := &memoryCart{lines: scenarioCart()}

	// Act
	snapshot, err := o.Checkout(context.Background(), buyer, cart)

	// Assert
	require.NoError(t, err)
	assert.True(t, snapshot.Submitted)
	assert.Equal(t, int64(390000), snapshot.Total)
	assert.Equal(t, "@flowery_b1oom", snapshot.OperatorHandle)
	require.Len(t, orders.requests, 1)
	assert.Equal(t, models.OrderRequest{UserID: "user-1", Items: snapshot.Items, Total: 390000}, orders.requests[0])
	assert.Empty(t, cart.lines)
	assert.Equal(t, []string{OutcomeSubmitted}, recorder.seen)
	require.Len(t, publisher.events, 1)
	assert.True(t, publisher.events[0].Submitted)
}

func TestSubmitOrder_FailureStillClearsCart(t *testing.T) {
	orders := &stubOrders{err: errors.New("backend unreachable")}
	publisher := &recordingPublisher{}
	recorder := &outcomes{}
	o := NewOrchestrator(orders, publisher, recorder, "")
	cart := &memoryCart{lines: scenarioCart()}

	snapshot, err := o.Checkout(context.Background(), buyer, cart)

	require.NoError(t, err, "submission failures are not surfaced")
	assert.False(t, snapshot.Submitted)
	assert.Equal(t, int64(390000), snapshot.Total)
	assert.Len(t, orders.requests, 1, "no retry")
	assert.Empty(t, cart.lines)
	assert.Equal(t, 1, cart.cleared)
	assert.Equal(t, []string{OutcomeFailed}, recorder.seen)
	require.Len(t, publisher.events, 1)
	assert.False(t, publisher.events[0].Submitted)
}

func TestSubmitOrder_EmptyCart(t *testing.T) {
	orders := &stubOrders{}
	o := NewOrchestrator(orders, nil, nil, "")
	cart := &memoryCart{}

	_, err := o.Checkout(context.Background(), buyer, cart)

	assert.ErrorIs(t, err, ErrEmptyCart)
	assert.Empty(t, orders.requests)
	assert.Equal(t, 0, cart.cleared)
}

func TestSubmitOrder_NoIdentityKeepsCart(t *testing.T) {
	orders := &stubOrders{}
	o := NewOrchestrator(orders, nil, nil, "")
	cart := &memoryCart{lines: scenarioCart()}

	_, err := o.Checkout(context.Background(), nil, cart)

	assert.ErrorIs(t, err, ErrNotAuthenticated)
	assert.Empty(t, orders.requests)
	assert.Len(t, cart.lines, 2)
}

// fakeStorefrontBackend serves the cart of user-1 and answers orders with orderStatus
func fakeStorefrontBackend(t *testing.T, orderStatus int) (*httptest.Server, *[]string) {
	t.Helper()
	var mu sync.Mutex
	var calls []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls = append(calls, r.Method+" "+r.URL.Path)
		mu.Unlock()

		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/cart/user-1":
			rows := []models.RemoteCartRow{
				{Product: models.Product{ID: "1", Name: "Букет роз", Price: 150000, Images: []string{"1.jpg"}}, Quantity: 2},
				{Product: models.Product{ID: "2", Name: "Тюльпаны", Price: 90000, Images: []string{"2.jpg"}}, Quantity: 1},
			}
			json.NewEncoder(w).Encode(rows)
		case r.Method == http.MethodGet && r.URL.Path == "/api/favorites/user-1":
			w.Write([]byte(`[]`))
		case r.Method == http.MethodPost && r.URL.Path == "/api/orders":
			w.WriteHeader(orderStatus)
			w.Write([]byte(`{"error":"Failed to create order"}`))
		case r.Method == http.MethodDelete && r.URL.Path == "/api/cart/user-1":
			w.Write([]byte(`{"message":"Cart cleared"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func TestCheckout_BackendRejectsOrderCartStillCleared(t *testing.T) {
	// Arrange
	server, calls := fakeStorefrontBackend(t, http.StatusInternalServerError)
	backend := client.NewBackendClient(server.URL, client.Options{})
	cart := reconcile.New(backend, nil)
	require.NoError(t, cart.Attach(context.Background(), *buyer))
	require.Equal(t, int64(390000), cart.CartTotal())
	o := NewOrchestrator(backend, nil, nil, "@flowery_b1oom")

	// Act
	snapshot, err := o.Checkout(context.Background(), buyer, cart)

	// Assert
	require.NoError(t, err)
	assert.False(t, snapshot.Submitted)
	assert.Equal(t, int64(390000), snapshot.Total)
	assert.Empty(t, cart.Cart())
	assert.Contains(t, *calls, "POST /api/orders")
	assert.Contains(t, *calls, "DELETE /api/cart/user-1")
}

func TestCheckout_BackendUnreachableCartStillCleared(t *testing.T) {
	server, _ := fakeStorefrontBackend(t, http.StatusCreated)
	backend := client.NewBackendClient(server.URL, client.Options{})
	cart := reconcile.New(backend, nil)
	require.NoError(t, cart.Attach(context.Background(), *buyer))
	server.Close()
	o := NewOrchestrator(backend, nil, nil, "")

	snapshot, err := o.Checkout(context.Background(), buyer, cart)

	require.NoError(t, err)
	assert.False(t, snapshot.Submitted)
	assert.Empty(t, cart.Cart())
	assert.Equal(t, int64(1), cart.Status().FailedWrites, "the remote clear failed and was swallowed")
}
