package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flower-storefront/internal/models"
	"flower-storefront/internal/reconcile"
	"flower-storefront/internal/storage"
)

type fakeBackend struct {
	mu        sync.Mutex
	exchanges []models.TelegramAuthRequest
	exchErr   error
	cart      map[string]int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{cart: make(map[string]int)}
}

func (f *fakeBackend) ExchangeTelegramIdentity(ctx context.Context, req models.TelegramAuthRequest) (*models.TelegramAuthResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exchanges = append(f.exchanges, req)
	if f.exchErr != nil {
		return nil, f.exchErr
	}
	return &models.TelegramAuthResponse{User: models.UserIdentity{ID: fmt.Sprintf("user-%d", req.TelegramID), TelegramID: req.TelegramID}}, nil
}

func (f *fakeBackend) ListCart(ctx context.Context, userID string) ([]models.RemoteCartRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var rows []models.RemoteCartRow
	for id, qty := range f.cart {
		rows = append(rows, models.RemoteCartRow{Product: models.Product{ID: id, Name: "Flower " + id, Price: 1000}, Quantity: qty})
	}
	return rows, nil
}

func (f *fakeBackend) AddCartLine(ctx context.Context, userID, productID string, quantity int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cart[productID] += quantity
	return nil
}

func (f *fakeBackend) UpdateCartQuantity(ctx context.Context, userID, productID string, quantity int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cart[productID] = quantity
	return nil
}

func (f *fakeBackend) RemoveCartLine(ctx context.Context, userID, productID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.cart, productID)
	return nil
}

func (f *fakeBackend) ClearCart(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clear(f.cart)
	return nil
}

func (f *fakeBackend) ListFavorites(ctx context.Context, userID string) ([]models.Product, error) {
	return nil, nil
}

func (f *fakeBackend) AddFavorite(ctx context.Context, userID, productID string) error { return nil }

func (f *fakeBackend) RemoveFavorite(ctx context.Context, userID, productID string) error { return nil }

func (f *fakeBackend) Lookup(ctx context.Context, productID string) (models.Product, error) {
	return models.Product{ID: productID, Name: "Flower " + productID, Price: 1000, Images: []string{"x.jpg"}}, nil
}

type sessionRecorder struct {
	mu    sync.Mutex
	modes []string
}

func (r *sessionRecorder) RecordSessionStarted(ctx context.Context, mode string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modes = append(r.modes, mode)
}

func (r *sessionRecorder) RecordWriteFailure(ctx context.Context, op string) {}

func testOptions() Options {
	return Options{
		Secret:            "test-secret",
		IdleTTL:           time.Minute,
		TokenLifetime:     time.Hour,
		AnonymousFallback: true,
	}
}

func TestManager_StartResolvesAnonymousIdentity(t *testing.T) {
	// Arrange
	backend := newFakeBackend()
	recorder := &sessionRecorder{}
	m := NewManager(backend, backend, nil, nil, recorder, testOptions())
	defer m.Close()

	// Act
	s, token, err := m.Start(context.Background(), StartRequest{})

	// Assert
	require.NoError(t, err)
	require.NotNil(t, s.Identity())
	assert.Equal(t, "user-123456789", s.Identity().ID)
	assert.Equal(t, reconcile.ModeRemote, s.Cart.Mode())
	assert.NotEmpty(t, s.DeviceID, "a device id is generated when none is sent")
	assert.NotEmpty(t, token)
	assert.Equal(t, 1, m.ActiveCount())
	assert.Equal(t, []string{"remote"}, recorder.modes)

	got, err := m.Get(token)
	require.NoError(t, err)
	assert.Same(t, s, got)
}

func TestManager_TokenCarriesClaims(t *testing.T) {
	backend := newFakeBackend()
	m := NewManager(backend, backend, nil, nil, nil, testOptions())
	defer m.Close()

	s, token, err := m.Start(context.Background(), StartRequest{})
	require.NoError(t, err)

	claims, err := m.signer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, s.ID, claims.SessionID)
	assert.Equal(t, "user-123456789", claims.UserID)
	assert.Equal(t, int64(123456789), claims.TelegramID)
	assert.Equal(t, "remote", claims.Mode)
}

func TestManager_ExchangeFailureStartsLocalOnly(t *testing.T) {
	backend := newFakeBackend()
	backend.exchErr = errors.New("backend unreachable")
	store, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)
	m := NewManager(backend, backend, store, nil, nil, testOptions())
	defer m.Close()

	s, _, err := m.Start(context.Background(), StartRequest{DeviceID: "device-1"})

	require.NoError(t, err)
	assert.Nil(t, s.Identity())
	assert.Equal(t, reconcile.ModeLocal, s.Cart.Mode())
	assert.Equal(t, "device-1", s.DeviceID)
}

func TestManager_LocalStateIsAttachedOnNextLaunch(t *testing.T) {
	// Arrange - an offline session leaves a cart on the device
	backend := newFakeBackend()
	store, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	backend.exchErr = errors.New("backend unreachable")
	m := NewManager(backend, backend, store, nil, nil, testOptions())
	defer m.Close()
	offline, _, err := m.Start(ctx, StartRequest{DeviceID: "device-2"})
	require.NoError(t, err)
	require.NoError(t, offline.Cart.Add(ctx, "7"))

	// Act - the backend is back for the next launch
	backend.exchErr = nil
	online, _, err := m.Start(ctx, StartRequest{DeviceID: "device-2"})
	require.NoError(t, err)

	// Assert
	assert.Equal(t, reconcile.ModeRemote, online.Cart.Mode())
	assert.True(t, online.Cart.InCart("7"))
	assert.Equal(t, map[string]int{"7": 1}, backend.cart)
}

func TestManager_InvalidDeviceIDReplaced(t *testing.T) {
	backend := newFakeBackend()
	m := NewManager(backend, backend, nil, nil, nil, testOptions())
	defer m.Close()

	s, _, err := m.Start(context.Background(), StartRequest{DeviceID: "../../etc"})

	require.NoError(t, err)
	assert.NotEqual(t, "../../etc", s.DeviceID)
}

func TestManager_GetRejectsBadTokens(t *testing.T) {
	backend := newFakeBackend()
	m := NewManager(backend, backend, nil, nil, nil, testOptions())
	defer m.Close()
	s, token, err := m.Start(context.Background(), StartRequest{})
	require.NoError(t, err)

	_, err = m.Get("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	other := NewTokenSigner("another-secret", time.Hour)
	forged, err := other.Issue(Claims{SessionID: s.ID})
	require.NoError(t, err)
	_, err = m.Get(forged)
	assert.ErrorIs(t, err, ErrInvalidToken)

	assert.True(t, m.End(s.ID))
	_, err = m.Get(token)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestTokenSigner_Expiry(t *testing.T) {
	signer := NewTokenSigner("secret", time.Minute)
	now := time.Now()
	signer.now = func() time.Time { return now }
	token, err := signer.Issue(Claims{SessionID: "sid"})
	require.NoError(t, err)

	signer.now = func() time.Time { return now.Add(2 * time.Minute) }
	_, err = signer.Parse(token)

	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenSigner_RejectsNoneAlgorithm(t *testing.T) {
	signer := NewTokenSigner("secret", time.Minute)
	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{SessionID: "sid"})
	token, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = signer.Parse(token)

	assert.ErrorIs(t, err, ErrInvalidToken)
}
