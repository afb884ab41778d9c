package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"flower-storefront/internal/cache"
	"flower-storefront/internal/catalog"
	"flower-storefront/internal/identity"
	"flower-storefront/internal/models"
	"flower-storefront/internal/reconcile"
	"flower-storefront/internal/storage"
)

// ErrSessionNotFound is returned for unknown or expired sessions
var ErrSessionNotFound = errors.New("session not found")

// Backend is what a session needs from the storefront backend
type Backend interface {
	identity.Exchanger
	reconcile.Remote
}

// Recorder counts session lifecycle events and swallowed write failures
type Recorder interface {
	RecordSessionStarted(ctx context.Context, mode string)
	RecordWriteFailure(ctx context.Context, op string)
}

// Session is one Mini-App launch
type Session struct {
	ID         string
	DeviceID   string
	CreatedAt  time.Time
	Resolution identity.Resolution
	Cart       *reconcile.Reconciler
	View       *catalog.ViewState
}

// Identity returns the resolved backend user, or nil
func (s *Session) Identity() *models.UserIdentity {
	return s.Resolution.Identity
}

// Options configure a Manager
type Options struct {
	Secret            string
	IdleTTL           time.Duration
	CleanupInterval   time.Duration
	TokenLifetime     time.Duration
	AnonymousFallback bool
	AnonymousID       int64
}

// Manager creates and tracks sessions. Sessions live in memory and expire
// after IdleTTL without requests.
type Manager struct {
	backend   Backend
	lookup    reconcile.ProductLookup
	store     storage.LocalStore
	validator *identity.Validator
	recorder  Recorder
	signer    *TokenSigner
	sessions  *cache.TTLCache[*Session]
	opts      Options
}

// NewManager creates a session manager; store and recorder may be nil
func NewManager(backend Backend, lookup reconcile.ProductLookup, store storage.LocalStore, validator *identity.Validator, recorder Recorder, opts Options) *Manager {
	m := &Manager{
		backend:   backend,
		lookup:    lookup,
		store:     store,
		validator: validator,
		recorder:  recorder,
		signer:    NewTokenSigner(opts.Secret, opts.TokenLifetime),
		opts:      opts,
	}
	m.sessions = cache.NewTTLCache[*Session]("sessions", opts.IdleTTL, opts.CleanupInterval,
		cache.WithSlidingExpiration[*Session](),
		cache.WithEvictionCallback[*Session](func(id string, s *Session) {
			slog.Info("Session ended", "session_id", id, "mode", string(s.Cart.Mode()), "device_id", s.DeviceID)
		}))
	return m
}

// StartRequest is the data the Mini-App sends when it launches
type StartRequest struct {
	InitData string
	DeviceID string
}

// Start resolves the identity, loads the cart and favorites and returns the
// session with its token. Identity and sync failures degrade the session to
// local-only mode rather than failing the start.
func (m *Manager) Start(ctx context.Context, req StartRequest) (*Session, string, error) {
	deviceID := req.DeviceID
	if !storage.ValidNamespace(deviceID) {
		deviceID = uuid.NewString()
	}

	resolver := identity.NewResolver(m.backend, m.validator, identity.ResolverOptions{
		AnonymousFallback:   m.opts.AnonymousFallback,
		AnonymousTelegramID: m.opts.AnonymousID,
	})
	resolution := resolver.Resolve(ctx, req.InitData)

	opts := []reconcile.Option{}
	if m.store != nil {
		opts = append(opts, reconcile.WithLocalStore(m.store, deviceID))
	}
	if m.recorder != nil {
		opts = append(opts, reconcile.WithFailureRecorder(m.recorder))
	}
	cart := reconcile.New(m.backend, m.lookup, opts...)
	if err := cart.Load(ctx); err != nil {
		slog.Warn("Failed to load local state", "device_id", deviceID, "error", err)
	}
	if resolution.Resolved() {
		if err := cart.Attach(ctx, *resolution.Identity); err != nil {
			slog.Warn("Failed to attach remote state, continuing in local-only mode",
				"device_id", deviceID,
				"user_id", resolution.Identity.ID,
				"error", err)
		}
	}

	s := &Session{
		ID:         uuid.NewString(),
		DeviceID:   deviceID,
		CreatedAt:  time.Now(),
		Resolution: resolution,
		Cart:       cart,
		View:       catalog.NewViewState(),
	}

	claims := Claims{SessionID: s.ID, Mode: string(cart.Mode())}
	if id := s.Identity(); id != nil {
		claims.UserID = id.ID
		claims.TelegramID = id.TelegramID
	}
	token, err := m.signer.Issue(claims)
	if err != nil {
		return nil, "", err
	}

	m.sessions.Set(s.ID, s)
	if m.recorder != nil {
		m.recorder.RecordSessionStarted(ctx, string(cart.Mode()))
	}

	slog.Info("Session started",
		"session_id", s.ID,
		"device_id", deviceID,
		"identity_state", resolution.State.String(),
		"identity_source", string(resolution.Source),
		"mode", string(cart.Mode()),
		"cart_lines", len(cart.Cart()),
		"favorites", len(cart.Favorites()))

	return s, token, nil
}

// Get returns the live session a token refers to
func (m *Manager) Get(token string) (*Session, error) {
	claims, err := m.signer.Parse(token)
	if err != nil {
		return nil, err
	}
	s, ok := m.sessions.Get(claims.SessionID)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// End drops a session
func (m *Manager) End(sessionID string) bool {
	return m.sessions.Delete(sessionID)
}

// ActiveCount returns the number of live sessions
func (m *Manager) ActiveCount() int {
	return m.sessions.ActiveSize()
}

// Close stops the expiry sweeper
func (m *Manager) Close() {
	m.sessions.Stop()
}
