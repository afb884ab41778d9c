package identity

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"flower-storefront/internal/models"
)

// State of an identity resolution
type State int

const (
	StateUninitialized State = iota
	StateResolving
	StateResolved
	StateUnresolved
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateResolving:
		return "resolving"
	case StateResolved:
		return "resolved"
	case StateUnresolved:
		return "unresolved"
	}
	return "unknown"
}

// Source tells which descriptor was exchanged
type Source string

const (
	SourceNone      Source = ""
	SourceHost      Source = "host"
	SourceAnonymous Source = "anonymous"
)

// AnonymousUser is the shared descriptor used when no launch context is available.
// All such sessions end up on the same backend user.
var AnonymousUser = models.TelegramUser{
	ID:        123456789,
	Username:  "test_user",
	FirstName: "Test",
	LastName:  "User",
}

// Exchanger turns a Telegram descriptor into a durable backend user
type Exchanger interface {
	ExchangeTelegramIdentity(ctx context.Context, req models.TelegramAuthRequest) (*models.TelegramAuthResponse, error)
}

// Resolution is the terminal outcome of a resolver
type Resolution struct {
	State    State
	Identity *models.UserIdentity
	Source   Source
	IsNew    bool
	Err      error
}

// Resolved reports whether an identity is available
func (r Resolution) Resolved() bool {
	return r.State == StateResolved && r.Identity != nil
}

// ResolverOptions configure the anonymous fallback
type ResolverOptions struct {
	AnonymousFallback bool
	// AnonymousTelegramID overrides AnonymousUser.ID when non-zero
	AnonymousTelegramID int64
}

// Resolver performs exactly one identity exchange. Later calls to Resolve
// return the first outcome; there is no retry.
type Resolver struct {
	exchanger Exchanger
	validator *Validator
	opts      ResolverOptions

	once   sync.Once
	mu     sync.RWMutex
	state  State
	result Resolution
}

// NewResolver creates a resolver in the Uninitialized state
func NewResolver(exchanger Exchanger, validator *Validator, opts ResolverOptions) *Resolver {
	return &Resolver{
		exchanger: exchanger,
		validator: validator,
		opts:      opts,
		state:     StateUninitialized,
	}
}

// State returns the current state
func (r *Resolver) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Resolve runs the exchange on first call and returns its outcome
func (r *Resolver) Resolve(ctx context.Context, initData string) Resolution {
	r.once.Do(func() {
		r.setState(StateResolving)
		result := r.resolve(ctx, initData)

		r.mu.Lock()
		r.result = result
		r.state = result.State
		r.mu.Unlock()
	})

	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.result
}

func (r *Resolver) resolve(ctx context.Context, initData string) Resolution {
	descriptor, source := r.descriptor(initData)
	if source == SourceNone {
		slog.Info("No launch context and anonymous fallback disabled, continuing without identity")
		return Resolution{State: StateUnresolved, Err: ErrNoLaunchContext}
	}

	resp, err := r.exchanger.ExchangeTelegramIdentity(ctx, models.TelegramAuthRequest{
		TelegramID: descriptor.ID,
		Username:   descriptor.Username,
		FirstName:  descriptor.FirstName,
		LastName:   descriptor.LastName,
	})
	if err != nil {
		slog.Error("Identity exchange failed, continuing in local-only mode",
			"telegram_id", descriptor.ID,
			"source", string(source),
			"error", err)
		return Resolution{State: StateUnresolved, Source: source, Err: err}
	}

	identity := resp.User
	slog.Info("Identity resolved",
		"user_id", identity.ID,
		"telegram_id", identity.TelegramID,
		"source", string(source),
		"is_new", resp.IsNew)

	return Resolution{
		State:    StateResolved,
		Identity: &identity,
		Source:   source,
		IsNew:    resp.IsNew,
	}
}

// descriptor picks the host user when the launch context is usable, else the anonymous one
func (r *Resolver) descriptor(initData string) (models.TelegramUser, Source) {
	lc, err := r.validator.Validate(initData)
	if err == nil {
		return *lc.User, SourceHost
	}
	if !errors.Is(err, ErrNoLaunchContext) {
		slog.Warn("Ignoring unusable launch context", "error", err)
	}

	if !r.opts.AnonymousFallback {
		return models.TelegramUser{}, SourceNone
	}
	anonymous := AnonymousUser
	if r.opts.AnonymousTelegramID != 0 {
		anonymous.ID = r.opts.AnonymousTelegramID
	}
	return anonymous, SourceAnonymous
}

func (r *Resolver) setState(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = s
}
