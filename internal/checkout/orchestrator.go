package checkout

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"flower-storefront/internal/events"
	"flower-storefront/internal/models"
)

var (
	// ErrEmptyCart is returned when there is nothing to order
	ErrEmptyCart = errors.New("cart is empty")
	// ErrNotAuthenticated is returned when the session has no backend identity
	ErrNotAuthenticated = errors.New("checkout requires an identity")
)

// Outcomes reported to the Recorder
const (
	OutcomeSubmitted = "submitted"
	OutcomeFailed    = "failed"
)

// OrderSubmitter creates orders on the backend
type OrderSubmitter interface {
	CreateOrder(ctx context.Context, req models.OrderRequest) error
}

// Cart is the session cart being checked out
type Cart interface {
	Cart() []models.CartLine
	Clear(ctx context.Context) error
}

// Recorder counts checkout outcomes
type Recorder interface {
	RecordOrder(ctx context.Context, outcome string)
}

// Orchestrator submits orders. Delivery is at most once: the create call is
// issued once, never retried, and the cart is cleared whatever its result.
type Orchestrator struct {
	orders         OrderSubmitter
	publisher      events.Publisher
	recorder       Recorder
	operatorHandle string
	now            func() time.Time
}

// NewOrchestrator creates an orchestrator; publisher and recorder may be nil
func NewOrchestrator(orders OrderSubmitter, publisher events.Publisher, recorder Recorder, operatorHandle string) *Orchestrator {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Orchestrator{
		orders:         orders,
		publisher:      publisher,
		recorder:       recorder,
		operatorHandle: operatorHandle,
		now:            time.Now,
	}
}

// BuildSnapshot turns cart lines into an order snapshot
func BuildSnapshot(userID string, lines []models.CartLine, createdAt time.Time) models.OrderSnapshot {
	items := make([]models.OrderItem, 0, len(lines))
	var total int64
	for _, line := range lines {
		items = append(items, models.OrderItem{
			Name:     line.Name,
			Quantity: line.Quantity,
			Price:    line.Price,
		})
		total += line.Subtotal()
	}
	return models.OrderSnapshot{
		UserID:    userID,
		Items:     items,
		Total:     total,
		CreatedAt: createdAt,
	}
}

// Checkout submits the current contents of cart
func (o *Orchestrator) Checkout(ctx context.Context, identity *models.UserIdentity, cart Cart) (*models.OrderSnapshot, error) {
	return o.SubmitOrder(ctx, identity, cart.Cart(), cart)
}

// SubmitOrder snapshots lines, sends the order once and clears the cart.
// A failed submission is logged and reported through Snapshot.Submitted only.
func (o *Orchestrator) SubmitOrder(ctx context.Context, identity *models.UserIdentity, lines []models.CartLine, cart Cart) (*models.OrderSnapshot, error) {
	if identity == nil {
		return nil, ErrNotAuthenticated
	}
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	snapshot := BuildSnapshot(identity.ID, lines, o.now())
	snapshot.OperatorHandle = o.operatorHandle

	err := o.orders.CreateOrder(ctx, models.OrderRequest{
		UserID: snapshot.UserID,
		Items:  snapshot.Items,
		Total:  snapshot.Total,
	})
	outcome := OutcomeSubmitted
	if err != nil {
		outcome = OutcomeFailed
		slog.Error("Order submission failed, not retrying",
			"user_id", identity.ID,
			"items", len(snapshot.Items),
			"total", snapshot.Total,
			"error", err)
	} else {
		snapshot.Submitted = true
		slog.Info("Order submitted",
			"user_id", identity.ID,
			"items", len(snapshot.Items),
			"total", snapshot.Total)
	}

	if err := cart.Clear(ctx); err != nil {
		slog.Error("Failed to clear cart after checkout", "user_id", identity.ID, "error", err)
	}

	if o.recorder != nil {
		o.recorder.RecordOrder(ctx, outcome)
	}
	if err := o.publisher.PublishOrder(ctx, events.NewOrderEvent(*identity, snapshot)); err != nil {
		slog.Warn("Failed to publish order event", "user_id", identity.ID, "error", err)
	}

	return &snapshot, nil
}
