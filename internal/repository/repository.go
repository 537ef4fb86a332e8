package repository

import (
	"context"
	"time"

	"grocery-service/internal/domain"
)

// OrderMutation applies business rules to an order loaded inside a storage
// transaction and returns the events to record alongside the change.
type OrderMutation func(o *domain.Order) ([]domain.OutboxEvent, error)

// Lookups return (nil, nil) when the record does not exist.

type ProductRepository interface {
	FindByID(ctx context.Context, id uint64) (*domain.Product, error)
	Save(ctx context.Context, p *domain.Product) error
	Count(ctx context.Context) (int64, error)
}

type CartRepository interface {
	Upsert(ctx context.Context, customerID string, productID uint64, qty int64) (*domain.CartLine, error)
	SetQuantity(ctx context.Context, customerID string, lineID uint64, qty int64) (*domain.CartLine, error)
	Delete(ctx context.Context, customerID string, lineID uint64) (bool, error)
	ListByCustomer(ctx context.Context, customerID string) ([]domain.CartLine, error)
	Clear(ctx context.Context, customerID string) error
	// ClearThrough removes lines that were last modified at or before cutoff.
	ClearThrough(ctx context.Context, customerID string, cutoff time.Time) error
}

type OrderRepository interface {
	// Create inserts the order with its items, then records the events fn
	// builds from the persisted order, all in one transaction.
	Create(ctx context.Context, o *domain.Order, fn OrderMutation) error
	FindByID(ctx context.Context, id uint64) (*domain.Order, error)
	// List returns orders newest first; an empty customerID lists every order.
	List(ctx context.Context, customerID string) ([]domain.Order, error)
	// Update locks the order, applies fn and persists its status fields. It
	// fails with domain.ErrOrderNotFound for unknown ids.
	Update(ctx context.Context, id uint64, fn OrderMutation) (*domain.Order, error)
	MarkCartCleared(ctx context.Context, id uint64) error
	PendingCartClears(ctx context.Context, customerID string) ([]domain.Order, error)
	Stats(ctx context.Context) (domain.OrderStats, error)
}

// Settlement is the outcome recorded against a payment attempt.
type Settlement struct {
	Token       string
	Status      domain.AttemptStatus
	Description string
	SettledAt   time.Time
}

type PaymentRepository interface {
	// CreateAttempt inserts a pending attempt and applies fn to its order in
	// the same transaction. It fails with domain.ErrPaymentInProgress when
	// the order already has a live pending attempt requested after
	// inFlightSince; a zero inFlightSince skips that check.
	CreateAttempt(ctx context.Context, a *domain.PaymentAttempt, inFlightSince time.Time, fn OrderMutation) (*domain.Order, error)
	SetGatewayReference(ctx context.Context, token, ref string) error
	FindByToken(ctx context.Context, token string) (*domain.PaymentAttempt, error)
	// Settle moves a pending attempt to its final state. It fails with
	// domain.ErrUnknownCorrelationToken or domain.ErrAlreadySettled when the
	// attempt is missing or no longer pending.
	Settle(ctx context.Context, s Settlement, fn OrderMutation) (*domain.PaymentAttempt, *domain.Order, error)
	// ListStalePending returns pending attempts requested before
	// requestedBefore, never-checked ones first and then the least recently
	// checked, so undecided attempts rotate instead of filling every batch.
	ListStalePending(ctx context.Context, requestedBefore time.Time, limit int) ([]domain.PaymentAttempt, error)
	MarkChecked(ctx context.Context, ids []uint64, at time.Time) error
}

type OutboxRepository interface {
	FetchPending(ctx context.Context, limit, maxRetries int) ([]domain.OutboxEvent, error)
	MarkSent(ctx context.Context, ids []uint64) error
	MarkFailed(ctx context.Context, id uint64, errMsg string) error
}
