package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

type EventKind string

const (
	EventOrderCreated         EventKind = "order.created"
	EventOrderStatusChanged   EventKind = "order.status_changed"
	EventPaymentStatusChanged EventKind = "payment.status_changed"
)

// StatusChangedEvent is what the status notifier publishes for every
// transition on either the delivery or the payment axis.
type StatusChangedEvent struct {
	OrderID    uint64    `json:"orderId"`
	CustomerID string    `json:"customerId"`
	Kind       EventKind `json:"kind"`
	OldState   string    `json:"oldState"`
	NewState   string    `json:"newState"`
	At         time.Time `json:"at"`
}

type OrderCreatedEvent struct {
	OrderID        uint64    `json:"orderId"`
	CustomerID     string    `json:"customerId"`
	TrackingNumber string    `json:"trackingNumber"`
	TotalAmount    string    `json:"totalAmount"`
	CreatedAt      time.Time `json:"createdAt"`
}

type OutboxStatus string

const (
	OutboxPending OutboxStatus = "pending"
	OutboxSent    OutboxStatus = "sent"
	OutboxFailed  OutboxStatus = "failed"
)

type OutboxEvent struct {
	ID          uint64       `gorm:"primaryKey;autoIncrement"`
	AggregateID uint64       `gorm:"not null;index"`
	Type        EventKind    `gorm:"type:varchar(64);not null"`
	Payload     []byte       `gorm:"not null"`
	Status      OutboxStatus `gorm:"type:varchar(16);not null;default:'pending';index"`
	RetryCount  int          `gorm:"not null;default:0"`
	LastError   *string      `gorm:"size:512"`
	CreatedAt   time.Time
	SentAt      *time.Time
}

// NewOutboxEvent encodes payload for the transactional outbox.
func NewOutboxEvent(kind EventKind, aggregateID uint64, payload any) (OutboxEvent, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return OutboxEvent{}, fmt.Errorf("marshal %s event: %w", kind, err)
	}
	return OutboxEvent{
		AggregateID: aggregateID,
		Type:        kind,
		Payload:     body,
		Status:      OutboxPending,
	}, nil
}
