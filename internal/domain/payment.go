package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type AttemptStatus string

const (
	AttemptPending   AttemptStatus = "pending"
	AttemptSucceeded AttemptStatus = "succeeded"
	AttemptFailed    AttemptStatus = "failed"
)

// Outcome is the settlement result reported by the gateway.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeUnknown Outcome = "unknown"
)

func (o Outcome) Valid() bool {
	return o == OutcomeSuccess || o == OutcomeFailure
}

type PaymentAttempt struct {
	ID                uint64          `json:"id" gorm:"primaryKey;autoIncrement"`
	OrderID           uint64          `json:"orderId" gorm:"not null;index"`
	CorrelationToken  string          `json:"correlationToken" gorm:"size:64;not null;uniqueIndex"`
	GatewayReference  string          `json:"gatewayReference,omitempty" gorm:"size:64"`
	Amount            decimal.Decimal `json:"amount" gorm:"type:decimal(12,2);not null"`
	Phone             string          `json:"phone" gorm:"size:16;not null"`
	Status            AttemptStatus   `json:"status" gorm:"type:varchar(16);not null;default:'pending';index"`
	ResultDescription string          `json:"resultDescription,omitempty" gorm:"size:255"`
	Disregarded       bool            `json:"disregarded" gorm:"not null;default:false"`
	// SucceededOrderID is set only on success; its unique index allows a
	// single succeeded attempt per order.
	SucceededOrderID *uint64    `json:"-" gorm:"uniqueIndex"`
	RequestedAt      time.Time  `json:"requestedAt" gorm:"not null"`
	SettledAt        *time.Time `json:"settledAt,omitempty"`
	// LastCheckedAt is when the reconciler last asked the gateway about the attempt.
	LastCheckedAt *time.Time `json:"-"`
}
