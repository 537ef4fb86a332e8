package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	StatusPending        OrderStatus = "pending"
	StatusProcessing     OrderStatus = "processing"
	StatusOutForDelivery OrderStatus = "out_for_delivery"
	StatusDelivered      OrderStatus = "delivered"
	StatusCancelled      OrderStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentProcessing PaymentStatus = "processing"
	PaymentCompleted  PaymentStatus = "completed"
	PaymentFailed     PaymentStatus = "failed"
)

var statusRank = map[OrderStatus]int{
	StatusPending:        0,
	StatusProcessing:     1,
	StatusOutForDelivery: 2,
	StatusDelivered:      3,
}

func ParseOrderStatus(s string) (OrderStatus, error) {
	st := OrderStatus(s)
	if st == StatusCancelled {
		return st, nil
	}
	if _, ok := statusRank[st]; !ok {
		return "", Wrap(ErrInvalidStatus, "%q", s)
	}
	return st, nil
}

func (s OrderStatus) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// CanTransition reports whether the delivery axis may move from s to next.
// Progress is forward-only; cancellation is allowed from any non-terminal state.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	if s.Terminal() {
		return false
	}
	if next == StatusCancelled {
		return true
	}
	from, okFrom := statusRank[s]
	to, okTo := statusRank[next]
	return okFrom && okTo && to > from
}

type Order struct {
	ID                   uint64          `json:"id" gorm:"primaryKey;autoIncrement"`
	CustomerID           string          `json:"customerId" gorm:"size:64;not null;index"`
	TrackingNumber       string          `json:"trackingNumber" gorm:"size:32;not null;uniqueIndex"`
	Items                []OrderItem     `json:"items" gorm:"foreignKey:OrderID"`
	DeliveryAddress      string          `json:"deliveryAddress" gorm:"size:512;not null"`
	DeliveryPhone        string          `json:"deliveryPhone" gorm:"size:32;not null"`
	DeliveryInstructions string          `json:"deliveryInstructions,omitempty" gorm:"size:512"`
	DeliveryFee          decimal.Decimal `json:"deliveryFee" gorm:"type:decimal(12,2);not null"`
	TotalAmount          decimal.Decimal `json:"totalAmount" gorm:"type:decimal(12,2);not null"`
	Status               OrderStatus     `json:"status" gorm:"type:varchar(32);not null;default:'pending';index"`
	PaymentStatus        PaymentStatus   `json:"paymentStatus" gorm:"type:varchar(32);not null;default:'pending'"`
	PaymentReference     string          `json:"paymentReference,omitempty" gorm:"size:64"`
	CartCleared          bool            `json:"-" gorm:"not null;default:false"`
	EstimatedDelivery    time.Time       `json:"estimatedDelivery"`
	DeliveredAt          *time.Time      `json:"deliveredAt,omitempty"`
	CreatedAt            time.Time       `json:"createdAt"`
	UpdatedAt            time.Time       `json:"updatedAt"`
}

// OrderItem is the price snapshot of a product taken when the order was placed.
type OrderItem struct {
	ID          uint64          `json:"id" gorm:"primaryKey;autoIncrement"`
	OrderID     uint64          `json:"orderId" gorm:"not null;index"`
	ProductID   uint64          `json:"productId" gorm:"not null"`
	ProductName string          `json:"productName" gorm:"size:255"`
	Quantity    int64           `json:"quantity" gorm:"not null"`
	UnitPrice   decimal.Decimal `json:"unitPrice" gorm:"type:decimal(12,2);not null"`
	LineTotal   decimal.Decimal `json:"lineTotal" gorm:"type:decimal(12,2);not null"`
}

// OrderTotal sums the snapshotted line totals and the delivery fee.
func OrderTotal(items []OrderItem, fee decimal.Decimal) decimal.Decimal {
	total := fee
	for _, it := range items {
		total = total.Add(it.LineTotal)
	}
	return total
}

type OrderStats struct {
	TotalOrders    int64           `json:"totalOrders"`
	TotalRevenue   decimal.Decimal `json:"totalRevenue"`
	TotalProducts  int64           `json:"totalProducts"`
	TotalCustomers int64           `json:"totalCustomers"`
}
