package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type CartLine struct {
	ID         uint64    `json:"id" gorm:"primaryKey;autoIncrement"`
	CustomerID string    `json:"customerId" gorm:"size:64;not null;uniqueIndex:idx_cart_customer_product"`
	ProductID  uint64    `json:"productId" gorm:"not null;uniqueIndex:idx_cart_customer_product"`
	Quantity   int64     `json:"quantity" gorm:"not null"`
	CreatedAt  time.Time `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt  time.Time `json:"updatedAt" gorm:"autoUpdateTime"`
}

// PricedLine is a cart line joined with the live catalog entry.
type PricedLine struct {
	CartLine
	Product   Product         `json:"product"`
	LineTotal decimal.Decimal `json:"lineTotal"`
}

type CartTotals struct {
	Lines     []PricedLine    `json:"lines"`
	ItemCount int64           `json:"itemCount"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}
