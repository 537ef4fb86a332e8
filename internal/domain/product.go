package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID            uint64          `json:"id" gorm:"primaryKey;autoIncrement"`
	Name          string          `json:"name" gorm:"size:255;not null"`
	Price         decimal.Decimal `json:"price" gorm:"type:decimal(12,2);not null"`
	StockQuantity int64           `json:"stockQuantity" gorm:"not null;default:0"`
	InStock       bool            `json:"inStock" gorm:"not null"`
	CreatedAt     time.Time       `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt     time.Time       `json:"updatedAt" gorm:"autoUpdateTime"`
}

// Available reports whether the product can be added to a cart.
func (p *Product) Available() bool {
	return p != nil && p.InStock && p.StockQuantity > 0
}
