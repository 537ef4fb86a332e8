package gormstore

import (
	"grocery-service/internal/domain"

	"gorm.io/gorm"
)

func Models() []any {
	return []any{
		&domain.Product{},
		&domain.CartLine{},
		&domain.Order{},
		&domain.OrderItem{},
		&domain.PaymentAttempt{},
		&domain.OutboxEvent{},
	}
}

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
