package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"grocery-service/internal/domain"
	"grocery-service/internal/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type cartRepo struct {
	db *gorm.DB
}

func NewCartRepository(db *gorm.DB) repository.CartRepository {
	return &cartRepo{db: db}
}

// Upsert adds qty to the customer's line for productID in a single
// statement, so concurrent adds of the same product accumulate.
func (r *cartRepo) Upsert(ctx context.Context, customerID string, productID uint64, qty int64) (*domain.CartLine, error) {
	db := r.db.WithContext(ctx)
	now := time.Now().UTC()

	line := domain.CartLine{
		CustomerID: customerID,
		ProductID:  productID,
		Quantity:   qty,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "customer_id"}, {Name: "product_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"quantity":   gorm.Expr("cart_lines.quantity + ?", qty),
			"updated_at": now,
		}),
	}).Create(&line).Error
	if err != nil {
		return nil, fmt.Errorf("upsert cart line: %w", err)
	}

	return r.findByProduct(db, customerID, productID)
}

func (r *cartRepo) findByProduct(db *gorm.DB, customerID string, productID uint64) (*domain.CartLine, error) {
	var out domain.CartLine
	err := db.Where("customer_id = ? AND product_id = ?", customerID, productID).First(&out).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("select cart line: %w", err)
	}
	return &out, nil
}

func (r *cartRepo) SetQuantity(ctx context.Context, customerID string, lineID uint64, qty int64) (*domain.CartLine, error) {
	db := r.db.WithContext(ctx)
	err := db.Model(&domain.CartLine{}).
		Where("id = ? AND customer_id = ?", lineID, customerID).
		Updates(map[string]any{"quantity": qty, "updated_at": time.Now().UTC()}).Error
	if err != nil {
		return nil, fmt.Errorf("update cart line: %w", err)
	}

	var out domain.CartLine
	if err := db.Where("id = ? AND customer_id = ?", lineID, customerID).First(&out).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("select cart line: %w", err)
	}
	return &out, nil
}

func (r *cartRepo) Delete(ctx context.Context, customerID string, lineID uint64) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("id = ? AND customer_id = ?", lineID, customerID).
		Delete(&domain.CartLine{})
	if res.Error != nil {
		return false, fmt.Errorf("delete cart line: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *cartRepo) ListByCustomer(ctx context.Context, customerID string) ([]domain.CartLine, error) {
	var out []domain.CartLine
	err := r.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("id ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("select cart lines: %w", err)
	}
	return out, nil
}

func (r *cartRepo) Clear(ctx context.Context, customerID string) error {
	err := r.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Delete(&domain.CartLine{}).Error
	if err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

func (r *cartRepo) ClearThrough(ctx context.Context, customerID string, cutoff time.Time) error {
	err := r.db.WithContext(ctx).
		Where("customer_id = ? AND updated_at <= ?", customerID, cutoff).
		Delete(&domain.CartLine{}).Error
	if err != nil {
		return fmt.Errorf("clear cart through %s: %w", cutoff.Format(time.RFC3339), err)
	}
	return nil
}
