package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"grocery-service/internal/domain"
	"grocery-service/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type orderRepo struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) repository.OrderRepository {
	return &orderRepo{db: db}
}

func (r *orderRepo) Create(ctx context.Context, o *domain.Order, fn repository.OrderMutation) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(o).Error; err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		if o.ID == 0 {
			return errors.New("failed to assign order ID")
		}
		if fn == nil {
			return nil
		}
		events, err := fn(o)
		if err != nil {
			return err
		}
		return insertEvents(tx, o.ID, events)
	})
}

func (r *orderRepo) FindByID(ctx context.Context, id uint64) (*domain.Order, error) {
	var o domain.Order
	if err := r.db.WithContext(ctx).Preload("Items").First(&o, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("select order: %w", err)
	}
	return &o, nil
}

func (r *orderRepo) List(ctx context.Context, customerID string) ([]domain.Order, error) {
	q := r.db.WithContext(ctx).Preload("Items")
	if customerID != "" {
		q = q.Where("customer_id = ?", customerID)
	}

	var out []domain.Order
	if err := q.Order("created_at DESC").Order("id DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	return out, nil
}

func (r *orderRepo) Update(ctx context.Context, id uint64, fn repository.OrderMutation) (*domain.Order, error) {
	var out *domain.Order
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		o, err := lockOrder(tx, id)
		if err != nil {
			return err
		}
		before := o.Status

		events, err := fn(o)
		if err != nil {
			return err
		}
		if err := saveOrderState(tx, o); err != nil {
			return err
		}

		// Pending attempts of a cancelled order may still settle, but they
		// must never move the order again.
		if before != o.Status && o.Status == domain.StatusCancelled {
			err := tx.Model(&domain.PaymentAttempt{}).
				Where("order_id = ? AND status = ?", o.ID, domain.AttemptPending).
				Update("disregarded", true).Error
			if err != nil {
				return fmt.Errorf("disregard attempts: %w", err)
			}
		}

		if err := insertEvents(tx, o.ID, events); err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *orderRepo) MarkCartCleared(ctx context.Context, id uint64) error {
	err := r.db.WithContext(ctx).Model(&domain.Order{}).
		Where("id = ?", id).
		Update("cart_cleared", true).Error
	if err != nil {
		return fmt.Errorf("mark cart cleared: %w", err)
	}
	return nil
}

func (r *orderRepo) PendingCartClears(ctx context.Context, customerID string) ([]domain.Order, error) {
	var out []domain.Order
	err := r.db.WithContext(ctx).
		Where("customer_id = ? AND cart_cleared = ?", customerID, false).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("select pending cart clears: %w", err)
	}
	return out, nil
}

func (r *orderRepo) Stats(ctx context.Context) (domain.OrderStats, error) {
	var stats domain.OrderStats
	db := r.db.WithContext(ctx)

	var row struct {
		Orders    int64
		Revenue   decimal.Decimal
		Customers int64
	}
	err := db.Model(&domain.Order{}).
		Select("COUNT(*) AS orders, COALESCE(SUM(total_amount), 0) AS revenue, COUNT(DISTINCT customer_id) AS customers").
		Scan(&row).Error
	if err != nil {
		return stats, fmt.Errorf("order stats: %w", err)
	}
	if err := db.Model(&domain.Product{}).Count(&stats.TotalProducts).Error; err != nil {
		return stats, fmt.Errorf("product stats: %w", err)
	}

	stats.TotalOrders = row.Orders
	stats.TotalRevenue = row.Revenue
	stats.TotalCustomers = row.Customers
	return stats, nil
}

func lockOrder(tx *gorm.DB, id uint64) (*domain.Order, error) {
	var o domain.Order
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Preload("Items").First(&o, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.Wrap(domain.ErrOrderNotFound, "order %d", id)
	}
	if err != nil {
		return nil, fmt.Errorf("lock order %d: %w", id, err)
	}
	return &o, nil
}

// saveOrderState writes the mutable columns only; totals and items are fixed
// at creation.
func saveOrderState(tx *gorm.DB, o *domain.Order) error {
	o.UpdatedAt = time.Now().UTC()
	err := tx.Model(&domain.Order{}).Where("id = ?", o.ID).Updates(map[string]any{
		"status":            o.Status,
		"payment_status":    o.PaymentStatus,
		"payment_reference": o.PaymentReference,
		"delivered_at":      o.DeliveredAt,
		"updated_at":        o.UpdatedAt,
	}).Error
	if err != nil {
		return fmt.Errorf("update order %d: %w", o.ID, err)
	}
	return nil
}

func insertEvents(tx *gorm.DB, aggregateID uint64, events []domain.OutboxEvent) error {
	if len(events) == 0 {
		return nil
	}
	for i := range events {
		if events[i].AggregateID == 0 {
			events[i].AggregateID = aggregateID
		}
		if events[i].Status == "" {
			events[i].Status = domain.OutboxPending
		}
	}
	if err := tx.Create(&events).Error; err != nil {
		return fmt.Errorf("insert outbox events: %w", err)
	}
	return nil
}
