package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"grocery-service/internal/domain"
	"grocery-service/internal/repository"

	"gorm.io/gorm"
)

type paymentRepo struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) repository.PaymentRepository {
	return &paymentRepo{db: db}
}

func (r *paymentRepo) CreateAttempt(ctx context.Context, a *domain.PaymentAttempt, inFlightSince time.Time, fn repository.OrderMutation) (*domain.Order, error) {
	var out *domain.Order
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		o, err := lockOrder(tx, a.OrderID)
		if err != nil {
			return err
		}
		events, err := fn(o)
		if err != nil {
			return err
		}

		if !inFlightSince.IsZero() {
			var live int64
			err := tx.Model(&domain.PaymentAttempt{}).
				Where("order_id = ? AND status = ? AND disregarded = ? AND requested_at > ?",
					o.ID, domain.AttemptPending, false, inFlightSince).
				Count(&live).Error
			if err != nil {
				return fmt.Errorf("count live attempts: %w", err)
			}
			if live > 0 {
				return domain.Wrap(domain.ErrPaymentInProgress, "order %d", o.ID)
			}
		}
		if err := tx.Create(a).Error; err != nil {
			return fmt.Errorf("insert payment attempt: %w", err)
		}
		if err := saveOrderState(tx, o); err != nil {
			return err
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

func (r *paymentRepo) SetGatewayReference(ctx context.Context, token, ref string) error {
	err := r.db.WithContext(ctx).Model(&domain.PaymentAttempt{}).
		Where("correlation_token = ?", token).
		Update("gateway_reference", ref).Error
	if err != nil {
		return fmt.Errorf("set gateway reference: %w", err)
	}
	return nil
}

func (r *paymentRepo) FindByToken(ctx context.Context, token string) (*domain.PaymentAttempt, error) {
	var a domain.PaymentAttempt
	if err := r.db.WithContext(ctx).Where("correlation_token = ?", token).First(&a).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("select payment attempt: %w", err)
	}
	return &a, nil
}

func (r *paymentRepo) Settle(ctx context.Context, s repository.Settlement, fn repository.OrderMutation) (*domain.PaymentAttempt, *domain.Order, error) {
	var (
		attempt domain.PaymentAttempt
		order   *domain.Order
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("correlation_token = ?", s.Token).First(&attempt).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrUnknownCorrelationToken
			}
			return fmt.Errorf("select payment attempt: %w", err)
		}

		// Locking the order serialises settlements of all its attempts.
		o, err := lockOrder(tx, attempt.OrderID)
		if err != nil {
			return err
		}
		if attempt.Status != domain.AttemptPending {
			return domain.ErrAlreadySettled
		}

		updates := map[string]any{
			"status":             s.Status,
			"result_description": s.Description,
			"settled_at":         s.SettledAt,
		}
		if s.Status == domain.AttemptSucceeded {
			var paid int64
			err := tx.Model(&domain.PaymentAttempt{}).
				Where("order_id = ? AND status = ?", o.ID, domain.AttemptSucceeded).
				Count(&paid).Error
			if err != nil {
				return fmt.Errorf("count settled attempts: %w", err)
			}
			if paid > 0 {
				return domain.ErrAlreadyPaid
			}
			updates["succeeded_order_id"] = o.ID
		}

		res := tx.Model(&domain.PaymentAttempt{}).
			Where("id = ? AND status = ?", attempt.ID, domain.AttemptPending).
			Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("settle payment attempt: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return domain.ErrAlreadySettled
		}
		if err := tx.First(&attempt, attempt.ID).Error; err != nil {
			return fmt.Errorf("reload payment attempt: %w", err)
		}

		events, err := fn(o)
		if err != nil {
			return err
		}
		if err := saveOrderState(tx, o); err != nil {
			return err
		}
		if err := insertEvents(tx, o.ID, events); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &attempt, order, nil
}

func (r *paymentRepo) ListStalePending(ctx context.Context, requestedBefore time.Time, limit int) ([]domain.PaymentAttempt, error) {
	var out []domain.PaymentAttempt
	err := r.db.WithContext(ctx).
		Joins("JOIN orders ON orders.id = payment_attempts.order_id").
		Where("payment_attempts.status = ? AND payment_attempts.requested_at < ?", domain.AttemptPending, requestedBefore).
		Where("orders.payment_status <> ?", domain.PaymentCompleted).
		Order("COALESCE(payment_attempts.last_checked_at, payment_attempts.requested_at) ASC").
		Order("payment_attempts.id ASC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("select stale attempts: %w", err)
	}
	return out, nil
}

func (r *paymentRepo) MarkChecked(ctx context.Context, ids []uint64, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Model(&domain.PaymentAttempt{}).
		Where("id IN ?", ids).
		Update("last_checked_at", at).Error
	if err != nil {
		return fmt.Errorf("mark attempts checked: %w", err)
	}
	return nil
}
