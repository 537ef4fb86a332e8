package gormstore

import (
	"context"
	"fmt"
	"time"

	"grocery-service/internal/domain"
	"grocery-service/internal/repository"

	"gorm.io/gorm"
)

type outboxRepo struct {
	db *gorm.DB
}

func NewOutboxRepository(db *gorm.DB) repository.OutboxRepository {
	return &outboxRepo{db: db}
}

func (r *outboxRepo) FetchPending(ctx context.Context, limit, maxRetries int) ([]domain.OutboxEvent, error) {
	var out []domain.OutboxEvent
	err := r.db.WithContext(ctx).
		Where("status IN ? AND retry_count < ?", []domain.OutboxStatus{domain.OutboxPending, domain.OutboxFailed}, maxRetries).
		Order("id ASC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("select outbox batch: %w", err)
	}
	return out, nil
}

func (r *outboxRepo) MarkSent(ctx context.Context, ids []uint64) error {
	if len(ids) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Model(&domain.OutboxEvent{}).
		Where("id IN ?", ids).
		Updates(map[string]any{"status": domain.OutboxSent, "sent_at": time.Now().UTC()}).Error
	if err != nil {
		return fmt.Errorf("mark outbox sent: %w", err)
	}
	return nil
}

func (r *outboxRepo) MarkFailed(ctx context.Context, id uint64, errMsg string) error {
	if len(errMsg) > 512 {
		errMsg = errMsg[:512]
	}
	err := r.db.WithContext(ctx).Model(&domain.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":      domain.OutboxFailed,
			"last_error":  errMsg,
			"retry_count": gorm.Expr("retry_count + 1"),
		}).Error
	if err != nil {
		return fmt.Errorf("mark outbox failed: %w", err)
	}
	return nil
}
