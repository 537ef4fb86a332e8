package infra

import (
	"context"

	"grocery-service/internal/domain"
)

type ProductClientInterface interface {
	GetProductById(ctx context.Context, id uint64) (*domain.Product, error)
}

var _ ProductClientInterface = (*ProductClient)(nil)
