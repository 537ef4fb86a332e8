package services

import (
	"context"
	"fmt"
	"strconv"

	"grocery-service/internal/domain"
	"grocery-service/internal/infra"
	"grocery-service/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// Catalog returns (nil, nil) for products that do not exist.
type Catalog interface {
	GetProduct(ctx context.Context, id uint64) (*domain.Product, error)
}

type ProductCache interface {
	Get(ctx context.Context, id uint64) (*domain.Product, error)
	Set(ctx context.Context, p *domain.Product) error
	Invalidate(ctx context.Context, id uint64) error
}

// CatalogReader reads products from the local table, or from the product
// service when a client is configured. Lookups go through the cache and
// concurrent misses for one product share a single fetch.
type CatalogReader struct {
	products repository.ProductRepository
	remote   infra.ProductClientInterface
	cache    ProductCache
	log      logrus.FieldLogger
	group    singleflight.Group
}

func NewCatalogReader(products repository.ProductRepository, log logrus.FieldLogger) *CatalogReader {
	return &CatalogReader{products: products, log: log}
}

func (c *CatalogReader) SetRemote(client infra.ProductClientInterface) {
	c.remote = client
}

func (c *CatalogReader) SetCache(cache ProductCache) {
	c.cache = cache
}

func (c *CatalogReader) GetProduct(ctx context.Context, id uint64) (*domain.Product, error) {
	if c.cache != nil {
		p, err := c.cache.Get(ctx, id)
		if err != nil {
			c.log.WithError(err).WithField("product_id", id).Warn("product cache read failed")
		} else if p != nil {
			return p, nil
		}
	}

	v, err, _ := c.group.Do(strconv.FormatUint(id, 10), func() (any, error) {
		p, err := c.fetch(ctx, id)
		if err != nil || p == nil {
			return p, err
		}
		if c.cache != nil {
			if err := c.cache.Set(ctx, p); err != nil {
				c.log.WithError(err).WithField("product_id", id).Warn("product cache write failed")
			}
		}
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	p, _ := v.(*domain.Product)
	if p == nil {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (c *CatalogReader) fetch(ctx context.Context, id uint64) (*domain.Product, error) {
	if c.remote != nil {
		p, err := c.remote.GetProductById(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("fetch product %d: %w", id, err)
		}
		return p, nil
	}
	return c.products.FindByID(ctx, id)
}

// UpdatePrice changes the live price of a locally managed product. Orders
// already placed keep the price they were created with.
func (c *CatalogReader) UpdatePrice(ctx context.Context, id uint64, price decimal.Decimal) (*domain.Product, error) {
	if c.remote != nil {
		return nil, domain.ErrCatalogReadOnly
	}
	if price.IsNegative() {
		return nil, domain.ErrInvalidPrice
	}

	p, err := c.products.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, domain.Wrap(domain.ErrProductNotFound, "product %d", id)
	}
	p.Price = price
	if err := c.products.Save(ctx, p); err != nil {
		return nil, err
	}
	if c.cache != nil {
		if err := c.cache.Invalidate(ctx, id); err != nil {
			c.log.WithError(err).WithField("product_id", id).Warn("product cache invalidate failed")
		}
	}
	return p, nil
}

// WarmupCache loads the given products into the cache ahead of traffic.
func (c *CatalogReader) WarmupCache(ctx context.Context, ids []uint64) {
	if c.cache == nil {
		return
	}
	for _, id := range ids {
		if _, err := c.GetProduct(ctx, id); err != nil {
			c.log.WithError(err).WithField("product_id", id).Warn("cache warmup failed")
		}
	}
}
