package services

import (
	"context"

	"grocery-service/internal/domain"
	"grocery-service/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type CartService struct {
	carts   repository.CartRepository
	orders  repository.OrderRepository
	catalog Catalog
	log     logrus.FieldLogger
}

func NewCartService(carts repository.CartRepository, orders repository.OrderRepository, catalog Catalog, log logrus.FieldLogger) *CartService {
	return &CartService{carts: carts, orders: orders, catalog: catalog, log: log}
}

// AddItem adds qty of a product to the customer's cart, merging with an
// existing line for the same product.
func (s *CartService) AddItem(ctx context.Context, customerID string, productID uint64, qty int64) (*domain.CartLine, error) {
	if qty < 1 {
		return nil, domain.ErrInvalidQuantity
	}

	p, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !p.Available() {
		return nil, domain.Wrap(domain.ErrProductUnavailable, "product %d", productID)
	}

	line, err := s.carts.Upsert(ctx, customerID, productID, qty)
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"customer_id": customerID,
		"product_id":  productID,
		"quantity":    line.Quantity,
	}).Debug("cart line upserted")
	return line, nil
}

// SetQuantity replaces a line's quantity. Quantities below one are rejected
// and leave the line as it was; use RemoveLine to drop it.
func (s *CartService) SetQuantity(ctx context.Context, customerID string, lineID uint64, qty int64) (*domain.CartLine, error) {
	if qty < 1 {
		return nil, domain.ErrInvalidQuantity
	}
	line, err := s.carts.SetQuantity(ctx, customerID, lineID, qty)
	if err != nil {
		return nil, err
	}
	if line == nil {
		return nil, domain.Wrap(domain.ErrCartLineNotFound, "line %d", lineID)
	}
	return line, nil
}

// RemoveLine is idempotent; removed is false when there was nothing to delete.
func (s *CartService) RemoveLine(ctx context.Context, customerID string, lineID uint64) (bool, error) {
	return s.carts.Delete(ctx, customerID, lineID)
}

func (s *CartService) Clear(ctx context.Context, customerID string) error {
	return s.carts.Clear(ctx, customerID)
}

// Lines returns the raw cart lines after finishing any deferred checkout
// cleanup.
func (s *CartService) Lines(ctx context.Context, customerID string) ([]domain.CartLine, error) {
	s.finishPendingClears(ctx, customerID)
	return s.carts.ListByCustomer(ctx, customerID)
}

// Totals prices the cart with live catalog prices. Lines whose product has
// left the catalog are skipped.
func (s *CartService) Totals(ctx context.Context, customerID string) (domain.CartTotals, error) {
	totals := domain.CartTotals{Lines: []domain.PricedLine{}, Subtotal: decimal.Zero}

	lines, err := s.Lines(ctx, customerID)
	if err != nil {
		return totals, err
	}
	for _, l := range lines {
		p, err := s.catalog.GetProduct(ctx, l.ProductID)
		if err != nil {
			return totals, err
		}
		if p == nil {
			s.log.WithFields(logrus.Fields{"customer_id": customerID, "product_id": l.ProductID}).Warn("cart references missing product")
			continue
		}
		lineTotal := p.Price.Mul(decimal.NewFromInt(l.Quantity))
		totals.Lines = append(totals.Lines, domain.PricedLine{CartLine: l, Product: *p, LineTotal: lineTotal})
		totals.ItemCount += l.Quantity
		totals.Subtotal = totals.Subtotal.Add(lineTotal)
	}
	return totals, nil
}

// finishPendingClears removes lines left behind by checkouts whose cart
// clear failed. Lines touched after the order was placed are kept.
func (s *CartService) finishPendingClears(ctx context.Context, customerID string) {
	pending, err := s.orders.PendingCartClears(ctx, customerID)
	if err != nil {
		s.log.WithError(err).WithField("customer_id", customerID).Warn("load pending cart clears failed")
		return
	}
	for _, o := range pending {
		if err := clearCartFor(ctx, s.carts, s.orders, &o); err != nil {
			s.log.WithError(err).WithField("order_id", o.ID).Warn("deferred cart clear failed")
			return
		}
	}
}

func clearCartFor(ctx context.Context, carts repository.CartRepository, orders repository.OrderRepository, o *domain.Order) error {
	if err := carts.ClearThrough(ctx, o.CustomerID, o.CreatedAt); err != nil {
		return err
	}
	return orders.MarkCartCleared(ctx, o.ID)
}
