package services

import (
	"context"
	"strings"
	"time"

	"grocery-service/internal/auth"
	"grocery-service/internal/domain"
	"grocery-service/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type OrderLine struct {
	ProductID uint64
	Quantity  int64
}

type PlaceOrderInput struct {
	DeliveryAddress      string
	DeliveryPhone        string
	DeliveryInstructions string
	DeliveryDate         *time.Time
	TimeSlot             domain.TimeSlot
	// Lines defaults to the customer's cart when nil.
	Lines []OrderLine
}

type OrderConfig struct {
	DeliveryFee           decimal.Decimal
	AllowUnpaidFulfilment bool
}

type OrderService struct {
	orders  repository.OrderRepository
	carts   repository.CartRepository
	catalog Catalog
	log     logrus.FieldLogger
	cfg     OrderConfig
	now     func() time.Time
}

func NewOrderService(orders repository.OrderRepository, carts repository.CartRepository, catalog Catalog, log logrus.FieldLogger, cfg OrderConfig) *OrderService {
	return &OrderService{
		orders:  orders,
		carts:   carts,
		catalog: catalog,
		log:     log,
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// PlaceOrder snapshots current prices into a new pending order and records
// the order.created event with it. The cart is cleared afterwards; if that
// fails the order still stands and the clear is retried on the next cart read.
func (s *OrderService) PlaceOrder(ctx context.Context, user auth.User, in PlaceOrderInput) (*domain.Order, error) {
	lines := in.Lines
	if lines == nil {
		cart, err := s.carts.ListByCustomer(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		for _, l := range cart {
			lines = append(lines, OrderLine{ProductID: l.ProductID, Quantity: l.Quantity})
		}
	}
	if len(lines) == 0 {
		return nil, domain.ErrEmptyCart
	}

	items := make([]domain.OrderItem, 0, len(lines))
	for _, l := range lines {
		if l.Quantity < 1 {
			return nil, domain.ErrInvalidQuantity
		}
		p, err := s.catalog.GetProduct(ctx, l.ProductID)
		if err != nil {
			return nil, err
		}
		if p == nil {
			return nil, domain.Wrap(domain.ErrProductNotFound, "product %d", l.ProductID)
		}
		items = append(items, domain.OrderItem{
			ProductID:   p.ID,
			ProductName: p.Name,
			Quantity:    l.Quantity,
			UnitPrice:   p.Price,
			LineTotal:   p.Price.Mul(decimal.NewFromInt(l.Quantity)),
		})
	}

	now := s.now()
	order := &domain.Order{
		CustomerID:           user.ID,
		TrackingNumber:       newTrackingNumber(),
		Items:                items,
		DeliveryAddress:      in.DeliveryAddress,
		DeliveryPhone:        in.DeliveryPhone,
		DeliveryInstructions: in.DeliveryInstructions,
		DeliveryFee:          s.cfg.DeliveryFee,
		TotalAmount:          domain.OrderTotal(items, s.cfg.DeliveryFee),
		Status:               domain.StatusPending,
		PaymentStatus:        domain.PaymentPending,
		EstimatedDelivery:    domain.EstimateDelivery(now, in.DeliveryDate, in.TimeSlot),
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	err := s.orders.Create(ctx, order, func(o *domain.Order) ([]domain.OutboxEvent, error) {
		evt, err := domain.NewOutboxEvent(domain.EventOrderCreated, o.ID, domain.OrderCreatedEvent{
			OrderID:        o.ID,
			CustomerID:     o.CustomerID,
			TrackingNumber: o.TrackingNumber,
			TotalAmount:    o.TotalAmount.StringFixed(2),
			CreatedAt:      o.CreatedAt,
		})
		if err != nil {
			return nil, err
		}
		return []domain.OutboxEvent{evt}, nil
	})
	if err != nil {
		return nil, err
	}

	log := s.log.WithFields(logrus.Fields{"order_id": order.ID, "customer_id": user.ID})
	log.WithField("total", order.TotalAmount.StringFixed(2)).Info("order placed")

	if in.Lines == nil {
		if err := clearCartFor(ctx, s.carts, s.orders, order); err != nil {
			log.WithError(err).Warn("cart clear after checkout failed, deferring")
		} else {
			order.CartCleared = true
		}
	} else if err := s.orders.MarkCartCleared(ctx, order.ID); err != nil {
		log.WithError(err).Warn("mark cart cleared failed")
	}
	return order, nil
}

// UpdateStatus moves an order along the delivery axis. Only admins may do
// this. Setting the current status again is a no-op.
func (s *OrderService) UpdateStatus(ctx context.Context, actor auth.User, orderID uint64, status string) (*domain.Order, error) {
	if !actor.IsAdmin {
		return nil, domain.ErrAccessDenied
	}
	next, err := domain.ParseOrderStatus(status)
	if err != nil {
		return nil, err
	}

	order, err := s.orders.Update(ctx, orderID, func(o *domain.Order) ([]domain.OutboxEvent, error) {
		if o.Status == next {
			return nil, nil
		}
		if !o.Status.CanTransition(next) {
			return nil, domain.Wrap(domain.ErrIllegalTransition, "%s to %s", o.Status, next)
		}
		if next != domain.StatusCancelled && o.PaymentStatus != domain.PaymentCompleted && !s.cfg.AllowUnpaidFulfilment {
			return nil, domain.Wrap(domain.ErrIllegalTransition, "order %d is not paid", o.ID)
		}

		now := s.now()
		prev := o.Status
		o.Status = next
		if next == domain.StatusDelivered {
			at := now
			if at.Before(o.CreatedAt) {
				at = o.CreatedAt
			}
			o.DeliveredAt = &at
		}

		evt, err := domain.NewOutboxEvent(domain.EventOrderStatusChanged, o.ID, domain.StatusChangedEvent{
			OrderID:    o.ID,
			CustomerID: o.CustomerID,
			Kind:       domain.EventOrderStatusChanged,
			OldState:   string(prev),
			NewState:   string(next),
			At:         now,
		})
		if err != nil {
			return nil, err
		}
		return []domain.OutboxEvent{evt}, nil
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"order_id": orderID, "status": order.Status}).Info("order status updated")
	return order, nil
}

func (s *OrderService) GetOrder(ctx context.Context, requestor auth.User, orderID uint64) (*domain.Order, error) {
	o, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, domain.Wrap(domain.ErrOrderNotFound, "order %d", orderID)
	}
	if !requestor.CanSee(o.CustomerID) {
		return nil, domain.ErrAccessDenied
	}
	return o, nil
}

// ListOrders returns every order for admins and the caller's own otherwise.
func (s *OrderService) ListOrders(ctx context.Context, requestor auth.User) ([]domain.Order, error) {
	customerID := requestor.ID
	if requestor.IsAdmin {
		customerID = ""
	}
	return s.orders.List(ctx, customerID)
}

func (s *OrderService) Stats(ctx context.Context, requestor auth.User) (domain.OrderStats, error) {
	if !requestor.IsAdmin {
		return domain.OrderStats{}, domain.ErrAccessDenied
	}
	return s.orders.Stats(ctx)
}

func newTrackingNumber() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "TRK" + strings.ToUpper(id[:16])
}
