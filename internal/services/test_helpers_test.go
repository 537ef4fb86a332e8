package services

import (
	"context"
	"testing"
	"time"

	"grocery-service/internal/auth"
	"grocery-service/internal/domain"
	"grocery-service/internal/infra/mpesa"
	"grocery-service/internal/metrics"
	"grocery-service/internal/repository"
	"grocery-service/internal/repository/gormstore"
	"grocery-service/internal/testutil"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var (
	TestCustomer      = auth.User{ID: "cust-1"}
	TestOtherCustomer = auth.User{ID: "cust-2"}
	TestAdmin         = auth.User{ID: "admin-1", IsAdmin: true}
	TestDeliveryFee   = decimal.RequireFromString("2.99")
)

const TestPhone = "0712345678"

type harness struct {
	db       *gorm.DB
	products repository.ProductRepository
	carts    repository.CartRepository
	orders   repository.OrderRepository
	payments repository.PaymentRepository
	catalog  *CatalogReader
	cart     *CartService
	order    *OrderService
	payment  *PaymentService
	gateway  *mpesa.SimulatedGateway
	metrics  *metrics.Metrics
	hook     *test.Hook
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log, hook := test.NewNullLogger()
	db := testutil.NewSQLiteDB(t)

	h := &harness{
		db:       db,
		products: gormstore.NewProductRepository(db),
		carts:    gormstore.NewCartRepository(db),
		orders:   gormstore.NewOrderRepository(db),
		payments: gormstore.NewPaymentRepository(db),
		gateway:  mpesa.NewSimulatedGateway(),
		metrics:  metrics.New(),
		hook:     hook,
	}
	h.catalog = NewCatalogReader(h.products, log)
	h.cart = NewCartService(h.carts, h.orders, h.catalog, log)
	h.order = NewOrderService(h.orders, h.carts, h.catalog, log, OrderConfig{DeliveryFee: TestDeliveryFee})
	h.payment = NewPaymentService(h.payments, h.orders, h.gateway, h.metrics, log, PaymentConfig{
		CallbackURL:    "http://localhost/api/payments/callback",
		CallbackSecret: "secret",
		GatewayTimeout: time.Second,
	})
	return h
}

func (h *harness) seedProduct(t *testing.T, name, price string, stock int64) *domain.Product {
	t.Helper()
	p := &domain.Product{
		Name:          name,
		Price:         decimal.RequireFromString(price),
		StockQuantity: stock,
		InStock:       stock > 0,
	}
	require.NoError(t, h.products.Save(context.Background(), p))
	return p
}

// placeOrder fills the customer's cart and checks it out.
func (h *harness) placeOrder(t *testing.T, user auth.User, lines map[*domain.Product]int64) *domain.Order {
	t.Helper()
	ctx := context.Background()
	for p, qty := range lines {
		_, err := h.cart.AddItem(ctx, user.ID, p.ID, qty)
		require.NoError(t, err)
	}
	o, err := h.order.PlaceOrder(ctx, user, PlaceOrderInput{DeliveryAddress: "Moi Avenue 1, Nairobi", DeliveryPhone: TestPhone})
	require.NoError(t, err)
	return o
}

func (h *harness) attemptCount(t *testing.T, orderID uint64) int64 {
	t.Helper()
	var n int64
	require.NoError(t, h.db.Model(&domain.PaymentAttempt{}).Where("order_id = ?", orderID).Count(&n).Error)
	return n
}

func (h *harness) outboxTypes(t *testing.T, orderID uint64) []domain.EventKind {
	t.Helper()
	var events []domain.OutboxEvent
	require.NoError(t, h.db.Where("aggregate_id = ?", orderID).Order("id").Find(&events).Error)
	out := make([]domain.EventKind, 0, len(events))
	for _, e := range events {
		out = append(out, e.Type)
	}
	return out
}
