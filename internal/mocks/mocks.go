package mocks

import (
	"context"
	"time"

	"grocery-service/internal/domain"
	"grocery-service/internal/infra/mpesa"
	"grocery-service/internal/repository"

	"github.com/stretchr/testify/mock"
)

type MockProductClient struct {
	mock.Mock
}

func (m *MockProductClient) GetProductById(ctx context.Context, productId uint64) (*domain.Product, error) {
	args := m.Called(ctx, productId)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Product), args.Error(1)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, routingKey, id string, payload []byte) error {
	args := m.Called(ctx, routingKey, id, payload)
	return args.Error(0)
}

type MockKeyedPublisher struct {
	mock.Mock
}

func (m *MockKeyedPublisher) Publish(ctx context.Context, routingKey, id string, payload []byte, key string) error {
	args := m.Called(ctx, routingKey, id, payload, key)
	return args.Error(0)
}

type MockSink struct {
	mock.Mock
}

func (m *MockSink) Send(ctx context.Context, e domain.OutboxEvent) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) RequestCharge(ctx context.Context, req mpesa.ChargeRequest) (*mpesa.ChargeResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*mpesa.ChargeResponse), args.Error(1)
}

func (m *MockGateway) QueryStatus(ctx context.Context, token string) (*mpesa.StatusResponse, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*mpesa.StatusResponse), args.Error(1)
}

type MockOutboxRepository struct {
	mock.Mock
}

func (m *MockOutboxRepository) FetchPending(ctx context.Context, limit, maxRetries int) ([]domain.OutboxEvent, error) {
	args := m.Called(ctx, limit, maxRetries)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.OutboxEvent), args.Error(1)
}

func (m *MockOutboxRepository) MarkSent(ctx context.Context, ids []uint64) error {
	args := m.Called(ctx, ids)
	return args.Error(0)
}

func (m *MockOutboxRepository) MarkFailed(ctx context.Context, id uint64, errMsg string) error {
	args := m.Called(ctx, id, errMsg)
	return args.Error(0)
}

type MockOrderRepository struct {
	mock.Mock
}

func (m *MockOrderRepository) Create(ctx context.Context, o *domain.Order, fn repository.OrderMutation) error {
	args := m.Called(ctx, o, fn)
	return args.Error(0)
}

func (m *MockOrderRepository) FindByID(ctx context.Context, id uint64) (*domain.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Order), args.Error(1)
}

func (m *MockOrderRepository) List(ctx context.Context, customerID string) ([]domain.Order, error) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Order), args.Error(1)
}

func (m *MockOrderRepository) Update(ctx context.Context, id uint64, fn repository.OrderMutation) (*domain.Order, error) {
	args := m.Called(ctx, id, fn)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Order), args.Error(1)
}

func (m *MockOrderRepository) MarkCartCleared(ctx context.Context, id uint64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockOrderRepository) PendingCartClears(ctx context.Context, customerID string) ([]domain.Order, error) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Order), args.Error(1)
}

func (m *MockOrderRepository) Stats(ctx context.Context) (domain.OrderStats, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.OrderStats), args.Error(1)
}

type MockCartRepository struct {
	mock.Mock
}

func (m *MockCartRepository) Upsert(ctx context.Context, customerID string, productID uint64, qty int64) (*domain.CartLine, error) {
	args := m.Called(ctx, customerID, productID, qty)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CartLine), args.Error(1)
}

func (m *MockCartRepository) SetQuantity(ctx context.Context, customerID string, lineID uint64, qty int64) (*domain.CartLine, error) {
	args := m.Called(ctx, customerID, lineID, qty)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CartLine), args.Error(1)
}

func (m *MockCartRepository) Delete(ctx context.Context, customerID string, lineID uint64) (bool, error) {
	args := m.Called(ctx, customerID, lineID)
	return args.Bool(0), args.Error(1)
}

func (m *MockCartRepository) ListByCustomer(ctx context.Context, customerID string) ([]domain.CartLine, error) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.CartLine), args.Error(1)
}

func (m *MockCartRepository) Clear(ctx context.Context, customerID string) error {
	args := m.Called(ctx, customerID)
	return args.Error(0)
}

func (m *MockCartRepository) ClearThrough(ctx context.Context, customerID string, cutoff time.Time) error {
	args := m.Called(ctx, customerID, cutoff)
	return args.Error(0)
}
