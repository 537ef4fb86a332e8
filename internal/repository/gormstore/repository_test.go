package gormstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"grocery-service/internal/domain"
	"grocery-service/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var trackingSeq atomic.Int64

func seedOrder(t *testing.T, repo repository.OrderRepository, customer string, total string) *domain.Order {
	t.Helper()
	now := time.Now().UTC()
	o := &domain.Order{
		CustomerID:        customer,
		TrackingNumber:    fmt.Sprintf("TRK%s%06d", customer, trackingSeq.Add(1)),
		DeliveryAddress:   "Moi Avenue 12",
		DeliveryPhone:     "0712345678",
		DeliveryFee:       decimal.RequireFromString("2.99"),
		TotalAmount:       decimal.RequireFromString(total),
		Status:            domain.StatusPending,
		PaymentStatus:     domain.PaymentPending,
		EstimatedDelivery: now.Add(time.Hour),
		Items: []domain.OrderItem{{
			ProductID:   1,
			ProductName: "Milk",
			Quantity:    1,
			UnitPrice:   decimal.RequireFromString(total).Sub(decimal.RequireFromString("2.99")),
			LineTotal:   decimal.RequireFromString(total).Sub(decimal.RequireFromString("2.99")),
		}},
	}
	require.NoError(t, repo.Create(context.Background(), o, nil))
	return o
}

func seedAttempt(t *testing.T, repo repository.PaymentRepository, orderID uint64, token string, at time.Time) {
	t.Helper()
	a := &domain.PaymentAttempt{
		OrderID:          orderID,
		CorrelationToken: token,
		Amount:           decimal.RequireFromString("5.99"),
		Phone:            "254712345678",
		Status:           domain.AttemptPending,
		RequestedAt:      at,
	}
	_, err := repo.CreateAttempt(context.Background(), a, time.Time{}, func(o *domain.Order) ([]domain.OutboxEvent, error) {
		return nil, nil
	})
	require.NoError(t, err)
}

func TestCartRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewCartRepository(newTestDB(t))

	t.Run("upsert accumulates per product", func(t *testing.T) {
		_, err := repo.Upsert(ctx, "alice", 1, 2)
		require.NoError(t, err)
		line, err := repo.Upsert(ctx, "alice", 1, 3)
		require.NoError(t, err)
		assert.EqualValues(t, 5, line.Quantity)

		other, err := repo.Upsert(ctx, "bob", 1, 1)
		require.NoError(t, err)
		assert.EqualValues(t, 1, other.Quantity)
		assert.NotEqual(t, line.ID, other.ID)
	})

	t.Run("set quantity is scoped to the owner", func(t *testing.T) {
		lines, err := repo.ListByCustomer(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, lines, 1)

		got, err := repo.SetQuantity(ctx, "bob", lines[0].ID, 9)
		require.NoError(t, err)
		assert.Nil(t, got)

		got, err = repo.SetQuantity(ctx, "alice", lines[0].ID, 9)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.EqualValues(t, 9, got.Quantity)
	})

	t.Run("delete reports whether a line was removed", func(t *testing.T) {
		line, err := repo.Upsert(ctx, "carol", 2, 1)
		require.NoError(t, err)

		removed, err := repo.Delete(ctx, "carol", line.ID)
		require.NoError(t, err)
		assert.True(t, removed)

		removed, err = repo.Delete(ctx, "carol", line.ID)
		require.NoError(t, err)
		assert.False(t, removed)
	})

	t.Run("clear through keeps later lines", func(t *testing.T) {
		_, err := repo.Upsert(ctx, "dave", 1, 1)
		require.NoError(t, err)
		cutoff := time.Now().UTC()
		time.Sleep(5 * time.Millisecond)
		_, err = repo.Upsert(ctx, "dave", 2, 1)
		require.NoError(t, err)

		require.NoError(t, repo.ClearThrough(ctx, "dave", cutoff))
		lines, err := repo.ListByCustomer(ctx, "dave")
		require.NoError(t, err)
		require.Len(t, lines, 1)
		assert.EqualValues(t, 2, lines[0].ProductID)

		require.NoError(t, repo.Clear(ctx, "dave"))
		lines, err = repo.ListByCustomer(ctx, "dave")
		require.NoError(t, err)
		assert.Empty(t, lines)
	})
}

func TestOrderRepository(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	orders := NewOrderRepository(db)
	payments := NewPaymentRepository(db)

	t.Run("create records events in the same transaction", func(t *testing.T) {
		o := &domain.Order{
			CustomerID:      "alice",
			TrackingNumber:  "TRK-EVENTS",
			DeliveryAddress: "Moi Avenue 12",
			DeliveryPhone:   "0712345678",
			DeliveryFee:     decimal.RequireFromString("2.99"),
			TotalAmount:     decimal.RequireFromString("2.99"),
			Status:          domain.StatusPending,
			PaymentStatus:   domain.PaymentPending,
		}
		err := orders.Create(ctx, o, func(o *domain.Order) ([]domain.OutboxEvent, error) {
			e, err := domain.NewOutboxEvent(domain.EventOrderCreated, o.ID, domain.OrderCreatedEvent{OrderID: o.ID})
			return []domain.OutboxEvent{e}, err
		})
		require.NoError(t, err)

		var events []domain.OutboxEvent
		require.NoError(t, db.Where("aggregate_id = ?", o.ID).Find(&events).Error)
		require.Len(t, events, 1)
		assert.Equal(t, domain.EventOrderCreated, events[0].Type)
	})

	t.Run("failing mutation rolls back", func(t *testing.T) {
		o := seedOrder(t, orders, "bob", "5.99")
		boom := errors.New("boom")

		_, err := orders.Update(ctx, o.ID, func(o *domain.Order) ([]domain.OutboxEvent, error) {
			o.Status = domain.StatusDelivered
			return nil, boom
		})
		assert.ErrorIs(t, err, boom)

		got, err := orders.FindByID(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusPending, got.Status)
		require.Len(t, got.Items, 1)
	})

	t.Run("update of unknown order", func(t *testing.T) {
		_, err := orders.Update(ctx, 9999, func(o *domain.Order) ([]domain.OutboxEvent, error) {
			return nil, nil
		})
		assert.ErrorIs(t, err, domain.ErrOrderNotFound)

		got, err := orders.FindByID(ctx, 9999)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("cancel disregards pending attempts", func(t *testing.T) {
		o := seedOrder(t, orders, "carol", "5.99")
		seedAttempt(t, payments, o.ID, "tok-cancel", time.Now().UTC())

		_, err := orders.Update(ctx, o.ID, func(o *domain.Order) ([]domain.OutboxEvent, error) {
			o.Status = domain.StatusCancelled
			return nil, nil
		})
		require.NoError(t, err)

		a, err := payments.FindByToken(ctx, "tok-cancel")
		require.NoError(t, err)
		assert.True(t, a.Disregarded)
		assert.Equal(t, domain.AttemptPending, a.Status)
	})

	t.Run("pending cart clears", func(t *testing.T) {
		o := seedOrder(t, orders, "dave", "5.99")
		pending, err := orders.PendingCartClears(ctx, "dave")
		require.NoError(t, err)
		require.Len(t, pending, 1)

		require.NoError(t, orders.MarkCartCleared(ctx, o.ID))
		pending, err = orders.PendingCartClears(ctx, "dave")
		require.NoError(t, err)
		assert.Empty(t, pending)
	})

	t.Run("list filters by customer", func(t *testing.T) {
		mine, err := orders.List(ctx, "bob")
		require.NoError(t, err)
		assert.Len(t, mine, 1)

		all, err := orders.List(ctx, "")
		require.NoError(t, err)
		assert.Len(t, all, 4)
	})
}

func TestOrderRepository_Stats(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	orders := NewOrderRepository(db)
	products := NewProductRepository(db)

	require.NoError(t, products.Save(ctx, &domain.Product{Name: "Milk", Price: decimal.RequireFromString("3.00"), StockQuantity: 4, InStock: true}))
	seedOrder(t, orders, "alice", "5.00")
	seedOrder(t, orders, "alice", "7.50")
	seedOrder(t, orders, "bob", "3.50")

	stats, err := orders.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, stats.TotalOrders)
	assert.EqualValues(t, 2, stats.TotalCustomers)
	assert.EqualValues(t, 1, stats.TotalProducts)
	assert.Equal(t, "16.00", stats.TotalRevenue.StringFixed(2))
}

func TestPaymentRepository_Settle(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	orders := NewOrderRepository(db)
	payments := NewPaymentRepository(db)
	noop := func(o *domain.Order) ([]domain.OutboxEvent, error) { return nil, nil }
	settle := func(token string, st domain.AttemptStatus) (*domain.PaymentAttempt, error) {
		a, _, err := payments.Settle(ctx, repository.Settlement{Token: token, Status: st, SettledAt: time.Now().UTC()}, noop)
		return a, err
	}

	t.Run("unknown token", func(t *testing.T) {
		_, err := settle("missing", domain.AttemptSucceeded)
		assert.ErrorIs(t, err, domain.ErrUnknownCorrelationToken)
	})

	t.Run("settles once", func(t *testing.T) {
		o := seedOrder(t, orders, "alice", "5.99")
		seedAttempt(t, payments, o.ID, "tok-once", time.Now().UTC())

		a, err := settle("tok-once", domain.AttemptSucceeded)
		require.NoError(t, err)
		assert.Equal(t, domain.AttemptSucceeded, a.Status)
		require.NotNil(t, a.SettledAt)

		_, err = settle("tok-once", domain.AttemptFailed)
		assert.ErrorIs(t, err, domain.ErrAlreadySettled)
	})

	t.Run("one success per order", func(t *testing.T) {
		o := seedOrder(t, orders, "bob", "5.99")
		seedAttempt(t, payments, o.ID, "tok-a", time.Now().UTC())
		seedAttempt(t, payments, o.ID, "tok-b", time.Now().UTC())

		_, err := settle("tok-a", domain.AttemptSucceeded)
		require.NoError(t, err)
		_, err = settle("tok-b", domain.AttemptSucceeded)
		assert.ErrorIs(t, err, domain.ErrAlreadyPaid)

		a, err := payments.FindByToken(ctx, "tok-b")
		require.NoError(t, err)
		assert.Equal(t, domain.AttemptPending, a.Status)
	})

	t.Run("concurrent settlements", func(t *testing.T) {
		o := seedOrder(t, orders, "carol", "5.99")
		seedAttempt(t, payments, o.ID, "tok-race", time.Now().UTC())

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			settled int
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := settle("tok-race", domain.AttemptSucceeded); err == nil {
					mu.Lock()
					settled++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, settled)
	})

	t.Run("gateway reference", func(t *testing.T) {
		o := seedOrder(t, orders, "dave", "5.99")
		seedAttempt(t, payments, o.ID, "tok-ref", time.Now().UTC())
		require.NoError(t, payments.SetGatewayReference(ctx, "tok-ref", "ws_CO_1"))

		a, err := payments.FindByToken(ctx, "tok-ref")
		require.NoError(t, err)
		assert.Equal(t, "ws_CO_1", a.GatewayReference)
	})
}

func TestPaymentRepository_ListStalePending(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	orders := NewOrderRepository(db)
	payments := NewPaymentRepository(db)
	now := time.Now().UTC()

	o := seedOrder(t, orders, "alice", "5.99")
	seedAttempt(t, payments, o.ID, "old", now.Add(-10*time.Minute))
	seedAttempt(t, payments, o.ID, "fresh", now)

	paid := seedOrder(t, orders, "bob", "5.99")
	seedAttempt(t, payments, paid.ID, "old-paid", now.Add(-10*time.Minute))
	_, err := orders.Update(ctx, paid.ID, func(o *domain.Order) ([]domain.OutboxEvent, error) {
		o.PaymentStatus = domain.PaymentCompleted
		return nil, nil
	})
	require.NoError(t, err)

	stale, err := payments.ListStalePending(ctx, now.Add(-time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "old", stale[0].CorrelationToken)
}

func TestOutboxRepository(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewOutboxRepository(db)

	events := make([]domain.OutboxEvent, 3)
	for i := range events {
		e, err := domain.NewOutboxEvent(domain.EventOrderCreated, uint64(i+1), domain.OrderCreatedEvent{OrderID: uint64(i + 1)})
		require.NoError(t, err)
		events[i] = e
	}
	require.NoError(t, db.Create(&events).Error)

	batch, err := repo.FetchPending(ctx, 10, 2)
	require.NoError(t, err)
	require.Len(t, batch, 3)

	require.NoError(t, repo.MarkSent(ctx, []uint64{batch[0].ID}))
	require.NoError(t, repo.MarkFailed(ctx, batch[1].ID, "broker down"))
	require.NoError(t, repo.MarkFailed(ctx, batch[2].ID, "broker down"))
	require.NoError(t, repo.MarkFailed(ctx, batch[2].ID, "broker down"))

	batch, err = repo.FetchPending(ctx, 10, 2)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, domain.OutboxFailed, batch[0].Status)
	assert.Equal(t, 1, batch[0].RetryCount)
	require.NotNil(t, batch[0].LastError)
	assert.Equal(t, "broker down", *batch[0].LastError)

	require.NoError(t, repo.MarkSent(ctx, nil))
}

func TestPaymentRepository_CreateAttempt_LiveAttemptBlocks(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	orders := NewOrderRepository(db)
	payments := NewPaymentRepository(db)
	noop := func(o *domain.Order) ([]domain.OutboxEvent, error) { return nil, nil }
	now := time.Now().UTC()

	o := seedOrder(t, orders, "alice", "5.99")
	seedAttempt(t, payments, o.ID, "first", now.Add(-time.Minute))

	attempt := func(token string) *domain.PaymentAttempt {
		return &domain.PaymentAttempt{
			OrderID:          o.ID,
			CorrelationToken: token,
			Amount:           decimal.RequireFromString("5.99"),
			Phone:            "254712345678",
			Status:           domain.AttemptPending,
			RequestedAt:      now,
		}
	}

	_, err := payments.CreateAttempt(ctx, attempt("second"), now.Add(-2*time.Minute), noop)
	assert.ErrorIs(t, err, domain.ErrPaymentInProgress)
	got, err := payments.FindByToken(ctx, "second")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = payments.CreateAttempt(ctx, attempt("third"), now.Add(-30*time.Second), noop)
	require.NoError(t, err, "attempts older than the window no longer block")

	_, _, err = payments.Settle(ctx, repository.Settlement{Token: "third", Status: domain.AttemptFailed, SettledAt: now}, noop)
	require.NoError(t, err)
	_, err = payments.CreateAttempt(ctx, attempt("fourth"), now.Add(-30*time.Second), noop)
	require.NoError(t, err, "settled attempts never block")
}

func TestPaymentRepository_ListStalePending_RotatesChecked(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	orders := NewOrderRepository(db)
	payments := NewPaymentRepository(db)
	now := time.Now().UTC()

	for i, token := range []string{"a", "b", "c"} {
		o := seedOrder(t, orders, "cust-"+token, "5.99")
		seedAttempt(t, payments, o.ID, token, now.Add(time.Duration(i-10)*time.Minute))
	}
	cutoff := now.Add(-time.Minute)
	tokens := func(list []domain.PaymentAttempt) []string {
		out := make([]string, 0, len(list))
		for _, a := range list {
			out = append(out, a.CorrelationToken)
		}
		return out
	}

	batch, err := payments.ListStalePending(ctx, cutoff, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, tokens(batch))

	require.NoError(t, payments.MarkChecked(ctx, []uint64{batch[0].ID, batch[1].ID}, now))
	batch, err = payments.ListStalePending(ctx, cutoff, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a"}, tokens(batch))

	require.NoError(t, payments.MarkChecked(ctx, []uint64{batch[0].ID}, now.Add(time.Second)))
	require.NoError(t, payments.MarkChecked(ctx, []uint64{batch[1].ID}, now.Add(2*time.Second)))
	batch, err = payments.ListStalePending(ctx, cutoff, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, tokens(batch))

	require.NoError(t, payments.MarkChecked(ctx, nil, now))
}
