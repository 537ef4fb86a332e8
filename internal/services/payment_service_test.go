package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"grocery-service/internal/domain"
	"grocery-service/internal/mocks"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestPaymentService_InitiatePayment_Validation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	p := h.seedProduct(t, "Sugar", "3.00", 10)
	o := h.placeOrder(t, TestCustomer, map[*domain.Product]int64{p: 2})

	tests := []struct {
		name    string
		orderID uint64
		phone   string
		amount  string
		wantErr error
	}{
		{name: "short phone", orderID: o.ID, phone: "123", amount: "8.99", wantErr: domain.ErrInvalidChannelIdentifier},
		{name: "landline", orderID: o.ID, phone: "0201234567", amount: "8.99", wantErr: domain.ErrInvalidChannelIdentifier},
		{name: "amount mismatch", orderID: o.ID, phone: TestPhone, amount: "9.00", wantErr: domain.ErrAmountMismatch},
		{name: "missing order", orderID: 999, phone: TestPhone, amount: "8.99", wantErr: domain.ErrOrderNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := h.payment.InitiatePayment(ctx, TestCustomer, tt.orderID, tt.phone, decimal.RequireFromString(tt.amount))
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, a)
		})
	}

	t.Run("another customer's order", func(t *testing.T) {
		_, err := h.payment.InitiatePayment(ctx, TestOtherCustomer, o.ID, TestPhone, o.TotalAmount)
		assert.ErrorIs(t, err, domain.ErrAccessDenied)
	})

	assert.Zero(t, h.attemptCount(t, o.ID))
	got, err := h.order.GetOrder(ctx, TestCustomer, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPending, got.PaymentStatus)
}

func TestPaymentService_PhoneFormats(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	p := h.seedProduct(t, "Beans", "1.00", 10)

	for _, phone := range []string{"0712345678", "254712345678", "+254 712 345 678", "712345678", "0112345678"} {
		o := h.placeOrder(t, TestCustomer, map[*domain.Product]int64{p: 1})
		a, err := h.payment.InitiatePayment(ctx, TestCustomer, o.ID, phone, o.TotalAmount)
		require.NoError(t, err, phone)
		assert.Len(t, a.Phone, 12)
		assert.Equal(t, "254", a.Phone[:3])

		req, ok := h.gateway.Requested(a.CorrelationToken)
		require.True(t, ok)
		assert.Equal(t, a.Phone, req.Phone)
		assert.Contains(t, req.CallbackURL, "sig=")
	}
}

func TestPaymentService_ConfirmPayment(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	p := h.seedProduct(t, "Butter", "3.00", 10)

	t.Run("unknown token", func(t *testing.T) {
		_, err := h.payment.ConfirmPayment(ctx, "no-such-token", domain.OutcomeSuccess, "")
		assert.ErrorIs(t, err, domain.ErrUnknownCorrelationToken)
	})

	t.Run("unknown outcome is not a settlement", func(t *testing.T) {
		_, err := h.payment.ConfirmPayment(ctx, "whatever", domain.OutcomeUnknown, "")
		assert.ErrorIs(t, err, domain.ErrInvalidOutcome)
	})

	t.Run("settled attempts stay settled", func(t *testing.T) {
		o := h.placeOrder(t, TestCustomer, map[*domain.Product]int64{p: 1})
		a, err := h.payment.InitiatePayment(ctx, TestCustomer, o.ID, TestPhone, o.TotalAmount)
		require.NoError(t, err)

		settled, err := h.payment.ConfirmPayment(ctx, a.CorrelationToken, domain.OutcomeSuccess, "ok")
		require.NoError(t, err)
		assert.Equal(t, domain.AttemptSucceeded, settled.Status)
		require.NotNil(t, settled.SettledAt)

		for _, outcome := range []domain.Outcome{domain.OutcomeSuccess, domain.OutcomeFailure} {
			_, err := h.payment.ConfirmPayment(ctx, a.CorrelationToken, outcome, "late")
			assert.ErrorIs(t, err, domain.ErrAlreadySettled)
		}

		got, err := h.order.GetOrder(ctx, TestCustomer, o.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.PaymentCompleted, got.PaymentStatus)
		assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Payments.WithLabelValues("success")))
	})

	t.Run("failure then retry", func(t *testing.T) {
		o := h.placeOrder(t, TestCustomer, map[*domain.Product]int64{p: 1})
		first, err := h.payment.InitiatePayment(ctx, TestCustomer, o.ID, TestPhone, o.TotalAmount)
		require.NoError(t, err)

		_, err = h.payment.ConfirmPayment(ctx, first.CorrelationToken, domain.OutcomeFailure, "Request cancelled by user")
		require.NoError(t, err)
		got, err := h.order.GetOrder(ctx, TestCustomer, o.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.PaymentFailed, got.PaymentStatus)

		_, err = h.payment.ConfirmPayment(ctx, first.CorrelationToken, domain.OutcomeSuccess, "late")
		assert.ErrorIs(t, err, domain.ErrAlreadySettled)

		second, err := h.payment.InitiatePayment(ctx, TestCustomer, o.ID, TestPhone, o.TotalAmount)
		require.NoError(t, err)
		got, err = h.order.GetOrder(ctx, TestCustomer, o.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.PaymentProcessing, got.PaymentStatus)
		assert.Equal(t, second.CorrelationToken, got.PaymentReference)

		_, err = h.payment.ConfirmPayment(ctx, second.CorrelationToken, domain.OutcomeSuccess, "ok")
		require.NoError(t, err)

		_, err = h.payment.InitiatePayment(ctx, TestCustomer, o.ID, TestPhone, o.TotalAmount)
		assert.ErrorIs(t, err, domain.ErrAlreadyPaid)
	})
}

func TestPaymentService_AtMostOneSuccessPerOrder(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	p := h.seedProduct(t, "Jam", "4.00", 10)
	o := h.placeOrder(t, TestCustomer, map[*domain.Product]int64{p: 1})

	// each prompt is initiated after the previous one has gone quiet
	start := time.Now().UTC()
	var tokens []string
	for i := 0; i < 3; i++ {
		at := start.Add(time.Duration(i) * 3 * time.Minute)
		h.payment.now = func() time.Time { return at }
		a, err := h.payment.InitiatePayment(ctx, TestCustomer, o.ID, TestPhone, o.TotalAmount)
		require.NoError(t, err)
		tokens = append(tokens, a.CorrelationToken)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for _, tok := range tokens {
		wg.Add(1)
		go func(tok string) {
			defer wg.Done()
			_, err := h.payment.ConfirmPayment(ctx, tok, domain.OutcomeSuccess, "ok")
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, domain.ErrAlreadyPaid)
		}(tok)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	var n int64
	require.NoError(t, h.db.Model(&domain.PaymentAttempt{}).
		Where("order_id = ? AND status = ?", o.ID, domain.AttemptSucceeded).Count(&n).Error)
	assert.EqualValues(t, 1, n)
}

func TestPaymentService_InitiatePayment_PromptInProgress(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	p := h.seedProduct(t, "Honey", "6.00", 10)
	o := h.placeOrder(t, TestCustomer, map[*domain.Product]int64{p: 1})
	start := time.Now().UTC()
	h.payment.now = func() time.Time { return start }

	first, err := h.payment.InitiatePayment(ctx, TestCustomer, o.ID, TestPhone, o.TotalAmount)
	require.NoError(t, err)

	h.payment.now = func() time.Time { return start.Add(30 * time.Second) }
	_, err = h.payment.InitiatePayment(ctx, TestCustomer, o.ID, TestPhone, o.TotalAmount)
	assert.ErrorIs(t, err, domain.ErrPaymentInProgress)
	assert.EqualValues(t, 1, h.attemptCount(t, o.ID))

	h.payment.now = func() time.Time { return start.Add(3 * time.Minute) }
	second, err := h.payment.InitiatePayment(ctx, TestCustomer, o.ID, TestPhone, o.TotalAmount)
	require.NoError(t, err, "a prompt older than the window no longer blocks")
	assert.NotEqual(t, first.CorrelationToken, second.CorrelationToken)

	_, err = h.payment.ConfirmPayment(ctx, second.CorrelationToken, domain.OutcomeFailure, "Request cancelled by user")
	require.NoError(t, err)
	_, err = h.payment.InitiatePayment(ctx, TestCustomer, o.ID, TestPhone, o.TotalAmount)
	require.NoError(t, err, "a settled prompt never blocks a retry")
}

func TestPaymentService_ConcurrentConfirmationsOfOneToken(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	p := h.seedProduct(t, "Yogurt", "2.50", 10)
	o := h.placeOrder(t, TestCustomer, map[*domain.Product]int64{p: 1})
	a, err := h.payment.InitiatePayment(ctx, TestCustomer, o.ID, TestPhone, o.TotalAmount)
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		settled int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcome := domain.OutcomeSuccess
			if i%2 == 1 {
				outcome = domain.OutcomeFailure
			}
			if _, err := h.payment.ConfirmPayment(ctx, a.CorrelationToken, outcome, ""); err == nil {
				mu.Lock()
				settled++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, domain.ErrAlreadySettled)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, settled)
}

func TestPaymentService_CancelledOrder(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	p := h.seedProduct(t, "Lentils", "3.00", 10)
	o := h.placeOrder(t, TestCustomer, map[*domain.Product]int64{p: 1})
	a, err := h.payment.InitiatePayment(ctx, TestCustomer, o.ID, TestPhone, o.TotalAmount)
	require.NoError(t, err)

	_, err = h.order.UpdateStatus(ctx, TestAdmin, o.ID, "cancelled")
	require.NoError(t, err)

	_, err = h.payment.InitiatePayment(ctx, TestCustomer, o.ID, TestPhone, o.TotalAmount)
	assert.ErrorIs(t, err, domain.ErrOrderCancelled)

	settled, err := h.payment.ConfirmPayment(ctx, a.CorrelationToken, domain.OutcomeSuccess, "late")
	require.NoError(t, err)
	assert.True(t, settled.Disregarded)

	got, err := h.order.GetOrder(ctx, TestCustomer, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, got.Status)
	assert.Equal(t, domain.PaymentCompleted, got.PaymentStatus)
}

func TestPaymentService_GatewayFailureLeavesAttemptPending(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	p := h.seedProduct(t, "Maize flour", "3.00", 10)
	o := h.placeOrder(t, TestCustomer, map[*domain.Product]int64{p: 1})

	gw := new(mocks.MockGateway)
	gw.On("RequestCharge", mock.Anything, mock.Anything).Return(nil, context.DeadlineExceeded)
	log, _ := test.NewNullLogger()
	svc := NewPaymentService(h.payments, h.orders, gw, nil, log, PaymentConfig{GatewayTimeout: 50 * time.Millisecond})

	a, err := svc.InitiatePayment(ctx, TestCustomer, o.ID, TestPhone, o.TotalAmount)
	assert.Nil(t, a)
	assert.ErrorIs(t, err, domain.ErrUpstream)
	assert.Equal(t, domain.KindUpstream, domain.KindOf(err))

	var attempts []domain.PaymentAttempt
	require.NoError(t, h.db.Where("order_id = ?", o.ID).Find(&attempts).Error)
	require.Len(t, attempts, 1)
	assert.Equal(t, domain.AttemptPending, attempts[0].Status)

	got, err := h.order.GetOrder(ctx, TestCustomer, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentProcessing, got.PaymentStatus)
	gw.AssertExpectations(t)
}

func TestPaymentService_PaymentStatus(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	p := h.seedProduct(t, "Spinach", "1.50", 10)
	o := h.placeOrder(t, TestCustomer, map[*domain.Product]int64{p: 1})
	a, err := h.payment.InitiatePayment(ctx, TestCustomer, o.ID, TestPhone, o.TotalAmount)
	require.NoError(t, err)

	got, err := h.payment.PaymentStatus(ctx, TestCustomer, a.CorrelationToken)
	require.NoError(t, err)
	assert.Equal(t, domain.AttemptPending, got.Status)
	assert.NotEmpty(t, got.GatewayReference)

	_, err = h.payment.PaymentStatus(ctx, TestOtherCustomer, a.CorrelationToken)
	assert.ErrorIs(t, err, domain.ErrAccessDenied)

	_, err = h.payment.PaymentStatus(ctx, TestAdmin, a.CorrelationToken)
	assert.NoError(t, err)

	_, err = h.payment.PaymentStatus(ctx, TestCustomer, "nope")
	assert.True(t, errors.Is(err, domain.ErrUnknownCorrelationToken))
}
