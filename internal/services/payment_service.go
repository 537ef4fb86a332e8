package services

import (
	"context"
	"errors"
	"time"

	"grocery-service/internal/auth"
	"grocery-service/internal/domain"
	"grocery-service/internal/infra/mpesa"
	"grocery-service/internal/metrics"
	"grocery-service/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type PaymentConfig struct {
	CallbackURL    string
	CallbackSecret string
	// GatewayTimeout bounds the whole charge request, retries included.
	GatewayTimeout time.Duration
	// PromptWindow is how long a pending attempt blocks a new one for the
	// same order, so the customer never has two prompts open at once.
	PromptWindow time.Duration
}

type PaymentService struct {
	payments repository.PaymentRepository
	orders   repository.OrderRepository
	gateway  mpesa.Gateway
	metrics  *metrics.Metrics
	log      logrus.FieldLogger
	cfg      PaymentConfig
	now      func() time.Time
}

func NewPaymentService(payments repository.PaymentRepository, orders repository.OrderRepository, gateway mpesa.Gateway, m *metrics.Metrics, log logrus.FieldLogger, cfg PaymentConfig) *PaymentService {
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = 15 * time.Second
	}
	if cfg.PromptWindow <= 0 {
		cfg.PromptWindow = 2 * time.Minute
	}
	return &PaymentService{
		payments: payments,
		orders:   orders,
		gateway:  gateway,
		metrics:  m,
		log:      log,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// InitiatePayment records a pending attempt for the order and asks the
// gateway to prompt the customer's phone. The attempt is only settled by
// ConfirmPayment; a gateway failure leaves it pending and is reported as
// domain.ErrUpstream. While an earlier attempt is pending and younger than
// PromptWindow, new attempts fail with domain.ErrPaymentInProgress.
func (s *PaymentService) InitiatePayment(ctx context.Context, user auth.User, orderID uint64, phone string, amount decimal.Decimal) (*domain.PaymentAttempt, error) {
	msisdn, err := domain.NormalizePhone(phone)
	if err != nil {
		return nil, err
	}

	o, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, domain.Wrap(domain.ErrOrderNotFound, "order %d", orderID)
	}
	if !user.CanSee(o.CustomerID) {
		return nil, domain.ErrAccessDenied
	}
	if !amount.Equal(o.TotalAmount) {
		return nil, domain.Wrap(domain.ErrAmountMismatch, "got %s, order total is %s", amount.StringFixed(2), o.TotalAmount.StringFixed(2))
	}

	now := s.now()
	attempt := &domain.PaymentAttempt{
		OrderID:          orderID,
		CorrelationToken: uuid.NewString(),
		Amount:           o.TotalAmount,
		Phone:            msisdn,
		Status:           domain.AttemptPending,
		RequestedAt:      now,
	}

	_, err = s.payments.CreateAttempt(ctx, attempt, now.Add(-s.cfg.PromptWindow), func(o *domain.Order) ([]domain.OutboxEvent, error) {
		switch {
		case o.PaymentStatus == domain.PaymentCompleted:
			return nil, domain.ErrAlreadyPaid
		case o.Status == domain.StatusCancelled:
			return nil, domain.ErrOrderCancelled
		}
		o.PaymentReference = attempt.CorrelationToken
		return paymentTransition(o, domain.PaymentProcessing, now)
	})
	if err != nil {
		return nil, err
	}

	log := s.log.WithFields(logrus.Fields{"order_id": orderID, "correlation_token": attempt.CorrelationToken})

	gctx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	defer cancel()

	resp, err := s.gateway.RequestCharge(gctx, mpesa.ChargeRequest{
		Token:       attempt.CorrelationToken,
		OrderID:     orderID,
		Phone:       msisdn,
		Amount:      attempt.Amount,
		CallbackURL: mpesa.CallbackURL(s.cfg.CallbackURL, s.cfg.CallbackSecret, attempt.CorrelationToken),
	})
	if err != nil {
		log.WithError(err).Warn("charge request failed, attempt left pending")
		return nil, domain.Wrap(domain.ErrUpstream, "correlation token %s", attempt.CorrelationToken)
	}

	attempt.GatewayReference = resp.CheckoutRequestID
	if err := s.payments.SetGatewayReference(ctx, attempt.CorrelationToken, resp.CheckoutRequestID); err != nil {
		log.WithError(err).Warn("store gateway reference failed")
	}
	log.Info("payment initiated")
	return attempt, nil
}

// ConfirmPayment settles the attempt identified by token. Only pending
// attempts can be settled; everything else is domain.ErrAlreadySettled.
// Settlement never moves the order's delivery status.
func (s *PaymentService) ConfirmPayment(ctx context.Context, token string, outcome domain.Outcome, description string) (*domain.PaymentAttempt, error) {
	if !outcome.Valid() {
		return nil, domain.Wrap(domain.ErrInvalidOutcome, "%q", outcome)
	}

	status := domain.AttemptFailed
	if outcome == domain.OutcomeSuccess {
		status = domain.AttemptSucceeded
	}

	now := s.now()
	attempt, order, err := s.payments.Settle(ctx, repository.Settlement{
		Token:       token,
		Status:      status,
		Description: description,
		SettledAt:   now,
	}, func(o *domain.Order) ([]domain.OutboxEvent, error) {
		next := domain.PaymentCompleted
		if status == domain.AttemptFailed {
			if o.PaymentStatus == domain.PaymentCompleted {
				return nil, nil
			}
			next = domain.PaymentFailed
		}
		return paymentTransition(o, next, now)
	})

	log := s.log.WithFields(logrus.Fields{"correlation_token": token, "outcome": outcome})
	if err != nil {
		if errors.Is(err, domain.ErrAlreadySettled) || errors.Is(err, domain.ErrUnknownCorrelationToken) {
			log.WithError(err).Info("settlement rejected")
		}
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.Payments.WithLabelValues(string(outcome)).Inc()
	}
	log = log.WithField("order_id", order.ID)
	if attempt.Disregarded && outcome == domain.OutcomeSuccess {
		log.Warn("payment settled for cancelled order, refund required")
	} else {
		log.Info("payment settled")
	}
	return attempt, nil
}

// PaymentStatus returns the attempt for polling clients.
func (s *PaymentService) PaymentStatus(ctx context.Context, user auth.User, token string) (*domain.PaymentAttempt, error) {
	a, err := s.payments.FindByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, domain.ErrUnknownCorrelationToken
	}
	o, err := s.orders.FindByID(ctx, a.OrderID)
	if err != nil {
		return nil, err
	}
	if o == nil || !user.CanSee(o.CustomerID) {
		return nil, domain.ErrAccessDenied
	}
	return a, nil
}

func paymentTransition(o *domain.Order, next domain.PaymentStatus, at time.Time) ([]domain.OutboxEvent, error) {
	prev := o.PaymentStatus
	if prev == next {
		return nil, nil
	}
	o.PaymentStatus = next
	evt, err := domain.NewOutboxEvent(domain.EventPaymentStatusChanged, o.ID, domain.StatusChangedEvent{
		OrderID:    o.ID,
		CustomerID: o.CustomerID,
		Kind:       domain.EventPaymentStatusChanged,
		OldState:   string(prev),
		NewState:   string(next),
		At:         at,
	})
	if err != nil {
		return nil, err
	}
	return []domain.OutboxEvent{evt}, nil
}
