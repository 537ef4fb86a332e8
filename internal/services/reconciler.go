package services

import (
	"context"
	"errors"
	"time"

	"grocery-service/internal/domain"
	"grocery-service/internal/infra/mpesa"
	"grocery-service/internal/repository"

	"github.com/sirupsen/logrus"
)

// Reconciler asks the gateway about attempts that have been pending for too
// long and settles those with a definite answer. Attempts the gateway
// cannot decide stay pending.
type Reconciler struct {
	payments repository.PaymentRepository
	gateway  mpesa.Gateway
	confirm  *PaymentService
	log      logrus.FieldLogger
	after    time.Duration
	interval time.Duration
	batch    int
	now      func() time.Time
}

func NewReconciler(payments repository.PaymentRepository, gateway mpesa.Gateway, confirm *PaymentService, log logrus.FieldLogger, after, interval time.Duration) *Reconciler {
	return &Reconciler{
		payments: payments,
		gateway:  gateway,
		confirm:  confirm,
		log:      log,
		after:    after,
		interval: interval,
		batch:    50,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (r *Reconciler) Run(ctx context.Context) error {
	t := time.NewTicker(r.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("payment reconciler stopping")
			return nil
		case <-t.C:
			if _, err := r.Sweep(ctx); err != nil {
				r.log.WithError(err).Error("payment reconcile sweep failed")
			}
		}
	}
}

// Sweep reconciles one batch and returns how many attempts were settled.
// Every attempt in the batch is stamped as checked before the gateway is
// asked, so the next sweep moves on to the others.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	now := r.now()
	stale, err := r.payments.ListStalePending(ctx, now.Add(-r.after), r.batch)
	if err != nil {
		return 0, err
	}

	ids := make([]uint64, 0, len(stale))
	for _, a := range stale {
		ids = append(ids, a.ID)
	}
	if err := r.payments.MarkChecked(ctx, ids, now); err != nil {
		return 0, err
	}

	settled := 0
	for _, a := range stale {
		log := r.log.WithFields(logrus.Fields{"order_id": a.OrderID, "correlation_token": a.CorrelationToken})

		st, err := r.gateway.QueryStatus(ctx, a.CorrelationToken)
		if err != nil {
			log.WithError(err).Warn("payment status query failed")
			continue
		}
		if st.Outcome == domain.OutcomeUnknown {
			continue
		}

		_, err = r.confirm.ConfirmPayment(ctx, a.CorrelationToken, st.Outcome, st.ResultDesc)
		switch {
		case err == nil:
			settled++
		case errors.Is(err, domain.ErrAlreadySettled):
		default:
			log.WithError(err).Warn("reconcile settlement failed")
		}
	}
	return settled, nil
}
