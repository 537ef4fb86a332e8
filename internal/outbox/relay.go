package outbox

import (
	"context"
	"time"

	"grocery-service/internal/domain"
	"grocery-service/internal/metrics"
	"grocery-service/internal/repository"

	"github.com/sirupsen/logrus"
)

type Relay struct {
	log        logrus.FieldLogger
	store      repository.OutboxRepository
	sink       Sink
	metrics    *metrics.Metrics
	interval   time.Duration
	batchSize  int
	maxRetries int
}

func NewRelay(log logrus.FieldLogger, store repository.OutboxRepository, sink Sink, m *metrics.Metrics, interval time.Duration) *Relay {
	return &Relay{
		log:        log,
		store:      store,
		sink:       sink,
		metrics:    m,
		interval:   interval,
		batchSize:  100,
		maxRetries: 10,
	}
}

func (r *Relay) Run(ctx context.Context) error {
	t := time.NewTicker(r.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("outbox relay stopping")
			return nil
		case <-t.C:
			if _, err := r.Flush(ctx); err != nil {
				r.log.WithError(err).Error("outbox relay batch failed")
			}
		}
	}
}

// Flush sends one batch and returns how many events were delivered. A
// failed send is recorded against the event and retried on a later batch.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	events, err := r.store.FetchPending(ctx, r.batchSize, r.maxRetries)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}

	ids := make([]uint64, 0, len(events))
	for _, e := range events {
		if err := r.sink.Send(ctx, e); err != nil {
			r.log.WithFields(logrus.Fields{"event_id": e.ID, "type": e.Type}).WithError(err).Warn("outbox send failed")
			r.observe(e, "failed")
			if err := r.store.MarkFailed(ctx, e.ID, err.Error()); err != nil {
				r.log.WithError(err).Error("outbox mark failed")
			}
			continue
		}
		r.observe(e, "sent")
		ids = append(ids, e.ID)
	}

	if err := r.store.MarkSent(ctx, ids); err != nil {
		return 0, err
	}
	r.log.WithField("count", len(ids)).Debug("outbox batch sent")
	return len(ids), nil
}

func (r *Relay) observe(e domain.OutboxEvent, result string) {
	if r.metrics == nil {
		return
	}
	r.metrics.OutboxPublished.WithLabelValues(string(e.Type), result).Inc()
}
