package kafka

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

// Writer publishes status events keyed by order id, so all events of one
// order land on the same partition in order.
type Writer struct {
	w *kafka.Writer
}

func NewWriter(brokers []string, topic string) *Writer {
	return &Writer{w: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}}
}

func (w *Writer) Publish(ctx context.Context, routingKey, id string, payload []byte, key string) error {
	return w.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(routingKey)},
			{Key: "event_id", Value: []byte(id)},
		},
	})
}

func (w *Writer) Close() error {
	return w.w.Close()
}
