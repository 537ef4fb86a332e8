package outbox

import (
	"context"
	"strconv"

	"grocery-service/internal/domain"
	"grocery-service/internal/infra/rabbitmq"
)

// Sink delivers one recorded transition event to subscribers.
type Sink interface {
	Send(ctx context.Context, e domain.OutboxEvent) error
}

type RabbitSink struct {
	pub rabbitmq.PublisherInterface
}

func NewRabbitSink(pub rabbitmq.PublisherInterface) *RabbitSink {
	return &RabbitSink{pub: pub}
}

func (s *RabbitSink) Send(ctx context.Context, e domain.OutboxEvent) error {
	return s.pub.Publish(ctx, string(e.Type), eventID(e), e.Payload)
}

// KeyedPublisher is implemented by the kafka writer.
type KeyedPublisher interface {
	Publish(ctx context.Context, routingKey, id string, payload []byte, key string) error
}

type KafkaSink struct {
	pub KeyedPublisher
}

func NewKafkaSink(pub KeyedPublisher) *KafkaSink {
	return &KafkaSink{pub: pub}
}

// Send keys messages by order so a consumer sees one order's events in order.
func (s *KafkaSink) Send(ctx context.Context, e domain.OutboxEvent) error {
	return s.pub.Publish(ctx, string(e.Type), eventID(e), e.Payload, strconv.FormatUint(e.AggregateID, 10))
}

func eventID(e domain.OutboxEvent) string {
	return strconv.FormatUint(e.ID, 10)
}
