package rabbitmq

import "context"

type PublisherInterface interface {
	Publish(ctx context.Context, routingKey, id string, payload []byte) error
}

var _ PublisherInterface = (*Publisher)(nil)
