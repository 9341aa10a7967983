package message_broaker

import "context"

// MessageBroker carries notification messages out of the worker process.
// Routing keys are job kinds, such as "task.overdue".
type MessageBroker interface {
	Publish(ctx context.Context, routingKey string, message []byte) error
	Consume(ctx context.Context) (<-chan []byte, error)
	Close() error
}
