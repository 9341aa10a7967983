package message_broaker

import (
	"context"
	"errors"
	"sync"
)

var ErrBrokerClosed = errors.New("message broker closed")

// Message is one published message as recorded by MemoryBroker.
type Message struct {
	RoutingKey string
	Body       []byte
}

// MemoryBroker keeps published messages in process. It backs development runs
// without RabbitMQ and tests.
type MemoryBroker struct {
	mu          sync.Mutex
	messages    []Message
	subscribers []chan []byte
	closed      bool
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{}
}

func (b *MemoryBroker) Publish(ctx context.Context, routingKey string, message []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBrokerClosed
	}
	b.messages = append(b.messages, Message{RoutingKey: routingKey, Body: message})
	for _, sub := range b.subscribers {
		select {
		case sub <- message:
		case <-ctx.Done():
			return ctx.Err()
		default:
			// slow subscriber, drop
		}
	}
	return nil
}

func (b *MemoryBroker) Consume(ctx context.Context) (<-chan []byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBrokerClosed
	}
	ch := make(chan []byte, 100)
	b.subscribers = append(b.subscribers, ch)

	go func() {
		<-ctx.Done()
		b.unsubscribe(ch)
	}()
	return ch, nil
}

func (b *MemoryBroker) unsubscribe(ch chan []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, sub := range b.subscribers {
		if sub == ch {
			b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
			close(ch)
			return
		}
	}
}

// Messages returns a copy of everything published so far.
func (b *MemoryBroker) Messages() []Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Message, len(b.messages))
	copy(out, b.messages)
	return out
}

func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	for _, sub := range b.subscribers {
		close(sub)
	}
	b.subscribers = nil
	return nil
}
