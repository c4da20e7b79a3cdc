package relay

import (
	"context"
	"sync"

	"github.com/zeusync/sheetsync/internal/core/protocol"
)

// Broker fans the messages of a document out to every relay node serving it.
type Broker interface {
	Publish(ctx context.Context, documentID string, msg protocol.Message) error
	// Subscribe calls handler for every message published on the document
	// until the returned cancel function runs.
	Subscribe(ctx context.Context, documentID string, handler func(protocol.Message)) (cancel func(), err error)
}

// LocalBroker delivers messages inside the process, synchronously and in
// publication order.
type LocalBroker struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[string]map[uint64]func(protocol.Message)
}

var _ Broker = (*LocalBroker)(nil)

func NewLocalBroker() *LocalBroker {
	return &LocalBroker{handlers: make(map[string]map[uint64]func(protocol.Message))}
}

func (b *LocalBroker) Publish(_ context.Context, documentID string, msg protocol.Message) error {
	b.mu.RLock()
	handlers := make([]func(protocol.Message), 0, len(b.handlers[documentID]))
	for _, h := range b.handlers[documentID] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(msg)
	}
	return nil
}

func (b *LocalBroker) Subscribe(_ context.Context, documentID string, handler func(protocol.Message)) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	if b.handlers[documentID] == nil {
		b.handlers[documentID] = make(map[uint64]func(protocol.Message))
	}
	b.handlers[documentID][id] = handler

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.handlers[documentID], id)
			if len(b.handlers[documentID]) == 0 {
				delete(b.handlers, documentID)
			}
		})
	}, nil
}
