// Package events fans lifecycle events out to in-process subscribers.
package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/hylla/opportune/internal/app"
)

// ErrClosed is returned when publishing to a closed bus.
var ErrClosed = errors.New("event bus closed")

// Wildcard subscribes to every event name.
const Wildcard app.EventName = "*"

// Handler receives events synchronously, in publish order.
type Handler func(context.Context, app.Event)

// Bus is a publish-subscribe hub implementing app.EventPublisher.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[app.EventName][]*subscription
	handlers    map[app.EventName][]Handler
	bufferSize  int
	closed      bool
	dropped     atomic.Int64
}

type subscription struct {
	ch chan app.Event
}

// Option configures the Bus.
type Option func(*Bus)

// WithBufferSize sets the channel buffer size for new subscriptions.
func WithBufferSize(size int) Option {
	return func(b *Bus) {
		if size > 0 {
			b.bufferSize = size
		}
	}
}

// New creates a new Bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		subscribers: map[app.EventName][]*subscription{},
		handlers:    map[app.EventName][]Handler{},
		bufferSize:  64,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe returns a channel receiving events named name and a func that ends the
// subscription. Events are dropped for subscribers whose buffer is full.
func (b *Bus) Subscribe(name app.EventName) (<-chan app.Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &subscription{ch: make(chan app.Event, b.bufferSize)}
	if b.closed {
		close(sub.ch)
		return sub.ch, func() {}
	}
	b.subscribers[name] = append(b.subscribers[name], sub)

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() { b.unsubscribe(name, sub) })
	}
}

func (b *Bus) unsubscribe(name app.EventName, sub *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subscribers[name]
	for i, s := range subs {
		if s == sub {
			b.subscribers[name] = append(subs[:i:i], subs[i+1:]...)
			close(s.ch)
			return
		}
	}
}

// On registers a handler for events named name.
func (b *Bus) On(name app.EventName, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[name] = append(b.handlers[name], handler)
}

// Publish delivers ev to handlers and subscribers.
func (b *Bus) Publish(ctx context.Context, ev app.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}

	for _, name := range []app.EventName{ev.Name, Wildcard} {
		for _, handler := range b.handlers[name] {
			handler(ctx, ev)
		}
		for _, sub := range b.subscribers[name] {
			select {
			case sub.ch <- ev:
			default:
				b.dropped.Add(1)
			}
		}
	}
	return nil
}

// Dropped reports how many deliveries were skipped because a subscriber was full.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

// Close closes all subscriber channels. Later publishes fail with ErrClosed.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, subs := range b.subscribers {
		for _, sub := range subs {
			close(sub.ch)
		}
	}
	b.subscribers = map[app.EventName][]*subscription{}
	b.handlers = map[app.EventName][]Handler{}
}
