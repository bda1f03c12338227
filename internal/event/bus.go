// Package event provides the in-process pub/sub bus connecting the
// plugin host's subsystems. Delivery is synchronous and in subscription
// order; a panicking handler is contained and counted, never fatal.
package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Topic identifies an event stream. Topics are exact-match strings.
type Topic string

// TopicProvider is implemented by every event type.
type TopicProvider interface {
	EventTopic() Topic
}

// HandlerFunc receives one event. Errors are counted and logged, not
// propagated to the publisher.
type HandlerFunc func(ctx context.Context, event any) error

// ErrNilHandler is returned when subscribing with a nil handler.
var ErrNilHandler = errors.New("event: nil handler")

// ErrInvalidTopic is returned when subscribing to an empty topic.
var ErrInvalidTopic = errors.New("event: empty topic")

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	id    uint64
	topic Topic
	fn    HandlerFunc
}

// Stats is a snapshot of bus activity.
type Stats struct {
	Published     uint64
	Delivered     uint64
	HandlerErrors uint64
	HandlerPanics uint64
	Subscribers   int
}

// Bus delivers events to topic subscribers.
type Bus struct {
	logger *slog.Logger

	mu     sync.RWMutex
	nextID uint64
	subs   map[Topic][]*Subscription

	published     atomic.Uint64
	delivered     atomic.Uint64
	handlerErrors atomic.Uint64
	handlerPanics atomic.Uint64
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the bus logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) { b.logger = logger }
}

// NewBus creates an empty bus.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		logger: slog.Default(),
		subs:   make(map[Topic][]*Subscription),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a handler for a topic.
func (b *Bus) Subscribe(topic Topic, fn HandlerFunc) (*Subscription, error) {
	if fn == nil {
		return nil, ErrNilHandler
	}
	if topic == "" {
		return nil, ErrInvalidTopic
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	sub := &Subscription{id: b.nextID, topic: topic, fn: fn}
	b.subs[topic] = append(b.subs[topic], sub)
	return sub, nil
}

// Unsubscribe removes a subscription. Unknown subscriptions are a no-op.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.subs[sub.topic]
	for i, s := range list {
		if s.id == sub.id {
			b.subs[sub.topic] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// Publish delivers an event to every subscriber of its topic, in
// subscription order. Handler errors and panics affect only the
// offending handler.
func (b *Bus) Publish(ctx context.Context, event TopicProvider) {
	topic := event.EventTopic()

	b.mu.RLock()
	list := make([]*Subscription, len(b.subs[topic]))
	copy(list, b.subs[topic])
	b.mu.RUnlock()

	b.published.Add(1)
	for _, sub := range list {
		if err := b.deliver(ctx, sub, event); err != nil {
			b.handlerErrors.Add(1)
			b.logger.Warn("event handler failed", "topic", string(topic), "error", err)
			continue
		}
		b.delivered.Add(1)
	}
}

// deliver runs one handler with panic containment.
func (b *Bus) deliver(ctx context.Context, sub *Subscription, event any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			b.handlerPanics.Add(1)
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return sub.fn(ctx, event)
}

// Stats returns a snapshot of bus counters.
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	subscribers := 0
	for _, list := range b.subs {
		subscribers += len(list)
	}
	b.mu.RUnlock()

	return Stats{
		Published:     b.published.Load(),
		Delivered:     b.delivered.Load(),
		HandlerErrors: b.handlerErrors.Load(),
		HandlerPanics: b.handlerPanics.Load(),
		Subscribers:   subscribers,
	}
}
