// Package bus is the in-process event bus (C5): typed pub/sub with filtered
// subscriptions and bounded per-subscriber queues.
package bus

import (
	"sync"
	"sync/atomic"

	"github.com/openfleet/lastmile/internal/domain/event"
)

// defaultQueueSize bounds each subscriber's backlog.
const defaultQueueSize = 64

// EventBus provides pub/sub for dispatch events.
// Thread-safe, supports multiple subscribers with per-subscriber filters.
// Uses buffered channels to prevent blocking publishers; when a subscriber's
// queue is full the oldest queued event is dropped in favor of the new one.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[int]*subscription
	nextID      int
	queueSize   int

	dropped atomic.Int64
}

// Compile-time interface check
var _ event.Bus = (*EventBus)(nil)

type subscription struct {
	id     int
	filter event.Filter
	ch     chan event.Event
}

func (s *subscription) C() <-chan event.Event { return s.ch }
func (s *subscription) ID() int               { return s.id }

// New creates an event bus. queueSize <= 0 falls back to the default.
func New(queueSize int) *EventBus {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &EventBus{
		subscribers: make(map[int]*subscription),
		queueSize:   queueSize,
	}
}

// Publish delivers the event to every matching subscriber. Never blocks: a
// full subscriber queue sheds its oldest event to make room, keeping the feed
// fresh for slow consumers.
func (b *EventBus) Publish(e event.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscribers {
		if !sub.filter.Matches(e) {
			continue
		}
		for {
			select {
			case sub.ch <- e:
			default:
				// Queue full: drop the oldest queued event and retry.
				select {
				case <-sub.ch:
					b.dropped.Add(1)
				default:
				}
				continue
			}
			break
		}
	}
}

// Subscribe registers a filtered subscription. Caller must Unsubscribe when
// done.
func (b *EventBus) Subscribe(filter event.Filter) event.Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &subscription{
		id:     b.nextID,
		filter: filter,
		ch:     make(chan event.Event, b.queueSize),
	}
	b.subscribers[sub.id] = sub
	return sub
}

// Unsubscribe removes a subscription and closes its channel.
func (b *EventBus) Unsubscribe(sub event.Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	existing, ok := b.subscribers[sub.ID()]
	if !ok {
		return
	}
	delete(b.subscribers, sub.ID())
	close(existing.ch)
}

// SubscriberCount returns the number of active subscriptions.
// Useful for testing and monitoring.
func (b *EventBus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Dropped returns the total number of events shed from full queues.
func (b *EventBus) Dropped() int64 {
	return b.dropped.Load()
}
