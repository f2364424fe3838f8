// Package events provides an in-memory event bus for tool calls and skill runs.
package events

import (
	"slices"
	"sync"
	"sync/atomic"
)

// Subscriber receives events on the dispatch goroutine and must not block.
type Subscriber func(Event)

type subscription struct {
	id      uint64
	filter  Query
	handler Subscriber
}

// Bus fans published events out to subscribers, in publish order, from a
// single dispatch goroutine. Publishing never blocks: when the queue is full
// the event is counted as dropped.
type Bus struct {
	queue   chan Event
	history *History
	stop    chan struct{}
	dropped atomic.Uint64

	mu     sync.RWMutex
	subs   []*subscription
	lastID uint64
	closed bool
}

// NewBus returns a running bus whose queue and history hold bufferSize events.
func NewBus(bufferSize int) *Bus {
	bufferSize = max(bufferSize, 1)
	b := &Bus{
		queue:   make(chan Event, bufferSize),
		history: NewHistory(bufferSize),
		stop:    make(chan struct{}),
	}
	go b.dispatch()
	return b
}

func (b *Bus) dispatch() {
	for {
		select {
		case <-b.stop:
			return
		case e := <-b.queue:
			b.history.Add(e)
			b.mu.RLock()
			subs := slices.Clone(b.subs)
			b.mu.RUnlock()
			for _, s := range subs {
				if s.filter.Match(e) {
					s.handler(e)
				}
			}
		}
	}
}

// Publish queues e for delivery. It is a no-op on a closed bus.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	select {
	case b.queue <- e:
	default:
		b.dropped.Add(1)
	}
}

// Dropped is the number of events discarded because the queue was full.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Watch delivers events matching q (its Limit is ignored) to handler until
// the returned cancel func is called.
func (b *Bus) Watch(q Query, handler Subscriber) (cancel func()) {
	b.mu.Lock()
	b.lastID++
	id := b.lastID
	b.subs = append(b.subs, &subscription{id: id, filter: q, handler: handler})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		b.subs = slices.DeleteFunc(b.subs, func(s *subscription) bool { return s.id == id })
		b.mu.Unlock()
	}
}

// Subscribe delivers events of the given types, or all events when none are
// given.
func (b *Bus) Subscribe(handler Subscriber, types ...EventType) func() {
	return b.Watch(Query{Types: types}, handler)
}

// SubscribeChan is Subscribe over a buffered channel. A slow reader loses
// events instead of stalling the bus. The returned func unsubscribes and
// closes the channel; it is safe to call more than once.
func (b *Bus) SubscribeChan(bufSize int, types ...EventType) (<-chan Event, func()) {
	ch := make(chan Event, bufSize)
	var (
		mu   sync.Mutex
		done bool
	)
	cancel := b.Subscribe(func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		if done {
			return
		}
		select {
		case ch <- e:
		default:
		}
	}, types...)

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			cancel()
			mu.Lock()
			done = true
			close(ch)
			mu.Unlock()
		})
	}
}

// Find returns retained events matching q, oldest first.
func (b *Bus) Find(q Query) []Event {
	return b.history.Find(q)
}

// History returns up to limit of the most recent events, oldest first.
func (b *Bus) History(limit int) []Event {
	if limit <= 0 {
		return nil
	}
	return b.history.Find(Query{Limit: limit})
}

// Close stops dispatching. Later publishes are ignored.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.stop)
}
