package realtime

import (
	"context"
	"sync"
	"sync/atomic"

	"campuschat/internal/metrics"
)

// DefaultBuffer is the per-subscriber channel size.
const DefaultBuffer = 64

// Bus is the in-process Feed. A subscriber that falls behind loses events
// instead of blocking publishers.
type Bus struct {
	mu      sync.RWMutex
	subs    map[int]*subscriber
	next    int
	buf     int
	dropped atomic.Uint64
}

type subscriber struct {
	topics []string
	ch     chan Event
}

// NewBus creates a bus whose subscribers buffer buf events.
func NewBus(buf int) *Bus {
	if buf <= 0 {
		buf = DefaultBuffer
	}
	return &Bus{subs: make(map[int]*subscriber), buf: buf}
}

// Publish delivers evt to every matching subscriber without blocking.
func (b *Bus) Publish(_ context.Context, evt Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		if !sub.wants(evt.Topic) {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			b.dropped.Add(1)
			metrics.RecordDroppedEvent("bus")
		}
	}
	return nil
}

// Subscribe registers interest in topics (all topics when none are given).
func (b *Bus) Subscribe(ctx context.Context, topics ...string) (*Subscription, error) {
	sub := &subscriber{topics: topics, ch: make(chan Event, b.buf)}

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = sub
	b.mu.Unlock()

	subCtx, cancel := context.WithCancel(ctx)
	go func() {
		<-subCtx.Done()
		b.mu.Lock()
		delete(b.subs, id)
		close(sub.ch)
		b.mu.Unlock()
	}()

	return &Subscription{events: sub.ch, cancel: cancel}, nil
}

// subscribers returns the number of live subscriptions.
func (b *Bus) subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close is a no-op; subscriptions end with their contexts.
func (b *Bus) Close() error { return nil }

func (s *subscriber) wants(topic string) bool {
	if len(s.topics) == 0 {
		return true
	}
	for _, t := range s.topics {
		if Matches(t, topic) {
			return true
		}
	}
	return false
}
