package pipeline

import (
	"sync"
	"sync/atomic"

	"github.com/banshee-data/capability-pipeline/internal/inference"
)

// Subscription is a live feed of published results. Results published before
// the subscription was created are never delivered.
type Subscription struct {
	id      uint64
	ch      chan inference.Result
	owner   *broadcaster
	dropped atomic.Uint64
}

// Results returns the receive side of the feed. It is closed by Close or when
// the pipeline shuts down.
func (s *Subscription) Results() <-chan inference.Result { return s.ch }

// Dropped returns how many results were discarded because the buffer was full.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// Close unsubscribes and closes the results channel. Safe to call more than
// once.
func (s *Subscription) Close() { s.owner.remove(s.id) }

// broadcaster fans results out to subscribers without blocking. A slow
// subscriber loses results rather than stalling the pipeline.
type broadcaster struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
	closed bool
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[uint64]*Subscription)}
}

func (b *broadcaster) subscribe(buffer int) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{
		id:    b.nextID,
		ch:    make(chan inference.Result, buffer),
		owner: b,
	}
	if b.closed {
		close(sub.ch)
		return sub
	}
	b.subs[sub.id] = sub
	return sub
}

// publish delivers a copy of res to every subscriber and returns how many
// deliveries were dropped.
func (b *broadcaster) publish(res inference.Result) (dropped int) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		select {
		case sub.ch <- res.Clone():
		default:
			sub.dropped.Add(1)
			dropped++
		}
	}
	return dropped
}

func (b *broadcaster) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subs[id]; ok {
		close(sub.ch)
		delete(b.subs, id)
	}
}

func (b *broadcaster) count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// close closes every subscription; later subscriptions start closed.
func (b *broadcaster) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, sub := range b.subs {
		close(sub.ch)
		delete(b.subs, id)
	}
	b.closed = true
}
