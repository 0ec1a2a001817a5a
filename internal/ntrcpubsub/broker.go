// Package ntrcpubsub fans out published values to subscribed channels.
package ntrcpubsub

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// ErrAlreadySubscribed is returned when a channel is subscribed twice.
var ErrAlreadySubscribed = errors.New("already subscribed")

// Broker delivers each published value to every subscriber that accepts it.
// Delivery never blocks: a subscriber whose channel is full misses the value,
// which is counted as a drop.
type Broker[T any] struct {
	mtx         sync.Mutex
	subscribers map[chan<- T]*subscriber[T]
	count       atomic.Int32 // mirrors len(subscribers), read without the lock
}

type subscriber[T any] struct {
	accept func(T) bool
	stats  Stats
}

// NewBroker returns an empty broker.
func NewBroker[T any]() *Broker[T] {
	return &Broker[T]{
		subscribers: map[chan<- T]*subscriber[T]{},
	}
}

// Publish val to every subscriber.
func (b *Broker[T]) Publish(val T) {
	if b.count.Load() <= 0 {
		return
	}

	b.mtx.Lock()
	defer b.mtx.Unlock()

	for ch, sub := range b.subscribers {
		if sub.accept != nil && !sub.accept(val) {
			sub.stats.Skips++
			continue
		}
		select {
		case ch <- val:
			sub.stats.Sends++
		default:
			sub.stats.Drops++
		}
	}
}

// Subscribe ch to published values accepted by accept, or to every value if
// accept is nil. The returned function unsubscribes ch, and returns the
// delivery stats of the subscription. The broker never closes ch.
func (b *Broker[T]) Subscribe(ch chan<- T, accept func(T) bool) (unsubscribe func() Stats, err error) {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	if _, ok := b.subscribers[ch]; ok {
		return nil, ErrAlreadySubscribed
	}

	sub := &subscriber[T]{accept: accept}
	b.subscribers[ch] = sub
	b.count.Store(int32(len(b.subscribers)))

	var once sync.Once
	return func() Stats {
		once.Do(func() {
			b.mtx.Lock()
			defer b.mtx.Unlock()

			delete(b.subscribers, ch)
			b.count.Store(int32(len(b.subscribers)))
		})

		b.mtx.Lock()
		defer b.mtx.Unlock()

		return sub.stats
	}, nil
}

// Subscribers returns the number of current subscribers.
func (b *Broker[T]) Subscribers() int {
	return int(b.count.Load())
}

// Stats counts the outcome of each value published to a subscriber.
type Stats struct {
	Skips uint64 `json:"skips"` // not accepted
	Sends uint64 `json:"sends"` // delivered
	Drops uint64 `json:"drops"` // accepted, but the channel was full
}

// String implements fmt.Stringer.
func (s Stats) String() string {
	return fmt.Sprintf("skips=%d sends=%d drops=%d", s.Skips, s.Sends, s.Drops)
}
