// Package feed fans market snapshots out to subscribers. Each subscriber
// gets its own goroutine and sees deliveries one at a time; a subscriber
// that falls behind only ever receives the freshest snapshot.
package feed

import (
	"sync"
)

// Handle identifies a subscription.
type Handle uint64

type subscriber[T any] struct {
	ch   chan T
	done chan struct{}
}

// Broadcaster publishes values of T to registered handlers.
type Broadcaster[T any] struct {
	mu     sync.Mutex
	next   Handle
	subs   map[Handle]*subscriber[T]
	closed bool
	wg     sync.WaitGroup
}

func New[T any]() *Broadcaster[T] {
	return &Broadcaster[T]{subs: make(map[Handle]*subscriber[T])}
}

// Subscribe registers fn and starts its delivery goroutine. Subscribing to a
// closed broadcaster returns a handle that never receives anything.
func (b *Broadcaster[T]) Subscribe(fn func(T)) Handle {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.next++
	h := b.next
	if b.closed {
		return h
	}

	s := &subscriber[T]{ch: make(chan T, 1), done: make(chan struct{})}
	b.subs[h] = s
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for {
			select {
			case <-s.done:
				return
			case v := <-s.ch:
				// Unsubscribe may race with a pending delivery.
				select {
				case <-s.done:
					return
				default:
				}
				fn(v)
			}
		}
	}()
	return h
}

// Unsubscribe removes the subscription. It is safe to call from inside the
// subscriber's own handler. It reports whether the handle was registered.
func (b *Broadcaster[T]) Unsubscribe(h Handle) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.subs[h]
	if !ok {
		return false
	}
	delete(b.subs, h)
	close(s.done)
	return true
}

// Publish hands v to every subscriber without blocking. A value still
// waiting in a subscriber's buffer is replaced by v.
func (b *Broadcaster[T]) Publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, s := range b.subs {
		select {
		case s.ch <- v:
			continue
		default:
		}
		select {
		case <-s.ch:
		default:
		}
		select {
		case s.ch <- v:
		default:
		}
	}
}

// Len returns the number of active subscriptions.
func (b *Broadcaster[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close removes every subscription and waits for running handlers to return.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for h, s := range b.subs {
		delete(b.subs, h)
		close(s.done)
	}
	b.mu.Unlock()

	b.wg.Wait()
}
