package vaultcore

import "sync"

// Subscription is the per-host-UI-session helper built on top of On: it
// maintains a derived value T per subscription id and only invokes the
// caller's callback when the recomputed value differs from the previous one
// by equality. This is how a host UI avoids spurious re-renders:
// diff-on-equality recomputation instead of push-deltas.
type Subscription[T comparable] struct {
	store *Store

	mu   sync.Mutex
	data map[uint32]T
}

// NewSubscription creates a Subscription helper bound to store.
func NewSubscription[T comparable](store *Store) *Subscription[T] {
	return &Subscription[T]{store: store, data: make(map[uint32]T)}
}

// Subscribe registers a derived-value subscription: whenever one of events
// fires, generate is recomputed and callback is invoked only if the result
// changed. Returns the subscription id (also usable as the listener id).
func (sub *Subscription[T]) Subscribe(events []Event, generate func() T, callback func()) uint32 {
	id := sub.store.GetNextID()

	sub.mu.Lock()
	sub.data[id] = generate()
	sub.mu.Unlock()

	sub.store.On(id, events, func() {
		next := generate()

		sub.mu.Lock()
		prev, ok := sub.data[id]
		changed := !ok || prev != next
		sub.data[id] = next
		sub.mu.Unlock()

		if changed {
			callback()
		}
	})

	return id
}

// GetData returns the last computed value for id, if any.
func (sub *Subscription[T]) GetData(id uint32) (T, bool) {
	sub.mu.Lock()
	defer sub.mu.Unlock()

	v, ok := sub.data[id]

	return v, ok
}

// Unsubscribe removes the listener and its cached value.
func (sub *Subscription[T]) Unsubscribe(id uint32) {
	sub.store.RemoveListener(id)

	sub.mu.Lock()
	delete(sub.data, id)
	sub.mu.Unlock()
}
