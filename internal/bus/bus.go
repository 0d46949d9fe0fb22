// Package bus implements the single-process event bus that carries network
// completion events and friend-list observations between the interceptor and
// the detection coordinator. Waits on the bus are expressed as
// single-resolution futures with built-in deadlines, so listener removal on
// first resolution is a structural property rather than caller discipline.
package bus

import "sync"

// handler receives every published event. Handlers must not block; they run
// inline on the publisher's goroutine.
type handler func(Event)

// Bus is a single-process publish/subscribe channel. Exactly one instance
// exists per detection session.
type Bus struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]handler
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{
		subs: make(map[int]handler),
	}
}

// Subscribe registers a handler for every published event and returns a
// subscription ID for later removal. Filtering by event kind and user ID is
// the handler's responsibility, since the bus broadcasts to all listeners.
func (b *Bus) Subscribe(h handler) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subs[id] = h

	return id
}

// Unsubscribe removes a subscription. Removing an unknown or already-removed
// ID is a no-op, so wait cleanup stays idempotent.
func (b *Bus) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subs, id)
}

// Publish delivers the event to every current subscriber. The subscriber set
// is snapshotted under the lock so handlers may unsubscribe (themselves or
// others) while a publish is in flight.
func (b *Bus) Publish(event Event) {
	b.mu.Lock()
	snapshot := make([]handler, 0, len(b.subs))
	for _, h := range b.subs {
		snapshot = append(snapshot, h)
	}
	b.mu.Unlock()

	for _, h := range snapshot {
		h(event)
	}
}

// SubscriberCount returns the number of active subscriptions. Used by tests
// to verify that resolved waits removed their listeners.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.subs)
}
