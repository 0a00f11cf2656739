package session

import (
	"context"
	"slices"
	"sync"
)

// Event is published whenever the session becomes authenticated or
// unauthenticated.
type Event struct {
	Authenticated bool
	DisplayName   string
}

type Listener func(ctx context.Context, event Event)

type subscription struct {
	id       uint64
	listener Listener
}

// Broadcaster delivers session events to its subscribers synchronously, in
// subscription order.
type Broadcaster struct {
	mu     sync.Mutex
	nextID uint64
	subs   []subscription
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{}
}

// Subscribe registers listener and returns a function that removes it.
func (b *Broadcaster) Subscribe(listener Listener) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, listener: listener})

	var once sync.Once

	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()

			b.subs = slices.DeleteFunc(b.subs, func(s subscription) bool {
				return s.id == id
			})
		})
	}
}

// Publish calls the listeners registered at the time of the call.
func (b *Broadcaster) Publish(ctx context.Context, event Event) {
	b.mu.Lock()
	subs := slices.Clone(b.subs)
	b.mu.Unlock()

	for _, s := range subs {
		s.listener(ctx, event)
	}
}
