package heatmap

import "sync"

// Notifier fans an event out to subscribers, synchronously and in
// registration order.
type Notifier[E any] struct {
	mu   sync.Mutex
	next int
	subs []subscriber[E]
}

type subscriber[E any] struct {
	id int
	fn func(E)
}

// Subscribe registers fn and returns a function that removes it.
func (n *Notifier[E]) Subscribe(fn func(E)) (unsubscribe func()) {
	n.mu.Lock()
	id := n.next
	n.next++
	n.subs = append(n.subs, subscriber[E]{id: id, fn: fn})
	n.mu.Unlock()

	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		for i, s := range n.subs {
			if s.id == id {
				n.subs = append(n.subs[:i:i], n.subs[i+1:]...)
				return
			}
		}
	}
}

// Notify calls every subscriber with e. Subscribers added during the call are
// not invoked for e.
func (n *Notifier[E]) Notify(e E) {
	n.mu.Lock()
	subs := make([]subscriber[E], len(n.subs))
	copy(subs, n.subs)
	n.mu.Unlock()

	for _, s := range subs {
		s.fn(e)
	}
}

// Len returns the number of subscribers.
func (n *Notifier[E]) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs)
}
