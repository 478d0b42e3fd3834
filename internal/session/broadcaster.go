package session

import "sync"

// Broadcaster is the change notification channel. Callbacks carry no payload;
// subscribers re-read the Store when they are called.
type Broadcaster struct {
	mu     sync.Mutex
	subs   []subscriber
	nextID uint64
}

type subscriber struct {
	id uint64
	fn func()
}

// Subscribe registers fn and returns a function removing it. The returned function
// may be called any number of times.
func (b *Broadcaster) Subscribe(fn func()) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs = append(b.subs, subscriber{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(id) })
	}
}

func (b *Broadcaster) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

// Notify calls every currently registered callback once, in subscription order.
// Callbacks run on the caller's goroutine against a snapshot of the subscriber list,
// so they may subscribe or unsubscribe freely.
func (b *Broadcaster) Notify() {
	b.mu.Lock()
	snapshot := make([]subscriber, len(b.subs))
	copy(snapshot, b.subs)
	b.mu.Unlock()

	for _, s := range snapshot {
		s.fn()
	}
}

// Len returns the number of registered subscribers.
func (b *Broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
