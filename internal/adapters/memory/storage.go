// Package memory provides an in-process ports.Storage used in development mode and tests.
// A Backing plays the role of the browser's shared local storage; each Storage handle
// obtained from it is one tab.
package memory

import (
	"context"
	"sync"

	"github.com/target/quiz-ui/internal/ports"
)

// Backing is the shared key/value space. It is safe for concurrent use.
type Backing struct {
	mu       sync.RWMutex
	values   map[string]string
	watchers map[int]watcher
	nextID   int
}

type watcher struct {
	origin string
	ch     chan ports.StorageEvent
}

// NewBacking creates an empty shared backing.
func NewBacking() *Backing {
	return &Backing{
		values:   make(map[string]string),
		watchers: make(map[int]watcher),
	}
}

// Storage returns a handle on the backing whose writes are tagged with origin.
func (b *Backing) Storage(origin string) *Storage {
	return &Storage{backing: b, origin: origin}
}

// Raw writes a value without any origin, as if another program edited the storage.
// Every watcher observes it. Used to simulate corrupted or foreign writes.
func (b *Backing) Raw(key, value string) {
	b.mu.Lock()
	b.values[key] = value
	b.mu.Unlock()
	b.publish(ports.StorageEvent{Key: key})
}

func (b *Backing) publish(ev ports.StorageEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, w := range b.watchers {
		if ev.Origin != "" && w.origin == ev.Origin {
			continue
		}
		select {
		case w.ch <- ev:
		default:
			// Watcher is behind; storage events are signals and the reader re-reads state.
		}
	}
}

func (b *Backing) addWatcher(origin string) (int, chan ports.StorageEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	ch := make(chan ports.StorageEvent, 64)
	b.watchers[id] = watcher{origin: origin, ch: ch}
	return id, ch
}

func (b *Backing) removeWatcher(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.watchers, id)
}

// Storage is one instance's view of a Backing.
type Storage struct {
	backing *Backing
	origin  string
}

var _ ports.Storage = (*Storage)(nil)

func (s *Storage) Get(_ context.Context, key string) (string, bool, error) {
	s.backing.mu.RLock()
	defer s.backing.mu.RUnlock()
	v, ok := s.backing.values[key]
	return v, ok, nil
}

func (s *Storage) Set(_ context.Context, key, value string) error {
	s.backing.mu.Lock()
	s.backing.values[key] = value
	s.backing.mu.Unlock()
	s.backing.publish(ports.StorageEvent{Key: key, Origin: s.origin})
	return nil
}

func (s *Storage) Delete(_ context.Context, key string) error {
	s.backing.mu.Lock()
	delete(s.backing.values, key)
	s.backing.mu.Unlock()
	s.backing.publish(ports.StorageEvent{Key: key, Origin: s.origin})
	return nil
}

// Watch delivers events for writes made through other handles until ctx is done.
func (s *Storage) Watch(ctx context.Context, fn func(ports.StorageEvent)) error {
	id, ch := s.backing.addWatcher(s.origin)
	defer s.backing.removeWatcher(id)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-ch:
			fn(ev)
		}
	}
}
