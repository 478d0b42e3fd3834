package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBroadcaster_NotifyInOrder(t *testing.T) {
	var b Broadcaster
	var order []int

	b.Subscribe(func() { order = append(order, 1) })
	b.Subscribe(func() { order = append(order, 2) })
	b.Subscribe(func() { order = append(order, 3) })

	b.Notify()
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestBroadcaster_UnsubscribeIsIdempotent(t *testing.T) {
	var b Broadcaster
	var a, c int

	unsubA := b.Subscribe(func() { a++ })
	b.Subscribe(func() { c++ })

	unsubA()
	unsubA()
	assert.Equal(t, 1, b.Len())

	b.Notify()
	assert.Zero(t, a)
	assert.Equal(t, 1, c)
}

func TestBroadcaster_UnsubscribeDuringNotify(t *testing.T) {
	var b Broadcaster
	var calls int

	var unsub func()
	unsub = b.Subscribe(func() {
		calls++
		unsub()
	})
	b.Subscribe(func() { calls++ })

	b.Notify()
	assert.Equal(t, 2, calls)

	b.Notify()
	assert.Equal(t, 3, calls)
}

func TestBroadcaster_NilCallback(t *testing.T) {
	var b Broadcaster
	unsub := b.Subscribe(nil)
	unsub()
	assert.Zero(t, b.Len())
	assert.NotPanics(t, b.Notify)
}
