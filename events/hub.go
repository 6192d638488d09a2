// Package events provides the notification channel between the background
// process and its listeners. Delivery is synchronous and ordered; a failing
// listener never prevents delivery to the others.
package events

import (
	"context"
	"fmt"
	"sync"
)

// Listener receives published values. A returned error is reported to the
// hub's error handler and otherwise ignored.
type Listener[T any] func(ctx context.Context, v T) error

// Hub fans values out to subscribers.
type Hub[T any] struct {
	mu        sync.RWMutex
	next      uint64
	listeners map[uint64]Listener[T]
	order     []uint64
	onError   func(error)
}

// NewHub creates a hub. onError may be nil.
func NewHub[T any](onError func(error)) *Hub[T] {
	return &Hub[T]{
		listeners: make(map[uint64]Listener[T]),
		onError:   onError,
	}
}

// Subscribe registers l and returns the handle that removes it. Calling the
// handle more than once is harmless.
func (h *Hub[T]) Subscribe(l Listener[T]) (unsubscribe func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.next++
	id := h.next
	h.listeners[id] = l
	h.order = append(h.order, id)

	var once sync.Once
	return func() {
		once.Do(func() { h.remove(id) })
	}
}

// SubscribeChan delivers values into a buffered channel. Values are dropped
// when the buffer is full. The channel is closed by the unsubscribe handle.
func (h *Hub[T]) SubscribeChan(buffer int) (<-chan T, func()) {
	ch := make(chan T, buffer)
	var (
		mu     sync.Mutex
		closed bool
	)
	unsub := h.Subscribe(func(ctx context.Context, v T) error {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return nil
		}
		select {
		case ch <- v:
			return nil
		default:
			return fmt.Errorf("listener buffer full, dropped event")
		}
	})
	return ch, func() {
		unsub()
		mu.Lock()
		defer mu.Unlock()
		if !closed {
			closed = true
			close(ch)
		}
	}
}

// Publish delivers v to every subscriber in subscription order.
func (h *Hub[T]) Publish(ctx context.Context, v T) {
	for _, l := range h.snapshot() {
		if err := deliver(ctx, l, v); err != nil && h.onError != nil {
			h.onError(err)
		}
	}
}

// Len returns the number of subscribers.
func (h *Hub[T]) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners)
}

func (h *Hub[T]) snapshot() []Listener[T] {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]Listener[T], 0, len(h.order))
	for _, id := range h.order {
		out = append(out, h.listeners[id])
	}
	return out
}

func (h *Hub[T]) remove(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.listeners, id)
	for i, v := range h.order {
		if v == id {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
}

func deliver[T any](ctx context.Context, l Listener[T], v T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener panicked: %v", r)
		}
	}()
	return l(ctx, v)
}
