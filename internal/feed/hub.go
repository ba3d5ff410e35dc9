package feed

import (
	"context"
	"errors"
	"sync"
)

const subscriberBuffer = 32

var ErrClosed = errors.New("feed closed")

// Hub fans events out to in-process subscribers.
type Hub struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]*hubSub
	closed bool
}

type hubSub struct {
	filter Filter
	ch     chan Event
}

func NewHub() *Hub {
	return &Hub{subs: make(map[int]*hubSub)}
}

// Publish delivers ev to every matching subscriber without blocking.
func (h *Hub) Publish(_ context.Context, ev Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	for _, s := range h.subs {
		if !s.filter.Match(ev) {
			continue
		}
		select {
		case s.ch <- ev:
		default:
			// subscriber is behind, drop
		}
	}
	return nil
}

// Subscribe registers f. The subscription ends when ctx is done or Close is called.
func (h *Hub) Subscribe(ctx context.Context, f Filter) (*Subscription, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrClosed
	}
	id := h.nextID
	h.nextID++
	hs := &hubSub{filter: f, ch: make(chan Event, subscriberBuffer)}
	h.subs[id] = hs
	h.mu.Unlock()

	done := make(chan struct{})
	sub := &Subscription{events: hs.ch}
	sub.cancel = func() {
		close(done)
		h.remove(id)
	}
	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-done:
		}
	}()
	return sub, nil
}

func (h *Hub) remove(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(s.ch)
	}
}

// Close ends every subscription.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	for id, s := range h.subs {
		delete(h.subs, id)
		close(s.ch)
	}
	return nil
}
