package api

import (
	"sync"

	"eviproxy/internal/domain"
)

// Hub fans committed states out to stream subscribers. Each subscriber holds
// at most one pending state; a slow reader only ever sees the newest one.
type Hub struct {
	mu     sync.Mutex
	latest domain.State
	subs   map[*Subscription]struct{}
}

type Subscription struct {
	hub *Hub
	ch  chan domain.State
}

func NewHub(initial domain.State) *Hub {
	return &Hub{latest: initial, subs: make(map[*Subscription]struct{})}
}

// StateChanged records state as the latest snapshot and offers it to every
// subscriber.
func (h *Hub) StateChanged(state domain.State) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.latest = state
	for sub := range h.subs {
		sub.offer(state)
	}
}

// Latest returns the most recently published state.
func (h *Hub) Latest() domain.State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.latest
}

// Subscribe registers a subscriber whose channel already holds the latest
// snapshot.
func (h *Hub) Subscribe() *Subscription {
	sub := &Subscription{hub: h, ch: make(chan domain.State, 1)}
	h.mu.Lock()
	defer h.mu.Unlock()
	sub.ch <- h.latest
	h.subs[sub] = struct{}{}
	return sub
}

// Len reports the number of active subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (s *Subscription) C() <-chan domain.State {
	return s.ch
}

func (s *Subscription) Close() {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	delete(s.hub.subs, s)
}

// offer must be called with the hub lock held.
func (s *Subscription) offer(state domain.State) {
	select {
	case s.ch <- state:
		return
	default:
	}
	select {
	case <-s.ch:
	default:
	}
	s.ch <- state
}
