package events

import (
	"sync"

	"eviproxy/internal/domain"
)

// Queue is an unbounded FIFO of events. Push never blocks, so producers on
// the main loop's own goroutine cannot deadlock against the consumer.
type Queue struct {
	name string

	mu    sync.Mutex
	items []domain.Event
	ready chan struct{}
}

func NewQueue(name string) *Queue {
	return &Queue{name: name, ready: make(chan struct{}, 1)}
}

func (q *Queue) Name() string {
	return q.name
}

func (q *Queue) Push(event domain.Event) {
	if event == nil {
		return
	}
	q.mu.Lock()
	q.items = append(q.items, event)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// TryPop returns the oldest event, if any.
func (q *Queue) TryPop() (domain.Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	event := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return event, true
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Ready is signalled after a Push. A signal may be stale; callers re-poll.
func (q *Queue) Ready() <-chan struct{} {
	return q.ready
}
