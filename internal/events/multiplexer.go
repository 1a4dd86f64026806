package events

import (
	"context"
	"time"

	"eviproxy/internal/domain"
)

// DefaultIdle is how long Next waits between polls when every source is empty.
const DefaultIdle = 50 * time.Millisecond

// Multiplexer merges the control API, internal and console queues into one
// stream. Every poll drains sources strictly in that priority order.
type Multiplexer struct {
	api      *Queue
	internal *Queue
	console  *Queue
	idle     time.Duration
}

func NewMultiplexer(api, internal, console *Queue, idle time.Duration) *Multiplexer {
	if idle <= 0 {
		idle = DefaultIdle
	}
	return &Multiplexer{api: api, internal: internal, console: console, idle: idle}
}

// Next returns the highest-priority pending event, waiting until one exists
// or ctx is done. The second result names the source queue.
func (m *Multiplexer) Next(ctx context.Context) (domain.Event, string, error) {
	timer := time.NewTimer(m.idle)
	defer timer.Stop()

	for {
		for _, source := range [...]*Queue{m.api, m.internal, m.console} {
			if event, ok := source.TryPop(); ok {
				return event, source.Name(), nil
			}
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(m.idle)

		select {
		case <-ctx.Done():
			return nil, "", ctx.Err()
		case <-m.api.Ready():
		case <-m.internal.Ready():
		case <-m.console.Ready():
		case <-timer.C:
		}
	}
}
