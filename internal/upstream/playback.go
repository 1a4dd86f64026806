package upstream

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"eviproxy/internal/domain"
	"eviproxy/internal/ports"
)

// DefaultPlaybackDelay simulates network latency between a client frame and the
// scripted reply.
const DefaultPlaybackDelay = 200 * time.Millisecond

type scheduled struct {
	msg domain.Message
	due time.Time
}

// Playback stands in for the live backend by replaying a recorded script. Each
// Send releases the next script message after a fixed delay.
type Playback struct {
	listener ports.UpstreamListener
	logger   zerolog.Logger
	delay    time.Duration
	now      func() time.Time

	mu      sync.Mutex
	script  []domain.Message
	cursor  int
	started bool
	closed  bool
	pending chan scheduled
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewPlayback(script []domain.Message, delay time.Duration, listener ports.UpstreamListener, logger zerolog.Logger) *Playback {
	if delay < 0 {
		delay = DefaultPlaybackDelay
	}
	return &Playback{
		listener: listener,
		logger:   logger.With().Str("component", "upstream.playback").Logger(),
		delay:    delay,
		now:      time.Now,
		script:   append([]domain.Message(nil), script...),
		pending:  make(chan scheduled, len(script)),
		done:     make(chan struct{}),
	}
}

func (p *Playback) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if p.started {
		return ErrAlreadyConnected
	}
	p.started = true

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	go p.run(runCtx)
	return nil
}

// Send advances the script cursor. Frame contents are ignored; once the script
// is exhausted further sends do nothing.
func (p *Playback) Send(_ []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	if p.cursor >= len(p.script) {
		p.logger.Debug().Msg("script exhausted, ignoring send")
		return nil
	}
	next := p.script[p.cursor]
	p.cursor++
	// capacity equals the script length so this never blocks
	p.pending <- scheduled{msg: next, due: p.now().Add(p.delay)}
	return nil
}

// Remaining reports how many script messages have not been scheduled yet.
func (p *Playback) Remaining() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.script) - p.cursor
}

// Close drops any scheduled emissions and waits for the worker to stop.
func (p *Playback) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	started := p.started
	if p.cancel != nil {
		p.cancel()
	}
	p.mu.Unlock()

	if started {
		<-p.done
	}
	return nil
}

func (p *Playback) run(ctx context.Context) {
	defer close(p.done)

	p.listener.UpstreamOpened()
	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		var item scheduled
		select {
		case <-ctx.Done():
			return
		case item = <-p.pending:
		}

		if wait := item.due.Sub(p.now()); wait > 0 {
			timer.Reset(wait)
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			}
		}
		if ctx.Err() != nil {
			return
		}
		p.logger.Info().Str("message", item.msg.Summary()).Msg("emitting scripted message")
		p.listener.UpstreamMessage(item.msg)
	}
}
