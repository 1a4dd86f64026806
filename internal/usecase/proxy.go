package usecase

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"eviproxy/internal/domain"
	"eviproxy/internal/ports"
	"eviproxy/internal/reducer"
)

// AdmissionRefusedReason is sent to clients that connect outside record and
// playback mode.
const AdmissionRefusedReason = "Enter record mode or playback mode to accept new connections"

var ErrDownstreamNotAttached = errors.New("downstream link is not attached")

// EventSource yields events in delivery order. The second result names the
// source for logging and metrics.
type EventSource interface {
	Next(ctx context.Context) (domain.Event, string, error)
}

// Recorder receives counters from the loop. *metrics.Metrics satisfies it.
type Recorder interface {
	RecordEvent(source string, event domain.Event)
	RecordEffect(effect domain.Effect)
	RecordState(state domain.State)
	RecordFrame(direction string)
	RecordRecording(op string, err error)
	RecordError(kind string)
}

// Config wires the proxy to its collaborators.
type Config struct {
	Events      EventSource
	Internal    ports.EventSink
	Store       ports.RecordingStore
	Upstreams   ports.UpstreamFactory
	Observers   []ports.StateObserver
	Metrics     Recorder
	Logger      zerolog.Logger
	AutoAdvance bool
}

// Proxy owns the proxy state. Run is the only writer; every other goroutine
// enqueues events or reads the published snapshot.
type Proxy struct {
	events      EventSource
	internal    ports.EventSink
	store       ports.RecordingStore
	upstreams   ports.UpstreamFactory
	observers   []ports.StateObserver
	metrics     Recorder
	logger      zerolog.Logger
	autoAdvance bool
	now         func() time.Time

	downstream ports.Downstream
	upstream   upstreamSlot
	state      atomic.Pointer[domain.State]

	// captures counts message_captured events queued but not yet reduced.
	captures     atomic.Int64
	saveDeferred bool
}

func NewProxy(cfg Config) *Proxy {
	if cfg.Metrics == nil {
		cfg.Metrics = nopRecorder{}
	}
	p := &Proxy{
		events:      cfg.Events,
		internal:    cfg.Internal,
		store:       cfg.Store,
		upstreams:   cfg.Upstreams,
		observers:   cfg.Observers,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger.With().Str("component", "proxy").Logger(),
		autoAdvance: cfg.AutoAdvance,
		now:         time.Now,
	}
	initial := domain.InitialState()
	p.state.Store(&initial)
	return p
}

// AttachDownstream sets the client link. It must be called before Run.
func (p *Proxy) AttachDownstream(d ports.Downstream) {
	p.downstream = d
}

// Snapshot returns the last committed state.
func (p *Proxy) Snapshot() domain.State {
	return *p.state.Load()
}

// Admission refuses clients unless the proxy is recording or playing back.
func (p *Proxy) Admission() string {
	if p.Snapshot().AcceptsClients() {
		return ""
	}
	return AdmissionRefusedReason
}

// Run processes events until terminate or ctx is done. Both links are closed
// before it returns.
func (p *Proxy) Run(ctx context.Context) error {
	if p.downstream == nil {
		return ErrDownstreamNotAttached
	}
	p.logger.Info().Msg("event loop started")

	for {
		event, source, err := p.events.Next(ctx)
		if err != nil {
			p.closeLinks()
			return err
		}
		p.metrics.RecordEvent(source, event)
		if p.dispatch(ctx, source, event) {
			p.logger.Info().Msg("goodbye")
			return nil
		}
	}
}

// dispatch reduces one event, commits a changed state and performs the
// effects in order. It reports whether the loop must stop.
func (p *Proxy) dispatch(ctx context.Context, source string, event domain.Event) bool {
	if p.deferSave(source, event) {
		return false
	}

	current := p.Snapshot()
	next, effects := reducer.Reduce(current, event)

	if next.Version != current.Version {
		p.commit(next)
		p.logger.Debug().
			Str("source", source).
			Str("event", string(event.EventType())).
			Str("mode", string(next.Mode)).
			Str("status", string(next.Status)).
			Msg("state changed")
	} else if len(effects) == 0 {
		p.logger.Debug().
			Str("source", source).
			Str("event", string(event.EventType())).
			Str("mode", string(current.Mode)).
			Msg("event ignored in current state")
	}

	for _, effect := range effects {
		p.metrics.RecordEffect(effect)
		if p.execute(ctx, effect) {
			return true
		}
	}
	return false
}

// deferSave moves a save request behind captures that are still queued, so the
// recording it freezes includes them. A request is deferred at most once.
func (p *Proxy) deferSave(source string, event domain.Event) bool {
	switch event.(type) {
	case domain.MessageCaptured:
		p.captures.Add(-1)
	case domain.SaveAndExitRecord:
		if p.saveDeferred || p.captures.Load() <= 0 {
			p.saveDeferred = false
			return false
		}
		p.saveDeferred = true
		p.logger.Debug().
			Str("source", source).
			Int64("pending_captures", p.captures.Load()).
			Msg("deferring save until captured messages are committed")
		p.internal.Push(event)
		return true
	}
	return false
}

func (p *Proxy) commit(next domain.State) {
	p.state.Store(&next)
	p.metrics.RecordState(next)
	for _, observer := range p.observers {
		observer.StateChanged(next)
	}
}

func (p *Proxy) reportError(kind, text string) {
	p.logger.Error().Str("kind", kind).Msg(text)
	p.metrics.RecordError(kind)
	p.internal.Push(domain.ErrorReported{At: p.now(), Text: text})
}

func (p *Proxy) closeLinks() {
	p.downstream.Close()
	p.upstream.clear(p.logger)
}

type nopRecorder struct{}

func (nopRecorder) RecordEvent(string, domain.Event) {}
func (nopRecorder) RecordEffect(domain.Effect)       {}
func (nopRecorder) RecordState(domain.State)         {}
func (nopRecorder) RecordFrame(string)               {}
func (nopRecorder) RecordRecording(string, error)    {}
func (nopRecorder) RecordError(string)               {}
