package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"eviproxy/internal/domain"
	"eviproxy/internal/events"
	"eviproxy/internal/ports"
	"eviproxy/internal/recording"
)

type fakeDownstream struct {
	mu         sync.Mutex
	broadcasts []domain.Message
	errors     []domain.Message
	closes     []int
}

func (f *fakeDownstream) Broadcast(msg domain.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcasts = append(f.broadcasts, msg)
}

func (f *fakeDownstream) SendError(frame domain.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, frame)
}

func (f *fakeDownstream) CloseWithError(code int, _ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes = append(f.closes, code)
}

func (f *fakeDownstream) Close() {
	f.CloseWithError(domain.CloseCodeNormal, "")
}

func (f *fakeDownstream) snapshot() ([]domain.Message, []domain.Message, []int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Message(nil), f.broadcasts...),
		append([]domain.Message(nil), f.errors...),
		append([]int(nil), f.closes...)
}

type fakeUpstream struct {
	mode       domain.Mode
	script     []domain.Message
	listener   ports.UpstreamListener
	connectErr error

	mu        sync.Mutex
	sent      []string
	connected bool
	closed    bool
}

func (f *fakeUpstream) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeUpstream) Send(frame []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, string(frame))
	return nil
}

func (f *fakeUpstream) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeUpstream) state() (sent []string, connected, closed bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...), f.connected, f.closed
}

type fakeFactory struct {
	mu      sync.Mutex
	links   []*fakeUpstream
	liveErr error
}

func (f *fakeFactory) NewLive(listener ports.UpstreamListener) ports.Upstream {
	f.mu.Lock()
	defer f.mu.Unlock()
	link := &fakeUpstream{mode: domain.ModeRecord, listener: listener, connectErr: f.liveErr}
	f.links = append(f.links, link)
	return link
}

func (f *fakeFactory) NewPlayback(script []domain.Message, listener ports.UpstreamListener) ports.Upstream {
	f.mu.Lock()
	defer f.mu.Unlock()
	link := &fakeUpstream{mode: domain.ModePlayback, script: script, listener: listener}
	f.links = append(f.links, link)
	return link
}

func (f *fakeFactory) all() []*fakeUpstream {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeUpstream(nil), f.links...)
}

type fakeObserver struct {
	mu     sync.Mutex
	states []domain.State
}

func (f *fakeObserver) StateChanged(state domain.State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, state)
}

func (f *fakeObserver) snapshot() []domain.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.State(nil), f.states...)
}

type fakeRecorder struct {
	nopRecorder
	mu     sync.Mutex
	errors map[string]int
}

func (f *fakeRecorder) RecordError(kind string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errors == nil {
		f.errors = map[string]int{}
	}
	f.errors[kind]++
}

func (f *fakeRecorder) count(kind string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.errors[kind]
}

type harness struct {
	proxy    *Proxy
	api      *events.Queue
	internal *events.Queue
	console  *events.Queue
	down     *fakeDownstream
	factory  *fakeFactory
	observer *fakeObserver
	recorder *fakeRecorder
	done     chan struct{}
	err      error
	cancel   context.CancelFunc
}

func newHarness(t *testing.T, autoAdvance bool) *harness {
	t.Helper()
	api, internal, console := events.NewQueue("api"), events.NewQueue("internal"), events.NewQueue("console")
	h := &harness{
		api:      api,
		internal: internal,
		console:  console,
		down:     &fakeDownstream{},
		factory:  &fakeFactory{},
		observer: &fakeObserver{},
		recorder: &fakeRecorder{},
	}
	h.proxy = NewProxy(Config{
		Events:      events.NewMultiplexer(api, internal, console, 5*time.Millisecond),
		Internal:    internal,
		Store:       recording.NewStore(zerolog.Nop()),
		Upstreams:   h.factory,
		Observers:   []ports.StateObserver{h.observer},
		Metrics:     h.recorder,
		Logger:      zerolog.Nop(),
		AutoAdvance: autoAdvance,
	})
	h.proxy.AttachDownstream(h.down)
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.done = make(chan struct{})
	go func() {
		h.err = h.proxy.Run(ctx)
		close(h.done)
	}()
	t.Cleanup(func() {
		cancel()
		<-h.done
	})
}

// waitState blocks until the published state satisfies cond.
func (h *harness) waitState(t *testing.T, what string, cond func(domain.State) bool) domain.State {
	t.Helper()
	var state domain.State
	eventually(t, what, func() bool {
		state = h.proxy.Snapshot()
		return cond(state)
	})
	return state
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func mustMessage(t *testing.T, raw string) domain.Message {
	t.Helper()
	msg, err := domain.ParseMessage([]byte(raw))
	if err != nil {
		t.Fatalf("parse %s: %v", raw, err)
	}
	return msg
}
