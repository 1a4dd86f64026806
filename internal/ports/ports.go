package ports

import (
	"context"

	"eviproxy/internal/domain"
)

// FrameKind distinguishes WebSocket text and binary frames.
type FrameKind int

const (
	FrameText FrameKind = iota
	FrameBinary
)

// Upstream is the proxy's side of the streaming service: either the live
// backend, a playback stand-in, or an inert placeholder.
type Upstream interface {
	Connect(ctx context.Context) error
	Send(frame []byte) error
	Close() error
}

// UpstreamListener receives notifications from an Upstream. Calls arrive on
// the link's own goroutines.
type UpstreamListener interface {
	UpstreamOpened()
	UpstreamMessage(msg domain.Message)
	UpstreamClosed(code int, reason string)
}

// UpstreamFactory builds the upstream for a mode. Each instance reports to
// the listener it was built with.
type UpstreamFactory interface {
	NewLive(listener UpstreamListener) Upstream
	NewPlayback(script []domain.Message, listener UpstreamListener) Upstream
}

// Downstream is the single attached client.
type Downstream interface {
	Broadcast(msg domain.Message)
	SendError(frame domain.Message)
	CloseWithError(code int, reason string)
	Close()
}

// DownstreamListener receives client lifecycle and inbound frames.
type DownstreamListener interface {
	ClientConnected()
	ClientDisconnected()
	ClientMessage(kind FrameKind, payload []byte)
}

// RecordingStore persists captured sessions.
type RecordingStore interface {
	Save(path string, messages []domain.Message) error
	Load(path string) ([]domain.Message, error)
}

// StateObserver is told about every committed state change.
type StateObserver interface {
	StateChanged(state domain.State)
}

// EventSink accepts events from any producer.
type EventSink interface {
	Push(event domain.Event)
}
