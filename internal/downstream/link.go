// Package downstream accepts the single browser or SDK client that talks to the
// proxy as if it were the real chat endpoint.
package downstream

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bep/debounce"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"eviproxy/internal/domain"
	"eviproxy/internal/ports"
)

const (
	// SecondClientReason is sent with close code 4000 to a client that arrives
	// while another one is attached.
	SecondClientReason = "Only one downstream client allowed"

	defaultCloseGrace = time.Second
	audioQuietPeriod  = time.Second
	writeTimeout      = 5 * time.Second
)

// Admission returns a non-empty reason when new clients must be refused.
type Admission func() string

type Options struct {
	Admission  Admission
	Listener   ports.DownstreamListener
	Logger     zerolog.Logger
	CloseGrace time.Duration
}

// Link owns the downstream client slot. At most one client is attached at any
// time; the slot is claimed and released under mu.
type Link struct {
	admission  Admission
	listener   ports.DownstreamListener
	logger     zerolog.Logger
	closeGrace time.Duration
	upgrader   websocket.Upgrader

	mu       sync.Mutex
	client   *client
	metadata *domain.Message

	audioActive atomic.Bool
	audioIdle   func(func())
}

type client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	closing atomic.Bool
}

func New(opts Options) *Link {
	if opts.CloseGrace <= 0 {
		opts.CloseGrace = defaultCloseGrace
	}
	if opts.Admission == nil {
		opts.Admission = func() string { return "" }
	}
	return &Link{
		admission:  opts.Admission,
		listener:   opts.Listener,
		logger:     opts.Logger.With().Str("component", "downstream").Logger(),
		closeGrace: opts.CloseGrace,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		audioIdle: debounce.New(audioQuietPeriod),
	}
}

func (l *Link) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.logger.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	if reason := l.admission(); reason != "" {
		l.logger.Error().Str("reason", reason).Msg("rejecting downstream client")
		reject(conn, websocket.CloseNormalClosure, reason)
		return
	}

	c := &client{conn: conn}
	l.mu.Lock()
	if l.client != nil {
		l.mu.Unlock()
		l.logger.Error().Msg("a downstream client is already connected, only one client is allowed at a time")
		reject(conn, domain.CloseCodeSecondClient, SecondClientReason)
		return
	}
	l.client = c
	metadata := l.metadata
	l.mu.Unlock()

	l.logger.Info().Str("remote", r.RemoteAddr).Msg("new client connected")
	if metadata != nil {
		if err := c.write(metadata.Bytes()); err != nil {
			l.logger.Warn().Err(err).Msg("failed to send cached chat_metadata")
		} else {
			l.logger.Info().Msg("sent cached chat_metadata to new client")
		}
	}
	l.listener.ClientConnected()
	l.readLoop(c)
}

func (l *Link) readLoop(c *client) {
	defer func() {
		_ = c.conn.Close()
		l.mu.Lock()
		current := l.client == c
		if current {
			l.client = nil
		}
		l.mu.Unlock()
		if current {
			l.logger.Info().Msg("client disconnected")
			l.listener.ClientDisconnected()
		}
	}()

	for {
		messageType, payload, err := c.conn.ReadMessage()
		if err != nil {
			if !c.closing.Load() && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				l.logger.Warn().Err(err).Msg("client read failed")
			}
			return
		}

		kind := ports.FrameText
		if messageType == websocket.BinaryMessage {
			kind = ports.FrameBinary
		}
		l.logInbound(kind, payload)
		l.listener.ClientMessage(kind, payload)
	}
}

// Broadcast writes msg to the attached client. chat_metadata is remembered and
// replayed to the next client that attaches.
func (l *Link) Broadcast(msg domain.Message) {
	l.mu.Lock()
	if msg.Type == "chat_metadata" {
		cached := msg
		l.metadata = &cached
	}
	c := l.client
	l.mu.Unlock()

	if c == nil {
		l.logger.Debug().Str("type", msg.Type).Msg("no client attached, dropping message")
		return
	}
	if err := c.write(msg.Bytes()); err != nil {
		l.logger.Warn().Err(err).Str("type", msg.Type).Msg("failed to write to client")
	}
}

// SendError writes a prebuilt error envelope to the attached client.
func (l *Link) SendError(frame domain.Message) {
	c := l.current()
	if c == nil {
		return
	}
	l.logger.Info().Str("frame", frame.Summary()).Msg("sending error to client")
	if err := c.write(frame.Bytes()); err != nil {
		l.logger.Warn().Err(err).Msg("failed to write error frame")
	}
}

// CloseWithError ends the client connection. 1006 drops the socket without a
// close frame; other codes perform the close handshake, bounded by the grace
// period.
func (l *Link) CloseWithError(code int, reason string) {
	c := l.current()
	if c == nil {
		return
	}
	l.logger.Warn().Int("code", code).Str("reason", reason).Msg("closing websocket")
	c.closing.Store(true)

	if code == domain.CloseCodeAbnormal {
		_ = c.conn.Close()
		return
	}

	c.writeMu.Lock()
	err := c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeTimeout))
	c.writeMu.Unlock()
	if err != nil {
		_ = c.conn.Close()
		return
	}
	time.AfterFunc(l.closeGrace, func() { _ = c.conn.Close() })
}

// Close performs a normal close of the attached client, if any.
func (l *Link) Close() {
	l.CloseWithError(websocket.CloseNormalClosure, "")
}

// Attached reports whether a client currently holds the slot.
func (l *Link) Attached() bool {
	return l.current() != nil
}

func (l *Link) current() *client {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.client
}

func (l *Link) logInbound(kind ports.FrameKind, payload []byte) {
	if kind == ports.FrameText {
		if msg, err := domain.ParseMessage(payload); err == nil && msg.Type != "audio_input" {
			l.logger.Info().Str("message", msg.Summary()).Msg("received message from client")
			return
		}
	}

	if l.audioActive.CompareAndSwap(false, true) {
		l.logger.Info().Msg("audio stream started")
	}
	l.audioIdle(func() {
		if l.audioActive.CompareAndSwap(true, false) {
			l.logger.Info().Msg("audio stream ended")
		}
	})
}

func (c *client) write(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

func reject(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeTimeout))
	_ = conn.Close()
}
