package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"eviproxy/internal/domain"
	"eviproxy/internal/ports"
)

var (
	// ErrClosed is returned by a link that has already been closed.
	ErrClosed = errors.New("upstream link is closed")
	// ErrAlreadyConnected is returned by a second Connect call.
	ErrAlreadyConnected = errors.New("upstream link is already connected")
)

const writeTimeout = 5 * time.Second

// LiveConfig controls the connection to the real chat backend.
type LiveConfig struct {
	BaseURL            string
	Path               string
	APIKey             string
	ConfigID           string
	ResumedChatGroupID string
}

// Live relays frames to the real streaming backend. Frames sent before the
// socket opens are queued and flushed in order once it does. Live never
// reconnects; once closed it stays closed.
type Live struct {
	cfg      LiveConfig
	listener ports.UpstreamListener
	logger   zerolog.Logger
	dialer   *websocket.Dialer

	mu      sync.Mutex
	conn    *websocket.Conn
	queued  [][]byte
	started bool
	closed  bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewLive(cfg LiveConfig, listener ports.UpstreamListener, logger zerolog.Logger) *Live {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "wss://api.hume.ai"
	}
	if cfg.Path == "" {
		cfg.Path = "/v0/evi/chat"
	}
	return &Live{
		cfg:      cfg,
		listener: listener,
		logger:   logger.With().Str("component", "upstream.live").Logger(),
		dialer:   websocket.DefaultDialer,
		done:     make(chan struct{}),
	}
}

// Connect starts dialing in the background and returns immediately.
func (l *Live) Connect(ctx context.Context) error {
	if strings.TrimSpace(l.cfg.APIKey) == "" {
		return errors.New("HUME_API_KEY is not configured")
	}
	wsURL, err := buildChatURL(l.cfg)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return fmt.Errorf("restart live upstream: %w", ErrClosed)
	}
	if l.started {
		return ErrAlreadyConnected
	}
	l.started = true

	dialCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.logger.Info().Str("url", redactKey(wsURL, l.cfg.APIKey)).Msg("connecting to upstream")
	go l.run(dialCtx, wsURL)
	return nil
}

// Send writes a text frame, or queues it while the socket is still opening.
func (l *Live) Send(frame []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}
	if l.conn == nil {
		l.queued = append(l.queued, append([]byte(nil), frame...))
		return nil
	}
	return l.write(frame)
}

// Close shuts the socket and waits until no further messages can be
// delivered to the listener.
func (l *Live) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.queued = nil
	conn := l.conn
	started := l.started
	if l.cancel != nil {
		l.cancel()
	}
	l.mu.Unlock()

	if conn != nil {
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeTimeout),
		)
		_ = conn.Close()
	}
	if started {
		<-l.done
	}
	return nil
}

func (l *Live) run(ctx context.Context, wsURL string) {
	defer close(l.done)

	conn, _, err := l.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if l.isClosed() {
			return
		}
		l.logger.Error().Err(err).Msg("failed to connect to upstream")
		l.listener.UpstreamClosed(websocket.CloseAbnormalClosure, err.Error())
		return
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		_ = conn.Close()
		return
	}
	l.conn = conn
	for _, frame := range l.queued {
		if err := l.write(frame); err != nil {
			l.logger.Error().Err(err).Msg("failed to flush queued frame")
			break
		}
	}
	l.queued = nil
	l.mu.Unlock()

	l.logger.Info().Msg("connected to upstream")
	l.listener.UpstreamOpened()
	l.readLoop(conn)
}

func (l *Live) readLoop(conn *websocket.Conn) {
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if l.isClosed() {
				return
			}
			code, reason := closeDetails(err)
			l.logger.Info().Int("code", code).Str("reason", reason).Msg("upstream connection closed")
			l.listener.UpstreamClosed(code, reason)
			return
		}

		msg, err := domain.ParseMessage(payload)
		if err != nil {
			l.logger.Warn().Err(err).Msg("dropping unparsable upstream frame")
			continue
		}
		l.listener.UpstreamMessage(msg)
	}
}

// write must be called with l.mu held.
func (l *Live) write(frame []byte) error {
	_ = l.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := l.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("failed to send upstream frame: %w", err)
	}
	return nil
}

func (l *Live) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

func closeDetails(err error) (int, string) {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return closeErr.Code, closeErr.Text
	}
	return websocket.CloseAbnormalClosure, err.Error()
}

func buildChatURL(cfg LiveConfig) (string, error) {
	base := strings.TrimSpace(cfg.BaseURL)
	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else if strings.HasPrefix(base, "http://") {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	base = strings.TrimRight(base, "/")

	chatURL, err := url.Parse(base + "/" + strings.TrimLeft(cfg.Path, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid upstream base URL: %w", err)
	}
	if chatURL.Scheme != "ws" && chatURL.Scheme != "wss" {
		return "", fmt.Errorf("invalid upstream base URL scheme %q", chatURL.Scheme)
	}

	query := chatURL.Query()
	query.Set("api_key", cfg.APIKey)
	if cfg.ConfigID != "" {
		query.Set("config_id", cfg.ConfigID)
	}
	if cfg.ResumedChatGroupID != "" {
		query.Set("resumed_chat_group_id", cfg.ResumedChatGroupID)
	}
	chatURL.RawQuery = query.Encode()
	return chatURL.String(), nil
}

func redactKey(rawURL, apiKey string) string {
	if apiKey == "" {
		return rawURL
	}
	return strings.ReplaceAll(rawURL, url.QueryEscape(apiKey), "API_KEY_HIDDEN")
}
