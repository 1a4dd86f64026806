// Package api exposes the control surface: events in over POST, committed
// state out over Server-Sent Events.
package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"eviproxy/internal/domain"
	"eviproxy/internal/ports"
)

const (
	maxBodyBytes      = 64 << 20
	defaultKeepAlive  = 15 * time.Second
	invalidJSONReason = "Invalid JSON"
)

type Handler struct {
	events    ports.EventSink
	hub       *Hub
	logger    zerolog.Logger
	keepAlive time.Duration
}

func NewHandler(events ports.EventSink, hub *Hub, logger zerolog.Logger) *Handler {
	return &Handler{
		events:    events,
		hub:       hub,
		logger:    logger.With().Str("component", "api").Logger(),
		keepAlive: defaultKeepAlive,
	}
}

// Register mounts the handlers on path.
func (h *Handler) Register(e *echo.Echo, path string) {
	e.POST(path, h.PostEvent)
	e.GET(path, h.StreamState)
}

// PostEvent enqueues one event on the control queue.
func (h *Handler) PostEvent(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxBodyBytes))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": invalidJSONReason})
	}

	event, err := domain.DecodeEvent(body)
	if err != nil {
		h.logger.Warn().Err(err).Msg("rejecting control event")
		return c.JSON(http.StatusBadRequest, map[string]string{"error": invalidJSONReason})
	}
	if event.EventType().Internal() {
		h.logger.Warn().Str("type", string(event.EventType())).Msg("rejecting internal event from control api")
		return c.JSON(http.StatusBadRequest, map[string]string{"error": invalidJSONReason})
	}

	h.logger.Debug().Str("type", string(event.EventType())).Msg("control event received")
	h.events.Push(event)
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

// StreamState writes the current state and then every committed change until
// the client goes away.
func (h *Handler) StreamState(c echo.Context) error {
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.Header().Set(echo.HeaderAccessControlAllowOrigin, "*")
	res.Header().Set("X-Accel-Buffering", "no")
	res.WriteHeader(http.StatusOK)

	sub := h.hub.Subscribe()
	defer sub.Close()

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case state := <-sub.C():
			if err := writeState(res, state); err != nil {
				h.logger.Debug().Err(err).Msg("state stream closed")
				return nil
			}
		case <-ticker.C:
			if _, err := io.WriteString(res, ": keep-alive\n\n"); err != nil {
				return nil
			}
			res.Flush()
		}
	}
}

func writeState(res *echo.Response, state domain.State) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if _, err := fmt.Fprintf(res, "data: %s\n\n", payload); err != nil {
		return err
	}
	res.Flush()
	return nil
}
