package usecase

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"eviproxy/internal/domain"
	"eviproxy/internal/ports"
)

type audioInput struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

// encodeAudioInput wraps raw audio from a binary frame in the JSON envelope
// the backend expects.
func encodeAudioInput(payload []byte) ([]byte, error) {
	return json.Marshal(audioInput{Type: "audio_input", Data: base64.StdEncoding.EncodeToString(payload)})
}

func (p *Proxy) ClientConnected() {
	p.internal.Push(domain.ConnectionChange{Status: domain.StatusConnected})
}

func (p *Proxy) ClientDisconnected() {
	p.internal.Push(domain.ConnectionChange{Status: domain.StatusDisconnected})
}

// ClientMessage relays a client frame according to the published mode. It
// runs on the client's read goroutine and never touches state directly.
func (p *Proxy) ClientMessage(kind ports.FrameKind, payload []byte) {
	switch mode := p.Snapshot().Mode; {
	case mode == domain.ModeRecord:
		frame := payload
		if kind == ports.FrameBinary {
			encoded, err := encodeAudioInput(payload)
			if err != nil {
				p.logger.Error().Err(err).Msg("failed to encode audio frame")
				return
			}
			frame = encoded
		}
		p.sendUpstream(frame)

	case mode == domain.ModePlayback && p.autoAdvance:
		p.sendUpstream(payload)

	default:
		p.logger.Debug().Str("mode", string(mode)).Msg("dropping client frame")
	}
}

func (p *Proxy) sendUpstream(frame []byte) {
	if err := p.upstream.get().Send(frame); err != nil {
		p.logger.Error().Err(err).Msg("failed to send frame upstream")
		p.metrics.RecordError("upstream_send")
		return
	}
	p.metrics.RecordFrame("upstream")
}

// upstreamRelay is the listener handed to one upstream instance. Callbacks
// from a replaced instance are dropped.
type upstreamRelay struct {
	proxy      *Proxy
	mode       domain.Mode
	generation uint64
}

func (r *upstreamRelay) UpstreamOpened() {
	if !r.proxy.upstream.isCurrent(r.generation) {
		return
	}
	r.proxy.logger.Info().Str("mode", string(r.mode)).Msg("upstream connected")
}

func (r *upstreamRelay) UpstreamMessage(msg domain.Message) {
	p := r.proxy
	if !p.upstream.isCurrent(r.generation) {
		return
	}

	switch r.mode {
	case domain.ModeRecord:
		p.logger.Info().Str("message", msg.Summary()).Msg("received message from upstream")
		p.downstream.Broadcast(msg)
		p.metrics.RecordFrame("downstream")
		p.captures.Add(1)
		p.internal.Push(domain.MessageCaptured{Message: msg})
	case domain.ModePlayback:
		p.metrics.RecordFrame("playback")
		p.internal.Push(domain.SendNextMessage{})
	}
}

func (r *upstreamRelay) UpstreamClosed(code int, reason string) {
	p := r.proxy
	if !p.upstream.isCurrent(r.generation) {
		return
	}
	p.logger.Warn().Int("code", code).Str("reason", reason).Msg("upstream closed")
	if code != domain.CloseCodeNormal {
		text := fmt.Sprintf("upstream connection closed with code %d", code)
		if reason != "" {
			text += ": " + reason
		}
		p.reportError("upstream_closed", text)
	}
}
