package usecase

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"eviproxy/internal/domain"
	"eviproxy/internal/ports"
)

// execute performs one effect. It reports whether the loop must stop.
func (p *Proxy) execute(ctx context.Context, effect domain.Effect) bool {
	switch fx := effect.(type) {
	case domain.SendDownstream:
		p.logger.Info().
			Int("remaining", fx.Remaining).
			Str("message", fx.Message.Summary()).
			Msg("sending scripted message")
		p.downstream.Broadcast(fx.Message)
		p.metrics.RecordFrame("downstream")

	case domain.ConnectUpstream:
		p.connectUpstream(ctx)

	case domain.Cleanup:
		p.upstream.clear(p.logger)
		p.downstream.Close()

	case domain.LoadRecording:
		p.loadRecording(fx.FilePath)

	case domain.SaveRecording:
		p.saveRecording(fx.FilePath, fx.Messages)

	case domain.InjectClose:
		code, ok := fx.CloseType.Code()
		if !ok {
			p.logger.Warn().Str("close_type", string(fx.CloseType)).Msg("unknown close type")
			return false
		}
		p.logger.Info().Str("close_type", string(fx.CloseType)).Int("code", code).Msg("simulating disconnect")
		p.downstream.CloseWithError(code, "")

	case domain.InjectError:
		p.injectError(fx)

	case domain.Shutdown:
		p.closeLinks()
		return true

	default:
		p.logger.Warn().Str("effect", string(effect.EffectType())).Msg("unhandled effect")
	}
	return false
}

// connectUpstream replaces the active upstream with one for the current mode.
func (p *Proxy) connectUpstream(ctx context.Context) {
	state := p.Snapshot()
	var build func(generation uint64) ports.Upstream
	switch state.Mode {
	case domain.ModeRecord:
		build = func(generation uint64) ports.Upstream {
			return p.upstreams.NewLive(&upstreamRelay{proxy: p, mode: domain.ModeRecord, generation: generation})
		}
	case domain.ModePlayback:
		script := state.Messages
		build = func(generation uint64) ports.Upstream {
			return p.upstreams.NewPlayback(script, &upstreamRelay{proxy: p, mode: domain.ModePlayback, generation: generation})
		}
	default:
		p.logger.Warn().Str("mode", string(state.Mode)).Msg("no upstream for mode")
		return
	}

	link := p.upstream.replace(p.logger, build)
	if err := link.Connect(ctx); err != nil {
		p.reportError("upstream_connect", fmt.Sprintf("failed to connect upstream: %v", err))
		return
	}
	p.logger.Info().Str("mode", string(state.Mode)).Msg("upstream connecting")
}

func (p *Proxy) loadRecording(path string) {
	messages, err := p.store.Load(path)
	p.metrics.RecordRecording("load", err)
	if err != nil {
		p.reportError("recording_load", fmt.Sprintf("failed to load recording: %v", err))
		p.internal.Push(domain.CancelLoading{})
		return
	}
	if len(messages) == 0 {
		p.reportError("recording_load", fmt.Sprintf("recording %s contains no messages", path))
		p.internal.Push(domain.CancelLoading{})
		return
	}
	p.logger.Info().Str("path", path).Int("messages", len(messages)).Msg("recording loaded")
	p.internal.Push(domain.StartPlaybackMode{Messages: messages})
}

func (p *Proxy) saveRecording(path string, messages []domain.Message) {
	err := p.store.Save(path, messages)
	p.metrics.RecordRecording("save", err)
	if err != nil {
		p.reportError("recording_save", fmt.Sprintf("failed to save recording: %v", err))
		return
	}
	p.logger.Info().Str("path", path).Int("messages", len(messages)).Msg("recording saved")
}

func (p *Proxy) injectError(fx domain.InjectError) {
	entry, ok := domain.LookupError(fx.ErrorCode)
	if !ok {
		p.logger.Warn().Str("code", fx.ErrorCode).Msg("unknown error code")
		return
	}
	frame, err := entry.Frame(uuid.NewString())
	if err != nil {
		p.logger.Error().Err(err).Str("code", fx.ErrorCode).Msg("failed to build error frame")
		return
	}
	p.logger.Info().Str("code", entry.Code).Bool("close", fx.ShouldClose && entry.ShouldClose).Msg("simulating error")
	p.downstream.SendError(frame)
	if fx.ShouldClose && entry.ShouldClose && entry.CloseCode != 0 {
		p.downstream.CloseWithError(entry.CloseCode, "")
	}
}
