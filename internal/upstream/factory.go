package upstream

import (
	"time"

	"github.com/rs/zerolog"

	"eviproxy/internal/domain"
	"eviproxy/internal/ports"
)

// Factory builds Live and Playback links from fixed configuration.
type Factory struct {
	Live          LiveConfig
	PlaybackDelay time.Duration
	Logger        zerolog.Logger
}

func (f Factory) NewLive(listener ports.UpstreamListener) ports.Upstream {
	return NewLive(f.Live, listener, f.Logger)
}

func (f Factory) NewPlayback(script []domain.Message, listener ports.UpstreamListener) ports.Upstream {
	return NewPlayback(script, f.PlaybackDelay, listener, f.Logger)
}
