package usecase

import (
	"sync"

	"github.com/rs/zerolog"

	"eviproxy/internal/ports"
	"eviproxy/internal/upstream"
)

// upstreamSlot holds the active upstream. A replacement bumps the generation
// so late callbacks from the previous link can be recognized and dropped.
type upstreamSlot struct {
	mu         sync.Mutex
	current    ports.Upstream
	generation uint64
}

// get returns the active link, or Uninitialized when none is installed.
func (s *upstreamSlot) get() ports.Upstream {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return upstream.Uninitialized{}
	}
	return s.current
}

func (s *upstreamSlot) isCurrent(generation uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil && s.generation == generation
}

// replace closes the previous link fully, then installs the one returned by
// build. Closing happens outside the lock because a closing link may still
// be delivering a callback that calls isCurrent.
func (s *upstreamSlot) replace(logger zerolog.Logger, build func(generation uint64) ports.Upstream) ports.Upstream {
	previous, generation := s.detach()
	closeUpstream(logger, previous)

	next := build(generation)
	s.mu.Lock()
	if s.generation == generation {
		s.current = next
	}
	s.mu.Unlock()
	return next
}

// clear closes the active link, if any, and leaves the slot uninitialized.
func (s *upstreamSlot) clear(logger zerolog.Logger) {
	previous, _ := s.detach()
	closeUpstream(logger, previous)
}

func (s *upstreamSlot) detach() (ports.Upstream, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	previous := s.current
	s.current = nil
	s.generation++
	return previous, s.generation
}

func closeUpstream(logger zerolog.Logger, link ports.Upstream) {
	if link == nil {
		return
	}
	if err := link.Close(); err != nil {
		logger.Warn().Err(err).Msg("failed to close upstream")
	}
}
