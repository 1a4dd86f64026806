// Package reducer holds the proxy state machine. Reduce is pure: it performs
// no I/O and returns the input state untouched when an event is not legal in
// the current state.
package reducer

import (
	"slices"

	"eviproxy/internal/domain"
)

// Reduce maps (state, event) to the next state and the effects to perform.
func Reduce(state domain.State, event domain.Event) (domain.State, []domain.Effect) {
	switch e := event.(type) {
	case domain.Noop:
		return state, nil

	case domain.StartRecordMode:
		if state.Mode != domain.ModePending || state.Status != domain.StatusDisconnected {
			return state, nil
		}
		next := state
		next.Mode = domain.ModeRecord
		next.Messages = nil
		return commit(next), nil

	case domain.StartLoadingMode:
		if state.Mode != domain.ModePending || state.Status != domain.StatusDisconnected {
			return state, nil
		}
		next := state
		next.Mode = domain.ModeLoading
		return commit(next), nil

	case domain.ProvideLoadPath:
		if e.FilePath == "" {
			return state, nil
		}
		fromPending := state.Mode == domain.ModePending && state.Status == domain.StatusDisconnected
		if state.Mode != domain.ModeLoading && !fromPending {
			return state, nil
		}
		effects := []domain.Effect{domain.LoadRecording{FilePath: e.FilePath}}
		if state.Mode == domain.ModeLoading {
			return state, effects
		}
		next := state
		next.Mode = domain.ModeLoading
		return commit(next), effects

	case domain.StartPlaybackMode:
		if state.Mode != domain.ModeLoading && state.Mode != domain.ModePending {
			return state, nil
		}
		if state.Status != domain.StatusDisconnected || len(e.Messages) == 0 {
			return state, nil
		}
		next := state
		next.Mode = domain.ModePlayback
		next.Messages = slices.Clip(e.Messages)
		return commit(next), nil

	case domain.CancelLoading:
		if state.Mode != domain.ModeLoading {
			return state, nil
		}
		next := state
		next.Mode = domain.ModePending
		return commit(next), nil

	case domain.ConnectionChange:
		return connectionChange(state, e.Status)

	case domain.MessageCaptured:
		if state.Mode != domain.ModeRecord {
			return state, nil
		}
		next := state
		next.Messages = append(slices.Clip(state.Messages), e.Message)
		return commit(next), nil

	case domain.SendNextMessage:
		if state.Mode != domain.ModePlayback || len(state.Messages) == 0 {
			return state, nil
		}
		head, rest := state.Messages[0], state.Messages[1:]
		next := state
		next.Messages = rest
		return commit(next), []domain.Effect{domain.SendDownstream{Message: head, Remaining: len(rest)}}

	case domain.SimulateClose:
		if state.Mode != domain.ModePlayback {
			return state, nil
		}
		if _, ok := e.CloseType.Code(); !ok {
			return state, nil
		}
		return state, []domain.Effect{domain.InjectClose{CloseType: e.CloseType}}

	case domain.SimulateError:
		if state.Mode != domain.ModePlayback {
			return state, nil
		}
		if _, ok := domain.LookupError(e.ErrorCode); !ok {
			return state, nil
		}
		return state, []domain.Effect{domain.InjectError{ErrorCode: e.ErrorCode, ShouldClose: e.ShouldClose}}

	case domain.SaveAndExitRecord:
		if state.Mode != domain.ModeRecord {
			return state, nil
		}
		next := state
		if len(state.Messages) == 0 {
			next.Mode = domain.ModePending
		} else {
			next.Mode = domain.ModeSaving
		}
		return commit(next), []domain.Effect{domain.Cleanup{}}

	case domain.ProvideSavePath:
		if state.Mode != domain.ModeSaving || e.FilePath == "" {
			return state, nil
		}
		next := state
		next.Mode = domain.ModePending
		next.Messages = nil
		return commit(next), []domain.Effect{domain.SaveRecording{Messages: state.Messages, FilePath: e.FilePath}}

	case domain.DiscardRecording:
		if state.Mode != domain.ModeSaving {
			return state, nil
		}
		next := state
		next.Mode = domain.ModePending
		next.Messages = nil
		return commit(next), nil

	case domain.ExitPlayback:
		if state.Mode != domain.ModePlayback {
			return state, nil
		}
		next := state
		next.Mode = domain.ModePending
		next.Messages = nil
		return commit(next), []domain.Effect{domain.Cleanup{}}

	case domain.ErrorReported:
		if e.Text == "" {
			return state, nil
		}
		next := state
		errs := append(slices.Clip(state.Errors), domain.ErrorEntry{At: e.At, Text: e.Text})
		if len(errs) > domain.MaxErrors {
			errs = errs[len(errs)-domain.MaxErrors:]
		}
		next.Errors = errs
		return commit(next), nil

	case domain.Terminate:
		next := state
		if next.Mode != domain.ModePending {
			next.Mode = domain.ModePending
			next = commit(next)
		}
		return next, []domain.Effect{domain.Shutdown{}}

	default:
		return state, nil
	}
}

func connectionChange(state domain.State, status domain.Status) (domain.State, []domain.Effect) {
	switch status {
	case domain.StatusConnected:
		if state.Status == domain.StatusConnected || !state.AcceptsClients() {
			return state, nil
		}
		next := state
		next.Status = domain.StatusConnected
		return commit(next), []domain.Effect{domain.ConnectUpstream{}}

	case domain.StatusDisconnected:
		next := state
		next.Status = domain.StatusDisconnected
		switch state.Mode {
		case domain.ModeRecord:
			if len(state.Messages) == 0 {
				next.Mode = domain.ModePending
			} else {
				next.Mode = domain.ModeSaving
			}
			return commit(next), []domain.Effect{domain.Cleanup{}}
		case domain.ModePlayback:
			if state.Status == domain.StatusDisconnected {
				return state, nil
			}
			return commit(next), []domain.Effect{domain.Cleanup{}}
		default:
			if state.Status == domain.StatusDisconnected {
				return state, nil
			}
			return commit(next), nil
		}

	default:
		return state, nil
	}
}

func commit(next domain.State) domain.State {
	next.Version++
	return next
}
