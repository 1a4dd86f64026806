package reducer

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"eviproxy/internal/domain"
)

func msg(t *testing.T, typ string, n int) domain.Message {
	t.Helper()
	m, err := domain.ParseMessage([]byte(fmt.Sprintf(`{"type":%q,"n":%d}`, typ, n)))
	if err != nil {
		t.Fatalf("parse message: %v", err)
	}
	return m
}

func run(state domain.State, events ...domain.Event) (domain.State, []domain.Effect) {
	var all []domain.Effect
	for _, event := range events {
		var effects []domain.Effect
		state, effects = Reduce(state, event)
		all = append(all, effects...)
	}
	return state, all
}

func TestStartRecordThenConnect(t *testing.T) {
	t.Parallel()

	state, effects := run(domain.InitialState(),
		domain.StartRecordMode{},
		domain.ConnectionChange{Status: domain.StatusConnected},
	)

	if state.Mode != domain.ModeRecord || state.Status != domain.StatusConnected {
		t.Fatalf("unexpected state: %+v", state)
	}
	if diff := cmp.Diff([]domain.Effect{domain.ConnectUpstream{}}, effects); diff != "" {
		t.Fatalf("unexpected effects (-want +got):\n%s", diff)
	}
}

func TestSendNextMessagePopsHead(t *testing.T) {
	t.Parallel()

	a, b := msg(t, "assistant_message", 1), msg(t, "audio_output", 2)
	state := domain.State{Mode: domain.ModePlayback, Status: domain.StatusConnected, Messages: []domain.Message{a, b}}

	next, effects := Reduce(state, domain.SendNextMessage{})

	if diff := cmp.Diff([]domain.Message{b}, next.Messages); diff != "" {
		t.Fatalf("unexpected remaining script (-want +got):\n%s", diff)
	}
	want := []domain.Effect{domain.SendDownstream{Message: a, Remaining: 1}}
	if diff := cmp.Diff(want, effects); diff != "" {
		t.Fatalf("unexpected effects (-want +got):\n%s", diff)
	}
	if len(state.Messages) != 2 {
		t.Fatalf("input state was modified: %d messages", len(state.Messages))
	}
}

func TestSimulateAbnormalDisconnectInPlayback(t *testing.T) {
	t.Parallel()

	state := domain.State{Mode: domain.ModePlayback, Status: domain.StatusConnected}
	next, effects := Reduce(state, domain.SimulateClose{CloseType: domain.CloseAbnormalDisconnect})

	if diff := cmp.Diff(state, next); diff != "" {
		t.Fatalf("simulate_close must not change state (-want +got):\n%s", diff)
	}
	want := []domain.Effect{domain.InjectClose{CloseType: domain.CloseAbnormalDisconnect}}
	if diff := cmp.Diff(want, effects); diff != "" {
		t.Fatalf("unexpected effects (-want +got):\n%s", diff)
	}
}

func TestSimulateErrorRequiresKnownCode(t *testing.T) {
	t.Parallel()

	state := domain.State{Mode: domain.ModePlayback, Status: domain.StatusConnected}

	_, effects := Reduce(state, domain.SimulateError{ErrorCode: "E0714", ShouldClose: true})
	want := []domain.Effect{domain.InjectError{ErrorCode: "E0714", ShouldClose: true}}
	if diff := cmp.Diff(want, effects); diff != "" {
		t.Fatalf("unexpected effects (-want +got):\n%s", diff)
	}

	next, effects := Reduce(state, domain.SimulateError{ErrorCode: "X9999"})
	if len(effects) != 0 || next.Version != state.Version {
		t.Fatalf("unknown code should be a no-op, got %v", effects)
	}
}

func TestPlaybackDrainsInRecordedOrder(t *testing.T) {
	t.Parallel()

	const n = 5
	script := make([]domain.Message, n)
	for i := range script {
		script[i] = msg(t, "assistant_message", i)
	}

	state, _ := run(domain.InitialState(),
		domain.StartLoadingMode{},
		domain.StartPlaybackMode{Messages: script},
		domain.ConnectionChange{Status: domain.StatusConnected},
	)

	var sent []domain.Message
	for i := 0; i < n; i++ {
		var effects []domain.Effect
		state, effects = Reduce(state, domain.SendNextMessage{})
		for _, effect := range effects {
			if send, ok := effect.(domain.SendDownstream); ok {
				sent = append(sent, send.Message)
			}
		}
	}

	if len(state.Messages) != 0 {
		t.Fatalf("expected exhausted script, %d left", len(state.Messages))
	}
	if diff := cmp.Diff(script, sent); diff != "" {
		t.Fatalf("playback order mismatch (-want +got):\n%s", diff)
	}

	exhausted, effects := Reduce(state, domain.SendNextMessage{})
	if len(effects) != 0 || exhausted.Version != state.Version {
		t.Fatalf("send on exhausted script should be a no-op")
	}
}

func TestRecordReachesPendingOnlyThroughSavingWhenCaptured(t *testing.T) {
	t.Parallel()

	recording, _ := run(domain.InitialState(),
		domain.StartRecordMode{},
		domain.ConnectionChange{Status: domain.StatusConnected},
		domain.MessageCaptured{Message: msg(t, "chat_metadata", 0)},
	)

	for _, exit := range []domain.Event{
		domain.SaveAndExitRecord{},
		domain.ConnectionChange{Status: domain.StatusDisconnected},
	} {
		next, effects := Reduce(recording, exit)
		if next.Mode != domain.ModeSaving {
			t.Fatalf("%s: expected saving, got %s", exit.EventType(), next.Mode)
		}
		if diff := cmp.Diff([]domain.Effect{domain.Cleanup{}}, effects); diff != "" {
			t.Fatalf("%s: unexpected effects (-want +got):\n%s", exit.EventType(), diff)
		}
	}

	empty, _ := run(domain.InitialState(), domain.StartRecordMode{})
	next, effects := Reduce(empty, domain.SaveAndExitRecord{})
	if next.Mode != domain.ModePending {
		t.Fatalf("empty capture should return to pending, got %s", next.Mode)
	}
	if diff := cmp.Diff([]domain.Effect{domain.Cleanup{}}, effects); diff != "" {
		t.Fatalf("unexpected effects (-want +got):\n%s", diff)
	}
}

func TestSavingResolutions(t *testing.T) {
	t.Parallel()

	captured := []domain.Message{msg(t, "user_message", 1), msg(t, "assistant_message", 2)}
	saving := domain.State{Mode: domain.ModeSaving, Status: domain.StatusDisconnected, Messages: captured, Version: 7}

	saved, effects := Reduce(saving, domain.ProvideSavePath{FilePath: "out.jsonl"})
	if saved.Mode != domain.ModePending || len(saved.Messages) != 0 {
		t.Fatalf("unexpected state after save: %+v", saved)
	}
	want := []domain.Effect{domain.SaveRecording{Messages: captured, FilePath: "out.jsonl"}}
	if diff := cmp.Diff(want, effects); diff != "" {
		t.Fatalf("unexpected effects (-want +got):\n%s", diff)
	}

	discarded, effects := Reduce(saving, domain.DiscardRecording{})
	if discarded.Mode != domain.ModePending || len(discarded.Messages) != 0 || len(effects) != 0 {
		t.Fatalf("unexpected discard result: %+v %v", discarded, effects)
	}

	if _, effects := Reduce(saving, domain.ProvideSavePath{}); len(effects) != 0 {
		t.Fatalf("empty save path should be ignored")
	}
}

func TestLoadingFlow(t *testing.T) {
	t.Parallel()

	loading, effects := run(domain.InitialState(),
		domain.StartLoadingMode{},
		domain.ProvideLoadPath{FilePath: "recording.jsonl"},
	)
	if loading.Mode != domain.ModeLoading {
		t.Fatalf("expected loading, got %s", loading.Mode)
	}
	if diff := cmp.Diff([]domain.Effect{domain.LoadRecording{FilePath: "recording.jsonl"}}, effects); diff != "" {
		t.Fatalf("unexpected effects (-want +got):\n%s", diff)
	}

	cancelled, _ := Reduce(loading, domain.CancelLoading{})
	if cancelled.Mode != domain.ModePending {
		t.Fatalf("expected pending after cancel, got %s", cancelled.Mode)
	}

	direct, effects := Reduce(domain.InitialState(), domain.ProvideLoadPath{FilePath: "x.jsonl"})
	if direct.Mode != domain.ModeLoading || len(effects) != 1 {
		t.Fatalf("load path from pending should enter loading, got %s %v", direct.Mode, effects)
	}

	empty, _ := Reduce(loading, domain.StartPlaybackMode{})
	if empty.Mode != domain.ModeLoading {
		t.Fatalf("empty script must not start playback")
	}
}

func TestPlaybackDisconnectKeepsScript(t *testing.T) {
	t.Parallel()

	state := domain.State{
		Mode:     domain.ModePlayback,
		Status:   domain.StatusConnected,
		Messages: []domain.Message{msg(t, "assistant_message", 1)},
	}
	next, effects := Reduce(state, domain.ConnectionChange{Status: domain.StatusDisconnected})
	if next.Mode != domain.ModePlayback || next.Status != domain.StatusDisconnected || len(next.Messages) != 1 {
		t.Fatalf("unexpected state: %+v", next)
	}
	if diff := cmp.Diff([]domain.Effect{domain.Cleanup{}}, effects); diff != "" {
		t.Fatalf("unexpected effects (-want +got):\n%s", diff)
	}

	exited, effects := Reduce(next, domain.ExitPlayback{})
	if exited.Mode != domain.ModePending || len(exited.Messages) != 0 {
		t.Fatalf("unexpected state after exit: %+v", exited)
	}
	if diff := cmp.Diff([]domain.Effect{domain.Cleanup{}}, effects); diff != "" {
		t.Fatalf("unexpected effects (-want +got):\n%s", diff)
	}
}

func TestTerminateFromAnyMode(t *testing.T) {
	t.Parallel()

	for _, mode := range []domain.Mode{domain.ModePending, domain.ModeRecord, domain.ModePlayback, domain.ModeSaving, domain.ModeLoading} {
		next, effects := Reduce(domain.State{Mode: mode, Status: domain.StatusDisconnected}, domain.Terminate{})
		if next.Mode != domain.ModePending {
			t.Fatalf("%s: expected pending, got %s", mode, next.Mode)
		}
		if diff := cmp.Diff([]domain.Effect{domain.Shutdown{}}, effects); diff != "" {
			t.Fatalf("%s: unexpected effects (-want +got):\n%s", mode, diff)
		}
	}
}

func TestErrorReportedIsCapped(t *testing.T) {
	t.Parallel()

	state := domain.InitialState()
	base := time.UnixMilli(1_700_000_000_000)
	for i := 0; i < domain.MaxErrors+5; i++ {
		state, _ = Reduce(state, domain.ErrorReported{At: base.Add(time.Duration(i) * time.Second), Text: fmt.Sprintf("e%d", i)})
	}
	if len(state.Errors) != domain.MaxErrors {
		t.Fatalf("expected %d errors, got %d", domain.MaxErrors, len(state.Errors))
	}
	if state.Errors[0].Text != "e5" {
		t.Fatalf("expected oldest entries dropped, first is %q", state.Errors[0].Text)
	}
}

func TestMessageCapturedDoesNotAliasInput(t *testing.T) {
	t.Parallel()

	base := make([]domain.Message, 1, 4)
	base[0] = msg(t, "user_message", 0)
	state := domain.State{Mode: domain.ModeRecord, Status: domain.StatusConnected, Messages: base}

	first, _ := Reduce(state, domain.MessageCaptured{Message: msg(t, "a", 1)})
	second, _ := Reduce(state, domain.MessageCaptured{Message: msg(t, "b", 2)})

	if first.Messages[1].Type != "a" || second.Messages[1].Type != "b" {
		t.Fatalf("captured messages share storage: %q %q", first.Messages[1].Type, second.Messages[1].Type)
	}
}

func TestGuardFailuresAreExactNoops(t *testing.T) {
	t.Parallel()

	script := []domain.Message{msg(t, "assistant_message", 1)}
	states := []domain.State{
		{Mode: domain.ModePending, Status: domain.StatusDisconnected, Version: 3},
		{Mode: domain.ModePending, Status: domain.StatusConnected, Version: 3},
		{Mode: domain.ModeRecord, Status: domain.StatusConnected, Messages: script, Version: 3},
		{Mode: domain.ModePlayback, Status: domain.StatusConnected, Version: 3},
		{Mode: domain.ModeSaving, Status: domain.StatusDisconnected, Messages: script, Version: 3},
		{Mode: domain.ModeLoading, Status: domain.StatusDisconnected, Version: 3},
	}
	events := []domain.Event{
		domain.Noop{},
		domain.StartRecordMode{},
		domain.StartLoadingMode{},
		domain.StartPlaybackMode{Messages: script},
		domain.ProvideLoadPath{FilePath: "a.jsonl"},
		domain.CancelLoading{},
		domain.ConnectionChange{Status: domain.StatusConnected},
		domain.ConnectionChange{Status: "bogus"},
		domain.SendNextMessage{},
		domain.SimulateClose{CloseType: domain.CloseIntentional},
		domain.SimulateError{ErrorCode: "E0712"},
		domain.SaveAndExitRecord{},
		domain.ProvideSavePath{FilePath: "a.jsonl"},
		domain.DiscardRecording{},
		domain.ExitPlayback{},
		domain.MessageCaptured{Message: script[0]},
	}

	for _, state := range states {
		for _, event := range events {
			next, effects := Reduce(state, event)
			if legal(state, event) {
				continue
			}
			if diff := cmp.Diff(state, next); diff != "" || effects != nil {
				t.Fatalf("%s in %s/%s: expected no-op, got effects %v diff:\n%s",
					event.EventType(), state.Mode, state.Status, effects, diff)
			}
		}
	}
}

// legal mirrors the transition table's guards for the grid above.
func legal(s domain.State, e domain.Event) bool {
	pendingIdle := s.Mode == domain.ModePending && s.Status == domain.StatusDisconnected
	switch ev := e.(type) {
	case domain.StartRecordMode, domain.StartLoadingMode:
		return pendingIdle
	case domain.StartPlaybackMode:
		return pendingIdle || (s.Mode == domain.ModeLoading && s.Status == domain.StatusDisconnected)
	case domain.ProvideLoadPath:
		return pendingIdle || s.Mode == domain.ModeLoading
	case domain.CancelLoading:
		return s.Mode == domain.ModeLoading
	case domain.ConnectionChange:
		return ev.Status == domain.StatusConnected && s.Status == domain.StatusDisconnected && s.AcceptsClients()
	case domain.SendNextMessage:
		return s.Mode == domain.ModePlayback && len(s.Messages) > 0
	case domain.SimulateClose, domain.SimulateError, domain.ExitPlayback:
		return s.Mode == domain.ModePlayback
	case domain.SaveAndExitRecord, domain.MessageCaptured:
		return s.Mode == domain.ModeRecord
	case domain.ProvideSavePath, domain.DiscardRecording:
		return s.Mode == domain.ModeSaving
	default:
		return false
	}
}
