package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status reports whether a downstream client is attached.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnected    Status = "connected"
)

// Mode is the top-level operating mode of the proxy.
type Mode string

const (
	ModePending  Mode = "pending"
	ModeRecord   Mode = "record"
	ModePlayback Mode = "playback"
	ModeSaving   Mode = "saving"
	ModeLoading  Mode = "loading"
)

// Modes lists every mode in a stable order.
func Modes() []Mode {
	return []Mode{ModePending, ModeRecord, ModePlayback, ModeSaving, ModeLoading}
}

// MaxErrors bounds State.Errors; older entries are dropped first.
const MaxErrors = 20

// ErrorEntry is an operator-visible problem, encoded as [unixMillis, text].
type ErrorEntry struct {
	At   time.Time
	Text string
}

func (e ErrorEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{e.At.UnixMilli(), e.Text})
}

func (e *ErrorEntry) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("error entry: expected 2 elements, got %d", len(pair))
	}
	var millis int64
	if err := json.Unmarshal(pair[0], &millis); err != nil {
		return fmt.Errorf("error entry timestamp: %w", err)
	}
	if err := json.Unmarshal(pair[1], &e.Text); err != nil {
		return fmt.Errorf("error entry text: %w", err)
	}
	e.At = time.UnixMilli(millis)
	return nil
}

// State is the proxy state. It is replaced, never mutated, by committing the
// output of the reducer. Version increases by one on every committed change.
type State struct {
	Status   Status       `json:"status"`
	Mode     Mode         `json:"mode"`
	Messages []Message    `json:"messages"`
	Errors   []ErrorEntry `json:"errors"`
	Version  uint64       `json:"version"`
}

// InitialState is the state the process starts in.
func InitialState() State {
	return State{
		Status: StatusDisconnected,
		Mode:   ModePending,
	}
}

func (s State) MarshalJSON() ([]byte, error) {
	type wire State
	out := wire(s)
	if out.Messages == nil {
		out.Messages = []Message{}
	}
	if out.Errors == nil {
		out.Errors = []ErrorEntry{}
	}
	return json.Marshal(out)
}

// AcceptsClients reports whether a downstream connection may be admitted.
func (s State) AcceptsClients() bool {
	return s.Mode == ModeRecord || s.Mode == ModePlayback
}
