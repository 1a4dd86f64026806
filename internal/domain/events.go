package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType is the wire tag of an AppEvent.
type EventType string

const (
	EventNoop              EventType = "noop"
	EventStartRecordMode   EventType = "start_record_mode"
	EventStartLoadingMode  EventType = "start_loading_mode"
	EventStartPlaybackMode EventType = "start_playback_mode"
	EventProvideLoadPath   EventType = "provide_load_path"
	EventCancelLoading     EventType = "cancel_loading"
	EventConnectionChange  EventType = "connection_change"
	EventSendNextMessage   EventType = "send_next_message"
	EventSimulateClose     EventType = "simulate_close"
	EventSimulateError     EventType = "simulate_error"
	EventSaveAndExitRecord EventType = "save_and_exit_record"
	EventProvideSavePath   EventType = "provide_save_path"
	EventDiscardRecording  EventType = "discard_recording"
	EventExitPlayback      EventType = "exit_playback"
	EventTerminate         EventType = "terminate"
	EventMessageCaptured   EventType = "message_captured"
	EventErrorReported     EventType = "error_reported"
)

// Internal reports whether the event is raised only by the proxy itself and
// must not be accepted from external producers.
func (t EventType) Internal() bool {
	return t == EventMessageCaptured || t == EventErrorReported
}

// Event is a state transition trigger. The set of implementations is closed.
type Event interface {
	EventType() EventType
	isEvent()
}

type Noop struct{}

type StartRecordMode struct{}

type StartLoadingMode struct{}

// StartPlaybackMode carries a loaded script.
type StartPlaybackMode struct {
	Messages []Message `json:"messages"`
}

type ProvideLoadPath struct {
	FilePath string `json:"filePath"`
}

type CancelLoading struct{}

type ConnectionChange struct {
	Status Status `json:"status"`
}

type SendNextMessage struct{}

type SimulateClose struct {
	CloseType CloseType `json:"closeType"`
}

type SimulateError struct {
	ErrorCode   string `json:"errorCode"`
	ShouldClose bool   `json:"shouldClose"`
}

type SaveAndExitRecord struct{}

type ProvideSavePath struct {
	FilePath string `json:"filePath"`
}

type DiscardRecording struct{}

type ExitPlayback struct{}

type Terminate struct{}

// MessageCaptured is an upstream message observed while recording.
type MessageCaptured struct {
	Message Message `json:"message"`
}

// ErrorReported surfaces an I/O failure to state observers.
type ErrorReported struct {
	At   time.Time `json:"at"`
	Text string    `json:"text"`
}

func (Noop) EventType() EventType              { return EventNoop }
func (StartRecordMode) EventType() EventType   { return EventStartRecordMode }
func (StartLoadingMode) EventType() EventType  { return EventStartLoadingMode }
func (StartPlaybackMode) EventType() EventType { return EventStartPlaybackMode }
func (ProvideLoadPath) EventType() EventType   { return EventProvideLoadPath }
func (CancelLoading) EventType() EventType     { return EventCancelLoading }
func (ConnectionChange) EventType() EventType  { return EventConnectionChange }
func (SendNextMessage) EventType() EventType   { return EventSendNextMessage }
func (SimulateClose) EventType() EventType     { return EventSimulateClose }
func (SimulateError) EventType() EventType     { return EventSimulateError }
func (SaveAndExitRecord) EventType() EventType { return EventSaveAndExitRecord }
func (ProvideSavePath) EventType() EventType   { return EventProvideSavePath }
func (DiscardRecording) EventType() EventType  { return EventDiscardRecording }
func (ExitPlayback) EventType() EventType      { return EventExitPlayback }
func (Terminate) EventType() EventType         { return EventTerminate }
func (MessageCaptured) EventType() EventType   { return EventMessageCaptured }
func (ErrorReported) EventType() EventType     { return EventErrorReported }

func (Noop) isEvent()              {}
func (StartRecordMode) isEvent()   {}
func (StartLoadingMode) isEvent()  {}
func (StartPlaybackMode) isEvent() {}
func (ProvideLoadPath) isEvent()   {}
func (CancelLoading) isEvent()     {}
func (ConnectionChange) isEvent()  {}
func (SendNextMessage) isEvent()   {}
func (SimulateClose) isEvent()     {}
func (SimulateError) isEvent()     {}
func (SaveAndExitRecord) isEvent() {}
func (ProvideSavePath) isEvent()   {}
func (DiscardRecording) isEvent()  {}
func (ExitPlayback) isEvent()      {}
func (Terminate) isEvent()         {}
func (MessageCaptured) isEvent()   {}
func (ErrorReported) isEvent()     {}

// DecodeEvent parses a JSON {"type": ..., ...} event.
func DecodeEvent(data []byte) (Event, error) {
	var head struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}

	var event Event
	switch head.Type {
	case EventNoop:
		return Noop{}, nil
	case EventStartRecordMode:
		return StartRecordMode{}, nil
	case EventStartLoadingMode:
		return StartLoadingMode{}, nil
	case EventCancelLoading:
		return CancelLoading{}, nil
	case EventSendNextMessage:
		return SendNextMessage{}, nil
	case EventSaveAndExitRecord:
		return SaveAndExitRecord{}, nil
	case EventDiscardRecording:
		return DiscardRecording{}, nil
	case EventExitPlayback:
		return ExitPlayback{}, nil
	case EventTerminate:
		return Terminate{}, nil
	case EventStartPlaybackMode:
		event = decodeInto[StartPlaybackMode](data)
	case EventProvideLoadPath:
		event = decodeInto[ProvideLoadPath](data)
	case EventConnectionChange:
		event = decodeInto[ConnectionChange](data)
	case EventSimulateClose:
		event = decodeInto[SimulateClose](data)
	case EventSimulateError:
		event = decodeInto[SimulateError](data)
	case EventProvideSavePath:
		event = decodeInto[ProvideSavePath](data)
	case EventMessageCaptured:
		event = decodeInto[MessageCaptured](data)
	case EventErrorReported:
		event = decodeInto[ErrorReported](data)
	default:
		return nil, fmt.Errorf("decode event: unknown type %q", head.Type)
	}
	if event == nil {
		return nil, fmt.Errorf("decode event: malformed %s payload", head.Type)
	}
	return event, nil
}

func decodeInto[T Event](data []byte) Event {
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}
