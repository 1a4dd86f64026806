package domain

import (
	"strings"

	"github.com/samber/lo"
)

// CloseType names a simulated transport-level disconnect.
type CloseType string

const (
	CloseAbnormalDisconnect CloseType = "abnormal_disconnect"
	CloseIntentional        CloseType = "intentional_close"
)

// WebSocket close codes used by the proxy.
const (
	CloseCodeNormal       = 1000
	CloseCodeAbnormal     = 1006
	CloseCodeSecondClient = 4000
)

// CloseTypes lists the simulated disconnects in menu order.
func CloseTypes() []CloseType {
	return []CloseType{CloseAbnormalDisconnect, CloseIntentional}
}

// Code returns the close code a close type is realized with.
func (c CloseType) Code() (int, bool) {
	switch c {
	case CloseAbnormalDisconnect:
		return CloseCodeAbnormal, true
	case CloseIntentional:
		return CloseCodeNormal, true
	default:
		return 0, false
	}
}

// Label is the operator-facing name, e.g. "Abnormal disconnect (1006)".
func (c CloseType) Label() string {
	switch c {
	case CloseAbnormalDisconnect:
		return "Abnormal disconnect (1006)"
	case CloseIntentional:
		return "Intentional close (1000)"
	default:
		return string(c)
	}
}

// ErrorSpec describes one injectable protocol error.
type ErrorSpec struct {
	Code        string
	Slug        string
	Message     string
	ShouldClose bool
	CloseCode   int
}

var errorTable = []ErrorSpec{
	{
		Code:        "I0116",
		Slug:        "transcription_failure",
		Message:     "The transcription service failed to process the audio input.",
		ShouldClose: true,
		CloseCode:   CloseCodeNormal,
	},
	{
		Code:        "E0714",
		Slug:        "inactivity_timeout",
		Message:     "The chat was closed after a period of user inactivity.",
		ShouldClose: true,
		CloseCode:   CloseCodeNormal,
	},
	{
		Code:        "E0715",
		Slug:        "max_duration_timeout",
		Message:     "The chat was closed because it reached its maximum duration.",
		ShouldClose: true,
		CloseCode:   CloseCodeNormal,
	},
	{
		Code:    "E0712",
		Slug:    "custom_language_model_timed_out",
		Message: "The custom language model timed out before producing a response.",
	},
}

var errorsByCode = lo.KeyBy(errorTable, func(entry ErrorSpec) string { return entry.Code })

// ErrorSpecs returns the error table in menu order.
func ErrorSpecs() []ErrorSpec {
	return append([]ErrorSpec(nil), errorTable...)
}

// LookupError finds a table entry by protocol code.
func LookupError(code string) (ErrorSpec, bool) {
	entry, ok := errorsByCode[code]
	return entry, ok
}

// Label is the operator-facing name, e.g. "inactivity timeout (E0714)".
func (s ErrorSpec) Label() string {
	return strings.ReplaceAll(s.Slug, "_", " ") + " (" + s.Code + ")"
}

type errorFrame struct {
	Type            string  `json:"type"`
	Code            string  `json:"code"`
	Slug            string  `json:"slug"`
	Message         string  `json:"message"`
	CustomSessionID *string `json:"custom_session_id"`
	RequestID       string  `json:"request_id"`
}

// Frame builds the error envelope sent to the client for this entry.
func (s ErrorSpec) Frame(requestID string) (Message, error) {
	return NewMessage(errorFrame{
		Type:      "error",
		Code:      s.Code,
		Slug:      s.Slug,
		Message:   s.Message,
		RequestID: requestID,
	})
}
