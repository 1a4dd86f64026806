package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrNotObject   = errors.New("message is not a JSON object")
	ErrMissingType = errors.New("message has no string type field")
)

// Message is an opaque protocol envelope. Only the type is inspected; the
// compact JSON it was built from is kept and re-emitted verbatim.
type Message struct {
	Type string
	raw  json.RawMessage
}

// ParseMessage validates data as a {"type": ...} object and compacts it.
func ParseMessage(data []byte) (Message, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Message{}, ErrNotObject
	}

	var head struct {
		Type *string `json:"type"`
	}
	if err := json.Unmarshal(trimmed, &head); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	if head.Type == nil {
		return Message{}, ErrMissingType
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return Message{}, fmt.Errorf("compact message: %w", err)
	}
	return Message{Type: *head.Type, raw: buf.Bytes()}, nil
}

// NewMessage marshals v, which must encode to an object with a type field.
func NewMessage(v any) (Message, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Message{}, err
	}
	return ParseMessage(data)
}

// Bytes returns the compact JSON encoding. Callers must not modify it.
func (m Message) Bytes() []byte {
	return m.raw
}

func (m Message) Equal(other Message) bool {
	return m.Type == other.Type && bytes.Equal(m.raw, other.raw)
}

func (m Message) MarshalJSON() ([]byte, error) {
	if len(m.raw) == 0 {
		return []byte("null"), nil
	}
	return m.raw, nil
}

func (m *Message) UnmarshalJSON(data []byte) error {
	parsed, err := ParseMessage(data)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Summary renders the message for logs with long data fields shortened.
func (m Message) Summary() string {
	var decoded any
	if err := json.Unmarshal(m.raw, &decoded); err != nil {
		return string(m.raw)
	}
	out, err := json.Marshal(truncateData(decoded))
	if err != nil {
		return m.Type
	}
	return string(out)
}

func truncateData(v any) any {
	switch value := v.(type) {
	case map[string]any:
		for key, inner := range value {
			if s, ok := inner.(string); ok && key == "data" {
				if len(s) > 10 {
					s = s[:10]
				}
				value[key] = s + "..."
				continue
			}
			value[key] = truncateData(inner)
		}
		return value
	case []any:
		for i, inner := range value {
			value[i] = truncateData(inner)
		}
		return value
	default:
		return v
	}
}
