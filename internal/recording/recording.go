// Package recording stores captured sessions as newline-delimited JSON, one
// message per line in capture order.
package recording

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"eviproxy/internal/domain"
)

// Store reads and writes recording files.
type Store struct {
	logger zerolog.Logger
}

func NewStore(logger zerolog.Logger) *Store {
	return &Store{logger: logger.With().Str("component", "recording").Logger()}
}

// Save overwrites path with one JSON object per line.
func (s *Store) Save(path string, messages []domain.Message) error {
	var buf bytes.Buffer
	for _, msg := range messages {
		buf.Write(msg.Bytes())
		buf.WriteByte('\n')
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "create recording directory %q", dir)
		}
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return errors.Wrapf(err, "write recording %q", path)
	}
	return nil
}

// Load parses every non-blank line of path. Lines that are not valid message
// envelopes are logged and skipped.
func (s *Store) Load(path string) ([]domain.Message, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read recording %q", path)
	}

	var messages []domain.Message
	for i, line := range bytes.Split(data, []byte("\n")) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		msg, err := domain.ParseMessage(line)
		if err != nil {
			s.logger.Warn().Err(err).Str("path", path).Int("line", i+1).Msg("skipping unparsable recording line")
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}
