// Package logging builds the process logger.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

type Options struct {
	Level   string
	File    string
	NoColor bool
}

// New returns a console-formatted logger writing to out and, when opts.File
// is set, also to that file in plain text. The returned closer releases the
// file and is never nil.
func New(opts Options, out io.Writer) (zerolog.Logger, io.Closer, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return zerolog.Nop(), nopCloser{}, err
	}

	writers := []io.Writer{zerolog.ConsoleWriter{Out: out, NoColor: opts.NoColor, TimeFormat: time.Kitchen}}
	var closer io.Closer = nopCloser{}
	if path := strings.TrimSpace(opts.File); path != "" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return zerolog.Nop(), nopCloser{}, errors.Wrapf(err, "create log directory %q", dir)
			}
		}
		file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return zerolog.Nop(), nopCloser{}, errors.Wrapf(err, "open log file %q", path)
		}
		writers = append(writers, zerolog.ConsoleWriter{Out: file, NoColor: true, TimeFormat: time.RFC3339})
		closer = file
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().
		Timestamp().
		Logger()
	return logger, closer, nil
}

// ParseLevel accepts zerolog level names; empty means info.
func ParseLevel(raw string) (zerolog.Level, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return zerolog.InfoLevel, nil
	}
	if raw == "warning" {
		raw = "warn"
	}
	level, err := zerolog.ParseLevel(raw)
	if err != nil {
		return zerolog.NoLevel, errors.Wrapf(err, "invalid log level %q", raw)
	}
	return level, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
