// Package console is the interactive operator menu. It reads committed state,
// shows recent log lines and turns key presses into events.
package console

import (
	"context"
	"errors"
	"io"
	"os"
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"

	"eviproxy/internal/domain"
	"eviproxy/internal/ports"
)

type Options struct {
	Sink      ports.EventSink
	Logs      *LogBuffer
	ClientURL string
	Input     io.Reader
	Output    io.Writer
}

// Console runs the menu program and mirrors the latest committed state for it.
type Console struct {
	opts  Options
	state atomic.Pointer[domain.State]
}

func New(opts Options) *Console {
	c := &Console{opts: opts}
	initial := domain.InitialState()
	c.state.Store(&initial)
	return c
}

// StateChanged records state for the next refresh. It never blocks.
func (c *Console) StateChanged(state domain.State) {
	c.state.Store(&state)
}

func (c *Console) snapshot() domain.State {
	return *c.state.Load()
}

// Run blocks until ctx is done or the program exits.
func (c *Console) Run(ctx context.Context) error {
	programOpts := []tea.ProgramOption{tea.WithContext(ctx)}
	if c.opts.Input != nil {
		programOpts = append(programOpts, tea.WithInput(c.opts.Input))
	}
	if c.opts.Output != nil {
		programOpts = append(programOpts, tea.WithOutput(c.opts.Output))
	}

	p := tea.NewProgram(newModel(c.opts.Sink, c.snapshot, c.opts.Logs, c.opts.ClientURL), programOpts...)
	if _, err := p.Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return err
	}
	return nil
}

// Enabled reports whether f is an interactive terminal.
func Enabled(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
