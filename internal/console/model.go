package console

import (
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/samber/lo"

	"eviproxy/internal/domain"
	"eviproxy/internal/ports"
)

const (
	pollInterval    = 100 * time.Millisecond
	defaultLogRows  = 12
	defaultFilePath = "recording.jsonl"
)

type screen int

const (
	screenMenu screen = iota
	screenErrorMenu
	screenPrompt
)

type promptKind int

const (
	promptSavePath promptKind = iota
	promptLoadPath
)

// menuItem is one selectable entry. Exactly one of event and open is set.
type menuItem struct {
	key   string
	label string
	event domain.Event
	open  screen
}

type pollMsg time.Time

type Model struct {
	sink      ports.EventSink
	snapshot  func() domain.State
	logs      *LogBuffer
	clientURL string

	state  domain.State
	screen screen
	cursor int
	prompt textinput.Model
	kind   promptKind

	logLines []string
	width    int
	height   int
}

func newModel(sink ports.EventSink, snapshot func() domain.State, logs *LogBuffer, clientURL string) Model {
	input := textinput.New()
	input.CharLimit = 1024
	input.Width = 60
	return Model{
		sink:      sink,
		snapshot:  snapshot,
		logs:      logs,
		clientURL: clientURL,
		state:     snapshot(),
		prompt:    input,
	}
}

func (m Model) Init() tea.Cmd {
	return poll()
}

func poll() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg { return pollMsg(t) })
}

// title is the heading of the root menu for the current state.
func (m Model) title() string {
	s := m.state
	connected := s.Status == domain.StatusConnected
	switch s.Mode {
	case domain.ModePending:
		if connected {
			return "Proxy ready (client connected)"
		}
		return "Proxy ready (no client connected)"
	case domain.ModeRecord:
		if !connected {
			return "Recording mode - waiting for client to connect to " + m.clientURL
		}
		return fmt.Sprintf("Recording mode - connected (%d messages captured)", len(s.Messages))
	case domain.ModePlayback:
		suffix := " - no client connected"
		if connected {
			suffix = " - connected"
		}
		return fmt.Sprintf("Playback mode (%d messages remaining)%s", len(s.Messages), suffix)
	case domain.ModeSaving:
		return fmt.Sprintf("Save recording with %d messages?", len(s.Messages))
	case domain.ModeLoading:
		return "Load recording for playback"
	default:
		return string(s.Mode)
	}
}

// rootItems lists the root menu for the current state.
func (m Model) rootItems() []menuItem {
	s := m.state
	switch s.Mode {
	case domain.ModePending:
		return []menuItem{
			{key: "r", label: "Record mode", event: domain.StartRecordMode{}},
			{key: "p", label: "Playback mode", event: domain.StartLoadingMode{}},
			{key: "q", label: "Quit", event: domain.Terminate{}},
		}
	case domain.ModeRecord:
		return []menuItem{
			{key: "q", label: "Quit", event: domain.SaveAndExitRecord{}},
		}
	case domain.ModePlayback:
		if s.Status != domain.StatusConnected {
			return []menuItem{{key: "q", label: "Quit", event: domain.ExitPlayback{}}}
		}
		return []menuItem{
			{key: "n", label: "Next", event: domain.SendNextMessage{}},
			{key: "e", label: "Error simulation", open: screenErrorMenu},
			{key: "q", label: "Quit", event: domain.ExitPlayback{}},
		}
	case domain.ModeSaving:
		return []menuItem{
			{key: "s", label: "Save", open: screenPrompt},
			{key: "d", label: "Discard", event: domain.DiscardRecording{}},
		}
	case domain.ModeLoading:
		return []menuItem{
			{key: "l", label: "Load", open: screenPrompt},
			{key: "c", label: "Cancel", event: domain.CancelLoading{}},
		}
	default:
		return nil
	}
}

// errorItems is the numbered simulation menu: close types, then the error
// table, then Back.
func errorItems() []menuItem {
	closes := lo.Map(domain.CloseTypes(), func(ct domain.CloseType, _ int) menuItem {
		return menuItem{label: ct.Label(), event: domain.SimulateClose{CloseType: ct}}
	})
	codes := lo.Map(domain.ErrorSpecs(), func(entry domain.ErrorSpec, _ int) menuItem {
		return menuItem{label: entry.Label(), event: domain.SimulateError{ErrorCode: entry.Code, ShouldClose: entry.ShouldClose}}
	})
	items := append(append(closes, codes...), menuItem{label: "Back", event: domain.Noop{}})
	for i := range items {
		items[i].key = strconv.Itoa(i + 1)
	}
	return items
}

func (m Model) items() []menuItem {
	if m.screen == screenErrorMenu {
		return errorItems()
	}
	return m.rootItems()
}
