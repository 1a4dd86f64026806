package console

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"eviproxy/internal/domain"
)

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case pollMsg:
		m = m.refresh()
		return m, poll()

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.sink.Push(domain.Terminate{})
			return m, nil
		}
		if m.screen == screenPrompt {
			return m.updatePrompt(msg)
		}
		return m.updateMenu(msg), nil
	}

	return m, nil
}

// refresh pulls the latest state and log lines. Any committed change resets
// the console to the root menu of the new state.
func (m Model) refresh() Model {
	if m.logs != nil {
		m.logLines = m.logs.Last(m.logRows())
	}
	next := m.snapshot()
	if next.Version != m.state.Version {
		m.state = next
		m = m.reset()
	}
	return m
}

func (m Model) reset() Model {
	m.screen = screenMenu
	m.cursor = 0
	m.prompt.Blur()
	m.prompt.SetValue("")
	return m
}

func (m Model) updateMenu(msg tea.KeyMsg) Model {
	items := m.items()
	switch msg.Type {
	case tea.KeyUp, tea.KeyShiftTab:
		if m.cursor > 0 {
			m.cursor--
		}
		return m
	case tea.KeyDown, tea.KeyTab:
		if m.cursor < len(items)-1 {
			m.cursor++
		}
		return m
	case tea.KeyEnter:
		if m.cursor < len(items) {
			return m.activate(items[m.cursor])
		}
		return m
	case tea.KeyEsc:
		return m.cancel()
	}

	key := strings.ToLower(msg.String())
	for _, item := range items {
		if item.key == key {
			return m.activate(item)
		}
	}
	return m
}

// cancel backs out of the current menu. At the root of saving and loading it
// produces the same event as dismissing the original prompt.
func (m Model) cancel() Model {
	if m.screen == screenErrorMenu {
		return m.reset()
	}
	switch m.state.Mode {
	case domain.ModeSaving:
		m.sink.Push(domain.DiscardRecording{})
	case domain.ModeLoading:
		m.sink.Push(domain.CancelLoading{})
	}
	return m.reset()
}

func (m Model) activate(item menuItem) Model {
	switch {
	case item.event != nil:
		if item.event.EventType() != domain.EventNoop {
			m.sink.Push(item.event)
		}
		return m.reset()
	case item.open == screenErrorMenu:
		m.screen = screenErrorMenu
		m.cursor = 0
		return m
	case item.open == screenPrompt:
		m.screen = screenPrompt
		m.kind = promptLoadPath
		m.prompt.Prompt = "Enter the path to load an EVI recording: "
		if m.state.Mode == domain.ModeSaving {
			m.kind = promptSavePath
			m.prompt.Prompt = "Enter the path to save the recording: "
		}
		m.prompt.SetValue(defaultFilePath)
		m.prompt.CursorEnd()
		m.prompt.Focus()
		return m
	default:
		return m
	}
}

func (m Model) updatePrompt(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		path := strings.TrimSpace(m.prompt.Value())
		if path == "" {
			return m, nil
		}
		if m.kind == promptSavePath {
			m.sink.Push(domain.ProvideSavePath{FilePath: path})
		} else {
			m.sink.Push(domain.ProvideLoadPath{FilePath: path})
		}
		return m.reset(), nil
	case tea.KeyEsc:
		if m.kind == promptSavePath {
			m.sink.Push(domain.DiscardRecording{})
		} else {
			m.sink.Push(domain.CancelLoading{})
		}
		return m.reset(), nil
	}

	var cmd tea.Cmd
	m.prompt, cmd = m.prompt.Update(msg)
	return m, cmd
}

func (m Model) logRows() int {
	if m.height <= 0 {
		return defaultLogRows
	}
	rows := m.height - 14
	if rows < 3 {
		rows = 3
	}
	return rows
}
