package console

import (
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"eviproxy/internal/domain"
)

const shownErrors = 3

func (m Model) View() string {
	var b strings.Builder

	if len(m.logLines) > 0 {
		b.WriteString(styleLogs.Render(strings.Join(m.logLines, "\n")))
		b.WriteString("\n\n")
	}

	if errs := m.state.Errors; len(errs) > 0 {
		start := len(errs) - shownErrors
		if start < 0 {
			start = 0
		}
		for _, entry := range errs[start:] {
			b.WriteString(styleError.Render(entry.At.Format(time.Kitchen) + "  " + entry.Text))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	b.WriteString(m.header())
	b.WriteString("\n")

	if m.screen == screenPrompt {
		b.WriteString(styleMenu.Render(m.prompt.View()))
		b.WriteString("\n")
		b.WriteString(styleHelp.Render("enter confirm • esc cancel"))
		return b.String()
	}

	b.WriteString(styleMenu.Render(m.renderItems()))
	b.WriteString("\n")
	b.WriteString(styleHelp.Render("press a key or use ↑/↓ and enter • esc back • ctrl+c quit"))
	return b.String()
}

func (m Model) header() string {
	heading := m.title()
	if m.screen == screenErrorMenu {
		heading = "Select error to simulate:"
	}
	status := styleStatusIdle.Render(string(m.state.Status))
	if m.state.Status == domain.StatusConnected {
		status = styleStatusConnected.Render(string(m.state.Status))
	}
	return lipgloss.JoinHorizontal(lipgloss.Center, styleTitle.Render(heading), " ", status)
}

func (m Model) renderItems() string {
	items := m.items()
	rows := make([]string, 0, len(items))
	for i, item := range items {
		style := styleItem
		marker := "  "
		if i == m.cursor {
			style = styleItemSelected
			marker = "> "
		}
		rows = append(rows, marker+styleKey.Render("["+item.key+"]")+" "+style.Render(item.label))
	}
	return strings.Join(rows, "\n")
}
