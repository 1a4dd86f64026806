package console

import "github.com/charmbracelet/lipgloss"

var (
	colorPrimary   = lipgloss.Color("#7D56F4")
	colorSecondary = lipgloss.Color("#F4A956")
	colorText      = lipgloss.Color("#FAFAFA")
	colorSubtext   = lipgloss.Color("#777777")
	colorSuccess   = lipgloss.Color("#43BF6D")
	colorError     = lipgloss.Color("#FF5F5F")

	styleLogs = lipgloss.NewStyle().
			Foreground(colorSubtext)

	styleTitle = lipgloss.NewStyle().
			Background(colorPrimary).
			Foreground(colorText).
			Padding(0, 1).
			Bold(true)

	styleStatusConnected = lipgloss.NewStyle().
				Foreground(colorSuccess).
				Bold(true)

	styleStatusIdle = lipgloss.NewStyle().
			Foreground(colorSubtext)

	styleKey = lipgloss.NewStyle().
			Foreground(colorSecondary).
			Bold(true)

	styleItem = lipgloss.NewStyle().
			Foreground(colorText)

	styleItemSelected = lipgloss.NewStyle().
				Foreground(colorSecondary).
				Bold(true)

	styleError = lipgloss.NewStyle().
			Foreground(colorError)

	styleHelp = lipgloss.NewStyle().
			Foreground(colorSubtext).
			Italic(true)

	styleMenu = lipgloss.NewStyle().
			Border(lipgloss.ThickBorder()).
			BorderForeground(colorSubtext).
			Padding(0, 1)
)
