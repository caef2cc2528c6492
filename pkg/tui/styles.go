package tui

import "github.com/charmbracelet/lipgloss"

const (
	accent    = lipgloss.Color("#7D56F4")
	muted     = lipgloss.Color("241")
	tileEdge  = lipgloss.Color("#3C3C3C")
	textLight = lipgloss.Color("#FAFAFA")
)

var (
	subtleStyle = lipgloss.NewStyle().Foreground(muted)
	titleStyle  = lipgloss.NewStyle().
			Foreground(textLight).
			Background(accent).
			Padding(0, 1).
			Bold(true)
	infoStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575"))
	errStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F5F"))
	boxStyle  = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent).
			Padding(0, 1)

	// A token tile: symbol, balance, logo reference.
	tileStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(tileEdge).
			Padding(0, 1)
	symbolStyle = lipgloss.NewStyle().Foreground(textLight).Bold(true)
)
