package tui

import (
	"fmt"

	"erc20idx/pkg/controller"

	tea "github.com/charmbracelet/bubbletea"
)

// Start runs the terminal page until the user quits.
func Start(ctrl *controller.Controller, opts Options, version string) error {
	Version = version
	m := initialModel(ctrl, opts)
	defer ctrl.Unsubscribe(m.sub)

	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("alas, there's been an error: %w", err)
	}
	return nil
}
