package tui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"erc20idx/pkg/address"
	"erc20idx/pkg/controller"
	"erc20idx/pkg/state"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
	qrcode "github.com/skip2/go-qrcode"
)

var writeClipboard = clipboard.WriteAll

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case controller.Event:
		cmds = append(cmds, listenForController(m.sub))

		switch msg.Type {
		case controller.EventStateChanged:
			if st, ok := msg.Data.(state.State); ok {
				m.st = st
			}
		case controller.EventQueryFinished:
			if stats, ok := msg.Data.(controller.QueryStats); ok && stats.Err == nil {
				m.statusMessage = fmt.Sprintf("Found %d tokens in %s", stats.Tokens, stats.Duration.Round(time.Millisecond))
				cmds = append(cmds, clearStatusAfter(3*time.Second))
			}
			m.latencies = m.ctrl.Latencies()
		}
		if m.st.Loading {
			cmds = append(cmds, m.spinner.Tick)
		}

	case queryDoneMsg:
		if msg.err != nil && errors.Is(msg.err, address.ErrInvalid) {
			m.input.Focus()
		}
		m.st = m.ctrl.State()

	case connectDoneMsg:
		m.st = msg.state
		// The account is kept even when the chain switch failed.
		if msg.state.Address != "" {
			m.input.SetValue(msg.state.Address)
			m.input.CursorEnd()
		}
		if msg.err != nil {
			m.statusMessage = "Wallet connection failed"
		} else {
			m.statusMessage = "Wallet connected"
		}
		cmds = append(cmds, clearStatusAfter(2*time.Second))

	case tea.KeyMsg:
		if m.showHelp || m.showQR || m.showGraph {
			switch msg.String() {
			case "esc", "q", "f1", "ctrl+o", "ctrl+g":
				m.showHelp, m.showQR, m.showGraph = false, false, false
			case "ctrl+c":
				return m, tea.Quit
			}
			return m, nil
		}

		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit

		case "f1":
			m.showHelp = true
			return m, nil

		case "enter":
			value := strings.TrimSpace(m.input.Value())
			if m.st.Loading && value == m.st.Address {
				return m, nil
			}
			cmds = append(cmds, queryCmd(m.ctrl, value), m.spinner.Tick)
			return m, tea.Batch(cmds...)

		case "ctrl+w":
			m.statusMessage = "Connecting wallet..."
			cmds = append(cmds, connectCmd(m.ctrl))
			return m, tea.Batch(cmds...)

		case "ctrl+y":
			addr := m.currentAddress()
			if addr == "" {
				m.statusMessage = "Nothing to copy"
			} else if err := writeClipboard(addr); err != nil {
				m.statusMessage = "Failed to copy to clipboard"
			} else if m.privacyMode {
				m.statusMessage = "Full address copied (Privacy Mode active)!"
			} else {
				m.statusMessage = "Full address copied to clipboard!"
			}
			cmds = append(cmds, clearStatusAfter(2*time.Second))
			return m, tea.Batch(cmds...)

		case "ctrl+o":
			addr := m.currentAddress()
			q, err := qrcode.New(addr, qrcode.Medium)
			if addr == "" || err != nil {
				m.statusMessage = "No address to encode"
				cmds = append(cmds, clearStatusAfter(2*time.Second))
				return m, tea.Batch(cmds...)
			}
			m.qr = q.ToSmallString(false)
			m.showQR = true
			return m, nil

		case "ctrl+g":
			m.latencies = m.ctrl.Latencies()
			m.showGraph = true
			return m, nil

		case "ctrl+p":
			m.privacyMode = !m.privacyMode
			return m, nil
		}

		var cmd tea.Cmd
		before := m.input.Value()
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
		if m.input.Value() != before && m.st.InputErr != "" {
			m.st = m.ctrl.Edit(m.input.Value())
		}

	case clearStatusMsg:
		m.statusMessage = ""

	default:
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}

	if m.st.Loading {
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// currentAddress is the address shown in the results, or the wallet account.
func (m model) currentAddress() string {
	if m.st.ResultAddress != "" {
		return m.st.ResultAddress
	}
	return strings.TrimSpace(m.st.Address)
}
