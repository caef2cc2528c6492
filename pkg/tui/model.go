package tui

import (
	"context"
	"time"

	"erc20idx/pkg/controller"
	"erc20idx/pkg/state"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Version is set by Start()
var Version = "dev"

// --- Messages ---

type clearStatusMsg struct{}

type queryDoneMsg struct {
	err error
}

type connectDoneMsg struct {
	state state.State
	err   error
}

// Options configures the terminal page.
type Options struct {
	Columns      int
	AutoConnect  bool
	InitialQuery string
	// ServerURL is shown in the footer when the HTTP page runs alongside.
	ServerURL string
}

// --- Model ---

type model struct {
	ctrl          *controller.Controller
	sub           controller.Subscriber
	st            state.State
	input         textinput.Model
	spinner       spinner.Model
	width         int
	height        int
	columns       int
	statusMessage string
	showHelp      bool
	showQR        bool
	showGraph     bool
	privacyMode   bool
	qr            string
	latencies     []float64
	opts          Options
}

func initialModel(ctrl *controller.Controller, opts Options) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	ti := textinput.New()
	ti.Placeholder = "0x... or name.eth"
	ti.Prompt = "Address: "
	ti.CharLimit = 128
	ti.Width = 50
	ti.Focus()

	st := ctrl.State()
	if opts.InitialQuery != "" {
		ti.SetValue(opts.InitialQuery)
	} else if st.Address != "" {
		ti.SetValue(st.Address)
	}

	columns := opts.Columns
	if columns <= 0 {
		columns = 4
	}

	return model{
		ctrl:    ctrl,
		sub:     ctrl.Subscribe(),
		st:      st,
		input:   ti,
		spinner: s,
		columns: columns,
		opts:    opts,
	}
}

func (m model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		listenForController(m.sub),
		m.spinner.Tick,
		textinput.Blink,
	}
	if m.opts.AutoConnect {
		cmds = append(cmds, connectCmd(m.ctrl))
	}
	if m.opts.InitialQuery != "" {
		cmds = append(cmds, queryCmd(m.ctrl, m.opts.InitialQuery))
	}
	return tea.Batch(cmds...)
}

func listenForController(sub controller.Subscriber) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-sub
		if !ok {
			return nil
		}
		return ev
	}
}

func queryCmd(ctrl *controller.Controller, input string) tea.Cmd {
	return func() tea.Msg {
		_, err := ctrl.Query(context.Background(), input)
		return queryDoneMsg{err: err}
	}
}

func connectCmd(ctrl *controller.Controller) tea.Cmd {
	return func() tea.Msg {
		st, err := ctrl.Connect(context.Background())
		return connectDoneMsg{state: st, err: err}
	}
}

func clearStatusAfter(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return clearStatusMsg{}
	})
}
