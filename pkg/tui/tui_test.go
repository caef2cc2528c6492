package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	"erc20idx/pkg/address"
	"erc20idx/pkg/controller"
	"erc20idx/pkg/models"
	"erc20idx/pkg/state"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const owner = "0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B"

type fakeFetcher struct{}

func (fakeFetcher) Fetch(ctx context.Context, input string) (models.QueryResult, error) {
	decimals := 18
	return models.QueryResult{
		Address:  input,
		Balances: []models.TokenBalance{{ContractAddress: "0xa", TokenBalance: "1234000000000000000000"}},
		Metadata: []models.TokenMetadata{{Name: "Foo", Symbol: "FOO", Decimals: &decimals}},
	}, nil
}

func newTestModel(t *testing.T) model {
	t.Helper()
	ctrl := controller.New(fakeFetcher{}, nil, controller.Options{})
	m := initialModel(ctrl, Options{Columns: 2})
	t.Cleanup(func() { ctrl.Unsubscribe(m.sub) })
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return updated.(model)
}

// runCmd executes cmd and any batch it expands to, collecting the messages.
func runCmd(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		var msgs []tea.Msg
		for _, c := range batch {
			msgs = append(msgs, runCmd(c)...)
		}
		return msgs
	}
	return []tea.Msg{msg}
}

func findMsg[T any](msgs []tea.Msg) (T, bool) {
	for _, msg := range msgs {
		if v, ok := msg.(T); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

func TestChunkRecords(t *testing.T) {
	records := make([]models.DisplayRecord, 5)
	chunks := chunkRecords(records, 4)
	require.Len(t, chunks, 2)
	assert.Len(t, chunks[0], 4)
	assert.Len(t, chunks[1], 1)

	assert.Empty(t, chunkRecords(nil, 4))
	assert.Len(t, chunkRecords(records, 0), 5)
}

func TestView_Placeholder(t *testing.T) {
	m := newTestModel(t)
	assert.Contains(t, m.View(), state.Placeholder)
	assert.NotContains(t, m.View(), state.FilterNotice)
}

func TestUpdate_StateChangedRendersTiles(t *testing.T) {
	m := newTestModel(t)
	st := state.State{}.
		LoadStart("q1", owner, state.State{}.UpdatedAt).
		LoadSuccess("q1", owner, []models.DisplayRecord{
			{Symbol: "FOO", Balance: "1.0", Logo: "https://static.example/foo.png"},
			{Symbol: "BAR", Balance: "1234.5"},
		}, state.State{}.UpdatedAt)

	updated, cmd := m.Update(controller.Event{Type: controller.EventStateChanged, Data: st})
	assert.NotNil(t, cmd)
	view := updated.(model).View()
	assert.NotContains(t, view, state.Placeholder)
	assert.Contains(t, view, state.FilterNotice)
	assert.Contains(t, view, "$FOO")
	assert.Contains(t, view, "1.0")
	assert.Contains(t, view, "$BAR")
	assert.Contains(t, view, "1,234.5")
	assert.Contains(t, view, "static.example")
}

func TestUpdate_PrivacyMode(t *testing.T) {
	m := newTestModel(t)
	m.st = m.st.LoadStart("q1", owner, m.st.UpdatedAt).
		LoadSuccess("q1", owner, []models.DisplayRecord{{Symbol: "FOO", Balance: "42.0"}}, m.st.UpdatedAt)

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyCtrlP})
	view := updated.(model).View()
	assert.NotContains(t, view, "42.0")
	assert.Contains(t, view, "****")
	assert.NotContains(t, view, owner)
}

func TestUpdate_EnterRunsQuery(t *testing.T) {
	m := newTestModel(t)
	m.input.SetValue(owner)

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	done, ok := findMsg[queryDoneMsg](runCmd(cmd))
	require.True(t, ok)
	require.NoError(t, done.err)

	updated, _ = updated.Update(done)
	view := updated.(model).View()
	assert.Contains(t, view, "$FOO")
	assert.Contains(t, view, "1,234.0")
}

func TestUpdate_EnterInvalidAddress(t *testing.T) {
	m := newTestModel(t)
	m.input.SetValue("0x1234")

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	done, ok := findMsg[queryDoneMsg](runCmd(cmd))
	require.True(t, ok)
	assert.ErrorIs(t, done.err, address.ErrInvalid)

	updated, _ = updated.Update(done)
	view := updated.(model).View()
	assert.Contains(t, view, "Invalid address")
	assert.Contains(t, view, state.Placeholder)

	// Typing clears the error.
	updated, _ = updated.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("5")})
	assert.NotContains(t, updated.(model).View(), "Invalid address")
}

func TestUpdate_CopyAddress(t *testing.T) {
	var copied string
	orig := writeClipboard
	writeClipboard = func(s string) error { copied = s; return nil }
	defer func() { writeClipboard = orig }()

	m := newTestModel(t)
	m.st.ResultAddress = owner
	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyCtrlY})
	assert.Equal(t, owner, copied)
	assert.Equal(t, "Full address copied to clipboard!", updated.(model).statusMessage)

	writeClipboard = func(s string) error { return errors.New("no clipboard") }
	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyCtrlY})
	assert.Equal(t, "Failed to copy to clipboard", updated.(model).statusMessage)
}

func TestUpdate_QRCode(t *testing.T) {
	m := newTestModel(t)
	m.st.Address = owner

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyCtrlO})
	mm := updated.(model)
	require.True(t, mm.showQR)
	assert.NotEmpty(t, mm.qr)
	assert.Contains(t, mm.View(), "Address QR Code")

	updated, _ = mm.Update(tea.KeyMsg{Type: tea.KeyEsc})
	assert.False(t, updated.(model).showQR)
}

func TestUpdate_LatencyGraph(t *testing.T) {
	m := newTestModel(t)
	m.input.SetValue(owner)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	runCmd(cmd)

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyCtrlG})
	mm := updated.(model)
	require.Len(t, mm.latencies, 1)
	assert.Contains(t, mm.View(), "Query latency (seconds)")
}

func TestUpdate_ConnectDone(t *testing.T) {
	m := newTestModel(t)
	st := state.State{}.SessionReady(owner, "0x1", m.st.UpdatedAt)

	updated, _ := m.Update(connectDoneMsg{state: st})
	mm := updated.(model)
	assert.Equal(t, owner, mm.input.Value())
	assert.True(t, strings.Contains(mm.View(), "on chain 0x1"))
}

func TestUpdate_ConnectFailed(t *testing.T) {
	m := newTestModel(t)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlW})
	msgs := runCmd(cmd)
	done, ok := findMsg[connectDoneMsg](msgs)
	require.True(t, ok)
	require.Error(t, done.err)

	updated, _ := m.Update(done)
	assert.Contains(t, updated.(model).View(), "wallet not configured")
	assert.Contains(t, updated.(model).View(), "Wallet not connected")
}

func TestUpdate_ConnectSwitchFailedKeepsAccount(t *testing.T) {
	m := newTestModel(t)
	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyCtrlW})
	mm := updated.(model)
	require.Equal(t, "Connecting wallet...", mm.statusMessage)

	switchErr := errors.New("chain not added to wallet")
	st := state.State{}.SessionFailed(owner, switchErr, mm.st.UpdatedAt)
	updated, cmd := mm.Update(connectDoneMsg{state: st, err: switchErr})
	mm = updated.(model)

	assert.Equal(t, owner, mm.input.Value())
	assert.Equal(t, "Wallet connection failed", mm.statusMessage)
	assert.NotNil(t, cmd)
	assert.Contains(t, mm.View(), "chain not added to wallet")
	assert.NotContains(t, mm.View(), "Connecting wallet...")
}

func TestUpdate_Quit(t *testing.T) {
	m := newTestModel(t)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	_, ok := cmd().(tea.QuitMsg)
	assert.True(t, ok)
}
