package tui

import (
	"fmt"
	"strings"

	"erc20idx/pkg/models"
	"erc20idx/pkg/state"
	"erc20idx/pkg/utils"

	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"
)

func (m model) View() string {
	if m.showHelp {
		return m.viewHelp()
	}
	if m.showQR {
		return m.viewQR()
	}
	if m.showGraph {
		return m.viewGraph()
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("ERC-20 Token Indexer"))
	b.WriteString(" ")
	b.WriteString(subtleStyle.Render(Version))
	b.WriteString("\n")
	b.WriteString(m.viewSession())
	b.WriteString("\n\n")

	b.WriteString(m.input.View())
	b.WriteString("  ")
	b.WriteString(subtleStyle.Render("[enter] Check ERC-20 Token Balances"))
	b.WriteString("\n")

	if m.st.InputErr != "" {
		b.WriteString(errStyle.Render(m.st.InputErr))
		b.WriteString("\n")
	}
	if m.st.Err != "" {
		b.WriteString(errStyle.Render("Error: " + m.st.Err))
		b.WriteString("\n")
	}
	if m.st.Loading {
		b.WriteString(fmt.Sprintf("%s Loading token balances...\n", m.spinner.View()))
	}
	b.WriteString("\n")

	if m.st.ShowPlaceholder() {
		b.WriteString(subtleStyle.Render(state.Placeholder))
	} else {
		b.WriteString(infoStyle.Render("ERC-20 token balances of " + m.maskAddress(m.st.ResultAddress)))
		b.WriteString("\n")
		b.WriteString(subtleStyle.Render(state.FilterNotice))
		b.WriteString("\n")
		b.WriteString(m.renderTiles(m.st.Records))
	}
	b.WriteString("\n")

	if m.statusMessage != "" {
		b.WriteString("\n")
		b.WriteString(infoStyle.Render(m.statusMessage))
	}
	b.WriteString("\n")
	b.WriteString(m.footer())
	return b.String()
}

func (m model) viewSession() string {
	if !m.st.Connected {
		return subtleStyle.Render("Wallet not connected (ctrl+w to connect)")
	}
	return subtleStyle.Render(fmt.Sprintf("Wallet %s on chain %s", m.maskAddress(utils.ShortAddress(m.st.Address)), m.st.ChainID))
}

func (m model) footer() string {
	parts := []string{"enter: query", "ctrl+w: wallet", "ctrl+y: copy", "ctrl+o: QR", "ctrl+g: latency", "ctrl+p: privacy", "f1: help", "esc: quit"}
	footer := strings.Join(parts, " • ")
	if m.opts.ServerURL != "" {
		footer += "\n" + "Web page at " + m.opts.ServerURL
	}
	return subtleStyle.Render(footer)
}

// tileWidth is the inner width of one tile for the current window.
func (m model) tileWidth() int {
	if m.width <= 0 {
		return 24
	}
	w := m.width/m.columns - 4
	if w < 12 {
		w = 12
	}
	return w
}

func (m model) renderTile(r models.DisplayRecord, width int) string {
	lines := []string{
		symbolStyle.Render("$" + utils.TruncateString(r.Symbol, width-1)),
		utils.TruncateString(m.displayBalance(r.Balance), width),
	}
	if r.Logo != "" {
		lines = append(lines, subtleStyle.Render(utils.TruncateString(r.Logo, width)))
	}
	return tileStyle.Width(width).Render(strings.Join(lines, "\n"))
}

func (m model) renderTiles(records []models.DisplayRecord) string {
	if len(records) == 0 {
		return subtleStyle.Render("No tokens with metadata found.")
	}
	width := m.tileWidth()
	var rows []string
	for _, chunk := range chunkRecords(records, m.columns) {
		tiles := make([]string, 0, len(chunk))
		for _, r := range chunk {
			tiles = append(tiles, m.renderTile(r, width))
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, tiles...))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func (m model) viewHelp() string {
	shortcuts := []string{
		"enter:  Query the typed address",
		"ctrl+w: Connect or reconnect the wallet",
		"ctrl+y: Copy the address to the clipboard",
		"ctrl+o: Show the address as a QR code",
		"ctrl+g: Query latency graph",
		"ctrl+p: Toggle privacy mode",
		"esc:    Quit (or close this view)",
	}
	content := boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("Keyboard Shortcuts"),
		"\n",
		strings.Join(shortcuts, "\n"),
	))
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, content)
}

func (m model) viewQR() string {
	content := boxStyle.Render(lipgloss.JoinVertical(lipgloss.Center,
		titleStyle.Render("Address QR Code"),
		m.qr,
		m.currentAddress(),
	))
	footer := subtleStyle.Render("q/esc: back")
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, lipgloss.JoinVertical(lipgloss.Center, content, footer))
}

func (m model) viewGraph() string {
	header := titleStyle.Render("Query Latency")
	var graph, stats string
	if len(m.latencies) > 0 {
		min, max, sum := m.latencies[0], m.latencies[0], 0.0
		for _, v := range m.latencies {
			if v < min {
				min = v
			}
			if v > max {
				max = v
			}
			sum += v
		}
		avg := sum / float64(len(m.latencies))
		stats = subtleStyle.Render(fmt.Sprintf("Low: %.2fs • Avg: %.2fs • High: %.2fs", min, avg, max))

		width := m.width - 20
		if width < 10 {
			width = 10
		}
		height := m.height - 14
		if height < 3 {
			height = 3
		}
		graph = asciigraph.Plot(m.latencies,
			asciigraph.Height(height),
			asciigraph.Width(width),
			asciigraph.Caption("Query latency (seconds)"),
		)
	} else {
		graph = "Not enough data to draw graph."
	}
	content := boxStyle.Render(lipgloss.JoinVertical(lipgloss.Center, header, "\n", stats, "\n", graph))
	footer := subtleStyle.Render("ctrl+g/q/esc: back")
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, lipgloss.JoinVertical(lipgloss.Center, content, "\n", footer))
}
