package tui

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/courier/cli/reader"
	"github.com/pithecene-io/courier/ledger"
)

// StatsModel is a Bubble Tea model for stats views.
type StatsModel struct {
	viewType string
	data     any
	width    int
	height   int
	quitting bool
}

// NewStatsModel creates a new stats model.
func NewStatsModel(viewType string, data any) StatsModel {
	return StatsModel{
		viewType: viewType,
		data:     data,
	}
}

// Init implements tea.Model.
func (m StatsModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m StatsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
	}

	return m, nil
}

// View implements tea.Model.
func (m StatsModel) View() string {
	if m.quitting {
		return ""
	}

	var content string
	switch m.viewType {
	case ViewStatsDeliveries:
		content = m.renderDeliveries()
	case ViewStatsMetrics:
		content = m.renderMetrics()
	default:
		content = fmt.Sprintf("Unknown view type: %s", m.viewType)
	}

	help := HelpStyle.Render("Press q or Ctrl+C to quit")
	return content + "\n" + help
}

func (m StatsModel) renderDeliveries() string {
	data, ok := m.data.(*ledger.Stats)
	if !ok {
		return "Invalid data type for " + ViewStatsDeliveries
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Delivery Statistics"))
	b.WriteString("\n\n")

	boxes := []string{
		renderStatBox("Total", data.Total, highlightColor),
		renderStatBox("Sent", data.Sent, successColor),
		renderStatBox("Persisted", data.Persisted, successColor),
		renderStatBox("Quarantined", data.Quarantined, errorColor),
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, boxes...))
	b.WriteString("\n")

	b.WriteString(field("Success rate", fmt.Sprintf("%.1f%%", data.SuccessRate()*100)))
	b.WriteString(field("Bytes", fmt.Sprintf("%d", data.Bytes)))
	if data.FirstTs != "" {
		b.WriteString(field("Window", data.FirstTs+" .. "+data.LastTs))
	}

	if len(data.ByKind) > 0 {
		b.WriteString("\n")
		b.WriteString(TitleStyle.Render("Failures by kind"))
		b.WriteString("\n")
		b.WriteString(renderCounts(data.ByKind, ErrorStyle))
	}

	if len(data.Recent) > 0 {
		b.WriteString("\n")
		b.WriteString(TitleStyle.Render("Recent failures"))
		b.WriteString("\n")
		for _, r := range data.Recent {
			fmt.Fprintf(&b, "%s  %s  %s\n",
				LabelStyle.Render(r.Ts),
				ValueStyle.Render(r.Filename),
				OutcomeStyle(r.Outcome).Render(r.ErrorKind))
		}
	}

	return b.String()
}

func (m StatsModel) renderMetrics() string {
	data, ok := m.data.(*reader.MetricsSnapshot)
	if !ok {
		return "Invalid data type for " + ViewStatsMetrics
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render(fmt.Sprintf("Metrics (%s)", data.Side)))
	b.WriteString("\n\n")

	boxes := []string{
		renderStatBox("Sent", data.Sent, successColor),
		renderStatBox("Persisted", data.Persisted, successColor),
		renderStatBox("Quarantined", data.Quarantined, errorColor),
		renderStatBox("Connections", data.ConnectionsAccepted, highlightColor),
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, boxes...))
	b.WriteString("\n")

	b.WriteString(field("As of", data.Ts))
	if data.Node != "" {
		b.WriteString(field("Node", data.Node))
	}
	b.WriteString(field("Framing", data.Framing))
	b.WriteString(field("Cipher", data.Cipher))
	b.WriteString(field("Storage", data.StorageBackend))
	b.WriteString(field("Bytes out/in", fmt.Sprintf("%d / %d", data.BytesOut, data.BytesIn)))
	b.WriteString(field("Relocate fails", fmt.Sprintf("%d", data.RelocateFailures)))
	b.WriteString(field("Ledger writes", fmt.Sprintf("%d ok, %d failed", data.LedgerWriteSuccess, data.LedgerWriteFailure)))
	b.WriteString(field("Notify fails", fmt.Sprintf("%d", data.NotifyFailure)))

	if len(data.FailedByKind) > 0 {
		b.WriteString("\n")
		b.WriteString(TitleStyle.Render("Failures by kind"))
		b.WriteString("\n")
		b.WriteString(renderCounts(data.FailedByKind, ErrorStyle))
	}

	return b.String()
}

func renderStatBox(label string, value int64, color lipgloss.Color) string {
	boxStyle := StatBoxStyle.BorderForeground(color)

	valueStr := StatValueStyle.Foreground(color).Render(fmt.Sprintf("%d", value))
	labelStr := StatLabelStyle.Render(label)

	content := lipgloss.JoinVertical(lipgloss.Center, valueStr, labelStr)

	return boxStyle.Render(content)
}

func field(label, value string) string {
	return fmt.Sprintf("%s %s\n", LabelStyle.Render(label+":"), ValueStyle.Render(value))
}

func renderCounts(counts map[string]int64, style lipgloss.Style) string {
	var b strings.Builder
	for _, k := range slices.Sorted(maps.Keys(counts)) {
		fmt.Fprintf(&b, "%s %s\n", LabelStyle.Render(k), style.Render(fmt.Sprintf("%d", counts[k])))
	}
	return b.String()
}

// RenderStatsStatic renders a stats view without the interactive program.
func RenderStatsStatic(viewType string, data any) string {
	model := NewStatsModel(viewType, data)
	model.width = 80
	model.height = 24
	return lipgloss.NewStyle().Padding(1, 2).Render(model.View())
}
