package tui

import (
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

// View types with a TUI rendering.
const (
	ViewStatsDeliveries = "stats_deliveries"
	ViewStatsMetrics    = "stats_metrics"
)

// Run starts the TUI for viewType and blocks until the user quits.
func Run(viewType string, data any) error {
	if !IsTUISupported(viewType) {
		return fmt.Errorf("TUI mode is not supported for %s", viewType)
	}
	p := tea.NewProgram(NewStatsModel(viewType, data), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// IsTUISupported reports whether viewType has a TUI rendering. Only the
// read-only stats views do.
func IsTUISupported(viewType string) bool {
	return strings.HasPrefix(viewType, "stats_") && slices.Contains(SupportedTUIViews(), viewType)
}

// SupportedTUIViews lists the view types that support TUI mode.
func SupportedTUIViews() []string {
	return []string{ViewStatsDeliveries, ViewStatsMetrics}
}

type keyMap struct {
	Quit key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}
