// Package report renders runs, prompts and run lists for the terminal.
package report

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	Primary     = lipgloss.Color("#101F38")
	Accent      = lipgloss.Color("#8BC34A")
	Muted       = lipgloss.Color("#8a94a6")
	Destructive = lipgloss.Color("#e53935")
	Success     = lipgloss.Color("#8BC34A")
	Warning     = lipgloss.Color("#FFC107")
	Info        = lipgloss.Color("#2196F3")
)

// Styles groups the lipgloss styles used by the renderers.
type Styles struct {
	Title   lipgloss.Style
	Heading lipgloss.Style
	Muted   lipgloss.Style
	Bold    lipgloss.Style
	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Info    lipgloss.Style
	Output  lipgloss.Style
	Box     lipgloss.Style
}

// NewStyles builds the style set. dark flips the title color for dark
// terminals.
func NewStyles(dark bool) Styles {
	title := Primary
	if dark {
		title = Accent
	}
	return Styles{
		Title: lipgloss.NewStyle().
			Foreground(title).
			Bold(true),
		Heading: lipgloss.NewStyle().
			Foreground(Info).
			Bold(true),
		Muted: lipgloss.NewStyle().
			Foreground(Muted),
		Bold: lipgloss.NewStyle().
			Bold(true),
		Success: lipgloss.NewStyle().
			Foreground(Success).
			Bold(true),
		Error: lipgloss.NewStyle().
			Foreground(Destructive).
			Bold(true),
		Warning: lipgloss.NewStyle().
			Foreground(Warning).
			Bold(true),
		Info: lipgloss.NewStyle().
			Foreground(Info),
		Output: lipgloss.NewStyle().
			PaddingLeft(2).
			BorderLeft(true).
			BorderStyle(lipgloss.ThickBorder()).
			BorderForeground(Accent),
		Box: lipgloss.NewStyle().
			Padding(0, 1).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Muted),
	}
}

// DetectDark reports whether the terminal background looks dark.
func DetectDark() bool {
	if v := os.Getenv("MISSIONFLOW_DARK_MODE"); v != "" {
		return v == "1" || strings.EqualFold(v, "true")
	}
	if fgbg := os.Getenv("COLORFGBG"); fgbg != "" {
		parts := strings.Split(fgbg, ";")
		switch parts[len(parts)-1] {
		case "0", "1", "2", "3", "4", "5", "6", "8":
			return true
		}
	}
	return false
}
