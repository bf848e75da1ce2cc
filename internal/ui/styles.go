// Package ui renders terminal output for the lexsync CLI.
package ui

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

var (
	colorPass   = lipgloss.AdaptiveColor{Light: "#2E7D32", Dark: "#66BB6A"}
	colorWarn   = lipgloss.AdaptiveColor{Light: "#B26A00", Dark: "#FFCA28"}
	colorFail   = lipgloss.AdaptiveColor{Light: "#C62828", Dark: "#EF5350"}
	colorAccent = lipgloss.AdaptiveColor{Light: "#1565C0", Dark: "#42A5F5"}
	colorMuted  = lipgloss.AdaptiveColor{Light: "#616161", Dark: "#9E9E9E"}

	passStyle   = lipgloss.NewStyle().Foreground(colorPass)
	warnStyle   = lipgloss.NewStyle().Foreground(colorWarn)
	failStyle   = lipgloss.NewStyle().Foreground(colorFail).Bold(true)
	accentStyle = lipgloss.NewStyle().Foreground(colorAccent)
	mutedStyle  = lipgloss.NewStyle().Foreground(colorMuted)
	boldStyle   = lipgloss.NewStyle().Bold(true)
)

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// Configure picks the color profile for out. Colors are off when out is
// not a terminal or NO_COLOR is set.
func Configure(out io.Writer) {
	f, ok := out.(*os.File)
	if !ok || !IsTerminal(f) || termenv.EnvNoColor() {
		lipgloss.SetColorProfile(termenv.Ascii)
		return
	}
	lipgloss.SetColorProfile(termenv.NewOutput(f).EnvColorProfile())
}

// RenderPass renders success markers.
func RenderPass(s string) string { return passStyle.Render(s) }

// RenderWarn renders warnings.
func RenderWarn(s string) string { return warnStyle.Render(s) }

// RenderFail renders errors.
func RenderFail(s string) string { return failStyle.Render(s) }

// RenderAccent renders highlighted values.
func RenderAccent(s string) string { return accentStyle.Render(s) }

// RenderMuted renders secondary text.
func RenderMuted(s string) string { return mutedStyle.Render(s) }

// RenderBold renders emphasized text.
func RenderBold(s string) string { return boldStyle.Render(s) }

// RenderStatus colors a sync status name.
func RenderStatus(status string) string {
	switch status {
	case "synced":
		return RenderPass(status)
	case "syncing":
		return RenderAccent(status)
	case "offline":
		return RenderWarn(status)
	case "error":
		return RenderFail(status)
	default:
		return RenderMuted(status)
	}
}

// Table renders rows under headers with a rounded border.
func Table(headers []string, rows [][]string) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(mutedStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			s := lipgloss.NewStyle().Padding(0, 1)
			if row == table.HeaderRow {
				return s.Bold(true)
			}
			return s
		})
	return t.Render()
}

// KeyValues renders aligned "key: value" lines.
func KeyValues(pairs [][2]string) string {
	width := 0
	for _, p := range pairs {
		if w := lipgloss.Width(p[0]); w > width {
			width = w
		}
	}
	var b strings.Builder
	for _, p := range pairs {
		b.WriteString("  ")
		b.WriteString(RenderMuted(p[0] + ":" + strings.Repeat(" ", width-lipgloss.Width(p[0])+1)))
		b.WriteString(p[1])
		b.WriteByte('\n')
	}
	return b.String()
}
