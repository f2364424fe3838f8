// Package term styles bizclaw CLI output. Colors are dropped automatically
// when stdout is not a terminal.
package term

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	xterm "golang.org/x/term"
)

const (
	ColorPrimary   = "#7C3AED" // violet: headings, names
	ColorSecondary = "#10B981" // green: success
	ColorAccent    = "#60A5FA" // blue: ids, links
	ColorWarning   = "#F59E0B" // amber: warnings, tool calls
	ColorError     = "#EF4444" // red: failures
	ColorMuted     = "#6B7280" // gray: hints, timestamps
)

var (
	HeadingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorPrimary)).
			Bold(true)

	SuccessStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorSecondary))
	WarningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorWarning))
	AccentStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAccent))
	MutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorMuted))

	ErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorError)).
			Bold(true)
)

// IsTerminal reports whether stdout is a terminal.
func IsTerminal() bool {
	return xterm.IsTerminal(int(os.Stdout.Fd()))
}

// Width returns the terminal width, or fallback when unknown.
func Width(fallback int) int {
	w, _, err := xterm.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return fallback
	}
	return w
}

// Status renders ok/failed labels for a run or step outcome.
func Status(success bool) string {
	if success {
		return SuccessStyle.Render("ok")
	}
	return ErrorStyle.Render("failed")
}
