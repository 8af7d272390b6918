package cmd

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/Iron-Ham/sprint/internal/sprint"
)

var (
	primaryColor = lipgloss.Color("#A78BFA") // Purple
	successColor = lipgloss.Color("#10B981") // Green
	warningColor = lipgloss.Color("#F59E0B") // Amber
	errorColor   = lipgloss.Color("#F87171") // Red
	mutedColor   = lipgloss.Color("#9CA3AF") // Gray
	runningColor = lipgloss.Color("#60A5FA") // Blue

	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(primaryColor)
	headerStyle  = lipgloss.NewStyle().Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(mutedColor)
	successStyle = lipgloss.NewStyle().Foreground(successColor)
	warningStyle = lipgloss.NewStyle().Foreground(warningColor)
	errorStyle   = lipgloss.NewStyle().Foreground(errorColor)
	runningStyle = lipgloss.NewStyle().Foreground(runningColor)
	idStyle      = lipgloss.NewStyle().Bold(true).Width(12)
	agentStyle   = lipgloss.NewStyle().Foreground(mutedColor).Width(16)
	levelBox     = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor).
			Padding(0, 1)
)

// statusStyle colors a task status the way the run output shows it.
func statusStyle(s sprint.TaskStatus) lipgloss.Style {
	switch s {
	case sprint.StatusCompleted:
		return successStyle
	case sprint.StatusFailed:
		return errorStyle
	case sprint.StatusBlocked:
		return warningStyle
	case sprint.StatusRunning, sprint.StatusAssigned:
		return runningStyle
	default:
		return mutedStyle
	}
}

// statusIcon returns the glyph shown next to a task transition.
func statusIcon(s sprint.TaskStatus) string {
	switch s {
	case sprint.StatusCompleted:
		return "✓"
	case sprint.StatusFailed:
		return "✗"
	case sprint.StatusBlocked:
		return "■"
	case sprint.StatusRunning, sprint.StatusAssigned:
		return "▶"
	default:
		return "·"
	}
}
