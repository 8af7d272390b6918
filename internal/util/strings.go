// Package util provides text helpers for terminal output.
package util

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

// Ellipsis is appended to truncated text.
const Ellipsis = "…"

// Truncate shortens s to at most width visual columns, ending in Ellipsis when
// text was cut. Escape sequences and wide characters are measured correctly.
// A width below 1 disables truncation.
func Truncate(s string, width int) string {
	if width < 1 || lipgloss.Width(s) <= width {
		return s
	}
	return ansi.Truncate(s, width, Ellipsis)
}

// FirstLine returns the first line of s with surrounding whitespace trimmed.
// Agent output and error messages often span lines; progress output keeps
// them to one.
func FirstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i]) + " " + Ellipsis
	}
	return s
}
