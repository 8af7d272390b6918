package util

import (
	"testing"

	"github.com/charmbracelet/lipgloss"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		name  string
		input string
		width int
		want  string
	}{
		{"short string unchanged", "hello", 10, "hello"},
		{"exact width unchanged", "hello", 5, "hello"},
		{"long string truncated", "hello world", 6, "hello…"},
		{"zero width disables", "hello world", 0, "hello world"},
		{"negative width disables", "hello", -1, "hello"},
		{"empty string", "", 3, ""},
		{"wide characters", "日本語テスト", 5, "日本…"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Truncate(tt.input, tt.width); got != tt.want {
				t.Errorf("Truncate(%q, %d) = %q, want %q", tt.input, tt.width, got, tt.want)
			}
		})
	}
}

func TestTruncate_ANSI(t *testing.T) {
	styled := lipgloss.NewStyle().Bold(true).Render("checkout page redesign")

	got := Truncate(styled, 8)
	if w := lipgloss.Width(got); w > 8 {
		t.Errorf("Truncate() width = %d, want <= 8 (%q)", w, got)
	}
	if Truncate(styled, 100) != styled {
		t.Error("Truncate() should leave short styled text untouched")
	}
}

func TestFirstLine(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"single line", "single line"},
		{"  padded  ", "padded"},
		{"exit status 3\nstack trace\nmore", "exit status 3 …"},
		{"\nleading newline\nrest", "leading newline …"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := FirstLine(tt.input); got != tt.want {
			t.Errorf("FirstLine(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
