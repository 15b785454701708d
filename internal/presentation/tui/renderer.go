package tui

import (
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"
)

// IsInteractive reports whether f is attached to a terminal.
func IsInteractive(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// NewRenderer returns a function that renders assistant replies.
// Replies are markdown; on a terminal they are styled with glamour and wrapped to the
// terminal width, otherwise they pass through unchanged.
func NewRenderer(out *os.File) func(string) (string, error) {
	if !IsInteractive(out) {
		return func(s string) (string, error) { return s, nil }
	}

	width := 80
	if w, _, err := term.GetSize(int(out.Fd())); err == nil && w > 0 {
		width = w
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(), // detect light/dark background
		glamour.WithWordWrap(width-4),
	)
	if err != nil {
		return func(s string) (string, error) { return s, nil }
	}

	return func(markdown string) (string, error) {
		out, err := r.Render(markdown)
		if err != nil {
			return markdown, err
		}
		return strings.TrimRight(out, "\n") + "\n", nil
	}
}
