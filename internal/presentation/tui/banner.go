package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the ASCII banner shown by the interactive chat.
func PrintBanner(w io.Writer) {
	p := termenv.ColorProfile()
	lines := []struct{ text, color string }{
		{"  _   _                        _                       _    ", "#818cf8"},
		{" | |_| |__  _ __ ___  __ _  __| | __ _ _ __ __ _ _ __ | |__ ", "#a78bfa"},
		{" | __| '_ \\| '__/ _ \\/ _` |/ _` |/ _` | '__/ _` | '_ \\| '_ \\", "#c084fc"},
		{" | |_| | | | | |  __/ (_| | (_| | (_| | | | (_| | |_) | | | |", "#e879f9"},
		{"  \\__|_| |_|_|  \\___|\\__,_|\\__,_|\\__, |_|  \\__,_| .__/|_| |_|", "#f472b6"},
		{"                                 |___/          |_|          ", "#fb7185"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, termenv.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w)
}

// Dim renders s in a muted color for status lines.
func Dim(s string) string {
	return termenv.String(s).Faint().String()
}
