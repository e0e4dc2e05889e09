package ui

import (
	"os"
	"strings"

	"github.com/mattn/go-runewidth"
	"golang.org/x/term"
)

// Truncate shortens text to at most width display columns, marking the cut
// with "...".
func Truncate(text string, width int) string {
	if width <= 0 {
		return ""
	}
	if runewidth.StringWidth(text) <= width {
		return text
	}
	if width <= 3 {
		return runewidth.Truncate(text, width, "")
	}
	return runewidth.Truncate(text, width, "...")
}

// Wrap breaks text on whitespace into lines of at most width display
// columns. Words longer than width get a line of their own.
func Wrap(text string, width int) string {
	if width <= 0 {
		return text
	}
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}

	var lines []string
	var line strings.Builder
	lineWidth := 0
	for _, word := range words {
		w := runewidth.StringWidth(word)
		if lineWidth == 0 {
			line.WriteString(word)
			lineWidth = w
			continue
		}
		if lineWidth+1+w > width {
			lines = append(lines, line.String())
			line.Reset()
			line.WriteString(word)
			lineWidth = w
			continue
		}
		line.WriteByte(' ')
		line.WriteString(word)
		lineWidth += 1 + w
	}
	lines = append(lines, line.String())
	return strings.Join(lines, "\n")
}

// TerminalWidth returns the column count of stdout, or fallback when stdout
// is not a terminal.
func TerminalWidth(fallback int) int {
	w, _, err := term.GetSize(int(os.Stdout.Fd())) // #nosec G115 - fd fits in int
	if err != nil || w <= 0 {
		return fallback
	}
	return w
}
