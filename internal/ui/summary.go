package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Styles for the summary box.
var summaryStyles = struct {
	Box   lipgloss.Style
	Title lipgloss.Style
	Label lipgloss.Style
	Value lipgloss.Style
}{
	Box:   lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1),
	Title: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("2")),
	Label: lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
	Value: lipgloss.NewStyle().Bold(true),
}

// Row is one labelled line of a Summary.
type Row struct {
	Label string
	Value string
}

// Summary is a titled block of label/value rows printed at the end of a run.
type Summary struct {
	Title string
	Rows  []Row
	// Width, when positive, wraps values so rows fit in Width columns.
	Width int
}

// Add appends a row and returns the summary for chaining.
func (s *Summary) Add(label, value string) *Summary {
	s.Rows = append(s.Rows, Row{Label: label, Value: value})
	return s
}

// Transition formats an old -> new change.
func Transition(from, to string) string {
	return from + " → " + to
}

// Render returns the summary. With colors enabled it is drawn in a rounded
// box; otherwise it is plain aligned text so logs and pipes stay clean.
func (s *Summary) Render() string {
	width := 0
	for _, r := range s.Rows {
		width = max(width, lipgloss.Width(r.Label))
	}

	var b strings.Builder
	if IsColorEnabled() {
		b.WriteString(summaryStyles.Title.Render(s.Title))
	} else {
		b.WriteString(s.Title)
	}
	indent := strings.Repeat(" ", width+2)
	for _, r := range s.Rows {
		b.WriteString("\n")
		label := r.Label + ":" + strings.Repeat(" ", width-lipgloss.Width(r.Label)+1)
		value := r.Value
		if s.Width > 0 {
			value = strings.ReplaceAll(Wrap(value, max(s.Width-len(indent), 10)), "\n", "\n"+indent)
		}
		if IsColorEnabled() {
			b.WriteString(summaryStyles.Label.Render(label))
			b.WriteString(summaryStyles.Value.Render(value))
		} else {
			b.WriteString(label)
			b.WriteString(value)
		}
	}

	if !IsColorEnabled() {
		return b.String()
	}
	return summaryStyles.Box.Render(b.String())
}
