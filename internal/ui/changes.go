package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

// ChangeRow is one pending file operation.
type ChangeRow struct {
	Op   string
	Path string
}

const opColumnWidth = 8

// RenderChanges lists pending file operations within width columns. With
// colors enabled it draws a table; otherwise it prints one "op path" line
// per change so the listing stays greppable.
func RenderChanges(rows []ChangeRow, width int) string {
	if len(rows) == 0 {
		return "  (no file changes)"
	}
	pathWidth := max(width-opColumnWidth-6, 10)

	if !IsColorEnabled() {
		var b strings.Builder
		for i, r := range rows {
			if i > 0 {
				b.WriteString("\n")
			}
			fmt.Fprintf(&b, "  %-6s %s", r.Op, Truncate(r.Path, pathWidth))
		}
		return b.String()
	}

	longest := 0
	trs := make([]table.Row, len(rows))
	for i, r := range rows {
		trs[i] = table.Row{r.Op, r.Path}
		longest = max(longest, runewidth.StringWidth(r.Path))
	}
	columns := []table.Column{
		{Title: "Change", Width: opColumnWidth},
		{Title: "Path", Width: min(longest, pathWidth)},
	}
	t := table.New(
		table.WithColumns(columns),
		table.WithRows(trs),
		table.WithFocused(false),
		table.WithHeight(len(rows)+2),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	// No row is selected in a static listing.
	s.Selected = lipgloss.NewStyle()
	t.SetStyles(s)

	return t.View()
}
