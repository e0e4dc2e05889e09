package ui

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummaryRenderPlain(t *testing.T) {
	DisableColors()
	defer EnableColors()

	s := &Summary{Title: "Published my-plugin"}
	s.Add("plugin.json", Transition("0.3.1", "0.4.0")).
		Add("marketplace.json", Transition("0.3.1", "0.4.0")).
		Add("Tag", "v0.4.0")

	got := s.Render()
	want := strings.Join([]string{
		"Published my-plugin",
		"plugin.json:      0.3.1 → 0.4.0",
		"marketplace.json: 0.3.1 → 0.4.0",
		"Tag:              v0.4.0",
	}, "\n")
	assert.Equal(t, want, got)
}

func TestSummaryRenderColorContainsRows(t *testing.T) {
	EnableColors()

	s := &Summary{Title: "Dry run"}
	s.Add("Tag", "v1.0.0")

	got := s.Render()
	assert.Contains(t, got, "Dry run")
	assert.Contains(t, got, "v1.0.0")
	assert.Contains(t, got, "Tag:")
}

func TestSummaryEmpty(t *testing.T) {
	DisableColors()
	defer EnableColors()

	s := &Summary{Title: "Nothing"}
	assert.Equal(t, "Nothing", s.Render())
}

func TestSummaryRenderWrapsValues(t *testing.T) {
	DisableColors()
	defer EnableColors()

	s := &Summary{Title: "Published", Width: 20}
	s.Add("Tag", "v0.4.0").
		Add("Message", "feat: add the new planning command")

	got := s.Render()
	want := strings.Join([]string{
		"Published",
		"Tag:     v0.4.0",
		"Message: feat: add",
		"         the new",
		"         planning",
		"         command",
	}, "\n")
	assert.Equal(t, want, got)
}
