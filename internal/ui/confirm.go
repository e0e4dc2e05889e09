package ui

import (
	"errors"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ErrNotInteractive is returned by Confirm when there is no terminal to ask on.
var ErrNotInteractive = errors.New("confirmation requires an interactive terminal")

type confirmKeyMap struct {
	Yes  key.Binding
	No   key.Binding
	Quit key.Binding
}

func defaultConfirmKeyMap() confirmKeyMap {
	return confirmKeyMap{
		Yes: key.NewBinding(
			key.WithKeys("y", "Y"),
			key.WithHelp("y", "yes"),
		),
		No: key.NewBinding(
			key.WithKeys("n", "N", "enter"),
			key.WithHelp("n/enter", "no"),
		),
		Quit: key.NewBinding(
			key.WithKeys("esc", "q", "ctrl+c"),
			key.WithHelp("esc", "cancel"),
		),
	}
}

var confirmStyles = struct {
	Prompt lipgloss.Style
	Detail lipgloss.Style
	Help   lipgloss.Style
}{
	Prompt: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6")),
	Detail: lipgloss.NewStyle().Padding(0, 2),
	Help:   lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
}

// ConfirmModel is the BubbleTea model for a yes/no question. The default
// answer is no.
type ConfirmModel struct {
	prompt    string
	details   []string
	keys      confirmKeyMap
	answered  bool
	confirmed bool
}

// NewConfirmModel creates a confirmation model. details are shown as
// indented lines under the prompt.
func NewConfirmModel(prompt string, details ...string) ConfirmModel {
	return ConfirmModel{
		prompt:  prompt,
		details: details,
		keys:    defaultConfirmKeyMap(),
	}
}

// Init implements tea.Model.
func (m ConfirmModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m ConfirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch {
	case key.Matches(keyMsg, m.keys.Yes):
		m.answered, m.confirmed = true, true
		return m, tea.Quit
	case key.Matches(keyMsg, m.keys.No), key.Matches(keyMsg, m.keys.Quit):
		m.answered, m.confirmed = true, false
		return m, tea.Quit
	}
	return m, nil
}

// View implements tea.Model.
func (m ConfirmModel) View() string {
	if m.answered {
		return ""
	}
	var b strings.Builder
	b.WriteString(confirmStyles.Prompt.Render(m.prompt))
	b.WriteString("\n")
	for _, d := range m.details {
		b.WriteString(confirmStyles.Detail.Render(d))
		b.WriteString("\n")
	}
	b.WriteString(confirmStyles.Help.Render("[y/N] " + m.keys.Yes.Help().Key + ": " + m.keys.Yes.Help().Desc +
		" • " + m.keys.No.Help().Key + ": " + m.keys.No.Help().Desc))
	b.WriteString("\n")
	return b.String()
}

// Confirmed reports whether the user answered yes.
func (m ConfirmModel) Confirmed() bool {
	return m.confirmed
}

// Confirm asks a yes/no question on the terminal. It fails with
// ErrNotInteractive when stdin or stdout is not a terminal.
func Confirm(prompt string, details ...string) (bool, error) {
	if !IsInteractive() {
		return false, ErrNotInteractive
	}
	return confirmWith(nil, nil, prompt, details...)
}

func confirmWith(in io.Reader, out io.Writer, prompt string, details ...string) (bool, error) {
	var opts []tea.ProgramOption
	if in != nil {
		opts = append(opts, tea.WithInput(in))
	}
	if out != nil {
		opts = append(opts, tea.WithOutput(out))
	}
	final, err := tea.NewProgram(NewConfirmModel(prompt, details...), opts...).Run()
	if err != nil {
		return false, err
	}
	m, ok := final.(ConfirmModel)
	return ok && m.Confirmed(), nil
}
