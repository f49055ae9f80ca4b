package command

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/bhconnect/internal/theme"
)

// Name identifies a palette command.
type Name string

const (
	Home          Name = "home"
	Notifications Name = "notifications"
	Admin         Name = "admin"
	Login         Name = "login"
	Register      Name = "register"
	Logout        Name = "logout"
	Refresh       Name = "refresh"
	Help          Name = "help"
	Quit          Name = "quit"
)

// Def describes one palette command for help and completion.
type Def struct {
	Name        Name
	Aliases     []string
	Description string
}

// Commands lists every palette command in display order.
var Commands = []Def{
	{Home, []string{"h"}, "go to the home page"},
	{Notifications, []string{"n", "inbox"}, "open the notifications page"},
	{Admin, nil, "open the verification dashboard"},
	{Login, []string{"signin"}, "log in"},
	{Register, []string{"signup"}, "create an account"},
	{Logout, []string{"signout"}, "log out"},
	{Refresh, []string{"r"}, "reload notifications"},
	{Help, []string{"?"}, "show keyboard shortcuts"},
	{Quit, []string{"q", "exit"}, "quit"},
}

// CommandMsg is emitted when the user executes a command. Unknown input
// arrives with Known false so the caller can report it.
type CommandMsg struct {
	Name  Name
	Args  []string
	Raw   string
	Known bool
}

// Parse resolves a typed line to a command.
func Parse(line string) CommandMsg {
	fields := strings.Fields(line)
	msg := CommandMsg{Raw: strings.TrimSpace(line)}
	if len(fields) == 0 {
		return msg
	}

	word := strings.ToLower(fields[0])
	msg.Args = fields[1:]
	for _, c := range Commands {
		if string(c.Name) == word {
			msg.Name, msg.Known = c.Name, true
			return msg
		}
		for _, alias := range c.Aliases {
			if alias == word {
				msg.Name, msg.Known = c.Name, true
				return msg
			}
		}
	}
	msg.Name = Name(word)
	return msg
}

// Model is the command palette view.
type Model struct {
	input  textinput.Model
	width  int
	height int
}

// New creates a new command palette model.
func New(width, height int) Model {
	ti := textinput.New()
	ti.Placeholder = "type a command..."
	ti.Prompt = ": "
	ti.ShowSuggestions = true
	suggestions := make([]string, len(Commands))
	for i, c := range Commands {
		suggestions[i] = string(c.Name)
	}
	ti.SetSuggestions(suggestions)
	ti.Focus()
	ti.Width = width - 6

	return Model{
		input:  ti,
		width:  width,
		height: height,
	}
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles messages for the command palette.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "enter":
			line := strings.TrimSpace(m.input.Value())
			m.input.Reset()
			if line != "" {
				parsed := Parse(line)
				return m, func() tea.Msg {
					return parsed
				}
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the command palette.
func (m Model) View() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	title := titleStyle.Render("Command Palette")
	input := m.input.View()
	hint := theme.HelpStyle.Render("tab completes, enter runs, esc closes")

	content := lipgloss.JoinVertical(lipgloss.Left, title, input, hint)

	return theme.PanelStyle.
		Width(m.width - 4).
		Render(content)
}

// Height returns the rendered height of the palette.
func (m Model) Height() int {
	return lipgloss.Height(m.View())
}

// SetSize updates the command palette dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.input.Width = width - 6
}

// Focus gives keyboard focus to the text input.
func (m *Model) Focus() tea.Cmd {
	return m.input.Focus()
}
