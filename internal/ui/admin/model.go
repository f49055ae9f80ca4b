package admin

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/bhconnect/internal/api"
	"github.com/nhle/bhconnect/internal/keys"
	"github.com/nhle/bhconnect/internal/model"
	"github.com/nhle/bhconnect/internal/theme"
	"github.com/nhle/bhconnect/internal/ui"
)

const requestTimeout = 30 * time.Second

// Backend is the part of the API the verification dashboard uses.
type Backend interface {
	AdminUsers(ctx context.Context, token string) ([]model.User, error)
	DecideUser(ctx context.Context, token string, userID int64, decision api.UserDecision) (*api.MessageResponse, error)
}

// TokenSource yields the current bearer token.
type TokenSource interface {
	Token() string
}

// UsersLoadedMsg is sent when the account list has been fetched.
type UsersLoadedMsg struct {
	Users []model.User
	Err   error
}

type decidedMsg struct {
	userID   int64
	decision api.UserDecision
	err      error
}

// Model is the administrator's account verification dashboard.
type Model struct {
	backend Backend
	tokens  TokenSource
	keys    *keys.KeyMap
	spinner spinner.Model
	users   []model.User
	loading bool
	errText string
	cursor  int
	width   int
	height  int
}

// New creates the dashboard.
func New(b Backend, tokens TokenSource, k *keys.KeyMap, width, height int) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	return Model{
		backend: b,
		tokens:  tokens,
		keys:    k,
		spinner: s,
		loading: true,
		width:   width,
		height:  height,
	}
}

// Init loads the account list.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.load())
}

// Users returns the accounts on screen.
func (m Model) Users() []model.User {
	return m.users
}

// Update handles keys and request results.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case UsersLoadedMsg:
		m.loading = false
		if msg.Err != nil {
			m.errText = api.Message(msg.Err, "Failed to fetch users")
			return m, nil
		}
		m.errText = ""
		m.users = msg.Users
		m.clampCursor()
		return m, nil

	case decidedMsg:
		if msg.err != nil {
			verb := "approve"
			if msg.decision == api.DecisionUnapprove {
				verb = "reject"
			}
			return m, status(api.Message(msg.err, fmt.Sprintf("Failed to %s user", verb)), true)
		}
		m.remove(msg.userID)
		if msg.decision == api.DecisionApprove {
			return m, status("User approved", false)
		}
		return m, status("User rejected", false)

	case spinner.TickMsg:
		if !m.loading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Down):
			if m.cursor < len(m.users)-1 {
				m.cursor++
			}
		case key.Matches(msg, m.keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
		case key.Matches(msg, m.keys.Refresh):
			m.loading = true
			return m, tea.Batch(m.spinner.Tick, m.load())
		case key.Matches(msg, m.keys.Accept):
			return m, m.decide(api.DecisionApprove)
		case key.Matches(msg, m.keys.Reject):
			return m, m.decide(api.DecisionUnapprove)
		}
	}
	return m, nil
}

// View renders the dashboard.
func (m Model) View() string {
	lines := []string{
		lipgloss.NewStyle().Bold(true).Render("Account verification"),
		"",
	}

	switch {
	case m.loading && len(m.users) == 0:
		lines = append(lines, m.spinner.View()+" Loading users...")
	case m.errText != "":
		lines = append(lines, theme.ErrorStyle.Render(m.errText))
	case len(m.users) == 0:
		lines = append(lines, theme.HelpStyle.Render("No accounts waiting for review."))
	default:
		for i, u := range m.users {
			lines = append(lines, m.renderUser(u, i == m.cursor))
		}
	}

	lines = append(lines, "", theme.HelpStyle.Render("a approve · x reject · r reload"))
	return strings.Join(lines, "\n")
}

func (m Model) renderUser(u model.User, selected bool) string {
	state := "Pending"
	if u.IsVerified {
		state = "Verified"
	}
	doc := "no ID document"
	if u.IDDocumentURL != nil && *u.IDDocumentURL != "" {
		doc = "ID on file"
	}

	name := fmt.Sprintf("%-24s", u.DisplayName())
	line := fmt.Sprintf("%s %-30s %-8s %s  %s",
		name,
		u.Email,
		string(u.Role),
		theme.VerifiedStyle(u.IsVerified).Render(state),
		theme.HelpStyle.Render(doc),
	)
	if selected {
		return theme.SelectedItemStyle.Render(line)
	}
	return theme.ListItemStyle.Render(line)
}

// SetSize updates the dashboard dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m Model) load() tea.Cmd {
	b, token := m.backend, m.tokens.Token()
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		users, err := b.AdminUsers(ctx, token)
		return UsersLoadedMsg{Users: users, Err: err}
	}
}

// decide answers the selected account. Verified accounts need no answer.
func (m Model) decide(decision api.UserDecision) tea.Cmd {
	if m.cursor >= len(m.users) || m.users[m.cursor].IsVerified {
		return nil
	}
	b, token := m.backend, m.tokens.Token()
	id := m.users[m.cursor].UserID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		_, err := b.DecideUser(ctx, token, id, decision)
		return decidedMsg{userID: id, decision: decision, err: err}
	}
}

func (m *Model) remove(id int64) {
	kept := m.users[:0:0]
	for _, u := range m.users {
		if u.UserID != id {
			kept = append(kept, u)
		}
	}
	m.users = kept
	m.clampCursor()
}

func (m *Model) clampCursor() {
	if m.cursor >= len(m.users) {
		m.cursor = max(len(m.users)-1, 0)
	}
}

func status(text string, isErr bool) tea.Cmd {
	return func() tea.Msg {
		return ui.StatusMsg{Text: text, Error: isErr}
	}
}
