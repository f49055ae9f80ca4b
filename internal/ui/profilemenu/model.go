package profilemenu

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/bhconnect/internal/dismiss"
	"github.com/nhle/bhconnect/internal/keys"
	"github.com/nhle/bhconnect/internal/model"
	"github.com/nhle/bhconnect/internal/session"
	"github.com/nhle/bhconnect/internal/theme"
	"github.com/nhle/bhconnect/internal/ui"
)

const (
	menuWidth      = 30
	refreshTimeout = 10 * time.Second
)

// Refresher reloads the signed-in user's profile into the session.
type Refresher interface {
	RefreshProfile(ctx context.Context) (model.User, error)
}

// refreshedMsg reports the end of a profile refresh started by Open.
type refreshedMsg struct {
	err error
}

// Entry is one selectable line of the menu.
type Entry struct {
	Label string
	Msg   tea.Msg
}

// Model is the account dropdown hanging from the navbar. Signed-in users
// get role-aware entries; signed-out users get sign up and log in.
type Model struct {
	sess    *session.Context
	profile Refresher
	region  *dismiss.Region
	keys    *keys.KeyMap
	box     *placement
	cursor  int
	loading bool
}

// placement is where the box was last drawn. It lives on the heap so the
// value-receiver View can record it.
type placement struct {
	rect dismiss.Rect
}

// New creates a closed menu attached to the dispatcher.
func New(sess *session.Context, profile Refresher, d *dismiss.Dispatcher, k *keys.KeyMap) Model {
	return Model{
		sess:    sess,
		profile: profile,
		region:  d.Attach(false),
		keys:    k,
		box:     &placement{},
	}
}

// IsOpen reports whether the menu is showing.
func (m Model) IsOpen() bool {
	return m.region.IsOpen()
}

// Open shows the menu and, when signed in, refreshes the profile so the
// entries reflect the current role and verification state.
func (m *Model) Open() tea.Cmd {
	m.region.SetOpen(true)
	m.cursor = 0
	if m.sess.Token() == "" || m.profile == nil {
		m.loading = false
		return nil
	}
	m.loading = true
	profile := m.profile
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()
		_, err := profile.RefreshProfile(ctx)
		return refreshedMsg{err: err}
	}
}

// Close hides the menu.
func (m *Model) Close() {
	m.region.SetOpen(false)
}

// Toggle opens a closed menu or closes an open one.
func (m *Model) Toggle() tea.Cmd {
	if m.IsOpen() {
		m.Close()
		return nil
	}
	return m.Open()
}

// Release detaches the menu from the dispatcher.
func (m *Model) Release() {
	m.region.Release()
}

// Entries returns the menu lines for the current session.
func (m Model) Entries() []Entry {
	sess, ok := m.sess.Current()
	if !ok {
		return []Entry{
			{Label: "Sign up", Msg: ui.ShowRegisterMsg{}},
			{Label: "Log in", Msg: ui.ShowLoginMsg{}},
		}
	}

	user := sess.User
	var entries []Entry
	if user.IsAdmin() {
		entries = append(entries, Entry{Label: "Verification dashboard", Msg: ui.OpenPageMsg{Page: ui.PageAdmin}})
	}
	switch user.Role {
	case model.RoleTenant:
		entries = append(entries, Entry{Label: "Favorites", Msg: ui.OpenPageMsg{Page: ui.PageFavorites}})
	case model.RoleOwner:
		entries = append(entries, Entry{
			Label: "Manage listings",
			Msg:   ui.OpenPageMsg{Page: ui.PageListings, Verified: user.IsVerified},
		})
	}
	return append(entries,
		Entry{Label: "Notifications", Msg: ui.OpenPageMsg{Page: ui.PageNotifications}},
		Entry{Label: "Account", Msg: ui.OpenPageMsg{Page: ui.PageAccount}},
		Entry{Label: "Log out", Msg: ui.LogoutMsg{}},
	)
}

// Update handles keys while the menu is open and refresh results.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case refreshedMsg:
		m.loading = false
		if msg.err != nil && !errors.Is(msg.err, session.ErrNotFound) {
			return m, func() tea.Msg {
				return ui.StatusMsg{Text: "Could not refresh profile", Error: true}
			}
		}
		return m, nil

	case tea.KeyMsg:
		if !m.IsOpen() {
			return m, nil
		}
		entries := m.Entries()
		switch {
		case key.Matches(msg, m.keys.Down):
			if m.cursor < len(entries)-1 {
				m.cursor++
			}
		case key.Matches(msg, m.keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
		case key.Matches(msg, m.keys.Select):
			return m, m.choose(entries, m.cursor)
		case key.Matches(msg, m.keys.Back):
			m.Close()
		}
	}
	return m, nil
}

// Click selects the entry under p. It reports false when p is outside the
// open menu.
func (m *Model) Click(p dismiss.Point) (tea.Cmd, bool) {
	bounds := m.box.rect
	if !m.IsOpen() || !bounds.Contains(p) {
		return nil, false
	}
	// One border row above the entries.
	row := p.Y - bounds.Min.Y - 1
	entries := m.Entries()
	if row < 0 || row >= len(entries) {
		return nil, true
	}
	m.cursor = row
	return m.choose(entries, row), true
}

func (m *Model) choose(entries []Entry, i int) tea.Cmd {
	if i < 0 || i >= len(entries) {
		return nil
	}
	m.Close()
	msg := entries[i].Msg
	return func() tea.Msg { return msg }
}

// View renders the menu box.
func (m Model) View() string {
	entries := m.Entries()
	lines := make([]string, 0, len(entries)+1)
	for i, e := range entries {
		if i == m.cursor {
			lines = append(lines, theme.SelectedItemStyle.Render(e.Label))
		} else {
			lines = append(lines, theme.ListItemStyle.Render(e.Label))
		}
	}
	if m.loading {
		lines = append(lines, theme.HelpStyle.Render("refreshing..."))
	} else if sess, ok := m.sess.Current(); ok && sess.User.Role == model.RoleOwner {
		lines = append(lines, verifiedLine(sess.User.IsVerified))
	}

	return theme.PanelStyle.
		Width(menuWidth).
		Render(strings.Join(lines, "\n"))
}

// Overlay draws the open menu over base and records where it landed.
// Presses on trigger, the navbar label that opens the menu, count as
// inside the menu.
func (m Model) Overlay(base string, l ui.Layout, trigger dismiss.Rect) string {
	if !m.IsOpen() {
		return base
	}
	box := m.View()
	rect := l.DropdownRect(lipgloss.Width(box), lipgloss.Height(box), l.Width)
	m.box.rect = rect
	m.region.Bind(rect.Union(trigger))
	return ui.Overlay(base, box, rect.Min.X, rect.Min.Y)
}

func verifiedLine(verified bool) string {
	if verified {
		return theme.VerifiedStyle(true).Render("verified owner")
	}
	return theme.VerifiedStyle(false).Render("verification pending")
}
