package notifications

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/nhle/bhconnect/internal/api"
	"github.com/nhle/bhconnect/internal/dismiss"
	"github.com/nhle/bhconnect/internal/keys"
	"github.com/nhle/bhconnect/internal/model"
	"github.com/nhle/bhconnect/internal/notify"
	"github.com/nhle/bhconnect/internal/session"
	"github.com/nhle/bhconnect/internal/theme"
	"github.com/nhle/bhconnect/internal/ui"
)

// listTop is the row of the first notification: title, tabs, blank.
const listTop = 3

type fetchedMsg struct{ err error }

type clickedMsg struct {
	nav notify.Navigation
	err error
}

type decidedMsg struct {
	accept bool
	err    error
}

// Model is the full notifications page. Owners get inbox, approved and
// rejected tabs and can answer booking requests from the inbox.
type Model struct {
	scope  *notify.Scope
	sess   *session.Context
	keys   *keys.KeyMap
	now    func() time.Time
	width  int
	height int
	tab    int
	cursor int
	offset int
}

// New opens the page with its own scope on client.
func New(
	sess *session.Context,
	client *notify.Client,
	bridge *ui.Bridge,
	k *keys.KeyMap,
	width, height int,
) Model {
	scope := client.Scope()
	scope.Subscribe(bridge.Notifier(ui.NotificationsChangedMsg{}))
	return Model{
		scope:  scope,
		sess:   sess,
		keys:   k,
		now:    time.Now,
		width:  width,
		height: height,
	}
}

// Init loads the list.
func (m Model) Init() tea.Cmd {
	return m.fetch()
}

// Close cancels the page's requests. Results that arrive later are dropped.
func (m *Model) Close() {
	m.scope.Close()
}

// Tab returns the selected tab.
func (m Model) Tab() notify.Tab {
	tabs := m.tabs()
	if m.tab >= len(tabs) {
		return tabs[0]
	}
	return tabs[m.tab]
}

// Rows returns the projected notifications of the selected tab.
func (m Model) Rows() []notify.View {
	items := m.scope.Client().Snapshot().Items
	return notify.ProjectAll(notify.Filter(items, m.Tab()))
}

// Update handles keys and async results.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case fetchedMsg:
		return m, nil

	case ui.NotificationsChangedMsg:
		m.clampCursor()
		return m, nil

	case clickedMsg:
		var cmds []tea.Cmd
		if msg.err != nil && !errors.Is(msg.err, notify.ErrScopeClosed) {
			cmds = append(cmds, status("Failed to mark notification as read", true))
		}
		if !msg.nav.None() {
			nav := msg.nav
			cmds = append(cmds, func() tea.Msg { return ui.NavigateMsg{Nav: nav} })
		}
		return m, tea.Batch(cmds...)

	case decidedMsg:
		if errors.Is(msg.err, notify.ErrScopeClosed) {
			return m, nil
		}
		m.clampCursor()
		if msg.err != nil {
			fallback := "Failed to reject booking."
			if msg.accept {
				fallback = "Failed to accept booking."
			}
			return m, status(api.Message(msg.err, fallback), true)
		}
		if msg.accept {
			return m, status("Booking accepted", false)
		}
		return m, status("Booking rejected", false)

	case tea.KeyMsg:
		return m.handleKeys(msg)
	}
	return m, nil
}

func (m Model) handleKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	rows := m.Rows()

	switch {
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(rows)-1 {
			m.cursor++
		}
		m.scroll()
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
		m.scroll()
	case key.Matches(msg, m.keys.NextTab):
		m.tab = (m.tab + 1) % len(m.tabs())
		m.cursor, m.offset = 0, 0
	case key.Matches(msg, m.keys.Refresh):
		return m, m.fetch()
	case key.Matches(msg, m.keys.Select):
		if m.cursor < len(rows) {
			return m, m.click(rows[m.cursor].Notification)
		}
	case key.Matches(msg, m.keys.Accept):
		return m, m.decide(rows, true)
	case key.Matches(msg, m.keys.Reject):
		return m, m.decide(rows, false)
	}
	return m, nil
}

// Click handles a press at p, relative to the page's top-left cell.
func (m *Model) Click(p dismiss.Point) tea.Cmd {
	if p.Y == 1 {
		return m.clickTab(p.X)
	}
	i := m.offset + p.Y - listTop
	rows := m.Rows()
	if p.Y < listTop || i >= len(rows) {
		return nil
	}
	m.cursor = i
	return m.click(rows[i].Notification)
}

func (m *Model) clickTab(x int) tea.Cmd {
	pos := 0
	for i, t := range m.tabs() {
		w := lipgloss.Width(theme.TabStyle(i == m.tab).Render(m.tabLabel(t)))
		if x >= pos && x < pos+w {
			m.tab = i
			m.cursor, m.offset = 0, 0
			return nil
		}
		pos += w
	}
	return nil
}

// View renders the page.
func (m Model) View() string {
	snap := m.scope.Client().Snapshot()
	rows := notify.ProjectAll(notify.Filter(snap.Items, m.Tab()))

	var tabs []string
	for i, t := range m.tabs() {
		tabs = append(tabs, theme.TabStyle(i == m.tab).Render(m.tabLabel(t)))
	}

	lines := []string{
		lipgloss.NewStyle().Bold(true).Render("Notifications"),
		lipgloss.JoinHorizontal(lipgloss.Top, tabs...),
		"",
	}

	switch {
	case len(snap.Items) == 0 && snap.State == notify.StateLoading:
		lines = append(lines, theme.HelpStyle.Render("Loading notifications..."))
	case snap.Err != nil && len(snap.Items) == 0:
		lines = append(lines, theme.ErrorStyle.Render(snap.ErrorText()))
	case len(rows) == 0:
		lines = append(lines, m.renderEmpty())
	default:
		end := min(m.offset+m.visibleRows(), len(rows))
		for i := m.offset; i < end; i++ {
			lines = append(lines, m.renderRow(rows[i], i == m.cursor))
		}
		if snap.Err != nil {
			lines = append(lines, theme.ErrorStyle.Render(snap.ErrorText()))
		}
	}

	return strings.Join(lines, "\n")
}

func (m Model) renderRow(v notify.View, selected bool) string {
	date := notify.FormatRelativeDate(v.CreatedAt.Time, m.now())

	var badge string
	switch {
	case v.ActionRequired && m.Tab() == notify.TabInbox:
		badge = theme.BookingStatusStyle(string(model.BookingPending)).Render("a accept · x reject")
	case v.BookingStatus != nil && *v.BookingStatus != "":
		badge = theme.BookingStatusStyle(string(*v.BookingStatus)).Render(string(*v.BookingStatus))
	}

	head := v.Team
	if v.Context != "" {
		head += " · " + v.Context
	}
	head = lipgloss.NewStyle().Foreground(theme.ColorBlue).Render(head)

	room := m.width - lipgloss.Width(head) - lipgloss.Width(date) - lipgloss.Width(badge) - 10
	message := ansi.Truncate(v.Message, max(room, 10), "…")

	dot := "  "
	if !v.IsRead {
		dot = "● "
		message = theme.UnreadStyle.Render(message)
	}
	line := fmt.Sprintf("%s%s  %s  %s %s", dot, head, message, theme.HelpStyle.Render(date), badge)

	if selected {
		return theme.SelectedItemStyle.Render(line)
	}
	return theme.ListItemStyle.Render(line)
}

func (m Model) renderEmpty() string {
	style := lipgloss.NewStyle().Foreground(theme.ColorGray).PaddingLeft(2)
	switch m.Tab() {
	case notify.TabApproved:
		return style.Render("No approved bookings yet.")
	case notify.TabRejected:
		return style.Render("No rejected bookings.")
	default:
		return style.Render("You're all caught up.")
	}
}

func (m Model) tabLabel(t notify.Tab) string {
	n := len(notify.Filter(m.scope.Client().Snapshot().Items, t))
	return fmt.Sprintf("%s (%d)", t, n)
}

func (m Model) tabs() []notify.Tab {
	var role model.Role
	if sess, ok := m.sess.Current(); ok {
		role = sess.User.Role
	}
	return notify.Tabs(role)
}

func (m Model) visibleRows() int {
	return max(m.height-listTop-1, 1)
}

func (m *Model) scroll() {
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+m.visibleRows() {
		m.offset = m.cursor - m.visibleRows() + 1
	}
}

func (m *Model) clampCursor() {
	n := len(m.Rows())
	if m.cursor >= n {
		m.cursor = max(n-1, 0)
	}
	m.scroll()
}

// SetSize updates the page dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.scroll()
}

func (m Model) fetch() tea.Cmd {
	scope := m.scope
	return func() tea.Msg {
		return fetchedMsg{err: scope.Fetch()}
	}
}

func (m Model) click(n model.Notification) tea.Cmd {
	scope := m.scope
	return func() tea.Msg {
		nav, err := scope.Click(n)
		return clickedMsg{nav: nav, err: err}
	}
}

// decide answers the selected booking request. Only inbox rows that still
// need an answer qualify.
func (m Model) decide(rows []notify.View, accept bool) tea.Cmd {
	if m.Tab() != notify.TabInbox || m.cursor >= len(rows) || !rows[m.cursor].ActionRequired {
		return nil
	}
	scope := m.scope
	n := rows[m.cursor].Notification
	return func() tea.Msg {
		return decidedMsg{accept: accept, err: scope.Decide(n, accept)}
	}
}

func status(text string, isErr bool) tea.Cmd {
	return func() tea.Msg {
		return ui.StatusMsg{Text: text, Error: isErr}
	}
}
