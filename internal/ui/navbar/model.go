package navbar

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/nhle/bhconnect/internal/dismiss"
	"github.com/nhle/bhconnect/internal/keys"
	"github.com/nhle/bhconnect/internal/model"
	"github.com/nhle/bhconnect/internal/notify"
	"github.com/nhle/bhconnect/internal/session"
	"github.com/nhle/bhconnect/internal/theme"
	"github.com/nhle/bhconnect/internal/ui"
	"github.com/nhle/bhconnect/internal/ui/profilemenu"
)

const (
	title         = "BHConnect"
	bellLabel     = "🔔"
	dropdownWidth = 52
	labelGap      = 2
)

type fetchedMsg struct{ err error }

type markedAllMsg struct{ err error }

type clickedMsg struct {
	nav notify.Navigation
	err error
}

// hitAreas records where the last View drew the clickable parts of the
// navbar. It lives on the heap so the value-receiver View can fill it in.
type hitAreas struct {
	bell     dismiss.Rect
	menu     dismiss.Rect
	dropdown dismiss.Rect
	start    int // first notification shown in the dropdown
	shown    int // notifications shown in the dropdown
}

// Model is the top bar: title on the left, notification bell and account
// menu on the right. Signed-in state is re-derived from the session on
// every session change.
type Model struct {
	sess   *session.Context
	scope  *notify.Scope
	keys   *keys.KeyMap
	layout ui.Layout
	bell   *dismiss.Region
	menu   profilemenu.Model
	hits   *hitAreas
	now    func() time.Time

	signedIn bool
	user     model.User
	cursor   int
}

// New creates the navbar. It opens its own scope on client so closing the
// navbar cancels only its requests, and routes client changes through
// bridge.
func New(
	sess *session.Context,
	client *notify.Client,
	profile profilemenu.Refresher,
	d *dismiss.Dispatcher,
	bridge *ui.Bridge,
	k *keys.KeyMap,
	l ui.Layout,
) Model {
	scope := client.Scope()
	scope.Subscribe(bridge.Notifier(ui.NotificationsChangedMsg{}))

	m := Model{
		sess:   sess,
		scope:  scope,
		keys:   k,
		layout: l,
		bell:   d.Attach(false),
		menu:   profilemenu.New(sess, profile, d, k),
		hits:   &hitAreas{},
		now:    time.Now,
	}
	m.syncSession()
	return m
}

// SignedIn reports the authentication state as of the last session change.
func (m Model) SignedIn() bool {
	return m.signedIn
}

// User returns the signed-in user as of the last session change.
func (m Model) User() model.User {
	return m.user
}

// Active reports whether a dropdown is open and wants the keyboard.
func (m Model) Active() bool {
	return m.bell.IsOpen() || m.menu.IsOpen()
}

// BellOpen reports whether the notification dropdown is showing.
func (m Model) BellOpen() bool {
	return m.bell.IsOpen()
}

// MenuOpen reports whether the account menu is showing.
func (m Model) MenuOpen() bool {
	return m.menu.IsOpen()
}

// Unread returns the badge count.
func (m Model) Unread() int {
	return m.scope.Client().Unread()
}

// ToggleBell opens or closes the notification dropdown. Opening it closes
// the account menu and marks everything read.
func (m *Model) ToggleBell() tea.Cmd {
	if !m.signedIn {
		return nil
	}
	if m.bell.IsOpen() {
		m.bell.SetOpen(false)
		return nil
	}
	m.menu.Close()
	m.bell.SetOpen(true)
	m.cursor = 0
	return m.markAll()
}

// ToggleMenu opens or closes the account menu. Opening it closes the
// notification dropdown.
func (m *Model) ToggleMenu() tea.Cmd {
	if !m.menu.IsOpen() {
		m.bell.SetOpen(false)
	}
	return m.menu.Toggle()
}

// CloseAll hides both dropdowns.
func (m *Model) CloseAll() {
	m.bell.SetOpen(false)
	m.menu.Close()
}

// Close releases the navbar's regions and cancels its requests.
func (m *Model) Close() {
	m.bell.Release()
	m.menu.Release()
	m.scope.Close()
}

// Update handles session changes, async results and keys for an open
// dropdown.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case ui.SessionChangedMsg:
		m.syncSession()
		if !m.signedIn {
			m.CloseAll()
			return m, nil
		}
		return m, m.fetch()

	case fetchedMsg:
		return m, nil

	case markedAllMsg:
		if msg.err != nil && !errors.Is(msg.err, notify.ErrScopeClosed) {
			return m, status("Failed to mark notifications as read")
		}
		return m, nil

	case clickedMsg:
		var cmds []tea.Cmd
		if msg.err != nil && !errors.Is(msg.err, notify.ErrScopeClosed) {
			cmds = append(cmds, status("Failed to mark notification as read"))
		}
		if !msg.nav.None() {
			nav := msg.nav
			cmds = append(cmds, func() tea.Msg { return ui.NavigateMsg{Nav: nav} })
		}
		return m, tea.Batch(cmds...)

	case tea.KeyMsg:
		if m.bell.IsOpen() {
			return m.handleDropdownKeys(msg)
		}
		if m.menu.IsOpen() {
			var cmd tea.Cmd
			m.menu, cmd = m.menu.Update(msg)
			return m, cmd
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.menu, cmd = m.menu.Update(msg)
	return m, cmd
}

func (m Model) handleDropdownKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	items := m.scope.Client().Snapshot().Items
	last := len(items) + 1

	switch {
	case key.Matches(msg, m.keys.Down):
		if m.cursor < last {
			m.cursor++
		}
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.Select):
		return m, m.activate(items, m.cursor)
	case key.Matches(msg, m.keys.Back):
		m.bell.SetOpen(false)
	}
	return m, nil
}

// activate runs dropdown entry i: 0 is "Mark all as read", 1..n are the
// notifications, n+1 is "View all".
func (m *Model) activate(items []model.Notification, i int) tea.Cmd {
	switch {
	case i == 0:
		return m.markAll()
	case i >= 1 && i <= len(items):
		m.bell.SetOpen(false)
		return m.click(items[i-1])
	case i == len(items)+1:
		m.bell.SetOpen(false)
		return func() tea.Msg { return ui.OpenPageMsg{Page: ui.PageNotifications} }
	}
	return nil
}

// Click handles a press that landed on the navbar or one of its open
// dropdowns. Outside presses are left to the dispatcher.
func (m *Model) Click(p dismiss.Point) tea.Cmd {
	switch {
	case m.hits.bell.Contains(p):
		return m.ToggleBell()
	case m.hits.menu.Contains(p):
		return m.ToggleMenu()
	case m.bell.IsOpen() && m.hits.dropdown.Contains(p):
		return m.clickDropdown(p)
	}
	if cmd, ok := m.menu.Click(p); ok {
		return cmd
	}
	return nil
}

func (m *Model) clickDropdown(p dismiss.Point) tea.Cmd {
	items := m.scope.Client().Snapshot().Items
	// Border and title rows come first.
	row := p.Y - m.hits.dropdown.Min.Y - 2
	if len(items) == 0 {
		// The empty-list line sits between the two buttons.
		switch row {
		case 0:
			return m.activate(items, 0)
		case 2:
			return m.activate(items, len(items)+1)
		}
		return nil
	}
	switch {
	case row == 0:
		return m.activate(items, 0)
	case row >= 1 && row <= m.hits.shown:
		return m.activate(items, m.hits.start+row)
	case row == m.hits.shown+1:
		return m.activate(items, len(items)+1)
	}
	return nil
}

// View renders the navbar line.
func (m Model) View() string {
	right, bellW, menuW := m.rightLabel()
	header := m.layout.RenderHeader(title, right)

	// Right side is right-aligned with one padding cell on each side.
	x := m.layout.Width - lipgloss.Width(theme.HeaderStyle.Render(right)) + 1
	if bellW > 0 {
		m.hits.bell = dismiss.RectAt(x, 0, bellW, 1)
		x += bellW + labelGap
	} else {
		m.hits.bell = dismiss.Rect{}
	}
	m.hits.menu = dismiss.RectAt(x, 0, menuW, 1)

	return header
}

// Overlay draws whichever dropdown is open over the composed frame.
func (m Model) Overlay(frame string) string {
	if m.bell.IsOpen() {
		box := m.dropdownView()
		rect := m.layout.DropdownRect(lipgloss.Width(box), lipgloss.Height(box), m.layout.Width)
		m.hits.dropdown = rect
		m.bell.Bind(rect.Union(m.hits.bell))
		return ui.Overlay(frame, box, rect.Min.X, rect.Min.Y)
	}
	m.hits.dropdown = dismiss.Rect{}
	return m.menu.Overlay(frame, m.layout, m.hits.menu)
}

// SetSize updates the layout after a terminal resize.
func (m *Model) SetSize(l ui.Layout) {
	m.layout = l
}

func (m Model) rightLabel() (label string, bellW, menuW int) {
	menu := "☰ Sign in"
	if m.signedIn {
		menu = "☰ " + m.user.DisplayName()
	}
	menuW = lipgloss.Width(menu)
	if !m.signedIn {
		return menu, 0, menuW
	}

	bell := bellLabel
	if n := m.Unread(); n > 0 {
		bell += " " + theme.BadgeStyle.Render(fmt.Sprint(n))
	}
	bellW = lipgloss.Width(bell)
	return bell + strings.Repeat(" ", labelGap) + menu, bellW, menuW
}

func (m Model) dropdownView() string {
	snap := m.scope.Client().Snapshot()
	inner := dropdownWidth - 4
	now := m.now()

	lines := []string{lipgloss.NewStyle().Bold(true).Render("Notifications")}
	lines = append(lines, m.entryLine(0, "Mark all as read"))

	start, end := window(len(snap.Items), m.cursor-1, m.maxRows())
	m.hits.start, m.hits.shown = start, end-start

	switch {
	case len(snap.Items) == 0 && snap.State == notify.StateLoading:
		lines = append(lines, theme.HelpStyle.Render("Loading..."))
	case len(snap.Items) == 0 && snap.Err != nil:
		lines = append(lines, theme.ErrorStyle.Render(snap.ErrorText()))
	case len(snap.Items) == 0:
		lines = append(lines, theme.HelpStyle.Render("No notifications"))
	}

	for i := start; i < end; i++ {
		n := snap.Items[i]
		date := notify.FormatRelativeDate(n.CreatedAt.Time, now)
		room := inner - lipgloss.Width(date) - 5
		text := ansi.Truncate(n.Message, max(room, 8), "…")
		if !n.IsRead {
			text = theme.UnreadStyle.Render("● " + text)
		} else {
			text = "  " + text
		}
		pad := inner - 3 - lipgloss.Width(text) - lipgloss.Width(date)
		line := text + strings.Repeat(" ", max(pad, 1)) + theme.HelpStyle.Render(date)
		lines = append(lines, m.entryLine(i+1, line))
	}

	lines = append(lines, m.entryLine(len(snap.Items)+1, "View all"))
	if len(snap.Items) > 0 && snap.Err != nil {
		lines = append(lines, theme.ErrorStyle.Render(snap.ErrorText()))
	}

	return theme.PanelStyle.
		Width(dropdownWidth - 2).
		Render(strings.Join(lines, "\n"))
}

func (m Model) entryLine(i int, text string) string {
	if i == m.cursor {
		return theme.SelectedItemStyle.Render(text)
	}
	return theme.ListItemStyle.Render(text)
}

func (m Model) maxRows() int {
	// Border, title, both buttons and a possible error line.
	return max(m.layout.ContentHeight()-6, 3)
}

// window returns the range of n rows to show so that cursor is visible.
func window(n, cursor, size int) (start, end int) {
	if n <= size {
		return 0, n
	}
	start = max(cursor-size+1, 0)
	if start > n-size {
		start = n - size
	}
	return start, start + size
}

func (m *Model) syncSession() {
	sess, ok := m.sess.Current()
	m.signedIn = ok
	m.user = sess.User
}

func (m Model) fetch() tea.Cmd {
	scope := m.scope
	return func() tea.Msg {
		return fetchedMsg{err: scope.Fetch()}
	}
}

func (m Model) markAll() tea.Cmd {
	scope := m.scope
	return func() tea.Msg {
		return markedAllMsg{err: scope.MarkAllRead()}
	}
}

func (m Model) click(n model.Notification) tea.Cmd {
	scope := m.scope
	return func() tea.Msg {
		nav, err := scope.Click(n)
		return clickedMsg{nav: nav, err: err}
	}
}

func status(text string) tea.Cmd {
	return func() tea.Msg {
		return ui.StatusMsg{Text: text, Error: true}
	}
}
