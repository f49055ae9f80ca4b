package app

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/nhle/bhconnect/internal/auth"
	"github.com/nhle/bhconnect/internal/dismiss"
	"github.com/nhle/bhconnect/internal/keys"
	"github.com/nhle/bhconnect/internal/logging"
	"github.com/nhle/bhconnect/internal/model"
	"github.com/nhle/bhconnect/internal/notify"
	"github.com/nhle/bhconnect/internal/session"
	appsync "github.com/nhle/bhconnect/internal/sync"
	"github.com/nhle/bhconnect/internal/theme"
	"github.com/nhle/bhconnect/internal/ui"
	"github.com/nhle/bhconnect/internal/ui/admin"
	"github.com/nhle/bhconnect/internal/ui/command"
	helpview "github.com/nhle/bhconnect/internal/ui/help"
	"github.com/nhle/bhconnect/internal/ui/login"
	"github.com/nhle/bhconnect/internal/ui/navbar"
	"github.com/nhle/bhconnect/internal/ui/notifications"
	"github.com/nhle/bhconnect/internal/ui/register"
)

// ViewState represents what fills the content area.
type ViewState int

const (
	ViewPage ViewState = iota
	ViewHelp
	ViewCommand
)

// Deps are the collaborators the app is built from.
type Deps struct {
	Config  *model.AppConfig
	Session *session.Context
	Auth    *auth.Service
	Notify  *notify.Client
	Admin   admin.Backend
	Logger  *zap.Logger
}

// Model is the root Bubble Tea model that manages page routing, the
// navbar and its dropdowns, the login and sign-up overlays and the
// notification poller.
type Model struct {
	deps        Deps
	logger      *zap.Logger
	layout      ui.Layout
	keys        *keys.KeyMap
	bridge      *ui.Bridge
	dispatcher  *dismiss.Dispatcher
	poller      *appsync.Poller
	unsubscribe func()

	navbar        navbar.Model
	loginView     login.Model
	registerView  register.Model
	helpView      helpview.Model
	commandView   command.Model
	notifications notifications.Model
	adminView     admin.Model

	currentView ViewState
	page        ui.Page
	nav         notify.Navigation
	verified    bool
	status      string
	statusErr   bool
	pollFailed  bool
	ready       bool
}

// New creates the root application model.
func New(deps Deps) Model {
	k := keys.DefaultKeyMap()
	bridge := ui.NewBridge()
	d := dismiss.NewDispatcher()
	layout := ui.NewLayout(80, 24)
	logger := logging.OrNop(deps.Logger)

	poller := appsync.New(deps.Notify, deps.Session, appsync.Options{
		Interval: deps.Config.PollInterval(),
		Timeout:  deps.Config.FetchTimeout(),
		Expired:  deps.Auth.CheckExpiry,
		Logger:   logger,
	})

	return Model{
		deps:         deps,
		logger:       logger,
		layout:       layout,
		keys:         k,
		bridge:       bridge,
		dispatcher:   d,
		poller:       poller,
		unsubscribe:  deps.Session.Subscribe(bridge.Notifier(ui.SessionChangedMsg{})),
		navbar:       navbar.New(deps.Session, deps.Notify, deps.Auth, d, bridge, k, layout),
		loginView:    login.New(deps.Auth, d),
		registerView: register.New(deps.Auth, d, layout.ContentHeight()),
		helpView:     helpview.New(k, 80, 24),
		commandView:  command.New(80, 24),
	}
}

// Init starts the poller and listens for session and notification changes.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.bridge.Wait(),
		m.poller.Start(),
	)
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		w, h := m.layout.ContentWidth(), m.layout.ContentHeight()
		m.navbar.SetSize(m.layout)
		m.helpView.SetSize(w, h)
		m.commandView.SetSize(w, h)
		m.registerView.SetSize(h)
		m.notifications.SetSize(w, h)
		m.adminView.SetSize(w, h)
		return m.updateOverlay(msg)

	case ui.SessionChangedMsg:
		var cmd tea.Cmd
		m.navbar, cmd = m.navbar.Update(msg)
		if !m.navbar.SignedIn() {
			m.leavePage()
			m.page = ui.PageHome
		} else if m.page == ui.PageAdmin && !m.navbar.User().IsAdmin() {
			m.leavePage()
			m.page = ui.PageHome
		}
		return m, tea.Batch(cmd, m.bridge.Wait())

	case ui.NotificationsChangedMsg:
		var cmd tea.Cmd
		if m.page == ui.PageNotifications {
			m.notifications, cmd = m.notifications.Update(msg)
		}
		return m, tea.Batch(cmd, m.bridge.Wait())

	case appsync.ResultMsg:
		switch {
		case msg.AuthError != nil:
			if m.deps.Session.Token() != "" {
				m.deps.Auth.Expire(msg.AuthError.Message)
			}
			m.setStatus(msg.AuthError.Message, true)
		case msg.Error != nil:
			m.setStatus(notify.Snapshot{Err: msg.Error}.ErrorText(), true)
			m.pollFailed = true
		case m.pollFailed:
			m.setStatus("", false)
		}
		return m, m.poller.WaitForNextResult()

	case ui.StatusMsg:
		m.setStatus(msg.Text, msg.Error)
		return m, nil

	case ui.OpenPageMsg:
		m.verified = msg.Verified
		return m, m.openPage(msg.Page)

	case ui.NavigateMsg:
		page, ok := ui.PageFor(msg.Nav)
		if !ok {
			return m, nil
		}
		m.nav = msg.Nav
		return m, m.openPage(page)

	case ui.ShowLoginMsg:
		m.navbar.CloseAll()
		m.registerView.Close()
		return m, m.loginView.Open(msg.Username)

	case ui.ShowRegisterMsg:
		m.navbar.CloseAll()
		m.loginView.Close()
		return m, m.registerView.Open()

	case ui.LoggedInMsg:
		m.setStatus("Welcome, "+msg.User.DisplayName(), false)
		if msg.User.IsAdmin() {
			return m, m.openPage(ui.PageAdmin)
		}
		return m, nil

	case ui.LogoutMsg:
		return m, m.logout()

	case command.CommandMsg:
		m.currentView = ViewPage
		return m, m.executeCommand(msg)

	case tea.MouseMsg:
		return m.handleMouse(msg)

	case tea.KeyMsg:
		return m.handleKeys(msg)
	}

	return m.broadcast(msg)
}

func (m Model) handleKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, m.quit()
	}

	// Overlays own the keyboard while open.
	if m.loginView.IsOpen() || m.registerView.IsOpen() {
		if key.Matches(msg, m.keys.Back) {
			m.loginView.Close()
			m.registerView.Close()
			return m, nil
		}
		return m.updateOverlay(msg)
	}

	switch m.currentView {
	case ViewCommand:
		if key.Matches(msg, m.keys.Back) {
			m.currentView = ViewPage
			return m, nil
		}
		var cmd tea.Cmd
		m.commandView, cmd = m.commandView.Update(msg)
		return m, cmd
	case ViewHelp:
		if key.Matches(msg, m.keys.Back) || key.Matches(msg, m.keys.Help) {
			m.currentView = ViewPage
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Bell):
		return m, m.navbar.ToggleBell()
	case key.Matches(msg, m.keys.Profile):
		return m, m.navbar.ToggleMenu()
	}

	if m.navbar.Active() {
		var cmd tea.Cmd
		m.navbar, cmd = m.navbar.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, m.quit()
	case key.Matches(msg, m.keys.Command):
		m.currentView = ViewCommand
		return m, m.commandView.Focus()
	case key.Matches(msg, m.keys.Help):
		m.currentView = ViewHelp
		return m, nil
	case key.Matches(msg, m.keys.Back):
		if m.page != ui.PageHome {
			return m, m.openPage(ui.PageHome)
		}
		return m, nil
	case !m.navbar.SignedIn() && key.Matches(msg, m.keys.Login):
		return m, m.loginView.Open("")
	case !m.navbar.SignedIn() && key.Matches(msg, m.keys.Register):
		return m, m.registerView.Open()
	}

	return m.updatePage(msg)
}

// handleMouse delivers presses to the dismissal dispatcher first, then to
// whatever was drawn under the pointer.
func (m Model) handleMouse(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	if msg.Action != tea.MouseActionPress || tea.MouseEvent(msg).IsWheel() {
		return m, nil
	}
	p := dismiss.Point{X: msg.X, Y: msg.Y}
	m.dispatcher.PointerDown(p)

	if m.loginView.IsOpen() || m.registerView.IsOpen() {
		return m.updateOverlay(msg)
	}
	if cmd := m.navbar.Click(p); cmd != nil || p.Y < m.layout.HeaderHeight {
		return m, cmd
	}
	if m.navbar.Active() {
		return m, nil
	}

	if m.currentView == ViewPage && m.page == ui.PageNotifications && m.layout.ContentRect().Contains(p) {
		rel := dismiss.Point{X: p.X, Y: p.Y - m.layout.HeaderHeight}
		return m, m.notifications.Click(rel)
	}
	return m, nil
}

// updateOverlay forwards msg to the open login or sign-up form.
func (m Model) updateOverlay(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch {
	case m.loginView.IsOpen():
		m.loginView, cmd = m.loginView.Update(msg)
	case m.registerView.IsOpen():
		m.registerView, cmd = m.registerView.Update(msg)
	}
	return m, cmd
}

// updatePage forwards a key to the page that owns a model.
func (m Model) updatePage(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.page {
	case ui.PageNotifications:
		m.notifications, cmd = m.notifications.Update(msg)
	case ui.PageAdmin:
		m.adminView, cmd = m.adminView.Update(msg)
	default:
		if key.Matches(msg, m.keys.Refresh) && m.navbar.SignedIn() {
			cmd = m.poller.RefreshNow()
		}
	}
	return m, cmd
}

// broadcast delivers async results to every live sub-model. Each one
// ignores messages it did not ask for.
func (m Model) broadcast(msg tea.Msg) (tea.Model, tea.Cmd) {
	cmds := make([]tea.Cmd, 0, 4)
	var cmd tea.Cmd

	m.loginView, cmd = m.loginView.Update(msg)
	cmds = append(cmds, cmd)
	m.registerView, cmd = m.registerView.Update(msg)
	cmds = append(cmds, cmd)
	m.navbar, cmd = m.navbar.Update(msg)
	cmds = append(cmds, cmd)

	switch m.page {
	case ui.PageNotifications:
		m.notifications, cmd = m.notifications.Update(msg)
		cmds = append(cmds, cmd)
	case ui.PageAdmin:
		m.adminView, cmd = m.adminView.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

// openPage switches pages, closing the scope of the page being left.
func (m *Model) openPage(p ui.Page) tea.Cmd {
	sess, signedIn := m.deps.Session.Current()
	switch p {
	case ui.PageNotifications, ui.PageFavorites, ui.PageListings, ui.PageAccount,
		ui.PagePayment, ui.PageBookingDetail:
		if !signedIn {
			m.setStatus("Please log in first", true)
			return m.loginView.Open("")
		}
	case ui.PageAdmin:
		if !signedIn || !sess.User.IsAdmin() {
			m.setStatus("The verification dashboard is for administrators", true)
			return nil
		}
	}

	m.leavePage()
	m.page = p
	m.currentView = ViewPage
	w, h := m.layout.ContentWidth(), m.layout.ContentHeight()

	switch p {
	case ui.PageNotifications:
		m.notifications = notifications.New(m.deps.Session, m.deps.Notify, m.bridge, m.keys, w, h)
		return m.notifications.Init()
	case ui.PageAdmin:
		m.adminView = admin.New(m.deps.Admin, m.deps.Session, m.keys, w, h)
		return m.adminView.Init()
	}
	return nil
}

func (m *Model) leavePage() {
	if m.page == ui.PageNotifications {
		m.notifications.Close()
	}
}

func (m *Model) logout() tea.Cmd {
	m.navbar.CloseAll()
	if err := m.deps.Auth.Logout(); err != nil {
		m.logger.Error("logout failed", zap.Error(err))
		m.setStatus("Could not clear the saved session", true)
		return nil
	}
	m.leavePage()
	m.page = ui.PageHome
	m.setStatus("Signed out", false)
	return nil
}

func (m *Model) executeCommand(msg command.CommandMsg) tea.Cmd {
	if !msg.Known {
		m.setStatus(fmt.Sprintf("unknown command: %s", msg.Raw), true)
		return nil
	}

	switch msg.Name {
	case command.Home:
		return m.openPage(ui.PageHome)
	case command.Notifications:
		return m.openPage(ui.PageNotifications)
	case command.Admin:
		return m.openPage(ui.PageAdmin)
	case command.Login:
		username := ""
		if len(msg.Args) > 0 {
			username = msg.Args[0]
		}
		return m.loginView.Open(username)
	case command.Register:
		return m.registerView.Open()
	case command.Logout:
		return m.logout()
	case command.Refresh:
		return m.poller.RefreshNow()
	case command.Help:
		m.currentView = ViewHelp
		return nil
	case command.Quit:
		return m.quit()
	}
	return nil
}

func (m *Model) setStatus(text string, isErr bool) {
	m.pollFailed = false
	m.status = text
	m.statusErr = isErr
}

// quit stops background work before leaving.
func (m *Model) quit() tea.Cmd {
	m.poller.Stop()
	m.leavePage()
	m.navbar.Close()
	m.loginView.Release()
	m.registerView.Release()
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
	m.bridge.Close()
	return tea.Quit
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	header := m.navbar.View()
	content := m.renderContent()
	statusBar := m.layout.RenderStatusBar(m.statusLine())

	frame := m.layout.RenderWithFrame(header, content, statusBar)
	frame = m.navbar.Overlay(frame)
	frame = m.loginView.Overlay(frame, m.layout)
	frame = m.registerView.Overlay(frame, m.layout)
	return frame
}

// renderContent returns the rendered string for the current view.
func (m Model) renderContent() string {
	switch m.currentView {
	case ViewHelp:
		return m.helpView.View()
	case ViewCommand:
		return m.commandView.View()
	}

	switch m.page {
	case ui.PageNotifications:
		return m.notifications.View()
	case ui.PageAdmin:
		return m.adminView.View()
	case ui.PageAccount:
		return m.renderAccount()
	case ui.PageFavorites:
		return renderPlaceholder("Favorites", "Boarding houses you save appear here.")
	case ui.PageListings:
		state := "Your account is verified; listings are visible to tenants."
		if !m.verified {
			state = "Your account is awaiting verification; listings stay hidden until an administrator approves it."
		}
		return renderPlaceholder("Manage listings", state)
	case ui.PagePayment:
		return renderPlaceholder(
			fmt.Sprintf("Payment for booking #%d", m.nav.BookingID),
			"Your booking was approved. Complete the payment to confirm it.",
		)
	case ui.PageBookingDetail:
		return renderPlaceholder(
			fmt.Sprintf("Booking #%d", m.nav.BookingID),
			"Review the request from the notifications page: a accepts, x rejects.",
		)
	default:
		return m.renderHome()
	}
}

func (m Model) renderHome() string {
	title := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorBlue).Render("Welcome to BHConnect")
	lines := []string{title, ""}
	if !m.navbar.SignedIn() {
		lines = append(lines,
			"Find and book boarding houses.",
			"",
			theme.HelpStyle.Render("l log in · s sign up · p menu · ? help"),
		)
	} else {
		user := m.navbar.User()
		lines = append(lines,
			fmt.Sprintf("Signed in as %s (%s)", user.DisplayName(), roleLabel(user)),
			fmt.Sprintf("%d unread notification(s)", m.navbar.Unread()),
			"",
			theme.HelpStyle.Render("n notifications · p menu · : commands · ? help"),
		)
	}
	return lipgloss.NewStyle().Padding(1, 2).Render(strings.Join(lines, "\n"))
}

func (m Model) renderAccount() string {
	sess, ok := m.deps.Session.Current()
	if !ok {
		return renderPlaceholder("Account", "Not signed in.")
	}
	u := sess.User
	phone := "-"
	if u.PhoneNumber != nil && *u.PhoneNumber != "" {
		phone = *u.PhoneNumber
	}
	rows := []string{
		lipgloss.NewStyle().Bold(true).Render("Account"),
		"",
		fmt.Sprintf("%-10s %s", "Name", u.DisplayName()),
		fmt.Sprintf("%-10s %s", "Username", u.Username),
		fmt.Sprintf("%-10s %s", "Email", u.Email),
		fmt.Sprintf("%-10s %s", "Phone", phone),
		fmt.Sprintf("%-10s %s", "Role", roleLabel(u)),
		fmt.Sprintf("%-10s %s", "Status", verifiedLabel(u.IsVerified)),
	}
	if exp, err := auth.TokenExpiry(sess.Token); err == nil {
		rows = append(rows, fmt.Sprintf("%-10s %s", "Session", "expires "+exp.Local().Format("Jan 2, 03:04 PM")))
	}
	return lipgloss.NewStyle().Padding(1, 2).Render(strings.Join(rows, "\n"))
}

func renderPlaceholder(title, body string) string {
	return lipgloss.NewStyle().Padding(1, 2).Render(
		lipgloss.NewStyle().Bold(true).Render(title) + "\n\n" + body,
	)
}

func roleLabel(u model.User) string {
	switch {
	case u.IsAdmin():
		return "administrator"
	case u.Role == model.RoleOwner:
		return "owner"
	case u.Role == model.RoleTenant:
		return "tenant"
	default:
		return string(u.Role)
	}
}

func verifiedLabel(v bool) string {
	if v {
		return theme.VerifiedStyle(true).Render("verified")
	}
	return theme.VerifiedStyle(false).Render("pending verification")
}

// statusLine is the last status message, or key hints for the current view.
func (m Model) statusLine() string {
	if m.status != "" {
		if m.statusErr {
			return theme.ErrorStyle.Render(m.status)
		}
		return m.status
	}
	return m.keyHints()
}

func (m Model) keyHints() string {
	switch {
	case m.loginView.IsOpen(), m.registerView.IsOpen():
		return "enter next | esc cancel"
	case m.currentView == ViewHelp:
		return "? close help | esc back"
	case m.currentView == ViewCommand:
		return ": close command | enter execute | esc back"
	case m.navbar.BellOpen():
		return "j/k move | enter open | esc close"
	case m.navbar.MenuOpen():
		return "j/k move | enter select | esc close"
	}

	switch m.page {
	case ui.PageNotifications:
		return "tab next tab | enter open | a accept | x reject | r refresh | esc back"
	case ui.PageAdmin:
		return "a approve | x reject | r reload | esc back"
	case ui.PageHome:
		hints := "n notifications | p menu | : command | ? help | q quit"
		if last := m.poller.Status().LastPoll; m.navbar.SignedIn() && !last.IsZero() {
			hints += " | checked " + last.Format("15:04")
		}
		return hints
	default:
		return "esc back | p menu | q quit"
	}
}
