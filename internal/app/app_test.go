package app

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/bhconnect/internal/api"
	"github.com/nhle/bhconnect/internal/auth"
	"github.com/nhle/bhconnect/internal/model"
	"github.com/nhle/bhconnect/internal/notify"
	"github.com/nhle/bhconnect/internal/session"
	appsync "github.com/nhle/bhconnect/internal/sync"
	"github.com/nhle/bhconnect/internal/ui"
	"github.com/nhle/bhconnect/internal/ui/command"
	"github.com/nhle/bhconnect/tests/testutil"
)

type harness struct {
	backend *testutil.FakeBackend
	deps    Deps
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	fb := testutil.NewFakeBackend(t)
	client := api.NewClient(fb.URL(), api.Options{Timeout: 5 * time.Second})
	sess := session.NewContext(
		session.NewStore(session.NewMemoryBackend()),
		session.NewSignal(nil),
	)
	nc := notify.NewClient(client, sess, notify.Options{FetchTimeout: 5 * time.Second})
	t.Cleanup(nc.Close)

	return &harness{
		backend: fb,
		deps: Deps{
			Config:  &model.AppConfig{},
			Session: sess,
			Auth:    auth.NewService(client, sess, nil),
			Notify:  nc,
			Admin:   client,
		},
	}
}

func (h *harness) start(t *testing.T) Model {
	t.Helper()
	m := New(h.deps)
	return update(m, tea.WindowSizeMsg{Width: 120, Height: 40})
}

func (h *harness) signIn(t *testing.T, m Model, u model.User) (Model, model.User) {
	t.Helper()
	h.backend.AddUser(u, "secret")
	user, err := h.deps.Auth.Login(context.Background(), u.Username, "secret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	return update(m, ui.SessionChangedMsg{}), user
}

func update(m Model, msg tea.Msg) Model {
	next, _ := m.Update(msg)
	return next.(Model)
}

func TestSignedOutHome(t *testing.T) {
	h := newHarness(t)
	m := h.start(t)

	view := m.View()
	for _, want := range []string{"Welcome to BHConnect", "Sign in", "l log in"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestLoadingBeforeFirstResize(t *testing.T) {
	h := newHarness(t)
	if got := New(h.deps).View(); got != "Loading..." {
		t.Errorf("view = %q", got)
	}
}

func TestSignedInHomeShowsUser(t *testing.T) {
	h := newHarness(t)
	m, _ := h.signIn(t, h.start(t), model.User{Username: "erin", FirstName: "Erin", Role: model.RoleTenant})

	if !m.navbar.SignedIn() {
		t.Fatal("navbar not signed in")
	}
	if view := m.View(); !strings.Contains(view, "Signed in as Erin (tenant)") {
		t.Errorf("view = %q", view)
	}
}

func TestAdminLoginOpensDashboard(t *testing.T) {
	h := newHarness(t)
	m, user := h.signIn(t, h.start(t), model.User{Username: model.AdminUsername})

	m = update(m, ui.LoggedInMsg{User: user})
	if m.page != ui.PageAdmin {
		t.Fatalf("page = %v", m.page)
	}
	if !strings.Contains(m.View(), "Account verification") {
		t.Error("dashboard not rendered")
	}
}

func TestAdminPageRefusedForOthers(t *testing.T) {
	h := newHarness(t)
	m, _ := h.signIn(t, h.start(t), model.User{Username: "owner", Role: model.RoleOwner})

	m = update(m, ui.OpenPageMsg{Page: ui.PageAdmin})
	if m.page != ui.PageHome || !m.statusErr {
		t.Errorf("page = %v status = %q", m.page, m.status)
	}
}

func TestProtectedPageAsksForLogin(t *testing.T) {
	h := newHarness(t)
	m := update(h.start(t), ui.OpenPageMsg{Page: ui.PageNotifications})

	if m.page != ui.PageHome {
		t.Errorf("page = %v", m.page)
	}
	if !m.loginView.IsOpen() {
		t.Error("login overlay not shown")
	}
}

func TestOutsidePressClosesLogin(t *testing.T) {
	h := newHarness(t)
	m := update(h.start(t), ui.ShowLoginMsg{Username: "erin"})
	_ = m.View()

	m = update(m, tea.MouseMsg{X: 0, Y: 39, Action: tea.MouseActionPress, Button: tea.MouseButtonLeft})
	if m.loginView.IsOpen() {
		t.Error("login still open after outside press")
	}
}

func TestShowRegisterReplacesLogin(t *testing.T) {
	h := newHarness(t)
	m := update(h.start(t), ui.ShowLoginMsg{})
	m = update(m, ui.ShowRegisterMsg{})

	if m.loginView.IsOpen() || !m.registerView.IsOpen() {
		t.Errorf("login=%v register=%v", m.loginView.IsOpen(), m.registerView.IsOpen())
	}
}

func TestNavigateToPayment(t *testing.T) {
	h := newHarness(t)
	m, _ := h.signIn(t, h.start(t), model.User{Username: "tina", Role: model.RoleTenant})

	m = update(m, ui.NavigateMsg{Nav: notify.Navigation{Destination: notify.NavPayment, BookingID: 42}})
	if m.page != ui.PagePayment {
		t.Fatalf("page = %v", m.page)
	}
	if !strings.Contains(m.View(), "Payment for booking #42") {
		t.Error("payment page not rendered")
	}
}

func TestLeavingNotificationsClosesItsScope(t *testing.T) {
	h := newHarness(t)
	m, _ := h.signIn(t, h.start(t), model.User{Username: "owen", Role: model.RoleOwner})

	m = update(m, ui.OpenPageMsg{Page: ui.PageNotifications})
	if m.page != ui.PageNotifications {
		t.Fatalf("page = %v", m.page)
	}
	page := m.notifications

	m = update(m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.page != ui.PageHome {
		t.Errorf("page = %v", m.page)
	}
	before := len(h.backend.Requests())
	page.Init()()
	if got := len(h.backend.Requests()); got != before {
		t.Errorf("closed page sent %d request(s)", got-before)
	}
}

func TestLogoutCommand(t *testing.T) {
	h := newHarness(t)
	m, _ := h.signIn(t, h.start(t), model.User{Username: "erin", Role: model.RoleTenant})
	m = update(m, ui.OpenPageMsg{Page: ui.PageAccount})

	m = update(m, command.CommandMsg{Name: command.Logout, Known: true})
	if h.deps.Session.Token() != "" {
		t.Error("session not cleared")
	}
	if m.page != ui.PageHome || m.status != "Signed out" {
		t.Errorf("page = %v status = %q", m.page, m.status)
	}
}

func TestUnknownCommand(t *testing.T) {
	h := newHarness(t)
	m := update(h.start(t), command.Parse("frobnicate"))
	if !m.statusErr || !strings.Contains(m.status, "unknown command: frobnicate") {
		t.Errorf("status = %q", m.status)
	}
}

func TestPollerAuthErrorSignsOut(t *testing.T) {
	h := newHarness(t)
	m, _ := h.signIn(t, h.start(t), model.User{Username: "erin", Role: model.RoleTenant})
	m = update(m, ui.OpenPageMsg{Page: ui.PageAccount})

	m = update(m, appsync.ResultMsg{
		Error:     notify.ErrUnauthenticated,
		AuthError: &appsync.AuthErrorMsg{Message: "Session expired. Please log in again."},
	})
	if h.deps.Session.Token() != "" {
		t.Fatal("session survived an auth error")
	}
	if m.status != "Session expired. Please log in again." {
		t.Errorf("status = %q", m.status)
	}

	m = update(m, ui.SessionChangedMsg{})
	if m.navbar.SignedIn() || m.page != ui.PageHome {
		t.Errorf("signedIn=%v page=%v", m.navbar.SignedIn(), m.page)
	}
}

func TestPollerRecoveryClearsItsError(t *testing.T) {
	h := newHarness(t)
	m := h.start(t)

	m = update(m, appsync.ResultMsg{Error: context.DeadlineExceeded})
	if m.status != "Timed out loading notifications" {
		t.Fatalf("status = %q", m.status)
	}
	m = update(m, appsync.ResultMsg{})
	if m.status != "" {
		t.Errorf("status = %q", m.status)
	}
}

func TestBellKeyFetchesAndOpens(t *testing.T) {
	h := newHarness(t)
	m, _ := h.signIn(t, h.start(t), model.User{Username: "owen", Role: model.RoleOwner})
	id := int64(7)
	h.backend.SetNotifications("owen", []model.Notification{
		{ID: 1, BookingID: &id, Message: "New booking request", Role: model.PerspectiveOwner},
	})
	if err := h.deps.Notify.Fetch(context.Background()); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if m.navbar.Unread() != 1 {
		t.Fatalf("unread = %d", m.navbar.Unread())
	}

	m = update(m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'n'}})
	if !m.navbar.BellOpen() {
		t.Fatal("bell not open")
	}
	if view := m.View(); !strings.Contains(view, "New booking request") {
		t.Errorf("dropdown missing notification: %q", view)
	}
}

func TestHomeShowsLastCheck(t *testing.T) {
	h := newHarness(t)
	m, _ := h.signIn(t, h.start(t), model.User{Username: "erin", Role: model.RoleTenant})
	if strings.Contains(m.View(), "checked ") {
		t.Fatal("last check shown before any refresh")
	}

	wait := m.poller.Start()
	defer m.poller.Stop()
	m = update(m, wait())
	if view := m.View(); !strings.Contains(view, "checked ") {
		t.Errorf("view missing last check: %q", view)
	}
}

func TestQuitStopsAndQuits(t *testing.T) {
	h := newHarness(t)
	m := h.start(t)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("no command returned")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
	if m.bridge.Wait()() != nil {
		t.Error("bridge still open after quit")
	}
}
