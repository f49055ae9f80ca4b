package login

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/bhconnect/internal/api"
	"github.com/nhle/bhconnect/internal/auth"
	"github.com/nhle/bhconnect/internal/dismiss"
	"github.com/nhle/bhconnect/internal/model"
	"github.com/nhle/bhconnect/internal/theme"
	"github.com/nhle/bhconnect/internal/ui"
)

const (
	formWidth    = 44
	loginTimeout = 30 * time.Second
)

// Authenticator signs a user in.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (model.User, error)
}

// resultMsg reports the end of a login attempt.
type resultMsg struct {
	user model.User
	err  error
}

// formBindings holds form field values on the heap so that huh's Value()
// pointers remain valid across Bubble Tea model copies.
type formBindings struct {
	username string
	password string
}

// Model is the login overlay. It closes when the user presses outside it.
type Model struct {
	form       *huh.Form
	fb         *formBindings
	auth       Authenticator
	region     *dismiss.Region
	errText    string
	submitting bool
}

// New creates a closed login overlay attached to the dispatcher.
// An outside press that dismisses it also forgets the typed password.
func New(a Authenticator, d *dismiss.Dispatcher) Model {
	fb := &formBindings{}
	region := d.Attach(false)
	region.OnClose(func() { fb.password = "" })
	return Model{
		fb:     fb,
		auth:   a,
		region: region,
	}
}

// Open shows the overlay with username prefilled.
func (m *Model) Open(username string) tea.Cmd {
	m.fb.username = username
	m.fb.password = ""
	m.errText = ""
	m.submitting = false
	m.region.SetOpen(true)
	m.form = m.buildForm()
	return m.form.Init()
}

// IsOpen reports whether the overlay is showing.
func (m Model) IsOpen() bool {
	return m.region.IsOpen()
}

// Close hides the overlay.
func (m *Model) Close() {
	m.region.SetOpen(false)
	m.submitting = false
}

// Release detaches the overlay from the dispatcher.
func (m *Model) Release() {
	m.region.Release()
}

// Update forwards input to the form and handles the login result.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if res, ok := msg.(resultMsg); ok {
		return m.handleResult(res)
	}
	if !m.IsOpen() || m.form == nil || m.submitting {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		m.submitting = true
		return m, m.submit()
	case huh.StateAborted:
		m.Close()
		return m, nil
	}
	return m, cmd
}

func (m Model) handleResult(res resultMsg) (Model, tea.Cmd) {
	m.submitting = false
	if res.err != nil {
		if !m.IsOpen() {
			return m, nil
		}
		m.errText = errorText(res.err)
		m.fb.password = ""
		m.form = m.buildForm()
		return m, m.form.Init()
	}

	m.Close()
	user := res.user
	return m, func() tea.Msg { return ui.LoggedInMsg{User: user} }
}

func errorText(err error) string {
	if errors.Is(err, auth.ErrMissingCredentials) {
		return "Username and password are required"
	}
	return api.Message(err, "Login failed")
}

// View renders the overlay box.
func (m Model) View() string {
	if m.form == nil {
		return ""
	}

	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		Render("Log in")

	parts := []string{title}
	if m.errText != "" {
		parts = append(parts, theme.ErrorStyle.Render(m.errText))
	}
	if m.submitting {
		parts = append(parts, theme.HelpStyle.Render("Signing in..."))
	} else {
		parts = append(parts, m.form.View())
	}
	parts = append(parts, theme.HelpStyle.Render("esc closes"))

	return theme.PanelStyle.
		Width(formWidth).
		Render(strings.Join(parts, "\n"))
}

// Overlay draws the open overlay centred over base and records where it
// landed.
func (m Model) Overlay(base string, l ui.Layout) string {
	if !m.IsOpen() {
		return base
	}
	box := m.View()
	rect := l.CenteredRect(lipgloss.Width(box), lipgloss.Height(box))
	m.region.Bind(rect)
	return ui.Overlay(base, box, rect.Min.X, rect.Min.Y)
}

func (m *Model) buildForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Username").
				Value(&m.fb.username).
				Validate(validateRequired("Username")),
			huh.NewInput().
				Title("Password").
				EchoMode(huh.EchoModePassword).
				Value(&m.fb.password).
				Validate(validateRequired("Password")),
		),
	).WithWidth(formWidth - 2).WithShowHelp(false)
}

func (m Model) submit() tea.Cmd {
	a := m.auth
	username, password := m.fb.username, m.fb.password
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), loginTimeout)
		defer cancel()
		user, err := a.Login(ctx, username, password)
		return resultMsg{user: user, err: err}
	}
}

func validateRequired(fieldName string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
		return nil
	}
}
