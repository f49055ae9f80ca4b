package register

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/bhconnect/internal/api"
	"github.com/nhle/bhconnect/internal/dismiss"
	"github.com/nhle/bhconnect/internal/model"
	"github.com/nhle/bhconnect/internal/theme"
	"github.com/nhle/bhconnect/internal/ui"
)

const (
	formWidth       = 50
	registerTimeout = 30 * time.Second
	minPasswordLen  = 6
)

// Registrar creates accounts.
type Registrar interface {
	Register(ctx context.Context, req api.RegisterRequest) (model.User, error)
}

type resultMsg struct {
	user model.User
	err  error
}

// formBindings holds form field values on the heap so that huh's Value()
// pointers remain valid across Bubble Tea model copies.
type formBindings struct {
	username  string
	email     string
	password  string
	firstName string
	lastName  string
	phone     string
	role      model.Role
}

// Model is the sign-up overlay. A successful registration hands over to
// the login overlay with the new username.
type Model struct {
	form       *huh.Form
	fb         *formBindings
	registrar  Registrar
	region     *dismiss.Region
	errText    string
	submitting bool
	height     int
}

// New creates a closed registration overlay attached to the dispatcher.
func New(r Registrar, d *dismiss.Dispatcher, height int) Model {
	return Model{
		fb:        &formBindings{role: model.RoleTenant},
		registrar: r,
		region:    d.Attach(false),
		height:    height,
	}
}

// Open shows an empty form.
func (m *Model) Open() tea.Cmd {
	*m.fb = formBindings{role: model.RoleTenant}
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

// Update forwards input to the form and handles the registration result.
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
		m.errText = api.Message(res.err, "Registration failed")
		m.fb.password = ""
		m.form = m.buildForm()
		return m, m.form.Init()
	}

	m.Close()
	username := res.user.Username
	if username == "" {
		username = m.fb.username
	}
	return m, tea.Batch(
		func() tea.Msg { return ui.ShowLoginMsg{Username: username} },
		func() tea.Msg { return ui.StatusMsg{Text: "Registration successful. Please log in."} },
	)
}

// View renders the overlay box.
func (m Model) View() string {
	if m.form == nil {
		return ""
	}

	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		Render("Create an account")

	parts := []string{title}
	if m.errText != "" {
		parts = append(parts, theme.ErrorStyle.Render(m.errText))
	}
	if m.submitting {
		parts = append(parts, theme.HelpStyle.Render("Creating account..."))
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

// SetSize updates the height available to the form.
func (m *Model) SetSize(height int) {
	m.height = height
}

func (m *Model) buildForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Username").
				Value(&m.fb.username).
				Validate(validateRequired("Username")),
			huh.NewInput().
				Title("Email").
				Value(&m.fb.email).
				Validate(validateEmail),
			huh.NewInput().
				Title("Password").
				EchoMode(huh.EchoModePassword).
				Value(&m.fb.password).
				Validate(validatePassword),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("First name").
				Value(&m.fb.firstName),
			huh.NewInput().
				Title("Last name").
				Value(&m.fb.lastName),
			huh.NewInput().
				Title("Phone").
				Placeholder("optional").
				Value(&m.fb.phone),
			huh.NewSelect[model.Role]().
				Title("I am a").
				Options(
					huh.NewOption("Tenant looking for a room", model.RoleTenant),
					huh.NewOption("Owner listing a boarding house", model.RoleOwner),
				).
				Value(&m.fb.role),
		),
	).WithWidth(formWidth - 2).WithHeight(m.formHeight()).WithShowHelp(false)
}

func (m Model) formHeight() int {
	h := m.height - 8
	if h < 10 {
		h = 10
	}
	return h
}

func (m Model) submit() tea.Cmd {
	r := m.registrar
	req := api.RegisterRequest{
		Username:    strings.TrimSpace(m.fb.username),
		Email:       strings.TrimSpace(m.fb.email),
		Password:    m.fb.password,
		FirstName:   strings.TrimSpace(m.fb.firstName),
		LastName:    strings.TrimSpace(m.fb.lastName),
		PhoneNumber: strings.TrimSpace(m.fb.phone),
		Role:        m.fb.role,
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), registerTimeout)
		defer cancel()
		user, err := r.Register(ctx, req)
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

func validateEmail(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("Email is required")
	}
	if _, err := mail.ParseAddress(s); err != nil {
		return fmt.Errorf("invalid email address")
	}
	return nil
}

func validatePassword(s string) error {
	if len(s) < minPasswordLen {
		return fmt.Errorf("Password must be at least %d characters", minPasswordLen)
	}
	return nil
}
