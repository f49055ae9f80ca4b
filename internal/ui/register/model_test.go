package register

import (
	"context"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/bhconnect/internal/api"
	"github.com/nhle/bhconnect/internal/dismiss"
	"github.com/nhle/bhconnect/internal/model"
	"github.com/nhle/bhconnect/internal/ui"
)

type fakeRegistrar struct {
	req api.RegisterRequest
	err error
}

func (f *fakeRegistrar) Register(_ context.Context, req api.RegisterRequest) (model.User, error) {
	f.req = req
	if f.err != nil {
		return model.User{}, f.err
	}
	return model.User{Username: req.Username, Role: req.Role}, nil
}

func fill(m Model) {
	m.fb.username = " erin "
	m.fb.email = "erin@example.com"
	m.fb.password = "hunter22"
	m.fb.role = model.RoleOwner
}

func TestSuccessOpensLoginWithUsername(t *testing.T) {
	fr := &fakeRegistrar{}
	m := New(fr, dismiss.NewDispatcher(), 40)
	m.Open()
	fill(m)

	m, cmd := m.Update(m.submit()())
	if fr.req.Username != "erin" || fr.req.Role != model.RoleOwner {
		t.Fatalf("request = %+v", fr.req)
	}
	if m.IsOpen() {
		t.Error("overlay still open after registering")
	}

	var login *ui.ShowLoginMsg
	batch, ok := cmd().(tea.BatchMsg)
	if !ok {
		t.Fatalf("expected a batch")
	}
	for _, c := range batch {
		if msg, ok := c().(ui.ShowLoginMsg); ok {
			login = &msg
		}
	}
	if login == nil || login.Username != "erin" {
		t.Errorf("login = %+v", login)
	}
}

func TestFailureKeepsFormOpen(t *testing.T) {
	fr := &fakeRegistrar{err: &api.Error{Status: 400, Detail: "Username already registered"}}
	m := New(fr, dismiss.NewDispatcher(), 40)
	m.Open()
	fill(m)

	m, _ = m.Update(m.submit()())
	if !m.IsOpen() || m.errText != "Username already registered" {
		t.Fatalf("open=%v err=%q", m.IsOpen(), m.errText)
	}
	if m.fb.email != "erin@example.com" || m.fb.password != "" {
		t.Errorf("bindings = %+v", m.fb)
	}

	fr.err = errors.New("connection refused")
	m, _ = m.Update(m.submit()())
	if m.errText != "Registration failed" {
		t.Errorf("err = %q", m.errText)
	}
}

func TestOpenResetsForm(t *testing.T) {
	m := New(&fakeRegistrar{}, dismiss.NewDispatcher(), 40)
	m.Open()
	fill(m)
	m.errText = "old"

	m.Open()
	if m.fb.username != "" || m.fb.role != model.RoleTenant || m.errText != "" {
		t.Errorf("state after reopen = %+v %q", m.fb, m.errText)
	}
}

func TestValidators(t *testing.T) {
	if validateEmail("nope") == nil || validateEmail("") == nil || validateEmail("a@b.co") != nil {
		t.Error("validateEmail")
	}
	if validatePassword("12345") == nil || validatePassword("123456") != nil {
		t.Error("validatePassword")
	}
}
