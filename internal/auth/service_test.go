package auth

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nhle/bhconnect/internal/api"
	"github.com/nhle/bhconnect/internal/model"
	"github.com/nhle/bhconnect/internal/session"
)

type fakeBackend struct {
	loginResp  *api.LoginResponse
	loginErr   error
	me         *model.User
	meErr      error
	meToken    string
	registered []api.RegisterRequest
}

func (f *fakeBackend) Login(_ context.Context, _, _ string) (*api.LoginResponse, error) {
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return f.loginResp, nil
}

func (f *fakeBackend) Register(_ context.Context, req api.RegisterRequest) (*model.User, error) {
	f.registered = append(f.registered, req)
	return &model.User{UserID: 2, Username: req.Username, Role: req.Role}, nil
}

func (f *fakeBackend) Me(_ context.Context, token string) (*model.User, error) {
	f.meToken = token
	if f.meErr != nil {
		return nil, f.meErr
	}
	return f.me, nil
}

func newService(b Backend) (*Service, *session.Context, *session.MemoryBackend, *int) {
	mem := session.NewMemoryBackend()
	sig := session.NewSignal(nil)
	raised := new(int)
	sig.Subscribe(func() { *raised++ })
	ctx := session.NewContext(session.NewStore(mem), sig)
	return NewService(b, ctx, nil), ctx, mem, raised
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   "ana",
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("server-secret"))
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func TestLoginWritesCanonicalKeys(t *testing.T) {
	b := &fakeBackend{loginResp: &api.LoginResponse{
		AccessToken: "tok-1",
		User:        model.User{UserID: 7, Username: "ana"},
	}}
	svc, ctx, mem, raised := newService(b)

	user, err := svc.Login(context.Background(), " ana ", "pw")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if user.UserID != 7 {
		t.Errorf("user = %+v", user)
	}

	if v, ok, _ := mem.Get(session.TokenKey); !ok || v != "tok-1" {
		t.Errorf("%s = %q, %v", session.TokenKey, v, ok)
	}
	if _, ok, _ := mem.Get(session.UserKey); !ok {
		t.Errorf("%s not written", session.UserKey)
	}
	if ctx.Token() != "tok-1" {
		t.Errorf("Context.Token = %q", ctx.Token())
	}
	if *raised != 1 {
		t.Errorf("signal raised %d times, want 1", *raised)
	}

	// Profile refresh reads the token through the same store.
	b.me = &model.User{UserID: 7, Username: "ana", IsVerified: true}
	if _, err := svc.RefreshProfile(context.Background()); err != nil {
		t.Fatalf("RefreshProfile: %v", err)
	}
	if b.meToken != "tok-1" {
		t.Errorf("Me called with %q", b.meToken)
	}
}

func TestLoginFailureLeavesSessionEmpty(t *testing.T) {
	b := &fakeBackend{loginErr: &api.Error{Status: http.StatusBadRequest, Detail: "Incorrect username or password"}}
	svc, ctx, _, raised := newService(b)

	_, err := svc.Login(context.Background(), "ana", "bad")
	if got := api.Message(err, "Login failed"); got != "Incorrect username or password" {
		t.Errorf("Message = %q", got)
	}
	if _, ok := ctx.Current(); ok {
		t.Error("session written after failed login")
	}
	if *raised != 0 {
		t.Errorf("signal raised %d times", *raised)
	}
}

func TestLoginRequiresCredentials(t *testing.T) {
	svc, _, _, _ := newService(&fakeBackend{})
	if _, err := svc.Login(context.Background(), "  ", "pw"); !errors.Is(err, ErrMissingCredentials) {
		t.Errorf("err = %v", err)
	}
}

func TestRegisterValidatesRole(t *testing.T) {
	b := &fakeBackend{}
	svc, ctx, _, _ := newService(b)

	req := api.RegisterRequest{Username: "bo", Email: "bo@example.com", Password: "pw"}
	if _, err := svc.Register(context.Background(), req); err == nil {
		t.Fatal("registration without a role accepted")
	}

	req.Role = model.RoleOwner
	user, err := svc.Register(context.Background(), req)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if user.Role != model.RoleOwner || len(b.registered) != 1 {
		t.Errorf("user = %+v, calls = %d", user, len(b.registered))
	}
	if _, ok := ctx.Current(); ok {
		t.Error("Register signed the user in")
	}
}

func TestRefreshProfileUnauthorizedSignsOut(t *testing.T) {
	b := &fakeBackend{meErr: &api.Error{Status: http.StatusUnauthorized}}
	svc, ctx, _, raised := newService(b)
	if err := ctx.SignIn("stale", model.User{Username: "ana"}); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.RefreshProfile(context.Background()); !api.IsUnauthorized(err) {
		t.Fatalf("err = %v", err)
	}
	if _, ok := ctx.Current(); ok {
		t.Error("session survived a 401")
	}
	if *raised != 2 {
		t.Errorf("signal raised %d times, want 2", *raised)
	}
}

func TestRefreshProfileWithoutSession(t *testing.T) {
	svc, _, _, _ := newService(&fakeBackend{})
	if _, err := svc.RefreshProfile(context.Background()); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("err = %v", err)
	}
}

func TestCheckExpiry(t *testing.T) {
	svc, ctx, _, _ := newService(&fakeBackend{})
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	if err := ctx.SignIn(signedToken(t, now.Add(time.Minute)), model.User{}); err != nil {
		t.Fatal(err)
	}
	if svc.CheckExpiry() {
		t.Fatal("fresh token treated as expired")
	}

	now = now.Add(2 * time.Minute)
	if !svc.CheckExpiry() {
		t.Fatal("expired token kept")
	}
	if _, ok := ctx.Current(); ok {
		t.Error("session not cleared")
	}
}

func TestTokenExpiry(t *testing.T) {
	exp := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	got, err := TokenExpiry(signedToken(t, exp))
	if err != nil {
		t.Fatalf("TokenExpiry: %v", err)
	}
	if !got.Equal(exp) {
		t.Errorf("expiry = %v, want %v", got, exp)
	}

	if _, err := TokenExpiry("not-a-jwt"); err == nil {
		t.Error("garbage token parsed")
	}
	if Expired("not-a-jwt", time.Now()) {
		t.Error("unparseable token reported expired")
	}
}
