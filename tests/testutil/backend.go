package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nhle/bhconnect/internal/model"
)

// FakeBackend is an in-process stand-in for the marketplace API. It serves
// the routes the client uses and records the notifications and accounts it
// was seeded with.
type FakeBackend struct {
	Server *httptest.Server

	mu            sync.Mutex
	passwords     map[string]string
	users         map[string]model.User
	tokens        map[string]string
	notifications map[string][]model.Notification
	nextUserID    int64
	tokenTTL      time.Duration
	requests      []string
}

// NewFakeBackend starts a FakeBackend that is shut down when the test
// completes.
func NewFakeBackend(t *testing.T) *FakeBackend {
	t.Helper()

	b := &FakeBackend{
		passwords:     make(map[string]string),
		users:         make(map[string]model.User),
		tokens:        make(map[string]string),
		notifications: make(map[string][]model.Notification),
		nextUserID:    1,
		tokenTTL:      time.Hour,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /login", b.login)
	mux.HandleFunc("POST /register", b.register)
	mux.HandleFunc("GET /users/me", b.authed(b.me))
	mux.HandleFunc("GET /notifications", b.authed(b.listNotifications))
	mux.HandleFunc("PUT /notifications/mark-all-read", b.authed(b.markAllRead))
	mux.HandleFunc("PUT /notifications/{id}/read", b.authed(b.markRead))
	mux.HandleFunc("PUT /bookings/{id}/{decision}", b.authed(b.decideBooking))
	mux.HandleFunc("GET /admin/users", b.authed(b.adminUsers))
	mux.HandleFunc("PUT /admin/{decision}/{id}", b.authed(b.decideUser))

	b.Server = httptest.NewServer(b.record(mux))
	t.Cleanup(b.Server.Close)
	return b
}

// URL is the base URL to hand to api.NewClient.
func (b *FakeBackend) URL() string {
	return b.Server.URL
}

// AddUser seeds an account that can log in with password.
func (b *FakeBackend) AddUser(u model.User, password string) model.User {
	b.mu.Lock()
	defer b.mu.Unlock()

	if u.UserID == 0 {
		u.UserID = b.nextUserID
	}
	b.nextUserID = max(b.nextUserID, u.UserID) + 1
	b.users[u.Username] = u
	b.passwords[u.Username] = password
	return u
}

// SetNotifications replaces the notifications listed for username.
func (b *FakeBackend) SetNotifications(username string, items []model.Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.notifications[username] = append([]model.Notification(nil), items...)
}

// Notifications returns the server-side copy for username.
func (b *FakeBackend) Notifications(username string) []model.Notification {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]model.Notification(nil), b.notifications[username]...)
}

// User returns the stored account for username.
func (b *FakeBackend) User(username string) (model.User, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	u, ok := b.users[username]
	return u, ok
}

// SetTokenTTL changes the lifetime of tokens issued from now on.
func (b *FakeBackend) SetTokenTTL(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokenTTL = d
}

// Revoke invalidates every token issued so far.
func (b *FakeBackend) Revoke() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens = make(map[string]string)
}

// Requests returns "METHOD /path" for every request served.
func (b *FakeBackend) Requests() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.requests...)
}

func (b *FakeBackend) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.requests = append(b.requests, r.Method+" "+r.URL.Path)
		b.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (b *FakeBackend) authed(h func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		b.mu.Lock()
		username, known := b.tokens[token]
		b.mu.Unlock()
		if !ok || !known {
			writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
			return
		}
		h(w, r, username)
	}
}

func (b *FakeBackend) login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid form")
		return
	}
	username, password := r.PostForm.Get("username"), r.PostForm.Get("password")

	b.mu.Lock()
	user, ok := b.users[username]
	if !ok || b.passwords[username] != password {
		b.mu.Unlock()
		writeDetail(w, http.StatusUnauthorized, "Incorrect username or password")
		return
	}
	token, err := b.issue(username)
	b.mu.Unlock()
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": token,
		"token_type":   "bearer",
		"user":         user,
	})
}

// issue signs a token for username. Callers hold b.mu.
func (b *FakeBackend) issue(username string) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   username,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(b.tokenTTL)),
		ID:        strconv.Itoa(len(b.tokens) + 1),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("fake-backend"))
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	b.tokens[token] = username
	return token, nil
}

func (b *FakeBackend) register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username    string     `json:"username"`
		Email       string     `json:"email"`
		Password    string     `json:"password"`
		FirstName   string     `json:"first_name"`
		LastName    string     `json:"last_name"`
		PhoneNumber string     `json:"phone_number"`
		Role        model.Role `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid body")
		return
	}

	b.mu.Lock()
	if _, taken := b.users[req.Username]; taken {
		b.mu.Unlock()
		writeDetail(w, http.StatusBadRequest, "Username already registered")
		return
	}
	b.mu.Unlock()

	u := model.User{
		Username:  req.Username,
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Role:      req.Role,
	}
	if req.PhoneNumber != "" {
		phone := req.PhoneNumber
		u.PhoneNumber = &phone
	}
	writeJSON(w, http.StatusOK, b.AddUser(u, req.Password))
}

func (b *FakeBackend) me(w http.ResponseWriter, _ *http.Request, username string) {
	u, _ := b.User(username)
	writeJSON(w, http.StatusOK, u)
}

func (b *FakeBackend) listNotifications(w http.ResponseWriter, _ *http.Request, username string) {
	writeJSON(w, http.StatusOK, b.Notifications(username))
}

func (b *FakeBackend) markAllRead(w http.ResponseWriter, _ *http.Request, username string) {
	b.mu.Lock()
	for i := range b.notifications[username] {
		b.notifications[username][i].IsRead = true
	}
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"message": "All notifications marked as read"})
}

func (b *FakeBackend) markRead(w http.ResponseWriter, r *http.Request, username string) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid id")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for i, n := range b.notifications[username] {
		if n.ID == id {
			b.notifications[username][i].IsRead = true
			writeJSON(w, http.StatusOK, map[string]string{"message": "Notification marked as read"})
			return
		}
	}
	writeDetail(w, http.StatusNotFound, "Notification not found")
}

func (b *FakeBackend) decideBooking(w http.ResponseWriter, r *http.Request, username string) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid id")
		return
	}
	var status model.BookingStatus
	switch r.PathValue("decision") {
	case "accept":
		status = model.BookingApproved
	case "reject":
		status = model.BookingRejected
	default:
		writeDetail(w, http.StatusNotFound, "Not Found")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	found := false
	for i, n := range b.notifications[username] {
		if n.BookingID != nil && *n.BookingID == id {
			s := status
			b.notifications[username][i].BookingStatus = &s
			found = true
		}
	}
	if !found {
		writeDetail(w, http.StatusNotFound, "Booking not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Booking " + string(status)})
}

func (b *FakeBackend) adminUsers(w http.ResponseWriter, _ *http.Request, username string) {
	if username != model.AdminUsername {
		writeDetail(w, http.StatusForbidden, "Not authorized")
		return
	}
	b.mu.Lock()
	users := make([]model.User, 0, len(b.users))
	for _, u := range b.users {
		if u.Username != model.AdminUsername {
			users = append(users, u)
		}
	}
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, users)
}

func (b *FakeBackend) decideUser(w http.ResponseWriter, r *http.Request, username string) {
	if username != model.AdminUsername {
		writeDetail(w, http.StatusForbidden, "Not authorized")
		return
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid id")
		return
	}
	var verified bool
	switch r.PathValue("decision") {
	case "approve-user":
		verified = true
	case "reject-user":
	default:
		writeDetail(w, http.StatusNotFound, "Not Found")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for name, u := range b.users {
		if u.UserID == id {
			u.IsVerified = verified
			b.users[name] = u
			writeJSON(w, http.StatusOK, map[string]string{"message": "User updated"})
			return
		}
	}
	writeDetail(w, http.StatusNotFound, "User not found")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
