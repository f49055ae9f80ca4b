// Package session holds the authenticated identity shared by every view:
// a persisted token/user pair, a change signal, and the Context that
// bundles both for injection.
package session

import (
	"encoding/json"
	"fmt"
	gosync "sync"

	"github.com/nhle/bhconnect/internal/model"
)

// Keys under which the session is persisted. Every collaborator goes
// through Store, so nothing else spells these out.
const (
	TokenKey = "auth_token"
	UserKey  = "user"
)

// Backend is the persistence the Store writes through. SetMany and
// DeleteMany apply to all given keys; transactional backends apply them
// atomically.
type Backend interface {
	Get(key string) (value string, ok bool, err error)
	SetMany(values map[string]string) error
	DeleteMany(keys ...string) error
}

// Session is the authenticated identity: a bearer token and the profile
// snapshot taken at login or at the last profile refresh.
type Session struct {
	Token string
	User  model.User
}

// Store is a persisted token/user pair. It never validates the token;
// it only guarantees both halves are written and cleared together.
type Store struct {
	mu      gosync.RWMutex
	backend Backend
}

// NewStore returns a Store writing through backend.
func NewStore(backend Backend) *Store {
	return &Store{backend: backend}
}

// Write persists token and user together.
func (s *Store) Write(token string, user model.User) error {
	raw, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encoding user: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.SetMany(map[string]string{
		TokenKey: token,
		UserKey:  string(raw),
	}); err != nil {
		return fmt.Errorf("writing session: %w", err)
	}
	return nil
}

// Read returns the current session. ok is false if nothing was written,
// the session was cleared, or only one half is present.
func (s *Store) Read() (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	token, ok, err := s.backend.Get(TokenKey)
	if err != nil || !ok || token == "" {
		return Session{}, false
	}
	raw, ok, err := s.backend.Get(UserKey)
	if err != nil || !ok {
		return Session{}, false
	}

	var user model.User
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		return Session{}, false
	}
	return Session{Token: token, User: user}, true
}

// Token returns just the bearer token, or "" when signed out.
func (s *Store) Token() string {
	sess, ok := s.Read()
	if !ok {
		return ""
	}
	return sess.Token
}

// Clear removes both halves of the session.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.DeleteMany(TokenKey, UserKey); err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}
	return nil
}
