package session

import (
	"errors"
	"fmt"

	"github.com/nhle/bhconnect/internal/model"
)

var (
	// ErrNotFound is returned when an operation needs a session and none
	// is stored.
	ErrNotFound = errors.New("not signed in")

	// ErrEmptyToken is returned by SignIn for an empty bearer token.
	ErrEmptyToken = errors.New("empty token")
)

// Context is the shared session handed to every view. It pairs the Store
// with the Signal so a write is always followed by a broadcast.
type Context struct {
	store  *Store
	signal *Signal
}

// NewContext bundles a store and a signal.
func NewContext(store *Store, signal *Signal) *Context {
	return &Context{store: store, signal: signal}
}

// Store returns the underlying session store.
func (c *Context) Store() *Store {
	return c.store
}

// Current returns the session, if any.
func (c *Context) Current() (Session, bool) {
	return c.store.Read()
}

// Token returns the bearer token, or "" when signed out.
func (c *Context) Token() string {
	return c.store.Token()
}

// Subscribe registers a listener on the session signal.
func (c *Context) Subscribe(fn Listener) func() {
	return c.signal.Subscribe(fn)
}

// SignIn stores the pair and then tells every listener.
func (c *Context) SignIn(token string, user model.User) error {
	if token == "" {
		return fmt.Errorf("signing in: %w", ErrEmptyToken)
	}
	if err := c.store.Write(token, user); err != nil {
		return err
	}
	c.signal.Raise()
	return nil
}

// UpdateUser replaces the profile snapshot of the current session.
func (c *Context) UpdateUser(user model.User) error {
	sess, ok := c.store.Read()
	if !ok {
		return fmt.Errorf("updating user: %w", ErrNotFound)
	}
	if err := c.store.Write(sess.Token, user); err != nil {
		return err
	}
	c.signal.Raise()
	return nil
}

// SignOut clears the session and tells every listener. Listeners are told
// even when clearing fails so they can re-read whatever state remains.
func (c *Context) SignOut() error {
	err := c.store.Clear()
	c.signal.Raise()
	return err
}
