package notify

import (
	"context"
	"errors"
	gosync "sync"

	"github.com/nhle/bhconnect/internal/model"
)

// ErrScopeClosed is returned by a Scope operation that finished, or was
// started, after the scope was closed.
var ErrScopeClosed = errors.New("view closed")

// Scope ties client operations to one view's lifetime. Closing it cancels
// the view's in-flight requests and silences its listeners, while the
// client stays usable by other views.
type Scope struct {
	client *Client
	ctx    context.Context
	cancel context.CancelFunc

	mu     gosync.Mutex
	closed bool
	unsubs []func()
}

// Scope opens a lifetime-bound handle on the client.
func (c *Client) Scope() *Scope {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scope{client: c, ctx: ctx, cancel: cancel}
}

// Client returns the client this scope works on.
func (s *Scope) Client() *Client {
	return s.client
}

// Done is closed when the scope is.
func (s *Scope) Done() <-chan struct{} {
	return s.ctx.Done()
}

// Closed reports whether Close has been called.
func (s *Scope) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close cancels the scope's requests and releases its listeners. It is
// safe to call more than once.
func (s *Scope) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	unsubs := s.unsubs
	s.unsubs = nil
	s.mu.Unlock()

	s.cancel()
	for _, unsub := range unsubs {
		unsub()
	}
}

// Subscribe registers fn on the client until the scope closes. fn never
// runs after Close returns.
func (s *Scope) Subscribe(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	unsub := s.client.Subscribe(func() {
		if !s.Closed() {
			fn()
		}
	})
	s.unsubs = append(s.unsubs, unsub)
}

// Fetch runs Client.Fetch within the scope.
func (s *Scope) Fetch() error {
	return s.guard(s.client.Fetch(s.ctx))
}

// MarkOneRead runs Client.MarkOneRead within the scope.
func (s *Scope) MarkOneRead(id int64) error {
	return s.guard(s.client.MarkOneRead(s.ctx, id))
}

// MarkAllRead runs Client.MarkAllRead within the scope.
func (s *Scope) MarkAllRead() error {
	return s.guard(s.client.MarkAllRead(s.ctx))
}

// Click runs Client.Click within the scope. A closed scope yields no
// navigation.
func (s *Scope) Click(n model.Notification) (Navigation, error) {
	nav, err := s.client.Click(s.ctx, n)
	if s.Closed() {
		return Navigation{}, ErrScopeClosed
	}
	return nav, err
}

// Decide runs Client.Decide within the scope.
func (s *Scope) Decide(n model.Notification, accept bool) error {
	return s.guard(s.client.Decide(s.ctx, n, accept))
}

// guard turns any outcome observed after Close into ErrScopeClosed so the
// view drops it.
func (s *Scope) guard(err error) error {
	if s.Closed() {
		return ErrScopeClosed
	}
	return err
}
