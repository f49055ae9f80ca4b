// Package notify keeps the signed-in user's notification list: fetching
// it, tracking the unread count, marking items read and deciding where a
// click on a notification leads.
package notify

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/bhconnect/internal/api"
	"github.com/nhle/bhconnect/internal/logging"
	"github.com/nhle/bhconnect/internal/model"
	"github.com/nhle/bhconnect/internal/session"
)

var (
	// ErrUnauthenticated is returned when no token is stored. No request
	// is made.
	ErrUnauthenticated = errors.New("no authentication token found")

	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("notification client closed")

	// ErrSuperseded is returned by a fetch whose result was discarded
	// because a newer fetch started after it.
	ErrSuperseded = errors.New("fetch superseded")

	// ErrUnknown is returned when an id is not in the loaded list.
	ErrUnknown = errors.New("notification not loaded")
)

// DefaultFetchTimeout bounds a fetch when Options.FetchTimeout is unset.
const DefaultFetchTimeout = 30 * time.Second

// State is where the client is in its fetch lifecycle.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateReady
	StateError
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateError:
		return "error"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// TokenSource yields the current bearer token, "" when signed out.
// session.Context satisfies it.
type TokenSource interface {
	Token() string
}

// sessionWatcher is a TokenSource that announces session changes.
type sessionWatcher interface {
	Subscribe(fn session.Listener) func()
}

// Backend is the part of the API the client uses.
type Backend interface {
	ListNotifications(ctx context.Context, token string) ([]model.Notification, error)
	MarkNotificationRead(ctx context.Context, token string, id int64) error
	MarkAllNotificationsRead(ctx context.Context, token string) error
	DecideBooking(ctx context.Context, token string, bookingID int64, decision api.BookingDecision) (*api.MessageResponse, error)
}

// Options tunes a Client.
type Options struct {
	FetchTimeout time.Duration
	Logger       *zap.Logger
}

// Snapshot is a point-in-time copy of the client's state.
type Snapshot struct {
	State  State
	Err    error
	Items  []model.Notification
	Unread int
}

// ErrorText returns the message to show for Err, or "".
func (s Snapshot) ErrorText() string {
	switch {
	case s.Err == nil:
		return ""
	case errors.Is(s.Err, ErrUnauthenticated):
		return "No authentication token found"
	case errors.Is(s.Err, context.DeadlineExceeded):
		return "Timed out loading notifications"
	default:
		return api.Message(s.Err, "Failed to fetch notifications")
	}
}

// Client holds one view's copy of the notification list. Operations may
// be called from any goroutine; listeners run outside the lock.
type Client struct {
	backend      Backend
	tokens       TokenSource
	logger       *zap.Logger
	fetchTimeout time.Duration

	// base is cancelled by Close and aborts every in-flight request.
	base    context.Context
	cancel  context.CancelFunc
	unwatch func()

	mu     gosync.Mutex
	state  State
	err    error
	items  []model.Notification
	unread int

	// fetchGen increments when a fetch starts; only the latest may land.
	fetchGen uint64

	// listVersion increments when a fetch or Reset replaces items.
	// Rollbacks are skipped once the list they refer to is gone.
	listVersion uint64

	// owner is the token the loaded list belongs to.
	owner string

	nextID    uint64
	listeners map[uint64]func()
}

// NewClient creates an idle client. When tokens also announces session
// changes, the client resets itself whenever the token changes.
func NewClient(backend Backend, tokens TokenSource, opts Options) *Client {
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	base, cancel := context.WithCancel(context.Background())
	c := &Client{
		backend:      backend,
		tokens:       tokens,
		logger:       logging.OrNop(opts.Logger),
		fetchTimeout: opts.FetchTimeout,
		base:         base,
		cancel:       cancel,
		unwatch:      func() {},
		state:        StateIdle,
		owner:        tokens.Token(),
		listeners:    make(map[uint64]func()),
	}
	if w, ok := tokens.(sessionWatcher); ok {
		c.unwatch = w.Subscribe(c.sessionChanged)
	}
	return c
}

// Reset drops the loaded list and returns to StateIdle. Fetches and
// rollbacks still in flight are discarded when they finish.
func (c *Client) Reset() {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.reset()
	c.mu.Unlock()
	c.changed()
}

// sessionChanged resets the client when the list no longer belongs to the
// current token. A profile update keeps the token and the list.
func (c *Client) sessionChanged() {
	c.mu.Lock()
	if c.state == StateClosed || c.tokens.Token() == c.owner {
		c.mu.Unlock()
		return
	}
	c.reset()
	c.mu.Unlock()
	c.logger.Debug("session changed, notifications reset")
	c.changed()
}

// reset clears the list. Callers hold mu.
func (c *Client) reset() {
	c.items = nil
	c.unread = 0
	c.state = StateIdle
	c.err = nil
	c.fetchGen++
	c.listVersion++
	c.owner = c.tokens.Token()
}

// Snapshot returns a copy of the current state.
func (c *Client) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	items := make([]model.Notification, len(c.items))
	copy(items, c.items)
	return Snapshot{State: c.state, Err: c.err, Items: items, Unread: c.unread}
}

// Unread returns the unread count.
func (c *Client) Unread() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unread
}

// Subscribe registers fn to run after every state change. The returned
// function removes it; Close removes all of them.
func (c *Client) Subscribe(fn func()) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateClosed {
		return func() {}
	}
	c.nextID++
	id := c.nextID
	c.listeners[id] = fn

	var once gosync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, id)
			c.mu.Unlock()
		})
	}
}

// Close ends the client. In-flight requests are cancelled and their
// results discarded; listeners are released.
func (c *Client) Close() {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.state = StateClosed
	c.fetchGen++
	c.listeners = make(map[uint64]func())
	c.mu.Unlock()

	c.unwatch()
	c.cancel()
}

// Fetch loads the full list. Without a token it moves to StateError with
// ErrUnauthenticated and makes no request. On failure the previous list
// stays visible.
func (c *Client) Fetch(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return ErrClosed
	}
	token := c.tokens.Token()
	if token == "" {
		c.state = StateError
		c.err = ErrUnauthenticated
		c.mu.Unlock()
		c.changed()
		return ErrUnauthenticated
	}
	c.fetchGen++
	gen := c.fetchGen
	prevState, prevErr := c.state, c.err
	c.state = StateLoading
	c.mu.Unlock()
	c.changed()

	reqCtx, cancel := c.requestContext(ctx, c.fetchTimeout)
	defer cancel()

	list, err := c.backend.ListNotifications(reqCtx, token)

	c.mu.Lock()
	switch {
	case c.state == StateClosed:
		c.mu.Unlock()
		return ErrClosed
	case gen != c.fetchGen:
		c.mu.Unlock()
		return ErrSuperseded
	case err != nil && ctx.Err() != nil && errors.Is(err, context.Canceled):
		// The caller gave up; put back what was showing before.
		c.state, c.err = prevState, prevErr
		c.mu.Unlock()
		c.changed()
		return ctx.Err()
	case err != nil:
		c.state = StateError
		c.err = fmt.Errorf("fetching notifications: %w", err)
		err = c.err
		c.mu.Unlock()
		c.logger.Warn("notification fetch failed", zap.Error(err))
		c.changed()
		return err
	}

	c.items = list
	c.unread = countUnread(list)
	c.listVersion++
	c.owner = token
	c.state = StateReady
	c.err = nil
	c.mu.Unlock()
	c.changed()
	return nil
}

// MarkOneRead flips id to read and decrements the unread count right away,
// then tells the server. If the server refuses, the flip is undone.
func (c *Client) MarkOneRead(ctx context.Context, id int64) error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return ErrClosed
	}
	token := c.tokens.Token()
	if token == "" {
		c.mu.Unlock()
		return ErrUnauthenticated
	}

	idx := c.indexOf(id)
	if idx < 0 {
		c.mu.Unlock()
		return fmt.Errorf("marking %d read: %w", id, ErrUnknown)
	}
	flipped, decremented := false, false
	if !c.items[idx].IsRead {
		c.items[idx].IsRead = true
		flipped = true
		if c.unread > 0 {
			c.unread--
			decremented = true
		}
	}
	version := c.listVersion
	c.mu.Unlock()
	if flipped {
		c.changed()
	}

	reqCtx, cancel := c.requestContext(ctx, 0)
	defer cancel()

	err := c.backend.MarkNotificationRead(reqCtx, token, id)
	if err == nil {
		return nil
	}

	c.logger.Warn("mark notification read failed",
		zap.Int64("notification_id", id),
		zap.Error(err),
	)

	c.mu.Lock()
	rolledBack := false
	if flipped && c.state != StateClosed && version == c.listVersion {
		if i := c.indexOf(id); i >= 0 && c.items[i].IsRead {
			c.items[i].IsRead = false
			if decremented {
				c.unread++
			}
			rolledBack = true
		}
	}
	c.mu.Unlock()
	if rolledBack {
		c.changed()
	}
	return fmt.Errorf("marking %d read: %w", id, err)
}

// MarkAllRead flips every unread item and zeroes the count right away,
// then tells the server. If the server refuses, exactly the items flipped
// here are restored.
func (c *Client) MarkAllRead(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return ErrClosed
	}
	token := c.tokens.Token()
	if token == "" {
		c.mu.Unlock()
		return ErrUnauthenticated
	}

	var flipped []int64
	for i := range c.items {
		if !c.items[i].IsRead {
			c.items[i].IsRead = true
			flipped = append(flipped, c.items[i].ID)
		}
	}
	cleared := c.unread
	c.unread = 0
	version := c.listVersion
	c.mu.Unlock()
	if len(flipped) > 0 || cleared > 0 {
		c.changed()
	}

	reqCtx, cancel := c.requestContext(ctx, 0)
	defer cancel()

	err := c.backend.MarkAllNotificationsRead(reqCtx, token)
	if err == nil {
		return nil
	}

	c.logger.Warn("mark all notifications read failed",
		zap.Int("flipped", len(flipped)),
		zap.Error(err),
	)

	c.mu.Lock()
	rolledBack := false
	if c.state != StateClosed && version == c.listVersion {
		for _, id := range flipped {
			if i := c.indexOf(id); i >= 0 {
				c.items[i].IsRead = false
			}
		}
		c.unread += cleared
		rolledBack = len(flipped) > 0 || cleared > 0
	}
	c.mu.Unlock()
	if rolledBack {
		c.changed()
	}
	return fmt.Errorf("marking all read: %w", err)
}

// Decide accepts or rejects the booking behind n. The local item's booking
// status changes only after the server agrees.
func (c *Client) Decide(ctx context.Context, n model.Notification, accept bool) error {
	if !n.HasBooking() {
		return fmt.Errorf("notification %d has no booking", n.ID)
	}

	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return ErrClosed
	}
	token := c.tokens.Token()
	version := c.listVersion
	c.mu.Unlock()
	if token == "" {
		return ErrUnauthenticated
	}

	decision, status := api.DecisionReject, model.BookingRejected
	if accept {
		decision, status = api.DecisionAccept, model.BookingApproved
	}

	reqCtx, cancel := c.requestContext(ctx, 0)
	defer cancel()

	if _, err := c.backend.DecideBooking(reqCtx, token, *n.BookingID, decision); err != nil {
		return fmt.Errorf("%s booking %d: %w", decision, *n.BookingID, err)
	}

	c.mu.Lock()
	if c.state == StateClosed || version != c.listVersion {
		c.mu.Unlock()
		return nil
	}
	if i := c.indexOf(n.ID); i >= 0 {
		c.items[i].BookingStatus = &status
	}
	c.mu.Unlock()
	c.changed()
	return nil
}

// requestContext derives a context cancelled by ctx, by Close, or after
// timeout when it is positive.
func (c *Client) requestContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	var (
		reqCtx context.Context
		cancel context.CancelFunc
	)
	if timeout > 0 {
		reqCtx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		reqCtx, cancel = context.WithCancel(ctx)
	}
	stop := context.AfterFunc(c.base, cancel)
	return reqCtx, func() {
		stop()
		cancel()
	}
}

// indexOf returns the position of id in items, or -1. Callers hold mu.
func (c *Client) indexOf(id int64) int {
	for i := range c.items {
		if c.items[i].ID == id {
			return i
		}
	}
	return -1
}

// changed runs every listener outside the lock.
func (c *Client) changed() {
	c.mu.Lock()
	fns := make([]func(), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

func countUnread(items []model.Notification) int {
	n := 0
	for _, item := range items {
		if !item.IsRead {
			n++
		}
	}
	return n
}
