package sync

import (
	"context"
	"errors"
	gosync "sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/nhle/bhconnect/internal/api"
	"github.com/nhle/bhconnect/internal/logging"
	"github.com/nhle/bhconnect/internal/notify"
)

// PollState represents the current state of the refresh loop.
type PollState int

const (
	PollIdle PollState = iota
	PollRunning
	PollError
)

// PollStatus holds the state of the last refresh.
type PollStatus struct {
	State    PollState
	LastPoll time.Time
	Error    error
}

// ResultMsg is a tea.Msg sent when a refresh completes.
type ResultMsg struct {
	Unread    int
	Error     error
	AuthError *AuthErrorMsg
}

// AuthErrorMsg is set on a ResultMsg when the session is no longer valid,
// either because the backend returned 401 or the token expired locally.
type AuthErrorMsg struct {
	Message string
}

// Fetcher reloads notifications. notify.Client satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context) error
	Unread() int
}

// Options tunes a Poller.
type Options struct {
	// Interval between refreshes (default 60s).
	Interval time.Duration

	// Timeout bounds one refresh (default 30s).
	Timeout time.Duration

	// Expired, when set, is asked before each refresh whether the stored
	// token has expired.
	Expired func() bool

	Logger *zap.Logger
}

// Poller refreshes the notification list in the background and reports
// each result to the Bubble Tea runtime.
type Poller struct {
	fetcher Fetcher
	tokens  notify.TokenSource
	opts    Options
	logger  *zap.Logger

	status    PollStatus
	resultCh  chan ResultMsg
	triggerCh chan struct{}
	stopCh    chan struct{}
	mu        gosync.Mutex
	running   bool
}

// New creates a Poller. Refreshes are skipped while tokens yields "".
func New(fetcher Fetcher, tokens notify.TokenSource, opts Options) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = 60 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Poller{
		fetcher:   fetcher,
		tokens:    tokens,
		opts:      opts,
		logger:    logging.OrNop(opts.Logger),
		resultCh:  make(chan ResultMsg, 16),
		triggerCh: make(chan struct{}, 1),
	}
}

// Start returns a tea.Cmd that starts the polling goroutine and
// subscribes to results. Calling Start while running returns nil.
func (p *Poller) Start() tea.Cmd {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = true
	p.stopCh = make(chan struct{})
	stopCh := p.stopCh
	p.mu.Unlock()

	go p.loop(stopCh)

	return p.waitForResult()
}

// Stop halts the polling goroutine. It may be started again later.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}

	close(p.stopCh)
	p.running = false
}

// RefreshNow triggers an immediate refresh.
func (p *Poller) RefreshNow() tea.Cmd {
	select {
	case p.triggerCh <- struct{}{}:
	default:
		// A refresh is already pending.
	}
	return nil
}

// Status returns the state of the last refresh.
func (p *Poller) Status() PollStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *Poller) loop(stopCh chan struct{}) {
	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	// Do an initial refresh immediately
	p.refresh()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			p.refresh()
		case <-p.triggerCh:
			p.refresh()
		}
	}
}

// refresh performs a single fetch and sends a ResultMsg.
func (p *Poller) refresh() {
	if p.tokens.Token() == "" {
		return
	}

	if p.opts.Expired != nil && p.opts.Expired() {
		p.setStatus(PollError, notify.ErrUnauthenticated)
		p.sendResult(ResultMsg{
			Error:     notify.ErrUnauthenticated,
			AuthError: &AuthErrorMsg{Message: "Session expired. Please log in again."},
		})
		return
	}

	p.setStatus(PollRunning, nil)

	ctx, cancel := context.WithTimeout(context.Background(), p.opts.Timeout)
	defer cancel()

	err := p.fetcher.Fetch(ctx)
	switch {
	case err == nil:
		p.setStatus(PollIdle, nil)
		p.sendResult(ResultMsg{Unread: p.fetcher.Unread()})
	case errors.Is(err, notify.ErrClosed), errors.Is(err, notify.ErrSuperseded):
		p.setStatus(PollIdle, nil)
	case api.IsUnauthorized(err):
		p.setStatus(PollError, err)
		p.sendResult(ResultMsg{
			Error:     err,
			AuthError: &AuthErrorMsg{Message: "Session expired. Please log in again."},
		})
	default:
		p.logger.Warn("notification refresh failed", zap.Error(err))
		p.setStatus(PollError, err)
		p.sendResult(ResultMsg{Unread: p.fetcher.Unread(), Error: err})
	}
}

func (p *Poller) setStatus(state PollState, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status.State = state
	p.status.Error = err
	if state == PollIdle && err == nil {
		p.status.LastPoll = time.Now()
	}
}

// sendResult sends a ResultMsg without blocking.
func (p *Poller) sendResult(msg ResultMsg) {
	select {
	case p.resultCh <- msg:
	default:
		// Drop if channel is full to avoid blocking the poller
	}
}

// waitForResult returns a tea.Cmd that waits for the next result from
// the result channel.
func (p *Poller) waitForResult() tea.Cmd {
	return func() tea.Msg {
		result, ok := <-p.resultCh
		if !ok {
			return nil
		}
		return result
	}
}

// WaitForNextResult returns a tea.Cmd that waits for the next refresh
// result. Call it after handling a ResultMsg to keep listening.
func (p *Poller) WaitForNextResult() tea.Cmd {
	return p.waitForResult()
}
