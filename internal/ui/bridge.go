package ui

import (
	gosync "sync"

	tea "github.com/charmbracelet/bubbletea"
)

// Bridge carries notifications raised on other goroutines into the
// Bubble Tea update loop. Messages must be comparable; a message already
// waiting is not queued twice.
type Bridge struct {
	mu      gosync.Mutex
	pending []tea.Msg
	wake    chan struct{}
	done    chan struct{}
	once    gosync.Once
}

// NewBridge creates an empty bridge.
func NewBridge() *Bridge {
	return &Bridge{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Send queues msg without blocking.
func (b *Bridge) Send(msg tea.Msg) {
	b.mu.Lock()
	for _, p := range b.pending {
		if p == msg {
			b.mu.Unlock()
			return
		}
	}
	b.pending = append(b.pending, msg)
	b.mu.Unlock()

	b.poke()
}

// Notifier returns a callback that sends msg, for use as a listener.
func (b *Bridge) Notifier(msg tea.Msg) func() {
	return func() { b.Send(msg) }
}

// Wait returns a tea.Cmd that blocks until a message is queued and
// delivers it. Call it again after each delivered message.
func (b *Bridge) Wait() tea.Cmd {
	return func() tea.Msg {
		for {
			select {
			case <-b.wake:
			case <-b.done:
				return nil
			}

			b.mu.Lock()
			if len(b.pending) == 0 {
				b.mu.Unlock()
				continue
			}
			msg := b.pending[0]
			b.pending = b.pending[1:]
			more := len(b.pending) > 0
			b.mu.Unlock()

			if more {
				b.poke()
			}
			return msg
		}
	}
}

// Close releases any pending Wait.
func (b *Bridge) Close() {
	b.once.Do(func() { close(b.done) })
}

func (b *Bridge) poke() {
	select {
	case b.wake <- struct{}{}:
	default:
	}
}
