package session

import (
	"fmt"
	gosync "sync"

	"go.uber.org/zap"

	"github.com/nhle/bhconnect/internal/logging"
)

// Listener is told that the session changed and should be re-read.
type Listener func()

type subscription struct {
	id uint64
	fn Listener
}

// Signal is a synchronous, payload-free broadcast meaning "re-read the
// session now". Listeners run in registration order on the goroutine that
// calls Raise; a panicking listener is logged and the rest still run.
type Signal struct {
	mu     gosync.Mutex
	nextID uint64
	subs   []subscription
	logger *zap.Logger
}

// NewSignal returns a Signal that logs listener panics to logger.
func NewSignal(logger *zap.Logger) *Signal {
	return &Signal{logger: logging.OrNop(logger)}
}

// Subscribe registers fn and returns a function that removes it. Calling
// the returned function more than once is harmless.
func (s *Signal) Subscribe(fn Listener) (unsubscribe func()) {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, subscription{id: id, fn: fn})
	s.mu.Unlock()

	var once gosync.Once
	return func() {
		once.Do(func() { s.remove(id) })
	}
}

func (s *Signal) remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, sub := range s.subs {
		if sub.id == id {
			s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
			return
		}
	}
}

// Len returns the number of registered listeners.
func (s *Signal) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Raise invokes every listener registered at the moment of the call.
// Listeners added during Raise wait for the next one.
func (s *Signal) Raise() {
	s.mu.Lock()
	subs := make([]subscription, len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, sub := range subs {
		s.invoke(sub)
	}
}

func (s *Signal) invoke(sub subscription) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("session listener panicked",
				zap.Uint64("listener", sub.id),
				zap.String("panic", fmt.Sprint(r)),
			)
		}
	}()
	sub.fn()
}
