// Package session runs search sessions: admission through the Gate, the
// child process through the Supervisor and the event stream handed to the
// transport.
package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ahrav/specter/internal/domain/session"
)

type timeProvider interface {
	Now() time.Time
}

// realTimeProvider is a real implementation of the timeProvider interface.
type realTimeProvider struct{}

// Now returns the current time.
func (realTimeProvider) Now() time.Time { return time.Now() }

// Session is the live state of one search. Only its id escapes through the
// Registry; everything else is owned by the goroutine running it.
type Session struct {
	id        string
	target    session.Target
	createdAt time.Time

	state atomic.Int32
	pid   atomic.Int64

	events   chan session.Event
	stopped  chan struct{}
	stopOnce sync.Once
	gone     chan struct{}
	goneOnce sync.Once

	cancel context.CancelCauseFunc
	agg    Aggregator
}

func newSession(id string, target session.Target, now time.Time, cancel context.CancelCauseFunc, buffer int) *Session {
	s := &Session{
		id:        id,
		target:    target,
		createdAt: now,
		events:    make(chan session.Event, max(buffer, 1)),
		stopped:   make(chan struct{}),
		gone:      make(chan struct{}),
		cancel:    cancel,
	}
	s.state.Store(session.StatusPending.Int32())
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Target returns the validated target being searched.
func (s *Session) Target() session.Target { return s.target }

// Status returns the current lifecycle state.
func (s *Session) Status() session.Status { return session.StatusFromInt32(s.state.Load()) }

// Pid returns the child pid, or zero before spawn.
func (s *Session) Pid() int { return int(s.pid.Load()) }

// transition moves the session from one state to another. Only one caller
// can win a given transition, which makes the first terminal state final.
func (s *Session) transition(from, to session.Status) bool {
	if err := from.ValidateTransition(to); err != nil {
		return false
	}
	return s.state.CompareAndSwap(from.Int32(), to.Int32())
}

// Cancel requests termination with cause. It returns false once the session
// is terminal. The check and the request are not atomic, so a session that is
// exiting may still reach COMPLETED after Cancel returns true.
func (s *Session) Cancel(cause error) bool {
	if s.Status().IsTerminal() {
		return false
	}
	s.cancel(cause)
	return true
}

func (s *Session) stopReading() { s.stopOnce.Do(func() { close(s.stopped) }) }

func (s *Session) detach() { s.goneOnce.Do(func() { close(s.gone) }) }

// emit delivers a non terminal event. It blocks while the buffer is full and
// gives up once reading is stopped or the consumer is gone.
func (s *Session) emit(ev session.Event) bool {
	select {
	case <-s.stopped:
		return false
	case <-s.gone:
		return false
	default:
	}

	select {
	case s.events <- ev:
		return true
	case <-s.stopped:
		return false
	case <-s.gone:
		return false
	}
}

// finish delivers the terminal event and closes the stream.
func (s *Session) finish(ev session.Event) {
	select {
	case s.events <- ev:
	case <-s.gone:
	}
	close(s.events)
}

// Stream is the consumer side of a session.
type Stream struct {
	s *Session
}

// ID returns the session id, the same value carried by the first event.
func (st *Stream) ID() string { return st.s.id }

// Events returns the ordered event sequence. The channel is closed right
// after the terminal event.
func (st *Stream) Events() <-chan session.Event { return st.s.events }

// Close detaches the consumer. A session still running is cancelled and any
// further events are discarded. Close is safe to call more than once and
// after the stream ended.
func (st *Stream) Close() {
	st.s.detach()
	st.s.Cancel(session.ErrClientGone)
}
