package pairing

import (
	"context"
	"sync"
)

// Stats counts what a merge added.
type Stats struct {
	BooksAdded int
	LogsAdded  int
}

// Session is the explicit state-machine value threaded through a pairing
// flow. All shared mutable pairing state lives here, guarded by one mutex,
// instead of in package-level variables: that keeps cancellation and tests
// deterministic.
type Session struct {
	mu      sync.Mutex
	state   State
	stats   Stats
	lastErr error

	ctx    context.Context
	cancel context.CancelFunc
}

// NewSession creates an idle session. The session context is canceled when
// the session is closed; background loops (the host's poll loop, an active
// scanner) must hang off it.
func NewSession(parent context.Context) *Session {
	ctx, cancel := context.WithCancel(parent)
	return &Session{
		state:  StateIdle,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Context returns the session-scoped context.
func (s *Session) Context() context.Context {
	return s.ctx
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Transition moves the session to next, enforcing the state graph.
func (s *Session) Transition(next State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.CanTransition(next) {
		return &InvalidTransitionError{From: s.state, To: next}
	}
	s.state = next
	return nil
}

// Fail records err and moves to the error state from wherever the session
// is. Idle sessions have nothing to fail.
func (s *Session) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateIdle || s.state == StateError {
		return
	}
	s.state = StateError
	s.lastErr = err
}

// Err returns the error recorded by Fail, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Reset returns an error or success session to idle by explicit user action.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.CanTransition(StateIdle) {
		return &InvalidTransitionError{From: s.state, To: StateIdle}
	}
	s.state = StateIdle
	s.lastErr = nil
	s.stats = Stats{}
	return nil
}

// AddStats accumulates merge counts onto the session.
func (s *Session) AddStats(booksAdded, logsAdded int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.BooksAdded += booksAdded
	s.stats.LogsAdded += logsAdded
}

// Stats returns the accumulated merge counts.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Cancel soft-cancels the session: the context is canceled so the poll loop
// and any active scanner stop. An in-flight poll round may still complete
// on the wire, but Accepting() goes false, so its late response is dropped.
func (s *Session) Cancel() {
	s.cancel()
}

// Accepting reports whether a background poll response may still be applied.
// A response that arrives after the session left ready must be discarded.
func (s *Session) Accepting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return false
	}
	return s.state == StateReady
}
