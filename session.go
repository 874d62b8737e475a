package go_nrepl

import (
	"context"
	"sync/atomic"
	"time"
)

// Session is a server-side evaluation context created with the clone op.
// Dynamic bindings such as *ns* and *1 persist across evaluations in the
// same session. A Session dies with its connection.
type Session struct {
	id      string
	parent  string
	client  *Client
	created time.Time
	closed  atomic.Bool

	// attached sessions were opened elsewhere; Client.Close leaves them open.
	attached bool
}

// ID returns the server-assigned session id.
func (s *Session) ID() string { return s.id }

// Parent returns the id of the session this one was cloned from, if any.
func (s *Session) Parent() string { return s.parent }

// CreatedAt returns when the server confirmed the session.
func (s *Session) CreatedAt() time.Time { return s.created }

// IsClosed reports whether the session was closed or lost with its connection.
func (s *Session) IsClosed() bool { return s.closed.Load() }

// IsAttached reports whether the session was adopted with AttachSession
// rather than created by this client.
func (s *Session) IsAttached() bool { return s.attached }

func (s *Session) markClosed() { s.closed.Store(true) }

// Eval evaluates code in this session.
func (s *Session) Eval(ctx context.Context, code string) (*EvalStream, error) {
	return s.EvalWithOptions(ctx, code, EvalOptions{})
}

// EvalWithOptions evaluates code in this session with extra eval keys.
func (s *Session) EvalWithOptions(ctx context.Context, code string, opts EvalOptions) (*EvalStream, error) {
	if s.IsClosed() {
		return nil, NewSessionError(s.id, "eval", ErrSessionClosed)
	}
	return s.client.EvalWithOptions(ctx, code, s.id, opts)
}

// Interrupt asks the server to stop the evaluation requestID running in
// this session.
func (s *Session) Interrupt(ctx context.Context, requestID string) error {
	if s.IsClosed() {
		return NewSessionError(s.id, "interrupt", ErrSessionClosed)
	}
	return s.client.Interrupt(ctx, requestID, s.id)
}

// Clone creates a new session that starts with a copy of this one's bindings.
func (s *Session) Clone(ctx context.Context) (*Session, error) {
	if s.IsClosed() {
		return nil, NewSessionError(s.id, "clone", ErrSessionClosed)
	}
	return s.client.cloneSession(ctx, s.id)
}

// Close closes the session on the server. Closing an already closed
// session is a no-op.
func (s *Session) Close(ctx context.Context) error {
	if s.IsClosed() {
		return nil
	}
	return s.client.CloseSession(ctx, s.id)
}
