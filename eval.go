package go_nrepl

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/samber/lo"
)

// Event is one step of an evaluation. The set is closed: ValueEvent,
// OutputEvent, ErrorOutputEvent, ErroredEvent and DoneEvent.
type Event interface {
	evalEvent()
}

// ValueEvent carries the printed result of one top-level form.
type ValueEvent struct {
	Value string
	NS    string // namespace after evaluation, when reported
}

// OutputEvent carries text the evaluation wrote to *out*.
type OutputEvent struct {
	Text string
}

// ErrorOutputEvent carries text the evaluation wrote to *err*.
type ErrorOutputEvent struct {
	Text string
}

// ErroredEvent reports that the server marked the request as failed
// (eval-error, interrupted, unknown-session...). The sequence continues
// until DoneEvent.
type ErroredEvent struct {
	Err *EvalError
}

// DoneEvent is always the last event of a sequence.
type DoneEvent struct {
	Status []string
}

func (ValueEvent) evalEvent()       {}
func (OutputEvent) evalEvent()      {}
func (ErrorOutputEvent) evalEvent() {}
func (ErroredEvent) evalEvent()     {}
func (DoneEvent) evalEvent()        {}

// EvalOptions are optional eval request keys.
type EvalOptions struct {
	NS     string // namespace to evaluate in
	File   string // source file name for error locations
	Line   int    // 1-based line of the first form
	Column int    // 1-based column of the first form
}

func (o EvalOptions) apply(msg *Message) {
	msg.With(KEY_NS, o.NS).
		With(KEY_FILE, o.File).
		WithInt(KEY_LINE, o.Line).
		WithInt(KEY_COLUMN, o.Column)
}

// failureStatuses are the status flags that produce an ErroredEvent.
var failureStatuses = []string{
	STATUS_EVAL_ERROR,
	STATUS_ERROR,
	STATUS_INTERRUPTED,
	STATUS_UNKNOWN_SESSION,
	STATUS_UNKNOWN_OP,
	STATUS_SESSION_CLOSED,
}

// eventsFrom translates one response into the events it carries, in the
// order output, value, error, done.
func eventsFrom(msg *Message) []Event {
	var events []Event
	if out := msg.Str(KEY_OUT); out != "" {
		events = append(events, OutputEvent{Text: out})
	}
	if errText := msg.Str(KEY_ERR); errText != "" {
		events = append(events, ErrorOutputEvent{Text: errText})
	}
	if _, ok := msg.Get(KEY_VALUE); ok {
		events = append(events, ValueEvent{Value: msg.Str(KEY_VALUE), NS: msg.Str(KEY_NS)})
	}
	status := msg.Status()
	if failed := lo.Intersect(status, failureStatuses); len(failed) > 0 {
		events = append(events, ErroredEvent{Err: &EvalError{
			RequestID: msg.ID(),
			Status:    status,
			Ex:        msg.Str(KEY_EX),
			RootEx:    msg.Str(KEY_ROOT_EX),
		}})
	}
	if lo.Contains(status, STATUS_DONE) {
		events = append(events, DoneEvent{Status: status})
	}
	return events
}

// EvalStream is the lazy, finite sequence of events for one request.
// It is not restartable and is meant for a single consumer.
type EvalStream struct {
	id        string
	sessionID string
	mbox      *mailbox
	corr      *correlator

	mu     sync.Mutex // serializes Next
	queue  []Event
	ended  bool
	err    error
	closed atomic.Bool
}

// ID returns the request id, for use with Interrupt.
func (s *EvalStream) ID() string { return s.id }

// SessionID returns the session the request runs in, or "" for an
// ephemeral session.
func (s *EvalStream) SessionID() string { return s.sessionID }

// Next returns the next event. After DoneEvent it returns io.EOF. If the
// connection drops first, the error wraps ErrConnectionLost. A done ctx
// returns ctx.Err() and leaves the stream usable.
func (s *EvalStream) Next(ctx context.Context) (Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		if s.closed.Load() {
			return nil, ErrStreamClosed
		}
		if len(s.queue) > 0 {
			ev := s.queue[0]
			s.queue = s.queue[1:]
			if _, ok := ev.(DoneEvent); ok {
				s.ended = true
				s.queue = nil
			}
			return ev, nil
		}
		if s.ended {
			return nil, io.EOF
		}
		if s.err != nil {
			return nil, s.err
		}

		msg, err := s.mbox.next(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			s.err = err
			return nil, err
		}
		if msg == nil {
			// Finished without a done event reaching us; treat as end.
			s.ended = true
			return nil, io.EOF
		}
		s.queue = append(s.queue, eventsFrom(msg)...)
	}
}

// Close abandons the stream: further responses are discarded. It does not
// stop the evaluation on the server; use Interrupt for that.
func (s *EvalStream) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.mbox.abandon()
	s.mbox.fail(ErrStreamClosed)
	if s.corr != nil {
		s.corr.cancel(s.id)
	}
}

// EvalResult aggregates a whole evaluation.
type EvalResult struct {
	Values []string
	NS     string
	Out    string
	Err    string
	Status []string
	Error  *EvalError // set when the server reported a failure
}

// Collect drains the stream into an EvalResult. A server-side failure is
// reported in EvalResult.Error, not as the returned error; the returned
// error is reserved for connection loss and ctx expiry.
func (s *EvalStream) Collect(ctx context.Context) (*EvalResult, error) {
	res := &EvalResult{}
	var out, errOut strings.Builder
	for {
		ev, err := s.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			res.Out, res.Err = out.String(), errOut.String()
			return res, err
		}
		switch e := ev.(type) {
		case ValueEvent:
			res.Values = append(res.Values, e.Value)
			if e.NS != "" {
				res.NS = e.NS
			}
		case OutputEvent:
			out.WriteString(e.Text)
		case ErrorOutputEvent:
			errOut.WriteString(e.Text)
		case ErroredEvent:
			if res.Error == nil {
				res.Error = e.Err
			}
		case DoneEvent:
			res.Status = e.Status
		}
	}
	res.Out, res.Err = out.String(), errOut.String()
	return res, nil
}
