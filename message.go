package go_nrepl

import (
	"strings"

	"github.com/samber/lo"
)

// Message is one nREPL request or response: a bencode dict with
// well-known keys such as "op", "id", "session" and "status".
type Message struct {
	*Dict
}

// NewMessage creates a request for op.
func NewMessage(op string) *Message {
	return &Message{NewDict().Set(KEY_OP, String(op))}
}

// MessageFromValue wraps a decoded value. Every top-level nREPL frame must
// be a dict; anything else is a protocol violation.
func MessageFromValue(v Value) (*Message, error) {
	d, ok := v.(*Dict)
	if !ok || d == nil {
		return nil, NewProtocolError("top-level bencode value is not a dict", 0, true)
	}
	return &Message{d}, nil
}

// With sets a string key and returns m for chaining. Empty values are skipped
// so optional keys stay off the wire.
func (m *Message) With(key, value string) *Message {
	if value != "" {
		m.Set(key, String(value))
	}
	return m
}

// WithInt sets an integer key when n is positive.
func (m *Message) WithInt(key string, n int) *Message {
	if n > 0 {
		m.Set(key, Int(n))
	}
	return m
}

// Str returns the string stored under key, or "" when absent or not a string.
func (m *Message) Str(key string) string {
	v, ok := m.Get(key)
	if !ok {
		return ""
	}
	s, _ := v.(String)
	return string(s)
}

// Int returns the integer stored under key.
func (m *Message) Int(key string) (int64, bool) {
	v, ok := m.Get(key)
	if !ok {
		return 0, false
	}
	n, ok := v.(Int)
	return int64(n), ok
}

// Strings returns the string elements of a list stored under key.
// Non-string elements are skipped.
func (m *Message) Strings(key string) []string {
	v, ok := m.Get(key)
	if !ok {
		return nil
	}
	l, ok := v.(List)
	if !ok {
		return nil
	}
	return lo.FilterMap(l, func(item Value, _ int) (string, bool) {
		s, ok := item.(String)
		return string(s), ok
	})
}

func (m *Message) Op() string      { return m.Str(KEY_OP) }
func (m *Message) ID() string      { return m.Str(KEY_ID) }
func (m *Message) Session() string { return m.Str(KEY_SESSION) }

// Status returns the status flags of a response.
func (m *Message) Status() []string {
	return m.Strings(KEY_STATUS)
}

// HasStatus reports whether the response carries any of the given flags.
func (m *Message) HasStatus(flags ...string) bool {
	status := m.Status()
	return lo.SomeBy(flags, func(f string) bool { return lo.Contains(status, f) })
}

// IsDone reports whether this is the final response of its request.
func (m *Message) IsDone() bool {
	return m.HasStatus(STATUS_DONE)
}

// isErrorStatus reports whether the response signals a server-side failure.
func (m *Message) isErrorStatus() bool {
	return m.HasStatus(STATUS_ERROR, STATUS_EVAL_ERROR, STATUS_UNKNOWN_SESSION, STATUS_UNKNOWN_OP)
}

// Encode serializes the message.
func (m *Message) Encode() ([]byte, error) {
	return Encode(m.Dict)
}

// summary renders the message for debug logs without dumping large payloads.
func (m *Message) summary() string {
	parts := lo.Map(m.Keys(), func(k string, _ int) string {
		switch k {
		case KEY_CODE, KEY_VALUE, KEY_OUT, KEY_ERR:
			return k + "=<" + lo.Ternary(m.Str(k) == "", "non-string", "text") + ">"
		case KEY_STATUS:
			return k + "=" + strings.Join(m.Status(), ",")
		default:
			return k + "=" + m.Str(k)
		}
	})
	return "{" + strings.Join(parts, " ") + "}"
}
