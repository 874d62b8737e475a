package go_nrepl

import (
	"errors"
	"fmt"
	"net"
)

// Standard nREPL client error types
//
// These errors follow Go 1.13+ error wrapping conventions and can be
// checked using errors.Is() and errors.As(). Sentinels cover expected
// conditions; the struct types carry context about where a failure happened.

// Sentinel errors for common client and protocol failures
var (
	// ErrNotConnected indicates an operation requires an active connection but none exists.
	ErrNotConnected = errors.New("nrepl: not connected")

	// ErrAlreadyConnected indicates Connect() was called on an already-connected client.
	ErrAlreadyConnected = errors.New("nrepl: already connected")

	// ErrAlreadyConnecting indicates Connect() was called while another Connect() is in flight.
	ErrAlreadyConnecting = errors.New("nrepl: connection attempt already in progress")

	// ErrConnectionLost is delivered to every pending request when the socket
	// fails or closes underneath it.
	ErrConnectionLost = errors.New("nrepl: connection lost")

	// ErrClientClosed indicates an operation was attempted on a closed client.
	// All operations will fail after Close() has been called.
	ErrClientClosed = errors.New("nrepl: client is closed")

	// ErrClientNotInitialized indicates a zero-value Client{} was used.
	ErrClientNotInitialized = errors.New("nrepl: client not initialized (use NewClient)")

	// ErrInvalidArgument indicates a nil or invalid argument was passed to a public API method.
	ErrInvalidArgument = errors.New("nrepl: invalid argument (nil or empty value)")

	// ErrTimeout indicates an operation exceeded its allowed time limit.
	ErrTimeout = errors.New("nrepl: operation timed out")

	// ErrMessageTooLarge indicates a frame exceeds the configured message size limit.
	ErrMessageTooLarge = errors.New("nrepl: message exceeds size limit")

	// ErrIncomplete marks a decode that ran out of input. The framing layer
	// treats it as "wait for more bytes", never as a protocol violation.
	ErrIncomplete = errors.New("nrepl: incomplete bencode value")

	// ErrUnknownSession indicates the server does not know the session id used.
	ErrUnknownSession = errors.New("nrepl: unknown session")

	// ErrSessionClosed indicates an operation was attempted on a closed session.
	ErrSessionClosed = errors.New("nrepl: session closed")

	// ErrMaxSessionsReached indicates the client-side session limit has been reached.
	ErrMaxSessionsReached = errors.New("nrepl: maximum sessions per client reached")

	// ErrStreamClosed indicates Next() was called on an abandoned EvalStream.
	ErrStreamClosed = errors.New("nrepl: eval stream closed")

	// ErrCircuitOpen indicates dialing was skipped because the breaker is open.
	ErrCircuitOpen = errors.New("nrepl: circuit breaker is open")
)

// DecodeError reports malformed or truncated bencode input.
// Truncated input wraps ErrIncomplete.
type DecodeError struct {
	Offset int    // byte offset into the input where decoding failed
	Reason string // what was wrong
	Err    error  // optional underlying error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("nrepl: bencode decode at offset %d: %s: %v", e.Offset, e.Reason, e.Err)
	}
	return fmt.Sprintf("nrepl: bencode decode at offset %d: %s", e.Offset, e.Reason)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Incomplete reports whether decoding failed only because input ran out.
func (e *DecodeError) Incomplete() bool {
	return errors.Is(e.Err, ErrIncomplete)
}

// NewDecodeError creates a DecodeError for a structural violation.
func NewDecodeError(offset int, reason string) error {
	return &DecodeError{Offset: offset, Reason: reason}
}

func newIncompleteError(offset int, reason string) error {
	return &DecodeError{Offset: offset, Reason: reason, Err: ErrIncomplete}
}

// EncodeError reports a value that has no bencode representation.
type EncodeError struct {
	Kind string // Go type or value kind that could not be encoded
	Err  error
}

func (e *EncodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("nrepl: cannot bencode %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("nrepl: cannot bencode %s", e.Kind)
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}

// ConnectionError represents a failed or timed-out connection attempt.
// Connection errors are retryable.
type ConnectionError struct {
	Address string
	Reason  string
	Err     error
}

func (e *ConnectionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("nrepl: connect %s: %s: %v", e.Address, e.Reason, e.Err)
	}
	return fmt.Sprintf("nrepl: connect %s: %s", e.Address, e.Reason)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// Temporary reports that a connect failure may succeed on retry.
func (e *ConnectionError) Temporary() bool {
	return true
}

// NewConnectionError creates a ConnectionError with the given parameters.
//
// Example:
//
//	if err != nil {
//	    return NewConnectionError(addr, "dial failed", err)
//	}
func NewConnectionError(address, reason string, err error) error {
	return &ConnectionError{Address: address, Reason: reason, Err: err}
}

// SessionError represents an error related to session operations.
// It includes the session id for debugging and tracing.
type SessionError struct {
	SessionID string // server-assigned session id, empty for clone failures
	Operation string // what operation failed
	Err       error  // underlying error
}

func (e *SessionError) Error() string {
	if e.SessionID == "" {
		return fmt.Sprintf("nrepl: session %s failed: %v", e.Operation, e.Err)
	}
	return fmt.Sprintf("nrepl: session %s %s failed: %v", e.SessionID, e.Operation, e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

// NewSessionError creates a SessionError with the given parameters.
func NewSessionError(sessionID, operation string, err error) error {
	return &SessionError{SessionID: sessionID, Operation: operation, Err: err}
}

// ProtocolError represents a framing or wire-level violation.
// Use this for input that cannot be resynchronized.
type ProtocolError struct {
	Message string // human-readable error description
	Code    int    // optional error code for programmatic handling
	Fatal   bool   // whether this error should terminate the connection
	Err     error
}

func (e *ProtocolError) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	if e.Code != 0 {
		return fmt.Sprintf("nrepl protocol error (code %d): %s", e.Code, msg)
	}
	return fmt.Sprintf("nrepl protocol error: %s", msg)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// NewProtocolError creates a ProtocolError.
//
// Example:
//
//	if _, ok := v.(Dict); !ok {
//	    return NewProtocolError("top-level value is not a dict", 0, true)
//	}
func NewProtocolError(message string, code int, fatal bool) error {
	return &ProtocolError{Message: message, Code: code, Fatal: fatal}
}

// EvalError is the detail carried by an Errored event: the server reported
// an evaluation failure for one request. It never tears the connection down.
type EvalError struct {
	RequestID string
	Status    []string
	Ex        string // exception class, if reported
	RootEx    string // root cause class, if reported
}

func (e *EvalError) Error() string {
	switch {
	case e.Ex != "" && e.RootEx != "" && e.RootEx != e.Ex:
		return fmt.Sprintf("nrepl: eval %s failed: %s (root %s)", e.RequestID, e.Ex, e.RootEx)
	case e.Ex != "":
		return fmt.Sprintf("nrepl: eval %s failed: %s", e.RequestID, e.Ex)
	default:
		return fmt.Sprintf("nrepl: request %s failed with status %v", e.RequestID, e.Status)
	}
}

// IsTemporary returns true if the error is temporary and the operation can be retried.
func IsTemporary(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrTimeout) || errors.Is(err, ErrConnectionLost) {
		return true
	}

	var ce *ConnectionError
	if errors.As(err, &ce) {
		return true
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}

	type temporary interface {
		Temporary() bool
	}
	if te, ok := err.(temporary); ok {
		return te.Temporary()
	}

	return false
}

// IsFatal returns true if the error is fatal and the connection should be closed.
// Codec and framing failures are always fatal.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var de *DecodeError
	if errors.As(err, &de) {
		return !de.Incomplete()
	}

	if errors.Is(err, ErrMessageTooLarge) {
		return true
	}

	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.Fatal
	}

	return false
}
