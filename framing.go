package go_nrepl

import (
	"bytes"
	"errors"
	"fmt"
)

// Framer turns a raw byte stream into complete nREPL messages.
//
// nREPL has no length prefix of its own; each message is one bencode dict,
// so frame boundaries are found by decoding. Bytes that do not yet form a
// complete value stay buffered until the next Feed. A structural error is
// not recoverable: the framer remembers it and every later Feed fails the
// same way.
type Framer struct {
	buf     bytes.Buffer
	maxSize int
	err     error
}

// NewFramer creates a framer that rejects any single message larger than
// maxSize bytes. A non-positive maxSize selects NREPL_MAX_MESSAGE_SIZE.
func NewFramer(maxSize int) *Framer {
	if maxSize <= 0 {
		maxSize = NREPL_MAX_MESSAGE_SIZE
	}
	return &Framer{maxSize: maxSize}
}

// Feed appends chunk to the buffer and returns every message now complete,
// in arrival order. On error, messages decoded before the malformed frame
// are still returned alongside it.
func (f *Framer) Feed(chunk []byte) ([]*Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.buf.Write(chunk)

	var out []*Message
	for f.buf.Len() > 0 {
		v, n, err := decodeLimited(f.buf.Bytes(), f.maxSize)
		if err != nil {
			var de *DecodeError
			if errors.As(err, &de) && de.Incomplete() {
				if f.buf.Len() > f.maxSize {
					return out, f.fail(f.tooLarge())
				}
				break
			}
			return out, f.fail(&ProtocolError{Message: "malformed frame", Fatal: true, Err: err})
		}
		// Same verdict whether the frame came whole or in pieces.
		if n > f.maxSize {
			return out, f.fail(f.tooLarge())
		}
		msg, err := MessageFromValue(v)
		if err != nil {
			return out, f.fail(err)
		}
		f.buf.Next(n)
		out = append(out, msg)
	}
	return out, nil
}

// Buffered returns the number of bytes waiting for the rest of a frame.
func (f *Framer) Buffered() int {
	return f.buf.Len()
}

// Err returns the error that poisoned the framer, if any.
func (f *Framer) Err() error {
	return f.err
}

// Reset discards buffered bytes and any recorded error. The connection
// manager calls it when a new socket replaces the old one.
func (f *Framer) Reset() {
	f.buf.Reset()
	f.err = nil
}

func (f *Framer) tooLarge() error {
	return &ProtocolError{
		Message: fmt.Sprintf("frame exceeds %d bytes", f.maxSize),
		Fatal:   true,
		Err:     ErrMessageTooLarge,
	}
}

func (f *Framer) fail(err error) error {
	f.err = err
	f.buf.Reset()
	return err
}

// Frame serializes an outgoing message.
func Frame(m *Message) ([]byte, error) {
	if m == nil || m.Dict == nil {
		return nil, &EncodeError{Kind: "nil message"}
	}
	return m.Encode()
}
