package go_nrepl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/go-i2p/logger"
)

// ConnectionState is the lifecycle state of a Connection.
type ConnectionState int32

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateClosing
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	default:
		return fmt.Sprintf("ConnectionState(%d)", int32(s))
	}
}

// inboundHandler receives everything the read loop produces for one socket.
// handleLoss is called exactly once, after the last handleMessage.
type inboundHandler interface {
	handleMessage(msg *Message)
	handleLoss(err error)
}

// Connection owns the single socket to an nREPL server.
//
// State moves Disconnected -> Connecting -> Connected -> Closing ->
// Disconnected. A read loop goroutine feeds received bytes through a Framer
// and hands each decoded message to the inboundHandler given to Connect.
// Writes are serialized so concurrent Sends never interleave frames.
type Connection struct {
	tcp            Tcp
	maxMessageSize int

	mu       sync.Mutex // guards state, conn, loopDone
	state    ConnectionState
	conn     net.Conn
	loopDone chan struct{}

	writeMu sync.Mutex

	// onDrop is told about losses the caller did not ask for.
	onDrop  func(err error)
	metrics func() MetricsCollector
	debug   *ProtocolDebugger
}

// NewConnection creates a disconnected Connection. maxMessageSize <= 0
// selects NREPL_MAX_MESSAGE_SIZE.
func NewConnection(maxMessageSize int) *Connection {
	if maxMessageSize <= 0 {
		maxMessageSize = NREPL_MAX_MESSAGE_SIZE
	}
	return &Connection{
		maxMessageSize: maxMessageSize,
		metrics:        func() MetricsCollector { return nil },
		debug:          NewProtocolDebugger(),
	}
}

// SetupTLS configures TLS for the next Connect.
func (c *Connection) SetupTLS(certFile, keyFile, caFile string, insecure bool) error {
	return c.tcp.SetupTLS(certFile, keyFile, caFile, insecure)
}

// State returns the current lifecycle state.
func (c *Connection) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// RemoteAddr returns the peer address while connected.
func (c *Connection) RemoteAddr() net.Addr {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	return c.conn.RemoteAddr()
}

func (c *Connection) setStateLocked(s ConnectionState) {
	c.state = s
	if m := c.metrics(); m != nil {
		m.SetConnectionState(s.String())
	}
}

// Connect dials address and starts the read loop that feeds h.
// The attempt is bounded by ctx and timeout. On failure the connection
// returns to Disconnected and the error is a *ConnectionError.
func (c *Connection) Connect(ctx context.Context, address string, timeout time.Duration, h inboundHandler) error {
	if h == nil {
		return ErrInvalidArgument
	}

	c.mu.Lock()
	switch c.state {
	case StateConnecting, StateClosing:
		c.mu.Unlock()
		return ErrAlreadyConnecting
	case StateConnected:
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	conn, err := c.dial(ctx, address, timeout)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.setStateLocked(StateDisconnected)
		return err
	}
	if c.state != StateConnecting {
		// Close ran while we were dialing.
		conn.Close()
		c.setStateLocked(StateDisconnected)
		return NewConnectionError(address, "closed while connecting", ErrClientClosed)
	}

	c.conn = conn
	c.loopDone = make(chan struct{})
	c.setStateLocked(StateConnected)
	go c.readLoop(conn, NewFramer(c.maxMessageSize), h, c.loopDone)

	log.WithFields(logger.Fields{
		"at":      "nrepl.Connection.Connect",
		"address": conn.RemoteAddr().String(),
	}).Debug("connected")
	return nil
}

func (c *Connection) dial(ctx context.Context, address string, timeout time.Duration) (net.Conn, error) {
	if address != "" {
		if err := c.tcp.Init(address); err != nil {
			return nil, NewConnectionError(address, "invalid address", err)
		}
	}
	return c.tcp.Dial(ctx, timeout)
}

// Send writes one framed message. It fails with ErrNotConnected unless the
// connection is in the Connected state. A ctx deadline bounds the write.
func (c *Connection) Send(ctx context.Context, msg *Message) error {
	c.mu.Lock()
	if c.state != StateConnected {
		c.mu.Unlock()
		return ErrNotConnected
	}
	conn := c.conn
	c.mu.Unlock()

	buf, err := encodePooled(msg)
	if err != nil {
		return err
	}
	defer releaseBuffer(buf)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetWriteDeadline(deadline)
		defer conn.SetWriteDeadline(time.Time{})
	}
	n, err := conn.Write(buf)
	if m := c.metrics(); m != nil {
		m.AddBytesSent(uint64(n))
	}
	if err != nil {
		// A partial frame leaves the stream unusable.
		if n > 0 {
			conn.Close()
		}
		return fmt.Errorf("nrepl: write %s: %w", getOpName(msg.Op()), err)
	}
	c.debug.LogMessage("SENT", msg, buf)
	Debug("Sent %s %s", getOpName(msg.Op()), msg.summary())
	return nil
}

// readLoop runs until the socket fails, the peer closes it, or the framer
// reports a protocol violation. It always ends with teardown.
func (c *Connection) readLoop(conn net.Conn, framer *Framer, h inboundHandler, done chan struct{}) {
	defer close(done)

	chunk := globalBufferPool.GetBuffer(NREPL_READ_CHUNK_SIZE)
	chunk = chunk[:cap(chunk)]
	defer releaseBuffer(chunk)

	for {
		n, err := conn.Read(chunk)
		if n > 0 {
			if m := c.metrics(); m != nil {
				m.AddBytesReceived(uint64(n))
			}
			msgs, ferr := framer.Feed(chunk[:n])
			for _, msg := range msgs {
				c.debug.LogMessage("RECEIVED", msg, nil)
				h.handleMessage(msg)
			}
			if ferr != nil {
				c.debug.RecordDisconnect(ferr.Error(), chunk[:n])
				log.WithFields(logger.Fields{
					"at":    "nrepl.Connection.readLoop",
					"error": ferr,
				}).Error("protocol_violation")
				if m := c.metrics(); m != nil {
					m.IncrementError("protocol")
				}
				c.teardown(conn, h, ferr)
				return
			}
		}
		if err != nil {
			c.teardown(conn, h, err)
			return
		}
	}
}

// teardown closes conn, moves to Disconnected and fails every pending
// request with ErrConnectionLost.
func (c *Connection) teardown(conn net.Conn, h inboundHandler, cause error) {
	conn.Close()

	c.mu.Lock()
	requested := c.state == StateClosing
	if c.conn == conn {
		c.conn = nil
		c.setStateLocked(StateDisconnected)
	}
	c.mu.Unlock()

	var lost error
	switch {
	case requested:
		lost = fmt.Errorf("%w: closed by client", ErrConnectionLost)
	case errors.Is(cause, io.EOF):
		lost = fmt.Errorf("%w: server closed the connection", ErrConnectionLost)
	default:
		lost = fmt.Errorf("%w: %w", ErrConnectionLost, cause)
	}

	h.handleLoss(lost)
	if !IsFatal(cause) {
		c.debug.RecordDisconnect(lost.Error(), nil)
	}

	if !requested {
		log.WithFields(logger.Fields{
			"at":    "nrepl.Connection.teardown",
			"error": cause,
		}).Warn("connection_lost")
		if m := c.metrics(); m != nil && !IsFatal(cause) {
			m.IncrementError("network")
		}
		if c.onDrop != nil {
			c.onDrop(lost)
		}
	}
}

// Close shuts the socket and waits for the read loop to finish. Pending
// requests fail with ErrConnectionLost. Close is idempotent.
func (c *Connection) Close() error {
	c.mu.Lock()
	switch c.state {
	case StateDisconnected:
		c.mu.Unlock()
		return nil
	case StateConnecting:
		// Connect notices and discards the socket it is dialing.
		c.setStateLocked(StateClosing)
		c.mu.Unlock()
		return nil
	case StateClosing:
		done := c.loopDone
		c.mu.Unlock()
		return waitLoop(done)
	}
	c.setStateLocked(StateClosing)
	conn := c.conn
	done := c.loopDone
	c.mu.Unlock()

	err := conn.Close()
	if werr := waitLoop(done); werr != nil {
		return werr
	}
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

func waitLoop(done chan struct{}) error {
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-time.After(NREPL_SHUTDOWN_TIMEOUT):
		return fmt.Errorf("nrepl: read loop did not stop: %w", ErrTimeout)
	}
}
