package go_nrepl

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/go-i2p/logger"
	"github.com/samber/lo"
)

// Client is an nREPL client bound to one server connection at a time.
//
// All round-trip methods are safe for concurrent use. Responses are
// demultiplexed by request id, so any number of evaluations may run at once
// across any number of sessions.
type Client struct {
	callbacks *ClientCallBacks
	config    *Config
	conn      *Connection

	lock           sync.Mutex // guards corr, sessions, address, connectTimeout, closing
	corr           *correlator
	sessions       map[string]*Session
	address        string
	connectTimeout time.Duration
	maxSessions    int
	closing        bool

	shutdown chan struct{}
	wg       sync.WaitGroup

	// Auto-reconnect state
	reconnectMu         sync.Mutex
	reconnectEnabled    bool
	reconnectAttempts   int
	reconnectMaxRetries int
	reconnectBackoff    time.Duration
	reconnecting        bool

	metricsMu      sync.RWMutex
	metrics        MetricsCollector
	circuitBreaker *CircuitBreaker
	stats          *MessageStats
}

// NewClient creates a client with DefaultConfig. callbacks may be nil.
func NewClient(callbacks *ClientCallBacks) *Client {
	c, err := NewClientWithConfig(DefaultConfig(), callbacks)
	if err != nil {
		// DefaultConfig always validates.
		panic(err)
	}
	return c
}

// NewClientWithConfig creates a client from cfg. It does not connect;
// call Connect, ConnectAddress or ConnectConfigured.
func NewClientWithConfig(cfg *Config, callbacks *ClientCallBacks) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if callbacks == nil {
		callbacks = &ClientCallBacks{}
	}

	c := &Client{
		callbacks:      callbacks,
		config:         cfg,
		conn:           NewConnection(cfg.MaxMessageSize),
		sessions:       make(map[string]*Session),
		connectTimeout: cfg.ConnectTimeout,
		maxSessions:    cfg.MaxSessions,
		shutdown:       make(chan struct{}),
		circuitBreaker: NewCircuitBreaker(cfg.CircuitBreaker.MaxFailures, cfg.CircuitBreaker.ResetTimeout),
		stats:          NewMessageStats(),
	}
	c.conn.metrics = c.GetMetrics
	c.conn.onDrop = c.handleDrop

	if cfg.TLS.Enabled && (cfg.TLS.CertFile != "" || cfg.TLS.CAFile != "" || cfg.TLS.Insecure) {
		if err := c.conn.SetupTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.TLS.CAFile, cfg.TLS.Insecure); err != nil {
			return nil, fmt.Errorf("nrepl: tls setup: %w", err)
		}
	}
	if cfg.Reconnect.Enabled {
		c.EnableAutoReconnect(cfg.Reconnect.MaxRetries, cfg.Reconnect.InitialBackoff)
	}
	if cfg.MessageStats {
		c.stats.Enable()
	}

	Debug("Created client %p", c)
	return c, nil
}

// ensureInitialized verifies that the Client was properly initialized via NewClient.
func (c *Client) ensureInitialized() error {
	if c == nil || c.conn == nil || c.sessions == nil || c.shutdown == nil {
		return ErrClientNotInitialized
	}
	return nil
}

func (c *Client) isClosed() bool {
	select {
	case <-c.shutdown:
		return true
	default:
		return false
	}
}

// SetupTLS configures TLS for subsequent connections.
func (c *Client) SetupTLS(certFile, keyFile, caFile string, insecure bool) error {
	if err := c.ensureInitialized(); err != nil {
		return err
	}
	return c.conn.SetupTLS(certFile, keyFile, caFile, insecure)
}

// Connect dials host:port. An empty host means localhost. The attempt is
// bounded by ctx and timeout; a closed port fails with *ConnectionError.
func (c *Client) Connect(ctx context.Context, host string, port int, timeout time.Duration) error {
	if host == "" {
		host = NREPL_DEFAULT_HOST
	}
	if port <= 0 || port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidArgument, port)
	}
	return c.ConnectAddress(ctx, net.JoinHostPort(host, strconv.Itoa(port)), timeout)
}

// ConnectConfigured dials the address and timeout from the client's Config.
func (c *Client) ConnectConfigured(ctx context.Context) error {
	if err := c.ensureInitialized(); err != nil {
		return err
	}
	return c.ConnectAddress(ctx, c.config.DialAddress(), c.config.ConnectTimeout)
}

// ConnectAddress dials address in any form ResolveAddr accepts.
func (c *Client) ConnectAddress(ctx context.Context, address string, timeout time.Duration) error {
	if err := c.ensureInitialized(); err != nil {
		return err
	}
	if c.isClosed() {
		return ErrClientClosed
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("nrepl: connect: %w", err)
	}

	// Each socket gets its own correlator so nothing pending on an old
	// connection can be answered by a new one.
	corr := newCorrelator(c.GetMetrics, c.stats, c.dispatchUnmatched)
	go corr.run()

	err := c.circuitBreaker.Execute(func() error {
		return c.conn.Connect(ctx, address, timeout, corr)
	})
	if err != nil {
		corr.handleLoss(fmt.Errorf("%w: %w", ErrConnectionLost, err))
		if errors.Is(err, ErrCircuitOpen) {
			return NewConnectionError(address, "circuit breaker open", err)
		}
		var connErr *ConnectionError
		if errors.As(err, &connErr) {
			c.trackError("network")
			log.WithFields(logger.Fields{
				"at":      "nrepl.Client.ConnectAddress",
				"address": address,
				"reason":  connErr.Reason,
			}).Warn("connect_failed")
		}
		return err
	}

	c.lock.Lock()
	c.corr = corr
	c.address = address
	c.connectTimeout = timeout
	c.lock.Unlock()

	Info("Connected client %p to %s", c, address)
	return nil
}

// State returns the connection state.
func (c *Client) State() ConnectionState {
	if c.ensureInitialized() != nil {
		return StateDisconnected
	}
	return c.conn.State()
}

// IsConnected reports whether requests can be sent.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// Address returns the last address the client connected to.
func (c *Client) Address() string {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.address
}

// currentCorrelator returns the correlator of the live connection.
func (c *Client) currentCorrelator() (*correlator, error) {
	if err := c.ensureInitialized(); err != nil {
		return nil, err
	}
	if c.isClosed() {
		return nil, ErrClientClosed
	}
	c.lock.Lock()
	corr := c.corr
	c.lock.Unlock()
	// A finished correlator belongs to a previous socket; the new one is
	// installed just after the read loop starts.
	if corr == nil || corr.closed() || c.conn.State() != StateConnected {
		return nil, ErrNotConnected
	}
	return corr, nil
}

// start assigns msg a fresh id, registers it and sends it. Registration
// happens first so no response can arrive before its sink exists.
func (c *Client) start(ctx context.Context, msg *Message, sessionID string, discard bool) (*EvalStream, error) {
	corr, err := c.currentCorrelator()
	if err != nil {
		return nil, err
	}

	id := newRequestID()
	msg.Set(KEY_ID, String(id))
	if sessionID != "" {
		msg.Set(KEY_SESSION, String(sessionID))
	}
	op := msg.Op()

	mbox := newMailbox(discard)
	req := &pendingRequest{
		id:        id,
		op:        op,
		sessionID: sessionID,
		createdAt: time.Now(),
		sink:      mbox,
	}
	if err := corr.register(req); err != nil {
		return nil, err
	}

	if err := c.conn.Send(ctx, msg); err != nil {
		corr.cancel(id)
		if !errors.Is(err, ErrNotConnected) {
			c.trackError("network")
		}
		return nil, err
	}

	c.stats.recordSent(op)
	if m := c.GetMetrics(); m != nil {
		m.IncrementMessageSent(op)
	}
	return &EvalStream{id: id, sessionID: sessionID, mbox: mbox, corr: corr}, nil
}

// roundTrip sends msg and gathers every response up to and including done.
func (c *Client) roundTrip(ctx context.Context, msg *Message, sessionID string) ([]*Message, error) {
	stream, err := c.start(ctx, msg, sessionID, false)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	var msgs []*Message
	for {
		m, err := stream.mbox.next(ctx)
		if err != nil {
			return msgs, err
		}
		if m == nil {
			return msgs, nil
		}
		msgs = append(msgs, m)
	}
}

// Eval evaluates code in sessionID, or in a throwaway session when
// sessionID is empty. The returned stream ends after DoneEvent. There is no
// built-in timeout; bound each Next with a context deadline.
func (c *Client) Eval(ctx context.Context, code, sessionID string) (*EvalStream, error) {
	return c.EvalWithOptions(ctx, code, sessionID, EvalOptions{})
}

// EvalWithOptions is Eval with extra eval keys such as ns and file.
func (c *Client) EvalWithOptions(ctx context.Context, code, sessionID string, opts EvalOptions) (*EvalStream, error) {
	if code == "" {
		return nil, fmt.Errorf("%w: empty code", ErrInvalidArgument)
	}
	msg := NewMessage(OP_EVAL).With(KEY_CODE, code)
	opts.apply(msg)

	stream, err := c.start(ctx, msg, sessionID, false)
	if err != nil {
		return nil, err
	}
	log.WithFields(logger.Fields{
		"at":      "nrepl.Client.Eval",
		"id":      stream.id,
		"session": sessionID,
	}).Debug("eval_sent")
	return stream, nil
}

// Interrupt asks the server to stop the evaluation requestID. When sessionID
// is empty the session is taken from the pending request. Interrupt does
// not wait for the server's answer; the interrupted evaluation's own stream
// reports the outcome.
func (c *Client) Interrupt(ctx context.Context, requestID, sessionID string) error {
	if requestID == "" {
		return fmt.Errorf("%w: empty request id", ErrInvalidArgument)
	}
	if sessionID == "" {
		corr, err := c.currentCorrelator()
		if err != nil {
			return err
		}
		p, ok := corr.lookup(requestID)
		if !ok || p.SessionID == "" {
			return fmt.Errorf("%w: no session known for request %s", ErrInvalidArgument, requestID)
		}
		sessionID = p.SessionID
	}

	msg := NewMessage(OP_INTERRUPT).With(KEY_INTERRUPT_ID, requestID)
	if _, err := c.start(ctx, msg, sessionID, true); err != nil {
		return err
	}
	Debug("Sent interrupt for %s in session %s", requestID, sessionID)
	return nil
}

// NewSession clones a fresh session on the server.
func (c *Client) NewSession(ctx context.Context) (*Session, error) {
	return c.cloneSession(ctx, "")
}

func (c *Client) cloneSession(ctx context.Context, parent string) (*Session, error) {
	if err := c.checkSessionLimit(); err != nil {
		return nil, NewSessionError(parent, "clone", err)
	}

	msgs, err := c.roundTrip(ctx, NewMessage(OP_CLONE), parent)
	if err != nil {
		c.trackError("session")
		return nil, NewSessionError(parent, "clone", err)
	}

	var id string
	for _, m := range msgs {
		if m.isErrorStatus() {
			c.trackError("session")
			return nil, NewSessionError(parent, "clone", &EvalError{RequestID: m.ID(), Status: m.Status()})
		}
		if s := m.Str(KEY_NEW_SESSION); s != "" {
			id = s
		}
	}
	if id == "" {
		c.trackError("session")
		return nil, NewSessionError(parent, "clone", NewProtocolError("clone response without new-session", 0, false))
	}

	sess := &Session{id: id, parent: parent, client: c, created: time.Now()}

	c.lock.Lock()
	if c.maxSessions > 0 && len(c.sessions) >= c.maxSessions {
		c.lock.Unlock()
		// Over the limit after all; give the server its session back.
		c.closeRemote(ctx, id)
		return nil, NewSessionError(parent, "clone", ErrMaxSessionsReached)
	}
	c.sessions[id] = sess
	count := len(c.sessions)
	c.lock.Unlock()

	if m := c.GetMetrics(); m != nil {
		m.SetActiveSessions(count)
	}
	log.WithFields(logger.Fields{
		"at":      "nrepl.Client.cloneSession",
		"session": id,
		"parent":  parent,
	}).Debug("session_created")
	return sess, nil
}

// AttachSession adopts a session that already exists on the server, for
// example one opened by another client or a previous run. The server must
// list it in ls-sessions. Close forgets attached sessions without closing
// them on the server.
func (c *Client) AttachSession(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty session id", ErrInvalidArgument)
	}
	if s, ok := c.Session(id); ok {
		return s, nil
	}
	if err := c.checkSessionLimit(); err != nil {
		return nil, NewSessionError(id, "attach", err)
	}

	ids, err := c.LsSessions(ctx)
	if err != nil {
		return nil, NewSessionError(id, "attach", err)
	}
	if !lo.Contains(ids, id) {
		return nil, NewSessionError(id, "attach", ErrUnknownSession)
	}

	c.lock.Lock()
	if s, ok := c.sessions[id]; ok {
		c.lock.Unlock()
		return s, nil
	}
	sess := &Session{id: id, client: c, created: time.Now(), attached: true}
	c.sessions[id] = sess
	count := len(c.sessions)
	c.lock.Unlock()

	if m := c.GetMetrics(); m != nil {
		m.SetActiveSessions(count)
	}
	Debug("Attached session %s", id)
	return sess, nil
}

func (c *Client) checkSessionLimit() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.maxSessions > 0 && len(c.sessions) >= c.maxSessions {
		return ErrMaxSessionsReached
	}
	return nil
}

// CloseSession closes sessionID on the server and forgets it locally.
func (c *Client) CloseSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("%w: empty session id", ErrInvalidArgument)
	}

	msgs, err := c.roundTrip(ctx, NewMessage(OP_CLOSE), sessionID)
	if err != nil {
		return NewSessionError(sessionID, "close", err)
	}
	c.forgetSession(sessionID)

	for _, m := range msgs {
		if m.HasStatus(STATUS_UNKNOWN_SESSION) {
			return NewSessionError(sessionID, "close", ErrUnknownSession)
		}
		if m.isErrorStatus() {
			return NewSessionError(sessionID, "close", &EvalError{RequestID: m.ID(), Status: m.Status()})
		}
	}
	Debug("Closed session %s", sessionID)
	return nil
}

// closeRemote closes a session the registry never saw.
func (c *Client) closeRemote(ctx context.Context, sessionID string) {
	if _, err := c.roundTrip(ctx, NewMessage(OP_CLOSE), sessionID); err != nil {
		Debug("Failed to close session %s: %v", sessionID, err)
	}
}

func (c *Client) forgetSession(sessionID string) {
	c.lock.Lock()
	sess, ok := c.sessions[sessionID]
	delete(c.sessions, sessionID)
	count := len(c.sessions)
	c.lock.Unlock()

	if ok {
		sess.markClosed()
	}
	if m := c.GetMetrics(); m != nil {
		m.SetActiveSessions(count)
	}
}

// LsSessions lists the session ids the server knows about, including ones
// opened by other clients.
func (c *Client) LsSessions(ctx context.Context) ([]string, error) {
	msgs, err := c.roundTrip(ctx, NewMessage(OP_LS_SESSIONS), "")
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, m := range msgs {
		if m.isErrorStatus() {
			return nil, &EvalError{RequestID: m.ID(), Status: m.Status()}
		}
		ids = append(ids, m.Strings(KEY_SESSIONS)...)
	}
	return lo.Uniq(ids), nil
}

// Session returns the open session with id, if this client created it.
func (c *Client) Session(id string) (*Session, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()
	s, ok := c.sessions[id]
	return s, ok
}

// Sessions returns the open sessions this client created.
func (c *Client) Sessions() []*Session {
	c.lock.Lock()
	defer c.lock.Unlock()
	return lo.Values(c.sessions)
}

// Pending returns the requests still awaiting done.
func (c *Client) Pending() []PendingInfo {
	c.lock.Lock()
	corr := c.corr
	c.lock.Unlock()
	if corr == nil {
		return nil
	}
	return corr.pendingSnapshot()
}

// Disconnect closes the connection but leaves the client usable for a
// later Connect. Pending requests fail with ErrConnectionLost and every
// session is marked closed. Auto-reconnect does not kick in.
func (c *Client) Disconnect() error {
	if err := c.ensureInitialized(); err != nil {
		return err
	}
	err := c.conn.Close()
	c.dropSessions()
	return err
}

// Close closes the sessions this client opened, then the connection, and
// stops any reconnect in progress. The client cannot be reused. Close is
// idempotent.
func (c *Client) Close() error {
	if err := c.ensureInitialized(); err != nil {
		return err
	}

	c.lock.Lock()
	if c.closing {
		c.lock.Unlock()
		return nil
	}
	c.closing = true
	sessions := lo.FilterMap(lo.Values(c.sessions), func(s *Session, _ int) (string, bool) {
		return s.id, !s.attached
	})
	c.lock.Unlock()

	Info("Closing client %p", c)

	if c.conn.State() == StateConnected && len(sessions) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), NREPL_SHUTDOWN_TIMEOUT)
		for _, id := range sessions {
			if err := c.CloseSession(ctx, id); err != nil {
				Debug("Failed to close session %s: %v", id, err)
			}
		}
		cancel()
	}

	close(c.shutdown)

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(NREPL_SHUTDOWN_TIMEOUT):
		Warning("Timeout waiting for client goroutines to stop")
	}

	err := c.conn.Close()
	c.dropSessions()
	return err
}

// dropSessions marks every session closed and clears the registry.
func (c *Client) dropSessions() {
	c.lock.Lock()
	sessions := c.sessions
	c.sessions = make(map[string]*Session)
	c.lock.Unlock()

	for _, s := range sessions {
		s.markClosed()
	}
	if m := c.GetMetrics(); m != nil {
		m.SetActiveSessions(0)
	}
}

// handleDrop runs on the read loop after an unrequested connection loss.
// Sessions die with the socket.
func (c *Client) handleDrop(err error) {
	c.dropSessions()

	if cb := c.callbacks.OnDisconnect; cb != nil {
		go cb(c, err, c.callbacks.Opaque)
	}

	if c.isClosed() || !c.IsAutoReconnectEnabled() {
		return
	}

	c.reconnectMu.Lock()
	if c.reconnecting {
		c.reconnectMu.Unlock()
		return
	}
	c.reconnecting = true
	c.reconnectMu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			c.reconnectMu.Lock()
			c.reconnecting = false
			c.reconnectMu.Unlock()
		}()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			select {
			case <-c.shutdown:
				cancel()
			case <-ctx.Done():
			}
		}()

		if rerr := c.autoReconnect(ctx); rerr != nil {
			Error("Auto-reconnect failed: %v", rerr)
		}
	}()
}

// dispatchUnmatched hands an uncorrelated response to the application.
func (c *Client) dispatchUnmatched(msg *Message) {
	if cb := c.callbacks.OnUnmatched; cb != nil {
		go cb(c, msg, c.callbacks.Opaque)
	}
}

// EnableAutoReconnect enables automatic reconnection after an unexpected
// connection loss. maxRetries = 0 means retry forever. Sessions are not
// restored; requests pending at the time of the loss still fail with
// ErrConnectionLost.
func (c *Client) EnableAutoReconnect(maxRetries int, initialBackoff time.Duration) {
	c.reconnectMu.Lock()
	defer c.reconnectMu.Unlock()

	c.reconnectEnabled = true
	c.reconnectMaxRetries = maxRetries
	c.reconnectBackoff = initialBackoff
	c.reconnectAttempts = 0

	Debug("Auto-reconnect enabled: maxRetries=%d, initialBackoff=%v", maxRetries, initialBackoff)
}

// DisableAutoReconnect disables automatic reconnection.
func (c *Client) DisableAutoReconnect() {
	c.reconnectMu.Lock()
	defer c.reconnectMu.Unlock()
	c.reconnectEnabled = false
}

// IsAutoReconnectEnabled returns whether auto-reconnect is enabled.
func (c *Client) IsAutoReconnectEnabled() bool {
	c.reconnectMu.Lock()
	defer c.reconnectMu.Unlock()
	return c.reconnectEnabled
}

// ReconnectAttempts returns the number of reconnect attempts made since the
// last successful connection.
func (c *Client) ReconnectAttempts() int {
	c.reconnectMu.Lock()
	defer c.reconnectMu.Unlock()
	return c.reconnectAttempts
}

// autoReconnect redials the last address with exponential backoff.
func (c *Client) autoReconnect(ctx context.Context) error {
	c.reconnectMu.Lock()
	maxRetries := c.reconnectMaxRetries
	backoff := c.reconnectBackoff
	c.reconnectMu.Unlock()
	if maxRetries == 0 {
		maxRetries = -1
	}

	c.lock.Lock()
	address, timeout := c.address, c.connectTimeout
	c.lock.Unlock()
	if address == "" {
		return ErrNotConnected
	}

	Info("Attempting auto-reconnect to %s", address)

	err := RetryWithBackoff(ctx, maxRetries, backoff, func() error {
		c.reconnectMu.Lock()
		c.reconnectAttempts++
		attempt := c.reconnectAttempts
		c.reconnectMu.Unlock()

		Debug("Reconnect attempt %d", attempt)
		err := c.ConnectAddress(ctx, address, timeout)
		if errors.Is(err, ErrAlreadyConnected) {
			return nil
		}
		if errors.Is(err, ErrClientClosed) {
			return fmt.Errorf("nrepl: %w", &permanentError{err})
		}
		return err
	})
	if err != nil {
		return err
	}

	c.reconnectMu.Lock()
	c.reconnectAttempts = 0
	c.reconnectMu.Unlock()
	Info("Auto-reconnect to %s succeeded", address)
	return nil
}

// permanentError stops RetryWithBackoff.
type permanentError struct{ err error }

func (e *permanentError) Error() string   { return e.err.Error() }
func (e *permanentError) Unwrap() error   { return e.err }
func (e *permanentError) Temporary() bool { return false }

// SetMetrics sets the metrics collector. nil disables metrics.
func (c *Client) SetMetrics(metrics MetricsCollector) {
	c.metricsMu.Lock()
	c.metrics = metrics
	c.metricsMu.Unlock()
	if metrics != nil {
		metrics.SetConnectionState(c.State().String())
	}
}

// GetMetrics returns the current metrics collector, or nil if none is set.
func (c *Client) GetMetrics() MetricsCollector {
	c.metricsMu.RLock()
	defer c.metricsMu.RUnlock()
	return c.metrics
}

// Stats returns the per-op message statistics tracker.
func (c *Client) Stats() *MessageStats {
	return c.stats
}

// GetCircuitBreakerState returns the state of the dial circuit breaker.
func (c *Client) GetCircuitBreakerState() CircuitState {
	if c.circuitBreaker == nil {
		return CircuitClosed
	}
	return c.circuitBreaker.State()
}

// ResetCircuitBreaker closes the dial circuit breaker.
func (c *Client) ResetCircuitBreaker() {
	if c.circuitBreaker != nil {
		c.circuitBreaker.Reset()
	}
}

// trackError records an error if metrics are enabled.
func (c *Client) trackError(errorType string) {
	if m := c.GetMetrics(); m != nil {
		m.IncrementError(errorType)
	}
}

// Diagnostics returns a snapshot of the client's state.
func (c *Client) Diagnostics() Diagnostics {
	d := Diagnostics{
		State:          c.State(),
		Address:        c.Address(),
		Pending:        c.Pending(),
		Sessions:       lo.Map(c.Sessions(), func(s *Session, _ int) string { return s.ID() }),
		CircuitState:   c.GetCircuitBreakerState(),
		AutoReconnect:  c.IsAutoReconnectEnabled(),
		ReconnectTries: c.ReconnectAttempts(),
	}
	if c.stats.IsEnabled() {
		d.Stats = c.stats.Summary()
	}
	return d
}
