package go_nrepl

// mocks_test.go - Shared test helpers: an in-process nREPL server speaking
// bencode on 127.0.0.1 and client constructors wired to it.

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeConn is one accepted client socket on the fake server.
type fakeConn struct {
	conn net.Conn
	mu   sync.Mutex
}

func (fc *fakeConn) send(m *Message) error {
	data, err := m.Encode()
	if err != nil {
		return err
	}
	return fc.sendRaw(data)
}

func (fc *fakeConn) sendRaw(data []byte) error {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	_, err := fc.conn.Write(data)
	return err
}

// reply builds a response to req carrying its id and session.
func reply(req *Message) *Message {
	m := &Message{NewDict()}
	m.Set(KEY_ID, String(req.ID()))
	if s := req.Session(); s != "" {
		m.Set(KEY_SESSION, String(s))
	}
	return m
}

func withStatus(m *Message, flags ...string) *Message {
	l := make(List, len(flags))
	for i, f := range flags {
		l[i] = String(f)
	}
	m.Set(KEY_STATUS, l)
	return m
}

// fakeHandler may claim a request before the default behaviour runs.
type fakeHandler func(fc *fakeConn, req *Message) bool

// fakeServer is a tiny nREPL server. By default it implements clone, close,
// describe, ls-sessions, interrupt and a handful of canned evaluations:
//
//	(+ 1 2)          value "3"
//	(println "...")  out, then value "nil"
//	(/ 1 0)          err, ex, eval-error
//	(loop)           no answer until interrupted
//	anything else    echoes the code back as the value
type fakeServer struct {
	t  *testing.T
	ln net.Listener

	mu       sync.Mutex
	conns    []*fakeConn
	sessions map[string]bool
	nextID   int
	running  map[string]*runningEval // by request id
	accepted int
	handler  fakeHandler

	wg sync.WaitGroup
}

type runningEval struct {
	fc  *fakeConn
	req *Message
}

func newFakeServer(t *testing.T, handler fakeHandler) *fakeServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &fakeServer{
		t:        t,
		ln:       ln,
		sessions: make(map[string]bool),
		running:  make(map[string]*runningEval),
		handler:  handler,
	}
	s.wg.Add(1)
	go s.acceptLoop()
	t.Cleanup(s.close)
	return s
}

func (s *fakeServer) port() int { return s.ln.Addr().(*net.TCPAddr).Port }

func (s *fakeServer) addr() string { return s.ln.Addr().String() }

func (s *fakeServer) close() {
	s.ln.Close()
	s.dropAll()
	s.wg.Wait()
}

// dropAll closes every accepted socket without closing the listener.
func (s *fakeServer) dropAll() {
	s.mu.Lock()
	conns := s.conns
	s.conns = nil
	s.running = make(map[string]*runningEval)
	s.mu.Unlock()
	for _, fc := range conns {
		fc.conn.Close()
	}
}

func (s *fakeServer) acceptCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepted
}

func (s *fakeServer) hasSession(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[id]
}

func (s *fakeServer) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		fc := &fakeConn{conn: conn}
		s.mu.Lock()
		s.conns = append(s.conns, fc)
		s.accepted++
		s.mu.Unlock()

		s.wg.Add(1)
		go s.serve(fc)
	}
}

func (s *fakeServer) serve(fc *fakeConn) {
	defer s.wg.Done()
	defer fc.conn.Close()

	framer := NewFramer(0)
	buf := make([]byte, 4096)
	for {
		n, err := fc.conn.Read(buf)
		if n > 0 {
			msgs, ferr := framer.Feed(buf[:n])
			for _, m := range msgs {
				if s.handler != nil && s.handler(fc, m) {
					continue
				}
				s.handle(fc, m)
			}
			if ferr != nil {
				return
			}
		}
		if err != nil {
			return
		}
	}
}

func (s *fakeServer) handle(fc *fakeConn, req *Message) {
	if sess := req.Session(); sess != "" && req.Op() != OP_CLONE && !s.hasSession(sess) {
		fc.send(withStatus(reply(req), STATUS_ERROR, STATUS_UNKNOWN_SESSION, STATUS_DONE))
		return
	}

	switch req.Op() {
	case OP_CLONE:
		s.mu.Lock()
		s.nextID++
		id := fmt.Sprintf("session-%d", s.nextID)
		s.sessions[id] = true
		s.mu.Unlock()
		fc.send(withStatus(reply(req), STATUS_DONE).With(KEY_NEW_SESSION, id))

	case OP_CLOSE:
		s.mu.Lock()
		delete(s.sessions, req.Session())
		s.mu.Unlock()
		fc.send(withStatus(reply(req), STATUS_SESSION_CLOSED, STATUS_DONE))

	case OP_LS_SESSIONS:
		s.mu.Lock()
		ids := make(List, 0, len(s.sessions))
		for id := range s.sessions {
			ids = append(ids, String(id))
		}
		s.mu.Unlock()
		m := reply(req)
		m.Set(KEY_SESSIONS, ids)
		fc.send(withStatus(m, STATUS_DONE))

	case OP_DESCRIBE:
		ops := NewDict()
		for _, op := range []string{OP_EVAL, OP_CLONE, OP_CLOSE, OP_INTERRUPT, OP_DESCRIBE, OP_LS_SESSIONS} {
			ops.Set(op, NewDict())
		}
		versions := NewDict().
			Set("nrepl", NewDict().
				Set("major", Int(1)).
				Set("minor", Int(3)).
				Set("incremental", Int(0)).
				Set("version-string", String("1.3.0"))).
			Set("clojure", NewDict().
				Set("major", Int(1)).
				Set("minor", Int(12)).
				Set("incremental", Int(0)).
				Set("version-string", String("1.12.0")))
		m := reply(req)
		m.Set(KEY_OPS, ops)
		m.Set(KEY_VERSIONS, versions)
		fc.send(withStatus(m, STATUS_DONE))

	case OP_INTERRUPT:
		target := req.Str(KEY_INTERRUPT_ID)
		s.mu.Lock()
		run, ok := s.running[target]
		delete(s.running, target)
		s.mu.Unlock()
		if !ok {
			fc.send(withStatus(reply(req), STATUS_INTERRUPT_ID_MISMATCH, STATUS_DONE))
			return
		}
		run.fc.send(withStatus(reply(run.req), STATUS_INTERRUPTED))
		run.fc.send(withStatus(reply(run.req), STATUS_DONE))
		fc.send(withStatus(reply(req), STATUS_DONE))

	case OP_EVAL:
		s.eval(fc, req)

	default:
		fc.send(withStatus(reply(req), STATUS_ERROR, STATUS_UNKNOWN_OP, STATUS_DONE))
	}
}

func (s *fakeServer) eval(fc *fakeConn, req *Message) {
	code := req.Str(KEY_CODE)
	ns := req.Str(KEY_NS)
	if ns == "" {
		ns = "user"
	}
	value := func(v string) {
		m := reply(req).With(KEY_VALUE, v).With(KEY_NS, ns)
		fc.send(m)
	}

	switch {
	case code == "(loop)":
		s.mu.Lock()
		s.running[req.ID()] = &runningEval{fc: fc, req: req}
		s.mu.Unlock()
		return
	case code == "(+ 1 2)":
		value("3")
	case strings.HasPrefix(code, "(println "):
		text := strings.Trim(strings.TrimSuffix(strings.TrimPrefix(code, "(println "), ")"), `"`)
		fc.send(reply(req).With(KEY_OUT, text+"\n"))
		value("nil")
	case code == "(/ 1 0)":
		fc.send(reply(req).With(KEY_ERR, "Execution error (ArithmeticException)\n"))
		m := reply(req).With(KEY_EX, "class java.lang.ArithmeticException").
			With(KEY_ROOT_EX, "class java.lang.ArithmeticException")
		fc.send(withStatus(m, STATUS_EVAL_ERROR))
	default:
		value(code)
	}
	fc.send(withStatus(reply(req), STATUS_DONE))
}

// closedPort returns a port nothing listens on.
func closedPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

// newConnectedClient returns a client connected to s and closed at cleanup.
func newConnectedClient(t *testing.T, s *fakeServer, callbacks *ClientCallBacks) *Client {
	t.Helper()
	return newConnectedClientWithConfig(t, s, DefaultConfig(), callbacks)
}

func newConnectedClientWithConfig(t *testing.T, s *fakeServer, cfg *Config, callbacks *ClientCallBacks) *Client {
	t.Helper()
	c, err := NewClientWithConfig(cfg, callbacks)
	if err != nil {
		t.Fatalf("NewClientWithConfig() error = %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Connect(ctx, "127.0.0.1", s.port(), time.Second); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

// testContext returns a context that fails a hung test instead of hanging it.
func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// recordingHandler collects what a Connection's read loop delivers.
type recordingHandler struct {
	mu   sync.Mutex
	msgs []*Message
	lost chan error
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{lost: make(chan error, 1)}
}

func (h *recordingHandler) handleMessage(m *Message) {
	h.mu.Lock()
	h.msgs = append(h.msgs, m)
	h.mu.Unlock()
}

func (h *recordingHandler) handleLoss(err error) {
	h.lost <- err
}

func (h *recordingHandler) messages() []*Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*Message(nil), h.msgs...)
}

func (h *recordingHandler) waitLoss(t *testing.T) error {
	t.Helper()
	select {
	case err := <-h.lost:
		return err
	case <-time.After(3 * time.Second):
		t.Fatal("connection loss was never reported")
		return errors.New("unreachable")
	}
}
