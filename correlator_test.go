package go_nrepl

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func startCorrelator(t *testing.T, onUnmatched func(*Message)) *correlator {
	t.Helper()
	c := newCorrelator(nil, NewMessageStats(), onUnmatched)
	go c.run()
	t.Cleanup(func() { c.handleLoss(ErrConnectionLost) })
	return c
}

func registerRequest(t *testing.T, c *correlator, id, op, session string) *mailbox {
	t.Helper()
	mb := newMailbox(false)
	req := &pendingRequest{id: id, op: op, sessionID: session, createdAt: time.Now(), sink: mb}
	if err := c.register(req); err != nil {
		t.Fatalf("register(%s) error = %v", id, err)
	}
	return mb
}

func response(id string, status ...string) *Message {
	m := &Message{NewDict().Set(KEY_ID, String(id))}
	if len(status) > 0 {
		withStatus(m, status...)
	}
	return m
}

func drain(t *testing.T, mb *mailbox) ([]*Message, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var msgs []*Message
	for {
		m, err := mb.next(ctx)
		if err != nil || m == nil {
			return msgs, err
		}
		msgs = append(msgs, m)
	}
}

func TestNewRequestIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := newRequestID()
		if seen[id] {
			t.Fatalf("newRequestID() returned duplicate %s", id)
		}
		seen[id] = true
	}
}

func TestCorrelatorRoutesByID(t *testing.T) {
	c := startCorrelator(t, nil)
	a := registerRequest(t, c, "a", OP_EVAL, "")
	b := registerRequest(t, c, "b", OP_EVAL, "")

	c.handleMessage(response("b"))
	c.handleMessage(response("a"))
	c.handleMessage(response("a", STATUS_DONE))
	c.handleMessage(response("b", STATUS_DONE))

	for name, mb := range map[string]*mailbox{"a": a, "b": b} {
		msgs, err := drain(t, mb)
		if err != nil {
			t.Fatalf("%s: drain error = %v", name, err)
		}
		if len(msgs) != 2 {
			t.Fatalf("%s: got %d messages, want 2", name, len(msgs))
		}
		for _, m := range msgs {
			if m.ID() != name {
				t.Errorf("%s: received message for %s", name, m.ID())
			}
		}
		if !msgs[1].IsDone() {
			t.Errorf("%s: last message is not done", name)
		}
	}
	if got := len(c.pendingSnapshot()); got != 0 {
		t.Errorf("pending = %d, want 0", got)
	}
}

func TestCorrelatorUnmatched(t *testing.T) {
	got := make(chan *Message, 1)
	c := startCorrelator(t, func(m *Message) { got <- m })

	c.handleMessage(response("nobody", STATUS_DONE))

	select {
	case m := <-got:
		if m.ID() != "nobody" {
			t.Errorf("unmatched id = %q, want nobody", m.ID())
		}
	case <-time.After(time.Second):
		t.Fatal("onUnmatched not called")
	}
}

func TestCorrelatorLossFailsAll(t *testing.T) {
	c := newCorrelator(nil, nil, nil)
	go c.run()

	const n = 10
	boxes := make([]*mailbox, n)
	for i := range boxes {
		boxes[i] = registerRequest(t, c, fmt.Sprintf("r%d", i), OP_EVAL, "")
	}
	// One response already queued survives the loss.
	c.handleMessage(response("r0"))

	lost := fmt.Errorf("%w: test", ErrConnectionLost)
	c.handleLoss(lost)
	<-c.done

	for i, mb := range boxes {
		msgs, err := drain(t, mb)
		if !errors.Is(err, ErrConnectionLost) {
			t.Errorf("r%d: error = %v, want ErrConnectionLost", i, err)
		}
		if i == 0 && len(msgs) != 1 {
			t.Errorf("r0: got %d messages before loss, want 1", len(msgs))
		}
	}
	if len(c.pending) != 0 {
		t.Errorf("pending = %d after loss, want 0", len(c.pending))
	}

	// Registering on a dead correlator reports the loss.
	err := c.register(&pendingRequest{id: "late", sink: newMailbox(false)})
	if !errors.Is(err, ErrConnectionLost) {
		t.Errorf("register() after loss error = %v, want ErrConnectionLost", err)
	}
	if c.pendingSnapshot() != nil {
		t.Error("pendingSnapshot() after loss should be nil")
	}
}

func TestCorrelatorCancel(t *testing.T) {
	unmatched := make(chan *Message, 1)
	c := startCorrelator(t, func(m *Message) { unmatched <- m })
	registerRequest(t, c, "x", OP_EVAL, "s1")

	if _, ok := c.lookup("x"); !ok {
		t.Fatal("lookup(x) should find the request")
	}
	c.cancel("x")
	if _, ok := c.lookup("x"); ok {
		t.Fatal("lookup(x) after cancel should fail")
	}

	c.handleMessage(response("x", STATUS_DONE))
	select {
	case <-unmatched:
	case <-time.After(time.Second):
		t.Fatal("response after cancel should be unmatched")
	}
}

func TestCorrelatorSnapshot(t *testing.T) {
	c := startCorrelator(t, nil)
	registerRequest(t, c, "e1", OP_EVAL, "s1")
	registerRequest(t, c, "c1", OP_CLONE, "")

	p, ok := c.lookup("e1")
	if !ok {
		t.Fatal("lookup(e1) failed")
	}
	if p.Op != OP_EVAL || p.SessionID != "s1" {
		t.Errorf("lookup(e1) = %+v", p)
	}
	if got := len(c.pendingSnapshot()); got != 2 {
		t.Errorf("pending = %d, want 2", got)
	}
}

func TestCorrelatorStatsAndMetrics(t *testing.T) {
	metrics := NewInMemoryMetrics()
	stats := NewMessageStats()
	stats.Enable()
	c := newCorrelator(func() MetricsCollector { return metrics }, stats, nil)
	go c.run()
	defer c.handleLoss(ErrConnectionLost)

	mb := registerRequest(t, c, "d", OP_DESCRIBE, "")
	c.handleMessage(response("d", STATUS_DONE))
	if _, err := drain(t, mb); err != nil {
		t.Fatalf("drain error = %v", err)
	}
	c.handleMessage(response("stray"))
	c.pendingSnapshot() // barrier

	if got := metrics.MessagesReceived(OP_DESCRIBE); got != 1 {
		t.Errorf("MessagesReceived(describe) = %d, want 1", got)
	}
	if got := metrics.MessagesReceived("unmatched"); got != 1 {
		t.Errorf("MessagesReceived(unmatched) = %d, want 1", got)
	}
	if got := stats.ReceivedCount(OP_DESCRIBE); got != 1 {
		t.Errorf("ReceivedCount(describe) = %d, want 1", got)
	}
}

func TestMailbox(t *testing.T) {
	t.Run("finish after items", func(t *testing.T) {
		mb := newMailbox(false)
		mb.push(response("1"))
		mb.push(response("1"))
		mb.finish()
		msgs, err := drain(t, mb)
		if err != nil || len(msgs) != 2 {
			t.Errorf("drain = %d msgs, %v; want 2, nil", len(msgs), err)
		}
	})

	t.Run("discard keeps nothing", func(t *testing.T) {
		mb := newMailbox(true)
		mb.push(response("1"))
		mb.finish()
		msgs, err := drain(t, mb)
		if err != nil || len(msgs) != 0 {
			t.Errorf("drain = %d msgs, %v; want 0, nil", len(msgs), err)
		}
	})

	t.Run("fail is terminal once", func(t *testing.T) {
		mb := newMailbox(false)
		mb.fail(ErrConnectionLost)
		mb.fail(ErrStreamClosed)
		_, err := drain(t, mb)
		if !errors.Is(err, ErrConnectionLost) {
			t.Errorf("error = %v, want ErrConnectionLost", err)
		}
	})

	t.Run("next honours ctx", func(t *testing.T) {
		mb := newMailbox(false)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := mb.next(ctx); !errors.Is(err, context.Canceled) {
			t.Errorf("next() error = %v, want context.Canceled", err)
		}
	})
}
