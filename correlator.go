package go_nrepl

import (
	"context"
	"sync"
	"time"

	"github.com/go-i2p/logger"
	"github.com/oklog/ulid/v2"
	"github.com/samber/lo"
)

// newRequestID returns a fresh, monotonically increasing request id.
func newRequestID() string {
	return ulid.Make().String()
}

// mailbox is the result sink of one pending request: an unbounded FIFO of
// responses followed by at most one terminal error. The correlator pushes,
// the request's consumer pulls; neither ever blocks the other.
type mailbox struct {
	mu       sync.Mutex
	items    []*Message
	finished bool  // "done" seen or connection lost
	err      error // terminal error delivered after items drain
	discard  bool  // fire-and-forget requests keep nothing
	notify   chan struct{}
}

func newMailbox(discard bool) *mailbox {
	return &mailbox{discard: discard, notify: make(chan struct{}, 1)}
}

func (mb *mailbox) signal() {
	select {
	case mb.notify <- struct{}{}:
	default:
	}
}

func (mb *mailbox) push(msg *Message) {
	mb.mu.Lock()
	if !mb.finished && !mb.discard {
		mb.items = append(mb.items, msg)
	}
	mb.mu.Unlock()
	mb.signal()
}

// finish marks normal completion; the consumer sees the queued items and
// then the end of the sequence.
func (mb *mailbox) finish() {
	mb.mu.Lock()
	mb.finished = true
	mb.mu.Unlock()
	mb.signal()
}

// fail ends the sequence with err after whatever is already queued.
func (mb *mailbox) fail(err error) {
	mb.mu.Lock()
	if !mb.finished {
		mb.finished = true
		mb.err = err
	}
	mb.mu.Unlock()
	mb.signal()
}

// abandon drops queued items; the consumer is gone.
func (mb *mailbox) abandon() {
	mb.mu.Lock()
	mb.discard = true
	mb.items = nil
	mb.mu.Unlock()
}

// next blocks until a message is available, the sequence ends, or ctx is
// done. It returns (nil, nil) at normal end of sequence.
func (mb *mailbox) next(ctx context.Context) (*Message, error) {
	for {
		mb.mu.Lock()
		if len(mb.items) > 0 {
			msg := mb.items[0]
			mb.items[0] = nil
			mb.items = mb.items[1:]
			mb.mu.Unlock()
			return msg, nil
		}
		if mb.finished {
			err := mb.err
			mb.mu.Unlock()
			return nil, err
		}
		mb.mu.Unlock()

		select {
		case <-mb.notify:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// pendingRequest is the correlator's record of a request awaiting "done".
type pendingRequest struct {
	id        string
	op        string
	sessionID string
	createdAt time.Time
	sink      *mailbox
}

// Events accepted by the correlator loop. They travel over one channel so
// messages and the final loss notification from the read loop keep their
// order.
type (
	registerEvent struct {
		req   *pendingRequest
		reply chan error
	}
	cancelEvent  struct{ id string }
	inboundEvent struct{ msg *Message }
	lossEvent    struct{ err error }
	queryEvent   struct{ reply chan correlatorSnapshot }
)

// correlatorSnapshot is a point-in-time view of the pending set.
type correlatorSnapshot struct {
	Pending []PendingInfo
}

// PendingInfo describes one in-flight request.
type PendingInfo struct {
	ID        string
	Op        string
	SessionID string
	Age       time.Duration
}

// correlator routes inbound responses to the request they answer.
//
// All bookkeeping lives in the run goroutine; callers talk to it through
// events. One correlator serves exactly one socket: when the connection is
// lost every pending request fails with ErrConnectionLost and the loop
// exits. A reconnect gets a fresh correlator.
type correlator struct {
	events chan any
	done   chan struct{}
	err    error // loss cause, readable after done is closed

	pending map[string]*pendingRequest

	metrics     func() MetricsCollector
	stats       *MessageStats
	onUnmatched func(*Message)
}

func newCorrelator(metrics func() MetricsCollector, stats *MessageStats, onUnmatched func(*Message)) *correlator {
	if metrics == nil {
		metrics = func() MetricsCollector { return nil }
	}
	return &correlator{
		events:      make(chan any, 256),
		done:        make(chan struct{}),
		pending:     make(map[string]*pendingRequest),
		metrics:     metrics,
		stats:       stats,
		onUnmatched: onUnmatched,
	}
}

func (c *correlator) run() {
	for ev := range c.events {
		switch e := ev.(type) {
		case registerEvent:
			c.pending[e.req.id] = e.req
			c.updatePending()
			e.reply <- nil
		case cancelEvent:
			if req, ok := c.pending[e.id]; ok {
				req.sink.abandon()
				delete(c.pending, e.id)
				c.updatePending()
			}
		case inboundEvent:
			c.route(e.msg)
		case queryEvent:
			e.reply <- c.snapshot()
		case lossEvent:
			c.failAll(e.err)
			c.err = e.err
			close(c.done)
			return
		}
	}
}

func (c *correlator) route(msg *Message) {
	id := msg.ID()
	req, ok := c.pending[id]
	if !ok {
		if m := c.metrics(); m != nil {
			m.IncrementMessageReceived("unmatched")
		}
		log.WithFields(logger.Fields{
			"at":      "nrepl.correlator.route",
			"id":      id,
			"session": msg.Session(),
			"status":  msg.Status(),
		}).Debug("dropping_unmatched_message")
		if c.onUnmatched != nil {
			c.onUnmatched(msg)
		}
		return
	}

	if c.stats != nil {
		c.stats.recordReceived(req.op)
	}
	if m := c.metrics(); m != nil {
		m.IncrementMessageReceived(req.op)
	}
	req.sink.push(msg)

	if msg.IsDone() {
		delete(c.pending, id)
		req.sink.finish()
		if m := c.metrics(); m != nil {
			m.RecordRequestLatency(req.op, time.Since(req.createdAt))
		}
		c.updatePending()
	}
}

func (c *correlator) failAll(err error) {
	if len(c.pending) > 0 {
		log.WithFields(logger.Fields{
			"at":      "nrepl.correlator.failAll",
			"pending": len(c.pending),
			"error":   err,
		}).Warn("failing_pending_requests")
	}
	for id, req := range c.pending {
		req.sink.fail(err)
		delete(c.pending, id)
	}
	c.updatePending()
}

func (c *correlator) updatePending() {
	if m := c.metrics(); m != nil {
		m.SetPendingRequests(len(c.pending))
	}
}

func (c *correlator) snapshot() correlatorSnapshot {
	now := time.Now()
	infos := lo.MapToSlice(c.pending, func(id string, req *pendingRequest) PendingInfo {
		return PendingInfo{ID: id, Op: req.op, SessionID: req.sessionID, Age: now.Sub(req.createdAt)}
	})
	return correlatorSnapshot{Pending: infos}
}

// send delivers ev to the loop unless the loop has already exited.
func (c *correlator) send(ev any) bool {
	select {
	case c.events <- ev:
		return true
	case <-c.done:
		return false
	}
}

// register adds a pending request. It returns the loss error if the
// connection this correlator served is already gone.
func (c *correlator) register(req *pendingRequest) error {
	reply := make(chan error, 1)
	if !c.send(registerEvent{req: req, reply: reply}) {
		return c.err
	}
	select {
	case err := <-reply:
		return err
	case <-c.done:
		return c.err
	}
}

// cancel forgets a pending request; later responses for it are dropped.
func (c *correlator) cancel(id string) {
	c.send(cancelEvent{id: id})
}

// closed reports whether the loop has exited after a connection loss.
func (c *correlator) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *correlator) handleMessage(msg *Message) {
	c.send(inboundEvent{msg: msg})
}

func (c *correlator) handleLoss(err error) {
	c.send(lossEvent{err: err})
}

// pendingSnapshot returns the in-flight requests, or nil once the loop has exited.
func (c *correlator) pendingSnapshot() []PendingInfo {
	reply := make(chan correlatorSnapshot, 1)
	if !c.send(queryEvent{reply: reply}) {
		return nil
	}
	select {
	case s := <-reply:
		return s.Pending
	case <-c.done:
		return nil
	}
}

// lookup returns the pending request with id, if any.
func (c *correlator) lookup(id string) (PendingInfo, bool) {
	return lo.Find(c.pendingSnapshot(), func(p PendingInfo) bool { return p.ID == id })
}
