package go_nrepl

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
)

// MessageStats tracks sent and received message counts by op for diagnostic purposes.
// Responses are attributed to the op of the request they answer.
type MessageStats struct {
	mu           sync.RWMutex
	sent         map[string]uint64
	received     map[string]uint64
	lastSent     map[string]time.Time
	lastReceived map[string]time.Time
	enabled      bool
	startTime    time.Time
}

// NewMessageStats creates a new message statistics tracker. Tracking is
// off until Enable is called.
func NewMessageStats() *MessageStats {
	ms := &MessageStats{}
	ms.Reset()
	return ms
}

// Enable enables message statistics tracking.
func (ms *MessageStats) Enable() {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.enabled = true
	ms.startTime = time.Now()
}

// Disable disables message statistics tracking.
func (ms *MessageStats) Disable() {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.enabled = false
}

func (ms *MessageStats) IsEnabled() bool {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return ms.enabled
}

func (ms *MessageStats) recordSent(op string) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if !ms.enabled {
		return
	}
	ms.sent[op]++
	ms.lastSent[op] = time.Now()
}

func (ms *MessageStats) recordReceived(op string) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if !ms.enabled {
		return
	}
	ms.received[op]++
	ms.lastReceived[op] = time.Now()
}

// SentCount returns the number of requests sent for op.
func (ms *MessageStats) SentCount(op string) uint64 {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return ms.sent[op]
}

// ReceivedCount returns the number of responses received for op.
func (ms *MessageStats) ReceivedCount(op string) uint64 {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return ms.received[op]
}

// LastReceived returns when a response for op last arrived.
func (ms *MessageStats) LastReceived(op string) (time.Time, bool) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	t, ok := ms.lastReceived[op]
	return t, ok
}

// Reset clears all statistics.
func (ms *MessageStats) Reset() {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.sent = make(map[string]uint64)
	ms.received = make(map[string]uint64)
	ms.lastSent = make(map[string]time.Time)
	ms.lastReceived = make(map[string]time.Time)
	ms.startTime = time.Now()
}

// Summary returns a human-readable summary of message statistics.
func (ms *MessageStats) Summary() string {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	if !ms.enabled {
		return "Message statistics tracking is disabled"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Message Statistics (tracking for %v):\n", time.Since(ms.startTime).Round(time.Millisecond))
	fmt.Fprintf(&b, "  Total: sent=%d, received=%d\n", lo.Sum(lo.Values(ms.sent)), lo.Sum(lo.Values(ms.received)))

	ops := lo.Uniq(append(lo.Keys(ms.sent), lo.Keys(ms.received)...))
	sort.Strings(ops)
	for _, op := range ops {
		fmt.Fprintf(&b, "  %s: sent=%d received=%d\n", getOpName(op), ms.sent[op], ms.received[op])
	}
	return b.String()
}

// Diagnostics is a point-in-time snapshot of a Client.
type Diagnostics struct {
	State          ConnectionState
	Address        string
	Pending        []PendingInfo
	Sessions       []string
	CircuitState   CircuitState
	AutoReconnect  bool
	ReconnectTries int
	Stats          string
}

func (d Diagnostics) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "state=%s address=%s breaker=%s auto-reconnect=%t\n",
		d.State, d.Address, d.CircuitState, d.AutoReconnect)
	fmt.Fprintf(&b, "sessions (%d): %s\n", len(d.Sessions), strings.Join(d.Sessions, ", "))
	fmt.Fprintf(&b, "pending (%d):\n", len(d.Pending))
	for _, p := range d.Pending {
		fmt.Fprintf(&b, "  %s op=%s session=%s age=%v\n", p.ID, p.Op, p.SessionID, p.Age.Round(time.Millisecond))
	}
	if d.Stats != "" {
		b.WriteString(d.Stats)
	}
	return b.String()
}
