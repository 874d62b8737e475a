package go_nrepl

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	protocolLogCapacity = 1000
	hexDumpLimit        = 256
)

// ProtocolDebugger keeps a bounded log of the frames that crossed the wire
// and the details of the last connection loss. Violations are also dumped
// to files under the dump directory for offline inspection.
type ProtocolDebugger struct {
	mu             sync.RWMutex
	enabled        bool
	dumpDir        string
	messageLog     []ProtocolMessage
	disconnectInfo *DisconnectInfo
}

// ProtocolMessage records one framed message.
type ProtocolMessage struct {
	Timestamp time.Time
	Direction string // "SENT" or "RECEIVED"
	Op        string
	OpName    string
	ID        string
	SessionID string
	Status    []string
	Size      int
	HexDump   string // first 256 bytes
}

// DisconnectInfo captures why a connection went away.
type DisconnectInfo struct {
	Timestamp time.Time
	Reason    string
	RawBytes  []byte // the chunk that broke framing, if any
	HexDump   string
	FilePath  string
}

// NewProtocolDebugger creates a disabled protocol debugger.
func NewProtocolDebugger() *ProtocolDebugger {
	return &ProtocolDebugger{
		dumpDir:    filepath.Join(os.TempDir(), "go-nrepl-debug"),
		messageLog: make([]ProtocolMessage, 0, 64),
	}
}

// Enable enables protocol debugging.
func (pd *ProtocolDebugger) Enable() {
	pd.mu.Lock()
	defer pd.mu.Unlock()
	pd.enabled = true

	if err := os.MkdirAll(pd.dumpDir, 0o755); err != nil {
		Error("Failed to create debug dump directory: %v", err)
	}
}

// Disable disables protocol debugging.
func (pd *ProtocolDebugger) Disable() {
	pd.mu.Lock()
	defer pd.mu.Unlock()
	pd.enabled = false
}

// IsEnabled returns whether debugging is enabled.
func (pd *ProtocolDebugger) IsEnabled() bool {
	pd.mu.RLock()
	defer pd.mu.RUnlock()
	return pd.enabled
}

// SetDumpDir sets the directory for dumps.
func (pd *ProtocolDebugger) SetDumpDir(dir string) {
	pd.mu.Lock()
	defer pd.mu.Unlock()
	pd.dumpDir = dir
	if pd.enabled {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			Error("Failed to create debug dump directory: %v", err)
		}
	}
}

// DumpDir returns the directory dumps are written to.
func (pd *ProtocolDebugger) DumpDir() string {
	pd.mu.RLock()
	defer pd.mu.RUnlock()
	return pd.dumpDir
}

// LogMessage records a message. raw may be nil, in which case the message
// is re-encoded for the dump.
func (pd *ProtocolDebugger) LogMessage(direction string, msg *Message, raw []byte) {
	if pd == nil || !pd.IsEnabled() || msg == nil {
		return
	}
	if raw == nil {
		raw, _ = msg.Encode()
	}

	entry := ProtocolMessage{
		Timestamp: time.Now(),
		Direction: direction,
		Op:        msg.Op(),
		OpName:    getOpName(msg.Op()),
		ID:        msg.ID(),
		SessionID: msg.Session(),
		Status:    msg.Status(),
		Size:      len(raw),
		HexDump:   hex.Dump(raw[:min(hexDumpLimit, len(raw))]),
	}

	pd.mu.Lock()
	pd.messageLog = append(pd.messageLog, entry)
	if len(pd.messageLog) > protocolLogCapacity {
		pd.messageLog = pd.messageLog[len(pd.messageLog)-protocolLogCapacity:]
	}
	pd.mu.Unlock()

	Debug("[%s] nREPL %s id=%s session=%s: %d bytes", direction, entry.OpName, entry.ID, entry.SessionID, entry.Size)
}

// RecordDisconnect records a connection loss. When rawBytes is non-empty
// it is also written to a file in the dump directory.
func (pd *ProtocolDebugger) RecordDisconnect(reason string, rawBytes []byte) {
	if pd == nil {
		return
	}
	pd.mu.Lock()
	defer pd.mu.Unlock()

	if !pd.enabled {
		return
	}

	info := &DisconnectInfo{
		Timestamp: time.Now(),
		Reason:    reason,
		RawBytes:  append([]byte(nil), rawBytes...),
		HexDump:   hex.Dump(rawBytes),
	}

	if len(rawBytes) > 0 {
		ts := info.Timestamp.Format("20060102-150405.000")
		path := filepath.Join(pd.dumpDir, fmt.Sprintf("Disconnect-%s.txt", ts))
		content := fmt.Sprintf("Disconnect\n==========\nTimestamp: %v\nReason: %s\n\nRaw bytes (%d bytes):\n%s",
			info.Timestamp.Format(time.RFC3339), reason, len(rawBytes), info.HexDump)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			Error("Failed to write disconnect dump: %v", err)
		} else {
			info.FilePath = path
		}
	}
	pd.disconnectInfo = info
}

// GetMessageLog returns up to limit of the most recent messages; limit <= 0
// returns all of them.
func (pd *ProtocolDebugger) GetMessageLog(limit int) []ProtocolMessage {
	pd.mu.RLock()
	defer pd.mu.RUnlock()

	if limit <= 0 || limit > len(pd.messageLog) {
		limit = len(pd.messageLog)
	}
	result := make([]ProtocolMessage, limit)
	copy(result, pd.messageLog[len(pd.messageLog)-limit:])
	return result
}

// GetDisconnectInfo returns the last disconnect, or nil.
func (pd *ProtocolDebugger) GetDisconnectInfo() *DisconnectInfo {
	pd.mu.RLock()
	defer pd.mu.RUnlock()
	return pd.disconnectInfo
}

// DiagnosticReport renders the message log tail and the last disconnect.
func (pd *ProtocolDebugger) DiagnosticReport() string {
	pd.mu.RLock()
	defer pd.mu.RUnlock()

	if !pd.enabled {
		return "Protocol debugging is disabled"
	}

	var b strings.Builder
	b.WriteString("=== Protocol Debug Report ===\n")
	fmt.Fprintf(&b, "Dump directory: %s\n", pd.dumpDir)
	fmt.Fprintf(&b, "Messages logged: %d\n\n", len(pd.messageLog))

	b.WriteString("Recent Messages (last 20):\n")
	for _, msg := range pd.messageLog[max(0, len(pd.messageLog)-20):] {
		fmt.Fprintf(&b, "  [%s] %s %s id=%s (%d bytes)",
			msg.Timestamp.Format("15:04:05.000"), msg.Direction, msg.OpName, msg.ID, msg.Size)
		if len(msg.Status) > 0 {
			fmt.Fprintf(&b, " status=%s", strings.Join(msg.Status, ","))
		}
		b.WriteByte('\n')
	}

	if pd.disconnectInfo != nil {
		b.WriteString("\nLast Disconnect:\n")
		fmt.Fprintf(&b, "  Time: %v\n", pd.disconnectInfo.Timestamp.Format(time.RFC3339))
		fmt.Fprintf(&b, "  Reason: %s\n", pd.disconnectInfo.Reason)
		if pd.disconnectInfo.FilePath != "" {
			fmt.Fprintf(&b, "  File: %s\n", pd.disconnectInfo.FilePath)
		}
	}
	return b.String()
}

// DebugConfig holds debugging configuration options.
type DebugConfig struct {
	EnableMessageStats  bool
	EnableProtocolDebug bool
	DumpDirectory       string // empty keeps the current directory
}

// DefaultDebugConfig enables everything.
func DefaultDebugConfig() *DebugConfig {
	return &DebugConfig{
		EnableMessageStats:  true,
		EnableProtocolDebug: true,
	}
}

// EnableAllDebugging enables all debugging features with DefaultDebugConfig.
func (c *Client) EnableAllDebugging() error {
	return c.EnableDebugging(DefaultDebugConfig())
}

// EnableDebugging enables the debugging features config selects.
func (c *Client) EnableDebugging(config *DebugConfig) error {
	if err := c.ensureInitialized(); err != nil {
		return err
	}
	if config == nil {
		return ErrInvalidArgument
	}

	if config.EnableMessageStats {
		c.stats.Enable()
	}
	if config.EnableProtocolDebug {
		if config.DumpDirectory != "" {
			c.conn.debug.SetDumpDir(config.DumpDirectory)
		}
		c.conn.debug.Enable()
	}

	Info("nREPL debugging enabled: stats=%v, protocol=%v",
		config.EnableMessageStats, config.EnableProtocolDebug)
	return nil
}

// DisableAllDebugging disables all debugging features.
func (c *Client) DisableAllDebugging() {
	if c.ensureInitialized() != nil {
		return
	}
	c.stats.Disable()
	c.conn.debug.Disable()
}

// GetProtocolDebugger returns the protocol debugger.
func (c *Client) GetProtocolDebugger() *ProtocolDebugger {
	if c.ensureInitialized() != nil {
		return nil
	}
	return c.conn.debug
}

// PrintFullDiagnostics logs the client snapshot and the protocol report.
func (c *Client) PrintFullDiagnostics() {
	if err := c.ensureInitialized(); err != nil {
		Error("Cannot print diagnostics: %v", err)
		return
	}

	Info("==========================================")
	Info("    nREPL FULL DIAGNOSTIC REPORT")
	Info("==========================================")
	Info("\n%s", c.Diagnostics())
	if c.conn.debug.IsEnabled() {
		Info("\n%s", c.conn.debug.DiagnosticReport())
	}
	Info("==========================================")
}
