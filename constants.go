package go_nrepl

import "time"

// nREPL Client Constants
//
// Values follow the nREPL wire protocol as implemented by nrepl/nrepl 1.x.
// The protocol itself has no version handshake; capabilities are discovered
// through the "describe" op.
const (
	NREPL_CLIENT_VERSION = "0.3.0"
	NREPL_DEFAULT_HOST   = "localhost"
	NREPL_DEFAULT_PORT   = 7888

	// NREPL_MAX_MESSAGE_SIZE bounds a single decoded message. Larger frames are
	// treated as a protocol violation so a hostile or broken peer cannot make
	// the framing buffer grow without bound.
	NREPL_MAX_MESSAGE_SIZE = 64 * 1024 * 1024

	// NREPL_READ_CHUNK_SIZE is the size of each socket read.
	NREPL_READ_CHUNK_SIZE = 16 * 1024

	NREPL_MAX_SESSIONS_PER_CLIENT = 64

	NREPL_DEFAULT_CONNECT_TIMEOUT = 5 * time.Second
	NREPL_SHUTDOWN_TIMEOUT        = 5 * time.Second
)

// nREPL Operation Constants
const (
	OP_CLONE       = "clone"
	OP_CLOSE       = "close"
	OP_DESCRIBE    = "describe"
	OP_EVAL        = "eval"
	OP_INTERRUPT   = "interrupt"
	OP_LS_SESSIONS = "ls-sessions"
)

// nREPL Message Keys
const (
	KEY_OP           = "op"
	KEY_ID           = "id"
	KEY_SESSION      = "session"
	KEY_CODE         = "code"
	KEY_VALUE        = "value"
	KEY_NS           = "ns"
	KEY_OUT          = "out"
	KEY_ERR          = "err"
	KEY_EX           = "ex"
	KEY_ROOT_EX      = "root-ex"
	KEY_STATUS       = "status"
	KEY_NEW_SESSION  = "new-session"
	KEY_INTERRUPT_ID = "interrupt-id"
	KEY_SESSIONS     = "sessions"
	KEY_OPS          = "ops"
	KEY_VERSIONS     = "versions"
	KEY_FILE         = "file"
	KEY_LINE         = "line"
	KEY_COLUMN       = "column"
)

// nREPL Status Constants
//
// A response's "status" is a list of these flags. "done" marks the last
// message of a request; the others may accompany it or precede it.
const (
	STATUS_DONE                  = "done"
	STATUS_ERROR                 = "error"
	STATUS_EVAL_ERROR            = "eval-error"
	STATUS_INTERRUPTED           = "interrupted"
	STATUS_SESSION_IDLE          = "session-idle"
	STATUS_SESSION_CLOSED        = "session-closed"
	STATUS_UNKNOWN_SESSION       = "unknown-session"
	STATUS_UNKNOWN_OP            = "unknown-op"
	STATUS_INTERRUPT_ID_MISMATCH = "interrupt-id-mismatch"
	STATUS_NEED_INPUT            = "need-input"
)

// Log levels accepted by LogInit.
const (
	DEBUG   = iota + 1
	INFO
	WARNING
	ERROR
	FATAL
)
