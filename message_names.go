package go_nrepl

// getOpName returns a human-readable name for an nREPL op.
// This is useful for wire-level debugging and logging
func getOpName(op string) string {
	switch op {
	case OP_CLONE:
		return "Clone"
	case OP_CLOSE:
		return "Close"
	case OP_DESCRIBE:
		return "Describe"
	case OP_EVAL:
		return "Eval"
	case OP_INTERRUPT:
		return "Interrupt"
	case OP_LS_SESSIONS:
		return "LsSessions"
	case "":
		return "Response"
	default:
		return "Unknown(" + op + ")"
	}
}
