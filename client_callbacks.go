package go_nrepl

// ClientCallBacks lets an application observe events that do not belong
// to any single request. Callbacks run on their own goroutine and may call
// back into the Client.
type ClientCallBacks struct {
	Opaque interface{}

	// OnDisconnect is called when the connection drops without Close or
	// Disconnect having been called. err wraps ErrConnectionLost.
	OnDisconnect func(c *Client, err error, opaque interface{})

	// OnUnmatched receives responses whose id matches no pending request,
	// such as late output from an abandoned evaluation.
	OnUnmatched func(c *Client, msg *Message, opaque interface{})
}
