package go_nrepl

import (
	"context"
	"sort"

	"github.com/samber/lo"
)

// ServerDescription is the server's answer to the describe op.
type ServerDescription struct {
	Ops      []string           // supported ops, sorted
	Versions map[string]Version // e.g. "nrepl", "clojure", "java"
	Aux      *Dict              // middleware-specific extras, if any
}

// SupportsOp reports whether the server advertises op.
func (d *ServerDescription) SupportsOp(op string) bool {
	return lo.Contains(d.Ops, op)
}

// Describe asks the server which ops and versions it supports.
func (c *Client) Describe(ctx context.Context) (*ServerDescription, error) {
	msgs, err := c.roundTrip(ctx, NewMessage(OP_DESCRIBE), "")
	if err != nil {
		return nil, err
	}

	desc := &ServerDescription{Versions: make(map[string]Version)}
	for _, m := range msgs {
		if v, ok := m.Get(KEY_OPS); ok {
			if ops, ok := v.(*Dict); ok {
				desc.Ops = ops.Keys()
				sort.Strings(desc.Ops)
			}
		}
		if v, ok := m.Get(KEY_VERSIONS); ok {
			if versions, ok := v.(*Dict); ok {
				versions.Range(func(name string, val Value) bool {
					desc.Versions[name] = versionFromValue(val)
					return true
				})
			}
		}
		if v, ok := m.Get("aux"); ok {
			desc.Aux, _ = v.(*Dict)
		}
		if m.isErrorStatus() {
			return desc, &EvalError{RequestID: m.ID(), Status: m.Status()}
		}
	}
	return desc, nil
}
