package go_nrepl

import (
	"context"
	"errors"
	"io"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventsFrom(t *testing.T) {
	tests := []struct {
		name string
		msg  *Message
		want []Event
	}{
		{
			name: "value",
			msg:  response("1").With(KEY_VALUE, "3").With(KEY_NS, "user"),
			want: []Event{ValueEvent{Value: "3", NS: "user"}},
		},
		{
			name: "empty value string",
			msg:  func() *Message { m := response("1"); m.Set(KEY_VALUE, String("")); return m }(),
			want: []Event{ValueEvent{}},
		},
		{
			name: "output then done",
			msg:  withStatus(response("1").With(KEY_OUT, "hello"), STATUS_DONE),
			want: []Event{OutputEvent{Text: "hello"}, DoneEvent{Status: []string{STATUS_DONE}}},
		},
		{
			name: "stderr",
			msg:  response("1").With(KEY_ERR, "oops"),
			want: []Event{ErrorOutputEvent{Text: "oops"}},
		},
		{
			name: "eval error",
			msg:  withStatus(response("1").With(KEY_EX, "E").With(KEY_ROOT_EX, "R"), STATUS_EVAL_ERROR),
			want: []Event{ErroredEvent{Err: &EvalError{RequestID: "1", Status: []string{STATUS_EVAL_ERROR}, Ex: "E", RootEx: "R"}}},
		},
		{
			name: "interrupted and done in one message",
			msg:  withStatus(response("1"), STATUS_INTERRUPTED, STATUS_DONE),
			want: []Event{
				ErroredEvent{Err: &EvalError{RequestID: "1", Status: []string{STATUS_INTERRUPTED, STATUS_DONE}}},
				DoneEvent{Status: []string{STATUS_INTERRUPTED, STATUS_DONE}},
			},
		},
		{
			name: "idle status carries nothing",
			msg:  withStatus(response("1"), STATUS_SESSION_IDLE),
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := eventsFrom(tt.msg)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("eventsFrom() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func newTestStream(msgs ...*Message) (*EvalStream, *mailbox) {
	mb := newMailbox(false)
	for _, m := range msgs {
		mb.push(m)
	}
	return &EvalStream{id: "1", mbox: mb}, mb
}

func TestEvalStreamEndsAtDone(t *testing.T) {
	stream, mb := newTestStream(
		response("1").With(KEY_OUT, "a"),
		response("1").With(KEY_VALUE, "42"),
		withStatus(response("1"), STATUS_DONE),
	)
	mb.finish()
	ctx := context.Background()

	var kinds []string
	for {
		ev, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		kinds = append(kinds, reflect.TypeOf(ev).Name())
	}
	assert.Equal(t, []string{"OutputEvent", "ValueEvent", "DoneEvent"}, kinds)
}

func TestEvalStreamFinishWithoutDone(t *testing.T) {
	stream, mb := newTestStream(response("1").With(KEY_VALUE, "1"))
	mb.finish()

	_, err := stream.Next(context.Background())
	require.NoError(t, err)
	_, err = stream.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestEvalStreamTerminalError(t *testing.T) {
	stream, mb := newTestStream(response("1").With(KEY_OUT, "partial"))
	mb.fail(ErrConnectionLost)

	res, err := stream.Collect(context.Background())
	assert.ErrorIs(t, err, ErrConnectionLost)
	assert.Equal(t, "partial", res.Out)
}

func TestEvalStreamContext(t *testing.T) {
	stream, mb := newTestStream()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := stream.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	mb.push(withStatus(response("1").With(KEY_VALUE, "ok"), STATUS_DONE))
	mb.finish()
	res, err := stream.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, res.Values)
}

func TestEvalStreamClose(t *testing.T) {
	stream, mb := newTestStream(response("1").With(KEY_VALUE, "dropped"))

	stream.Close()
	stream.Close()
	_, err := stream.Next(context.Background())
	assert.ErrorIs(t, err, ErrStreamClosed)

	// Late pushes are ignored.
	mb.push(response("1").With(KEY_VALUE, "late"))
	_, err = stream.Next(context.Background())
	assert.ErrorIs(t, err, ErrStreamClosed)
}

func TestEvalStreamCloseUnblocksNext(t *testing.T) {
	stream, _ := newTestStream()
	errc := make(chan error, 1)
	go func() {
		_, err := stream.Next(context.Background())
		errc <- err
	}()

	time.Sleep(20 * time.Millisecond)
	stream.Close()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrStreamClosed)
	case <-time.After(time.Second):
		t.Fatal("Close did not unblock Next")
	}
}

func TestEvalCollect(t *testing.T) {
	stream, mb := newTestStream(
		response("1").With(KEY_OUT, "line1\n"),
		response("1").With(KEY_ERR, "warn\n"),
		response("1").With(KEY_VALUE, "1").With(KEY_NS, "a"),
		response("1").With(KEY_OUT, "line2\n"),
		response("1").With(KEY_VALUE, "2").With(KEY_NS, "b"),
		withStatus(response("1").With(KEY_EX, "E"), STATUS_EVAL_ERROR),
		withStatus(response("1"), STATUS_DONE),
	)
	mb.finish()

	res, err := stream.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, res.Values)
	assert.Equal(t, "b", res.NS)
	assert.Equal(t, "line1\nline2\n", res.Out)
	assert.Equal(t, "warn\n", res.Err)
	require.NotNil(t, res.Error)
	assert.Equal(t, "E", res.Error.Ex)
	assert.Equal(t, []string{STATUS_DONE}, res.Status)
}

func TestEvalOptionsApply(t *testing.T) {
	msg := NewMessage(OP_EVAL)
	EvalOptions{NS: "user", Line: 3}.apply(msg)

	if got := msg.Str(KEY_NS); got != "user" {
		t.Errorf("ns = %q, want user", got)
	}
	if _, ok := msg.Get(KEY_FILE); ok {
		t.Error("empty file should not be sent")
	}
	if _, ok := msg.Get(KEY_COLUMN); ok {
		t.Error("zero column should not be sent")
	}
	if n, _ := msg.Int(KEY_LINE); n != 3 {
		t.Errorf("line = %d, want 3", n)
	}
}
