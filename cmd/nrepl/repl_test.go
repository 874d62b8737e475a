package main

import (
	"bytes"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	nrepl "github.com/piggyback-repl/go-nrepl"
)

func TestFormComplete(t *testing.T) {
	tests := []struct {
		code string
		want bool
	}{
		{"(+ 1 2)", true},
		{"42", true},
		{"(defn f [x]", false},
		{"(defn f [x]\n  (inc x))", true},
		{`(str "(")`, true},
		{`(str "\"(")`, true},
		{`(str "open`, false},
		{`(list \( 1)`, true},
		{"(+ 1 ; (\n 2)", true},
		{"{:a [1 2]", false},
		{")", true},
	}
	for _, tt := range tests {
		if got := formComplete(tt.code); got != tt.want {
			t.Errorf("formComplete(%q) = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func collectInputs(t *testing.T, in string) []replInput {
	t.Helper()
	ch := make(chan replInput)
	go readInputs(strings.NewReader(in), ch)

	var got []replInput
	for {
		select {
		case v := <-ch:
			got = append(got, v)
			if _, ok := v.(quitInput); ok {
				return got
			}
		case <-time.After(2 * time.Second):
			t.Fatal("readInputs never sent quitInput")
		}
	}
}

func TestReadInputs(t *testing.T) {
	got := collectInputs(t, "(+ 1 2)\n\n(defn f [x]\n  x)\n(unfinished")
	want := []replInput{
		submitInput{code: "(+ 1 2)"},
		submitInput{code: "(defn f [x]\n  x)"},
		submitInput{code: "(unfinished"},
		quitInput{},
	}
	assert.Equal(t, want, got)
}

func TestReadCode(t *testing.T) {
	code, err := readCode([]string{"(+ 1 2)"}, strings.NewReader("ignored"))
	require.NoError(t, err)
	assert.Equal(t, "(+ 1 2)", code)

	code, err = readCode([]string{"-"}, strings.NewReader("  (inc 1)\n"))
	require.NoError(t, err)
	assert.Equal(t, "(inc 1)", code)

	_, err = readCode(nil, strings.NewReader("   "))
	assert.Error(t, err)
}

func TestReplIdleInputs(t *testing.T) {
	var out bytes.Buffer
	r := &repl{stdout: &out, stderr: &out, ns: "user", results: make(chan evalOutcome, 1)}

	inputs := make(chan replInput, 2)
	inputs <- interruptInput{}
	inputs <- quitInput{}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, r.run(ctx, inputs))
	assert.Equal(t, "user=> \nuser=> \n", out.String())
}

// cloneServer answers clone and close and ignores everything else.
func cloneServer(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				framer := nrepl.NewFramer(0)
				buf := make([]byte, 4096)
				for {
					n, err := conn.Read(buf)
					if err != nil {
						return
					}
					msgs, ferr := framer.Feed(buf[:n])
					for _, req := range msgs {
						if req.Op() != nrepl.OP_CLONE && req.Op() != nrepl.OP_CLOSE {
							continue
						}
						resp := (&nrepl.Message{Dict: nrepl.NewDict()}).
							With(nrepl.KEY_ID, req.ID()).
							With(nrepl.KEY_NEW_SESSION, "s1")
						resp.Set(nrepl.KEY_STATUS, nrepl.List{nrepl.String(nrepl.STATUS_DONE)})
						data, _ := resp.Encode()
						conn.Write(data)
					}
					if ferr != nil {
						return
					}
				}
			}()
		}
	}()
	return ln.Addr().String()
}

func TestReplFailedSubmitsDoNotBlock(t *testing.T) {
	addr := cloneServer(t)
	client, err := nrepl.NewClientWithConfig(nrepl.DefaultConfig(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, client.ConnectAddress(ctx, addr, time.Second))
	session, err := client.NewSession(ctx)
	require.NoError(t, err)

	var stdout, stderr bytes.Buffer
	r := &repl{session: session, stdout: &stdout, stderr: &stderr, ns: "user", results: make(chan evalOutcome, 1)}

	// Empty code is rejected before anything is sent.
	inputs := make(chan replInput, 3)
	inputs <- submitInput{code: ""}
	inputs <- submitInput{code: ""}
	inputs <- quitInput{}

	done := make(chan error, 1)
	go func() { done <- r.run(ctx, inputs) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("repl blocked after failed submits")
	}
	assert.Equal(t, 2, strings.Count(stderr.String(), "\n"))
	assert.Equal(t, "user=> user=> user=> \n", stdout.String())
}
