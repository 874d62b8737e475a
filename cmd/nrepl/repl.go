package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/go-i2p/logger"
	"github.com/spf13/cobra"

	nrepl "github.com/piggyback-repl/go-nrepl"
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Start an interactive session",
	Long: `Start an interactive read-eval-print loop in a fresh server session.
Forms spanning several lines are sent once their brackets balance.
Ctrl-C interrupts the running evaluation; Ctrl-D quits.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		client, err := getClient(ctx)
		if err != nil {
			return err
		}
		defer closeClient(client)

		session, err := client.NewSession(ctx)
		if err != nil {
			return err
		}

		inputs := make(chan replInput)
		go readInputs(cmd.InOrStdin(), inputs)

		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, os.Interrupt)
		defer signal.Stop(sigs)
		go func() {
			for range sigs {
				inputs <- interruptInput{}
			}
		}()

		r := &repl{
			session: session,
			stdout:  cmd.OutOrStdout(),
			stderr:  cmd.ErrOrStderr(),
			ns:      "user",
			results: make(chan evalOutcome, 1),
		}
		return r.run(ctx, inputs)
	},
}

// replInput is what the loop reacts to. The set is closed: submitInput,
// interruptInput and quitInput.
type replInput interface {
	replInput()
}

// submitInput is one complete form typed by the user.
type submitInput struct {
	code string
}

// interruptInput is a Ctrl-C.
type interruptInput struct{}

// quitInput is end of input.
type quitInput struct{}

func (submitInput) replInput()    {}
func (interruptInput) replInput() {}
func (quitInput) replInput()      {}

var errSessionLost = errors.New("session lost with the connection")

type evalOutcome struct {
	ns  string
	err error
}

type repl struct {
	session *nrepl.Session
	stdout  io.Writer
	stderr  io.Writer
	ns      string

	running *nrepl.EvalStream
	queue   []string
	results chan evalOutcome
}

func (r *repl) prompt() {
	fmt.Fprintf(r.stdout, "%s=> ", r.ns)
}

// run handles inputs until quitInput. Forms submitted while an evaluation
// is running are queued and sent in order.
func (r *repl) run(ctx context.Context, inputs <-chan replInput) error {
	r.prompt()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case out := <-r.results:
			r.running = nil
			if out.ns != "" {
				r.ns = out.ns
			}
			if out.err != nil {
				fmt.Fprintln(r.stderr, out.err)
				if r.session.IsClosed() {
					return out.err
				}
			}
			if len(r.queue) > 0 {
				code := r.queue[0]
				r.queue = r.queue[1:]
				if !r.start(ctx, code) {
					return errSessionLost
				}
				continue
			}
			r.prompt()

		case in := <-inputs:
			switch in := in.(type) {
			case submitInput:
				if r.running != nil {
					r.queue = append(r.queue, in.code)
					continue
				}
				if !r.start(ctx, in.code) {
					return errSessionLost
				}

			case interruptInput:
				r.queue = nil
				if r.running == nil {
					fmt.Fprintln(r.stdout)
					r.prompt()
					continue
				}
				if err := r.session.Interrupt(ctx, r.running.ID()); err != nil {
					log.WithFields(logger.Fields{
						"at":    "nrepl.repl.run",
						"id":    r.running.ID(),
						"error": err,
					}).Warn("interrupt_failed")
				}

			case quitInput:
				if r.running != nil {
					r.running.Close()
				}
				fmt.Fprintln(r.stdout)
				return nil

			default:
				return fmt.Errorf("unexpected repl input %T", in)
			}
		}
	}
}

// start sends code, or reports why it could not and shows the prompt
// again. It returns false when the session is gone for good.
func (r *repl) start(ctx context.Context, code string) bool {
	stream, err := r.session.Eval(ctx, code)
	if err != nil {
		fmt.Fprintln(r.stderr, err)
		if r.session.IsClosed() {
			return false
		}
		r.prompt()
		return true
	}
	r.running = stream
	go func() {
		ns := ""
		err := printEvents(ctx, stream, r.stdout, r.stderr, &ns)
		r.results <- evalOutcome{ns: ns, err: err}
	}()
	return true
}

// readInputs turns lines from in into submitInputs, joining lines until
// the form is complete, and ends with quitInput.
func readInputs(in io.Reader, inputs chan<- replInput) {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), nrepl.NREPL_MAX_MESSAGE_SIZE)
	var pending strings.Builder
	for scanner.Scan() {
		if pending.Len() > 0 {
			pending.WriteByte('\n')
		}
		pending.WriteString(scanner.Text())
		code := pending.String()
		if strings.TrimSpace(code) == "" {
			pending.Reset()
			continue
		}
		if formComplete(code) {
			inputs <- submitInput{code: code}
			pending.Reset()
		}
	}
	if code := strings.TrimSpace(pending.String()); code != "" {
		inputs <- submitInput{code: code}
	}
	inputs <- quitInput{}
}

// formComplete reports whether every bracket opened in code is closed,
// ignoring brackets inside strings, character literals and comments.
func formComplete(code string) bool {
	depth := 0
	inString := false
	for i := 0; i < len(code); i++ {
		ch := code[i]
		switch {
		case inString:
			switch ch {
			case '\\':
				i++
			case '"':
				inString = false
			}
		case ch == '"':
			inString = true
		case ch == '\\':
			i++
		case ch == ';':
			for i < len(code) && code[i] != '\n' {
				i++
			}
		case ch == '(' || ch == '[' || ch == '{':
			depth++
		case ch == ')' || ch == ']' || ch == '}':
			depth--
		}
	}
	return !inString && depth <= 0
}
