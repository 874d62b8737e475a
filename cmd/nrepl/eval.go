package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/go-i2p/logger"
	"github.com/spf13/cobra"

	nrepl "github.com/piggyback-repl/go-nrepl"
)

var evalFlags struct {
	NS      string
	File    string
	Line    int
	Session string
	Timeout time.Duration
}

var evalCmd = &cobra.Command{
	Use:   "eval [code]",
	Short: "Evaluate code and print its output and values",
	Long: `Evaluate code on the server. Without an argument, or with "-", the code
is read from standard input. Ctrl-C interrupts the evaluation.

The command exits non-zero when the server reports an evaluation error.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		code, err := readCode(args, cmd.InOrStdin())
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		if evalFlags.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, evalFlags.Timeout)
			defer cancel()
		}

		client, err := getClient(ctx)
		if err != nil {
			return err
		}
		defer closeClient(client)

		session, err := evalSession(ctx, client)
		if err != nil {
			return err
		}

		stream, err := session.EvalWithOptions(ctx, code, nrepl.EvalOptions{
			NS:   evalFlags.NS,
			File: evalFlags.File,
			Line: evalFlags.Line,
		})
		if err != nil {
			return err
		}
		defer stream.Close()

		stop := interruptOnSignal(session, stream)
		defer stop()

		return printEvents(ctx, stream, cmd.OutOrStdout(), cmd.ErrOrStderr(), nil)
	},
}

func init() {
	evalCmd.Flags().StringVar(&evalFlags.NS, "ns", "", "namespace to evaluate in")
	evalCmd.Flags().StringVar(&evalFlags.File, "file", "", "file name reported in error locations")
	evalCmd.Flags().IntVar(&evalFlags.Line, "line", 0, "line of the first form in --file")
	evalCmd.Flags().StringVarP(&evalFlags.Session, "session", "s", "", "evaluate in an existing server session")
	evalCmd.Flags().DurationVar(&evalFlags.Timeout, "eval-timeout", 0, "give up waiting after this long (0 waits forever)")
}

func readCode(args []string, stdin io.Reader) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		return args[0], nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	code := strings.TrimSpace(string(data))
	if code == "" {
		return "", errors.New("no code to evaluate")
	}
	return code, nil
}

// evalSession returns the session named by --session, or a fresh one that
// is closed together with the client.
func evalSession(ctx context.Context, client *nrepl.Client) (*nrepl.Session, error) {
	if evalFlags.Session == "" {
		return client.NewSession(ctx)
	}
	return client.AttachSession(ctx, evalFlags.Session)
}

// interruptOnSignal sends an interrupt for stream on every SIGINT until the
// returned function is called.
func interruptOnSignal(session *nrepl.Session, stream *nrepl.EvalStream) func() {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-sigs:
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				if err := session.Interrupt(ctx, stream.ID()); err != nil {
					log.WithFields(logger.Fields{
						"at":    "nrepl.interruptOnSignal",
						"id":    stream.ID(),
						"error": err,
					}).Warn("interrupt_failed")
				}
				cancel()
			case <-done:
				return
			}
		}
	}()
	return func() {
		signal.Stop(sigs)
		close(done)
	}
}

// printEvents writes a stream's events as they arrive. Values and *out* go
// to stdout, *err* to stderr. The namespace reported last is stored in ns
// when ns is non-nil. A server-side failure is returned after done.
func printEvents(ctx context.Context, stream *nrepl.EvalStream, stdout, stderr io.Writer, ns *string) error {
	var failure error
	for {
		ev, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			return failure
		}
		if err != nil {
			return err
		}
		switch e := ev.(type) {
		case nrepl.ValueEvent:
			fmt.Fprintln(stdout, e.Value)
			if ns != nil && e.NS != "" {
				*ns = e.NS
			}
		case nrepl.OutputEvent:
			fmt.Fprint(stdout, e.Text)
		case nrepl.ErrorOutputEvent:
			fmt.Fprint(stderr, e.Text)
		case nrepl.ErroredEvent:
			if failure == nil {
				failure = e.Err
			}
		case nrepl.DoneEvent:
		}
	}
}
