package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-i2p/logger"
	"github.com/spf13/cobra"

	nrepl "github.com/piggyback-repl/go-nrepl"
)

// GlobalFlags are the flags shared by every subcommand.
type GlobalFlags struct {
	ConfigFile string
	Host       string
	Port       int
	Address    string
	Timeout    time.Duration
	TLS        bool
	Insecure   bool
	Verbose    bool
}

var (
	globalFlags GlobalFlags
	cfg         *nrepl.Config
	log         = logger.GetGoI2PLogger()
)

var rootCmd = &cobra.Command{
	Use:   "nrepl",
	Short: "Command line client for nREPL servers",
	Long: `nrepl talks to a running nREPL server over TCP, TLS or a unix socket.

The server is found from, in order: --address, --host/--port, the config
file (--config or GO_NREPL_CONF), NREPL_HOST/NREPL_PORT, and finally a
.nrepl-port file in the current directory or one of its parents.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if globalFlags.Verbose {
			nrepl.LogInit(nrepl.DEBUG)
		}
		var err error
		cfg, err = resolveConfig(cmd)
		return err
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&globalFlags.ConfigFile, "config", "c", "", "TOML config file (default: $GO_NREPL_CONF)")
	rootCmd.PersistentFlags().StringVar(&globalFlags.Host, "host", nrepl.NREPL_DEFAULT_HOST, "server host")
	rootCmd.PersistentFlags().IntVarP(&globalFlags.Port, "port", "p", 0, "server port (default: .nrepl-port or 7888)")
	rootCmd.PersistentFlags().StringVarP(&globalFlags.Address, "address", "a", "", "full server address: host:port, nrepl://, tls:// or unix://")
	rootCmd.PersistentFlags().DurationVar(&globalFlags.Timeout, "timeout", nrepl.NREPL_DEFAULT_CONNECT_TIMEOUT, "connect timeout")
	rootCmd.PersistentFlags().BoolVar(&globalFlags.TLS, "tls", false, "connect with TLS")
	rootCmd.PersistentFlags().BoolVar(&globalFlags.Insecure, "insecure", false, "skip TLS certificate verification")
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.Verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(evalCmd)
	rootCmd.AddCommand(replCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(describeCmd)
}

// resolveConfig merges the config file, the environment, a discovered
// .nrepl-port file and the command line flags, in increasing priority.
func resolveConfig(cmd *cobra.Command) (*nrepl.Config, error) {
	c, err := nrepl.LoadConfig(globalFlags.ConfigFile)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("host") {
		c.Host = globalFlags.Host
	}
	if flags.Changed("timeout") {
		c.ConnectTimeout = globalFlags.Timeout
	}
	if flags.Changed("tls") {
		c.TLS.Enabled = globalFlags.TLS
	}
	if flags.Changed("insecure") {
		c.TLS.Insecure = globalFlags.Insecure
	}

	switch {
	case flags.Changed("address"):
		c.Address = globalFlags.Address
	case flags.Changed("port"):
		c.Port = globalFlags.Port
	case c.Address == "" && c.Port == nrepl.NREPL_DEFAULT_PORT && os.Getenv("NREPL_PORT") == "":
		port, path, derr := nrepl.DiscoverPort(".")
		switch {
		case derr == nil:
			log.WithFields(logger.Fields{
				"at":   "nrepl.resolveConfig",
				"file": path,
				"port": port,
			}).Debug("discovered_port")
			c.Port = port
		case !errors.Is(derr, os.ErrNotExist):
			return nil, derr
		}
	}
	return c, c.Validate()
}

// getClient returns a client connected to the configured server.
func getClient(ctx context.Context) (*nrepl.Client, error) {
	client, err := nrepl.NewClientWithConfig(cfg, &nrepl.ClientCallBacks{
		OnDisconnect: func(c *nrepl.Client, err error, _ interface{}) {
			fmt.Fprintf(os.Stderr, "disconnected: %v\n", err)
		},
	})
	if err != nil {
		return nil, err
	}
	if err := client.ConnectConfigured(ctx); err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.DialAddress(), err)
	}
	return client, nil
}

func closeClient(client *nrepl.Client) {
	if err := client.Close(); err != nil {
		log.WithFields(logger.Fields{
			"at":    "nrepl.closeClient",
			"error": err,
		}).Warn("close_failed")
	}
}
