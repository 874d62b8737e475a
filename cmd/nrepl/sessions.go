package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List or close server sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := getClient(cmd.Context())
		if err != nil {
			return err
		}
		defer closeClient(client)

		ids, err := client.LsSessions(cmd.Context())
		if err != nil {
			return err
		}
		sort.Strings(ids)
		for _, id := range ids {
			fmt.Fprintln(cmd.OutOrStdout(), id)
		}
		return nil
	},
}

var sessionsCloseCmd = &cobra.Command{
	Use:   "close <session-id>...",
	Short: "Close sessions on the server",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		client, err := getClient(ctx)
		if err != nil {
			return err
		}
		defer closeClient(client)

		var failed []string
		for _, id := range args {
			if err := client.CloseSession(ctx, id); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", id, err)
				failed = append(failed, id)
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "closed %s\n", id)
		}
		if len(failed) > 0 {
			return fmt.Errorf("could not close %s", strings.Join(failed, ", "))
		}
		return nil
	},
}

var describeCmd = &cobra.Command{
	Use:   "describe",
	Short: "Show the ops and versions the server reports",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := getClient(cmd.Context())
		if err != nil {
			return err
		}
		defer closeClient(client)

		desc, err := client.Describe(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		names := make([]string, 0, len(desc.Versions))
		for name := range desc.Versions {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Fprintln(out, "versions:")
		for _, name := range names {
			fmt.Fprintf(out, "  %-10s %s\n", name, desc.Versions[name])
		}
		fmt.Fprintln(out, "ops:")
		for _, op := range desc.Ops {
			fmt.Fprintf(out, "  %s\n", op)
		}
		return nil
	},
}

func init() {
	sessionsCmd.AddCommand(sessionsCloseCmd)
}
