package main

import (
	"io"

	"github.com/aretw0/replyflow/internal/cli"
	"github.com/aretw0/replyflow/internal/config"
	"github.com/aretw0/replyflow/pkg/ports"
	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:     "sessions",
	Aliases: []string{"session"},
	Short:   "Manage stored sessions",
	Long:    `List, inspect and remove sessions kept by the configured file or redis store. Inspect masks the keys listed in store.redact_keys.`,
}

var sessionsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List stored sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cli.OpenSessionStore, func(store ports.SessionStore) error {
			return cli.ListSessions(cmd.Context(), store, cmd.OutOrStdout())
		})
	},
}

var sessionsInspectCmd = &cobra.Command{
	Use:   "inspect <session-id>",
	Short: "Print a session as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cli.OpenRedactedStore, func(store ports.SessionStore) error {
			return cli.InspectSession(cmd.Context(), store, args[0], cmd.OutOrStdout())
		})
	},
}

var sessionsRmCmd = &cobra.Command{
	Use:   "rm <session-id>...",
	Short: "Remove one or more sessions",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cli.OpenSessionStore, func(store ports.SessionStore) error {
			return cli.RemoveSessions(cmd.Context(), store, args, cmd.OutOrStdout())
		})
	},
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(sessionsLsCmd, sessionsInspectCmd, sessionsRmCmd)
}

type storeOpener func(*config.Config) (ports.SessionStore, io.Closer, error)

// withStore opens the configured session store for the duration of fn.
func withStore(open storeOpener, fn func(ports.SessionStore) error) error {
	store, closer, err := open(cfg)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}
	return fn(store)
}
