package main

import (
	"github.com/aretw0/replyflow/internal/cli"
	"github.com/aretw0/replyflow/pkg/ports"
	"github.com/spf13/cobra"
)

var graphCmd = &cobra.Command{
	Use:   "graph <file>",
	Short: "Export the flow graph as a Mermaid diagram",
	Long:  `Outputs a Mermaid flowchart (graph TD) of a template version. With --session, the path of a stored session is highlighted.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID, _ := cmd.Flags().GetString("session")
		var store ports.SessionStore
		if sessionID != "" {
			s, closer, err := cli.OpenSessionStore(cfg)
			if err != nil {
				return err
			}
			if closer != nil {
				defer closer.Close()
			}
			store = s
		}
		return cli.Graph(cmd.Context(), args[0], store, sessionID, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().String("session", "", "Highlight the path of this session")
}
