package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/replyflow"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of replyflow",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "replyflow version %s\n", strings.TrimSpace(replyflow.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
