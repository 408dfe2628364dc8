package main

import (
	"context"
	"os"

	"github.com/aretw0/replyflow"
	"github.com/aretw0/replyflow/internal/cli"
	"github.com/aretw0/replyflow/internal/presentation/tui"
	"github.com/aretw0/replyflow/pkg/domain"
	"github.com/spf13/cobra"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate <file>",
	Short: "Chat with a template version as a simulated customer",
	Long: `Deploys the template version in the file as an inactive instance and opens a
preview session. Type messages as the customer; /timeline shows the session
events, /transcript the messages, /reset starts over and /quit exits.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("persona")
		locale, _ := cmd.Flags().GetString("locale")
		quiet, _ := cmd.Flags().GetBool("quiet")

		sigCtx := cli.NewSignalContext(context.Background())
		defer sigCtx.Cancel()

		rt, err := cli.BuildRuntime(sigCtx, cfg, logger, nil)
		if err != nil {
			return err
		}
		defer rt.Close()

		out := cmd.OutOrStdout()
		if !quiet && tui.IsTerminal(os.Stdout) {
			tui.PrintBanner(out, replyflow.Version)
		}
		return cli.Simulate(sigCtx, rt, cli.SimulateOptions{
			File:    args[0],
			Persona: domain.Persona{Name: name, Locale: locale},
			In:      cmd.InOrStdin(),
			Out:     out,
			Render:  tui.NewRenderer(os.Stdout),
		})
	},
}

func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().String("persona", "", "Name of the simulated customer")
	simulateCmd.Flags().String("locale", "", "Locale of the simulated customer")
	simulateCmd.Flags().BoolP("quiet", "q", false, "Do not print the banner")
}
