package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/replyflow/internal/cli"
	"github.com/aretw0/replyflow/internal/config"
	"github.com/spf13/cobra"
)

var (
	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "replyflow",
	Short: "Conversational automation flow engine",
	Long: `replyflow validates, previews and serves conversational automations
for business messaging accounts.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("config")
		loaded, err := config.Load(config.Options{File: file, Flags: cmd.Flags()})
		if err != nil {
			return err
		}
		l, err := cli.NewLogger(loaded.Log, os.Stderr)
		if err != nil {
			return err
		}
		cfg, logger = loaded, l
		return nil
	},
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	def := config.Default()
	f := rootCmd.PersistentFlags()
	f.String("config", "", "YAML configuration file")
	f.String("log-level", def.Log.Level, "Log level: debug, info, warn or error")
	f.String("log-format", def.Log.Format, "Log format: text or json")
	f.String("store", def.Store.Backend, "Session store: memory, file or redis")
	f.String("store-path", def.Store.Path, "Directory of the file session store")
	f.String("redis-addr", def.Redis.Addr, "Redis address of the redis session store")
	f.String("metrics-addr", def.Metrics.Addr, "Listen address of the metrics server")
	f.Int("max-hops", def.Engine.MaxHops, "Maximum nodes one turn may chain through")
	f.Int("history-limit", def.Engine.HistoryLimit, "Transcript messages given to AI nodes")
	f.String("ai-provider", "", "Default model provider: genai or openai")
	f.String("deferral-reply", def.Engine.DeferralMessage, "Reply sent when a model call fails")
}
