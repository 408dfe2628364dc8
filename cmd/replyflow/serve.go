package main

import (
	"context"
	"fmt"
	"net"

	"github.com/aretw0/replyflow/internal/cli"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the metrics and health server",
	Long:  `Builds the engine from the configuration and exposes /metrics, /healthz and /readyz until interrupted.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sigCtx := cli.NewSignalContext(context.Background())
		defer sigCtx.Cancel()

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

		rt, err := cli.BuildRuntime(sigCtx, cfg, logger, reg)
		if err != nil {
			return err
		}
		defer rt.Close()

		ln, err := net.Listen("tcp", cfg.Metrics.Addr)
		if err != nil {
			return fmt.Errorf("listen on %s: %w", cfg.Metrics.Addr, err)
		}
		logger.Info("serving", "addr", ln.Addr().String(), "store", cfg.Store.Backend)

		if err := cli.Serve(sigCtx, ln, cli.OpsHandler(rt, reg)); err != nil {
			return err
		}
		logger.Info("server stopped", "signal", fmt.Sprint(sigCtx.Signal()))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
