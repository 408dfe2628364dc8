package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	httpadapter "github.com/aretw0/replyflow/pkg/adapters/http"
	"github.com/prometheus/client_golang/prometheus"
)

// ShutdownTimeout is how long in-flight requests get once ctx is cancelled.
const ShutdownTimeout = 5 * time.Second

// OpsHandler builds the metrics and health router for rt. A Redis session
// store adds a readiness check.
func OpsHandler(rt *Runtime, gatherer prometheus.Gatherer) http.Handler {
	checks := map[string]httpadapter.Check{}
	if rt.Redis != nil {
		checks["redis"] = func(ctx context.Context) error {
			return rt.Redis.Client().Ping(ctx).Err()
		}
	}
	return httpadapter.NewHandler(httpadapter.Options{
		Gatherer: gatherer,
		Checks:   checks,
		Logger:   rt.Logger,
	})
}

// Serve runs handler on ln until ctx is cancelled, then shuts down gracefully.
func Serve(ctx context.Context, ln net.Listener, handler http.Handler) error {
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- srv.Serve(ln)
	}()

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		_ = srv.Close()
		return fmt.Errorf("graceful shutdown did not complete in %v: %w", ShutdownTimeout, err)
	}
	if err := <-serverErrors; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
