// Package http exposes the operational endpoints of a replyflow process:
// Prometheus metrics, liveness and readiness.
package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/aretw0/replyflow/internal/logging"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultCheckTimeout bounds every readiness check.
const DefaultCheckTimeout = 2 * time.Second

// Check reports whether a dependency is usable.
type Check func(ctx context.Context) error

// Options configures the handler.
type Options struct {
	// Gatherer serves /metrics. Nil uses the default registry.
	Gatherer prometheus.Gatherer
	// Checks run on /readyz, keyed by dependency name.
	Checks       map[string]Check
	CheckTimeout time.Duration
	Logger       *slog.Logger
}

// Readiness is the body of /readyz.
type Readiness struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// NewHandler builds the router.
func NewHandler(opts Options) http.Handler {
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if opts.CheckTimeout <= 0 {
		opts.CheckTimeout = DefaultCheckTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Get("/readyz", readiness(opts))
	return r
}

func readiness(opts Options) http.HandlerFunc {
	names := make([]string, 0, len(opts.Checks))
	for name := range opts.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		body := Readiness{Status: "ok"}
		code := http.StatusOK
		for _, name := range names {
			if body.Checks == nil {
				body.Checks = make(map[string]string, len(names))
			}
			ctx, cancel := context.WithTimeout(r.Context(), opts.CheckTimeout)
			err := opts.Checks[name](ctx)
			cancel()
			if err != nil {
				opts.Logger.Warn("readiness check failed", "check", name, "err", err)
				body.Checks[name] = err.Error()
				body.Status = "unavailable"
				code = http.StatusServiceUnavailable
				continue
			}
			body.Checks[name] = "ok"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		if err := json.NewEncoder(w).Encode(body); err != nil {
			opts.Logger.Error("failed to write readiness", "err", err)
		}
	}
}
