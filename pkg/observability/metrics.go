package observability

import (
	"context"

	"github.com/aretw0/replyflow/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors fed by the interpreter hooks.
type Metrics struct {
	turns          *prometheus.CounterVec
	nodeExecutions *prometheus.CounterVec
	providerErrors *prometheus.CounterVec
	turnDuration   *prometheus.HistogramVec
	statusChanges  *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
// A nil registerer leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "replyflow",
			Name:      "turns_total",
			Help:      "Turns processed, by channel and outcome.",
		}, []string{"channel", "outcome"}),
		nodeExecutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "replyflow",
			Name:      "node_executions_total",
			Help:      "Nodes executed, by node type.",
		}, []string{"node_type"}),
		providerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "replyflow",
			Name:      "provider_errors_total",
			Help:      "Model calls that failed and degraded the turn, by node type.",
		}, []string{"node_type"}),
		turnDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "replyflow",
			Name:      "turn_duration_seconds",
			Help:      "Wall time of a turn.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"channel"}),
		statusChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "replyflow",
			Name:      "status_changes_total",
			Help:      "Session status transitions.",
		}, []string{"from", "to"}),
	}
	if reg != nil {
		for _, c := range m.collectors() {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

// MustNewMetrics is NewMetrics that panics on registration errors.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	m, err := NewMetrics(reg)
	if err != nil {
		panic(err)
	}
	return m
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.turns, m.nodeExecutions, m.providerErrors, m.turnDuration, m.statusChanges}
}

// Hooks returns lifecycle hooks that update the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnTurnEnd: func(_ context.Context, e *domain.TurnEvent) {
			m.turns.WithLabelValues(string(e.Channel), e.Outcome).Inc()
			m.turnDuration.WithLabelValues(string(e.Channel)).Observe(e.Duration.Seconds())
		},
		OnNodeEnter: func(_ context.Context, e *domain.NodeEvent) {
			m.nodeExecutions.WithLabelValues(string(e.NodeType)).Inc()
		},
		OnProviderError: func(_ context.Context, e *domain.ProviderEvent) {
			m.providerErrors.WithLabelValues(string(e.NodeType)).Inc()
		},
		OnStatusChange: func(_ context.Context, e *domain.StatusEvent) {
			m.statusChanges.WithLabelValues(string(e.From), string(e.To)).Inc()
		},
	}
}
