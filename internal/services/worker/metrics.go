package worker

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus instruments of the telemetry worker.
type Metrics struct {
	MessagesProcessed prometheus.Counter
	MessagesDropped   *prometheus.CounterVec
	MetricsPublished  prometheus.Counter
	CommandsIssued    prometheus.Counter
	BackoffEntered    prometheus.Counter
}

// NewMetrics creates and registers the worker metrics on registry. A nil
// registry yields unregistered (but usable) instruments for tests.
func NewMetrics(registry *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{
		MessagesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "etkc_worker_messages_processed_total",
			Help: "Telemetry messages that completed a control step",
		}),
		MessagesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "etkc_worker_messages_dropped_total",
			Help: "Telemetry messages dropped, by reason",
		}, []string{"reason"}),
		MetricsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "etkc_worker_metrics_published_total",
			Help: "Step results published to the metrics topic",
		}),
		CommandsIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "etkc_worker_commands_issued_total",
			Help: "Auto-mode irrigation commands published",
		}),
		BackoffEntered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "etkc_worker_backoff_total",
			Help: "Times the worker entered reconnect backoff",
		}),
	}
	if registry == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{
		m.MessagesProcessed, m.MessagesDropped, m.MetricsPublished, m.CommandsIssued, m.BackoffEntered,
	} {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("worker: register metrics: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) dropped(reason string) {
	if m != nil {
		m.MessagesDropped.WithLabelValues(reason).Inc()
	}
}
