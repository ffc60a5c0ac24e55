package distepi

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is ambient observability over a running Simulation (§4.18); it is
// never required by the simulation core and is only wired up by the CLI
// when a metrics address is configured.
type Metrics struct {
	TicksCompleted       prometheus.Counter
	TransmissionsFired    prometheus.Counter
	ActionsDrained        *prometheus.CounterVec // labeled by owning thread
	QueueDepth            prometheus.Gauge
	DependencyRecomputes prometheus.Counter
}

// NewMetrics registers every gauge/counter against a fresh registry so
// repeated test construction never collides with prometheus's global
// DefaultRegisterer.
func NewMetrics() (*Metrics, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		TicksCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "distepi_ticks_completed_total",
			Help: "Number of simulation ticks completed.",
		}),
		TransmissionsFired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "distepi_transmissions_fired_total",
			Help: "Number of transmission events that fired.",
		}),
		ActionsDrained: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "distepi_actions_drained_total",
			Help: "Number of actions fired during queue drain, by owning thread.",
		}, []string{"thread"}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "distepi_action_queue_depth",
			Help: "Pending action count at the current tick, last observed.",
		}),
		DependencyRecomputes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "distepi_dependency_recomputes_total",
			Help: "Number of dependency-graph computables recomputed.",
		}),
	}
	reg.MustRegister(m.TicksCompleted, m.TransmissionsFired, m.ActionsDrained, m.QueueDepth, m.DependencyRecomputes)
	return m, reg
}

// Serve starts the optional /metrics HTTP handler on addr, blocking until
// the server stops or fails (§4.18 "exposed only as an optional /metrics
// HTTP handler started by the CLI, never required by the simulation core
// itself").
func Serve(addr string, reg *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return http.ListenAndServe(addr, mux)
}
