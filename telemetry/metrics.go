package telemetry

import "github.com/prometheus/client_golang/prometheus"

// Metrics is the set of Prometheus collectors spec.md §7 expects for the
// receive pipeline and event loop: decode/security failures, successful
// dispatches, state transitions, and event-loop backlog depth.
type Metrics struct {
	DecodeErrors        *prometheus.CounterVec
	SecurityErrors      *prometheus.CounterVec
	Dispatches          *prometheus.CounterVec
	StateTransitions    *prometheus.CounterVec
	PendingDelayedCalls prometheus.Gauge
}

// NewMetrics constructs and registers a Metrics set against reg. Pass
// prometheus.NewRegistry() in tests to avoid collisions with the global
// default registry across parallel test runs.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		DecodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "uapubsub",
			Subsystem: "pipeline",
			Name:      "decode_errors_total",
			Help:      "Count of NetworkMessages dropped during header or payload decode, by reason.",
		}, []string{"reason"}),
		SecurityErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "uapubsub",
			Subsystem: "pipeline",
			Name:      "security_errors_total",
			Help:      "Count of NetworkMessages dropped during decrypt/verify, by reason.",
		}, []string{"reason"}),
		Dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "uapubsub",
			Subsystem: "pipeline",
			Name:      "dispatches_total",
			Help:      "Count of DataSetMessages successfully dispatched to a DataSetReader.",
		}, []string{"reader_group", "reader"}),
		StateTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "uapubsub",
			Subsystem: "control",
			Name:      "state_transitions_total",
			Help:      "Count of entity state transitions, by entity kind and resulting state.",
		}, []string{"entity", "state"}),
		PendingDelayedCalls: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "uapubsub",
			Subsystem: "eventloop",
			Name:      "pending_delayed_callbacks",
			Help:      "Number of delayed callbacks queued but not yet invoked on the event loop.",
		}),
	}

	reg.MustRegister(m.DecodeErrors, m.SecurityErrors, m.Dispatches, m.StateTransitions, m.PendingDelayedCalls)
	return m
}
