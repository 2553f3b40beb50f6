package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "companytrigger"

// Outcome label values.
const (
	OutcomeSuccess      = "success"
	OutcomeInvalidInput = "invalid_input"
	OutcomeReadFailure  = "read_failure"
	OutcomeWriteFailure = "write_failure"
)

// Registry is the registry all trigger metrics are registered with.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

var (
	// Invocations counts handler invocations by outcome.
	Invocations = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invocations_total",
			Help:      "Company creation handler invocations by outcome",
		},
		[]string{"outcome"},
	)

	// RecordUpdatesSkipped counts invocations whose record was already gone.
	RecordUpdatesSkipped = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "record_updates_skipped_total",
			Help:      "Invocations that skipped the record update because the record no longer existed",
		},
	)

	// HandlerDuration records end-to-end handler latency.
	HandlerDuration = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "handler_duration_seconds",
			Help:      "Company creation handler duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	// Deliveries counts event deliveries by result (handled, retried, dropped, skipped).
	Deliveries = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Creation event deliveries by result",
		},
		[]string{"result"},
	)
)
