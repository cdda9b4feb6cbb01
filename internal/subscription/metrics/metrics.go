package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the subscription module.
// Tracks mutation outcomes, access denials, and mutation durations.
type Metrics struct {
	MutationsTotal    *prometheus.CounterVec
	MutationsDenied   *prometheus.CounterVec
	ResubmissionDrops prometheus.Counter
	MutationDuration  prometheus.Histogram
}

// New creates a new Metrics instance with all subscription module metrics registered.
func New() *Metrics {
	return &Metrics{
		MutationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "subport_mutations_total",
			Help: "Total number of successful subscription mutations by operation",
		}, []string{"operation"}),
		MutationsDenied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "subport_mutations_denied_total",
			Help: "Total number of rejected subscription mutations by operation and error code",
		}, []string{"operation", "code"}),
		ResubmissionDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "subport_resubmissions_dropped_total",
			Help: "Total number of duplicate form submissions absorbed by the token guard",
		}),
		MutationDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "subport_mutation_duration_seconds",
			Help:    "Duration of subscription mutation operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// IncrementMutation records a successful mutation.
func (m *Metrics) IncrementMutation(operation string) {
	m.MutationsTotal.WithLabelValues(operation).Inc()
}

// IncrementDenied records a rejected mutation with its error code.
func (m *Metrics) IncrementDenied(operation, code string) {
	m.MutationsDenied.WithLabelValues(operation, code).Inc()
}

// IncrementResubmissionDrop records a duplicate submission absorbed by the guard.
func (m *Metrics) IncrementResubmissionDrop() {
	m.ResubmissionDrops.Inc()
}

// ObserveMutation records the duration of a mutation operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveMutation(start time.Time) {
	m.MutationDuration.Observe(time.Since(start).Seconds())
}
