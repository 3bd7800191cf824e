package answer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/54b3r/coderag-go/internal/rag"
)

// Metrics holds the Prometheus metrics owned by the retrieval and answer
// path. It implements rag.Recorder. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	// retrievalResults counts results returned per retrieval source.
	retrievalResults *prometheus.CounterVec

	// retrievalErrors counts failed retrieval calls per source.
	retrievalErrors *prometheus.CounterVec

	// synthesisAttempts counts individual synthesizer calls, partitioned by
	// result: "ok", "quota", or "error".
	synthesisAttempts *prometheus.CounterVec

	// synthesisDuration records the latency of individual synthesizer calls.
	synthesisDuration prometheus.Histogram

	// answersTotal counts completed Answer calls by outcome.
	answersTotal *prometheus.CounterVec
}

// NewMetrics registers the answer metrics against reg. promauto.With(reg)
// keeps unit tests hermetic when they pass a fresh registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		retrievalResults: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coderag",
			Subsystem: "retrieval",
			Name:      "results_total",
			Help:      "Total number of chunks returned by each retrieval strategy.",
		}, []string{"source"}),

		retrievalErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coderag",
			Subsystem: "retrieval",
			Name:      "errors_total",
			Help:      "Total number of failed retrieval calls, partitioned by strategy.",
		}, []string{"source"}),

		synthesisAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coderag",
			Subsystem: "synthesis",
			Name:      "attempts_total",
			Help:      "Total number of answer model calls, partitioned by result.",
		}, []string{"result"}),

		synthesisDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "coderag",
			Subsystem: "synthesis",
			Name:      "duration_seconds",
			Help:      "Latency of individual answer model calls.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60},
		}),

		answersTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coderag",
			Subsystem: "answer",
			Name:      "total",
			Help:      "Total number of answered queries, partitioned by outcome.",
		}, []string{"outcome"}),
	}
}

// ObserveRetrieval implements rag.Recorder.
func (m *Metrics) ObserveRetrieval(source rag.Source, results int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.retrievalErrors.WithLabelValues(string(source)).Inc()
		return
	}
	m.retrievalResults.WithLabelValues(string(source)).Add(float64(results))
}

// observeAttempt records a single synthesizer call.
func (m *Metrics) observeAttempt(result string, seconds float64) {
	if m == nil {
		return
	}
	m.synthesisAttempts.WithLabelValues(result).Inc()
	m.synthesisDuration.Observe(seconds)
}

// observeOutcome records the outcome of an Answer call.
func (m *Metrics) observeOutcome(o Outcome) {
	if m == nil {
		return
	}
	m.answersTotal.WithLabelValues(string(o)).Inc()
}
