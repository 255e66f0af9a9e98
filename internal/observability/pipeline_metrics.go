package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	TranslationSQL           = "sql"
	TranslationFallback      = "fallback"
	TranslationProviderError = "provider_error"

	ExecutionOK       = "ok"
	ExecutionRejected = "rejected"
	ExecutionFailed   = "failed"
)

var (
	translationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askql_translations_total",
			Help: "Translations by outcome (sql, fallback, provider_error).",
		},
		[]string{"outcome"},
	)
	translationLatencySeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "askql_translation_latency_seconds",
			Help:    "End-to-end translation latency including provider retries.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16, 32},
		},
	)
	providerAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askql_provider_attempts_total",
			Help: "Provider calls by result (ok, retryable, fatal).",
		},
		[]string{"provider", "result"},
	)
	queryExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askql_query_executions_total",
			Help: "Generated statement executions by outcome (ok, rejected, failed).",
		},
		[]string{"outcome"},
	)
	queryDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "askql_query_duration_seconds",
			Help:    "Generated statement execution latency.",
			Buckets: prometheus.DefBuckets,
		},
	)
	queryRowsReturned = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "askql_query_rows_returned",
			Help:    "Rows materialized per successful execution.",
			Buckets: []float64{0, 1, 5, 10, 50, 100, 500, 1000, 5000},
		},
	)
	historyWriteFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "askql_history_write_failures_total",
			Help: "History records or result archives that could not be persisted.",
		},
	)
	schemaIntrospectionFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "askql_schema_introspection_failures_total",
			Help: "Schema snapshots that degraded to empty because introspection failed.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		translationsTotal,
		translationLatencySeconds,
		providerAttemptsTotal,
		queryExecutionsTotal,
		queryDurationSeconds,
		queryRowsReturned,
		historyWriteFailuresTotal,
		schemaIntrospectionFailuresTotal,
	)
}

func ObserveTranslation(outcome string, elapsed time.Duration) {
	translationsTotal.WithLabelValues(outcome).Inc()
	translationLatencySeconds.Observe(elapsed.Seconds())
}

func ObserveProviderAttempt(provider, result string) {
	providerAttemptsTotal.WithLabelValues(provider, result).Inc()
}

func ObserveExecution(outcome string, rows int, elapsed time.Duration) {
	queryExecutionsTotal.WithLabelValues(outcome).Inc()
	if outcome != ExecutionOK {
		return
	}
	queryDurationSeconds.Observe(elapsed.Seconds())
	queryRowsReturned.Observe(float64(rows))
}

func IncrementHistoryWriteFailure() {
	historyWriteFailuresTotal.Inc()
}

func IncrementSchemaIntrospectionFailure() {
	schemaIntrospectionFailuresTotal.Inc()
}
