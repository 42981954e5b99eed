// Package observability wires compass metrics and tracing.
package observability

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/compass-dev/compass/internal/consensus"
)

var (
	queriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "compass_queries_total",
			Help: "Total number of jury queries",
		},
	)

	queriesSuccessfulTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "compass_queries_successful_total",
			Help: "Jury queries where at least one model answered or consensus was reached",
		},
	)

	queriesFailedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "compass_queries_failed_total",
			Help: "Jury queries with no usable outcome",
		},
	)

	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compass_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	consensusUnanimousTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "compass_consensus_unanimous_total",
			Help: "Queries that ended unanimous",
		},
	)

	consensusSplitTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "compass_consensus_split_total",
			Help: "Queries that ended split",
		},
	)

	consensusNoConsensusTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "compass_consensus_no_consensus_total",
			Help: "Queries that ended without consensus",
		},
	)

	queryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "compass_query_duration_seconds",
			Help:    "End-to-end jury query duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"verdict"},
	)

	modelDispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compass_model_dispatch_total",
			Help: "Per-model dispatch outcomes",
		},
		[]string{"model", "status"},
	)

	modelDispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "compass_model_dispatch_duration_seconds",
			Help:    "Per-model call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"model"},
	)

	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "compass_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	requestsHandled atomic.Int64

	initOnce sync.Once
)

// InitMetrics registers all compass collectors. Safe to call more than once.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			queriesTotal,
			queriesSuccessfulTotal,
			queriesFailedTotal,
			requestsTotal,
			consensusUnanimousTotal,
			consensusSplitTotal,
			consensusNoConsensusTotal,
			queryDuration,
			modelDispatchTotal,
			modelDispatchDuration,
			requestDuration,
		)
	})
}

// MetricsHandler returns the Prometheus exposition handler.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// RecordQuery records one completed jury query.
func RecordQuery(success bool, verdict consensus.Verdict, duration time.Duration) {
	queriesTotal.Inc()
	if success {
		queriesSuccessfulTotal.Inc()
	} else {
		queriesFailedTotal.Inc()
	}
	switch verdict {
	case consensus.VerdictUnanimous:
		consensusUnanimousTotal.Inc()
	case consensus.VerdictSplit:
		consensusSplitTotal.Inc()
	case consensus.VerdictNoConsensus:
		consensusNoConsensusTotal.Inc()
	}
	queryDuration.WithLabelValues(string(verdict)).Observe(duration.Seconds())
}

// RecordModelDispatch records one model call within a fan-out.
func RecordModelDispatch(model string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	modelDispatchTotal.WithLabelValues(model, status).Inc()
	modelDispatchDuration.WithLabelValues(model).Observe(duration.Seconds())
}

// RecordHTTPRequest records one façade request and bumps the handled count
// reported to the control plane.
func RecordHTTPRequest(method, path, status string, duration time.Duration) {
	requestsTotal.WithLabelValues(method, path, status).Inc()
	requestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	requestsHandled.Add(1)
}

// RequestsHandled returns the number of façade requests served since start.
func RequestsHandled() int64 {
	return requestsHandled.Load()
}
