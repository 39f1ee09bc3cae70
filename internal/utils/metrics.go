package utils

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Database Metrics
var DBQueryDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "db_query_duration_seconds",
	Help:    "Duration of database queries in seconds.",
	Buckets: prometheus.DefBuckets,
}, []string{"query_type", "repository", "status"})

var DBQueryErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "db_query_errors_total",
	Help: "Total number of failed database queries.",
}, []string{"query_type", "repository"})

// QueryTimer observes a repository query's duration with the usual labels.
// The caller flips *status to "error" before returning on failure.
func QueryTimer(queryType, repository string, status *string) *prometheus.Timer {
	return prometheus.NewTimer(prometheus.ObserverFunc(func(v float64) {
		DBQueryDurationSeconds.WithLabelValues(queryType, repository, *status).Observe(v)
	}))
}
