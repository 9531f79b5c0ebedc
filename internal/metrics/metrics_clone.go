package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CloneFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wisp_clone_failed_total",
			Help: "Total number of failed authenticated clones",
		},
		[]string{"repo"},
	)

	CloneCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wisp_clone_count_total",
			Help: "Total number of successful authenticated clones",
		},
		[]string{"repo"},
	)

	CloneDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wisp_clone_duration_seconds",
			Help:    "Clone duration in seconds",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1, 1.5, 2, 5, 10, 30, 60},
		},
		[]string{"repo"},
	)

	CloneAuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wisp_clone_auth_attempts_total",
			Help: "Total number of authentication attempts by mechanism",
		},
		[]string{"mechanism"},
	)
)

func CloneSucceeded(repo string, start time.Time) {
	CloneCount.WithLabelValues(repo).Inc()
	CloneDuration.WithLabelValues(repo).Observe(time.Since(start).Seconds())
}

func CloneFailure(repo string) {
	CloneFailed.WithLabelValues(repo).Inc()
}
