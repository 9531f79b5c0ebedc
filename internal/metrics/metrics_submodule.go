package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SubmoduleSyncFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wisp_submodule_sync_failed_total",
			Help: "Total number of failed submodule synchronizations",
		},
		[]string{"submodule", "op"},
	)

	SubmoduleSyncCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wisp_submodule_sync_count_total",
			Help: "Total number of successful submodule synchronizations",
		},
		[]string{"submodule"},
	)

	SubmoduleSyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wisp_submodule_sync_duration_seconds",
			Help:    "Submodule synchronization duration in seconds",
			Buckets: []float64{0.1, 0.2, 0.5, 1, 1.5, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"submodule"},
	)

	SubmoduleLinksRepaired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wisp_submodule_links_repaired_total",
			Help: "Total number of gitlink files written by link repair",
		},
	)
)

func SubmoduleSynced(name string, start time.Time) {
	SubmoduleSyncCount.WithLabelValues(name).Inc()
	SubmoduleSyncDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
}

func SubmoduleFailed(name, op string) {
	SubmoduleSyncFailed.WithLabelValues(name, op).Inc()
}
