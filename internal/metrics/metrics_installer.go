package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	StepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wisp_installer_step_duration_seconds",
			Help:    "Installer step duration in seconds",
			Buckets: []float64{0.1, 0.2, 0.5, 1, 1.5, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"step"},
	)

	LastInstallStart = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wisp_installer_last_run_start_timestamp",
			Help: "Unix timestamp of when the last installer run started",
		},
	)

	LastInstallEnd = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wisp_installer_last_run_end_timestamp",
			Help: "Unix timestamp of when the last installer run ended",
		},
	)

	ReportedErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wisp_installer_reported_errors_total",
			Help: "Total number of non-fatal errors reported by installer steps",
		},
		[]string{"step"},
	)
)

func StepFinished(step string, start time.Time) {
	StepDuration.WithLabelValues(step).Observe(time.Since(start).Seconds())
}
