package slitdrift

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	framesProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slitdrift_frames_processed_total",
			Help: "Total number of frames measured.",
		},
		[]string{"kind", "nod"},
	)

	frameFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slitdrift_frame_failures_total",
			Help: "Total number of frames whose measurement failed.",
		},
		[]string{"stage"},
	)

	fitDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "slitdrift_fit_duration_seconds",
			Help:    "Duration of one frame measurement in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(framesProcessedTotal)
	prometheus.MustRegister(frameFailuresTotal)
	prometheus.MustRegister(fitDurationSeconds)
}

// WriteMetricsTextfile writes the default registry in the node exporter
// textfile format.
func WriteMetricsTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("writing metrics: %w", err)
	}
	return nil
}
