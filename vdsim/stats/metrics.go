package stats

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	Namespace = "VDataSim"
)

var (
	Gather = prometheus.NewRegistry()

	DrivesOnline = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "array",
			Name:      "drives_online",
			Help:      "Number of drives currently online.",
		})

	ChunksWritten = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "array",
			Name:      "chunks_written",
			Help:      "Counter of data chunks written.",
		})

	ParityUpdates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "parity",
			Name:      "updates",
			Help:      "Counter of parity chunk updates.",
		}, []string{"kind"})

	ChunksReconstructed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "rebuild",
			Name:      "chunks_reconstructed",
			Help:      "Counter of chunks reconstructed from parity.",
		}, []string{"equations"})

	RebuildDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "rebuild",
			Name:      "drive_seconds",
			Help:      "Time taken to rebuild one drive.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 16),
		})
)

func init() {
	Gather.MustRegister(DrivesOnline)
	Gather.MustRegister(ChunksWritten)
	Gather.MustRegister(ParityUpdates)
	Gather.MustRegister(ChunksReconstructed)
	Gather.MustRegister(RebuildDuration)
}
