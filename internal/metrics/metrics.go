package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds the collectors for the profile picture pipeline. Each instance
// owns its registry so tests can build as many as they like.
type Metrics struct {
	Registry *prometheus.Registry

	Uploads          *prometheus.CounterVec
	Deletes          *prometheus.CounterVec
	OptimizedFormats *prometheus.CounterVec
	ProcessingTime   prometheus.Histogram
	BytesSaved       prometheus.Counter
	CacheLookups     *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		Uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "babycare",
			Name:      "profile_picture_uploads_total",
			Help:      "Profile picture uploads by entity type and outcome.",
		}, []string{"entity_type", "result"}),
		Deletes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "babycare",
			Name:      "profile_picture_deletes_total",
			Help:      "Profile picture deletions by entity type and outcome.",
		}, []string{"entity_type", "result"}),
		OptimizedFormats: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "babycare",
			Name:      "profile_picture_optimized_format_total",
			Help:      "Stored output format chosen by the normalizer.",
		}, []string{"format"}),
		ProcessingTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "babycare",
			Name:      "profile_picture_processing_seconds",
			Help:      "Time spent decoding, resizing and re-encoding uploads.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		}),
		BytesSaved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "babycare",
			Name:      "profile_picture_bytes_saved_total",
			Help:      "Bytes saved by re-encoding compared to the uploaded file.",
		}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "babycare",
			Name:      "profile_picture_cache_lookups_total",
			Help:      "Profile image cache lookups by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		m.Uploads,
		m.Deletes,
		m.OptimizedFormats,
		m.ProcessingTime,
		m.BytesSaved,
		m.CacheLookups,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}
