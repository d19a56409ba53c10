package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Observer exports ingest and map metrics to Prometheus. A nil *Observer is
// a valid no-op.
type Observer struct {
	stageDuration *prometheus.HistogramVec
	stageOutcomes *prometheus.CounterVec
	uploadedBytes prometheus.Counter
	clusterCount  prometheus.Gauge
	markerBuilds  prometheus.Counter
}

func NewObserver(namespace string, reg prometheus.Registerer) (*Observer, error) {
	if namespace == "" {
		namespace = "lacakair"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	o := &Observer{
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_stage_duration_seconds",
			Help:      "Latency of image normalize and upload stages.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
		stageOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_stage_total",
			Help:      "Ingest stage results by outcome kind.",
		}, []string{"stage", "kind"}),
		uploadedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploaded_bytes_total",
			Help:      "Bytes of normalized images hosted successfully.",
		}),
		clusterCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "map_clusters",
			Help:      "Clusters in the most recent marker snapshot.",
		}),
		markerBuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "map_marker_builds_total",
			Help:      "Marker snapshots computed without a memo hit.",
		}),
	}

	collectors := []prometheus.Collector{o.stageDuration, o.stageOutcomes, o.uploadedBytes, o.clusterCount, o.markerBuilds}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register metric: %w", err)
		}
	}
	return o, nil
}

func (o *Observer) ObserveStage(stage string, elapsed time.Duration, kind string) {
	if o == nil {
		return
	}
	o.stageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
	o.stageOutcomes.WithLabelValues(stage, kind).Inc()
}

func (o *Observer) ObserveUploadBytes(n int) {
	if o == nil {
		return
	}
	o.uploadedBytes.Add(float64(n))
}

func (o *Observer) ObserveClusters(n int) {
	if o == nil {
		return
	}
	o.clusterCount.Set(float64(n))
	o.markerBuilds.Inc()
}
