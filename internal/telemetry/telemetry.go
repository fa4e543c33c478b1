// Package telemetry defines the bridge's Prometheus collectors (spec §6).
// It exposes no HTTP endpoint itself: the admin surface's process
// (cmd/bridge) is expected to mount promhttp.Handler separately if wanted.
// Collector shapes are grounded on pierrejay-rk3506-amp-demo's dmx-gateway
// metrics package (GaugeVec/CounterVec/Histogram via promauto).
package telemetry

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles every collector the bridge records against. Construct
// with New so multiple instances (e.g. one per test) don't collide on the
// default global registry.
type Metrics struct {
	IngestPacketsTotal    *prometheus.CounterVec
	IngestMalformedTotal  *prometheus.CounterVec
	IngestDuration        *prometheus.HistogramVec
	MappingMissesTotal    *prometheus.CounterVec
	SendResultsTotal      *prometheus.CounterVec
	SendDuration          *prometheus.HistogramVec
	QueueDepth            *prometheus.GaugeVec
	OfflineDevices        prometheus.Gauge
	RateLimiterWaitTime   prometheus.Histogram
	SubsystemStatus       *prometheus.GaugeVec
	DiscoveryCycleSeconds prometheus.Histogram
}

// New registers every collector against reg. Pass prometheus.NewRegistry()
// in tests; pass a shared registry (e.g. prometheus.DefaultRegisterer) in
// production. A nil reg leaves the collectors unregistered.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		IngestPacketsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_ingest_packets_total",
			Help: "Ingest packets received, by protocol and universe.",
		}, []string{"protocol", "universe"}),

		IngestMalformedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_ingest_malformed_frames_total",
			Help: "Ingest packets rejected as malformed, by protocol.",
		}, []string{"protocol"}),

		IngestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bridge_ingest_duration_seconds",
			Help:    "Time spent processing one ingest frame through the mapper.",
			Buckets: prometheus.DefBuckets,
		}, []string{"protocol"}),

		MappingMissesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_mapping_misses_total",
			Help: "Frames dropped for carrying no mapping in their universe.",
		}, []string{"universe"}),

		SendResultsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_send_results_total",
			Help: "Delivery attempts, by outcome (success, failure, deduped, dry_run).",
		}, []string{"outcome"}),

		SendDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bridge_send_duration_seconds",
			Help:    "Time spent sending one command, by transport.",
			Buckets: prometheus.DefBuckets,
		}, []string{"transport"}),

		QueueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bridge_queue_depth",
			Help: "Pending state rows queued per device.",
		}, []string{"device_id"}),

		OfflineDevices: factory.NewGauge(prometheus.GaugeOpts{
			Name: "bridge_offline_devices",
			Help: "Number of devices currently marked offline.",
		}),

		RateLimiterWaitTime: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "bridge_rate_limiter_wait_seconds",
			Help:    "Time delivery workers spent waiting on the global rate limiter.",
			Buckets: prometheus.DefBuckets,
		}),

		SubsystemStatus: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bridge_subsystem_status",
			Help: "Per-subsystem circuit breaker status (1=ok, 0.5=degraded/recovering, 0=suppressed).",
		}, []string{"subsystem"}),

		DiscoveryCycleSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "bridge_discovery_cycle_seconds",
			Help:    "Wall-clock duration of one discovery scan cycle.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// UniverseLabel formats a universe number as a metric label value.
func UniverseLabel(universe uint16) string {
	return strconv.Itoa(int(universe))
}

// StatusValue maps a health.Status string to the gauge value SubsystemStatus
// expects.
func StatusValue(status string) float64 {
	switch status {
	case "ok":
		return 1
	case "degraded", "recovering":
		return 0.5
	case "suppressed":
		return 0
	default:
		return 0
	}
}
