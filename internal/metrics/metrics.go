package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// All metrics are low-cardinality: camera ids label video flow (a handful of
// fixed tags), object ids never appear as labels.

var (
	// FramesCapturedTotal counts frames read from the camera device.
	FramesCapturedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "falcon_frames_captured_total",
			Help: "Total frames captured from the camera device",
		},
		[]string{"camera"},
	)

	// FramesDroppedTotal counts frames discarded by full stage queues.
	FramesDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "falcon_frames_dropped_total",
			Help: "Total frames dropped at stage handoff due to backpressure",
		},
		[]string{"camera", "stage"},
	)

	// InferenceLatency tracks per-frame detection latency.
	InferenceLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "falcon_inference_latency_ms",
			Help:    "Detection latency in milliseconds",
			Buckets: []float64{10, 25, 50, 100, 200, 500, 1000, 2000},
		},
		[]string{"camera"},
	)

	// DetectionsTotal counts detections by class tag.
	DetectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "falcon_detections_total",
			Help: "Total detections by object class",
		},
		[]string{"class"},
	)

	// EventsPersistedTotal counts first-observation events written to the store.
	EventsPersistedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "falcon_events_persisted_total",
			Help: "Total first-observation events persisted",
		},
	)

	// BroadcastsTotal counts messages fanned out to console endpoints.
	BroadcastsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "falcon_broadcasts_total",
			Help: "Total messages broadcast to console endpoints",
		},
		[]string{"endpoint"},
	)

	// VideoDatagramsTotal counts UDP video datagrams by direction.
	VideoDatagramsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "falcon_video_datagrams_total",
			Help: "Total UDP video datagrams by direction (in/out)",
		},
		[]string{"direction"},
	)

	// RiskLevel exports the current bird-risk level (1=low 2=medium 3=high).
	RiskLevel = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "falcon_bird_risk_level",
			Help: "Current bird risk level (1=low, 2=medium, 3=high)",
		},
	)

	// AgentsConnected gauges live ingest connections.
	AgentsConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "falcon_agents_connected",
			Help: "Currently connected camera agents",
		},
	)
)

func RecordCapture(camera string) {
	FramesCapturedTotal.WithLabelValues(camera).Inc()
}

func RecordDrop(camera, stage string, count uint64) {
	FramesDroppedTotal.WithLabelValues(camera, stage).Add(float64(count))
}

func RecordInferenceLatency(camera string, ms float64) {
	InferenceLatency.WithLabelValues(camera).Observe(ms)
}

func RecordDetection(class string) {
	DetectionsTotal.WithLabelValues(class).Inc()
}

func RecordEventPersisted() {
	EventsPersistedTotal.Inc()
}

func RecordBroadcast(endpoint string) {
	BroadcastsTotal.WithLabelValues(endpoint).Inc()
}

func RecordVideoDatagram(direction string) {
	VideoDatagramsTotal.WithLabelValues(direction).Inc()
}
