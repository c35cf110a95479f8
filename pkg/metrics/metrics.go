// Package metrics exposes the core's per-cycle outputs as Prometheus series.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/teslashibe/go-intent/pkg/alert"
	"github.com/teslashibe/go-intent/pkg/pipeline"
)

var (
	// FramesProcessed counts completed cycles.
	FramesProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "intent_frames_processed_total",
			Help: "Total number of frames run through the pipeline",
		},
	)

	// Detections counts cycles with a subject present.
	Detections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "intent_detections_total",
			Help: "Total number of cycles with a detected subject",
		},
	)

	// Risk is the latest fused intent risk.
	Risk = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "intent_risk",
			Help: "Latest fused intent risk score (0-100)",
		},
	)

	// Trust holds the latest feed trust sub-scores.
	Trust = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "intent_feed_trust",
			Help: "Latest feed trust scores (0-100)",
		},
		[]string{"score"},
	)

	// Behavior holds the latest behaviour sub-scores.
	Behavior = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "intent_behavior",
			Help: "Latest behaviour scores (0-100)",
		},
		[]string{"score"},
	)

	// Zone counts cycles per zone.
	Zone = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intent_zone_cycles_total",
			Help: "Cycles spent with the subject in each zone",
		},
		[]string{"zone"},
	)

	// Alerting is 1 while an alert is active.
	Alerting = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "intent_alert_active",
			Help: "Whether an intent alert is active",
		},
	)

	// Alerts counts raised alerts.
	Alerts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "intent_alerts_total",
			Help: "Total number of intent alerts raised",
		},
	)

	// AlertDuration records how long alerts lasted.
	AlertDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "intent_alert_duration_seconds",
			Help:    "Duration of cleared intent alerts",
			Buckets: []float64{1, 2, 5, 10, 30, 60, 120, 300},
		},
	)

	// CycleLatency records core processing time per frame.
	CycleLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "intent_cycle_latency_seconds",
			Help:    "Core processing latency per frame",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
		},
	)

	// SinkErrors counts failures in downstream sinks.
	SinkErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intent_sink_errors_total",
			Help: "Errors reported by result sinks",
		},
		[]string{"sink"},
	)
)

// Observe records one cycle.
func Observe(r pipeline.Result) {
	FramesProcessed.Inc()
	if r.Position.Present() {
		Detections.Inc()
	}
	Zone.WithLabelValues(r.Zone.String()).Inc()

	Risk.Set(float64(r.Risk))
	CycleLatency.Observe(r.Latency.Seconds())

	Trust.WithLabelValues("liveness").Set(float64(r.Trust.Liveness))
	Trust.WithLabelValues("entropy").Set(float64(r.Trust.Entropy))
	Trust.WithLabelValues("motion").Set(float64(r.Trust.Motion))
	Trust.WithLabelValues("overall").Set(float64(r.Trust.OverallTrust))

	Behavior.WithLabelValues("pacing").Set(float64(r.Behavior.Pacing))
	Behavior.WithLabelValues("approach_retreat").Set(float64(r.Behavior.ApproachRetreat))
	Behavior.WithLabelValues("loitering").Set(float64(r.Behavior.Loitering))
	Behavior.WithLabelValues("sudden_movement").Set(float64(r.Behavior.SuddenMovement))
	Behavior.WithLabelValues("overall").Set(float64(r.Behavior.OverallSuspicion))

	if r.Alerting {
		Alerting.Set(1)
	} else {
		Alerting.Set(0)
	}

	if r.Event != nil {
		switch r.Event.Kind {
		case alert.Entered:
			Alerts.Inc()
		case alert.Exited:
			AlertDuration.Observe(r.Event.Duration.Seconds())
		}
	}
}

// Sink adapts Observe to a pipeline sink for any frame type.
func Sink[F pipeline.Frame]() pipeline.Sink[F] {
	return pipeline.SinkFunc[F](func(_ F, r pipeline.Result) {
		Observe(r)
	})
}
