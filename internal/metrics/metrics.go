// Package metrics exposes Prometheus instrumentation of the initializer.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every metric of this package plus the Go runtime collectors.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	trackedFrames = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vioinit_tracked_frames_total",
			Help: "Total number of frames tracked against an anchor",
		},
		[]string{"status"}, // status: ready, snapped, unsnapped
	)

	trackDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vioinit_track_duration_seconds",
			Help:    "Duration of one coarse-to-fine tracking call",
			Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
	)

	optimizerIterations = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vioinit_optimizer_iterations_total",
			Help: "Total number of Levenberg-Marquardt iterations",
		},
		[]string{"level", "outcome"}, // outcome: accept, reject
	)

	goodPoints = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vioinit_good_points",
			Help: "Number of good points per pyramid level after the last tracked frame",
		},
		[]string{"level"},
	)

	anchorsSet = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "vioinit_anchor_frames_total",
			Help: "Total number of anchor frames set",
		},
	)
)

func init() {
	Registry.MustRegister(collectors.NewGoCollector())
}

// ObserveTrack records one TrackFrame call.
func ObserveTrack(d time.Duration, snapped, ready bool) {
	status := "unsnapped"
	switch {
	case ready:
		status = "ready"
	case snapped:
		status = "snapped"
	}
	trackedFrames.WithLabelValues(status).Inc()
	trackDuration.Observe(d.Seconds())
}

// ObserveIteration records one optimizer iteration on a level.
func ObserveIteration(level int, accepted bool) {
	outcome := "reject"
	if accepted {
		outcome = "accept"
	}
	optimizerIterations.WithLabelValues(strconv.Itoa(level), outcome).Inc()
}

// SetGoodPoints records the number of good points on a level.
func SetGoodPoints(level, n int) {
	goodPoints.WithLabelValues(strconv.Itoa(level)).Set(float64(n))
}

// ObserveAnchor records a new anchor frame.
func ObserveAnchor() { anchorsSet.Inc() }

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}
