// Package metrics exposes Prometheus counters for watch sessions and backend sync.
package metrics

import (
	"net/http"
	"sync"

	"github.com/lessontrack/lessontrack/constant"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SessionsOpened = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: constant.App,
			Name:      "sessions_opened_total",
			Help:      "Total number of lesson sessions opened",
		},
	)

	LessonsCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: constant.App,
			Name:      "lessons_completed_total",
			Help:      "Lessons marked complete, by trigger",
		},
		[]string{"trigger"},
	)

	PlaybackErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: constant.App,
			Name:      "playback_errors_total",
			Help:      "Playback errors reported by video sources",
		},
		[]string{"source", "fatal"},
	)

	BackendCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: constant.App,
			Name:      "backend_calls_total",
			Help:      "Backend calls by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	WidgetMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: constant.App,
			Name:      "widget_messages_total",
			Help:      "Messages relayed from the widget bridge",
		},
		[]string{"direction"},
	)

	WatchTime = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: constant.App,
			Name:      "watch_time_seconds",
			Help:      "Watch time credited in the current session",
		},
	)
)

var once sync.Once

// Init registers the collectors with the default registry. Safe to call more than once.
func Init() {
	once.Do(func() {
		prometheus.MustRegister(
			SessionsOpened,
			LessonsCompleted,
			PlaybackErrors,
			BackendCalls,
			WidgetMessages,
			WatchTime,
		)
	})
}

// Handler serves the registered metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// Outcome labels a call result.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
