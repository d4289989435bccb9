package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mindsync_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	// Meditation engine
	SessionsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mindsync_meditation_sessions_started_total",
			Help: "Total number of meditation sessions started",
		},
		[]string{"type"},
	)

	SessionsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mindsync_meditation_sessions_completed_total",
			Help: "Total number of meditation sessions completed",
		},
		[]string{"type"},
	)

	AggregateFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mindsync_meditation_aggregate_failures_total",
			Help: "Completions whose user aggregate update failed after the session was written",
		},
	)

	StreakFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mindsync_meditation_streak_failures_total",
			Help: "Completions whose streak write failed after the aggregate was updated",
		},
	)

	// Emotion capture
	EmotionAnalyses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mindsync_emotion_analyses_total",
			Help: "Total number of emotion analyses by result source",
		},
		[]string{"source"}, // "vision", "mock", "llm", "heuristic"
	)

	VisionCircuitState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mindsync_vision_circuit_state",
			Help: "Vision API circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)

	// Real-time channel
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mindsync_ws_connections",
			Help: "Current number of open websocket connections",
		},
	)
)

// RecordHTTPRequest records a finished request.
func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(duration.Seconds())
}

func RecordSessionStarted(sessionType string) {
	SessionsStarted.WithLabelValues(sessionType).Inc()
}

func RecordSessionCompleted(sessionType string) {
	SessionsCompleted.WithLabelValues(sessionType).Inc()
}

func RecordAggregateFailure() {
	AggregateFailures.Inc()
}

func RecordStreakFailure() {
	StreakFailures.Inc()
}

func RecordEmotionAnalysis(source string) {
	EmotionAnalyses.WithLabelValues(source).Inc()
}

// SetVisionCircuitState stores a breaker state as a gauge value.
func SetVisionCircuitState(state int) {
	VisionCircuitState.Set(float64(state))
}

// TrackWSConnection tracks open websocket connections
func TrackWSConnection(open bool) {
	if open {
		WSConnections.Inc()
	} else {
		WSConnections.Dec()
	}
}
