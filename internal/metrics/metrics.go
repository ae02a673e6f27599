package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Sensor fetch metrics
	FetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_sensor_fetch_total",
			Help: "Total number of sensor feed fetches",
		},
		[]string{"status"}, // status: success, transport_error, decode_error
	)

	FetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vigil_sensor_fetch_duration_seconds",
			Help:    "Sensor feed fetch latency in seconds",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	ReadingsFetched = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vigil_sensor_readings_per_fetch",
			Help:    "Number of readings returned per fetch",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100},
		},
	)

	// Evaluation metrics
	TicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_evaluation_ticks_total",
			Help: "Total number of evaluation ticks",
		},
		[]string{"status"}, // status: ok, fetch_failed
	)

	EvaluationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vigil_evaluation_duration_seconds",
			Help:    "Time taken to evaluate one tick",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)

	ActiveAlerts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vigil_active_alerts",
			Help: "Number of (subscriber, sensor, bound) combinations currently alerting",
		},
	)

	// Notification metrics
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_notifications_total",
			Help: "Total number of alert notifications attempted",
		},
		[]string{"status"}, // status: sent, failed
	)

	// Command metrics
	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_commands_total",
			Help: "Total number of subscriber commands handled",
		},
		[]string{"command", "status"}, // status: ok, rejected
	)

	ThresholdsConfigured = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vigil_thresholds_configured",
			Help: "Number of threshold bounds currently configured across all subscribers",
		},
	)

	// Alert stream (Kafka) metrics
	AlertPublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_alert_publish_total",
			Help: "Total number of alert events published to the alert stream",
		},
		[]string{"status"}, // status: success, failed
	)

	AlertPublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vigil_alert_publish_duration_seconds",
			Help:    "Time taken to publish alert events to the alert stream",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	AlertPublishRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vigil_alert_publish_retries_total",
			Help: "Total number of alert stream publish retries",
		},
	)

	// Panic recovery
	PanicsRecovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_panics_recovered_total",
			Help: "Total number of panics recovered",
		},
		[]string{"component"},
	)
)
