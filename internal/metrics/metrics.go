package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	submissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "podcaster_submissions_total",
			Help: "Episode submissions by outcome",
		},
		[]string{"outcome"}, // existing, resolved, timed_out, cancelled
	)

	raceWinsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "podcaster_race_wins_total",
			Help: "Completion signals that resolved a submission first",
		},
		[]string{"arm"},
	)

	actionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "podcaster_actions_total",
			Help: "Operator actions by name and result",
		},
		[]string{"action", "result"},
	)

	notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "podcaster_notifications_total",
			Help: "Change notifications received from the store",
		},
		[]string{"type"},
	)

	webhookDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "podcaster_webhook_duration_seconds",
			Help:    "Automation webhook call duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"webhook"},
	)
)

func init() {
	prometheus.MustRegister(submissionsTotal)
	prometheus.MustRegister(raceWinsTotal)
	prometheus.MustRegister(actionsTotal)
	prometheus.MustRegister(notificationsTotal)
	prometheus.MustRegister(webhookDuration)
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

func RecordSubmission(outcome string) {
	submissionsTotal.WithLabelValues(outcome).Inc()
}

func RecordRaceWin(arm string) {
	raceWinsTotal.WithLabelValues(arm).Inc()
}

// RecordAction counts an operator action; result is "ok" or "error".
func RecordAction(action string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	actionsTotal.WithLabelValues(action, result).Inc()
}

func RecordNotification(kind string) {
	notificationsTotal.WithLabelValues(kind).Inc()
}

func ObserveWebhook(webhook string, seconds float64) {
	webhookDuration.WithLabelValues(webhook).Observe(seconds)
}
