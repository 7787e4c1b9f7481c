// Package metrics provides Prometheus metrics for tubewatch.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveSessions tracks watch sessions currently sampling.
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tubewatch",
			Name:      "watch_sessions_active",
			Help:      "Number of watch sessions currently sampling",
		},
	)

	// SessionOutcomes counts terminal session outcomes.
	SessionOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tubewatch",
			Name:      "watch_session_outcomes_total",
			Help:      "Watch sessions by terminal outcome",
		},
		[]string{"outcome"},
	)

	// Movements counts classified sample transitions.
	Movements = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tubewatch",
			Name:      "watch_movements_total",
			Help:      "Sample transitions by classification",
		},
		[]string{"movement"},
	)

	// FeedPolls counts feed poll attempts by result.
	FeedPolls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tubewatch",
			Name:      "feed_polls_total",
			Help:      "Feed polls by result",
		},
		[]string{"result"},
	)

	// FeedPollDuration measures feed fetch+parse time.
	FeedPollDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "tubewatch",
			Name:      "feed_poll_duration_seconds",
			Help:      "Duration of feed polls in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// Decisions counts notification decisions by action.
	Decisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tubewatch",
			Name:      "notification_decisions_total",
			Help:      "Notification pipeline decisions by action",
		},
		[]string{"action"},
	)

	// Deliveries counts notification and digest deliveries by channel and status.
	Deliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tubewatch",
			Name:      "deliveries_total",
			Help:      "Notification and digest deliveries",
		},
		[]string{"channel", "status"},
	)

	// ScoreCache counts relationship score cache lookups.
	ScoreCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tubewatch",
			Name:      "score_cache_lookups_total",
			Help:      "Relationship score cache lookups by result",
		},
		[]string{"result"},
	)

	// InvariantViolations counts upstream bugs caught at a component boundary.
	InvariantViolations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tubewatch",
			Name:      "invariant_violations_total",
			Help:      "Invariant violations answered with a fallback",
		},
		[]string{"kind"},
	)
)

// RecordPoll records one feed poll.
func RecordPoll(result string, seconds float64) {
	FeedPolls.WithLabelValues(result).Inc()
	FeedPollDuration.Observe(seconds)
}

// RecordDelivery records one notification or digest delivery.
func RecordDelivery(channel string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	Deliveries.WithLabelValues(channel, status).Inc()
}
