package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	authorizeDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authorize_decisions_total",
			Help: "Authorization decisions labeled by outcome (allowed or the denial reason)",
		},
		[]string{"outcome"},
	)
	creditConsumeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "credit_consume_duration_seconds",
			Help:    "Latency of atomic credit consumption against the ledger store",
			Buckets: prometheus.DefBuckets,
		},
	)
	quotaResetsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quota_resets_total",
			Help: "Quota period resets labeled by trigger (lazy or sweep)",
		},
		[]string{"trigger"},
	)
	moderationActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moderation_actions_total",
			Help: "Moderation records created, labeled by action type",
		},
		[]string{"type"},
	)
	roleChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "role_changes_total",
			Help: "Role administration attempts labeled by outcome",
		},
		[]string{"outcome"},
	)
)

// RecordDecision counts one gate verdict. outcome is "allowed" or a denial
// reason string.
func RecordDecision(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}

	authorizeDecisionsTotal.WithLabelValues(outcome).Inc()
}

// RecordConsume observes the duration of one ledger consume call.
func RecordConsume(duration time.Duration) {
	creditConsumeDuration.Observe(duration.Seconds())
}

// RecordReset counts one quota reset. trigger is "lazy" or "sweep".
func RecordReset(trigger string) {
	if trigger == "" {
		trigger = "unknown"
	}

	quotaResetsTotal.WithLabelValues(trigger).Inc()
}

// RecordModeration counts a newly applied moderation action.
func RecordModeration(actionType string) {
	if actionType == "" {
		actionType = "unknown"
	}

	moderationActionsTotal.WithLabelValues(actionType).Inc()
}

// RecordRoleChange counts a setRole attempt. outcome is "ok", "forbidden" or
// "error".
func RecordRoleChange(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}

	roleChangesTotal.WithLabelValues(outcome).Inc()
}
