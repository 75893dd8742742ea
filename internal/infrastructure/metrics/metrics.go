// Package metrics defines every custom Prometheus metric of the console. It
// is the single source of truth for metric names, labels, and help strings.
//
// Metrics register with the default registry on import; /metrics serves them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "console"

// ── Sync metrics ──────────────────────────────────────────────────────────────

// SnapshotsAppliedTotal counts snapshots written into a mirror.
// Label:
//   - scope: "staff", "clients" or "reports"
var SnapshotsAppliedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "snapshots_applied_total",
		Help:      "Total number of remote snapshots applied to a mirror.",
	},
	[]string{"scope"},
)

// SnapshotsDiscardedTotal counts deliveries that arrived after their
// subscription was released.
var SnapshotsDiscardedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "snapshots_discarded_total",
		Help:      "Total number of snapshots dropped because their subscription was no longer live.",
	},
	[]string{"scope"},
)

// MirrorRecords tracks the record count of each mirror's current snapshot.
var MirrorRecords = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "mirror_records",
		Help:      "Number of records in the current snapshot of each mirror.",
	},
	[]string{"scope"},
)

// ActiveSubscriptions is 1 while a scope has a live subscription.
var ActiveSubscriptions = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_subscriptions",
		Help:      "Live remote subscriptions per scope (0 or 1).",
	},
	[]string{"scope"},
)

// SyncErrorsTotal counts handshake and subscription failures.
// Label:
//   - scope: a mirror scope, or "platform" for the handshake
var SyncErrorsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sync_errors_total",
		Help:      "Total number of synchronization failures.",
	},
	[]string{"scope"},
)

// ── Session metrics ───────────────────────────────────────────────────────────

// PlatformSessions is the number of console processes holding a platform
// session, as seen by the presence tracker on the last readiness check.
var PlatformSessions = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "platform_sessions",
		Help:      "Console processes currently registered with a platform session.",
	},
)

// LoginAttemptsTotal counts login attempts.
// Label:
//   - result: "administrator", "staff", "denied", "throttled" or "unavailable"
var LoginAttemptsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "login_attempts_total",
		Help:      "Total number of application login attempts, by outcome.",
	},
	[]string{"result"},
)

// ── Mutation metrics ──────────────────────────────────────────────────────────

// MutationsTotal counts gateway operations.
// Labels:
//   - op: "add_client", "add_worklog", "mark_declared", "delete"
//   - result: "ok", "skipped", "error"
var MutationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "mutations_total",
		Help:      "Total number of mutation gateway operations, by outcome.",
	},
	[]string{"op", "result"},
)

// MutationDuration measures the remote round trip of a single write.
var MutationDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "mutation_duration_seconds",
		Help:      "Duration of remote writes issued by the mutation gateway.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"op"},
)
