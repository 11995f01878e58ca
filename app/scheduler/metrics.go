package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Campaign passes partitioned by outcome (ok, busy, skipped, error)
	campaignPassesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_campaign_passes_total",
			Help: "Total number of scheduled campaign passes",
		},
		[]string{"result"},
	)

	campaignPassDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scheduler_campaign_pass_duration_seconds",
			Help:    "Duration of one campaign processing pass",
			Buckets: prometheus.DefBuckets,
		},
	)

	reconcileRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_reconcile_runs_total",
			Help: "Total number of acceptance reconciliation runs",
		},
		[]string{"result"},
	)

	// Queued tasks partitioned by kind and outcome (ok, dropped, retried, dead)
	tasksHandledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_tasks_handled_total",
			Help: "Total number of queued tasks handled by workers",
		},
		[]string{"kind", "result"},
	)
)
