package businessflow

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Step executions partitioned by step type, outcome and failure code
	stepOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_step_outcomes_total",
			Help: "Total number of executed campaign steps",
		},
		[]string{"step_type", "status", "code"},
	)

	// Leads written by the daily lead generation pass
	leadsGeneratedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "campaign_leads_generated_total",
			Help: "Total number of leads saved by lead generation",
		},
	)

	// Credit movements partitioned by direction and usage type
	creditMovementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_credit_movements_total",
			Help: "Total number of credit debits and refunds",
		},
		[]string{"type", "usage"},
	)

	// Accepted connections written by the reconciler or webhooks
	connectionsAcceptedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "campaign_connections_accepted_total",
			Help: "Total number of recorded connection acceptances",
		},
	)
)
