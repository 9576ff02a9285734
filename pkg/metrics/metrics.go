package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Pool metrics
	AgentsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cadre_agents_total",
			Help: "Total number of agents by state",
		},
		[]string{"state"},
	)

	AllocationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cadre_allocations_total",
			Help: "Total number of fulfilled allocation requests",
		},
	)

	AllocationsQueued = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cadre_allocations_queued",
			Help: "Allocation requests currently waiting in the pool queue",
		},
	)

	// Team metrics
	TeamsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cadre_teams_total",
			Help: "Total number of teams by lifecycle state",
		},
		[]string{"state"},
	)

	TeamTasksCompleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cadre_team_tasks_completed_total",
			Help: "Total number of team tasks completed",
		},
	)

	// Document metrics
	DocumentsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cadre_documents_total",
			Help: "Total number of documents in the registry",
		},
	)

	DocumentVersionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cadre_document_versions_total",
			Help: "Total number of document versions created",
		},
	)

	// Handoff metrics
	HandoffsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cadre_handoffs_total",
			Help: "Total number of handoffs by terminal state",
		},
		[]string{"state"},
	)

	HandoffDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cadre_handoff_duration_seconds",
			Help:    "Time from handoff creation to completion in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Workflow metrics
	WorkflowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cadre_workflows_total",
			Help: "Total number of workflow instances by terminal state",
		},
		[]string{"state"},
	)

	WorkflowStepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cadre_workflow_step_duration_seconds",
			Help:    "Workflow step execution duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Quality gate metrics
	GateEvaluations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cadre_gate_evaluations_total",
			Help: "Total number of quality gate evaluations by decision",
		},
		[]string{"decision"},
	)

	// Monitor metrics
	AlertsRaised = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cadre_alerts_raised_total",
			Help: "Total number of performance alerts raised by metric",
		},
		[]string{"metric"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(AgentsTotal)
	prometheus.MustRegister(AllocationsTotal)
	prometheus.MustRegister(AllocationsQueued)
	prometheus.MustRegister(TeamsTotal)
	prometheus.MustRegister(TeamTasksCompleted)
	prometheus.MustRegister(DocumentsTotal)
	prometheus.MustRegister(DocumentVersionsTotal)
	prometheus.MustRegister(HandoffsTotal)
	prometheus.MustRegister(HandoffDuration)
	prometheus.MustRegister(WorkflowsTotal)
	prometheus.MustRegister(WorkflowStepDuration)
	prometheus.MustRegister(GateEvaluations)
	prometheus.MustRegister(AlertsRaised)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
