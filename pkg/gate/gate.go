package gate

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cadre-dev/cadre/pkg/errdefs"
	"github.com/cadre-dev/cadre/pkg/events"
	"github.com/cadre-dev/cadre/pkg/log"
	"github.com/cadre-dev/cadre/pkg/metrics"
	"github.com/cadre-dev/cadre/pkg/storage"
	"github.com/cadre-dev/cadre/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// CriterionFunc is a predicate evaluated against the target and the seeded
// metrics. Predicates are registered by criterion id.
type CriterionFunc func(target string, m *types.GateMetrics) bool

// Check is a custom check run during evaluation; it may return issues
type Check func(target string, m *types.GateMetrics) []*types.QualityIssue

// Weights distributes the overall score across quality dimensions.
// The weights must sum to 1.
type Weights struct {
	Coverage        float64
	Maintainability float64
	Security        float64
	Performance     float64
	Documentation   float64
	Testing         float64
	Compliance      float64
}

// DefaultWeights returns the standard score distribution
func DefaultWeights() Weights {
	return Weights{
		Coverage:        0.20,
		Maintainability: 0.15,
		Security:        0.20,
		Performance:     0.15,
		Documentation:   0.10,
		Testing:         0.15,
		Compliance:      0.05,
	}
}

// Config holds evaluator construction options
type Config struct {
	Weights Weights
	Store   storage.Store
	Broker  *events.Broker
}

// Evaluator runs quality gates against targets and records reports
type Evaluator struct {
	mu sync.RWMutex

	gates    map[string]*types.QualityGate
	criteria map[string]CriterionFunc
	reports  map[string]*types.GateReport
	weights  Weights
	store    storage.Store
	broker   *events.Broker

	logger zerolog.Logger
}

// NewEvaluator creates an evaluator pre-loaded with the story, sprint and
// release gate presets.
func NewEvaluator(cfg Config) *Evaluator {
	if cfg.Weights == (Weights{}) {
		cfg.Weights = DefaultWeights()
	}
	e := &Evaluator{
		gates:    make(map[string]*types.QualityGate),
		criteria: make(map[string]CriterionFunc),
		reports:  make(map[string]*types.GateReport),
		weights:  cfg.Weights,
		store:    cfg.Store,
		broker:   cfg.Broker,
		logger:   log.WithComponent("gate"),
	}
	for _, gate := range presetGates() {
		e.gates[gate.ID] = gate
	}
	return e
}

// RegisterGate adds or replaces a named gate
func (e *Evaluator) RegisterGate(gate *types.QualityGate) error {
	if gate.ID == "" {
		return errdefs.InvalidArgument("gate id is required")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.gates[gate.ID] = gate
	return nil
}

// RegisterCriterion binds a predicate to a criterion id
func (e *Evaluator) RegisterCriterion(id string, fn CriterionFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.criteria[id] = fn
}

// Gate returns a registered gate by id
func (e *Evaluator) Gate(id string) (*types.QualityGate, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	gate, ok := e.gates[id]
	if !ok {
		return nil, errdefs.NotFound("gate %s", id)
	}
	return gate, nil
}

// Evaluate runs the named gate against a target. The checklist seeds the
// metrics; custom checks may add issues. The decision ladder is evaluated
// top to bottom, first match wins.
func (e *Evaluator) Evaluate(gateID, target, assessor string, checklist *types.Checklist, checks ...Check) (*types.GateReport, error) {
	e.mu.RLock()
	gate, ok := e.gates[gateID]
	if !ok {
		e.mu.RUnlock()
		return nil, errdefs.NotFound("gate %s", gateID)
	}
	criteria := make(map[string]CriterionFunc, len(gate.Criteria))
	for _, c := range gate.Criteria {
		criteria[c.ID] = e.criteria[c.ID]
	}
	e.mu.RUnlock()

	report := &types.GateReport{
		ID:          uuid.New().String(),
		GateID:      gateID,
		Target:      target,
		Assessor:    assessor,
		EvaluatedAt: time.Now().UTC(),
	}
	m := &report.Metrics

	// 1. Seed metrics from the checklist
	if checklist != nil {
		for _, item := range checklist.Items {
			m.TotalChecks++
			switch {
			case item.Checked:
				m.PassedChecks++
			case item.Skipped:
				m.SkippedChecks++
			default:
				m.FailedChecks++
				// 2. Unjustified failures become compliance issues
				if item.Justification == "" {
					report.Issues = append(report.Issues, &types.QualityIssue{
						ID:          uuid.New().String(),
						Title:       "Unchecked item: " + item.Title,
						Description: "Checklist item failed without justification",
						Severity:    types.SeverityMedium,
						Category:    types.CategoryCompliance,
						DetectedAt:  report.EvaluatedAt,
					})
				}
			}
		}
		if m.TotalChecks > 0 {
			m.Coverage = float64(m.PassedChecks) / float64(m.TotalChecks)
		}
	}

	// 3. Run criterion predicates. Only required criteria accumulate as
	// failures; an optional miss surfaces as a recommendation instead.
	var optionalMisses []string
	for _, criterion := range gate.Criteria {
		fn := criteria[criterion.ID]
		if fn == nil {
			report.WaivedCriteria = append(report.WaivedCriteria, criterion.ID)
			continue
		}
		switch {
		case fn(target, m):
			report.PassedCriteria = append(report.PassedCriteria, criterion.ID)
		case criterion.Required:
			report.FailedCriteria = append(report.FailedCriteria, criterion.ID)
		default:
			optionalMisses = append(optionalMisses, criterion.ID)
		}
	}

	// 4. Custom checks
	for _, check := range checks {
		report.Issues = append(report.Issues, check(target, m)...)
	}

	// 5. Composite scores
	byCategory := make(map[types.IssueCategory]int)
	for _, issue := range report.Issues {
		byCategory[issue.Category]++
		switch issue.Severity {
		case types.SeverityCritical:
			m.CriticalIssues++
		case types.SeverityHigh:
			m.HighIssues++
		case types.SeverityMedium:
			m.MediumIssues++
		case types.SeverityLow:
			m.LowIssues++
		}
	}
	m.SecurityScore = floor0(100 - 20*float64(byCategory[types.CategorySecurity]))
	m.PerformanceScore = floor0(100 - 15*float64(byCategory[types.CategoryPerformance]))
	maintainability := floor0(100 - 10*float64(byCategory[types.CategoryTechnicalDebt]+byCategory[types.CategoryArchitecture]))
	documentation := floor0(100 - 10*float64(byCategory[types.CategoryDocumentation]))
	testing := floor0(100 - 15*float64(byCategory[types.CategoryTesting]))
	compliance := floor0(100 - 10*float64(byCategory[types.CategoryCompliance]))

	w := e.weights
	m.OverallScore = w.Coverage*m.Coverage*100 +
		w.Maintainability*maintainability +
		w.Security*m.SecurityScore +
		w.Performance*m.PerformanceScore +
		w.Documentation*documentation +
		w.Testing*testing +
		w.Compliance*compliance

	// 6. Decision ladder
	t := gate.Thresholds
	failedCriteria := len(report.FailedCriteria)
	switch {
	case m.CriticalIssues > t.MaxCriticalIssues:
		report.Decision = types.DecisionFail
	case m.HighIssues > t.MaxHighIssues:
		report.Decision = types.DecisionConcerns
	case m.Coverage < t.MinCoverage:
		report.Decision = types.DecisionConcerns
	case m.SecurityScore < t.MinSecurityScore:
		report.Decision = types.DecisionConcerns
	case failedCriteria > 3:
		report.Decision = types.DecisionFail
	case failedCriteria > 0:
		report.Decision = types.DecisionConcerns
	default:
		report.Decision = types.DecisionPass
	}

	// 7. Recommendations for each tripped threshold
	if m.CriticalIssues > t.MaxCriticalIssues {
		report.Recommendations = append(report.Recommendations, "Fix all critical issues before proceeding")
	}
	if m.HighIssues > t.MaxHighIssues {
		report.Recommendations = append(report.Recommendations,
			fmt.Sprintf("Reduce high severity issues to at most %d", t.MaxHighIssues))
	}
	if m.Coverage < t.MinCoverage {
		report.Recommendations = append(report.Recommendations,
			fmt.Sprintf("Increase checklist coverage to at least %.0f%%", t.MinCoverage*100))
	}
	if m.SecurityScore < t.MinSecurityScore {
		report.Recommendations = append(report.Recommendations, "Address open security findings")
	}
	if failedCriteria > 0 {
		report.Recommendations = append(report.Recommendations,
			fmt.Sprintf("Resolve %d failed gate criteria", failedCriteria))
	}
	if len(optionalMisses) > 0 {
		report.Recommendations = append(report.Recommendations,
			"Review optional criteria not met: "+strings.Join(optionalMisses, ", "))
	}

	e.mu.Lock()
	e.reports[report.ID] = report
	e.mu.Unlock()

	e.persist(report)
	e.publish(report)
	metrics.GateEvaluations.WithLabelValues(string(report.Decision)).Inc()
	e.logger.Info().Str("gate_id", gateID).Str("target", target).
		Str("decision", string(report.Decision)).Msg("gate evaluated")
	return report, nil
}

// EvaluateGate runs a gate with no checklist on behalf of the runtime.
// It satisfies the workflow engine's gate hook.
func (e *Evaluator) EvaluateGate(gateID, documentID, teamID string) (*types.GateReport, error) {
	return e.Evaluate(gateID, documentID, teamID, nil)
}

// Waive overrides a report's decision. The original decision is preserved
// in the notes together with the actor and reason.
func (e *Evaluator) Waive(reportID, reason, actor string) (*types.GateReport, error) {
	if reason == "" {
		return nil, errdefs.InvalidArgument("waive reason is required")
	}

	e.mu.Lock()
	report, ok := e.reports[reportID]
	if !ok {
		e.mu.Unlock()
		return nil, errdefs.NotFound("gate report %s", reportID)
	}
	if report.Decision == types.DecisionWaived {
		e.mu.Unlock()
		return nil, errdefs.Precondition("gate report %s is already waived", reportID)
	}
	original := report.Decision
	report.Decision = types.DecisionWaived
	report.Notes = fmt.Sprintf("original decision %s waived by %s: %s", original, actor, reason)
	out := *report
	e.mu.Unlock()

	e.persist(&out)
	return &out, nil
}

// Report returns a stored report by id
func (e *Evaluator) Report(reportID string) (*types.GateReport, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	report, ok := e.reports[reportID]
	if !ok {
		return nil, errdefs.NotFound("gate report %s", reportID)
	}
	out := *report
	return &out, nil
}

func (e *Evaluator) persist(report *types.GateReport) {
	if e.store == nil {
		return
	}
	if err := e.store.SaveGateReport(report); err != nil {
		e.logger.Error().Err(err).Str("report_id", report.ID).Msg("failed to snapshot gate report")
	}
}

func (e *Evaluator) publish(report *types.GateReport) {
	if e.broker == nil {
		return
	}
	e.broker.Publish(&events.Event{
		ID:   uuid.New().String(),
		Type: events.EventGateEvaluated,
		Metadata: map[string]string{
			"report_id": report.ID,
			"gate_id":   report.GateID,
			"target":    report.Target,
			"decision":  string(report.Decision),
		},
	})
}

func floor0(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
