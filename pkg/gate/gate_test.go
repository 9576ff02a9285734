package gate

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/cadre-dev/cadre/pkg/errdefs"
	"github.com/cadre-dev/cadre/pkg/types"
	"github.com/stretchr/testify/assert"
)

func passAll(target string, m *types.GateMetrics) bool { return true }
func failAll(target string, m *types.GateMetrics) bool { return false }

func fullChecklist() *types.Checklist {
	return &types.Checklist{
		Name: "definition of done",
		Items: []types.ChecklistItem{
			{Title: "code reviewed", Checked: true},
			{Title: "tests added", Checked: true},
			{Title: "docs updated", Checked: true},
		},
	}
}

func TestEvaluatePass(t *testing.T) {
	e := NewEvaluator(Config{})
	e.RegisterCriterion("acceptance-criteria-met", passAll)
	e.RegisterCriterion("tests-passing", passAll)

	report, err := e.Evaluate(StoryGate, "story-1", "qa-agent", fullChecklist())
	assert.NoError(t, err)
	assert.Equal(t, types.DecisionPass, report.Decision)
	assert.Equal(t, 3, report.Metrics.TotalChecks)
	assert.Equal(t, 3, report.Metrics.PassedChecks)
	assert.Equal(t, 1.0, report.Metrics.Coverage)
	assert.ElementsMatch(t, []string{"acceptance-criteria-met", "tests-passing"}, report.PassedCriteria)
	assert.Empty(t, report.FailedCriteria)
	assert.Empty(t, report.Issues)
	assert.Equal(t, "qa-agent", report.Assessor)
}

func TestChecklistSeeding(t *testing.T) {
	e := NewEvaluator(Config{})
	e.RegisterCriterion("acceptance-criteria-met", passAll)
	e.RegisterCriterion("tests-passing", passAll)

	checklist := &types.Checklist{
		Items: []types.ChecklistItem{
			{Title: "reviewed", Checked: true},
			{Title: "load tested", Skipped: true},
			{Title: "docs updated"}, // failed, no justification
			{Title: "migration dry-run", Justification: "no schema change in this story"},
		},
	}

	report, err := e.Evaluate(StoryGate, "story-1", "qa", checklist)
	assert.NoError(t, err)
	assert.Equal(t, 4, report.Metrics.TotalChecks)
	assert.Equal(t, 1, report.Metrics.PassedChecks)
	assert.Equal(t, 1, report.Metrics.SkippedChecks)
	assert.Equal(t, 2, report.Metrics.FailedChecks)
	assert.InDelta(t, 0.25, report.Metrics.Coverage, 0.0001)

	// Only the unjustified failure raised a compliance issue
	assert.Len(t, report.Issues, 1)
	assert.Equal(t, types.SeverityMedium, report.Issues[0].Severity)
	assert.Equal(t, types.CategoryCompliance, report.Issues[0].Category)
	assert.Contains(t, report.Issues[0].Title, "docs updated")
}

func TestUnregisteredCriteriaAreWaived(t *testing.T) {
	e := NewEvaluator(Config{})
	e.RegisterCriterion("acceptance-criteria-met", passAll)
	// "tests-passing" stays unregistered

	report, err := e.Evaluate(StoryGate, "story-1", "qa", fullChecklist())
	assert.NoError(t, err)
	assert.Equal(t, []string{"tests-passing"}, report.WaivedCriteria)
	assert.Equal(t, types.DecisionPass, report.Decision)
}

func TestCriticalIssueFails(t *testing.T) {
	e := NewEvaluator(Config{})
	e.RegisterCriterion("acceptance-criteria-met", passAll)
	e.RegisterCriterion("tests-passing", passAll)

	critical := func(target string, m *types.GateMetrics) []*types.QualityIssue {
		return []*types.QualityIssue{{
			Title:    "auth bypass",
			Severity: types.SeverityCritical,
			Category: types.CategorySecurity,
		}}
	}

	report, err := e.Evaluate(StoryGate, "story-1", "qa", fullChecklist(), critical)
	assert.NoError(t, err)
	assert.Equal(t, types.DecisionFail, report.Decision)
	assert.Equal(t, 1, report.Metrics.CriticalIssues)
	assert.Contains(t, report.Recommendations, "Fix all critical issues before proceeding")
}

func TestSecurityScorePenalty(t *testing.T) {
	e := NewEvaluator(Config{})
	e.RegisterCriterion("acceptance-criteria-met", passAll)
	e.RegisterCriterion("tests-passing", passAll)

	twoFindings := func(target string, m *types.GateMetrics) []*types.QualityIssue {
		return []*types.QualityIssue{
			{Title: "weak cipher", Severity: types.SeverityLow, Category: types.CategorySecurity},
			{Title: "verbose error", Severity: types.SeverityLow, Category: types.CategorySecurity},
		}
	}

	report, err := e.Evaluate(StoryGate, "story-1", "qa", fullChecklist(), twoFindings)
	assert.NoError(t, err)
	// 100 - 20 per security finding
	assert.Equal(t, 60.0, report.Metrics.SecurityScore)
	// 60 is not below the story gate's minimum of 60
	assert.Equal(t, types.DecisionPass, report.Decision)
}

func TestLowCoverageRaisesConcerns(t *testing.T) {
	e := NewEvaluator(Config{})
	e.RegisterCriterion("acceptance-criteria-met", passAll)
	e.RegisterCriterion("tests-passing", passAll)

	checklist := &types.Checklist{
		Items: []types.ChecklistItem{
			{Title: "a", Checked: true},
			{Title: "b", Justification: "deferred"},
		},
	}

	report, err := e.Evaluate(StoryGate, "story-1", "qa", checklist)
	assert.NoError(t, err)
	// 0.5 coverage under the 0.7 story threshold
	assert.Equal(t, types.DecisionConcerns, report.Decision)
	assert.NotEmpty(t, report.Recommendations)
}

func TestFailedCriteriaLadder(t *testing.T) {
	e := NewEvaluator(Config{})
	gate := &types.QualityGate{
		ID:   "custom",
		Kind: types.GateKindCustom,
		Criteria: []types.GateCriterion{
			{ID: "c1", Required: true}, {ID: "c2", Required: true},
			{ID: "c3", Required: true}, {ID: "c4", Required: true},
		},
	}
	assert.NoError(t, e.RegisterGate(gate))
	for _, id := range []string{"c1", "c2", "c3", "c4"} {
		e.RegisterCriterion(id, failAll)
	}

	// Four failed criteria cross the hard-fail line
	report, err := e.Evaluate("custom", "t", "qa", fullChecklist())
	assert.NoError(t, err)
	assert.Equal(t, types.DecisionFail, report.Decision)

	// One to three failed criteria only raise concerns
	e.RegisterCriterion("c2", passAll)
	e.RegisterCriterion("c3", passAll)
	e.RegisterCriterion("c4", passAll)
	report, err = e.Evaluate("custom", "t", "qa", fullChecklist())
	assert.NoError(t, err)
	assert.Equal(t, types.DecisionConcerns, report.Decision)
	assert.Equal(t, []string{"c1"}, report.FailedCriteria)
}

func TestOptionalCriteriaNeverFailTheGate(t *testing.T) {
	e := NewEvaluator(Config{})
	gate := &types.QualityGate{
		ID:   "advisory",
		Kind: types.GateKindCustom,
		Criteria: []types.GateCriterion{
			{ID: "c1"}, {ID: "c2"}, {ID: "c3"}, {ID: "c4"},
		},
	}
	assert.NoError(t, e.RegisterGate(gate))
	for _, id := range []string{"c1", "c2", "c3", "c4"} {
		e.RegisterCriterion(id, failAll)
	}

	// Four optional misses: the hard-fail and concerns rungs only count
	// required criteria
	report, err := e.Evaluate("advisory", "t", "qa", fullChecklist())
	assert.NoError(t, err)
	assert.Equal(t, types.DecisionPass, report.Decision)
	assert.Empty(t, report.FailedCriteria)

	// The misses stay visible as a recommendation
	found := false
	for _, rec := range report.Recommendations {
		if strings.Contains(rec, "c1") && strings.Contains(rec, "c4") {
			found = true
		}
	}
	assert.True(t, found, "optional misses should surface in recommendations")
}

func TestWaive(t *testing.T) {
	e := NewEvaluator(Config{})

	// No criteria registered and no checklist: story gate lands on concerns
	report, err := e.EvaluateGate(StoryGate, "doc-1", "team-1")
	assert.NoError(t, err)
	assert.Equal(t, types.DecisionConcerns, report.Decision)

	waived, err := e.Waive(report.ID, "prototype track, gate waived by PM", "pm-agent")
	assert.NoError(t, err)
	assert.Equal(t, types.DecisionWaived, waived.Decision)
	assert.Contains(t, waived.Notes, "original decision concerns")
	assert.Contains(t, waived.Notes, "pm-agent")

	// Waiving twice is rejected
	_, err = e.Waive(report.ID, "again", "pm-agent")
	assert.ErrorIs(t, err, errdefs.ErrPrecondition)

	// Waive requires a reason
	_, err = e.Waive(report.ID, "", "pm-agent")
	assert.ErrorIs(t, err, errdefs.ErrInvalidArgument)

	stored, err := e.Report(report.ID)
	assert.NoError(t, err)
	assert.Equal(t, types.DecisionWaived, stored.Decision)
}

func TestPresetGates(t *testing.T) {
	e := NewEvaluator(Config{})

	for _, id := range []string{StoryGate, SprintGate, ReleaseGate} {
		gate, err := e.Gate(id)
		assert.NoError(t, err)
		assert.NotEmpty(t, gate.Criteria)
	}

	story, _ := e.Gate(StoryGate)
	release, _ := e.Gate(ReleaseGate)
	assert.Less(t, story.Thresholds.MinCoverage, release.Thresholds.MinCoverage)
	assert.LessOrEqual(t, release.Thresholds.MaxHighIssues, story.Thresholds.MaxHighIssues)

	_, err := e.Gate("nonexistent")
	assert.ErrorIs(t, err, errdefs.ErrNotFound)
}

func TestEvaluateUnknownGate(t *testing.T) {
	e := NewEvaluator(Config{})
	_, err := e.Evaluate("ghost", "t", "qa", nil)
	assert.ErrorIs(t, err, errdefs.ErrNotFound)
}

func TestRenderReport(t *testing.T) {
	e := NewEvaluator(Config{})
	report, err := e.EvaluateGate(StoryGate, "doc-1", "team-1")
	assert.NoError(t, err)

	data, err := RenderJSON(report)
	assert.NoError(t, err)
	var decoded map[string]interface{}
	assert.NoError(t, json.Unmarshal(data, &decoded))

	md := string(RenderMarkdown(report))
	assert.Contains(t, md, report.GateID)
	assert.Contains(t, md, string(report.Decision))
}
