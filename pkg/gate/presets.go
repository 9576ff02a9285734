package gate

import (
	"github.com/cadre-dev/cadre/pkg/types"
)

// Preset gate ids
const (
	StoryGate   = "story"
	SprintGate  = "sprint"
	ReleaseGate = "release"
)

// presetGates returns the built-in gates. Story gates are permissive,
// release gates are strict.
func presetGates() []*types.QualityGate {
	return []*types.QualityGate{
		{
			ID:   StoryGate,
			Name: "Story Done",
			Kind: types.GateKindStory,
			Thresholds: types.GateThresholds{
				MinCoverage:       0.7,
				MaxCriticalIssues: 0,
				MaxHighIssues:     2,
				MinSecurityScore:  60,
			},
			Criteria: []types.GateCriterion{
				{ID: "acceptance-criteria-met", Description: "All acceptance criteria are met", Required: true},
				{ID: "tests-passing", Description: "Tests pass for the change", Required: true},
			},
		},
		{
			ID:   SprintGate,
			Name: "Sprint Review",
			Kind: types.GateKindSprint,
			Thresholds: types.GateThresholds{
				MinCoverage:       0.8,
				MaxCriticalIssues: 0,
				MaxHighIssues:     1,
				MinSecurityScore:  70,
			},
			Criteria: []types.GateCriterion{
				{ID: "sprint-goal-met", Description: "The sprint goal was reached", Required: true},
				{ID: "demo-ready", Description: "Increment is demonstrable", Required: false},
			},
		},
		{
			ID:   ReleaseGate,
			Name: "Release Readiness",
			Kind: types.GateKindRelease,
			Thresholds: types.GateThresholds{
				MinCoverage:         0.9,
				MaxCriticalIssues:   0,
				MaxHighIssues:       0,
				MinSecurityScore:    80,
				MinPerformanceScore: 70,
				MinOverallScore:     75,
			},
			Criteria: []types.GateCriterion{
				{ID: "security-review", Description: "Security review completed", Required: true},
				{ID: "performance-baseline", Description: "Performance baseline holds", Required: true},
				{ID: "docs-current", Description: "Documentation is up to date", Required: false},
				{ID: "rollback-plan", Description: "Rollback plan exists", Required: true},
			},
		},
	}
}
