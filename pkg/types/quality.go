package types

import (
	"time"
)

// GateKind classifies quality gates by the stage they guard
type GateKind string

const (
	GateKindStory   GateKind = "story"
	GateKindSprint  GateKind = "sprint"
	GateKindRelease GateKind = "release"
	GateKindCustom  GateKind = "custom"
)

// GateDecision is the outcome of a quality-gate evaluation
type GateDecision string

const (
	DecisionPass     GateDecision = "pass"
	DecisionConcerns GateDecision = "concerns"
	DecisionFail     GateDecision = "fail"
	DecisionWaived   GateDecision = "waived"
	DecisionPending  GateDecision = "pending"
	DecisionBlocked  GateDecision = "blocked"
)

// IssueSeverity tiers quality issues
type IssueSeverity string

const (
	SeverityLow      IssueSeverity = "low"
	SeverityMedium   IssueSeverity = "medium"
	SeverityHigh     IssueSeverity = "high"
	SeverityCritical IssueSeverity = "critical"
)

// IssueCategory classifies what a quality issue is about
type IssueCategory string

const (
	CategoryFunctional    IssueCategory = "functional"
	CategoryPerformance   IssueCategory = "performance"
	CategorySecurity      IssueCategory = "security"
	CategoryUsability     IssueCategory = "usability"
	CategoryDocumentation IssueCategory = "documentation"
	CategoryTesting       IssueCategory = "testing"
	CategoryArchitecture  IssueCategory = "architecture"
	CategoryCompliance    IssueCategory = "compliance"
	CategoryTechnicalDebt IssueCategory = "technical_debt"
	CategoryAccessibility IssueCategory = "accessibility"
)

// IssueWaiver records that an issue was deliberately accepted
type IssueWaiver struct {
	Reason   string
	Actor    string
	WaivedAt time.Time
}

// QualityIssue is a single finding raised during a gate evaluation
type QualityIssue struct {
	ID              string
	Title           string
	Description     string
	Severity        IssueSeverity
	Category        IssueCategory
	Finding         string
	Expected        string
	Impact          string
	SuggestedAction string
	DetectedAt      time.Time
	ResolvedAt      time.Time
	Waiver          *IssueWaiver
}

// GateThresholds are the numeric limits a gate evaluates against
type GateThresholds struct {
	MinCoverage         float64 // fraction of checklist items passed
	MinTestCoverage     float64
	MaxCriticalIssues   int
	MaxHighIssues       int
	MinSecurityScore    float64
	MinPerformanceScore float64
	MinOverallScore     float64
}

// GateCriterion names a predicate evaluated during the gate run.
// The predicate itself is registered with the evaluator by id.
type GateCriterion struct {
	ID          string
	Description string
	Required    bool
}

// QualityGate is a decision point applying thresholds and criteria to a target
type QualityGate struct {
	ID         string
	Name       string
	Kind       GateKind
	Thresholds GateThresholds
	Criteria   []GateCriterion
}

// GateMetrics is the metrics snapshot embedded in a gate report
type GateMetrics struct {
	TotalChecks      int
	PassedChecks     int
	FailedChecks     int
	SkippedChecks    int
	Coverage         float64
	SecurityScore    float64
	PerformanceScore float64
	OverallScore     float64
	CriticalIssues   int
	HighIssues       int
	MediumIssues     int
	LowIssues        int
}

// GateReport is the full outcome of a gate evaluation
type GateReport struct {
	ID              string
	GateID          string
	Target          string // document, story or sprint reference
	Assessor        string
	Decision        GateDecision
	Metrics         GateMetrics
	PassedCriteria  []string
	FailedCriteria  []string
	WaivedCriteria  []string
	Recommendations []string
	Issues          []*QualityIssue
	Notes           string
	EvaluatedAt     time.Time
}

// ChecklistItem is one entry of a gate input checklist
type ChecklistItem struct {
	Title         string
	Checked       bool
	Skipped       bool
	Justification string
}

// Checklist seeds a gate evaluation with already-performed checks
type Checklist struct {
	Name  string
	Items []ChecklistItem
}
