package types

import (
	"time"
)

// WorkflowState represents the overall status of a workflow instance
type WorkflowState string

const (
	WorkflowStatePending   WorkflowState = "pending"
	WorkflowStateRunning   WorkflowState = "running"
	WorkflowStateCompleted WorkflowState = "completed"
	WorkflowStateFailed    WorkflowState = "failed"
	WorkflowStateCancelled WorkflowState = "cancelled"
)

// StepState represents the status of a single step within an instance
type StepState string

const (
	StepStatePending   StepState = "pending"
	StepStateRunning   StepState = "running"
	StepStateCompleted StepState = "completed"
	StepStateFailed    StepState = "failed"
	StepStateSkipped   StepState = "skipped"
)

// WorkflowStep declares one document-producing step of a workflow.
// A step becomes runnable as soon as all its input document types have
// been produced by earlier steps (or were supplied in the start context).
type WorkflowStep struct {
	ID             string
	Name           string
	Role           TeamRole // executor role within the team
	InputTypes     []DocumentType
	InputDocuments []string // explicit document ids, resolved as-is
	OutputType     DocumentType
	OutputTitle    string
	Action         ExpectedAction
	GateID         string // optional quality gate
	Timeout        time.Duration
}

// WorkflowDefinition is an ordered DAG of steps executed by a team
type WorkflowDefinition struct {
	ID          string
	Name        string
	Description string
	Steps       []*WorkflowStep
	CreatedAt   time.Time
}

// WorkflowInstance carries the execution state of one workflow run
type WorkflowInstance struct {
	ID           string
	WorkflowID   string
	TeamID       string
	State        WorkflowState
	StepStates   map[string]StepState      // step id -> state
	StepHandoffs map[string]string         // step id -> handoff id (in flight)
	Produced     map[DocumentType]string   // output type -> document id
	ProducedDocs []string                  // all produced document ids in order
	Annotations  []string                  // gate waivers and similar notes
	Context      map[string]string
	Error        string
	StartedAt    time.Time
	FinishedAt   time.Time
}
