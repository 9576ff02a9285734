package storage

import (
	"github.com/cadre-dev/cadre/pkg/types"
)

// Store defines the interface for orchestrator state snapshots.
// In-memory component state is authoritative; stores are write-behind.
type Store interface {
	// Agents
	SaveAgent(agent *types.Agent) error
	GetAgent(id string) (*types.Agent, error)
	ListAgents() ([]*types.Agent, error)
	DeleteAgent(id string) error

	// Documents
	SaveDocument(doc *types.Document) error
	GetDocument(id string) (*types.Document, error)
	ListDocuments() ([]*types.Document, error)
	DeleteDocument(id string) error

	// Version chains (root document id -> ordered version ids)
	SaveVersionChain(rootID string, versionIDs []string) error
	GetVersionChain(rootID string) ([]string, error)

	// Handoffs
	SaveHandoff(handoff *types.Handoff) error
	GetHandoff(id string) (*types.Handoff, error)
	ListHandoffs() ([]*types.Handoff, error)
	DeleteHandoff(id string) error

	// Teams
	SaveTeam(team *types.Team) error
	GetTeam(id string) (*types.Team, error)
	ListTeams() ([]*types.Team, error)
	DeleteTeam(id string) error

	// Team archive (snapshot at dissolution)
	ArchiveTeam(team *types.Team) error
	GetArchivedTeam(id string) (*types.Team, error)
	ListArchivedTeams() ([]*types.Team, error)

	// Workflow definitions and instances
	SaveWorkflow(def *types.WorkflowDefinition) error
	GetWorkflow(id string) (*types.WorkflowDefinition, error)
	ListWorkflows() ([]*types.WorkflowDefinition, error)
	SaveWorkflowInstance(instance *types.WorkflowInstance) error
	GetWorkflowInstance(id string) (*types.WorkflowInstance, error)
	ListWorkflowInstances() ([]*types.WorkflowInstance, error)
	DeleteWorkflowInstance(id string) error

	// Quality gate reports
	SaveGateReport(report *types.GateReport) error
	GetGateReport(id string) (*types.GateReport, error)
	ListGateReports() ([]*types.GateReport, error)

	// Utility
	Close() error
}
