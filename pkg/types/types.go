package types

import (
	"time"
)

// Skill is an enumerated capability tag carried by agents and requested
// by allocation requests.
type Skill string

const (
	SkillGeneral         Skill = "general"
	SkillDevelopment     Skill = "development"
	SkillArchitecture    Skill = "architecture"
	SkillTesting         Skill = "testing"
	SkillDesign          Skill = "design"
	SkillDocumentation   Skill = "documentation"
	SkillSecurity        Skill = "security"
	SkillDataAnalysis    Skill = "data_analysis"
	SkillProjectMgmt     Skill = "project_management"
	SkillCustomerService Skill = "customer_service"
)

// AgentState represents the lifecycle state of an agent
type AgentState string

const (
	AgentStateAvailable   AgentState = "available"
	AgentStateAllocated   AgentState = "allocated"
	AgentStateBusy        AgentState = "busy"
	AgentStateMaintenance AgentState = "maintenance"
	AgentStateError       AgentState = "error"
	AgentStateTerminating AgentState = "terminating"
)

// Agent represents an autonomous unit of execution in the pool.
// State transitions are totally ordered per agent and only ever observed
// under the pool's mutex; an agent is bound to at most one team.
type Agent struct {
	ID               string
	Profile          string
	Skills           []Skill
	State            AgentState
	PerformanceScore float64 // [0,1]
	TotalAllocations int
	LastHealthCheck  time.Time
	TeamID           string // empty when unbound
	CreatedAt        time.Time
}

// HasSkill reports whether the agent carries the given skill
func (a *Agent) HasSkill(skill Skill) bool {
	for _, s := range a.Skills {
		if s == skill {
			return true
		}
	}
	return false
}

// Resources describes a resource budget or usage snapshot
type Resources struct {
	CPUCores      float64
	MemoryBytes   int64
	StorageBytes  int64
	BandwidthMbps int64
}

// Add returns the component-wise sum of two resource sets
func (r Resources) Add(other Resources) Resources {
	return Resources{
		CPUCores:      r.CPUCores + other.CPUCores,
		MemoryBytes:   r.MemoryBytes + other.MemoryBytes,
		StorageBytes:  r.StorageBytes + other.StorageBytes,
		BandwidthMbps: r.BandwidthMbps + other.BandwidthMbps,
	}
}

// Sub returns r minus other, clamped at zero per component
func (r Resources) Sub(other Resources) Resources {
	out := Resources{
		CPUCores:      r.CPUCores - other.CPUCores,
		MemoryBytes:   r.MemoryBytes - other.MemoryBytes,
		StorageBytes:  r.StorageBytes - other.StorageBytes,
		BandwidthMbps: r.BandwidthMbps - other.BandwidthMbps,
	}
	if out.CPUCores < 0 {
		out.CPUCores = 0
	}
	if out.MemoryBytes < 0 {
		out.MemoryBytes = 0
	}
	if out.StorageBytes < 0 {
		out.StorageBytes = 0
	}
	if out.BandwidthMbps < 0 {
		out.BandwidthMbps = 0
	}
	return out
}

// Scale returns the resources multiplied by n
func (r Resources) Scale(n int) Resources {
	return Resources{
		CPUCores:      r.CPUCores * float64(n),
		MemoryBytes:   r.MemoryBytes * int64(n),
		StorageBytes:  r.StorageBytes * int64(n),
		BandwidthMbps: r.BandwidthMbps * int64(n),
	}
}

// Fits reports whether r fits inside the given capacity
func (r Resources) Fits(capacity Resources) bool {
	return r.CPUCores <= capacity.CPUCores &&
		r.MemoryBytes <= capacity.MemoryBytes &&
		r.StorageBytes <= capacity.StorageBytes &&
		r.BandwidthMbps <= capacity.BandwidthMbps
}

// AllocationRequest asks the pool for N agents matching a skill profile
type AllocationRequest struct {
	ID                string
	RequesterID       string
	TeamID            string
	Count             int
	RequiredSkills    []Skill
	OptionalSkills    []Skill
	PreferredProfiles []string
	MinPerformance    float64
	PerAgentResources Resources
	Priority          int
	CreatedAt         time.Time
}

// TeamType declares the organizational shape of a team
type TeamType string

const (
	TeamTypeCrossFunctional TeamType = "cross_functional"
	TeamTypeSelfManaging    TeamType = "self_managing"
	TeamTypeFlowToWork      TeamType = "flow_to_work"
	TeamTypeSquad           TeamType = "squad"
	TeamTypeTaskForce       TeamType = "task_force"
)

// TeamState represents the team lifecycle (Tuckman stages plus dissolution)
type TeamState string

const (
	TeamStateForming    TeamState = "forming"
	TeamStateStorming   TeamState = "storming"
	TeamStateNorming    TeamState = "norming"
	TeamStatePerforming TeamState = "performing"
	TeamStateAdjourning TeamState = "adjourning"
	TeamStateDissolved  TeamState = "dissolved"
)

// TeamRole is the role an agent plays within a team
type TeamRole string

const (
	RoleLeader      TeamRole = "leader"
	RoleCoordinator TeamRole = "coordinator"
	RoleSpecialist  TeamRole = "specialist"
	RoleReviewer    TeamRole = "reviewer"
	RoleMember      TeamRole = "member"
)

// TeamMember binds an agent into a team with a role and specialization tag
type TeamMember struct {
	AgentID        string
	Role           TeamRole
	Specialization Skill
	JoinedAt       time.Time
}

// TeamMetrics holds rolling per-team scores
type TeamMetrics struct {
	Velocity      float64 // completed tasks per hour since formation
	Quality       float64 // [0,1]
	Efficiency    float64 // [0,1]
	Collaboration float64 // [0,1]
}

// Team represents a time-bounded grouping of agents with a mission and budget.
// Invariants: every member's agent is ALLOCATED and bound to this team;
// at most one member holds RoleLeader.
type Team struct {
	ID             string
	Name           string
	Type           TeamType
	Mission        string
	State          TeamState
	Members        map[string]*TeamMember // agent id -> member
	Budget         Resources
	Usage          Resources
	WorkflowID     string
	ActiveTasks    []string
	CompletedTasks []string
	Metrics        TeamMetrics
	CreatedAt      time.Time
	UpdatedAt      time.Time
	LastActivity   time.Time
	DissolvedAt    time.Time
	DissolveReason string
}

// LeaderID returns the agent id of the team leader, or "" when none is assigned
func (t *Team) LeaderID() string {
	for id, m := range t.Members {
		if m.Role == RoleLeader {
			return id
		}
	}
	return ""
}

// MemberIDs returns the agent ids of all members
func (t *Team) MemberIDs() []string {
	ids := make([]string, 0, len(t.Members))
	for id := range t.Members {
		ids = append(ids, id)
	}
	return ids
}
