package team

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/cadre-dev/cadre/pkg/control"
	"github.com/cadre-dev/cadre/pkg/errdefs"
	"github.com/cadre-dev/cadre/pkg/events"
	"github.com/cadre-dev/cadre/pkg/log"
	"github.com/cadre-dev/cadre/pkg/metrics"
	"github.com/cadre-dev/cadre/pkg/pool"
	"github.com/cadre-dev/cadre/pkg/protocol"
	"github.com/cadre-dev/cadre/pkg/storage"
	"github.com/cadre-dev/cadre/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// DefaultLeaderThreshold is the team size at or above which a leader
	// role is assigned.
	DefaultLeaderThreshold = 3

	// performingScore is the rolling score all three team metrics must
	// reach before the team transitions to PERFORMING.
	performingScore = 0.7

	DefaultMinTeamSize       = 2
	DefaultMaxTeamSize       = 12
	DefaultMaxTeams          = 20
	DefaultCheckInterval     = 30 * time.Second
	DefaultAutoDissolveAfter = 2 * time.Hour
	DefaultFormationTimeout  = 30 * time.Second
)

// specializationPriority orders skills from most to least specific when
// deriving a member's specialization tag.
var specializationPriority = []types.Skill{
	types.SkillArchitecture,
	types.SkillSecurity,
	types.SkillDevelopment,
	types.SkillTesting,
	types.SkillDesign,
	types.SkillDataAnalysis,
	types.SkillDocumentation,
	types.SkillProjectMgmt,
	types.SkillCustomerService,
	types.SkillGeneral,
}

// Config holds orchestrator configuration
type Config struct {
	MinTeamSize        int
	MaxTeamSize        int
	MaxTeams           int
	LeaderThreshold    int
	BaseResources      types.Resources
	PerMemberResources types.Resources
	CheckInterval      time.Duration
	AutoDissolveAfter  time.Duration
	FormationTimeout   time.Duration

	Pool      *pool.Pool
	Allocator control.ResourceAllocator
	Policy    control.PolicyGate
	Store     storage.Store
	Broker    *events.Broker
}

// DefaultConfig returns an orchestrator configuration with sane defaults
func DefaultConfig() Config {
	return Config{
		MinTeamSize:        DefaultMinTeamSize,
		MaxTeamSize:        DefaultMaxTeamSize,
		MaxTeams:           DefaultMaxTeams,
		LeaderThreshold:    DefaultLeaderThreshold,
		BaseResources:      types.Resources{CPUCores: 1, MemoryBytes: 256 << 20},
		PerMemberResources: types.Resources{CPUCores: 0.5, MemoryBytes: 128 << 20},
		CheckInterval:      DefaultCheckInterval,
		AutoDissolveAfter:  DefaultAutoDissolveAfter,
		FormationTimeout:   DefaultFormationTimeout,
	}
}

// FormationRequest describes the team to assemble
type FormationRequest struct {
	Name              string
	Type              types.TeamType
	Mission           string
	Size              int
	RequiredSkills    []types.Skill
	OptionalSkills    []types.Skill
	PreferredProfiles []string
	Priority          int
	RequesterID       string
}

// Orchestrator is the single authority on team membership and lifecycle.
// Agent state itself stays under the pool's authority.
type Orchestrator struct {
	mu sync.RWMutex

	cfg       Config
	teams     map[string]*types.Team
	tasks     map[string]*types.Task
	monitors  map[string]chan struct{}
	handles   map[string]control.AllocationHandle
	protocols map[string]*protocol.Protocol
	shutdown  bool

	logger zerolog.Logger
}

// NewOrchestrator creates a team orchestrator
func NewOrchestrator(cfg Config) *Orchestrator {
	if cfg.LeaderThreshold == 0 {
		cfg.LeaderThreshold = DefaultLeaderThreshold
	}
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = DefaultCheckInterval
	}
	if cfg.AutoDissolveAfter == 0 {
		cfg.AutoDissolveAfter = DefaultAutoDissolveAfter
	}
	if cfg.FormationTimeout == 0 {
		cfg.FormationTimeout = DefaultFormationTimeout
	}
	return &Orchestrator{
		cfg:       cfg,
		teams:     make(map[string]*types.Team),
		tasks:     make(map[string]*types.Task),
		monitors:  make(map[string]chan struct{}),
		handles:   make(map[string]control.AllocationHandle),
		protocols: make(map[string]*protocol.Protocol),
		logger:    log.WithComponent("team"),
	}
}

// FormTeam validates the request, passes the policy gate, reserves resources,
// allocates agents and assigns roles. A formation failure leaves no partial
// team behind.
func (o *Orchestrator) FormTeam(req FormationRequest) (*types.Team, error) {
	if req.Size < o.cfg.MinTeamSize || req.Size > o.cfg.MaxTeamSize {
		return nil, errdefs.InvalidArgument("team size %d outside [%d,%d]",
			req.Size, o.cfg.MinTeamSize, o.cfg.MaxTeamSize)
	}
	if req.Type == "" {
		req.Type = types.TeamTypeCrossFunctional
	}

	o.mu.Lock()
	if o.shutdown {
		o.mu.Unlock()
		return nil, errdefs.Precondition("orchestrator is shut down")
	}
	if len(o.teams) >= o.cfg.MaxTeams {
		o.mu.Unlock()
		return nil, errdefs.ResourceExhausted("team limit reached (%d)", o.cfg.MaxTeams)
	}
	o.mu.Unlock()

	teamID := uuid.New().String()

	if o.cfg.Policy != nil {
		result := o.cfg.Policy.Validate(control.Decision{
			Action:  "form_team",
			ActorID: req.RequesterID,
			TeamID:  teamID,
			Subject: req.Mission,
		})
		if !result.Approved {
			return nil, errdefs.PolicyDenied("team formation denied: %v", result.Reasons)
		}
	}

	budget := o.cfg.BaseResources.Add(o.cfg.PerMemberResources.Scale(req.Size))
	var handle control.AllocationHandle
	if o.cfg.Allocator != nil {
		var err error
		handle, err = o.cfg.Allocator.Reserve(teamID, budget, req.Priority)
		if err != nil {
			return nil, err
		}
	}

	agents, err := o.allocateMembers(teamID, req)
	if err != nil {
		o.releaseHandle(handle)
		return nil, err
	}

	now := time.Now().UTC()
	team := &types.Team{
		ID:           teamID,
		Name:         req.Name,
		Type:         req.Type,
		Mission:      req.Mission,
		State:        types.TeamStateForming,
		Members:      assignRoles(agents, o.cfg.LeaderThreshold),
		Budget:       budget,
		CreatedAt:    now,
		UpdatedAt:    now,
		LastActivity: now,
	}
	// Allocation succeeded: the team is activated
	team.State = types.TeamStateStorming

	stopCh := make(chan struct{})
	o.mu.Lock()
	// Re-check admission at commit time: concurrent formations race past the
	// early check, so the limit only holds under the same lock that inserts.
	if o.shutdown || len(o.teams) >= o.cfg.MaxTeams {
		wasShutdown := o.shutdown
		o.mu.Unlock()
		if o.cfg.Pool != nil {
			o.cfg.Pool.Release(teamID)
		}
		o.releaseHandle(handle)
		if wasShutdown {
			return nil, errdefs.Precondition("orchestrator is shut down")
		}
		return nil, errdefs.ResourceExhausted("team limit reached (%d)", o.cfg.MaxTeams)
	}
	o.teams[team.ID] = team
	o.monitors[team.ID] = stopCh
	o.handles[team.ID] = handle
	o.protocols[team.ID] = protocol.NewProtocol(team.ID, memberIDs(team))
	o.updateGaugesLocked()
	o.mu.Unlock()

	go o.monitorTeam(team.ID, stopCh)

	o.persist(team)
	o.publish(events.EventTeamFormed, team.ID, "")
	o.logger.Info().Str("team_id", team.ID).Int("size", len(team.Members)).
		Str("type", string(team.Type)).Msg("team formed")
	return cloneTeam(team), nil
}

// allocateMembers requests agents from the pool, waiting out a queued
// request up to the formation timeout.
func (o *Orchestrator) allocateMembers(teamID string, req FormationRequest) ([]*types.Agent, error) {
	if o.cfg.Pool == nil {
		return nil, errdefs.Precondition("no agent pool configured")
	}

	result, err := o.cfg.Pool.Allocate(types.AllocationRequest{
		ID:                uuid.New().String(),
		RequesterID:       req.RequesterID,
		TeamID:            teamID,
		Count:             req.Size,
		RequiredSkills:    req.RequiredSkills,
		OptionalSkills:    req.OptionalSkills,
		PreferredProfiles: req.PreferredProfiles,
		Priority:          req.Priority,
	})
	if err != nil {
		return nil, err
	}
	if !result.Queued {
		return result.Agents, nil
	}

	select {
	case outcome, ok := <-result.Outcome:
		if !ok {
			return nil, errdefs.ResourceExhausted("allocation request cancelled")
		}
		if outcome.Err != nil {
			return nil, outcome.Err
		}
		return outcome.Agents, nil
	case <-time.After(o.cfg.FormationTimeout):
		o.cfg.Pool.CancelRequest(result.RequestID)
		return nil, errdefs.ResourceExhausted("insufficient agents within formation timeout")
	}
}

// assignRoles sorts candidates by performance and maps each to a role plus a
// specialization tag.
func assignRoles(agents []*types.Agent, leaderThreshold int) map[string]*types.TeamMember {
	sorted := append([]*types.Agent(nil), agents...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].PerformanceScore != sorted[j].PerformanceScore {
			return sorted[i].PerformanceScore > sorted[j].PerformanceScore
		}
		return sorted[i].ID < sorted[j].ID
	})

	size := len(sorted)
	firstThird := (size + 2) / 3
	now := time.Now().UTC()

	members := make(map[string]*types.TeamMember, size)
	for i, agent := range sorted {
		var role types.TeamRole
		switch {
		case i == 0 && size >= leaderThreshold:
			role = types.RoleLeader
		case agent.HasSkill(types.SkillArchitecture):
			role = types.RoleSpecialist
		case agent.HasSkill(types.SkillTesting) && i < firstThird:
			role = types.RoleReviewer
		case i == 0:
			role = types.RoleCoordinator
		default:
			role = types.RoleMember
		}
		members[agent.ID] = &types.TeamMember{
			AgentID:        agent.ID,
			Role:           role,
			Specialization: specialization(agent),
			JoinedAt:       now,
		}
	}
	return members
}

// specialization picks the agent's strongest skill by the fixed priority list
func specialization(agent *types.Agent) types.Skill {
	for _, skill := range specializationPriority {
		if agent.HasSkill(skill) {
			return skill
		}
	}
	return types.SkillGeneral
}

// DissolveTeam archives the team snapshot and releases agents and resources.
// Release failures are logged, not surfaced; the team always reaches
// DISSOLVED.
func (o *Orchestrator) DissolveTeam(teamID, reason string) error {
	o.mu.Lock()
	team, ok := o.teams[teamID]
	if !ok {
		o.mu.Unlock()
		return errdefs.NotFound("team %s", teamID)
	}
	if team.State == types.TeamStateAdjourning || team.State == types.TeamStateDissolved {
		o.mu.Unlock()
		return errdefs.Precondition("team %s is already dissolving", teamID)
	}
	team.State = types.TeamStateAdjourning
	team.UpdatedAt = time.Now().UTC()
	if stopCh, ok := o.monitors[teamID]; ok {
		close(stopCh)
		delete(o.monitors, teamID)
	}
	handle := o.handles[teamID]
	delete(o.handles, teamID)
	delete(o.protocols, teamID)
	o.mu.Unlock()

	if o.cfg.Pool != nil {
		o.cfg.Pool.Release(teamID)
	}
	o.releaseHandle(handle)

	o.mu.Lock()
	team.State = types.TeamStateDissolved
	team.DissolvedAt = time.Now().UTC()
	team.DissolveReason = reason
	team.UpdatedAt = team.DissolvedAt
	snapshot := cloneTeam(team)
	delete(o.teams, teamID)
	o.updateGaugesLocked()
	o.mu.Unlock()

	if o.cfg.Store != nil {
		if err := o.cfg.Store.ArchiveTeam(snapshot); err != nil {
			o.logger.Error().Err(err).Str("team_id", teamID).Msg("failed to archive team")
		}
		if err := o.cfg.Store.DeleteTeam(teamID); err != nil && !errors.Is(err, errdefs.ErrNotFound) {
			o.logger.Error().Err(err).Str("team_id", teamID).Msg("failed to remove team snapshot")
		}
	}
	o.publish(events.EventTeamDissolved, teamID, reason)
	o.logger.Info().Str("team_id", teamID).Str("reason", reason).Msg("team dissolved")
	return nil
}

// AssignTask records a new active task for the team
func (o *Orchestrator) AssignTask(teamID string, task *types.Task) error {
	o.mu.Lock()
	team, ok := o.teams[teamID]
	if !ok {
		o.mu.Unlock()
		return errdefs.NotFound("team %s", teamID)
	}
	if team.State == types.TeamStateAdjourning || team.State == types.TeamStateDissolved {
		o.mu.Unlock()
		return errdefs.Precondition("team %s is dissolving", teamID)
	}
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	if task.AssignedTo != "" {
		if _, member := team.Members[task.AssignedTo]; !member {
			o.mu.Unlock()
			return errdefs.InvalidArgument("agent %s is not a member of team %s", task.AssignedTo, teamID)
		}
	}
	now := time.Now().UTC()
	task.TeamID = teamID
	task.Status = types.TaskStatusInProgress
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.StartedAt = now
	o.tasks[task.ID] = task
	team.ActiveTasks = append(team.ActiveTasks, task.ID)
	team.LastActivity = now
	team.UpdatedAt = now
	snapshot := cloneTeam(team)
	o.mu.Unlock()

	o.persist(snapshot)
	return nil
}

// CompleteTask moves a task from active to completed and folds the result
// into the team's rolling metrics. Velocity is completed tasks per hour
// since formation.
func (o *Orchestrator) CompleteTask(teamID string, result types.TaskResult) error {
	o.mu.Lock()
	team, ok := o.teams[teamID]
	if !ok {
		o.mu.Unlock()
		return errdefs.NotFound("team %s", teamID)
	}
	idx := -1
	for i, id := range team.ActiveTasks {
		if id == result.TaskID {
			idx = i
			break
		}
	}
	if idx < 0 {
		o.mu.Unlock()
		return errdefs.NotFound("task %s is not active on team %s", result.TaskID, teamID)
	}

	now := time.Now().UTC()
	team.ActiveTasks = append(team.ActiveTasks[:idx], team.ActiveTasks[idx+1:]...)
	team.CompletedTasks = append(team.CompletedTasks, result.TaskID)
	if task, ok := o.tasks[result.TaskID]; ok {
		task.Status = types.TaskStatusCompleted
		task.CompletedAt = now
	}

	// Rolling running average per completed task
	team.Metrics.Quality = rollingAverage(team.Metrics.Quality, clamp01(result.Quality))
	team.Metrics.Efficiency = rollingAverage(team.Metrics.Efficiency, clamp01(result.Efficiency))
	hours := now.Sub(team.CreatedAt).Hours()
	if hours > 0 {
		team.Metrics.Velocity = float64(len(team.CompletedTasks)) / hours
	}
	if team.State == types.TeamStateStorming {
		team.State = types.TeamStateNorming
	}
	team.LastActivity = now
	team.UpdatedAt = now
	snapshot := cloneTeam(team)
	o.updateGaugesLocked()
	o.mu.Unlock()

	metrics.TeamTasksCompleted.Inc()
	o.persist(snapshot)
	return nil
}

// UpdateCollaboration sets the team's rolling collaboration score
func (o *Orchestrator) UpdateCollaboration(teamID string, score float64) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	team, ok := o.teams[teamID]
	if !ok {
		return errdefs.NotFound("team %s", teamID)
	}
	team.Metrics.Collaboration = rollingAverage(team.Metrics.Collaboration, clamp01(score))
	team.UpdatedAt = time.Now().UTC()
	return nil
}

// stateOrder indexes the forward-only lifecycle
var stateOrder = map[types.TeamState]int{
	types.TeamStateForming:    0,
	types.TeamStateStorming:   1,
	types.TeamStateNorming:    2,
	types.TeamStatePerforming: 3,
	types.TeamStateAdjourning: 4,
	types.TeamStateDissolved:  5,
}

// UpdateStatus advances the team lifecycle. Transitions only move forward;
// dissolution goes through DissolveTeam.
func (o *Orchestrator) UpdateStatus(teamID string, state types.TeamState) error {
	next, ok := stateOrder[state]
	if !ok {
		return errdefs.InvalidArgument("unknown team state: %s", state)
	}
	if state == types.TeamStateAdjourning || state == types.TeamStateDissolved {
		return errdefs.InvalidArgument("use DissolveTeam to dissolve a team")
	}

	o.mu.Lock()
	team, found := o.teams[teamID]
	if !found {
		o.mu.Unlock()
		return errdefs.NotFound("team %s", teamID)
	}
	if next <= stateOrder[team.State] {
		prev := team.State
		o.mu.Unlock()
		return errdefs.Precondition("cannot transition team %s from %s to %s", teamID, prev, state)
	}
	prev := team.State
	team.State = state
	team.UpdatedAt = time.Now().UTC()
	snapshot := cloneTeam(team)
	o.updateGaugesLocked()
	o.mu.Unlock()

	o.persist(snapshot)
	o.publishStateChange(teamID, prev, state)
	return nil
}

// BindWorkflow records the team's current workflow
func (o *Orchestrator) BindWorkflow(teamID, workflowID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	team, ok := o.teams[teamID]
	if !ok {
		return errdefs.NotFound("team %s", teamID)
	}
	team.WorkflowID = workflowID
	team.LastActivity = time.Now().UTC()
	team.UpdatedAt = team.LastActivity
	return nil
}

// Recommendations runs the advisory rule engine over the team's current shape
func (o *Orchestrator) Recommendations(teamID string) ([]string, error) {
	o.mu.RLock()
	team, ok := o.teams[teamID]
	if !ok {
		o.mu.RUnlock()
		return nil, errdefs.NotFound("team %s", teamID)
	}
	size := len(team.Members)
	quality := team.Metrics.Quality
	ids := memberIDs(team)
	o.mu.RUnlock()

	// Pool queries happen outside the orchestrator lock
	hasTesting := false
	if o.cfg.Pool != nil {
		for _, agentID := range ids {
			if agent, err := o.cfg.Pool.Get(agentID); err == nil && agent.HasSkill(types.SkillTesting) {
				hasTesting = true
				break
			}
		}
	}

	var out []string
	if size < o.cfg.MinTeamSize+1 {
		out = append(out, "Consider adding members: team is at minimum viable size")
	}
	if quality < 0.5 && quality > 0 {
		out = append(out, "Quality score is low: schedule quality-focused training")
	}
	if !hasTesting {
		out = append(out, "No testing skill on the team: add a QA-capable agent")
	}
	return out, nil
}

// Protocol returns the team's communication protocol. Handlers, votes and
// synchronization primitives all hang off it.
func (o *Orchestrator) Protocol(teamID string) (*protocol.Protocol, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	p, ok := o.protocols[teamID]
	if !ok {
		return nil, errdefs.NotFound("team %s", teamID)
	}
	return p, nil
}

// GetTeam returns a copy of an active team
func (o *Orchestrator) GetTeam(teamID string) (*types.Team, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	team, ok := o.teams[teamID]
	if !ok {
		return nil, errdefs.NotFound("team %s", teamID)
	}
	return cloneTeam(team), nil
}

// ListTeams returns copies of all active teams sorted by creation time
func (o *Orchestrator) ListTeams() []*types.Team {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]*types.Team, 0, len(o.teams))
	for _, team := range o.teams {
		out = append(out, cloneTeam(team))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// GetTask returns a copy of a tracked task
func (o *Orchestrator) GetTask(taskID string) (*types.Task, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	task, ok := o.tasks[taskID]
	if !ok {
		return nil, errdefs.NotFound("task %s", taskID)
	}
	c := *task
	return &c, nil
}

// Load restores active teams from the snapshot store and restarts their
// monitors. Dissolved teams stay in the archive.
func (o *Orchestrator) Load() error {
	if o.cfg.Store == nil {
		return nil
	}
	teams, err := o.cfg.Store.ListTeams()
	if err != nil {
		return errdefs.Fatal("failed to load teams: %v", err)
	}

	var ids []string
	o.mu.Lock()
	for _, t := range teams {
		if t.State == types.TeamStateDissolved {
			continue
		}
		o.teams[t.ID] = t
		stopCh := make(chan struct{})
		o.monitors[t.ID] = stopCh
		o.protocols[t.ID] = protocol.NewProtocol(t.ID, memberIDs(t))
		ids = append(ids, t.ID)
	}
	o.updateGaugesLocked()
	o.mu.Unlock()

	for _, id := range ids {
		o.mu.RLock()
		stopCh := o.monitors[id]
		o.mu.RUnlock()
		go o.monitorTeam(id, stopCh)
	}
	return nil
}

// Shutdown stops monitors and dissolves all remaining teams
func (o *Orchestrator) Shutdown() {
	o.mu.Lock()
	if o.shutdown {
		o.mu.Unlock()
		return
	}
	o.shutdown = true
	ids := make([]string, 0, len(o.teams))
	for id := range o.teams {
		ids = append(ids, id)
	}
	o.mu.Unlock()

	for _, id := range ids {
		if err := o.DissolveTeam(id, "orchestrator shutdown"); err != nil {
			o.logger.Warn().Err(err).Str("team_id", id).Msg("dissolve on shutdown failed")
		}
	}
}

// monitorTeam is the per-team lifecycle monitor. It promotes NORMING teams
// to PERFORMING when the rolling scores clear the bar and schedules
// dissolution for idle teams.
func (o *Orchestrator) monitorTeam(teamID string, stopCh chan struct{}) {
	ticker := time.NewTicker(o.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if o.checkTeam(teamID) {
				return
			}
		case <-stopCh:
			return
		}
	}
}

// checkTeam evaluates the transition and idle predicates once. Returns true
// when the team was dissolved and the monitor should exit.
func (o *Orchestrator) checkTeam(teamID string) bool {
	o.mu.Lock()
	team, ok := o.teams[teamID]
	if !ok {
		o.mu.Unlock()
		return true
	}

	var promoted bool
	if team.State == types.TeamStateNorming &&
		team.Metrics.Quality >= performingScore &&
		team.Metrics.Efficiency >= performingScore &&
		team.Metrics.Collaboration >= performingScore {
		team.State = types.TeamStatePerforming
		team.UpdatedAt = time.Now().UTC()
		promoted = true
	}

	idle := len(team.ActiveTasks) == 0 && team.WorkflowID == "" &&
		time.Since(team.LastActivity) >= o.cfg.AutoDissolveAfter
	var snapshot *types.Team
	if promoted {
		snapshot = cloneTeam(team)
		o.updateGaugesLocked()
	}
	o.mu.Unlock()

	if promoted {
		o.persist(snapshot)
		o.publishStateChange(teamID, types.TeamStateNorming, types.TeamStatePerforming)
	}
	if idle {
		if err := o.DissolveTeam(teamID, "idle timeout"); err == nil {
			return true
		}
	}
	return false
}

func rollingAverage(old, sample float64) float64 {
	if old == 0 {
		return sample
	}
	return (old + sample) / 2
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func (o *Orchestrator) releaseHandle(handle control.AllocationHandle) {
	if o.cfg.Allocator == nil || handle == "" {
		return
	}
	o.cfg.Allocator.Release(handle)
}

func (o *Orchestrator) persist(team *types.Team) {
	if o.cfg.Store == nil {
		return
	}
	if err := o.cfg.Store.SaveTeam(team); err != nil {
		o.logger.Error().Err(err).Str("team_id", team.ID).Msg("failed to snapshot team")
	}
}

func (o *Orchestrator) publish(eventType events.EventType, teamID, message string) {
	if o.cfg.Broker == nil {
		return
	}
	o.cfg.Broker.Publish(&events.Event{
		ID:      uuid.New().String(),
		Type:    eventType,
		Message: message,
		Metadata: map[string]string{
			"team_id": teamID,
		},
	})
}

func (o *Orchestrator) publishStateChange(teamID string, from, to types.TeamState) {
	if o.cfg.Broker == nil {
		return
	}
	o.cfg.Broker.Publish(&events.Event{
		ID:   uuid.New().String(),
		Type: events.EventTeamStateChanged,
		Metadata: map[string]string{
			"team_id": teamID,
			"from":    string(from),
			"to":      string(to),
		},
	})
}

func (o *Orchestrator) updateGaugesLocked() {
	counts := make(map[types.TeamState]int)
	for _, team := range o.teams {
		counts[team.State]++
	}
	for state := range stateOrder {
		metrics.TeamsTotal.WithLabelValues(string(state)).Set(float64(counts[state]))
	}
}

func memberIDs(team *types.Team) []string {
	ids := make([]string, 0, len(team.Members))
	for id := range team.Members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func cloneTeam(team *types.Team) *types.Team {
	c := *team
	c.Members = make(map[string]*types.TeamMember, len(team.Members))
	for id, m := range team.Members {
		mc := *m
		c.Members[id] = &mc
	}
	c.ActiveTasks = append([]string(nil), team.ActiveTasks...)
	c.CompletedTasks = append([]string(nil), team.CompletedTasks...)
	return &c
}
