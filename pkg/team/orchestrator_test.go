package team

import (
	"testing"
	"time"

	"github.com/cadre-dev/cadre/pkg/control"
	"github.com/cadre-dev/cadre/pkg/errdefs"
	"github.com/cadre-dev/cadre/pkg/pool"
	"github.com/cadre-dev/cadre/pkg/types"
	"github.com/stretchr/testify/assert"
)

// denyGate rejects every decision
type denyGate struct{}

func (denyGate) Validate(d control.Decision) control.PolicyResult {
	return control.PolicyResult{Approved: false, Reasons: []string{"denied by test policy"}}
}

func newTestPool(t *testing.T, agents int) *pool.Pool {
	t.Helper()
	cfg := pool.DefaultConfig()
	cfg.InitialSize = 0
	cfg.AutoScale = false
	cfg.HealthInterval = time.Hour
	p := pool.NewPool(cfg)
	for i := 0; i < agents; i++ {
		err := p.AddAgent(&types.Agent{
			ID:               string(rune('a'+i)) + "-agent",
			Profile:          "generalist",
			Skills:           []types.Skill{types.SkillGeneral, types.SkillDevelopment},
			State:            types.AgentStateAvailable,
			PerformanceScore: 0.8,
		})
		assert.NoError(t, err)
	}
	return p
}

func testOrchestrator(t *testing.T, p *pool.Pool) *Orchestrator {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Pool = p
	cfg.CheckInterval = time.Hour
	cfg.FormationTimeout = 200 * time.Millisecond
	return NewOrchestrator(cfg)
}

func TestFormTeam(t *testing.T) {
	p := newTestPool(t, 4)
	o := testOrchestrator(t, p)

	team, err := o.FormTeam(FormationRequest{
		Name:           "payments",
		Mission:        "ship the billing epic",
		Size:           3,
		RequiredSkills: []types.Skill{types.SkillDevelopment},
	})
	assert.NoError(t, err)
	assert.Equal(t, types.TeamStateStorming, team.State)
	assert.Equal(t, types.TeamTypeCrossFunctional, team.Type)
	assert.Len(t, team.Members, 3)
	assert.NotEmpty(t, team.LeaderID())

	// Allocated members are bound to the team in the pool
	for agentID := range team.Members {
		agent, err := p.Get(agentID)
		assert.NoError(t, err)
		assert.Equal(t, types.AgentStateAllocated, agent.State)
		assert.Equal(t, team.ID, agent.TeamID)
	}
}

func TestFormTeamSizeValidation(t *testing.T) {
	o := testOrchestrator(t, newTestPool(t, 2))

	_, err := o.FormTeam(FormationRequest{Mission: "m", Size: 1})
	assert.ErrorIs(t, err, errdefs.ErrInvalidArgument)

	_, err = o.FormTeam(FormationRequest{Mission: "m", Size: 99})
	assert.ErrorIs(t, err, errdefs.ErrInvalidArgument)
}

func TestFormTeamPolicyDenied(t *testing.T) {
	p := newTestPool(t, 3)
	cfg := DefaultConfig()
	cfg.Pool = p
	cfg.Policy = denyGate{}
	cfg.CheckInterval = time.Hour
	o := NewOrchestrator(cfg)

	_, err := o.FormTeam(FormationRequest{Mission: "m", Size: 2})
	assert.ErrorIs(t, err, errdefs.ErrPolicyDenied)

	// Nothing was allocated
	for _, agent := range p.ListAgents() {
		assert.Equal(t, types.AgentStateAvailable, agent.State)
	}
}

func TestFormTeamNoPartialTeamOnTimeout(t *testing.T) {
	p := newTestPool(t, 1)
	o := testOrchestrator(t, p)

	_, err := o.FormTeam(FormationRequest{Mission: "m", Size: 3})
	assert.ErrorIs(t, err, errdefs.ErrResourceExhausted)

	assert.Empty(t, o.ListTeams())
	assert.Equal(t, 0, p.Status().QueueLength)
	for _, agent := range p.ListAgents() {
		assert.Equal(t, types.AgentStateAvailable, agent.State)
	}
}

func TestFormTeamReleasesBudgetOnFailure(t *testing.T) {
	p := newTestPool(t, 1)
	alloc := control.NewMemoryAllocator(types.Resources{CPUCores: 16, MemoryBytes: 16 << 30})
	cfg := DefaultConfig()
	cfg.Pool = p
	cfg.Allocator = alloc
	cfg.CheckInterval = time.Hour
	cfg.FormationTimeout = 100 * time.Millisecond
	o := NewOrchestrator(cfg)

	before := alloc.Available()
	_, err := o.FormTeam(FormationRequest{Mission: "m", Size: 3})
	assert.ErrorIs(t, err, errdefs.ErrResourceExhausted)
	assert.Equal(t, before, alloc.Available())
}

func TestFormTeamMaxTeams(t *testing.T) {
	p := newTestPool(t, 6)
	cfg := DefaultConfig()
	cfg.Pool = p
	cfg.MaxTeams = 1
	cfg.CheckInterval = time.Hour
	o := NewOrchestrator(cfg)

	_, err := o.FormTeam(FormationRequest{Mission: "first", Size: 2})
	assert.NoError(t, err)

	_, err = o.FormTeam(FormationRequest{Mission: "second", Size: 2})
	assert.ErrorIs(t, err, errdefs.ErrResourceExhausted)
}

func TestFormTeamMaxTeamsConcurrent(t *testing.T) {
	p := newTestPool(t, 4)
	cfg := DefaultConfig()
	cfg.Pool = p
	cfg.MaxTeams = 1
	cfg.CheckInterval = time.Hour
	cfg.FormationTimeout = 200 * time.Millisecond
	o := NewOrchestrator(cfg)

	errs := make(chan error, 2)
	for _, mission := range []string{"first", "second"} {
		mission := mission
		go func() {
			_, err := o.FormTeam(FormationRequest{Mission: mission, Size: 2})
			errs <- err
		}()
	}

	var failures []error
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			failures = append(failures, err)
		}
	}

	// Exactly one formation wins; the loser rolls its agents back
	assert.Len(t, failures, 1)
	assert.ErrorIs(t, failures[0], errdefs.ErrResourceExhausted)
	assert.Len(t, o.ListTeams(), 1)

	available := 0
	for _, agent := range p.ListAgents() {
		if agent.State == types.AgentStateAvailable {
			available++
		}
	}
	assert.Equal(t, 2, available)
}

func TestAssignRoles(t *testing.T) {
	agents := []*types.Agent{
		{ID: "architect", PerformanceScore: 0.7, Skills: []types.Skill{types.SkillArchitecture}},
		{ID: "tester", PerformanceScore: 0.9, Skills: []types.Skill{types.SkillTesting}},
		{ID: "leader", PerformanceScore: 0.95, Skills: []types.Skill{types.SkillDevelopment}},
		{ID: "junior", PerformanceScore: 0.5, Skills: []types.Skill{types.SkillGeneral}},
	}

	members := assignRoles(agents, DefaultLeaderThreshold)
	assert.Len(t, members, 4)
	assert.Equal(t, types.RoleLeader, members["leader"].Role)
	// "tester" sorts second, inside the first third (ceil(4/3)=2)
	assert.Equal(t, types.RoleReviewer, members["tester"].Role)
	assert.Equal(t, types.RoleSpecialist, members["architect"].Role)
	assert.Equal(t, types.RoleMember, members["junior"].Role)

	assert.Equal(t, types.SkillArchitecture, members["architect"].Specialization)
	assert.Equal(t, types.SkillDevelopment, members["leader"].Specialization)
	assert.Equal(t, types.SkillGeneral, members["junior"].Specialization)
}

func TestAssignRolesSmallTeamGetsCoordinator(t *testing.T) {
	agents := []*types.Agent{
		{ID: "a", PerformanceScore: 0.9, Skills: []types.Skill{types.SkillGeneral}},
		{ID: "b", PerformanceScore: 0.8, Skills: []types.Skill{types.SkillGeneral}},
	}

	members := assignRoles(agents, DefaultLeaderThreshold)
	assert.Equal(t, types.RoleCoordinator, members["a"].Role)
	assert.Equal(t, types.RoleMember, members["b"].Role)
}

func TestTaskLifecycleAndMetrics(t *testing.T) {
	p := newTestPool(t, 3)
	o := testOrchestrator(t, p)

	team, err := o.FormTeam(FormationRequest{Mission: "m", Size: 2})
	assert.NoError(t, err)

	task := &types.Task{Title: "implement login"}
	assert.NoError(t, o.AssignTask(team.ID, task))

	got, err := o.GetTeam(team.ID)
	assert.NoError(t, err)
	assert.Len(t, got.ActiveTasks, 1)

	err = o.CompleteTask(team.ID, types.TaskResult{TaskID: task.ID, Quality: 0.9, Efficiency: 0.8})
	assert.NoError(t, err)

	got, _ = o.GetTeam(team.ID)
	assert.Empty(t, got.ActiveTasks)
	assert.Len(t, got.CompletedTasks, 1)
	// First sample replaces the zero value outright
	assert.Equal(t, 0.9, got.Metrics.Quality)
	assert.Equal(t, 0.8, got.Metrics.Efficiency)
	assert.Greater(t, got.Metrics.Velocity, 0.0)
	// First completed task advances STORMING to NORMING
	assert.Equal(t, types.TeamStateNorming, got.State)

	tracked, err := o.GetTask(task.ID)
	assert.NoError(t, err)
	assert.Equal(t, types.TaskStatusCompleted, tracked.Status)

	// Second sample averages with the first
	task2 := &types.Task{Title: "fix login"}
	assert.NoError(t, o.AssignTask(team.ID, task2))
	assert.NoError(t, o.CompleteTask(team.ID, types.TaskResult{TaskID: task2.ID, Quality: 0.5, Efficiency: 0.6}))
	got, _ = o.GetTeam(team.ID)
	assert.InDelta(t, 0.7, got.Metrics.Quality, 0.0001)
}

func TestCompleteUnknownTask(t *testing.T) {
	p := newTestPool(t, 3)
	o := testOrchestrator(t, p)
	team, err := o.FormTeam(FormationRequest{Mission: "m", Size: 2})
	assert.NoError(t, err)

	err = o.CompleteTask(team.ID, types.TaskResult{TaskID: "ghost"})
	assert.ErrorIs(t, err, errdefs.ErrNotFound)
}

func TestAssignTaskToNonMember(t *testing.T) {
	p := newTestPool(t, 3)
	o := testOrchestrator(t, p)
	team, err := o.FormTeam(FormationRequest{Mission: "m", Size: 2})
	assert.NoError(t, err)

	err = o.AssignTask(team.ID, &types.Task{Title: "t", AssignedTo: "outsider"})
	assert.ErrorIs(t, err, errdefs.ErrInvalidArgument)
}

func TestUpdateStatusForwardOnly(t *testing.T) {
	p := newTestPool(t, 3)
	o := testOrchestrator(t, p)
	team, err := o.FormTeam(FormationRequest{Mission: "m", Size: 2})
	assert.NoError(t, err)

	assert.NoError(t, o.UpdateStatus(team.ID, types.TeamStateNorming))

	// Backward transition is rejected
	err = o.UpdateStatus(team.ID, types.TeamStateStorming)
	assert.ErrorIs(t, err, errdefs.ErrPrecondition)

	// Dissolution does not go through UpdateStatus
	err = o.UpdateStatus(team.ID, types.TeamStateDissolved)
	assert.ErrorIs(t, err, errdefs.ErrInvalidArgument)

	err = o.UpdateStatus(team.ID, "limbo")
	assert.ErrorIs(t, err, errdefs.ErrInvalidArgument)
}

func TestPerformingPromotion(t *testing.T) {
	p := newTestPool(t, 3)
	o := testOrchestrator(t, p)
	team, err := o.FormTeam(FormationRequest{Mission: "m", Size: 2})
	assert.NoError(t, err)

	task := &types.Task{Title: "t"}
	assert.NoError(t, o.AssignTask(team.ID, task))
	assert.NoError(t, o.CompleteTask(team.ID, types.TaskResult{TaskID: task.ID, Quality: 0.9, Efficiency: 0.9}))
	assert.NoError(t, o.UpdateCollaboration(team.ID, 0.9))

	o.checkTeam(team.ID)

	got, _ := o.GetTeam(team.ID)
	assert.Equal(t, types.TeamStatePerforming, got.State)
}

func TestPerformingRequiresAllScores(t *testing.T) {
	p := newTestPool(t, 3)
	o := testOrchestrator(t, p)
	team, err := o.FormTeam(FormationRequest{Mission: "m", Size: 2})
	assert.NoError(t, err)

	task := &types.Task{Title: "t"}
	assert.NoError(t, o.AssignTask(team.ID, task))
	assert.NoError(t, o.CompleteTask(team.ID, types.TaskResult{TaskID: task.ID, Quality: 0.9, Efficiency: 0.9}))
	// Collaboration stays at zero

	o.checkTeam(team.ID)

	got, _ := o.GetTeam(team.ID)
	assert.Equal(t, types.TeamStateNorming, got.State)
}

func TestDissolveTeamReleasesAgents(t *testing.T) {
	p := newTestPool(t, 3)
	o := testOrchestrator(t, p)
	team, err := o.FormTeam(FormationRequest{Mission: "m", Size: 2})
	assert.NoError(t, err)

	assert.NoError(t, o.DissolveTeam(team.ID, "done"))

	_, err = o.GetTeam(team.ID)
	assert.ErrorIs(t, err, errdefs.ErrNotFound)

	for _, agent := range p.ListAgents() {
		assert.Equal(t, types.AgentStateAvailable, agent.State)
		assert.Empty(t, agent.TeamID)
	}

	// Double dissolve
	err = o.DissolveTeam(team.ID, "again")
	assert.ErrorIs(t, err, errdefs.ErrNotFound)
}

func TestRecommendations(t *testing.T) {
	p := newTestPool(t, 3)
	o := testOrchestrator(t, p)
	team, err := o.FormTeam(FormationRequest{Mission: "m", Size: 2})
	assert.NoError(t, err)

	recs, err := o.Recommendations(team.ID)
	assert.NoError(t, err)
	// Minimum-size team without testing skill gets both structural hints
	assert.Len(t, recs, 2)
}

func TestShutdownDissolvesAllTeams(t *testing.T) {
	p := newTestPool(t, 6)
	o := testOrchestrator(t, p)

	_, err := o.FormTeam(FormationRequest{Mission: "a", Size: 2})
	assert.NoError(t, err)
	_, err = o.FormTeam(FormationRequest{Mission: "b", Size: 2})
	assert.NoError(t, err)

	o.Shutdown()

	assert.Empty(t, o.ListTeams())
	_, err = o.FormTeam(FormationRequest{Mission: "c", Size: 2})
	assert.ErrorIs(t, err, errdefs.ErrPrecondition)
}

func TestRollingAverage(t *testing.T) {
	assert.Equal(t, 0.8, rollingAverage(0, 0.8))
	assert.InDelta(t, 0.6, rollingAverage(0.8, 0.4), 0.0001)
}

func TestTeamProtocolLifecycle(t *testing.T) {
	p := newTestPool(t, 3)
	o := testOrchestrator(t, p)

	team, err := o.FormTeam(FormationRequest{Mission: "m", Size: 3})
	assert.NoError(t, err)

	proto, err := o.Protocol(team.ID)
	assert.NoError(t, err)

	// Every member can broadcast on the team channel
	var memberID string
	for id := range team.Members {
		memberID = id
		break
	}
	result, err := proto.Broadcast(memberID, "kickoff", "sprint planning at 10")
	assert.NoError(t, err)
	assert.NotEmpty(t, result.MessageID)

	history := proto.History()
	assert.Len(t, history, 1)
	assert.Len(t, history[0].To, 2)

	// The protocol goes away with the team
	assert.NoError(t, o.DissolveTeam(team.ID, "done"))
	_, err = o.Protocol(team.ID)
	assert.ErrorIs(t, err, errdefs.ErrNotFound)
}
