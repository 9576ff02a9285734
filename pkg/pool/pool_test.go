package pool

import (
	"testing"
	"time"

	"github.com/cadre-dev/cadre/pkg/control"
	"github.com/cadre-dev/cadre/pkg/errdefs"
	"github.com/cadre-dev/cadre/pkg/types"
	"github.com/stretchr/testify/assert"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.InitialSize = 0
	cfg.AutoScale = false
	cfg.HealthInterval = time.Hour
	return cfg
}

func addAgent(t *testing.T, p *Pool, id string, perf float64, skills ...types.Skill) {
	t.Helper()
	err := p.AddAgent(&types.Agent{
		ID:               id,
		Profile:          "generalist",
		Skills:           skills,
		State:            types.AgentStateAvailable,
		PerformanceScore: perf,
	})
	assert.NoError(t, err)
}

func TestAllocateSelectsBestScore(t *testing.T) {
	p := NewPool(testConfig())
	addAgent(t, p, "dev-strong", 0.9, types.SkillDevelopment, types.SkillTesting)
	addAgent(t, p, "dev-weak", 0.6, types.SkillDevelopment)
	addAgent(t, p, "generalist", 0.9, types.SkillGeneral)

	result, err := p.Allocate(types.AllocationRequest{
		TeamID:         "team-1",
		Count:          1,
		RequiredSkills: []types.Skill{types.SkillDevelopment},
		OptionalSkills: []types.Skill{types.SkillTesting},
	})
	assert.NoError(t, err)
	assert.False(t, result.Queued)
	assert.Len(t, result.Agents, 1)
	assert.Equal(t, "dev-strong", result.Agents[0].ID)
	assert.Equal(t, types.AgentStateAllocated, result.Agents[0].State)
	assert.Equal(t, "team-1", result.Agents[0].TeamID)
}

func TestAllocateRequiredSkillsFilter(t *testing.T) {
	p := NewPool(testConfig())
	addAgent(t, p, "doc-only", 0.95, types.SkillDocumentation)

	result, err := p.Allocate(types.AllocationRequest{
		TeamID:         "team-1",
		Count:          1,
		RequiredSkills: []types.Skill{types.SkillSecurity},
	})
	assert.NoError(t, err)
	assert.True(t, result.Queued)
	assert.NotNil(t, result.Outcome)
}

func TestAllocateTieBreaksByAllocationsThenID(t *testing.T) {
	p := NewPool(testConfig())
	// Identical skills, performance, and allocation counts; the final
	// tie-break is lexicographic id.
	addAgent(t, p, "b", 0.8, types.SkillGeneral)
	addAgent(t, p, "a", 0.8, types.SkillGeneral)

	result, err := p.Allocate(types.AllocationRequest{TeamID: "t", Count: 1})
	assert.NoError(t, err)
	assert.Equal(t, "a", result.Agents[0].ID)
}

func TestAllocateInvalidCount(t *testing.T) {
	p := NewPool(testConfig())
	_, err := p.Allocate(types.AllocationRequest{TeamID: "t", Count: 0})
	assert.ErrorIs(t, err, errdefs.ErrInvalidArgument)
}

func TestAutoScaleGrowsPool(t *testing.T) {
	cfg := testConfig()
	cfg.AutoScale = true
	cfg.MaxSize = 5
	p := NewPool(cfg)

	result, err := p.Allocate(types.AllocationRequest{
		TeamID:         "team-1",
		Count:          3,
		RequiredSkills: []types.Skill{types.SkillDevelopment},
	})
	assert.NoError(t, err)
	assert.False(t, result.Queued)
	assert.Len(t, result.Agents, 3)
	for _, agent := range result.Agents {
		assert.True(t, agent.HasSkill(types.SkillDevelopment))
	}
	assert.Equal(t, 3, p.Status().Size)
}

func TestAutoScaleRespectsMaxSize(t *testing.T) {
	cfg := testConfig()
	cfg.AutoScale = true
	cfg.MaxSize = 2
	p := NewPool(cfg)

	result, err := p.Allocate(types.AllocationRequest{TeamID: "team-1", Count: 4})
	assert.NoError(t, err)
	assert.True(t, result.Queued)
	assert.Equal(t, 2, p.Status().Size)
	assert.Equal(t, 1, p.Status().QueueLength)
}

func TestQueueDrainOnRelease(t *testing.T) {
	p := NewPool(testConfig())
	addAgent(t, p, "only", 0.9, types.SkillGeneral)

	first, err := p.Allocate(types.AllocationRequest{TeamID: "team-1", Count: 1})
	assert.NoError(t, err)
	assert.False(t, first.Queued)

	second, err := p.Allocate(types.AllocationRequest{TeamID: "team-2", Count: 1})
	assert.NoError(t, err)
	assert.True(t, second.Queued)

	p.Release("team-1")

	select {
	case outcome := <-second.Outcome:
		assert.NoError(t, outcome.Err)
		assert.Len(t, outcome.Agents, 1)
		assert.Equal(t, "only", outcome.Agents[0].ID)
		assert.Equal(t, "team-2", outcome.Agents[0].TeamID)
	case <-time.After(2 * time.Second):
		t.Fatal("queued allocation was not fulfilled after release")
	}
}

func TestQueueFIFOOrder(t *testing.T) {
	p := NewPool(testConfig())
	addAgent(t, p, "only", 0.9, types.SkillGeneral)

	_, err := p.Allocate(types.AllocationRequest{TeamID: "holder", Count: 1})
	assert.NoError(t, err)

	first, _ := p.Allocate(types.AllocationRequest{TeamID: "waiter-1", Count: 1})
	second, _ := p.Allocate(types.AllocationRequest{TeamID: "waiter-2", Count: 1})
	assert.True(t, first.Queued)
	assert.True(t, second.Queued)

	p.Release("holder")

	select {
	case outcome := <-first.Outcome:
		assert.Equal(t, "waiter-1", outcome.Agents[0].TeamID)
	case <-time.After(2 * time.Second):
		t.Fatal("first queued request was not served")
	}

	// Second waiter is still queued; the single agent is taken
	assert.Equal(t, 1, p.Status().QueueLength)
}

func TestQueueDrainSkipsUnsatisfiableHead(t *testing.T) {
	p := NewPool(testConfig())
	addAgent(t, p, "a1", 0.9, types.SkillGeneral)
	addAgent(t, p, "a2", 0.9, types.SkillGeneral)

	_, err := p.Allocate(types.AllocationRequest{TeamID: "holder", Count: 2})
	assert.NoError(t, err)

	// The oversized request can never be satisfied without auto-scaling
	big, _ := p.Allocate(types.AllocationRequest{TeamID: "big", Count: 5})
	small, _ := p.Allocate(types.AllocationRequest{TeamID: "small", Count: 1})
	assert.True(t, big.Queued)
	assert.True(t, small.Queued)

	p.Release("holder")

	select {
	case outcome := <-small.Outcome:
		assert.NoError(t, outcome.Err)
		assert.Len(t, outcome.Agents, 1)
		assert.Equal(t, "small", outcome.Agents[0].TeamID)
	case <-time.After(2 * time.Second):
		t.Fatal("satisfiable request stuck behind an oversized one")
	}

	// The oversized request stays queued
	assert.Equal(t, 1, p.Status().QueueLength)
	select {
	case <-big.Outcome:
		t.Fatal("oversized request should not have been served")
	default:
	}
}

func TestCancelRequest(t *testing.T) {
	p := NewPool(testConfig())

	result, err := p.Allocate(types.AllocationRequest{TeamID: "team-1", Count: 1})
	assert.NoError(t, err)
	assert.True(t, result.Queued)

	assert.True(t, p.CancelRequest(result.RequestID))
	assert.False(t, p.CancelRequest(result.RequestID))

	// Cancelled outcomes close without a result
	_, open := <-result.Outcome
	assert.False(t, open)
	assert.Equal(t, 0, p.Status().QueueLength)
}

func TestUpdatePerformanceClampAndDemotion(t *testing.T) {
	p := NewPool(testConfig())
	addAgent(t, p, "a1", 0.6, types.SkillGeneral)

	assert.NoError(t, p.UpdatePerformance("a1", 0.9))
	agent, err := p.Get("a1")
	assert.NoError(t, err)
	assert.Equal(t, 1.0, agent.PerformanceScore)
	assert.Equal(t, types.AgentStateAvailable, agent.State)

	assert.NoError(t, p.UpdatePerformance("a1", -0.7))
	agent, _ = p.Get("a1")
	assert.InDelta(t, 0.3, agent.PerformanceScore, 0.001)
	assert.Equal(t, types.AgentStateMaintenance, agent.State)

	assert.ErrorIs(t, p.UpdatePerformance("ghost", 0.1), errdefs.ErrNotFound)
}

func TestHealthCheckPromotesRecoveredAgents(t *testing.T) {
	p := NewPool(testConfig())
	addAgent(t, p, "a1", 0.6, types.SkillGeneral)

	assert.NoError(t, p.UpdatePerformance("a1", -0.3))
	agent, _ := p.Get("a1")
	assert.Equal(t, types.AgentStateMaintenance, agent.State)

	assert.NoError(t, p.UpdatePerformance("a1", 0.4))
	p.healthCheck()

	agent, _ = p.Get("a1")
	assert.Equal(t, types.AgentStateAvailable, agent.State)
}

func TestReleaseDowngradesUnderperformers(t *testing.T) {
	p := NewPool(testConfig())
	addAgent(t, p, "a1", 0.9, types.SkillGeneral)

	result, err := p.Allocate(types.AllocationRequest{TeamID: "team-1", Count: 1})
	assert.NoError(t, err)
	assert.False(t, result.Queued)

	assert.NoError(t, p.UpdatePerformance("a1", -0.6))
	p.Release("team-1")

	agent, _ := p.Get("a1")
	assert.Empty(t, agent.TeamID)
	assert.Equal(t, types.AgentStateMaintenance, agent.State)
}

func TestAllocateReservesResources(t *testing.T) {
	cfg := testConfig()
	alloc := control.NewMemoryAllocator(types.Resources{CPUCores: 2, MemoryBytes: 2 << 30})
	cfg.Allocator = alloc
	cfg.PerAgentResources = types.Resources{CPUCores: 1, MemoryBytes: 512 << 20}
	p := NewPool(cfg)
	addAgent(t, p, "a1", 0.9, types.SkillGeneral)
	addAgent(t, p, "a2", 0.9, types.SkillGeneral)

	result, err := p.Allocate(types.AllocationRequest{TeamID: "team-1", Count: 2})
	assert.NoError(t, err)
	assert.Len(t, result.Agents, 2)
	assert.InDelta(t, 0.0, alloc.Available().CPUCores, 0.001)

	p.Release("team-1")
	assert.InDelta(t, 2.0, alloc.Available().CPUCores, 0.001)
}

func TestAllocateControlPlaneExhausted(t *testing.T) {
	cfg := testConfig()
	cfg.Allocator = control.NewMemoryAllocator(types.Resources{CPUCores: 1})
	cfg.PerAgentResources = types.Resources{CPUCores: 2}
	p := NewPool(cfg)
	addAgent(t, p, "a1", 0.9, types.SkillGeneral)

	_, err := p.Allocate(types.AllocationRequest{TeamID: "team-1", Count: 1})
	assert.ErrorIs(t, err, errdefs.ErrResourceExhausted)

	// The agent was never touched
	agent, _ := p.Get("a1")
	assert.Equal(t, types.AgentStateAvailable, agent.State)
}

func TestAllocateReturnsCopies(t *testing.T) {
	p := NewPool(testConfig())
	addAgent(t, p, "a1", 0.9, types.SkillGeneral)

	result, err := p.Allocate(types.AllocationRequest{TeamID: "team-1", Count: 1})
	assert.NoError(t, err)

	result.Agents[0].PerformanceScore = 0.1
	agent, _ := p.Get("a1")
	assert.Equal(t, 0.9, agent.PerformanceScore)
}

func TestShutdownRejectsQueuedRequests(t *testing.T) {
	p := NewPool(testConfig())

	result, err := p.Allocate(types.AllocationRequest{TeamID: "team-1", Count: 1})
	assert.NoError(t, err)
	assert.True(t, result.Queued)

	p.Shutdown()

	select {
	case outcome := <-result.Outcome:
		assert.ErrorIs(t, outcome.Err, errdefs.ErrPrecondition)
	case <-time.After(time.Second):
		t.Fatal("queued request was not rejected on shutdown")
	}

	_, err = p.Allocate(types.AllocationRequest{TeamID: "team-2", Count: 1})
	assert.ErrorIs(t, err, errdefs.ErrPrecondition)
}

func TestStatusAndHistory(t *testing.T) {
	p := NewPool(testConfig())
	addAgent(t, p, "a1", 0.9, types.SkillGeneral)
	addAgent(t, p, "a2", 0.9, types.SkillGeneral)

	_, err := p.Allocate(types.AllocationRequest{TeamID: "team-1", Count: 1})
	assert.NoError(t, err)

	status := p.Status()
	assert.Equal(t, 2, status.Size)
	assert.Equal(t, 1, status.ByState[types.AgentStateAvailable])
	assert.Equal(t, 1, status.ByState[types.AgentStateAllocated])
	assert.Len(t, status.History, 1)
	assert.Equal(t, "team-1", status.History[0].TeamID)
}

func TestAddAgentValidation(t *testing.T) {
	p := NewPool(testConfig())
	assert.ErrorIs(t, p.AddAgent(&types.Agent{}), errdefs.ErrInvalidArgument)

	addAgent(t, p, "dup", 0.8, types.SkillGeneral)
	err := p.AddAgent(&types.Agent{ID: "dup"})
	assert.ErrorIs(t, err, errdefs.ErrPrecondition)
}

func TestScoreFormula(t *testing.T) {
	agent := &types.Agent{
		Profile:          "architect",
		Skills:           []types.Skill{types.SkillArchitecture, types.SkillDesign},
		PerformanceScore: 0.8,
		TotalAllocations: 10,
	}
	req := types.AllocationRequest{
		RequiredSkills:    []types.Skill{types.SkillArchitecture},
		OptionalSkills:    []types.Skill{types.SkillDesign},
		PreferredProfiles: []string{"architect"},
	}
	// (1 + 2 + 1 + 3) * 0.8 - 0.01*10 = 5.5
	assert.InDelta(t, 5.5, score(agent, req), 0.0001)
}
