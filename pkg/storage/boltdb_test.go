package storage

import (
	"testing"
	"time"

	"github.com/cadre-dev/cadre/pkg/errdefs"
	"github.com/cadre-dev/cadre/pkg/types"
	"github.com/stretchr/testify/assert"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	store, err := NewBoltStore(t.TempDir())
	assert.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestAgentRoundTrip(t *testing.T) {
	store := newTestStore(t)

	agent := &types.Agent{
		ID:               "agent-1",
		Profile:          "generalist",
		Skills:           []types.Skill{types.SkillDevelopment, types.SkillTesting},
		State:            types.AgentStateAvailable,
		PerformanceScore: 0.8,
	}
	assert.NoError(t, store.SaveAgent(agent))

	loaded, err := store.GetAgent("agent-1")
	assert.NoError(t, err)
	assert.Equal(t, agent.ID, loaded.ID)
	assert.Equal(t, agent.Skills, loaded.Skills)
	assert.Equal(t, agent.PerformanceScore, loaded.PerformanceScore)

	list, err := store.ListAgents()
	assert.NoError(t, err)
	assert.Len(t, list, 1)

	assert.NoError(t, store.DeleteAgent("agent-1"))
	_, err = store.GetAgent("agent-1")
	assert.ErrorIs(t, err, errdefs.ErrNotFound)
}

func TestVersionChainRoundTrip(t *testing.T) {
	store := newTestStore(t)

	chain := []string{"doc-1", "doc-2", "doc-3"}
	assert.NoError(t, store.SaveVersionChain("doc-1", chain))

	loaded, err := store.GetVersionChain("doc-1")
	assert.NoError(t, err)
	assert.Equal(t, chain, loaded)

	_, err = store.GetVersionChain("missing")
	assert.ErrorIs(t, err, errdefs.ErrNotFound)
}

func TestTeamArchiveSeparateFromActive(t *testing.T) {
	store := newTestStore(t)

	team := &types.Team{
		ID:      "team-1",
		Mission: "ship it",
		State:   types.TeamStateDissolved,
		Members: map[string]*types.TeamMember{
			"agent-1": {AgentID: "agent-1", Role: types.RoleLeader},
		},
		DissolvedAt: time.Now().UTC(),
	}
	assert.NoError(t, store.ArchiveTeam(team))

	// Archival does not put the team in the active bucket
	_, err := store.GetTeam("team-1")
	assert.ErrorIs(t, err, errdefs.ErrNotFound)

	archived, err := store.GetArchivedTeam("team-1")
	assert.NoError(t, err)
	assert.Equal(t, types.TeamStateDissolved, archived.State)
	assert.Equal(t, types.RoleLeader, archived.Members["agent-1"].Role)

	all, err := store.ListArchivedTeams()
	assert.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestStateSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	store, err := NewBoltStore(dir)
	assert.NoError(t, err)
	assert.NoError(t, store.SaveHandoff(&types.Handoff{
		ID:         "h-1",
		DocumentID: "doc-1",
		ToAgent:    "agent-2",
		State:      types.HandoffStatePending,
	}))
	assert.NoError(t, store.SaveGateReport(&types.GateReport{
		ID:       "r-1",
		GateID:   "story-completion",
		Decision: types.DecisionPass,
	}))
	assert.NoError(t, store.Close())

	reopened, err := NewBoltStore(dir)
	assert.NoError(t, err)
	defer reopened.Close()

	h, err := reopened.GetHandoff("h-1")
	assert.NoError(t, err)
	assert.Equal(t, types.HandoffStatePending, h.State)

	report, err := reopened.GetGateReport("r-1")
	assert.NoError(t, err)
	assert.Equal(t, types.DecisionPass, report.Decision)
}
