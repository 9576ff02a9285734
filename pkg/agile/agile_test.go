package agile

import (
	"testing"
	"time"

	"github.com/cadre-dev/cadre/pkg/errdefs"
	"github.com/cadre-dev/cadre/pkg/types"
	"github.com/stretchr/testify/assert"
)

func day(n int) time.Time {
	return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func seedSprints(t *testing.T) *Tracker {
	t.Helper()
	tr := NewTracker()
	assert.NoError(t, tr.AddSprint(&Sprint{
		ID: "s1", TeamID: "team-1", Start: day(0), End: day(9),
		CommittedPoints: 20, CompletedPoints: 18, Defects: 2,
	}))
	assert.NoError(t, tr.AddSprint(&Sprint{
		ID: "s2", TeamID: "team-1", Start: day(10), End: day(19),
		CommittedPoints: 22, CompletedPoints: 22, Defects: 1,
	}))
	return tr
}

func TestVelocity(t *testing.T) {
	tr := seedSprints(t)

	v, err := tr.Velocity("s1", "s2")
	assert.NoError(t, err)
	assert.Equal(t, 20.0, v)

	// No ids averages every known sprint
	v, err = tr.Velocity()
	assert.NoError(t, err)
	assert.Equal(t, 20.0, v)

	_, err = tr.Velocity("ghost")
	assert.ErrorIs(t, err, errdefs.ErrNotFound)
}

func TestVelocityEmptyTracker(t *testing.T) {
	v, err := NewTracker().Velocity()
	assert.NoError(t, err)
	assert.Zero(t, v)
}

func TestCycleAndLeadTime(t *testing.T) {
	tr := NewTracker()
	assert.NoError(t, tr.AddStory(&Story{
		ID:          "st-1",
		CreatedAt:   day(0),
		StartedAt:   day(2),
		CompletedAt: day(4),
	}))
	assert.NoError(t, tr.AddStory(&Story{
		ID:          "st-2",
		CreatedAt:   day(0),
		StartedAt:   day(1),
		CompletedAt: day(2),
	}))
	// Unfinished stories are excluded from the mean
	assert.NoError(t, tr.AddStory(&Story{ID: "st-3", CreatedAt: day(0), StartedAt: day(1)}))

	cycle, err := tr.CycleTime("st-1", "st-2", "st-3")
	assert.NoError(t, err)
	assert.InDelta(t, 36, cycle, 0.0001) // mean of 48h and 24h

	lead, err := tr.LeadTime("st-1", "st-2", "st-3")
	assert.NoError(t, err)
	assert.InDelta(t, 72, lead, 0.0001) // mean of 96h and 48h

	assert.GreaterOrEqual(t, lead, cycle)

	_, err = tr.CycleTime("ghost")
	assert.ErrorIs(t, err, errdefs.ErrNotFound)
}

func TestCycleTimeNeverExceedsLeadTime(t *testing.T) {
	tr := NewTracker()
	// One long story with an explicit start, one quick story that was never
	// marked started
	assert.NoError(t, tr.AddStory(&Story{
		ID:          "st-1",
		CreatedAt:   day(0),
		StartedAt:   day(0),
		CompletedAt: day(0).Add(100 * time.Hour),
	}))
	assert.NoError(t, tr.AddStory(&Story{
		ID:          "st-2",
		CreatedAt:   day(0),
		CompletedAt: day(0).Add(time.Hour),
	}))

	cycle, err := tr.CycleTime("st-1", "st-2")
	assert.NoError(t, err)
	lead, err := tr.LeadTime("st-1", "st-2")
	assert.NoError(t, err)

	assert.InDelta(t, 50.5, cycle, 0.0001)
	assert.InDelta(t, 50.5, lead, 0.0001)
	assert.GreaterOrEqual(t, lead, cycle)
}

func TestThroughput(t *testing.T) {
	tr := NewTracker()
	for i, id := range []string{"a", "b", "c", "d"} {
		assert.NoError(t, tr.AddStory(&Story{
			ID: id, CreatedAt: day(0), StartedAt: day(0), CompletedAt: day(i),
		}))
	}

	// Days 0..3 fall inside a 4-day window
	assert.InDelta(t, 1.0, tr.Throughput(day(0), day(4)), 0.0001)

	// An inverted window yields zero instead of dividing by a negative span
	assert.Zero(t, tr.Throughput(day(4), day(0)))
}

func TestBurndownAndBurnup(t *testing.T) {
	tr := NewTracker()
	assert.NoError(t, tr.AddSprint(&Sprint{
		ID: "s1", TeamID: "team-1", Start: day(0), End: day(4), CommittedPoints: 10,
	}))
	assert.NoError(t, tr.AddStory(&Story{
		ID: "st-1", SprintID: "s1", Points: 4, CreatedAt: day(0), StartedAt: day(0), CompletedAt: day(1),
	}))
	assert.NoError(t, tr.AddStory(&Story{
		ID: "st-2", SprintID: "s1", Points: 6, CreatedAt: day(0), StartedAt: day(1), CompletedAt: day(3),
	}))

	down, err := tr.Burndown("s1")
	assert.NoError(t, err)
	assert.Len(t, down, 5)
	assert.Equal(t, 6.0, down[1].Remaining)  // st-1 done by end of day 1
	assert.Equal(t, 0.0, down[3].Remaining)  // both done by end of day 3
	assert.Equal(t, 10.0, down[0].Scope)

	up, err := tr.Burnup("s1")
	assert.NoError(t, err)
	assert.Len(t, up, 5)
	assert.Equal(t, 0.0, up[0].Completed)
	assert.Equal(t, 4.0, up[1].Completed)
	assert.Equal(t, 10.0, up[4].Completed)
	assert.Equal(t, 10.0, up[4].Scope)

	_, err = tr.Burndown("ghost")
	assert.ErrorIs(t, err, errdefs.ErrNotFound)
}

func TestDefectAndReworkRates(t *testing.T) {
	tr := seedSprints(t)
	assert.NoError(t, tr.AddStory(&Story{ID: "st-1", SprintID: "s1"}))
	assert.NoError(t, tr.AddStory(&Story{ID: "st-2", SprintID: "s1", Rework: true}))
	assert.NoError(t, tr.AddStory(&Story{ID: "st-3", SprintID: "s2"}))

	// 3 defects over 3 stories
	rate, err := tr.DefectRate("s1", "s2")
	assert.NoError(t, err)
	assert.InDelta(t, 1.0, rate, 0.0001)

	rework, err := tr.ReworkRate("st-1", "st-2", "st-3")
	assert.NoError(t, err)
	assert.InDelta(t, 33.3333, rework, 0.001)

	rework, err = tr.ReworkRate()
	assert.NoError(t, err)
	assert.Zero(t, rework)
}

func TestCommitmentReliability(t *testing.T) {
	tr := seedSprints(t)

	// 40 completed over 42 committed
	rel, err := tr.CommitmentReliability()
	assert.NoError(t, err)
	assert.InDelta(t, 95.238, rel, 0.001)

	rel, err = NewTracker().CommitmentReliability()
	assert.NoError(t, err)
	assert.Zero(t, rel)
}

func TestSprintHistoryOrderedByStart(t *testing.T) {
	tr := seedSprints(t)
	assert.NoError(t, tr.AddSprint(&Sprint{ID: "s0", TeamID: "team-2", Start: day(-10), End: day(-1)}))

	history := tr.SprintHistory("team-1")
	assert.Len(t, history, 2)
	assert.Equal(t, "s1", history[0].ID)
	assert.Equal(t, "s2", history[1].ID)

	all := tr.SprintHistory("")
	assert.Len(t, all, 3)
	assert.Equal(t, "s0", all[0].ID)
}

func TestRecordAndSeries(t *testing.T) {
	tr := NewTracker()
	tr.Record(types.MetricSample{Type: types.MetricVelocity, TeamID: "team-1", Value: 20})
	tr.Record(types.MetricSample{Type: types.MetricVelocity, TeamID: "team-1", Value: 22})
	tr.Record(types.MetricSample{Type: types.MetricVelocity, TeamID: "team-2", Value: 8})

	series := tr.Series("team-1", types.MetricVelocity)
	assert.Len(t, series, 2)
	assert.Equal(t, 22.0, series[1].Value)
	assert.False(t, series[0].Timestamp.IsZero())

	assert.Empty(t, tr.Series("team-1", types.MetricDefectRate))
}

func TestAddValidation(t *testing.T) {
	tr := NewTracker()
	assert.ErrorIs(t, tr.AddSprint(&Sprint{}), errdefs.ErrInvalidArgument)
	assert.ErrorIs(t, tr.AddSprint(&Sprint{ID: "s1", Start: day(5), End: day(1)}), errdefs.ErrInvalidArgument)
	assert.ErrorIs(t, tr.AddStory(&Story{}), errdefs.ErrInvalidArgument)
}
