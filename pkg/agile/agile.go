package agile

import (
	"sort"
	"sync"
	"time"

	"github.com/cadre-dev/cadre/pkg/errdefs"
	"github.com/cadre-dev/cadre/pkg/log"
	"github.com/cadre-dev/cadre/pkg/types"
	"github.com/rs/zerolog"
)

// Sprint is a fixed time-box with committed and completed scope
type Sprint struct {
	ID              string
	Name            string
	TeamID          string
	Start           time.Time
	End             time.Time
	CommittedPoints float64
	CompletedPoints float64
	Defects         int
	StoryIDs        []string
}

// Story is a unit of scope tracked through the delivery flow
type Story struct {
	ID          string
	SprintID    string
	TeamID      string
	Points      float64
	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
	Defects     int
	Rework      bool
}

// Completed reports whether the story has finished
func (s *Story) Completed() bool {
	return !s.CompletedAt.IsZero()
}

type seriesKey struct {
	scope  string // team id, "" for global
	metric types.MetricType
}

// Tracker records metric samples and sprint/story facts and derives the
// standard agile metrics from them. All state is in memory.
type Tracker struct {
	mu sync.RWMutex

	series  map[seriesKey][]types.MetricSample
	sprints map[string]*Sprint
	stories map[string]*Story

	logger zerolog.Logger
}

// NewTracker creates an agile metrics tracker
func NewTracker() *Tracker {
	return &Tracker{
		series:  make(map[seriesKey][]types.MetricSample),
		sprints: make(map[string]*Sprint),
		stories: make(map[string]*Story),
		logger:  log.WithComponent("agile"),
	}
}

// Record appends a sample to the (scope, type) series
func (t *Tracker) Record(sample types.MetricSample) {
	if sample.Timestamp.IsZero() {
		sample.Timestamp = time.Now().UTC()
	}
	key := seriesKey{scope: sample.TeamID, metric: sample.Type}
	t.mu.Lock()
	t.series[key] = append(t.series[key], sample)
	t.mu.Unlock()
}

// Series returns a copy of the recorded samples for (scope, type)
func (t *Tracker) Series(scope string, metric types.MetricType) []types.MetricSample {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]types.MetricSample(nil), t.series[seriesKey{scope: scope, metric: metric}]...)
}

// AddSprint registers or replaces a sprint
func (t *Tracker) AddSprint(sprint *Sprint) error {
	if sprint.ID == "" {
		return errdefs.InvalidArgument("sprint id is required")
	}
	if sprint.End.Before(sprint.Start) {
		return errdefs.InvalidArgument("sprint %s ends before it starts", sprint.ID)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sprints[sprint.ID] = sprint
	return nil
}

// AddStory registers or replaces a story
func (t *Tracker) AddStory(story *Story) error {
	if story.ID == "" {
		return errdefs.InvalidArgument("story id is required")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stories[story.ID] = story
	if story.SprintID != "" {
		if sprint, ok := t.sprints[story.SprintID]; ok && !contains(sprint.StoryIDs, story.ID) {
			sprint.StoryIDs = append(sprint.StoryIDs, story.ID)
		}
	}
	return nil
}

// Velocity averages completed points across the given sprints
func (t *Tracker) Velocity(sprintIDs ...string) (float64, error) {
	sprints, err := t.selectSprints(sprintIDs)
	if err != nil {
		return 0, err
	}
	if len(sprints) == 0 {
		return 0, nil
	}
	var total float64
	for _, s := range sprints {
		total += s.CompletedPoints
	}
	return total / float64(len(sprints)), nil
}

// CycleTime is the mean start-to-end duration in hours for the stories.
// A story without a recorded start falls back to its creation time, so both
// averages cover the same completed stories and cycle time never exceeds
// lead time.
func (t *Tracker) CycleTime(storyIDs ...string) (float64, error) {
	return t.meanHours(storyIDs, func(s *Story) (time.Time, time.Time) {
		start := s.StartedAt
		if start.IsZero() {
			start = s.CreatedAt
		}
		return start, s.CompletedAt
	})
}

// LeadTime is the mean creation-to-end duration in hours for the stories.
// For any story set, lead time is at least the cycle time.
func (t *Tracker) LeadTime(storyIDs ...string) (float64, error) {
	return t.meanHours(storyIDs, func(s *Story) (time.Time, time.Time) {
		return s.CreatedAt, s.CompletedAt
	})
}

func (t *Tracker) meanHours(storyIDs []string, span func(*Story) (time.Time, time.Time)) (float64, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var total float64
	count := 0
	for _, id := range storyIDs {
		story, ok := t.stories[id]
		if !ok {
			return 0, errdefs.NotFound("story %s", id)
		}
		start, end := span(story)
		if start.IsZero() || end.IsZero() {
			continue
		}
		total += end.Sub(start).Hours()
		count++
	}
	if count == 0 {
		return 0, nil
	}
	return total / float64(count), nil
}

// Throughput is completed stories per day within the window
func (t *Tracker) Throughput(start, end time.Time) float64 {
	days := end.Sub(start).Hours() / 24
	if days <= 0 {
		return 0
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	completed := 0
	for _, story := range t.stories {
		if story.Completed() && !story.CompletedAt.Before(start) && !story.CompletedAt.After(end) {
			completed++
		}
	}
	return float64(completed) / days
}

// BurndownPoint is one day of a burndown or burnup chart
type BurndownPoint struct {
	Day       time.Time
	Remaining float64
	Completed float64
	Scope     float64
}

// Burndown charts remaining committed points per day of the sprint
func (t *Tracker) Burndown(sprintID string) ([]BurndownPoint, error) {
	return t.chart(sprintID, false)
}

// Burnup charts cumulative completed points against the committed scope line
func (t *Tracker) Burnup(sprintID string) ([]BurndownPoint, error) {
	return t.chart(sprintID, true)
}

func (t *Tracker) chart(sprintID string, burnup bool) ([]BurndownPoint, error) {
	t.mu.RLock()
	sprint, ok := t.sprints[sprintID]
	if !ok {
		t.mu.RUnlock()
		return nil, errdefs.NotFound("sprint %s", sprintID)
	}
	stories := make([]*Story, 0, len(sprint.StoryIDs))
	for _, id := range sprint.StoryIDs {
		if story, found := t.stories[id]; found {
			stories = append(stories, story)
		}
	}
	committed := sprint.CommittedPoints
	start, end := sprint.Start, sprint.End
	t.mu.RUnlock()

	var points []BurndownPoint
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		var done float64
		endOfDay := day.AddDate(0, 0, 1)
		for _, story := range stories {
			if story.Completed() && story.CompletedAt.Before(endOfDay) {
				done += story.Points
			}
		}
		p := BurndownPoint{Day: day, Scope: committed}
		if burnup {
			p.Completed = done
		} else {
			p.Remaining = committed - done
		}
		points = append(points, p)
	}
	return points, nil
}

// DefectRate is total defects over total stories in the sprints
func (t *Tracker) DefectRate(sprintIDs ...string) (float64, error) {
	sprints, err := t.selectSprints(sprintIDs)
	if err != nil {
		return 0, err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	defects, total := 0, 0
	for _, sprint := range sprints {
		defects += sprint.Defects
		total += len(sprint.StoryIDs)
	}
	if total == 0 {
		return 0, nil
	}
	return float64(defects) / float64(total), nil
}

// ReworkRate is the percentage of stories that required rework
func (t *Tracker) ReworkRate(storyIDs ...string) (float64, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	rework, total := 0, 0
	for _, id := range storyIDs {
		story, ok := t.stories[id]
		if !ok {
			return 0, errdefs.NotFound("story %s", id)
		}
		total++
		if story.Rework {
			rework++
		}
	}
	if total == 0 {
		return 0, nil
	}
	return float64(rework) / float64(total) * 100, nil
}

// CommitmentReliability is completed over committed points, as a percentage
func (t *Tracker) CommitmentReliability(sprintIDs ...string) (float64, error) {
	sprints, err := t.selectSprints(sprintIDs)
	if err != nil {
		return 0, err
	}
	var committed, completed float64
	for _, sprint := range sprints {
		committed += sprint.CommittedPoints
		completed += sprint.CompletedPoints
	}
	if committed == 0 {
		return 0, nil
	}
	return completed / committed * 100, nil
}

// SprintHistory returns the team's sprints ordered by start date
func (t *Tracker) SprintHistory(teamID string) []*Sprint {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []*Sprint
	for _, sprint := range t.sprints {
		if teamID == "" || sprint.TeamID == teamID {
			c := *sprint
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

// selectSprints resolves ids, or every sprint when none are given
func (t *Tracker) selectSprints(sprintIDs []string) ([]*Sprint, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if len(sprintIDs) == 0 {
		out := make([]*Sprint, 0, len(t.sprints))
		for _, sprint := range t.sprints {
			out = append(out, sprint)
		}
		return out, nil
	}
	out := make([]*Sprint, 0, len(sprintIDs))
	for _, id := range sprintIDs {
		sprint, ok := t.sprints[id]
		if !ok {
			return nil, errdefs.NotFound("sprint %s", id)
		}
		out = append(out, sprint)
	}
	return out, nil
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
