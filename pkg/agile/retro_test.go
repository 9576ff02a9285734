package agile

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildRetrospectiveDefaults(t *testing.T) {
	items := []FeedbackItem{
		{AuthorID: "alice", Kind: FeedbackWentWell, Text: "pairing worked great"},
		{AuthorID: "bob", Kind: FeedbackNeedsImprovement, Text: "builds are slow"},
	}

	report := BuildRetrospective("team-1", "s1", items, nil, nil, nil)
	assert.Equal(t, "team-1", report.TeamID)
	assert.Equal(t, "s1", report.SprintID)
	assert.NotEmpty(t, report.ID)
	assert.Len(t, report.Items, 2)

	// Every item got an id and the neutral default sentiment
	for _, item := range report.Items {
		assert.NotEmpty(t, item.ID)
		assert.Equal(t, SentimentNeutral, item.Sentiment)
	}
	assert.Equal(t, 2, report.Sentiments[SentimentNeutral])
	assert.Empty(t, report.Themes)
	assert.Empty(t, report.Patterns)
}

func TestBuildRetrospectiveAnalyzers(t *testing.T) {
	classify := func(text string) Sentiment {
		if strings.Contains(text, "slow") {
			return SentimentNegative
		}
		return SentimentPositive
	}
	extract := func(text string) []string {
		if strings.Contains(text, "build") {
			return []string{"ci"}
		}
		return nil
	}
	detect := func(items []FeedbackItem) []string {
		var patterns []string
		for _, item := range items {
			if item.Sentiment == SentimentNegative {
				patterns = append(patterns, "recurring friction: "+item.Text)
			}
		}
		return patterns
	}

	items := []FeedbackItem{
		{Kind: FeedbackWentWell, Text: "demo went well"},
		{Kind: FeedbackNeedsImprovement, Text: "builds are slow"},
		{Kind: FeedbackNeedsImprovement, Text: "build cache misses are slow"},
	}

	report := BuildRetrospective("team-1", "s1", items, classify, extract, detect)
	assert.Equal(t, 1, report.Sentiments[SentimentPositive])
	assert.Equal(t, 2, report.Sentiments[SentimentNegative])
	assert.Equal(t, 2, report.Themes["ci"])
	assert.Len(t, report.Patterns, 2)
}

func TestBuildRetrospectivePreclassifiedItemsKept(t *testing.T) {
	angry := func(string) Sentiment { return SentimentNegative }

	items := []FeedbackItem{
		{ID: "fb-1", Text: "fine", Sentiment: SentimentPositive, Themes: []string{"process"}},
	}

	report := BuildRetrospective("team-1", "s1", items, angry, nil, nil)
	assert.Equal(t, "fb-1", report.Items[0].ID)
	assert.Equal(t, SentimentPositive, report.Items[0].Sentiment)
	assert.Equal(t, 1, report.Themes["process"])
}
