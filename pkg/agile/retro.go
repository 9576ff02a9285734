package agile

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// FeedbackKind buckets retrospective feedback
type FeedbackKind string

const (
	FeedbackWentWell         FeedbackKind = "went_well"
	FeedbackNeedsImprovement FeedbackKind = "needs_improvement"
	FeedbackActionItem       FeedbackKind = "action_item"
)

// Sentiment classifies the tone of a feedback item
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// FeedbackItem is one piece of retrospective input
type FeedbackItem struct {
	ID        string
	AuthorID  string
	Kind      FeedbackKind
	Text      string
	Sentiment Sentiment
	Themes    []string
	CreatedAt time.Time
}

// RetrospectiveReport aggregates a sprint's feedback
type RetrospectiveReport struct {
	ID         string
	TeamID     string
	SprintID   string
	Items      []FeedbackItem
	Sentiments map[Sentiment]int
	Themes     map[string]int
	Patterns   []string
	CreatedAt  time.Time
}

// SentimentClassifier assigns a tone to feedback text
type SentimentClassifier func(text string) Sentiment

// ThemeExtractor pulls recurring topics out of feedback text
type ThemeExtractor func(text string) []string

// PatternDetector finds cross-item patterns worth acting on
type PatternDetector func(items []FeedbackItem) []string

// NeutralSentiment is the default classifier; it treats all feedback as neutral
func NeutralSentiment(string) Sentiment { return SentimentNeutral }

// NoThemes is the default theme extractor
func NoThemes(string) []string { return nil }

// NoPatterns is the default pattern detector
func NoPatterns([]FeedbackItem) []string { return nil }

// BuildRetrospective runs the pluggable analyzers over the feedback and
// assembles the report. Nil analyzers fall back to the neutral defaults.
func BuildRetrospective(teamID, sprintID string, items []FeedbackItem,
	classify SentimentClassifier, extract ThemeExtractor, detect PatternDetector) *RetrospectiveReport {

	if classify == nil {
		classify = NeutralSentiment
	}
	if extract == nil {
		extract = NoThemes
	}
	if detect == nil {
		detect = NoPatterns
	}

	report := &RetrospectiveReport{
		ID:         uuid.New().String(),
		TeamID:     teamID,
		SprintID:   sprintID,
		Sentiments: make(map[Sentiment]int),
		Themes:     make(map[string]int),
		CreatedAt:  time.Now().UTC(),
	}

	for _, item := range items {
		if item.ID == "" {
			item.ID = uuid.New().String()
		}
		if item.Sentiment == "" {
			item.Sentiment = classify(item.Text)
		}
		if len(item.Themes) == 0 {
			item.Themes = extract(item.Text)
		}
		report.Sentiments[item.Sentiment]++
		for _, theme := range item.Themes {
			report.Themes[theme]++
		}
		report.Items = append(report.Items, item)
	}

	report.Patterns = detect(report.Items)
	sort.Strings(report.Patterns)
	return report
}
