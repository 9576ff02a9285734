package agile

import (
	"testing"

	"github.com/cadre-dev/cadre/pkg/errdefs"
	"github.com/stretchr/testify/assert"
)

func TestAnalyzeTrend(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   Trend
	}{
		{"too few samples", []float64{10, 12}, TrendInsufficientData},
		{"empty", nil, TrendInsufficientData},
		{"improving", []float64{10, 14, 18, 22}, TrendImproving},
		{"declining", []float64{22, 18, 14, 10}, TrendDeclining},
		{"flat", []float64{20, 20, 20, 20}, TrendStable},
		{"noise within the stable band", []float64{20, 20.3, 19.8, 20.1}, TrendStable},
		{"all zeros", []float64{0, 0, 0}, TrendStable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trend, _ := AnalyzeTrend(tt.values)
			assert.Equal(t, tt.want, trend)
		})
	}
}

func TestAnalyzeTrendSlope(t *testing.T) {
	_, slope := AnalyzeTrend([]float64{10, 14, 18, 22})
	assert.InDelta(t, 4.0, slope, 0.0001)
}

func TestPredictVelocity(t *testing.T) {
	history := []float64{18, 20, 22, 24, 26}

	p, err := PredictVelocity(history, 1, CapacityAdjustment{}, 0.9)
	assert.NoError(t, err)
	assert.Equal(t, TrendImproving, p.Trend)
	assert.Equal(t, 5, p.Samples)
	// Recency weighting plus a +2 slope keeps the forecast above the mean
	assert.Greater(t, p.Predicted, 22.0)
	assert.Greater(t, p.Confidence, 0.0)
	assert.LessOrEqual(t, p.Confidence, 1.0)
	assert.LessOrEqual(t, p.Low, p.Predicted)
	assert.GreaterOrEqual(t, p.High, p.Predicted)
}

func TestPredictVelocityCapacityAdjustment(t *testing.T) {
	history := []float64{20, 20, 20, 20}

	full, err := PredictVelocity(history, 1, CapacityAdjustment{}, 0.8)
	assert.NoError(t, err)

	reduced, err := PredictVelocity(history, 1, CapacityAdjustment{
		HolidayFactor:  0.5,
		NewMemberCount: 2,
	}, 0.8)
	assert.NoError(t, err)

	// Half capacity, minus 5% per ramping member
	assert.InDelta(t, full.Predicted*0.5*0.9, reduced.Predicted, 0.0001)

	grown, err := PredictVelocity(history, 1, CapacityAdjustment{SizeChangeFactor: 0.25}, 0.8)
	assert.NoError(t, err)
	assert.InDelta(t, full.Predicted*1.25, grown.Predicted, 0.0001)
}

func TestPredictVelocityNeverNegative(t *testing.T) {
	p, err := PredictVelocity([]float64{20, 12, 4}, 5, CapacityAdjustment{}, 0.8)
	assert.NoError(t, err)
	assert.GreaterOrEqual(t, p.Predicted, 0.0)
	assert.GreaterOrEqual(t, p.Low, 0.0)
}

func TestPredictVelocityShortHistory(t *testing.T) {
	// Two sprints cannot be trend-classified but still yield a forecast
	p, err := PredictVelocity([]float64{18, 20}, 1, CapacityAdjustment{}, 0.8)
	assert.NoError(t, err)
	assert.Equal(t, TrendInsufficientData, p.Trend)
	assert.Greater(t, p.Predicted, 0.0)
}

func TestPredictVelocityValidation(t *testing.T) {
	_, err := PredictVelocity(nil, 1, CapacityAdjustment{}, 0.8)
	assert.ErrorIs(t, err, errdefs.ErrInvalidArgument)

	_, err = PredictVelocity([]float64{20}, 0, CapacityAdjustment{}, 0.8)
	assert.ErrorIs(t, err, errdefs.ErrInvalidArgument)
}

func TestConfidenceBounds(t *testing.T) {
	// Long stable history with good accuracy approaches full confidence
	stable := make([]float64, 12)
	for i := range stable {
		stable[i] = 20
	}
	high := confidence(stable, 1.0)
	assert.InDelta(t, 1.0, high, 0.0001)

	// Out-of-range accuracy falls back to the default
	assert.Equal(t, confidence(stable, 0.8), confidence(stable, -1))
	assert.Equal(t, confidence(stable, 0.8), confidence(stable, 2))
}
