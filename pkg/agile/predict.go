package agile

import (
	"math"

	"github.com/cadre-dev/cadre/pkg/errdefs"
)

const (
	// wmaAlpha is the decay factor of the exponential weighted moving average
	wmaAlpha = 0.3

	// z95 is the z-score of a two-sided 95% confidence interval
	z95 = 1.96
)

// CapacityAdjustment scales a prediction for known capacity changes
type CapacityAdjustment struct {
	HolidayFactor    float64 // fraction of capacity lost to holidays, [0,1)
	SizeChangeFactor float64 // relative team size change, e.g. +0.2
	NewMemberCount   int     // members still ramping up
}

// factor folds the adjustments into a single multiplier
func (c CapacityAdjustment) factor() float64 {
	f := 1.0
	f *= 1 - c.HolidayFactor
	f *= 1 + c.SizeChangeFactor
	// Each member still ramping up costs about 5% of team capacity
	f *= 1 - 0.05*float64(c.NewMemberCount)
	if f < 0 {
		f = 0
	}
	return f
}

// Prediction is a velocity forecast with a confidence band
type Prediction struct {
	Predicted  float64
	Confidence float64 // [0,1]
	Low        float64 // 95% interval lower bound
	High       float64 // 95% interval upper bound
	Trend      Trend
	Samples    int
}

// PredictVelocity forecasts velocity futureSprints ahead from the history.
// The base estimate is an exponentially weighted moving average (newer
// sprints weigh more), adjusted by the regression trend and the capacity
// factor. The 95% interval is 1.96·sigma/sqrt(n) around the estimate.
func PredictVelocity(history []float64, futureSprints int, adjustment CapacityAdjustment, historicalAccuracy float64) (*Prediction, error) {
	if len(history) == 0 {
		return nil, errdefs.InvalidArgument("velocity history is empty")
	}
	if futureSprints < 1 {
		return nil, errdefs.InvalidArgument("future sprint count must be positive, got %d", futureSprints)
	}

	n := len(history)
	weights := make([]float64, n)
	var weightSum float64
	for i := range history {
		weights[i] = math.Pow(1-wmaAlpha, float64(n-i-1))
		weightSum += weights[i]
	}
	var base float64
	for i, v := range history {
		base += v * weights[i] / weightSum
	}

	trend, slope := AnalyzeTrend(history)
	predicted := base
	if trend != TrendInsufficientData {
		predicted += slope * float64(futureSprints)
	}
	predicted *= adjustment.factor()
	if predicted < 0 {
		predicted = 0
	}

	sigma := stddev(history)
	interval := z95 * sigma / math.Sqrt(float64(n))

	return &Prediction{
		Predicted:  predicted,
		Confidence: confidence(history, historicalAccuracy),
		Low:        math.Max(0, predicted-interval),
		High:       predicted + interval,
		Trend:      trend,
		Samples:    n,
	}, nil
}

// confidence blends data volume, series stability and historical forecast
// accuracy into [0,1].
func confidence(history []float64, historicalAccuracy float64) float64 {
	volume := math.Min(float64(len(history))/10, 1)

	stability := 1.0
	if m := mean(history); m > 0 {
		cv := stddev(history) / m
		stability = math.Max(0, 1-cv)
	}

	if historicalAccuracy <= 0 || historicalAccuracy > 1 {
		historicalAccuracy = 0.8
	}
	return (volume + stability + historicalAccuracy) / 3
}
