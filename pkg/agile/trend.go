package agile

import (
	"math"
)

// Trend classifies the direction of a metric series
type Trend string

const (
	TrendImproving        Trend = "improving"
	TrendDeclining        Trend = "declining"
	TrendStable           Trend = "stable"
	TrendInsufficientData Trend = "insufficient_data"
)

// stableRelativeSlope is the relative-slope band treated as no movement
const stableRelativeSlope = 0.05

// AnalyzeTrend fits a least-squares line through the series and classifies
// the slope relative to the series mean. Fewer than 3 samples cannot be
// classified.
func AnalyzeTrend(values []float64) (Trend, float64) {
	if len(values) < 3 {
		return TrendInsufficientData, 0
	}

	slope := regressionSlope(values)
	mean := mean(values)
	if mean == 0 {
		if slope == 0 {
			return TrendStable, slope
		}
	} else if math.Abs(slope/mean) < stableRelativeSlope {
		return TrendStable, slope
	}
	if slope > 0 {
		return TrendImproving, slope
	}
	if slope < 0 {
		return TrendDeclining, slope
	}
	return TrendStable, slope
}

// regressionSlope returns the least-squares slope with x = sample index
func regressionSlope(values []float64) float64 {
	n := float64(len(values))
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range values {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var total float64
	for _, v := range values {
		total += v
	}
	return total / float64(len(values))
}

func stddev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	var sum float64
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)-1))
}
