package stats

import (
	"math"

	"amc-progress-service/internal/domain"
	"amc-progress-service/internal/scoring"
)

// Trend is the direction of recent performance.
type Trend string

const (
	TrendUp     Trend = "up"
	TrendDown   Trend = "down"
	TrendStable Trend = "stable"
)

const (
	trendWindow          = 5
	trendThreshold       = 2.0
	highVariancePoints   = 25.0
	minConsistencyPoints = 3
)

// Percentages maps each score to its percentage, preserving order.
func Percentages(scores []domain.TestScore) []float64 {
	out := make([]float64, len(scores))
	for i, s := range scores {
		out[i] = scoring.Percent(s)
	}
	return out
}

// TrendOf compares the first and second half of the last five scores.
func TrendOf(scores []domain.TestScore) Trend {
	values := Percentages(scores)
	if len(values) > trendWindow {
		values = values[len(values)-trendWindow:]
	}
	if len(values) < 2 {
		return TrendStable
	}
	half := len(values) / 2
	diff := mean(values[half:]) - mean(values[:half])
	switch {
	case diff > trendThreshold:
		return TrendUp
	case diff < -trendThreshold:
		return TrendDown
	}
	return TrendStable
}

// Consistency scores how steady results are: 100 means identical scores and
// a standard deviation of 25 points or more means 0. It needs at least three
// scores.
func Consistency(scores []domain.TestScore) (int, bool) {
	values := Percentages(scores)
	if len(values) < minConsistencyPoints {
		return 0, false
	}
	score := 100 - (stddev(values)/highVariancePoints)*100
	if score < 0 {
		score = 0
	}
	return int(math.Round(score)), true
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stddev(values []float64) float64 {
	m := mean(values)
	var sq float64
	for _, v := range values {
		sq += (v - m) * (v - m)
	}
	return math.Sqrt(sq / float64(len(values)))
}
