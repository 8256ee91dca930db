// Package stats folds the score history into accuracy tables, trends and
// summary statistics.
package stats

import (
	"time"

	"amc-progress-service/internal/domain"
)

// Filter narrows the score history before aggregation. Zero fields match all.
type Filter struct {
	TestType domain.TestType
	Family   domain.TestType
	Label    string
	Since    time.Time
}

// Match reports whether s passes the filter.
func (f Filter) Match(s domain.TestScore) bool {
	if f.TestType != "" && s.TestType != f.TestType {
		return false
	}
	if f.Family != "" && s.TestType.Family() != f.Family.Family() {
		return false
	}
	if f.Label != "" && s.Label != f.Label {
		return false
	}
	if !f.Since.IsZero() && s.Date.Before(f.Since) {
		return false
	}
	return true
}

// Apply returns the matching scores, preserving order.
func Apply(scores []domain.TestScore, f Filter) []domain.TestScore {
	out := make([]domain.TestScore, 0, len(scores))
	for _, s := range scores {
		if f.Match(s) {
			out = append(out, s)
		}
	}
	return out
}
