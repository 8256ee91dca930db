package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"amc-progress-service/internal/domain"
	"amc-progress-service/internal/stats"
)

func TestWritePDF(t *testing.T) {
	answers := strings.Repeat("A", 25)
	scores := []domain.TestScore{{
		ID:       "t1",
		Date:     time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		TestType: domain.AMC8,
		Year:     2023,
		Input:    answers,
		Key:      answers,
		Score:    25,
	}}
	var buf bytes.Buffer
	err := WritePDF(&buf, Input{
		Title:       "AMC progress",
		GeneratedAt: time.Date(2024, 2, 2, 10, 0, 0, 0, time.UTC),
		Profile:     domain.Profile{XP: 250, Coins: 125, TotalTests: 1},
		Summary:     stats.Summarize(scores, stats.Filter{}, 3),
		Scores:      scores,
	})
	if err != nil {
		t.Fatalf("write pdf: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")) {
		t.Fatalf("expected a PDF document")
	}
}
