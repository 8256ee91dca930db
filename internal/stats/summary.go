package stats

import (
	"fmt"
	"io"
	"math"
	"strings"

	"amc-progress-service/internal/domain"
	"amc-progress-service/internal/scoring"
)

// Summary is the dashboard view of a filtered score history.
type Summary struct {
	TotalTests     int                     `json:"totalTests"`
	AveragePercent float64                 `json:"averagePercent"`
	BestPercent    float64                 `json:"bestPercent"`
	LatestPercent  float64                 `json:"latestPercent"`
	TotalCorrect   int                     `json:"totalCorrect"`
	Trend          Trend                   `json:"trend"`
	Consistency    *int                    `json:"consistency,omitempty"`
	ByTestType     map[domain.TestType]int `json:"byTestType"`
	Questions      []QuestionStat          `json:"questions"`
	Topics         []TopicStat             `json:"topics"`
	Strengths      []TopicStat             `json:"strengths"`
	Weaknesses     []TopicStat             `json:"weaknesses"`
}

// Summarize builds every aggregate for the filtered history.
func Summarize(scores []domain.TestScore, f Filter, top int) Summary {
	filtered := Apply(scores, f)
	sum := Summary{
		TotalTests: len(filtered),
		Trend:      TrendOf(filtered),
		ByTestType: make(map[domain.TestType]int),
		Questions:  QuestionAccuracy(filtered, Filter{}),
		Topics:     TopicAccuracy(filtered, Filter{}),
	}
	sum.Strengths = Strengths(sum.Topics, top)
	sum.Weaknesses = Weaknesses(sum.Topics, top)
	if c, ok := Consistency(filtered); ok {
		sum.Consistency = &c
	}

	values := Percentages(filtered)
	for i, s := range filtered {
		sum.ByTestType[s.TestType]++
		if values[i] > sum.BestPercent {
			sum.BestPercent = values[i]
		}
		for n := 1; n <= domain.QuestionCount; n++ {
			if scoring.IsCorrect(s, n) {
				sum.TotalCorrect++
			}
		}
	}
	if len(values) > 0 {
		sum.AveragePercent = round1(mean(values))
		sum.LatestPercent = round1(values[len(values)-1])
		sum.BestPercent = round1(sum.BestPercent)
	}
	return sum
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// RenderSummary prints the summary as plain text tables.
func RenderSummary(w io.Writer, sum Summary) error {
	if sum.TotalTests == 0 {
		_, err := fmt.Fprintln(w, "No tests found.")
		return err
	}
	lines := []string{
		"Summary",
		fmt.Sprintf("Tests: %d", sum.TotalTests),
		fmt.Sprintf("Average: %.1f%%", sum.AveragePercent),
		fmt.Sprintf("Best: %.1f%%", sum.BestPercent),
		fmt.Sprintf("Latest: %.1f%%", sum.LatestPercent),
		fmt.Sprintf("Trend: %s", sum.Trend),
	}
	if sum.Consistency != nil {
		lines = append(lines, fmt.Sprintf("Consistency: %d", *sum.Consistency))
	}
	lines = append(lines, "", "Per-Question")
	for _, q := range sum.Questions {
		acc := "no data"
		if q.HasData {
			acc = fmt.Sprintf("%3d%% (%d/%d)", q.Accuracy, q.Correct, q.Total)
		}
		lines = append(lines, fmt.Sprintf("  Q%-3d %s", q.Number, acc))
	}
	lines = append(lines, "", "Per-Topic")
	for _, t := range sum.Topics {
		lines = append(lines, fmt.Sprintf("  %-14s %3d%% (%d/%d)", t.Topic, t.Accuracy, t.Correct, t.Total))
	}
	lines = append(lines, "", "Strengths: "+topicNames(sum.Strengths), "Focus on: "+topicNames(sum.Weaknesses))
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func topicNames(topics []TopicStat) string {
	if len(topics) == 0 {
		return "-"
	}
	names := make([]string, len(topics))
	for i, t := range topics {
		names[i] = string(t.Topic)
	}
	return strings.Join(names, ", ")
}
