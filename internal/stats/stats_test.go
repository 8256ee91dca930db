package stats

import (
	"strings"
	"testing"
	"time"

	"amc-progress-service/internal/domain"
)

func amc8(score float64) domain.TestScore {
	return domain.TestScore{TestType: domain.AMC8, Score: score, MaxScore: 25, Date: time.Now()}
}

func withCorrect(s domain.TestScore, topic domain.Topic, correct, total int) domain.TestScore {
	s.QuestionCorrectness = make(map[int]bool)
	s.QuestionTopics = make(map[int]domain.Topic)
	for n := 1; n <= total; n++ {
		s.QuestionCorrectness[n] = n <= correct
		s.QuestionTopics[n] = topic
	}
	return s
}

func TestQuestionAccuracyMarksUntouchedSlots(t *testing.T) {
	s := amc8(1)
	s.QuestionCorrectness = map[int]bool{1: true, 2: false}
	rows := QuestionAccuracy([]domain.TestScore{s, s, s}, Filter{})
	if len(rows) != domain.QuestionCount {
		t.Fatalf("expected %d rows, got %d", domain.QuestionCount, len(rows))
	}
	if !rows[0].HasData || rows[0].Accuracy != 100 || rows[0].Total != 3 {
		t.Fatalf("unexpected row 1: %+v", rows[0])
	}
	if !rows[1].HasData || rows[1].Accuracy != 0 {
		t.Fatalf("unexpected row 2: %+v", rows[1])
	}
	if rows[2].HasData {
		t.Fatalf("row 3 should have no data: %+v", rows[2])
	}
}

func TestQuestionAccuracyDerivesFromLegacyStrings(t *testing.T) {
	legacy := domain.TestScore{
		TestType: domain.AMC10A,
		Input:    "AB" + strings.Repeat(" ", 23),
		Key:      "AC" + strings.Repeat("D", 23),
	}
	rows := QuestionAccuracy([]domain.TestScore{legacy}, Filter{})
	if rows[0].Accuracy != 100 || rows[1].Accuracy != 0 || !rows[24].HasData {
		t.Fatalf("unexpected legacy rows %+v %+v", rows[0], rows[1])
	}
}

func TestQuestionAccuracyFiltersByType(t *testing.T) {
	a := withCorrect(amc8(1), domain.Algebra, 1, 1)
	b := withCorrect(domain.TestScore{TestType: domain.AMC10A, MaxScore: 150}, domain.Algebra, 0, 1)
	rows := QuestionAccuracy([]domain.TestScore{a, b}, Filter{TestType: domain.AMC8})
	if rows[0].Total != 1 || rows[0].Accuracy != 100 {
		t.Fatalf("filter not applied: %+v", rows[0])
	}
	rows = QuestionAccuracy([]domain.TestScore{a, b}, Filter{Family: domain.AMC10})
	if rows[0].Total != 1 || rows[0].Accuracy != 0 {
		t.Fatalf("family filter not applied: %+v", rows[0])
	}
}

func TestTopicAccuracyDefaultsToOther(t *testing.T) {
	s := amc8(2)
	s.QuestionCorrectness = map[int]bool{1: true, 2: true, 3: false}
	s.QuestionTopics = map[int]domain.Topic{1: domain.Geometry, 2: "Trigonometry"}
	topics := TopicAccuracy([]domain.TestScore{s}, Filter{})
	if len(topics) != 2 {
		t.Fatalf("expected 2 topics, got %+v", topics)
	}
	if topics[0].Topic != domain.Geometry || topics[1].Topic != domain.OtherTopic {
		t.Fatalf("unexpected order %+v", topics)
	}
	if topics[1].Total != 2 || topics[1].Correct != 1 || topics[1].Mistakes != 1 {
		t.Fatalf("unexpected other bucket %+v", topics[1])
	}
}

func TestStrengthsAndWeaknesses(t *testing.T) {
	topics := []TopicStat{
		{Topic: domain.Algebra, Correct: 9, Total: 10, Mistakes: 1, Accuracy: 90},
		{Topic: domain.Geometry, Correct: 4, Total: 4, Mistakes: 0, Accuracy: 100},
		{Topic: domain.NumberTheory, Correct: 30, Total: 40, Mistakes: 10, Accuracy: 75},
		{Topic: domain.Combinatorics, Correct: 2, Total: 6, Mistakes: 4, Accuracy: 33},
		{Topic: domain.OtherTopic, Correct: 1, Total: 5, Mistakes: 4, Accuracy: 20},
	}
	strong := Strengths(topics, 3)
	if len(strong) != 1 || strong[0].Topic != domain.Algebra {
		t.Fatalf("unexpected strengths %+v", strong)
	}
	weak := Weaknesses(topics, 3)
	if len(weak) != 2 || weak[0].Topic != domain.NumberTheory || weak[1].Topic != domain.Combinatorics {
		t.Fatalf("mistake count should drive weaknesses, got %+v", weak)
	}
}

func TestTrendOf(t *testing.T) {
	tests := []struct {
		name   string
		scores []float64
		want   Trend
	}{
		{name: "too few", scores: []float64{10}, want: TrendStable},
		{name: "improving", scores: []float64{10, 10, 15, 15, 15}, want: TrendUp},
		{name: "declining", scores: []float64{20, 20, 10, 10, 10}, want: TrendDown},
		{name: "within band", scores: []float64{10, 10, 10, 10, 10.4}, want: TrendStable},
		{name: "only last five count", scores: []float64{25, 25, 25, 5, 5, 10, 10, 10}, want: TrendUp},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var scores []domain.TestScore
			for _, v := range tc.scores {
				scores = append(scores, amc8(v))
			}
			if got := TrendOf(scores); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestConsistency(t *testing.T) {
	if _, ok := Consistency([]domain.TestScore{amc8(10), amc8(12)}); ok {
		t.Fatalf("two points are not enough")
	}
	c, ok := Consistency([]domain.TestScore{amc8(10), amc8(10), amc8(10)})
	if !ok || c != 100 {
		t.Fatalf("identical scores should be 100, got %d", c)
	}
	c, _ = Consistency([]domain.TestScore{amc8(0), amc8(25), amc8(0), amc8(25)})
	if c != 0 {
		t.Fatalf("wild swings should floor at 0, got %d", c)
	}
}

func TestSummarize(t *testing.T) {
	scores := []domain.TestScore{
		withCorrect(amc8(10), domain.Algebra, 10, 25),
		withCorrect(amc8(20), domain.Algebra, 20, 25),
	}
	sum := Summarize(scores, Filter{}, 3)
	if sum.TotalTests != 2 || sum.BestPercent != 80 || sum.LatestPercent != 80 || sum.AveragePercent != 60 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if sum.TotalCorrect != 30 || sum.Trend != TrendUp || sum.Consistency != nil {
		t.Fatalf("unexpected aggregates %+v", sum)
	}
	var b strings.Builder
	if err := RenderSummary(&b, sum); err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(b.String(), "Trend: up") {
		t.Fatalf("render missing trend:\n%s", b.String())
	}
}
