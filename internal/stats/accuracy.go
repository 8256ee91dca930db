package stats

import (
	"math"
	"sort"

	"amc-progress-service/internal/domain"
	"amc-progress-service/internal/scoring"
)

const (
	strengthAccuracy    = 80
	strengthMinAttempts = 5
	weaknessMinAttempts = 5
)

// QuestionStat is the accuracy of one question slot across tests.
type QuestionStat struct {
	Number   int  `json:"number"`
	Correct  int  `json:"correct"`
	Total    int  `json:"total"`
	Accuracy int  `json:"accuracy"`
	HasData  bool `json:"hasData"`
}

// TopicStat is the accuracy of one topic across tests.
type TopicStat struct {
	Topic    domain.Topic `json:"topic"`
	Correct  int          `json:"correct"`
	Total    int          `json:"total"`
	Mistakes int          `json:"mistakes"`
	Accuracy int          `json:"accuracy"`
}

func percentOf(correct, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(100 * float64(correct) / float64(total)))
}

// QuestionAccuracy returns one row per question number. Slots nobody
// attempted have HasData=false instead of a 0% accuracy.
func QuestionAccuracy(scores []domain.TestScore, f Filter) []QuestionStat {
	rows := make([]QuestionStat, domain.QuestionCount)
	for i := range rows {
		rows[i].Number = i + 1
	}
	for _, s := range Apply(scores, f) {
		for n := 1; n <= domain.QuestionCount; n++ {
			if !scoring.Attempted(s, n) {
				continue
			}
			rows[n-1].Total++
			if scoring.IsCorrect(s, n) {
				rows[n-1].Correct++
			}
		}
	}
	for i := range rows {
		if rows[i].Total > 0 {
			rows[i].HasData = true
			rows[i].Accuracy = percentOf(rows[i].Correct, rows[i].Total)
		}
	}
	return rows
}

// TopicAccuracy aggregates correctness per topic; unlabeled questions count
// as Other. Topics without attempts are omitted.
func TopicAccuracy(scores []domain.TestScore, f Filter) []TopicStat {
	byTopic := make(map[domain.Topic]*TopicStat)
	for _, s := range Apply(scores, f) {
		for n := 1; n <= domain.QuestionCount; n++ {
			if !scoring.Attempted(s, n) {
				continue
			}
			topic := s.TopicAt(n)
			agg, ok := byTopic[topic]
			if !ok {
				agg = &TopicStat{Topic: topic}
				byTopic[topic] = agg
			}
			agg.Total++
			if scoring.IsCorrect(s, n) {
				agg.Correct++
			}
		}
	}

	out := make([]TopicStat, 0, len(byTopic))
	for _, topic := range domain.Topics {
		agg, ok := byTopic[topic]
		if !ok {
			continue
		}
		agg.Mistakes = agg.Total - agg.Correct
		agg.Accuracy = percentOf(agg.Correct, agg.Total)
		out = append(out, *agg)
	}
	return out
}

// Strengths returns up to n topics with high accuracy over enough attempts,
// best first.
func Strengths(topics []TopicStat, n int) []TopicStat {
	var out []TopicStat
	for _, t := range topics {
		if t.Accuracy >= strengthAccuracy && t.Total >= strengthMinAttempts {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Accuracy == out[j].Accuracy {
			return out[i].Total > out[j].Total
		}
		return out[i].Accuracy > out[j].Accuracy
	})
	return limit(out, n)
}

// Weaknesses returns up to n topics ranked by raw mistake count, skipping
// anything already listed as a strength.
func Weaknesses(topics []TopicStat, n int) []TopicStat {
	strong := make(map[domain.Topic]bool)
	for _, t := range Strengths(topics, len(topics)) {
		strong[t.Topic] = true
	}
	var out []TopicStat
	for _, t := range topics {
		if t.Total > weaknessMinAttempts && !strong[t.Topic] && t.Mistakes > 0 {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Mistakes == out[j].Mistakes {
			return out[i].Accuracy < out[j].Accuracy
		}
		return out[i].Mistakes > out[j].Mistakes
	})
	return limit(out, n)
}

func limit(items []TopicStat, n int) []TopicStat {
	if n <= 0 || n >= len(items) {
		return items
	}
	return items[:n]
}
