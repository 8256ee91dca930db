package gamification

import (
	"testing"
	"time"

	"amc-progress-service/internal/domain"
)

func TestEvaluateBadges(t *testing.T) {
	stats := domain.UserStats{
		TotalTests:         5,
		BestScorePercent:   64,
		StreakDays:         7,
		XP:                 600,
		Level:              CalculateLevel(600).Level,
		TopicCorrectCounts: map[domain.Topic]int{domain.Geometry: 21},
	}
	earned := map[string]bool{}
	for _, b := range EvaluateBadges(stats) {
		earned[b.ID] = b.Earned
	}
	if len(earned) != len(Catalog) {
		t.Fatalf("expected %d badges, got %d", len(Catalog), len(earned))
	}
	for _, id := range []string{"first_test", "tests_5", "score_60", "streak_3", "streak_7", "xp_500", "geometry_20"} {
		if !earned[id] {
			t.Fatalf("expected %s earned", id)
		}
	}
	for _, id := range []string{"tests_10", "score_80", "streak_30", "xp_2000", "algebra_20", "well_rounded"} {
		if earned[id] {
			t.Fatalf("expected %s not earned", id)
		}
	}
}

func TestPersonalBest(t *testing.T) {
	at := func(score float64) domain.TestScore {
		return domain.TestScore{TestType: domain.AMC8, Score: score, MaxScore: 25, Date: time.Now()}
	}
	if PersonalBest([]domain.TestScore{at(25)}) != nil {
		t.Fatalf("single test must not produce a personal best")
	}
	if PersonalBest([]domain.TestScore{at(10), at(12), at(11)}) != nil {
		t.Fatalf("latest below earlier best")
	}
	if PersonalBest([]domain.TestScore{at(10), at(12), at(12)}) != nil {
		t.Fatalf("tie is not a new best")
	}
	pb := PersonalBest([]domain.TestScore{at(10), at(12), at(13)})
	if pb == nil || !pb.Earned || pb.ID != PersonalBestID {
		t.Fatalf("expected personal best badge, got %+v", pb)
	}
}

func TestBuildStatsCountsTopics(t *testing.T) {
	s := domain.TestScore{
		TestType:            domain.AMC8,
		Score:               2,
		MaxScore:            25,
		QuestionCorrectness: map[int]bool{1: true, 2: true, 3: false},
		QuestionTopics:      map[int]domain.Topic{1: domain.Algebra, 3: domain.Algebra},
	}
	stats := BuildStats([]domain.TestScore{s}, 120, 2)
	if stats.TopicCorrectCounts[domain.Algebra] != 1 || stats.TopicCorrectCounts[domain.OtherTopic] != 1 {
		t.Fatalf("unexpected topic counts %+v", stats.TopicCorrectCounts)
	}
	if stats.Level != 2 || stats.BestScorePercent != 8 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}
