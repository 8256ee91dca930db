package gamification

import (
	"amc-progress-service/internal/domain"
	"amc-progress-service/internal/scoring"
)

// Badge is a static catalog entry.
type Badge struct {
	ID          string
	Emoji       string
	Title       string
	Description string
	Earned      func(domain.UserStats) bool
}

// PersonalBestID identifies the synthesized personal-best badge.
const PersonalBestID = "personal_best"

func topicAtLeast(topic domain.Topic, n int) func(domain.UserStats) bool {
	return func(s domain.UserStats) bool { return s.TopicCorrectCounts[topic] >= n }
}

// Catalog is the fixed badge table, evaluated in order.
var Catalog = []Badge{
	{ID: "first_test", Emoji: "🎯", Title: "First Steps", Description: "Grade your first test", Earned: func(s domain.UserStats) bool { return s.TotalTests >= 1 }},
	{ID: "tests_5", Emoji: "📚", Title: "Getting Serious", Description: "Grade 5 tests", Earned: func(s domain.UserStats) bool { return s.TotalTests >= 5 }},
	{ID: "tests_10", Emoji: "🗂️", Title: "Regular", Description: "Grade 10 tests", Earned: func(s domain.UserStats) bool { return s.TotalTests >= 10 }},
	{ID: "tests_25", Emoji: "🏛️", Title: "Archivist", Description: "Grade 25 tests", Earned: func(s domain.UserStats) bool { return s.TotalTests >= 25 }},
	{ID: "score_60", Emoji: "📈", Title: "Solid Showing", Description: "Score 60% or better", Earned: func(s domain.UserStats) bool { return s.BestScorePercent >= 60 }},
	{ID: "score_80", Emoji: "🚀", Title: "Honor Roll", Description: "Score 80% or better", Earned: func(s domain.UserStats) bool { return s.BestScorePercent >= 80 }},
	{ID: "score_100", Emoji: "💯", Title: "Perfect Paper", Description: "Score 100%", Earned: func(s domain.UserStats) bool { return s.BestScorePercent >= 100 }},
	{ID: "streak_3", Emoji: "🔥", Title: "Warming Up", Description: "Reach a 3 day streak", Earned: func(s domain.UserStats) bool { return s.StreakDays >= 3 }},
	{ID: "streak_7", Emoji: "📅", Title: "Week Warrior", Description: "Reach a 7 day streak", Earned: func(s domain.UserStats) bool { return s.StreakDays >= 7 }},
	{ID: "streak_30", Emoji: "🗓️", Title: "Monthly Master", Description: "Reach a 30 day streak", Earned: func(s domain.UserStats) bool { return s.StreakDays >= 30 }},
	{ID: "xp_500", Emoji: "⭐", Title: "Rising Star", Description: "Earn 500 XP", Earned: func(s domain.UserStats) bool { return s.XP >= 500 }},
	{ID: "xp_2000", Emoji: "🌟", Title: "Powerhouse", Description: "Earn 2,000 XP", Earned: func(s domain.UserStats) bool { return s.XP >= 2000 }},
	{ID: "xp_10000", Emoji: "🌠", Title: "Legend", Description: "Earn 10,000 XP", Earned: func(s domain.UserStats) bool { return s.XP >= 10000 }},
	{ID: "level_5", Emoji: "🥉", Title: "Level 5", Description: "Reach level 5", Earned: func(s domain.UserStats) bool { return s.Level >= 5 }},
	{ID: "level_10", Emoji: "🥇", Title: "Level 10", Description: "Reach level 10", Earned: func(s domain.UserStats) bool { return s.Level >= 10 }},
	{ID: "algebra_20", Emoji: "➗", Title: "Algebra Ace", Description: "Answer 20 algebra questions correctly", Earned: topicAtLeast(domain.Algebra, 20)},
	{ID: "geometry_20", Emoji: "📐", Title: "Geometry Guru", Description: "Answer 20 geometry questions correctly", Earned: topicAtLeast(domain.Geometry, 20)},
	{ID: "number_theory_20", Emoji: "🔢", Title: "Number Ninja", Description: "Answer 20 number theory questions correctly", Earned: topicAtLeast(domain.NumberTheory, 20)},
	{ID: "combinatorics_20", Emoji: "🎲", Title: "Counting Champ", Description: "Answer 20 combinatorics questions correctly", Earned: topicAtLeast(domain.Combinatorics, 20)},
	{ID: "well_rounded", Emoji: "🧭", Title: "Well Rounded", Description: "Answer 10 questions correctly in every topic", Earned: func(s domain.UserStats) bool {
		for _, topic := range []domain.Topic{domain.Algebra, domain.Geometry, domain.NumberTheory, domain.Combinatorics} {
			if s.TopicCorrectCounts[topic] < 10 {
				return false
			}
		}
		return true
	}},
}

// EvaluateBadges recomputes the earned flag of every catalog badge.
func EvaluateBadges(stats domain.UserStats) []domain.BadgeStatus {
	out := make([]domain.BadgeStatus, 0, len(Catalog))
	for _, b := range Catalog {
		out = append(out, domain.BadgeStatus{
			ID:          b.ID,
			Emoji:       b.Emoji,
			Title:       b.Title,
			Description: b.Description,
			Earned:      b.Earned(stats),
		})
	}
	return out
}

// PersonalBest returns the ad-hoc personal best badge when the latest test
// beats every earlier one. scores must be in chronological order.
func PersonalBest(scores []domain.TestScore) *domain.BadgeStatus {
	if len(scores) < 2 {
		return nil
	}
	latest := scoring.Percent(scores[len(scores)-1])
	best := scoring.Percent(scores[0])
	for _, s := range scores[1 : len(scores)-1] {
		if p := scoring.Percent(s); p > best {
			best = p
		}
	}
	if latest <= best {
		return nil
	}
	return &domain.BadgeStatus{
		ID:          PersonalBestID,
		Emoji:       "🏆",
		Title:       "New Personal Best",
		Description: "Your latest test beat all of your previous scores",
		Earned:      true,
	}
}

// BuildStats folds the score history and counters into badge inputs.
func BuildStats(scores []domain.TestScore, xp, streak int) domain.UserStats {
	stats := domain.UserStats{
		TotalTests:         len(scores),
		StreakDays:         streak,
		XP:                 xp,
		Level:              CalculateLevel(xp).Level,
		TopicCorrectCounts: make(map[domain.Topic]int),
	}
	for _, s := range scores {
		if p := scoring.Percent(s); p > stats.BestScorePercent {
			stats.BestScorePercent = p
		}
		for n := 1; n <= domain.QuestionCount; n++ {
			if scoring.IsCorrect(s, n) {
				stats.TopicCorrectCounts[s.TopicAt(n)]++
			}
		}
	}
	return stats
}

// EarnedIDs lists the ids of earned badges.
func EarnedIDs(badges []domain.BadgeStatus) []string {
	var ids []string
	for _, b := range badges {
		if b.Earned {
			ids = append(ids, b.ID)
		}
	}
	return ids
}
