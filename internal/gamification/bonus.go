package gamification

import (
	"fmt"
	"time"

	"amc-progress-service/internal/domain"
)

// DateLayout is the calendar-day key used for bonus bookkeeping.
const DateLayout = "2006-01-02"

const (
	bonusBase      = 20
	bonusPerDay    = 5
	bonusStreakCap = 50
)

// BonusClaim is the outcome of a successful daily bonus claim.
type BonusClaim struct {
	State          domain.BonusState
	Reward         int
	PreviousStreak int
	Continued      bool
}

// Today formats now as a calendar-day key in now's location.
func Today(now time.Time) string {
	return now.Format(DateLayout)
}

// Yesterday returns the calendar day before the given day key.
func Yesterday(today string) (string, error) {
	day, err := time.Parse(DateLayout, today)
	if err != nil {
		return "", fmt.Errorf("parse day %q: %w", today, err)
	}
	return day.AddDate(0, 0, -1).Format(DateLayout), nil
}

// BonusReward is the XP paid for a claim that leaves the streak at streak.
func BonusReward(streak int) int {
	extra := streak * bonusPerDay
	if extra > bonusStreakCap {
		extra = bonusStreakCap
	}
	return bonusBase + extra
}

// ClaimDailyBonus applies a claim made on the calendar day today. The streak
// continues only when the previous claim was exactly the day before.
func ClaimDailyBonus(state domain.BonusState, today string) (BonusClaim, error) {
	if state.LastClaimDate == today {
		return BonusClaim{}, domain.ErrBonusAlreadyClaimed
	}
	yesterday, err := Yesterday(today)
	if err != nil {
		return BonusClaim{}, err
	}

	claim := BonusClaim{PreviousStreak: state.Streak}
	streak := 1
	if state.LastClaimDate == yesterday && state.Streak > 0 {
		streak = state.Streak + 1
		claim.Continued = true
	}
	claim.State = domain.BonusState{LastClaimDate: today, Streak: streak}
	claim.Reward = BonusReward(streak)
	return claim, nil
}
