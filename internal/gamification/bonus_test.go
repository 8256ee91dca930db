package gamification

import (
	"errors"
	"testing"

	"amc-progress-service/internal/domain"
)

func TestClaimDailyBonusConsecutiveDays(t *testing.T) {
	state := domain.BonusState{}
	days := []string{"2026-02-27", "2026-02-28", "2026-03-01", "2026-03-02"}
	for i, day := range days {
		claim, err := ClaimDailyBonus(state, day)
		if err != nil {
			t.Fatalf("claim %s: %v", day, err)
		}
		if claim.State.Streak != i+1 {
			t.Fatalf("day %s: expected streak %d, got %d", day, i+1, claim.State.Streak)
		}
		state = claim.State
	}
}

func TestClaimDailyBonusGapResetsStreak(t *testing.T) {
	state := domain.BonusState{LastClaimDate: "2026-10-15", Streak: 6}
	claim, err := ClaimDailyBonus(state, "2026-10-17")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claim.State.Streak != 1 || claim.Continued || claim.PreviousStreak != 6 {
		t.Fatalf("expected reset streak, got %+v", claim)
	}
	if claim.Reward != 25 {
		t.Fatalf("expected reward 25, got %d", claim.Reward)
	}
}

func TestClaimDailyBonusOncePerDay(t *testing.T) {
	state := domain.BonusState{LastClaimDate: "2026-10-18", Streak: 2}
	if _, err := ClaimDailyBonus(state, "2026-10-18"); !errors.Is(err, domain.ErrBonusAlreadyClaimed) {
		t.Fatalf("expected already claimed, got %v", err)
	}
}

func TestBonusRewardCapped(t *testing.T) {
	if BonusReward(1) != 25 || BonusReward(10) != 70 || BonusReward(40) != 70 {
		t.Fatalf("unexpected rewards %d %d %d", BonusReward(1), BonusReward(10), BonusReward(40))
	}
}
