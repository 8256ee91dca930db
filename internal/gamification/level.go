// Package gamification derives levels, badges and daily bonuses from
// accumulated progress.
package gamification

import (
	"math"

	"amc-progress-service/internal/domain"
)

const (
	baseLevelXP  = 100
	levelGrowth  = 1.5
	xpPerPoint   = 10
	coinPerPoint = 5
)

// LevelThreshold is the XP needed to clear the given level, on top of
// everything needed for the levels below it.
func LevelThreshold(level int) int {
	if level < 1 {
		level = 1
	}
	return int(math.Floor(baseLevelXP * math.Pow(levelGrowth, float64(level-1))))
}

// CalculateLevel maps cumulative XP onto a level. It is the only level
// formula in the module; non-positive XP is level 1 with no progress.
func CalculateLevel(xp int) domain.LevelInfo {
	remaining := xp
	if remaining < 0 {
		remaining = 0
	}
	level := 1
	need := LevelThreshold(level)
	for remaining >= need {
		remaining -= need
		level++
		need = LevelThreshold(level)
	}

	progress := remaining * 100 / need
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	return domain.LevelInfo{
		Level:          level,
		Progress:       progress,
		XPIntoLevel:    remaining,
		XPForNextLevel: need,
	}
}

// XPForScore converts a graded score into XP.
func XPForScore(score float64) int {
	return int(math.Round(score * xpPerPoint))
}

// CoinsForScore converts a graded score into coins. Half coins from
// blank-credit scores are dropped.
func CoinsForScore(score float64) int {
	return int(math.Floor(score * coinPerPoint))
}
