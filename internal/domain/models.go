package domain

import (
	"fmt"
	"strings"
	"time"
)

// QuestionCount is the number of questions on every supported contest.
const QuestionCount = 25

// TestType identifies the contest a score was recorded for.
type TestType string

const (
	AMC8   TestType = "amc8"
	AMC10  TestType = "amc10"
	AMC12  TestType = "amc12"
	AMC10A TestType = "amc10a"
	AMC10B TestType = "amc10b"
	AMC12A TestType = "amc12a"
	AMC12B TestType = "amc12b"
)

// TestTypes lists every accepted test type.
var TestTypes = []TestType{AMC8, AMC10, AMC12, AMC10A, AMC10B, AMC12A, AMC12B}

// ParseTestType normalizes raw input into a known test type.
func ParseTestType(raw string) (TestType, bool) {
	t := TestType(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range TestTypes {
		if t == known {
			return t, true
		}
	}
	return "", false
}

// Family collapses contest variants (amc10a, amc10b) into their competition family.
func (t TestType) Family() TestType {
	switch t {
	case AMC10A, AMC10B:
		return AMC10
	case AMC12A, AMC12B:
		return AMC12
	}
	return t
}

// Topic is the subject area a question belongs to.
type Topic string

const (
	Algebra       Topic = "Algebra"
	Geometry      Topic = "Geometry"
	NumberTheory  Topic = "Number Theory"
	Combinatorics Topic = "Combinatorics"
	OtherTopic    Topic = "Other"
)

// Topics lists the fixed topic enum in display order.
var Topics = []Topic{Algebra, Geometry, NumberTheory, Combinatorics, OtherTopic}

// NormalizeTopic maps empty or unknown labels to OtherTopic.
func NormalizeTopic(raw string) Topic {
	for _, t := range Topics {
		if strings.EqualFold(string(t), strings.TrimSpace(raw)) {
			return t
		}
	}
	return OtherTopic
}

// TestScore is one graded test.
type TestScore struct {
	ID                  string        `json:"id"`
	Date                time.Time     `json:"date"`
	TestType            TestType      `json:"testType"`
	Year                int           `json:"year"`
	Input               string        `json:"input"`
	Key                 string        `json:"key"`
	QuestionCorrectness map[int]bool  `json:"questionCorrectness,omitempty"`
	QuestionTopics      map[int]Topic `json:"questionTopics,omitempty"`
	Score               float64       `json:"score"`
	MaxScore            float64       `json:"maxScore,omitempty"`
	Label               string        `json:"label,omitempty"`
	Synced              bool          `json:"synced"`
}

// TopicAt returns the topic for question n, defaulting to OtherTopic.
func (s TestScore) TopicAt(n int) Topic {
	if t, ok := s.QuestionTopics[n]; ok {
		return NormalizeTopic(string(t))
	}
	return OtherTopic
}

// CoinTransaction is one entry of the append-only coin ledger.
type CoinTransaction struct {
	ID      string    `json:"id"`
	Date    time.Time `json:"date"`
	Amount  int       `json:"amount"`
	Reason  string    `json:"reason"`
	Balance int       `json:"balance"`
}

// BonusState is the persisted daily bonus bookkeeping.
type BonusState struct {
	LastClaimDate string `json:"lastClaimDate"`
	Streak        int    `json:"streak"`
}

// LevelInfo describes progression derived from cumulative XP.
type LevelInfo struct {
	Level          int `json:"level"`
	Progress       int `json:"progress"`
	XPIntoLevel    int `json:"xpIntoLevel"`
	XPForNextLevel int `json:"xpForNextLevel"`
}

// UserStats is the aggregate input to badge predicates.
type UserStats struct {
	TotalTests         int           `json:"totalTests"`
	BestScorePercent   float64       `json:"bestScorePercent"`
	StreakDays         int           `json:"streakDays"`
	XP                 int           `json:"xp"`
	Level              int           `json:"level"`
	TopicCorrectCounts map[Topic]int `json:"topicCorrectCounts"`
}

// BadgeStatus is a catalog badge with its earned flag recomputed for a user.
type BadgeStatus struct {
	ID          string `json:"id"`
	Emoji       string `json:"emoji"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Earned      bool   `json:"earned"`
}

// Avatar is a cosmetic profile picture bought with coins.
type Avatar struct {
	ID    string `json:"id"`
	Emoji string `json:"emoji"`
	Name  string `json:"name"`
	Cost  int    `json:"cost"`
}

// Profile is the read model of a user's progress.
type Profile struct {
	XP              int           `json:"xp"`
	Level           LevelInfo     `json:"level"`
	Coins           int           `json:"coins"`
	Streak          int           `json:"streak"`
	LastBonusDate   string        `json:"lastBonusDate,omitempty"`
	TotalTests      int           `json:"totalTests"`
	Badges          []BadgeStatus `json:"badges"`
	PersonalBest    *BadgeStatus  `json:"personalBest,omitempty"`
	UnlockedAvatars []string      `json:"unlockedAvatars"`
}

// Question is a catalog entry used for practice sets and live sessions.
type Question struct {
	ID       string   `json:"id"`
	TestType TestType `json:"testType"`
	Year     int      `json:"year"`
	Number   int      `json:"number"`
	Topic    Topic    `json:"topic"`
	Prompt   string   `json:"prompt"`
	Choices  []string `json:"choices,omitempty"`
	Answer   string   `json:"answer"`
}

// QuestionFilter selects catalog questions by contest family and question
// number range. Zero bounds are open.
type QuestionFilter struct {
	Family    TestType `json:"family"`
	MinNumber int      `json:"minNumber,omitempty"`
	MaxNumber int      `json:"maxNumber,omitempty"`
}

// Matches reports whether q satisfies the filter.
func (f QuestionFilter) Matches(q Question) bool {
	if f.Family != "" && q.TestType.Family() != f.Family.Family() {
		return false
	}
	if f.MinNumber > 0 && q.Number < f.MinNumber {
		return false
	}
	if f.MaxNumber > 0 && q.Number > f.MaxNumber {
		return false
	}
	return true
}

// Key is a stable cache key for the filter.
func (f QuestionFilter) Key() string {
	return fmt.Sprintf("%s:%d-%d", f.Family.Family(), f.MinNumber, f.MaxNumber)
}

// PracticeQuestion is a catalog question renumbered for local display.
type PracticeQuestion struct {
	Number   int      `json:"number"`
	Question Question `json:"question"`
}

// SessionState is the coarse live-session lifecycle.
type SessionState string

const (
	SessionLobby      SessionState = "lobby"
	SessionInProgress SessionState = "in_progress"
	SessionEnded      SessionState = "ended"
)

// BuzzerState is the per-question lock state inside an in-progress session.
type BuzzerState string

const (
	BuzzerOpen   BuzzerState = "open"
	BuzzerLocked BuzzerState = "locked"
)

// Participant represents a live-session participant and their accumulated score.
// Participants who drop mid-session keep their score and may reconnect.
type Participant struct {
	UserID      string
	DisplayName string
	Score       int
	Connected   bool
	LastUpdated time.Time
}

// LeaderboardEntry is a snapshot-friendly view of a participant.
type LeaderboardEntry struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Score       int    `json:"score"`
	Connected   bool   `json:"connected"`
}

// SessionSnapshot captures everything clients need to render a live session.
type SessionSnapshot struct {
	SessionID     string             `json:"sessionId"`
	HostID        string             `json:"hostId"`
	State         SessionState       `json:"state"`
	QuestionIndex int                `json:"questionIndex"`
	QuestionCount int                `json:"questionCount"`
	Question      *LiveQuestion      `json:"question,omitempty"`
	Buzzer        BuzzerState        `json:"buzzer"`
	LockHolder    string             `json:"lockHolder,omitempty"`
	Entries       []LeaderboardEntry `json:"entries"`
	CreatedAt     time.Time          `json:"createdAt"`
	UpdatedAt     time.Time          `json:"updatedAt"`
}

// LiveQuestion is the client view of the current question; the answer is withheld.
type LiveQuestion struct {
	Number  int      `json:"number"`
	Topic   Topic    `json:"topic"`
	Prompt  string   `json:"prompt"`
	Choices []string `json:"choices,omitempty"`
}

// AnswerResult summarizes the outcome of a live answer for a single user.
type AnswerResult struct {
	QuestionIndex int  `json:"questionIndex"`
	Correct       bool `json:"correct"`
	Awarded       int  `json:"awarded"`
	TotalScore    int  `json:"totalScore"`
}

// Standing is a final placement used for reward distribution.
type Standing struct {
	UserID string `json:"userId"`
	Score  int    `json:"score"`
	Place  int    `json:"place"`
}

// RankedProfile is a row of the remote leaderboard.
type RankedProfile struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	XP          int    `json:"xp"`
	Level       int    `json:"level"`
	Rank        int    `json:"rank"`
}
