// Package scoring grades AMC answer strings against an answer key.
package scoring

import (
	"strings"
	"unicode"

	"amc-progress-service/internal/domain"
)

// BlankMark is the only character treated as an omitted answer.
const BlankMark = ' '

// Mode selects how points are assigned.
type Mode string

const (
	// ModeStandard scores by contest rules for the test type.
	ModeStandard Mode = "standard"
	// ModeRaw awards one point per correct answer for every test type.
	ModeRaw Mode = "raw"
)

// ParseMode returns ModeStandard for anything that is not "raw".
func ParseMode(raw string) Mode {
	if strings.EqualFold(strings.TrimSpace(raw), string(ModeRaw)) {
		return ModeRaw
	}
	return ModeStandard
}

// Scheme holds the points for each outcome of a single question.
type Scheme struct {
	Correct   float64
	Blank     float64
	Incorrect float64
}

var (
	amc8Scheme = Scheme{Correct: 1}
	amcScheme  = Scheme{Correct: 6, Blank: 1.5}
)

// SchemeFor returns the point scheme for a test type.
func SchemeFor(t domain.TestType, mode Mode) Scheme {
	if mode == ModeRaw {
		return amc8Scheme
	}
	switch t {
	case domain.AMC10, domain.AMC12, domain.AMC10A, domain.AMC10B, domain.AMC12A, domain.AMC12B:
		return amcScheme
	}
	return amc8Scheme
}

// MaxScore is the best attainable score for a test type.
func MaxScore(t domain.TestType, mode Mode) float64 {
	return SchemeFor(t, mode).Correct * domain.QuestionCount
}

// Outcome classifies one graded position.
type Outcome int

const (
	Incorrect Outcome = iota
	Correct
	Blank
	// Void marks a blank key position; it never scores.
	Void
)

// Result is the output of Grade.
type Result struct {
	Score               float64
	MaxScore            float64
	QuestionCorrectness map[int]bool
	Correct             int
	Incorrect           int
	Blank               int
}

// Grade scores userAnswers against answerKey using standard contest rules.
func Grade(userAnswers, answerKey string, testType domain.TestType) (Result, error) {
	return GradeWithMode(userAnswers, answerKey, testType, ModeStandard)
}

// GradeWithMode scores userAnswers against answerKey. Both strings must hold
// exactly one character per question; blanks are single spaces.
func GradeWithMode(userAnswers, answerKey string, testType domain.TestType, mode Mode) (Result, error) {
	if _, ok := domain.ParseTestType(string(testType)); !ok {
		return Result{}, domain.Invalid("testType", domain.ErrInvalidTestType)
	}
	answers := []rune(userAnswers)
	key := []rune(answerKey)
	if len(answers) != domain.QuestionCount {
		return Result{}, domain.Invalid("input", domain.ErrAnswerLength)
	}
	if len(key) != domain.QuestionCount {
		return Result{}, domain.Invalid("key", domain.ErrAnswerLength)
	}

	scheme := SchemeFor(testType, mode)
	res := Result{
		MaxScore:            scheme.Correct * domain.QuestionCount,
		QuestionCorrectness: make(map[int]bool, domain.QuestionCount),
	}
	for i := range answers {
		outcome := compare(answers[i], key[i])
		res.QuestionCorrectness[i+1] = outcome == Correct
		switch outcome {
		case Correct:
			res.Correct++
			res.Score += scheme.Correct
		case Blank:
			res.Blank++
			res.Score += scheme.Blank
		case Incorrect:
			res.Incorrect++
			res.Score += scheme.Incorrect
		}
	}
	return res, nil
}

func compare(answer, key rune) Outcome {
	if key == BlankMark {
		return Void
	}
	if answer == BlankMark {
		return Blank
	}
	if unicode.ToUpper(answer) == unicode.ToUpper(key) {
		return Correct
	}
	return Incorrect
}

// CorrectAt derives correctness of question n (1-based) from the legacy
// input/key strings. Out-of-range positions are incorrect.
func CorrectAt(input, key string, n int) bool {
	answers := []rune(input)
	keys := []rune(key)
	if n < 1 || n > len(answers) || n > len(keys) {
		return false
	}
	return compare(answers[n-1], keys[n-1]) == Correct
}

// IsCorrect reports whether question n of s was answered correctly, preferring
// the stored correctness map over the legacy strings.
func IsCorrect(s domain.TestScore, n int) bool {
	if s.QuestionCorrectness != nil {
		return s.QuestionCorrectness[n]
	}
	return CorrectAt(s.Input, s.Key, n)
}

// Attempted reports whether s carries any result for question n.
func Attempted(s domain.TestScore, n int) bool {
	if s.QuestionCorrectness != nil {
		_, ok := s.QuestionCorrectness[n]
		return ok
	}
	return n >= 1 && n <= len([]rune(s.Input)) && n <= len([]rune(s.Key))
}

// Percent returns the score as a percentage of its maximum. Records saved
// without a maximum fall back to the standard maximum for their test type.
func Percent(s domain.TestScore) float64 {
	best := s.MaxScore
	if best <= 0 {
		best = MaxScore(s.TestType, ModeStandard)
	}
	if best <= 0 {
		return 0
	}
	return s.Score / best * 100
}
