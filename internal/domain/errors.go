package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTestType is returned for test types outside the supported contest set.
	ErrInvalidTestType = errors.New("invalid test type")
	// ErrInvalidYear is returned when a contest year is missing or out of range.
	ErrInvalidYear = errors.New("invalid contest year")
	// ErrAnswerLength is returned when answers or key do not cover every question.
	ErrAnswerLength = errors.New("answer string has wrong length")
	// ErrBonusAlreadyClaimed is returned when the daily bonus was already taken today.
	ErrBonusAlreadyClaimed = errors.New("daily bonus already claimed today")
	// ErrInsufficientCoins is returned when a purchase exceeds the coin balance.
	ErrInsufficientCoins = errors.New("insufficient coins")
	// ErrAvatarNotFound indicates an unknown avatar id.
	ErrAvatarNotFound = errors.New("avatar not found")
	// ErrAvatarUnlocked is returned when buying an avatar that is already owned.
	ErrAvatarUnlocked = errors.New("avatar already unlocked")
	// ErrGuestMode is returned when a remote operation needs an authenticated user.
	ErrGuestMode = errors.New("remote sync requires an authenticated user")
	// ErrNoQuestions indicates the catalog has nothing matching a practice filter.
	ErrNoQuestions = errors.New("no questions match the filter")

	// ErrSessionNotFound is returned when a live session has not been created.
	ErrSessionNotFound = errors.New("live session not found")
	// ErrParticipantNotFound is returned when a user acts before joining.
	ErrParticipantNotFound = errors.New("participant not found in session")
	// ErrNotHost is returned when a host-only action is attempted by someone else.
	ErrNotHost = errors.New("only the host can do that")
	// ErrInvalidTransition is returned for session state changes that are not allowed.
	ErrInvalidTransition = errors.New("invalid session state transition")
	// ErrBuzzerLocked is returned when another participant holds the buzzer.
	ErrBuzzerLocked = errors.New("buzzer already locked")
	// ErrNotLockHolder is returned when answering without holding the buzzer.
	ErrNotLockHolder = errors.New("participant does not hold the buzzer")
	// ErrLockedOut is returned when a participant already missed the current question.
	ErrLockedOut = errors.New("participant already answered this question")
	// ErrNoActiveQuestion is returned when every question has been played.
	ErrNoActiveQuestion = errors.New("no active question")
)

// ValidationError ties a rejected input field to the underlying sentinel.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Invalid wraps err as a ValidationError for field.
func Invalid(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}
