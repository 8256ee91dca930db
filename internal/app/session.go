package app

import (
	"sort"
	"strings"
	"sync"
	"time"

	"amc-progress-service/internal/domain"
)

// PointsPerCorrect is awarded for a correct live answer, matching the AMC
// value of one question.
const PointsPerCorrect = 6

// Session is an in-memory representation of a live buzzer session.
type Session struct {
	id        string
	hostID    string
	createdAt time.Time
	now       func() time.Time

	mu           sync.RWMutex
	state        domain.SessionState
	questions    []domain.Question
	index        int
	lockHolder   string
	lockedOut    map[string]bool
	participants map[string]*domain.Participant
	subscribers  map[chan domain.SessionSnapshot]struct{}
}

// NewSession is exported for infrastructure layers that need to seed sessions.
func NewSession(id, hostID string, questions []domain.Question) *Session {
	return NewSessionWithClock(id, hostID, questions, time.Now)
}

// NewSessionWithClock is test-only for deterministic timestamps.
func NewSessionWithClock(id, hostID string, questions []domain.Question, now func() time.Time) *Session {
	return &Session{
		id:           id,
		hostID:       hostID,
		createdAt:    now(),
		now:          now,
		state:        domain.SessionLobby,
		questions:    questions,
		lockedOut:    make(map[string]bool),
		participants: make(map[string]*domain.Participant),
		subscribers:  make(map[chan domain.SessionSnapshot]struct{}),
	}
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Idle reports whether the session may be dropped: nobody is connected and
// play is not in progress. An in-progress session survives until the host
// ends it so that participants can reconnect.
func (s *Session) Idle() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state == domain.SessionInProgress {
		return false
	}
	for _, p := range s.participants {
		if p.Connected {
			return false
		}
	}
	return true
}

// Snapshot returns the current view of the session.
func (s *Session) Snapshot() domain.SessionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Session) join(userID, displayName string) (domain.SessionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == domain.SessionEnded {
		return domain.SessionSnapshot{}, domain.ErrInvalidTransition
	}
	now := s.now()
	if participant, ok := s.participants[userID]; ok {
		participant.DisplayName = displayName
		participant.Connected = true
		return s.broadcastLocked(), nil
	}
	// Only the host may enter a session that has already started.
	if s.state != domain.SessionLobby && userID != s.hostID {
		return domain.SessionSnapshot{}, domain.ErrInvalidTransition
	}
	s.participants[userID] = &domain.Participant{
		UserID:      userID,
		DisplayName: displayName,
		Connected:   true,
		LastUpdated: now,
	}
	return s.broadcastLocked(), nil
}

func (s *Session) start(userID string) (domain.SessionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if userID != s.hostID {
		return domain.SessionSnapshot{}, domain.ErrNotHost
	}
	if s.state != domain.SessionLobby {
		return domain.SessionSnapshot{}, domain.ErrInvalidTransition
	}
	s.state = domain.SessionInProgress
	s.index = 0
	return s.broadcastLocked(), nil
}

// checkBuzz returns the question index userID may buzz for.
func (s *Session) checkBuzz(userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state != domain.SessionInProgress {
		return 0, domain.ErrInvalidTransition
	}
	if _, ok := s.participants[userID]; !ok {
		return 0, domain.ErrParticipantNotFound
	}
	if s.index >= len(s.questions) {
		return 0, domain.ErrNoActiveQuestion
	}
	if s.lockedOut[userID] {
		return 0, domain.ErrLockedOut
	}
	if s.lockHolder != "" && s.lockHolder != userID {
		return 0, domain.ErrBuzzerLocked
	}
	return s.index, nil
}

// grantBuzz records a lock the arbiter granted. A holder who has not yet
// answered keeps the buzzer even if the arbiter's lock has expired; only an
// answer, a host action or the holder leaving clears it.
func (s *Session) grantBuzz(userID string, question int) (domain.SessionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != domain.SessionInProgress || s.index != question {
		return domain.SessionSnapshot{}, domain.ErrInvalidTransition
	}
	if _, ok := s.participants[userID]; !ok {
		return domain.SessionSnapshot{}, domain.ErrParticipantNotFound
	}
	if s.lockHolder != "" && s.lockHolder != userID {
		return domain.SessionSnapshot{}, domain.ErrBuzzerLocked
	}
	s.lockHolder = userID
	return s.broadcastLocked(), nil
}

// answer scores choice for the lock holder. release is called with the
// question index while the session lock is held so the buzzer cannot be
// reacquired before the arbiter forgets the previous holder.
func (s *Session) answer(userID, choice string, release func(question int, holder string)) (domain.AnswerResult, domain.SessionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != domain.SessionInProgress {
		return domain.AnswerResult{}, domain.SessionSnapshot{}, domain.ErrInvalidTransition
	}
	participant, ok := s.participants[userID]
	if !ok {
		return domain.AnswerResult{}, domain.SessionSnapshot{}, domain.ErrParticipantNotFound
	}
	if s.lockHolder != userID {
		return domain.AnswerResult{}, domain.SessionSnapshot{}, domain.ErrNotLockHolder
	}

	question := s.index
	correct := strings.EqualFold(strings.TrimSpace(choice), strings.TrimSpace(s.questions[question].Answer))
	res := domain.AnswerResult{QuestionIndex: question, Correct: correct}

	release(question, userID)
	s.lockHolder = ""
	participant.LastUpdated = s.now()
	if correct {
		participant.Score += PointsPerCorrect
		res.Awarded = PointsPerCorrect
		s.advanceLocked()
	} else {
		s.lockedOut[userID] = true
	}
	res.TotalScore = participant.Score
	return res, s.broadcastLocked(), nil
}

// hostAction runs fn for the host of an in-progress session. release is
// invoked for any held lock.
func (s *Session) hostAction(userID string, release func(question int, holder string), fn func()) (domain.SessionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if userID != s.hostID {
		return domain.SessionSnapshot{}, domain.ErrNotHost
	}
	if s.state != domain.SessionInProgress {
		return domain.SessionSnapshot{}, domain.ErrInvalidTransition
	}
	if s.lockHolder != "" {
		release(s.index, s.lockHolder)
		s.lockHolder = ""
	}
	fn()
	return s.broadcastLocked(), nil
}

func (s *Session) next(userID string, release func(int, string)) (domain.SessionSnapshot, error) {
	return s.hostAction(userID, release, s.advanceLocked)
}

func (s *Session) resetBuzzer(userID string, release func(int, string)) (domain.SessionSnapshot, error) {
	return s.hostAction(userID, release, func() {})
}

func (s *Session) end(userID string, release func(int, string)) (domain.SessionSnapshot, []domain.Standing, error) {
	snap, err := s.hostAction(userID, release, func() { s.state = domain.SessionEnded })
	if err != nil {
		return domain.SessionSnapshot{}, nil, err
	}
	return snap, standings(snap.Entries), nil
}

func (s *Session) advanceLocked() {
	if s.index < len(s.questions) {
		s.index++
	}
	s.lockedOut = make(map[string]bool)
}

// leave drops a participant from a lobby. Once play has started the
// participant is only marked disconnected so the score survives a reconnect.
func (s *Session) leave(userID string, release func(int, string)) domain.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lockHolder == userID {
		release(s.index, userID)
		s.lockHolder = ""
	}
	participant, ok := s.participants[userID]
	if !ok {
		return s.snapshotLocked()
	}
	if s.state == domain.SessionLobby {
		delete(s.participants, userID)
		delete(s.lockedOut, userID)
	} else {
		participant.Connected = false
	}
	return s.broadcastLocked()
}

func (s *Session) subscribe() (<-chan domain.SessionSnapshot, func()) {
	ch := make(chan domain.SessionSnapshot, 8)

	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	initial := s.snapshotLocked()
	s.mu.Unlock()

	ch <- initial

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Session) broadcastLocked() domain.SessionSnapshot {
	snap := s.snapshotLocked()
	for ch := range s.subscribers {
		select {
		case ch <- snap:
		default:
			// Drop the stale snapshot so a slow client never blocks the session.
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
	return snap
}

func (s *Session) snapshotLocked() domain.SessionSnapshot {
	entries := make([]domain.LeaderboardEntry, 0, len(s.participants))
	for _, participant := range s.participants {
		entries = append(entries, domain.LeaderboardEntry{
			UserID:      participant.UserID,
			DisplayName: participant.DisplayName,
			Score:       participant.Score,
			Connected:   participant.Connected,
		})
	}

	// Score desc, then whoever reached the score first, then name.
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		pi := s.participants[entries[i].UserID]
		pj := s.participants[entries[j].UserID]
		if pi != nil && pj != nil && !pi.LastUpdated.Equal(pj.LastUpdated) {
			return pi.LastUpdated.Before(pj.LastUpdated)
		}
		return entries[i].DisplayName < entries[j].DisplayName
	})

	snap := domain.SessionSnapshot{
		SessionID:     s.id,
		HostID:        s.hostID,
		State:         s.state,
		QuestionIndex: s.index,
		QuestionCount: len(s.questions),
		Buzzer:        domain.BuzzerOpen,
		LockHolder:    s.lockHolder,
		Entries:       entries,
		CreatedAt:     s.createdAt,
		UpdatedAt:     s.now(),
	}
	if s.lockHolder != "" {
		snap.Buzzer = domain.BuzzerLocked
	}
	if s.state == domain.SessionInProgress && s.index < len(s.questions) {
		q := s.questions[s.index]
		snap.Question = &domain.LiveQuestion{
			Number:  s.index + 1,
			Topic:   q.Topic,
			Prompt:  q.Prompt,
			Choices: q.Choices,
		}
	}
	return snap
}

// standings ranks ordered leaderboard entries; equal scores share a place.
func standings(entries []domain.LeaderboardEntry) []domain.Standing {
	out := make([]domain.Standing, len(entries))
	for i, e := range entries {
		place := i + 1
		if i > 0 && e.Score == entries[i-1].Score {
			place = out[i-1].Place
		}
		out[i] = domain.Standing{UserID: e.UserID, Score: e.Score, Place: place}
	}
	return out
}
