package app

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"amc-progress-service/internal/domain"
	"github.com/google/uuid"
)

// SessionRepository abstracts how live sessions are stored (in-memory, Redis, etc).
type SessionRepository interface {
	// Save stores the session and publishes its latest snapshot.
	Save(session *Session)
	Get(sessionID string) (*Session, bool)
	DeleteIfIdle(sessionID string)
	// List returns every session held by this instance, ordered by id.
	List() []*Session
}

// SnapshotDirectory is implemented by repositories that share snapshots
// between instances, so a session held elsewhere can still be viewed.
type SnapshotDirectory interface {
	Published(ctx context.Context, sessionID string) (domain.SessionSnapshot, bool)
}

// Arbiter grants the buzzer for one question to the first caller. It is the
// only place the lock is decided.
type Arbiter interface {
	TryAcquire(ctx context.Context, sessionID string, question int, userID string) (bool, error)
	// Release drops the lock only if userID still holds it.
	Release(ctx context.Context, sessionID string, question int, userID string) error
}

// Journal persists live-session history. Failures never affect the session.
type Journal interface {
	RecordSession(ctx context.Context, snap domain.SessionSnapshot) error
	RecordParticipant(ctx context.Context, sessionID string, entry domain.LeaderboardEntry) error
	RecordAnswer(ctx context.Context, sessionID, userID string, result domain.AnswerResult) error
}

// RewardDistributor credits final standings once a session ends.
type RewardDistributor interface {
	DistributeRewards(ctx context.Context, sessionID string, standings []domain.Standing) error
}

// Reward returns the XP and coins earned for a final standing: XP equals the
// session score and coins depend on the place.
func Reward(st domain.Standing) (xp, coins int) {
	switch st.Place {
	case 1:
		coins = 30
	case 2:
		coins = 20
	case 3:
		coins = 10
	default:
		coins = 5
	}
	return st.Score, coins
}

// LiveOption configures a LiveService.
type LiveOption func(*LiveService)

// WithJournal records session history through j.
func WithJournal(j Journal) LiveOption {
	return func(s *LiveService) { s.journal = j }
}

// WithRewards distributes rewards through r when sessions end.
func WithRewards(r RewardDistributor) LiveOption {
	return func(s *LiveService) { s.rewards = r }
}

// WithSessionClock overrides the clock of new sessions.
func WithSessionClock(now func() time.Time) LiveOption {
	return func(s *LiveService) { s.now = now }
}

// WithRewardTimeout bounds the background reward call.
func WithRewardTimeout(d time.Duration) LiveOption {
	return func(s *LiveService) { s.rewardTimeout = d }
}

// LiveService coordinates live buzzer sessions.
type LiveService struct {
	sessions      SessionRepository
	practice      *PracticeService
	arbiter       Arbiter
	journal       Journal
	rewards       RewardDistributor
	now           func() time.Time
	rewardTimeout time.Duration

	pending sync.WaitGroup
}

func NewLiveService(sessions SessionRepository, practice *PracticeService, arbiter Arbiter, opts ...LiveOption) *LiveService {
	s := &LiveService{
		sessions:      sessions,
		practice:      practice,
		arbiter:       arbiter,
		now:           time.Now,
		rewardTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateSession opens a lobby with questions drawn from the catalog.
func (s *LiveService) CreateSession(ctx context.Context, hostID string, filter domain.QuestionFilter, count int) (domain.SessionSnapshot, error) {
	if hostID == "" || hostID == GuestNamespace {
		return domain.SessionSnapshot{}, domain.ErrGuestMode
	}
	set, err := s.practice.Generate(ctx, filter, count)
	if err != nil {
		return domain.SessionSnapshot{}, err
	}
	questions := make([]domain.Question, len(set))
	for i, pq := range set {
		questions[i] = pq.Question
	}

	session := NewSessionWithClock(uuid.NewString(), hostID, questions, s.now)
	s.sessions.Save(session)
	snap := session.Snapshot()
	s.recordSession(ctx, snap)
	return snap, nil
}

// Join registers or refreshes a participant. New participants are only
// admitted while the session is in the lobby.
func (s *LiveService) Join(ctx context.Context, sessionID, userID, displayName string) (domain.SessionSnapshot, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.SessionSnapshot{}, domain.ErrSessionNotFound
	}
	snap, err := session.join(userID, displayName)
	if err != nil {
		return domain.SessionSnapshot{}, err
	}
	s.sessions.Save(session)
	if s.journal != nil {
		if err := s.journal.RecordParticipant(ctx, sessionID, domain.LeaderboardEntry{UserID: userID, DisplayName: displayName}); err != nil {
			log.Printf("journal participant %s/%s: %v", sessionID, userID, err)
		}
	}
	return snap, nil
}

// Start moves the session from the lobby to the first question.
func (s *LiveService) Start(ctx context.Context, sessionID, userID string) (domain.SessionSnapshot, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.SessionSnapshot{}, domain.ErrSessionNotFound
	}
	snap, err := session.start(userID)
	if err != nil {
		return domain.SessionSnapshot{}, err
	}
	s.sessions.Save(session)
	s.recordSession(ctx, snap)
	return snap, nil
}

// Buzz asks the arbiter for the current question's lock.
func (s *LiveService) Buzz(ctx context.Context, sessionID, userID string) (domain.SessionSnapshot, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.SessionSnapshot{}, domain.ErrSessionNotFound
	}
	question, err := session.checkBuzz(userID)
	if err != nil {
		return domain.SessionSnapshot{}, err
	}
	won, err := s.arbiter.TryAcquire(ctx, sessionID, question, userID)
	if err != nil {
		return domain.SessionSnapshot{}, err
	}
	if !won {
		return domain.SessionSnapshot{}, domain.ErrBuzzerLocked
	}
	snap, err := session.grantBuzz(userID, question)
	if err != nil {
		s.release(ctx, sessionID)(question, userID)
		return domain.SessionSnapshot{}, err
	}
	s.sessions.Save(session)
	return snap, nil
}

// Answer scores the lock holder's choice. A correct answer advances to the
// next question; a wrong one locks the participant out and reopens the buzzer.
func (s *LiveService) Answer(ctx context.Context, sessionID, userID, choice string) (domain.AnswerResult, domain.SessionSnapshot, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.AnswerResult{}, domain.SessionSnapshot{}, domain.ErrSessionNotFound
	}
	res, snap, err := session.answer(userID, choice, s.release(ctx, sessionID))
	if err != nil {
		return domain.AnswerResult{}, domain.SessionSnapshot{}, err
	}
	s.sessions.Save(session)
	if s.journal != nil {
		if err := s.journal.RecordAnswer(ctx, sessionID, userID, res); err != nil {
			log.Printf("journal answer %s/%s: %v", sessionID, userID, err)
		}
	}
	return res, snap, nil
}

// Next skips to the following question (host only).
func (s *LiveService) Next(ctx context.Context, sessionID, userID string) (domain.SessionSnapshot, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.SessionSnapshot{}, domain.ErrSessionNotFound
	}
	snap, err := session.next(userID, s.release(ctx, sessionID))
	if err != nil {
		return domain.SessionSnapshot{}, err
	}
	s.sessions.Save(session)
	return snap, nil
}

// ResetBuzzer reopens the buzzer for the current question (host only).
func (s *LiveService) ResetBuzzer(ctx context.Context, sessionID, userID string) (domain.SessionSnapshot, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.SessionSnapshot{}, domain.ErrSessionNotFound
	}
	snap, err := session.resetBuzzer(userID, s.release(ctx, sessionID))
	if err != nil {
		return domain.SessionSnapshot{}, err
	}
	s.sessions.Save(session)
	return snap, nil
}

// End closes the session (host only) and hands the standings to the reward
// distributor in the background.
func (s *LiveService) End(ctx context.Context, sessionID, userID string) ([]domain.Standing, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	snap, final, err := session.end(userID, s.release(ctx, sessionID))
	if err != nil {
		return nil, err
	}
	s.sessions.Save(session)
	s.recordSession(ctx, snap)

	if s.rewards != nil && len(final) > 0 {
		s.pending.Add(1)
		go func() {
			defer s.pending.Done()
			rctx, cancel := context.WithTimeout(context.Background(), s.rewardTimeout)
			defer cancel()
			if err := s.rewards.DistributeRewards(rctx, sessionID, final); err != nil {
				log.Printf("distribute rewards for %s: %v", sessionID, err)
			}
		}()
	}
	return final, nil
}

// Leave disconnects a participant. Lobby participants are removed; after the
// start they keep their score and may rejoin. Idle sessions are dropped.
func (s *LiveService) Leave(ctx context.Context, sessionID, userID string) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return
	}
	session.leave(userID, s.release(ctx, sessionID))
	if session.Idle() {
		s.sessions.DeleteIfIdle(sessionID)
		return
	}
	s.sessions.Save(session)
}

// Snapshot returns the current view of a session. Sessions held by another
// instance are served from the shared directory when the repository has one.
func (s *LiveService) Snapshot(ctx context.Context, sessionID string) (domain.SessionSnapshot, error) {
	if session, ok := s.sessions.Get(sessionID); ok {
		return session.Snapshot(), nil
	}
	if dir, ok := s.sessions.(SnapshotDirectory); ok {
		if snap, found := dir.Published(ctx, sessionID); found {
			return snap, nil
		}
	}
	return domain.SessionSnapshot{}, domain.ErrSessionNotFound
}

// Lobbies returns the sessions still accepting new participants, newest first.
func (s *LiveService) Lobbies(_ context.Context) []domain.SessionSnapshot {
	var out []domain.SessionSnapshot
	for _, session := range s.sessions.List() {
		snap := session.Snapshot()
		if snap.State == domain.SessionLobby {
			out = append(out, snap)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Subscribe returns a channel that receives snapshots for a session.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *LiveService) Subscribe(_ context.Context, sessionID string) (<-chan domain.SessionSnapshot, func(), error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return nil, nil, domain.ErrSessionNotFound
	}
	ch, cancel := session.subscribe()
	return ch, cancel, nil
}

// Wait blocks until background reward distributions have finished.
func (s *LiveService) Wait() {
	s.pending.Wait()
}

func (s *LiveService) release(ctx context.Context, sessionID string) func(int, string) {
	return func(question int, holder string) {
		if err := s.arbiter.Release(ctx, sessionID, question, holder); err != nil {
			log.Printf("release buzzer %s/%d: %v", sessionID, question, err)
		}
	}
}

func (s *LiveService) recordSession(ctx context.Context, snap domain.SessionSnapshot) {
	if s.journal == nil {
		return
	}
	if err := s.journal.RecordSession(ctx, snap); err != nil {
		log.Printf("journal session %s: %v", snap.SessionID, err)
	}
}

// RewardChain runs every distributor in order and joins their errors.
type RewardChain []RewardDistributor

func (c RewardChain) DistributeRewards(ctx context.Context, sessionID string, standings []domain.Standing) error {
	var errs []error
	for _, d := range c {
		if err := d.DistributeRewards(ctx, sessionID, standings); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ProgressRewards credits live-session rewards into each participant's local
// progress when no remote distributor is configured.
type ProgressRewards struct {
	registry *Registry
}

func NewProgressRewards(registry *Registry) *ProgressRewards {
	return &ProgressRewards{registry: registry}
}

func (r *ProgressRewards) DistributeRewards(ctx context.Context, sessionID string, standings []domain.Standing) error {
	for _, st := range standings {
		progress, err := r.registry.For(st.UserID)
		if err != nil {
			return err
		}
		xp, coins := Reward(st)
		if err := progress.CreditReward(ctx, xp, coins, "live:"+sessionID); err != nil {
			return err
		}
	}
	return nil
}
