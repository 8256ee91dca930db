package app

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"amc-progress-service/internal/domain"
	"amc-progress-service/internal/events"
	"amc-progress-service/internal/gamification"
	"amc-progress-service/internal/scoring"
	"github.com/google/uuid"
)

// Persisted keys of the local progress store.
const (
	KeyScores           = "scores"
	KeyXP               = "xp"
	KeyStreak           = "streak"
	KeyCoins            = "coins"
	KeyDailyBonus       = "dailyBonus"
	KeyCoinTransactions = "coinTransactions"
	KeyEarnedBadges     = "earnedBadges"
	KeyUnlockedAvatars  = "unlockedAvatars"
	KeySettings         = "settings"
	KeyTheme            = "theme"
	KeyScoringMode      = "scoringMode"
)

// firstContestYear is the first year of the AHSME, the AMC 12 predecessor.
const firstContestYear = 1950

// KVStore persists JSON values under string keys for one namespace.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Put writes all entries atomically.
	Put(ctx context.Context, entries map[string][]byte) error
	// Clear removes every key.
	Clear(ctx context.Context) error
}

// Submission is a test entered for grading.
type Submission struct {
	TestType string
	Year     int
	Input    string
	Key      string
	Topics   map[int]domain.Topic
	Label    string
}

// BonusResult is returned by ClaimDailyBonus.
type BonusResult struct {
	Reward int              `json:"reward"`
	Streak int              `json:"streak"`
	XP     int              `json:"xp"`
	Level  domain.LevelInfo `json:"level"`
}

// Preferences are the user-facing settings.
type Preferences struct {
	Theme       string            `json:"theme"`
	ScoringMode scoring.Mode      `json:"scoringMode"`
	Settings    map[string]string `json:"settings"`
}

// ProgressOption configures a ProgressService.
type ProgressOption func(*ProgressService)

// WithClock overrides time.Now, mostly for tests.
func WithClock(now func() time.Time) ProgressOption {
	return func(s *ProgressService) { s.now = now }
}

// WithLocation sets the time zone that defines a calendar day.
func WithLocation(loc *time.Location) ProgressOption {
	return func(s *ProgressService) { s.loc = loc }
}

// ProgressService owns every mutation of the local progress store. Counters
// are only changed here, under one lock, so concurrent callers cannot lose
// read-modify-write updates.
type ProgressService struct {
	store KVStore
	hub   *events.Hub
	now   func() time.Time
	loc   *time.Location

	mu      sync.Mutex
	notices []string
}

func NewProgressService(store KVStore, hub *events.Hub, opts ...ProgressOption) *ProgressService {
	s := &ProgressService{
		store: store,
		hub:   hub,
		now:   time.Now,
		loc:   time.Local,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.hub == nil {
		s.hub = events.NewHub()
	}
	return s
}

// Events exposes the notification hub.
func (s *ProgressService) Events() *events.Hub {
	return s.hub
}

// Notices returns recoverable data problems found while loading.
func (s *ProgressService) Notices() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.notices...)
}

// SubmitTest validates and grades a test, appends it to the history and
// credits XP and coins.
func (s *ProgressService) SubmitTest(ctx context.Context, sub Submission) (domain.TestScore, error) {
	testType, err := validateSubmission(sub, s.now().In(s.loc).Year())
	if err != nil {
		return domain.TestScore{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.loadLocked(ctx)
	if err != nil {
		return domain.TestScore{}, err
	}
	mode := scoring.ParseMode(st.scoringMode)
	res, err := scoring.GradeWithMode(sub.Input, sub.Key, testType, mode)
	if err != nil {
		return domain.TestScore{}, err
	}

	record := domain.TestScore{
		ID:                  uuid.NewString(),
		Date:                s.now().UTC(),
		TestType:            testType,
		Year:                sub.Year,
		Input:               sub.Input,
		Key:                 sub.Key,
		QuestionCorrectness: res.QuestionCorrectness,
		QuestionTopics:      normalizeTopics(sub.Topics),
		Score:               res.Score,
		MaxScore:            res.MaxScore,
		Label:               sub.Label,
	}

	before := st.snapshot()
	st.scores = append(st.scores, record)
	st.xp += gamification.XPForScore(res.Score)
	coins := gamification.CoinsForScore(res.Score)
	st.addCoins(coins, "test:"+string(testType), record.Date)

	if err := s.commitLocked(ctx, st, KeyScores, KeyXP, KeyCoins, KeyCoinTransactions, KeyEarnedBadges); err != nil {
		return domain.TestScore{}, err
	}
	s.hub.Publish(s.changeEvents(before, st)...)
	return record, nil
}

// ClaimDailyBonus credits the daily XP bonus once per calendar day.
func (s *ProgressService) ClaimDailyBonus(ctx context.Context) (BonusResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.loadLocked(ctx)
	if err != nil {
		return BonusResult{}, err
	}
	today := gamification.Today(s.now().In(s.loc))
	claim, err := gamification.ClaimDailyBonus(domain.BonusState{LastClaimDate: st.lastBonus, Streak: st.streak}, today)
	if err != nil {
		return BonusResult{}, err
	}

	before := st.snapshot()
	st.lastBonus = claim.State.LastClaimDate
	st.streak = claim.State.Streak
	st.xp += claim.Reward
	if err := s.commitLocked(ctx, st, KeyDailyBonus, KeyStreak, KeyXP, KeyEarnedBadges); err != nil {
		return BonusResult{}, err
	}

	evts := s.changeEvents(before, st)
	if !claim.Continued {
		if claim.PreviousStreak > 0 {
			evts = append(evts, events.Event{Kind: events.StreakBroken, Streak: claim.PreviousStreak})
		}
		evts = append(evts, events.Event{Kind: events.StreakStarted, Streak: claim.State.Streak})
	}
	s.hub.Publish(evts...)

	return BonusResult{
		Reward: claim.Reward,
		Streak: st.streak,
		XP:     st.xp,
		Level:  gamification.CalculateLevel(st.xp),
	}, nil
}

// CreditReward adds externally earned XP and coins, such as live-session prizes.
func (s *ProgressService) CreditReward(ctx context.Context, xp, coins int, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.loadLocked(ctx)
	if err != nil {
		return err
	}
	before := st.snapshot()
	st.xp += xp
	st.addCoins(coins, reason, s.now().UTC())
	if err := s.commitLocked(ctx, st, KeyXP, KeyCoins, KeyCoinTransactions, KeyEarnedBadges); err != nil {
		return err
	}
	s.hub.Publish(s.changeEvents(before, st)...)
	return nil
}

// UnlockAvatar spends coins on a shop avatar and returns the new balance.
func (s *ProgressService) UnlockAvatar(ctx context.Context, avatarID string) (int, error) {
	avatar, ok := gamification.FindAvatar(avatarID)
	if !ok {
		return 0, domain.ErrAvatarNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.loadLocked(ctx)
	if err != nil {
		return 0, err
	}
	for _, owned := range append([]string{gamification.DefaultAvatarID}, st.avatars...) {
		if owned == avatar.ID {
			return st.coins, domain.ErrAvatarUnlocked
		}
	}
	if st.coins < avatar.Cost {
		return st.coins, domain.ErrInsufficientCoins
	}

	before := st.snapshot()
	st.avatars = append(st.avatars, avatar.ID)
	st.addCoins(-avatar.Cost, "avatar:"+avatar.ID, s.now().UTC())
	if err := s.commitLocked(ctx, st, KeyUnlockedAvatars, KeyCoins, KeyCoinTransactions); err != nil {
		return 0, err
	}
	s.hub.Publish(s.changeEvents(before, st)...)
	return st.coins, nil
}

// Scores returns the score history in chronological order.
func (s *ProgressService) Scores(ctx context.Context) ([]domain.TestScore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.loadLocked(ctx)
	if err != nil {
		return nil, err
	}
	return st.scores, nil
}

// UnsyncedScores returns records not yet mirrored remotely.
func (s *ProgressService) UnsyncedScores(ctx context.Context) ([]domain.TestScore, error) {
	scores, err := s.Scores(ctx)
	if err != nil {
		return nil, err
	}
	var out []domain.TestScore
	for _, sc := range scores {
		if !sc.Synced {
			out = append(out, sc)
		}
	}
	return out, nil
}

// MarkSynced flags the given records as mirrored. It is the only mutation of
// an existing record.
func (s *ProgressService) MarkSynced(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.loadLocked(ctx)
	if err != nil {
		return err
	}
	changed := false
	for i := range st.scores {
		if want[st.scores[i].ID] && !st.scores[i].Synced {
			st.scores[i].Synced = true
			changed = true
		}
	}
	if !changed {
		return nil
	}
	if err := s.commitLocked(ctx, st, KeyScores); err != nil {
		return err
	}
	s.hub.Publish(events.Event{Kind: events.DataChanged})
	return nil
}

// Profile assembles level, counters and badges; badges are recomputed on
// every read.
func (s *ProgressService) Profile(ctx context.Context) (domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.loadLocked(ctx)
	if err != nil {
		return domain.Profile{}, err
	}
	return st.profile(), nil
}

// CoinTransactions returns the coin ledger, oldest first.
func (s *ProgressService) CoinTransactions(ctx context.Context) ([]domain.CoinTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.loadLocked(ctx)
	if err != nil {
		return nil, err
	}
	return st.ledger, nil
}

// Preferences returns theme, scoring mode and free-form settings.
func (s *ProgressService) Preferences(ctx context.Context) (Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.loadLocked(ctx)
	if err != nil {
		return Preferences{}, err
	}
	return Preferences{
		Theme:       st.theme,
		ScoringMode: scoring.ParseMode(st.scoringMode),
		Settings:    st.settings,
	}, nil
}

// UpdatePreferences stores new preferences.
func (s *ProgressService) UpdatePreferences(ctx context.Context, prefs Preferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.loadLocked(ctx)
	if err != nil {
		return err
	}
	st.theme = prefs.Theme
	st.scoringMode = string(scoring.ParseMode(string(prefs.ScoringMode)))
	st.settings = prefs.Settings
	if err := s.commitLocked(ctx, st, KeyTheme, KeyScoringMode, KeySettings); err != nil {
		return err
	}
	s.hub.Publish(events.Event{Kind: events.DataChanged})
	return nil
}

// Reset deletes all local progress. It is the only way records are removed.
func (s *ProgressService) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear local data: %w", err)
	}
	s.notices = nil
	s.hub.Publish(events.Event{Kind: events.DataChanged}, events.Event{Kind: events.CoinsChanged, Balance: 0})
	return nil
}

func validateSubmission(sub Submission, currentYear int) (domain.TestType, error) {
	if sub.TestType == "" {
		return "", domain.Invalid("testType", domain.ErrInvalidTestType)
	}
	testType, ok := domain.ParseTestType(sub.TestType)
	if !ok {
		return "", domain.Invalid("testType", domain.ErrInvalidTestType)
	}
	if sub.Year < firstContestYear || sub.Year > currentYear {
		return "", domain.Invalid("year", domain.ErrInvalidYear)
	}
	if len([]rune(sub.Input)) != domain.QuestionCount {
		return "", domain.Invalid("input", domain.ErrAnswerLength)
	}
	if len([]rune(sub.Key)) != domain.QuestionCount {
		return "", domain.Invalid("key", domain.ErrAnswerLength)
	}
	return testType, nil
}

func normalizeTopics(topics map[int]domain.Topic) map[int]domain.Topic {
	if len(topics) == 0 {
		return nil
	}
	out := make(map[int]domain.Topic, len(topics))
	for n, t := range topics {
		if n < 1 || n > domain.QuestionCount {
			continue
		}
		out[n] = domain.NormalizeTopic(string(t))
	}
	return out
}

// progressState is the decoded content of the store for one namespace.
type progressState struct {
	scores      []domain.TestScore
	xp          int
	coins       int
	streak      int
	lastBonus   string
	ledger      []domain.CoinTransaction
	earned      []string
	avatars     []string
	settings    map[string]string
	theme       string
	scoringMode string
}

type stateSnapshot struct {
	level  int
	coins  int
	earned map[string]bool
}

func (st *progressState) snapshot() stateSnapshot {
	earned := make(map[string]bool, len(st.earned))
	for _, id := range st.earned {
		earned[id] = true
	}
	return stateSnapshot{
		level:  gamification.CalculateLevel(st.xp).Level,
		coins:  st.coins,
		earned: earned,
	}
}

func (st *progressState) addCoins(amount int, reason string, at time.Time) {
	if amount == 0 {
		return
	}
	st.coins += amount
	st.ledger = append(st.ledger, domain.CoinTransaction{
		ID:      uuid.NewString(),
		Date:    at,
		Amount:  amount,
		Reason:  reason,
		Balance: st.coins,
	})
}

func (st *progressState) badges() []domain.BadgeStatus {
	return gamification.EvaluateBadges(gamification.BuildStats(st.scores, st.xp, st.streak))
}

func (st *progressState) profile() domain.Profile {
	avatars := append([]string{gamification.DefaultAvatarID}, st.avatars...)
	return domain.Profile{
		XP:              st.xp,
		Level:           gamification.CalculateLevel(st.xp),
		Coins:           st.coins,
		Streak:          st.streak,
		LastBonusDate:   st.lastBonus,
		TotalTests:      len(st.scores),
		Badges:          st.badges(),
		PersonalBest:    gamification.PersonalBest(st.scores),
		UnlockedAvatars: avatars,
	}
}

// changeEvents diffs the state against before and records newly earned
// badges in st so they are announced once.
func (s *ProgressService) changeEvents(before stateSnapshot, st *progressState) []events.Event {
	evts := []events.Event{{Kind: events.DataChanged}}
	if st.coins != before.coins {
		evts = append(evts, events.Event{Kind: events.CoinsChanged, Balance: st.coins})
	}
	if level := gamification.CalculateLevel(st.xp).Level; level > before.level {
		evts = append(evts, events.Event{Kind: events.LevelUp, Level: level})
	}
	for _, b := range st.badges() {
		if b.Earned && !before.earned[b.ID] {
			badge := b
			evts = append(evts, events.Event{Kind: events.BadgeEarned, Badge: &badge})
		}
	}
	return evts
}

func (s *ProgressService) loadLocked(ctx context.Context) (*progressState, error) {
	st := &progressState{}
	scores, err := s.loadScores(ctx)
	if err != nil {
		return nil, err
	}
	st.scores = scores

	loaders := []struct {
		key string
		dst any
	}{
		{KeyXP, &st.xp},
		{KeyCoins, &st.coins},
		{KeyStreak, &st.streak},
		{KeyDailyBonus, &st.lastBonus},
		{KeyCoinTransactions, &st.ledger},
		{KeyEarnedBadges, &st.earned},
		{KeyUnlockedAvatars, &st.avatars},
		{KeySettings, &st.settings},
		{KeyTheme, &st.theme},
		{KeyScoringMode, &st.scoringMode},
	}
	for _, l := range loaders {
		if err := s.loadValue(ctx, l.key, l.dst); err != nil {
			return nil, err
		}
	}
	if st.settings == nil {
		st.settings = map[string]string{}
	}
	return st, nil
}

// loadValue decodes key into dst. Missing keys leave dst at its zero value;
// undecodable values are reset to the zero value in the store and reported
// as a notice.
func (s *ProgressService) loadValue(ctx context.Context, key string, dst any) error {
	raw, ok, err := s.store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("read %s: %w", key, err)
	}
	if !ok || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err == nil {
		return nil
	}

	s.addNoticeLocked(fmt.Sprintf("%s was unreadable and has been reset", key))
	// A failed decode can leave dst half-filled.
	reflect.ValueOf(dst).Elem().SetZero()
	zero, err := json.Marshal(dst)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.store.Put(ctx, map[string][]byte{key: zero}); err != nil {
		return fmt.Errorf("reset %s: %w", key, err)
	}
	return nil
}

// loadScores reads the history. A non-array value or any entry failing the
// shape check discards the whole key, which is reset to an empty list.
func (s *ProgressService) loadScores(ctx context.Context) ([]domain.TestScore, error) {
	raw, ok, err := s.store.Get(ctx, KeyScores)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", KeyScores, err)
	}
	if !ok || len(raw) == 0 {
		return nil, nil
	}
	var scores []domain.TestScore
	if err := json.Unmarshal(raw, &scores); err == nil && validShape(scores) {
		sort.SliceStable(scores, func(i, j int) bool { return scores[i].Date.Before(scores[j].Date) })
		return scores, nil
	}

	s.addNoticeLocked("saved test scores may be corrupted and were cleared")
	if err := s.store.Put(ctx, map[string][]byte{KeyScores: []byte("[]")}); err != nil {
		return nil, fmt.Errorf("reset %s: %w", KeyScores, err)
	}
	return nil, nil
}

func validShape(scores []domain.TestScore) bool {
	for _, sc := range scores {
		if sc.ID == "" || sc.Date.IsZero() {
			return false
		}
		if _, ok := domain.ParseTestType(string(sc.TestType)); !ok {
			return false
		}
		if sc.QuestionCorrectness == nil && (sc.Input == "" || sc.Key == "") {
			return false
		}
	}
	return true
}

func (s *ProgressService) addNoticeLocked(msg string) {
	for _, n := range s.notices {
		if n == msg {
			return
		}
	}
	s.notices = append(s.notices, msg)
}

func (s *ProgressService) commitLocked(ctx context.Context, st *progressState, keys ...string) error {
	values := map[string]any{
		KeyScores:           st.scores,
		KeyXP:               st.xp,
		KeyCoins:            st.coins,
		KeyStreak:           st.streak,
		KeyDailyBonus:       st.lastBonus,
		KeyCoinTransactions: st.ledger,
		KeyUnlockedAvatars:  st.avatars,
		KeySettings:         st.settings,
		KeyTheme:            st.theme,
		KeyScoringMode:      st.scoringMode,
	}
	entries := make(map[string][]byte, len(keys))
	for _, key := range keys {
		v := values[key]
		if key == KeyEarnedBadges {
			v = mergeEarned(st.earned, gamification.EarnedIDs(st.badges()))
		}
		if key == KeyScores && st.scores == nil {
			v = []domain.TestScore{}
		}
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode %s: %w", key, err)
		}
		entries[key] = data
	}
	if err := s.store.Put(ctx, entries); err != nil {
		return fmt.Errorf("write progress: %w", err)
	}
	return nil
}

func mergeEarned(existing, current []string) []string {
	seen := make(map[string]bool, len(existing)+len(current))
	out := make([]string, 0, len(existing)+len(current))
	for _, id := range append(append([]string(nil), existing...), current...) {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
