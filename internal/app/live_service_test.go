package app_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"amc-progress-service/internal/app"
	"amc-progress-service/internal/domain"
	"amc-progress-service/internal/infra/memory"
)

func TestLiveJoinAndScoring(t *testing.T) {
	ctx := context.Background()
	service, _ := newLiveService(t)
	id := startedSession(t, service, "u1", "u2")

	if _, err := service.Buzz(ctx, id, "u2"); err != nil {
		t.Fatalf("buzz failed: %v", err)
	}
	res, snap, err := service.Answer(ctx, id, "u2", "c")
	if err != nil {
		t.Fatalf("answer failed: %v", err)
	}
	if !res.Correct || res.Awarded != app.PointsPerCorrect || res.TotalScore != app.PointsPerCorrect {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(snap.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(snap.Entries))
	}
	if snap.Entries[0].UserID != "u2" {
		t.Fatalf("expected u2 to lead, got %+v", snap.Entries[0])
	}
	if snap.QuestionIndex != 1 || snap.Buzzer != domain.BuzzerOpen || snap.LockHolder != "" {
		t.Fatalf("expected advance with open buzzer, got %+v", snap)
	}
}

func TestLiveBuzzerSingleHolder(t *testing.T) {
	ctx := context.Background()
	service, _ := newLiveService(t)
	users := []string{"u1", "u2", "u3", "u4", "u5"}
	id := startedSession(t, service, users...)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
		locked  int
	)
	for _, u := range users {
		wg.Add(1)
		go func(u string) {
			defer wg.Done()
			_, err := service.Buzz(ctx, id, u)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners++
			case errors.Is(err, domain.ErrBuzzerLocked):
				locked++
			default:
				t.Errorf("unexpected buzz error: %v", err)
			}
		}(u)
	}
	wg.Wait()
	if winners != 1 || locked != len(users)-1 {
		t.Fatalf("expected one winner, got winners=%d locked=%d", winners, locked)
	}
	snap, _ := service.Snapshot(ctx, id)
	if snap.Buzzer != domain.BuzzerLocked || snap.LockHolder == "" {
		t.Fatalf("expected locked buzzer, got %+v", snap)
	}
}

func TestLiveIncorrectAnswerReopensBuzzer(t *testing.T) {
	ctx := context.Background()
	service, _ := newLiveService(t)
	id := startedSession(t, service, "u1", "u2")

	if _, err := service.Buzz(ctx, id, "u1"); err != nil {
		t.Fatalf("buzz failed: %v", err)
	}
	if _, _, err := service.Answer(ctx, id, "u2", "C"); !errors.Is(err, domain.ErrNotLockHolder) {
		t.Fatalf("expected not lock holder, got %v", err)
	}
	res, snap, err := service.Answer(ctx, id, "u1", "A")
	if err != nil {
		t.Fatalf("answer failed: %v", err)
	}
	if res.Correct || res.Awarded != 0 {
		t.Fatalf("expected incorrect result, got %+v", res)
	}
	if snap.QuestionIndex != 0 || snap.Buzzer != domain.BuzzerOpen {
		t.Fatalf("expected same question with open buzzer, got %+v", snap)
	}

	if _, err := service.Buzz(ctx, id, "u1"); !errors.Is(err, domain.ErrLockedOut) {
		t.Fatalf("expected locked out, got %v", err)
	}
	if _, err := service.Buzz(ctx, id, "u2"); err != nil {
		t.Fatalf("other participant should be able to buzz: %v", err)
	}
}

func TestLiveHostActionsAndTransitions(t *testing.T) {
	ctx := context.Background()
	service, _ := newLiveService(t)

	snap, err := service.CreateSession(ctx, "host", domain.QuestionFilter{Family: domain.AMC8}, 2)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	id := snap.SessionID
	if snap.State != domain.SessionLobby || snap.QuestionCount != 2 {
		t.Fatalf("unexpected lobby snapshot %+v", snap)
	}
	if _, err := service.Join(ctx, id, "u1", "Alice"); err != nil {
		t.Fatalf("join failed: %v", err)
	}
	if _, err := service.Buzz(ctx, id, "u1"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected buzz in lobby to fail, got %v", err)
	}
	if _, err := service.Start(ctx, id, "u1"); !errors.Is(err, domain.ErrNotHost) {
		t.Fatalf("expected not host, got %v", err)
	}
	if _, err := service.End(ctx, id, "host"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected end from lobby to fail, got %v", err)
	}
	if _, err := service.Start(ctx, id, "host"); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if _, err := service.Start(ctx, id, "host"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected second start to fail, got %v", err)
	}
	if _, err := service.Join(ctx, id, "late", "Late"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected late join to fail, got %v", err)
	}
	if _, err := service.Join(ctx, id, "u1", "Alice B"); err != nil {
		t.Fatalf("rejoin should refresh name: %v", err)
	}

	if _, err := service.Buzz(ctx, id, "u1"); err != nil {
		t.Fatalf("buzz failed: %v", err)
	}
	snap, err = service.ResetBuzzer(ctx, id, "host")
	if err != nil || snap.Buzzer != domain.BuzzerOpen {
		t.Fatalf("reset failed: %v %+v", err, snap)
	}
	snap, err = service.Next(ctx, id, "host")
	if err != nil || snap.QuestionIndex != 1 {
		t.Fatalf("next failed: %v %+v", err, snap)
	}
	snap, _ = service.Next(ctx, id, "host")
	if snap.Question != nil {
		t.Fatalf("expected no question after the last one, got %+v", snap.Question)
	}
	if _, err := service.Buzz(ctx, id, "u1"); !errors.Is(err, domain.ErrNoActiveQuestion) {
		t.Fatalf("expected no active question, got %v", err)
	}

	if _, err := service.End(ctx, id, "host"); err != nil {
		t.Fatalf("end failed: %v", err)
	}
	if _, err := service.Start(ctx, id, "host"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("ended session must not restart, got %v", err)
	}
	if _, err := service.Join(ctx, id, "u1", "Alice"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("ended session must not accept joins, got %v", err)
	}
}

func TestLiveEndDistributesRewards(t *testing.T) {
	ctx := context.Background()
	service, registry := newLiveService(t)
	id := startedSession(t, service, "u1", "u2")

	_, _ = service.Buzz(ctx, id, "u1")
	_, _, _ = service.Answer(ctx, id, "u1", "C")

	standings, err := service.End(ctx, id, "host")
	if err != nil {
		t.Fatalf("end failed: %v", err)
	}
	service.Wait()

	if len(standings) != 2 || standings[0].UserID != "u1" || standings[0].Place != 1 {
		t.Fatalf("unexpected standings %+v", standings)
	}
	progress, _ := registry.For("u1")
	profile, _ := progress.Profile(ctx)
	if profile.XP != app.PointsPerCorrect || profile.Coins != 30 {
		t.Fatalf("expected winner reward, got xp=%d coins=%d", profile.XP, profile.Coins)
	}
	runnerUp, _ := registry.For("u2")
	profile, _ = runnerUp.Profile(ctx)
	if profile.Coins != 20 {
		t.Fatalf("expected runner-up coins 20, got %d", profile.Coins)
	}
}

func TestLiveSubscribeReceivesUpdates(t *testing.T) {
	ctx := context.Background()
	service, _ := newLiveService(t)
	id := startedSession(t, service, "u1")

	ch, cancel, err := service.Subscribe(ctx, id)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer cancel()

	<-ch // initial snapshot

	if _, err := service.Buzz(ctx, id, "u1"); err != nil {
		t.Fatalf("buzz failed: %v", err)
	}
	update := <-ch
	if update.LockHolder != "u1" {
		t.Fatalf("expected lock holder in update, got %+v", update)
	}
}

func TestLiveRequiresSessionAndParticipant(t *testing.T) {
	ctx := context.Background()
	service, _ := newLiveService(t)

	if _, err := service.Buzz(ctx, "missing", "u1"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected session error, got %v", err)
	}
	id := startedSession(t, service, "u1")
	if _, err := service.Buzz(ctx, id, "u9"); !errors.Is(err, domain.ErrParticipantNotFound) {
		t.Fatalf("expected participant error, got %v", err)
	}
	if _, err := service.CreateSession(ctx, "", domain.QuestionFilter{}, 1); !errors.Is(err, domain.ErrGuestMode) {
		t.Fatalf("expected guest error, got %v", err)
	}
}

func TestLiveLeaveReleasesLockAndDropsIdleLobby(t *testing.T) {
	ctx := context.Background()
	service, _ := newLiveService(t)
	id := startedSession(t, service, "u1", "u2")

	_, _ = service.Buzz(ctx, id, "u1")
	service.Leave(ctx, id, "u1")
	if _, err := service.Buzz(ctx, id, "u2"); err != nil {
		t.Fatalf("expected lock released on leave: %v", err)
	}
	service.Leave(ctx, id, "u2")
	if _, err := service.Snapshot(ctx, id); err != nil {
		t.Fatalf("a session in play must survive disconnects: %v", err)
	}

	lobby, err := service.CreateSession(ctx, "host", domain.QuestionFilter{Family: domain.AMC8}, 1)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := service.Join(ctx, lobby.SessionID, "u3", "Cy"); err != nil {
		t.Fatalf("join failed: %v", err)
	}
	service.Leave(ctx, lobby.SessionID, "u3")
	if _, err := service.Snapshot(ctx, lobby.SessionID); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected idle lobby removed, got %v", err)
	}
}

func TestLiveReconnectKeepsScore(t *testing.T) {
	ctx := context.Background()
	service, registry := newLiveService(t)
	id := startedSession(t, service, "a", "b")

	if _, err := service.Buzz(ctx, id, "a"); err != nil {
		t.Fatalf("buzz failed: %v", err)
	}
	if _, _, err := service.Answer(ctx, id, "a", "C"); err != nil {
		t.Fatalf("answer failed: %v", err)
	}
	service.Leave(ctx, id, "a")

	snap, _ := service.Snapshot(ctx, id)
	if len(snap.Entries) != 2 || snap.Entries[0].UserID != "a" || snap.Entries[0].Connected {
		t.Fatalf("expected a kept as disconnected leader, got %+v", snap.Entries)
	}

	snap, err := service.Join(ctx, id, "a", "name-a")
	if err != nil {
		t.Fatalf("rejoin failed: %v", err)
	}
	if snap.Entries[0].UserID != "a" || snap.Entries[0].Score != app.PointsPerCorrect || !snap.Entries[0].Connected {
		t.Fatalf("expected score kept after rejoin, got %+v", snap.Entries)
	}
	if _, err := service.Join(ctx, id, "stranger", "S"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("new participants must wait for the next lobby, got %v", err)
	}

	standings, err := service.End(ctx, id, "host")
	if err != nil {
		t.Fatalf("end failed: %v", err)
	}
	service.Wait()
	if len(standings) != 2 || standings[0].UserID != "a" {
		t.Fatalf("unexpected standings %+v", standings)
	}
	progress, _ := registry.For("a")
	if profile, _ := progress.Profile(ctx); profile.XP != app.PointsPerCorrect {
		t.Fatalf("expected reward for reconnected winner, got xp=%d", profile.XP)
	}
}

func TestLiveHostReconnectsAfterDrop(t *testing.T) {
	ctx := context.Background()
	service, _ := newLiveService(t)

	snap, err := service.CreateSession(ctx, "host", domain.QuestionFilter{Family: domain.AMC8}, 2)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	id := snap.SessionID
	for _, u := range []string{"host", "u1"} {
		if _, err := service.Join(ctx, id, u, u); err != nil {
			t.Fatalf("join %s: %v", u, err)
		}
	}
	if _, err := service.Start(ctx, id, "host"); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	service.Leave(ctx, id, "host")
	service.Leave(ctx, id, "u1")

	if _, err := service.Join(ctx, id, "host", "host"); err != nil {
		t.Fatalf("host rejoin failed: %v", err)
	}
	if _, err := service.Next(ctx, id, "host"); err != nil {
		t.Fatalf("next after reconnect: %v", err)
	}
	if _, err := service.End(ctx, id, "host"); err != nil {
		t.Fatalf("end after reconnect: %v", err)
	}
}

func TestLiveExpiredArbiterLockKeepsHolder(t *testing.T) {
	ctx := context.Background()
	questions := []domain.Question{{ID: "q1", TestType: domain.AMC8, Number: 1, Answer: "C"}}
	practice := app.NewPracticeService(memory.NewStaticCatalog(questions))
	service := app.NewLiveService(memory.NewSessionStore(), practice, memory.NewArbiter(10*time.Millisecond))
	snap, err := service.CreateSession(ctx, "host", domain.QuestionFilter{}, 1)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	id := snap.SessionID
	for _, u := range []string{"a", "b"} {
		if _, err := service.Join(ctx, id, u, u); err != nil {
			t.Fatalf("join %s: %v", u, err)
		}
	}
	if _, err := service.Start(ctx, id, "host"); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if _, err := service.Buzz(ctx, id, "a"); err != nil {
		t.Fatalf("buzz failed: %v", err)
	}

	time.Sleep(30 * time.Millisecond)

	if _, err := service.Buzz(ctx, id, "b"); !errors.Is(err, domain.ErrBuzzerLocked) {
		t.Fatalf("expected buzzer to stay with a, got %v", err)
	}
	snap, _ = service.Snapshot(ctx, id)
	if snap.LockHolder != "a" {
		t.Fatalf("expected a to keep the lock, got %q", snap.LockHolder)
	}
	if res, _, err := service.Answer(ctx, id, "a", "C"); err != nil || !res.Correct {
		t.Fatalf("holder should still answer: %+v %v", res, err)
	}
}

func TestLiveLobbiesListsOnlyOpenSessions(t *testing.T) {
	ctx := context.Background()
	service, _ := newLiveService(t)

	started := startedSession(t, service, "u1")
	lobby, err := service.CreateSession(ctx, "host2", domain.QuestionFilter{Family: domain.AMC8}, 2)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	lobbies := service.Lobbies(ctx)
	if len(lobbies) != 1 || lobbies[0].SessionID != lobby.SessionID || lobbies[0].SessionID == started {
		t.Fatalf("expected only the open lobby, got %+v", lobbies)
	}
}

func newLiveService(t *testing.T) (*app.LiveService, *app.Registry) {
	t.Helper()
	questions := make([]domain.Question, 0, 5)
	for n := 1; n <= 5; n++ {
		questions = append(questions, domain.Question{
			ID:       fmt.Sprintf("q%d", n),
			TestType: domain.AMC8,
			Year:     2022,
			Number:   n,
			Topic:    domain.Algebra,
			Prompt:   "Pick C",
			Choices:  []string{"A", "B", "C", "D", "E"},
			Answer:   "C",
		})
	}
	practice := app.NewPracticeServiceWithRand(memory.NewStaticCatalog(questions), rand.New(rand.NewSource(1)))
	registry := app.NewRegistry(memory.NewStoreFactory())
	clock := func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	service := app.NewLiveService(memory.NewSessionStore(), practice, memory.NewArbiter(time.Minute),
		app.WithRewards(app.NewProgressRewards(registry)),
		app.WithSessionClock(clock),
	)
	return service, registry
}

func startedSession(t *testing.T, service *app.LiveService, users ...string) string {
	t.Helper()
	ctx := context.Background()
	snap, err := service.CreateSession(ctx, "host", domain.QuestionFilter{Family: domain.AMC8}, 3)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	for _, u := range users {
		if _, err := service.Join(ctx, snap.SessionID, u, "name-"+u); err != nil {
			t.Fatalf("join failed: %v", err)
		}
	}
	if _, err := service.Start(ctx, snap.SessionID, "host"); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	return snap.SessionID
}
