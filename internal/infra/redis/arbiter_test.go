package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
)

func TestArbiterFirstCallerWins(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	arb := NewArbiter(newClient(mr), time.Minute)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for _, user := range []string{"u1", "u2", "u3", "u4"} {
		wg.Add(1)
		go func(user string) {
			defer wg.Done()
			ok, err := arb.TryAcquire(ctx, "s1", 0, user)
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			if ok {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}(user)
	}
	wg.Wait()
	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners)
	}
}

func TestArbiterCompareAndDelete(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	arb := NewArbiter(newClient(mr), time.Minute)
	ctx := context.Background()

	if ok, _ := arb.TryAcquire(ctx, "s1", 2, "u1"); !ok {
		t.Fatalf("expected first acquire to win")
	}
	if ok, _ := arb.TryAcquire(ctx, "s1", 2, "u1"); !ok {
		t.Fatalf("holder re-buzzing keeps the lock")
	}
	if err := arb.Release(ctx, "s1", 2, "u2"); err != nil {
		t.Fatalf("release by other: %v", err)
	}
	if !mr.Exists("live:buzzer:s1:2") {
		t.Fatalf("non-holder must not release the lock")
	}
	if err := arb.Release(ctx, "s1", 2, "u1"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if mr.Exists("live:buzzer:s1:2") {
		t.Fatalf("expected lock removed")
	}
}

func TestArbiterLockExpires(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	arb := NewArbiter(newClient(mr), time.Second)
	ctx := context.Background()

	_, _ = arb.TryAcquire(ctx, "s1", 0, "u1")
	mr.FastForward(2 * time.Second)
	if ok, _ := arb.TryAcquire(ctx, "s1", 0, "u2"); !ok {
		t.Fatalf("expected expired lock to be reacquirable")
	}
}
