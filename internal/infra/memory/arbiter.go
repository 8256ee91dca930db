package memory

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Arbiter is a process-local app.Arbiter. A mutex makes TryAcquire a single
// compare-and-set; locks expire after ttl so a vanished holder cannot block a
// question forever.
type Arbiter struct {
	ttl   time.Duration
	clock func() time.Time

	mu    sync.Mutex
	locks map[string]heldLock
}

type heldLock struct {
	holder    string
	expiresAt time.Time
}

func NewArbiter(ttl time.Duration) *Arbiter {
	return &Arbiter{ttl: ttl, clock: time.Now, locks: make(map[string]heldLock)}
}

func (a *Arbiter) TryAcquire(_ context.Context, sessionID string, question int, userID string) (bool, error) {
	key := lockKey(sessionID, question)
	now := a.clock()

	a.mu.Lock()
	defer a.mu.Unlock()
	if cur, ok := a.locks[key]; ok && (a.ttl <= 0 || cur.expiresAt.After(now)) {
		return cur.holder == userID, nil
	}
	a.locks[key] = heldLock{holder: userID, expiresAt: now.Add(a.ttl)}
	return true, nil
}

func (a *Arbiter) Release(_ context.Context, sessionID string, question int, userID string) error {
	key := lockKey(sessionID, question)

	a.mu.Lock()
	defer a.mu.Unlock()
	if cur, ok := a.locks[key]; ok && cur.holder == userID {
		delete(a.locks, key)
	}
	return nil
}

func lockKey(sessionID string, question int) string {
	return fmt.Sprintf("%s:%d", sessionID, question)
}
