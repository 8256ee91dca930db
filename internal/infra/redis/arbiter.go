package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only when it still belongs to the caller.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Arbiter grants buzzer locks with SET NX, so Redis decides the first caller
// across every instance. Locks expire after ttl.
type Arbiter struct {
	client *redis.Client
	ttl    time.Duration
}

func NewArbiter(client *redis.Client, ttl time.Duration) *Arbiter {
	return &Arbiter{client: client, ttl: ttl}
}

func (a *Arbiter) TryAcquire(ctx context.Context, sessionID string, question int, userID string) (bool, error) {
	key := a.key(sessionID, question)
	ok, err := a.client.SetNX(ctx, key, userID, a.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire buzzer: %w", err)
	}
	if ok {
		return true, nil
	}
	holder, err := a.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read buzzer holder: %w", err)
	}
	return holder == userID, nil
}

func (a *Arbiter) Release(ctx context.Context, sessionID string, question int, userID string) error {
	if err := releaseScript.Run(ctx, a.client, []string{a.key(sessionID, question)}, userID).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release buzzer: %w", err)
	}
	return nil
}

func (a *Arbiter) key(sessionID string, question int) string {
	return fmt.Sprintf("live:buzzer:%s:%d", sessionID, question)
}
