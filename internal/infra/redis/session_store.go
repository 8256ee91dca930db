package redis

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"amc-progress-service/internal/app"
	"amc-progress-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

// SessionStore is a Redis-aware implementation of app.SessionRepository.
// Notes:
//   - It still keeps a local in-memory map of sessions to reuse the existing
//     in-process broadcast logic.
//   - Redis holds the latest snapshot of each live session under a TTL so other
//     instances can serve it (see app.SnapshotDirectory). The live service
//     saves after every change, which also refreshes the TTL.
type SessionStore struct {
	client   *redis.Client
	ttl      time.Duration
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		sessions: make(map[string]*app.Session),
	}
}

func (s *SessionStore) Save(session *app.Session) {
	s.mu.Lock()
	s.sessions[session.ID()] = session
	s.mu.Unlock()

	// best-effort liveness marker
	if data, err := json.Marshal(session.Snapshot()); err == nil {
		_ = s.client.Set(context.Background(), s.key(session.ID()), data, s.ttl).Err()
	}
}

func (s *SessionStore) Get(sessionID string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	return session, ok
}

func (s *SessionStore) List() []*app.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*app.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, session)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

func (s *SessionStore) DeleteIfIdle(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return
	}
	if session.Idle() {
		delete(s.sessions, sessionID)
		_ = s.client.Del(context.Background(), s.key(sessionID)).Err()
	}
}

// Published returns the snapshot last written for a session.
func (s *SessionStore) Published(ctx context.Context, sessionID string) (domain.SessionSnapshot, bool) {
	data, err := s.client.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		return domain.SessionSnapshot{}, false
	}
	var snap domain.SessionSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.SessionSnapshot{}, false
	}
	return snap, true
}

func (s *SessionStore) key(sessionID string) string {
	return "live:session:" + sessionID
}
