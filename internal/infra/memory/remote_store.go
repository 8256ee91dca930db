package memory

import (
	"context"
	"sort"
	"sync"

	"amc-progress-service/internal/domain"
	"amc-progress-service/internal/gamification"
)

// RemoteStore stands in for the hosted database when Postgres is not
// configured. It implements app.ScoreWriter, app.ScoreReader,
// app.ProfileWriter and app.LeaderboardReader.
type RemoteStore struct {
	mu       sync.RWMutex
	scores   map[string]map[string]domain.TestScore
	profiles map[string]domain.Profile
	writes   int
}

func NewRemoteStore() *RemoteStore {
	return &RemoteStore{
		scores:   make(map[string]map[string]domain.TestScore),
		profiles: make(map[string]domain.Profile),
	}
}

func (r *RemoteStore) AppendScore(_ context.Context, userID string, score domain.TestScore) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes++
	byID, ok := r.scores[userID]
	if !ok {
		byID = make(map[string]domain.TestScore)
		r.scores[userID] = byID
	}
	if _, exists := byID[score.ID]; !exists {
		score.Synced = true
		byID[score.ID] = score
	}
	return nil
}

func (r *RemoteStore) UpsertProfile(_ context.Context, userID string, profile domain.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes++
	r.profiles[userID] = profile
	return nil
}

// TopProfiles ranks by XP; ties share a rank.
func (r *RemoteStore) TopProfiles(_ context.Context, limit int) ([]domain.RankedProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.RankedProfile, 0, len(r.profiles))
	for id, p := range r.profiles {
		out = append(out, domain.RankedProfile{
			UserID:      id,
			DisplayName: id,
			XP:          p.XP,
			Level:       gamification.CalculateLevel(p.XP).Level,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].XP != out[j].XP {
			return out[i].XP > out[j].XP
		}
		return out[i].UserID < out[j].UserID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	for i := range out {
		out[i].Rank = i + 1
		if i > 0 && out[i].XP == out[i-1].XP {
			out[i].Rank = out[i-1].Rank
		}
	}
	return out, nil
}

// ListScores returns the remote copy of a user's history, oldest first.
func (r *RemoteStore) ListScores(_ context.Context, userID string) ([]domain.TestScore, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.TestScore, 0, len(r.scores[userID]))
	for _, s := range r.scores[userID] {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// Writes counts every write call received.
func (r *RemoteStore) Writes() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.writes
}
