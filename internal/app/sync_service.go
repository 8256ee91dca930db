package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	"amc-progress-service/internal/domain"
)

// ScoreWriter durably appends a score record remotely. Implementations must be
// idempotent on the record id.
type ScoreWriter interface {
	AppendScore(ctx context.Context, userID string, score domain.TestScore) error
}

// ProfileWriter mirrors the cumulative profile remotely.
type ProfileWriter interface {
	UpsertProfile(ctx context.Context, userID string, profile domain.Profile) error
}

// ScoreReader lists the remote history of a user.
type ScoreReader interface {
	ListScores(ctx context.Context, userID string) ([]domain.TestScore, error)
}

// ErrNoRemoteHistory is returned by Status when the score writer cannot list
// what it stored.
var ErrNoRemoteHistory = errors.New("remote store cannot list scores")

// LeaderboardReader ranks remote profiles.
type LeaderboardReader interface {
	TopProfiles(ctx context.Context, limit int) ([]domain.RankedProfile, error)
}

// SyncResult reports one migration run.
type SyncResult struct {
	Pushed int `json:"pushed"`
	Failed int `json:"failed"`
}

// SyncStatus compares the local history with its remote copy.
type SyncStatus struct {
	Local   int `json:"local"`
	Pending int `json:"pending"`
	Remote  int `json:"remote"`
}

// SyncService mirrors unsynced local scores to the remote store. Local state
// stays authoritative; failures leave records unsynced for the next run.
type SyncService struct {
	registry *Registry
	scores   ScoreWriter
	profiles ProfileWriter
}

func NewSyncService(registry *Registry, scores ScoreWriter, profiles ProfileWriter) *SyncService {
	return &SyncService{registry: registry, scores: scores, profiles: profiles}
}

// Migrate pushes every unsynced score of userID. Records that were written
// are marked synced; the others are reported through the returned error.
func (s *SyncService) Migrate(ctx context.Context, userID string) (SyncResult, error) {
	if userID == "" || userID == GuestNamespace {
		return SyncResult{}, domain.ErrGuestMode
	}
	progress, err := s.registry.For(userID)
	if err != nil {
		return SyncResult{}, err
	}
	pending, err := progress.UnsyncedScores(ctx)
	if err != nil {
		return SyncResult{}, err
	}
	if len(pending) == 0 {
		return SyncResult{}, nil
	}

	var (
		res    SyncResult
		synced []string
		errs   []error
	)
	for _, score := range pending {
		if err := s.scores.AppendScore(ctx, userID, score); err != nil {
			res.Failed++
			errs = append(errs, fmt.Errorf("score %s: %w", score.ID, err))
			continue
		}
		synced = append(synced, score.ID)
	}
	res.Pushed = len(synced)
	if err := progress.MarkSynced(ctx, synced...); err != nil {
		errs = append(errs, err)
	}

	if res.Pushed > 0 && s.profiles != nil {
		profile, err := progress.Profile(ctx)
		if err == nil {
			err = s.profiles.UpsertProfile(ctx, userID, profile)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("profile: %w", err))
		}
	}
	return res, errors.Join(errs...)
}

// Status counts local, unsynced and remote records of userID.
func (s *SyncService) Status(ctx context.Context, userID string) (SyncStatus, error) {
	if userID == "" || userID == GuestNamespace {
		return SyncStatus{}, domain.ErrGuestMode
	}
	reader, ok := s.scores.(ScoreReader)
	if !ok {
		return SyncStatus{}, ErrNoRemoteHistory
	}
	progress, err := s.registry.For(userID)
	if err != nil {
		return SyncStatus{}, err
	}
	local, err := progress.Scores(ctx)
	if err != nil {
		return SyncStatus{}, err
	}
	remote, err := reader.ListScores(ctx, userID)
	if err != nil {
		return SyncStatus{}, fmt.Errorf("remote history: %w", err)
	}
	st := SyncStatus{Local: len(local), Remote: len(remote)}
	for _, sc := range local {
		if !sc.Synced {
			st.Pending++
		}
	}
	return st, nil
}

// MigrateAll runs Migrate for every authenticated namespace, logging
// failures. It is the periodic retry job.
func (s *SyncService) MigrateAll(ctx context.Context) {
	for _, ns := range s.registry.Namespaces() {
		if ns == GuestNamespace {
			continue
		}
		res, err := s.Migrate(ctx, ns)
		if err != nil {
			log.Printf("sync %s: pushed=%d failed=%d: %v", ns, res.Pushed, res.Failed, err)
			continue
		}
		if res.Pushed > 0 {
			log.Printf("sync %s: pushed=%d", ns, res.Pushed)
		}
	}
}
