package postgres

import (
	"context"
	"fmt"

	"amc-progress-service/internal/domain"
	"github.com/jackc/pgx/v4/pgxpool"
)

// ProfileStore mirrors cumulative profiles and ranks them.
type ProfileStore struct {
	pool *pgxpool.Pool
}

func NewProfileStore(pool *pgxpool.Pool) *ProfileStore {
	return &ProfileStore{pool: pool}
}

// UpsertProfile overwrites the remote profile with the local values, which
// stay authoritative.
func (s *ProfileStore) UpsertProfile(ctx context.Context, userID string, p domain.Profile) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO profiles (user_id, xp, level, coins, streak, total_tests, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (user_id) DO UPDATE SET
			xp = EXCLUDED.xp,
			level = EXCLUDED.level,
			coins = EXCLUDED.coins,
			streak = EXCLUDED.streak,
			total_tests = EXCLUDED.total_tests,
			updated_at = now()`,
		userID, p.XP, p.Level.Level, p.Coins, p.Streak, p.TotalTests,
	)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

// SetDisplayName records the name shown on the leaderboard.
func (s *ProfileStore) SetDisplayName(ctx context.Context, userID, name string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO profiles (user_id, display_name) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET display_name = EXCLUDED.display_name, updated_at = now()`,
		userID, name,
	)
	if err != nil {
		return fmt.Errorf("set display name: %w", err)
	}
	return nil
}

// TopProfiles ranks profiles by XP; ties share a rank.
func (s *ProfileStore) TopProfiles(ctx context.Context, limit int) ([]domain.RankedProfile, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx, `
		SELECT user_id, display_name, xp, level, RANK() OVER (ORDER BY xp DESC) AS rank
		FROM profiles
		ORDER BY xp DESC, user_id
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("top profiles: %w", err)
	}
	defer rows.Close()

	var out []domain.RankedProfile
	for rows.Next() {
		var (
			p    domain.RankedProfile
			rank int64
		)
		if err := rows.Scan(&p.UserID, &p.DisplayName, &p.XP, &p.Level, &rank); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		p.Rank = int(rank)
		if p.DisplayName == "" {
			p.DisplayName = p.UserID
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
