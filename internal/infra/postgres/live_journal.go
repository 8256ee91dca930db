package postgres

import (
	"context"
	"fmt"

	"amc-progress-service/internal/app"
	"amc-progress-service/internal/domain"
	"amc-progress-service/internal/gamification"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// LiveJournal records live sessions, participants and answers, and the
// rewards handed out when a session ends.
type LiveJournal struct {
	pool *pgxpool.Pool
}

func NewLiveJournal(pool *pgxpool.Pool) *LiveJournal {
	return &LiveJournal{pool: pool}
}

func (j *LiveJournal) RecordSession(ctx context.Context, snap domain.SessionSnapshot) error {
	_, err := j.pool.Exec(ctx, `
		INSERT INTO live_sessions (id, host_id, state, question_count, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (id) DO UPDATE SET state = EXCLUDED.state, updated_at = now()`,
		snap.SessionID, snap.HostID, string(snap.State), snap.QuestionCount,
	)
	if err != nil {
		return fmt.Errorf("record session: %w", err)
	}
	return nil
}

func (j *LiveJournal) RecordParticipant(ctx context.Context, sessionID string, entry domain.LeaderboardEntry) error {
	_, err := j.pool.Exec(ctx, `
		INSERT INTO live_participants (session_id, user_id, display_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_id, user_id) DO UPDATE SET display_name = EXCLUDED.display_name`,
		sessionID, entry.UserID, entry.DisplayName,
	)
	if err != nil {
		return fmt.Errorf("record participant: %w", err)
	}
	return nil
}

func (j *LiveJournal) RecordAnswer(ctx context.Context, sessionID, userID string, res domain.AnswerResult) error {
	_, err := j.pool.Exec(ctx, `
		INSERT INTO live_answers (session_id, user_id, question_index, correct, awarded)
		VALUES ($1, $2, $3, $4, $5)`,
		sessionID, userID, res.QuestionIndex, res.Correct, res.Awarded,
	)
	if err != nil {
		return fmt.Errorf("record answer: %w", err)
	}
	return nil
}

// DistributeRewards stores final standings and awards and credits each
// participant's remote profile, all in one transaction. A session is
// rewarded at most once; repeated calls are no-ops.
func (j *LiveJournal) DistributeRewards(ctx context.Context, sessionID string, standings []domain.Standing) error {
	tx, err := j.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin rewards: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	tag, err := tx.Exec(ctx, `
		INSERT INTO live_sessions (id, state, rewarded_at) VALUES ($1, $2, now())
		ON CONFLICT (id) DO UPDATE SET rewarded_at = now(), state = EXCLUDED.state
		WHERE live_sessions.rewarded_at IS NULL`,
		sessionID, string(domain.SessionEnded),
	)
	if err != nil {
		return fmt.Errorf("mark rewarded: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil
	}

	for _, st := range standings {
		xp, coins := app.Reward(st)
		if _, err := tx.Exec(ctx, `
			INSERT INTO live_participants (session_id, user_id, score, place, xp_awarded, coins_awarded)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (session_id, user_id) DO UPDATE SET
				score = EXCLUDED.score,
				place = EXCLUDED.place,
				xp_awarded = EXCLUDED.xp_awarded,
				coins_awarded = EXCLUDED.coins_awarded`,
			sessionID, st.UserID, st.Score, st.Place, xp, coins,
		); err != nil {
			return fmt.Errorf("record reward for %s: %w", st.UserID, err)
		}
		if err := creditProfile(ctx, tx, st.UserID, xp, coins); err != nil {
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit rewards: %w", err)
	}
	return nil
}

// creditProfile adds a reward to the profile row and recomputes its level.
func creditProfile(ctx context.Context, tx pgx.Tx, userID string, xp, coins int) error {
	var total int
	err := tx.QueryRow(ctx, `
		INSERT INTO profiles (user_id, xp, coins, updated_at) VALUES ($1, $2, $3, now())
		ON CONFLICT (user_id) DO UPDATE SET
			xp = profiles.xp + EXCLUDED.xp,
			coins = profiles.coins + EXCLUDED.coins,
			updated_at = now()
		RETURNING xp`,
		userID, xp, coins,
	).Scan(&total)
	if err != nil {
		return fmt.Errorf("credit profile %s: %w", userID, err)
	}
	level := gamification.CalculateLevel(total).Level
	if _, err := tx.Exec(ctx, `UPDATE profiles SET level = $2 WHERE user_id = $1`, userID, level); err != nil {
		return fmt.Errorf("update level %s: %w", userID, err)
	}
	return nil
}
