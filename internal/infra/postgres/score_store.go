package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"amc-progress-service/internal/domain"
	"github.com/jackc/pgx/v4/pgxpool"
)

// ScoreStore mirrors test scores into the tests table.
type ScoreStore struct {
	pool *pgxpool.Pool
}

func NewScoreStore(pool *pgxpool.Pool) *ScoreStore {
	return &ScoreStore{pool: pool}
}

// AppendScore inserts a score once; replays of the same id are ignored.
func (s *ScoreStore) AppendScore(ctx context.Context, userID string, score domain.TestScore) error {
	correctness, err := json.Marshal(score.QuestionCorrectness)
	if err != nil {
		return fmt.Errorf("marshal correctness: %w", err)
	}
	topics, err := json.Marshal(score.QuestionTopics)
	if err != nil {
		return fmt.Errorf("marshal topics: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO tests (id, user_id, taken_at, test_type, year, input, answer_key, question_correctness, question_topics, score, label)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING`,
		score.ID, userID, score.Date, string(score.TestType), score.Year, score.Input, score.Key,
		correctness, topics, score.Score, score.Label,
	)
	if err != nil {
		return fmt.Errorf("insert score: %w", err)
	}
	return nil
}

// ListScores returns the remote history of a user, oldest first.
func (s *ScoreStore) ListScores(ctx context.Context, userID string) ([]domain.TestScore, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, taken_at, test_type, year, input, answer_key, question_correctness, question_topics, score, label
		FROM tests WHERE user_id = $1 ORDER BY taken_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("list scores: %w", err)
	}
	defer rows.Close()

	var out []domain.TestScore
	for rows.Next() {
		var (
			sc                  domain.TestScore
			testType            string
			correctness, topics []byte
		)
		if err := rows.Scan(&sc.ID, &sc.Date, &testType, &sc.Year, &sc.Input, &sc.Key, &correctness, &topics, &sc.Score, &sc.Label); err != nil {
			return nil, fmt.Errorf("scan score: %w", err)
		}
		sc.TestType = domain.TestType(testType)
		if len(correctness) > 0 {
			if err := json.Unmarshal(correctness, &sc.QuestionCorrectness); err != nil {
				return nil, fmt.Errorf("unmarshal correctness: %w", err)
			}
		}
		if len(topics) > 0 {
			if err := json.Unmarshal(topics, &sc.QuestionTopics); err != nil {
				return nil, fmt.Errorf("unmarshal topics: %w", err)
			}
		}
		sc.Synced = true
		out = append(out, sc)
	}
	return out, rows.Err()
}
