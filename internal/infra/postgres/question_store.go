package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"amc-progress-service/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// QuestionStore loads and imports catalog questions.
type QuestionStore struct {
	pool *pgxpool.Pool
}

func NewQuestionStore(pool *pgxpool.Pool) *QuestionStore {
	return &QuestionStore{pool: pool}
}

func (s *QuestionStore) LoadQuestions(ctx context.Context, filter domain.QuestionFilter) ([]domain.Question, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, test_type, year, number, topic, prompt, choices, answer
		FROM questions
		WHERE ($1 = '' OR family = $1)
		  AND ($2 = 0 OR number >= $2)
		  AND ($3 = 0 OR number <= $3)
		ORDER BY year, test_type, number`,
		string(filter.Family.Family()), filter.MinNumber, filter.MaxNumber,
	)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	var out []domain.Question
	for rows.Next() {
		var (
			q         domain.Question
			testType  string
			topic     string
			rawChoice []byte
		)
		if err := rows.Scan(&q.ID, &testType, &q.Year, &q.Number, &topic, &q.Prompt, &rawChoice, &q.Answer); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		q.TestType = domain.TestType(testType)
		q.Topic = domain.NormalizeTopic(topic)
		if len(rawChoice) > 0 {
			if err := json.Unmarshal(rawChoice, &q.Choices); err != nil {
				return nil, fmt.Errorf("unmarshal choices: %w", err)
			}
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// UpsertQuestions writes questions in one batch, replacing rows with the same id.
func (s *QuestionStore) UpsertQuestions(ctx context.Context, questions []domain.Question) (int, error) {
	batch := &pgx.Batch{}
	for _, q := range questions {
		choices, err := json.Marshal(q.Choices)
		if err != nil {
			return 0, fmt.Errorf("marshal choices: %w", err)
		}
		batch.Queue(`
			INSERT INTO questions (id, test_type, family, year, number, topic, prompt, choices, answer)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (id) DO UPDATE SET
				test_type = EXCLUDED.test_type,
				family = EXCLUDED.family,
				year = EXCLUDED.year,
				number = EXCLUDED.number,
				topic = EXCLUDED.topic,
				prompt = EXCLUDED.prompt,
				choices = EXCLUDED.choices,
				answer = EXCLUDED.answer`,
			q.ID, string(q.TestType), string(q.TestType.Family()), q.Year, q.Number, string(q.Topic), q.Prompt, choices, q.Answer,
		)
	}
	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()
	for i := range questions {
		if _, err := results.Exec(); err != nil {
			return i, fmt.Errorf("upsert question %s: %w", questions[i].ID, err)
		}
	}
	return len(questions), nil
}
