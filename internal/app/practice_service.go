package app

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"amc-progress-service/internal/domain"
)

// QuestionCatalog loads catalog questions (from cache/backing store).
type QuestionCatalog interface {
	Questions(ctx context.Context, filter domain.QuestionFilter) ([]domain.Question, error)
}

// PracticeService draws shuffled practice sets from the question catalog.
type PracticeService struct {
	catalog QuestionCatalog

	mu  sync.Mutex
	rng *rand.Rand
}

// NewPracticeService seeds its shuffle from the clock.
func NewPracticeService(catalog QuestionCatalog) *PracticeService {
	return NewPracticeServiceWithRand(catalog, rand.New(rand.NewSource(time.Now().UnixNano())))
}

// NewPracticeServiceWithRand uses rng for shuffling, for reproducible sets.
func NewPracticeServiceWithRand(catalog QuestionCatalog, rng *rand.Rand) *PracticeService {
	return &PracticeService{catalog: catalog, rng: rng}
}

// Generate samples up to limit matching questions (never more than a full
// contest), shuffles them and renumbers them from 1.
func (s *PracticeService) Generate(ctx context.Context, filter domain.QuestionFilter, limit int) ([]domain.PracticeQuestion, error) {
	if limit <= 0 || limit > domain.QuestionCount {
		limit = domain.QuestionCount
	}
	all, err := s.catalog.Questions(ctx, filter)
	if err != nil {
		return nil, err
	}
	pool := make([]domain.Question, 0, len(all))
	for _, q := range all {
		if filter.Matches(q) {
			pool = append(pool, q)
		}
	}
	if len(pool) == 0 {
		return nil, domain.ErrNoQuestions
	}

	s.mu.Lock()
	s.rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	s.mu.Unlock()

	if len(pool) > limit {
		pool = pool[:limit]
	}
	out := make([]domain.PracticeQuestion, len(pool))
	for i, q := range pool {
		out[i] = domain.PracticeQuestion{Number: i + 1, Question: q}
	}
	return out, nil
}
