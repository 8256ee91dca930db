package memory

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"amc-progress-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

// QuestionLoader fetches catalog questions from a backing store (e.g., Postgres).
type QuestionLoader interface {
	LoadQuestions(ctx context.Context, filter domain.QuestionFilter) ([]domain.Question, error)
}

// CatalogRepository caches question sets per filter with TTL to avoid repeated DB hits.
type CatalogRepository struct {
	loader QuestionLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedQuestions
}

type cachedQuestions struct {
	questions []domain.Question
	expiresAt time.Time
}

func NewCatalogRepository(loader QuestionLoader, ttl time.Duration) *CatalogRepository {
	return &CatalogRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedQuestions),
	}
}

func (r *CatalogRepository) Questions(ctx context.Context, filter domain.QuestionFilter) ([]domain.Question, error) {
	key := filter.Key()
	if qs, ok := r.cached(key); ok {
		return qs, nil
	}

	result, err, _ := r.sf.Do(key, func() (interface{}, error) {
		if qs, ok := r.cached(key); ok {
			return qs, nil
		}

		qs, err := r.loader.LoadQuestions(ctx, filter)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.cache[key] = cachedQuestions{
			questions: qs,
			expiresAt: r.clock().Add(r.ttlWithJitter()),
		}
		r.mu.Unlock()
		return qs, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

// Invalidate drops every cached question set, e.g. after a catalog import.
func (r *CatalogRepository) Invalidate() {
	r.mu.Lock()
	r.cache = make(map[string]cachedQuestions)
	r.mu.Unlock()
}

func (r *CatalogRepository) cached(key string) ([]domain.Question, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[key]
	if !ok || !entry.expiresAt.After(r.clock()) {
		return nil, false
	}
	return entry.questions, true
}

func (r *CatalogRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticCatalog is a simple loader backed by an in-memory slice (useful for tests/demos).
type StaticCatalog struct {
	mu        sync.RWMutex
	questions []domain.Question
}

func NewStaticCatalog(questions []domain.Question) *StaticCatalog {
	return &StaticCatalog{questions: questions}
}

func (c *StaticCatalog) LoadQuestions(_ context.Context, filter domain.QuestionFilter) ([]domain.Question, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []domain.Question
	for _, q := range c.questions {
		if filter.Matches(q) {
			out = append(out, q)
		}
	}
	return out, nil
}

// Questions lets the static catalog serve PracticeService directly.
func (c *StaticCatalog) Questions(ctx context.Context, filter domain.QuestionFilter) ([]domain.Question, error) {
	return c.LoadQuestions(ctx, filter)
}

// UpsertQuestions replaces questions with the same id and appends new ones.
func (c *StaticCatalog) UpsertQuestions(_ context.Context, questions []domain.Question) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	index := make(map[string]int, len(c.questions))
	for i, q := range c.questions {
		index[q.ID] = i
	}
	for _, q := range questions {
		if i, ok := index[q.ID]; ok {
			c.questions[i] = q
			continue
		}
		index[q.ID] = len(c.questions)
		c.questions = append(c.questions, q)
	}
	return len(questions), nil
}

// SampleQuestions is a small built-in catalog used when no database is configured.
func SampleQuestions() []domain.Question {
	choices := []string{"A", "B", "C", "D", "E"}
	answers := "CBDAEBCDAEBACDEDCBAEBDCAE"
	out := make([]domain.Question, 0, 2*domain.QuestionCount)
	for _, t := range []domain.TestType{domain.AMC8, domain.AMC10A} {
		for n := 1; n <= domain.QuestionCount; n++ {
			out = append(out, domain.Question{
				ID:       fmt.Sprintf("%s-2023-%d", t, n),
				TestType: t,
				Year:     2023,
				Number:   n,
				Topic:    domain.Topics[(n-1)%len(domain.Topics)],
				Prompt:   fmt.Sprintf("%s 2023 problem %d", strings.ToUpper(string(t)), n),
				Choices:  choices,
				Answer:   string(answers[n-1]),
			})
		}
	}
	return out
}
