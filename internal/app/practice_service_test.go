package app_test

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"amc-progress-service/internal/app"
	"amc-progress-service/internal/domain"
	"amc-progress-service/internal/infra/memory"
)

func TestPracticeGenerateMatchesFilter(t *testing.T) {
	catalog := memory.NewStaticCatalog(memory.SampleQuestions())
	practice := app.NewPracticeService(catalog)
	filter := domain.QuestionFilter{Family: domain.AMC10, MinNumber: 5, MaxNumber: 15}

	set, err := practice.Generate(context.Background(), filter, 0)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(set) != 11 {
		t.Fatalf("expected 11 questions, got %d", len(set))
	}
	seen := map[string]bool{}
	for i, pq := range set {
		if pq.Number != i+1 {
			t.Fatalf("expected renumbering from 1, got %d at %d", pq.Number, i)
		}
		if !filter.Matches(pq.Question) {
			t.Fatalf("question %s does not match filter", pq.Question.ID)
		}
		if seen[pq.Question.ID] {
			t.Fatalf("duplicate question %s", pq.Question.ID)
		}
		seen[pq.Question.ID] = true
	}
}

func TestPracticeGenerateCapsAtFullContest(t *testing.T) {
	catalog := memory.NewStaticCatalog(memory.SampleQuestions())
	practice := app.NewPracticeService(catalog)

	set, err := practice.Generate(context.Background(), domain.QuestionFilter{}, 100)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(set) != domain.QuestionCount {
		t.Fatalf("expected %d questions, got %d", domain.QuestionCount, len(set))
	}

	set, _ = practice.Generate(context.Background(), domain.QuestionFilter{}, 4)
	if len(set) != 4 {
		t.Fatalf("expected limit of 4, got %d", len(set))
	}
}

func TestPracticeSeededShuffleIsReproducible(t *testing.T) {
	catalog := memory.NewStaticCatalog(memory.SampleQuestions())
	a := app.NewPracticeServiceWithRand(catalog, rand.New(rand.NewSource(7)))
	b := app.NewPracticeServiceWithRand(catalog, rand.New(rand.NewSource(7)))
	filter := domain.QuestionFilter{Family: domain.AMC8}

	setA, _ := a.Generate(context.Background(), filter, 10)
	setB, _ := b.Generate(context.Background(), filter, 10)
	for i := range setA {
		if setA[i].Question.ID != setB[i].Question.ID {
			t.Fatalf("same seed must give same order, differs at %d", i)
		}
	}
}

func TestPracticeNoQuestions(t *testing.T) {
	practice := app.NewPracticeService(memory.NewStaticCatalog(nil))
	if _, err := practice.Generate(context.Background(), domain.QuestionFilter{Family: domain.AMC12}, 5); !errors.Is(err, domain.ErrNoQuestions) {
		t.Fatalf("expected no questions error, got %v", err)
	}
}
