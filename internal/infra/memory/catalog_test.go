package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"finlearn-attempt-service/internal/domain"
)

type countingSource struct {
	Source
	resolves int
}

func (s *countingSource) ResolveQuiz(ctx context.Context, quizID int64) (domain.QuizPath, error) {
	s.resolves++
	return s.Source.ResolveQuiz(ctx, quizID)
}

func seededCatalog() *StaticCatalog {
	catalog := NewStaticCatalog()
	catalog.AddQuiz(domain.QuizPath{
		Quiz: domain.Quiz{
			ID:        7,
			TopicID:   3,
			ModuleID:  2,
			Title:     "Budgeting Basics",
			IsVisible: true,
		},
		LessonID: 1,
	}, domain.Question{
		ID: 1, QuizID: 7, Text: "q",
		Option1: "A", Option2: "B", Option3: "C", Option4: "D",
		CorrectAnswer: "A",
	})
	return catalog
}

func TestCachedCatalogServesFromCache(t *testing.T) {
	source := &countingSource{Source: seededCatalog()}
	cached := NewCachedCatalog(source, time.Minute)

	if _, err := cached.ResolveQuiz(context.Background(), 7); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, err := cached.Questions(context.Background(), 7); err != nil {
		t.Fatalf("questions: %v", err)
	}
	if source.resolves != 1 {
		t.Fatalf("expected one source hit, got %d", source.resolves)
	}
}

func TestCachedCatalogExpires(t *testing.T) {
	source := &countingSource{Source: seededCatalog()}
	cached := NewCachedCatalog(source, time.Minute)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cached.clock = func() time.Time { return now }

	if _, err := cached.ResolveQuiz(context.Background(), 7); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := cached.ResolveQuiz(context.Background(), 7); err != nil {
		t.Fatalf("resolve after expiry: %v", err)
	}
	if source.resolves != 2 {
		t.Fatalf("expected reload after TTL, got %d hits", source.resolves)
	}
}

func TestCachedCatalogConcurrentLoads(t *testing.T) {
	source := NewStaticCatalog()
	for id := int64(1); id <= 8; id++ {
		source.AddQuiz(domain.QuizPath{
			Quiz:     domain.Quiz{ID: id, TopicID: id, ModuleID: 1, IsVisible: true},
			LessonID: 1,
		})
	}
	cached := NewCachedCatalog(source, time.Minute)

	// Distinct keys bypass singleflight coalescing, so the fill paths
	// (including jitter) run in parallel.
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		for id := int64(1); id <= 8; id++ {
			wg.Add(1)
			go func(id int64) {
				defer wg.Done()
				if _, err := cached.ResolveQuiz(context.Background(), id); err != nil {
					t.Errorf("resolve %d: %v", id, err)
				}
			}(id)
		}
	}
	wg.Wait()
}

func TestCachedCatalogMissPropagates(t *testing.T) {
	source := &countingSource{Source: seededCatalog()}
	cached := NewCachedCatalog(source, time.Minute)

	if _, err := cached.ResolveQuiz(context.Background(), 999); err != domain.ErrQuizNotFound {
		t.Fatalf("expected ErrQuizNotFound, got %v", err)
	}
}

func TestStaticCatalogResolveTopic(t *testing.T) {
	catalog := seededCatalog()
	ctx := context.Background()

	if err := catalog.ResolveTopic(ctx, 2, 3); err != nil {
		t.Fatalf("resolve topic: %v", err)
	}
	if err := catalog.ResolveTopic(ctx, 2, 99); err != domain.ErrTopicNotFound {
		t.Fatalf("expected ErrTopicNotFound, got %v", err)
	}
	if err := catalog.ResolveTopic(ctx, 99, 3); err != domain.ErrModuleNotFound {
		t.Fatalf("expected ErrModuleNotFound, got %v", err)
	}
}
