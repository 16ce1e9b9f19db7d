package redis

import (
	"context"
	"testing"
	"time"

	"finlearn-attempt-service/internal/domain"
	"finlearn-attempt-service/internal/infra/memory"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestCatalogCacheCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	source := &countingSource{Source: sampleCatalog()}
	cache := NewCatalogCache(newClient(mr), source, time.Minute)

	path, err := cache.ResolveQuiz(context.Background(), 7)
	if err != nil {
		t.Fatalf("resolve quiz: %v", err)
	}
	if path.TopicID != 3 || path.ModuleID != 2 {
		t.Fatalf("unexpected path: %+v", path)
	}
	if source.resolves != 1 {
		t.Fatalf("expected source resolved once, got %d", source.resolves)
	}

	// Second call should hit cache, source not incremented.
	questions, err := cache.Questions(context.Background(), 7)
	if err != nil {
		t.Fatalf("questions: %v", err)
	}
	if source.resolves != 1 {
		t.Fatalf("expected cache hit, source resolves=%d", source.resolves)
	}
	if len(questions) != 1 {
		t.Fatalf("expected 1 question, got %d", len(questions))
	}
	if questions[0].CorrectAnswer != "4" {
		t.Fatalf("correct answer lost through cache: %+v", questions[0])
	}
}

func TestCatalogCacheExpires(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	source := &countingSource{Source: sampleCatalog()}
	cache := NewCatalogCache(newClient(mr), source, time.Minute)

	if _, err := cache.ResolveQuiz(context.Background(), 7); err != nil {
		t.Fatalf("resolve quiz: %v", err)
	}
	mr.FastForward(2 * time.Minute)
	if _, err := cache.ResolveQuiz(context.Background(), 7); err != nil {
		t.Fatalf("resolve quiz after expiry: %v", err)
	}
	if source.resolves != 2 {
		t.Fatalf("expected reload after TTL, source resolves=%d", source.resolves)
	}
}

func TestCatalogCacheMissPropagates(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	source := &countingSource{Source: sampleCatalog()}
	cache := NewCatalogCache(newClient(mr), source, time.Minute)

	if _, err := cache.ResolveQuiz(context.Background(), 999); err != domain.ErrQuizNotFound {
		t.Fatalf("expected ErrQuizNotFound, got %v", err)
	}
}

type countingSource struct {
	Source
	resolves int
}

func (s *countingSource) ResolveQuiz(ctx context.Context, quizID int64) (domain.QuizPath, error) {
	s.resolves++
	return s.Source.ResolveQuiz(ctx, quizID)
}

func sampleCatalog() *memory.StaticCatalog {
	catalog := memory.NewStaticCatalog()
	catalog.AddQuiz(domain.QuizPath{
		Quiz: domain.Quiz{
			ID:              7,
			ModuleID:        2,
			TopicID:         3,
			Title:           "Budgeting Basics",
			DurationMinutes: 10,
			IsVisible:       true,
		},
		LessonID: 1,
	}, domain.Question{
		ID:            11,
		QuizID:        7,
		Text:          "What is 2 + 2?",
		Option1:       "3",
		Option2:       "4",
		Option3:       "5",
		Option4:       "6",
		CorrectAnswer: "4",
		Points:        1,
	})
	return catalog
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
