package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"finlearn-attempt-service/internal/domain"
	"finlearn-attempt-service/internal/infra/memory"
)

func newProgressFixture(t *testing.T) (*ProgressService, *memory.ProgressStore) {
	t.Helper()

	catalog := memory.NewStaticCatalog()
	catalog.AddTopic(2, 3)
	users := memory.NewStaticUsers(42)
	store := memory.NewProgressStore()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	service := NewProgressServiceWithClock(catalog, users, store, func() time.Time { return now })
	return service, store
}

func TestTrackCreatesRecordOnFirstInteraction(t *testing.T) {
	service, _ := newProgressFixture(t)

	progress, err := service.Track(context.Background(), 42, 2, 3, domain.ActionStarted, nil)
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	if progress.Percentage != 25 {
		t.Fatalf("expected 25%%, got %d", progress.Percentage)
	}
	if progress.StartedAt == nil {
		t.Fatal("expected started timestamp")
	}
}

func TestTrackNeverRegresses(t *testing.T) {
	service, _ := newProgressFixture(t)
	ctx := context.Background()

	if _, err := service.Track(ctx, 42, 2, 3, domain.ActionContentLoaded, nil); err != nil {
		t.Fatalf("track: %v", err)
	}
	progress, err := service.Track(ctx, 42, 2, 3, domain.ActionStarted, nil)
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	if progress.Percentage != 75 {
		t.Fatalf("lower floor regressed percentage: %d", progress.Percentage)
	}
}

func TestTrackCompletedAlwaysLandsOnHundred(t *testing.T) {
	service, _ := newProgressFixture(t)

	lower := 30
	progress, err := service.Track(context.Background(), 42, 2, 3, domain.ActionCompleted, &lower)
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	if progress.Percentage != 100 {
		t.Fatalf("completed must force 100, got %d", progress.Percentage)
	}
	if progress.CompletedAt == nil {
		t.Fatal("expected completed timestamp")
	}
}

func TestTrackOverrideOnlyRaises(t *testing.T) {
	service, _ := newProgressFixture(t)
	ctx := context.Background()

	high := 90
	if _, err := service.Track(ctx, 42, 2, 3, domain.ActionAccessed, &high); err != nil {
		t.Fatalf("track: %v", err)
	}
	low := 10
	progress, err := service.Track(ctx, 42, 2, 3, domain.ActionAccessed, &low)
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	if progress.Percentage != 90 {
		t.Fatalf("lower override regressed percentage: %d", progress.Percentage)
	}

	bad := 140
	if _, err := service.Track(ctx, 42, 2, 3, domain.ActionAccessed, &bad); err != domain.ErrInvalidPercentage {
		t.Fatalf("expected ErrInvalidPercentage, got %v", err)
	}
}

func TestTrackResumeSeedsFirstInteraction(t *testing.T) {
	service, _ := newProgressFixture(t)

	progress, err := service.Track(context.Background(), 42, 2, 3, domain.ActionResumed, nil)
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	if progress.Percentage != 10 {
		t.Fatalf("expected resume seed 10%%, got %d", progress.Percentage)
	}
}

func TestTrackPauseOnlyTouchesTimestamps(t *testing.T) {
	service, _ := newProgressFixture(t)
	ctx := context.Background()

	if _, err := service.Track(ctx, 42, 2, 3, domain.ActionAccessed, nil); err != nil {
		t.Fatalf("track: %v", err)
	}
	progress, err := service.Track(ctx, 42, 2, 3, domain.ActionPaused, nil)
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	if progress.Percentage != 50 {
		t.Fatalf("pause changed percentage: %d", progress.Percentage)
	}
}

func TestTrackValidatesCollaborators(t *testing.T) {
	service, _ := newProgressFixture(t)
	ctx := context.Background()

	if _, err := service.Track(ctx, 999, 2, 3, domain.ActionStarted, nil); err != domain.ErrUserNotFound {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if _, err := service.Track(ctx, 42, 2, 99, domain.ActionStarted, nil); err != domain.ErrTopicNotFound {
		t.Fatalf("expected ErrTopicNotFound, got %v", err)
	}
	if _, err := service.Track(ctx, 42, 99, 3, domain.ActionStarted, nil); err != domain.ErrModuleNotFound {
		t.Fatalf("expected ErrModuleNotFound, got %v", err)
	}
}

func TestTrackConcurrentActionsNeverRegress(t *testing.T) {
	service, store := newProgressFixture(t)
	ctx := context.Background()

	actions := []domain.Action{
		domain.ActionStarted, domain.ActionAccessed, domain.ActionContentLoaded,
		domain.ActionPaused, domain.ActionResumed, domain.ActionAccessed,
	}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		for _, action := range actions {
			wg.Add(1)
			go func(a domain.Action) {
				defer wg.Done()
				if _, err := service.Track(ctx, 42, 2, 3, a, nil); err != nil {
					t.Errorf("track %s: %v", a, err)
				}
			}(action)
		}
	}
	wg.Wait()

	progress, err := store.Find(ctx, 42, 3)
	if err != nil {
		t.Fatalf("find progress: %v", err)
	}
	// content_loaded ran, so the row must have reached its floor.
	if progress.Percentage != 75 {
		t.Fatalf("expected 75%% after concurrent actions, got %d", progress.Percentage)
	}
}

func TestModuleProgressListsTopics(t *testing.T) {
	service, _ := newProgressFixture(t)
	ctx := context.Background()

	if _, err := service.Track(ctx, 42, 2, 3, domain.ActionAccessed, nil); err != nil {
		t.Fatalf("track: %v", err)
	}

	records, err := service.ModuleProgress(ctx, 42, 2)
	if err != nil {
		t.Fatalf("module progress: %v", err)
	}
	if len(records) != 1 || records[0].TopicID != 3 {
		t.Fatalf("unexpected records: %+v", records)
	}

	if _, err := service.TopicProgress(ctx, 42, 99); err != domain.ErrProgressNotFound {
		t.Fatalf("expected ErrProgressNotFound, got %v", err)
	}
}

func TestWatchDeliversUpdates(t *testing.T) {
	service, _ := newProgressFixture(t)

	updates, cancel := service.Watch(42)
	defer cancel()

	if _, err := service.Track(context.Background(), 42, 2, 3, domain.ActionStarted, nil); err != nil {
		t.Fatalf("track: %v", err)
	}

	select {
	case update := <-updates:
		if update.Percentage != 25 || update.TopicID != 3 {
			t.Fatalf("unexpected update: %+v", update)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for update")
	}
}

func TestWatchCancelStopsDelivery(t *testing.T) {
	service, _ := newProgressFixture(t)

	updates, cancel := service.Watch(42)
	cancel()

	if _, err := service.Track(context.Background(), 42, 2, 3, domain.ActionStarted, nil); err != nil {
		t.Fatalf("track: %v", err)
	}
	if _, open := <-updates; open {
		t.Fatal("expected channel closed after cancel")
	}
}
