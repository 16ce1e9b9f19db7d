package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"finlearn-attempt-service/internal/domain"
)

// ProgressStore persists the per-(user, topic) completion records.
type ProgressStore interface {
	// Mutate runs fn against the (user, topic) record under a per-row
	// lock, creating the record first if absent (firstInteraction=true).
	// If fn errors, no change is persisted. Returns the updated record.
	Mutate(ctx context.Context, userID, moduleID, topicID int64, fn func(p *domain.TopicProgress, firstInteraction bool) error) (domain.TopicProgress, error)
	// Find returns the record for (user, topic), or domain.ErrProgressNotFound.
	Find(ctx context.Context, userID, topicID int64) (domain.TopicProgress, error)
	// ListByModule returns the user's records across a module's topics.
	ListByModule(ctx context.Context, userID, moduleID int64) ([]domain.TopicProgress, error)
}

// ProgressService owns topic completion tracking: the manual action ladder
// plus read endpoints, and a watch hub streaming updates to subscribers.
type ProgressService struct {
	catalog Catalog
	users   UserDirectory
	store   ProgressStore
	now     func() time.Time

	mu       sync.Mutex
	watchers map[int64]map[chan domain.TopicProgress]struct{}
}

func NewProgressService(catalog Catalog, users UserDirectory, store ProgressStore) *ProgressService {
	return NewProgressServiceWithClock(catalog, users, store, utcNow)
}

// NewProgressServiceWithClock is test-only for deterministic timestamps.
func NewProgressServiceWithClock(catalog Catalog, users UserDirectory, store ProgressStore, now func() time.Time) *ProgressService {
	return &ProgressService{
		catalog:  catalog,
		users:    users,
		store:    store,
		now:      now,
		watchers: make(map[int64]map[chan domain.TopicProgress]struct{}),
	}
}

// Track applies one manual action to the user's progress on a topic,
// creating the record on first interaction. Percentage never regresses.
func (s *ProgressService) Track(ctx context.Context, userID, moduleID, topicID int64, action domain.Action, override *int) (domain.TopicProgress, error) {
	ok, err := s.users.UserExists(ctx, userID)
	if err != nil {
		return domain.TopicProgress{}, fmt.Errorf("resolve user: %w", err)
	}
	if !ok {
		return domain.TopicProgress{}, domain.ErrUserNotFound
	}
	if err := s.catalog.ResolveTopic(ctx, moduleID, topicID); err != nil {
		return domain.TopicProgress{}, err
	}

	now := s.now()
	progress, err := s.store.Mutate(ctx, userID, moduleID, topicID, func(p *domain.TopicProgress, firstInteraction bool) error {
		return p.Apply(action, override, firstInteraction, now)
	})
	if err != nil {
		return domain.TopicProgress{}, err
	}

	s.publish(progress)
	return progress, nil
}

// TopicProgress returns the user's record for one topic.
func (s *ProgressService) TopicProgress(ctx context.Context, userID, topicID int64) (domain.TopicProgress, error) {
	return s.store.Find(ctx, userID, topicID)
}

// ModuleProgress returns the user's records across a module.
func (s *ProgressService) ModuleProgress(ctx context.Context, userID, moduleID int64) ([]domain.TopicProgress, error) {
	return s.store.ListByModule(ctx, userID, moduleID)
}

// Watch returns a channel receiving every progress update for the user,
// whether driven by manual actions or quiz evaluations. The caller must
// invoke the returned cancel function to avoid leaks.
func (s *ProgressService) Watch(userID int64) (<-chan domain.TopicProgress, func()) {
	ch := make(chan domain.TopicProgress, 8)

	s.mu.Lock()
	subs, ok := s.watchers[userID]
	if !ok {
		subs = make(map[chan domain.TopicProgress]struct{})
		s.watchers[userID] = subs
	}
	subs[ch] = struct{}{}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if subs, ok := s.watchers[userID]; ok {
			if _, live := subs[ch]; live {
				delete(subs, ch)
				close(ch)
			}
			if len(subs) == 0 {
				delete(s.watchers, userID)
			}
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

// publish fans an update out to the user's watchers, dropping the oldest
// pending update for a slow subscriber instead of blocking.
func (s *ProgressService) publish(progress domain.TopicProgress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.watchers[progress.UserID] {
		select {
		case ch <- progress:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- progress
		}
	}
}
