package memory

import (
	"context"
	"sync"

	"finlearn-attempt-service/internal/domain"
)

type progressKey struct {
	userID  int64
	topicID int64
}

// ProgressStore is an in-memory implementation of app.ProgressStore. A
// single mutex serializes row mutations, which matches the per-row
// locking contract for a store this small.
type ProgressStore struct {
	mu     sync.Mutex
	rows   map[progressKey]*domain.TopicProgress
	nextID int64
}

func NewProgressStore() *ProgressStore {
	return &ProgressStore{rows: make(map[progressKey]*domain.TopicProgress)}
}

func (s *ProgressStore) Mutate(_ context.Context, userID, moduleID, topicID int64, fn func(p *domain.TopicProgress, firstInteraction bool) error) (domain.TopicProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := progressKey{userID: userID, topicID: topicID}
	row, ok := s.rows[key]
	first := !ok
	if first {
		s.nextID++
		row = &domain.TopicProgress{
			ID:       s.nextID,
			UserID:   userID,
			ModuleID: moduleID,
			TopicID:  topicID,
		}
	}

	// Mutate a copy so a failed fn leaves the stored row untouched.
	draft := *row
	if err := fn(&draft, first); err != nil {
		return domain.TopicProgress{}, err
	}
	s.rows[key] = &draft
	return draft, nil
}

func (s *ProgressStore) Find(_ context.Context, userID, topicID int64) (domain.TopicProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row, ok := s.rows[progressKey{userID: userID, topicID: topicID}]; ok {
		return *row, nil
	}
	return domain.TopicProgress{}, domain.ErrProgressNotFound
}

func (s *ProgressStore) ListByModule(_ context.Context, userID, moduleID int64) ([]domain.TopicProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.TopicProgress
	for _, row := range s.rows {
		if row.UserID == userID && row.ModuleID == moduleID {
			out = append(out, *row)
		}
	}
	return out, nil
}

// ensure creates the (user, topic) row at 0% with its started timestamp
// set, refreshing the last-accessed timestamp otherwise. Caller holds the
// lock.
func (s *ProgressStore) ensure(userID, moduleID, topicID int64, now domain.TopicProgress) *domain.TopicProgress {
	key := progressKey{userID: userID, topicID: topicID}
	if row, ok := s.rows[key]; ok {
		row.LastAccessedAt = now.LastAccessedAt
		return row
	}
	s.nextID++
	started := now.LastAccessedAt
	row := &domain.TopicProgress{
		ID:             s.nextID,
		UserID:         userID,
		ModuleID:       moduleID,
		TopicID:        topicID,
		StartedAt:      &started,
		LastAccessedAt: now.LastAccessedAt,
	}
	s.rows[key] = row
	return row
}

// AttemptStore is an in-memory implementation of app.AttemptStore. It
// shares the progress store so attempt transactions can touch progress
// rows the way the database-backed store does.
type AttemptStore struct {
	mu       sync.Mutex
	progress *ProgressStore

	byToken map[string]*domain.QuizAttempt
	answers map[int64]map[int64]*domain.QuestionAttempt // attempt id -> question id
	nextID  int64
}

func NewAttemptStore(progress *ProgressStore) *AttemptStore {
	return &AttemptStore{
		progress: progress,
		byToken:  make(map[string]*domain.QuizAttempt),
		answers:  make(map[int64]map[int64]*domain.QuestionAttempt),
	}
}

func (s *AttemptStore) CreateAttempt(_ context.Context, attempt *domain.QuizAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.progress.mu.Lock()
	s.progress.ensure(attempt.UserID, attempt.ModuleID, attempt.TopicID, domain.TopicProgress{LastAccessedAt: attempt.StartedAt})
	s.progress.mu.Unlock()

	s.nextID++
	attempt.ID = s.nextID
	stored := *attempt
	s.byToken[attempt.AccessToken] = &stored
	s.answers[attempt.ID] = make(map[int64]*domain.QuestionAttempt)
	return nil
}

func (s *AttemptStore) AttemptByToken(_ context.Context, token string) (domain.QuizAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if attempt, ok := s.byToken[token]; ok {
		return *attempt, nil
	}
	return domain.QuizAttempt{}, domain.ErrAttemptNotFound
}

func (s *AttemptStore) SavedAnswers(_ context.Context, attemptID int64) (map[int64]domain.QuestionAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int64]domain.QuestionAttempt, len(s.answers[attemptID]))
	for questionID, answer := range s.answers[attemptID] {
		out[questionID] = *answer
	}
	return out, nil
}

func (s *AttemptStore) UpsertAnswer(_ context.Context, answer *domain.QuestionAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertLocked(answer)
	return nil
}

func (s *AttemptStore) upsertLocked(answer *domain.QuestionAttempt) {
	rows, ok := s.answers[answer.AttemptID]
	if !ok {
		rows = make(map[int64]*domain.QuestionAttempt)
		s.answers[answer.AttemptID] = rows
	}
	if existing, ok := rows[answer.QuestionID]; ok {
		existing.SelectedAnswer = answer.SelectedAnswer
		existing.IsCorrect = answer.IsCorrect
		existing.AttemptedAt = answer.AttemptedAt
		answer.ID = existing.ID
		return
	}
	s.nextID++
	answer.ID = s.nextID
	stored := *answer
	rows[answer.QuestionID] = &stored
}

func (s *AttemptStore) FinalizeAttempt(_ context.Context, attempt *domain.QuizAttempt, answers []domain.QuestionAttempt, progressDelta int) (domain.TopicProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.byToken[attempt.AccessToken]
	if !ok {
		return domain.TopicProgress{}, domain.ErrAttemptNotFound
	}
	if stored.Closed() {
		return domain.TopicProgress{}, domain.ErrAlreadySubmitted
	}

	for i := range answers {
		answer := answers[i]
		s.upsertLocked(&answer)
	}
	*stored = *attempt
	stored.ID = attempt.ID

	s.progress.mu.Lock()
	defer s.progress.mu.Unlock()
	row := s.progress.ensure(attempt.UserID, attempt.ModuleID, attempt.TopicID, domain.TopicProgress{LastAccessedAt: *attempt.CompletedAt})
	row.AdvanceBy(progressDelta, *attempt.CompletedAt)
	return *row, nil
}

// AttemptCount reports how many attempts exist, open or closed.
func (s *AttemptStore) AttemptCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byToken)
}
