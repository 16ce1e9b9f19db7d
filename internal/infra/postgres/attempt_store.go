package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"finlearn-attempt-service/internal/domain"
)

// AttemptStore persists quiz attempts and question attempts in Postgres.
// Multi-step operations run in a single transaction so a crash mid-way
// never leaves an attempt half-closed.
type AttemptStore struct {
	db *bun.DB
}

func NewAttemptStore(db *bun.DB) *AttemptStore {
	return &AttemptStore{db: db}
}

func (s *AttemptStore) CreateAttempt(ctx context.Context, attempt *domain.QuizAttempt) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := ensureProgress(ctx, tx, attempt.UserID, attempt.ModuleID, attempt.TopicID, attempt.StartedAt); err != nil {
			return err
		}
		row := attemptToRow(attempt)
		row.ID = 0
		if _, err := tx.NewInsert().Model(row).Exec(ctx); err != nil {
			return fmt.Errorf("insert attempt: %w", err)
		}
		attempt.ID = row.ID
		return nil
	})
}

func (s *AttemptStore) AttemptByToken(ctx context.Context, token string) (domain.QuizAttempt, error) {
	row := new(attemptRow)
	err := s.db.NewSelect().Model(row).Where("access_token = ?", token).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.QuizAttempt{}, domain.ErrAttemptNotFound
	}
	if err != nil {
		return domain.QuizAttempt{}, fmt.Errorf("select attempt: %w", err)
	}
	return row.toDomain(), nil
}

func (s *AttemptStore) SavedAnswers(ctx context.Context, attemptID int64) (map[int64]domain.QuestionAttempt, error) {
	var rows []answerRow
	if err := s.db.NewSelect().Model(&rows).Where("attempt_id = ?", attemptID).Scan(ctx); err != nil {
		return nil, fmt.Errorf("select answers: %w", err)
	}
	out := make(map[int64]domain.QuestionAttempt, len(rows))
	for i := range rows {
		out[rows[i].QuestionID] = rows[i].toDomain()
	}
	return out, nil
}

func (s *AttemptStore) UpsertAnswer(ctx context.Context, answer *domain.QuestionAttempt) error {
	// A single INSERT ... ON CONFLICT statement: concurrent saves for the
	// same (attempt, question) serialize on the unique index, last write
	// wins.
	row := answerToRow(answer)
	row.ID = 0
	_, err := s.db.NewInsert().
		Model(row).
		On("CONFLICT (attempt_id, question_id) DO UPDATE").
		Set("selected_answer = EXCLUDED.selected_answer").
		Set("is_correct = EXCLUDED.is_correct").
		Set("attempted_at = EXCLUDED.attempted_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert answer: %w", err)
	}
	return nil
}

func (s *AttemptStore) FinalizeAttempt(ctx context.Context, attempt *domain.QuizAttempt, answers []domain.QuestionAttempt, progressDelta int) (domain.TopicProgress, error) {
	var result domain.TopicProgress
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		locked := new(attemptRow)
		err := tx.NewSelect().Model(locked).Where("attempt_id = ?", attempt.ID).For("UPDATE").Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrAttemptNotFound
		}
		if err != nil {
			return fmt.Errorf("lock attempt: %w", err)
		}
		if locked.CompletedAt != nil {
			return domain.ErrAlreadySubmitted
		}

		for i := range answers {
			row := answerToRow(&answers[i])
			row.ID = 0
			if _, err := tx.NewInsert().
				Model(row).
				On("CONFLICT (attempt_id, question_id) DO UPDATE").
				Set("selected_answer = EXCLUDED.selected_answer").
				Set("is_correct = EXCLUDED.is_correct").
				Set("attempted_at = EXCLUDED.attempted_at").
				Exec(ctx); err != nil {
				return fmt.Errorf("upsert answer: %w", err)
			}
		}

		row := attemptToRow(attempt)
		if _, err := tx.NewUpdate().
			Model(row).
			Column("attempted_questions", "correct_answers", "incorrect_answers",
				"skipped_questions", "score_earned", "time_taken_seconds", "completed_at").
			WherePK().
			Exec(ctx); err != nil {
			return fmt.Errorf("close attempt: %w", err)
		}

		progress, err := advanceProgress(ctx, tx, attempt.UserID, attempt.ModuleID, attempt.TopicID, progressDelta, *attempt.CompletedAt)
		if err != nil {
			return err
		}
		result = progress
		return nil
	})
	if err != nil {
		return domain.TopicProgress{}, err
	}
	return result, nil
}

// ensureProgress creates the (user, topic) progress row at 0% with its
// started timestamp set or, when it already exists, refreshes its
// last-accessed timestamp. Safe to re-run.
func ensureProgress(ctx context.Context, tx bun.Tx, userID, moduleID, topicID int64, now time.Time) error {
	started := now
	row := &progressRow{
		UserID:         userID,
		ModuleID:       moduleID,
		TopicID:        topicID,
		StartedAt:      &started,
		LastAccessedAt: now,
	}
	_, err := tx.NewInsert().
		Model(row).
		On("CONFLICT (user_id, topic_id) DO UPDATE").
		Set("last_accessed_at = EXCLUDED.last_accessed_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("ensure progress: %w", err)
	}
	return nil
}

// advanceProgress bumps the locked progress row by delta, capped at 100.
func advanceProgress(ctx context.Context, tx bun.Tx, userID, moduleID, topicID int64, delta int, now time.Time) (domain.TopicProgress, error) {
	if err := ensureProgress(ctx, tx, userID, moduleID, topicID, now); err != nil {
		return domain.TopicProgress{}, err
	}

	locked := new(progressRow)
	err := tx.NewSelect().Model(locked).
		Where("user_id = ?", userID).
		Where("topic_id = ?", topicID).
		For("UPDATE").
		Scan(ctx)
	if err != nil {
		return domain.TopicProgress{}, fmt.Errorf("lock progress: %w", err)
	}

	progress := locked.toDomain()
	progress.AdvanceBy(delta, now)

	updated := progressToRow(&progress)
	if _, err := tx.NewUpdate().
		Model(updated).
		Column("started_at", "completed_at", "last_accessed_at", "progress_percentage").
		WherePK().
		Exec(ctx); err != nil {
		return domain.TopicProgress{}, fmt.Errorf("update progress: %w", err)
	}
	return progress, nil
}
