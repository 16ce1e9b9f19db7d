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

// ProgressStore persists topic-progress rows in Postgres. Mutations take a
// row-level lock so concurrent or out-of-order client signals can never
// regress a percentage.
type ProgressStore struct {
	db    *bun.DB
	clock func() time.Time
}

func NewProgressStore(db *bun.DB) *ProgressStore {
	return &ProgressStore{db: db, clock: func() time.Time { return time.Now().UTC() }}
}

func (s *ProgressStore) Mutate(ctx context.Context, userID, moduleID, topicID int64, fn func(p *domain.TopicProgress, firstInteraction bool) error) (domain.TopicProgress, error) {
	var result domain.TopicProgress
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		// DO NOTHING keeps the insert side-effect free on conflict, so
		// RowsAffected tells us whether this was the first interaction.
		seed := &progressRow{
			UserID:         userID,
			ModuleID:       moduleID,
			TopicID:        topicID,
			LastAccessedAt: s.clock(),
		}
		res, err := tx.NewInsert().
			Model(seed).
			On("CONFLICT (user_id, topic_id) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("seed progress: %w", err)
		}
		inserted, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("seed progress: %w", err)
		}

		locked := new(progressRow)
		err = tx.NewSelect().Model(locked).
			Where("user_id = ?", userID).
			Where("topic_id = ?", topicID).
			For("UPDATE").
			Scan(ctx)
		if err != nil {
			return fmt.Errorf("lock progress: %w", err)
		}

		progress := locked.toDomain()
		if err := fn(&progress, inserted > 0); err != nil {
			return err
		}

		updated := progressToRow(&progress)
		if _, err := tx.NewUpdate().
			Model(updated).
			Column("started_at", "completed_at", "last_accessed_at", "progress_percentage").
			WherePK().
			Exec(ctx); err != nil {
			return fmt.Errorf("update progress: %w", err)
		}
		result = progress
		return nil
	})
	if err != nil {
		return domain.TopicProgress{}, err
	}
	return result, nil
}

func (s *ProgressStore) Find(ctx context.Context, userID, topicID int64) (domain.TopicProgress, error) {
	row := new(progressRow)
	err := s.db.NewSelect().Model(row).
		Where("user_id = ?", userID).
		Where("topic_id = ?", topicID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.TopicProgress{}, domain.ErrProgressNotFound
	}
	if err != nil {
		return domain.TopicProgress{}, fmt.Errorf("select progress: %w", err)
	}
	return row.toDomain(), nil
}

func (s *ProgressStore) ListByModule(ctx context.Context, userID, moduleID int64) ([]domain.TopicProgress, error) {
	var rows []progressRow
	err := s.db.NewSelect().Model(&rows).
		Where("user_id = ?", userID).
		Where("module_id = ?", moduleID).
		Order("topic_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select module progress: %w", err)
	}
	out := make([]domain.TopicProgress, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, nil
}
