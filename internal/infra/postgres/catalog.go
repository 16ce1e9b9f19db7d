package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"finlearn-attempt-service/internal/domain"
)

// Catalog reads quiz content from Postgres. Every query filters
// soft-deleted rows; the lesson chain must resolve end to end.
type Catalog struct {
	pool *pgxpool.Pool
}

func NewCatalog(pool *pgxpool.Pool) *Catalog {
	return &Catalog{pool: pool}
}

func (c *Catalog) ResolveQuiz(ctx context.Context, quizID int64) (domain.QuizPath, error) {
	const query = `
		SELECT q.quiz_id, q.topic_id, q.module_id, q.quiz_title, q.duration_minutes, q.is_visible, m.lesson_id
		FROM quizzes q
		JOIN topics t ON t.topic_id = q.topic_id AND t.deleted_at IS NULL
		JOIN modules m ON m.module_id = t.module_id AND m.deleted_at IS NULL
		JOIN lessons l ON l.lesson_id = m.lesson_id AND l.deleted_at IS NULL
		WHERE q.quiz_id = $1 AND q.deleted_at IS NULL`

	var path domain.QuizPath
	err := c.pool.QueryRow(ctx, query, quizID).Scan(
		&path.ID, &path.TopicID, &path.ModuleID, &path.Title,
		&path.DurationMinutes, &path.IsVisible, &path.LessonID,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.QuizPath{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.QuizPath{}, fmt.Errorf("resolve quiz: %w", err)
	}
	return path, nil
}

func (c *Catalog) Questions(ctx context.Context, quizID int64) ([]domain.Question, error) {
	const query = `
		SELECT question_id, quiz_id, question_text, option1, option2, option3, option4,
		       COALESCE(correct_answer, ''), score_points
		FROM questions
		WHERE quiz_id = $1 AND deleted_at IS NULL
		ORDER BY question_id`

	rows, err := c.pool.Query(ctx, query, quizID)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	var questions []domain.Question
	for rows.Next() {
		var q domain.Question
		if err := rows.Scan(&q.ID, &q.QuizID, &q.Text, &q.Option1, &q.Option2, &q.Option3, &q.Option4, &q.CorrectAnswer, &q.Points); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	return questions, nil
}

func (c *Catalog) ResolveTopic(ctx context.Context, moduleID, topicID int64) error {
	const query = `
		SELECT t.module_id
		FROM topics t
		JOIN modules m ON m.module_id = t.module_id AND m.deleted_at IS NULL
		WHERE t.topic_id = $1 AND t.deleted_at IS NULL`

	var owner int64
	err := c.pool.QueryRow(ctx, query, topicID).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrTopicNotFound
	}
	if err != nil {
		return fmt.Errorf("resolve topic: %w", err)
	}
	if owner != moduleID {
		return domain.ErrModuleNotFound
	}
	return nil
}

// UserDirectory resolves caller identities against the users table.
type UserDirectory struct {
	pool *pgxpool.Pool
}

func NewUserDirectory(pool *pgxpool.Pool) *UserDirectory {
	return &UserDirectory{pool: pool}
}

func (d *UserDirectory) UserExists(ctx context.Context, userID int64) (bool, error) {
	var exists bool
	err := d.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE user_id = $1)`, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("resolve user: %w", err)
	}
	return exists, nil
}
