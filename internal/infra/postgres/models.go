package postgres

import (
	"time"

	"github.com/uptrace/bun"

	"finlearn-attempt-service/internal/domain"
)

type attemptRow struct {
	bun.BaseModel `bun:"table:quiz_attempts"`

	ID                 int64      `bun:"attempt_id,pk,autoincrement"`
	UserID             int64      `bun:"user_id,notnull"`
	QuizID             int64      `bun:"quiz_id,notnull"`
	TopicID            int64      `bun:"topic_id,notnull"`
	ModuleID           int64      `bun:"module_id,notnull"`
	AccessToken        string     `bun:"access_token,notnull"`
	TotalQuestions     int        `bun:"total_questions,notnull"`
	TotalScorePossible int        `bun:"total_score_possible,notnull"`
	AttemptedQuestions int        `bun:"attempted_questions,notnull"`
	CorrectAnswers     int        `bun:"correct_answers,notnull"`
	IncorrectAnswers   int        `bun:"incorrect_answers,notnull"`
	SkippedQuestions   int        `bun:"skipped_questions,notnull"`
	ScoreEarned        int        `bun:"score_earned,notnull"`
	TimeTakenSeconds   int        `bun:"time_taken_seconds,notnull"`
	StartedAt          time.Time  `bun:"started_at,notnull"`
	CompletedAt        *time.Time `bun:"completed_at"`
}

func attemptToRow(a *domain.QuizAttempt) *attemptRow {
	return &attemptRow{
		ID:                 a.ID,
		UserID:             a.UserID,
		QuizID:             a.QuizID,
		TopicID:            a.TopicID,
		ModuleID:           a.ModuleID,
		AccessToken:        a.AccessToken,
		TotalQuestions:     a.TotalQuestions,
		TotalScorePossible: a.TotalScorePossible,
		AttemptedQuestions: a.AttemptedQuestions,
		CorrectAnswers:     a.CorrectAnswers,
		IncorrectAnswers:   a.IncorrectAnswers,
		SkippedQuestions:   a.SkippedQuestions,
		ScoreEarned:        a.ScoreEarned,
		TimeTakenSeconds:   a.TimeTakenSeconds,
		StartedAt:          a.StartedAt,
		CompletedAt:        a.CompletedAt,
	}
}

func (r *attemptRow) toDomain() domain.QuizAttempt {
	return domain.QuizAttempt{
		ID:                 r.ID,
		UserID:             r.UserID,
		QuizID:             r.QuizID,
		TopicID:            r.TopicID,
		ModuleID:           r.ModuleID,
		AccessToken:        r.AccessToken,
		TotalQuestions:     r.TotalQuestions,
		TotalScorePossible: r.TotalScorePossible,
		AttemptedQuestions: r.AttemptedQuestions,
		CorrectAnswers:     r.CorrectAnswers,
		IncorrectAnswers:   r.IncorrectAnswers,
		SkippedQuestions:   r.SkippedQuestions,
		ScoreEarned:        r.ScoreEarned,
		TimeTakenSeconds:   r.TimeTakenSeconds,
		StartedAt:          r.StartedAt,
		CompletedAt:        r.CompletedAt,
	}
}

type answerRow struct {
	bun.BaseModel `bun:"table:question_attempts"`

	ID             int64     `bun:"question_attempt_id,pk,autoincrement"`
	AttemptID      int64     `bun:"attempt_id,notnull"`
	UserID         int64     `bun:"user_id,notnull"`
	QuestionID     int64     `bun:"question_id,notnull"`
	SelectedAnswer string    `bun:"selected_answer,notnull"`
	IsCorrect      bool      `bun:"is_correct,notnull"`
	AttemptedAt    time.Time `bun:"attempted_at,notnull"`
}

func answerToRow(a *domain.QuestionAttempt) *answerRow {
	return &answerRow{
		ID:             a.ID,
		AttemptID:      a.AttemptID,
		UserID:         a.UserID,
		QuestionID:     a.QuestionID,
		SelectedAnswer: a.SelectedAnswer,
		IsCorrect:      a.IsCorrect,
		AttemptedAt:    a.AttemptedAt,
	}
}

func (r *answerRow) toDomain() domain.QuestionAttempt {
	return domain.QuestionAttempt{
		ID:             r.ID,
		AttemptID:      r.AttemptID,
		UserID:         r.UserID,
		QuestionID:     r.QuestionID,
		SelectedAnswer: r.SelectedAnswer,
		IsCorrect:      r.IsCorrect,
		AttemptedAt:    r.AttemptedAt,
	}
}

type progressRow struct {
	bun.BaseModel `bun:"table:topic_progress"`

	ID             int64      `bun:"progress_id,pk,autoincrement"`
	UserID         int64      `bun:"user_id,notnull"`
	ModuleID       int64      `bun:"module_id,notnull"`
	TopicID        int64      `bun:"topic_id,notnull"`
	StartedAt      *time.Time `bun:"started_at"`
	CompletedAt    *time.Time `bun:"completed_at"`
	LastAccessedAt time.Time  `bun:"last_accessed_at,notnull"`
	Percentage     int        `bun:"progress_percentage,notnull"`
}

func progressToRow(p *domain.TopicProgress) *progressRow {
	return &progressRow{
		ID:             p.ID,
		UserID:         p.UserID,
		ModuleID:       p.ModuleID,
		TopicID:        p.TopicID,
		StartedAt:      p.StartedAt,
		CompletedAt:    p.CompletedAt,
		LastAccessedAt: p.LastAccessedAt,
		Percentage:     p.Percentage,
	}
}

func (r *progressRow) toDomain() domain.TopicProgress {
	return domain.TopicProgress{
		ID:             r.ID,
		UserID:         r.UserID,
		ModuleID:       r.ModuleID,
		TopicID:        r.TopicID,
		StartedAt:      r.StartedAt,
		CompletedAt:    r.CompletedAt,
		LastAccessedAt: r.LastAccessedAt,
		Percentage:     r.Percentage,
	}
}
