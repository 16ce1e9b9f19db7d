package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"finlearn-attempt-service/internal/domain"
)

// Catalog reads quiz content (lessons, modules, topics, quizzes,
// questions). Implementations filter out soft-deleted records.
type Catalog interface {
	// ResolveQuiz returns the quiz with its lesson chain resolved, or
	// domain.ErrQuizNotFound when the quiz or any chain link is absent or
	// soft-deleted. Visibility is reported, not filtered.
	ResolveQuiz(ctx context.Context, quizID int64) (domain.QuizPath, error)
	// Questions returns the quiz's non-deleted questions.
	Questions(ctx context.Context, quizID int64) ([]domain.Question, error)
	// ResolveTopic verifies the (module, topic) pair exists and is not
	// soft-deleted.
	ResolveTopic(ctx context.Context, moduleID, topicID int64) error
}

// UserDirectory resolves caller identities against the user store.
type UserDirectory interface {
	UserExists(ctx context.Context, userID int64) (bool, error)
}

// AttemptStore persists quiz attempts and their per-question answers.
type AttemptStore interface {
	// CreateAttempt persists a new open attempt and, in the same
	// transaction, ensures the (user, topic) progress row exists
	// (creating it at 0% or refreshing its last-accessed timestamp).
	CreateAttempt(ctx context.Context, attempt *domain.QuizAttempt) error
	// AttemptByToken resolves an access token, or domain.ErrAttemptNotFound.
	AttemptByToken(ctx context.Context, token string) (domain.QuizAttempt, error)
	// SavedAnswers returns the attempt's answers keyed by question id.
	SavedAnswers(ctx context.Context, attemptID int64) (map[int64]domain.QuestionAttempt, error)
	// UpsertAnswer inserts or overwrites the answer for the attempt's
	// (attempt, question) pair as one atomic statement.
	UpsertAnswer(ctx context.Context, answer *domain.QuestionAttempt) error
	// FinalizeAttempt atomically upserts the supplied answers, closes the
	// attempt, and advances the topic progress by progressDelta. It fails
	// with domain.ErrAlreadySubmitted if the attempt closed concurrently,
	// leaving every row untouched. Returns the updated progress record.
	FinalizeAttempt(ctx context.Context, attempt *domain.QuizAttempt, answers []domain.QuestionAttempt, progressDelta int) (domain.TopicProgress, error)
}

// AttemptService drives the quiz-attempt lifecycle: start, fetch details,
// save answers, evaluate.
type AttemptService struct {
	catalog  Catalog
	users    UserDirectory
	attempts AttemptStore
	progress *ProgressService
	now      func() time.Time
}

func NewAttemptService(catalog Catalog, users UserDirectory, attempts AttemptStore, progress *ProgressService) *AttemptService {
	return NewAttemptServiceWithClock(catalog, users, attempts, progress, utcNow)
}

// NewAttemptServiceWithClock is test-only for deterministic timestamps.
func NewAttemptServiceWithClock(catalog Catalog, users UserDirectory, attempts AttemptStore, progress *ProgressService, now func() time.Time) *AttemptService {
	return &AttemptService{
		catalog:  catalog,
		users:    users,
		attempts: attempts,
		progress: progress,
		now:      now,
	}
}

// utcNow keeps every timestamp in one zone so durations never mix zoned
// and naive times.
func utcNow() time.Time {
	return time.Now().UTC()
}

// StartResult is what a client needs to continue an attempt.
type StartResult struct {
	AccessToken    string `json:"quizAttemptAccessToken"`
	TotalQuestions int    `json:"totalQuestions"`
}

// Start opens a new attempt at a quiz. Each call mints a fresh attempt and
// token; retries are safe but not idempotent.
func (s *AttemptService) Start(ctx context.Context, userID, quizID int64) (StartResult, error) {
	ok, err := s.users.UserExists(ctx, userID)
	if err != nil {
		return StartResult{}, fmt.Errorf("resolve user: %w", err)
	}
	if !ok {
		return StartResult{}, domain.ErrUserNotFound
	}

	path, err := s.catalog.ResolveQuiz(ctx, quizID)
	if err != nil {
		return StartResult{}, err
	}
	if !path.IsVisible {
		return StartResult{}, domain.ErrQuizHidden
	}

	questions, err := s.catalog.Questions(ctx, quizID)
	if err != nil {
		return StartResult{}, fmt.Errorf("load questions: %w", err)
	}
	totalScore := 0
	for _, q := range questions {
		totalScore += q.PointValue()
	}

	token, err := newAccessToken()
	if err != nil {
		return StartResult{}, fmt.Errorf("generate access token: %w", err)
	}

	attempt := &domain.QuizAttempt{
		UserID:             userID,
		QuizID:             quizID,
		TopicID:            path.TopicID,
		ModuleID:           path.ModuleID,
		AccessToken:        token,
		TotalQuestions:     len(questions),
		TotalScorePossible: totalScore,
		StartedAt:          s.now(),
	}
	if err := s.attempts.CreateAttempt(ctx, attempt); err != nil {
		return StartResult{}, fmt.Errorf("create attempt: %w", err)
	}

	return StartResult{AccessToken: token, TotalQuestions: len(questions)}, nil
}

// QuestionView is a question as shown to the quiz taker. The correct
// answer is deliberately absent.
type QuestionView struct {
	QuestionID     int64   `json:"questionId"`
	Text           string  `json:"questionText"`
	Option1        string  `json:"option1"`
	Option2        string  `json:"option2"`
	Option3        string  `json:"option3"`
	Option4        string  `json:"option4"`
	Points         int     `json:"scorePoints"`
	SelectedAnswer *string `json:"selectedAnswer"`
}

// AttemptDetails is the payload for rendering an open attempt.
type AttemptDetails struct {
	QuizTitle       string         `json:"quizTitle"`
	DurationMinutes int            `json:"durationMinutes"`
	TotalQuestions  int            `json:"totalQuestions"`
	Questions       []QuestionView `json:"questions"`
}

// Details loads an open attempt's quiz content together with any answers
// the user already saved. Closed attempts fail with
// domain.ErrAlreadySubmitted.
func (s *AttemptService) Details(ctx context.Context, token string) (AttemptDetails, error) {
	attempt, err := s.attempts.AttemptByToken(ctx, token)
	if err != nil {
		return AttemptDetails{}, err
	}
	if attempt.Closed() {
		return AttemptDetails{}, domain.ErrAlreadySubmitted
	}

	path, err := s.catalog.ResolveQuiz(ctx, attempt.QuizID)
	if err != nil {
		return AttemptDetails{}, err
	}
	if !path.IsVisible {
		return AttemptDetails{}, domain.ErrQuizNotFound
	}

	questions, err := s.catalog.Questions(ctx, attempt.QuizID)
	if err != nil {
		return AttemptDetails{}, fmt.Errorf("load questions: %w", err)
	}
	saved, err := s.attempts.SavedAnswers(ctx, attempt.ID)
	if err != nil {
		return AttemptDetails{}, fmt.Errorf("load saved answers: %w", err)
	}

	views := make([]QuestionView, 0, len(questions))
	for _, q := range questions {
		view := QuestionView{
			QuestionID: q.ID,
			Text:       q.Text,
			Option1:    q.Option1,
			Option2:    q.Option2,
			Option3:    q.Option3,
			Option4:    q.Option4,
			Points:     q.PointValue(),
		}
		if answer, ok := saved[q.ID]; ok {
			selected := answer.SelectedAnswer
			view.SelectedAnswer = &selected
		}
		views = append(views, view)
	}

	return AttemptDetails{
		QuizTitle:       path.Title,
		DurationMinutes: path.DurationMinutes,
		TotalQuestions:  len(views),
		Questions:       views,
	}, nil
}

// SaveAnswer upserts the user's answer for one question of an open
// attempt. Saving the same answer again is a no-op; saving a different one
// overwrites in place.
func (s *AttemptService) SaveAnswer(ctx context.Context, token string, questionID int64, selected string) error {
	attempt, err := s.attempts.AttemptByToken(ctx, token)
	if err != nil {
		return err
	}
	if attempt.Closed() {
		return domain.ErrAttemptClosed
	}

	question, err := s.questionOnQuiz(ctx, attempt.QuizID, questionID)
	if err != nil {
		return err
	}
	if !question.HasOption(selected) {
		return domain.ErrAnswerNotAnOption
	}

	answer := &domain.QuestionAttempt{
		AttemptID:      attempt.ID,
		UserID:         attempt.UserID,
		QuestionID:     questionID,
		SelectedAnswer: selected,
		IsCorrect:      selected == question.CorrectAnswer,
		AttemptedAt:    s.now(),
	}
	if err := s.attempts.UpsertAnswer(ctx, answer); err != nil {
		return fmt.Errorf("save answer: %w", err)
	}
	return nil
}

// Response is one answered question in an evaluation payload.
type Response struct {
	QuestionID     int64  `json:"questionId"`
	SelectedOption string `json:"selectedOption"`
}

// EvaluateResult reports the outcome of a closed attempt. The possible
// score is the snapshot taken at start time, immune to later question
// edits.
type EvaluateResult struct {
	Score              int `json:"score"`
	TotalScorePossible int `json:"totalScorePossible"`
}

// Evaluate validates the full response set, scores it, closes the attempt,
// and advances the topic progress — all atomically. Everything is checked
// before anything is written; a second call fails with
// domain.ErrAlreadySubmitted and never re-scores.
func (s *AttemptService) Evaluate(ctx context.Context, token string, responses []Response) (EvaluateResult, error) {
	attempt, err := s.attempts.AttemptByToken(ctx, token)
	if err != nil {
		return EvaluateResult{}, err
	}
	if attempt.Closed() {
		return EvaluateResult{}, domain.ErrAlreadySubmitted
	}

	questions, err := s.catalog.Questions(ctx, attempt.QuizID)
	if err != nil {
		return EvaluateResult{}, fmt.Errorf("load questions: %w", err)
	}
	byID := make(map[int64]domain.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}

	now := s.now()
	seen := make(map[int64]struct{}, len(responses))
	answers := make([]domain.QuestionAttempt, 0, len(responses))
	score, correct := 0, 0
	for _, r := range responses {
		if _, dup := seen[r.QuestionID]; dup {
			return EvaluateResult{}, domain.ErrDuplicateResponse
		}
		seen[r.QuestionID] = struct{}{}

		question, ok := byID[r.QuestionID]
		if !ok {
			return EvaluateResult{}, domain.ErrQuestionNotFound
		}
		if !question.HasOption(r.SelectedOption) {
			return EvaluateResult{}, domain.ErrAnswerNotAnOption
		}

		isCorrect := r.SelectedOption == question.CorrectAnswer
		if isCorrect {
			score += question.PointValue()
			correct++
		}
		answers = append(answers, domain.QuestionAttempt{
			AttemptID:      attempt.ID,
			UserID:         attempt.UserID,
			QuestionID:     r.QuestionID,
			SelectedAnswer: r.SelectedOption,
			IsCorrect:      isCorrect,
			AttemptedAt:    now,
		})
	}

	attempt.ScoreEarned = score
	attempt.AttemptedQuestions = len(responses)
	attempt.CorrectAnswers = correct
	attempt.IncorrectAnswers = len(responses) - correct
	attempt.SkippedQuestions = attempt.TotalQuestions - len(responses)
	if attempt.SkippedQuestions < 0 {
		attempt.SkippedQuestions = 0
	}
	attempt.CompletedAt = &now
	attempt.TimeTakenSeconds = int(now.Sub(attempt.StartedAt).Seconds())

	// Progress advances by an equal share per question counted at start
	// time, not by the size of this payload.
	delta := 0
	if attempt.TotalQuestions > 0 {
		delta = 100 / attempt.TotalQuestions
	}

	progress, err := s.attempts.FinalizeAttempt(ctx, &attempt, answers, delta)
	if err != nil {
		return EvaluateResult{}, err
	}
	if s.progress != nil {
		s.progress.publish(progress)
	}

	return EvaluateResult{Score: score, TotalScorePossible: attempt.TotalScorePossible}, nil
}

func (s *AttemptService) questionOnQuiz(ctx context.Context, quizID, questionID int64) (domain.Question, error) {
	questions, err := s.catalog.Questions(ctx, quizID)
	if err != nil {
		return domain.Question{}, fmt.Errorf("load questions: %w", err)
	}
	for _, q := range questions {
		if q.ID == questionID {
			return q, nil
		}
	}
	return domain.Question{}, domain.ErrQuestionNotFound
}

// newAccessToken mints the attempt's capability credential: 256 random
// bits, hex-encoded. Unguessable rather than merely collision-unlikely.
func newAccessToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
