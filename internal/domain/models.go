package domain

import "time"

// Quiz is the attemptable unit of the content catalog. The catalog is
// read-only from this service's point of view; invisible or soft-deleted
// quizzes are never attemptable.
type Quiz struct {
	ID              int64  `json:"quizId"`
	TopicID         int64  `json:"topicId"`
	ModuleID        int64  `json:"moduleId"`
	Title           string `json:"quizTitle"`
	DurationMinutes int    `json:"durationMinutes"`
	IsVisible       bool   `json:"isVisible"`
}

// QuizPath is a quiz with its lesson chain fully resolved. A QuizPath only
// exists when every link (topic, module, lesson) is present and not
// soft-deleted.
type QuizPath struct {
	Quiz
	LessonID int64 `json:"lessonId"`
}

// Question models an MCQ question with exactly four options and one
// correct answer drawn from them.
type Question struct {
	ID            int64  `json:"questionId"`
	QuizID        int64  `json:"quizId"`
	Text          string `json:"questionText"`
	Option1       string `json:"option1"`
	Option2       string `json:"option2"`
	Option3       string `json:"option3"`
	Option4       string `json:"option4"`
	CorrectAnswer string `json:"-"`
	Points        int    `json:"scorePoints"` // defaults to 1 if zero
}

// Options returns the four answer options in declaration order.
func (q Question) Options() [4]string {
	return [4]string{q.Option1, q.Option2, q.Option3, q.Option4}
}

// HasOption reports whether answer is one of the question's four options.
func (q Question) HasOption(answer string) bool {
	return answer == q.Option1 || answer == q.Option2 || answer == q.Option3 || answer == q.Option4
}

// PointValue returns the question's score weight, defaulting to 1.
func (q Question) PointValue() int {
	if q.Points <= 0 {
		return 1
	}
	return q.Points
}

// QuizAttempt is one user's run at one quiz. The access token is the only
// external reference to the attempt; question counts and the possible
// score are snapshots taken at start time and never recomputed.
type QuizAttempt struct {
	ID                 int64      `json:"-"`
	UserID             int64      `json:"userId"`
	QuizID             int64      `json:"quizId"`
	TopicID            int64      `json:"topicId"`
	ModuleID           int64      `json:"moduleId"`
	AccessToken        string     `json:"quizAttemptAccessToken"`
	TotalQuestions     int        `json:"totalQuestions"`
	TotalScorePossible int        `json:"totalScorePossible"`
	AttemptedQuestions int        `json:"attemptedQuestions"`
	CorrectAnswers     int        `json:"correctAnswers"`
	IncorrectAnswers   int        `json:"incorrectAnswers"`
	SkippedQuestions   int        `json:"skippedQuestions"`
	ScoreEarned        int        `json:"scoreEarned"`
	TimeTakenSeconds   int        `json:"timeTakenSeconds"`
	StartedAt          time.Time  `json:"startedAt"`
	CompletedAt        *time.Time `json:"completedAt"`
}

// Closed reports whether the attempt has been evaluated. Closed attempts
// reject every further mutation.
func (a QuizAttempt) Closed() bool {
	return a.CompletedAt != nil
}

// QuestionAttempt is the answer a user saved for one question of one
// attempt. There is at most one row per (attempt, question); re-answering
// overwrites in place.
type QuestionAttempt struct {
	ID             int64     `json:"-"`
	AttemptID      int64     `json:"-"`
	UserID         int64     `json:"userId"`
	QuestionID     int64     `json:"questionId"`
	SelectedAnswer string    `json:"selectedAnswer"`
	IsCorrect      bool      `json:"-"`
	AttemptedAt    time.Time `json:"attemptedAt"`
}

// TopicProgress is the single per-(user, topic) completion record. It is
// created lazily on first interaction and never deleted.
type TopicProgress struct {
	ID             int64      `json:"progressId"`
	UserID         int64      `json:"userId"`
	ModuleID       int64      `json:"moduleId"`
	TopicID        int64      `json:"topicId"`
	StartedAt      *time.Time `json:"startedAt"`
	CompletedAt    *time.Time `json:"completedAt"`
	LastAccessedAt time.Time  `json:"lastAccessedAt"`
	Percentage     int        `json:"progressPercentage"`
}
