package domain

import "errors"

var (
	// ErrUserNotFound is returned when the caller identity does not resolve to a user.
	ErrUserNotFound = errors.New("user not found")
	// ErrQuizNotFound indicates the quiz, or any link of its lesson chain, is absent or soft-deleted.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuizHidden indicates the quiz exists but is not visible to users.
	ErrQuizHidden = errors.New("quiz is not available")
	// ErrTopicNotFound indicates the topic is absent or soft-deleted.
	ErrTopicNotFound = errors.New("topic not found")
	// ErrModuleNotFound indicates the module is absent or soft-deleted.
	ErrModuleNotFound = errors.New("module not found")
	// ErrQuestionNotFound indicates a question id does not belong to the attempt's quiz.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrAttemptNotFound indicates the access token does not resolve to an attempt.
	ErrAttemptNotFound = errors.New("quiz attempt not found")
	// ErrAttemptClosed is returned when a save is attempted on a closed attempt.
	ErrAttemptClosed = errors.New("quiz attempt is closed")
	// ErrAlreadySubmitted is returned when a closed attempt is fetched or re-evaluated.
	ErrAlreadySubmitted = errors.New("quiz attempt already submitted")
	// ErrAnswerNotAnOption indicates a selected answer is not among the question's four options.
	ErrAnswerNotAnOption = errors.New("selected answer is not one of the question options")
	// ErrDuplicateResponse indicates the same question id appears twice in an evaluation payload.
	ErrDuplicateResponse = errors.New("duplicate question in responses")
	// ErrInvalidPercentage indicates a manual progress override outside [0,100].
	ErrInvalidPercentage = errors.New("progress percentage must be between 0 and 100")
	// ErrUnknownAction indicates an unrecognized progress action.
	ErrUnknownAction = errors.New("unknown progress action")
	// ErrProgressNotFound indicates no progress record exists for the (user, topic) pair.
	ErrProgressNotFound = errors.New("progress record not found")
)

// Kind buckets every service error for callers that map failures onto a
// transport (HTTP statuses, RPC codes). Unknown errors classify as
// KindInternal.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindForbidden
	KindInvalidInput
	KindUnauthorized
	KindConflict
)

// KindOf classifies an error into its taxonomy bucket.
func KindOf(err error) Kind {
	switch {
	case errors.Is(err, ErrQuizNotFound),
		errors.Is(err, ErrTopicNotFound),
		errors.Is(err, ErrModuleNotFound),
		errors.Is(err, ErrQuestionNotFound),
		errors.Is(err, ErrAttemptNotFound),
		errors.Is(err, ErrProgressNotFound):
		return KindNotFound
	case errors.Is(err, ErrQuizHidden), errors.Is(err, ErrAttemptClosed):
		return KindForbidden
	case errors.Is(err, ErrAnswerNotAnOption),
		errors.Is(err, ErrDuplicateResponse),
		errors.Is(err, ErrInvalidPercentage),
		errors.Is(err, ErrUnknownAction):
		return KindInvalidInput
	case errors.Is(err, ErrUserNotFound):
		return KindUnauthorized
	case errors.Is(err, ErrAlreadySubmitted):
		return KindConflict
	default:
		return KindInternal
	}
}
