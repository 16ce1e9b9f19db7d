package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"finlearn-attempt-service/internal/app"
	"finlearn-attempt-service/internal/domain"
	"go.uber.org/zap"
)

// Handler exposes the attempt lifecycle and progress tracking as JSON
// endpoints. Caller identity arrives in the X-User-ID header; the service
// layer decides whether that user exists.
type Handler struct {
	attempts *app.AttemptService
	progress *app.ProgressService
	logger   *zap.Logger
}

func NewHandler(attempts *app.AttemptService, progress *app.ProgressService, logger *zap.Logger) *Handler {
	return &Handler{attempts: attempts, progress: progress, logger: logger}
}

// Register mounts all routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/start_quiz", h.startQuiz)
	mux.HandleFunc("GET /api/quiz_details/{token}", h.quizDetails)
	mux.HandleFunc("POST /api/save_answer", h.saveAnswer)
	mux.HandleFunc("POST /api/evaluate_quiz", h.evaluateQuiz)
	mux.HandleFunc("POST /api/user/progress", h.trackProgress)
	mux.HandleFunc("GET /api/user/{user_id}/module/{module_id}/progress", h.moduleProgress)
	mux.HandleFunc("GET /api/user/{user_id}/topic/{topic_id}/progress", h.topicProgress)
}

type startQuizRequest struct {
	QuizID int64 `json:"quiz_id"`
}

type startQuizResponse struct {
	AccessToken    string `json:"quiz_attempt_access_token"`
	TotalQuestions int    `json:"total_questions"`
}

func (h *Handler) startQuiz(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.callerID(w, r)
	if !ok {
		return
	}
	var req startQuizRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.QuizID <= 0 {
		h.writeError(w, http.StatusBadRequest, "quiz_id is required")
		return
	}

	result, err := h.attempts.Start(r.Context(), userID, req.QuizID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, startQuizResponse{
		AccessToken:    result.AccessToken,
		TotalQuestions: result.TotalQuestions,
	})
}

type questionPayload struct {
	QuestionID     int64   `json:"question_id"`
	QuestionText   string  `json:"question_text"`
	Option1        string  `json:"option1"`
	Option2        string  `json:"option2"`
	Option3        string  `json:"option3"`
	Option4        string  `json:"option4"`
	ScorePoints    int     `json:"score_points"`
	SelectedAnswer *string `json:"selected_answer"`
}

type quizDetailsResponse struct {
	QuizTitle       string            `json:"quiz_title"`
	DurationMinutes int               `json:"duration_minutes"`
	TotalQuestions  int               `json:"total_questions"`
	Questions       []questionPayload `json:"questions"`
}

func (h *Handler) quizDetails(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.callerID(w, r); !ok {
		return
	}
	token := r.PathValue("token")
	if token == "" {
		h.writeError(w, http.StatusBadRequest, "access token is required")
		return
	}

	details, err := h.attempts.Details(r.Context(), token)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	questions := make([]questionPayload, 0, len(details.Questions))
	for _, q := range details.Questions {
		questions = append(questions, questionPayload{
			QuestionID:     q.QuestionID,
			QuestionText:   q.Text,
			Option1:        q.Option1,
			Option2:        q.Option2,
			Option3:        q.Option3,
			Option4:        q.Option4,
			ScorePoints:    q.Points,
			SelectedAnswer: q.SelectedAnswer,
		})
	}
	h.writeJSON(w, http.StatusOK, quizDetailsResponse{
		QuizTitle:       details.QuizTitle,
		DurationMinutes: details.DurationMinutes,
		TotalQuestions:  details.TotalQuestions,
		Questions:       questions,
	})
}

type saveAnswerRequest struct {
	AccessToken    string `json:"quiz_attempt_access_token"`
	QuestionID     int64  `json:"question_id"`
	SelectedAnswer string `json:"selected_answer"`
}

func (h *Handler) saveAnswer(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.callerID(w, r); !ok {
		return
	}
	var req saveAnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.AccessToken == "" || req.QuestionID <= 0 {
		h.writeError(w, http.StatusBadRequest, "quiz_attempt_access_token and question_id are required")
		return
	}

	if err := h.attempts.SaveAnswer(r.Context(), req.AccessToken, req.QuestionID, req.SelectedAnswer); err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"message": "Answer saved successfully"})
}

type responsePayload struct {
	QuestionID     int64  `json:"question_id"`
	SelectedOption string `json:"selected_option"`
}

type evaluateQuizRequest struct {
	AccessToken string            `json:"quiz_attempt_access_token"`
	Responses   []responsePayload `json:"responses"`
}

type evaluateQuizResponse struct {
	Message            string `json:"message"`
	Score              int    `json:"score"`
	TotalScorePossible int    `json:"total_score_possible"`
}

func (h *Handler) evaluateQuiz(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.callerID(w, r); !ok {
		return
	}
	var req evaluateQuizRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.AccessToken == "" {
		h.writeError(w, http.StatusBadRequest, "quiz_attempt_access_token is required")
		return
	}

	responses := make([]app.Response, 0, len(req.Responses))
	for _, resp := range req.Responses {
		responses = append(responses, app.Response{
			QuestionID:     resp.QuestionID,
			SelectedOption: resp.SelectedOption,
		})
	}

	result, err := h.attempts.Evaluate(r.Context(), req.AccessToken, responses)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, evaluateQuizResponse{
		Message:            "Quiz submitted successfully",
		Score:              result.Score,
		TotalScorePossible: result.TotalScorePossible,
	})
}

type trackProgressRequest struct {
	ModuleID           int64  `json:"module_id"`
	TopicID            int64  `json:"topic_id"`
	Action             string `json:"action"`
	ProgressPercentage *int   `json:"progress_percentage"`
}

func (h *Handler) trackProgress(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.callerID(w, r)
	if !ok {
		return
	}
	var req trackProgressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ModuleID <= 0 || req.TopicID <= 0 {
		h.writeError(w, http.StatusBadRequest, "module_id and topic_id are required")
		return
	}
	action, err := domain.ParseAction(req.Action)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	progress, err := h.progress.Track(r.Context(), userID, req.ModuleID, req.TopicID, action, req.ProgressPercentage)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, progressPayload(progress))
}

func (h *Handler) moduleProgress(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.callerID(w, r); !ok {
		return
	}
	userID, err := pathID(r, "user_id")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid user_id")
		return
	}
	moduleID, err := pathID(r, "module_id")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid module_id")
		return
	}

	records, err := h.progress.ModuleProgress(r.Context(), userID, moduleID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if len(records) == 0 {
		h.writeDomainError(w, domain.ErrProgressNotFound)
		return
	}
	payload := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		payload = append(payload, progressPayload(rec))
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"user_id":          userID,
		"module_id":        moduleID,
		"progress_records": payload,
	})
}

func (h *Handler) topicProgress(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.callerID(w, r); !ok {
		return
	}
	userID, err := pathID(r, "user_id")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid user_id")
		return
	}
	topicID, err := pathID(r, "topic_id")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid topic_id")
		return
	}

	record, err := h.progress.TopicProgress(r.Context(), userID, topicID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, progressPayload(record))
}

func progressPayload(p domain.TopicProgress) map[string]any {
	return map[string]any{
		"user_id":             p.UserID,
		"module_id":           p.ModuleID,
		"topic_id":            p.TopicID,
		"progress_percentage": p.Percentage,
		"started_at":          p.StartedAt,
		"completed_at":        p.CompletedAt,
		"last_accessed_at":    p.LastAccessedAt,
	}
}

// callerID reads the authenticated user id from X-User-ID. A missing or
// malformed header is a 401; whether the user exists is the service's call.
func (h *Handler) callerID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := r.Header.Get("X-User-ID")
	if raw == "" {
		h.writeError(w, http.StatusUnauthorized, "missing X-User-ID header")
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		h.writeError(w, http.StatusUnauthorized, "invalid X-User-ID header")
		return 0, false
	}
	return id, true
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(r.PathValue(name), 10, 64)
}

// writeDomainError maps a service error to a status without leaking
// internals; unknown errors are logged and reported as a plain 500.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch domain.KindOf(err) {
	case domain.KindNotFound:
		status = http.StatusNotFound
	case domain.KindForbidden:
		status = http.StatusForbidden
	case domain.KindInvalidInput:
		status = http.StatusBadRequest
	case domain.KindUnauthorized:
		status = http.StatusUnauthorized
	case domain.KindConflict:
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.Error(err))
		h.writeError(w, status, "internal server error")
		return
	}
	h.writeError(w, status, err.Error())
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("write response", zap.Error(err))
	}
}
