package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"finlearn-attempt-service/internal/app"
	"finlearn-attempt-service/internal/domain"
	"finlearn-attempt-service/internal/infra/memory"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T) (*httptest.Server, *app.ProgressService) {
	t.Helper()

	catalog := memory.NewStaticCatalog()
	catalog.AddQuiz(domain.QuizPath{
		Quiz: domain.Quiz{
			ID:              7,
			TopicID:         3,
			ModuleID:        2,
			Title:           "Budgeting Basics",
			DurationMinutes: 10,
			IsVisible:       true,
		},
		LessonID: 1,
	},
		domain.Question{
			ID: 1, QuizID: 7, Text: "first",
			Option1: "A", Option2: "B", Option3: "C", Option4: "D",
			CorrectAnswer: "A", Points: 10,
		},
		domain.Question{
			ID: 2, QuizID: 7, Text: "second",
			Option1: "X", Option2: "Y", Option3: "Z", Option4: "W",
			CorrectAnswer: "Y", Points: 5,
		},
	)
	users := memory.NewStaticUsers(42)
	progressStore := memory.NewProgressStore()
	attemptStore := memory.NewAttemptStore(progressStore)

	progress := app.NewProgressService(catalog, users, progressStore)
	attempts := app.NewAttemptService(catalog, users, attemptStore, progress)

	handler := NewHandler(attempts, progress, zap.NewNop())
	wsHandler := NewWSHandler(progress, zap.NewNop())

	mux := http.NewServeMux()
	handler.Register(mux)
	mux.HandleFunc("/ws/progress", wsHandler.ServeWS)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, progress
}

func doJSON(t *testing.T, server *httptest.Server, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, server.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "42")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, decoded
}

func startAttempt(t *testing.T, server *httptest.Server) string {
	t.Helper()
	resp, body := doJSON(t, server, http.MethodPost, "/api/start_quiz", map[string]any{"quiz_id": 7})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %v", resp.StatusCode, body)
	}
	token, _ := body["quiz_attempt_access_token"].(string)
	if token == "" {
		t.Fatalf("expected access token in %v", body)
	}
	return token
}

func TestStartQuizEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	resp, body := doJSON(t, server, http.MethodPost, "/api/start_quiz", map[string]any{"quiz_id": 7})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if body["total_questions"].(float64) != 2 {
		t.Fatalf("expected 2 questions, got %v", body["total_questions"])
	}
}

func TestStartQuizRequiresIdentity(t *testing.T) {
	server, _ := newTestServer(t)

	payload, _ := json.Marshal(map[string]any{"quiz_id": 7})
	resp, err := http.Post(server.URL+"/api/start_quiz", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without X-User-ID, got %d", resp.StatusCode)
	}
}

func TestStartQuizUnknownQuiz(t *testing.T) {
	server, _ := newTestServer(t)

	resp, body := doJSON(t, server, http.MethodPost, "/api/start_quiz", map[string]any{"quiz_id": 999})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	if body["error"] == "" {
		t.Fatalf("expected error body, got %v", body)
	}
}

func TestQuizDetailsEndpoint(t *testing.T) {
	server, _ := newTestServer(t)
	token := startAttempt(t, server)

	resp, body := doJSON(t, server, http.MethodGet, "/api/quiz_details/"+token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", resp.StatusCode, body)
	}
	if body["quiz_title"] != "Budgeting Basics" {
		t.Fatalf("unexpected title: %v", body["quiz_title"])
	}
	questions, ok := body["questions"].([]any)
	if !ok || len(questions) != 2 {
		t.Fatalf("expected 2 questions, got %v", body["questions"])
	}
	first := questions[0].(map[string]any)
	if _, leaked := first["correct_answer"]; leaked {
		t.Fatal("details payload must not carry correct answers")
	}
}

func TestSaveAnswerEndpoint(t *testing.T) {
	server, _ := newTestServer(t)
	token := startAttempt(t, server)

	resp, _ := doJSON(t, server, http.MethodPost, "/api/save_answer", map[string]any{
		"quiz_attempt_access_token": token,
		"question_id":               1,
		"selected_answer":           "B",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	// Option outside the question's four choices.
	resp, body := doJSON(t, server, http.MethodPost, "/api/save_answer", map[string]any{
		"quiz_attempt_access_token": token,
		"question_id":               1,
		"selected_answer":           "E",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %v", resp.StatusCode, body)
	}
}

func TestEvaluateQuizEndpoint(t *testing.T) {
	server, _ := newTestServer(t)
	token := startAttempt(t, server)

	payload := map[string]any{
		"quiz_attempt_access_token": token,
		"responses": []map[string]any{
			{"question_id": 1, "selected_option": "A"},
			{"question_id": 2, "selected_option": "Z"},
		},
	}
	resp, body := doJSON(t, server, http.MethodPost, "/api/evaluate_quiz", payload)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", resp.StatusCode, body)
	}
	if body["message"] != "Quiz submitted successfully" {
		t.Fatalf("unexpected message: %v", body["message"])
	}
	if body["score"].(float64) != 10 || body["total_score_possible"].(float64) != 15 {
		t.Fatalf("unexpected scores: %v", body)
	}

	// A second submission conflicts.
	resp, _ = doJSON(t, server, http.MethodPost, "/api/evaluate_quiz", payload)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 on resubmit, got %d", resp.StatusCode)
	}

	// Details on a closed attempt also conflict.
	resp, _ = doJSON(t, server, http.MethodGet, "/api/quiz_details/"+token, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 on closed details, got %d", resp.StatusCode)
	}

	// Saving onto a closed attempt is forbidden.
	resp, _ = doJSON(t, server, http.MethodPost, "/api/save_answer", map[string]any{
		"quiz_attempt_access_token": token,
		"question_id":               1,
		"selected_answer":           "A",
	})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 on closed save, got %d", resp.StatusCode)
	}
}

func TestProgressEndpoints(t *testing.T) {
	server, _ := newTestServer(t)

	resp, body := doJSON(t, server, http.MethodPost, "/api/user/progress", map[string]any{
		"module_id": 2,
		"topic_id":  3,
		"action":    "accessed",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", resp.StatusCode, body)
	}
	if body["progress_percentage"].(float64) != 50 {
		t.Fatalf("expected 50%%, got %v", body["progress_percentage"])
	}

	resp, body = doJSON(t, server, http.MethodGet, "/api/user/42/module/2/progress", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if body["user_id"].(float64) != 42 || body["module_id"].(float64) != 2 {
		t.Fatalf("unexpected envelope: %v", body)
	}
	records, ok := body["progress_records"].([]any)
	if !ok || len(records) != 1 {
		t.Fatalf("expected one record, got %v", body["progress_records"])
	}

	resp, body = doJSON(t, server, http.MethodGet, "/api/user/42/topic/3/progress", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if body["topic_id"].(float64) != 3 {
		t.Fatalf("unexpected record: %v", body)
	}
}

func TestProgressUnknownAction(t *testing.T) {
	server, _ := newTestServer(t)

	resp, _ := doJSON(t, server, http.MethodPost, "/api/user/progress", map[string]any{
		"module_id": 2,
		"topic_id":  3,
		"action":    "teleported",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestProgressInvalidOverride(t *testing.T) {
	server, _ := newTestServer(t)

	resp, _ := doJSON(t, server, http.MethodPost, "/api/user/progress", map[string]any{
		"module_id":           2,
		"topic_id":            3,
		"action":              "accessed",
		"progress_percentage": 140,
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestProgressNotFound(t *testing.T) {
	server, _ := newTestServer(t)

	resp, _ := doJSON(t, server, http.MethodGet, "/api/user/42/topic/3/progress", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 before any interaction, got %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, server, http.MethodGet, "/api/user/42/module/2/progress", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for module with no records, got %d", resp.StatusCode)
	}
}
