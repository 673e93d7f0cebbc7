package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"live-quiz-service/internal/domain"
)

type recordingSubmitter struct {
	mu    sync.Mutex
	calls []submitCall
	err   error
}

type submitCall struct {
	quizID    string
	login     string
	submitted bool
	answers   int
}

func (s *recordingSubmitter) SaveForLiveMode(_ context.Context, quizID string, submission domain.QuizSubmission, login string, submitted bool) (domain.QuizSubmission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, submitCall{quizID: quizID, login: login, submitted: submitted, answers: len(submission.SubmittedAnswers)})
	if s.err != nil {
		return domain.QuizSubmission{}, s.err
	}
	submission.ID = "s1"
	submission.Submitted = submitted
	return submission, nil
}

func TestWebSocketSubmitFlow(t *testing.T) {
	submitter := &recordingSubmitter{}
	wsHandler := NewWSHandler(submitter, nil, nil)
	server := newServer(wsHandler)
	defer server.Close()

	conn := dial(t, server, "quiz-1", "alice")
	defer conn.Close()

	submit := map[string]any{
		"type": "submit",
		"payload": map[string]any{
			"submittedAnswers": []map[string]any{
				{"questionId": "q1", "kind": "multiple-choice", "selectedOptions": []string{"o2"}},
			},
		},
	}
	if err := conn.WriteJSON(submit); err != nil {
		t.Fatalf("write submit: %v", err)
	}

	typ, payload := readNext(t, conn)
	if typ != "submission" {
		t.Fatalf("expected submission, got %s (%v)", typ, payload)
	}
	if payload["submitted"] != true {
		t.Fatalf("expected submitted flag in reply, got %v", payload)
	}

	submitter.mu.Lock()
	defer submitter.mu.Unlock()
	if len(submitter.calls) != 1 {
		t.Fatalf("expected one call, got %d", len(submitter.calls))
	}
	call := submitter.calls[0]
	if call.quizID != "quiz-1" || call.login != "alice" || !call.submitted || call.answers != 1 {
		t.Fatalf("unexpected call %+v", call)
	}
}

func TestWebSocketRejectedSave(t *testing.T) {
	submitter := &recordingSubmitter{err: domain.ErrQuizInactive}
	server := newServer(NewWSHandler(submitter, nil, nil))
	defer server.Close()

	conn := dial(t, server, "quiz-1", "alice")
	defer conn.Close()

	if err := conn.WriteJSON(map[string]any{"type": "save", "payload": map[string]any{}}); err != nil {
		t.Fatalf("write save: %v", err)
	}
	typ, payload := readNext(t, conn)
	if typ != "error" || payload["message"] != domain.ErrQuizInactive.Error() {
		t.Fatalf("expected inactive error, got %s %v", typ, payload)
	}

	if err := conn.WriteJSON(map[string]any{"type": "answer"}); err != nil {
		t.Fatalf("write answer: %v", err)
	}
	if typ, _ := readNext(t, conn); typ != "error" {
		t.Fatalf("expected error for unsupported type, got %s", typ)
	}
}

func TestPushToUserAndBroadcast(t *testing.T) {
	wsHandler := NewWSHandler(&recordingSubmitter{}, nil, nil)
	server := newServer(wsHandler)
	defer server.Close()

	alice := dial(t, server, "quiz-1", "alice")
	defer alice.Close()
	bob := dial(t, server, "quiz-1", "bob")
	defer bob.Close()
	waitForClients(t, wsHandler, "quiz-1", 2)

	ctx := context.Background()
	if err := wsHandler.SendToUser(ctx, "bob", "/topic/exercise/quiz-1/participation", map[string]string{"id": "p1"}); err != nil {
		t.Fatalf("send to user: %v", err)
	}
	var msg struct {
		Type    string            `json:"type"`
		Topic   string            `json:"topic"`
		Payload map[string]string `json:"payload"`
	}
	_ = bob.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := bob.ReadJSON(&msg); err != nil {
		t.Fatalf("read bob: %v", err)
	}
	if msg.Type != "participation" || msg.Topic != "/topic/exercise/quiz-1/participation" || msg.Payload["id"] != "p1" {
		t.Fatalf("unexpected message for bob: %+v", msg)
	}

	if err := wsHandler.SendQuizToSubscribers(ctx, domain.QuizExercise{ID: "quiz-1", Title: "Arithmetic"}); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	for _, conn := range []*websocket.Conn{alice, bob} {
		typ, payload := readNext(t, conn)
		if typ != "quiz" || payload["title"] != "Arithmetic" {
			t.Fatalf("expected quiz broadcast, got %s %v", typ, payload)
		}
	}

	if err := wsHandler.SendToUser(ctx, "carol", "/topic/exercise/quiz-1/participation", nil); err != nil {
		t.Fatalf("unknown user must not fail: %v", err)
	}
}

func TestServeWSRequiresParams(t *testing.T) {
	server := newServer(NewWSHandler(&recordingSubmitter{}, nil, nil))
	defer server.Close()

	resp, err := http.Get(server.URL + "/ws?quizId=quiz-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func newServer(h *WSHandler) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.ServeWS)
	return httptest.NewServer(mux)
}

func dial(t *testing.T, server *httptest.Server, quizID, login string) *websocket.Conn {
	t.Helper()
	u := "ws" + server.URL[len("http"):] + "/ws?quizId=" + quizID + "&userId=" + login
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func waitForClients(t *testing.T, h *WSHandler, quizID string, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for h.ConnectedClients(quizID) < n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, got %d", n, h.ConnectedClients(quizID))
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func readNext(t *testing.T, conn *websocket.Conn) (string, map[string]any) {
	t.Helper()
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	return msg.Type, msg.Payload
}
