package http

import (
	"context"
	"net/http"
	"testing"
	"time"

	"assessment-engine/internal/domain"
	"github.com/gorilla/websocket"
)

func TestWebSocketAttemptFlow(t *testing.T) {
	f := newFixture(t)
	attempt, err := f.services.Engine.StartAttempt(context.Background(), domain.Owner{UserID: "u1", EnrollmentID: "e1"}, "quiz-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	u := "ws" + f.server.URL[len("http"):] + "/ws/attempts?attemptId=" + attempt.ID + "&userId=u1"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	_, joined := readNext(conn, t, "joined")
	if questions, _ := joined["questions"].([]any); len(questions) != 3 {
		t.Fatalf("expected 3 questions in joined payload, got %v", joined["questions"])
	}

	send(conn, t, "answer", map[string]any{"questionId": "q1", "answer": "o2", "timeSpentSeconds": 3})
	_, saved := readNext(conn, t, "answerSaved")
	if saved["questionId"] != "q1" {
		t.Fatalf("unexpected ack %v", saved)
	}

	send(conn, t, "next", nil)
	_, q := readNext(conn, t, "question")
	if q["position"].(float64) != 1 {
		t.Fatalf("expected position 1, got %v", q["position"])
	}

	send(conn, t, "skip", nil)
	_, q = readNext(conn, t, "question")
	if skipped, _ := q["skipped"].([]any); len(skipped) != 1 || skipped[0] != "q2" {
		t.Fatalf("expected q2 skipped, got %v", q["skipped"])
	}

	send(conn, t, "review", nil)
	_, review := readNext(conn, t, "review")
	if su, _ := review["skippedUnanswered"].([]any); len(su) != 1 {
		t.Fatalf("expected one skipped-unanswered question, got %v", review)
	}
	if un, _ := review["unanswered"].([]any); len(un) != 1 || un[0] != "q3" {
		t.Fatalf("expected q3 unseen, got %v", review["unanswered"])
	}

	send(conn, t, "submit", nil)
	_, final := readNext(conn, t, "finalized")
	if final["score"].(float64) != 1 || final["passed"].(bool) {
		t.Fatalf("unexpected finalized payload %v", final)
	}

	send(conn, t, "answer", map[string]any{"questionId": "q3", "answer": "o1"})
	_, errPayload := readNext(conn, t, "error")
	if errPayload["code"] != "attempt_not_active" {
		t.Fatalf("expected attempt_not_active, got %v", errPayload)
	}
}

func TestWebSocketDeadlinePushesSubmittedAttempt(t *testing.T) {
	f := newFixture(t)
	attempt, err := f.services.Engine.StartAttempt(context.Background(), domain.Owner{UserID: "u1"}, "timed-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	f.clock.Follow()
	f.clock.Advance(58*time.Second + 500*time.Millisecond)

	u := "ws" + f.server.URL[len("http"):] + "/ws/attempts?attemptId=" + attempt.ID + "&userId=u1"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	_, joined := readNext(conn, t, "joined")
	view, _ := joined["attempt"].(map[string]any)
	if view["status"] != string(domain.StatusInProgress) {
		t.Fatalf("expected attempt in progress on join, got %v", view["status"])
	}

	started := time.Now()
	_, expired := readNext(conn, t, "expired")
	if expired["status"] != string(domain.StatusSubmitted) {
		t.Fatalf("expected submitted attempt in expired frame, got %v", expired["status"])
	}
	if waited := time.Since(started); waited < 500*time.Millisecond {
		t.Fatalf("expired frame arrived %v after join, before the deadline", waited)
	}
}

func TestWebSocketRejectsOtherUser(t *testing.T) {
	f := newFixture(t)
	attempt, err := f.services.Engine.StartAttempt(context.Background(), domain.Owner{UserID: "u1"}, "quiz-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	u := "ws" + f.server.URL[len("http"):] + "/ws/attempts?attemptId=" + attempt.ID + "&userId=u2"
	_, res, err := websocket.DefaultDialer.Dial(u, nil)
	if err == nil {
		t.Fatalf("expected dial to fail")
	}
	if res == nil || res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", res)
	}
}

func send(conn *websocket.Conn, t *testing.T, typ string, payload any) {
	t.Helper()
	if err := conn.WriteJSON(map[string]any{"type": typ, "payload": payload}); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

func readNext(conn *websocket.Conn, t *testing.T, expect string) (string, map[string]any) {
	t.Helper()
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if expect != "" && msg.Type != expect {
		t.Fatalf("expected type %s, got %s (%v)", expect, msg.Type, msg.Payload)
	}
	return msg.Type, msg.Payload
}
