package http

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"assessment-engine/internal/app"
	"assessment-engine/internal/domain"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WSHandler drives one attempt over a websocket: answers, navigation, review and submission.
// Navigation and the skip set live in the shared session navigator; only answers and
// terminal transitions reach the engine.
type WSHandler struct {
	engine   *app.Engine
	sessions app.SessionRepository
	log      *zap.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(engine *app.Engine, sessions app.SessionRepository, log *zap.Logger) *WSHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &WSHandler{
		engine:   engine,
		sessions: sessions,
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionID       string `json:"questionId"`
	Answer           string `json:"answer"`
	TimeSpentSeconds int    `json:"timeSpentSeconds"`
}

type gotoPayload struct {
	Position int `json:"position"`
}

type outboundMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type joinedPayload struct {
	Attempt   app.AttemptView       `json:"attempt"`
	Questions []app.AttemptQuestion `json:"questions"`
	Position  int                   `json:"position"`
}

type questionPayload struct {
	Position int                 `json:"position"`
	Question app.AttemptQuestion `json:"question"`
	Skipped  []string            `json:"skipped"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ServeWS upgrades the request after checking that userId owns attemptId.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	attemptID := r.URL.Query().Get("attemptId")
	userID := r.URL.Query().Get("userId")
	if attemptID == "" || userID == "" {
		http.Error(w, "missing attemptId or userId", http.StatusBadRequest)
		return
	}

	view, err := h.engine.GetAttempt(r.Context(), attemptID)
	if err != nil {
		status, body := statusFor(err)
		writeJSON(w, status, body)
		return
	}
	if view.UserID != userID {
		http.Error(w, "attempt belongs to another user", http.StatusForbidden)
		return
	}
	questions, err := h.engine.AttemptQuestions(r.Context(), attemptID)
	if err != nil {
		status, body := statusFor(err)
		writeJSON(w, status, body)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ids := make([]string, len(questions))
	var answered []string
	for i, q := range questions {
		ids[i] = q.Question.ID
		if q.Answered {
			answered = append(answered, q.Question.ID)
		}
	}
	nav := h.sessions.Join(attemptID, ids, answered)
	defer h.sessions.Leave(attemptID)

	send := make(chan outboundMessage, 16)
	done := make(chan struct{})
	writerDone := make(chan struct{})
	push := func(msg outboundMessage) {
		select {
		case send <- msg:
		case <-done:
		}
	}

	go func() {
		defer close(writerDone)
		for {
			select {
			case msg := <-send:
				if err := conn.WriteJSON(msg); err != nil {
					h.log.Debug("ws write error", zap.String("attempt_id", attemptID), zap.Error(err))
					return
				}
			case <-done:
				return
			}
		}
	}()

	_, position := nav.Current()
	push(outboundMessage{Type: "joined", Payload: joinedPayload{Attempt: view, Questions: questions, Position: position}})

	// The deadline timer submits the attempt server-side even if the client goes quiet. It is
	// armed from the deadline on the engine clock and re-armed while the attempt is still open.
	var (
		timerMu sync.Mutex
		timer   *time.Timer
		closed  bool
	)
	if deadline, timed := view.Deadline(); timed && view.Status == domain.StatusInProgress {
		var arm func(retry bool)
		arm = func(retry bool) {
			timerMu.Lock()
			defer timerMu.Unlock()
			if closed {
				return
			}
			wait := deadline.Sub(h.engine.Now())
			if retry && wait < time.Second {
				// auto-submit failed; back off instead of spinning
				wait = time.Second
			}
			timer = time.AfterFunc(wait, func() {
				current, err := h.engine.GetAttempt(context.Background(), attemptID)
				if err != nil {
					h.log.Error("deadline check failed", zap.String("attempt_id", attemptID), zap.Error(err))
					return
				}
				switch current.Status {
				case domain.StatusInProgress:
					arm(true)
				case domain.StatusSubmitted:
					// a submit that beat the deadline is not an expiry
					if current.CompletedAt != nil && !current.CompletedAt.Before(deadline) {
						push(outboundMessage{Type: "expired", Payload: current})
					}
				}
			})
		}
		arm(false)
	}

	question := func(_ string, pos int) outboundMessage {
		if pos < 0 || pos >= len(questions) {
			return errorMessage("empty", "attempt has no questions")
		}
		return outboundMessage{Type: "question", Payload: questionPayload{Position: pos, Question: questions[pos], Skipped: nav.Skipped()}}
	}

	ctx := r.Context()
	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				push(errorMessage("validation", "invalid answer payload"))
				continue
			}
			resp, err := h.engine.RecordAnswer(ctx, attemptID, payload.QuestionID, payload.Answer, payload.TimeSpentSeconds)
			if err != nil {
				push(errorFrom(err))
				continue
			}
			nav.MarkAnswered(payload.QuestionID)
			if resp.Position >= 0 && resp.Position < len(questions) {
				questions[resp.Position].UserAnswer = resp.UserAnswer
				questions[resp.Position].Answered = true
			}
			push(outboundMessage{Type: "answerSaved", Payload: savedAnswerOf(resp)})
		case "next":
			push(question(nav.Next()))
		case "prev":
			push(question(nav.Prev()))
		case "skip":
			push(question(nav.Skip()))
		case "goto":
			var payload gotoPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				push(errorMessage("validation", "invalid goto payload"))
				continue
			}
			id, pos, err := nav.Goto(payload.Position)
			if err != nil {
				push(errorFrom(err))
				continue
			}
			push(question(id, pos))
		case "review":
			review, err := h.engine.Review(ctx, attemptID, nav.Skipped())
			if err != nil {
				push(errorFrom(err))
				continue
			}
			push(outboundMessage{Type: "review", Payload: review})
		case "submit":
			attempt, err := h.engine.Finalize(ctx, attemptID)
			if err != nil {
				push(errorFrom(err))
				continue
			}
			push(outboundMessage{Type: "finalized", Payload: attempt})
		case "abandon":
			attempt, err := h.engine.Abandon(ctx, attemptID)
			if err != nil {
				push(errorFrom(err))
				continue
			}
			push(outboundMessage{Type: "abandoned", Payload: attempt})
		case "status":
			status, err := h.engine.GetAttempt(ctx, attemptID)
			if err != nil {
				push(errorFrom(err))
				continue
			}
			push(outboundMessage{Type: "status", Payload: status})
		default:
			push(errorMessage("validation", "unsupported message type"))
		}
	}

	timerMu.Lock()
	closed = true
	if timer != nil {
		timer.Stop()
	}
	timerMu.Unlock()
	close(done)
	<-writerDone
}

func errorMessage(code, message string) outboundMessage {
	return outboundMessage{Type: "error", Payload: errorPayload{Code: code, Message: message}}
}

func errorFrom(err error) outboundMessage {
	_, body := statusFor(err)
	return errorMessage(body.Code, body.Message)
}
