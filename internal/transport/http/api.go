package http

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"assessment-engine/internal/app"
	"assessment-engine/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// API serves the REST surface of the engine.
type API struct {
	services    *app.Services
	log         *zap.Logger
	defaultTest string
	limiter     *visitorLimiter
}

// APIOption customizes NewAPI.
type APIOption func(*API)

// WithDefaultTest substitutes testID when a start request names no test definition.
func WithDefaultTest(testID string) APIOption {
	return func(a *API) { a.defaultTest = testID }
}

// WithVerifyLimit throttles certificate verification per client address.
func WithVerifyLimit(perSecond float64, burst int) APIOption {
	return func(a *API) { a.limiter = newVisitorLimiter(rate.Limit(perSecond), burst) }
}

func WithAPILogger(log *zap.Logger) APIOption {
	return func(a *API) {
		if log != nil {
			a.log = log
		}
	}
}

func NewAPI(services *app.Services, opts ...APIOption) *API {
	a := &API{
		services: services,
		log:      zap.NewNop(),
		limiter:  newVisitorLimiter(5, 10),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Register mounts every route on mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/attempts", a.startAttempt)
	mux.HandleFunc("GET /api/attempts", a.listAttempts)
	mux.HandleFunc("GET /api/attempts/{id}", a.getAttempt)
	mux.HandleFunc("GET /api/attempts/{id}/questions", a.attemptQuestions)
	mux.HandleFunc("PUT /api/attempts/{id}/responses/{questionId}", a.recordAnswer)
	mux.HandleFunc("POST /api/attempts/{id}/review", a.review)
	mux.HandleFunc("POST /api/attempts/{id}/finalize", a.finalize)
	mux.HandleFunc("POST /api/attempts/{id}/abandon", a.abandon)
	mux.HandleFunc("GET /api/attempts/{id}/certificate", a.attemptCertificate)
	mux.HandleFunc("GET /api/courses/{courseId}/daily-tests/next", a.nextDay)
	mux.HandleFunc("GET /api/courses/{courseId}/grandtest/eligibility", a.eligibility)
	mux.HandleFunc("GET /api/courses/{courseId}/completion", a.completion)
	mux.HandleFunc("POST /api/courses/{courseId}/lessons/{lessonId}/complete", a.completeLesson)
	mux.HandleFunc("GET /api/certificates/verify", a.verify)
	mux.HandleFunc("POST /api/certificates/{id}/invalidate", a.invalidate)
}

type startRequest struct {
	UserID           string `json:"userId"`
	EnrollmentID     string `json:"enrollmentId"`
	TestDefinitionID string `json:"testDefinitionId"`
}

type answerRequest struct {
	Answer           string `json:"answer"`
	TimeSpentSeconds int    `json:"timeSpentSeconds"`
}

// savedAnswer acknowledges a response without revealing correctness before finalize.
type savedAnswer struct {
	AttemptID        string     `json:"attemptId"`
	QuestionID       string     `json:"questionId"`
	Position         int        `json:"position"`
	UserAnswer       string     `json:"userAnswer"`
	TimeSpentSeconds int        `json:"timeSpentSeconds"`
	AnsweredAt       *time.Time `json:"answeredAt,omitempty"`
}

func savedAnswerOf(r domain.Response) savedAnswer {
	return savedAnswer{
		AttemptID:        r.AttemptID,
		QuestionID:       r.QuestionID,
		Position:         r.Position,
		UserAnswer:       r.UserAnswer,
		TimeSpentSeconds: r.TimeSpentSeconds,
		AnsweredAt:       r.AnsweredAt,
	}
}

// issuedCertificate is the holder's view of a certificate. domain.Certificate never
// serializes the verification code, so this is the only place it leaves the service.
type issuedCertificate struct {
	domain.Certificate
	VerificationCode string `json:"verificationCode"`
}

func issuedCertificateOf(c domain.Certificate) issuedCertificate {
	return issuedCertificate{Certificate: c, VerificationCode: c.VerificationCode}
}

type reviewRequest struct {
	Skipped []string `json:"skipped"`
}

type ownerRequest struct {
	UserID       string `json:"userId"`
	EnrollmentID string `json:"enrollmentId"`
}

func (a *API) startAttempt(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if !a.decode(w, r, &req) {
		return
	}
	if req.TestDefinitionID == "" {
		req.TestDefinitionID = a.defaultTest
	}
	attempt, err := a.services.Engine.StartAttempt(r.Context(), domain.Owner{UserID: req.UserID, EnrollmentID: req.EnrollmentID}, req.TestDefinitionID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, attempt)
}

func (a *API) listAttempts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("userId") == "" || q.Get("testDefinitionId") == "" {
		a.fail(w, r, domain.Invalid("query", "userId and testDefinitionId are required"))
		return
	}
	attempts, err := a.services.Engine.ListAttempts(r.Context(), q.Get("userId"), q.Get("testDefinitionId"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if attempts == nil {
		attempts = []domain.Attempt{}
	}
	writeJSON(w, http.StatusOK, attempts)
}

func (a *API) getAttempt(w http.ResponseWriter, r *http.Request) {
	view, err := a.services.Engine.GetAttempt(r.Context(), r.PathValue("id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) attemptQuestions(w http.ResponseWriter, r *http.Request) {
	questions, err := a.services.Engine.AttemptQuestions(r.Context(), r.PathValue("id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, questions)
}

func (a *API) recordAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if !a.decode(w, r, &req) {
		return
	}
	resp, err := a.services.Engine.RecordAnswer(r.Context(), r.PathValue("id"), r.PathValue("questionId"), req.Answer, req.TimeSpentSeconds)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, savedAnswerOf(resp))
}

func (a *API) review(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if r.ContentLength != 0 && !a.decode(w, r, &req) {
		return
	}
	review, err := a.services.Engine.Review(r.Context(), r.PathValue("id"), req.Skipped)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, review)
}

func (a *API) finalize(w http.ResponseWriter, r *http.Request) {
	attempt, err := a.services.Engine.Finalize(r.Context(), r.PathValue("id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, attempt)
}

func (a *API) abandon(w http.ResponseWriter, r *http.Request) {
	attempt, err := a.services.Engine.Abandon(r.Context(), r.PathValue("id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, attempt)
}

// attemptCertificate hands the holder their certificate including the verification code.
// Other callers get the same 404 as an attempt without a certificate.
func (a *API) attemptCertificate(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		a.fail(w, r, domain.Invalid("userId", "required"))
		return
	}
	attemptID := r.PathValue("id")
	cert, err := a.services.Certificates.ForAttempt(r.Context(), attemptID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if cert.UserID != userID {
		a.fail(w, r, domain.NotFound("certificate", attemptID, domain.ErrCertificateNotFound))
		return
	}
	writeJSON(w, http.StatusOK, issuedCertificateOf(cert))
}

func (a *API) nextDay(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		a.fail(w, r, domain.Invalid("userId", "required"))
		return
	}
	day, err := a.services.Progression.NextAvailableDay(r.Context(), userID, r.PathValue("courseId"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"nextAvailableDay": day})
}

func (a *API) eligibility(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("userId") == "" {
		a.fail(w, r, domain.Invalid("userId", "required"))
		return
	}
	result, err := a.services.Eligibility.CanStartGrandtest(r.Context(), q.Get("userId"), r.PathValue("courseId"), q.Get("enrollmentId"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) completion(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("userId") == "" {
		a.fail(w, r, domain.Invalid("userId", "required"))
		return
	}
	status, err := a.services.Completion.Status(r.Context(), q.Get("userId"), r.PathValue("courseId"), q.Get("enrollmentId"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (a *API) completeLesson(w http.ResponseWriter, r *http.Request) {
	var req ownerRequest
	if !a.decode(w, r, &req) {
		return
	}
	if req.UserID == "" {
		a.fail(w, r, domain.Invalid("userId", "required"))
		return
	}
	status, err := a.services.Completion.MarkLessonCompleted(r.Context(), req.UserID, r.PathValue("courseId"), req.EnrollmentID, r.PathValue("lessonId"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (a *API) verify(w http.ResponseWriter, r *http.Request) {
	if !a.limiter.allow(clientIP(r)) {
		writeJSON(w, http.StatusTooManyRequests, errorBody{Code: "rate_limited", Message: "too many requests"})
		return
	}
	q := r.URL.Query()
	result, err := a.services.Certificates.Verify(r.Context(), q.Get("number"), q.Get("code"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) invalidate(w http.ResponseWriter, r *http.Request) {
	if err := a.services.Certificates.Invalidate(r.Context(), r.PathValue("id")); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		a.fail(w, r, domain.Invalid("body", "malformed JSON"))
		return false
	}
	return true
}

func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, body := statusFor(err)
	if status >= http.StatusInternalServerError {
		a.log.Error("request failed", zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeJSON(w, status, body)
}

// visitorLimiter keeps one token bucket per client address.
type visitorLimiter struct {
	limit rate.Limit
	burst int

	mu        sync.Mutex
	visitors  map[string]*visitor
	lastSweep time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newVisitorLimiter(limit rate.Limit, burst int) *visitorLimiter {
	return &visitorLimiter{limit: limit, burst: burst, visitors: make(map[string]*visitor), lastSweep: time.Now()}
}

func (l *visitorLimiter) allow(key string) bool {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	if now.Sub(l.lastSweep) > time.Minute {
		for k, v := range l.visitors {
			if now.Sub(v.lastSeen) > 3*time.Minute {
				delete(l.visitors, k)
			}
		}
		l.lastSweep = now
	}
	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
