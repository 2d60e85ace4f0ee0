package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-portal/internal/meeting"
	"github.com/stemsi/exstem-portal/internal/middleware"
	"github.com/stemsi/exstem-portal/internal/model"
	"github.com/stemsi/exstem-portal/internal/response"
	"github.com/stemsi/exstem-portal/internal/service"
	"github.com/stemsi/exstem-portal/internal/validator"
)

func init() {
	gin.SetMode(gin.TestMode)
	validator.Setup()
}

func decode(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	t.Helper()
	var body response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestFailFromErr(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantCode   response.ErrCode
	}{
		{fmt.Errorf("%w: bad", service.ErrInvalidArgument), http.StatusBadRequest, response.ErrValidation},
		{service.ErrForbidden, http.StatusForbidden, response.ErrForbidden},
		{service.ErrExamNotFound, http.StatusNotFound, response.ErrExamNotFound},
		{service.ErrExamNotAvailable, http.StatusForbidden, response.ErrExamNotAvailable},
		{service.ErrAlreadySubmitted, http.StatusConflict, response.ErrAlreadySubmitted},
		{service.ErrSubmissionNotFound, http.StatusNotFound, response.ErrSubmissionMissing},
		{service.ErrCanvasAnswerNotFound, http.StatusNotFound, response.ErrCanvasNotFound},
		{service.ErrNoQuestions, http.StatusNotFound, response.ErrNoQuestions},
		{service.ErrNoCanvasAnswers, http.StatusBadRequest, response.ErrNoCanvasAnswers},
		{fmt.Errorf("create: %w", meeting.ErrUnavailable), http.StatusServiceUnavailable, response.ErrMeetingUnavailable},
		{service.ErrMeetingNotFound, http.StatusNotFound, response.ErrMeetingNotFound},
		{fmt.Errorf("pg: connection refused"), http.StatusInternalServerError, response.ErrInternal},
	}

	for _, tt := range tests {
		t.Run(string(tt.wantCode), func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

			failFromErr(c, zerolog.Nop(), tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)
			body := decode(t, w)
			require.NotNil(t, body.Error)
			assert.Equal(t, tt.wantCode, body.Error.Code)
		})
	}
}

func TestFailFromErr_HidesInternalDetail(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	failFromErr(c, zerolog.Nop(), fmt.Errorf("dial tcp 10.0.0.5:5432: refused"))

	assert.NotContains(t, w.Body.String(), "10.0.0.5")
}

// withClaims injects claims the way RequireAuth does.
func withClaims(claims *service.Claims) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextKeyClaims, claims)
		c.Next()
	}
}

func TestSubmit_RejectsInvalidPayload(t *testing.T) {
	h := NewSubmissionHandler(nil, zerolog.Nop())
	r := gin.New()
	r.POST("/exams/:exam_id/submissions",
		withClaims(&service.Claims{UserID: 7, Role: model.RoleStudent}),
		h.Submit,
	)

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"answers": [`},
		{"unknown reason", `{"is_auto_submit": true, "auto_submit_reason": "boredom"}`},
		{"negative time", `{"time_taken_seconds": -1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/exams/"+uuid.NewString()+"/submissions", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			r.ServeHTTP(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			body := decode(t, w)
			require.NotNil(t, body.Error)
			assert.Equal(t, response.ErrValidation, body.Error.Code)
			assert.NotEmpty(t, body.Error.Fields)
		})
	}
}

func TestSubmit_RequiresClaims(t *testing.T) {
	h := NewSubmissionHandler(nil, zerolog.Nop())
	r := gin.New()
	r.POST("/exams/:exam_id/submissions", h.Submit)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/exams/x/submissions", strings.NewReader(`{}`)))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, response.ErrTokenRequired, decode(t, w).Error.Code)
}

func TestGrading_InvalidIDs(t *testing.T) {
	h := NewGradingHandler(nil, zerolog.Nop())
	r := gin.New()
	admin := withClaims(&service.Claims{UserID: 99, Role: model.RoleAdmin})
	r.PATCH("/submissions/:id/canvas-answers/:question_id", admin, h.ScoreCanvasAnswer)
	r.PATCH("/submissions/:id/canvas-answers", admin, h.BulkScore)

	for _, path := range []string{
		"/submissions/nope/canvas-answers/" + uuid.NewString(),
		"/submissions/" + uuid.NewString() + "/canvas-answers/nope",
		"/submissions/nope/canvas-answers",
	} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPatch, path, strings.NewReader(`{"score": 1}`)))
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
		assert.Equal(t, response.ErrInvalidID, decode(t, w).Error.Code, path)
	}
}

func TestGrading_ScoreRequired(t *testing.T) {
	h := NewGradingHandler(nil, zerolog.Nop())
	r := gin.New()
	r.PATCH("/submissions/:id/canvas-answers", withClaims(&service.Claims{UserID: 99, Role: model.RoleAdmin}), h.BulkScore)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPatch, "/submissions/"+uuid.NewString()+"/canvas-answers",
		strings.NewReader(`{"scores": [{"question_id": "q"}]}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, response.ErrValidation, decode(t, w).Error.Code)
}

func TestKnownViolation(t *testing.T) {
	assert.True(t, knownViolation(model.ViolationTabHidden))
	assert.True(t, knownViolation(model.ViolationNoFace))
	assert.False(t, knownViolation("copy_paste"))
}

func TestParseProctorState(t *testing.T) {
	saved := map[string]string{}
	for k, v := range proctorStateFields(4, 1, model.AutoSubmitReasonViolationLimit) {
		saved[k] = fmt.Sprint(v)
	}
	violations, eye, pending := parseProctorState(saved)
	assert.Equal(t, 4, violations)
	assert.Equal(t, 1, eye)
	assert.Equal(t, model.AutoSubmitReasonViolationLimit, pending)

	violations, eye, pending = parseProctorState(map[string]string{
		stateViolations:    "x",
		statePendingReason: "bored",
	})
	assert.Zero(t, violations)
	assert.Zero(t, eye)
	assert.Equal(t, model.AutoSubmitReasonNone, pending)

	violations, _, _ = parseProctorState(nil)
	assert.Zero(t, violations)
}
