package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-portal/internal/middleware"
	"github.com/stemsi/exstem-portal/internal/model"
	"github.com/stemsi/exstem-portal/internal/response"
	"github.com/stemsi/exstem-portal/internal/service"
	"github.com/stemsi/exstem-portal/internal/validator"
)

// GradingHandler handles manual grading of descriptive answers.
type GradingHandler struct {
	gradingService *service.GradingService
	log            zerolog.Logger
}

// NewGradingHandler creates a new GradingHandler.
func NewGradingHandler(gradingService *service.GradingService, log zerolog.Logger) *GradingHandler {
	return &GradingHandler{
		gradingService: gradingService,
		log:            log.With().Str("component", "grading_handler").Logger(),
	}
}

// ScoreCanvasAnswer godoc
// PATCH /api/v1/submissions/:id/canvas-answers/:question_id
// Grades one descriptive answer and returns the recomputed submission.
func (h *GradingHandler) ScoreCanvasAnswer(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	submissionID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	questionID, ok := uuidParam(c, "question_id")
	if !ok {
		return
	}

	var req model.ScoreCanvasRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	res, err := h.gradingService.ScoreCanvasAnswer(c.Request.Context(), claims.UserID, submissionID, questionID, &req)
	if err != nil {
		failFromErr(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, res)
}

// BulkScore godoc
// PATCH /api/v1/submissions/:id/canvas-answers
// Grades several descriptive answers in one locked update.
func (h *GradingHandler) BulkScore(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	submissionID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req model.BulkScoreRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	res, err := h.gradingService.BulkScore(c.Request.Context(), claims.UserID, submissionID, &req)
	if err != nil {
		failFromErr(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, res)
}
