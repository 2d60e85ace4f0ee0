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

// ViolationHandler accepts and lists proctoring violation events.
type ViolationHandler struct {
	violationService *service.ViolationService
	log              zerolog.Logger
}

// NewViolationHandler creates a new ViolationHandler.
func NewViolationHandler(violationService *service.ViolationService, log zerolog.Logger) *ViolationHandler {
	return &ViolationHandler{
		violationService: violationService,
		log:              log.With().Str("component", "violation_handler").Logger(),
	}
}

type violationListQuery struct {
	model.PageQuery
	StudentID int `form:"student_id" binding:"omitempty,min=1"`
}

// LogViolation godoc
// POST /api/v1/violations
// Queues a violation event. The client never waits on the database.
func (h *ViolationHandler) LogViolation(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.LogViolationRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	student := service.Student{ID: claims.UserID, Label: claims.Label}
	if err := h.violationService.RecordRequest(c.Request.Context(), student, &req); err != nil {
		failFromErr(c, h.log, err)
		return
	}

	response.Success(c, http.StatusAccepted, gin.H{"accepted": true})
}

// ListViolations godoc
// GET /api/v1/exams/:exam_id/violations
// Lists the persisted audit log, newest first.
func (h *ViolationHandler) ListViolations(c *gin.Context) {
	examID, ok := uuidParam(c, "exam_id")
	if !ok {
		return
	}

	var q violationListQuery
	if fields := validator.BindQuery(c, &q); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	q.Normalize()

	events, total, err := h.violationService.ListByExam(c.Request.Context(), examID, q.StudentID, q.PerPage, q.Offset())
	if err != nil {
		failFromErr(c, h.log, err)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"violations": events},
		response.NewPagination(q.Page, q.PerPage, total))
}
