package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-portal/internal/export"
	"github.com/stemsi/exstem-portal/internal/middleware"
	"github.com/stemsi/exstem-portal/internal/model"
	"github.com/stemsi/exstem-portal/internal/response"
	"github.com/stemsi/exstem-portal/internal/service"
	"github.com/stemsi/exstem-portal/internal/validator"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ResultHandler serves result views.
type ResultHandler struct {
	resultService *service.ResultService
	log           zerolog.Logger
}

// NewResultHandler creates a new ResultHandler.
func NewResultHandler(resultService *service.ResultService, log zerolog.Logger) *ResultHandler {
	return &ResultHandler{
		resultService: resultService,
		log:           log.With().Str("component", "result_handler").Logger(),
	}
}

// GetSubmissionResult godoc
// GET /api/v1/submissions/:id
// Returns the per-question result. Owner, parent or admin only.
func (h *ResultHandler) GetSubmissionResult(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	res, err := h.resultService.GetSubmissionResult(c.Request.Context(), claims.Viewer(), id)
	if err != nil {
		failFromErr(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, res)
}

// GetExamResults godoc
// GET /api/v1/exams/:exam_id/results
// Returns aggregate statistics and a page of submission rows.
func (h *ResultHandler) GetExamResults(c *gin.Context) {
	examID, ok := uuidParam(c, "exam_id")
	if !ok {
		return
	}

	var q model.PageQuery
	if fields := validator.BindQuery(c, &q); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	res, pagination, err := h.resultService.GetExamResults(c.Request.Context(), examID, q)
	if err != nil {
		failFromErr(c, h.log, err)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, res, pagination)
}

// ExportExamResults godoc
// GET /api/v1/exams/:exam_id/results/export
// Downloads every submission of the exam as an XLSX workbook.
func (h *ResultHandler) ExportExamResults(c *gin.Context) {
	examID, ok := uuidParam(c, "exam_id")
	if !ok {
		return
	}

	res, err := h.resultService.ExportExamResults(c.Request.Context(), examID)
	if err != nil {
		failFromErr(c, h.log, err)
		return
	}

	c.Header("Content-Type", xlsxContentType)
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="hasil-%s.xlsx"`, examID))
	c.Status(http.StatusOK)
	if err := export.WriteResultsWorkbook(c.Writer, res); err != nil {
		// Headers are already out; all that is left is to log.
		h.log.Error().Err(err).Str("exam_id", examID.String()).Msg("Failed to write results workbook")
	}
}

// GetStudentPerformance godoc
// GET /api/v1/students/:student_id/performance
// Per-category performance of a student. Self, parent or admin only.
func (h *ResultHandler) GetStudentPerformance(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	studentID, err := strconv.Atoi(c.Param("student_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	perf, err := h.resultService.GetStudentPerformance(c.Request.Context(), claims.Viewer(), studentID)
	if err != nil {
		failFromErr(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, perf)
}
