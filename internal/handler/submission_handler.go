package handler

import (
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-portal/internal/middleware"
	"github.com/stemsi/exstem-portal/internal/model"
	"github.com/stemsi/exstem-portal/internal/response"
	"github.com/stemsi/exstem-portal/internal/service"
	"github.com/stemsi/exstem-portal/internal/validator"
)

// SubmissionHandler handles exam submission and the answer-sheet artifact.
type SubmissionHandler struct {
	submissionService *service.SubmissionService
	log               zerolog.Logger
}

// NewSubmissionHandler creates a new SubmissionHandler.
func NewSubmissionHandler(submissionService *service.SubmissionService, log zerolog.Logger) *SubmissionHandler {
	return &SubmissionHandler{
		submissionService: submissionService,
		log:               log.With().Str("component", "submission_handler").Logger(),
	}
}

// Submit godoc
// POST /api/v1/exams/:exam_id/submissions
// Reconciles, scores and stores the caller's single submission.
func (h *SubmissionHandler) Submit(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.SubmitExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	student := service.Student{ID: claims.UserID, Label: claims.Label}
	res, err := h.submissionService.Submit(c.Request.Context(), c.Param("exam_id"), student, &req)
	if err != nil {
		failFromErr(c, h.log, err)
		return
	}

	response.Success(c, http.StatusCreated, res)
}

// ListMine godoc
// GET /api/v1/submissions
// Lists the caller's own submissions, oldest first.
func (h *SubmissionHandler) ListMine(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	subs, err := h.submissionService.ListByStudent(c.Request.Context(), claims.UserID)
	if err != nil {
		failFromErr(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"submissions": subs})
}

// RegenerateArtifact godoc
// POST /api/v1/submissions/:id/artifact
// Queues the descriptive answer sheet again.
func (h *SubmissionHandler) RegenerateArtifact(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	if err := h.submissionService.RegenerateArtifact(c.Request.Context(), id); err != nil {
		failFromErr(c, h.log, err)
		return
	}

	response.Success(c, http.StatusAccepted, gin.H{"artifact_status": model.ArtifactStatusPending})
}

// DownloadArtifact godoc
// GET /api/v1/submissions/:id/artifact
// Streams the generated answer-sheet PDF.
func (h *SubmissionHandler) DownloadArtifact(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	sub, err := h.submissionService.Get(c.Request.Context(), id)
	if err != nil {
		failFromErr(c, h.log, err)
		return
	}
	if sub.ArtifactStatus != model.ArtifactStatusGenerated || sub.ArtifactPath == "" {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}
	if _, err := os.Stat(sub.ArtifactPath); err != nil {
		h.log.Warn().Err(err).Str("submission_id", id.String()).Msg("Artifact missing on disk")
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	c.FileAttachment(sub.ArtifactPath, "lembar-jawaban-"+id.String()+".pdf")
}
