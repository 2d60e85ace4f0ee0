package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-portal/internal/middleware"
	"github.com/stemsi/exstem-portal/internal/response"
	"github.com/stemsi/exstem-portal/internal/service"
)

// MeetingHandler exposes the exam's video meeting.
type MeetingHandler struct {
	meetingService *service.MeetingService
	log            zerolog.Logger
}

// NewMeetingHandler creates a new MeetingHandler.
func NewMeetingHandler(meetingService *service.MeetingService, log zerolog.Logger) *MeetingHandler {
	return &MeetingHandler{
		meetingService: meetingService,
		log:            log.With().Str("component", "meeting_handler").Logger(),
	}
}

// CreateMeeting godoc
// POST /api/v1/exams/:exam_id/meeting
func (h *MeetingHandler) CreateMeeting(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	examID, ok := uuidParam(c, "exam_id")
	if !ok {
		return
	}

	m, err := h.meetingService.Create(c.Request.Context(), claims.UserID, examID)
	if err != nil {
		failFromErr(c, h.log, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"meeting": m})
}

// EndMeeting godoc
// DELETE /api/v1/exams/:exam_id/meeting
func (h *MeetingHandler) EndMeeting(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	examID, ok := uuidParam(c, "exam_id")
	if !ok {
		return
	}

	if err := h.meetingService.End(c.Request.Context(), claims.UserID, examID); err != nil {
		failFromErr(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}

// ListParticipants godoc
// GET /api/v1/exams/:exam_id/meeting/participants
func (h *MeetingHandler) ListParticipants(c *gin.Context) {
	examID, ok := uuidParam(c, "exam_id")
	if !ok {
		return
	}

	participants, err := h.meetingService.Participants(c.Request.Context(), examID)
	if err != nil {
		failFromErr(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"participants": participants})
}

// JoinMeeting godoc
// POST /api/v1/exams/:exam_id/meeting/join
// Returns a signed join request; admins join as host.
func (h *MeetingHandler) JoinMeeting(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	examID, ok := uuidParam(c, "exam_id")
	if !ok {
		return
	}

	info, err := h.meetingService.Join(c.Request.Context(), claims.Viewer(), examID)
	if err != nil {
		failFromErr(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, info)
}
