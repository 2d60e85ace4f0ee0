package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-portal/internal/middleware"
	"github.com/stemsi/exstem-portal/internal/response"
	"github.com/stemsi/exstem-portal/internal/service"
)

// multipartOverhead leaves room for form boundaries around the file part.
const multipartOverhead = 64 << 10

// MediaHandler serves question image uploads.
type MediaHandler struct {
	mediaService *service.MediaService
	maxBytes     int64
	log          zerolog.Logger
}

// NewMediaHandler creates a new MediaHandler.
func NewMediaHandler(mediaService *service.MediaService, maxBytes int64, log zerolog.Logger) *MediaHandler {
	return &MediaHandler{
		mediaService: mediaService,
		maxBytes:     maxBytes,
		log:          log.With().Str("component", "media_handler").Logger(),
	}
}

// UploadMedia godoc
// POST /api/v1/media/upload
// Stores a question image (multipart field "file") and returns its URL.
func (h *MediaHandler) UploadMedia(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes+multipartOverhead)

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Fail(c, http.StatusRequestEntityTooLarge, response.ErrFileTooLarge)
			return
		}
		response.Fail(c, http.StatusBadRequest, response.ErrFileRequired)
		return
	}
	defer file.Close()

	url, err := h.mediaService.SaveUpload(file, header)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnsupportedFileType):
			response.Fail(c, http.StatusBadRequest, response.ErrUnsupportedFile)
		case errors.Is(err, service.ErrFileTooLarge):
			response.Fail(c, http.StatusRequestEntityTooLarge, response.ErrFileTooLarge)
		default:
			h.log.Error().Err(err).Str("filename", header.Filename).Msg("Failed to store upload")
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	if claims := middleware.GetClaims(c); claims != nil {
		h.log.Info().Int("admin_id", claims.UserID).Str("url", url).Int64("size", header.Size).Msg("Question image uploaded")
	}
	response.Success(c, http.StatusCreated, gin.H{"url": url, "size": header.Size})
}
