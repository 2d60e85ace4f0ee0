package response

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ContextKeyRequestID is the Gin context key for the request ID.
const ContextKeyRequestID = "request_id"

const (
	headerRequestID     = "X-Request-ID"
	contextKeyStartedAt = "request_started_at"
	maxRequestIDLength  = 64
)

// RequestIDMiddleware tags every request with an id and a start time.
// A client-supplied X-Request-ID is kept when it is short enough to log.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader(headerRequestID)
		if reqID == "" || len(reqID) > maxRequestIDLength {
			reqID = uuid.New().String()
		}
		c.Set(ContextKeyRequestID, reqID)
		c.Set(contextKeyStartedAt, time.Now())
		c.Header(headerRequestID, reqID)
		c.Next()
	}
}
