package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stemsi/exstem-portal/internal/response"
	"github.com/stemsi/exstem-portal/internal/service"
)

// RevocationChecker reports whether a token ID was logged out.
type RevocationChecker interface {
	CheckNotRevoked(ctx context.Context, jti string) error
}

// CheckTokenNotRevoked rejects tokens that were explicitly logged out.
// A Redis outage lets the request through: the JWT itself is still valid.
func CheckTokenNotRevoked(checker RevocationChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		if err := checker.CheckNotRevoked(c.Request.Context(), claims.ID); errors.Is(err, service.ErrTokenRevoked) {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenExpired)
			return
		}

		c.Next()
	}
}
