package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/stemsi/exstem-portal/internal/response"
	"github.com/stemsi/exstem-portal/internal/service"
)

// ContextKeyClaims is the Gin context key for JWT claims.
const ContextKeyClaims = "claims"

// TokenValidator is the subset of AuthService the middleware needs.
type TokenValidator interface {
	ValidateToken(tokenStr string) (*service.Claims, error)
}

// tokenSource extracts the raw token from a request.
type tokenSource func(c *gin.Context) string

// bearerOrQuery reads "Authorization: Bearer", then ?token= for EventSource
// clients, which cannot send headers.
func bearerOrQuery(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		scheme, tok, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "bearer") {
			return strings.TrimSpace(tok)
		}
	}
	return c.Query("token")
}

// queryOnly is used for WebSocket upgrades: browsers cannot set headers there.
func queryOnly(c *gin.Context) string {
	return c.Query("token")
}

// RequireAuth validates the caller's JWT and stores its claims.
func RequireAuth(auth TokenValidator) gin.HandlerFunc {
	return authenticate(auth, bearerOrQuery)
}

// RequireWSAuth validates a JWT passed as ?token= on a WebSocket upgrade.
func RequireWSAuth(auth TokenValidator) gin.HandlerFunc {
	return authenticate(auth, queryOnly)
}

func authenticate(auth TokenValidator, source tokenSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := source(c)
		if tokenStr == "" {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		claims, err := auth.ValidateToken(tokenStr)
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenExpired)
				return
			}
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
			return
		}

		c.Set(ContextKeyClaims, claims)
		c.Next()
	}
}

// GetClaims retrieves the JWT claims from the Gin context.
func GetClaims(c *gin.Context) *service.Claims {
	val, exists := c.Get(ContextKeyClaims)
	if !exists {
		return nil
	}
	claims, _ := val.(*service.Claims)
	return claims
}
