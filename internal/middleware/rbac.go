package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stemsi/exstem-portal/internal/model"
	"github.com/stemsi/exstem-portal/internal/response"
)

// RequireRole allows the request through when the caller has one of roles.
func RequireRole(roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		for _, r := range roles {
			if claims.Role == r {
				c.Next()
				return
			}
		}

		switch {
		case len(roles) == 1 && roles[0] == model.RoleAdmin:
			response.AbortFail(c, http.StatusForbidden, response.ErrAdminAccessOnly)
		case len(roles) == 1 && roles[0] == model.RoleStudent:
			response.AbortFail(c, http.StatusForbidden, response.ErrStudentAccessOnly)
		default:
			response.AbortFail(c, http.StatusForbidden, response.ErrForbidden)
		}
	}
}

// RequireAdmin is RequireRole(model.RoleAdmin).
func RequireAdmin() gin.HandlerFunc { return RequireRole(model.RoleAdmin) }

// RequireStudent is RequireRole(model.RoleStudent).
func RequireStudent() gin.HandlerFunc { return RequireRole(model.RoleStudent) }
