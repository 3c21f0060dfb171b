package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/voltplatform/volt-backend/pkg/response"
)

const userIDKey = "user_id"

// TokenValidator verifies a bearer token and returns its user id
type TokenValidator interface {
	ValidateToken(token string) (string, error)
}

// Auth rejects requests without a valid bearer token and stores the user id
// on the context
func Auth(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			response.Unauthorized(c, "missing bearer token")
			return
		}

		userID, err := validator.ValidateToken(token)
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			return
		}

		c.Set(userIDKey, userID)
		c.Next()
	}
}

// UserID returns the authenticated user id
func UserID(c *gin.Context) (string, bool) {
	v, ok := c.Get(userIDKey)
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
