package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/quillsign/quillsign/internal/domain/dto"
	"github.com/quillsign/quillsign/internal/infrastructure/auth/jwt"
)

const userContextKey = "user"

// UserContext is the authenticated caller. TargetDocument is non-nil
// for tokens minted through an access URI and pins every document
// operation to that single document.
type UserContext struct {
	UserID         uuid.UUID
	TargetDocument *uuid.UUID
}

// Auth verifies the Bearer token and stores the caller on the request
// context. Missing or invalid tokens end the request with 401.
func Auth(manager *jwt.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.ErrorResponse{Title: "Not Authorized"})
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.ErrorResponse{Title: "Not Authorized"})
			return
		}

		session, err := manager.Verify(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.ErrorResponse{Title: "Not Authorized"})
			return
		}

		c.Set(userContextKey, &UserContext{
			UserID:         session.UserID,
			TargetDocument: session.TargetDocument,
		})
		c.Next()
	}
}

// GetUserContext returns the authenticated caller, or nil outside the
// Auth middleware.
func GetUserContext(c *gin.Context) *UserContext {
	if value, exists := c.Get(userContextKey); exists {
		if user, ok := value.(*UserContext); ok {
			return user
		}
	}
	return nil
}
