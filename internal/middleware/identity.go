package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/bookverse/bookverse-backend/internal/logger"
	"github.com/bookverse/bookverse-backend/internal/repos"
	"github.com/bookverse/bookverse-backend/internal/requestdata"
)

const userIDHeader = "X-User-ID"

// IdentityMiddleware resolves the caller from the X-User-ID header set
// by the edge gateway, which has already authenticated the request.
type IdentityMiddleware struct {
	log      *logger.Logger
	userRepo repos.UserRepo
}

func NewIdentityMiddleware(log *logger.Logger, userRepo repos.UserRepo) *IdentityMiddleware {
	middlewareLogger := log.With("Middleware", "IdentityMiddleware")
	return &IdentityMiddleware{log: middlewareLogger, userRepo: userRepo}
}

func (im *IdentityMiddleware) RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(userIDHeader))
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing user identity"})
			return
		}
		userID, err := uuid.Parse(raw)
		if err != nil || userID == uuid.Nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid user identity"})
			return
		}
		exists, err := im.userRepo.Exists(c.Request.Context(), nil, userID)
		if err != nil {
			im.log.Warn("User lookup failed", "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "identity check failed"})
			return
		}
		if !exists {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}

		ctx := requestdata.WithRequestData(c.Request.Context(), &requestdata.RequestData{
			UserID:    userID,
			RequestID: c.GetHeader("X-Request-ID"),
		})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
