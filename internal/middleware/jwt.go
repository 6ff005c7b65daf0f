package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shoplane/accounts/internal/constants"
	"github.com/shoplane/accounts/internal/repository"
	"github.com/shoplane/accounts/internal/service"
	"github.com/shoplane/accounts/pkg/ctxutil"
	"github.com/shoplane/accounts/pkg/logger"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Gin context keys set by RequireAuth
const (
	CtxUserID   = "user_id"
	CtxUsername = "username"
	CtxIsStaff  = "is_staff"
)

type JWTMiddleware struct {
	tokens *service.TokenService
	users  repository.UserStore
}

func NewJWTMiddleware(tokens *service.TokenService, users repository.UserStore) *JWTMiddleware {
	return &JWTMiddleware{
		tokens: tokens,
		users:  users,
	}
}

func abortUnauthorized(c *gin.Context, reason string) {
	logger.GetLogger().Warn("Unauthorized request",
		zap.String("path", c.Request.URL.Path),
		zap.String("method", c.Request.Method),
		zap.String("reason", reason))
	c.JSON(http.StatusUnauthorized, constants.BuildErrorResponse("Unauthorized", nil))
	c.Abort()
}

// RequireAuth validates the bearer access token and loads the caller into
// the request context. Disabled accounts are rejected even while their
// access token is still unexpired.
func (m *JWTMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortUnauthorized(c, "missing authorization header")
			return
		}

		tokenParts := strings.Split(authHeader, " ")
		if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
			abortUnauthorized(c, "malformed authorization header")
			return
		}

		ctx := c.Request.Context()
		claims, err := m.tokens.Verify(ctx, tokenParts[1], constants.TokenKindAccess)
		if err != nil {
			abortUnauthorized(c, "invalid or expired token")
			return
		}

		userID, err := claims.UserID()
		if err != nil {
			abortUnauthorized(c, "invalid subject claim")
			return
		}

		user, err := m.users.FindByID(ctx, userID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				abortUnauthorized(c, "subject no longer exists")
				return
			}
			c.JSON(http.StatusInternalServerError, constants.BuildErrorResponse("Internal server error", nil))
			c.Abort()
			return
		}

		if !user.IsActive {
			abortUnauthorized(c, "account disabled")
			return
		}

		c.Set(CtxUserID, user.ID)
		c.Set(CtxUsername, user.Username)
		c.Set(CtxIsStaff, user.IsStaff)
		c.Request = c.Request.WithContext(ctxutil.WithUserID(ctx, user.ID))

		c.Next()
	}
}

// RequireStaff gates admin endpoints. Must run after RequireAuth.
func (m *JWTMiddleware) RequireStaff() gin.HandlerFunc {
	return func(c *gin.Context) {
		isStaff, exists := c.Get(CtxIsStaff)
		if !exists || isStaff != true {
			logger.GetLogger().Warn("Forbidden request",
				zap.String("path", c.Request.URL.Path),
				zap.String("method", c.Request.Method))
			c.JSON(http.StatusForbidden, constants.BuildErrorResponse("Insufficient privilege", nil))
			c.Abort()
			return
		}

		c.Next()
	}
}

// CurrentUserID extracts the authenticated user id set by RequireAuth
func CurrentUserID(c *gin.Context) (uint, bool) {
	val, exists := c.Get(CtxUserID)
	if !exists {
		return 0, false
	}
	id, ok := val.(uint)
	return id, ok
}
