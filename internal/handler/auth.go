package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shoplane/accounts/internal/constants"
	"github.com/shoplane/accounts/internal/dto"
	apperrors "github.com/shoplane/accounts/internal/errors"
	"github.com/shoplane/accounts/internal/middleware"
	"github.com/shoplane/accounts/internal/service"
	"github.com/shoplane/accounts/pkg/ctxutil"
	"github.com/shoplane/accounts/pkg/logger"
)

type AuthHandler struct {
	accounts *service.AccountService
}

func NewAuthHandler(accounts *service.AccountService) *AuthHandler {
	return &AuthHandler{accounts: accounts}
}

// Register handles new user signup
func (h *AuthHandler) Register(c *gin.Context) {
	ctx := ctxutil.WithOperation(c.Request.Context(), "handler", "Register")

	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.WarnWithContext(ctx, "Invalid register request").
			Err(err).
			Log()
		c.JSON(http.StatusBadRequest, constants.BuildErrorResponse("Invalid request format", err.Error()))
		return
	}

	user, err := h.accounts.Register(ctx, &req)
	if err != nil {
		status := apperrors.ToHTTPStatus(err)
		c.JSON(status, constants.BuildErrorResponse("Registration failed", apperrors.GetErrorMessage(err)))
		return
	}

	c.JSON(http.StatusCreated, user)
}

// Login handles user authentication with email or username
func (h *AuthHandler) Login(c *gin.Context) {
	ctx := ctxutil.WithOperation(c.Request.Context(), "handler", "Login")

	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.WarnWithContext(ctx, "Invalid login request").
			Err(err).
			Log()
		c.JSON(http.StatusBadRequest, constants.BuildErrorResponse("Invalid request format", err.Error()))
		return
	}

	response, err := h.accounts.Login(ctx, req.Identifier, req.Password)
	if err != nil {
		status := apperrors.ToHTTPStatus(err)
		c.JSON(status, constants.BuildErrorResponse("Authentication failed", apperrors.GetErrorMessage(err)))
		return
	}

	c.JSON(http.StatusOK, response)
}

// Refresh handles token refresh using a refresh token
func (h *AuthHandler) Refresh(c *gin.Context) {
	ctx := ctxutil.WithOperation(c.Request.Context(), "handler", "Refresh")

	var req dto.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.WarnWithContext(ctx, "Invalid refresh request").
			Err(err).
			Log()
		c.JSON(http.StatusBadRequest, constants.BuildErrorResponse("Invalid request format", err.Error()))
		return
	}

	response, err := h.accounts.Refresh(ctx, req.Refresh)
	if err != nil {
		status := apperrors.ToHTTPStatus(err)
		c.JSON(status, constants.BuildErrorResponse("Token refresh failed", apperrors.GetErrorMessage(err)))
		return
	}

	c.JSON(http.StatusOK, response)
}

// Logout revokes the presented refresh token. The token is read from the
// body or, failing that, the query string.
func (h *AuthHandler) Logout(c *gin.Context) {
	ctx := ctxutil.WithOperation(c.Request.Context(), "handler", "Logout")

	var req dto.LogoutRequest
	_ = c.ShouldBindJSON(&req)
	if req.Refresh == "" {
		req.Refresh = c.Query("refresh")
	}
	if req.Refresh == "" {
		c.JSON(http.StatusBadRequest, constants.BuildErrorResponse("Refresh token required", nil))
		return
	}

	if err := h.accounts.Logout(ctx, req.Refresh); err != nil {
		logger.WarnWithContext(ctx, "Logout failed").
			Err(err).
			Log()
		c.JSON(http.StatusBadRequest, constants.BuildErrorResponse("Invalid or expired refresh token", nil))
		return
	}

	c.JSON(http.StatusOK, constants.BuildSuccessResponse("Logout successful"))
}

// LogoutAll revokes every outstanding refresh token of the caller. Always
// succeeds once attempted, even with zero outstanding tokens.
func (h *AuthHandler) LogoutAll(c *gin.Context) {
	ctx := ctxutil.WithOperation(c.Request.Context(), "handler", "LogoutAll")

	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, constants.BuildErrorResponse("Unauthorized", nil))
		return
	}

	if err := h.accounts.LogoutAll(ctx, userID); err != nil {
		status := apperrors.ToHTTPStatus(err)
		c.JSON(status, constants.BuildErrorResponse("Logout failed", apperrors.GetErrorMessage(err)))
		return
	}

	c.JSON(http.StatusOK, constants.BuildSuccessResponse("Logged out from all devices"))
}
