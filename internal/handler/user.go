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

type UserHandler struct {
	accounts *service.AccountService
}

func NewUserHandler(accounts *service.AccountService) *UserHandler {
	return &UserHandler{accounts: accounts}
}

// Profile returns the authenticated user's own record
func (h *UserHandler) Profile(c *gin.Context) {
	ctx := ctxutil.WithOperation(c.Request.Context(), "handler", "Profile")

	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, constants.BuildErrorResponse("Unauthorized", nil))
		return
	}

	user, err := h.accounts.Profile(ctx, userID)
	if err != nil {
		status := apperrors.ToHTTPStatus(err)
		c.JSON(status, constants.BuildErrorResponse("Failed to load profile", apperrors.GetErrorMessage(err)))
		return
	}

	c.JSON(http.StatusOK, user)
}

// UpdateProfile mutates the caller's profile fields. Identity fields are
// rejected at the binding layer since the DTO does not carry them.
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	ctx := ctxutil.WithOperation(c.Request.Context(), "handler", "UpdateProfile")

	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, constants.BuildErrorResponse("Unauthorized", nil))
		return
	}

	var req dto.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.WarnWithContext(ctx, "Invalid profile update request").
			Err(err).
			Log()
		c.JSON(http.StatusBadRequest, constants.BuildErrorResponse("Invalid request format", err.Error()))
		return
	}

	user, err := h.accounts.UpdateProfile(ctx, userID, &req)
	if err != nil {
		status := apperrors.ToHTTPStatus(err)
		c.JSON(status, constants.BuildErrorResponse("Profile update failed", apperrors.GetErrorMessage(err)))
		return
	}

	c.JSON(http.StatusOK, user)
}

// List returns every user, for staff callers only
func (h *UserHandler) List(c *gin.Context) {
	ctx := ctxutil.WithOperation(c.Request.Context(), "handler", "List")

	users, err := h.accounts.ListUsers(ctx)
	if err != nil {
		status := apperrors.ToHTTPStatus(err)
		c.JSON(status, constants.BuildErrorResponse("Failed to list users", apperrors.GetErrorMessage(err)))
		return
	}

	c.JSON(http.StatusOK, constants.BuildListResponse(int64(len(users)), users))
}
