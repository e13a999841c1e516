// internal/handlers/auth.go
package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/od-approval-backend/internal/i18n"
	"github.com/javajoker/od-approval-backend/internal/services"
	"github.com/javajoker/od-approval-backend/internal/utils"
)

type AuthHandler struct {
	authService *services.AuthService
	logger      *logrus.Entry
}

func NewAuthHandler(authService *services.AuthService, logger *logrus.Entry) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		logger:      logger,
	}
}

// POST /auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	var req services.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}

	// Validate request
	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	// Login user
	authResponse, err := h.authService.Login(c.Request.Context(), &req)
	if errors.Is(err, services.ErrAuthorization) {
		utils.UnauthorizedResponse(c, i18n.T(lang, i18n.KeyAuthInvalidCredentials))
		return
	}
	if err != nil {
		respondError(c, h.logger, err, "user")
		return
	}

	utils.SuccessMessageResponse(c, i18n.KeyAuthLoginSuccess, gin.H{
		"user":       authResponse.User,
		"token":      authResponse.AccessToken,
		"token_type": authResponse.TokenType,
		"expires_in": authResponse.ExpiresIn,
	})
}

// GET /auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	user, err := h.authService.GetUserByID(c.Request.Context(), actor.ID)
	if err != nil {
		respondError(c, h.logger, err, "user")
		return
	}

	utils.SuccessResponse(c, gin.H{"user": user})
}
