// internal/handlers/admin.go
package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/od-approval-backend/internal/i18n"
	"github.com/javajoker/od-approval-backend/internal/services"
	"github.com/javajoker/od-approval-backend/internal/utils"
)

type AdminHandler struct {
	adminService *services.AdminService
	userService  *services.UserService
	logger       *logrus.Entry
}

func NewAdminHandler(adminService *services.AdminService, userService *services.UserService, logger *logrus.Entry) *AdminHandler {
	return &AdminHandler{
		adminService: adminService,
		userService:  userService,
		logger:       logger,
	}
}

// GET /admin/dashboard/stats
func (h *AdminHandler) GetDashboardStats(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	stats, err := h.adminService.GetDashboardStats(c.Request.Context(), actor)
	if err != nil {
		respondError(c, h.logger, err, "od_request")
		return
	}

	utils.SuccessResponse(c, stats)
}

// POST /admin/escalations/run
func (h *AdminHandler) RunEscalation(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	result, err := h.adminService.RunEscalation(c.Request.Context(), actor)
	if err != nil {
		respondError(c, h.logger, err, "od_request")
		return
	}

	utils.SuccessMessageResponse(c, i18n.KeyEscalationCompleted, result)
}

// POST /admin/users
func (h *AdminHandler) CreateUser(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	var req services.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}

	// Validate request
	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	user, err := h.userService.CreateUser(c.Request.Context(), actor, &req)
	if err != nil {
		respondError(c, h.logger, err, "user")
		return
	}

	utils.CreatedResponse(c, i18n.KeyUserCreated, gin.H{"user": user})
}

// DELETE /admin/users/:id
func (h *AdminHandler) DeleteUser(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	userID, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := h.userService.DeleteUser(c.Request.Context(), actor, userID); err != nil {
		respondError(c, h.logger, err, "user")
		return
	}

	utils.SuccessMessageResponse(c, i18n.KeyUserDeleted, gin.H{"id": userID})
}
