// internal/handlers/user.go
package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/od-approval-backend/internal/services"
	"github.com/javajoker/od-approval-backend/internal/utils"
)

// UserHandler serves the read-only directory views.
type UserHandler struct {
	directory *services.DirectoryService
	logger    *logrus.Entry
}

func NewUserHandler(directory *services.DirectoryService, logger *logrus.Entry) *UserHandler {
	return &UserHandler{
		directory: directory,
		logger:    logger,
	}
}

// GET /departments
func (h *UserHandler) ListDepartments(c *gin.Context) {
	departments, err := h.directory.Departments(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err, "user")
		return
	}

	utils.SuccessResponse(c, gin.H{"departments": departments})
}

// GET /departments/:department/faculty
func (h *UserHandler) ListDepartmentFaculty(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	faculty, err := h.directory.DepartmentFaculty(c.Request.Context(), actor, c.Param("department"))
	if err != nil {
		respondError(c, h.logger, err, "user")
		return
	}

	utils.SuccessResponse(c, gin.H{"faculty": faculty})
}

// GET /users/faculty
// Optional ?department= narrows the list used by the notify picker.
func (h *UserHandler) ListFaculty(c *gin.Context) {
	faculty, err := h.directory.Faculty(c.Request.Context(), c.Query("department"))
	if err != nil {
		respondError(c, h.logger, err, "user")
		return
	}

	utils.SuccessResponse(c, gin.H{"faculty": faculty})
}
