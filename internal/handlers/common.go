// internal/handlers/common.go
package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/od-approval-backend/internal/i18n"
	"github.com/javajoker/od-approval-backend/internal/middleware"
	"github.com/javajoker/od-approval-backend/internal/models"
	"github.com/javajoker/od-approval-backend/internal/services"
	"github.com/javajoker/od-approval-backend/internal/utils"
)

// respondError writes the envelope matching the service error kind. resource
// is the i18n prefix used for not-found messages.
func respondError(c *gin.Context, logger *logrus.Entry, err error, resource string) {
	message := services.ErrorMessage(err)

	switch {
	case errors.Is(err, services.ErrValidation):
		utils.BadRequestResponse(c, message, nil)
	case errors.Is(err, services.ErrAuthorization):
		utils.ForbiddenResponse(c, message)
	case errors.Is(err, services.ErrNotFound):
		utils.NotFoundResponse(c, resource, message)
	case errors.Is(err, services.ErrConflict):
		utils.ConflictResponse(c, message)
	default:
		logger.WithError(err).WithFields(logrus.Fields{
			"path":       c.FullPath(),
			"request_id": c.GetString("request_id"),
		}).Error("request failed")
		utils.InternalErrorResponse(c, "")
	}
}

func currentActor(c *gin.Context) (models.Actor, bool) {
	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
	}
	return actor, ok
}

func parseID(c *gin.Context, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		lang := utils.GetLangFromContext(c)
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, param), nil)
		return uuid.Nil, false
	}
	return id, true
}

// bindOptionalJSON accepts an empty body and binds anything else strictly.
func bindOptionalJSON(c *gin.Context, dst interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dst); err != nil {
		lang := utils.GetLangFromContext(c)
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return false
	}
	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(dst)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return false
	}
	return true
}

func sendPDF(c *gin.Context, filename string, data []byte) {
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, "application/pdf", data)
}
