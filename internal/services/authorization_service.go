// internal/services/authorization_service.go
package services

import (
	"github.com/javajoker/od-approval-backend/internal/models"
)

// Access rules for OD requests. Roles come from the verified token; the
// request's routing fields decide who may act on it.

func authorizeHOD(actor models.Actor, req *models.ODRequest) error {
	if actor.Role != models.RoleHOD || actor.Department != req.Department {
		return authorizationError("only the HOD of %s can act on this request", req.Department)
	}
	return nil
}

// canView reports whether actor may read the request and its documents.
func canView(actor models.Actor, req *models.ODRequest) bool {
	switch {
	case actor.Role == models.RoleAdmin:
		return true
	case actor.ID == req.StudentID, actor.ID == req.ClassAdvisor:
		return true
	case actor.Role == models.RoleHOD && actor.Department == req.Department:
		return true
	}
	for _, id := range req.NotifyFacultyIDs() {
		if id == actor.ID {
			return true
		}
	}
	return false
}
