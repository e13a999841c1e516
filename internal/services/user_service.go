// internal/services/user_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/od-approval-backend/internal/models"
	"github.com/javajoker/od-approval-backend/internal/repository"
	"github.com/javajoker/od-approval-backend/internal/utils"
)

// UserService is the admin surface for managing accounts.
type UserService struct {
	users  repository.UserStore
	logger *logrus.Entry
}

type CreateUserRequest struct {
	Name             string      `json:"name" validate:"required,max=255"`
	Email            string      `json:"email" validate:"required,email"`
	Password         string      `json:"password" validate:"required,strong_password"`
	Role             models.Role `json:"role" validate:"required,role"`
	RegisterNo       string      `json:"register_no,omitempty" validate:"max=50"`
	Department       string      `json:"department,omitempty" validate:"max=100"`
	Year             string      `json:"year,omitempty" validate:"max=20"`
	FacultyAdvisorID *uuid.UUID  `json:"faculty_advisor_id,omitempty"`
}

func NewUserService(users repository.UserStore, logger *logrus.Entry) *UserService {
	return &UserService{
		users:  users,
		logger: logger.WithField("component", "users"),
	}
}

func (s *UserService) CreateUser(ctx context.Context, actor models.Actor, req *CreateUserRequest) (*models.User, error) {
	if actor.Role != models.RoleAdmin {
		return nil, authorizationError("only admins can create users")
	}

	// Validate request
	if err := utils.ValidateStruct(req); err != nil {
		return nil, validationError("%s", describeValidation(err))
	}

	user := &models.User{
		Name:       strings.TrimSpace(req.Name),
		Email:      strings.ToLower(strings.TrimSpace(req.Email)),
		Role:       req.Role,
		Department: strings.TrimSpace(req.Department),
		Year:       strings.TrimSpace(req.Year),
	}

	// Role specific fields
	switch req.Role {
	case models.RoleStudent:
		registerNo := strings.TrimSpace(req.RegisterNo)
		if registerNo == "" || user.Department == "" || req.FacultyAdvisorID == nil {
			return nil, validationError("students need a register number, department and faculty advisor")
		}
		advisor, err := s.users.GetByID(ctx, *req.FacultyAdvisorID)
		if errors.Is(err, repository.ErrNotFound) || (err == nil && !advisor.Role.IsStaff()) {
			return nil, validationError("faculty advisor %s is not a faculty member", *req.FacultyAdvisorID)
		}
		if err != nil {
			return nil, fmt.Errorf("get advisor: %w", err)
		}
		user.RegisterNo = &registerNo
		user.FacultyAdvisorID = req.FacultyAdvisorID
	case models.RoleFaculty, models.RoleHOD:
		if user.Department == "" {
			return nil, validationError("%s accounts need a department", req.Role)
		}
	}

	// Set password
	if err := user.SetPassword(req.Password); err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, conflictError("a user with this email or register number already exists")
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"user_id":  user.ID,
		"role":     user.Role,
		"actor_id": actor.ID,
	}).Info("User created")

	return user, nil
}

func (s *UserService) DeleteUser(ctx context.Context, actor models.Actor, id uuid.UUID) error {
	if actor.Role != models.RoleAdmin {
		return authorizationError("only admins can delete users")
	}
	if actor.ID == id {
		return conflictError("admins cannot delete their own account")
	}

	if err := s.users.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return notFoundError("user not found")
		}
		return fmt.Errorf("failed to delete user: %w", err)
	}

	s.logger.WithFields(logrus.Fields{"user_id": id, "actor_id": actor.ID}).Info("User deleted")
	return nil
}
