// internal/services/directory_service.go
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/javajoker/od-approval-backend/internal/models"
	"github.com/javajoker/od-approval-backend/internal/repository"
)

// DirectoryService answers routing questions about users: who advises a
// student, who heads a department and who may be copied on a request.
type DirectoryService struct {
	users repository.UserStore
}

// Routing is the approval chain resolved for a student at request creation.
type Routing struct {
	Student      *models.User
	ClassAdvisor *models.User
	HOD          *models.User
}

func NewDirectoryService(users repository.UserStore) *DirectoryService {
	return &DirectoryService{users: users}
}

func (s *DirectoryService) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFoundError("user %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

func (s *DirectoryService) StudentByRegisterNo(ctx context.Context, registerNo string) (*models.User, error) {
	user, err := s.users.GetByRegisterNo(ctx, registerNo)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && user.Role != models.RoleStudent) {
		return nil, notFoundError("no student with register number %s", registerNo)
	}
	if err != nil {
		return nil, fmt.Errorf("find student by register number: %w", err)
	}
	return user, nil
}

// ResolveRouting looks up the student's assigned advisor and the HOD of the
// student's department.
func (s *DirectoryService) ResolveRouting(ctx context.Context, studentID uuid.UUID) (*Routing, error) {
	student, err := s.GetUser(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if student.Role != models.RoleStudent {
		return nil, authorizationError("only students can submit OD requests")
	}
	if student.FacultyAdvisorID == nil {
		return nil, validationError("no faculty advisor assigned to this student")
	}

	advisor, err := s.users.GetByID(ctx, *student.FacultyAdvisorID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, validationError("assigned faculty advisor no longer exists")
	}
	if err != nil {
		return nil, fmt.Errorf("get advisor: %w", err)
	}

	hod, err := s.FindHOD(ctx, student.Department)
	if err != nil {
		return nil, err
	}

	return &Routing{Student: student, ClassAdvisor: advisor, HOD: hod}, nil
}

func (s *DirectoryService) FindHOD(ctx context.Context, department string) (*models.User, error) {
	hod, err := s.users.FindOne(ctx, repository.UserFilter{Role: models.RoleHOD, Department: department})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, validationError("HOD not found for department %q", department)
	}
	if err != nil {
		return nil, fmt.Errorf("find hod: %w", err)
	}
	return hod, nil
}

// ResolveNotifyList checks that every id names a faculty member or HOD and
// returns the ids de-duplicated in input order.
func (s *DirectoryService) ResolveNotifyList(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error) {
	if len(ids) == 0 {
		return []uuid.UUID{}, nil
	}

	unique := make([]uuid.UUID, 0, len(ids))
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}

	users, err := s.users.Find(ctx, repository.UserFilter{IDs: unique})
	if err != nil {
		return nil, fmt.Errorf("resolve notify list: %w", err)
	}
	staff := make(map[uuid.UUID]bool, len(users))
	for _, u := range users {
		if u.Role.IsStaff() {
			staff[u.ID] = true
		}
	}
	for _, id := range unique {
		if !staff[id] {
			return nil, validationError("notify list entry %s is not a faculty member", id)
		}
	}
	return unique, nil
}

// Users loads the given users, silently skipping ids that no longer exist.
func (s *DirectoryService) Users(ctx context.Context, ids []uuid.UUID) ([]models.User, error) {
	if len(ids) == 0 {
		return []models.User{}, nil
	}
	users, err := s.users.Find(ctx, repository.UserFilter{IDs: ids})
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	return users, nil
}

func (s *DirectoryService) Admins(ctx context.Context) ([]models.User, error) {
	admins, err := s.users.Find(ctx, repository.UserFilter{Role: models.RoleAdmin})
	if err != nil {
		return nil, fmt.Errorf("list admins: %w", err)
	}
	return admins, nil
}

func (s *DirectoryService) Departments(ctx context.Context) ([]string, error) {
	return s.users.Departments(ctx)
}

// Faculty lists faculty and HODs, optionally restricted to one department.
func (s *DirectoryService) Faculty(ctx context.Context, department string) ([]models.User, error) {
	var staff []models.User
	for _, role := range []models.Role{models.RoleFaculty, models.RoleHOD} {
		users, err := s.users.Find(ctx, repository.UserFilter{Role: role, Department: department})
		if err != nil {
			return nil, fmt.Errorf("list faculty: %w", err)
		}
		staff = append(staff, users...)
	}
	return staff, nil
}

// DepartmentFaculty is the HOD view of their own department's staff.
func (s *DirectoryService) DepartmentFaculty(ctx context.Context, actor models.Actor, department string) ([]models.User, error) {
	if actor.Role != models.RoleAdmin && (actor.Role != models.RoleHOD || actor.Department != department) {
		return nil, authorizationError("only the HOD of %s can view its faculty", department)
	}
	return s.Faculty(ctx, department)
}
