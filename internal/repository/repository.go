// internal/repository/repository.go
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/javajoker/od-approval-backend/internal/models"
)

var (
	ErrNotFound        = errors.New("record not found")
	ErrConditionFailed = errors.New("record does not match update condition")
	ErrDuplicate       = errors.New("duplicate record")
)

// Condition guards a conditional update. Zero values match anything.
type Condition struct {
	Statuses       []models.ODStatus
	ProofSubmitted *bool
	// ChangedBefore matches records whose last status change is strictly older.
	ChangedBefore *time.Time
}

func (c Condition) Matches(r *models.ODRequest) bool {
	if len(c.Statuses) > 0 {
		ok := false
		for _, s := range c.Statuses {
			if r.Status == s {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if c.ProofSubmitted != nil && r.ProofSubmitted != *c.ProofSubmitted {
		return false
	}
	if c.ChangedBefore != nil && !r.LastStatusChangeAt.Before(*c.ChangedBefore) {
		return false
	}
	return true
}

type ODRequestFilter struct {
	StudentID    *uuid.UUID
	ClassAdvisor *uuid.UUID
	Department   string
	Statuses     []models.ODStatus
	// ChangedBefore restricts to records whose last status change is older.
	ChangedBefore *time.Time
	Offset        int
	Limit         int
	// SortByStatusChange orders by last_status_change_at desc instead of created_at desc.
	SortByStatusChange bool
}

// ODRequestStore is the durable record of OD requests. Update is the only
// mutation path after Create and must be a single atomic read-modify-write.
type ODRequestStore interface {
	Create(ctx context.Context, req *models.ODRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.ODRequest, error)
	// Update applies patch only if the stored record satisfies cond. It returns
	// ErrNotFound for unknown ids and ErrConditionFailed when cond does not hold.
	Update(ctx context.Context, id uuid.UUID, cond Condition, patch models.ODRequestPatch) (*models.ODRequest, error)
	Find(ctx context.Context, filter ODRequestFilter) ([]models.ODRequest, int64, error)
}

type UserFilter struct {
	Role       models.Role
	Department string
	IDs        []uuid.UUID
}

type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByRegisterNo(ctx context.Context, registerNo string) (*models.User, error)
	// FindOne returns the first user matching the filter or ErrNotFound.
	FindOne(ctx context.Context, filter UserFilter) (*models.User, error)
	Find(ctx context.Context, filter UserFilter) ([]models.User, error)
	Departments(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
