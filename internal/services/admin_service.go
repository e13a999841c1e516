// internal/services/admin_service.go
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/javajoker/od-approval-backend/internal/models"
	"github.com/javajoker/od-approval-backend/internal/repository"
)

type AdminService struct {
	requests   repository.ODRequestStore
	users      repository.UserStore
	escalation *EscalationService
	clock      Clock
	timeout    time.Duration
	logger     *logrus.Entry
}

type AdminDashboardStats struct {
	TotalRequests    int64                     `json:"total_requests"`
	ByStatus         map[models.ODStatus]int64 `json:"by_status"`
	AwaitingAdmin    int64                     `json:"awaiting_admin"`
	OverduePending   int64                     `json:"overdue_pending"`
	TotalStudents    int64                     `json:"total_students"`
	TotalFaculty     int64                     `json:"total_faculty"`
	TotalDepartments int64                     `json:"total_departments"`
}

type EscalationRunResult struct {
	Escalated int       `json:"escalated"`
	RanAt     time.Time `json:"ran_at"`
}

func NewAdminService(
	requests repository.ODRequestStore,
	users repository.UserStore,
	escalation *EscalationService,
	clock Clock,
	escalationTimeout time.Duration,
	logger *logrus.Entry,
) *AdminService {
	return &AdminService{
		requests:   requests,
		users:      users,
		escalation: escalation,
		clock:      clock,
		timeout:    escalationTimeout,
		logger:     logger.WithField("component", "admin"),
	}
}

func (s *AdminService) GetDashboardStats(ctx context.Context, actor models.Actor) (*AdminDashboardStats, error) {
	if actor.Role != models.RoleAdmin {
		return nil, authorizationError("admin access required")
	}

	stats := &AdminDashboardStats{ByStatus: make(map[models.ODStatus]int64)}

	// Requests per status
	for _, status := range allStatuses {
		_, count, err := s.requests.Find(ctx, repository.ODRequestFilter{
			Statuses: []models.ODStatus{status},
			Limit:    1,
		})
		if err != nil {
			return nil, fmt.Errorf("count %s requests: %w", status, err)
		}
		stats.ByStatus[status] = count
		stats.TotalRequests += count
	}
	stats.AwaitingAdmin = stats.ByStatus[models.ODStatusForwardedToAdmin]

	// Pending past the escalation deadline but not yet swept
	cutoff := s.clock.Now().Add(-s.timeout)
	_, overdue, err := s.requests.Find(ctx, repository.ODRequestFilter{
		Statuses:      []models.ODStatus{models.ODStatusPending},
		ChangedBefore: &cutoff,
		Limit:         1,
	})
	if err != nil {
		return nil, fmt.Errorf("count overdue requests: %w", err)
	}
	stats.OverduePending = overdue

	// People
	students, err := s.users.Find(ctx, repository.UserFilter{Role: models.RoleStudent})
	if err != nil {
		return nil, fmt.Errorf("count students: %w", err)
	}
	stats.TotalStudents = int64(len(students))

	for _, role := range []models.Role{models.RoleFaculty, models.RoleHOD} {
		staff, err := s.users.Find(ctx, repository.UserFilter{Role: role})
		if err != nil {
			return nil, fmt.Errorf("count faculty: %w", err)
		}
		stats.TotalFaculty += int64(len(staff))
	}

	departments, err := s.users.Departments(ctx)
	if err != nil {
		return nil, fmt.Errorf("count departments: %w", err)
	}
	stats.TotalDepartments = int64(len(departments))

	return stats, nil
}

// RunEscalation performs one sweep immediately, outside the schedule.
func (s *AdminService) RunEscalation(ctx context.Context, actor models.Actor) (*EscalationRunResult, error) {
	if actor.Role != models.RoleAdmin {
		return nil, authorizationError("admin access required")
	}

	now := s.clock.Now()
	count, err := s.escalation.RunEscalationSweep(ctx, now, s.timeout)
	if err != nil {
		return nil, fmt.Errorf("run escalation sweep: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"actor_id":  actor.ID,
		"escalated": count,
	}).Info("Manual escalation sweep")

	return &EscalationRunResult{Escalated: count, RanAt: now}, nil
}
