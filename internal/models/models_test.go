// internal/models/models_test.go
package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestDaysBetween(t *testing.T) {
	day := time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		start, end time.Time
		want       int
	}{
		{"same day", day, day, 1},
		{"two days", day, day.AddDate(0, 0, 1), 2},
		{"time of day ignored", day.Add(15 * time.Hour), day.AddDate(0, 0, 2).Add(time.Hour), 3},
		{"across month end", time.Date(2025, 3, 30, 0, 0, 0, 0, time.UTC), time.Date(2025, 4, 2, 0, 0, 0, 0, time.UTC), 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DaysBetween(tt.start, tt.end))
		})
	}

	req := &ODRequest{StartDate: day, EndDate: day.AddDate(0, 0, 4)}
	assert.Equal(t, 5, req.DaysRequired())
}

func TestStatusChangePatch(t *testing.T) {
	at := time.Date(2025, 3, 10, 9, 0, 30, 0, time.UTC)
	advisor, hod := uuid.New(), uuid.New()
	req := &ODRequest{ClassAdvisor: advisor, HOD: hod, Status: ODStatusPending}

	patch := StatusChange(ODStatusForwardedToAdmin, at)
	patch.ForwardedToAdminAt = &at
	patch.Apply(req)

	assert.Equal(t, ODStatusForwardedToAdmin, req.Status)
	assert.Equal(t, at, req.LastStatusChangeAt)
	assert.Equal(t, at, *req.ForwardedToAdminAt)
	assert.Equal(t, advisor, req.ClassAdvisor)
	assert.Equal(t, hod, req.HOD)

	cols := patch.Columns()
	assert.Equal(t, ODStatusForwardedToAdmin, cols["status"])
	assert.Equal(t, at, cols["last_status_change_at"])
	assert.NotContains(t, cols, "class_advisor")
	assert.NotContains(t, cols, "hod")
	assert.Len(t, cols, 3)
}

func TestNotifyFacultyIDsSkipsMalformed(t *testing.T) {
	id := uuid.New()
	req := &ODRequest{NotifyFaculty: []string{id.String(), "garbage"}}
	assert.Equal(t, []uuid.UUID{id}, req.NotifyFacultyIDs())
}

func TestRoles(t *testing.T) {
	assert.True(t, RoleHOD.Valid())
	assert.False(t, Role("principal").Valid())
	assert.True(t, RoleFaculty.IsStaff())
	assert.False(t, RoleAdmin.IsStaff())
	assert.True(t, ODStatusRejected.IsTerminal())
	assert.False(t, ODStatusForwardedToHOD.IsTerminal())
}
