// internal/models/common.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// Base model with common fields
type BaseModel struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Enums
type Role string

const (
	RoleStudent Role = "student"
	RoleFaculty Role = "faculty"
	RoleHOD     Role = "hod"
	RoleAdmin   Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleFaculty, RoleHOD, RoleAdmin:
		return true
	}
	return false
}

// IsStaff reports whether the role can sit in an approval chain or notify list.
func (r Role) IsStaff() bool {
	return r == RoleFaculty || r == RoleHOD
}

type ODStatus string

const (
	ODStatusPending           ODStatus = "pending"
	ODStatusApprovedByAdvisor ODStatus = "approved_by_advisor"
	ODStatusApprovedByHOD     ODStatus = "approved_by_hod"
	ODStatusRejected          ODStatus = "rejected"
	ODStatusForwardedToAdmin  ODStatus = "forwarded_to_admin"
	ODStatusForwardedToHOD    ODStatus = "forwarded_to_hod"
)

// IsTerminal reports whether no further transition may leave this status.
func (s ODStatus) IsTerminal() bool {
	return s == ODStatusApprovedByHOD || s == ODStatusRejected
}

type TimeType string

const (
	TimeTypeFullDay         TimeType = "fullDay"
	TimeTypeParticularHours TimeType = "particularHours"
)

// Actor is the authenticated caller of a workflow operation.
type Actor struct {
	ID         uuid.UUID
	Role       Role
	Department string
}
