// internal/models/od_request.go
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type ODRequest struct {
	BaseModel
	StudentID    uuid.UUID `json:"student_id" gorm:"type:uuid;not null;index"`
	ClassAdvisor uuid.UUID `json:"class_advisor" gorm:"type:uuid;not null;index"`
	HOD          uuid.UUID `json:"hod" gorm:"type:uuid;not null"`
	Department   string    `json:"department" gorm:"size:100;not null;index"`
	Year         string    `json:"year" gorm:"size:20;not null"`
	// Stored as text[] of user ids.
	NotifyFaculty pq.StringArray `json:"notify_faculty" gorm:"type:text[]"`

	EventName string     `json:"event_name" gorm:"size:255;not null"`
	EventDate time.Time  `json:"event_date" gorm:"not null"`
	StartDate time.Time  `json:"start_date" gorm:"not null"`
	EndDate   time.Time  `json:"end_date" gorm:"not null"`
	TimeType  TimeType   `json:"time_type" gorm:"type:varchar(20);not null;default:'fullDay'"`
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	Reason    string     `json:"reason" gorm:"type:text;not null"`
	Brochure  string     `json:"brochure,omitempty" gorm:"size:512"`

	Status         ODStatus `json:"status" gorm:"type:varchar(30);not null;default:'pending';index:idx_od_requests_status_changed"`
	AdvisorComment string   `json:"advisor_comment" gorm:"type:text"`
	HODComment     string   `json:"hod_comment" gorm:"type:text"`
	Remarks        string   `json:"remarks" gorm:"type:text"`

	ProofDocument   string     `json:"proof_document,omitempty" gorm:"size:512"`
	ProofSubmitted  bool       `json:"proof_submitted" gorm:"default:false"`
	ProofVerified   bool       `json:"proof_verified" gorm:"default:false"`
	ProofVerifiedBy *uuid.UUID `json:"proof_verified_by,omitempty" gorm:"type:uuid"`
	ProofVerifiedAt *time.Time `json:"proof_verified_at,omitempty"`

	ApprovedPDFPath string `json:"approved_pdf_path,omitempty" gorm:"size:512"`
	ODLetterPath    string `json:"od_letter_path,omitempty" gorm:"size:512"`

	LastStatusChangeAt time.Time  `json:"last_status_change_at" gorm:"not null;index:idx_od_requests_status_changed"`
	AdvisorApprovedAt  *time.Time `json:"advisor_approved_at,omitempty"`
	HODApprovedAt      *time.Time `json:"hod_approved_at,omitempty"`
	ForwardedToAdminAt *time.Time `json:"forwarded_to_admin_at,omitempty"`
	ForwardedToHODAt   *time.Time `json:"forwarded_to_hod_at,omitempty"`
}

func (ODRequest) TableName() string {
	return "od_requests"
}

// NotifyFacultyIDs parses the stored notify list, skipping malformed entries.
func (r *ODRequest) NotifyFacultyIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(r.NotifyFaculty))
	for _, raw := range r.NotifyFaculty {
		if id, err := uuid.Parse(raw); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

// DaysRequired is the inclusive number of calendar days the request covers.
func (r *ODRequest) DaysRequired() int {
	return DaysBetween(r.StartDate, r.EndDate)
}

// DaysBetween computes ceil((end - start) / 1 day) + 1 on day-truncated dates.
func DaysBetween(start, end time.Time) int {
	s := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	e := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)
	diff := e.Sub(s)
	days := int(diff / (24 * time.Hour))
	if diff%(24*time.Hour) != 0 {
		days++
	}
	return days + 1
}

// ODRequestPatch lists every field a workflow transition may write. Routing
// fields (student, class advisor, HOD, department) are write-once at creation
// and have no patch field.
type ODRequestPatch struct {
	Status             *ODStatus
	AdvisorComment     *string
	HODComment         *string
	Remarks            *string
	NotifyFaculty      *[]string
	ProofDocument      *string
	ProofSubmitted     *bool
	ProofVerified      *bool
	ProofVerifiedBy    *uuid.UUID
	ProofVerifiedAt    *time.Time
	ApprovedPDFPath    *string
	ODLetterPath       *string
	LastStatusChangeAt *time.Time
	AdvisorApprovedAt  *time.Time
	HODApprovedAt      *time.Time
	ForwardedToAdminAt *time.Time
	ForwardedToHODAt   *time.Time
}

// Apply writes the patch onto r.
func (p ODRequestPatch) Apply(r *ODRequest) {
	if p.Status != nil {
		r.Status = *p.Status
	}
	if p.AdvisorComment != nil {
		r.AdvisorComment = *p.AdvisorComment
	}
	if p.HODComment != nil {
		r.HODComment = *p.HODComment
	}
	if p.Remarks != nil {
		r.Remarks = *p.Remarks
	}
	if p.NotifyFaculty != nil {
		r.NotifyFaculty = pq.StringArray(append([]string(nil), (*p.NotifyFaculty)...))
	}
	if p.ProofDocument != nil {
		r.ProofDocument = *p.ProofDocument
	}
	if p.ProofSubmitted != nil {
		r.ProofSubmitted = *p.ProofSubmitted
	}
	if p.ProofVerified != nil {
		r.ProofVerified = *p.ProofVerified
	}
	if p.ProofVerifiedBy != nil {
		id := *p.ProofVerifiedBy
		r.ProofVerifiedBy = &id
	}
	if p.ProofVerifiedAt != nil {
		r.ProofVerifiedAt = timePtr(*p.ProofVerifiedAt)
	}
	if p.ApprovedPDFPath != nil {
		r.ApprovedPDFPath = *p.ApprovedPDFPath
	}
	if p.ODLetterPath != nil {
		r.ODLetterPath = *p.ODLetterPath
	}
	if p.LastStatusChangeAt != nil {
		r.LastStatusChangeAt = *p.LastStatusChangeAt
	}
	if p.AdvisorApprovedAt != nil {
		r.AdvisorApprovedAt = timePtr(*p.AdvisorApprovedAt)
	}
	if p.HODApprovedAt != nil {
		r.HODApprovedAt = timePtr(*p.HODApprovedAt)
	}
	if p.ForwardedToAdminAt != nil {
		r.ForwardedToAdminAt = timePtr(*p.ForwardedToAdminAt)
	}
	if p.ForwardedToHODAt != nil {
		r.ForwardedToHODAt = timePtr(*p.ForwardedToHODAt)
	}
}

// Columns maps the patch onto column names for SQL updates.
func (p ODRequestPatch) Columns() map[string]interface{} {
	cols := make(map[string]interface{})
	if p.Status != nil {
		cols["status"] = *p.Status
	}
	if p.AdvisorComment != nil {
		cols["advisor_comment"] = *p.AdvisorComment
	}
	if p.HODComment != nil {
		cols["hod_comment"] = *p.HODComment
	}
	if p.Remarks != nil {
		cols["remarks"] = *p.Remarks
	}
	if p.NotifyFaculty != nil {
		cols["notify_faculty"] = pq.StringArray(*p.NotifyFaculty)
	}
	if p.ProofDocument != nil {
		cols["proof_document"] = *p.ProofDocument
	}
	if p.ProofSubmitted != nil {
		cols["proof_submitted"] = *p.ProofSubmitted
	}
	if p.ProofVerified != nil {
		cols["proof_verified"] = *p.ProofVerified
	}
	if p.ProofVerifiedBy != nil {
		cols["proof_verified_by"] = *p.ProofVerifiedBy
	}
	if p.ProofVerifiedAt != nil {
		cols["proof_verified_at"] = *p.ProofVerifiedAt
	}
	if p.ApprovedPDFPath != nil {
		cols["approved_pdf_path"] = *p.ApprovedPDFPath
	}
	if p.ODLetterPath != nil {
		cols["od_letter_path"] = *p.ODLetterPath
	}
	if p.LastStatusChangeAt != nil {
		cols["last_status_change_at"] = *p.LastStatusChangeAt
	}
	if p.AdvisorApprovedAt != nil {
		cols["advisor_approved_at"] = *p.AdvisorApprovedAt
	}
	if p.HODApprovedAt != nil {
		cols["hod_approved_at"] = *p.HODApprovedAt
	}
	if p.ForwardedToAdminAt != nil {
		cols["forwarded_to_admin_at"] = *p.ForwardedToAdminAt
	}
	if p.ForwardedToHODAt != nil {
		cols["forwarded_to_hod_at"] = *p.ForwardedToHODAt
	}
	return cols
}

// StatusChange builds the patch every status transition starts from.
func StatusChange(status ODStatus, at time.Time) ODRequestPatch {
	return ODRequestPatch{Status: &status, LastStatusChangeAt: &at}
}

func timePtr(t time.Time) *time.Time {
	return &t
}
