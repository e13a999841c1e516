// internal/services/od_request_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/od-approval-backend/internal/models"
	"github.com/javajoker/od-approval-backend/internal/repository"
	"github.com/javajoker/od-approval-backend/internal/utils"
)

// ODRequestService owns the approval workflow. Every transition is a single
// conditional store update on the expected prior status, so concurrent
// callers on the same request cannot both win.
type ODRequestService struct {
	requests   repository.ODRequestStore
	directory  *DirectoryService
	artifacts  *ArtifactService
	storage    *StorageService
	notifier   Notifier
	dispatcher *Dispatcher
	clock      Clock
	logger     *logrus.Entry
}

type CreateODRequestInput struct {
	EventName     string          `json:"event_name" validate:"required,max=255,single_line"`
	EventDate     time.Time       `json:"event_date" validate:"required"`
	StartDate     time.Time       `json:"start_date" validate:"required"`
	EndDate       time.Time       `json:"end_date" validate:"required"`
	TimeType      models.TimeType `json:"time_type" validate:"required,time_type"`
	StartTime     string          `json:"start_time,omitempty" validate:"omitempty,hhmm"`
	EndTime       string          `json:"end_time,omitempty" validate:"omitempty,hhmm"`
	Reason        string          `json:"reason" validate:"required,max=2000"`
	Brochure      string          `json:"brochure,omitempty" validate:"max=512"`
	NotifyFaculty []uuid.UUID     `json:"notify_faculty,omitempty"`
}

type CommentInput struct {
	Comment string `json:"comment" validate:"max=2000"`
}

type RemarksInput struct {
	Remarks string `json:"remarks" validate:"max=2000"`
}

// TransitionResult carries the committed record plus any degraded side
// effects, such as a certificate that could not be rendered.
type TransitionResult struct {
	Request  *models.ODRequest `json:"request"`
	Warnings []string          `json:"warnings,omitempty"`
}

type AdminListFilter struct {
	RegisterNo string
	utils.PaginationParams
}

func NewODRequestService(
	requests repository.ODRequestStore,
	directory *DirectoryService,
	artifacts *ArtifactService,
	storage *StorageService,
	notifier Notifier,
	dispatcher *Dispatcher,
	clock Clock,
	logger *logrus.Entry,
) *ODRequestService {
	return &ODRequestService{
		requests:   requests,
		directory:  directory,
		artifacts:  artifacts,
		storage:    storage,
		notifier:   notifier,
		dispatcher: dispatcher,
		clock:      clock,
		logger:     logger.WithField("component", "od_requests"),
	}
}

func (s *ODRequestService) Create(ctx context.Context, actor models.Actor, input *CreateODRequestInput) (*models.ODRequest, error) {
	if actor.Role != models.RoleStudent {
		return nil, authorizationError("only students can submit OD requests")
	}

	// Validate request
	if err := utils.ValidateStruct(input); err != nil {
		return nil, validationError("%s", describeValidation(err))
	}
	startTime, endTime, err := resolveTimeMode(input)
	if err != nil {
		return nil, err
	}
	if dayOf(input.EndDate).Before(dayOf(input.StartDate)) {
		return nil, validationError("end date cannot be before start date")
	}

	// Resolve approval chain
	routing, err := s.directory.ResolveRouting(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	notify, err := s.directory.ResolveNotifyList(ctx, input.NotifyFaculty)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	req := &models.ODRequest{
		StudentID:          routing.Student.ID,
		ClassAdvisor:       routing.ClassAdvisor.ID,
		HOD:                routing.HOD.ID,
		Department:         routing.Student.Department,
		Year:               routing.Student.Year,
		NotifyFaculty:      idStrings(notify),
		EventName:          strings.TrimSpace(input.EventName),
		EventDate:          input.EventDate,
		StartDate:          input.StartDate,
		EndDate:            input.EndDate,
		TimeType:           input.TimeType,
		StartTime:          startTime,
		EndTime:            endTime,
		Reason:             strings.TrimSpace(input.Reason),
		Brochure:           input.Brochure,
		Status:             models.ODStatusPending,
		LastStatusChangeAt: now,
	}
	req.CreatedAt = now
	req.UpdatedAt = now

	if err := s.requests.Create(ctx, req); err != nil {
		return nil, fmt.Errorf("create od request: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"request_id": req.ID,
		"student_id": req.StudentID,
		"advisor_id": req.ClassAdvisor,
	}).Info("OD request created")

	// Notify advisor
	student, advisor := routing.Student, routing.ClassAdvisor
	created := *req
	s.dispatcher.Go("request_submitted", logrus.Fields{"request_id": req.ID}, func(ctx context.Context) error {
		return s.notifier.RequestSubmitted(ctx, &created, student, advisor)
	})

	return req, nil
}

func (s *ODRequestService) AdvisorApprove(ctx context.Context, actor models.Actor, id uuid.UUID, comment string) (*models.ODRequest, error) {
	req, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.ID != req.ClassAdvisor {
		return nil, authorizationError("only the assigned class advisor can approve this request")
	}
	if req.Status != models.ODStatusPending {
		return nil, conflictError("request is %s, not pending", req.Status)
	}

	now := s.clock.Now()
	patch := models.StatusChange(models.ODStatusApprovedByAdvisor, now)
	patch.AdvisorApprovedAt = &now
	patch.AdvisorComment = &comment

	return s.transition(ctx, actor, id, repository.Condition{Statuses: []models.ODStatus{models.ODStatusPending}}, patch)
}

func (s *ODRequestService) AdvisorReject(ctx context.Context, actor models.Actor, id uuid.UUID, comment string) (*models.ODRequest, error) {
	req, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.ID != req.ClassAdvisor {
		return nil, authorizationError("only the assigned class advisor can reject this request")
	}
	if req.Status != models.ODStatusPending {
		return nil, conflictError("request is %s, not pending", req.Status)
	}

	patch := models.StatusChange(models.ODStatusRejected, s.clock.Now())
	patch.AdvisorComment = &comment

	return s.transition(ctx, actor, id, repository.Condition{Statuses: []models.ODStatus{models.ODStatusPending}}, patch)
}

// SubmitProof stores the attendance proof. A nil notify list leaves the
// stored list unchanged; an empty one clears it.
func (s *ODRequestService) SubmitProof(ctx context.Context, actor models.Actor, id uuid.UUID, file *FileUpload, notifyFaculty []uuid.UUID) (*models.ODRequest, error) {
	req, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.ID != req.StudentID {
		return nil, authorizationError("not authorized to submit proof for this request")
	}
	if file == nil || file.Body == nil {
		return nil, validationError("no proof document uploaded")
	}
	if req.Status == models.ODStatusRejected {
		return nil, conflictError("cannot submit proof for a rejected request")
	}

	var notify *[]string
	if notifyFaculty != nil {
		ids, err := s.directory.ResolveNotifyList(ctx, notifyFaculty)
		if err != nil {
			return nil, err
		}
		list := idStrings(ids)
		notify = &list
	}

	upload, err := s.storage.Upload(ctx, *file, s.storage.GetDefaultUploadOptions("proofs"))
	if err != nil {
		return nil, err
	}

	submitted, verified := true, false
	patch := models.ODRequestPatch{
		ProofDocument:  &upload.Key,
		ProofSubmitted: &submitted,
		ProofVerified:  &verified,
		NotifyFaculty:  notify,
	}
	cond := repository.Condition{Statuses: statusesExcept(models.ODStatusRejected)}

	updated, err := s.update(ctx, id, cond, patch)
	if err != nil {
		if delErr := s.storage.Store().Delete(ctx, upload.Key); delErr != nil {
			s.logger.WithField("proof", upload.Key).WithError(delErr).Warn("Failed to remove unreferenced proof")
		}
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"request_id": id,
		"actor_id":   actor.ID,
		"proof":      upload.Key,
	}).Info("Proof submitted")

	return updated, nil
}

// VerifyProof marks the proof verified and mails the advisor and the notify
// list. The certificate is ensured and attached only once the HOD has
// approved the request. Status is not changed.
func (s *ODRequestService) VerifyProof(ctx context.Context, actor models.Actor, id uuid.UUID) (*TransitionResult, error) {
	req, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.ID != req.ClassAdvisor {
		return nil, authorizationError("only the assigned class advisor can verify proof")
	}
	if !req.ProofSubmitted {
		return nil, conflictError("no proof has been submitted for this request")
	}

	now := s.clock.Now()
	verified := true
	patch := models.ODRequestPatch{
		ProofVerified:   &verified,
		ProofVerifiedBy: &actor.ID,
		ProofVerifiedAt: &now,
	}
	submitted := true
	updated, err := s.update(ctx, id, repository.Condition{ProofSubmitted: &submitted}, patch)
	if err != nil {
		return nil, err
	}

	result := &TransitionResult{Request: updated}
	logger := s.logger.WithFields(logrus.Fields{"request_id": id, "actor_id": actor.ID})
	logger.Info("Proof verified")

	var certificate *Artifact
	if updated.Status == models.ODStatusApprovedByHOD {
		certificate, err = s.artifacts.GetOrCreateApproval(ctx, id)
		if err != nil {
			logger.WithError(err).Warn("Approval certificate unavailable after proof verification")
			result.Warnings = append(result.Warnings, "approval certificate could not be generated")
			certificate = nil
		} else if reloaded, err := s.requests.GetByID(ctx, id); err == nil {
			result.Request = reloaded
		}
	}

	// Notify advisor and faculty
	recipientIDs := append([]uuid.UUID{updated.ClassAdvisor}, updated.NotifyFacultyIDs()...)
	snapshot := *result.Request
	s.dispatcher.Go("proof_verified", logrus.Fields{"request_id": id}, func(ctx context.Context) error {
		recipients, err := s.directory.Users(ctx, recipientIDs)
		if err != nil {
			return err
		}
		student, err := s.directory.GetUser(ctx, snapshot.StudentID)
		if err != nil {
			return err
		}
		return s.notifier.ProofVerified(ctx, &snapshot, student, recipients, certificate)
	})

	return result, nil
}

var hodActionable = []models.ODStatus{models.ODStatusApprovedByAdvisor, models.ODStatusForwardedToHOD}

func (s *ODRequestService) HodApprove(ctx context.Context, actor models.Actor, id uuid.UUID, remarks string) (*TransitionResult, error) {
	req, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorizeHOD(actor, req); err != nil {
		return nil, err
	}
	if req.Status.IsTerminal() {
		return nil, conflictError("request is already %s", req.Status)
	}
	if !hasStatus(req.Status, hodActionable) {
		return nil, conflictError("request is %s and awaits advisor or admin action", req.Status)
	}

	now := s.clock.Now()
	patch := models.StatusChange(models.ODStatusApprovedByHOD, now)
	patch.HODApprovedAt = &now
	patch.Remarks = &remarks

	updated, err := s.transition(ctx, actor, id, repository.Condition{Statuses: hodActionable}, patch)
	if err != nil {
		return nil, err
	}
	result := &TransitionResult{Request: updated}

	// Regenerate certificate
	if _, err := s.artifacts.RegenerateApproval(ctx, id); err != nil {
		s.logger.WithField("request_id", id).WithError(err).Warn("Approval certificate generation failed")
		result.Warnings = append(result.Warnings, "approval certificate could not be generated")
	} else if reloaded, err := s.requests.GetByID(ctx, id); err == nil {
		result.Request = reloaded
	}

	s.notifyStudent(result.Request)
	return result, nil
}

func (s *ODRequestService) HodReject(ctx context.Context, actor models.Actor, id uuid.UUID, comment string) (*models.ODRequest, error) {
	req, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorizeHOD(actor, req); err != nil {
		return nil, err
	}
	if !hasStatus(req.Status, hodActionable) {
		return nil, conflictError("request is %s and cannot be rejected by the HOD", req.Status)
	}

	patch := models.StatusChange(models.ODStatusRejected, s.clock.Now())
	patch.HODComment = &comment

	updated, err := s.transition(ctx, actor, id, repository.Condition{Statuses: hodActionable}, patch)
	if err != nil {
		return nil, err
	}

	s.notifyStudent(updated)
	return updated, nil
}

func (s *ODRequestService) ForwardToHod(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.ODRequest, error) {
	if actor.Role != models.RoleAdmin {
		return nil, authorizationError("only admins can forward requests to the HOD")
	}
	req, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status != models.ODStatusForwardedToAdmin {
		return nil, conflictError("request is %s, not forwarded to admin", req.Status)
	}

	now := s.clock.Now()
	patch := models.StatusChange(models.ODStatusForwardedToHOD, now)
	patch.ForwardedToHODAt = &now

	return s.transition(ctx, actor, id, repository.Condition{Statuses: []models.ODStatus{models.ODStatusForwardedToAdmin}}, patch)
}

// GetApprovalArtifact returns the certificate of an HOD-approved request,
// generating it at most once.
func (s *ODRequestService) GetApprovalArtifact(ctx context.Context, actor models.Actor, id uuid.UUID) (*Artifact, error) {
	req, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(actor, req) {
		return nil, authorizationError("not authorized to download this certificate")
	}
	if req.Status != models.ODStatusApprovedByHOD {
		return nil, conflictError("request has not been approved by the HOD")
	}
	return s.artifacts.GetOrCreateApproval(ctx, id)
}

// GetODLetter returns the student's request letter for any request that has
// not been rejected.
func (s *ODRequestService) GetODLetter(ctx context.Context, actor models.Actor, id uuid.UUID) (*Artifact, error) {
	req, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(actor, req) {
		return nil, authorizationError("not authorized to download this letter")
	}
	if req.Status == models.ODStatusRejected {
		return nil, conflictError("request was rejected")
	}
	return s.artifacts.GetOrCreateODLetter(ctx, id)
}

// GetProofDocument returns the stored proof bytes and the key they live under.
func (s *ODRequestService) GetProofDocument(ctx context.Context, actor models.Actor, id uuid.UUID) (string, []byte, error) {
	req, err := s.load(ctx, id)
	if err != nil {
		return "", nil, err
	}
	if !canView(actor, req) {
		return "", nil, authorizationError("not authorized to view this proof")
	}
	if !req.ProofSubmitted || req.ProofDocument == "" {
		return "", nil, notFoundError("no proof submitted for this request")
	}
	data, err := s.storage.Store().Get(ctx, req.ProofDocument)
	if errors.Is(err, ErrObjectNotFound) {
		return "", nil, notFoundError("proof document is missing from storage")
	}
	if err != nil {
		return "", nil, fmt.Errorf("read proof: %w", err)
	}
	return req.ProofDocument, data, nil
}

func (s *ODRequestService) Get(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.ODRequest, error) {
	req, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(actor, req) {
		return nil, authorizationError("not authorized to view this request")
	}
	return req, nil
}

func (s *ODRequestService) ListForStudent(ctx context.Context, actor models.Actor, params utils.PaginationParams) ([]models.ODRequest, int64, error) {
	if actor.Role != models.RoleStudent {
		return nil, 0, authorizationError("only students have their own requests")
	}
	return s.find(ctx, repository.ODRequestFilter{StudentID: &actor.ID}, params)
}

func (s *ODRequestService) ListForAdvisor(ctx context.Context, actor models.Actor, params utils.PaginationParams) ([]models.ODRequest, int64, error) {
	if !actor.Role.IsStaff() {
		return nil, 0, authorizationError("only faculty can view advisee requests")
	}
	return s.find(ctx, repository.ODRequestFilter{ClassAdvisor: &actor.ID}, params)
}

func (s *ODRequestService) ListForHOD(ctx context.Context, actor models.Actor, params utils.PaginationParams) ([]models.ODRequest, int64, error) {
	if actor.Role != models.RoleHOD {
		return nil, 0, authorizationError("only HODs can view department requests")
	}
	return s.find(ctx, repository.ODRequestFilter{Department: actor.Department}, params)
}

// ListForAdmin is the escalation queue, optionally narrowed to one student.
func (s *ODRequestService) ListForAdmin(ctx context.Context, actor models.Actor, filter AdminListFilter) ([]models.ODRequest, int64, error) {
	if actor.Role != models.RoleAdmin {
		return nil, 0, authorizationError("only admins can view the escalation queue")
	}

	query := repository.ODRequestFilter{
		Statuses:           []models.ODStatus{models.ODStatusForwardedToAdmin},
		SortByStatusChange: true,
	}
	if registerNo := strings.TrimSpace(filter.RegisterNo); registerNo != "" {
		student, err := s.directory.StudentByRegisterNo(ctx, registerNo)
		if errors.Is(err, ErrNotFound) {
			return []models.ODRequest{}, 0, nil
		}
		if err != nil {
			return nil, 0, err
		}
		query.StudentID = &student.ID
	}
	return s.find(ctx, query, filter.PaginationParams)
}

func (s *ODRequestService) ListAll(ctx context.Context, actor models.Actor, params utils.PaginationParams) ([]models.ODRequest, int64, error) {
	if actor.Role != models.RoleAdmin {
		return nil, 0, authorizationError("only admins can view all requests")
	}
	return s.find(ctx, repository.ODRequestFilter{}, params)
}

func (s *ODRequestService) find(ctx context.Context, filter repository.ODRequestFilter, params utils.PaginationParams) ([]models.ODRequest, int64, error) {
	filter.Offset = params.Offset()
	filter.Limit = params.Limit
	requests, total, err := s.requests.Find(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list od requests: %w", err)
	}
	return requests, total, nil
}

func (s *ODRequestService) load(ctx context.Context, id uuid.UUID) (*models.ODRequest, error) {
	req, err := s.requests.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFoundError("OD request not found")
	}
	if err != nil {
		return nil, fmt.Errorf("load od request: %w", err)
	}
	return req, nil
}

// transition commits a status change and logs it.
func (s *ODRequestService) transition(ctx context.Context, actor models.Actor, id uuid.UUID, cond repository.Condition, patch models.ODRequestPatch) (*models.ODRequest, error) {
	updated, err := s.update(ctx, id, cond, patch)
	if err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{
		"request_id": id,
		"actor_id":   actor.ID,
		"status":     updated.Status,
	}).Info("OD request status changed")
	return updated, nil
}

// update maps store outcomes onto service errors. A failed condition means a
// concurrent writer moved the request first.
func (s *ODRequestService) update(ctx context.Context, id uuid.UUID, cond repository.Condition, patch models.ODRequestPatch) (*models.ODRequest, error) {
	updated, err := s.requests.Update(ctx, id, cond, patch)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, notFoundError("OD request not found")
	case errors.Is(err, repository.ErrConditionFailed):
		if current, loadErr := s.requests.GetByID(ctx, id); loadErr == nil {
			return nil, conflictError("request changed concurrently and is now %s", current.Status)
		}
		return nil, conflictError("request changed concurrently")
	case err != nil:
		return nil, fmt.Errorf("update od request: %w", err)
	}
	return updated, nil
}

func (s *ODRequestService) notifyStudent(req *models.ODRequest) {
	snapshot := *req
	s.dispatcher.Go("hod_decision", logrus.Fields{"request_id": req.ID}, func(ctx context.Context) error {
		student, err := s.directory.GetUser(ctx, snapshot.StudentID)
		if err != nil {
			return err
		}
		return s.notifier.HODDecision(ctx, &snapshot, student)
	})
}

// resolveTimeMode enforces that particular-hours requests carry both times and
// full-day requests carry neither.
func resolveTimeMode(input *CreateODRequestInput) (*time.Time, *time.Time, error) {
	switch input.TimeType {
	case models.TimeTypeFullDay:
		if input.StartTime != "" || input.EndTime != "" {
			return nil, nil, validationError("start and end time must be empty for full day requests")
		}
		return nil, nil, nil
	case models.TimeTypeParticularHours:
		if input.StartTime == "" || input.EndTime == "" {
			return nil, nil, validationError("start and end time are required for particular hours")
		}
		start, err := clockOn(input.StartDate, input.StartTime)
		if err != nil {
			return nil, nil, validationError("invalid start time %q", input.StartTime)
		}
		end, err := clockOn(input.StartDate, input.EndTime)
		if err != nil {
			return nil, nil, validationError("invalid end time %q", input.EndTime)
		}
		if !end.After(start) {
			return nil, nil, validationError("end time must be after start time")
		}
		return &start, &end, nil
	}
	return nil, nil, validationError("unknown time type %q", input.TimeType)
}

func clockOn(day time.Time, hhmm string) (time.Time, error) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, day.Location()), nil
}

func dayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func hasStatus(status models.ODStatus, set []models.ODStatus) bool {
	for _, s := range set {
		if s == status {
			return true
		}
	}
	return false
}

var allStatuses = []models.ODStatus{
	models.ODStatusPending,
	models.ODStatusApprovedByAdvisor,
	models.ODStatusApprovedByHOD,
	models.ODStatusRejected,
	models.ODStatusForwardedToAdmin,
	models.ODStatusForwardedToHOD,
}

func statusesExcept(excluded models.ODStatus) []models.ODStatus {
	out := make([]models.ODStatus, 0, len(allStatuses)-1)
	for _, s := range allStatuses {
		if s != excluded {
			out = append(out, s)
		}
	}
	return out
}

func idStrings(ids []uuid.UUID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}

func describeValidation(err error) string {
	fieldErrors := utils.GetValidationErrors(err)
	if len(fieldErrors) == 0 {
		return err.Error()
	}
	messages := make([]string, 0, len(fieldErrors))
	for _, fe := range fieldErrors {
		messages = append(messages, fe.Message)
	}
	return strings.Join(messages, "; ")
}
