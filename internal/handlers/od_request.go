// internal/handlers/od_request.go
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/od-approval-backend/internal/i18n"
	"github.com/javajoker/od-approval-backend/internal/models"
	"github.com/javajoker/od-approval-backend/internal/services"
	"github.com/javajoker/od-approval-backend/internal/utils"
)

const dateLayout = "2006-01-02"

type ODRequestHandler struct {
	odService *services.ODRequestService
	logger    *logrus.Entry
}

// CreateODRequestBody is the wire form of a new request. Dates are accepted
// as YYYY-MM-DD or RFC 3339.
type CreateODRequestBody struct {
	EventName     string          `json:"event_name" validate:"required,max=255,single_line"`
	EventDate     string          `json:"event_date" validate:"required"`
	StartDate     string          `json:"start_date" validate:"required"`
	EndDate       string          `json:"end_date" validate:"required"`
	TimeType      models.TimeType `json:"time_type" validate:"required,time_type"`
	StartTime     string          `json:"start_time,omitempty" validate:"omitempty,hhmm"`
	EndTime       string          `json:"end_time,omitempty" validate:"omitempty,hhmm"`
	Reason        string          `json:"reason" validate:"required,max=2000"`
	Brochure      string          `json:"brochure,omitempty" validate:"max=512"`
	NotifyFaculty []uuid.UUID     `json:"notify_faculty,omitempty"`
}

func NewODRequestHandler(odService *services.ODRequestService, logger *logrus.Entry) *ODRequestHandler {
	return &ODRequestHandler{
		odService: odService,
		logger:    logger,
	}
}

// POST /od-requests
func (h *ODRequestHandler) Create(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	var body CreateODRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}

	// Validate request
	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&body)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	input, err := body.toInput()
	if err != nil {
		utils.BadRequestResponse(c, err.Error(), nil)
		return
	}

	req, err := h.odService.Create(c.Request.Context(), actor, input)
	if err != nil {
		respondError(c, h.logger, err, "od_request")
		return
	}

	utils.CreatedResponse(c, i18n.KeyODRequestCreated, gin.H{"od_request": req})
}

// GET /od-requests/my-requests
func (h *ODRequestHandler) ListMine(c *gin.Context) {
	h.list(c, h.odService.ListForStudent)
}

// GET /od-requests/advisor
func (h *ODRequestHandler) ListForAdvisor(c *gin.Context) {
	h.list(c, h.odService.ListForAdvisor)
}

// GET /od-requests/hod
func (h *ODRequestHandler) ListForHOD(c *gin.Context) {
	h.list(c, h.odService.ListForHOD)
}

// GET /od-requests/admin/all
func (h *ODRequestHandler) ListAll(c *gin.Context) {
	h.list(c, h.odService.ListAll)
}

// GET /od-requests/admin
func (h *ODRequestHandler) ListForAdmin(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	filter := services.AdminListFilter{
		RegisterNo:       strings.TrimSpace(c.Query("register_no")),
		PaginationParams: utils.GetPaginationParams(c),
	}
	requests, total, err := h.odService.ListForAdmin(c.Request.Context(), actor, filter)
	if err != nil {
		respondError(c, h.logger, err, "od_request")
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(requests, total, filter.PaginationParams))
}

type listFunc func(ctx context.Context, actor models.Actor, params utils.PaginationParams) ([]models.ODRequest, int64, error)

func (h *ODRequestHandler) list(c *gin.Context, fn listFunc) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	params := utils.GetPaginationParams(c)
	requests, total, err := fn(c.Request.Context(), actor, params)
	if err != nil {
		respondError(c, h.logger, err, "od_request")
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(requests, total, params))
}

// GET /od-requests/:id
func (h *ODRequestHandler) Get(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	req, err := h.odService.Get(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, h.logger, err, "od_request")
		return
	}

	utils.SuccessResponse(c, gin.H{"od_request": req})
}

// PUT /od-requests/:id/advisor-approve
func (h *ODRequestHandler) AdvisorApprove(c *gin.Context) {
	actor, id, ok := h.target(c)
	if !ok {
		return
	}
	var body services.CommentInput
	if !bindOptionalJSON(c, &body) {
		return
	}

	req, err := h.odService.AdvisorApprove(c.Request.Context(), actor, id, body.Comment)
	if err != nil {
		respondError(c, h.logger, err, "od_request")
		return
	}

	utils.SuccessMessageResponse(c, i18n.KeyODRequestApproved, gin.H{"od_request": req})
}

// PUT /od-requests/:id/advisor-reject
func (h *ODRequestHandler) AdvisorReject(c *gin.Context) {
	actor, id, ok := h.target(c)
	if !ok {
		return
	}
	var body services.CommentInput
	if !bindOptionalJSON(c, &body) {
		return
	}

	req, err := h.odService.AdvisorReject(c.Request.Context(), actor, id, body.Comment)
	if err != nil {
		respondError(c, h.logger, err, "od_request")
		return
	}

	utils.SuccessMessageResponse(c, i18n.KeyODRequestRejected, gin.H{"od_request": req})
}

// POST /od-requests/:id/submit-proof
// Multipart form: proofDocument (file), notifyFaculty (optional JSON array of ids).
func (h *ODRequestHandler) SubmitProof(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	actor, id, ok := h.target(c)
	if !ok {
		return
	}

	header, err := c.FormFile("proofDocument")
	if err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyProofRequired), nil)
		return
	}

	notifyFaculty, err := parseNotifyFaculty(c.PostForm("notifyFaculty"))
	if err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "notifyFaculty"), err.Error())
		return
	}

	file, err := header.Open()
	if err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyProofRequired), err.Error())
		return
	}
	defer file.Close()

	upload := &services.FileUpload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	}
	req, err := h.odService.SubmitProof(c.Request.Context(), actor, id, upload, notifyFaculty)
	if err != nil {
		respondError(c, h.logger, err, "od_request")
		return
	}

	utils.SuccessMessageResponse(c, i18n.KeyProofSubmitted, gin.H{"od_request": req})
}

// PUT /od-requests/:id/verify-proof
func (h *ODRequestHandler) VerifyProof(c *gin.Context) {
	actor, id, ok := h.target(c)
	if !ok {
		return
	}

	result, err := h.odService.VerifyProof(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, h.logger, err, "od_request")
		return
	}

	utils.SuccessMessageResponse(c, i18n.KeyProofVerified, gin.H{
		"od_request": result.Request,
		"warnings":   result.Warnings,
	})
}

// PUT /od-requests/:id/hod-approve
func (h *ODRequestHandler) HodApprove(c *gin.Context) {
	actor, id, ok := h.target(c)
	if !ok {
		return
	}
	var body services.RemarksInput
	if !bindOptionalJSON(c, &body) {
		return
	}

	result, err := h.odService.HodApprove(c.Request.Context(), actor, id, body.Remarks)
	if err != nil {
		respondError(c, h.logger, err, "od_request")
		return
	}

	utils.SuccessMessageResponse(c, i18n.KeyODRequestApproved, gin.H{
		"od_request": result.Request,
		"warnings":   result.Warnings,
	})
}

// PUT /od-requests/:id/hod-reject
func (h *ODRequestHandler) HodReject(c *gin.Context) {
	actor, id, ok := h.target(c)
	if !ok {
		return
	}
	var body services.CommentInput
	if !bindOptionalJSON(c, &body) {
		return
	}

	req, err := h.odService.HodReject(c.Request.Context(), actor, id, body.Comment)
	if err != nil {
		respondError(c, h.logger, err, "od_request")
		return
	}

	utils.SuccessMessageResponse(c, i18n.KeyODRequestRejected, gin.H{"od_request": req})
}

// PUT /od-requests/:id/forward-to-hod
func (h *ODRequestHandler) ForwardToHod(c *gin.Context) {
	actor, id, ok := h.target(c)
	if !ok {
		return
	}

	req, err := h.odService.ForwardToHod(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, h.logger, err, "od_request")
		return
	}

	utils.SuccessMessageResponse(c, i18n.KeyODRequestForwarded, gin.H{"od_request": req})
}

// GET /od-requests/:id/download-approved-pdf
func (h *ODRequestHandler) DownloadApprovedPDF(c *gin.Context) {
	actor, id, ok := h.target(c)
	if !ok {
		return
	}

	artifact, err := h.odService.GetApprovalArtifact(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, h.logger, err, "od_request")
		return
	}

	sendPDF(c, path.Base(services.ApprovalArtifactKey(id)), artifact.Data)
}

// GET /od-requests/:id/od-letter
func (h *ODRequestHandler) DownloadODLetter(c *gin.Context) {
	actor, id, ok := h.target(c)
	if !ok {
		return
	}

	artifact, err := h.odService.GetODLetter(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, h.logger, err, "od_request")
		return
	}

	sendPDF(c, path.Base(services.ODLetterKey(id)), artifact.Data)
}

// GET /od-requests/:id/proof
func (h *ODRequestHandler) DownloadProof(c *gin.Context) {
	actor, id, ok := h.target(c)
	if !ok {
		return
	}

	key, data, err := h.odService.GetProofDocument(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, h.logger, err, "od_request")
		return
	}

	filename := path.Base(key)
	if strings.EqualFold(path.Ext(filename), ".pdf") {
		sendPDF(c, filename, data)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, contentTypeFor(filename), data)
}

func (h *ODRequestHandler) target(c *gin.Context) (models.Actor, uuid.UUID, bool) {
	actor, ok := currentActor(c)
	if !ok {
		return models.Actor{}, uuid.Nil, false
	}
	id, ok := parseID(c, "id")
	if !ok {
		return models.Actor{}, uuid.Nil, false
	}
	return actor, id, true
}

func (b *CreateODRequestBody) toInput() (*services.CreateODRequestInput, error) {
	eventDate, err := parseDate("event_date", b.EventDate)
	if err != nil {
		return nil, err
	}
	startDate, err := parseDate("start_date", b.StartDate)
	if err != nil {
		return nil, err
	}
	endDate, err := parseDate("end_date", b.EndDate)
	if err != nil {
		return nil, err
	}

	return &services.CreateODRequestInput{
		EventName:     b.EventName,
		EventDate:     eventDate,
		StartDate:     startDate,
		EndDate:       endDate,
		TimeType:      b.TimeType,
		StartTime:     b.StartTime,
		EndTime:       b.EndTime,
		Reason:        b.Reason,
		Brochure:      b.Brochure,
		NotifyFaculty: b.NotifyFaculty,
	}, nil
}

func parseDate(field, value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(dateLayout, value); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("%s must be a date (YYYY-MM-DD)", field)
}

// parseNotifyFaculty returns nil for an absent field so the stored list is
// kept, and an empty slice for "[]" so it is cleared.
func parseNotifyFaculty(raw string) ([]uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	ids := []uuid.UUID{}
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func contentTypeFor(filename string) string {
	switch strings.ToLower(path.Ext(filename)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}
