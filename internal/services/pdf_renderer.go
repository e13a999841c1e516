// internal/services/pdf_renderer.go
package services

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/javajoker/od-approval-backend/internal/models"
)

// DocumentData is everything a rendered OD document prints.
type DocumentData struct {
	Request      *models.ODRequest
	Student      *models.User
	ClassAdvisor *models.User
	HOD          *models.User
	Institution  string
	GeneratedAt  time.Time
}

type DocumentRenderer interface {
	// RenderApproval builds the approval certificate of an approved request.
	RenderApproval(ctx context.Context, data DocumentData) ([]byte, error)
	// RenderODLetter builds the student's request letter addressed to the HOD.
	RenderODLetter(ctx context.Context, data DocumentData) ([]byte, error)
}

type PDFRenderer struct{}

func NewPDFRenderer() *PDFRenderer {
	return &PDFRenderer{}
}

const dateLayout = "02 Jan 2006"

func (r *PDFRenderer) RenderApproval(ctx context.Context, data DocumentData) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	req := data.Request

	pdf := newDocument(data, "OD Approval Certificate")
	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 12, "ON-DUTY APPROVAL CERTIFICATE", "", 1, "C", false, 0, "")
	pdf.Ln(6)

	pdf.SetFont("Helvetica", "", 12)
	pdf.MultiCell(0, 7, fmt.Sprintf(
		"This is to certify that %s (Register No. %s), %s year, Department of %s, "+
			"has been granted On-Duty permission to attend \"%s\".",
		nameOf(data.Student), registerNoOf(data.Student), req.Year, req.Department, req.EventName,
	), "", "L", false)
	pdf.Ln(4)

	writeDetails(pdf, req)
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 8, "Approvals", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	writeRow(pdf, "Class Advisor", nameOf(data.ClassAdvisor))
	if req.AdvisorApprovedAt != nil {
		writeRow(pdf, "Advisor approved on", req.AdvisorApprovedAt.Format(dateLayout))
	}
	if req.AdvisorComment != "" {
		writeRow(pdf, "Advisor comment", req.AdvisorComment)
	}
	writeRow(pdf, "Head of Department", nameOf(data.HOD))
	if req.HODApprovedAt != nil {
		writeRow(pdf, "HOD approved on", req.HODApprovedAt.Format(dateLayout))
	}
	if req.Remarks != "" {
		writeRow(pdf, "HOD remarks", req.Remarks)
	}
	if req.ProofVerified && req.ProofVerifiedAt != nil {
		writeRow(pdf, "Proof verified on", req.ProofVerifiedAt.Format(dateLayout))
	}

	pdf.Ln(8)
	pdf.SetFont("Helvetica", "I", 9)
	pdf.CellFormat(0, 6, fmt.Sprintf("Request ID: %s", req.ID), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Generated on %s", data.GeneratedAt.Format(dateLayout)), "", 1, "L", false, 0, "")

	return output(pdf)
}

func (r *PDFRenderer) RenderODLetter(ctx context.Context, data DocumentData) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	req := data.Request

	pdf := newDocument(data, "OD Request Letter")
	pdf.SetFont("Helvetica", "", 12)
	pdf.CellFormat(0, 7, "From", "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 7, fmt.Sprintf("%s (%s)", nameOf(data.Student), registerNoOf(data.Student)), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 7, fmt.Sprintf("%s year, Department of %s", req.Year, req.Department), "", 1, "L", false, 0, "")
	pdf.Ln(4)
	pdf.CellFormat(0, 7, "To", "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 7, fmt.Sprintf("The Head of Department, %s", req.Department), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 7, data.Institution, "", 1, "L", false, 0, "")
	pdf.Ln(4)
	pdf.CellFormat(0, 7, "Through: "+nameOf(data.ClassAdvisor)+", Class Advisor", "", 1, "L", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 7, "Subject: Request for On-Duty permission - "+req.EventName, "", 1, "L", false, 0, "")
	pdf.Ln(2)
	pdf.SetFont("Helvetica", "", 12)
	pdf.MultiCell(0, 7, fmt.Sprintf(
		"Respected Sir/Madam, I kindly request On-Duty permission for %d day(s) to attend \"%s\". %s",
		req.DaysRequired(), req.EventName, req.Reason,
	), "", "L", false)
	pdf.Ln(4)

	writeDetails(pdf, req)
	pdf.Ln(10)
	pdf.CellFormat(0, 7, "Yours faithfully,", "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 7, nameOf(data.Student), "", 1, "L", false, 0, "")

	return output(pdf)
}

func newDocument(data DocumentData, title string) *fpdf.Fpdf {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(title, true)
	pdf.SetAuthor(data.Institution, true)
	pdf.SetCreationDate(data.GeneratedAt)
	pdf.SetModificationDate(data.GeneratedAt)
	pdf.SetCatalogSort(true)
	pdf.SetMargins(20, 20, 20)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 8, data.Institution, "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(0, 6, "Department of "+data.Request.Department, "", 1, "C", false, 0, "")
	pdf.Ln(6)
	return pdf
}

func writeDetails(pdf *fpdf.Fpdf, req *models.ODRequest) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 8, "Event details", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	writeRow(pdf, "Event", req.EventName)
	writeRow(pdf, "Event date", req.EventDate.Format(dateLayout))
	writeRow(pdf, "From", req.StartDate.Format(dateLayout))
	writeRow(pdf, "To", req.EndDate.Format(dateLayout))
	writeRow(pdf, "Days required", fmt.Sprintf("%d", req.DaysRequired()))
	if req.TimeType == models.TimeTypeParticularHours && req.StartTime != nil && req.EndTime != nil {
		writeRow(pdf, "Hours", fmt.Sprintf("%s - %s", req.StartTime.Format("15:04"), req.EndTime.Format("15:04")))
	} else {
		writeRow(pdf, "Hours", "Full day")
	}
	writeRow(pdf, "Reason", req.Reason)
}

func writeRow(pdf *fpdf.Fpdf, label, value string) {
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(50, 7, label+":", "", 0, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	pdf.MultiCell(0, 7, value, "", "L", false)
}

func output(pdf *fpdf.Fpdf) ([]byte, error) {
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func nameOf(u *models.User) string {
	if u == nil {
		return "N/A"
	}
	return u.Name
}

func registerNoOf(u *models.User) string {
	if u == nil || u.RegisterNumber() == "" {
		return "N/A"
	}
	return u.RegisterNumber()
}
