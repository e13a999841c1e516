// internal/services/notification_service_test.go
package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"net/mail"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/od-approval-backend/internal/config"
	"github.com/javajoker/od-approval-backend/internal/models"
)

func newTestNotificationService() (*NotificationService, *recordingMailer) {
	mailer := &recordingMailer{}
	cfg := &config.Config{Frontend: config.FrontendConfig{BaseURL: "https://od.example.edu/"}}
	return NewNotificationService(mailer, cfg, testLogger()), mailer
}

func TestRequestSubmittedEmail(t *testing.T) {
	svc, mailer := newTestNotificationService()
	h := newWorkflowHarness()
	req := h.submit()
	h.dispatcher.Wait()

	require.NoError(t, svc.RequestSubmitted(context.Background(), req, h.student, h.advisor))
	require.Len(t, mailer.sent, 1)

	msg := mailer.sent[0]
	assert.Equal(t, []string{h.advisor.Email}, msg.To)
	assert.Equal(t, "New OD Request - National Symposium", msg.Subject)
	assert.Contains(t, msg.HTMLBody, "CSE2025001")
	assert.Contains(t, msg.HTMLBody, "https://od.example.edu/od-requests/"+req.ID.String())
	assert.Contains(t, msg.HTMLBody, "2 day(s)")
}

func TestProofVerifiedEmailAttachesCertificate(t *testing.T) {
	svc, mailer := newTestNotificationService()
	h := newWorkflowHarness()
	req := h.submit()
	h.dispatcher.Wait()

	recipients := []models.User{*h.advisor, *h.otherFaculty, *h.advisor}
	certificate := &Artifact{Key: ApprovalArtifactKey(req.ID), Data: []byte("%PDF cert")}
	require.NoError(t, svc.ProofVerified(context.Background(), req, h.student, recipients, certificate))

	require.Len(t, mailer.sent, 1)
	msg := mailer.sent[0]
	assert.Equal(t, []string{h.advisor.Email, h.otherFaculty.Email}, msg.To)
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "approved_"+req.ID.String()+".pdf", msg.Attachments[0].Filename)
	assert.Equal(t, pdfContentType, msg.Attachments[0].ContentType)
	assert.Contains(t, msg.HTMLBody, "certificate is attached")
}

func TestHODDecisionPicksTemplate(t *testing.T) {
	svc, mailer := newTestNotificationService()
	h := newWorkflowHarness()
	req := h.submit()
	h.dispatcher.Wait()

	req.Status = models.ODStatusRejected
	req.HODComment = "Clashes with exams"
	require.NoError(t, svc.HODDecision(context.Background(), req, h.student))

	req.Status = models.ODStatusApprovedByHOD
	req.Remarks = "All the best"
	require.NoError(t, svc.HODDecision(context.Background(), req, h.student))

	require.Len(t, mailer.sent, 2)
	assert.True(t, strings.HasPrefix(mailer.sent[0].Subject, "OD Request Rejected"))
	assert.Contains(t, mailer.sent[0].HTMLBody, "Clashes with exams")
	assert.True(t, strings.HasPrefix(mailer.sent[1].Subject, "OD Request Approved"))
	assert.Contains(t, mailer.sent[1].HTMLBody, "All the best")
}

func TestEscalatedWithoutAdminsSendsNothing(t *testing.T) {
	svc, mailer := newTestNotificationService()
	h := newWorkflowHarness()
	req := h.submit()
	h.dispatcher.Wait()

	require.NoError(t, svc.Escalated(context.Background(), []models.ODRequest{*req}, nil))
	assert.Empty(t, mailer.sent)
}

func TestEscalatedListsEveryRequest(t *testing.T) {
	svc, mailer := newTestNotificationService()
	h := newWorkflowHarness()
	first, second := h.submit(), h.submit()
	h.dispatcher.Wait()

	admins := []models.User{*h.adminUser}
	require.NoError(t, svc.Escalated(context.Background(), []models.ODRequest{*first, *second}, admins))
	require.Len(t, mailer.sent, 1)

	msg := mailer.sent[0]
	assert.Equal(t, []string{h.adminUser.Email}, msg.To)
	assert.Contains(t, msg.HTMLBody, "2 OD request(s)")
	assert.Contains(t, msg.HTMLBody, first.ID.String())
	assert.Contains(t, msg.HTMLBody, second.ID.String())
}

func TestBuildMessage(t *testing.T) {
	data := []byte(strings.Repeat("certificate-bytes ", 20))
	cfg := config.EmailConfig{FromEmail: "noreply@college.edu", FromName: "OD Portal"}
	message, err := buildMessage(cfg, EmailMessage{
		To:       []string{"a@college.edu", "b@college.edu"},
		Subject:  "OD Proof Verified",
		HTMLBody: "<p>verified</p>",
		Attachments: []Attachment{{
			Filename:    "approved_x.pdf",
			ContentType: pdfContentType,
			Data:        data,
		}},
	})
	require.NoError(t, err)

	var raw bytes.Buffer
	_, err = message.WriteTo(&raw)
	require.NoError(t, err)

	parsed, err := mail.ReadMessage(bytes.NewReader(raw.Bytes()))
	require.NoError(t, err)
	to, err := parsed.Header.AddressList("To")
	require.NoError(t, err)
	require.Len(t, to, 2)
	assert.Equal(t, "a@college.edu", to[0].Address)
	assert.Equal(t, "b@college.edu", to[1].Address)
	from, err := mail.ParseAddress(parsed.Header.Get("From"))
	require.NoError(t, err)
	assert.Equal(t, "OD Portal", from.Name)
	assert.Equal(t, "OD Proof Verified", parsed.Header.Get("Subject"))

	text := raw.String()
	assert.Contains(t, text, "multipart/mixed")
	assert.Contains(t, text, "<p>verified</p>")
	assert.Contains(t, text, "approved_x.pdf")
	assert.Contains(t, strings.ReplaceAll(text, "\r\n", ""), base64.StdEncoding.EncodeToString(data))
}

func TestBuildMessageKeepsSubjectInOneHeader(t *testing.T) {
	cfg := config.EmailConfig{FromEmail: "noreply@college.edu"}
	message, err := buildMessage(cfg, EmailMessage{
		To:       []string{"advisor@college.edu"},
		Subject:  "New OD Request - Symposium\r\nBcc: attacker@evil.test",
		HTMLBody: "<p>hi</p>",
	})
	require.NoError(t, err)

	var raw bytes.Buffer
	_, err = message.WriteTo(&raw)
	require.NoError(t, err)

	parsed, err := mail.ReadMessage(bytes.NewReader(raw.Bytes()))
	require.NoError(t, err)
	assert.Empty(t, parsed.Header.Get("Bcc"))
	assert.NotContains(t, raw.String(), "\r\nBcc:")
}

func TestSubjectCollapsesLineBreaks(t *testing.T) {
	svc, mailer := newTestNotificationService()
	h := newWorkflowHarness()
	req := h.submit()
	h.dispatcher.Wait()

	req.EventName = "Symposium\r\nBcc: attacker@evil.test"
	require.NoError(t, svc.RequestSubmitted(context.Background(), req, h.student, h.advisor))
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "New OD Request - Symposium Bcc: attacker@evil.test", mailer.sent[0].Subject)
}

func TestProofVerifiedEmailWithoutCertificate(t *testing.T) {
	svc, mailer := newTestNotificationService()
	h := newWorkflowHarness()
	req := h.submit()
	h.dispatcher.Wait()

	require.NoError(t, svc.ProofVerified(context.Background(), req, h.student, []models.User{*h.advisor}, nil))
	require.Len(t, mailer.sent, 1)
	assert.Empty(t, mailer.sent[0].Attachments)
	assert.NotContains(t, mailer.sent[0].HTMLBody, "certificate is attached")
}

func TestSMTPMailerWithoutHostOnlyLogs(t *testing.T) {
	mailer := NewSMTPMailer(config.EmailConfig{}, testLogger())
	assert.NoError(t, mailer.Send(context.Background(), EmailMessage{To: []string{"x@college.edu"}, Subject: "s"}))
}

func TestDispatcherIsolatesFailures(t *testing.T) {
	dispatcher := NewDispatcher(50*time.Millisecond, testLogger())
	var ran int32

	dispatcher.Go("fails", nil, func(ctx context.Context) error {
		atomic.AddInt32(&ran, 1)
		return errors.New("boom")
	})
	dispatcher.Go("panics", nil, func(ctx context.Context) error {
		atomic.AddInt32(&ran, 1)
		panic("unexpected")
	})
	dispatcher.Go("times out", nil, func(ctx context.Context) error {
		atomic.AddInt32(&ran, 1)
		<-ctx.Done()
		return ctx.Err()
	})
	dispatcher.Wait()

	assert.EqualValues(t, 3, atomic.LoadInt32(&ran))
}
