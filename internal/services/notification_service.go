// internal/services/notification_service.go
package services

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/wneessen/go-mail"

	"github.com/javajoker/od-approval-backend/internal/config"
	"github.com/javajoker/od-approval-backend/internal/models"
)

// Notifier sends the workflow's emails. Calls are made after the triggering
// transition has committed; an error never undoes the transition.
type Notifier interface {
	RequestSubmitted(ctx context.Context, req *models.ODRequest, student, advisor *models.User) error
	ProofVerified(ctx context.Context, req *models.ODRequest, student *models.User, recipients []models.User, certificate *Artifact) error
	HODDecision(ctx context.Context, req *models.ODRequest, student *models.User) error
	// Escalated reports every request one sweep moved to the admin queue.
	Escalated(ctx context.Context, reqs []models.ODRequest, admins []models.User) error
}

type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

type EmailMessage struct {
	To          []string
	Subject     string
	HTMLBody    string
	Attachments []Attachment
}

type Mailer interface {
	Send(ctx context.Context, msg EmailMessage) error
}

type EmailTemplate struct {
	Subject string
	Body    string
}

type NotificationService struct {
	mailer   Mailer
	config   *config.Config
	logger   *logrus.Entry
	template map[string]*template.Template
}

func NewNotificationService(mailer Mailer, cfg *config.Config, logger *logrus.Entry) *NotificationService {
	s := &NotificationService{
		mailer:   mailer,
		config:   cfg,
		logger:   logger.WithField("component", "notifications"),
		template: make(map[string]*template.Template),
	}
	for name, tmpl := range emailTemplates {
		s.template[name] = template.Must(template.New(name).Parse(tmpl.Body))
	}
	return s
}

func (s *NotificationService) RequestSubmitted(ctx context.Context, req *models.ODRequest, student, advisor *models.User) error {
	if advisor == nil || advisor.Email == "" {
		return fmt.Errorf("advisor has no email address")
	}

	data := map[string]interface{}{
		"AdvisorName": advisor.Name,
		"StudentName": student.Name,
		"RegisterNo":  student.RegisterNumber(),
		"EventName":   req.EventName,
		"StartDate":   req.StartDate.Format(dateLayout),
		"EndDate":     req.EndDate.Format(dateLayout),
		"Days":        req.DaysRequired(),
		"Reason":      req.Reason,
		"RequestURL":  s.requestURL(req),
	}
	return s.send(ctx, "request_submitted", []string{advisor.Email}, data, nil)
}

func (s *NotificationService) ProofVerified(ctx context.Context, req *models.ODRequest, student *models.User, recipients []models.User, certificate *Artifact) error {
	to := emails(recipients)
	if len(to) == 0 {
		return nil
	}

	data := map[string]interface{}{
		"StudentName": student.Name,
		"RegisterNo":  student.RegisterNumber(),
		"Department":  req.Department,
		"EventName":   req.EventName,
		"StartDate":   req.StartDate.Format(dateLayout),
		"EndDate":     req.EndDate.Format(dateLayout),
		"Days":        req.DaysRequired(),
		"Certificate": certificate != nil,
	}

	var attachments []Attachment
	if certificate != nil {
		attachments = append(attachments, Attachment{
			Filename:    fmt.Sprintf("approved_%s.pdf", req.ID),
			ContentType: pdfContentType,
			Data:        certificate.Data,
		})
	}
	return s.send(ctx, "proof_verified", to, data, attachments)
}

func (s *NotificationService) HODDecision(ctx context.Context, req *models.ODRequest, student *models.User) error {
	if student == nil || student.Email == "" {
		return fmt.Errorf("student has no email address")
	}

	name := "hod_approved"
	if req.Status == models.ODStatusRejected {
		name = "hod_rejected"
	}
	data := map[string]interface{}{
		"StudentName": student.Name,
		"EventName":   req.EventName,
		"Remarks":     req.Remarks,
		"Comment":     req.HODComment,
		"RequestURL":  s.requestURL(req),
	}
	return s.send(ctx, name, []string{student.Email}, data, nil)
}

func (s *NotificationService) Escalated(ctx context.Context, reqs []models.ODRequest, admins []models.User) error {
	to := emails(admins)
	if len(to) == 0 || len(reqs) == 0 {
		return nil
	}

	type escalatedRow struct {
		EventName  string
		Department string
		RequestID  string
		RequestURL string
	}
	rows := make([]escalatedRow, 0, len(reqs))
	for i := range reqs {
		rows = append(rows, escalatedRow{
			EventName:  reqs[i].EventName,
			Department: reqs[i].Department,
			RequestID:  reqs[i].ID.String(),
			RequestURL: s.requestURL(&reqs[i]),
		})
	}

	data := map[string]interface{}{
		"Count":    len(rows),
		"Requests": rows,
		"QueueURL": strings.TrimRight(s.config.Frontend.BaseURL, "/") + "/admin",
	}
	return s.send(ctx, "escalated", to, data, nil)
}

func (s *NotificationService) send(ctx context.Context, name string, to []string, data interface{}, attachments []Attachment) error {
	tmpl, ok := s.template[name]
	if !ok {
		return fmt.Errorf("unknown email template %q", name)
	}

	var body bytes.Buffer
	if err := tmpl.Execute(&body, data); err != nil {
		return fmt.Errorf("failed to render email template: %w", err)
	}

	subject := emailTemplates[name].Subject
	if m, ok := data.(map[string]interface{}); ok {
		if event, ok := m["EventName"].(string); ok && event != "" {
			subject = subject + " - " + event
		}
	}
	subject = strings.Join(strings.Fields(subject), " ")

	return s.mailer.Send(ctx, EmailMessage{
		To:          to,
		Subject:     subject,
		HTMLBody:    body.String(),
		Attachments: attachments,
	})
}

func (s *NotificationService) requestURL(req *models.ODRequest) string {
	return fmt.Sprintf("%s/od-requests/%s", strings.TrimRight(s.config.Frontend.BaseURL, "/"), req.ID)
}

func emails(users []models.User) []string {
	seen := make(map[string]bool, len(users))
	out := make([]string, 0, len(users))
	for _, u := range users {
		addr := strings.TrimSpace(u.Email)
		if addr == "" || seen[strings.ToLower(addr)] {
			continue
		}
		seen[strings.ToLower(addr)] = true
		out = append(out, addr)
	}
	return out
}

var emailTemplates = map[string]EmailTemplate{
	"request_submitted": {
		Subject: "New OD Request",
		Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>New OD Request</h2>
	<p>Dear {{.AdvisorName}},</p>
	<p>{{.StudentName}} ({{.RegisterNo}}) has requested On-Duty permission for "{{.EventName}}"
	from {{.StartDate}} to {{.EndDate}} ({{.Days}} day(s)).</p>
	<p>Reason: {{.Reason}}</p>
	<a href="{{.RequestURL}}">Review Request</a>
</body>
</html>`,
	},
	"proof_verified": {
		Subject: "OD Proof Verified",
		Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>OD Proof Verified</h2>
	<p>The proof submitted by {{.StudentName}} ({{.RegisterNo}}), Department of {{.Department}},
	for "{{.EventName}}" ({{.StartDate}} to {{.EndDate}}, {{.Days}} day(s)) has been verified.</p>
	{{if .Certificate}}<p>The approval certificate is attached.</p>{{end}}
</body>
</html>`,
	},
	"hod_approved": {
		Subject: "OD Request Approved",
		Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>OD Request Approved</h2>
	<p>Dear {{.StudentName}},</p>
	<p>Your OD request for "{{.EventName}}" has been approved by the HOD.</p>
	{{if .Remarks}}<p>Remarks: {{.Remarks}}</p>{{end}}
	<a href="{{.RequestURL}}">Download Approval</a>
</body>
</html>`,
	},
	"hod_rejected": {
		Subject: "OD Request Rejected",
		Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>OD Request Rejected</h2>
	<p>Dear {{.StudentName}},</p>
	<p>Your OD request for "{{.EventName}}" has been rejected by the HOD.</p>
	{{if .Comment}}<p>Comment: {{.Comment}}</p>{{end}}
	<a href="{{.RequestURL}}">View Request</a>
</body>
</html>`,
	},
	"escalated": {
		Subject: "OD Requests Escalated",
		Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>OD Requests Escalated</h2>
	<p>{{.Count}} OD request(s) were not reviewed in time and have been forwarded to the admin queue.</p>
	<ul>
	{{range .Requests}}<li><a href="{{.RequestURL}}">{{.EventName}}</a> ({{.Department}}), request {{.RequestID}}</li>
	{{end}}</ul>
	<a href="{{.QueueURL}}">Open Admin Queue</a>
</body>
</html>`,
	},
}

// Dispatcher runs notifications in the background with a per-call timeout.
// Failures are logged and never reach the caller of the transition.
type Dispatcher struct {
	timeout time.Duration
	logger  *logrus.Entry
	wg      sync.WaitGroup
}

func NewDispatcher(timeout time.Duration, logger *logrus.Entry) *Dispatcher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Dispatcher{timeout: timeout, logger: logger.WithField("component", "dispatcher")}
}

func (d *Dispatcher) Go(event string, fields logrus.Fields, fn func(ctx context.Context) error) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.logger.WithFields(fields).WithField("event", event).Errorf("Notification panicked: %v", r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			d.logger.WithFields(fields).WithField("event", event).WithError(err).Warn("Notification failed")
		}
	}()
}

// Wait blocks until every dispatched notification has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// SMTPMailer delivers mail through an SMTP relay. With no host configured it
// only logs what would have been sent.
type SMTPMailer struct {
	cfg    config.EmailConfig
	logger *logrus.Entry
}

func NewSMTPMailer(cfg config.EmailConfig, logger *logrus.Entry) *SMTPMailer {
	return &SMTPMailer{cfg: cfg, logger: logger.WithField("component", "smtp")}
}

func (m *SMTPMailer) Send(ctx context.Context, msg EmailMessage) error {
	if m.cfg.SMTPHost == "" {
		// Email not configured, just log
		m.logger.WithFields(logrus.Fields{
			"to":          msg.To,
			"subject":     msg.Subject,
			"attachments": len(msg.Attachments),
		}).Info("Email would be sent")
		return nil
	}

	message, err := buildMessage(m.cfg, msg)
	if err != nil {
		return err
	}
	client, err := m.client()
	if err != nil {
		return err
	}
	if err := client.DialAndSendWithContext(ctx, message); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func (m *SMTPMailer) client() (*mail.Client, error) {
	port, err := strconv.Atoi(m.cfg.SMTPPort)
	if err != nil {
		return nil, fmt.Errorf("invalid smtp port %q: %w", m.cfg.SMTPPort, err)
	}

	opts := []mail.Option{
		mail.WithPort(port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	// Setup authentication
	if m.cfg.SMTPUsername != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.cfg.SMTPUsername),
			mail.WithPassword(m.cfg.SMTPPassword),
		)
	}

	client, err := mail.NewClient(m.cfg.SMTPHost, opts...)
	if err != nil {
		return nil, fmt.Errorf("create smtp client: %w", err)
	}
	return client, nil
}

// buildMessage assembles the outgoing message. Header values are encoded by
// go-mail, so free text in the subject cannot add headers.
func buildMessage(cfg config.EmailConfig, msg EmailMessage) (*mail.Msg, error) {
	message := mail.NewMsg()

	var err error
	if cfg.FromName != "" {
		err = message.FromFormat(cfg.FromName, cfg.FromEmail)
	} else {
		err = message.From(cfg.FromEmail)
	}
	if err != nil {
		return nil, fmt.Errorf("invalid sender: %w", err)
	}
	if err := message.To(msg.To...); err != nil {
		return nil, fmt.Errorf("invalid recipients: %w", err)
	}

	message.Subject(msg.Subject)
	message.SetBodyString(mail.TypeTextHTML, msg.HTMLBody)

	for _, a := range msg.Attachments {
		if err := message.AttachReader(a.Filename, bytes.NewReader(a.Data),
			mail.WithFileContentType(mail.ContentType(a.ContentType))); err != nil {
			return nil, fmt.Errorf("attach %s: %w", a.Filename, err)
		}
	}
	return message, nil
}
