// internal/services/fixtures_test.go
package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/od-approval-backend/internal/config"
	"github.com/javajoker/od-approval-backend/internal/models"
	"github.com/javajoker/od-approval-backend/internal/repository"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{now: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeRenderer produces small deterministic documents and counts calls.
type fakeRenderer struct {
	approvals int32
	letters   int32
	fail      atomic.Bool
	delay     time.Duration
}

func (r *fakeRenderer) RenderApproval(ctx context.Context, data DocumentData) ([]byte, error) {
	atomic.AddInt32(&r.approvals, 1)
	return r.render(ctx, "approval", data)
}

func (r *fakeRenderer) RenderODLetter(ctx context.Context, data DocumentData) ([]byte, error) {
	atomic.AddInt32(&r.letters, 1)
	return r.render(ctx, "letter", data)
}

func (r *fakeRenderer) render(ctx context.Context, kind string, data DocumentData) ([]byte, error) {
	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if r.fail.Load() {
		return nil, errors.New("renderer unavailable")
	}
	return []byte(fmt.Sprintf("%%PDF %s %s %s", kind, data.Request.ID, data.Request.Status)), nil
}

func (r *fakeRenderer) approvalCalls() int {
	return int(atomic.LoadInt32(&r.approvals))
}

// memoryObjects is an ObjectStore backed by a map.
type memoryObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    int
}

func newMemoryObjects() *memoryObjects {
	return &memoryObjects{objects: make(map[string][]byte)}
}

func (m *memoryObjects) Put(ctx context.Context, key string, data []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), data...)
	m.puts++
	return nil
}

func (m *memoryObjects) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, ErrObjectNotFound
	}
	return append([]byte(nil), data...), nil
}

func (m *memoryObjects) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok, nil
}

func (m *memoryObjects) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

type notification struct {
	event      string
	requestID  uuid.UUID
	status     models.ODStatus
	recipients []string
	attachment bool
	batch      []uuid.UUID
}

// recordingNotifier captures every notification instead of sending mail.
type recordingNotifier struct {
	mu     sync.Mutex
	events []notification
	fail   bool
}

func (n *recordingNotifier) record(event string, req *models.ODRequest, recipients []string, attachment bool) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, notification{
		event:      event,
		requestID:  req.ID,
		status:     req.Status,
		recipients: recipients,
		attachment: attachment,
	})
	if n.fail {
		return errors.New("mail relay down")
	}
	return nil
}

func (n *recordingNotifier) RequestSubmitted(ctx context.Context, req *models.ODRequest, student, advisor *models.User) error {
	return n.record("request_submitted", req, []string{advisor.Email}, false)
}

func (n *recordingNotifier) ProofVerified(ctx context.Context, req *models.ODRequest, student *models.User, recipients []models.User, certificate *Artifact) error {
	return n.record("proof_verified", req, emails(recipients), certificate != nil)
}

func (n *recordingNotifier) HODDecision(ctx context.Context, req *models.ODRequest, student *models.User) error {
	return n.record("hod_decision", req, []string{student.Email}, false)
}

func (n *recordingNotifier) Escalated(ctx context.Context, reqs []models.ODRequest, admins []models.User) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	batch := make([]uuid.UUID, 0, len(reqs))
	for _, r := range reqs {
		batch = append(batch, r.ID)
	}
	n.events = append(n.events, notification{
		event:      "escalated",
		recipients: emails(admins),
		batch:      batch,
	})
	if n.fail {
		return errors.New("mail relay down")
	}
	return nil
}

func (n *recordingNotifier) byEvent(event string) []notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []notification
	for _, e := range n.events {
		if e.event == event {
			out = append(out, e)
		}
	}
	return out
}

// recordingMailer keeps sent messages.
type recordingMailer struct {
	mu   sync.Mutex
	sent []EmailMessage
}

func (m *recordingMailer) Send(ctx context.Context, msg EmailMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func testLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}

var testEpoch = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

// workflowHarness wires every workflow service over the in-memory store.
type workflowHarness struct {
	store      *repository.MemoryStore
	clock      *fakeClock
	renderer   *fakeRenderer
	objects    *memoryObjects
	notifier   *recordingNotifier
	dispatcher *Dispatcher
	directory  *DirectoryService
	artifacts  *ArtifactService
	storage    *StorageService
	requests   *ODRequestService
	escalation *EscalationService
	users      *UserService
	auth       *AuthService
	admin      *AdminService

	adminUser    *models.User
	advisor      *models.User
	otherFaculty *models.User
	hod          *models.User
	otherHOD     *models.User
	student      *models.User
}

func newWorkflowHarness() *workflowHarness {
	h := &workflowHarness{
		store:    repository.NewMemoryStore(),
		clock:    newFakeClock(testEpoch),
		renderer: &fakeRenderer{},
		objects:  newMemoryObjects(),
		notifier: &recordingNotifier{},
	}
	logger := testLogger()
	workflow := config.WorkflowConfig{
		EscalationInterval: time.Second,
		EscalationTimeout:  30 * time.Second,
		SweepConcurrency:   4,
	}

	h.dispatcher = NewDispatcher(time.Second, logger)
	h.directory = NewDirectoryService(h.store.Users())
	h.storage = NewStorageService(h.objects)
	h.artifacts = NewArtifactService(h.store.Requests(), h.directory, h.objects, h.renderer, h.clock,
		ArtifactConfig{RendererTimeout: 200 * time.Millisecond, Institution: "Test College"}, logger)
	h.requests = NewODRequestService(h.store.Requests(), h.directory, h.artifacts, h.storage,
		h.notifier, h.dispatcher, h.clock, logger)
	h.escalation = NewEscalationService(h.store.Requests(), h.directory, h.notifier, h.dispatcher,
		h.clock, workflow, logger)
	h.users = NewUserService(h.store.Users(), logger)
	h.auth = NewAuthService(h.store.Users(), &config.Config{JWT: config.JWTConfig{SecretKey: "test-secret", AccessTokenTTL: 1}})
	h.admin = NewAdminService(h.store.Requests(), h.store.Users(), h.escalation, h.clock,
		workflow.EscalationTimeout, logger)

	h.adminUser = h.mustUser(&models.User{Name: "Admin", Email: "admin@college.edu", Role: models.RoleAdmin})
	h.advisor = h.mustUser(&models.User{Name: "Advisor", Email: "advisor@college.edu", Role: models.RoleFaculty, Department: "CSE"})
	h.otherFaculty = h.mustUser(&models.User{Name: "Other Faculty", Email: "faculty@college.edu", Role: models.RoleFaculty, Department: "CSE"})
	h.hod = h.mustUser(&models.User{Name: "HOD CSE", Email: "hod.cse@college.edu", Role: models.RoleHOD, Department: "CSE"})
	h.otherHOD = h.mustUser(&models.User{Name: "HOD ECE", Email: "hod.ece@college.edu", Role: models.RoleHOD, Department: "ECE"})
	registerNo := "CSE2025001"
	h.student = h.mustUser(&models.User{
		Name:             "Student",
		Email:            "student@college.edu",
		Role:             models.RoleStudent,
		RegisterNo:       &registerNo,
		Department:       "CSE",
		Year:             "III",
		FacultyAdvisorID: &h.advisor.ID,
	})
	return h
}

func (h *workflowHarness) mustUser(u *models.User) *models.User {
	if err := h.store.Users().Create(context.Background(), u); err != nil {
		panic(err)
	}
	return u
}

func (h *workflowHarness) createInput() *CreateODRequestInput {
	day := time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC)
	return &CreateODRequestInput{
		EventName: "National Symposium",
		EventDate: day,
		StartDate: day,
		EndDate:   day.AddDate(0, 0, 1),
		TimeType:  models.TimeTypeFullDay,
		Reason:    "Paper presentation",
	}
}

// submit creates a pending request as the harness student.
func (h *workflowHarness) submit() *models.ODRequest {
	req, err := h.requests.Create(context.Background(), h.student.Actor(), h.createInput())
	if err != nil {
		panic(err)
	}
	return req
}

func proofUpload() *FileUpload {
	content := "%PDF-1.4 attendance certificate"
	return &FileUpload{
		Filename:    "certificate.pdf",
		ContentType: "application/pdf",
		Size:        int64(len(content)),
		Body:        strings.NewReader(content),
	}
}
