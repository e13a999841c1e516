// internal/services/container.go
package services

import (
	"github.com/sirupsen/logrus"

	"github.com/javajoker/od-approval-backend/internal/config"
	"github.com/javajoker/od-approval-backend/internal/repository"
)

// Dependencies are the collaborators the workflow is built on. Clock and
// Renderer default to the system clock and the PDF renderer when nil.
type Dependencies struct {
	Requests repository.ODRequestStore
	Users    repository.UserStore
	Objects  ObjectStore
	Mailer   Mailer
	Renderer DocumentRenderer
	Clock    Clock
}

// Services is the wired set of application services shared by the HTTP
// layer and the process lifecycle.
type Services struct {
	Directory    *DirectoryService
	Storage      *StorageService
	Artifacts    *ArtifactService
	Notification *NotificationService
	Dispatcher   *Dispatcher
	ODRequests   *ODRequestService
	Escalation   *EscalationService
	Auth         *AuthService
	Users        *UserService
	Admin        *AdminService
}

func NewServices(cfg *config.Config, deps Dependencies, logger *logrus.Entry) *Services {
	clock := deps.Clock
	if clock == nil {
		clock = systemClock{}
	}
	renderer := deps.Renderer
	if renderer == nil {
		renderer = NewPDFRenderer()
	}

	s := &Services{}
	s.Dispatcher = NewDispatcher(cfg.Workflow.NotifierTimeout, logger)
	s.Directory = NewDirectoryService(deps.Users)
	s.Storage = NewStorageService(deps.Objects)
	s.Notification = NewNotificationService(deps.Mailer, cfg, logger)
	s.Artifacts = NewArtifactService(deps.Requests, s.Directory, deps.Objects, renderer, clock,
		ArtifactConfig{RendererTimeout: cfg.Workflow.RendererTimeout, Institution: cfg.Workflow.InstitutionName}, logger)
	s.ODRequests = NewODRequestService(deps.Requests, s.Directory, s.Artifacts, s.Storage,
		s.Notification, s.Dispatcher, clock, logger)
	s.Escalation = NewEscalationService(deps.Requests, s.Directory, s.Notification, s.Dispatcher,
		clock, cfg.Workflow, logger)
	s.Auth = NewAuthService(deps.Users, cfg)
	s.Users = NewUserService(deps.Users, logger)
	s.Admin = NewAdminService(deps.Requests, deps.Users, s.Escalation, clock,
		cfg.Workflow.EscalationTimeout, logger)
	return s
}

// Shutdown stops the sweeper and drains in-flight notifications.
func (s *Services) Shutdown() {
	s.Escalation.Stop()
	s.Dispatcher.Wait()
}
