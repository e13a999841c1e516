// internal/services/escalation_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/javajoker/od-approval-backend/internal/config"
	"github.com/javajoker/od-approval-backend/internal/models"
	"github.com/javajoker/od-approval-backend/internal/repository"
)

// EscalationService moves requests the advisor left pending for too long to
// the admin queue.
type EscalationService struct {
	requests    repository.ODRequestStore
	directory   *DirectoryService
	notifier    Notifier
	dispatcher  *Dispatcher
	clock       Clock
	interval    time.Duration
	timeout     time.Duration
	concurrency int
	logger      *logrus.Entry

	mu   sync.Mutex
	cron *cron.Cron
}

func NewEscalationService(
	requests repository.ODRequestStore,
	directory *DirectoryService,
	notifier Notifier,
	dispatcher *Dispatcher,
	clock Clock,
	cfg config.WorkflowConfig,
	logger *logrus.Entry,
) *EscalationService {
	concurrency := cfg.SweepConcurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &EscalationService{
		requests:    requests,
		directory:   directory,
		notifier:    notifier,
		dispatcher:  dispatcher,
		clock:       clock,
		interval:    cfg.EscalationInterval,
		timeout:     cfg.EscalationTimeout,
		concurrency: concurrency,
		logger:      logger.WithField("component", "escalation"),
	}
}

// RunEscalationSweep forwards every request that has been pending since
// strictly before now-timeout. Each move is conditional on the request still
// being pending, so a concurrent advisor decision always wins and repeated
// sweeps are no-ops. It returns the number of requests moved.
func (s *EscalationService) RunEscalationSweep(ctx context.Context, now time.Time, timeout time.Duration) (int, error) {
	cutoff := now.Add(-timeout)
	candidates, _, err := s.requests.Find(ctx, repository.ODRequestFilter{
		Statuses:      []models.ODStatus{models.ODStatusPending},
		ChangedBefore: &cutoff,
	})
	if err != nil {
		return 0, fmt.Errorf("find stale requests: %w", err)
	}
	if len(candidates) == 0 {
		return 0, nil
	}

	var moved int64
	var escalated []models.ODRequest
	var escalatedMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i := range candidates {
		id := candidates[i].ID
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			patch := models.StatusChange(models.ODStatusForwardedToAdmin, now)
			patch.ForwardedToAdminAt = &now
			cond := repository.Condition{
				Statuses:      []models.ODStatus{models.ODStatusPending},
				ChangedBefore: &cutoff,
			}

			updated, err := s.requests.Update(gctx, id, cond, patch)
			switch {
			case errors.Is(err, repository.ErrConditionFailed), errors.Is(err, repository.ErrNotFound):
				// Someone acted on it first
				return nil
			case err != nil:
				s.logger.WithField("request_id", id).WithError(err).Error("Failed to escalate request")
				return nil
			}

			atomic.AddInt64(&moved, 1)
			escalatedMu.Lock()
			escalated = append(escalated, *updated)
			escalatedMu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if len(escalated) > 0 {
		s.notifyAdmins(escalated)
		s.logger.WithFields(logrus.Fields{
			"escalated":  len(escalated),
			"candidates": len(candidates),
			"cutoff":     cutoff,
		}).Info("Escalation sweep completed")
	}

	return int(atomic.LoadInt64(&moved)), ctx.Err()
}

// notifyAdmins sends one notice per sweep listing every escalated request.
func (s *EscalationService) notifyAdmins(escalated []models.ODRequest) {
	sort.Slice(escalated, func(i, j int) bool {
		return escalated[i].CreatedAt.Before(escalated[j].CreatedAt)
	})
	s.dispatcher.Go("escalated", logrus.Fields{"requests": len(escalated)}, func(ctx context.Context) error {
		admins, err := s.directory.Admins(ctx)
		if err != nil {
			return err
		}
		return s.notifier.Escalated(ctx, escalated, admins)
	})
}

// Start schedules the sweep every configured interval. Overlapping runs are
// skipped.
func (s *EscalationService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}

	cronLogger := cron.PrintfLogger(s.logger)
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger), cron.Recover(cronLogger)))

	schedule := fmt.Sprintf("@every %s", s.interval)
	if _, err := c.AddFunc(schedule, s.sweepOnce); err != nil {
		return fmt.Errorf("schedule escalation sweep: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"interval": s.interval,
		"timeout":  s.timeout,
	}).Info("Escalation sweeper started")
	c.Start()
	s.cron = c
	return nil
}

// Stop halts scheduling and waits for a running sweep to finish.
func (s *EscalationService) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()
	s.logger.Info("Escalation sweeper stopped")
}

func (s *EscalationService) sweepOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), s.interval)
	defer cancel()

	if _, err := s.RunEscalationSweep(ctx, s.clock.Now(), s.timeout); err != nil {
		s.logger.WithError(err).Error("Escalation sweep failed")
	}
}
