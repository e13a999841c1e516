// internal/services/escalation_service_test.go
package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/javajoker/od-approval-backend/internal/models"
)

type EscalationServiceTestSuite struct {
	suite.Suite
	h   *workflowHarness
	ctx context.Context
}

func (suite *EscalationServiceTestSuite) SetupTest() {
	suite.h = newWorkflowHarness()
	suite.ctx = context.Background()
}

func (suite *EscalationServiceTestSuite) TearDownTest() {
	suite.h.dispatcher.Wait()
}

func (suite *EscalationServiceTestSuite) status(req *models.ODRequest) models.ODStatus {
	current, err := suite.h.store.Requests().GetByID(suite.ctx, req.ID)
	require.NoError(suite.T(), err)
	return current.Status
}

func (suite *EscalationServiceTestSuite) sweepAt(offset time.Duration) int {
	moved, err := suite.h.escalation.RunEscalationSweep(suite.ctx, testEpoch.Add(offset), 30*time.Second)
	require.NoError(suite.T(), err)
	return moved
}

func (suite *EscalationServiceTestSuite) TestEscalatesAfterTimeout() {
	req := suite.h.submit()

	assert.Equal(suite.T(), 1, suite.sweepAt(31*time.Second))
	assert.Equal(suite.T(), models.ODStatusForwardedToAdmin, suite.status(req))

	current, err := suite.h.store.Requests().GetByID(suite.ctx, req.ID)
	require.NoError(suite.T(), err)
	require.NotNil(suite.T(), current.ForwardedToAdminAt)
	assert.Equal(suite.T(), testEpoch.Add(31*time.Second), *current.ForwardedToAdminAt)
	assert.Equal(suite.T(), testEpoch.Add(31*time.Second), current.LastStatusChangeAt)
}

func (suite *EscalationServiceTestSuite) TestLeavesFreshRequestsAlone() {
	req := suite.h.submit()

	assert.Zero(suite.T(), suite.sweepAt(29*time.Second))
	assert.Equal(suite.T(), models.ODStatusPending, suite.status(req))
}

func (suite *EscalationServiceTestSuite) TestDeadlineIsExclusive() {
	req := suite.h.submit()

	assert.Zero(suite.T(), suite.sweepAt(30*time.Second))
	assert.Equal(suite.T(), models.ODStatusPending, suite.status(req))
}

func (suite *EscalationServiceTestSuite) TestSweepIsIdempotent() {
	req := suite.h.submit()

	assert.Equal(suite.T(), 1, suite.sweepAt(31*time.Second))
	assert.Zero(suite.T(), suite.sweepAt(31*time.Second))
	assert.Zero(suite.T(), suite.sweepAt(5*time.Minute))
	assert.Equal(suite.T(), models.ODStatusForwardedToAdmin, suite.status(req))

	suite.h.dispatcher.Wait()
	assert.Len(suite.T(), suite.h.notifier.byEvent("escalated"), 1)
}

func (suite *EscalationServiceTestSuite) TestOnlyPendingRequestsMove() {
	h := suite.h
	approved := h.submit()
	_, err := h.requests.AdvisorApprove(suite.ctx, h.advisor.Actor(), approved.ID, "")
	require.NoError(suite.T(), err)
	pending := h.submit()

	assert.Equal(suite.T(), 1, suite.sweepAt(time.Hour))
	assert.Equal(suite.T(), models.ODStatusApprovedByAdvisor, suite.status(approved))
	assert.Equal(suite.T(), models.ODStatusForwardedToAdmin, suite.status(pending))
}

func (suite *EscalationServiceTestSuite) TestManyStaleRequests() {
	for i := 0; i < 25; i++ {
		suite.h.submit()
	}
	assert.Equal(suite.T(), 25, suite.sweepAt(time.Minute))
	assert.Zero(suite.T(), suite.sweepAt(time.Minute))
}

func (suite *EscalationServiceTestSuite) TestNotifiesAdmins() {
	req := suite.h.submit()
	suite.sweepAt(31 * time.Second)
	suite.h.dispatcher.Wait()

	escalated := suite.h.notifier.byEvent("escalated")
	require.Len(suite.T(), escalated, 1)
	assert.Equal(suite.T(), []uuid.UUID{req.ID}, escalated[0].batch)
	assert.Equal(suite.T(), []string{suite.h.adminUser.Email}, escalated[0].recipients)
}

func (suite *EscalationServiceTestSuite) TestOneAdminNoticePerSweep() {
	first := suite.h.submit()
	suite.h.clock.Advance(time.Second)
	second := suite.h.submit()

	assert.Equal(suite.T(), 2, suite.sweepAt(time.Minute))
	suite.h.dispatcher.Wait()

	escalated := suite.h.notifier.byEvent("escalated")
	require.Len(suite.T(), escalated, 1)
	assert.Equal(suite.T(), []uuid.UUID{first.ID, second.ID}, escalated[0].batch)
}

// The advisor and the sweeper race on a stale request; exactly one wins.
func (suite *EscalationServiceTestSuite) TestAdvisorRejectRacesSweep() {
	h := suite.h
	for round := 0; round < 25; round++ {
		req := h.submit()
		now := h.clock.Now().Add(31 * time.Second)

		var wg sync.WaitGroup
		var rejectErr error
		var moved int
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, rejectErr = h.requests.AdvisorReject(suite.ctx, h.advisor.Actor(), req.ID, "")
		}()
		go func() {
			defer wg.Done()
			moved, _ = h.escalation.RunEscalationSweep(suite.ctx, now, 30*time.Second)
		}()
		wg.Wait()

		status := suite.status(req)
		if rejectErr == nil {
			assert.Zero(suite.T(), moved, "round %d", round)
			assert.Equal(suite.T(), models.ODStatusRejected, status, "round %d", round)
		} else {
			assert.True(suite.T(), errors.Is(rejectErr, ErrConflict), "round %d", round)
			assert.Equal(suite.T(), 1, moved, "round %d", round)
			assert.Equal(suite.T(), models.ODStatusForwardedToAdmin, status, "round %d", round)
		}
		h.clock.Advance(time.Minute)
	}
}

func (suite *EscalationServiceTestSuite) TestCancelledContext() {
	suite.h.submit()
	ctx, cancel := context.WithCancel(suite.ctx)
	cancel()

	_, err := suite.h.escalation.RunEscalationSweep(ctx, testEpoch.Add(time.Minute), 30*time.Second)
	assert.Error(suite.T(), err)
}

func (suite *EscalationServiceTestSuite) TestStartStop() {
	require.NoError(suite.T(), suite.h.escalation.Start())
	require.NoError(suite.T(), suite.h.escalation.Start())
	suite.h.escalation.Stop()
	suite.h.escalation.Stop()
}

func TestEscalationServiceSuite(t *testing.T) {
	suite.Run(t, new(EscalationServiceTestSuite))
}
