// internal/repository/memory_store_test.go
package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/javajoker/od-approval-backend/internal/models"
)

type MemoryStoreTestSuite struct {
	suite.Suite
	store    *MemoryStore
	requests ODRequestStore
	users    UserStore
	ctx      context.Context
	base     time.Time
}

func (suite *MemoryStoreTestSuite) SetupTest() {
	suite.store = NewMemoryStore()
	suite.requests = suite.store.Requests()
	suite.users = suite.store.Users()
	suite.ctx = context.Background()
	suite.base = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
}

func (suite *MemoryStoreTestSuite) newRequest(status models.ODStatus, changedAt time.Time) *models.ODRequest {
	req := &models.ODRequest{
		StudentID:          uuid.New(),
		ClassAdvisor:       uuid.New(),
		HOD:                uuid.New(),
		Department:         "CSE",
		Year:               "III",
		EventName:          "Symposium",
		StartDate:          suite.base,
		EndDate:            suite.base,
		TimeType:           models.TimeTypeFullDay,
		Reason:             "Paper presentation",
		Status:             status,
		LastStatusChangeAt: changedAt,
	}
	require.NoError(suite.T(), suite.requests.Create(suite.ctx, req))
	return req
}

func (suite *MemoryStoreTestSuite) TestCreateAssignsID() {
	req := suite.newRequest(models.ODStatusPending, suite.base)
	assert.NotEqual(suite.T(), uuid.Nil, req.ID)

	got, err := suite.requests.GetByID(suite.ctx, req.ID)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "Symposium", got.EventName)
}

func (suite *MemoryStoreTestSuite) TestGetByIDNotFound() {
	_, err := suite.requests.GetByID(suite.ctx, uuid.New())
	assert.ErrorIs(suite.T(), err, ErrNotFound)
}

func (suite *MemoryStoreTestSuite) TestReturnedRecordsAreCopies() {
	req := suite.newRequest(models.ODStatusPending, suite.base)

	got, err := suite.requests.GetByID(suite.ctx, req.ID)
	require.NoError(suite.T(), err)
	got.Status = models.ODStatusRejected

	again, err := suite.requests.GetByID(suite.ctx, req.ID)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.ODStatusPending, again.Status)
}

func (suite *MemoryStoreTestSuite) TestConditionalUpdate() {
	req := suite.newRequest(models.ODStatusPending, suite.base)
	at := suite.base.Add(time.Minute)
	comment := "ok"
	patch := models.StatusChange(models.ODStatusApprovedByAdvisor, at)
	patch.AdvisorComment = &comment

	updated, err := suite.requests.Update(suite.ctx, req.ID, Condition{Statuses: []models.ODStatus{models.ODStatusPending}}, patch)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.ODStatusApprovedByAdvisor, updated.Status)
	assert.Equal(suite.T(), at, updated.LastStatusChangeAt)
	assert.Equal(suite.T(), "ok", updated.AdvisorComment)
	assert.Equal(suite.T(), req.ClassAdvisor, updated.ClassAdvisor)

	_, err = suite.requests.Update(suite.ctx, req.ID, Condition{Statuses: []models.ODStatus{models.ODStatusPending}}, patch)
	assert.ErrorIs(suite.T(), err, ErrConditionFailed)

	_, err = suite.requests.Update(suite.ctx, uuid.New(), Condition{}, patch)
	assert.ErrorIs(suite.T(), err, ErrNotFound)
}

func (suite *MemoryStoreTestSuite) TestConcurrentConditionalUpdateHasOneWinner() {
	req := suite.newRequest(models.ODStatusPending, suite.base)
	cond := Condition{Statuses: []models.ODStatus{models.ODStatusPending}}

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			patch := models.StatusChange(models.ODStatusRejected, suite.base.Add(time.Second))
			if _, err := suite.requests.Update(suite.ctx, req.ID, cond, patch); err == nil {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(suite.T(), int32(1), wins)
}

func (suite *MemoryStoreTestSuite) TestFindByStatusAndAge() {
	stale := suite.newRequest(models.ODStatusPending, suite.base.Add(-time.Hour))
	suite.newRequest(models.ODStatusPending, suite.base)
	suite.newRequest(models.ODStatusApprovedByAdvisor, suite.base.Add(-time.Hour))

	cutoff := suite.base.Add(-time.Minute)
	found, total, err := suite.requests.Find(suite.ctx, ODRequestFilter{
		Statuses:      []models.ODStatus{models.ODStatusPending},
		ChangedBefore: &cutoff,
	})
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(1), total)
	require.Len(suite.T(), found, 1)
	assert.Equal(suite.T(), stale.ID, found[0].ID)
}

func (suite *MemoryStoreTestSuite) TestFindPaginates() {
	for i := 0; i < 5; i++ {
		suite.newRequest(models.ODStatusPending, suite.base.Add(time.Duration(i)*time.Minute))
	}

	page, total, err := suite.requests.Find(suite.ctx, ODRequestFilter{Offset: 3, Limit: 10, SortByStatusChange: true})
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(5), total)
	require.Len(suite.T(), page, 2)
	assert.True(suite.T(), page[0].LastStatusChangeAt.After(page[1].LastStatusChangeAt))

	empty, _, err := suite.requests.Find(suite.ctx, ODRequestFilter{Offset: 10})
	require.NoError(suite.T(), err)
	assert.Empty(suite.T(), empty)
}

func (suite *MemoryStoreTestSuite) TestUserUniqueness() {
	reg := "21CS001"
	require.NoError(suite.T(), suite.users.Create(suite.ctx, &models.User{Name: "A", Email: "a@college.edu", Role: models.RoleStudent, RegisterNo: &reg}))

	err := suite.users.Create(suite.ctx, &models.User{Name: "B", Email: "A@college.edu", Role: models.RoleFaculty})
	assert.ErrorIs(suite.T(), err, ErrDuplicate)

	err = suite.users.Create(suite.ctx, &models.User{Name: "C", Email: "c@college.edu", Role: models.RoleStudent, RegisterNo: &reg})
	assert.ErrorIs(suite.T(), err, ErrDuplicate)

	// Staff without register numbers do not collide.
	require.NoError(suite.T(), suite.users.Create(suite.ctx, &models.User{Name: "D", Email: "d@college.edu", Role: models.RoleFaculty}))
	require.NoError(suite.T(), suite.users.Create(suite.ctx, &models.User{Name: "E", Email: "e@college.edu", Role: models.RoleFaculty}))

	got, err := suite.users.GetByRegisterNo(suite.ctx, reg)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "A", got.Name)
}

func (suite *MemoryStoreTestSuite) TestUserQueries() {
	require.NoError(suite.T(), suite.users.Create(suite.ctx, &models.User{Name: "hod", Email: "hod@college.edu", Role: models.RoleHOD, Department: "CSE"}))
	require.NoError(suite.T(), suite.users.Create(suite.ctx, &models.User{Name: "f1", Email: "f1@college.edu", Role: models.RoleFaculty, Department: "ECE"}))
	require.NoError(suite.T(), suite.users.Create(suite.ctx, &models.User{Name: "admin", Email: "admin@college.edu", Role: models.RoleAdmin}))

	hod, err := suite.users.FindOne(suite.ctx, UserFilter{Role: models.RoleHOD, Department: "CSE"})
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "hod", hod.Name)

	_, err = suite.users.FindOne(suite.ctx, UserFilter{Role: models.RoleHOD, Department: "ECE"})
	assert.ErrorIs(suite.T(), err, ErrNotFound)

	none, err := suite.users.Find(suite.ctx, UserFilter{IDs: []uuid.UUID{}})
	require.NoError(suite.T(), err)
	assert.Empty(suite.T(), none)

	departments, err := suite.users.Departments(suite.ctx)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), []string{"CSE", "ECE"}, departments)

	require.NoError(suite.T(), suite.users.Delete(suite.ctx, hod.ID))
	assert.ErrorIs(suite.T(), suite.users.Delete(suite.ctx, hod.ID), ErrNotFound)
}

func TestConditionMatches(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	submitted := true
	req := &models.ODRequest{Status: models.ODStatusPending, ProofSubmitted: false, LastStatusChangeAt: now}

	assert.True(t, Condition{}.Matches(req))
	assert.False(t, Condition{ProofSubmitted: &submitted}.Matches(req))
	assert.False(t, Condition{ChangedBefore: &now}.Matches(req), "boundary is strict")

	later := now.Add(time.Nanosecond)
	assert.True(t, Condition{ChangedBefore: &later, Statuses: []models.ODStatus{models.ODStatusPending}}.Matches(req))
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreTestSuite))
}
