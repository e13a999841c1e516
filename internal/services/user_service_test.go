// internal/services/user_service_test.go
package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/javajoker/od-approval-backend/internal/models"
	"github.com/javajoker/od-approval-backend/internal/utils"
)

type AccountServicesTestSuite struct {
	suite.Suite
	h   *workflowHarness
	ctx context.Context
}

func (suite *AccountServicesTestSuite) SetupTest() {
	suite.h = newWorkflowHarness()
	suite.ctx = context.Background()
	utils.SetJWTSecret("test-secret")
}

func (suite *AccountServicesTestSuite) studentRequest() *CreateUserRequest {
	return &CreateUserRequest{
		Name:             "New Student",
		Email:            "New.Student@College.edu",
		Password:         "Secret123",
		Role:             models.RoleStudent,
		RegisterNo:       "CSE2025002",
		Department:       "CSE",
		Year:             "II",
		FacultyAdvisorID: &suite.h.advisor.ID,
	}
}

func (suite *AccountServicesTestSuite) TestCreateStudent() {
	user, err := suite.h.users.CreateUser(suite.ctx, suite.h.adminUser.Actor(), suite.studentRequest())
	require.NoError(suite.T(), err)

	assert.Equal(suite.T(), "new.student@college.edu", user.Email)
	assert.Equal(suite.T(), "CSE2025002", user.RegisterNumber())
	assert.NotEmpty(suite.T(), user.PasswordHash)
	assert.NoError(suite.T(), user.CheckPassword("Secret123"))
}

func (suite *AccountServicesTestSuite) TestCreateUserRules() {
	admin := suite.h.adminUser.Actor()

	_, err := suite.h.users.CreateUser(suite.ctx, suite.h.hod.Actor(), suite.studentRequest())
	assert.ErrorIs(suite.T(), err, ErrAuthorization)

	weak := suite.studentRequest()
	weak.Password = "short"
	_, err = suite.h.users.CreateUser(suite.ctx, admin, weak)
	assert.ErrorIs(suite.T(), err, ErrValidation)

	noAdvisor := suite.studentRequest()
	noAdvisor.FacultyAdvisorID = nil
	_, err = suite.h.users.CreateUser(suite.ctx, admin, noAdvisor)
	assert.ErrorIs(suite.T(), err, ErrValidation)

	studentAdvisor := suite.studentRequest()
	studentAdvisor.FacultyAdvisorID = &suite.h.student.ID
	_, err = suite.h.users.CreateUser(suite.ctx, admin, studentAdvisor)
	assert.ErrorIs(suite.T(), err, ErrValidation)

	faculty := &CreateUserRequest{Name: "F", Email: "f@college.edu", Password: "Secret123", Role: models.RoleFaculty}
	_, err = suite.h.users.CreateUser(suite.ctx, admin, faculty)
	assert.ErrorIs(suite.T(), err, ErrValidation, "faculty need a department")

	badRole := &CreateUserRequest{Name: "X", Email: "x@college.edu", Password: "Secret123", Role: "principal"}
	_, err = suite.h.users.CreateUser(suite.ctx, admin, badRole)
	assert.ErrorIs(suite.T(), err, ErrValidation)
}

func (suite *AccountServicesTestSuite) TestCreateDuplicateConflicts() {
	admin := suite.h.adminUser.Actor()
	_, err := suite.h.users.CreateUser(suite.ctx, admin, suite.studentRequest())
	require.NoError(suite.T(), err)

	dupEmail := suite.studentRequest()
	dupEmail.RegisterNo = "CSE2025003"
	_, err = suite.h.users.CreateUser(suite.ctx, admin, dupEmail)
	assert.ErrorIs(suite.T(), err, ErrConflict)

	dupRegister := suite.studentRequest()
	dupRegister.Email = "other@college.edu"
	_, err = suite.h.users.CreateUser(suite.ctx, admin, dupRegister)
	assert.ErrorIs(suite.T(), err, ErrConflict)
}

func (suite *AccountServicesTestSuite) TestDeleteUser() {
	admin := suite.h.adminUser.Actor()

	assert.ErrorIs(suite.T(), suite.h.users.DeleteUser(suite.ctx, suite.h.hod.Actor(), suite.h.student.ID), ErrAuthorization)
	assert.ErrorIs(suite.T(), suite.h.users.DeleteUser(suite.ctx, admin, admin.ID), ErrConflict)
	assert.ErrorIs(suite.T(), suite.h.users.DeleteUser(suite.ctx, admin, uuid.New()), ErrNotFound)

	require.NoError(suite.T(), suite.h.users.DeleteUser(suite.ctx, admin, suite.h.otherFaculty.ID))
	_, err := suite.h.directory.GetUser(suite.ctx, suite.h.otherFaculty.ID)
	assert.ErrorIs(suite.T(), err, ErrNotFound)
}

func (suite *AccountServicesTestSuite) TestLogin() {
	_, err := suite.h.users.CreateUser(suite.ctx, suite.h.adminUser.Actor(), suite.studentRequest())
	require.NoError(suite.T(), err)

	resp, err := suite.h.auth.Login(suite.ctx, &LoginRequest{Email: "new.student@college.edu", Password: "Secret123"})
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "Bearer", resp.TokenType)
	assert.Equal(suite.T(), 3600, resp.ExpiresIn)

	claims, err := utils.ValidateJWT(resp.AccessToken)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), resp.User.ID.String(), claims.UserID)
	assert.Equal(suite.T(), "student", claims.Role)
	assert.Equal(suite.T(), "CSE", claims.Department)

	_, err = suite.h.auth.Login(suite.ctx, &LoginRequest{Email: "new.student@college.edu", Password: "wrong"})
	assert.ErrorIs(suite.T(), err, ErrAuthorization)
	_, err = suite.h.auth.Login(suite.ctx, &LoginRequest{Email: "nobody@college.edu", Password: "Secret123"})
	assert.ErrorIs(suite.T(), err, ErrAuthorization)
	_, err = suite.h.auth.Login(suite.ctx, &LoginRequest{Email: "not-an-email", Password: "x"})
	assert.ErrorIs(suite.T(), err, ErrValidation)
}

func (suite *AccountServicesTestSuite) TestDirectoryQueries() {
	d := suite.h.directory

	departments, err := d.Departments(suite.ctx)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), []string{"CSE", "ECE"}, departments)

	faculty, err := d.DepartmentFaculty(suite.ctx, suite.h.hod.Actor(), "CSE")
	require.NoError(suite.T(), err)
	assert.Len(suite.T(), faculty, 3)

	_, err = d.DepartmentFaculty(suite.ctx, suite.h.otherHOD.Actor(), "CSE")
	assert.ErrorIs(suite.T(), err, ErrAuthorization)

	_, err = d.StudentByRegisterNo(suite.ctx, "CSE2025001")
	assert.NoError(suite.T(), err)
	_, err = d.StudentByRegisterNo(suite.ctx, "UNKNOWN")
	assert.ErrorIs(suite.T(), err, ErrNotFound)
}

func (suite *AccountServicesTestSuite) TestDashboardAndManualSweep() {
	h := suite.h
	h.submit()
	h.submit()
	h.clock.Advance(31 * time.Second)

	stats, err := h.admin.GetDashboardStats(suite.ctx, h.adminUser.Actor())
	require.NoError(suite.T(), err)
	assert.EqualValues(suite.T(), 2, stats.TotalRequests)
	assert.EqualValues(suite.T(), 2, stats.ByStatus[models.ODStatusPending])
	assert.EqualValues(suite.T(), 2, stats.OverduePending)
	assert.EqualValues(suite.T(), 1, stats.TotalStudents)
	assert.EqualValues(suite.T(), 4, stats.TotalFaculty)

	run, err := h.admin.RunEscalation(suite.ctx, h.adminUser.Actor())
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), 2, run.Escalated)

	stats, err = h.admin.GetDashboardStats(suite.ctx, h.adminUser.Actor())
	require.NoError(suite.T(), err)
	assert.EqualValues(suite.T(), 2, stats.AwaitingAdmin)
	assert.Zero(suite.T(), stats.OverduePending)

	_, err = h.admin.RunEscalation(suite.ctx, h.hod.Actor())
	assert.ErrorIs(suite.T(), err, ErrAuthorization)
	h.dispatcher.Wait()
}

func TestAccountServicesSuite(t *testing.T) {
	suite.Run(t, new(AccountServicesTestSuite))
}
