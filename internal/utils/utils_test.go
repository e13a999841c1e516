// internal/utils/utils_test.go
package utils

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTRoundTrip(t *testing.T) {
	SetJWTSecret("utils-test-secret")
	id := uuid.New()

	token, err := GenerateJWT(id, "hod@college.edu", "hod", "CSE", 1)
	require.NoError(t, err)

	claims, err := ValidateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, id.String(), claims.UserID)
	assert.Equal(t, "hod", claims.Role)
	assert.Equal(t, "CSE", claims.Department)

	SetJWTSecret("rotated")
	_, err = ValidateJWT(token)
	assert.Error(t, err)

	expired, err := GenerateJWT(id, "hod@college.edu", "hod", "CSE", -1)
	require.NoError(t, err)
	_, err = ValidateJWT(expired)
	assert.Error(t, err)
}

func TestCustomValidators(t *testing.T) {
	type input struct {
		Password string `validate:"strong_password"`
		TimeType string `validate:"time_type"`
		Start    string `validate:"omitempty,hhmm"`
		Role     string `validate:"role"`
		Title    string `validate:"single_line"`
	}

	assert.NoError(t, ValidateStruct(&input{Password: "Secret123", TimeType: "fullDay", Role: "hod", Title: "Symposium 2025"}))
	assert.NoError(t, ValidateStruct(&input{Password: "Secret123", TimeType: "particularHours", Start: "23:59", Role: "student", Title: "Café Tech Meet"}))

	errs := GetValidationErrors(ValidateStruct(&input{Password: "letters", TimeType: "halfDay", Start: "24:00", Role: "principal", Title: "Symposium\r\nBcc: x@evil.test"}))
	tags := map[string]string{}
	for _, e := range errs {
		tags[e.Field] = e.Tag
	}
	assert.Equal(t, map[string]string{
		"password": "strong_password",
		"timetype": "time_type",
		"start":    "hhmm",
		"role":     "role",
		"title":    "single_line",
	}, tags)

	assert.Empty(t, GetValidationErrors(nil))
}

func TestPagination(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", "/?page=3&limit=500", nil)

	params := GetPaginationParams(c)
	assert.Equal(t, PaginationParams{Page: 3, Limit: 20}, params)
	assert.Equal(t, 40, params.Offset())

	result := CreatePaginationResult([]int{1}, 41, params)
	assert.Equal(t, 3, result.TotalPages)
	assert.Zero(t, PaginationParams{}.Offset())
}

func TestGenerateRequestID(t *testing.T) {
	a, b := GenerateRequestID(), GenerateRequestID()
	assert.Len(t, a, 16)
	assert.NotEqual(t, a, b)
}
