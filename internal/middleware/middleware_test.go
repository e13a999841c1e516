// internal/middleware/middleware_test.go
package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/od-approval-backend/internal/i18n"
	"github.com/javajoker/od-approval-backend/internal/models"
	"github.com/javajoker/od-approval-backend/internal/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
	utils.SetJWTSecret("middleware-test-secret")
	if err := i18n.Initialize("en"); err != nil {
		panic(err)
	}
}

func serve(r *gin.Engine, header, value string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	if header != "" {
		req.Header.Set(header, value)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthRequired(t *testing.T) {
	r := gin.New()
	r.GET("/x", AuthRequired(), RequireRoles(models.RoleHOD), func(c *gin.Context) {
		actor, ok := ActorFromContext(c)
		require.True(t, ok)
		c.String(http.StatusOK, "%s/%s", actor.Role, actor.Department)
	})

	assert.Equal(t, http.StatusUnauthorized, serve(r, "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, "Authorization", "Token abc").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, "Authorization", "Bearer not-a-jwt").Code)

	faculty, err := utils.GenerateJWT(uuid.New(), "f@college.edu", "faculty", "CSE", 1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, serve(r, "Authorization", "Bearer "+faculty).Code)

	unknownRole, err := utils.GenerateJWT(uuid.New(), "p@college.edu", "principal", "", 1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, serve(r, "Authorization", "Bearer "+unknownRole).Code)

	hod, err := utils.GenerateJWT(uuid.New(), "h@college.edu", "hod", "ECE", 1)
	require.NoError(t, err)
	w := serve(r, "Authorization", "bearer "+hod)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hod/ECE", w.Body.String())
}

func TestRateLimiterRejectsBurst(t *testing.T) {
	limiter := PerMinute(2)
	defer limiter.Close()

	r := gin.New()
	r.GET("/x", limiter.Middleware(), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	assert.Equal(t, http.StatusNoContent, serve(r, "", "").Code)
	assert.Equal(t, http.StatusNoContent, serve(r, "", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(r, "", "").Code)
}

func TestI18nMiddlewarePicksSupportedLanguage(t *testing.T) {
	r := gin.New()
	r.GET("/x", I18nMiddleware(), func(c *gin.Context) {
		c.String(http.StatusOK, utils.GetLangFromContext(c))
	})

	assert.Equal(t, "ta", serve(r, "Accept-Language", "ta-IN,ta;q=0.9,en;q=0.8").Body.String())
	assert.Equal(t, "en", serve(r, "Accept-Language", "fr-FR,en;q=0.5").Body.String())
	assert.Equal(t, "en", serve(r, "", "").Body.String())
}

func TestRequestIDIsEchoed(t *testing.T) {
	r := gin.New()
	r.GET("/x", RequestID(), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("request_id"))
	})

	w := serve(r, requestIDHeader, "abc-123")
	assert.Equal(t, "abc-123", w.Body.String())
	assert.Equal(t, "abc-123", w.Header().Get(requestIDHeader))

	w = serve(r, "", "")
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))
}

func TestExtractResource(t *testing.T) {
	id := uuid.NewString()
	assert.Equal(t, "od-requests", extractResourceType("/api/v1/od-requests/"+id+"/hod-approve"))
	assert.Equal(t, id, extractResourceID("/api/v1/od-requests/"+id+"/hod-approve"))
	assert.Equal(t, "health", extractResourceType("/health"))
	assert.Empty(t, extractResourceID("/api/v1/departments"))
}
