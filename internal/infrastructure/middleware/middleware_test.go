package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"physlab/internal/core/domain"
	"physlab/internal/core/ports"
	"physlab/internal/core/services"
	apperrors "physlab/pkg/errors"
	"physlab/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubAuth struct {
	ports.AuthService
	identities map[string]domain.Identity
}

func (s stubAuth) Authenticate(_ context.Context, token string) (domain.Identity, error) {
	id, ok := s.identities[token]
	if !ok {
		return domain.Identity{}, apperrors.NewUnauthenticatedError("invalid token")
	}
	return id, nil
}

func errorBody(t *testing.T, w *httptest.ResponseRecorder) apperrors.ErrorBody {
	t.Helper()
	var body apperrors.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Error
}

func authRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	auth := stubAuth{identities: map[string]domain.Identity{
		"student-token": {UserID: 1, Role: domain.RoleStudent},
		"teacher-token": {UserID: 2, Role: domain.RoleTeacher},
	}}

	router := gin.New()
	router.Use(AuthMiddleware(auth))
	router.GET("/me", func(c *gin.Context) {
		id, _ := IdentityFrom(c)
		c.JSON(http.StatusOK, gin.H{"id": id.UserID})
	})
	router.POST("/materials", RequirePermission(services.DefaultAccessPolicy(), services.OpMaterialCreate), func(c *gin.Context) {
		c.Status(http.StatusCreated)
	})
	return router
}

func TestAuthMiddleware(t *testing.T) {
	router := authRouter()

	w := get(router, "/me", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, apperrors.ErrCodeUnauthenticated, errorBody(t, w).Code)

	w = get(router, "/me", http.Header{"Authorization": {"Token abc"}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = get(router, "/me", http.Header{"Authorization": {"Bearer wrong"}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = get(router, "/me", http.Header{"Authorization": {"Bearer student-token"}})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":1}`, w.Body.String())
}

func TestRequirePermission(t *testing.T) {
	router := authRouter()

	post := func(token string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/materials", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		router.ServeHTTP(w, req)
		return w
	}

	w := post("student-token")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, apperrors.ErrCodeUnauthorized, errorBody(t, w).Code)

	assert.Equal(t, http.StatusCreated, post("teacher-token").Code)
}

func TestErrorHandlerMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(ErrorHandlerMiddleware(zap.NewNop().Sugar()))
	router.GET("/conflict", func(c *gin.Context) {
		_ = c.Error(apperrors.NewConflictError("material was modified by someone else").WithContext("current_version", 4))
	})
	router.GET("/boom", func(c *gin.Context) {
		_ = c.Error(apperrors.NewStoreError(assert.AnError))
	})

	w := get(router, "/conflict", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	body := errorBody(t, w)
	assert.Equal(t, apperrors.ErrCodeConflict, body.Code)
	assert.Equal(t, float64(4), body.Details["current_version"])

	w = get(router, "/boom", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body = errorBody(t, w)
	assert.Equal(t, "internal server error", body.Message)
	assert.NotContains(t, w.Body.String(), assert.AnError.Error())
}

func TestRecoveryMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RecoveryMiddleware(zap.NewNop().Sugar()))
	router.GET("/panic", func(c *gin.Context) { panic("nil map") })

	w := get(router, "/panic", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, apperrors.ErrCodeInternal, errorBody(t, w).Code)
}

type routeRecorder struct {
	routes []string
	status []int
}

func (r *routeRecorder) RecordHTTPRequest(method, route string, status int, _ time.Duration) {
	r.routes = append(r.routes, method+" "+route)
	r.status = append(r.status, status)
}

func TestRequestIDAndAccessLog(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := &routeRecorder{}
	var seen string

	router := gin.New()
	router.Use(RequestIDMiddleware(), RequestLogger(logger.NewContextLogger(zap.NewNop()), metrics))
	router.GET("/materials/:id", func(c *gin.Context) {
		seen = logger.RequestIDFrom(c.Request.Context())
		c.Status(http.StatusOK)
	})

	w := get(router, "/materials/5", http.Header{"X-Request-Id": {"req-fixed"}})
	assert.Equal(t, "req-fixed", w.Header().Get("X-Request-ID"))
	assert.Equal(t, "req-fixed", seen)

	w = get(router, "/materials/6", nil)
	assert.True(t, strings.HasPrefix(w.Header().Get("X-Request-ID"), "req_"))

	get(router, "/nowhere", nil)
	assert.Equal(t, []string{"GET /materials/:id", "GET /materials/:id", "GET "}, metrics.routes)
	assert.Equal(t, []int{200, 200, 404}, metrics.status)
}

func TestCORSMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(CORSMiddleware([]string{"https://app.example.org"}))
	router.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := get(router, "/x", http.Header{"Origin": {"https://app.example.org"}})
	assert.Equal(t, "https://app.example.org", w.Header().Get("Access-Control-Allow-Origin"))

	w = get(router, "/x", http.Header{"Origin": {"https://evil.example.com"}})
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	pre := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "https://app.example.org")
	router.ServeHTTP(pre, req)
	assert.Equal(t, http.StatusNoContent, pre.Code)
}

func TestBodyLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(BodyLimitMiddleware(8))
	router.POST("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/x", strings.NewReader("tiny")))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/x", strings.NewReader("far too large a body")))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestOptionalAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	auth := stubAuth{identities: map[string]domain.Identity{"t": {UserID: 9, Role: domain.RoleTeacher}}}

	router := gin.New()
	router.Use(OptionalAuthMiddleware(auth))
	router.GET("/who", func(c *gin.Context) {
		id, ok := IdentityFrom(c)
		c.JSON(http.StatusOK, gin.H{"known": ok, "id": id.UserID})
	})

	assert.JSONEq(t, `{"known":false,"id":0}`, get(router, "/who", nil).Body.String())
	assert.JSONEq(t, `{"known":false,"id":0}`, get(router, "/who", http.Header{"Authorization": {"Bearer nope"}}).Body.String())
	assert.JSONEq(t, `{"known":true,"id":9}`, get(router, "/who", http.Header{"Authorization": {"Bearer t"}}).Body.String())
}
