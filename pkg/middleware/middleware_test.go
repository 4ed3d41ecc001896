package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"transfer_requests_back/internal/workflow"
	"transfer_requests_back/models"
	"transfer_requests_back/pkg/apperror"
)

type staticUsers map[int64]models.User

func (s staticUsers) GetUser(_ context.Context, id int64) (models.User, error) {
	u, ok := s[id]
	if !ok {
		return u, apperror.NotFound("user not found")
	}
	return u, nil
}

func router(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(mw...)
	r.GET("/whoami", func(c *gin.Context) {
		actor, _ := Actor(c)
		c.JSON(http.StatusOK, gin.H{"role": actor.Role.String()})
	})
	return r
}

func get(r http.Handler, userID string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	users := staticUsers{
		1: {ID: 1, RoleID: workflow.RoleController},
		2: {ID: 2},
	}
	r := router(AuthMiddleware(users))

	w := get(r, "1")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"role":"controller"}`, w.Body.String())

	assert.Equal(t, http.StatusUnauthorized, get(r, "").Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, "abc").Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, "9").Code)
	assert.Equal(t, http.StatusForbidden, get(r, "2").Code)
}

func TestRateLimiter(t *testing.T) {
	users := staticUsers{1: {ID: 1, RoleID: workflow.RoleAdmin}, 2: {ID: 2, RoleID: workflow.RoleAdmin}}
	rl := NewRateLimiter(0.001, 2)
	r := router(AuthMiddleware(users), rl.ByUser())

	assert.Equal(t, http.StatusOK, get(r, "1").Code)
	assert.Equal(t, http.StatusOK, get(r, "1").Code)
	w := get(r, "1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.JSONEq(t, `{"error":{"status":429,"message":"rate limit exceeded"}}`, w.Body.String())

	assert.Equal(t, http.StatusOK, get(r, "2").Code)

	rl.Cleanup(-time.Second)
	assert.Empty(t, rl.limiters)
}

type countingUsers struct {
	staticUsers
	lookups int
}

func (c *countingUsers) GetUser(ctx context.Context, id int64) (models.User, error) {
	c.lookups++
	return c.staticUsers.GetUser(ctx, id)
}

func TestIPLimiterRunsBeforeAuth(t *testing.T) {
	users := &countingUsers{staticUsers: staticUsers{}}
	rl := NewRateLimiter(0.001, 2)
	r := router(rl.ByIP(), AuthMiddleware(users))

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusUnauthorized, get(r, "9").Code)
	}
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusTooManyRequests, get(r, "9").Code)
	}
	assert.Equal(t, 2, users.lookups)
}
