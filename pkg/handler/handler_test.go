package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"transfer_requests_back/internal/workflow"
	"transfer_requests_back/models"
	"transfer_requests_back/pkg/apperror"
	"transfer_requests_back/pkg/config"
	"transfer_requests_back/pkg/middleware"
	"transfer_requests_back/pkg/service"
)

type stubAuth map[int64]models.User

func (s stubAuth) GetUser(_ context.Context, id int64) (models.User, error) {
	u, ok := s[id]
	if !ok {
		return u, apperror.NotFound("user not found")
	}
	return u, nil
}

type stubRequests struct {
	service.TransferRequests
	reviewed models.ReviewInput
}

func (s *stubRequests) Get(_ context.Context, _ models.Actor, publicID string) (models.TransferRequestDetail, error) {
	if publicID != "known" {
		return models.TransferRequestDetail{}, apperror.NotFound("transfer request not found")
	}
	return models.TransferRequestDetail{
		TransferRequest: models.TransferRequest{ID: 7, PublicID: "known", Amount: decimal.RequireFromString("12.5"), Status: workflow.StatusSubmitted},
		Transfers:       []models.Transfer{},
	}, nil
}

func (s *stubRequests) Review(_ context.Context, a models.Actor, publicID string, input models.ReviewInput) (models.TransferRequest, error) {
	s.reviewed = input
	if a.Role != workflow.RoleApprover {
		return models.TransferRequest{}, apperror.Forbidden("role is not permitted to perform this action")
	}
	return models.TransferRequest{PublicID: publicID, Status: workflow.StatusApproved}, nil
}

type stubReconciliation struct {
	service.Reconciliation
}

func (stubReconciliation) CancelTransfers(context.Context, models.Actor, models.CancelInput) ([]models.Transfer, error) {
	return nil, apperror.Precondition("cancel precondition failed", nil)
}

func (stubReconciliation) RetryTransfer(context.Context, models.Actor, int64) (models.Transfer, error) {
	return models.Transfer{}, apperror.Internal(assert.AnError)
}

func newTestRouter(requests *stubRequests) *gin.Engine {
	gin.SetMode(gin.TestMode)
	svc := &service.Service{
		Authorization: stubAuth{
			1: {ID: 1, RoleID: workflow.RoleApprover},
			2: {ID: 2, RoleID: workflow.RoleController},
		},
		TransferRequests: requests,
		Reconciliation:   stubReconciliation{},
	}
	return NewHandler(svc, config.HTTP{}, Limits{}).InitRoute()
}

func do(r http.Handler, method, path, userID, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestGetTransferRequest(t *testing.T) {
	r := newTestRouter(&stubRequests{})

	w := do(r, http.MethodGet, "/api/transfer-requests/known", "1", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"data":{"id":"known","amount":"12.5"`)
	assert.NotContains(t, w.Body.String(), `"id":7`)

	w = do(r, http.MethodGet, "/api/transfer-requests/missing", "1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":{"status":404,"message":"transfer request not found"}}`, w.Body.String())
}

func TestRequiresUserHeader(t *testing.T) {
	r := newTestRouter(&stubRequests{})
	w := do(r, http.MethodGet, "/api/transfer-requests/known", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestReviewBinding(t *testing.T) {
	requests := &stubRequests{}
	r := newTestRouter(requests)

	w := do(r, http.MethodPost, "/api/transfer-requests/known/review", "1", `{"decision":"approve"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, workflow.ActionApprove, requests.reviewed.Decision)

	w = do(r, http.MethodPost, "/api/transfer-requests/known/review", "1", `{"decision":"pay"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":{"status":400,"errors":[{"field":"decision","message":"must be one of approve request_changes reject block unblock"}]}}`, w.Body.String())

	w = do(r, http.MethodPost, "/api/transfer-requests/known/review", "2", `{"decision":"approve"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestControllerErrors(t *testing.T) {
	r := newTestRouter(&stubRequests{})

	w := do(r, http.MethodPost, "/api/controller/transfers/cancel", "2", `{"request_ids":[1,2],"reason":"wrong amount"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":{"status":400,"message":"cancel precondition failed"}}`, w.Body.String())

	w = do(r, http.MethodPost, "/api/controller/transfers/cancel", "2", `{"request_ids":[1,2]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"field":"reason"`)

	w = do(r, http.MethodPost, "/api/controller/transfers/cancel", "2", `{"request_ids":[],"reason":"wrong amount"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"field":"request_ids"`)

	w = do(r, http.MethodPost, "/api/controller/transfers/retry", "2", `{"request_id":3}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":{"status":500,"message":"internal server error"}}`, w.Body.String())
}

func TestIPLimitAppliesBeforeAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &service.Service{Authorization: stubAuth{}, TransferRequests: &stubRequests{}}
	r := NewHandler(svc, config.HTTP{}, Limits{PerIP: middleware.NewRateLimiter(0.001, 1)}).InitRoute()

	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/api/transfer-requests/known", "", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(r, http.MethodGet, "/api/transfer-requests/known", "", "").Code)
	assert.Equal(t, http.StatusNoContent, do(r, http.MethodGet, "/health", "", "").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	r := newTestRouter(&stubRequests{})
	do(r, http.MethodGet, "/api/transfer-requests/known", "1", "")

	w := do(r, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "transfer_requests_http_requests_total")
}
