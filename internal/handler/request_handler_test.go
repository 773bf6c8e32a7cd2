package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/edubase/center-ops-api/internal/dto"
	"github.com/edubase/center-ops-api/internal/middleware"
	"github.com/edubase/center-ops-api/internal/models"
	appErrors "github.com/edubase/center-ops-api/pkg/errors"
)

type requestServiceMock struct {
	submitResp *dto.RequestSnapshot
	submitErr  error
	decideResp *dto.RequestSnapshot
	decideErr  error
	cancelResp *dto.RequestSnapshot
	cancelErr  error
	listResp   []models.StudentRequest
	listQuery  dto.RequestQuery
	getResp    *models.StudentRequest
}

func (m *requestServiceMock) Submit(ctx context.Context, payload dto.SubmitRequestPayload, actor *models.JWTClaims) (*dto.RequestSnapshot, error) {
	return m.submitResp, m.submitErr
}

func (m *requestServiceMock) Decide(ctx context.Context, requestID string, payload dto.DecideRequestPayload, actor *models.JWTClaims) (*dto.RequestSnapshot, error) {
	return m.decideResp, m.decideErr
}

func (m *requestServiceMock) Cancel(ctx context.Context, requestID string, actor *models.JWTClaims) (*dto.RequestSnapshot, error) {
	return m.cancelResp, m.cancelErr
}

func (m *requestServiceMock) List(ctx context.Context, query dto.RequestQuery, actor *models.JWTClaims) ([]models.StudentRequest, error) {
	m.listQuery = query
	return m.listResp, nil
}

func (m *requestServiceMock) Get(ctx context.Context, requestID string, actor *models.JWTClaims) (*models.StudentRequest, error) {
	return m.getResp, nil
}

func newGinContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func TestRequestHandlerSubmit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &requestServiceMock{
		submitResp: &dto.RequestSnapshot{
			Request:  &models.StudentRequest{ID: "req-1", Status: models.RequestStatusPending},
			Warnings: []string{"session starts in 3h0m0s, below the recommended lead time of 24h0m0s"},
		},
	}
	h := NewRequestHandler(mockSvc)

	payload, _ := json.Marshal(dto.SubmitRequestPayload{
		Type:      models.RequestTypeAbsence,
		ClassID:   "class-1",
		SessionID: "sess-1",
		Reason:    "sick",
	})
	c, w := newGinContext(http.MethodPost, "/requests", payload)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "u1", Role: models.RoleStudent, StudentID: "student-1"})

	h.Submit(c)
	require.Equal(t, http.StatusCreated, w.Code)

	var envelope struct {
		Warnings []string `json:"warnings"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.Len(t, envelope.Warnings, 1)
}

func TestRequestHandlerSubmitBadPayload(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewRequestHandler(&requestServiceMock{})

	c, w := newGinContext(http.MethodPost, "/requests", []byte("{not json"))
	h.Submit(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRequestHandlerDecideConflict(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &requestServiceMock{decideErr: appErrors.ErrCapacityExceeded}
	h := NewRequestHandler(mockSvc)

	payload, _ := json.Marshal(dto.DecideRequestPayload{Decision: "approve"})
	c, w := newGinContext(http.MethodPost, "/requests/req-1/decision", payload)
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin", Role: models.RoleAdmin})

	h.Decide(c)
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestRequestHandlerListParsesQuery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &requestServiceMock{}
	h := NewRequestHandler(mockSvc)

	c, w := newGinContext(http.MethodGet, "/requests?status=pending,approved&type=makeup&limit=10", nil)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin", Role: models.RoleAdmin})

	h.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, models.RequestTypeMakeup, mockSvc.listQuery.Type)
	require.Equal(t, []models.RequestStatus{models.RequestStatusPending, models.RequestStatusApproved}, mockSvc.listQuery.Status)
	require.Equal(t, 10, mockSvc.listQuery.Limit)
}

func TestRequestHandlerCancel(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &requestServiceMock{
		cancelResp: &dto.RequestSnapshot{Request: &models.StudentRequest{ID: "req-1", Status: models.RequestStatusCancelled}},
	}
	h := NewRequestHandler(mockSvc)

	c, w := newGinContext(http.MethodPost, "/requests/req-1/cancel", nil)
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "u1", Role: models.RoleStudent, StudentID: "student-1"})

	h.Cancel(c)
	require.Equal(t, http.StatusOK, w.Code)
}
