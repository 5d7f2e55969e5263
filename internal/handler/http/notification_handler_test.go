package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"notification-sync-service/internal/domain/entity"
	"notification-sync-service/internal/domain/repository"
	"notification-sync-service/internal/usecase"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockNotificationService struct {
	mock.Mock
}

func (m *mockNotificationService) CreateNotifications(ctx context.Context, req usecase.CreateNotificationsRequest) ([]*entity.Notification, error) {
	args := m.Called(ctx, req)
	notifications, _ := args.Get(0).([]*entity.Notification)
	return notifications, args.Error(1)
}

func (m *mockNotificationService) WithdrawRequest(ctx context.Context, tenantID, requestID uuid.UUID) (int, error) {
	args := m.Called(ctx, tenantID, requestID)
	return args.Int(0), args.Error(1)
}

func (m *mockNotificationService) GetNotification(ctx context.Context, tenantID, id uuid.UUID) (*entity.Notification, error) {
	args := m.Called(ctx, tenantID, id)
	notification, _ := args.Get(0).(*entity.Notification)
	return notification, args.Error(1)
}

func (m *mockNotificationService) ListUnread(ctx context.Context, tenantID, recipientID uuid.UUID, limit int) (*entity.NotificationPage, error) {
	args := m.Called(ctx, tenantID, recipientID, limit)
	page, _ := args.Get(0).(*entity.NotificationPage)
	return page, args.Error(1)
}

func (m *mockNotificationService) MarkAsRead(ctx context.Context, tenantID, recipientID, notificationID uuid.UUID) error {
	args := m.Called(ctx, tenantID, recipientID, notificationID)
	return args.Error(0)
}

var (
	testTenant = uuid.MustParse("11111111-0000-0000-0000-000000000001")
	testUser   = uuid.MustParse("22222222-0000-0000-0000-000000000002")
)

func newTestRouter(t *testing.T, service NotificationService) (*mux.Router, string) {
	t.Helper()

	tokens := usecase.NewTokenService("test-secret", time.Hour)
	token, err := tokens.GenerateToken(testTenant, testUser)
	require.NoError(t, err)

	router := mux.NewRouter()
	NewNotificationHandler(service, 100).RegisterRoutes(router, tokens)
	return router, token
}

func serve(router http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestCreateNotifications(t *testing.T) {
	service := new(mockNotificationService)
	router, _ := newTestRouter(t, service)

	requestID := uuid.New()
	created, err := entity.NewNotification(testTenant, testUser, requestID, entity.NotificationTypeAlarm, "s", "hello", nil)
	require.NoError(t, err)

	service.On("CreateNotifications", mock.Anything, mock.MatchedBy(func(req usecase.CreateNotificationsRequest) bool {
		return req.TenantID == testTenant && req.Type == entity.NotificationTypeAlarm &&
			len(req.RecipientIDs) == 1 && req.RecipientIDs[0] == testUser
	})).Return([]*entity.Notification{created}, nil)

	body := `{"tenant_id":"` + testTenant.String() + `","recipient_ids":["` + testUser.String() + `"],"type":"ALARM","text":"hello"}`
	rec := serve(router, http.MethodPost, "/api/notifications", body, "")

	require.Equal(t, http.StatusCreated, rec.Code)
	response := decodeBody(t, rec)
	assert.Equal(t, requestID.String(), response["request_id"])
	assert.Equal(t, []interface{}{created.ID.String()}, response["notification_ids"])
	service.AssertExpectations(t)
}

func TestCreateNotifications_Validation(t *testing.T) {
	service := new(mockNotificationService)
	router, _ := newTestRouter(t, service)

	rec := serve(router, http.MethodPost, "/api/notifications", `{"text":"hello"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(router, http.MethodPost, "/api/notifications", `not json`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	service.AssertNotCalled(t, "CreateNotifications", mock.Anything, mock.Anything)
}

func TestWithdrawRequest(t *testing.T) {
	service := new(mockNotificationService)
	router, _ := newTestRouter(t, service)

	requestID := uuid.New()
	service.On("WithdrawRequest", mock.Anything, testTenant, requestID).Return(2, nil).Once()
	service.On("WithdrawRequest", mock.Anything, testTenant, requestID).Return(0, repository.ErrRequestNotFound).Once()

	path := "/api/notification-requests/" + requestID.String() + "?tenant_id=" + testTenant.String()

	rec := serve(router, http.MethodDelete, path, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), decodeBody(t, rec)["affected_recipients"])

	rec = serve(router, http.MethodDelete, path, "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(router, http.MethodDelete, "/api/notification-requests/"+requestID.String(), "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListUnread_RequiresToken(t *testing.T) {
	service := new(mockNotificationService)
	router, _ := newTestRouter(t, service)

	rec := serve(router, http.MethodGet, "/api/notifications/unread", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(router, http.MethodGet, "/api/notifications/unread", "", "not-a-token")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListUnread_UsesCallerIdentityAndCapsLimit(t *testing.T) {
	service := new(mockNotificationService)
	router, token := newTestRouter(t, service)

	n, err := entity.NewNotification(testTenant, testUser, uuid.New(), entity.NotificationTypeGeneral, "", "hi", nil)
	require.NoError(t, err)
	service.On("ListUnread", mock.Anything, testTenant, testUser, 100).
		Return(&entity.NotificationPage{Items: []*entity.Notification{n}, TotalUnread: 7}, nil)

	rec := serve(router, http.MethodGet, "/api/notifications/unread?limit=500", "", token)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(7), body["total_unread_count"])
	assert.Len(t, body["notifications"], 1)
	service.AssertExpectations(t)
}

func TestListUnread_InvalidLimit(t *testing.T) {
	service := new(mockNotificationService)
	router, token := newTestRouter(t, service)

	service.On("ListUnread", mock.Anything, testTenant, testUser, 0).Return(nil, usecase.ErrInvalidLimit)

	rec := serve(router, http.MethodGet, "/api/notifications/unread?limit=abc", "", token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(router, http.MethodGet, "/api/notifications/unread?limit=0", "", token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMarkAsRead(t *testing.T) {
	service := new(mockNotificationService)
	router, token := newTestRouter(t, service)

	found := uuid.New()
	missing := uuid.New()
	service.On("MarkAsRead", mock.Anything, testTenant, testUser, found).Return(nil)
	service.On("MarkAsRead", mock.Anything, testTenant, testUser, missing).Return(usecase.ErrNotificationNotFound)

	rec := serve(router, http.MethodPost, "/api/notifications/"+found.String()+"/read", "", token)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(router, http.MethodPost, "/api/notifications/"+missing.String()+"/read", "", token)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(router, http.MethodPost, "/api/notifications/not-a-uuid/read", "", token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetNotification_HidesOtherRecipients(t *testing.T) {
	service := new(mockNotificationService)
	router, token := newTestRouter(t, service)

	mine, err := entity.NewNotification(testTenant, testUser, uuid.New(), entity.NotificationTypeGeneral, "", "mine", nil)
	require.NoError(t, err)
	theirs, err := entity.NewNotification(testTenant, uuid.New(), uuid.New(), entity.NotificationTypeGeneral, "", "theirs", nil)
	require.NoError(t, err)

	service.On("GetNotification", mock.Anything, testTenant, mine.ID).Return(mine, nil)
	service.On("GetNotification", mock.Anything, testTenant, theirs.ID).Return(theirs, nil)

	rec := serve(router, http.MethodGet, "/api/notifications/"+mine.ID.String(), "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "mine", decodeBody(t, rec)["text"])

	rec = serve(router, http.MethodGet, "/api/notifications/"+theirs.ID.String(), "", token)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthHandler(t *testing.T) {
	handler := NewHealthHandler("sync-1")

	rec := httptest.NewRecorder()
	handler.Check(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "sync-1", decodeBody(t, rec)["service"])

	handler.AddCheck("database", func(ctx context.Context) error { return errors.New("connection refused") })

	rec = httptest.NewRecorder()
	handler.Check(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, "connection refused", body["checks"].(map[string]interface{})["database"])
}
