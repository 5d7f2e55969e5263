package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"notification-sync-service/config"
	"notification-sync-service/internal/usecase"
	"notification-sync-service/pkg/logging"
	"notification-sync-service/pkg/throttling"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSubscriptions registra los comandos recibidos y responde por el hub
type fakeSubscriptions struct {
	mu       sync.Mutex
	hub      *Hub
	sessions []usecase.SessionRef
	closed   []string
	marked   []uuid.UUID
	markErr  error
}

func (f *fakeSubscriptions) SubscribeUnreadNotifications(session usecase.SessionRef, cmd usecase.UnreadNotificationsSubCmd) error {
	state, err := usecase.NewUnreadNotificationsState(cmd.Limit)
	if err != nil {
		return err
	}
	f.record(session)
	f.hub.Send(session.SessionID, usecase.NewFullUpdate(cmd.CmdID, state))
	return nil
}

func (f *fakeSubscriptions) SubscribeUnreadCount(session usecase.SessionRef, cmd usecase.UnreadCountSubCmd) error {
	f.record(session)
	f.hub.Send(session.SessionID, &usecase.UnreadCountUpdate{CmdID: cmd.CmdID, TotalUnreadCount: 5})
	return nil
}

func (f *fakeSubscriptions) Unsubscribe(session usecase.SessionRef, cmdID int) {
	f.record(session)
}

func (f *fakeSubscriptions) Refresh(session usecase.SessionRef, cmdID int) error {
	return usecase.ErrUnknownSubscription
}

func (f *fakeSubscriptions) MarkAsRead(ctx context.Context, session usecase.SessionRef, cmd usecase.MarkAsReadCmd) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marked = append(f.marked, cmd.NotificationID)
	return f.markErr
}

func (f *fakeSubscriptions) CloseSession(sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, sessionID)
}

func (f *fakeSubscriptions) record(session usecase.SessionRef) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions = append(f.sessions, session)
}

func (f *fakeSubscriptions) closedSessions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.closed...)
}

func (f *fakeSubscriptions) recordedSessions() []usecase.SessionRef {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]usecase.SessionRef(nil), f.sessions...)
}

type testEnv struct {
	httpServer    *httptest.Server
	server        *Server
	hub           *Hub
	subscriptions *fakeSubscriptions
	tokens        *usecase.TokenService
	tenantID      uuid.UUID
	userID        uuid.UUID
}

func newTestEnv(t *testing.T, rps float64, burst int) *testEnv {
	t.Helper()

	logger := logging.Nop()
	hub := NewHub(logger)
	subscriptions := &fakeSubscriptions{hub: hub}
	throttler := throttling.NewKeyedThrottler(rps, burst, time.Minute)
	tokens := usecase.NewTokenService("test-secret", time.Hour)

	server := NewServer(hub, tokens, subscriptions, throttler, config.WebSocketConfig{}, logger)
	httpServer := httptest.NewServer(http.HandlerFunc(server.HandleConnection))

	t.Cleanup(func() {
		server.Shutdown()
		httpServer.Close()
		throttler.Stop()
	})

	return &testEnv{
		httpServer:    httpServer,
		server:        server,
		hub:           hub,
		subscriptions: subscriptions,
		tokens:        tokens,
		tenantID:      uuid.New(),
		userID:        uuid.New(),
	}
}

func (e *testEnv) dial(t *testing.T) *websocket.Conn {
	t.Helper()

	token, err := e.tokens.GenerateToken(e.tenantID, e.userID)
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(e.httpServer.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return e.hub.GetClientCount() > 0 }, time.Second, 5*time.Millisecond)
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()

	var message map[string]interface{}
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&message))
	return message
}

func TestHandleConnection_RejectsMissingOrInvalidToken(t *testing.T) {
	env := newTestEnv(t, 0, 1)
	base := "ws" + strings.TrimPrefix(env.httpServer.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(base, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(base+"?token=garbage", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSubscribeCommand_DeliversFullUpdateWithSessionIdentity(t *testing.T) {
	env := newTestEnv(t, 0, 1)
	conn := env.dial(t)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"notifications_sub","payload":{"cmdId":3,"limit":10}}`)))

	message := readMessage(t, conn)
	assert.Equal(t, "notifications_update", message["type"])
	assert.Equal(t, "full", message["updateType"])
	assert.Equal(t, float64(3), message["cmdId"])
	assert.Equal(t, []interface{}{}, message["notifications"])

	sessions := env.subscriptions.recordedSessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, env.tenantID, sessions[0].TenantID)
	assert.Equal(t, env.userID, sessions[0].UserID)
	assert.NotEmpty(t, sessions[0].SessionID)
}

func TestCommandErrors_AreReportedAsErrorUpdates(t *testing.T) {
	env := newTestEnv(t, 0, 1)
	conn := env.dial(t)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"launch_rockets"}`)))
	message := readMessage(t, conn)
	assert.Equal(t, "error", message["type"])
	assert.Equal(t, "BAD_COMMAND", message["errorCode"])

	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"notifications_sub","payload":{"cmdId":4,"limit":0}}`)))
	message = readMessage(t, conn)
	assert.Equal(t, "INVALID_LIMIT", message["errorCode"])
	assert.Equal(t, float64(4), message["cmdId"])

	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"refresh","payload":{"cmdId":9}}`)))
	message = readMessage(t, conn)
	assert.Equal(t, "UNKNOWN_SUBSCRIPTION", message["errorCode"])
	assert.Equal(t, float64(9), message["cmdId"])
}

func TestMarkAsReadCommand_NotFound(t *testing.T) {
	env := newTestEnv(t, 0, 1)
	env.subscriptions.markErr = usecase.ErrNotificationNotFound
	conn := env.dial(t)

	id := uuid.New()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"mark_as_read","payload":{"notificationId":"`+id.String()+`"}}`)))

	message := readMessage(t, conn)
	assert.Equal(t, "NOTIFICATION_NOT_FOUND", message["errorCode"])

	env.subscriptions.mu.Lock()
	defer env.subscriptions.mu.Unlock()
	assert.Equal(t, []uuid.UUID{id}, env.subscriptions.marked)
}

func TestPing_RepliesWithPong(t *testing.T) {
	env := newTestEnv(t, 0, 1)
	conn := env.dial(t)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)))

	message := readMessage(t, conn)
	assert.Equal(t, "pong", message["type"])
	assert.NotEmpty(t, message["timestamp"])
}

func TestThrottling_RejectsBurst(t *testing.T) {
	env := newTestEnv(t, 0.001, 1)
	conn := env.dial(t)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"notifications_count_sub","payload":{"cmdId":1}}`)))
	message := readMessage(t, conn)
	assert.Equal(t, "notifications_count_update", message["type"])
	assert.Equal(t, float64(5), message["totalUnreadCount"])

	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"notifications_count_sub","payload":{"cmdId":2}}`)))
	message = readMessage(t, conn)
	assert.Equal(t, "error", message["type"])
	assert.Equal(t, "THROTTLED", message["errorCode"])
	assert.Equal(t, float64(2), message["cmdId"])
}

func TestDisconnect_ClosesSessionSubscriptions(t *testing.T) {
	env := newTestEnv(t, 0, 1)
	conn := env.dial(t)

	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		return len(env.subscriptions.closedSessions()) == 1 && env.hub.GetClientCount() == 0
	}, 2*time.Second, 5*time.Millisecond)
}

func TestConnectionCleaner_ClosesIdleSessions(t *testing.T) {
	env := newTestEnv(t, 0, 1)
	env.dial(t)

	cleaner := NewConnectionCleaner(env.hub, time.Hour, time.Minute, logging.Nop())

	assert.Equal(t, 0, cleaner.cleanInactiveConnections(time.Now()))
	assert.Equal(t, 1, cleaner.cleanInactiveConnections(time.Now().Add(time.Hour)))

	require.Eventually(t, func() bool {
		return len(env.subscriptions.closedSessions()) == 1 && env.hub.GetClientCount() == 0
	}, 2*time.Second, 5*time.Millisecond)
}

func TestHubSend_UnknownSessionIsDropped(t *testing.T) {
	hub := NewHub(logging.Nop())

	assert.NotPanics(t, func() {
		hub.Send("missing", &usecase.UnreadCountUpdate{CmdID: 1})
	})
	assert.False(t, hub.IsSessionConnected("missing"))
}

func TestClientSend_ReportsFullAndClosed(t *testing.T) {
	client := NewClient(NewHub(logging.Nop()), nil, usecase.SessionRef{SessionID: "s-1"}, clientSettings{bufferSize: 1}, nil)

	require.NoError(t, client.Send([]byte("a")))
	assert.ErrorIs(t, client.Send([]byte("b")), ErrSendBufferFull)

	client.closeSend()
	assert.ErrorIs(t, client.Send([]byte("c")), ErrClientClosed)
}

func TestHubSend_ClosingSessionIsDroppedQuietly(t *testing.T) {
	hub := NewHub(logging.Nop())
	// Sin conexión: un segundo Close provocaría un panic
	client := NewClient(hub, nil, usecase.SessionRef{SessionID: "s-1"}, clientSettings{bufferSize: 1}, nil)
	hub.register(client)

	// La baja cierra el canal antes de que el hub la retire
	client.closeSend()

	assert.NotPanics(t, func() {
		hub.Send("s-1", &usecase.UnreadCountUpdate{CmdID: 1})
	})
	assert.True(t, hub.IsSessionConnected("s-1"))
}
