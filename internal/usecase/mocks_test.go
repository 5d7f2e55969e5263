package usecase

import (
	"context"
	"sync"
	"time"

	"notification-sync-service/internal/domain/entity"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) FetchUnreadPage(ctx context.Context, tenantID, entityID uuid.UUID, limit int) (*entity.NotificationPage, error) {
	args := m.Called(ctx, tenantID, entityID, limit)
	page, _ := args.Get(0).(*entity.NotificationPage)
	return page, args.Error(1)
}

func (m *mockFetcher) FetchUnreadCount(ctx context.Context, tenantID, entityID uuid.UUID) (int, error) {
	args := m.Called(ctx, tenantID, entityID)
	return args.Int(0), args.Error(1)
}

type mockRepository struct {
	mock.Mock
}

func (m *mockRepository) Save(ctx context.Context, notification *entity.Notification) error {
	return m.Called(ctx, notification).Error(0)
}

func (m *mockRepository) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*entity.Notification, error) {
	args := m.Called(ctx, tenantID, id)
	n, _ := args.Get(0).(*entity.Notification)
	return n, args.Error(1)
}

func (m *mockRepository) FindLatestUnread(ctx context.Context, tenantID, recipientID uuid.UUID, limit int) (*entity.NotificationPage, error) {
	args := m.Called(ctx, tenantID, recipientID, limit)
	page, _ := args.Get(0).(*entity.NotificationPage)
	return page, args.Error(1)
}

func (m *mockRepository) CountUnread(ctx context.Context, tenantID, recipientID uuid.UUID) (int, error) {
	args := m.Called(ctx, tenantID, recipientID)
	return args.Int(0), args.Error(1)
}

func (m *mockRepository) MarkAsRead(ctx context.Context, tenantID, recipientID, id uuid.UUID) (*entity.Notification, bool, error) {
	args := m.Called(ctx, tenantID, recipientID, id)
	n, _ := args.Get(0).(*entity.Notification)
	return n, args.Bool(1), args.Error(2)
}

func (m *mockRepository) DeleteByRequestID(ctx context.Context, tenantID, requestID uuid.UUID) ([]uuid.UUID, error) {
	args := m.Called(ctx, tenantID, requestID)
	ids, _ := args.Get(0).([]uuid.UUID)
	return ids, args.Error(1)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, update entity.SubscriptionUpdate) error {
	return m.Called(ctx, update).Error(0)
}

type mockMarker struct {
	mock.Mock
}

func (m *mockMarker) MarkAsRead(ctx context.Context, tenantID, recipientID, notificationID uuid.UUID) error {
	return m.Called(ctx, tenantID, recipientID, notificationID).Error(0)
}

// inlineExecutor ejecuta cada tarea en el momento, lo que ya es serial por construcción
type inlineExecutor struct{}

func (inlineExecutor) Execute(_ string, task func()) error {
	task()
	return nil
}

// memoryFanout entrega los eventos publicados a las suscripciones de su destinatario
type memoryFanout struct {
	mu       sync.Mutex
	handlers map[entity.SubscriptionKey]EventHandler
}

func newMemoryFanout() *memoryFanout {
	return &memoryFanout{handlers: make(map[entity.SubscriptionKey]EventHandler)}
}

func (f *memoryFanout) Subscribe(key entity.SubscriptionKey, handler EventHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[key] = handler
	return nil
}

func (f *memoryFanout) Unsubscribe(key entity.SubscriptionKey) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, key)
}

func (f *memoryFanout) Publish(_ context.Context, update entity.SubscriptionUpdate) error {
	f.mu.Lock()
	var targets []EventHandler
	for key, handler := range f.handlers {
		if key.Identity() == update.Recipient() {
			targets = append(targets, handler)
		}
	}
	f.mu.Unlock()

	for _, handler := range targets {
		handler(update)
	}
	return nil
}

func (f *memoryFanout) registered() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers)
}

type sentUpdate struct {
	sessionID string
	update    CmdUpdate
}

// recordingTransport guarda todo lo enviado
type recordingTransport struct {
	mu   sync.Mutex
	sent []sentUpdate
}

func (t *recordingTransport) Send(sessionID string, update CmdUpdate) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, sentUpdate{sessionID: sessionID, update: update})
}

func (t *recordingTransport) all() []sentUpdate {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]sentUpdate(nil), t.sent...)
}

func (t *recordingTransport) last() CmdUpdate {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.sent) == 0 {
		return nil
	}
	return t.sent[len(t.sent)-1].update
}

var (
	testTenant = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	testUser   = uuid.MustParse("22222222-2222-2222-2222-222222222222")
	baseTime   = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
)

// newUnread crea una notificación no leída con antigüedad creciente según age
func newUnread(requestID uuid.UUID, age int) *entity.Notification {
	return &entity.Notification{
		ID:          uuid.New(),
		RequestID:   requestID,
		TenantID:    testTenant,
		RecipientID: testUser,
		Type:        entity.NotificationTypeGeneral,
		Text:        "hello",
		Status:      entity.NotificationStatusUnread,
		CreatedAt:   baseTime.Add(-time.Duration(age) * time.Minute),
	}
}

func readCopy(n *entity.Notification) *entity.Notification {
	c := n.Copy()
	c.Status = entity.NotificationStatusRead
	return c
}
