package usecase

import (
	"context"
	"errors"
	"fmt"

	"notification-sync-service/internal/domain/entity"
	"notification-sync-service/internal/domain/repository"
	"notification-sync-service/pkg/logging"

	"github.com/google/uuid"
)

// Errores comunes del servicio de notificaciones
var (
	ErrNotificationNotFound     = errors.New("notification not found")
	ErrFailedToSaveNotification = errors.New("failed to save notification")
	ErrInvalidNotificationData  = errors.New("invalid notification data")
)

// CreateNotificationsRequest describe una solicitud de notificación para varios destinatarios
type CreateNotificationsRequest struct {
	TenantID     uuid.UUID
	RequestID    uuid.UUID
	RecipientIDs []uuid.UUID
	Type         entity.NotificationType
	Subject      string
	Text         string
	Info         map[string]interface{}
}

// NotificationProcessingService escribe en el almacén y publica los eventos de dominio resultantes
type NotificationProcessingService struct {
	notificationRepo repository.NotificationRepository
	publisher        EventPublisher
	logger           *logging.Logger
}

// NewNotificationProcessingService crea una nueva instancia del servicio
func NewNotificationProcessingService(
	notificationRepo repository.NotificationRepository,
	publisher EventPublisher,
	logger *logging.Logger,
) *NotificationProcessingService {
	return &NotificationProcessingService{
		notificationRepo: notificationRepo,
		publisher:        publisher,
		logger:           logger,
	}
}

// CreateNotifications guarda una notificación por destinatario y publica NotificationChanged(nueva)
func (s *NotificationProcessingService) CreateNotifications(ctx context.Context, req CreateNotificationsRequest) ([]*entity.Notification, error) {
	if req.TenantID == uuid.Nil || len(req.RecipientIDs) == 0 || req.Text == "" {
		return nil, ErrInvalidNotificationData
	}
	if req.RequestID == uuid.Nil {
		req.RequestID = uuid.New()
	}

	created := make([]*entity.Notification, 0, len(req.RecipientIDs))
	for _, recipientID := range req.RecipientIDs {
		notification, err := entity.NewNotification(req.TenantID, recipientID, req.RequestID, req.Type, req.Subject, req.Text, req.Info)
		if err != nil {
			return created, fmt.Errorf("%w: %v", ErrInvalidNotificationData, err)
		}

		if err := s.notificationRepo.Save(ctx, notification); err != nil {
			s.logger.Error("Failed to save notification for %s: %v", recipientID, err)
			return created, fmt.Errorf("%w: %v", ErrFailedToSaveNotification, err)
		}
		created = append(created, notification)

		s.publish(ctx, entity.NewNotificationChanged(notification, true))
	}

	s.logger.Info("Created %d notifications for request %s", len(created), req.RequestID)
	return created, nil
}

// MarkAsRead marca una notificación como leída y publica el cambio si hubo transición
func (s *NotificationProcessingService) MarkAsRead(ctx context.Context, tenantID, recipientID, notificationID uuid.UUID) error {
	notification, changed, err := s.notificationRepo.MarkAsRead(ctx, tenantID, recipientID, notificationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotificationNotFound) {
			return ErrNotificationNotFound
		}
		return err
	}

	if changed {
		s.publish(ctx, entity.NewNotificationChanged(notification, false))
	}
	return nil
}

// WithdrawRequest elimina las notificaciones de una solicitud y avisa a cada destinatario afectado
func (s *NotificationProcessingService) WithdrawRequest(ctx context.Context, tenantID, requestID uuid.UUID) (int, error) {
	recipients, err := s.notificationRepo.DeleteByRequestID(ctx, tenantID, requestID)
	if err != nil {
		return 0, err
	}

	for _, recipientID := range recipients {
		s.publish(ctx, entity.NewNotificationRequestWithdrawn(tenantID, recipientID, requestID))
	}

	s.logger.Info("Withdrew request %s affecting %d recipients", requestID, len(recipients))
	return len(recipients), nil
}

// GetNotification obtiene una notificación por su ID
func (s *NotificationProcessingService) GetNotification(ctx context.Context, tenantID, id uuid.UUID) (*entity.Notification, error) {
	notification, err := s.notificationRepo.GetByID(ctx, tenantID, id)
	if errors.Is(err, repository.ErrNotificationNotFound) {
		return nil, ErrNotificationNotFound
	}
	return notification, err
}

// ListUnread devuelve las últimas no leídas de un usuario
func (s *NotificationProcessingService) ListUnread(ctx context.Context, tenantID, recipientID uuid.UUID, limit int) (*entity.NotificationPage, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLimit, limit)
	}
	return s.notificationRepo.FindLatestUnread(ctx, tenantID, recipientID, limit)
}

// publish no propaga errores: el almacén ya está actualizado y las suscripciones
// pueden resincronizarse con un refresh
func (s *NotificationProcessingService) publish(ctx context.Context, update entity.SubscriptionUpdate) {
	if err := s.publisher.Publish(ctx, update); err != nil {
		s.logger.Error("Failed to publish %s for %s: %v", update.Type, update.Recipient(), err)
	}
}
