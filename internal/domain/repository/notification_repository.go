package repository

import (
	"context"

	"github.com/google/uuid"
	"notification-sync-service/internal/domain/entity"
)

// NotificationRepository define las operaciones sobre el almacén autoritativo de notificaciones
type NotificationRepository interface {
	// Guardar una nueva notificación
	Save(ctx context.Context, notification *entity.Notification) error

	// Obtener una notificación por su ID dentro de un tenant
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (*entity.Notification, error)

	// Obtener las últimas notificaciones no leídas (más recientes primero) y el total de no leídas
	FindLatestUnread(ctx context.Context, tenantID, recipientID uuid.UUID, limit int) (*entity.NotificationPage, error)

	// Contar notificaciones no leídas de un destinatario
	CountUnread(ctx context.Context, tenantID, recipientID uuid.UUID) (int, error)

	// Marcar una notificación como leída; devuelve la notificación actualizada y si cambió de estado
	MarkAsRead(ctx context.Context, tenantID, recipientID, id uuid.UUID) (*entity.Notification, bool, error)

	// Eliminar todas las notificaciones de una solicitud; devuelve los destinatarios afectados
	DeleteByRequestID(ctx context.Context, tenantID, requestID uuid.UUID) ([]uuid.UUID, error)
}
