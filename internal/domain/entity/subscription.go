package entity

import (
	"fmt"

	"github.com/google/uuid"
)

// SubscriptionKey identifica una suscripción activa; es la clave de enrutamiento del fan-out
type SubscriptionKey struct {
	ServiceID      string    `json:"serviceId"`
	SessionID      string    `json:"sessionId"`
	SubscriptionID int       `json:"subscriptionId"`
	TenantID       uuid.UUID `json:"tenantId"`
	EntityID       uuid.UUID `json:"entityId"`
}

// String devuelve la representación textual usada por el ejecutor y el fan-out
func (k SubscriptionKey) String() string {
	return fmt.Sprintf("%s/%s/%d", k.ServiceID, k.SessionID, k.SubscriptionID)
}

// Identity devuelve la identidad (tenant, usuario) dueña de la suscripción
func (k SubscriptionKey) Identity() Identity {
	return Identity{TenantID: k.TenantID, UserID: k.EntityID}
}

// Identity identifica a un usuario dentro de un tenant
type Identity struct {
	TenantID uuid.UUID `json:"tenantId"`
	UserID   uuid.UUID `json:"userId"`
}

// String devuelve la identidad como "tenant:usuario"
func (i Identity) String() string {
	return i.TenantID.String() + ":" + i.UserID.String()
}

// SubscriptionUpdateType representa el tipo de evento de dominio
type SubscriptionUpdateType string

const (
	UpdateNotificationChanged          SubscriptionUpdateType = "notification_changed"
	UpdateNotificationRequestWithdrawn SubscriptionUpdateType = "notification_request_withdrawn"
)

// SubscriptionUpdate es un evento de dominio dirigido a las suscripciones de un destinatario
type SubscriptionUpdate struct {
	Type            SubscriptionUpdateType `json:"type"`
	TenantID        uuid.UUID              `json:"tenantId"`
	RecipientID     uuid.UUID              `json:"recipientId"`
	Notification    *Notification          `json:"notification,omitempty"`
	NewNotification bool                   `json:"newNotification"`
	RequestID       uuid.UUID              `json:"requestId,omitempty"`
}

// NewNotificationChanged crea un evento de notificación creada o modificada
func NewNotificationChanged(notification *Notification, isNew bool) SubscriptionUpdate {
	return SubscriptionUpdate{
		Type:            UpdateNotificationChanged,
		TenantID:        notification.TenantID,
		RecipientID:     notification.RecipientID,
		Notification:    notification,
		NewNotification: isNew,
	}
}

// NewNotificationRequestWithdrawn crea un evento de retirada de una solicitud de notificación
func NewNotificationRequestWithdrawn(tenantID, recipientID, requestID uuid.UUID) SubscriptionUpdate {
	return SubscriptionUpdate{
		Type:        UpdateNotificationRequestWithdrawn,
		TenantID:    tenantID,
		RecipientID: recipientID,
		RequestID:   requestID,
	}
}

// Recipient devuelve la identidad a la que va dirigido el evento
func (u SubscriptionUpdate) Recipient() Identity {
	return Identity{TenantID: u.TenantID, UserID: u.RecipientID}
}
