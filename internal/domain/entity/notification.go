package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// NotificationStatus representa el estado de lectura de una notificación
type NotificationStatus string

const (
	NotificationStatusUnread NotificationStatus = "UNREAD"
	NotificationStatusRead   NotificationStatus = "READ"
)

// NotificationType representa los diferentes tipos de notificaciones
type NotificationType string

const (
	NotificationTypeGeneral NotificationType = "GENERAL"
	NotificationTypeAlarm   NotificationType = "ALARM"
	NotificationTypeSystem  NotificationType = "SYSTEM"
)

// Notification representa una notificación dirigida a un usuario de un tenant
type Notification struct {
	ID          uuid.UUID          `json:"id"`
	RequestID   uuid.UUID          `json:"requestId"`
	TenantID    uuid.UUID          `json:"tenantId"`
	RecipientID uuid.UUID          `json:"recipientId"`
	Type        NotificationType   `json:"type"`
	Subject     string             `json:"subject,omitempty"`
	Text        string             `json:"text"`
	Info        json.RawMessage    `json:"info,omitempty"`
	Status      NotificationStatus `json:"status"`
	CreatedAt   time.Time          `json:"createdTime"`
}

// NewNotification crea una nueva notificación no leída
func NewNotification(tenantID, recipientID, requestID uuid.UUID, notificationType NotificationType, subject, text string, info map[string]interface{}) (*Notification, error) {
	var infoJSON json.RawMessage
	if info != nil {
		var err error
		infoJSON, err = json.Marshal(info)
		if err != nil {
			return nil, err
		}
	}

	if notificationType == "" {
		notificationType = NotificationTypeGeneral
	}

	return &Notification{
		ID:          uuid.New(),
		RequestID:   requestID,
		TenantID:    tenantID,
		RecipientID: recipientID,
		Type:        notificationType,
		Subject:     subject,
		Text:        text,
		Info:        infoJSON,
		Status:      NotificationStatusUnread,
		CreatedAt:   time.Now().UTC().Truncate(time.Millisecond),
	}, nil
}

// IsRead indica si la notificación ya fue leída
func (n *Notification) IsRead() bool {
	return n.Status == NotificationStatusRead
}

// Copy devuelve una copia superficial de la notificación
func (n *Notification) Copy() *Notification {
	c := *n
	return &c
}

// NotificationPage es una página de notificaciones no leídas junto con el total del almacén
type NotificationPage struct {
	Items       []*Notification `json:"items"`
	TotalUnread int             `json:"totalUnread"`
}
