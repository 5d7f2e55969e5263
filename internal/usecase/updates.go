package usecase

import (
	"encoding/json"
	"errors"

	"notification-sync-service/internal/domain/entity"
)

// CmdUpdateType es el tipo de mensaje saliente
type CmdUpdateType string

const (
	CmdUpdateNotifications CmdUpdateType = "notifications_update"
	CmdUpdateCount         CmdUpdateType = "notifications_count_update"
	CmdUpdateError         CmdUpdateType = "error"
)

// UpdateType distingue una actualización completa de una parcial
type UpdateType string

const (
	UpdateTypeFull    UpdateType = "full"
	UpdateTypePartial UpdateType = "partial"
)

// ErrorCode es el código de error enviado al cliente
type ErrorCode string

const (
	ErrorCodeInvalidLimit        ErrorCode = "INVALID_LIMIT"
	ErrorCodeUnknownSubscription ErrorCode = "UNKNOWN_SUBSCRIPTION"
	ErrorCodeStoreUnavailable    ErrorCode = "STORE_UNAVAILABLE"
	ErrorCodeBadCommand          ErrorCode = "BAD_COMMAND"
	ErrorCodeNotFound            ErrorCode = "NOTIFICATION_NOT_FOUND"
	ErrorCodeThrottled           ErrorCode = "THROTTLED"
	ErrorCodeInternal            ErrorCode = "INTERNAL_ERROR"
)

// CmdUpdate es cualquier mensaje saliente asociado a un cmdId
type CmdUpdate interface {
	GetCmdID() int
	GetType() CmdUpdateType
}

// UpdateHandler recibe los mensajes salientes de una suscripción
type UpdateHandler interface {
	OnUpdate(sessionID string, update CmdUpdate)
}

// UpdateHandlerFunc adapta una función a UpdateHandler
type UpdateHandlerFunc func(sessionID string, update CmdUpdate)

// OnUpdate implementa UpdateHandler
func (f UpdateHandlerFunc) OnUpdate(sessionID string, update CmdUpdate) {
	f(sessionID, update)
}

// UnreadNotificationsUpdate es la actualización de una suscripción de no leídas
type UnreadNotificationsUpdate struct {
	CmdID            int
	UpdateType       UpdateType
	Notifications    []*entity.Notification
	Update           *entity.Notification
	TotalUnreadCount int
}

// NewFullUpdate crea una actualización completa con la caché actual
func NewFullUpdate(cmdID int, state *UnreadNotificationsState) *UnreadNotificationsUpdate {
	return &UnreadNotificationsUpdate{
		CmdID:            cmdID,
		UpdateType:       UpdateTypeFull,
		Notifications:    state.Items(),
		TotalUnreadCount: state.TotalUnread(),
	}
}

// NewPartialUpdate crea una actualización parcial con una sola notificación
func NewPartialUpdate(cmdID int, notification *entity.Notification, state *UnreadNotificationsState) *UnreadNotificationsUpdate {
	return &UnreadNotificationsUpdate{
		CmdID:            cmdID,
		UpdateType:       UpdateTypePartial,
		Update:           notification,
		TotalUnreadCount: state.TotalUnread(),
	}
}

// GetCmdID implementa CmdUpdate
func (u *UnreadNotificationsUpdate) GetCmdID() int { return u.CmdID }

// GetType implementa CmdUpdate
func (u *UnreadNotificationsUpdate) GetType() CmdUpdateType { return CmdUpdateNotifications }

// MarshalJSON emite "notifications" solo en las completas y "update" solo en las parciales
func (u *UnreadNotificationsUpdate) MarshalJSON() ([]byte, error) {
	if u.UpdateType == UpdateTypePartial {
		return json.Marshal(struct {
			Type             CmdUpdateType        `json:"type"`
			CmdID            int                  `json:"cmdId"`
			UpdateType       UpdateType           `json:"updateType"`
			Update           *entity.Notification `json:"update"`
			TotalUnreadCount int                  `json:"totalUnreadCount"`
		}{CmdUpdateNotifications, u.CmdID, u.UpdateType, u.Update, u.TotalUnreadCount})
	}

	notifications := u.Notifications
	if notifications == nil {
		notifications = []*entity.Notification{}
	}
	return json.Marshal(struct {
		Type             CmdUpdateType          `json:"type"`
		CmdID            int                    `json:"cmdId"`
		UpdateType       UpdateType             `json:"updateType"`
		Notifications    []*entity.Notification `json:"notifications"`
		TotalUnreadCount int                    `json:"totalUnreadCount"`
	}{CmdUpdateNotifications, u.CmdID, UpdateTypeFull, notifications, u.TotalUnreadCount})
}

// UnreadCountUpdate es la actualización de una suscripción de solo conteo
type UnreadCountUpdate struct {
	CmdID            int `json:"cmdId"`
	TotalUnreadCount int `json:"totalUnreadCount"`
}

// GetCmdID implementa CmdUpdate
func (u *UnreadCountUpdate) GetCmdID() int { return u.CmdID }

// GetType implementa CmdUpdate
func (u *UnreadCountUpdate) GetType() CmdUpdateType { return CmdUpdateCount }

// MarshalJSON añade el campo type
func (u *UnreadCountUpdate) MarshalJSON() ([]byte, error) {
	type alias UnreadCountUpdate
	return json.Marshal(struct {
		Type CmdUpdateType `json:"type"`
		*alias
	}{CmdUpdateCount, (*alias)(u)})
}

// ErrorUpdate informa al cliente de un comando fallido
type ErrorUpdate struct {
	CmdID     int       `json:"cmdId"`
	ErrorCode ErrorCode `json:"errorCode"`
	ErrorMsg  string    `json:"errorMsg,omitempty"`
}

// NewErrorUpdate traduce un error del dominio a su código para el cliente
func NewErrorUpdate(cmdID int, err error) *ErrorUpdate {
	return &ErrorUpdate{
		CmdID:     cmdID,
		ErrorCode: ErrorCodeFor(err),
		ErrorMsg:  err.Error(),
	}
}

// GetCmdID implementa CmdUpdate
func (u *ErrorUpdate) GetCmdID() int { return u.CmdID }

// GetType implementa CmdUpdate
func (u *ErrorUpdate) GetType() CmdUpdateType { return CmdUpdateError }

// MarshalJSON añade el campo type
func (u *ErrorUpdate) MarshalJSON() ([]byte, error) {
	type alias ErrorUpdate
	return json.Marshal(struct {
		Type CmdUpdateType `json:"type"`
		*alias
	}{CmdUpdateError, (*alias)(u)})
}

// ErrorCodeFor devuelve el código de cliente de un error
func ErrorCodeFor(err error) ErrorCode {
	switch {
	case errors.Is(err, ErrInvalidLimit):
		return ErrorCodeInvalidLimit
	case errors.Is(err, ErrUnknownSubscription):
		return ErrorCodeUnknownSubscription
	case errors.Is(err, ErrStoreUnavailable):
		return ErrorCodeStoreUnavailable
	case errors.Is(err, ErrBadCommand):
		return ErrorCodeBadCommand
	case errors.Is(err, ErrNotificationNotFound):
		return ErrorCodeNotFound
	default:
		return ErrorCodeInternal
	}
}
