package usecase

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrBadCommand se devuelve cuando un comando entrante no se puede interpretar
var ErrBadCommand = errors.New("bad command")

// CommandType es el tipo de comando entrante
type CommandType string

const (
	CmdNotificationsSub      CommandType = "notifications_sub"
	CmdNotificationsCountSub CommandType = "notifications_count_sub"
	CmdMarkAsRead            CommandType = "mark_as_read"
	CmdUnsubscribe           CommandType = "unsub"
	CmdRefresh               CommandType = "refresh"
	CmdPing                  CommandType = "ping"
)

// Command es el sobre de un comando recibido por el canal push
type Command struct {
	Type    CommandType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// UnreadNotificationsSubCmd suscribe al conjunto de no leídas
type UnreadNotificationsSubCmd struct {
	CmdID int `json:"cmdId"`
	Limit int `json:"limit"`
}

// UnreadCountSubCmd suscribe al contador de no leídas
type UnreadCountSubCmd struct {
	CmdID int `json:"cmdId"`
}

// MarkAsReadCmd marca una notificación como leída
type MarkAsReadCmd struct {
	NotificationID uuid.UUID `json:"notificationId"`
}

// UnsubscribeCmd termina una suscripción de la sesión
type UnsubscribeCmd struct {
	CmdID int `json:"cmdId"`
}

// RefreshCmd fuerza la resincronización completa de una suscripción
type RefreshCmd struct {
	CmdID int `json:"cmdId"`
}

// ParseCommand decodifica un mensaje y devuelve el comando tipado correspondiente
func ParseCommand(data []byte) (Command, interface{}, error) {
	var envelope Command
	if err := json.Unmarshal(data, &envelope); err != nil {
		return envelope, nil, fmt.Errorf("%w: %v", ErrBadCommand, err)
	}

	var cmd interface{}
	switch envelope.Type {
	case CmdNotificationsSub:
		cmd = &UnreadNotificationsSubCmd{}
	case CmdNotificationsCountSub:
		cmd = &UnreadCountSubCmd{}
	case CmdMarkAsRead:
		cmd = &MarkAsReadCmd{}
	case CmdUnsubscribe:
		cmd = &UnsubscribeCmd{}
	case CmdRefresh:
		cmd = &RefreshCmd{}
	case CmdPing:
		return envelope, nil, nil
	default:
		return envelope, nil, fmt.Errorf("%w: unknown type %q", ErrBadCommand, envelope.Type)
	}

	if len(envelope.Payload) == 0 {
		return envelope, nil, fmt.Errorf("%w: missing payload for %s", ErrBadCommand, envelope.Type)
	}
	if err := json.Unmarshal(envelope.Payload, cmd); err != nil {
		return envelope, nil, fmt.Errorf("%w: %v", ErrBadCommand, err)
	}
	return envelope, cmd, nil
}
