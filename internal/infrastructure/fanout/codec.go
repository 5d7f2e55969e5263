package fanout

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"notification-sync-service/internal/domain/entity"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

// wireNotification es la representación msgpack de una notificación
type wireNotification struct {
	ID          string `msgpack:"id"`
	RequestID   string `msgpack:"req"`
	TenantID    string `msgpack:"tn"`
	RecipientID string `msgpack:"rcp"`
	Type        string `msgpack:"typ"`
	Subject     string `msgpack:"sub,omitempty"`
	Text        string `msgpack:"txt"`
	Info        []byte `msgpack:"info,omitempty"`
	Status      string `msgpack:"st"`
	CreatedAt   int64  `msgpack:"ts"` // unix ms
}

// wireUpdate es la representación msgpack de un evento de dominio
type wireUpdate struct {
	Type            string            `msgpack:"t"`
	TenantID        string            `msgpack:"tn"`
	RecipientID     string            `msgpack:"rcp"`
	Notification    *wireNotification `msgpack:"n,omitempty"`
	NewNotification bool              `msgpack:"new,omitempty"`
	RequestID       string            `msgpack:"req,omitempty"`
}

// EncodeUpdate serializa un evento de dominio para el bus
func EncodeUpdate(update entity.SubscriptionUpdate) ([]byte, error) {
	w := wireUpdate{
		Type:            string(update.Type),
		TenantID:        update.TenantID.String(),
		RecipientID:     update.RecipientID.String(),
		NewNotification: update.NewNotification,
	}
	if update.RequestID != uuid.Nil {
		w.RequestID = update.RequestID.String()
	}
	if n := update.Notification; n != nil {
		w.Notification = &wireNotification{
			ID:          n.ID.String(),
			RequestID:   n.RequestID.String(),
			TenantID:    n.TenantID.String(),
			RecipientID: n.RecipientID.String(),
			Type:        string(n.Type),
			Subject:     n.Subject,
			Text:        n.Text,
			Info:        n.Info,
			Status:      string(n.Status),
			CreatedAt:   n.CreatedAt.UnixMilli(),
		}
	}

	var buf bytes.Buffer
	if err := msgpack.NewEncoder(&buf).Encode(&w); err != nil {
		return nil, fmt.Errorf("failed to encode subscription update: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeUpdate reconstruye un evento de dominio recibido del bus
func DecodeUpdate(data []byte) (entity.SubscriptionUpdate, error) {
	var w wireUpdate
	if err := msgpack.NewDecoder(bytes.NewReader(data)).Decode(&w); err != nil {
		return entity.SubscriptionUpdate{}, fmt.Errorf("failed to decode subscription update: %w", err)
	}

	update := entity.SubscriptionUpdate{
		Type:            entity.SubscriptionUpdateType(w.Type),
		NewNotification: w.NewNotification,
	}

	var err error
	if update.TenantID, err = uuid.Parse(w.TenantID); err != nil {
		return update, fmt.Errorf("invalid tenant id: %w", err)
	}
	if update.RecipientID, err = uuid.Parse(w.RecipientID); err != nil {
		return update, fmt.Errorf("invalid recipient id: %w", err)
	}
	if w.RequestID != "" {
		if update.RequestID, err = uuid.Parse(w.RequestID); err != nil {
			return update, fmt.Errorf("invalid request id: %w", err)
		}
	}

	if wn := w.Notification; wn != nil {
		n := &entity.Notification{
			Type:      entity.NotificationType(wn.Type),
			Subject:   wn.Subject,
			Text:      wn.Text,
			Status:    entity.NotificationStatus(wn.Status),
			CreatedAt: time.UnixMilli(wn.CreatedAt).UTC(),
		}
		if len(wn.Info) > 0 {
			n.Info = json.RawMessage(wn.Info)
		}
		for _, field := range []struct {
			dst *uuid.UUID
			raw string
		}{
			{&n.ID, wn.ID},
			{&n.RequestID, wn.RequestID},
			{&n.TenantID, wn.TenantID},
			{&n.RecipientID, wn.RecipientID},
		} {
			if *field.dst, err = uuid.Parse(field.raw); err != nil {
				return update, fmt.Errorf("invalid notification id %q: %w", field.raw, err)
			}
		}
		update.Notification = n
	}
	return update, nil
}
