package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"notification-sync-service/internal/domain/entity"
	"notification-sync-service/internal/domain/repository"
	"notification-sync-service/pkg/metrics"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/google/uuid"
)

// notificationRow es la fila de la tabla notifications
type notificationRow struct {
	ID          string `db:"id"`
	RequestID   string `db:"request_id"`
	TenantID    string `db:"tenant_id"`
	RecipientID string `db:"recipient_id"`
	Type        string `db:"type"`
	Subject     string `db:"subject"`
	Body        string `db:"body"`
	Info        string `db:"info"`
	Status      string `db:"status"`
	CreatedAt   int64  `db:"created_at"`
}

func toRow(n *entity.Notification) notificationRow {
	return notificationRow{
		ID:          n.ID.String(),
		RequestID:   n.RequestID.String(),
		TenantID:    n.TenantID.String(),
		RecipientID: n.RecipientID.String(),
		Type:        string(n.Type),
		Subject:     n.Subject,
		Body:        n.Text,
		Info:        string(n.Info),
		Status:      string(n.Status),
		CreatedAt:   n.CreatedAt.UnixMilli(),
	}
}

func (r notificationRow) toEntity() (*entity.Notification, error) {
	ids := make([]uuid.UUID, 4)
	for i, raw := range []string{r.ID, r.RequestID, r.TenantID, r.RecipientID} {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid uuid %q in notification row: %w", raw, err)
		}
		ids[i] = id
	}

	var info json.RawMessage
	if r.Info != "" {
		info = json.RawMessage(r.Info)
	}

	return &entity.Notification{
		ID:          ids[0],
		RequestID:   ids[1],
		TenantID:    ids[2],
		RecipientID: ids[3],
		Type:        entity.NotificationType(r.Type),
		Subject:     r.Subject,
		Text:        r.Body,
		Info:        info,
		Status:      entity.NotificationStatus(r.Status),
		CreatedAt:   time.UnixMilli(r.CreatedAt).UTC(),
	}, nil
}

// NotificationRepository implementa repository.NotificationRepository con SQL generado por goqu
type NotificationRepository struct {
	db *goqu.Database
}

// NewNotificationRepository crea una instancia de NotificationRepository para el dialecto indicado
func NewNotificationRepository(db *sql.DB, dialect string) repository.NotificationRepository {
	return &NotificationRepository{db: goqu.New(dialect, db)}
}

// Save guarda una nueva notificación
func (r *NotificationRepository) Save(ctx context.Context, notification *entity.Notification) error {
	done := metrics.TrackDatabaseOperation("insert", notificationsTable)

	_, err := r.db.Insert(notificationsTable).
		Prepared(true).
		Rows(toRow(notification)).
		Executor().
		ExecContext(ctx)
	done(metrics.Result(err))
	return err
}

// GetByID obtiene una notificación por su ID dentro de un tenant
func (r *NotificationRepository) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*entity.Notification, error) {
	done := metrics.TrackDatabaseOperation("select", notificationsTable)

	var row notificationRow
	found, err := r.db.From(notificationsTable).
		Prepared(true).
		Where(goqu.Ex{"tenant_id": tenantID.String(), "id": id.String()}).
		ScanStructContext(ctx, &row)
	done(metrics.Result(err))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, repository.ErrNotificationNotFound
	}
	return row.toEntity()
}

// FindLatestUnread obtiene las últimas no leídas (más recientes primero) y el total de no leídas
func (r *NotificationRepository) FindLatestUnread(ctx context.Context, tenantID, recipientID uuid.UUID, limit int) (*entity.NotificationPage, error) {
	done := metrics.TrackDatabaseOperation("find_latest_unread", notificationsTable)

	unread := r.unreadOf(tenantID, recipientID)

	var rows []notificationRow
	err := unread.
		Order(goqu.C("created_at").Desc(), goqu.C("id").Desc()).
		Limit(uint(limit)).
		ScanStructsContext(ctx, &rows)
	if err != nil {
		done(metrics.Result(err))
		return nil, err
	}

	total, err := unread.CountContext(ctx)
	done(metrics.Result(err))
	if err != nil {
		return nil, err
	}

	page := &entity.NotificationPage{
		Items:       make([]*entity.Notification, 0, len(rows)),
		TotalUnread: int(total),
	}
	for _, row := range rows {
		n, err := row.toEntity()
		if err != nil {
			return nil, err
		}
		page.Items = append(page.Items, n)
	}
	return page, nil
}

// CountUnread cuenta las notificaciones no leídas de un destinatario
func (r *NotificationRepository) CountUnread(ctx context.Context, tenantID, recipientID uuid.UUID) (int, error) {
	done := metrics.TrackDatabaseOperation("count_unread", notificationsTable)

	total, err := r.unreadOf(tenantID, recipientID).CountContext(ctx)
	done(metrics.Result(err))
	if err != nil {
		return 0, err
	}
	return int(total), nil
}

// MarkAsRead marca una notificación como leída; devuelve la notificación y si cambió de estado
func (r *NotificationRepository) MarkAsRead(ctx context.Context, tenantID, recipientID, id uuid.UUID) (*entity.Notification, bool, error) {
	done := metrics.TrackDatabaseOperation("mark_as_read", notificationsTable)

	var (
		notification *entity.Notification
		changed      bool
	)
	err := r.db.WithTx(func(tx *goqu.TxDatabase) error {
		owned := goqu.Ex{
			"tenant_id":    tenantID.String(),
			"recipient_id": recipientID.String(),
			"id":           id.String(),
		}

		var row notificationRow
		found, err := tx.From(notificationsTable).Prepared(true).Where(owned).ScanStructContext(ctx, &row)
		if err != nil {
			return err
		}
		if !found {
			return repository.ErrNotificationNotFound
		}

		notification, err = row.toEntity()
		if err != nil {
			return err
		}
		if notification.IsRead() {
			return nil
		}

		_, err = tx.Update(notificationsTable).
			Prepared(true).
			Set(goqu.Record{"status": string(entity.NotificationStatusRead)}).
			Where(owned).
			Executor().
			ExecContext(ctx)
		if err != nil {
			return err
		}

		notification.Status = entity.NotificationStatusRead
		changed = true
		return nil
	})
	done(metrics.Result(err))
	if err != nil {
		return nil, false, err
	}
	return notification, changed, nil
}

// DeleteByRequestID elimina las notificaciones de una solicitud y devuelve los destinatarios afectados
func (r *NotificationRepository) DeleteByRequestID(ctx context.Context, tenantID, requestID uuid.UUID) ([]uuid.UUID, error) {
	done := metrics.TrackDatabaseOperation("delete_request", notificationsTable)

	var recipients []uuid.UUID
	err := r.db.WithTx(func(tx *goqu.TxDatabase) error {
		byRequest := goqu.Ex{"tenant_id": tenantID.String(), "request_id": requestID.String()}

		var raw []string
		err := tx.From(notificationsTable).
			Prepared(true).
			Select("recipient_id").
			Distinct().
			Where(byRequest).
			ScanValsContext(ctx, &raw)
		if err != nil {
			return err
		}
		if len(raw) == 0 {
			return repository.ErrRequestNotFound
		}

		for _, value := range raw {
			id, err := uuid.Parse(value)
			if err != nil {
				return fmt.Errorf("invalid recipient id %q: %w", value, err)
			}
			recipients = append(recipients, id)
		}

		_, err = tx.Delete(notificationsTable).
			Prepared(true).
			Where(byRequest).
			Executor().
			ExecContext(ctx)
		return err
	})
	done(metrics.Result(err))
	if err != nil {
		return nil, err
	}
	return recipients, nil
}

func (r *NotificationRepository) unreadOf(tenantID, recipientID uuid.UUID) *goqu.SelectDataset {
	return r.db.From(notificationsTable).
		Prepared(true).
		Where(goqu.Ex{
			"tenant_id":    tenantID.String(),
			"recipient_id": recipientID.String(),
			"status":       string(entity.NotificationStatusUnread),
		})
}
